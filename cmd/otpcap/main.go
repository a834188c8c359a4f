package main

import "github.com/devicelab-dev/otpcap/pkg/cli"

func main() {
	cli.Execute()
}
