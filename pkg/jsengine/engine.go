// Package jsengine evaluates JavaScript candidate filters for OTP profiles.
package jsengine

import (
	"fmt"
	"strings"
	"sync"

	"github.com/dop251/goja"

	"github.com/devicelab-dev/otpcap/pkg/core"
	"github.com/devicelab-dev/otpcap/pkg/logger"
	"github.com/devicelab-dev/otpcap/pkg/otp"
)

// Engine wraps a goja runtime. It is safe for sequential use from several
// goroutines but evaluates one script at a time.
type Engine struct {
	runtime *goja.Runtime
	mu      sync.Mutex
}

// New creates a new JS engine instance
func New() *Engine {
	e := &Engine{runtime: goja.New()}
	e.setupConsole()
	return e
}

// setupConsole routes console.log, console.warn and console.error to the
// file logger.
func (e *Engine) setupConsole() {
	makeConsoleFunc := func(log func(string, ...interface{})) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			parts := make([]string, len(call.Arguments))
			for i, arg := range call.Arguments {
				parts[i] = fmt.Sprint(arg.Export())
			}
			log("[js] %s", strings.Join(parts, " "))
			return goja.Undefined()
		}
	}

	console := e.runtime.NewObject()
	console.Set("log", makeConsoleFunc(logger.Info))
	console.Set("warn", makeConsoleFunc(logger.Warn))
	console.Set("error", makeConsoleFunc(logger.Error))
	e.runtime.Set("console", console)
}

// SetVariable sets a variable accessible in JS as a global
func (e *Engine) SetVariable(name string, value interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.runtime.Set(name, value)
}

// SetVariables sets multiple variables
func (e *Engine) SetVariables(vars map[string]interface{}) {
	for k, v := range vars {
		e.SetVariable(k, v)
	}
}

// CompileFilter compiles expr once and returns a filter evaluating it per
// candidate. The candidate is exposed as value, length, rank, tier and rule,
// next to any globals set with SetVariables.
// A truthy result keeps the candidate. A runtime error is logged and keeps
// the candidate, so a broken filter never hides a passcode.
func (e *Engine) CompileFilter(expr string) (otp.FilterFunc, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, core.ErrInvalidConfig.WithMessage("empty filter expression")
	}
	prog, err := goja.Compile("filter", "("+expr+")", true)
	if err != nil {
		return nil, core.ErrInvalidConfig.WithCause(err).
			WithMessage(fmt.Sprintf("invalid filter %q", expr))
	}

	return func(c otp.Candidate) bool {
		e.mu.Lock()
		defer e.mu.Unlock()

		e.runtime.Set("value", c.Value)
		e.runtime.Set("length", c.Len())
		e.runtime.Set("rank", c.Rank)
		e.runtime.Set("tier", c.Tier.String())
		e.runtime.Set("rule", c.Rule)

		v, err := e.runtime.RunProgram(prog)
		if err != nil {
			logger.Warn("filter %q failed on %s: %v", expr, c.Value, err)
			return true
		}
		return v.ToBoolean()
	}, nil
}

// Filter compiles expr in a fresh engine with vars set as globals.
func Filter(expr string, vars map[string]interface{}) (otp.FilterFunc, error) {
	e := New()
	e.SetVariables(vars)
	return e.CompileFilter(expr)
}
