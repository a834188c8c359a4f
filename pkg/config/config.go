// Package config handles configuration for otpcap.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Masterminds/semver"
	"gopkg.in/yaml.v3"

	"github.com/devicelab-dev/otpcap/pkg/capture"
	"github.com/devicelab-dev/otpcap/pkg/core"
	"github.com/devicelab-dev/otpcap/pkg/locate"
	"github.com/devicelab-dev/otpcap/pkg/otp"
)

// File names searched by LoadFromDir, in order.
var FileNames = []string{"otpcap.yaml", "otpcap.yml"}

// SchemaVersion is written by Default and assumed when a file has no version.
const SchemaVersion = "1.0.0"

const supportedSchema = ">= 1.0.0, < 2.0.0"

// Text sources understood by the capture command.
var KnownSources = []string{"ui", "accessibility", "window", "probe"}

const redactedValue = "********"

// Config represents the otpcap.yaml file.
type Config struct {
	Version string `yaml:"version" json:"version"`

	// Device settings
	Device  string `yaml:"device,omitempty" json:"device,omitempty"`   // adb serial, empty = auto-detect
	ADBPath string `yaml:"adbPath,omitempty" json:"adbPath,omitempty"` // empty = search PATH
	Locale  string `yaml:"locale,omitempty" json:"locale,omitempty"`

	Credentials Credentials `yaml:"credentials,omitempty" json:"credentials"`
	Paths       Paths       `yaml:"paths" json:"paths"`
	Capture     Capture     `yaml:"capture" json:"capture"`
	Delivery    Delivery    `yaml:"delivery" json:"delivery"`

	Profiles []*otp.Profile    `yaml:"profiles,omitempty" json:"profiles,omitempty"`
	Env      map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
}

// Credentials are the login values the automation types before the OTP step.
type Credentials struct {
	Username string `yaml:"username,omitempty" json:"username,omitempty"`
	Password string `yaml:"password,omitempty" json:"password,omitempty"`
	Phone    string `yaml:"phone,omitempty" json:"phone,omitempty"`
}

// Paths are output locations.
type Paths struct {
	Output      string `yaml:"output" json:"output"`           // reports
	Screenshots string `yaml:"screenshots" json:"screenshots"` // exhaustion screenshots
}

// Capture configures the retry loop.
type Capture struct {
	MaxAttempts int          `yaml:"maxAttempts" json:"maxAttempts"`
	Delay       Duration     `yaml:"delay" json:"delay"` // 0 means the default
	Sources     []string     `yaml:"sources" json:"sources"`
	Probe       []core.Point `yaml:"probe,omitempty" json:"probe,omitempty"` // tap positions for the probe source
	Profile     string       `yaml:"profile" json:"profile"`

	// WaitFor is text that must appear on screen before the first attempt.
	WaitFor     string   `yaml:"waitFor,omitempty" json:"waitFor,omitempty"`
	WaitTimeout Duration `yaml:"waitTimeout,omitempty" json:"waitTimeout,omitempty"`
}

// Delivery configures where the passcode is typed.
type Delivery struct {
	Target    []string `yaml:"target" json:"target"` // locator descriptors, tried in order
	Submit    *bool    `yaml:"submit,omitempty" json:"submit,omitempty"`
	SubmitKey string   `yaml:"submitKey" json:"submitKey"`
}

// Duration is a time.Duration read from "2s" style strings or plain
// numbers of seconds.
type Duration time.Duration

// D returns the value as a time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	s := strings.TrimSpace(value.Value)
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		*d = Duration(secs * float64(time.Second))
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: invalid duration %q", value.Line, s)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load loads configuration from a file, expands ${VAR} references, applies
// defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- user-provided config file
	if err != nil {
		return nil, err
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes and validates configuration bytes.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, core.ErrInvalidConfig.WithCause(err).WithMessage(err.Error())
	}
	cfg.expand()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFromDir looks for otpcap.yaml or otpcap.yml in the directory.
func LoadFromDir(dir string) (*Config, error) {
	if path := Find(dir); path != "" {
		return Load(path)
	}
	return Default(), nil
}

// Find returns the config file in dir, or "" when there is none.
func Find(dir string) string {
	for _, name := range FileNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

func (c *Config) applyDefaults() {
	if c.Version == "" {
		c.Version = SchemaVersion
	}
	if c.Paths.Output == "" {
		c.Paths.Output = GetReportsDir()
	}
	if c.Paths.Screenshots == "" {
		c.Paths.Screenshots = filepath.Join(c.Paths.Output, "screenshots")
	}
	if c.Capture.MaxAttempts == 0 {
		c.Capture.MaxAttempts = capture.DefaultMaxAttempts
	}
	if c.Capture.Delay == 0 {
		c.Capture.Delay = Duration(capture.DefaultDelay)
	}
	if len(c.Capture.Sources) == 0 {
		c.Capture.Sources = []string{"ui", "accessibility", "window"}
	}
	if c.Capture.Profile == "" {
		c.Capture.Profile = "default"
	}
	if c.Capture.WaitTimeout == 0 {
		c.Capture.WaitTimeout = Duration(30 * time.Second)
	}
	if c.Delivery.SubmitKey == "" {
		c.Delivery.SubmitKey = "KEYCODE_ENTER"
	}
}

// Validate checks ranges and cross references.
func (c *Config) Validate() error {
	v, err := semver.NewVersion(c.Version)
	if err != nil {
		return invalid("version %q is not a semantic version", c.Version)
	}
	constraint, err := semver.NewConstraint(supportedSchema)
	if err != nil {
		return err
	}
	if !constraint.Check(v) {
		return invalid("config version %s is not supported (want %s)", c.Version, supportedSchema)
	}

	if c.Capture.MaxAttempts < 1 || c.Capture.MaxAttempts > capture.MaxAttemptsCeiling {
		return invalid("capture.maxAttempts must be between 1 and %d, got %d", capture.MaxAttemptsCeiling, c.Capture.MaxAttempts)
	}
	if c.Capture.Delay < 0 {
		return invalid("capture.delay must not be negative")
	}
	if c.Capture.WaitTimeout < 0 {
		return invalid("capture.waitTimeout must not be negative")
	}
	for _, s := range c.Capture.Sources {
		if !isKnownSource(s) {
			return invalid("capture.sources: unknown source %q (known: %s)", s, strings.Join(KnownSources, ", "))
		}
		if strings.EqualFold(s, "probe") && len(c.Capture.Probe) == 0 {
			return invalid("capture.sources: probe needs capture.probe positions")
		}
	}

	seen := map[string]bool{}
	for i, p := range c.Profiles {
		if p == nil {
			return invalid("profiles[%d] is empty", i)
		}
		if err := p.Validate(); err != nil {
			return invalid("profiles[%d]: %v", i, err)
		}
		if seen[p.Name] {
			return invalid("profile %q defined twice", p.Name)
		}
		seen[p.Name] = true
	}
	if _, err := c.Profile(); err != nil {
		return err
	}

	if _, err := c.Locators(); err != nil {
		return invalid("delivery.target: %v", err)
	}
	return nil
}

func isKnownSource(s string) bool {
	for _, k := range KnownSources {
		if strings.EqualFold(s, k) {
			return true
		}
	}
	return false
}

func invalid(format string, args ...interface{}) error {
	return core.ErrInvalidConfig.WithMessage(fmt.Sprintf(format, args...))
}

// Profile returns the selected extraction profile.
func (c *Config) Profile() (*otp.Profile, error) {
	return otp.FindProfile(c.Capture.Profile, c.Profiles)
}

// Locators parses the delivery target descriptors.
func (c *Config) Locators() ([]locate.Locator, error) {
	return locate.ParseAll(c.Delivery.Target)
}

// SubmitEnabled reports whether the submit key is sent after typing. It
// defaults to true.
func (c *Config) SubmitEnabled() bool {
	return c.Delivery.Submit == nil || *c.Delivery.Submit
}

var varPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// lookup resolves a variable from the process environment, then from the
// env section. Unknown variables stay as written.
func (c *Config) lookup(ref string) string {
	name := varPattern.FindStringSubmatch(ref)[1]
	if v, ok := os.LookupEnv(name); ok {
		return v
	}
	if v, ok := c.Env[name]; ok {
		return v
	}
	return ref
}

func (c *Config) expandString(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return varPattern.ReplaceAllStringFunc(s, c.lookup)
}

func (c *Config) expand() {
	for _, f := range []*string{
		&c.Device, &c.ADBPath, &c.Locale,
		&c.Credentials.Username, &c.Credentials.Password, &c.Credentials.Phone,
		&c.Paths.Output, &c.Paths.Screenshots,
		&c.Capture.Profile, &c.Capture.WaitFor,
		&c.Delivery.SubmitKey,
	} {
		*f = c.expandString(*f)
	}
	for i := range c.Delivery.Target {
		c.Delivery.Target[i] = c.expandString(c.Delivery.Target[i])
	}
}

// Redacted returns a copy safe to print: credentials and secret-looking env
// values are masked.
func (c *Config) Redacted() *Config {
	out := *c
	out.Credentials = Credentials{
		Username: c.Credentials.Username,
		Password: mask(c.Credentials.Password),
		Phone:    maskPhone(c.Credentials.Phone),
	}
	if c.Env != nil {
		out.Env = make(map[string]string, len(c.Env))
		for k, v := range c.Env {
			if isSecretKey(k) {
				v = mask(v)
			}
			out.Env[k] = v
		}
	}
	return &out
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return redactedValue
}

// maskPhone keeps the last two digits.
func maskPhone(s string) string {
	if len(s) <= 2 {
		return mask(s)
	}
	return strings.Repeat("*", len(s)-2) + s[len(s)-2:]
}

func isSecretKey(k string) bool {
	k = strings.ToUpper(k)
	for _, w := range []string{"PASS", "SECRET", "TOKEN", "KEY", "PIN"} {
		if strings.Contains(k, w) {
			return true
		}
	}
	return false
}

// EnvKeys returns the env section keys in sorted order.
func (c *Config) EnvKeys() []string {
	keys := make([]string, 0, len(c.Env))
	for k := range c.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// YAML encodes the configuration.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}
