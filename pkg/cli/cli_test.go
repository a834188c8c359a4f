package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/devicelab-dev/otpcap/pkg/config"
	"github.com/devicelab-dev/otpcap/pkg/core"
	"github.com/devicelab-dev/otpcap/pkg/device"
	"github.com/devicelab-dev/otpcap/pkg/report"
)

// fakeRunner answers adb invocations keyed by their space-joined arguments.
// A key with several responses returns them in order and then repeats the last.
type fakeRunner struct {
	responses map[string][]string
	calls     []string
}

func (f *fakeRunner) Run(name string, args ...string) ([]byte, error) {
	key := strings.Join(args, " ")
	f.calls = append(f.calls, key)
	queue := f.responses[key]
	if len(queue) == 0 {
		return nil, nil
	}
	out := queue[0]
	if len(queue) > 1 {
		f.responses[key] = queue[1:]
	}
	return []byte(out), nil
}

func (f *fakeRunner) called(key string) bool {
	for _, c := range f.calls {
		if c == key {
			return true
		}
	}
	return false
}

type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func (c *fakeClock) Now() time.Time { return c.now }
func (c *fakeClock) Sleep(d time.Duration) {
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
}

const (
	serial   = "-s emulator-5554 "
	dumpCmd  = serial + "shell uiautomator dump " + device.DumpPath
	catCmd   = serial + "shell cat " + device.DumpPath
	shotCmd  = serial + "exec-out screencap -p"
	inputBox = `<node text="" resource-id="com.app:id/otp_input" class="android.widget.EditText" bounds="[100,1850][900,1950]" />`
)

func screen(text string) string {
	return `<?xml version='1.0' encoding='UTF-8' standalone='yes' ?><hierarchy rotation="0">` +
		`<node text="` + text + `" class="android.widget.TextView" bounds="[0,80][1080,160]" />` +
		inputBox + `</hierarchy>`
}

// withDevice replaces openDevice and the capture clock for one test.
func withDevice(t *testing.T, r *fakeRunner) *fakeClock {
	t.Helper()
	if r.responses == nil {
		r.responses = map[string][]string{}
	}
	r.responses[serial+"get-state"] = []string{"device"}
	clock := &fakeClock{now: time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)}

	prevOpen, prevClock := openDevice, captureClock
	openDevice = func(cfg *config.Config) (*device.AndroidDevice, error) {
		return device.New("emulator-5554", device.WithADBPath("adb"), device.WithRunner(r),
			device.WithClock(clock), device.WithSettle(0))
	}
	captureClock = clock
	t.Cleanup(func() {
		openDevice, captureClock = prevOpen, prevClock
	})
	return clock
}

// run executes the app with args and returns stdout.
func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := App()
	app.Writer = &out
	app.ErrWriter = &out
	app.Reader = strings.NewReader(stdin)
	logPath := filepath.Join(t.TempDir(), "otpcap.log")
	err := app.Run(append([]string{"otpcap", "--no-ansi", "--log", logPath}, args...))
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, ExitOK},
		{core.ErrExhausted, ExitExhausted},
		{fmt.Errorf("run: %w", core.ErrDelivery.WithCause(errors.New("tap"))), ExitDelivery},
		{core.ErrLocatorNotFound, ExitDelivery},
		{core.ErrInvalidConfig.WithMessage("bad"), ExitConfig},
		{core.ErrUnknownProfile, ExitConfig},
		{errors.New("other"), ExitError},
	}
	for _, tt := range tests {
		if got := exitCode(tt.err); got != tt.want {
			t.Errorf("exitCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestExtract_File(t *testing.T) {
	path := writeFile(t, "sms.txt", "Your verification code: 482913. Call 1234 for help.")

	out, err := run(t, "", "extract", path)
	if err != nil {
		t.Fatalf("extract error = %v", err)
	}
	if out != "482913\n" {
		t.Errorf("output = %q", out)
	}
}

func TestExtract_StdinAllJSON(t *testing.T) {
	out, err := run(t, "OTP: 4821\nRef 739201", "extract", "--all", "--json")
	if err != nil {
		t.Fatalf("extract error = %v", err)
	}

	var res extractOutput
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("invalid JSON %q: %v", out, err)
	}
	if !res.Found || res.Passcode.Value != "4821" || res.Profile != "default" {
		t.Errorf("result = %+v", res)
	}
	if len(res.Candidates) != 2 || res.Candidates[1].Value != "739201" {
		t.Errorf("candidates = %+v", res.Candidates)
	}
}

func TestExtract_AllText(t *testing.T) {
	out, err := run(t, "code 739201 and 4821", "extract", "--all", "-")
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 || lines[0] != "4821" || !strings.HasPrefix(lines[2], "* 4821") {
		t.Errorf("output = %q", out)
	}
}

func TestExtract_NotFound(t *testing.T) {
	_, err := run(t, "Welcome back! Your balance is 1,234.", "extract")
	if !errors.Is(err, core.ErrExhausted) {
		t.Errorf("extract error = %v, want ErrExhausted", err)
	}
}

func TestExtract_UnknownProfile(t *testing.T) {
	_, err := run(t, "OTP 4821", "extract", "--profile", "nope")
	if exitCode(err) != ExitConfig {
		t.Errorf("extract error = %v, want config exit code", err)
	}
}

func TestExtract_FilterSeesConfig(t *testing.T) {
	cfgPath := writeFile(t, "otpcap.yaml", `
locale: en-IN
env:
  OTP_LENGTH: "6"
capture:
  profile: bank
profiles:
  - name: bank
    filter: "locale === 'en-IN' && length === Number(env.OTP_LENGTH)"
`)
	out, err := run(t, "Your OTP is 4821, ref 739201", "--config", cfgPath, "extract")
	if err != nil {
		t.Fatalf("extract error = %v", err)
	}
	if out != "739201\n" {
		t.Errorf("output = %q, want the 6-digit code", out)
	}
}

func TestProfiles(t *testing.T) {
	cfgPath := writeFile(t, "otpcap.yaml", `
capture:
  profile: bank
profiles:
  - name: bank
    description: six digits only
    filter: "length === 6"
`)
	out, err := run(t, "", "--config", cfgPath, "profiles")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"bank (selected)", "config", "default", "first-match", "! first-match:"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "! default") {
		t.Errorf("default flagged as deviation:\n%s", out)
	}
}

func TestConfigCommand_Redacts(t *testing.T) {
	cfgPath := writeFile(t, "otpcap.yaml", `
credentials:
  username: demo
  password: hunter2
`)
	out, err := run(t, "", "--config", cfgPath, "--device", "R58M123", "config")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(out, "hunter2") || !strings.Contains(out, "password: '********'") && !strings.Contains(out, `password: "********"`) {
		t.Errorf("output = %s", out)
	}
	if !strings.Contains(out, "device: R58M123") {
		t.Errorf("--device not applied:\n%s", out)
	}

	out, err = run(t, "", "--config", cfgPath, "config", "--json")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, `"password": "********"`) {
		t.Errorf("json output = %s", out)
	}
}

func readRunReport(t *testing.T, dir string) report.Report {
	t.Helper()
	matches, _ := filepath.Glob(filepath.Join(dir, "otpcap-*.json"))
	if len(matches) != 1 {
		t.Fatalf("found %d reports in %s", len(matches), dir)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatal(err)
	}
	var r report.Report
	if err := json.Unmarshal(data, &r); err != nil {
		t.Fatalf("parse report: %v", err)
	}
	return r
}

func TestCapture_DeliversPasscode(t *testing.T) {
	r := &fakeRunner{responses: map[string][]string{
		catCmd: {screen("Enter the code we sent"), screen("Your OTP is 739201")},
	}}
	clock := withDevice(t, r)
	outDir := t.TempDir()

	out, err := run(t, "", "capture", "--source", "ui", "--target", "id=otp_input", "--output", outDir)
	if err != nil {
		t.Fatalf("capture error = %v\n%s", err, out)
	}
	if !strings.Contains(out, "Passcode 739201 delivered") {
		t.Errorf("output = %s", out)
	}
	if len(clock.sleeps) != 1 || clock.sleeps[0] != 2*time.Second {
		t.Errorf("sleeps = %v, want one 2s delay", clock.sleeps)
	}

	for _, want := range []string{
		serial + "shell input tap 500 1900",
		serial + "shell input keyevent KEYCODE_CTRL_A",
		serial + "shell input keyevent KEYCODE_DEL",
		serial + "shell input text 739201",
		serial + "shell input keyevent KEYCODE_ENTER",
	} {
		if !r.called(want) {
			t.Errorf("missing adb call %q", want)
		}
	}

	rep := readRunReport(t, outDir)
	if rep.Status != report.StatusPassed || rep.Result.Passcode != "739201" || len(rep.Attempts) != 2 {
		t.Errorf("report = %+v", rep)
	}
	if rep.Delivery == nil || !rep.Delivery.Submitted || rep.Delivery.Target != "id=otp_input" {
		t.Errorf("delivery = %+v", rep.Delivery)
	}
}

func TestCapture_NoSubmit(t *testing.T) {
	r := &fakeRunner{responses: map[string][]string{catCmd: {screen("PIN 4092")}}}
	withDevice(t, r)

	_, err := run(t, "", "capture", "--source", "ui", "--target", "coords=540,1650", "--no-submit", "--output", t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if !r.called(serial+"shell input text 4092") || r.called(serial+"shell input keyevent KEYCODE_ENTER") {
		t.Errorf("calls = %v", r.calls)
	}
}

func TestCapture_CoordsTarget(t *testing.T) {
	r := &fakeRunner{responses: map[string][]string{catCmd: {screen("Your OTP is 582013")}}}
	withDevice(t, r)
	outDir := t.TempDir()

	_, err := run(t, "", "capture", "--source", "ui", "--target", "coords=149,1902", "--output", outDir)
	if err != nil {
		t.Fatalf("capture error = %v", err)
	}
	for _, want := range []string{
		serial + "shell input tap 149 1902",
		serial + "shell input text 582013",
		serial + "shell input keyevent KEYCODE_ENTER",
	} {
		if !r.called(want) {
			t.Errorf("missing adb call %q in %v", want, r.calls)
		}
	}
	rep := readRunReport(t, outDir)
	if rep.Delivery == nil || rep.Delivery.Target != "coords=149,1902" || rep.Delivery.Position == nil ||
		*rep.Delivery.Position != (core.Point{X: 149, Y: 1902}) {
		t.Errorf("delivery = %+v", rep.Delivery)
	}
}

func TestCapture_Launch(t *testing.T) {
	r := &fakeRunner{responses: map[string][]string{catCmd: {screen("PIN 4092")}}}
	withDevice(t, r)

	_, err := run(t, "", "capture", "--source", "ui", "--launch", "com.bank/.Login", "--output", t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	stop, start := serial+"shell am force-stop com.bank", serial+"shell am start -n com.bank/.Login"
	if len(r.calls) < 3 || r.calls[1] != stop || r.calls[2] != start {
		t.Errorf("calls = %v, want get-state, %q, %q first", r.calls, stop, start)
	}
}

func TestCapture_LaunchErrors(t *testing.T) {
	r := &fakeRunner{responses: map[string][]string{
		serial + "shell am start -n com.bank/.Missing": {"Error: Activity class {com.bank/.Missing} does not exist."},
	}}
	withDevice(t, r)

	if _, err := run(t, "", "capture", "--launch", "com.bank", "--output", t.TempDir()); !errors.Is(err, core.ErrInvalidConfig) {
		t.Errorf("package without activity: err = %v, want ErrInvalidConfig", err)
	}
	_, err := run(t, "", "capture", "--source", "ui", "--launch", "com.bank/.Missing", "--output", t.TempDir())
	if err == nil || !strings.Contains(err.Error(), "does not exist") {
		t.Errorf("err = %v", err)
	}
	if r.called(dumpCmd) {
		t.Error("capture ran after a failed launch")
	}
}

func TestCapture_Exhausted(t *testing.T) {
	r := &fakeRunner{responses: map[string][]string{
		catCmd:  {screen("Loading")},
		shotCmd: {"\x89PNG"},
	}}
	clock := withDevice(t, r)
	outDir := t.TempDir()

	out, err := run(t, "", "capture", "--source", "ui", "--max-attempts", "3", "--delay", "1s", "--target", "id=otp_input", "--output", outDir)
	if !errors.Is(err, core.ErrExhausted) {
		t.Fatalf("capture error = %v, want ErrExhausted", err)
	}
	if len(clock.sleeps) != 2 {
		t.Errorf("sleeps = %v, want 2", clock.sleeps)
	}
	if !strings.Contains(out, "No passcode after 3 attempts") {
		t.Errorf("output = %s", out)
	}
	if r.called(serial + "shell input tap 500 1900") {
		t.Error("delivery attempted without a passcode")
	}

	shot := filepath.Join(outDir, "screenshots", "otp_attempt_3.png")
	if _, err := os.Stat(shot); err != nil {
		t.Errorf("screenshot missing: %v", err)
	}
	rep := readRunReport(t, outDir)
	if rep.Status != report.StatusFailed || rep.Error.Code != "otp_exhausted" || rep.Screenshot != shot {
		t.Errorf("report = %+v", rep)
	}
}

func TestCapture_DeliveryLocatorMissing(t *testing.T) {
	r := &fakeRunner{responses: map[string][]string{catCmd: {screen("OTP: 5821")}}}
	withDevice(t, r)

	_, err := run(t, "", "capture", "--source", "ui", "--target", "id=verify_code", "--output", t.TempDir())
	if !errors.Is(err, core.ErrDelivery) || exitCode(err) != ExitDelivery {
		t.Errorf("capture error = %v, want delivery failure", err)
	}
	if r.called(serial + "shell input text 5821") {
		t.Error("passcode typed although no target resolved")
	}
}

func TestCapture_WaitForTimeout(t *testing.T) {
	r := &fakeRunner{responses: map[string][]string{catCmd: {screen("Login")}}}
	withDevice(t, r)

	_, err := run(t, "", "capture", "--source", "ui", "--wait-for", "Enter OTP", "--wait-timeout", "3s", "--output", t.TempDir())
	if !errors.Is(err, core.ErrWaitTimeout) {
		t.Errorf("capture error = %v, want ErrWaitTimeout", err)
	}
}

func TestCapture_ZeroWaitTimeoutKeepsDefault(t *testing.T) {
	r := &fakeRunner{responses: map[string][]string{catCmd: {screen("Enter OTP 4821")}}}
	withDevice(t, r)

	_, err := run(t, "", "capture", "--source", "ui", "--wait-for", "Enter OTP", "--wait-timeout", "0s", "--output", t.TempDir())
	if err != nil {
		t.Fatalf("capture error = %v", err)
	}

	_, err = run(t, "", "capture", "--source", "ui", "--wait-for", "Enter OTP", "--wait-timeout", "-1s", "--output", t.TempDir())
	if exitCode(err) != ExitConfig {
		t.Errorf("negative wait timeout: err = %v, want config error", err)
	}
}

func TestCapture_InvalidFlags(t *testing.T) {
	withDevice(t, &fakeRunner{})

	_, err := run(t, "", "capture", "--max-attempts", "500")
	if exitCode(err) != ExitConfig {
		t.Errorf("capture error = %v, want config error", err)
	}
}

func TestLogLevelFlag(t *testing.T) {
	_, err := run(t, "", "--log-level", "loud", "dump")
	if !errors.Is(err, core.ErrInvalidConfig) {
		t.Errorf("err = %v, want ErrInvalidConfig", err)
	}
}

func TestDumpCommand(t *testing.T) {
	r := &fakeRunner{responses: map[string][]string{
		catCmd: {screen("OTP 4821")},
		serial + "shell dumpsys window windows": {`Window #1 title="Messages"`},
	}}
	withDevice(t, r)

	out, err := run(t, "", "dump")
	if err != nil || strings.TrimSpace(out) != "OTP 4821" {
		t.Errorf("dump = %q, %v", out, err)
	}
	out, err = run(t, "", "dump", "--source", "window")
	if err != nil || strings.TrimSpace(out) != "Messages" {
		t.Errorf("dump window = %q, %v", out, err)
	}
	out, err = run(t, "", "dump", "--raw")
	if err != nil || !strings.Contains(out, "<hierarchy") {
		t.Errorf("dump raw = %q, %v", out, err)
	}
	if !r.called(dumpCmd) {
		t.Error("uiautomator dump not invoked")
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{500 * time.Millisecond, "500ms"},
		{4 * time.Second, "4.0s"},
		{90 * time.Second, "1m30s"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
