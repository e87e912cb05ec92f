// Package automation drives the phone over adb: device readings, screen
// control, screenshots, and the external check-in driver.
package automation

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const adbTimeout = 10 * time.Second

// ADB wraps the adb binary for the single device the agent manages. The
// device debugs itself over wireless adb on localhost, so Addr is usually
// "localhost:<port>".
type ADB struct {
	Addr string
}

func NewADB(addr string) *ADB {
	return &ADB{Addr: addr}
}

func (a *ADB) run(ctx context.Context, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, adbTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "adb", args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return out.String(), fmt.Errorf("adb %s: %w", strings.Join(args, " "), err)
	}
	return out.String(), nil
}

// runRaw returns stdout bytes untouched, for binary output like screencap.
func (a *ADB) runRaw(ctx context.Context, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, adbTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "adb", args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("adb %s: %w", strings.Join(args, " "), err)
	}
	return out.Bytes(), nil
}

func (a *ADB) Shell(ctx context.Context, args ...string) (string, error) {
	return a.run(ctx, append([]string{"shell"}, args...)...)
}

// Connected reports whether any device shows up online in `adb devices`.
func (a *ADB) Connected(ctx context.Context) bool {
	out, err := a.run(ctx, "devices")
	if err != nil {
		return false
	}
	for _, line := range strings.Split(out, "\n")[1:] {
		if strings.Contains(line, "\tdevice") {
			return true
		}
	}
	return false
}

// EnsureConnected re-dials the wireless debug endpoint when no device is
// online. Best effort; the next status reading reports the outcome.
func (a *ADB) EnsureConnected(ctx context.Context) bool {
	if a.Connected(ctx) {
		return true
	}
	if a.Addr == "" {
		return false
	}
	out, err := a.run(ctx, "connect", a.Addr)
	if err != nil {
		return false
	}
	return strings.Contains(strings.ToLower(out), "connected")
}
