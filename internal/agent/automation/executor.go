package automation

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/pocketops/checkin-bridge/internal/checkins"
)

// executeTimeout bounds one full check-in run: wake, open the app, navigate,
// tap, verify. Generous because the UI automation sleeps between steps.
const executeTimeout = 3 * time.Minute

// Result is the outcome of one automation run.
type Result struct {
	Success       bool
	ExecutedAt    time.Time
	Message       string
	ScreenshotB64 string
}

// Executor runs the actual check-in flow on the device. Implementations must
// be safe for concurrent calls even though the scheduler serializes them;
// manual triggers can arrive at any time.
type Executor interface {
	Execute(ctx context.Context, kind checkins.ActionKind) Result
}

// commandExecutor shells out to an external UI automation driver, passing the
// action kind as the last argument. Exit code zero means the check-in
// verified; the driver's last output line becomes the result message either
// way. A screenshot is taken after the run regardless of outcome so a human
// can always see what the screen ended up showing.
type commandExecutor struct {
	argv   []string
	adb    *ADB
	reader DeviceReader
}

func NewCommandExecutor(argv []string, adb *ADB, reader DeviceReader) (Executor, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("check-in command is empty")
	}
	return &commandExecutor{argv: argv, adb: adb, reader: reader}, nil
}

func (e *commandExecutor) Execute(ctx context.Context, kind checkins.ActionKind) Result {
	res := Result{ExecutedAt: time.Now()}

	WakeScreen(ctx, e.adb, e.reader)

	runCtx, cancel := context.WithTimeout(ctx, executeTimeout)
	defer cancel()

	args := append(append([]string{}, e.argv[1:]...), string(kind))
	cmd := exec.CommandContext(runCtx, e.argv[0], args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	res.ExecutedAt = time.Now()
	res.Message = lastLine(out.String())
	res.Success = err == nil
	if err != nil && res.Message == "" {
		res.Message = err.Error()
	}

	if b64, shotErr := e.reader.Screenshot(ctx); shotErr != nil {
		slog.Warn("Post-checkin screenshot failed", "error", shotErr)
	} else {
		res.ScreenshotB64 = b64
	}

	slog.Info("Check-in run finished", "kind", kind, "success", res.Success, "message", res.Message)
	return res
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) == 0 {
		return ""
	}
	return strings.TrimSpace(lines[len(lines)-1])
}
