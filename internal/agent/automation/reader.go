package automation

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pocketops/checkin-bridge/internal/protocol"
)

// DeviceReader gathers the readings carried by heartbeats and full status
// messages, and takes screenshots.
type DeviceReader interface {
	Read(ctx context.Context) protocol.DeviceStatus
	Screenshot(ctx context.Context) (string, error)
}

const screenshotJPEGQuality = 60

var (
	ssidRe = regexp.MustCompile(`SSID:\s*"?([^",]+)"?`)
	inetRe = regexp.MustCompile(`inet\s+([\d.]+)/`)
)

// adbReader reads device state through adb shell. Every reading degrades to
// a zero value on failure rather than erroring: a heartbeat with an empty
// field is more useful than no heartbeat.
type adbReader struct {
	adb *ADB
}

func NewADBReader(adb *ADB) DeviceReader {
	return &adbReader{adb: adb}
}

func (r *adbReader) Read(ctx context.Context) protocol.DeviceStatus {
	st := protocol.DeviceStatus{
		ADBConnected: r.adb.EnsureConnected(ctx),
	}
	if !st.ADBConnected {
		return st
	}

	st.BatteryLevel, st.BatteryCharging = r.battery(ctx)
	st.WifiSSID, st.WifiIP = r.wifi(ctx)
	st.ScreenOn = r.screenOn(ctx)
	st.UptimeSeconds = r.uptime(ctx)
	return st
}

func (r *adbReader) battery(ctx context.Context) (level int, charging bool) {
	out, err := r.adb.Shell(ctx, "dumpsys", "battery")
	if err != nil {
		slog.Warn("Battery reading failed", "error", err)
		return 0, false
	}
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if v, ok := strings.CutPrefix(line, "level:"); ok {
			level, _ = strconv.Atoi(strings.TrimSpace(v))
		} else if v, ok := strings.CutPrefix(line, "status:"); ok {
			// 2 = charging, 5 = full
			status, _ := strconv.Atoi(strings.TrimSpace(v))
			charging = status == 2 || status == 5
		}
	}
	return level, charging
}

func (r *adbReader) wifi(ctx context.Context) (ssid, ip string) {
	out, err := r.adb.Shell(ctx, "dumpsys", "wifi")
	if err == nil {
		for _, line := range strings.Split(out, "\n") {
			if strings.Contains(line, "mWifiInfo") && strings.Contains(line, "SSID:") {
				if m := ssidRe.FindStringSubmatch(line); m != nil {
					ssid = strings.Trim(strings.TrimSpace(m[1]), `"`)
				}
				break
			}
		}
	}

	out, err = r.adb.Shell(ctx, "ip", "addr", "show", "wlan0")
	if err == nil {
		if m := inetRe.FindStringSubmatch(out); m != nil {
			ip = m[1]
		}
	}
	return ssid, ip
}

func (r *adbReader) screenOn(ctx context.Context) bool {
	out, err := r.adb.Shell(ctx, "dumpsys", "power")
	if err != nil {
		return false
	}
	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, "mHoldingDisplaySuspendBlocker") {
			return strings.Contains(strings.ToLower(line), "true")
		}
		if strings.Contains(line, "Display Power: state=") {
			return strings.Contains(line, "ON")
		}
	}
	return false
}

func (r *adbReader) uptime(ctx context.Context) int64 {
	out, err := r.adb.Shell(ctx, "cat", "/proc/uptime")
	if err != nil {
		return 0
	}
	fields := strings.Fields(out)
	if len(fields) == 0 {
		return 0
	}
	secs, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0
	}
	return int64(secs)
}

// Screenshot captures the screen and returns it as base64 JPEG. screencap
// emits PNG; re-encoding as JPEG keeps the websocket payload small enough to
// push inline.
func (r *adbReader) Screenshot(ctx context.Context) (string, error) {
	raw, err := r.adb.runRaw(ctx, "exec-out", "screencap", "-p")
	if err != nil {
		return "", fmt.Errorf("screencap: %w", err)
	}

	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("decode screenshot: %w", err)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: screenshotJPEGQuality}); err != nil {
		return "", fmt.Errorf("encode screenshot: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// WakeScreen turns the display on and swipes past a passwordless lock
// screen. Retries a few times; the device sometimes ignores the first
// keyevent right after deep sleep.
func WakeScreen(ctx context.Context, adb *ADB, reader DeviceReader) {
	r, ok := reader.(*adbReader)
	for attempt := 0; attempt < 3; attempt++ {
		if ok && r.screenOn(ctx) {
			return
		}
		_, _ = adb.Shell(ctx, "input", "keyevent", "KEYCODE_WAKEUP")
		time.Sleep(time.Second)
		_, _ = adb.Shell(ctx, "input", "swipe", "500", "1800", "500", "800", "300")
		time.Sleep(time.Second)
	}
}

// KeepScreenOn disables the display timeout and enables stay-awake while
// charging so the automation never races the lock screen.
func KeepScreenOn(ctx context.Context, adb *ADB) {
	_, _ = adb.Shell(ctx, "settings", "put", "system", "screen_off_timeout", "2147483647")
	_, _ = adb.Shell(ctx, "settings", "put", "global", "stay_on_while_plugged_in", "3")
}
