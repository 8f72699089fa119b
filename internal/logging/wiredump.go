package log

import (
	"sync/atomic"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// WireDumper writes raw upstream frames to a size-rotated log file
// when enabled, independent of the structured logger everything else
// uses. Wired to the gateway "debug_dump" command and the config
// file's debug_dump key (spec §6; SPEC_FULL.md §4.10's log-rotation
// addition).
type WireDumper struct {
	enabled atomic.Bool
	out     *lumberjack.Logger
}

// NewWireDumper opens a rotated log file at path, starting enabled or
// disabled per the initial config value. The file itself is only
// touched on the first Dump call that finds it enabled.
func NewWireDumper(path string, enabled bool) *WireDumper {
	d := &WireDumper{out: &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     7, // days
	}}
	d.enabled.Store(enabled)
	return d
}

// SetEnabled toggles dumping at runtime, from the gateway "debug_dump"
// command or a config file hot-reload.
func (d *WireDumper) SetEnabled(enabled bool) { d.enabled.Store(enabled) }

// Enabled reports the current toggle state.
func (d *WireDumper) Enabled() bool { return d.enabled.Load() }

// Dump writes one frame, tagged with direction ("send"/"recv") and a
// timestamp, if dumping is currently enabled. Safe for concurrent use
// from the transport's read and write paths.
func (d *WireDumper) Dump(direction, frame string) {
	if !d.Enabled() {
		return
	}
	line := time.Now().Format(time.RFC3339Nano) + " " + direction + " " + frame + "\n"
	_, _ = d.out.Write([]byte(line))
}

// Close flushes and closes the underlying rotated file.
func (d *WireDumper) Close() error {
	return d.out.Close()
}
