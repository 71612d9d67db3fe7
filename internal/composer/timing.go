package composer

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// timingEvent is one JSONL record. Offsets are relative to the run start.
type timingEvent struct {
	Stage     string  `json:"stage"`
	Kind      string  `json:"kind"`
	Module    string  `json:"module,omitempty"`
	Status    string  `json:"status,omitempty"`
	OffsetMS  float64 `json:"offset_ms"`
	ElapsedMS float64 `json:"elapsed_ms"`
}

// stopwatch writes timing events to w. The zero value and a nil pointer
// drop every event.
type stopwatch struct {
	origin time.Time

	mu  sync.Mutex
	w   io.WriteCloser
	err error
}

func newStopwatch(origin time.Time, path string) *stopwatch {
	sw := &stopwatch{origin: origin}
	if path == "" {
		return sw
	}
	sw.w, sw.err = os.Create(path)
	if sw.err != nil {
		sw.w = nil
	}
	return sw
}

func (sw *stopwatch) Err() error {
	if sw == nil {
		return nil
	}
	return sw.err
}

func (sw *stopwatch) Close() {
	if sw == nil || sw.w == nil {
		return
	}
	sw.mu.Lock()
	defer sw.mu.Unlock()
	_ = sw.w.Close()
	sw.w = nil
}

// Stage records a pipeline stage that began at since.
func (sw *stopwatch) Stage(stage string, since time.Time, status string) {
	sw.emit(timingEvent{Stage: stage, Kind: "stage", Status: status}, since)
}

// Module records work on one module. Safe for concurrent use.
func (sw *stopwatch) Module(stage, module, status string, since time.Time) {
	sw.emit(timingEvent{Stage: stage, Kind: "module", Module: module, Status: status}, since)
}

func (sw *stopwatch) emit(ev timingEvent, since time.Time) {
	if sw == nil {
		return
	}
	ev.OffsetMS = millis(since.Sub(sw.origin))
	ev.ElapsedMS = millis(time.Since(since))
	line, err := json.Marshal(ev)
	if err != nil {
		return
	}
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if sw.w == nil {
		return
	}
	_, _ = sw.w.Write(append(line, '\n'))
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// timingPath picks the JSONL destination. TOPWRAP_TIMING_JSONL wins over
// the composer's own settings; TOPWRAP_TIMING=1 writes timing.jsonl under
// the project root.
func (c *Composer) timingPath() string {
	if envPath := os.Getenv("TOPWRAP_TIMING_JSONL"); envPath != "" {
		return envPath
	}
	if c.Timing || envBool("TOPWRAP_TIMING") {
		if c.TimingPath != "" {
			return c.TimingPath
		}
		return filepath.Join(c.root(), "timing.jsonl")
	}
	return ""
}

func envBool(key string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
