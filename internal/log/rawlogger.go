package log

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// RawLogger records raw stream payloads.
type RawLogger interface {
	// Log records one payload; out=true means bridge -> peer.
	Log(out bool, data []byte)
}

type rawLogger struct {
	w   io.Writer
	mu  sync.Mutex
	now func() time.Time
}

// NewRaw creates a RawLogger writing to w. A nil writer yields a no-op logger.
func NewRaw(w io.Writer) RawLogger {
	return &rawLogger{w: w, now: time.Now}
}

// Log emits a single line with timestamp, direction, length and hex dump.
func (r *rawLogger) Log(out bool, data []byte) {
	if len(data) == 0 || r.w == nil {
		return
	}
	dir := "P->B"
	if out {
		dir = "B->P"
	}
	line := fmt.Sprintf("%s %s %d bytes: % x\n",
		r.now().Format("2006/01/02 15:04:05.000"), dir, len(data), data)

	r.mu.Lock()
	_, _ = io.WriteString(r.w, line)
	r.mu.Unlock()
}
