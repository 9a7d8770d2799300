package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

// stderrLogger writes warnings to stderr with the program prefix. It is
// shared by batch workers, so writes are serialized.
type stderrLogger struct {
	mu sync.Mutex
	w  io.Writer
}

func newStderrLogger(w io.Writer) *stderrLogger {
	return &stderrLogger{w: w}
}

func (l *stderrLogger) Warn(format string, args ...interface{}) {
	if l == nil || l.w == nil {
		return
	}
	msg := strings.TrimRight(fmt.Sprintf(format, args...), "\n")
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.w, "[macrovars] %s\n", msg)
}
