// SPDX-License-Identifier: Apache-2.0

// Package logging builds the hclog loggers used by the builder and launcher.
package logging

import (
	"bytes"
	"io"
	"sync"
)

// PrefixWriter prepends a prefix to every complete line written through it.
// Partial lines are held until their newline arrives.
type PrefixWriter struct {
	mu      sync.Mutex
	prefix  []byte
	writer  io.Writer
	pending []byte
}

// NewPrefixWriter creates a new PrefixWriter.
func NewPrefixWriter(prefix string, w io.Writer) *PrefixWriter {
	return &PrefixWriter{prefix: []byte(prefix), writer: w}
}

// Write implements io.Writer.
func (pw *PrefixWriter) Write(p []byte) (int, error) {
	pw.mu.Lock()
	defer pw.mu.Unlock()

	pw.pending = append(pw.pending, p...)
	for {
		idx := bytes.IndexByte(pw.pending, '\n')
		if idx < 0 {
			break
		}
		line := pw.pending[:idx+1]
		if _, err := pw.writer.Write(append(append([]byte{}, pw.prefix...), line...)); err != nil {
			return 0, err
		}
		pw.pending = pw.pending[idx+1:]
	}
	if len(pw.pending) == 0 {
		pw.pending = nil
	}
	return len(p), nil
}

// Flush writes any buffered partial line.
func (pw *PrefixWriter) Flush() error {
	pw.mu.Lock()
	defer pw.mu.Unlock()

	if len(pw.pending) == 0 {
		return nil
	}
	_, err := pw.writer.Write(append(append([]byte{}, pw.prefix...), pw.pending...))
	pw.pending = nil
	return err
}
