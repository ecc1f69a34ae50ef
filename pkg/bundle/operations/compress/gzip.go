// SPDX-License-Identifier: Apache-2.0

// Package compress registers the compression operations used by archive
// chains. Import it for its side effects.
package compress

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"

	"github.com/provide-io/flavor/go/bundle/pkg/bundle/operations"
)

func init() {
	operations.Register(NewGzipOperation())
}

// GzipOperation implements GZIP compression. The header carries no name or
// modification time, so output depends only on input.
type GzipOperation struct {
	operations.BaseOperation
	Level int
}

// NewGzipOperation creates a GZIP operation at best compression.
func NewGzipOperation() *GzipOperation {
	return &GzipOperation{
		BaseOperation: operations.BaseOperation{OpID: operations.OpGzip, OpName: "GZIP"},
		Level:         gzip.BestCompression,
	}
}

// Apply compresses data using GZIP
func (o *GzipOperation) Apply(input []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := o.ApplyStream(bytes.NewReader(input), &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ApplyStream compresses a stream using GZIP
func (o *GzipOperation) ApplyStream(input io.Reader, output io.Writer) error {
	gw, err := gzip.NewWriterLevel(output, o.Level)
	if err != nil {
		return fmt.Errorf("creating gzip writer: %w", err)
	}
	if _, err := io.Copy(gw, input); err != nil {
		gw.Close()
		return fmt.Errorf("compressing stream: %w", err)
	}
	if err := gw.Close(); err != nil {
		return fmt.Errorf("closing gzip writer: %w", err)
	}
	return nil
}

// Reverse decompresses GZIP data
func (o *GzipOperation) Reverse(input []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := o.ReverseStream(bytes.NewReader(input), &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ReverseStream decompresses a GZIP stream
func (o *GzipOperation) ReverseStream(input io.Reader, output io.Writer) error {
	gr, err := gzip.NewReader(input)
	if err != nil {
		return fmt.Errorf("creating gzip reader: %w", err)
	}
	defer gr.Close()

	if _, err := io.Copy(output, gr); err != nil {
		return fmt.Errorf("decompressing stream: %w", err)
	}
	return nil
}

// EstimateSize assumes roughly 2:1 for source trees.
func (o *GzipOperation) EstimateSize(inputSize int64) int64 {
	return inputSize/2 + 18
}
