// SPDX-License-Identifier: Apache-2.0

package compress

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/provide-io/flavor/go/bundle/pkg/bundle/operations"
)

func init() {
	operations.Register(NewZstdOperation())
}

// ZstdOperation implements Zstandard compression.
type ZstdOperation struct {
	operations.BaseOperation
	Level zstd.EncoderLevel
}

func NewZstdOperation() *ZstdOperation {
	return &ZstdOperation{
		BaseOperation: operations.BaseOperation{OpID: operations.OpZstd, OpName: "ZSTD"},
		Level:         zstd.SpeedBetterCompression,
	}
}

func (o *ZstdOperation) Apply(input []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(o.Level), zstd.WithEncoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}
	defer enc.Close()
	return enc.EncodeAll(input, make([]byte, 0, len(input)/2)), nil
}

// ApplyStream uses a single encoder goroutine so output is identical across
// machines with different core counts.
func (o *ZstdOperation) ApplyStream(input io.Reader, output io.Writer) error {
	enc, err := zstd.NewWriter(output, zstd.WithEncoderLevel(o.Level), zstd.WithEncoderConcurrency(1))
	if err != nil {
		return fmt.Errorf("creating zstd encoder: %w", err)
	}
	if _, err := io.Copy(enc, input); err != nil {
		enc.Close()
		return fmt.Errorf("compressing stream: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("closing zstd encoder: %w", err)
	}
	return nil
}

func (o *ZstdOperation) Reverse(input []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := o.ReverseStream(bytes.NewReader(input), &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (o *ZstdOperation) ReverseStream(input io.Reader, output io.Writer) error {
	dec, err := zstd.NewReader(input)
	if err != nil {
		return fmt.Errorf("creating zstd decoder: %w", err)
	}
	defer dec.Close()

	if _, err := io.Copy(output, dec); err != nil {
		return fmt.Errorf("decompressing stream: %w", err)
	}
	return nil
}

func (o *ZstdOperation) EstimateSize(inputSize int64) int64 {
	return (inputSize*45)/100 + 16
}
