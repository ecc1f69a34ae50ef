// SPDX-License-Identifier: Apache-2.0

package compress

import (
	"bytes"
	"fmt"
	"io"

	"github.com/dsnet/compress/bzip2"
	"github.com/provide-io/flavor/go/bundle/pkg/bundle/operations"
)

func init() {
	operations.Register(NewBzip2Operation())
}

// Bzip2Operation implements BZIP2 compression
type Bzip2Operation struct {
	operations.BaseOperation
}

// NewBzip2Operation creates a new BZIP2 operation
func NewBzip2Operation() *Bzip2Operation {
	return &Bzip2Operation{
		BaseOperation: operations.BaseOperation{OpID: operations.OpBzip2, OpName: "BZIP2"},
	}
}

func (o *Bzip2Operation) Apply(input []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := o.ApplyStream(bytes.NewReader(input), &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (o *Bzip2Operation) ApplyStream(input io.Reader, output io.Writer) error {
	bw, err := bzip2.NewWriter(output, &bzip2.WriterConfig{Level: 9})
	if err != nil {
		return fmt.Errorf("creating bzip2 writer: %w", err)
	}
	if _, err := io.Copy(bw, input); err != nil {
		bw.Close()
		return fmt.Errorf("compressing stream: %w", err)
	}
	if err := bw.Close(); err != nil {
		return fmt.Errorf("closing bzip2 writer: %w", err)
	}
	return nil
}

func (o *Bzip2Operation) Reverse(input []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := o.ReverseStream(bytes.NewReader(input), &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (o *Bzip2Operation) ReverseStream(input io.Reader, output io.Writer) error {
	br, err := bzip2.NewReader(input, &bzip2.ReaderConfig{})
	if err != nil {
		return fmt.Errorf("creating bzip2 reader: %w", err)
	}
	defer br.Close()

	if _, err := io.Copy(output, br); err != nil {
		return fmt.Errorf("decompressing stream: %w", err)
	}
	return nil
}

// EstimateSize estimates compressed size
func (o *Bzip2Operation) EstimateSize(inputSize int64) int64 {
	return (inputSize*7)/10 + 32
}
