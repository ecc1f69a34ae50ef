// SPDX-License-Identifier: Apache-2.0

package operations

import (
	"fmt"
	"io"
	"strings"
)

// MaxChainLength bounds the number of operations in one chain.
const MaxChainLength = 8

// Common operation chains, keyed by their hex form.
var commonChains = map[string]string{
	"01":    "tar",
	"01-10": "tar.gz",
	"01-13": "tar.bz2",
	"01-1b": "tar.zst",
}

// Named chains for parsing.
var namedChains = map[string][]uint8{
	"tar":     {OpTar},
	"tar.gz":  {OpTar, OpGzip},
	"tar.bz2": {OpTar, OpBzip2},
	"tar.zst": {OpTar, OpZstd},

	"tgz":  {OpTar, OpGzip},
	"tbz2": {OpTar, OpBzip2},
	"tzst": {OpTar, OpZstd},
}

var namedOperations = map[string]uint8{
	"TAR":   OpTar,
	"GZIP":  OpGzip,
	"BZIP2": OpBzip2,
	"ZSTD":  OpZstd,
}

// compressionNames maps descriptor compression values to operation IDs.
var compressionNames = map[string]uint8{
	"gzip":  OpGzip,
	"bzip2": OpBzip2,
	"zstd":  OpZstd,
}

// ParseChain parses "tar.gz", "tgz" or pipe notation ("tar|gzip") into
// operation IDs. Every chain must start with TAR.
func ParseChain(s string) ([]uint8, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if ops, ok := namedChains[s]; ok {
		return append([]uint8(nil), ops...), nil
	}
	if !strings.Contains(s, "|") {
		return nil, fmt.Errorf("unknown operation chain: %q", s)
	}

	var ops []uint8
	for _, part := range strings.Split(s, "|") {
		part = strings.TrimSpace(strings.ToUpper(part))
		if part == "" {
			continue
		}
		op, ok := namedOperations[part]
		if !ok {
			return nil, fmt.Errorf("unsupported operation: %s", part)
		}
		ops = append(ops, op)
	}
	if err := checkChain(ops); err != nil {
		return nil, err
	}
	return ops, nil
}

func checkChain(ops []uint8) error {
	if len(ops) == 0 || ops[0] != OpTar {
		return fmt.Errorf("operation chain must start with TAR")
	}
	if len(ops) > MaxChainLength {
		return fmt.Errorf("maximum %d operations allowed, got %d", MaxChainLength, len(ops))
	}
	for _, op := range ops[1:] {
		if op == OpTar {
			return fmt.Errorf("TAR may only appear first in a chain")
		}
	}
	return nil
}

// ChainFor returns the chain for a descriptor's compress flag and
// compression name.
func ChainFor(compress bool, compression string) ([]uint8, error) {
	if !compress {
		return []uint8{OpTar}, nil
	}
	op, ok := compressionNames[strings.ToLower(compression)]
	if !ok {
		return nil, fmt.Errorf("unsupported compression: %q", compression)
	}
	return []uint8{OpTar, op}, nil
}

// ChainString renders ops in their short form when one exists, otherwise in
// pipe notation.
func ChainString(ops []uint8) string {
	parts := make([]string, len(ops))
	for i, op := range ops {
		parts[i] = fmt.Sprintf("%02x", op)
	}
	if name, ok := commonChains[strings.Join(parts, "-")]; ok {
		return name
	}
	names := make([]string, len(ops))
	for i, op := range ops {
		names[i] = strings.ToLower(GetName(op))
	}
	return strings.Join(names, "|")
}

// Extension is the archive file suffix for ops, e.g. ".tar.gz".
func Extension(ops []uint8) string {
	name := ChainString(ops)
	if strings.Contains(name, "|") {
		return ".tar.bin"
	}
	return "." + name
}

// ApplyChainStream runs the compression steps (everything after TAR) from
// input to output. Intermediate steps are connected with pipes.
func ApplyChainStream(ops []uint8, input io.Reader, output io.Writer) error {
	steps, err := resolve(compressionSteps(ops))
	if err != nil {
		return err
	}
	if len(steps) == 0 {
		if _, err := io.Copy(output, input); err != nil {
			return fmt.Errorf("copying stream: %w", err)
		}
		return nil
	}

	current := input
	for _, op := range steps[:len(steps)-1] {
		pr, pw := io.Pipe()
		go func(op Operation, in io.Reader) {
			pw.CloseWithError(op.ApplyStream(in, pw))
		}(op, current)
		current = pr
	}
	last := steps[len(steps)-1]
	if err := last.ApplyStream(current, output); err != nil {
		return fmt.Errorf("applying %s: %w", last.Name(), err)
	}
	return nil
}

// ReverseReader returns a reader yielding input with the compression steps
// undone, last step first. Close releases the pipeline goroutines.
func ReverseReader(ops []uint8, input io.Reader) (io.ReadCloser, error) {
	steps, err := resolve(compressionSteps(ops))
	if err != nil {
		return nil, err
	}

	var current io.Reader = input
	var pipes []*io.PipeReader
	for i := len(steps) - 1; i >= 0; i-- {
		op := steps[i]
		if !op.CanReverse() {
			return nil, fmt.Errorf("operation %s is not reversible", op.Name())
		}
		pr, pw := io.Pipe()
		go func(op Operation, in io.Reader) {
			if err := op.ReverseStream(in, pw); err != nil {
				pw.CloseWithError(fmt.Errorf("reversing %s: %w", op.Name(), err))
				return
			}
			pw.Close()
		}(op, current)
		pipes = append(pipes, pr)
		current = pr
	}
	return &chainReader{Reader: current, pipes: pipes}, nil
}

type chainReader struct {
	io.Reader
	pipes []*io.PipeReader
}

func (c *chainReader) Close() error {
	for _, p := range c.pipes {
		p.Close()
	}
	return nil
}

func compressionSteps(ops []uint8) []uint8 {
	if len(ops) > 0 && ops[0] == OpTar {
		return ops[1:]
	}
	return ops
}

func resolve(ids []uint8) ([]Operation, error) {
	steps := make([]Operation, 0, len(ids))
	for _, id := range ids {
		op, err := Get(id)
		if err != nil {
			return nil, fmt.Errorf("operation 0x%02x: %w", id, err)
		}
		steps = append(steps, op)
	}
	return steps, nil
}

// ApplyChain applies the compression steps of ops to data.
func ApplyChain(data []byte, ops []uint8) ([]byte, error) {
	steps, err := resolve(compressionSteps(ops))
	if err != nil {
		return nil, err
	}
	current := data
	for _, op := range steps {
		result, err := op.Apply(current)
		if err != nil {
			return nil, fmt.Errorf("applying %s: %w", op.Name(), err)
		}
		current = result
	}
	return current, nil
}

// ReverseChain undoes the compression steps of ops on data.
func ReverseChain(data []byte, ops []uint8) ([]byte, error) {
	steps, err := resolve(compressionSteps(ops))
	if err != nil {
		return nil, err
	}
	current := data
	for i := len(steps) - 1; i >= 0; i-- {
		op := steps[i]
		if !op.CanReverse() {
			return nil, fmt.Errorf("operation %s is not reversible", op.Name())
		}
		result, err := op.Reverse(current)
		if err != nil {
			return nil, fmt.Errorf("reversing %s: %w", op.Name(), err)
		}
		current = result
	}
	return current, nil
}
