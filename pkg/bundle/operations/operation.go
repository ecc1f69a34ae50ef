// SPDX-License-Identifier: Apache-2.0

// Package operations holds the byte transformations applied to the module
// archive. A chain always starts with TAR, which the archive package
// produces itself; the remaining steps are registered compression
// operations looked up by ID.
package operations

import (
	"fmt"
	"io"
	"sort"
	"sync"
)

// Operation identifiers. Values are stable; they are recorded in manifests.
const (
	OpNone uint8 = 0x00

	// Bundle operations (0x01-0x0F)
	OpTar uint8 = 0x01

	// Compression operations (0x10-0x2F)
	OpGzip  uint8 = 0x10
	OpBzip2 uint8 = 0x13
	OpZstd  uint8 = 0x1B
)

// Operation is a reversible transformation over bytes or streams.
type Operation interface {
	ID() uint8
	Name() string

	Apply(input []byte) ([]byte, error)
	ApplyStream(input io.Reader, output io.Writer) error

	Reverse(input []byte) ([]byte, error)
	ReverseStream(input io.Reader, output io.Writer) error

	CanReverse() bool

	// EstimateSize guesses the output size for an input of inputSize bytes.
	EstimateSize(inputSize int64) int64
}

// BaseOperation provides ID, Name and the default size estimate.
type BaseOperation struct {
	OpID   uint8
	OpName string
}

func (o *BaseOperation) ID() uint8 {
	return o.OpID
}

func (o *BaseOperation) Name() string {
	return o.OpName
}

func (o *BaseOperation) CanReverse() bool {
	return true
}

func (o *BaseOperation) EstimateSize(inputSize int64) int64 {
	return inputSize
}

var (
	registryMu sync.RWMutex
	registry   = make(map[uint8]Operation)
)

// Register adds op to the registry, replacing any operation with the same ID.
func Register(op Operation) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[op.ID()] = op
}

// Get retrieves a registered operation by ID.
func Get(id uint8) (Operation, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	op, ok := registry[id]
	if !ok {
		return nil, fmt.Errorf("unknown operation: 0x%02x", id)
	}
	return op, nil
}

// Registered lists the IDs of all registered operations in ascending order.
func Registered() []uint8 {
	registryMu.RLock()
	defer registryMu.RUnlock()
	ids := make([]uint8, 0, len(registry))
	for id := range registry {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// GetName returns the canonical name of an operation ID.
func GetName(id uint8) string {
	switch id {
	case OpNone:
		return "NONE"
	case OpTar:
		return "TAR"
	case OpGzip:
		return "GZIP"
	case OpBzip2:
		return "BZIP2"
	case OpZstd:
		return "ZSTD"
	default:
		return fmt.Sprintf("UNKNOWN_%02x", id)
	}
}
