package store

import "fmt"

// SparseBackend selects the sparse index implementation.
type SparseBackend string

const (
	// SparseBackendMemory is the default backend with exact BM25 scoring.
	SparseBackendMemory SparseBackend = "memory"

	// SparseBackendBleve uses bleve's analyzer and BM25 implementation.
	SparseBackendBleve SparseBackend = "bleve"
)

// NewSparseIndex creates a sparse index for the given backend. An empty
// backend selects memory.
func NewSparseIndex(backend string, config SparseConfig) (SparseIndex, error) {
	switch SparseBackend(backend) {
	case SparseBackendMemory, "":
		return NewMemoryBM25Index(config), nil
	case SparseBackendBleve:
		return NewBleveBM25Index(config)
	default:
		return nil, fmt.Errorf("unknown sparse backend: %s (valid options: memory, bleve)", backend)
	}
}
