// Package arrstore stores named float64 arrays in chunked, compressed form
// with group namespacing and scalar attributes.
//
// A store is written once by the generator and read back by the analysis
// pipeline; writer and reader are never open at the same time. Reads are
// bounded: a region or strided read decompresses one chunk at a time, so
// datasets far larger than memory stay usable.
package arrstore

// Store is the capability interface consumed by the synthesis and analysis
// components. FileStore is the on-disk implementation; MemoryStore backs
// tests with the same semantics.
type Store interface {
	// Group returns a handle to a named dataset namespace, creating it on
	// first use in a writable store.
	Group(name string) Group

	// SetAttr records a scalar root attribute.
	SetAttr(name string, value any) error

	// Attr returns a scalar root attribute.
	Attr(name string) (any, bool)

	// Close flushes pending chunks and the manifest. A store must not be
	// used after Close.
	Close() error
}

// Group is a namespace of datasets.
type Group interface {
	// Create allocates a dataset of the given shape (1-D or 2-D).
	Create(name string, shape []int, opts ...Option) (Dataset, error)

	// Open returns an existing dataset or ErrDatasetNotFound.
	Open(name string) (Dataset, error)

	// Datasets lists dataset names in the group, sorted.
	Datasets() []string
}

// Dataset is a handle to one chunked array.
type Dataset interface {
	// Shape returns the dataset dimensions.
	Shape() []int

	// Chunks returns the chunk dimensions.
	Chunks() []int

	// WriteBlock writes a rectangular region. Regions written to the same
	// dataset must not overlap; unwritten regions read back as zero.
	WriteBlock(off, dims []int, data []float64) error

	// ReadBlock reads a rectangular region, decompressing one chunk at a
	// time.
	ReadBlock(off, dims []int) ([]float64, error)

	// ReadStrided reads every stride-th element along every axis
	// simultaneously and returns the values with their reduced shape.
	ReadStrided(stride int) ([]float64, []int, error)
}

// DefaultCompressionLevel matches the gzip level used for persisted chunks.
const DefaultCompressionLevel = 6

// DefaultChunkEdge bounds a chunk dimension.
const DefaultChunkEdge = 1000

type createOptions struct {
	chunks []int
	level  int
}

// Option configures dataset creation.
type Option func(*createOptions)

// WithChunks overrides the chunk dimensions.
func WithChunks(chunks []int) Option {
	return func(o *createOptions) {
		o.chunks = append([]int(nil), chunks...)
	}
}

// WithCompressionLevel overrides the gzip level for a dataset.
func WithCompressionLevel(level int) Option {
	return func(o *createOptions) { o.level = level }
}

// DefaultChunks returns min(DefaultChunkEdge, n/10) per axis, at least 1.
func DefaultChunks(shape []int) []int {
	chunks := make([]int, len(shape))
	for i, n := range shape {
		c := n / 10
		if c > DefaultChunkEdge {
			c = DefaultChunkEdge
		}
		if c < 1 {
			c = 1
		}
		chunks[i] = c
	}
	return chunks
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

func volume(dims []int) int {
	v := 1
	for _, d := range dims {
		v *= d
	}
	return v
}

func validRegion(shape, off, dims []int) bool {
	if len(off) != len(shape) || len(dims) != len(shape) {
		return false
	}
	for i := range shape {
		if off[i] < 0 || dims[i] < 0 || off[i]+dims[i] > shape[i] {
			return false
		}
	}
	return true
}
