package arrstore

import (
	"fmt"
	"sort"
	"sync"
)

// MemoryStore is an in-memory Store implementation for testing. It keeps
// whole datasets uncompressed, so it is only suitable for small shapes.
type MemoryStore struct {
	mu     sync.Mutex
	attrs  map[string]any
	groups map[string]*memGroup
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		attrs:  make(map[string]any),
		groups: make(map[string]*memGroup),
	}
}

// Group returns the named dataset namespace.
func (s *MemoryStore) Group(name string) Group {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[name]
	if !ok {
		g = &memGroup{store: s, name: name, sets: make(map[string]*memDataset)}
		s.groups[name] = g
	}
	return g
}

// SetAttr records a scalar root attribute.
func (s *MemoryStore) SetAttr(name string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attrs[name] = value
	return nil
}

// Attr returns a scalar root attribute.
func (s *MemoryStore) Attr(name string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.attrs[name]
	return v, ok
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error { return nil }

type memGroup struct {
	store *MemoryStore
	name  string
	sets  map[string]*memDataset
}

func (g *memGroup) Create(name string, shape []int, opts ...Option) (Dataset, error) {
	g.store.mu.Lock()
	defer g.store.mu.Unlock()

	if len(shape) < 1 || len(shape) > 2 {
		return nil, fmt.Errorf("%w: %d dimensions", ErrShape, len(shape))
	}
	if _, exists := g.sets[name]; exists {
		return nil, fmt.Errorf("arrstore: dataset %s/%s already exists", g.name, name)
	}

	o := createOptions{level: DefaultCompressionLevel}
	for _, fn := range opts {
		fn(&o)
	}
	if o.chunks == nil {
		o.chunks = DefaultChunks(shape)
	}

	ds := &memDataset{
		shape:  append([]int(nil), shape...),
		chunks: append([]int(nil), o.chunks...),
		data:   make([]float64, volume(shape)),
	}
	g.sets[name] = ds
	return ds, nil
}

func (g *memGroup) Open(name string) (Dataset, error) {
	g.store.mu.Lock()
	defer g.store.mu.Unlock()
	ds, ok := g.sets[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrDatasetNotFound, g.name, name)
	}
	return ds, nil
}

func (g *memGroup) Datasets() []string {
	g.store.mu.Lock()
	defer g.store.mu.Unlock()
	names := make([]string, 0, len(g.sets))
	for name := range g.sets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type memDataset struct {
	mu     sync.Mutex
	shape  []int
	chunks []int
	data   []float64
}

func (ds *memDataset) Shape() []int  { return append([]int(nil), ds.shape...) }
func (ds *memDataset) Chunks() []int { return append([]int(nil), ds.chunks...) }

func (ds *memDataset) geometry() (rows, cols int) {
	rows, cols = ds.shape[0], 1
	if len(ds.shape) == 2 {
		cols = ds.shape[1]
	}
	return rows, cols
}

func (ds *memDataset) WriteBlock(off, dims []int, data []float64) error {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	if !validRegion(ds.shape, off, dims) {
		return fmt.Errorf("%w: write %v+%v in %v", ErrShape, off, dims, ds.shape)
	}
	if len(data) != volume(dims) {
		return fmt.Errorf("%w: %d values for region %v", ErrShape, len(data), dims)
	}

	_, cols := ds.geometry()
	r0, c0, nr, nc := off[0], 0, dims[0], 1
	if len(ds.shape) == 2 {
		c0, nc = off[1], dims[1]
	}
	for r := 0; r < nr; r++ {
		copy(ds.data[(r0+r)*cols+c0:(r0+r)*cols+c0+nc], data[r*nc:(r+1)*nc])
	}
	return nil
}

func (ds *memDataset) ReadBlock(off, dims []int) ([]float64, error) {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	if !validRegion(ds.shape, off, dims) {
		return nil, fmt.Errorf("%w: read %v+%v in %v", ErrShape, off, dims, ds.shape)
	}

	_, cols := ds.geometry()
	r0, c0, nr, nc := off[0], 0, dims[0], 1
	if len(ds.shape) == 2 {
		c0, nc = off[1], dims[1]
	}
	out := make([]float64, nr*nc)
	for r := 0; r < nr; r++ {
		copy(out[r*nc:(r+1)*nc], ds.data[(r0+r)*cols+c0:(r0+r)*cols+c0+nc])
	}
	return out, nil
}

func (ds *memDataset) ReadStrided(stride int) ([]float64, []int, error) {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	if stride < 1 {
		return nil, nil, fmt.Errorf("%w: stride %d", ErrShape, stride)
	}

	rows, cols := ds.geometry()
	outR := ceilDiv(rows, stride)
	outC := ceilDiv(cols, stride)
	out := make([]float64, outR*outC)
	for k := 0; k < outR; k++ {
		for l := 0; l < outC; l++ {
			out[k*outC+l] = ds.data[k*stride*cols+l*stride]
		}
	}

	shape := []int{outR}
	if len(ds.shape) == 2 {
		shape = []int{outR, outC}
	}
	return out, shape, nil
}
