package arrstore

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/klauspost/compress/gzip"
)

var fileMagic = [4]byte{'S', 'L', 'C', '1'}

// FileStore persists datasets as one chunk file each plus a manifest, all
// inside a single directory. Chunks are gzip-compressed independently so a
// reader can decompress any chunk without touching the rest of the file.
type FileStore struct {
	mu       sync.Mutex
	dir      string
	writable bool
	closed   bool
	attrs    map[string]any
	groups   map[string]*fileGroup
	order    []*fileDataset
}

// Create makes a new writable store at dir, creating the directory if
// needed. The manifest is written on Close.
func Create(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create store: %w", err)
	}
	return &FileStore{
		dir:      dir,
		writable: true,
		attrs:    make(map[string]any),
		groups:   make(map[string]*fileGroup),
	}, nil
}

// Open opens an existing store read-only.
func Open(dir string) (*FileStore, error) {
	m, err := readManifest(dir)
	if err != nil {
		return nil, err
	}

	s := &FileStore{
		dir:    dir,
		attrs:  m.Attrs,
		groups: make(map[string]*fileGroup),
	}
	for _, rec := range m.Datasets {
		g := s.group(rec.Group)
		g.records[rec.Name] = rec
	}
	return s, nil
}

func (s *FileStore) group(name string) *fileGroup {
	g, ok := s.groups[name]
	if !ok {
		g = &fileGroup{
			store:   s,
			name:    name,
			sets:    make(map[string]*fileDataset),
			records: make(map[string]datasetRecord),
		}
		s.groups[name] = g
	}
	return g
}

// Group returns the named dataset namespace.
func (s *FileStore) Group(name string) Group {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.group(name)
}

// SetAttr records a scalar root attribute.
func (s *FileStore) SetAttr(name string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.writable {
		return ErrReadOnly
	}
	s.attrs[name] = value
	return nil
}

// Attr returns a scalar root attribute.
func (s *FileStore) Attr(name string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.attrs[name]
	return v, ok
}

// DatasetInfo describes one stored dataset for listings.
type DatasetInfo struct {
	Group       string
	Name        string
	Shape       []int
	Chunks      []int
	Compression string
	FileSize    int64
}

// Info lists all datasets in the store, sorted by group then name.
func (s *FileStore) Info() []DatasetInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	var infos []DatasetInfo
	for _, g := range s.groups {
		seen := make(map[string]bool)
		add := func(rec datasetRecord) {
			if seen[rec.Name] {
				return
			}
			seen[rec.Name] = true
			info := DatasetInfo{
				Group:       rec.Group,
				Name:        rec.Name,
				Shape:       rec.Shape,
				Chunks:      rec.Chunks,
				Compression: rec.Compression,
			}
			if st, err := os.Stat(filepath.Join(s.dir, rec.File)); err == nil {
				info.FileSize = st.Size()
			}
			infos = append(infos, info)
		}
		for _, rec := range g.records {
			add(rec)
		}
		for _, ds := range g.sets {
			add(ds.rec)
		}
	}
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].Group != infos[j].Group {
			return infos[i].Group < infos[j].Group
		}
		return infos[i].Name < infos[j].Name
	})
	return infos
}

// Attrs returns a copy of the root attributes.
func (s *FileStore) Attrs() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]any, len(s.attrs))
	for k, v := range s.attrs {
		out[k] = v
	}
	return out
}

// Close flushes every dataset and writes the manifest. A partially written
// store (Close never reached) must be treated as corrupt.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.closed = true

	var firstErr error
	for _, ds := range s.order {
		if err := ds.finish(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, g := range s.groups {
		for _, ds := range g.sets {
			if !ds.writable {
				ds.closeFile()
			}
		}
	}
	if !s.writable {
		return firstErr
	}

	m := &manifest{Version: 1, Attrs: s.attrs}
	for _, ds := range s.order {
		m.Datasets = append(m.Datasets, ds.rec)
	}
	if err := writeManifest(s.dir, m); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

type fileGroup struct {
	store   *FileStore
	name    string
	sets    map[string]*fileDataset
	records map[string]datasetRecord
}

// Create allocates a new dataset file in the group.
func (g *fileGroup) Create(name string, shape []int, opts ...Option) (Dataset, error) {
	g.store.mu.Lock()
	defer g.store.mu.Unlock()

	if !g.store.writable {
		return nil, ErrReadOnly
	}
	if g.store.closed {
		return nil, ErrClosed
	}
	if len(shape) < 1 || len(shape) > 2 {
		return nil, fmt.Errorf("%w: %d dimensions", ErrShape, len(shape))
	}
	for _, n := range shape {
		if n < 1 {
			return nil, fmt.Errorf("%w: non-positive dimension", ErrShape)
		}
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
	if len(o.chunks) != len(shape) {
		return nil, fmt.Errorf("%w: chunk rank mismatch", ErrShape)
	}

	rec := datasetRecord{
		Group:       g.name,
		Name:        name,
		File:        fmt.Sprintf("%s.%s.bin", g.name, name),
		Dtype:       "float64",
		Shape:       append([]int(nil), shape...),
		Chunks:      append([]int(nil), o.chunks...),
		Compression: fmt.Sprintf("gzip-%d", o.level),
	}

	f, err := os.Create(filepath.Join(g.store.dir, rec.File))
	if err != nil {
		return nil, fmt.Errorf("create dataset %s/%s: %w", g.name, name, err)
	}

	ds := newFileDataset(rec, f, o.level, true)
	if err := ds.writeHeader(); err != nil {
		f.Close()
		return nil, err
	}

	g.sets[name] = ds
	g.store.order = append(g.store.order, ds)
	return ds, nil
}

// Open returns an existing dataset.
func (g *fileGroup) Open(name string) (Dataset, error) {
	g.store.mu.Lock()
	defer g.store.mu.Unlock()

	if ds, ok := g.sets[name]; ok {
		return ds, nil
	}
	rec, ok := g.records[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrDatasetNotFound, g.name, name)
	}

	f, err := os.Open(filepath.Join(g.store.dir, rec.File))
	if err != nil {
		return nil, fmt.Errorf("open dataset %s/%s: %w", g.name, name, err)
	}
	ds := newFileDataset(rec, f, 0, false)
	if err := ds.readHeader(); err != nil {
		f.Close()
		return nil, err
	}
	g.sets[name] = ds
	return ds, nil
}

// Datasets lists dataset names in the group.
func (g *fileGroup) Datasets() []string {
	g.store.mu.Lock()
	defer g.store.mu.Unlock()

	seen := make(map[string]bool)
	for name := range g.sets {
		seen[name] = true
	}
	for name := range g.records {
		seen[name] = true
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type chunkRef struct {
	Offset int64
	Length int64
}

type stagedChunk struct {
	data   []float64
	filled int
}

// fileDataset normalizes 1-D datasets to n×1 internally so vectors and
// matrices share one chunk-geometry code path.
type fileDataset struct {
	mu       sync.Mutex
	rec      datasetRecord
	ndim     int
	rows     int
	cols     int
	chunkR   int
	chunkC   int
	gridR    int
	gridC    int
	level    int
	f        *os.File
	writable bool
	finished bool
	next     int64
	dir      []chunkRef
	pending  map[int]*stagedChunk
}

func newFileDataset(rec datasetRecord, f *os.File, level int, writable bool) *fileDataset {
	ds := &fileDataset{
		rec:      rec,
		ndim:     len(rec.Shape),
		rows:     rec.Shape[0],
		cols:     1,
		chunkR:   rec.Chunks[0],
		chunkC:   1,
		level:    level,
		f:        f,
		writable: writable,
	}
	if ds.ndim == 2 {
		ds.cols = rec.Shape[1]
		ds.chunkC = rec.Chunks[1]
	}
	ds.gridR = ceilDiv(ds.rows, ds.chunkR)
	ds.gridC = ceilDiv(ds.cols, ds.chunkC)
	ds.dir = make([]chunkRef, ds.gridR*ds.gridC)
	if writable {
		ds.pending = make(map[int]*stagedChunk)
	}
	return ds
}

// Shape returns the dataset dimensions.
func (ds *fileDataset) Shape() []int {
	return append([]int(nil), ds.rec.Shape...)
}

// Chunks returns the chunk dimensions.
func (ds *fileDataset) Chunks() []int {
	return append([]int(nil), ds.rec.Chunks...)
}

// header layout: magic, ndim, gzip level, shape, chunks, directory offset.
func (ds *fileDataset) headerLen() int64 {
	return int64(4 + 2 + 2 + ds.ndim*16 + 8)
}

func (ds *fileDataset) dirOffsetPos() int64 {
	return int64(4 + 2 + 2 + ds.ndim*16)
}

func (ds *fileDataset) writeHeader() error {
	buf := make([]byte, ds.headerLen())
	copy(buf, fileMagic[:])
	binary.LittleEndian.PutUint16(buf[4:], uint16(ds.ndim))
	binary.LittleEndian.PutUint16(buf[6:], uint16(ds.level))
	pos := 8
	for _, n := range ds.rec.Shape {
		binary.LittleEndian.PutUint64(buf[pos:], uint64(n))
		pos += 8
	}
	for _, c := range ds.rec.Chunks {
		binary.LittleEndian.PutUint64(buf[pos:], uint64(c))
		pos += 8
	}
	if _, err := ds.f.WriteAt(buf, 0); err != nil {
		return fmt.Errorf("write header %s: %w", ds.rec.File, err)
	}
	ds.next = ds.headerLen()
	return nil
}

func (ds *fileDataset) readHeader() error {
	head := make([]byte, 8)
	if _, err := io.ReadFull(io.NewSectionReader(ds.f, 0, 8), head); err != nil {
		return fmt.Errorf("%w: %s", ErrBadHeader, ds.rec.File)
	}
	if !bytes.Equal(head[:4], fileMagic[:]) {
		return fmt.Errorf("%w: %s: bad magic", ErrBadHeader, ds.rec.File)
	}
	ndim := int(binary.LittleEndian.Uint16(head[4:]))
	if ndim != ds.ndim {
		return fmt.Errorf("%w: %s: rank mismatch with manifest", ErrBadHeader, ds.rec.File)
	}
	ds.level = int(binary.LittleEndian.Uint16(head[6:]))

	rest := make([]byte, ds.ndim*16+8)
	if _, err := ds.f.ReadAt(rest, 8); err != nil {
		return fmt.Errorf("%w: %s", ErrBadHeader, ds.rec.File)
	}
	pos := 0
	for i := 0; i < ds.ndim; i++ {
		if int(binary.LittleEndian.Uint64(rest[pos:])) != ds.rec.Shape[i] {
			return fmt.Errorf("%w: %s: shape mismatch with manifest", ErrBadHeader, ds.rec.File)
		}
		pos += 8
	}
	pos += ds.ndim * 8 // chunk dims already validated via manifest
	dirOff := int64(binary.LittleEndian.Uint64(rest[pos:]))
	if dirOff == 0 {
		return fmt.Errorf("%w: %s: missing chunk directory (unfinished write)", ErrBadHeader, ds.rec.File)
	}

	dirBuf := make([]byte, len(ds.dir)*16)
	if _, err := ds.f.ReadAt(dirBuf, dirOff); err != nil {
		return fmt.Errorf("%w: %s: truncated chunk directory", ErrBadHeader, ds.rec.File)
	}
	for i := range ds.dir {
		ds.dir[i].Offset = int64(binary.LittleEndian.Uint64(dirBuf[i*16:]))
		ds.dir[i].Length = int64(binary.LittleEndian.Uint64(dirBuf[i*16+8:]))
	}
	return nil
}

func (ds *fileDataset) chunkDims(gr, gc int) (int, int) {
	r := ds.chunkR
	if (gr+1)*ds.chunkR > ds.rows {
		r = ds.rows - gr*ds.chunkR
	}
	c := ds.chunkC
	if (gc+1)*ds.chunkC > ds.cols {
		c = ds.cols - gc*ds.chunkC
	}
	return r, c
}

func (ds *fileDataset) normalize(off, dims []int) (r0, c0, nr, nc int, ok bool) {
	if !validRegion(ds.rec.Shape, off, dims) {
		return 0, 0, 0, 0, false
	}
	r0, nr = off[0], dims[0]
	c0, nc = 0, 1
	if ds.ndim == 2 {
		c0, nc = off[1], dims[1]
	}
	return r0, c0, nr, nc, true
}

// WriteBlock stages the region into the chunks it intersects and flushes
// each chunk as soon as it is fully covered.
func (ds *fileDataset) WriteBlock(off, dims []int, data []float64) error {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	if !ds.writable || ds.finished {
		return ErrReadOnly
	}
	r0, c0, nr, nc, ok := ds.normalize(off, dims)
	if !ok {
		return fmt.Errorf("%w: write %v+%v in %v", ErrShape, off, dims, ds.rec.Shape)
	}
	if len(data) != nr*nc {
		return fmt.Errorf("%w: %d values for %dx%d region", ErrShape, len(data), nr, nc)
	}

	for gr := r0 / ds.chunkR; gr <= (r0+nr-1)/ds.chunkR; gr++ {
		for gc := c0 / ds.chunkC; gc <= (c0+nc-1)/ds.chunkC; gc++ {
			cr, cc := ds.chunkDims(gr, gc)
			chunkR0, chunkC0 := gr*ds.chunkR, gc*ds.chunkC

			ir0 := max(r0, chunkR0)
			ir1 := min(r0+nr, chunkR0+cr)
			ic0 := max(c0, chunkC0)
			ic1 := min(c0+nc, chunkC0+cc)

			idx := gr*ds.gridC + gc
			st, ok := ds.pending[idx]
			if !ok {
				st = &stagedChunk{data: make([]float64, cr*cc)}
				ds.pending[idx] = st
			}
			for r := ir0; r < ir1; r++ {
				src := data[(r-r0)*nc+(ic0-c0) : (r-r0)*nc+(ic1-c0)]
				dst := st.data[(r-chunkR0)*cc+(ic0-chunkC0):]
				copy(dst, src)
			}
			st.filled += (ir1 - ir0) * (ic1 - ic0)
			if st.filled == cr*cc {
				if err := ds.flushChunk(idx, st.data); err != nil {
					return err
				}
				delete(ds.pending, idx)
			}
		}
	}
	return nil
}

func (ds *fileDataset) flushChunk(idx int, values []float64) error {
	allZero := true
	for _, v := range values {
		if v != 0 {
			allZero = false
			break
		}
	}
	if allZero {
		return nil // absent directory entry reads back as zeros
	}

	raw := make([]byte, len(values)*8)
	for i, v := range values {
		binary.LittleEndian.PutUint64(raw[i*8:], math.Float64bits(v))
	}

	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, ds.level)
	if err != nil {
		return fmt.Errorf("compress chunk: %w", err)
	}
	if _, err := zw.Write(raw); err != nil {
		return fmt.Errorf("compress chunk: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("compress chunk: %w", err)
	}

	if _, err := ds.f.WriteAt(buf.Bytes(), ds.next); err != nil {
		return fmt.Errorf("write chunk %s: %w", ds.rec.File, err)
	}
	ds.dir[idx] = chunkRef{Offset: ds.next, Length: int64(buf.Len())}
	ds.next += int64(buf.Len())
	return nil
}

// finish flushes partially covered chunks, writes the chunk directory and
// patches its offset into the header.
func (ds *fileDataset) finish() error {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	if !ds.writable || ds.finished {
		return nil
	}
	ds.finished = true

	for idx, st := range ds.pending {
		if err := ds.flushChunk(idx, st.data); err != nil {
			return err
		}
	}
	ds.pending = nil

	dirBuf := make([]byte, len(ds.dir)*16)
	for i, ref := range ds.dir {
		binary.LittleEndian.PutUint64(dirBuf[i*16:], uint64(ref.Offset))
		binary.LittleEndian.PutUint64(dirBuf[i*16+8:], uint64(ref.Length))
	}
	if _, err := ds.f.WriteAt(dirBuf, ds.next); err != nil {
		return fmt.Errorf("write directory %s: %w", ds.rec.File, err)
	}
	patch := make([]byte, 8)
	binary.LittleEndian.PutUint64(patch, uint64(ds.next))
	if _, err := ds.f.WriteAt(patch, ds.dirOffsetPos()); err != nil {
		return fmt.Errorf("patch header %s: %w", ds.rec.File, err)
	}
	if err := ds.f.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", ds.rec.File, err)
	}
	return ds.f.Close()
}

func (ds *fileDataset) closeFile() {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	if ds.f != nil {
		ds.f.Close()
		ds.f = nil
	}
}

// readChunk decompresses one chunk. A nil result means an all-zero chunk.
func (ds *fileDataset) readChunk(gr, gc int) ([]float64, error) {
	ref := ds.dir[gr*ds.gridC+gc]
	if ref.Length == 0 {
		return nil, nil
	}
	cr, cc := ds.chunkDims(gr, gc)

	zr, err := gzip.NewReader(io.NewSectionReader(ds.f, ref.Offset, ref.Length))
	if err != nil {
		return nil, fmt.Errorf("read chunk %s: %w", ds.rec.File, err)
	}
	defer zr.Close()

	raw := make([]byte, cr*cc*8)
	if _, err := io.ReadFull(zr, raw); err != nil {
		return nil, fmt.Errorf("read chunk %s: %w", ds.rec.File, err)
	}
	values := make([]float64, cr*cc)
	for i := range values {
		values[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[i*8:]))
	}
	return values, nil
}

// ReadBlock reads a rectangular region, one chunk at a time.
func (ds *fileDataset) ReadBlock(off, dims []int) ([]float64, error) {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	if ds.writable && !ds.finished {
		return nil, fmt.Errorf("arrstore: dataset %s/%s not flushed", ds.rec.Group, ds.rec.Name)
	}
	r0, c0, nr, nc, ok := ds.normalize(off, dims)
	if !ok {
		return nil, fmt.Errorf("%w: read %v+%v in %v", ErrShape, off, dims, ds.rec.Shape)
	}

	out := make([]float64, nr*nc)
	for gr := r0 / ds.chunkR; gr <= (r0+nr-1)/ds.chunkR; gr++ {
		for gc := c0 / ds.chunkC; gc <= (c0+nc-1)/ds.chunkC; gc++ {
			values, err := ds.readChunk(gr, gc)
			if err != nil {
				return nil, err
			}
			if values == nil {
				continue
			}
			cr, cc := ds.chunkDims(gr, gc)
			chunkR0, chunkC0 := gr*ds.chunkR, gc*ds.chunkC
			ir0 := max(r0, chunkR0)
			ir1 := min(r0+nr, chunkR0+cr)
			ic0 := max(c0, chunkC0)
			ic1 := min(c0+nc, chunkC0+cc)
			for r := ir0; r < ir1; r++ {
				src := values[(r-chunkR0)*cc+(ic0-chunkC0) : (r-chunkR0)*cc+(ic1-chunkC0)]
				copy(out[(r-r0)*nc+(ic0-c0):], src)
			}
		}
	}
	return out, nil
}

// ReadStrided gathers every stride-th element along every axis. Chunks that
// contain no sampled index are never decompressed.
func (ds *fileDataset) ReadStrided(stride int) ([]float64, []int, error) {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	if stride < 1 {
		return nil, nil, fmt.Errorf("%w: stride %d", ErrShape, stride)
	}
	if ds.writable && !ds.finished {
		return nil, nil, fmt.Errorf("arrstore: dataset %s/%s not flushed", ds.rec.Group, ds.rec.Name)
	}

	outR := ceilDiv(ds.rows, stride)
	outC := ceilDiv(ds.cols, stride)
	out := make([]float64, outR*outC)

	for gr := 0; gr < ds.gridR; gr++ {
		rLo := ceilDiv(gr*ds.chunkR, stride)
		cr, _ := ds.chunkDims(gr, 0)
		rHi := (gr*ds.chunkR + cr - 1) / stride
		if rLo > rHi {
			continue
		}
		for gc := 0; gc < ds.gridC; gc++ {
			_, cc := ds.chunkDims(gr, gc)
			cLo := ceilDiv(gc*ds.chunkC, stride)
			cHi := (gc*ds.chunkC + cc - 1) / stride
			if cLo > cHi {
				continue
			}
			if ds.dir[gr*ds.gridC+gc].Length == 0 {
				continue
			}
			values, err := ds.readChunk(gr, gc)
			if err != nil {
				return nil, nil, err
			}
			chunkR0, chunkC0 := gr*ds.chunkR, gc*ds.chunkC
			for k := rLo; k <= rHi; k++ {
				for l := cLo; l <= cHi; l++ {
					out[k*outC+l] = values[(k*stride-chunkR0)*cc+(l*stride-chunkC0)]
				}
			}
		}
	}

	shape := []int{outR}
	if ds.ndim == 2 {
		shape = []int{outR, outC}
	}
	return out, shape, nil
}
