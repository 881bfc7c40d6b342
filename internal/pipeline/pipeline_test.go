package pipeline

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/jvillar/structlab/internal/arrstore"
	"github.com/jvillar/structlab/internal/response"
	"github.com/jvillar/structlab/internal/synth"
)

func generateStore(t *testing.T, size int) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "matrices")

	store, err := arrstore.Create(dir)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	p := synth.DefaultParams(size)
	p.BlockEdge = 64
	p.Bandwidth = 5
	if err := synth.New(store, p).Run(context.Background()); err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}
	return dir
}

func TestLoadFullResolution(t *testing.T) {
	size := 120
	dir := generateStore(t, size)

	d, err := Load(dir, 2000)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if d.NDOF != size {
		t.Errorf("n_dof: got %d, want %d", d.NDOF, size)
	}
	if d.Stiffness == nil || d.Mass == nil {
		t.Fatal("matrices should be present")
	}
	r, c := d.Stiffness.Dims()
	if r != size || c != size {
		t.Fatalf("stiffness dims: got %dx%d, want %dx%d", r, c, size, size)
	}
	if len(d.Force) != size || len(d.Displacement) != size {
		t.Fatalf("vector lengths: force %d, displacement %d", len(d.Force), len(d.Displacement))
	}
	for _, n := range d.Notices {
		t.Errorf("unexpected notice at full resolution: %s", n)
	}

	// Stored diagonal matches the synthesis pattern.
	p := synth.DefaultParams(size)
	for _, i := range []int{0, 17, size - 1} {
		want := p.BaseStiffness * (1 + p.Amplitude*math.Sin(float64(i)/p.Period))
		if got := d.Stiffness.At(i, i); math.Abs(got-want) > math.Abs(want)*1e-12 {
			t.Errorf("diag %d: got %g, want %g", i, got, want)
		}
	}
	for i := 0; i < size; i++ {
		if got := d.Mass.At(i, i); math.Abs(got-p.MassPerDOF) > 1e-15 {
			t.Errorf("mass diag %d: got %g, want %g", i, got, p.MassPerDOF)
		}
	}
}

func TestLoadFeedsResponseReduction(t *testing.T) {
	dir := generateStore(t, 120)

	d, err := Load(dir, 2000)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	sum, err := response.Reduce(d.Force, d.Displacement, d.Stiffness)
	if err != nil {
		t.Fatalf("reduce: %v", err)
	}
	if sum.Nodes != 20 {
		t.Errorf("nodes: got %d, want 20", sum.Nodes)
	}
	if !sum.HasEnergy {
		t.Error("full-resolution load should yield strain energy")
	}

	var wantMax float64
	for _, u := range d.Displacement {
		if a := math.Abs(u) * 1000; a > wantMax {
			wantMax = a
		}
	}
	if math.Abs(sum.MaxDispMM-wantMax) > 1e-12 {
		t.Errorf("max displacement: got %g mm, want %g mm", sum.MaxDispMM, wantMax)
	}
	if sum.ExceedsLimit != (wantMax > response.DisplacementLimitMM) {
		t.Error("limit verdict inconsistent with max displacement")
	}
}

func TestLoadSubsampled(t *testing.T) {
	size := 600
	dir := generateStore(t, size)

	d, err := Load(dir, 200)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	// stride = 600/200 = 3, so 200 samples cover the array exactly.
	r, c := d.Stiffness.Dims()
	if r != 200 || c != 200 {
		t.Fatalf("subsampled dims: got %dx%d, want 200x200", r, c)
	}
	if len(d.Force) != 200 || len(d.Displacement) != 200 {
		t.Fatalf("subsampled vector lengths: force %d, displacement %d", len(d.Force), len(d.Displacement))
	}
	if len(d.Notices) == 0 {
		t.Fatal("subsampling should be surfaced as notices")
	}

	p := synth.DefaultParams(size)
	for _, i := range []int{0, 7, 199} {
		idx := i * 3
		want := p.BaseStiffness * (1 + p.Amplitude*math.Sin(float64(idx)/p.Period))
		if got := d.Stiffness.At(i, i); math.Abs(got-want) > math.Abs(want)*1e-12 {
			t.Errorf("subsampled diag %d (source %d): got %g, want %g", i, idx, got, want)
		}
	}
}

func TestLoadPartialStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "partial")
	store, err := arrstore.Create(dir)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	ds, err := store.Group(synth.GroupMatrices).Create(synth.DatasetStiffness, []int{8, 8})
	if err != nil {
		t.Fatalf("create dataset: %v", err)
	}
	block := make([]float64, 64)
	for i := 0; i < 8; i++ {
		block[i*8+i] = 1
	}
	if err := ds.WriteBlock([]int{0, 0}, []int{8, 8}, block); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	d, err := Load(dir, 2000)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if d.Stiffness == nil {
		t.Fatal("stiffness should load")
	}
	if d.Mass != nil || d.Force != nil || d.Displacement != nil {
		t.Error("absent datasets should stay nil")
	}
	if len(d.Notices) != 3 {
		t.Errorf("skip notices: got %d, want 3: %v", len(d.Notices), d.Notices)
	}
}

func TestLoadMissingStore(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent"), 2000)
	if !errors.Is(err, arrstore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
