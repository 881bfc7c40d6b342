package synth

import (
	"context"
	"math"
	"testing"

	"github.com/jvillar/structlab/internal/arrstore"
)

func testParams(size int) Params {
	p := DefaultParams(size)
	p.BlockEdge = 16
	p.Bandwidth = 5
	return p
}

func TestStiffnessBlockDiagonal(t *testing.T) {
	p := testParams(64)
	block := StiffnessBlock(p, 16, 16, 16, 16)
	if block == nil {
		t.Fatal("diagonal block should carry values")
	}

	for k := 0; k < 16; k++ {
		idx := 16 + k
		want := p.BaseStiffness * (1 + p.Amplitude*math.Sin(float64(idx)/p.Period))
		got := block[k*16+k]
		if math.Abs(got-want) > 1e-3 {
			t.Errorf("diag %d: got %g, want %g", idx, got, want)
		}
		if got <= 0 {
			t.Errorf("diag %d not strictly positive: %g", idx, got)
		}
	}
	// off-diagonal entries of the diagonal block stay zero
	if block[0*16+1] != 0 {
		t.Errorf("unexpected off-diagonal value %g", block[1])
	}
}

func TestStiffnessBlockBand(t *testing.T) {
	p := testParams(64)
	block := StiffnessBlock(p, 16, 32, 16, 16)
	if block == nil {
		t.Fatal("near-diagonal block should carry values")
	}

	for bi := 0; bi < 16; bi++ {
		for bj := 0; bj < 16; bj++ {
			dist := (16 + bi) - (32 + bj)
			if dist < 0 {
				dist = -dist
			}
			got := block[bi*16+bj]
			if dist <= p.Bandwidth {
				want := -p.BaseStiffness * math.Exp(-float64(dist)/p.Decay) * p.OffDiagScale
				if math.Abs(got-want) > math.Abs(want)*1e-12 {
					t.Errorf("band (%d,%d): got %g, want %g", bi, bj, got, want)
				}
			} else if got != 0 {
				t.Errorf("outside bandwidth (%d,%d): got %g, want 0", bi, bj, got)
			}
		}
	}
}

func TestStiffnessBlockPruning(t *testing.T) {
	p := testParams(128)
	if block := StiffnessBlock(p, 0, 2*p.BlockEdge, 16, 16); block != nil {
		t.Error("block at twice the block edge from the diagonal should be pruned")
	}
	if block := StiffnessBlock(p, 96, 0, 16, 16); block != nil {
		t.Error("far sub-diagonal block should be pruned")
	}
}

func TestStiffnessPatternSymmetry(t *testing.T) {
	p := testParams(64)
	upper := StiffnessBlock(p, 16, 32, 16, 16)
	lower := StiffnessBlock(p, 32, 16, 16, 16)
	if upper == nil || lower == nil {
		t.Fatal("mirror blocks should both carry values")
	}
	for bi := 0; bi < 16; bi++ {
		for bj := 0; bj < 16; bj++ {
			if upper[bi*16+bj] != lower[bj*16+bi] {
				t.Fatalf("pattern not symmetric at (%d,%d)", bi, bj)
			}
		}
	}
}

func TestMassBlock(t *testing.T) {
	p := testParams(64)
	if block := MassBlock(p, 0, 16, 16, 16); block != nil {
		t.Error("off-diagonal mass block should carry no values")
	}
	block := MassBlock(p, 16, 16, 16, 16)
	for bi := 0; bi < 16; bi++ {
		for bj := 0; bj < 16; bj++ {
			want := 0.0
			if bi == bj {
				want = p.MassPerDOF
			}
			if block[bi*16+bj] != want {
				t.Errorf("mass (%d,%d): got %g, want %g", bi, bj, block[bi*16+bj], want)
			}
		}
	}
}

func TestSynthesizerRun(t *testing.T) {
	p := testParams(60)
	store := arrstore.NewMemoryStore()
	s := New(store, p)
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	stiff := readMatrix(t, store, GroupMatrices, DatasetStiffness, 60)
	for i := 0; i < 60; i++ {
		if stiff[i*60+i] <= 0 {
			t.Errorf("diagonal %d not positive: %g", i, stiff[i*60+i])
		}
		for j := 0; j < 60; j++ {
			if stiff[i*60+j] != stiff[j*60+i] {
				t.Fatalf("stiffness not symmetric at (%d,%d)", i, j)
			}
		}
	}

	mass := readMatrix(t, store, GroupMatrices, DatasetMass, 60)
	for i := 0; i < 60; i++ {
		for j := 0; j < 60; j++ {
			if i != j && mass[i*60+j] != 0 {
				t.Fatalf("mass has off-diagonal value at (%d,%d)", i, j)
			}
			if i == j && mass[i*60+j] != p.MassPerDOF {
				t.Fatalf("mass diagonal %d: got %g", i, mass[i*60+j])
			}
		}
	}

	for _, spec := range []struct{ group, name string }{
		{GroupVectors, DatasetForce},
		{GroupResults, DatasetDisplacement},
	} {
		ds, err := store.Group(spec.group).Open(spec.name)
		if err != nil {
			t.Fatalf("open %s: %v", spec.name, err)
		}
		if got := ds.Shape()[0]; got != 60 {
			t.Errorf("%s length: got %d, want 60", spec.name, got)
		}
	}

	if n, ok := arrstore.AttrInt(store, "n_dof"); !ok || n != 60 {
		t.Errorf("n_dof attribute: got %v", n)
	}
	if _, ok := arrstore.AttrString(store, "created_by"); !ok {
		t.Error("created_by attribute missing")
	}
}

func TestSynthesizerRunParallel(t *testing.T) {
	p := testParams(60)
	seq := arrstore.NewMemoryStore()
	if err := New(seq, p).Run(context.Background()); err != nil {
		t.Fatalf("sequential run: %v", err)
	}

	p.Workers = 4
	par := arrstore.NewMemoryStore()
	if err := New(par, p).Run(context.Background()); err != nil {
		t.Fatalf("parallel run: %v", err)
	}

	a := readMatrix(t, seq, GroupMatrices, DatasetStiffness, 60)
	b := readMatrix(t, par, GroupMatrices, DatasetStiffness, 60)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("parallel synthesis differs at %d", i)
		}
	}
}

func TestRunSmall(t *testing.T) {
	p := testParams(30)
	store := arrstore.NewMemoryStore()
	if err := New(store, p).RunSmall(context.Background()); err != nil {
		t.Fatalf("run small: %v", err)
	}

	k := readMatrix(t, store, GroupMatrices, DatasetStiffness, 30)
	for i := 0; i < 30; i++ {
		if k[i*30+i] < p.BaseStiffness {
			t.Errorf("diagonal %d not dominant: %g", i, k[i*30+i])
		}
		for j := 0; j < 30; j++ {
			if k[i*30+j] != k[j*30+i] {
				t.Fatalf("small stiffness not symmetric at (%d,%d)", i, j)
			}
		}
	}
}

func readMatrix(t *testing.T, store arrstore.Store, group, name string, n int) []float64 {
	t.Helper()
	ds, err := store.Group(group).Open(name)
	if err != nil {
		t.Fatalf("open %s/%s: %v", group, name, err)
	}
	data, err := ds.ReadBlock([]int{0, 0}, []int{n, n})
	if err != nil {
		t.Fatalf("read %s/%s: %v", group, name, err)
	}
	return data
}
