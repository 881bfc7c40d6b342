package response

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestReduceTwoNodes(t *testing.T) {
	disp := []float64{3, 4, 0, 0.1, 0.2, 0.3, 1, 2, 2, 0.4, 0.5, 0.6}
	force := []float64{10, -20, 30, 1, 2, 3, -40, 50, 60, 4, 5, 6}

	s, err := Reduce(force, disp, nil)
	if err != nil {
		t.Fatalf("reduce: %v", err)
	}
	if s.Nodes != 2 {
		t.Fatalf("nodes: got %d, want 2", s.Nodes)
	}

	wantX := []float64{3, 1}
	wantY := []float64{4, 2}
	wantZ := []float64{0, 2}
	for i := 0; i < 2; i++ {
		if s.DispX[i] != wantX[i] || s.DispY[i] != wantY[i] || s.DispZ[i] != wantZ[i] {
			t.Errorf("node %d components: got (%g,%g,%g)", i, s.DispX[i], s.DispY[i], s.DispZ[i])
		}
	}

	wantMag := []float64{5, 3}
	for i, want := range wantMag {
		if math.Abs(s.Magnitude[i]-want) > 1e-12 {
			t.Errorf("magnitude %d: got %g, want %g", i, s.Magnitude[i], want)
		}
	}
	if math.Abs(s.MaxMagMM-5000) > 1e-9 {
		t.Errorf("max magnitude: got %g mm, want 5000", s.MaxMagMM)
	}
	if math.Abs(s.MeanMagMM-4000) > 1e-9 {
		t.Errorf("mean magnitude: got %g mm, want 4000", s.MeanMagMM)
	}

	var wantForce float64
	for _, f := range force {
		wantForce += math.Abs(f)
	}
	if math.Abs(s.TotalForceN-wantForce) > 1e-9 {
		t.Errorf("total force: got %g, want %g", s.TotalForceN, wantForce)
	}
}

func TestReduceMaxDispOverFlatVector(t *testing.T) {
	// The peak is a rotational DOF; the max is taken over all entries, not
	// just translations.
	disp := []float64{0.001, 0, 0, 0, 0, 0.02, 0, 0, 0, 0, 0, 0}
	force := make([]float64, 12)

	s, err := Reduce(force, disp, nil)
	if err != nil {
		t.Fatalf("reduce: %v", err)
	}
	if math.Abs(s.MaxDispMM-20) > 1e-9 {
		t.Errorf("max displacement: got %g mm, want 20", s.MaxDispMM)
	}
	if !s.ExceedsLimit {
		t.Error("20 mm should exceed the 10 mm limit")
	}
}

func TestReduceWithinLimit(t *testing.T) {
	disp := make([]float64, 6)
	disp[0] = 0.009 // 9 mm
	force := make([]float64, 6)

	s, err := Reduce(force, disp, nil)
	if err != nil {
		t.Fatalf("reduce: %v", err)
	}
	if s.ExceedsLimit {
		t.Errorf("9 mm should pass the limit, max %g mm", s.MaxDispMM)
	}
}

func TestReduceStrainEnergy(t *testing.T) {
	disp := []float64{1, 2, 0, 0, 0, 0}
	force := make([]float64, 6)
	k := mat.NewDense(6, 6, nil)
	for i := 0; i < 6; i++ {
		k.Set(i, i, 10)
	}

	s, err := Reduce(force, disp, k)
	if err != nil {
		t.Fatalf("reduce: %v", err)
	}
	if !s.HasEnergy {
		t.Fatal("conformant stiffness should yield strain energy")
	}
	// 0.5 * (1*10*1 + 2*10*2) = 25
	if math.Abs(s.StrainEnergy-25) > 1e-12 {
		t.Errorf("strain energy: got %g, want 25", s.StrainEnergy)
	}
}

func TestReduceNonConformantStiffness(t *testing.T) {
	disp := make([]float64, 6)
	force := make([]float64, 6)
	k := mat.NewDense(4, 4, nil)

	s, err := Reduce(force, disp, k)
	if err != nil {
		t.Fatalf("reduce: %v", err)
	}
	if s.HasEnergy {
		t.Error("mismatched stiffness must not produce strain energy")
	}
}

func TestReduceShortDisplacement(t *testing.T) {
	// Twelve force DOFs but only four displacement entries: the missing
	// components read as zero.
	force := make([]float64, 12)
	disp := []float64{1, 2, 3, 4}

	s, err := Reduce(force, disp, nil)
	if err != nil {
		t.Fatalf("reduce: %v", err)
	}
	if s.Nodes != 2 {
		t.Fatalf("nodes: got %d, want 2", s.Nodes)
	}
	if s.DispX[1] != 0 || s.DispY[1] != 0 || s.DispZ[1] != 0 {
		t.Error("second node components should be zero-filled")
	}
	if math.Abs(s.Magnitude[0]-math.Sqrt(14)) > 1e-12 {
		t.Errorf("first node magnitude: got %g", s.Magnitude[0])
	}
}

func TestReduceTooShort(t *testing.T) {
	_, err := Reduce([]float64{1, 2, 3}, []float64{1, 2, 3}, nil)
	if !errors.Is(err, ErrEmpty) {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
}

func TestReduceRMS(t *testing.T) {
	force := make([]float64, 6)
	disp := []float64{0.003, -0.003, 0.003, -0.003, 0.003, -0.003}

	s, err := Reduce(force, disp, nil)
	if err != nil {
		t.Fatalf("reduce: %v", err)
	}
	if math.Abs(s.RMSDispMM-3) > 1e-9 {
		t.Errorf("rms displacement: got %g mm, want 3", s.RMSDispMM)
	}
}
