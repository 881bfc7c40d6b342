package report

import (
	"bytes"
	"strings"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/jvillar/structlab/internal/response"
)

func TestWriteFullReport(t *testing.T) {
	n := 12
	k := mat.NewDense(n, n, nil)
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		k.Set(i, i, 7e10)
		m.Set(i, i, 0.054)
	}
	force := make([]float64, n)
	disp := make([]float64, n)
	force[0] = 500
	disp[0] = 0.001
	sum, err := response.Reduce(force, disp, k)
	if err != nil {
		t.Fatalf("reduce: %v", err)
	}

	var buf bytes.Buffer
	Write(&buf, k, m, sum)
	out := buf.String()

	for _, want := range []string{
		"technical report",
		"stiffness matrix:",
		"12x12",
		"mass matrix:",
		"total mass",
		"structural response:",
		"strain energy",
		"ok: displacements within 10 mm limit",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q\n%s", want, out)
		}
	}
}

func TestWriteLimitWarning(t *testing.T) {
	disp := make([]float64, 6)
	disp[2] = 0.05 // 50 mm
	sum, err := response.Reduce(make([]float64, 6), disp, nil)
	if err != nil {
		t.Fatalf("reduce: %v", err)
	}

	var buf bytes.Buffer
	Write(&buf, nil, nil, sum)
	if !strings.Contains(buf.String(), "warning: max displacement") {
		t.Errorf("expected limit warning:\n%s", buf.String())
	}
}

func TestWriteHandlesMissingSections(t *testing.T) {
	var buf bytes.Buffer
	Write(&buf, nil, nil, nil)
	out := buf.String()
	if !strings.Contains(out, "technical report") {
		t.Error("header missing")
	}
	if strings.Contains(out, "stiffness") || strings.Contains(out, "response") {
		t.Errorf("absent data should produce no sections:\n%s", out)
	}
}

func TestPlotResponseAllComponents(t *testing.T) {
	n := 12
	force := make([]float64, n)
	disp := make([]float64, n)
	for i := range disp {
		force[i] = float64(i + 1)
		disp[i] = float64(i+1) * 1e-4
	}
	sum, err := response.Reduce(force, disp, nil)
	if err != nil {
		t.Fatalf("reduce: %v", err)
	}

	var buf bytes.Buffer
	PlotResponse(&buf, sum)
	out := buf.String()
	for _, want := range []string{
		"displacement X (mm)",
		"displacement Y (mm)",
		"displacement Z (mm)",
		"displacement magnitude (mm)",
		"force X (kN)",
		"force Y (kN)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("response plots missing %q", want)
		}
	}
}

func TestPlotSeriesEmpty(t *testing.T) {
	var buf bytes.Buffer
	PlotSeries(&buf, "empty", nil)
	if buf.Len() != 0 {
		t.Errorf("empty series should render nothing, got %q", buf.String())
	}
}

func TestSparsityMap(t *testing.T) {
	a := mat.NewDense(8, 8, nil)
	for i := 0; i < 8; i++ {
		a.Set(i, i, 1)
	}
	var buf bytes.Buffer
	SparsityMap(&buf, a, "stiffness structure")
	out := buf.String()
	if !strings.Contains(out, "stiffness structure (8x8") {
		t.Errorf("map header missing:\n%s", out)
	}
	if !strings.Contains(out, "#") {
		t.Errorf("diagonal cells should be dense:\n%s", out)
	}
}
