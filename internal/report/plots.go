package report

import (
	"fmt"
	"io"

	"github.com/guptarohit/asciigraph"
	"gonum.org/v1/gonum/mat"

	"github.com/jvillar/structlab/internal/modal"
	"github.com/jvillar/structlab/internal/response"
)

const (
	plotWidth  = 80
	plotHeight = 10

	// structureMaxEdge bounds the sampled grid of the sparsity map.
	structureMaxEdge = 60
)

// PlotSeries renders one line plot with a caption.
func PlotSeries(w io.Writer, caption string, data []float64) {
	if len(data) == 0 {
		return
	}
	graph := asciigraph.Plot(data,
		asciigraph.Height(plotHeight),
		asciigraph.Width(plotWidth),
		asciigraph.Caption(caption),
	)
	fmt.Fprintln(w, graph)
	fmt.Fprintln(w)
}

// PlotResponse renders the per-node response: displacement components and
// magnitude in millimeters, forces in kN.
func PlotResponse(w io.Writer, sum *response.Summary) {
	PlotSeries(w, "displacement X (mm)", scaled(sum.DispX, 1000))
	PlotSeries(w, "displacement Y (mm)", scaled(sum.DispY, 1000))
	PlotSeries(w, "displacement Z (mm)", scaled(sum.DispZ, 1000))
	PlotSeries(w, "displacement magnitude (mm)", scaled(sum.Magnitude, 1000))
	PlotSeries(w, "force X (kN)", scaled(sum.ForceX, 1e-3))
	PlotSeries(w, "force Y (kN)", scaled(sum.ForceY, 1e-3))
}

// PlotModes renders the natural frequencies and the first mode shapes.
func PlotModes(w io.Writer, res *modal.Result) {
	for i, m := range res.Modes {
		if i >= 3 {
			break
		}
		PlotSeries(w, fmt.Sprintf("mode %d shape (%.2f Hz)", i+1, m.Frequency), m.Shape)
	}
}

// SparsityMap renders a strided density view of a matrix structure. Each
// cell covers a block of entries; '#' marks a dense block, '.' a sparse
// one, ' ' an empty one.
func SparsityMap(w io.Writer, a *mat.Dense, title string) {
	rows, cols := a.Dims()
	if rows == 0 || cols == 0 {
		return
	}
	step := max(1, rows/structureMaxEdge)
	gr := (rows + step - 1) / step
	gc := (cols + step - 1) / step

	fmt.Fprintf(w, "%s (%dx%d, 1 cell = %d entries)\n", title, rows, cols, step*step)
	for i := 0; i < gr; i++ {
		line := make([]rune, gc)
		for j := 0; j < gc; j++ {
			nz, total := 0, 0
			for r := i * step; r < min((i+1)*step, rows); r++ {
				for c := j * step; c < min((j+1)*step, cols); c++ {
					total++
					if a.At(r, c) != 0 {
						nz++
					}
				}
			}
			switch {
			case nz == 0:
				line[j] = ' '
			case nz*2 >= total:
				line[j] = '#'
			default:
				line[j] = '.'
			}
		}
		fmt.Fprintf(w, "  |%s|\n", string(line))
	}
	fmt.Fprintln(w)
}

func scaled(data []float64, factor float64) []float64 {
	out := make([]float64, len(data))
	for i, v := range data {
		out[i] = v * factor
	}
	return out
}
