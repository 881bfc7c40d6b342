// Package report renders analysis results for the console: a tabwriter
// technical summary and asciigraph plots. It consumes plain numeric slices
// produced by the analysis stages.
package report

import (
	"fmt"
	"io"
	"text/tabwriter"

	"gonum.org/v1/gonum/mat"

	"github.com/jvillar/structlab/internal/analysis"
	"github.com/jvillar/structlab/internal/response"
)

// Write prints the technical report for whatever data is present.
func Write(w io.Writer, stiffness, mass *mat.Dense, sum *response.Summary) {
	fmt.Fprintln(w, "technical report")
	fmt.Fprintln(w, "================")

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	if stiffness != nil {
		r, c := stiffness.Dims()
		lo, hi := analysis.DiagRange(stiffness)
		fmt.Fprintln(tw, "stiffness matrix:")
		fmt.Fprintf(tw, "  dimensions\t%dx%d\n", r, c)
		fmt.Fprintf(tw, "  diagonal range\t%.2e - %.2e\n", lo, hi)
		fmt.Fprintf(tw, "  condition estimate\t%.2e\n", analysis.ConditionEstimate(stiffness))
		fmt.Fprintf(tw, "  sparsity\t%.1f%%\n", analysis.Sparsity(stiffness))
		fmt.Fprintf(tw, "  est. bandwidth\t%d\n", analysis.EstimateBandwidth(stiffness))
	}

	if mass != nil {
		r, c := mass.Dims()
		total, perDOF := analysis.MassTotals(mass)
		fmt.Fprintln(tw, "mass matrix:")
		fmt.Fprintf(tw, "  dimensions\t%dx%d\n", r, c)
		fmt.Fprintf(tw, "  total mass\t%.2f kg\n", total)
		fmt.Fprintf(tw, "  mass per DOF\t%.4f kg\n", perDOF)
	}

	if sum != nil {
		fmt.Fprintln(tw, "structural response:")
		fmt.Fprintf(tw, "  nodes\t%d\n", sum.Nodes)
		fmt.Fprintf(tw, "  total force\t%.2e N\n", sum.TotalForceN)
		fmt.Fprintf(tw, "  max displacement\t%.4f mm\n", sum.MaxDispMM)
		fmt.Fprintf(tw, "  rms displacement\t%.4f mm\n", sum.RMSDispMM)
		fmt.Fprintf(tw, "  mean |u| per node\t%.4f mm\n", sum.MeanMagMM)
		if sum.HasEnergy {
			fmt.Fprintf(tw, "  strain energy\t%.2e J\n", sum.StrainEnergy)
		}
	}
	tw.Flush()

	if sum != nil {
		if sum.ExceedsLimit {
			fmt.Fprintf(w, "warning: max displacement %.2f mm exceeds %.0f mm limit\n",
				sum.MaxDispMM, response.DisplacementLimitMM)
		} else {
			fmt.Fprintf(w, "ok: displacements within %.0f mm limit\n", response.DisplacementLimitMM)
		}
	}
}
