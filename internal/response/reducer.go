// Package response regroups flat force and displacement vectors into
// per-node components (6 DOF per node: 3 translations, 3 rotations) and
// reduces them to physical summaries.
package response

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
)

// DOFPerNode is the assumed DOF partition: every 6 consecutive indices form
// one node's X/Y/Z translations followed by its three rotations. The
// partition is never stored; it is reconstructed from flat indices.
const DOFPerNode = 6

// DisplacementLimitMM is the fixed diagnostic threshold for the maximum
// displacement, in millimeters. It is a policy constant, not derived from
// any property of the model.
const DisplacementLimitMM = 10.0

// ErrEmpty indicates vectors too short to hold a single node.
var ErrEmpty = errors.New("response: vectors shorter than one node")

// Summary is the reduced structural response.
type Summary struct {
	Nodes int

	// Translational components per node, stride-6 slices of the flat
	// vectors at offsets 0, 1, 2.
	DispX, DispY, DispZ    []float64
	ForceX, ForceY, ForceZ []float64

	// Magnitude is the per-node Euclidean norm of the translational
	// displacement triple.
	Magnitude []float64

	// StrainEnergy is 0.5 u^T K u, valid only when HasEnergy is set.
	StrainEnergy float64
	HasEnergy    bool

	TotalForceN  float64 // sum of |F_i| over the flat vector, N
	MaxDispMM    float64 // max |u_i| over the flat vector, mm
	RMSDispMM    float64
	MeanMagMM    float64
	MaxMagMM     float64
	ExceedsLimit bool
}

// Reduce regroups a force/displacement pair. A stiffness matrix may be nil;
// when present and conformant with the displacement vector it contributes
// the strain energy.
func Reduce(force, displacement []float64, stiffness *mat.Dense) (*Summary, error) {
	nodes := len(force) / DOFPerNode
	if nodes < 1 {
		return nil, ErrEmpty
	}

	s := &Summary{Nodes: nodes}
	s.DispX = component(displacement, 0, nodes)
	s.DispY = component(displacement, 1, nodes)
	s.DispZ = component(displacement, 2, nodes)
	s.ForceX = component(force, 0, nodes)
	s.ForceY = component(force, 1, nodes)
	s.ForceZ = component(force, 2, nodes)

	s.Magnitude = make([]float64, nodes)
	var magSum float64
	for i := 0; i < nodes; i++ {
		m := math.Sqrt(s.DispX[i]*s.DispX[i] + s.DispY[i]*s.DispY[i] + s.DispZ[i]*s.DispZ[i])
		s.Magnitude[i] = m
		magSum += m
		if m*1000 > s.MaxMagMM {
			s.MaxMagMM = m * 1000
		}
	}
	s.MeanMagMM = magSum / float64(nodes) * 1000

	for _, f := range force {
		s.TotalForceN += math.Abs(f)
	}
	var sqSum float64
	for _, u := range displacement {
		if a := math.Abs(u) * 1000; a > s.MaxDispMM {
			s.MaxDispMM = a
		}
		sqSum += u * u
	}
	if len(displacement) > 0 {
		s.RMSDispMM = math.Sqrt(sqSum/float64(len(displacement))) * 1000
	}
	s.ExceedsLimit = s.MaxDispMM > DisplacementLimitMM

	if stiffness != nil {
		r, c := stiffness.Dims()
		if r == c && r == len(displacement) {
			u := mat.NewVecDense(len(displacement), displacement)
			s.StrainEnergy = 0.5 * mat.Inner(u, stiffness, u)
			s.HasEnergy = true
		}
	}
	return s, nil
}

// component extracts the stride-6 slice at the given offset. A vector too
// short for the offset yields zeros of matching length rather than an
// error.
func component(vec []float64, offset, nodes int) []float64 {
	out := make([]float64, nodes)
	if offset >= len(vec) {
		return out
	}
	for i := 0; i < nodes; i++ {
		idx := i*DOFPerNode + offset
		if idx >= len(vec) {
			break
		}
		out[i] = vec[idx]
	}
	return out
}
