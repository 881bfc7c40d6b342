// Package pipeline wires a stored matrix set into loaded, memory-bounded
// arrays for one analysis run. Each run opens the store fresh, loads what is
// present, and closes it; nothing is shared between runs.
package pipeline

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/jvillar/structlab/internal/arrstore"
	"github.com/jvillar/structlab/internal/subsample"
	"github.com/jvillar/structlab/internal/synth"
)

// Data holds whatever datasets the store contained, loaded under the
// subsample budget. A nil matrix or vector means the dataset was absent;
// downstream stages skip what they cannot feed.
type Data struct {
	Stiffness    *mat.Dense
	Mass         *mat.Dense
	Force        []float64
	Displacement []float64

	NDOF    int // n_dof root attribute, 0 when absent
	Attrs   map[string]any
	Notices []string // subsampling applied, datasets skipped
}

// Load opens the store at path and loads the four reference datasets within
// maxSize. Missing datasets are recorded as notices, not errors; only a
// missing or unreadable store fails the load.
func Load(path string, maxSize int) (*Data, error) {
	store, err := arrstore.Open(path)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	defer store.Close()

	d := &Data{Attrs: store.Attrs()}
	if n, ok := arrstore.AttrInt(store, "n_dof"); ok {
		d.NDOF = n
	}

	loader := subsample.New(maxSize)
	if d.NDOF > 0 {
		// Correlated datasets share one reference length so equal-sized
		// arrays get identical strides.
		loader.RefLength = d.NDOF
	}

	matrices := store.Group(synth.GroupMatrices)
	d.Stiffness = d.loadMatrix(matrices, synth.DatasetStiffness, loader)
	d.Mass = d.loadMatrix(matrices, synth.DatasetMass, loader)

	if v := d.loadVector(store.Group(synth.GroupVectors), synth.DatasetForce, loader); v != nil {
		d.Force = v
	}
	if v := d.loadVector(store.Group(synth.GroupResults), synth.DatasetDisplacement, loader); v != nil {
		d.Displacement = v
	}
	return d, nil
}

func (d *Data) loadMatrix(g arrstore.Group, name string, loader *subsample.Loader) *mat.Dense {
	ds, err := g.Open(name)
	if err != nil {
		d.skip(name, err)
		return nil
	}
	m, err := loader.LoadMatrix(ds)
	if err != nil {
		d.skip(name, err)
		return nil
	}
	if m.Subsampled {
		r, c := m.Data.Dims()
		n := ds.Shape()[0]
		d.Notices = append(d.Notices,
			fmt.Sprintf("subsampled %s: %dx%d -> %dx%d (stride %d)", name, n, n, r, c, m.Stride))
	}
	return m.Data
}

func (d *Data) loadVector(g arrstore.Group, name string, loader *subsample.Loader) []float64 {
	ds, err := g.Open(name)
	if err != nil {
		d.skip(name, err)
		return nil
	}
	v, err := loader.LoadVector(ds)
	if err != nil {
		d.skip(name, err)
		return nil
	}
	if v.Subsampled {
		d.Notices = append(d.Notices,
			fmt.Sprintf("subsampled %s: %d -> %d (stride %d)", name, ds.Shape()[0], len(v.Data), v.Stride))
	}
	return v.Data
}

func (d *Data) skip(name string, err error) {
	if errors.Is(err, arrstore.ErrDatasetNotFound) {
		d.Notices = append(d.Notices, fmt.Sprintf("dataset %s absent, skipped", name))
		return
	}
	d.Notices = append(d.Notices, fmt.Sprintf("dataset %s unreadable, skipped: %v", name, err))
}
