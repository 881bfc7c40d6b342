package arrstore

import "errors"

// Storage errors. A caller that can continue without the dataset should
// check these and degrade instead of aborting the run.
var (
	// ErrNotFound indicates the store path does not exist.
	ErrNotFound = errors.New("arrstore: store not found")

	// ErrDatasetNotFound indicates a named dataset is absent from the store.
	ErrDatasetNotFound = errors.New("arrstore: dataset not found")

	// ErrBadManifest indicates a missing or unparseable manifest.
	ErrBadManifest = errors.New("arrstore: bad manifest")

	// ErrBadHeader indicates a dataset file with a corrupt header.
	ErrBadHeader = errors.New("arrstore: bad dataset header")

	// ErrShape indicates a region or shape outside the dataset bounds.
	ErrShape = errors.New("arrstore: shape out of bounds")

	// ErrReadOnly indicates a write to a store opened for reading.
	ErrReadOnly = errors.New("arrstore: store is read-only")

	// ErrClosed indicates an operation on a closed store.
	ErrClosed = errors.New("arrstore: store closed")
)
