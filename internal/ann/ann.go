// Package ann defines the pluggable vector-index capability and
// dispatches by name to one of three concrete backends through a
// compile-time exhaustive switch over named variants.
package ann

import (
	"fmt"

	"github.com/Eierkopp/viddup/internal/ann/forest"
	"github.com/Eierkopp/viddup/internal/ann/hnsw"
	"github.com/Eierkopp/viddup/internal/ann/kdtree"
	"github.com/Eierkopp/viddup/internal/vidtypes"
)

// Index is the capability surface every backend implements. Distance is
// always Euclidean (L2); backends that only expose k-NN approximate
// radius search by querying a fixed k and filtering by distance.
type Index interface {
	Build(items [][]float32) error
	Len() int
	Query(n int, radius float32) ([]int, error)
	Row(n int) []float32
}

// Backend names accepted by Open, matching the --knnlib flag values.
const (
	Forest = "forest"
	KDTree = "kdtree"
	HNSW   = "hnsw"
)

// Open returns a fresh, empty Index for the named backend.
func Open(name string) (Index, error) {
	switch name {
	case Forest:
		return forest.New(), nil
	case KDTree:
		return kdtree.New(), nil
	case HNSW:
		return hnsw.New(), nil
	default:
		return nil, fmt.Errorf("%w: knnlib %q", vidtypes.ErrUnknownBackend, name)
	}
}
