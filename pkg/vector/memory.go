package vector

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
)

type memoryPoint struct {
	id      string
	seq     int
	vector  []float32
	payload Payload
}

// MemoryIndex is an exact cosine-similarity index held in process memory, for
// tests and local runs without Qdrant
type MemoryIndex struct {
	mu        sync.RWMutex
	dimension int
	points    []memoryPoint
}

// NewMemoryIndex creates an empty index. A dimension of 0 accepts any length
func NewMemoryIndex(dimension int) *MemoryIndex {
	return &MemoryIndex{dimension: dimension}
}

// EnsureCollection is a no-op; the collection always exists
func (m *MemoryIndex) EnsureCollection(context.Context) error {
	return nil
}

// Ping always succeeds
func (m *MemoryIndex) Ping(context.Context) error {
	return nil
}

// Upsert stores each vector under a new UUID
func (m *MemoryIndex) Upsert(_ context.Context, vectors [][]float32, payloads []Payload) ([]string, error) {
	if len(vectors) != len(payloads) {
		return nil, goerr.New("vectors and payloads differ in length",
			goerr.V("vectors", len(vectors)),
			goerr.V("payloads", len(payloads)),
		)
	}
	for _, v := range vectors {
		if m.dimension > 0 && len(v) != m.dimension {
			return nil, goerr.New("vector has wrong dimension", goerr.V("want", m.dimension), goerr.V("got", len(v)))
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, len(vectors))
	for i, v := range vectors {
		ids[i] = uuid.NewString()
		m.points = append(m.points, memoryPoint{
			id:      ids[i],
			seq:     len(m.points),
			vector:  slices.Clone(v),
			payload: maps.Clone(payloads[i]),
		})
	}

	return ids, nil
}

// Search scores every point and returns the topK best
func (m *MemoryIndex) Search(_ context.Context, vector []float32, topK int) ([]Result, error) {
	if topK <= 0 {
		return []Result{}, nil
	}

	m.mu.RLock()
	type scored struct {
		point memoryPoint
		score float64
	}
	all := make([]scored, 0, len(m.points))
	for _, p := range m.points {
		all = append(all, scored{point: p, score: CosineSimilarity(vector, p.vector)})
	}
	m.mu.RUnlock()

	// Ties resolve to the oldest point so results are deterministic
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].score == all[j].score {
			return all[i].point.seq < all[j].point.seq
		}
		return all[i].score > all[j].score
	})

	if len(all) > topK {
		all = all[:topK]
	}

	results := make([]Result, len(all))
	for i, s := range all {
		results[i] = Result{ID: s.point.id, Score: s.score, Payload: maps.Clone(s.point.payload)}
	}
	return results, nil
}

// Len returns the number of stored points
func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.points)
}
