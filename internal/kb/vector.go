package kb

import (
	"context"
	"math"
	"sort"
	"sync"
)

// Embedder is satisfied by chain.EmbeddingChain.
type Embedder interface {
	Embed(ctx context.Context, texts []string, dim int) ([][]float64, error)
}

// VectorIndex keeps normalized embeddings of each entry's question and keywords and answers
// nearest-neighbour queries by cosine similarity. It is a best-effort cache rebuilt from the
// repo at start.
type VectorIndex struct {
	emb Embedder
	dim int

	mu      sync.RWMutex
	entries map[string]*vectorEntry
}

type vectorEntry struct {
	entry Entry
	vec   []float64
}

func NewVectorIndex(emb Embedder, dim int) *VectorIndex {
	if dim <= 0 {
		dim = 64
	}
	return &VectorIndex{emb: emb, dim: dim, entries: map[string]*vectorEntry{}}
}

func (vi *VectorIndex) Len() int {
	vi.mu.RLock()
	defer vi.mu.RUnlock()
	return len(vi.entries)
}

// Upsert embeds e and replaces any previous vector for its ID.
func (vi *VectorIndex) Upsert(ctx context.Context, e *Entry) error {
	vecs, err := vi.emb.Embed(ctx, []string{embedText(e)}, vi.dim)
	if err != nil {
		return err
	}
	if len(vecs) != 1 || len(vecs[0]) == 0 {
		return nil
	}
	v := normalize(vecs[0])
	vi.mu.Lock()
	vi.entries[e.ID] = &vectorEntry{entry: *e, vec: v}
	vi.mu.Unlock()
	return nil
}

func (vi *VectorIndex) Delete(id string) {
	vi.mu.Lock()
	delete(vi.entries, id)
	vi.mu.Unlock()
}

// Search returns up to limit items whose cosine similarity to q is at least minScore.
func (vi *VectorIndex) Search(ctx context.Context, q string, limit int, minScore float64) ([]*Item, error) {
	if limit <= 0 || vi.Len() == 0 {
		return nil, nil
	}
	vecs, err := vi.emb.Embed(ctx, []string{q}, vi.dim)
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, nil
	}
	qv := normalize(vecs[0])
	vi.mu.RLock()
	out := make([]*Item, 0, len(vi.entries))
	for _, ve := range vi.entries {
		if len(ve.vec) != len(qv) {
			continue
		}
		if s := dot(qv, ve.vec); s >= minScore {
			out = append(out, ve.entry.item(s))
		}
	}
	vi.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func embedText(e *Entry) string {
	text := e.Question
	for _, k := range e.Keywords {
		text += " " + k
	}
	return text
}

func dot(a, b []float64) float64 {
	var s float64
	for i := 0; i < len(a) && i < len(b); i++ {
		s += a[i] * b[i]
	}
	return s
}

func normalize(v []float64) []float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	if sum == 0 {
		return v
	}
	inv := 1.0 / math.Sqrt(sum)
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = x * inv
	}
	return out
}
