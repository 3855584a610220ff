package kb

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/gogogo1024/campus-desk/internal/common"
	"github.com/gogogo1024/campus-desk/internal/observability"
)

const (
	// DefaultMinScore is the keyword score an FAQ needs before the chatbot answers with it.
	DefaultMinScore = 2.5
	// DefaultMinSimilarity is the cosine similarity the vector fallback needs.
	DefaultMinSimilarity = 0.55
)

// Base is what the HTTP layer and the chatbot use: a Repo for keyword search plus an optional
// VectorIndex kept in step with it.
type Base struct {
	repo          Repo
	vec           *VectorIndex
	minScore      float64
	minSimilarity float64
}

type BaseOption func(*Base)

func WithVectorIndex(vi *VectorIndex) BaseOption { return func(b *Base) { b.vec = vi } }

func WithThresholds(minScore, minSimilarity float64) BaseOption {
	return func(b *Base) {
		b.minScore = minScore
		b.minSimilarity = minSimilarity
	}
}

func NewBase(repo Repo, opts ...BaseOption) *Base {
	b := &Base{repo: repo, minScore: DefaultMinScore, minSimilarity: DefaultMinSimilarity}
	for _, o := range opts {
		o(b)
	}
	return b
}

func (b *Base) Repo() Repo { return b.repo }

func (e *Entry) normalize() {
	e.ID = strings.TrimSpace(e.ID)
	e.Question = strings.TrimSpace(e.Question)
	e.Answer = strings.TrimSpace(e.Answer)
	e.Category = strings.TrimSpace(e.Category)
	var kws []string
	for _, k := range e.Keywords {
		if k = strings.TrimSpace(k); k != "" {
			kws = append(kws, k)
		}
	}
	e.Keywords = kws
}

func (e *Entry) validate() error {
	switch {
	case e.Question == "":
		return common.Invalid("question", "is required")
	case e.Answer == "":
		return common.Invalid("answer", "is required")
	}
	return nil
}

// Put validates and stores e, assigning an id when it has none.
func (b *Base) Put(ctx context.Context, e *Entry) error {
	e.normalize()
	if err := e.validate(); err != nil {
		return err
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if err := b.repo.Update(ctx, e); err != nil {
		return unavailable("store faq", err)
	}
	b.index(ctx, e)
	return nil
}

// Replace updates an existing entry; a missing id is not found.
func (b *Base) Replace(ctx context.Context, id string, e *Entry) error {
	if _, ok := b.repo.Get(ctx, id); !ok {
		return common.NotFound("faq %s", id)
	}
	e.ID = id
	return b.Put(ctx, e)
}

func (b *Base) Get(ctx context.Context, id string) (*Entry, error) {
	e, ok := b.repo.Get(ctx, id)
	if !ok {
		return nil, common.NotFound("faq %s", id)
	}
	return e, nil
}

func (b *Base) Delete(ctx context.Context, id string) error {
	if _, ok := b.repo.Get(ctx, id); !ok {
		return common.NotFound("faq %s", id)
	}
	if err := b.repo.Delete(ctx, id); err != nil {
		return unavailable("delete faq", err)
	}
	if b.vec != nil {
		b.vec.Delete(id)
	}
	return nil
}

// Search is the plain keyword search behind GET /v1/faq/search.
func (b *Base) Search(ctx context.Context, q string, limit int) ([]*Item, int, error) {
	observability.FAQSearchRequests.Add(1)
	items, total, err := b.repo.Search(ctx, q, limit)
	if err != nil {
		return nil, 0, unavailable("search faq", err)
	}
	if total > 0 {
		observability.FAQSearchHits.Add(1)
	}
	return items, total, nil
}

// Answer returns the best FAQ for a chat message: the top keyword hit when it clears the score
// threshold, otherwise the nearest vector when it clears the similarity threshold.
func (b *Base) Answer(ctx context.Context, message string) (*Item, bool, error) {
	items, _, err := b.Search(ctx, message, 1)
	if err != nil {
		return nil, false, err
	}
	if len(items) > 0 && items[0].Score >= b.minScore {
		return items[0], true, nil
	}
	if b.vec == nil {
		return nil, false, nil
	}
	observability.AIEmbeddingCalls.Add(1)
	near, err := b.vec.Search(ctx, message, 1, b.minSimilarity)
	if err != nil {
		// best effort: a failing embedder means no FAQ answer, not a failed chat
		common.L().Warn("faq vector search failed", zap.Error(err))
		return nil, false, nil
	}
	if len(near) == 0 {
		return nil, false, nil
	}
	return near[0], true, nil
}

// Load stores entries (a seed file or the rebuild of the vector index at start).
func (b *Base) Load(ctx context.Context, entries []Entry) (int, error) {
	n := 0
	for i := range entries {
		if err := b.Put(ctx, &entries[i]); err != nil {
			return n, fmt.Errorf("faq %d (%q): %w", i, entries[i].Question, err)
		}
		n++
	}
	return n, nil
}

func (b *Base) index(ctx context.Context, e *Entry) {
	if b.vec == nil {
		return
	}
	observability.AIEmbeddingCalls.Add(1)
	if err := b.vec.Upsert(ctx, e); err != nil {
		common.L().Warn("faq embedding failed", zap.String("faq", e.ID), zap.Error(err))
	}
}

type faqFile struct {
	FAQs []Entry `yaml:"faqs"`
}

// LoadFile reads a YAML document of the form {faqs: [{id, question, answer, keywords, category}]}.
// A missing file yields no entries.
func LoadFile(path string) ([]Entry, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read faq file: %w", err)
	}
	var f faqFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse faq file %s: %w", path, err)
	}
	for i := range f.FAQs {
		if strings.TrimSpace(f.FAQs[i].ID) == "" {
			// stable ids so reloading the seed file upserts instead of duplicating
			f.FAQs[i].ID = uuid.NewSHA1(uuid.NameSpaceURL, []byte("faq:"+strings.TrimSpace(f.FAQs[i].Question))).String()
		}
	}
	return f.FAQs, nil
}

func unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	var ve *common.ValidationError
	if errors.As(err, &ve) || errors.Is(err, common.ErrNotFound) || errors.Is(err, common.ErrKBUnavailable) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, common.ErrKBUnavailable, err)
}
