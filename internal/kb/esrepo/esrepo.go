// Package esrepo stores FAQ entries in Elasticsearch.
package esrepo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	elasticsearch "github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/gogogo1024/campus-desk/internal/kb"
)

// Config for the Elasticsearch repo. Addresses defaults to a local node, Index to campus_faq.
type Config struct {
	Addresses []string
	Index     string
	Username  string
	Password  string
}

type Repo struct {
	cli   *elasticsearch.Client
	index string

	mu      sync.Mutex
	ensured bool
}

var _ kb.Repo = (*Repo)(nil)

func New(cfg Config) (*Repo, error) {
	if len(cfg.Addresses) == 0 {
		cfg.Addresses = []string{"http://localhost:9200"}
	}
	if cfg.Index == "" {
		cfg.Index = "campus_faq"
	}
	esCfg := elasticsearch.Config{Addresses: cfg.Addresses}
	if cfg.Username != "" || cfg.Password != "" {
		esCfg.Username = cfg.Username
		esCfg.Password = cfg.Password
	}
	cli, err := elasticsearch.NewClient(esCfg)
	if err != nil {
		return nil, err
	}
	return &Repo{cli: cli, index: cfg.Index}, nil
}

// indexBody uses the built-in english analyzer (stemming, stop words) so no plugin is needed.
const indexBody = `{
	"settings": {"refresh_interval": "1s"},
	"mappings": {"properties": {
		"id":       {"type": "keyword"},
		"question": {"type": "text", "analyzer": "english"},
		"keywords": {"type": "text", "analyzer": "english"},
		"answer":   {"type": "text", "analyzer": "english"},
		"category": {"type": "keyword"}
	}}
}`

// ensureIndex creates the index on first use. A concurrent create by another replica is fine.
func (r *Repo) ensureIndex(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ensured {
		return nil
	}
	res, err := r.cli.Indices.Exists([]string{r.index}, r.cli.Indices.Exists.WithContext(ctx))
	if err != nil {
		return err
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		r.ensured = true
		return nil
	}
	cr := esapi.IndicesCreateRequest{Index: r.index, Body: strings.NewReader(indexBody)}
	cres, err := cr.Do(ctx, r.cli)
	if err != nil {
		return err
	}
	defer cres.Body.Close()
	if cres.IsError() && !strings.Contains(cres.String(), "resource_already_exists_exception") {
		return fmt.Errorf("create index %s: %s", r.index, cres.String())
	}
	r.ensured = true
	return nil
}

func (r *Repo) Add(ctx context.Context, e *kb.Entry) error {
	return r.Update(ctx, e)
}

func (r *Repo) Update(ctx context.Context, e *kb.Entry) error {
	if e == nil || e.ID == "" {
		return errors.New("invalid faq entry")
	}
	if err := r.ensureIndex(ctx); err != nil {
		return err
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	ir := esapi.IndexRequest{Index: r.index, DocumentID: e.ID, Body: bytes.NewReader(payload), Refresh: "true"}
	res, err := ir.Do(ctx, r.cli)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("index faq %s: %s", e.ID, res.String())
	}
	return nil
}

func (r *Repo) Get(ctx context.Context, id string) (*kb.Entry, bool) {
	gr := esapi.GetRequest{Index: r.index, DocumentID: id}
	res, err := gr.Do(ctx, r.cli)
	if err != nil {
		return nil, false
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, false
	}
	var hit struct {
		Found  bool     `json:"found"`
		Source kb.Entry `json:"_source"`
	}
	if err := json.NewDecoder(res.Body).Decode(&hit); err != nil || !hit.Found {
		return nil, false
	}
	if hit.Source.ID == "" {
		hit.Source.ID = id
	}
	return &hit.Source, true
}

func (r *Repo) Delete(ctx context.Context, id string) error {
	dr := esapi.DeleteRequest{Index: r.index, DocumentID: id, Refresh: "true"}
	res, err := dr.Do(ctx, r.cli)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("delete faq %s: %s", id, res.String())
	}
	return nil
}

func (r *Repo) Search(ctx context.Context, q string, limit int) ([]*kb.Item, int, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return []*kb.Item{}, 0, nil
	}
	if limit <= 0 {
		limit = 10
	}
	if err := r.ensureIndex(ctx); err != nil {
		return nil, 0, err
	}
	body, err := buildSearchQuery(q, limit)
	if err != nil {
		return nil, 0, err
	}
	sr := esapi.SearchRequest{Index: []string{r.index}, Body: bytes.NewReader(body)}
	res, err := sr.Do(ctx, r.cli)
	if err != nil {
		return nil, 0, err
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, 0, fmt.Errorf("search faq: %s", res.String())
	}
	return parseSearchResponse(res.Body)
}

// buildSearchQuery matches the memory repo's field weighting. Short queries also try a phrase
// prefix on the question so "otr" or "add subj" still find something.
func buildSearchQuery(q string, limit int) ([]byte, error) {
	should := []any{
		map[string]any{"multi_match": map[string]any{
			"query":  q,
			"fields": []string{"question^3", "keywords^2", "answer"},
			"type":   "best_fields",
		}},
	}
	if len(strings.Fields(q)) <= 2 {
		should = append(should, map[string]any{"match_phrase_prefix": map[string]any{
			"question": map[string]any{"query": q, "boost": 1.2},
		}})
	}
	return json.Marshal(map[string]any{
		"size": limit,
		"query": map[string]any{"bool": map[string]any{
			"should":               should,
			"minimum_should_match": 1,
		}},
	})
}

func parseSearchResponse(body io.Reader) ([]*kb.Item, int, error) {
	var resp struct {
		Hits struct {
			Total struct {
				Value int `json:"value"`
			} `json:"total"`
			Hits []struct {
				ID     string   `json:"_id"`
				Score  float64  `json:"_score"`
				Source kb.Entry `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return nil, 0, err
	}
	items := make([]*kb.Item, 0, len(resp.Hits.Hits))
	for _, h := range resp.Hits.Hits {
		items = append(items, &kb.Item{
			ID:       h.ID,
			Question: h.Source.Question,
			Answer:   h.Source.Answer,
			Category: h.Source.Category,
			Score:    h.Score,
		})
	}
	return items, resp.Hits.Total.Value, nil
}

// Ping checks the cluster with the Info API, bounded to 500ms when ctx has no deadline.
func (r *Repo) Ping(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 500*time.Millisecond)
		defer cancel()
	}
	res, err := r.cli.Info(r.cli.Info.WithContext(ctx))
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("es info status %d", res.StatusCode)
	}
	return nil
}

// Info reports the index name and its document count for diagnostics.
func (r *Repo) Info(ctx context.Context) (map[string]any, error) {
	cr := esapi.CountRequest{Index: []string{r.index}}
	res, err := cr.Do(ctx, r.cli)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.IsError() {
		return map[string]any{"index": r.index, "docs": 0, "exists": false}, nil
	}
	var c struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&c); err != nil {
		return nil, err
	}
	return map[string]any{"index": r.index, "docs": c.Count, "exists": true}, nil
}
