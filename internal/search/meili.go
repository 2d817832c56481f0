package search

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
)

const idxEntries = "organaizer_entries"

// Meili implements Searcher via Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures the entry index.
// The client starts unhealthy if the initial connection fails; the
// health loop flips it back when Meilisearch comes up.
func NewMeili(url, apiKey string) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		done:   make(chan struct{}),
	}

	if _, err := client.Health(); err != nil {
		log.Printf("search: meilisearch unavailable at %s: %v", url, err)
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{
		Uid:        idxEntries,
		PrimaryKey: "key",
	}); err != nil {
		log.Printf("search: create index %s (may already exist): %v", idxEntries, err)
	}

	index := m.client.Index(idxEntries)
	filterable := []interface{}{"type", "status", "labels"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		log.Printf("search: update filterable attrs for %s: %v", idxEntries, err)
	}
	searchable := []string{"title", "content"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		log.Printf("search: update searchable attrs for %s: %v", idxEntries, err)
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				log.Println("search: meilisearch recovered, reconfiguring index")
				m.configureIndex()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

// Healthy reports whether Meilisearch is reachable.
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// Search queries the entry index.
func (m *Meili) Search(q Query) ([]Result, int, error) {
	if !m.healthy.Load() {
		return nil, 0, fmt.Errorf("meilisearch unhealthy")
	}

	limit := int64(q.Limit)
	if limit == 0 {
		limit = 20
	}

	sr := &meili.SearchRequest{
		Limit:                 limit,
		Offset:                int64(q.Offset),
		AttributesToHighlight: []string{"*"},
		HighlightPreTag:       "<mark>",
		HighlightPostTag:      "</mark>",
	}

	var filters []string
	if q.FilterType != "" {
		filters = append(filters, fmt.Sprintf("type = %q", q.FilterType))
	}
	if q.FilterStatus != "" {
		filters = append(filters, fmt.Sprintf("status = %q", q.FilterStatus))
	}
	if len(filters) > 0 {
		sr.Filter = filters
	}

	resp, err := m.client.Index(idxEntries).Search(q.Text, sr)
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch search: %w", err)
	}

	results := make([]Result, 0, len(resp.Hits))
	for _, hit := range resp.Hits {
		results = append(results, hitToResult(hit))
	}
	return results, int(resp.EstimatedTotalHits), nil
}

func hitToResult(hit meili.Hit) Result {
	r := Result{
		Key:    decodeString(hit, "key"),
		Type:   decodeString(hit, "type"),
		Status: decodeString(hit, "status"),
	}
	r.Title = firstNonBlank(decodeFormattedString(hit, "title"), decodeString(hit, "title"))
	r.Snippet = firstNonBlank(decodeFormattedString(hit, "content"), decodeString(hit, "content"))
	if raw, ok := hit["rank"]; ok {
		_ = json.Unmarshal(raw, &r.Rank)
	}
	return r
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func decodeFormattedString(hit meili.Hit, key string) string {
	raw, ok := hit["_formatted"]
	if !ok {
		return ""
	}
	var formatted map[string]string
	if err := json.Unmarshal(raw, &formatted); err != nil {
		return ""
	}
	return strings.TrimSpace(formatted[key])
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

// IndexEntry adds or updates an entry in the search index.
func (m *Meili) IndexEntry(rec EntryRecord) error {
	_, err := m.client.Index(idxEntries).AddDocuments([]EntryRecord{rec}, nil)
	return err
}

// IndexEntries bulk-indexes entries.
func (m *Meili) IndexEntries(records []EntryRecord) error {
	if len(records) == 0 {
		return nil
	}
	_, err := m.client.Index(idxEntries).AddDocuments(records, nil)
	return err
}

// DeleteEntry removes an entry from the search index.
func (m *Meili) DeleteEntry(key string) error {
	_, err := m.client.Index(idxEntries).DeleteDocument(key, nil)
	return err
}
