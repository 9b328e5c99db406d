package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	bquery "github.com/blevesearch/bleve/v2/search/query"
)

// Corpus index field names.
const (
	fieldTitle    = "title"
	fieldContent  = "content"
	fieldModality = "modality"
	fieldMetadata = "metadata"
	fieldRaw      = "raw_doc"
)

// Boosts applied to the corpus query clauses.
const (
	titleBoost     = 2.0
	contentBoost   = 1.0
	expansionBoost = 0.3
)

// CorpusIndex is a bleve-backed full-text index over corpus documents.
type CorpusIndex struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	closed bool
}

// validateIndexIntegrity checks if a bleve index is valid before opening.
// Returns nil if valid (or absent), an error describing corruption if not.
func validateIndexIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	metaPath := filepath.Join(path, "index_meta.json")
	info, err := os.Stat(metaPath)
	if os.IsNotExist(err) {
		return fmt.Errorf("index_meta.json missing (corrupted index)")
	}
	if err != nil {
		return fmt.Errorf("cannot stat index_meta.json: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("index_meta.json is empty (corrupted)")
	}

	data, err := os.ReadFile(metaPath)
	if err != nil {
		return fmt.Errorf("cannot read index_meta.json: %w", err)
	}
	var meta map[string]any
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("index_meta.json is corrupt: %w", err)
	}
	return nil
}

// isCorruptionError checks if an error indicates bleve index corruption.
func isCorruptionError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "unexpected end of JSON") ||
		strings.Contains(errStr, "error parsing mapping JSON") ||
		strings.Contains(errStr, "failed to load segment") ||
		strings.Contains(errStr, "error opening bolt") ||
		err == bleve.ErrorIndexMetaCorrupt
}

// OpenCorpusIndex opens or creates the corpus index at path.
// An empty path creates an in-memory index. A corrupted index is cleared and
// recreated empty; the corpus must then be indexed again.
func OpenCorpusIndex(path string) (*CorpusIndex, error) {
	indexMapping := corpusMapping()

	var idx bleve.Index
	var err error
	if path == "" {
		idx, err = bleve.NewMemOnly(indexMapping)
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
		}

		if validErr := validateIndexIntegrity(path); validErr != nil {
			slog.Warn("corpus_index_corrupted",
				slog.String("path", path),
				slog.String("error", validErr.Error()))
			if removeErr := os.RemoveAll(path); removeErr != nil {
				return nil, fmt.Errorf("corpus index corrupted at %s and cannot remove: %w (original error: %v)", path, removeErr, validErr)
			}
		}

		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, indexMapping)
		} else if err != nil && isCorruptionError(err) {
			slog.Warn("corpus_index_open_failed",
				slog.String("path", path),
				slog.String("error", err.Error()))
			if removeErr := os.RemoveAll(path); removeErr != nil {
				return nil, fmt.Errorf("corpus index corrupted, cannot clear: %w (original: %v)", removeErr, err)
			}
			idx, err = bleve.New(path, indexMapping)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create/open corpus index: %w", err)
	}

	return &CorpusIndex{index: idx, path: path}, nil
}

// corpusMapping indexes title and content as analysed text, modality and
// metadata values as exact keywords, and stores the raw document for hits.
func corpusMapping() *mapping.IndexMappingImpl {
	text := bleve.NewTextFieldMapping()
	text.Analyzer = standard.Name
	text.Store = false

	kw := bleve.NewKeywordFieldMapping()
	kw.Store = false

	raw := bleve.NewTextFieldMapping()
	raw.Index = false
	raw.Store = true
	raw.IncludeInAll = false

	meta := bleve.NewDocumentMapping()
	meta.Dynamic = true
	meta.DefaultAnalyzer = keyword.Name

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt(fieldTitle, text)
	doc.AddFieldMappingsAt(fieldContent, text)
	doc.AddFieldMappingsAt(fieldModality, kw)
	doc.AddFieldMappingsAt(fieldRaw, raw)
	doc.AddSubDocumentMapping(fieldMetadata, meta)

	im := bleve.NewIndexMapping()
	im.DefaultMapping = doc
	im.DefaultAnalyzer = standard.Name
	im.StoreDynamic = false
	return im
}

// Index adds or replaces documents.
func (c *CorpusIndex) Index(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("index is closed")
	}

	batch := c.index.NewBatch()
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return err
		}
		raw, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("failed to encode document %s: %w", doc.ID, err)
		}
		meta := make(map[string]any, len(doc.Metadata))
		for k, v := range doc.Metadata {
			meta[k] = v
		}
		entry := map[string]any{
			fieldTitle:    doc.Title,
			fieldContent:  doc.Content,
			fieldModality: doc.Modality,
			fieldMetadata: meta,
			fieldRaw:      string(raw),
		}
		if err := batch.Index(doc.ID, entry); err != nil {
			return fmt.Errorf("failed to index document %s: %w", doc.ID, err)
		}
	}

	if err := c.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to execute batch: %w", err)
	}
	return nil
}

// Search runs q and returns hits in bleve score order.
func (c *CorpusIndex) Search(ctx context.Context, q CorpusQuery) ([]CorpusHit, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, fmt.Errorf("index is closed")
	}

	if strings.TrimSpace(q.Text) == "" {
		return []CorpusHit{}, nil
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}

	req := bleve.NewSearchRequest(buildCorpusQuery(q))
	req.Size = limit
	req.Fields = []string{fieldRaw}

	result, err := c.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	hits := make([]CorpusHit, 0, len(result.Hits))
	for _, hit := range result.Hits {
		raw, _ := hit.Fields[fieldRaw].(string)
		var doc Document
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			slog.Debug("corpus_hit_undecodable", slog.String("id", hit.ID), slog.String("error", err.Error()))
			continue
		}
		hits = append(hits, CorpusHit{Document: doc, Score: hit.Score})
	}
	return hits, nil
}

func buildCorpusQuery(q CorpusQuery) bquery.Query {
	should := make([]bquery.Query, 0, 2+len(q.Expansions))

	title := bleve.NewMatchQuery(q.Text)
	title.SetField(fieldTitle)
	title.SetBoost(titleBoost)
	should = append(should, title)

	content := bleve.NewMatchQuery(q.Text)
	content.SetField(fieldContent)
	content.SetBoost(contentBoost)
	should = append(should, content)

	for _, term := range q.Expansions {
		exp := bleve.NewMatchQuery(term)
		exp.SetField(fieldContent)
		exp.SetBoost(expansionBoost)
		should = append(should, exp)
	}

	bq := bleve.NewBooleanQuery()
	bq.AddShould(should...)
	bq.SetMinShould(1)

	if q.Modality != "" {
		m := bleve.NewTermQuery(q.Modality)
		m.SetField(fieldModality)
		bq.AddMust(m)
	}
	for k, v := range q.Filters {
		f := bleve.NewTermQuery(v)
		f.SetField(fieldMetadata + "." + k)
		bq.AddMust(f)
	}
	return bq
}

// Count returns the number of indexed documents.
func (c *CorpusIndex) Count() (uint64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return 0, fmt.Errorf("index is closed")
	}
	return c.index.DocCount()
}

// Delete removes documents by ID.
func (c *CorpusIndex) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("index is closed")
	}

	batch := c.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	if err := c.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to delete documents: %w", err)
	}
	return nil
}

// Close closes the index. It is safe to call more than once.
func (c *CorpusIndex) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.index.Close()
}
