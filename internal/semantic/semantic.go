// Package semantic implements the vector-KNN search engine over
// embeddings.db: pure KNN when no filters are active, filtered KNN
// delegating candidate resolution to the vocabulary engine when they
// are, with an approximate-ranking fallback above a tunable
// candidate-count threshold.
package semantic

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/rijksmuseum/rijksdata-retrieval/internal/apperrors"
	"github.com/rijksmuseum/rijksdata-retrieval/internal/core"
	"github.com/rijksmuseum/rijksdata-retrieval/internal/dbutil"
	"github.com/rijksmuseum/rijksdata-retrieval/internal/semvec"
	"github.com/rijksmuseum/rijksdata-retrieval/internal/vocabulary"
)

// Config carries the tunables from internal/config.Semantic.
type Config struct {
	Dims                 int
	FilteredKNNThreshold int
	PureKNNMaxK          int
}

// Engine answers semantic search queries against embeddings.db.
type Engine struct {
	db       *sql.DB
	embedder core.QueryEmbedder
	vocab    *vocabulary.Engine
	cfg      Config
	hasVec   bool
}

// Open probes embeddings.db for its vec0 virtual table. embedder may be
// nil when the embedding model failed to load at startup; Available
// reports false in that case and every Search call
// returns a diagnostic instead of panicking.
func Open(ctx context.Context, db *sql.DB, embedder core.QueryEmbedder, vocab *vocabulary.Engine, cfg Config) *Engine {
	return &Engine{
		db:       db,
		embedder: embedder,
		vocab:    vocab,
		cfg:      cfg,
		hasVec:   dbutil.HasTable(ctx, db, "vec_artworks") && dbutil.HasTable(ctx, db, "artwork_embeddings"),
	}
}

// Available reports whether semantic search can run at all.
func (e *Engine) Available() bool {
	return e.embedder != nil && e.hasVec
}

// Result is the outcome of a semantic search.
type Result struct {
	Hits     []core.SemanticHit
	Mode     core.SemanticMode
	Warnings []string
}

// Search embeds query and ranks artworks by cosine distance, delegating
// candidate resolution to filters when any are active.
func (e *Engine) Search(ctx context.Context, query string, filters vocabulary.Filters, k int) (*Result, error) {
	if e.embedder == nil {
		return nil, apperrors.NewIndexUnavailable("semantic.Search", "embeddings.db", "embedding model failed to load", nil)
	}
	if !e.hasVec {
		return nil, apperrors.NewIndexUnavailable("semantic.Search", "embeddings.db", "no vector index sub-tables", nil)
	}
	maxK := e.cfg.PureKNNMaxK
	if maxK <= 0 {
		maxK = 4096
	}
	if k <= 0 {
		k = 25
	}
	if k > maxK {
		k = maxK
	}

	vector, err := e.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, apperrors.NewEmbeddingFailure("semantic.Search", err)
	}
	if len(vector) != e.cfg.Dims {
		return nil, apperrors.NewEmbeddingFailure("semantic.Search",
			fmt.Errorf("embedding dimension mismatch: got %d, want %d", len(vector), e.cfg.Dims))
	}
	blob := semvec.EncodeInt8(vector)

	if !vocabulary.HasAnyFilter(filters) {
		hits, err := e.pureKNN(ctx, blob, k)
		if err != nil {
			return nil, err
		}
		return e.shapeHits(ctx, hits, core.SemanticModePure, nil)
	}

	candidates, warnings, err := e.vocab.ResolveCandidateObjectNumbers(ctx, filters)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 && candidates != nil {
		return &Result{Mode: core.SemanticModeFiltered, Warnings: warnings}, nil
	}

	threshold := e.cfg.FilteredKNNThreshold
	if threshold <= 0 {
		threshold = 50000
	}
	if len(candidates) > threshold {
		kPrime := k * 10
		if kPrime > maxK {
			kPrime = maxK
		}
		hits, err := e.pureKNN(ctx, blob, kPrime)
		if err != nil {
			return nil, err
		}
		member := make(map[string]bool, len(candidates))
		for _, id := range candidates {
			member[id] = true
		}
		var filtered []core.SemanticHit
		for _, h := range hits {
			if member[h.ObjectNumber] {
				filtered = append(filtered, h)
			}
			if len(filtered) == k {
				break
			}
		}
		warnings = append(warnings, "candidate set exceeded the filtered-KNN threshold; ranking is approximate (pure KNN post-filtered by candidate membership)")
		return e.shapeHits(ctx, filtered, core.SemanticModeFiltered, warnings)
	}

	hits, err := e.filteredKNN(ctx, blob, candidates, k)
	if err != nil {
		return nil, err
	}
	return e.shapeHits(ctx, hits, core.SemanticModeFiltered, warnings)
}

func (e *Engine) pureKNN(ctx context.Context, blob []byte, k int) ([]core.SemanticHit, error) {
	rows, err := e.db.QueryContext(ctx, `
		SELECT art_id, distance
		FROM vec_artworks
		WHERE embedding MATCH ? AND k = ?
		ORDER BY distance ASC`, blob, k)
	if err != nil {
		return nil, fmt.Errorf("pure knn query: %w", err)
	}
	defer rows.Close()

	var hits []core.SemanticHit
	for rows.Next() {
		var artID int64
		var dist float64
		if err := rows.Scan(&artID, &dist); err != nil {
			return nil, err
		}
		hits = append(hits, core.SemanticHit{ObjectNumber: fmt.Sprintf("%d", artID), Distance: dist})
	}
	return hits, rows.Err()
}

// filteredKNN computes exact cosine distances against every candidate,
// batching by SQLite's bound-variable limit.
func (e *Engine) filteredKNN(ctx context.Context, blob []byte, candidates []string, k int) ([]core.SemanticHit, error) {
	var hits []core.SemanticHit
	for _, chunk := range dbutil.ChunkIDs(candidates) {
		args := make([]any, 0, len(chunk)+1)
		args = append(args, blob)
		for _, id := range chunk {
			args = append(args, id)
		}
		query := fmt.Sprintf(`
			SELECT e.art_id, vec_distance_cosine(e.embedding, ?) AS distance
			FROM artwork_embeddings e
			JOIN artworks a ON a.rowid = e.art_id
			WHERE a.object_number IN (%s)`, dbutil.Placeholders(len(chunk)))
		rows, err := e.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("filtered knn query: %w", err)
		}
		for rows.Next() {
			var artID int64
			var dist float64
			if err := rows.Scan(&artID, &dist); err != nil {
				rows.Close()
				return nil, err
			}
			hits = append(hits, core.SemanticHit{ObjectNumber: fmt.Sprintf("%d", artID), Distance: dist})
		}
		rows.Close()
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// shapeHits resolves art_id -> object_number/title/creator/date/type/url
// and reconstructs the source text used when the index was built, from
// title/creator/subjects/narrative/inscriptions/description.
func (e *Engine) shapeHits(ctx context.Context, hits []core.SemanticHit, mode core.SemanticMode, warnings []string) (*Result, error) {
	if len(hits) == 0 {
		return &Result{Mode: mode, Warnings: warnings}, nil
	}
	artIDs := make([]string, len(hits))
	byArtID := make(map[string]int, len(hits))
	for i, h := range hits {
		artIDs[i] = h.ObjectNumber
		byArtID[h.ObjectNumber] = i
	}

	for _, chunk := range dbutil.ChunkIDs(artIDs) {
		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}
		query := fmt.Sprintf(`SELECT a.rowid, a.object_number, a.title, a.creator_label, a.url,
				a.date_earliest, a.date_latest,
				COALESCE(a.narrative_text, ''), COALESCE(a.inscription_text, ''), COALESCE(a.description_text, ''),
				COALESCE((SELECT GROUP_CONCAT(v.label_en, ', ') FROM mappings m
					JOIN vocabulary v ON v.vocab_id = m.vocab_id
					WHERE m.object_number = a.object_number AND m.field = 'subject'), '')
			FROM artworks a WHERE a.rowid IN (%s)`, dbutil.Placeholders(len(chunk)))
		rows, err := e.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("hit row lookup: %w", err)
		}
		for rows.Next() {
			var rowid int64
			var objNum, title, creator, url, narrative, inscription, description, subjects string
			var de, dl sql.NullInt64
			if err := rows.Scan(&rowid, &objNum, &title, &creator, &url, &de, &dl, &narrative, &inscription, &description, &subjects); err != nil {
				rows.Close()
				return nil, err
			}
			idx, ok := byArtID[fmt.Sprintf("%d", rowid)]
			if !ok {
				continue
			}
			h := &hits[idx]
			h.ObjectNumber = objNum
			h.Title = title
			h.CreatorLabel = creator
			h.URL = url
			h.Similarity = 1 - h.Distance
			if de.Valid && dl.Valid {
				a := core.Artwork{}
				e1 := int(de.Int64)
				l1 := int(dl.Int64)
				a.DateEarliest = &e1
				a.DateLatest = &l1
				h.DateLabel = a.DateLabel()
			}
			h.SourceText = buildSourceText(title, creator, subjects, narrative, inscription, description)
		}
		rows.Close()
	}

	out := make([]core.SemanticHit, len(hits))
	copy(out, hits)
	return &Result{Hits: out, Mode: mode, Warnings: warnings}, nil
}

func buildSourceText(title, creator, subjects, narrative, inscription, description string) string {
	var parts []string
	for _, p := range []string{title, creator, subjects, narrative, inscription, description} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += "\n"
		}
		out += p
	}
	return out
}
