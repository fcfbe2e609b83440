// Package iconclass implements the Iconclass hierarchical notation browser:
// text search over an FTS5 union of texts_fts/keywords_fts, notation
// browse, and semantic search sharing the 384-dim embedding space with
// the semantic engine.
package iconclass

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/rijksmuseum/rijksdata-retrieval/internal/apperrors"
	"github.com/rijksmuseum/rijksdata-retrieval/internal/core"
	"github.com/rijksmuseum/rijksdata-retrieval/internal/dbutil"
	"github.com/rijksmuseum/rijksdata-retrieval/internal/semvec"
)

// fallbackAny marks the last step of the language fallback chain (the
// requested language, then "en", "nl"): any available language.
const fallbackAny = "any"

// Engine answers Iconclass lookup/browse/search operations against
// iconclass.db.
type Engine struct {
	db               *sql.DB
	hasTextsFTS      bool
	hasKeywordsFTS   bool
	hasEmbeddings    bool
	embeddingDims    int
}

// Open probes iconclass.db's optional features and returns a ready Engine.
// A missing db disables the component entirely; the caller should treat a
// nil *sql.DB by skipping Open and using apperrors.IndexUnavailable
// directly at the call site.
func Open(ctx context.Context, db *sql.DB, embeddingDims int) *Engine {
	return &Engine{
		db:             db,
		hasTextsFTS:    dbutil.HasTable(ctx, db, "texts_fts"),
		hasKeywordsFTS: dbutil.HasTable(ctx, db, "keywords_fts"),
		hasEmbeddings:  dbutil.HasTable(ctx, db, "iconclass_embeddings") && dbutil.HasTable(ctx, db, "vec_iconclass"),
		embeddingDims:  embeddingDims,
	}
}

// SemanticAvailable reports whether SemanticSearch can run.
func (e *Engine) SemanticAvailable() bool { return e.hasEmbeddings }

// Entry is one resolved Iconclass hierarchy entry.
type Entry struct {
	Notation   string
	Text       string
	Lang       string
	Path       []core.IconclassPathStep
	Children   []core.IconclassPathStep
	Refs       []string
	Keywords   []string
	RijksCount int
}

const maxKeywords = 20

// SearchByText tokenises query for FTS5, unions matches from texts_fts and
// keywords_fts, deduplicates, orders by rijks_count desc then notation
// asc, and resolves up to maxResults full entries.
func (e *Engine) SearchByText(ctx context.Context, query, lang string, maxResults int) ([]Entry, error) {
	if e.db == nil {
		return nil, apperrors.NewIndexUnavailable("iconclass.SearchByText", "iconclass.db", "not opened", nil)
	}
	sanitized := dbutil.SanitizeFTSQuery(query)
	if sanitized == "" {
		return nil, nil
	}
	if maxResults <= 0 || maxResults > 100 {
		maxResults = 25
	}

	notations, err := e.matchNotations(ctx, sanitized)
	if err != nil {
		return nil, err
	}
	if len(notations) == 0 {
		return nil, nil
	}
	if len(notations) > maxResults {
		notations = notations[:maxResults]
	}

	entries := make([]Entry, 0, len(notations))
	for _, n := range notations {
		entry, err := e.resolveEntry(ctx, n, lang)
		if err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (e *Engine) matchNotations(ctx context.Context, sanitized string) ([]string, error) {
	seen := make(map[string]bool)
	counts := make(map[string]int)
	var order []string

	collect := func(table, ftsTable string) error {
		if table == "texts_fts" && !e.hasTextsFTS {
			return nil
		}
		if table == "keywords_fts" && !e.hasKeywordsFTS {
			return nil
		}
		rows, err := e.db.QueryContext(ctx,
			fmt.Sprintf("SELECT notation FROM %s WHERE %s MATCH ?", table, ftsTable),
			sanitized,
		)
		if err != nil {
			return fmt.Errorf("fts query %s: %w", table, err)
		}
		defer rows.Close()
		for rows.Next() {
			var notation string
			if err := rows.Scan(&notation); err != nil {
				return err
			}
			if !seen[notation] {
				seen[notation] = true
				order = append(order, notation)
			}
		}
		return rows.Err()
	}

	if err := collect("texts_fts", "texts_fts"); err != nil {
		return nil, err
	}
	if err := collect("keywords_fts", "keywords_fts"); err != nil {
		return nil, err
	}
	if len(order) == 0 {
		return nil, nil
	}

	for _, n := range order {
		var count int
		_ = e.db.QueryRowContext(ctx, "SELECT rijks_count FROM notations WHERE notation = ?", n).Scan(&count)
		counts[n] = count
	}
	sort.SliceStable(order, func(i, j int) bool {
		if counts[order[i]] != counts[order[j]] {
			return counts[order[i]] > counts[order[j]]
		}
		return order[i] < order[j]
	})
	return order, nil
}

// Browse resolves notation and its direct children. Returns NotFound if
// the notation is unknown.
func (e *Engine) Browse(ctx context.Context, notation, lang string) (Entry, error) {
	if e.db == nil {
		return Entry{}, apperrors.NewIndexUnavailable("iconclass.Browse", "iconclass.db", "not opened", nil)
	}
	entry, err := e.resolveEntry(ctx, notation, lang)
	if err != nil {
		return Entry{}, apperrors.NewNotFound("iconclass.Browse", "notation", notation)
	}
	return entry, nil
}

func (e *Engine) resolveEntry(ctx context.Context, notation, lang string) (Entry, error) {
	var pathJSON, childrenJSON, refsJSON sql.NullString
	var rijksCount int

	err := e.db.QueryRowContext(ctx,
		"SELECT path, children, refs, rijks_count FROM notations WHERE notation = ?",
		notation,
	).Scan(&pathJSON, &childrenJSON, &refsJSON, &rijksCount)
	if err != nil {
		return Entry{}, fmt.Errorf("notation %q: %w", notation, err)
	}

	entry := Entry{Notation: notation, RijksCount: rijksCount}
	if pathJSON.Valid {
		_ = json.Unmarshal([]byte(pathJSON.String), &entry.Path)
	}
	if childrenJSON.Valid {
		_ = json.Unmarshal([]byte(childrenJSON.String), &entry.Children)
	}
	if refsJSON.Valid {
		_ = json.Unmarshal([]byte(refsJSON.String), &entry.Refs)
	}

	text, resolvedLang := e.resolveText(ctx, notation, lang, "texts")
	entry.Text = text
	entry.Lang = resolvedLang
	entry.Keywords = e.resolveKeywords(ctx, notation, lang)

	return entry, nil
}

// resolveText follows the [requested, en, nl, any] fallback chain.
func (e *Engine) resolveText(ctx context.Context, notation, lang, table string) (string, string) {
	for _, l := range languageChain(lang) {
		var text string
		var query string
		var args []any
		if l == fallbackAny {
			query = fmt.Sprintf("SELECT text, lang FROM %s WHERE notation = ? LIMIT 1", table)
			args = []any{notation}
			var resolvedLang string
			if err := e.db.QueryRowContext(ctx, query, args...).Scan(&text, &resolvedLang); err == nil {
				return text, resolvedLang
			}
			continue
		}
		query = fmt.Sprintf("SELECT text FROM %s WHERE notation = ? AND lang = ?", table)
		if err := e.db.QueryRowContext(ctx, query, notation, l).Scan(&text); err == nil {
			return text, l
		}
	}
	return "", ""
}

func (e *Engine) resolveKeywords(ctx context.Context, notation, lang string) []string {
	for _, l := range languageChain(lang) {
		var rows *sql.Rows
		var err error
		if l == fallbackAny {
			rows, err = e.db.QueryContext(ctx, "SELECT keyword FROM keywords WHERE notation = ? LIMIT ?", notation, maxKeywords)
		} else {
			rows, err = e.db.QueryContext(ctx, "SELECT keyword FROM keywords WHERE notation = ? AND lang = ? LIMIT ?", notation, l, maxKeywords)
		}
		if err != nil {
			continue
		}
		var keywords []string
		for rows.Next() {
			var kw string
			if rows.Scan(&kw) == nil {
				keywords = append(keywords, kw)
			}
		}
		rows.Close()
		if len(keywords) > 0 {
			return keywords
		}
	}
	return nil
}

func languageChain(requested string) []string {
	chain := make([]string, 0, 4)
	if requested != "" {
		chain = append(chain, requested)
	}
	if requested != "en" {
		chain = append(chain, "en")
	}
	if requested != "nl" {
		chain = append(chain, "nl")
	}
	chain = append(chain, fallbackAny)
	return dedupe(chain)
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// SemanticHit is one ranked notation from a semantic search.
type SemanticHit struct {
	Notation string
	Distance float64
}

// SemanticSearch embeds query with embedder and runs pure KNN over the
// notation embeddings table. When onlyWithArtworks is true, a regular
// table-scan join restricts to notations with rijks_count > 0 instead of
// pre-filtering the vector virtual table, which scales poorly for this
// index.
func (e *Engine) SemanticSearch(ctx context.Context, embedder core.QueryEmbedder, query string, maxResults int, onlyWithArtworks bool) ([]SemanticHit, error) {
	if !e.hasEmbeddings {
		return nil, apperrors.NewIndexUnavailable("iconclass.SemanticSearch", "iconclass.db", "no embeddings sub-table", nil)
	}
	vector, err := embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, apperrors.NewEmbeddingFailure("iconclass.SemanticSearch", err)
	}
	if len(vector) != e.embeddingDims {
		return nil, apperrors.NewEmbeddingFailure("iconclass.SemanticSearch",
			fmt.Errorf("embedding dimension mismatch: got %d, want %d", len(vector), e.embeddingDims))
	}
	if maxResults <= 0 || maxResults > 100 {
		maxResults = 25
	}

	blob := semvec.EncodeInt8(vector)

	var rows *sql.Rows
	if onlyWithArtworks {
		rows, err = e.db.QueryContext(ctx, `
			SELECT i.notation, vec_distance_cosine(i.embedding, ?) AS distance
			FROM iconclass_embeddings i
			JOIN notations n ON n.notation = i.notation
			WHERE n.rijks_count > 0
			ORDER BY distance ASC
			LIMIT ?`, blob, maxResults)
	} else {
		rows, err = e.db.QueryContext(ctx, `
			SELECT notation, distance
			FROM vec_iconclass
			WHERE embedding MATCH ? AND k = ?
			ORDER BY distance ASC`, blob, maxResults)
	}
	if err != nil {
		return nil, fmt.Errorf("semantic search query: %w", err)
	}
	defer rows.Close()

	var hits []SemanticHit
	for rows.Next() {
		var h SemanticHit
		if err := rows.Scan(&h.Notation, &h.Distance); err != nil {
			return nil, err
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}
