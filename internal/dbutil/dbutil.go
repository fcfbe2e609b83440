// Package dbutil opens the three read-only local SQLite indexes
// (vocabulary.db, embeddings.db, iconclass.db) and provides the shared
// helpers every engine needs on top of them: optional-feature probing via
// pragma_table_info (a feature-off signal, not an error), the
// regexp_word/haversine_km custom SQL functions, the vec0 virtual table
// extension backing the semantic/Iconclass KNN indexes, and
// prepared-statement-safe ID chunking for SQLite's 999-bound-variable limit.
package dbutil

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"unicode"

	sqlitevec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	"github.com/mattn/go-sqlite3"

	"github.com/rijksmuseum/rijksdata-retrieval/internal/geo"
)

// MaxVariables is SQLite's default compiled-in limit on bound parameters
// per statement (SQLITE_MAX_VARIABLE_NUMBER in older builds).
const MaxVariables = 999

// MmapSizeBytes is the per-handle memory-map ceiling: every SQLite handle
// is opened read-only and memory-mapped at 3 GB.
const MmapSizeBytes = 3 << 30

var registerOnce sync.Once

const driverName = "sqlite3_rijksdata"

// registerDriver registers a sqlite3 driver variant with regexp_word and
// haversine_km installed on every new connection, exactly once per
// process. Mirrors the mattn/go-sqlite3 ConnectHook registration pattern.
// sqlitevec.Auto registers the sqlite-vec extension (vec0 virtual tables,
// vec_distance_cosine) as a process-wide SQLite auto-extension, so it is
// in effect on every connection this driver opens without a per-connection
// load step.
func registerDriver() {
	registerOnce.Do(func() {
		sqlitevec.Auto()
		sql.Register(driverName, &sqlite3.SQLiteDriver{
			ConnectHook: func(conn *sqlite3.SQLiteConn) error {
				if err := conn.RegisterFunc("regexp_word", regexpWord, true); err != nil {
					return fmt.Errorf("register regexp_word: %w", err)
				}
				if err := conn.RegisterFunc("haversine_km", geo.HaversineKM, true); err != nil {
					return fmt.Errorf("register haversine_km: %w", err)
				}
				return nil
			},
		})
	})
}

// regexpWord implements the regexp_word(pattern, value) SQL function: a
// Unicode, word-boundary, case-insensitive match.
func regexpWord(pattern, value string) (int, error) {
	expr := `(?i)\b` + regexp.QuoteMeta(pattern) + `\b`
	re, err := regexp.Compile(expr)
	if err != nil {
		return 0, fmt.Errorf("regexp_word: invalid pattern %q: %w", pattern, err)
	}
	if re.MatchString(value) {
		return 1, nil
	}
	return 0, nil
}

// Open opens path read-only and memory-mapped, with regexp_word and
// haversine_km installed. The caller owns the returned handle and must
// Close it.
func Open(path string) (*sql.DB, error) {
	registerDriver()

	dsn := fmt.Sprintf("file:%s?mode=ro&_mmap_size=%d", path, MmapSizeBytes)
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", path, err)
	}
	return db, nil
}

// HasColumn reports whether table carries column, probing with
// pragma_table_info. A missing column is a feature-off signal, never an
// error, so callers fall back to the next tier.
func HasColumn(ctx context.Context, db *sql.DB, table, column string) bool {
	var count int
	err := db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?"),
		table, column,
	).Scan(&count)
	if err != nil {
		return false
	}
	return count > 0
}

// HasTable reports whether table exists in the schema, probing
// sqlite_master. Used to detect optional FTS5/vector/materialised tables.
func HasTable(ctx context.Context, db *sql.DB, table string) bool {
	var count int
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type IN ('table','view') AND name = ?",
		table,
	).Scan(&count)
	if err != nil {
		return false
	}
	return count > 0
}

// ChunkIDs splits ids into groups of at most MaxVariables, for queries
// that bind one placeholder per id. Cached prepared statements
// parameterised by a variable chunk size may have two distinct shapes: a
// full chunk and a final, shorter remainder.
func ChunkIDs[T any](ids []T) [][]T {
	if len(ids) == 0 {
		return nil
	}
	chunks := make([][]T, 0, (len(ids)+MaxVariables-1)/MaxVariables)
	for len(ids) > 0 {
		n := MaxVariables
		if n > len(ids) {
			n = len(ids)
		}
		chunks = append(chunks, ids[:n])
		ids = ids[n:]
	}
	return chunks
}

// Placeholders returns a comma-joined "?" placeholder list of length n,
// for building `IN (...)` fragments.
func Placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	var b strings.Builder
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('?')
	}
	return b.String()
}

// SanitizeFTSQuery strips characters that are significant to FTS5 query
// syntax (quotes, operators) so free text can be embedded safely in a
// MATCH expression, and trims to empty when nothing usable remains: an
// FTS query that is empty after stripping returns zero results rather
// than matching everything.
func SanitizeFTSQuery(q string) string {
	var b strings.Builder
	for _, r := range q {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), unicode.IsSpace(r):
			b.WriteRune(r)
		case r == '-' || r == '_':
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}
