package vocabulary

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

// setupFixture builds a minimal vocabulary.db schema: vocabulary,
// mappings, and artworks, with FTS5 indexes over the vocabulary labels
// and artwork free-text columns. Mirrors the real schema probed by Open.
func setupFixture(t *testing.T) *sql.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vocabulary.db")
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	stmts := []string{
		`CREATE TABLE vocabulary (
			vocab_id TEXT PRIMARY KEY,
			type TEXT,
			label_en TEXT,
			label_en_norm TEXT,
			label_nl TEXT,
			notation TEXT,
			lat REAL,
			lon REAL
		)`,
		`CREATE TABLE mappings (object_number TEXT, field TEXT, vocab_id TEXT)`,
		`CREATE TABLE artworks (
			object_number TEXT PRIMARY KEY,
			title TEXT,
			creator_label TEXT,
			url TEXT,
			rights_uri TEXT,
			date_earliest INTEGER,
			date_latest INTEGER,
			height_cm REAL,
			width_cm REAL,
			image_url TEXT
		)`,
		`CREATE VIRTUAL TABLE vocabulary_fts USING fts5(label, content='')`,
		`CREATE VIRTUAL TABLE artwork_texts_fts USING fts5(title_all_text, inscription_text, provenance_text, credit_line, narrative_text, content='')`,

		`INSERT INTO vocabulary (vocab_id, type, label_en, label_en_norm, label_nl, notation, lat, lon) VALUES
			('v-rembrandt', 'person', 'Rembrandt van Rijn', 'rembrandt van rijn', 'Rembrandt van Rijn', NULL, NULL, NULL)`,
		`INSERT INTO vocabulary (vocab_id, type, label_en, label_en_norm, label_nl, notation, lat, lon) VALUES
			('v-amsterdam', 'place', 'Amsterdam', 'amsterdam', 'Amsterdam', NULL, 52.3676, 4.9041)`,
		`INSERT INTO vocabulary (vocab_id, type, label_en, label_en_norm, label_nl, notation, lat, lon) VALUES
			('v-haarlem', 'place', 'Haarlem', 'haarlem', 'Haarlem', NULL, 52.3874, 4.6462)`,
		`INSERT INTO vocabulary (vocab_id, type, label_en, label_en_norm, label_nl, notation, lat, lon) VALUES
			('v-nightwatch-subj', 'classification', 'militia company', 'militia company', 'schutterij', '73D82', NULL, NULL)`,

		`INSERT INTO artworks (object_number, title, creator_label, url, rights_uri, date_earliest, date_latest, height_cm, width_cm, image_url) VALUES
			('SK-C-5', 'The Night Watch', 'Rembrandt van Rijn', 'https://example.org/sk-c-5', 'https://creativecommons.org/publicdomain/zero/1.0/', 1642, 1642, 379.5, 453.5, 'https://iiif.example.org/sk-c-5/full.jpg')`,
		`INSERT INTO artworks (object_number, title, creator_label, url, rights_uri, date_earliest, date_latest, height_cm, width_cm, image_url) VALUES
			('SK-A-1', 'Self-portrait', 'Rembrandt van Rijn', 'https://example.org/sk-a-1', 'https://creativecommons.org/publicdomain/zero/1.0/', 1628, 1628, 22.6, 18.7, 'https://iiif.example.org/sk-a-1/full.jpg')`,
		`INSERT INTO artworks (object_number, title, creator_label, url, rights_uri, date_earliest, date_latest, height_cm, width_cm, image_url) VALUES
			('SK-A-2', 'View of Haarlem', 'Jacob van Ruisdael', 'https://example.org/sk-a-2', 'https://creativecommons.org/publicdomain/zero/1.0/', 1670, 1675, 55.5, 62.0, NULL)`,

		`INSERT INTO mappings (object_number, field, vocab_id) VALUES ('SK-C-5', 'creator', 'v-rembrandt')`,
		`INSERT INTO mappings (object_number, field, vocab_id) VALUES ('SK-A-1', 'creator', 'v-rembrandt')`,
		`INSERT INTO mappings (object_number, field, vocab_id) VALUES ('SK-C-5', 'spatial', 'v-amsterdam')`,
		`INSERT INTO mappings (object_number, field, vocab_id) VALUES ('SK-A-2', 'spatial', 'v-haarlem')`,
		`INSERT INTO mappings (object_number, field, vocab_id) VALUES ('SK-C-5', 'subject', 'v-nightwatch-subj')`,

		`INSERT INTO vocabulary_fts (rowid, label) SELECT rowid, label_en FROM vocabulary`,
		`INSERT INTO artwork_texts_fts (rowid, title_all_text) SELECT rowid, title FROM artworks`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			t.Fatalf("exec %q: %v", s, err)
		}
	}
	return db
}

func TestSearchNoFilterIsValidationError(t *testing.T) {
	db := setupFixture(t)
	eng := Open(context.Background(), db)

	_, err := eng.Search(context.Background(), Filters{})
	if err == nil {
		t.Fatalf("expected ValidationError for empty filter set")
	}
}

func TestSearchByCreatorReturnsMatchingArtworks(t *testing.T) {
	db := setupFixture(t)
	eng := Open(context.Background(), db)

	res, err := eng.Search(context.Background(), Filters{Creator: "Rembrandt van Rijn"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res.Results) != 2 {
		t.Fatalf("got %d results, want 2", len(res.Results))
	}
	if res.TotalResults == nil || *res.TotalResults != 2 {
		t.Errorf("TotalResults = %v, want 2 (single active filter)", res.TotalResults)
	}
}

func TestSearchIntersectsMultipleFilters(t *testing.T) {
	db := setupFixture(t)
	eng := Open(context.Background(), db)

	// Creator matches SK-C-5 and SK-A-1; subject matches only SK-C-5.
	res, err := eng.Search(context.Background(), Filters{Creator: "Rembrandt van Rijn", Subject: "militia company"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res.Results) != 1 || res.Results[0].ObjectNumber != "SK-C-5" {
		t.Fatalf("got %+v, want single result SK-C-5", res.Results)
	}
	// Multiple active filters suppress TotalResults.
	if res.TotalResults != nil {
		t.Errorf("TotalResults = %v, want nil with 2 active filters", *res.TotalResults)
	}
}

func TestSearchNoMatchShortCircuitsWithoutError(t *testing.T) {
	db := setupFixture(t)
	eng := Open(context.Background(), db)

	res, err := eng.Search(context.Background(), Filters{Creator: "Nobody At All"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res.Results) != 0 {
		t.Errorf("expected zero results for unmatched creator")
	}
}

func TestSearchDimensionRange(t *testing.T) {
	db := setupFixture(t)
	eng := Open(context.Background(), db)

	minH := 300.0
	res, err := eng.Search(context.Background(), Filters{MinHeight: &minH})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res.Results) != 1 || res.Results[0].ObjectNumber != "SK-C-5" {
		t.Fatalf("got %+v, want single result SK-C-5", res.Results)
	}
}

func TestSearchCreationDateWildcard(t *testing.T) {
	db := setupFixture(t)
	eng := Open(context.Background(), db)

	res, err := eng.Search(context.Background(), Filters{CreationDate: "164*"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res.Results) != 1 || res.Results[0].ObjectNumber != "SK-C-5" {
		t.Fatalf("got %+v, want single result SK-C-5 (1642)", res.Results)
	}
}

func TestSearchMalformedDateWildcardWarnsAndIgnoresFilter(t *testing.T) {
	db := setupFixture(t)
	eng := Open(context.Background(), db)

	res, err := eng.Search(context.Background(), Filters{CreationDate: "16**", Creator: "Rembrandt van Rijn"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res.Warnings) == 0 {
		t.Errorf("expected a warning about the malformed date wildcard")
	}
	if len(res.Results) != 2 {
		t.Errorf("malformed date filter should be ignored, not applied; got %d results", len(res.Results))
	}
}

func TestSearchNearPlaceAnnotatesNearestPlaceAndDistance(t *testing.T) {
	db := setupFixture(t)
	eng := Open(context.Background(), db)

	// Haarlem (SK-A-2) is ~17.6km from Amsterdam, so the radius stays below that.
	res, err := eng.Search(context.Background(), Filters{NearPlace: "Amsterdam", NearPlaceRadius: 10})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res.Results) != 1 || res.Results[0].ObjectNumber != "SK-C-5" {
		t.Fatalf("got %+v, want single result SK-C-5 (mapped to Amsterdam)", res.Results)
	}
	if res.Results[0].DistanceKM == nil {
		t.Fatalf("expected DistanceKM to be set")
	}
	if *res.Results[0].DistanceKM != 0 {
		t.Errorf("DistanceKM = %v, want 0 for the exact reference place", *res.Results[0].DistanceKM)
	}
}

func TestSearchNearLatLonTakesPrecedenceOverNearPlace(t *testing.T) {
	db := setupFixture(t)
	eng := Open(context.Background(), db)

	lat, lon := 52.3874, 4.6462 // Haarlem
	res, err := eng.Search(context.Background(), Filters{NearPlace: "Amsterdam", NearLat: &lat, NearLon: &lon, NearPlaceRadius: 10})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	found := false
	for _, w := range res.Warnings {
		if w != "" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a warning about nearLat/nearLon precedence")
	}
	if len(res.Results) != 1 || res.Results[0].ObjectNumber != "SK-A-2" {
		t.Fatalf("got %+v, want single result SK-A-2 (mapped to Haarlem)", res.Results)
	}
}

func TestSearchByObjectNumberReturnsSingleMatch(t *testing.T) {
	db := setupFixture(t)
	eng := Open(context.Background(), db)

	res, err := eng.Search(context.Background(), Filters{ObjectNumber: "SK-C-5"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res.Results) != 1 || res.Results[0].ObjectNumber != "SK-C-5" {
		t.Fatalf("got %+v, want single result SK-C-5", res.Results)
	}
}

func TestSearchByObjectNumberUnknownIsNotFound(t *testing.T) {
	db := setupFixture(t)
	eng := Open(context.Background(), db)

	_, err := eng.Search(context.Background(), Filters{ObjectNumber: "SK-ZZZZ"})
	if err == nil {
		t.Fatalf("expected a NotFound error for an unknown object number")
	}
}

func TestSearchCompactReturnsObjectNumbersOnly(t *testing.T) {
	db := setupFixture(t)
	eng := Open(context.Background(), db)

	res, err := eng.Search(context.Background(), Filters{Creator: "Rembrandt van Rijn", Compact: true})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if res.TotalResults == nil || *res.TotalResults != 2 {
		t.Fatalf("TotalResults = %v, want 2", res.TotalResults)
	}
	for _, r := range res.Results {
		if r.ObjectNumber == "" {
			t.Errorf("expected every compact result to carry an object number")
		}
		if r.Title != "" {
			t.Errorf("compact result %+v should skip detail resolution", r)
		}
	}
}

func TestSearchImageAvailableFilter(t *testing.T) {
	db := setupFixture(t)
	eng := Open(context.Background(), db)

	available := true
	res, err := eng.Search(context.Background(), Filters{Creator: "Rembrandt van Rijn", ImageAvailable: &available})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res.Results) != 2 {
		t.Fatalf("got %d results, want 2 (both Rembrandts carry an image_url)", len(res.Results))
	}

	unavailable := false
	res, err = eng.Search(context.Background(), Filters{ObjectNumber: "SK-A-2", ImageAvailable: &unavailable})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res.Results) != 1 || res.Results[0].ObjectNumber != "SK-A-2" {
		t.Fatalf("got %+v, want SK-A-2 (no image_url)", res.Results)
	}
}
