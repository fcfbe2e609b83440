// Package vocabulary implements the structured search engine over
// vocabulary.db: per-field vocabulary filters intersected against a
// denormalised artwork+mapping store, with FTS/LIKE fallback, an
// Iconclass notation shortcut, and two-stage geospatial proximity search.
package vocabulary

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/rijksmuseum/rijksdata-retrieval/internal/apperrors"
	"github.com/rijksmuseum/rijksdata-retrieval/internal/core"
	"github.com/rijksmuseum/rijksdata-retrieval/internal/dbutil"
	"github.com/rijksmuseum/rijksdata-retrieval/internal/geo"
)

// Engine answers structured search queries against vocabulary.db.
type Engine struct {
	db               *sql.DB
	hasFTS           bool
	hasArtworkFTS    bool
	hasNormLabels    bool
	hasCoordinates   bool
	hasDimensions    bool
	hasDates         bool
	hasImageColumn   bool
}

// Open probes vocabulary.db's optional features and returns a ready Engine.
func Open(ctx context.Context, db *sql.DB) *Engine {
	return &Engine{
		db:             db,
		hasFTS:         dbutil.HasTable(ctx, db, "vocabulary_fts"),
		hasArtworkFTS:  dbutil.HasTable(ctx, db, "artwork_texts_fts"),
		hasNormLabels:  dbutil.HasColumn(ctx, db, "vocabulary", "label_en_norm"),
		hasCoordinates: dbutil.HasColumn(ctx, db, "vocabulary", "lat"),
		hasDimensions:  dbutil.HasColumn(ctx, db, "artworks", "height_cm"),
		hasDates:       dbutil.HasColumn(ctx, db, "artworks", "date_earliest"),
		hasImageColumn: dbutil.HasColumn(ctx, db, "artworks", "image_url"),
	}
}

// Filters is the composite query object for a structured search.
type Filters struct {
	Query, Title, Creator, ObjectNumber, Type, Material, Technique string
	CreationDate, Description                                     string

	Subject, DepictedPerson, DepictedPlace, ProductionPlace string
	BirthPlace, DeathPlace, Profession, CollectionSet       string
	ProductionRole                                          string
	Iconclass                                               string
	License                                                 string
	Inscription, Provenance, CreditLine, Narrative          string

	MinHeight, MaxHeight, MinWidth, MaxWidth *float64

	NearPlace       string
	NearLat, NearLon *float64
	NearPlaceRadius  float64

	ImageAvailable *bool
	MaxResults     int
	Compact        bool
}

// Result is the outcome of a structured search.
type Result struct {
	Results      []core.SearchResult
	TotalResults *int
	Warnings     []string
}

// acceptableFilterNames is surfaced in the ValidationError message when
// a caller supplies no recognised filter.
const acceptableFilterNames = "title|creator|type|material|technique|creationDate|description"

// Search runs a composite structured query and returns up to
// filters.MaxResults results.
func (e *Engine) Search(ctx context.Context, f Filters) (*Result, error) {
	if e.db == nil {
		return nil, apperrors.NewIndexUnavailable("vocabulary.Search", "vocabulary.db", "not opened", nil)
	}

	maxResults := f.MaxResults
	if maxResults <= 0 {
		maxResults = 25
	}
	if maxResults > 100 {
		maxResults = 100
	}

	title := f.Title
	if title == "" {
		title = f.Query
	}

	predicates, warnings, err := e.resolvePredicates(ctx, f, title)
	if err != nil {
		return nil, err
	}
	if len(predicates) == 0 {
		return nil, apperrors.NewValidationError("vocabulary.Search",
			fmt.Sprintf("no filter present; acceptable filter names include %s", acceptableFilterNames))
	}

	candidates, shortCircuit := intersectAll(predicates)
	if f.ObjectNumber != "" && len(candidates) == 0 {
		return nil, apperrors.NewNotFound("vocabulary.Search", "objectNumber", f.ObjectNumber)
	}

	res := &Result{Warnings: warnings}
	if shortCircuit {
		return res, nil
	}

	if len(predicates) == 1 {
		n := len(candidates)
		res.TotalResults = &n
	}

	if len(candidates) > maxResults {
		candidates = candidates[:maxResults]
	}

	if f.Compact {
		n := len(candidates)
		res.TotalResults = &n
		res.Results = make([]core.SearchResult, len(candidates))
		for i, id := range candidates {
			res.Results[i] = core.SearchResult{ObjectNumber: id}
		}
		return res, nil
	}

	rows, err := e.loadResultRows(ctx, candidates, f)
	if err != nil {
		return nil, err
	}
	res.Results = rows
	return res, nil
}

// HasAnyFilter reports whether at least one filter field is set, per the
// search guard shared by the structured search and semantic filtered-KNN
// delegation.
func HasAnyFilter(f Filters) bool {
	switch {
	case f.Query != "", f.Title != "", f.Creator != "", f.ObjectNumber != "":
	case f.Type != "", f.Material != "", f.Technique != "", f.CreationDate != "", f.Description != "":
	case f.Subject != "", f.DepictedPerson != "", f.DepictedPlace != "", f.ProductionPlace != "":
	case f.BirthPlace != "", f.DeathPlace != "", f.Profession != "", f.CollectionSet != "":
	case f.ProductionRole != "", f.Iconclass != "", f.License != "":
	case f.Inscription != "", f.Provenance != "", f.CreditLine != "", f.Narrative != "":
	case f.MinHeight != nil, f.MaxHeight != nil, f.MinWidth != nil, f.MaxWidth != nil:
	case f.NearPlace != "", f.NearLat != nil, f.ImageAvailable != nil:
	default:
		return false
	}
	return true
}

// ResolveCandidateObjectNumbers resolves a filter set to its matching
// object numbers without fetching result rows, for the semantic engine's
// filtered-KNN delegation. A nil slice with no error means no filter
// was active; a non-nil empty slice means every filter resolved but
// their intersection was empty.
func (e *Engine) ResolveCandidateObjectNumbers(ctx context.Context, f Filters) ([]string, []string, error) {
	title := f.Title
	if title == "" {
		title = f.Query
	}
	predicates, warnings, err := e.resolvePredicates(ctx, f, title)
	if err != nil {
		return nil, nil, err
	}
	if len(predicates) == 0 {
		return nil, warnings, nil
	}
	candidates, shortCircuit := intersectAll(predicates)
	if shortCircuit || len(candidates) == 0 {
		return []string{}, warnings, nil
	}
	return candidates, warnings, nil
}

// objectSet is the per-filter candidate set, ordered for determinism.
type objectSet struct {
	ids []string
}

// resolvePredicates resolves every active filter into an objectSet. A
// filter yielding zero vocabulary IDs with no other recourse signals a
// short-circuit to an empty result, represented by an objectSet with a
// nil ids slice but present in the list: intersectAll treats any empty
// set as a global short-circuit.
func (e *Engine) resolvePredicates(ctx context.Context, f Filters, title string) ([]objectSet, []string, error) {
	var sets []objectSet
	var warnings []string

	addVocab := func(term string, field core.MappingField, allowedTypes ...core.VocabTermType) error {
		if term == "" {
			return nil
		}
		ids, w, err := e.resolveVocabTerm(ctx, term, allowedTypes...)
		if err != nil {
			return err
		}
		warnings = append(warnings, w...)
		objs, err := e.objectsForMapping(ctx, ids, field)
		if err != nil {
			return err
		}
		sets = append(sets, objectSet{ids: objs})
		return nil
	}

	if err := addVocab(f.Subject, core.FieldSubject, core.VocabTermClassification); err != nil {
		return nil, nil, err
	}
	if err := addVocab(f.DepictedPerson, core.FieldSubject, core.VocabTermPerson); err != nil {
		return nil, nil, err
	}
	if err := addVocab(f.DepictedPlace, core.FieldSpatial, core.VocabTermPlace); err != nil {
		return nil, nil, err
	}
	if err := addVocab(f.ProductionPlace, core.FieldSpatial, core.VocabTermPlace); err != nil {
		return nil, nil, err
	}
	if err := addVocab(f.BirthPlace, core.FieldBirthPlace, core.VocabTermPlace); err != nil {
		return nil, nil, err
	}
	if err := addVocab(f.DeathPlace, core.FieldDeathPlace, core.VocabTermPlace); err != nil {
		return nil, nil, err
	}
	if err := addVocab(f.Profession, core.FieldProfession); err != nil {
		return nil, nil, err
	}
	if err := addVocab(f.Material, core.FieldMaterial); err != nil {
		return nil, nil, err
	}
	if err := addVocab(f.Technique, core.FieldTechnique); err != nil {
		return nil, nil, err
	}
	if err := addVocab(f.Type, core.FieldType); err != nil {
		return nil, nil, err
	}
	if err := addVocab(f.Creator, core.FieldCreator); err != nil {
		return nil, nil, err
	}
	if err := addVocab(f.CollectionSet, core.FieldCollectionSet); err != nil {
		return nil, nil, err
	}
	if err := addVocab(f.ProductionRole, core.FieldProductionRole); err != nil {
		return nil, nil, err
	}

	if f.ObjectNumber != "" {
		objs, err := e.objectsForObjectNumber(ctx, f.ObjectNumber)
		if err != nil {
			return nil, nil, err
		}
		sets = append(sets, objectSet{ids: objs})
	}

	if f.ImageAvailable != nil {
		if !e.hasImageColumn {
			warnings = append(warnings, "imageAvailable filtering unavailable on this index")
		} else {
			objs, err := e.objectsForImageAvailable(ctx, *f.ImageAvailable)
			if err != nil {
				return nil, nil, err
			}
			sets = append(sets, objectSet{ids: objs})
		}
	}

	if f.Iconclass != "" {
		objs, err := e.objectsForIconclass(ctx, f.Iconclass)
		if err != nil {
			return nil, nil, err
		}
		sets = append(sets, objectSet{ids: objs})
	}

	if f.License != "" {
		objs, err := e.objectsForColumnLike(ctx, "rights_uri", f.License)
		if err != nil {
			return nil, nil, err
		}
		sets = append(sets, objectSet{ids: objs})
	}

	for _, ft := range []struct {
		value  string
		column string
	}{
		{f.Inscription, "inscription_text"},
		{f.Provenance, "provenance_text"},
		{f.CreditLine, "credit_line"},
		{f.Narrative, "narrative_text"},
		{title, "title_all_text"},
	} {
		if ft.value == "" {
			continue
		}
		objs, w, err := e.objectsForFullText(ctx, ft.value, ft.column)
		if err != nil {
			return nil, nil, err
		}
		warnings = append(warnings, w...)
		sets = append(sets, objectSet{ids: objs})
	}

	if f.CreationDate != "" {
		objs, w, err := e.objectsForDate(ctx, f.CreationDate)
		if err != nil {
			return nil, nil, err
		}
		if w != "" {
			warnings = append(warnings, w)
		} else {
			sets = append(sets, objectSet{ids: objs})
		}
	}

	if f.MinHeight != nil || f.MaxHeight != nil || f.MinWidth != nil || f.MaxWidth != nil {
		objs, err := e.objectsForDimensions(ctx, f)
		if err != nil {
			return nil, nil, err
		}
		sets = append(sets, objectSet{ids: objs})
	}

	geoSet, geoWarnings, err := e.resolveGeoFilter(ctx, &f)
	if err != nil {
		return nil, nil, err
	}
	warnings = append(warnings, geoWarnings...)
	if geoSet != nil {
		sets = append(sets, *geoSet)
	}

	return sets, warnings, nil
}

// intersectAll computes the set-theoretic AND of every predicate's object
// numbers. Returns (nil, true) if any set is empty, signalling the
// global short-circuit.
func intersectAll(sets []objectSet) ([]string, bool) {
	if len(sets) == 0 {
		return nil, true
	}
	counts := make(map[string]int)
	for _, s := range sets {
		if len(s.ids) == 0 {
			return nil, true
		}
		for _, id := range s.ids {
			counts[id]++
		}
	}
	var out []string
	for id, c := range counts {
		if c == len(sets) {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out, false
}

func (e *Engine) objectsForMapping(ctx context.Context, vocabIDs []string, field core.MappingField) ([]string, error) {
	if len(vocabIDs) == 0 {
		return nil, nil
	}
	var out []string
	for _, chunk := range dbutil.ChunkIDs(vocabIDs) {
		args := make([]any, 0, len(chunk)+1)
		args = append(args, string(field))
		for _, id := range chunk {
			args = append(args, id)
		}
		query := fmt.Sprintf("SELECT DISTINCT object_number FROM mappings WHERE field = ? AND vocab_id IN (%s)", dbutil.Placeholders(len(chunk)))
		rows, err := e.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("mapping lookup: %w", err)
		}
		if err := scanStrings(rows, &out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (e *Engine) objectsForIconclass(ctx context.Context, notation string) ([]string, error) {
	var vocabID string
	err := e.db.QueryRowContext(ctx, "SELECT vocab_id FROM vocabulary WHERE notation = ?", notation).Scan(&vocabID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("iconclass lookup: %w", err)
	}
	return e.objectsForMapping(ctx, []string{vocabID}, core.FieldSubject)
}

func (e *Engine) objectsForObjectNumber(ctx context.Context, objectNumber string) ([]string, error) {
	var out []string
	rows, err := e.db.QueryContext(ctx, "SELECT object_number FROM artworks WHERE object_number = ?", objectNumber)
	if err != nil {
		return nil, fmt.Errorf("object number lookup: %w", err)
	}
	if err := scanStrings(rows, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Engine) objectsForImageAvailable(ctx context.Context, available bool) ([]string, error) {
	var out []string
	cond := "image_url IS NOT NULL AND image_url != ''"
	if !available {
		cond = "image_url IS NULL OR image_url = ''"
	}
	rows, err := e.db.QueryContext(ctx, "SELECT object_number FROM artworks WHERE "+cond)
	if err != nil {
		return nil, fmt.Errorf("image availability lookup: %w", err)
	}
	if err := scanStrings(rows, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Engine) objectsForColumnLike(ctx context.Context, column, value string) ([]string, error) {
	var out []string
	query := fmt.Sprintf("SELECT object_number FROM artworks WHERE %s LIKE ?", column)
	rows, err := e.db.QueryContext(ctx, query, "%"+value+"%")
	if err != nil {
		return nil, fmt.Errorf("column LIKE lookup on %s: %w", column, err)
	}
	if err := scanStrings(rows, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Engine) objectsForFullText(ctx context.Context, value, column string) ([]string, []string, error) {
	if !e.hasArtworkFTS {
		ids, err := e.objectsForColumnLike(ctx, column, value)
		return ids, []string{fmt.Sprintf("artwork full-text index unavailable; fell back to LIKE for %s", column)}, err
	}
	sanitized := dbutil.SanitizeFTSQuery(value)
	if sanitized == "" {
		return nil, nil, nil
	}
	var out []string
	query := fmt.Sprintf(`SELECT a.object_number FROM artwork_texts_fts f
		JOIN artworks a ON a.rowid = f.rowid
		WHERE f.%s MATCH ?`, column)
	rows, err := e.db.QueryContext(ctx, query, sanitized)
	if err != nil {
		return nil, nil, fmt.Errorf("fts lookup on %s: %w", column, err)
	}
	if err := scanStrings(rows, &out); err != nil {
		return nil, nil, err
	}
	return out, nil, nil
}

func (e *Engine) objectsForDate(ctx context.Context, value string) ([]string, string, error) {
	if !e.hasDates {
		return nil, "date filtering unavailable on this index", nil
	}
	r, ok := ParseDateWildcard(value)
	if !ok {
		return nil, fmt.Sprintf("malformed date wildcard %q ignored", value), nil
	}
	var out []string
	rows, err := e.db.QueryContext(ctx,
		"SELECT object_number FROM artworks WHERE date_earliest <= ? AND date_latest >= ?",
		r.Latest, r.Earliest,
	)
	if err != nil {
		return nil, "", fmt.Errorf("date range lookup: %w", err)
	}
	if err := scanStrings(rows, &out); err != nil {
		return nil, "", err
	}
	return out, "", nil
}

func (e *Engine) objectsForDimensions(ctx context.Context, f Filters) ([]string, error) {
	if !e.hasDimensions {
		return nil, nil
	}
	var conds []string
	var args []any
	if f.MinHeight != nil {
		conds = append(conds, "height_cm >= ?")
		args = append(args, *f.MinHeight)
	}
	if f.MaxHeight != nil {
		conds = append(conds, "height_cm <= ?")
		args = append(args, *f.MaxHeight)
	}
	if f.MinWidth != nil {
		conds = append(conds, "width_cm >= ?")
		args = append(args, *f.MinWidth)
	}
	if f.MaxWidth != nil {
		conds = append(conds, "width_cm <= ?")
		args = append(args, *f.MaxWidth)
	}
	query := "SELECT object_number FROM artworks WHERE " + strings.Join(conds, " AND ")
	var out []string
	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("dimension range lookup: %w", err)
	}
	if err := scanStrings(rows, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func scanStrings(rows *sql.Rows, out *[]string) error {
	defer rows.Close()
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return err
		}
		*out = append(*out, s)
	}
	return rows.Err()
}

// loadResultRows fetches the result-shape fields for each candidate
// object number, batching by the SQLite variable limit.
func (e *Engine) loadResultRows(ctx context.Context, objectNumbers []string, f Filters) ([]core.SearchResult, error) {
	if len(objectNumbers) == 0 {
		return nil, nil
	}
	byID := make(map[string]*core.SearchResult, len(objectNumbers))
	order := make([]string, 0, len(objectNumbers))

	for _, chunk := range dbutil.ChunkIDs(objectNumbers) {
		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}
		query := fmt.Sprintf(`SELECT object_number, title, creator_label, url, date_earliest, date_latest
			FROM artworks WHERE object_number IN (%s)`, dbutil.Placeholders(len(chunk)))
		rows, err := e.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("result row lookup: %w", err)
		}
		for rows.Next() {
			var r core.SearchResult
			var de, dl sql.NullInt64
			if err := rows.Scan(&r.ObjectNumber, &r.Title, &r.CreatorLabel, &r.URL, &de, &dl); err != nil {
				rows.Close()
				return nil, err
			}
			if de.Valid && dl.Valid {
				a := core.Artwork{}
				e1 := int(de.Int64)
				l1 := int(dl.Int64)
				a.DateEarliest = &e1
				a.DateLatest = &l1
				r.DateLabel = a.DateLabel()
			}
			byID[r.ObjectNumber] = &r
			order = append(order, r.ObjectNumber)
		}
		rows.Close()
	}

	if f.NearPlace != "" || f.NearLat != nil {
		lat, lon, ok := e.refPoint(ctx, f)
		if ok {
			e.annotateNearestPlace(ctx, byID, lat, lon)
		}
	}

	out := make([]core.SearchResult, 0, len(order))
	for _, id := range order {
		out = append(out, *byID[id])
	}
	return out, nil
}

// refPoint resolves the reference coordinate used for nearest-place
// annotation: nearLat/nearLon if given, else the resolved nearPlace term.
func (e *Engine) refPoint(ctx context.Context, f Filters) (float64, float64, bool) {
	if f.NearLat != nil && f.NearLon != nil {
		return *f.NearLat, *f.NearLon, true
	}
	if f.NearPlace == "" {
		return 0, 0, false
	}
	ids, _, err := e.resolveVocabTerm(ctx, f.NearPlace, core.VocabTermPlace)
	if err != nil || len(ids) == 0 {
		return 0, 0, false
	}
	term, err := e.vocabTermByID(ctx, ids[0])
	if err != nil || term.Lat == nil || term.Lon == nil {
		return 0, 0, false
	}
	return *term.Lat, *term.Lon, true
}

// annotateNearestPlace fills in NearestPlace/DistanceKM by joining each
// matched artwork against its (subject|spatial) mappings and taking the
// minimum Haversine distance to the reference point, rounded to one
// decimal.
func (e *Engine) annotateNearestPlace(ctx context.Context, byID map[string]*core.SearchResult, refLat, refLon float64) {
	objectNumbers := make([]string, 0, len(byID))
	for id := range byID {
		objectNumbers = append(objectNumbers, id)
	}
	for _, chunk := range dbutil.ChunkIDs(objectNumbers) {
		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}
		query := fmt.Sprintf(`SELECT m.object_number, v.label_en, v.lat, v.lon
			FROM mappings m
			JOIN vocabulary v ON v.vocab_id = m.vocab_id
			WHERE m.field IN ('subject','spatial') AND v.lat IS NOT NULL
			AND m.object_number IN (%s)`, dbutil.Placeholders(len(chunk)))
		rows, err := e.db.QueryContext(ctx, query, args...)
		if err != nil {
			continue
		}
		for rows.Next() {
			var objNum, label string
			var lat, lon float64
			if rows.Scan(&objNum, &label, &lat, &lon) != nil {
				continue
			}
			r, ok := byID[objNum]
			if !ok {
				continue
			}
			d := geo.RoundKM(geo.HaversineKM(refLat, refLon, lat, lon))
			if r.DistanceKM == nil || d < *r.DistanceKM {
				dist := d
				r.DistanceKM = &dist
				r.NearestPlace = label
			}
		}
		rows.Close()
	}
}
