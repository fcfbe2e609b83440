package vocabulary

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/rijksmuseum/rijksdata-retrieval/internal/core"
	"github.com/rijksmuseum/rijksdata-retrieval/internal/dbutil"
	"github.com/rijksmuseum/rijksdata-retrieval/internal/geo"
)

// resolveVocabTerm resolves a free-text filter value to the vocabulary_id
// set it matches, trying in order: FTS match, multi-word place resolver
// (place types only), LIKE fallback against both the raw and normalised
// label columns. A term matching nothing returns a nil id slice with no
// error, which the caller treats as the filter's short-circuit.
func (e *Engine) resolveVocabTerm(ctx context.Context, term string, allowedTypes ...core.VocabTermType) ([]string, []string, error) {
	var warnings []string

	if e.hasFTS {
		ids, err := e.ftsMatchVocab(ctx, term, allowedTypes)
		if err != nil {
			return nil, nil, err
		}
		if len(ids) > 0 {
			return ids, warnings, nil
		}
	}

	isPlaceFilter := len(allowedTypes) == 1 && allowedTypes[0] == core.VocabTermPlace
	if isPlaceFilter && strings.ContainsAny(term, " ,") {
		ids, w, err := e.resolveMultiWordPlace(ctx, term)
		if err != nil {
			return nil, nil, err
		}
		if w != "" {
			warnings = append(warnings, w)
		}
		if len(ids) > 0 {
			return ids, warnings, nil
		}
	}

	ids, err := e.likeMatchVocab(ctx, term, allowedTypes)
	if err != nil {
		return nil, nil, err
	}
	return ids, warnings, nil
}

func (e *Engine) ftsMatchVocab(ctx context.Context, term string, allowedTypes []core.VocabTermType) ([]string, error) {
	sanitized := dbutil.SanitizeFTSQuery(term)
	if sanitized == "" {
		return nil, nil
	}
	query := "SELECT v.vocab_id FROM vocabulary_fts f JOIN vocabulary v ON v.rowid = f.rowid WHERE f.label MATCH ?"
	args := []any{sanitized}
	query, args = appendTypeFilter(query, args, allowedTypes)
	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("vocabulary fts match: %w", err)
	}
	var out []string
	if err := scanStrings(rows, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Engine) likeMatchVocab(ctx context.Context, term string, allowedTypes []core.VocabTermType) ([]string, error) {
	var query string
	args := []any{"%" + term + "%"}
	if e.hasNormLabels {
		query = "SELECT vocab_id FROM vocabulary WHERE (label_en LIKE ? OR label_en_norm LIKE ? OR label_nl LIKE ?)"
		args = []any{"%" + term + "%", "%" + normalizeLabel(term) + "%", "%" + term + "%"}
	} else {
		query = "SELECT vocab_id FROM vocabulary WHERE (label_en LIKE ? OR label_nl LIKE ?)"
		args = []any{"%" + term + "%", "%" + term + "%"}
	}
	query, args = appendTypeFilter(query, args, allowedTypes)
	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("vocabulary like match: %w", err)
	}
	var out []string
	if err := scanStrings(rows, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func appendTypeFilter(query string, args []any, allowedTypes []core.VocabTermType) (string, []any) {
	if len(allowedTypes) == 0 {
		return query, args
	}
	placeholders := make([]string, len(allowedTypes))
	for i, t := range allowedTypes {
		placeholders[i] = "?"
		args = append(args, string(t))
	}
	return query + " AND type IN (" + strings.Join(placeholders, ",") + ")", args
}

// normalizeLabel produces the space-stripped, lowercase form compared
// against vocabulary.label_en_norm, so a "print maker" query still finds a
// "printmaker" row. Diacritics and punctuation are left as they are.
func normalizeLabel(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), ""))
}

// placeContextRadiusKM bounds how far a name candidate may sit from its
// resolved context place before it is discarded as a geographic mismatch.
const placeContextRadiusKM = 100.0

// resolveMultiWordPlace implements the multi-word place resolver. It first
// tries comma-splitting ("Oude Kerk, Amsterdam" -> name "Oude Kerk", context
// "Amsterdam"); failing that, it tries progressive right-token dropping over
// the full token list, stopping at the first split whose name segment
// matches at least one vocabulary term. When the context segment itself
// resolves to coordinates (exact case-insensitive label match first, then
// the shortest FTS match), name candidates are ranked by Haversine distance
// to those coordinates and narrowed to those within placeContextRadiusKM, or
// the single closest if none qualify. Without a resolvable context, every
// name candidate is returned unranked. Always returns a human-readable
// warning describing how the term was interpreted, or, when nothing
// resolves at all, saying that it did not resolve.
func (e *Engine) resolveMultiWordPlace(ctx context.Context, term string) ([]string, string, error) {
	if name, context, ok := strings.Cut(term, ","); ok {
		name = strings.TrimSpace(name)
		context = strings.TrimSpace(context)
		if name != "" {
			ids, err := e.likeMatchVocab(ctx, name, []core.VocabTermType{core.VocabTermPlace})
			if err != nil {
				return nil, "", err
			}
			if len(ids) > 0 {
				return e.narrowByContext(ctx, term, name, context, ids)
			}
		}
	}

	tokens := strings.Fields(strings.TrimSpace(strings.SplitN(term, ",", 2)[0]))
	if len(tokens) < 2 {
		return nil, fmt.Sprintf("place %q did not resolve to any known vocabulary term", term), nil
	}

	for end := len(tokens) - 1; end >= 1; end-- {
		name := strings.Join(tokens[:end], " ")
		context := strings.Join(tokens[end:], " ")
		ids, err := e.likeMatchVocab(ctx, name, []core.VocabTermType{core.VocabTermPlace})
		if err != nil {
			return nil, "", err
		}
		if len(ids) == 0 {
			continue
		}
		return e.narrowByContext(ctx, term, name, context, ids)
	}
	return nil, fmt.Sprintf("place %q did not resolve to any known vocabulary term", term), nil
}

// narrowByContext disambiguates the name candidates ids using context as a
// reference place: it resolves context to coordinates and keeps only the
// candidates within placeContextRadiusKM, falling back to the single
// closest if none qualify. With no resolvable context, all candidates are
// returned as-is.
func (e *Engine) narrowByContext(ctx context.Context, term, name, context string, ids []string) ([]string, string, error) {
	if len(ids) == 1 {
		return ids, fmt.Sprintf("place %q interpreted as %q", term, name), nil
	}

	lat, lon, ok, err := e.resolveContextCoords(ctx, context)
	if err != nil {
		return nil, "", err
	}
	if !ok {
		warn := fmt.Sprintf("place %q is ambiguous (%d candidates for %q); context %q did not resolve to coordinates", term, len(ids), name, context)
		return ids, warn, nil
	}

	ranked, err := e.rankByDistance(ctx, ids, lat, lon)
	if err != nil {
		return nil, "", err
	}
	var within []string
	for _, r := range ranked {
		if r.distanceKM <= placeContextRadiusKM {
			within = append(within, r.id)
		}
	}
	if len(within) == 0 && len(ranked) > 0 {
		within = []string{ranked[0].id}
		warn := fmt.Sprintf("place %q resolved to %q near %q; nearest candidate is %.1fkm away, outside %.0fkm", term, name, context, ranked[0].distanceKM, placeContextRadiusKM)
		return within, warn, nil
	}
	warn := fmt.Sprintf("place %q resolved to %q near %q (%d of %d candidates within %.0fkm)", term, name, context, len(within), len(ids), placeContextRadiusKM)
	return within, warn, nil
}

// resolveContextCoords resolves a context place name to coordinates,
// preferring an exact case-insensitive label match, then the shortest FTS
// match.
func (e *Engine) resolveContextCoords(ctx context.Context, context string) (float64, float64, bool, error) {
	if context == "" {
		return 0, 0, false, nil
	}

	var vocabID string
	err := e.db.QueryRowContext(ctx,
		"SELECT vocab_id FROM vocabulary WHERE type = ? AND (lower(label_en) = lower(?) OR lower(label_nl) = lower(?))",
		string(core.VocabTermPlace), context, context,
	).Scan(&vocabID)
	if err != nil && err != sql.ErrNoRows {
		return 0, 0, false, fmt.Errorf("context exact label match: %w", err)
	}

	if vocabID == "" && e.hasFTS {
		ids, err := e.ftsMatchVocab(ctx, context, []core.VocabTermType{core.VocabTermPlace})
		if err != nil {
			return 0, 0, false, err
		}
		if len(ids) > 0 {
			vocabID, err = e.shortestLabelMatch(ctx, ids)
			if err != nil {
				return 0, 0, false, err
			}
		}
	}
	if vocabID == "" {
		return 0, 0, false, nil
	}

	term, err := e.vocabTermByID(ctx, vocabID)
	if err != nil {
		return 0, 0, false, nil
	}
	if term.Lat == nil || term.Lon == nil {
		return 0, 0, false, nil
	}
	return *term.Lat, *term.Lon, true, nil
}

type rankedPlace struct {
	id         string
	distanceKM float64
}

// rankByDistance orders ids by Haversine distance to (lat, lon), nearest
// first.
func (e *Engine) rankByDistance(ctx context.Context, ids []string, lat, lon float64) ([]rankedPlace, error) {
	var ranked []rankedPlace
	for _, chunk := range dbutil.ChunkIDs(ids) {
		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}
		query := fmt.Sprintf("SELECT vocab_id, lat, lon FROM vocabulary WHERE vocab_id IN (%s)", dbutil.Placeholders(len(chunk)))
		rows, err := e.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("rank by distance lookup: %w", err)
		}
		for rows.Next() {
			var id string
			var plat, plon sql.NullFloat64
			if err := rows.Scan(&id, &plat, &plon); err != nil {
				rows.Close()
				return nil, err
			}
			if !plat.Valid || !plon.Valid {
				continue
			}
			ranked = append(ranked, rankedPlace{id: id, distanceKM: geo.HaversineKM(lat, lon, plat.Float64, plon.Float64)})
		}
		rows.Close()
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].distanceKM < ranked[j].distanceKM })
	return ranked, nil
}

func (e *Engine) shortestLabelMatch(ctx context.Context, ids []string) (string, error) {
	type labeled struct {
		id    string
		label string
	}
	var candidates []labeled
	for _, chunk := range dbutil.ChunkIDs(ids) {
		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}
		query := fmt.Sprintf("SELECT vocab_id, label_en FROM vocabulary WHERE vocab_id IN (%s)", dbutil.Placeholders(len(chunk)))
		rows, err := e.db.QueryContext(ctx, query, args...)
		if err != nil {
			return "", fmt.Errorf("shortest label lookup: %w", err)
		}
		for rows.Next() {
			var l labeled
			if err := rows.Scan(&l.id, &l.label); err != nil {
				rows.Close()
				return "", err
			}
			candidates = append(candidates, l)
		}
		rows.Close()
	}
	if len(candidates) == 0 {
		return "", nil
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return len(candidates[i].label) < len(candidates[j].label)
	})
	return candidates[0].id, nil
}

// resolveGeoFilter implements the geospatial proximity filter:
// nearLat/nearLon take precedence over
// nearPlace when both are present (with a warning), the radius is
// clamped, candidates are culled with a bounding box then re-filtered
// with precise Haversine distance, and the set is restricted to objects
// whose subject/spatial mapping names a place (mutually exclusive
// concern: a nearPlace combined with depictedPlace/productionPlace is
// flagged, since both constrain the same mapping rows).
func (e *Engine) resolveGeoFilter(ctx context.Context, f *Filters) (*objectSet, []string, error) {
	if f.NearPlace == "" && f.NearLat == nil {
		return nil, nil, nil
	}

	var warnings []string
	if f.DepictedPlace != "" || f.ProductionPlace != "" {
		warnings = append(warnings, "nearPlace/nearLat overlaps with depictedPlace/productionPlace; both constrain the same place mapping and may double-filter")
	}

	lat, lon := f.NearLat, f.NearLon
	if lat == nil || lon == nil {
		if f.NearPlace == "" {
			return nil, warnings, nil
		}
		ids, w, err := e.resolveVocabTerm(ctx, f.NearPlace, core.VocabTermPlace)
		if err != nil {
			return nil, nil, err
		}
		warnings = append(warnings, w...)
		if len(ids) == 0 {
			return &objectSet{ids: nil}, warnings, nil
		}
		term, err := e.vocabTermByID(ctx, ids[0])
		if err != nil {
			return nil, nil, err
		}
		if term.Lat == nil || term.Lon == nil {
			warnings = append(warnings, fmt.Sprintf("nearPlace %q has no known coordinates", f.NearPlace))
			return &objectSet{ids: nil}, warnings, nil
		}
		lat, lon = term.Lat, term.Lon
	} else if f.NearPlace != "" {
		warnings = append(warnings, "nearLat/nearLon take precedence over nearPlace when both are supplied")
	}

	radius := geo.ClampRadius(f.NearPlaceRadius)
	if radius != f.NearPlaceRadius && f.NearPlaceRadius != 0 {
		warnings = append(warnings, fmt.Sprintf("nearPlaceRadius clamped to %.1fkm", radius))
	}
	box := geo.Box(*lat, *lon, radius)

	rows, err := e.db.QueryContext(ctx, "SELECT vocab_id, lat, lon FROM vocabulary WHERE type = ? AND lat BETWEEN ? AND ? AND lon BETWEEN ? AND ?",
		string(core.VocabTermPlace), box.MinLat, box.MaxLat, box.MinLon, box.MaxLon)
	if err != nil {
		return nil, nil, fmt.Errorf("geo bounding box query: %w", err)
	}
	var nearbyVocabIDs []string
	for rows.Next() {
		var id string
		var plat, plon float64
		if err := rows.Scan(&id, &plat, &plon); err != nil {
			rows.Close()
			return nil, nil, err
		}
		if geo.HaversineKM(*lat, *lon, plat, plon) <= radius {
			nearbyVocabIDs = append(nearbyVocabIDs, id)
		}
	}
	rows.Close()

	objs, err := e.objectsForMapping(ctx, nearbyVocabIDs, core.FieldSpatial)
	if err != nil {
		return nil, nil, err
	}
	subjObjs, err := e.objectsForMapping(ctx, nearbyVocabIDs, core.FieldSubject)
	if err != nil {
		return nil, nil, err
	}
	objs = append(objs, subjObjs...)
	return &objectSet{ids: dedupe(objs)}, warnings, nil
}

func (e *Engine) vocabTermByID(ctx context.Context, vocabID string) (core.VocabularyTerm, error) {
	var t core.VocabularyTerm
	var lat, lon sql.NullFloat64
	err := e.db.QueryRowContext(ctx, "SELECT vocab_id, label_en, label_nl, lat, lon FROM vocabulary WHERE vocab_id = ?", vocabID).
		Scan(&t.VocabID, &t.LabelEN, &t.LabelNL, &lat, &lon)
	if err != nil {
		return t, fmt.Errorf("vocabulary term lookup: %w", err)
	}
	if lat.Valid {
		v := lat.Float64
		t.Lat = &v
	}
	if lon.Valid {
		v := lon.Float64
		t.Lon = &v
	}
	t.Type = core.VocabTermPlace
	return t, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
