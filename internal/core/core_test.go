package core

import (
	"testing"
	"time"
)

func TestArtworkDateLabel(t *testing.T) {
	year := func(y int) *int { return &y }

	tests := []struct {
		name string
		a    Artwork
		want string
	}{
		{"single year", Artwork{DateEarliest: year(1642), DateLatest: year(1642)}, "1642"},
		{"range", Artwork{DateEarliest: year(1640), DateLatest: year(1645)}, "1640–1645"},
		{"negative year", Artwork{DateEarliest: year(-50), DateLatest: year(-50)}, "-50"},
		{"missing bounds", Artwork{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.DateLabel(); got != tt.want {
				t.Errorf("DateLabel() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestVocabularyTermIsPlace(t *testing.T) {
	lat, lon := 52.3738, 4.8991
	place := VocabularyTerm{Type: VocabTermPlace, Lat: &lat, Lon: &lon}
	person := VocabularyTerm{Type: VocabTermPerson}

	if !place.IsPlace() {
		t.Errorf("expected a place-typed term to report IsPlace")
	}
	if person.IsPlace() {
		t.Errorf("expected a person-typed term to not report IsPlace")
	}
}

func TestCitationKindValues(t *testing.T) {
	cit := Citation{Kind: CitationStructured, PublicationURI: "https://example.org/publication/1"}
	if cit.Kind != CitationStructured {
		t.Errorf("Kind = %v, want structured", cit.Kind)
	}

	freeText := Citation{Kind: CitationFreeText, Formatted: "Inline citation"}
	if freeText.PublicationURI != "" {
		t.Errorf("free text citation should carry no publication URI")
	}
}

func TestArtworkDetailRoundTripFields(t *testing.T) {
	now := time.Now()
	detail := ArtworkDetail{
		URI:          "https://id.rijksmuseum.nl/SK-C-5",
		ObjectNumber: "SK-C-5",
		Title:        "The Night Watch",
		Titles: []NameEntry{
			{Value: "The Night Watch", Lang: "en", Qualifier: "brief"},
			{Value: "De Nachtwacht", Lang: "nl", Qualifier: "brief"},
		},
		Creator:    "Rembrandt van Rijn",
		Date:       "1642",
		FetchedAt:  now,
		Image:      &IIIFImage{IIIFID: "abc123", Width: 4000, Height: 5000},
		Dimensions: []DimensionEntry{{TypeLabel: "height", Value: 379.5, Unit: "cm"}},
	}

	if detail.ObjectNumber != "SK-C-5" {
		t.Errorf("ObjectNumber = %q", detail.ObjectNumber)
	}
	if len(detail.Titles) != 2 {
		t.Errorf("Titles = %+v, want 2 entries", detail.Titles)
	}
	if detail.Image == nil || detail.Image.IIIFID != "abc123" {
		t.Errorf("Image = %+v", detail.Image)
	}
	if len(detail.Dimensions) != 1 || detail.Dimensions[0].Unit != "cm" {
		t.Errorf("Dimensions = %+v", detail.Dimensions)
	}
}

func TestOAIRecordSubjectsAndCreator(t *testing.T) {
	rec := OAIRecord{
		ObjectNumber: "SK-C-5",
		Creator: &OAICreator{
			Label:     "Rembrandt van Rijn",
			BirthDate: "1606",
			DeathDate: "1669",
			Authority: map[string]string{"viaf": "https://viaf.org/viaf/12345"},
		},
		Subjects: []OAISubject{
			{Kind: OAISubjectIconclass, Label: "Crucifixion", URI: "https://id.rijksmuseum.nl/concept/73D82"},
		},
	}

	if rec.Creator.Authority["viaf"] == "" {
		t.Errorf("expected a VIAF authority link")
	}
	if len(rec.Subjects) != 1 || rec.Subjects[0].Kind != OAISubjectIconclass {
		t.Errorf("Subjects = %+v, want one iconclass subject", rec.Subjects)
	}
}

func TestSearchResultAndSemanticHitShareResultShape(t *testing.T) {
	dist := 12.4
	sr := SearchResult{ObjectNumber: "SK-C-5", Title: "The Night Watch", DistanceKM: &dist}
	hit := SemanticHit{ObjectNumber: "SK-C-5", Title: "The Night Watch", Similarity: 0.91}

	if sr.DistanceKM == nil || *sr.DistanceKM != 12.4 {
		t.Errorf("DistanceKM = %v, want 12.4", sr.DistanceKM)
	}
	if hit.Similarity != 0.91 {
		t.Errorf("Similarity = %f, want 0.91", hit.Similarity)
	}
}
