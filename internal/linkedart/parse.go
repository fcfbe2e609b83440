package linkedart

import (
	"strconv"
	"strings"

	"github.com/rijksmuseum/rijksdata-retrieval/internal/core"
)

var (
	classBriefText  = aatClass{ID: "http://vocab.getty.edu/aat/300418049", Label: "Brief Text"}
	classFullText   = aatClass{ID: "http://vocab.getty.edu/aat/300418086", Label: "Full Text"}
	classObjectNum  = aatClass{ID: "http://vocab.getty.edu/aat/300312355", Label: "Object number"}
	classDesc       = aatClass{ID: "http://vocab.getty.edu/aat/300435416", Label: "Description"}
	classProvenance = aatClass{ID: "http://vocab.getty.edu/aat/300055863", Label: "Provenance"}
	classCreditLine = aatClass{ID: "http://vocab.getty.edu/aat/300435418", Label: "Credit Line"}
	classInscript   = aatClass{ID: "http://vocab.getty.edu/aat/300435414", Label: "Inscription"}
	classTechnique  = aatClass{ID: "http://vocab.getty.edu/aat/300435429", Label: "Technique Statement"}
	classDimStmt    = aatClass{ID: "http://vocab.getty.edu/aat/300435430", Label: "Dimensions Statement"}
	classNarrative  = aatClass{ID: "http://vocab.getty.edu/aat/300048722", Label: "Narrative"}
	classCreatorDsc = aatClass{ID: "http://vocab.getty.edu/aat/300435446", Label: "Creator Description Statement"}
	classCreatorStm = aatClass{ID: "http://vocab.getty.edu/aat/300435427", Label: "Attribution Statement"}
	classCitation   = aatClass{ID: "http://vocab.getty.edu/aat/300311705", Label: "Citation"}
)

// parseObject extracts every statement-shaped attribute directly from an
// already-fetched Object document. Fields
// needing a further dereference (object types, materials, production
// actors/techniques/places, dimension units/types, collection sets,
// visual-item subjects) are left unresolved here and filled in by
// resolveVocabulary.
func (c *Client) parseObject(n *rawNode) *core.ArtworkDetail {
	d := &core.ArtworkDetail{
		URI:          n.ID,
		ObjectNumber: firstIdentifierByClass(n.IdentifiedBy, classObjectNum),
		Titles:       allTitles(n.IdentifiedBy),
	}
	d.Title = preferredTitle(n.IdentifiedBy)
	d.Creator = preferredCreator(n)
	d.Date = preferredDate(n.ProducedBy)

	d.Description = firstStatementByClass(n.ReferredToBy, classDesc)
	d.Provenance = firstStatementByClass(n.ReferredToBy, classProvenance)
	d.CreditLine = firstStatementByClass(n.ReferredToBy, classCreditLine)
	d.Inscriptions = firstStatementByClass(n.ReferredToBy, classInscript)
	d.Technique = firstStatementByClass(n.ReferredToBy, classTechnique)
	d.DimensionStatement = firstStatementByClass(n.ReferredToBy, classDimStmt)

	d.CuratorialNarrative = curatorialNarrative(n.SubjectOf)
	d.License = license(n.SubjectOf)
	d.WebPage = webPage(n.SubjectOf)

	d.RelatedObjects = relatedObjects(n.AttributedBy)

	return d
}

func preferredTitle(names []rawIdentified) string {
	var anyEnglish, dutchBrief, firstAny string
	for _, name := range names {
		if name.Type != "Name" {
			continue
		}
		if firstAny == "" {
			firstAny = name.Content
		}
		english := hasLanguage(name.Language, langEnglish)
		brief := hasClassification(name.ClassifiedAs, classBriefText)
		if english && brief {
			return name.Content
		}
		if english && anyEnglish == "" {
			anyEnglish = name.Content
		}
		if !english && hasLanguage(name.Language, langDutch) && brief && dutchBrief == "" {
			dutchBrief = name.Content
		}
	}
	switch {
	case anyEnglish != "":
		return anyEnglish
	case dutchBrief != "":
		return dutchBrief
	case firstAny != "":
		return firstAny
	default:
		return "Untitled"
	}
}

func allTitles(names []rawIdentified) []core.NameEntry {
	var out []core.NameEntry
	for _, name := range names {
		if name.Type != "Name" {
			continue
		}
		lang := "other"
		switch {
		case hasLanguage(name.Language, langEnglish):
			lang = "en"
		case hasLanguage(name.Language, langDutch):
			lang = "nl"
		}
		qualifier := "other"
		switch {
		case hasClassification(name.ClassifiedAs, classBriefText):
			qualifier = "brief"
		case hasClassification(name.ClassifiedAs, classFullText):
			qualifier = "full"
		}
		out = append(out, core.NameEntry{Value: name.Content, Lang: lang, Qualifier: qualifier})
	}
	return out
}

func firstIdentifierByClass(ids []rawIdentified, class aatClass) string {
	for _, id := range ids {
		if id.Type == "Identifier" && hasClassification(id.ClassifiedAs, class) {
			return id.Content
		}
	}
	return ""
}

func preferredCreator(n *rawNode) string {
	if n.ProducedBy == nil {
		return "Unknown"
	}
	var anyEnglishDesc, anyEnglishStmt, anyStmt string
	for _, part := range n.ProducedBy.Part {
		for _, id := range part.IdentifiedBy {
			english := hasLanguage(id.Language, langEnglish)
			if hasClassification(id.ClassifiedAs, classCreatorDsc) {
				if english && anyEnglishDesc == "" {
					anyEnglishDesc = id.Content
				}
			}
			if hasClassification(id.ClassifiedAs, classCreatorStm) {
				if anyStmt == "" {
					anyStmt = id.Content
				}
				if english && anyEnglishStmt == "" {
					anyEnglishStmt = id.Content
				}
			}
		}
	}
	switch {
	case anyEnglishDesc != "":
		return anyEnglishDesc
	case anyEnglishStmt != "":
		return anyEnglishStmt
	case anyStmt != "":
		return anyStmt
	default:
		return "Unknown"
	}
}

func preferredDate(prod *rawProduction) string {
	if prod == nil || prod.Timespan == nil {
		return "Unknown"
	}
	ts := prod.Timespan
	var anyLabel string
	for _, id := range ts.IdentifiedBy {
		if id.Type != "Name" {
			continue
		}
		if anyLabel == "" {
			anyLabel = id.Content
		}
		if hasLanguage(id.Language, langEnglish) {
			return id.Content
		}
	}
	if anyLabel != "" {
		return anyLabel
	}
	if len(ts.BeginOfTheBegin) >= 4 {
		if _, err := strconv.Atoi(ts.BeginOfTheBegin[:4]); err == nil {
			return ts.BeginOfTheBegin[:4]
		}
	}
	return "Unknown"
}

func firstStatementByClass(stmts []rawStatement, class aatClass) string {
	var any string
	for _, s := range stmts {
		if !hasClassification(s.ClassifiedAs, class) {
			continue
		}
		if any == "" {
			any = s.Content
		}
		if hasLanguage(s.Language, langEnglish) {
			return s.Content
		}
	}
	return any
}

func curatorialNarrative(subjectOf []rawSubjectOf) string {
	var b strings.Builder
	for _, so := range subjectOf {
		for _, part := range so.Part {
			if !hasClassification(part.ClassifiedAs, classNarrative) {
				continue
			}
			if b.Len() > 0 {
				b.WriteString("\n\n")
			}
			b.WriteString(part.Content)
		}
	}
	return b.String()
}

func license(subjectOf []rawSubjectOf) string {
	for _, so := range subjectOf {
		if len(so.SubjectTo) > 0 {
			return so.SubjectTo[0].ID
		}
	}
	return ""
}

func webPage(subjectOf []rawSubjectOf) string {
	for _, so := range subjectOf {
		for _, dco := range so.DigitallyCarriedBy {
			if dco.Format != "text/html" {
				continue
			}
			if len(dco.AccessPoint) > 0 {
				return dco.AccessPoint[0].ID
			}
		}
	}
	return ""
}

func relatedObjects(refs []rawRef) []core.RelatedObject {
	seen := make(map[string]bool, len(refs))
	var out []core.RelatedObject
	for _, r := range refs {
		if r.ID == "" || seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		out = append(out, core.RelatedObject{URI: r.ID, Label: r.Label})
	}
	return out
}
