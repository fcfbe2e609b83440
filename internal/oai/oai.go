// Package oai parses the museum's OAI-PMH EDM/RDF change feed into flat
// core.OAIRecord values: plain HTTP GET requests (no ETag/Last-Modified
// conditional requests) and the encoding/xml struct-tag parsing used for
// syndication feeds elsewhere
// in this codebase, generalized from RSS/Atom to the OAI-PMH verbs and
// the EDM entity graph.
package oai

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rijksmuseum/rijksdata-retrieval/internal/apperrors"
	"github.com/rijksmuseum/rijksdata-retrieval/internal/core"
)

// Client fetches and parses OAI-PMH EDM responses.
type Client struct {
	httpClient *http.Client
	endpoint   string
}

// New returns a Client targeting endpoint, with the given request timeout.
func New(endpoint string, timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		endpoint:   endpoint,
	}
}

// ListRecordsParams selects a page of listRecords. ResumptionToken, when
// set, overrides every other parameter per OAI-PMH semantics.
type ListRecordsParams struct {
	Set             string
	From            string
	Until           string
	ResumptionToken string
}

// ListRecordsResult is one page of the change feed.
type ListRecordsResult struct {
	Records          []core.OAIRecord
	ResumptionToken  string
	CompleteListSize int
}

// ListSets returns the feed's set hierarchy.
func (c *Client) ListSets(ctx context.Context) ([]Set, error) {
	body, err := c.request(ctx, map[string]string{"verb": "ListSets"})
	if err != nil {
		return nil, err
	}
	envelope, err := decodeEnvelope(body)
	if err != nil {
		return nil, err
	}
	if err := checkOAIError(envelope); err != nil {
		if err == errNoRecordsMatch {
			return nil, nil
		}
		return nil, err
	}
	return envelope.ListSets.Sets, nil
}

// ListRecords fetches one page of full records.
func (c *Client) ListRecords(ctx context.Context, p ListRecordsParams) (*ListRecordsResult, error) {
	return c.listRecordsVerb(ctx, "ListRecords", p)
}

// ListIdentifiers fetches one page of header-only records. Only the header
// fields are filled (LOD URI from the OAI identifier, datestamp, set
// memberships, deleted status); object number and all metadata fields are
// left zero.
func (c *Client) ListIdentifiers(ctx context.Context, p ListRecordsParams) (*ListRecordsResult, error) {
	return c.listRecordsVerb(ctx, "ListIdentifiers", p)
}

func (c *Client) listRecordsVerb(ctx context.Context, verb string, p ListRecordsParams) (*ListRecordsResult, error) {
	params := map[string]string{"verb": verb}
	if p.ResumptionToken != "" {
		params["resumptionToken"] = p.ResumptionToken
	} else {
		params["metadataPrefix"] = "edm"
		if p.Set != "" {
			params["set"] = p.Set
		}
		if p.From != "" {
			params["from"] = p.From
		}
		if p.Until != "" {
			params["until"] = p.Until
		}
	}

	body, err := c.request(ctx, params)
	if err != nil {
		return nil, err
	}
	envelope, err := decodeEnvelope(body)
	if err != nil {
		return nil, err
	}
	if err := checkOAIError(envelope); err != nil {
		if err == errNoRecordsMatch {
			return &ListRecordsResult{}, nil
		}
		return nil, err
	}

	var rawRecords []rawRecord
	var tok resumptionToken
	if verb == "ListRecords" {
		rawRecords = envelope.ListRecords.Records
		tok = envelope.ListRecords.ResumptionToken
	} else {
		rawRecords = envelope.ListIdentifiers.Records
		tok = envelope.ListIdentifiers.ResumptionToken
	}

	records := make([]core.OAIRecord, 0, len(rawRecords))
	for _, rr := range rawRecords {
		records = append(records, parseRecord(rr))
	}

	size, _ := strconv.Atoi(tok.CompleteListSize)
	return &ListRecordsResult{
		Records:          records,
		ResumptionToken:  tok.Value,
		CompleteListSize: size,
	}, nil
}

func (c *Client) request(ctx context.Context, params map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return nil, apperrors.NewExternalError("oai.request", c.endpoint, 0, err)
	}
	q := req.URL.Query()
	for k, v := range params {
		q.Set(k, v)
	}
	req.URL.RawQuery = q.Encode()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.NewExternalError("oai.request", req.URL.String(), 0, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.NewExternalError("oai.request", req.URL.String(), resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.NewExternalError("oai.request", req.URL.String(), resp.StatusCode, fmt.Errorf("non-2xx response"))
	}
	return body, nil
}

var errNoRecordsMatch = fmt.Errorf("noRecordsMatch")

func checkOAIError(e *envelope) error {
	if e.Error == nil {
		return nil
	}
	if e.Error.Code == "noRecordsMatch" {
		return errNoRecordsMatch
	}
	return apperrors.NewExternalError("oai.response", "", 0, fmt.Errorf("%s: %s", e.Error.Code, e.Error.Message))
}

func decodeEnvelope(body []byte) (*envelope, error) {
	var e envelope
	if err := xml.Unmarshal(body, &e); err != nil {
		return nil, apperrors.NewExternalError("oai.decode", "", 0, fmt.Errorf("xml decode: %w", err))
	}
	return &e, nil
}

// --- XML envelope types ---

type envelope struct {
	XMLName         xml.Name        `xml:"OAI-PMH"`
	Error           *oaiError       `xml:"error"`
	ListSets        listSetsXML     `xml:"ListSets"`
	ListRecords     listRecordsXML  `xml:"ListRecords"`
	ListIdentifiers listRecordsXML  `xml:"ListIdentifiers"`
}

type oaiError struct {
	Code    string `xml:"code,attr"`
	Message string `xml:",chardata"`
}

type listSetsXML struct {
	Sets []Set `xml:"set"`
}

// Set is one OAI-PMH set descriptor.
type Set struct {
	SetSpec string `xml:"setSpec" json:"setSpec"`
	SetName string `xml:"setName" json:"setName"`
}

type listRecordsXML struct {
	Records         []rawRecord     `xml:"record"`
	ResumptionToken resumptionToken `xml:"resumptionToken"`
}

type resumptionToken struct {
	Value            string `xml:",chardata"`
	CompleteListSize string `xml:"completeListSize,attr"`
}

type rawRecord struct {
	Header   recordHeader `xml:"header"`
	Metadata rawMetadata  `xml:"metadata"`
}

type recordHeader struct {
	Status    string   `xml:"status,attr"`
	Identifier string  `xml:"identifier"`
	Datestamp string   `xml:"datestamp"`
	SetSpecs  []string `xml:"setSpec"`
}

type rawMetadata struct {
	RDF rdfXML `xml:"RDF"`
}

type rdfXML struct {
	ProvidedCHO  []providedCHO    `xml:"ProvidedCHO"`
	Aggregation  []aggregation    `xml:"Aggregation"`
	WebResources []webResourceXML `xml:"WebResource"`
	Descriptions []description    `xml:"Description"`
	Concepts     []conceptXML     `xml:"Concept"`
	Places       []placeXML       `xml:"Place"`
	Agents       []agentXML       `xml:"Agent"`
}

type providedCHO struct {
	About       string     `xml:"about,attr"`
	Identifier  []string   `xml:"identifier"`
	Title       []langStr  `xml:"title"`
	Description []langStr  `xml:"description"`
	Date        []langStr  `xml:"date"`
	Created     []langStr  `xml:"created"`
	Extent      []langStr  `xml:"extent"`
	Type        []resRef   `xml:"type"`
	Medium      []resRef   `xml:"medium"`
	Creator     []resRef   `xml:"creator"`
	Subject     []resRef   `xml:"subject"`
	IsPartOf    []resRef   `xml:"isPartOf"`
	RightsURI   []resRef   `xml:"rights"`
}

type aggregation struct {
	About     string `xml:"about,attr"`
	IsShownBy resRef `xml:"isShownBy"`
	Object    resRef `xml:"object"`
}

// webResourceXML is the edm:WebResource sibling node an aggregation's
// isShownBy points at by rdf:resource; its svcs:has_service property is
// the IIIF image service base, distinct from the resource's own (raw
// image) URL.
type webResourceXML struct {
	About      string `xml:"about,attr"`
	HasService resRef `xml:"has_service"`
}

type description struct {
	About   string    `xml:"about,attr"`
	Label   []langStr `xml:"label"`
	AltLabel []langStr `xml:"altLabel"`
}

type conceptXML struct {
	About    string    `xml:"about,attr"`
	PrefLabel []langStr `xml:"prefLabel"`
	AltLabel  []langStr `xml:"altLabel"`
}

type placeXML struct {
	About string    `xml:"about,attr"`
	Label []langStr `xml:"prefLabel"`
}

type agentXML struct {
	About     string    `xml:"about,attr"`
	PrefLabel []langStr `xml:"prefLabel"`
	BeginDate []langStr `xml:"begin"`
	EndDate   []langStr `xml:"end"`
	SameAs    []resRef  `xml:"sameAs"`
}

type langStr struct {
	Lang  string `xml:"lang,attr"`
	Value string `xml:",chardata"`
}

type resRef struct {
	Resource string `xml:"resource,attr"`
	Value    string `xml:",chardata"`
}

// --- EDM -> core.OAIRecord ---

// entityKind tags which EDM element an entity node came from, so typed
// subjects can be classified without guessing from field presence.
type entityKind string

const (
	entityDescription entityKind = "description"
	entityConcept     entityKind = "concept"
	entityPlace       entityKind = "place"
	entityAgent       entityKind = "agent"
)

// entity is the union of rdf:Description/skos:Concept/edm:Place/edm:Agent
// nodes, keyed by rdf:about, used to resolve resource references.
type entity struct {
	kind      entityKind
	label     map[string]string // lang -> label
	altLabels []string
	beginDate string
	endDate   string
	sameAs    []string
}

func buildEntityMap(r rdfXML) map[string]entity {
	m := make(map[string]entity)
	for _, d := range r.Descriptions {
		m[d.About] = entity{kind: entityDescription, label: langMap(d.Label), altLabels: langValues(d.AltLabel)}
	}
	for _, c := range r.Concepts {
		m[c.About] = entity{kind: entityConcept, label: langMap(c.PrefLabel), altLabels: langValues(c.AltLabel)}
	}
	for _, p := range r.Places {
		m[p.About] = entity{kind: entityPlace, label: langMap(p.Label)}
	}
	for _, a := range r.Agents {
		e := entity{kind: entityAgent, label: langMap(a.PrefLabel)}
		if len(a.BeginDate) > 0 {
			e.beginDate = a.BeginDate[0].Value
		}
		if len(a.EndDate) > 0 {
			e.endDate = a.EndDate[0].Value
		}
		for _, s := range a.SameAs {
			if s.Resource != "" {
				e.sameAs = append(e.sameAs, s.Resource)
			}
		}
		m[a.About] = e
	}
	return m
}

func langMap(vals []langStr) map[string]string {
	m := make(map[string]string, len(vals))
	for _, v := range vals {
		lang := v.Lang
		if lang == "" {
			lang = "other"
		}
		m[lang] = v.Value
	}
	return m
}

func langValues(vals []langStr) []string {
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		out = append(out, v.Value)
	}
	return out
}

func preferEnglish(m map[string]string) string {
	if v, ok := m["en"]; ok {
		return v
	}
	for _, v := range m {
		return v
	}
	return ""
}

func preferEnglishLang(vals []langStr) string {
	var any string
	for _, v := range vals {
		if v.Lang == "en" {
			return v.Value
		}
		if any == "" {
			any = v.Value
		}
	}
	return any
}

var iconclassAltLabel = regexp.MustCompile(`^\d`)

func parseRecord(rr rawRecord) core.OAIRecord {
	rec := core.OAIRecord{
		LODURI:    rr.Header.Identifier,
		Datestamp: rr.Header.Datestamp,
		Deleted:   rr.Header.Status == "deleted",
		Sets:      rr.Header.SetSpecs,
	}

	entities := buildEntityMap(rr.Metadata.RDF)

	var cho *providedCHO
	for i := range rr.Metadata.RDF.ProvidedCHO {
		cho = &rr.Metadata.RDF.ProvidedCHO[i]
		break
	}
	if cho == nil {
		return rec
	}

	if cho.About != "" {
		rec.LODURI = cho.About
	}
	if len(cho.Identifier) > 0 {
		rec.ObjectNumber = cho.Identifier[0]
	}
	rec.Title = preferEnglishLang(cho.Title)
	rec.Description = preferEnglishLang(cho.Description)
	rec.Date = preferEnglishLang(cho.Date)
	if rec.Date == "" {
		rec.Date = preferEnglishLang(cho.Created)
	}
	rec.Dimensions = preferEnglishLang(cho.Extent)
	if len(cho.Type) > 0 {
		rec.ObjectType = resolveLabel(entities, cho.Type[0])
	}
	for _, m := range cho.Medium {
		if label := resolveLabel(entities, m); label != "" {
			rec.Materials = append(rec.Materials, label)
		}
	}
	if len(cho.RightsURI) > 0 {
		rec.RightsURI = cho.RightsURI[0].Resource
	}

	if len(cho.Creator) > 0 {
		rec.Creator = buildCreator(entities, cho.Creator[0])
	}

	for _, s := range cho.Subject {
		subj := classifySubject(entities, s)
		rec.Subjects = append(rec.Subjects, subj)
	}

	webResources := buildWebResourceMap(rr.Metadata.RDF.WebResources)
	for _, agg := range rr.Metadata.RDF.Aggregation {
		if agg.IsShownBy.Resource != "" {
			rec.PrimaryImage = agg.IsShownBy.Resource
			rec.IIIFServiceURL = webResources[agg.IsShownBy.Resource]
		}
	}

	return rec
}

// buildWebResourceMap indexes edm:WebResource nodes by rdf:about to their
// svcs:has_service target, so an aggregation's isShownBy reference can be
// walked to the IIIF service URL it carries.
func buildWebResourceMap(resources []webResourceXML) map[string]string {
	m := make(map[string]string, len(resources))
	for _, r := range resources {
		if r.HasService.Resource != "" {
			m[r.About] = r.HasService.Resource
		}
	}
	return m
}

func resolveLabel(entities map[string]entity, ref resRef) string {
	if ref.Resource != "" {
		if e, ok := entities[ref.Resource]; ok {
			if label := preferEnglish(e.label); label != "" {
				return label
			}
		}
		return ref.Resource
	}
	return ref.Value
}

func buildCreator(entities map[string]entity, ref resRef) *core.OAICreator {
	label := resolveLabel(entities, ref)
	creator := &core.OAICreator{Label: label}

	e, ok := entities[ref.Resource]
	if !ok {
		return creator
	}
	creator.BirthDate = e.beginDate
	creator.DeathDate = e.endDate

	if len(e.sameAs) > 0 {
		creator.Authority = make(map[string]string)
		for _, uri := range e.sameAs {
			switch {
			case strings.Contains(uri, "viaf.org"):
				creator.Authority["viaf"] = uri
			case strings.Contains(uri, "ulan"):
				creator.Authority["ulan"] = uri
			case strings.Contains(uri, "wikidata.org"):
				creator.Authority["wikidata"] = uri
			case strings.Contains(uri, "rkd.nl"):
				creator.Authority["rkd"] = uri
			}
		}
	}
	return creator
}

func classifySubject(entities map[string]entity, ref resRef) core.OAISubject {
	label := resolveLabel(entities, ref)

	e, ok := entities[ref.Resource]
	if !ok {
		return core.OAISubject{Kind: core.OAISubjectPlace, Label: label, URI: ref.Resource}
	}

	for _, alt := range e.altLabels {
		if iconclassAltLabel.MatchString(alt) {
			return core.OAISubject{Kind: core.OAISubjectIconclass, Label: alt, URI: ref.Resource}
		}
	}

	switch e.kind {
	case entityAgent:
		return core.OAISubject{Kind: core.OAISubjectPerson, Label: label, URI: ref.Resource}
	case entityPlace:
		return core.OAISubject{Kind: core.OAISubjectPlace, Label: label, URI: ref.Resource}
	default:
		return core.OAISubject{Kind: core.OAISubjectPlace, Label: label, URI: ref.Resource}
	}
}
