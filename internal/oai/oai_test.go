package oai

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

const sampleRecordXML = `<?xml version="1.0" encoding="UTF-8"?>
<OAI-PMH xmlns="http://www.openarchives.org/OAI/2.0/">
  <ListRecords>
    <record>
      <header>
        <identifier>oai:rijksmuseum.nl:SK-C-5</identifier>
        <datestamp>2024-01-15T10:00:00Z</datestamp>
        <setSpec>paintings</setSpec>
      </header>
      <metadata>
        <rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#"
                 xmlns:edm="http://www.europeana.eu/schemas/edm/"
                 xmlns:dc="http://purl.org/dc/elements/1.1/"
                 xmlns:dcterms="http://purl.org/dc/terms/"
                 xmlns:skos="http://www.w3.org/2004/02/skos/core#">
          <edm:ProvidedCHO rdf:about="https://id.rijksmuseum.nl/SK-C-5">
            <dc:identifier>SK-C-5</dc:identifier>
            <dc:title xml:lang="en">The Night Watch</dc:title>
            <dc:description xml:lang="en">A famous painting</dc:description>
            <dcterms:created xml:lang="en">1642</dcterms:created>
            <dc:creator rdf:resource="https://id.rijksmuseum.nl/agent/rembrandt"/>
            <dc:subject rdf:resource="https://id.rijksmuseum.nl/concept/73D82"/>
            <dc:type rdf:resource="https://id.rijksmuseum.nl/concept/painting"/>
          </edm:ProvidedCHO>
          <edm:Agent rdf:about="https://id.rijksmuseum.nl/agent/rembrandt">
            <skos:prefLabel xml:lang="en">Rembrandt van Rijn</skos:prefLabel>
            <edm:begin>1606</edm:begin>
            <edm:end>1669</edm:end>
            <owl:sameAs rdf:resource="https://viaf.org/viaf/12345"/>
          </edm:Agent>
          <skos:Concept rdf:about="https://id.rijksmuseum.nl/concept/73D82">
            <skos:prefLabel xml:lang="en">Crucifixion</skos:prefLabel>
            <skos:altLabel>73D82</skos:altLabel>
          </skos:Concept>
          <skos:Concept rdf:about="https://id.rijksmuseum.nl/concept/painting">
            <skos:prefLabel xml:lang="en">painting</skos:prefLabel>
          </skos:Concept>
          <ore:Aggregation rdf:about="https://data.rijksmuseum.nl/aggregation/SK-C-5"
                            xmlns:ore="http://www.openarchives.org/ore/terms/">
            <edm:isShownBy rdf:resource="https://iiif.rijksmuseum.nl/SK-C-5/full.jpg"/>
          </ore:Aggregation>
          <edm:WebResource rdf:about="https://iiif.rijksmuseum.nl/SK-C-5/full.jpg">
            <svcs:has_service rdf:resource="https://iiif.rijksmuseum.nl/SK-C-5/info.json"
                               xmlns:svcs="http://rdfs.org/sioc/services#"/>
          </edm:WebResource>
        </rdf:RDF>
      </metadata>
    </record>
    <resumptionToken completeListSize="830000">tok-page-2</resumptionToken>
  </ListRecords>
</OAI-PMH>`

const noRecordsMatchXML = `<?xml version="1.0" encoding="UTF-8"?>
<OAI-PMH xmlns="http://www.openarchives.org/OAI/2.0/">
  <error code="noRecordsMatch">No records match</error>
</OAI-PMH>`

const badVerbXML = `<?xml version="1.0" encoding="UTF-8"?>
<OAI-PMH xmlns="http://www.openarchives.org/OAI/2.0/">
  <error code="badVerb">Illegal OAI verb</error>
</OAI-PMH>`

func TestListRecordsParsesObjectNumberAndFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/xml")
		_, _ = w.Write([]byte(sampleRecordXML))
	}))
	defer srv.Close()

	client := New(srv.URL, 5*time.Second)
	result, err := client.ListRecords(context.Background(), ListRecordsParams{})
	if err != nil {
		t.Fatalf("ListRecords: %v", err)
	}
	if len(result.Records) != 1 {
		t.Fatalf("got %d records, want 1", len(result.Records))
	}

	rec := result.Records[0]
	if rec.ObjectNumber != "SK-C-5" {
		t.Errorf("ObjectNumber = %q, want SK-C-5", rec.ObjectNumber)
	}
	if rec.Title != "The Night Watch" {
		t.Errorf("Title = %q", rec.Title)
	}
	if rec.Creator == nil || rec.Creator.Label != "Rembrandt van Rijn" {
		t.Fatalf("Creator = %+v", rec.Creator)
	}
	if rec.Creator.BirthDate != "1606" || rec.Creator.DeathDate != "1669" {
		t.Errorf("Creator dates = %s/%s", rec.Creator.BirthDate, rec.Creator.DeathDate)
	}
	if rec.Creator.Authority["viaf"] == "" {
		t.Errorf("expected VIAF authority link")
	}
	if len(rec.Subjects) != 1 || rec.Subjects[0].Kind != "iconclass" {
		t.Errorf("Subjects = %+v, want one iconclass subject", rec.Subjects)
	}
	if result.ResumptionToken != "tok-page-2" {
		t.Errorf("ResumptionToken = %q, want tok-page-2", result.ResumptionToken)
	}
	if result.CompleteListSize != 830000 {
		t.Errorf("CompleteListSize = %d, want 830000", result.CompleteListSize)
	}
	if rec.PrimaryImage != "https://iiif.rijksmuseum.nl/SK-C-5/full.jpg" {
		t.Errorf("PrimaryImage = %q", rec.PrimaryImage)
	}
	if rec.IIIFServiceURL != "https://iiif.rijksmuseum.nl/SK-C-5/info.json" {
		t.Errorf("IIIFServiceURL = %q, want the has_service target, not the raw image URL", rec.IIIFServiceURL)
	}
}

func TestObjectNumberEmptyWhenNoIdentifier(t *testing.T) {
	xmlBody := strings.Replace(sampleRecordXML, "<dc:identifier>SK-C-5</dc:identifier>", "", 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(xmlBody))
	}))
	defer srv.Close()

	client := New(srv.URL, 5*time.Second)
	result, err := client.ListRecords(context.Background(), ListRecordsParams{})
	if err != nil {
		t.Fatalf("ListRecords: %v", err)
	}
	if result.Records[0].ObjectNumber != "" {
		t.Errorf("ObjectNumber = %q, want empty when dc:identifier is absent", result.Records[0].ObjectNumber)
	}
}

func TestNoRecordsMatchIsEmptySuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(noRecordsMatchXML))
	}))
	defer srv.Close()

	client := New(srv.URL, 5*time.Second)
	result, err := client.ListRecords(context.Background(), ListRecordsParams{})
	if err != nil {
		t.Fatalf("expected no error for noRecordsMatch, got %v", err)
	}
	if len(result.Records) != 0 {
		t.Errorf("expected zero records")
	}
}

func TestOtherOAIErrorsSurface(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(badVerbXML))
	}))
	defer srv.Close()

	client := New(srv.URL, 5*time.Second)
	_, err := client.ListRecords(context.Background(), ListRecordsParams{})
	if err == nil {
		t.Fatalf("expected an error for badVerb")
	}
	if !strings.Contains(err.Error(), "badVerb") {
		t.Errorf("error should mention the OAI-PMH error code, got: %v", err)
	}
}

func TestResumptionTokenOverridesOtherParams(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(noRecordsMatchXML))
	}))
	defer srv.Close()

	client := New(srv.URL, 5*time.Second)
	_, err := client.ListRecords(context.Background(), ListRecordsParams{
		Set:             "paintings",
		From:             "2024-01-01",
		ResumptionToken:  "tok-xyz",
	})
	if err != nil {
		t.Fatalf("ListRecords: %v", err)
	}
	if !strings.Contains(gotQuery, "resumptionToken=tok-xyz") {
		t.Errorf("expected resumptionToken in query, got %q", gotQuery)
	}
	if strings.Contains(gotQuery, "set=") || strings.Contains(gotQuery, "from=") {
		t.Errorf("resumptionToken must override set/from, got query %q", gotQuery)
	}
}
