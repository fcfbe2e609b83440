package linkedart

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"

	"github.com/rijksmuseum/rijksdata-retrieval/internal/core"
)

var (
	classPages            = aatClass{ID: "http://vocab.getty.edu/aat/300312360", Label: "Pages"}
	classPublicationPlace = aatClass{ID: "http://vocab.getty.edu/aat/300008389", Label: "Place of Publication"}
	classPublicationDate  = aatClass{ID: "http://vocab.getty.edu/aat/300404480", Label: "Date of Publication"}
)

// normalizeBibliography walks assigned_by, keeps citation entries, and
// classifies/formats each.
func (c *Client) normalizeBibliography(ctx context.Context, n *rawNode) ([]core.Citation, error) {
	var entries []core.Citation
	var toDereference []int // indices into entries needing (A)/(C) dereference

	for _, a := range n.AssignedBy {
		if !hasClassification(a.ClassifiedAs, classCitation) {
			continue
		}
		cit := core.Citation{Sequence: a.Sequence}
		switch {
		case a.Assigned != nil && a.Content == "":
			cit.Kind = kindFor(a.Assigned.Type)
			cit.PublicationURI = a.Assigned.ID
			cit.Pages = firstStatementByClass(a.ReferredToBy, classPages)
			cit.Formatted = a.Assigned.Label
		default:
			cit.Kind = core.CitationFreeText
			cit.Formatted = a.Content
		}
		entries = append(entries, cit)
		if cit.Kind == core.CitationStructured || cit.Kind == core.CitationBibframe {
			toDereference = append(toDereference, len(entries)-1)
		}
	}

	if len(toDereference) > 0 {
		var mu sync.Mutex
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(resolveConcurrency)
		for _, idx := range toDereference {
			idx := idx
			uri := entries[idx].PublicationURI
			g.Go(func() error {
				pub, err := c.fetchNode(gctx, uri, c.vocabTermTTL)
				if err != nil {
					return nil // a missing publication document degrades to the bare label, not an error
				}
				formatted := formatCitation(pub)
				if formatted == "" && pub.LibraryURL != "" {
					// The Linked Art document carried no usable title; fall
					// back to scraping the library catalogue page's og:title
					// or <title>.
					if scraped, err := c.scrapeLibraryTitle(gctx, pub.LibraryURL); err == nil && scraped != "" {
						formatted = scraped
					}
				}
				mu.Lock()
				if formatted != "" {
					if entries[idx].Pages != "" {
						formatted = fmt.Sprintf("%s, %s", formatted, entries[idx].Pages)
					}
					entries[idx].Formatted = formatted
				}
				entries[idx].ISBN = pub.ISBN
				entries[idx].WorldcatURI = pub.WorldcatID
				entries[idx].LibraryURL = pub.LibraryURL
				mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		si, sj := entries[i].Sequence, entries[j].Sequence
		if si == nil && sj == nil {
			return false
		}
		if si == nil {
			return false
		}
		if sj == nil {
			return true
		}
		return *si < *sj
	})

	return entries, nil
}

// scrapeLibraryTitle is the last-resort title source for a structured
// citation whose Linked Art publication document carried no name: it
// fetches the library catalogue's HTML page and scrapes a title from it
// (og:title, then <title>, then first <h1>), since not every library
// front-end exposes its catalogue metadata as Linked Art.
func (c *Client) scrapeLibraryTitle(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("scrape %s: unexpected status %d", url, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", err
	}

	if ogTitle, ok := doc.Find(`meta[property='og:title']`).Attr("content"); ok && strings.TrimSpace(ogTitle) != "" {
		return strings.TrimSpace(ogTitle), nil
	}
	if title := strings.TrimSpace(doc.Find("head title").First().Text()); title != "" {
		return title, nil
	}
	return strings.TrimSpace(doc.Find("h1").First().Text()), nil
}

func kindFor(assignedType string) core.CitationKind {
	if assignedType == "Instance" {
		return core.CitationBibframe
	}
	return core.CitationStructured
}

// formatCitation renders "Author, Title (Location, Year)" from a
// dereferenced publication document, omitting segments it cannot fill.
// Pages is appended by the caller, since it comes from the citation
// assignment rather than the publication document itself.
func formatCitation(pub *rawNode) string {
	author := preferredCreator(pub)
	title := preferredTitle(pub.IdentifiedBy)
	if author == "Unknown" && title == "Untitled" {
		return ""
	}
	base := title
	if author != "Unknown" {
		base = fmt.Sprintf("%s, %s", author, title)
	}

	location := firstIdentifierByClass(pub.IdentifiedBy, classPublicationPlace)
	year := firstIdentifierByClass(pub.IdentifiedBy, classPublicationDate)
	switch {
	case location != "" && year != "":
		base = fmt.Sprintf("%s (%s, %s)", base, location, year)
	case location != "":
		base = fmt.Sprintf("%s (%s)", base, location)
	case year != "":
		base = fmt.Sprintf("%s (%s)", base, year)
	}
	return base
}
