package linkedart

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/rijksmuseum/rijksdata-retrieval/internal/core"
)

// resolveConcurrency bounds in-flight vocabulary dereferences per object,
// mirroring the errgroup.SetLimit fan-out pattern used for the museum
// provider's batched object-detail fetches.
const resolveConcurrency = 8

// resolveVocabulary collects every URI in the object graph that needs a
// human label, resolves them all in
// parallel, and fills in the corresponding ArtworkDetail fields.
func (c *Client) resolveVocabulary(ctx context.Context, n *rawNode, d *core.ArtworkDetail) error {
	visualItem, err := c.fetchVisualItem(ctx, n)
	if err != nil {
		return err
	}

	uris := collectURIs(n, visualItem)
	if len(uris) == 0 {
		return nil
	}

	resolved := make(map[string]core.ResolvedTerm, len(uris))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(resolveConcurrency)
	for _, uri := range uris {
		uri := uri
		g.Go(func() error {
			term, err := c.resolveTerm(gctx, uri)
			if err != nil {
				return err
			}
			mu.Lock()
			resolved[uri] = term
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, ca := range n.ClassifiedAs {
		if t, ok := resolved[ca.ID]; ok {
			d.ObjectTypes = append(d.ObjectTypes, t)
		}
	}
	for _, m := range n.MadeOf {
		if t, ok := resolved[m.ID]; ok {
			d.Materials = append(d.Materials, t)
		}
	}
	for _, m := range n.MemberOf {
		if t, ok := resolved[m.ID]; ok {
			d.CollectionSets = append(d.CollectionSets, t)
		}
	}
	if n.ProducedBy != nil {
		for _, part := range n.ProducedBy.Part {
			pp := core.ProductionPart{}
			if len(part.CarriedOutBy) > 0 {
				if t, ok := resolved[part.CarriedOutBy[0].ID]; ok {
					pp.ActorLabel, pp.ActorURI = t.Label, t.URI
				}
			}
			if len(part.Technique) > 0 {
				if t, ok := resolved[part.Technique[0].ID]; ok {
					pp.RoleLabel = t.Label
				}
			}
			if len(part.TookPlaceAt) > 0 {
				if t, ok := resolved[part.TookPlaceAt[0].ID]; ok {
					pp.PlaceLabel, pp.PlaceURI = t.Label, t.URI
				}
			}
			for _, id := range part.IdentifiedBy {
				if hasLanguage(id.Language, langEnglish) {
					pp.StatementEN = id.Content
					break
				}
			}
			d.ProductionParts = append(d.ProductionParts, pp)
		}
	}
	for _, dim := range n.Dimension {
		entry := core.DimensionEntry{Value: dim.Value}
		if t, ok := resolved[classificationID(dim.ClassifiedAs)]; ok {
			entry.TypeLabel = t.Label
		}
		if dim.Unit != nil {
			if t, ok := resolved[dim.Unit.ID]; ok {
				entry.Unit = t.Label
			}
		}
		d.Dimensions = append(d.Dimensions, entry)
	}
	if visualItem != nil {
		for _, about := range visualItem.About {
			if t, ok := resolved[about.ID]; ok {
				d.Subjects = append(d.Subjects, t)
			}
		}
	}
	return nil
}

func classificationID(cs []rawClassification) string {
	if len(cs) == 0 {
		return ""
	}
	return cs[0].ID
}

func collectURIs(n *rawNode, visualItem *rawNode) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(id string) {
		if id == "" || seen[id] {
			return
		}
		seen[id] = true
		out = append(out, id)
	}

	for _, c := range n.ClassifiedAs {
		add(c.ID)
	}
	for _, m := range n.MadeOf {
		add(m.ID)
	}
	for _, m := range n.MemberOf {
		add(m.ID)
	}
	if n.ProducedBy != nil {
		for _, part := range n.ProducedBy.Part {
			for _, r := range part.CarriedOutBy {
				add(r.ID)
			}
			for _, r := range part.Technique {
				add(r.ID)
			}
			for _, r := range part.TookPlaceAt {
				add(r.ID)
			}
		}
	}
	for _, dim := range n.Dimension {
		add(classificationID(dim.ClassifiedAs))
		if dim.Unit != nil {
			add(dim.Unit.ID)
		}
	}
	if visualItem != nil {
		for _, about := range visualItem.About {
			add(about.ID)
		}
	}
	return out
}

// fetchVisualItem follows the first `shows` link, if present, so its
// `about` subjects can be resolved alongside the rest of the vocabulary.
func (c *Client) fetchVisualItem(ctx context.Context, n *rawNode) (*rawNode, error) {
	if len(n.Shows) == 0 {
		return nil, nil
	}
	vi, err := c.fetchNode(ctx, n.Shows[0].ID, c.imageChainTTL)
	if err != nil {
		return nil, nil // missing link returns null without raising
	}
	return vi, nil
}

// resolveTerm dereferences a single vocabulary concept URI into a
// ResolvedTerm, applying the label fallback chain (English name -> Dutch
// name -> _label -> trailing URI path segment) and building the
// authority-keyed equivalents map.
func (c *Client) resolveTerm(ctx context.Context, uri string) (core.ResolvedTerm, error) {
	node, err := c.fetchNode(ctx, uri, c.vocabTermTTL)
	if err != nil {
		return core.ResolvedTerm{URI: uri, Label: trailingSegment(uri)}, nil
	}

	label := ""
	for _, id := range node.IdentifiedBy {
		if id.Type != "Name" {
			continue
		}
		if hasLanguage(id.Language, langEnglish) {
			label = id.Content
			break
		}
	}
	if label == "" {
		for _, id := range node.IdentifiedBy {
			if id.Type == "Name" && hasLanguage(id.Language, langDutch) {
				label = id.Content
				break
			}
		}
	}
	if label == "" {
		label = node.Label
	}
	if label == "" {
		label = trailingSegment(uri)
	}

	equivalents := make(map[string]string, len(node.Equivalent))
	for _, eq := range node.Equivalent {
		authority := classifyAuthority(eq.ID)
		if authority != "" {
			equivalents[authority] = eq.ID
		}
	}

	return core.ResolvedTerm{URI: uri, Label: label, Equivalents: equivalents}, nil
}

func classifyAuthority(uri string) string {
	switch {
	case strings.Contains(uri, "vocab.getty.edu/aat"):
		return "aat"
	case strings.Contains(uri, "wikidata.org"):
		return "wikidata"
	case strings.Contains(uri, "iconclass.org"):
		return "iconclass"
	default:
		return ""
	}
}

func trailingSegment(uri string) string {
	uri = strings.TrimRight(uri, "/")
	idx := strings.LastIndex(uri, "/")
	if idx == -1 {
		return uri
	}
	return uri[idx+1:]
}
