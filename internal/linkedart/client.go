package linkedart

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rijksmuseum/rijksdata-retrieval/internal/apperrors"
	"github.com/rijksmuseum/rijksdata-retrieval/internal/cache"
	"github.com/rijksmuseum/rijksdata-retrieval/internal/core"
)

// Client fetches and parses Linked Art records from the museum's
// collection API. It carries no persistent state beyond its
// response cache.
type Client struct {
	httpClient *http.Client
	baseURL    string
	cache      *cache.Cache

	objectTTL     time.Duration
	vocabTermTTL  time.Duration
	imageChainTTL time.Duration
}

// Config bundles the HTTP and cache tuning knobs (internal/config.LinkedArt).
type Config struct {
	BaseURL         string
	Timeout         time.Duration
	MaxConnsPerHost int
	CacheCapacity   int
	ObjectTTL       time.Duration
	VocabTermTTL    time.Duration
	ImageChainTTL   time.Duration
}

// New builds a Client with a keep-alive transport capped at
// cfg.MaxConnsPerHost sockets per host.
func New(cfg Config) *Client {
	transport := &http.Transport{
		MaxConnsPerHost:     cfg.MaxConnsPerHost,
		MaxIdleConnsPerHost: cfg.MaxConnsPerHost,
		IdleConnTimeout:     90 * time.Second,
	}
	return &Client{
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		baseURL:       cfg.BaseURL,
		cache:         cache.New(cfg.CacheCapacity, cfg.ObjectTTL),
		objectTTL:     cfg.ObjectTTL,
		vocabTermTTL:  cfg.VocabTermTTL,
		imageChainTTL: cfg.ImageChainTTL,
	}
}

// fetchNode retrieves and JSON-decodes a Linked Art document by URI,
// through the shared TTL+LRU cache.
func (c *Client) fetchNode(ctx context.Context, uri string, ttl time.Duration) (*rawNode, error) {
	if v, ok := c.cache.Get(uri); ok {
		n := v.(*rawNode)
		return n, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", uri, err)
	}
	req.Header.Set("Accept", "application/ld+json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.NewExternalError("linkedart.fetchNode", uri, 0, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.NewExternalError("linkedart.fetchNode", uri, resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.NewExternalError("linkedart.fetchNode", uri, resp.StatusCode, fmt.Errorf("unexpected status"))
	}

	var n rawNode
	if err := json.Unmarshal(body, &n); err != nil {
		return nil, apperrors.NewExternalError("linkedart.fetchNode", uri, resp.StatusCode, fmt.Errorf("decode json-ld: %w", err))
	}

	c.cache.SetWithTTL(uri, &n, ttl)
	return &n, nil
}

// GetArtwork resolves a single object URI into a fully parsed,
// vocabulary-resolved ArtworkDetail.
func (c *Client) GetArtwork(ctx context.Context, uri string) (*core.ArtworkDetail, error) {
	node, err := c.fetchNode(ctx, uri, c.objectTTL)
	if err != nil {
		return nil, err
	}
	detail := c.parseObject(node)
	if err := c.resolveVocabulary(ctx, node, detail); err != nil {
		return nil, err
	}
	img, err := c.resolveImageChain(ctx, node)
	if err != nil {
		return nil, err
	}
	detail.Image = img

	citations, err := c.normalizeBibliography(ctx, node)
	if err != nil {
		return nil, err
	}
	detail.BibliographyCount = len(citations)
	detail.FetchedAt = c.now()
	return detail, nil
}

// Bibliography returns the normalised citation list for an object.
func (c *Client) Bibliography(ctx context.Context, uri string) ([]core.Citation, error) {
	node, err := c.fetchNode(ctx, uri, c.objectTTL)
	if err != nil {
		return nil, err
	}
	return c.normalizeBibliography(ctx, node)
}

// Image returns the resolved IIIF image descriptor for an object, or nil
// if any link in the chain is missing.
func (c *Client) Image(ctx context.Context, uri string) (*core.IIIFImage, error) {
	node, err := c.fetchNode(ctx, uri, c.objectTTL)
	if err != nil {
		return nil, err
	}
	return c.resolveImageChain(ctx, node)
}

// Search validates a structured search filter set before delegating to
// the caller-supplied runner: issuing a collection search with no
// filter fields at all raises a validation error instead of running.
func (c *Client) Search(ctx context.Context, hasAnyFilter bool, run func(ctx context.Context) ([]core.SearchResult, error)) ([]core.SearchResult, error) {
	if !hasAnyFilter {
		return nil, apperrors.NewValidationError("linkedart.Search", "at least one filter field is required; the collection API would otherwise return the entire ~837K item collection")
	}
	return run(ctx)
}

// now returns the wall-clock time, in UTC, at fetch completion.
func (c *Client) now() time.Time {
	return time.Now().UTC()
}
