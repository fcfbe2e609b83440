package linkedart

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"

	"github.com/rijksmuseum/rijksdata-retrieval/internal/apperrors"
	"github.com/rijksmuseum/rijksdata-retrieval/internal/core"
)

var iiifIDPattern = regexp.MustCompile(`iiif\.micr\.io/([^/]+)`)

type iiifInfo struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// resolveImageChain walks the 4-hop path from an Object to its IIIF
// image info. Every step is cached; any
// missing link returns (nil, nil) rather than an error.
func (c *Client) resolveImageChain(ctx context.Context, n *rawNode) (*core.IIIFImage, error) {
	if len(n.Shows) == 0 {
		return nil, nil
	}
	visualItem, err := c.fetchNode(ctx, n.Shows[0].ID, c.imageChainTTL)
	if err != nil {
		return nil, nil
	}
	if len(visualItem.DigitallyShownBy) == 0 {
		return nil, nil
	}
	digitalObject, err := c.fetchNode(ctx, visualItem.DigitallyShownBy[0].ID, c.imageChainTTL)
	if err != nil {
		return nil, nil
	}
	if len(digitalObject.AccessPoint) == 0 {
		return nil, nil
	}
	rawURL := digitalObject.AccessPoint[0].ID

	m := iiifIDPattern.FindStringSubmatch(rawURL)
	if len(m) < 2 {
		return nil, nil
	}
	iiifID := m[1]
	infoURL := fmt.Sprintf("https://iiif.micr.io/%s/info.json", iiifID)

	info, err := c.fetchIIIFInfo(ctx, infoURL)
	if err != nil {
		return nil, nil
	}

	return &core.IIIFImage{
		IIIFID:       iiifID,
		IIIFInfoURL:  infoURL,
		ThumbnailURL: fmt.Sprintf("https://iiif.micr.io/%s/full/!400,400/0/default.jpg", iiifID),
		FullURL:      fmt.Sprintf("https://iiif.micr.io/%s/full/full/0/default.jpg", iiifID),
		Width:        info.Width,
		Height:       info.Height,
	}, nil
}

func (c *Client) fetchIIIFInfo(ctx context.Context, url string) (*iiifInfo, error) {
	if v, ok := c.cache.Get(url); ok {
		info := v.(*iiifInfo)
		return info, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build info.json request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.NewExternalError("linkedart.fetchIIIFInfo", url, 0, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.NewExternalError("linkedart.fetchIIIFInfo", url, resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.NewExternalError("linkedart.fetchIIIFInfo", url, resp.StatusCode, fmt.Errorf("unexpected status"))
	}

	var info iiifInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, apperrors.NewExternalError("linkedart.fetchIIIFInfo", url, resp.StatusCode, fmt.Errorf("decode info.json: %w", err))
	}

	c.cache.SetWithTTL(url, &info, c.imageChainTTL)
	return &info, nil
}
