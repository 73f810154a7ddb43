// Package earthengine is a REST client for the Earth Engine style
// imagery service: scene listing, zonal reductions over cell
// geometries, and masked regional means. It implements
// imagery.Backend.
package earthengine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/uhi-lab/heatgrid/internal/grid"
	"github.com/uhi-lab/heatgrid/internal/imagery"
	"github.com/uhi-lab/heatgrid/internal/resilience"
)

const defaultBaseURL = "https://earthengine.googleapis.com"

// Option configures the client.
type Option func(*Client)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *Client) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client, replacing the OAuth2
// client built from the credentials.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// Credentials are the OAuth2 client-credentials settings for the
// service account.
type Credentials struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
}

// Client talks to the imagery service for one cloud project.
type Client struct {
	project string
	baseURL string
	http    *http.Client
}

var _ imagery.Backend = (*Client)(nil)

// NewClient builds a client for the given project. When credentials
// are set, requests carry tokens fetched via the client-credentials
// flow; WithHTTPClient overrides the transport entirely.
func NewClient(ctx context.Context, project string, creds Credentials, opts ...Option) *Client {
	c := &Client{
		project: project,
		baseURL: defaultBaseURL,
	}
	if creds.ClientID != "" {
		cfg := &clientcredentials.Config{
			TokenURL:     creds.TokenURL,
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			Scopes:       []string{"https://www.googleapis.com/auth/earthengine"},
		}
		c.http = cfg.Client(ctx)
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = &http.Client{
			Timeout: 120 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	return c
}

type listImagesRequest struct {
	Collection    string          `json:"collection"`
	Region        json.RawMessage `json:"region"`
	BufferMeters  float64         `json:"bufferMeters,omitempty"`
	StartDate     string          `json:"startDate"`
	EndDate       string          `json:"endDate"`
	MaxCloudCover float64         `json:"maxCloudCover"`
}

type listImagesResponse struct {
	Images []struct {
		ID   string `json:"id"`
		Date string `json:"date"`
	} `json:"images"`
}

// Scenes lists the collection's images matching the query, tagged with
// their observation dates, in ascending date order.
func (c *Client) Scenes(ctx context.Context, q imagery.SceneQuery) ([]imagery.Scene, error) {
	region, err := geojson.Marshal(q.Region)
	if err != nil {
		return nil, eris.Wrap(err, "earthengine: encode query region")
	}

	var out listImagesResponse
	err = c.post(ctx, "images:query", listImagesRequest{
		Collection:    q.Collection,
		Region:        region,
		BufferMeters:  q.BufferMeters,
		StartDate:     q.StartDate,
		EndDate:       q.EndDate,
		MaxCloudCover: q.MaxCloudCover,
	}, &out)
	if err != nil {
		return nil, eris.Wrapf(err, "earthengine: list scenes of %s", q.Collection)
	}

	scenes := make([]imagery.Scene, 0, len(out.Images))
	for _, img := range out.Images {
		scenes = append(scenes, imagery.Scene{ID: img.ID, Date: img.Date})
	}
	return scenes, nil
}

type imagePayload struct {
	Dataset string   `json:"dataset"`
	Bands   []string `json:"bands"`
	SceneID string   `json:"sceneId,omitempty"`
	Vintage int      `json:"vintage,omitempty"`
}

type reduceRegionsRequest struct {
	Image    imagePayload    `json:"image"`
	Features json.RawMessage `json:"features"`
	Scale    float64         `json:"scale"`
}

type reduceRegionsResponse struct {
	Results []struct {
		CellID string              `json:"cellId"`
		Means  map[string]*float64 `json:"means"`
	} `json:"results"`
}

// CellMeans computes per-cell unweighted band means of img at the
// given ground resolution.
func (c *Client) CellMeans(ctx context.Context, img imagery.Image, cells []grid.Cell, scale float64) ([]imagery.CellStats, error) {
	features, err := encodeCells(cells)
	if err != nil {
		return nil, err
	}

	var out reduceRegionsResponse
	err = c.post(ctx, "images:reduceRegions", reduceRegionsRequest{
		Image:    encodeImage(img),
		Features: features,
		Scale:    scale,
	}, &out)
	if err != nil {
		return nil, eris.Wrapf(err, "earthengine: reduce %s over %d cells", img.Product.Name, len(cells))
	}

	stats := make([]imagery.CellStats, 0, len(out.Results))
	for _, res := range out.Results {
		stats = append(stats, imagery.CellStats{CellID: res.CellID, Means: res.Means})
	}
	return stats, nil
}

type ringPayload struct {
	Center        json.RawMessage `json:"center"`
	BufferMeters  float64         `json:"bufferMeters"`
	ExcludeCenter bool            `json:"excludeCenter"`
}

type maskPayload struct {
	Dataset string `json:"dataset"`
	Band    string `json:"band"`
	Classes []int  `json:"classes"`
}

type reduceRegionRequest struct {
	Image     imagePayload `json:"image"`
	Region    ringPayload  `json:"region"`
	Mask      maskPayload  `json:"mask"`
	Scale     float64      `json:"scale"`
	MaxPixels int64        `json:"maxPixels"`
}

type reduceRegionResponse struct {
	Means map[string]*float64 `json:"means"`
}

// MaskedRegionMean computes per-band means over a buffer ring,
// counting only pixels passing the land-cover mask.
func (c *Client) MaskedRegionMean(ctx context.Context, img imagery.Image, region imagery.RingRegion, mask imagery.LandMask, scale float64, maxPixels int64) (map[string]*float64, error) {
	center, err := geojson.Marshal(region.Center)
	if err != nil {
		return nil, eris.Wrap(err, "earthengine: encode ring center")
	}

	var out reduceRegionResponse
	err = c.post(ctx, "images:reduceRegion", reduceRegionRequest{
		Image: encodeImage(img),
		Region: ringPayload{
			Center:        center,
			BufferMeters:  region.BufferMeters,
			ExcludeCenter: region.ExcludeCenter,
		},
		Mask: maskPayload{
			Dataset: mask.Dataset,
			Band:    mask.Band,
			Classes: mask.Classes,
		},
		Scale:     scale,
		MaxPixels: maxPixels,
	}, &out)
	if err != nil {
		return nil, eris.Wrapf(err, "earthengine: masked mean of %s", img.Product.Name)
	}
	return out.Means, nil
}

func encodeImage(img imagery.Image) imagePayload {
	return imagePayload{
		Dataset: img.Product.Dataset,
		Bands:   img.Product.Bands,
		SceneID: img.SceneID,
		Vintage: img.Product.Vintage,
	}
}

// encodeCells serializes cell polygons as a GeoJSON FeatureCollection
// keyed by cell id.
func encodeCells(cells []grid.Cell) (json.RawMessage, error) {
	fc := &geojson.FeatureCollection{}
	for _, cell := range cells {
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:         cell.ID,
			Geometry:   cell.Geometry,
			Properties: map[string]any{"id": cell.ID},
		})
	}
	data, err := fc.MarshalJSON()
	if err != nil {
		return nil, eris.Wrap(err, "earthengine: encode cell features")
	}
	return data, nil
}

// post sends a JSON request to a project-scoped verb and decodes the
// response. 408/429/5xx become transient errors so callers can retry.
func (c *Client) post(ctx context.Context, verb string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return eris.Wrap(err, "earthengine: encode request")
	}

	url := fmt.Sprintf("%s/v1/projects/%s/%s", c.baseURL, c.project, verb)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return eris.Wrap(err, "earthengine: create request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return resilience.NewTransientError(eris.Wrap(err, "earthengine: request failed"), 0)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "earthengine: read response body")
	}

	if resp.StatusCode != http.StatusOK {
		errResp := eris.Errorf("earthengine: status %d: %s", resp.StatusCode, string(respBody))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return resilience.NewTransientError(errResp, resp.StatusCode)
		}
		return errResp
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return eris.Wrap(err, "earthengine: decode response")
	}
	return nil
}
