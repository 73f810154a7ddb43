// Package imagery defines the contract with the remote imagery and
// analytics backend, plus the dataset catalog: collection ids, band
// math constants, static-layer vintages, and the rural land-cover
// whitelist. The backend itself (scene selection, cloud filtering,
// band math, reducers) is an external collaborator; everything here is
// consumed through the Backend interface.
package imagery

import (
	"context"

	"github.com/twpayne/go-geom"

	"github.com/uhi-lab/heatgrid/internal/grid"
)

// Scene identifies one image of a time-varying collection, tagged with
// its observation date at processing time. The date is attached once
// and never re-derived.
type Scene struct {
	ID   string
	Date string // YYYY-MM-DD
}

// SceneQuery filters a time-varying image collection.
type SceneQuery struct {
	Collection    string
	Region        geom.T
	BufferMeters  float64 // widen the bounds filter around Region
	StartDate     string  // YYYY-MM-DD, inclusive
	EndDate       string  // YYYY-MM-DD, inclusive
	MaxCloudCover float64 // percent; scenes at or above are excluded
}

// Image names one raster-layer image the backend can reduce: either a
// per-scene product (SceneID set, Date carrying the scene date) or a
// static snapshot (SceneID empty, Date empty).
type Image struct {
	Product Product
	SceneID string
	Date    string
}

// Static reports whether the image is a dateless snapshot layer.
func (img Image) Static() bool {
	return img.SceneID == ""
}

// CellStats holds per-cell zonal means keyed by band name. A band
// whose intersection with valid pixels is empty is nil, never zero.
type CellStats struct {
	CellID string
	Means  map[string]*float64
}

// RingRegion describes a buffer ring: the area within BufferMeters of
// Center, minus the center footprint itself when ExcludeCenter is set.
type RingRegion struct {
	Center        geom.T
	BufferMeters  float64
	ExcludeCenter bool
}

// LandMask selects pixels whose land-cover class is in Classes.
type LandMask struct {
	Dataset string
	Band    string
	Classes []int
}

// Backend is the imagery/analytics service consumed by the pipeline.
// Implementations must return scenes in ascending date order and one
// CellStats entry per requested cell.
type Backend interface {
	// Scenes lists the collection's images matching the query, each
	// tagged with its observation date, in time order.
	Scenes(ctx context.Context, q SceneQuery) ([]Scene, error)

	// CellMeans computes the unweighted spatial mean of every band of
	// img over each cell polygon at the given ground resolution.
	CellMeans(ctx context.Context, img Image, cells []grid.Cell, scale float64) ([]CellStats, error)

	// MaskedRegionMean computes per-band unweighted means over a ring
	// region, counting only pixels passing the mask. Bands with no
	// valid masked pixel are nil.
	MaskedRegionMean(ctx context.Context, img Image, region RingRegion, mask LandMask, scale float64, maxPixels int64) (map[string]*float64, error)
}
