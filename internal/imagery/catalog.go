package imagery

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// Band names produced by the catalog's products.
const (
	BandLST            = "LST"
	BandNDVI           = "NDVI"
	BandAlbedo         = "Albedo"
	BandBuiltSurface   = "BuiltSurface"
	BandBuildingVolume = "BuildingVolume"
	BandPopulation     = "Population"
	BandWaterFraction  = "WaterFraction"
	BandDistToWater    = "DistToWater"
	BandElevation      = "Elevation"
)

// Landsat 8 Collection 2 Level 2 constants. LST comes from the ST_B10
// thermal band converted to Celsius; albedo is a weighted sum of
// scaled surface reflectance bands.
const (
	LandsatCollection = "LANDSAT/LC08/C02/T1_L2"

	LSTScale     = 0.00341802
	LSTOffset    = 149.0
	KelvinOffset = 273.15

	ReflectanceScale  = 0.0000275
	ReflectanceOffset = -0.2
)

// AlbedoWeights are the shortwave albedo coefficients for the scaled
// SR_B2..SR_B7 reflectance bands, followed by the constant term.
var AlbedoWeights = struct {
	B2, B3, B4, B5, B6, B7, Const float64
}{0.356, 0.130, 0.373, 0.085, 0.072, 0.036, -0.0018}

// Default ground resolutions in meters per product.
const (
	GHSLScale      = 100.0
	WaterScale     = 30.0
	ElevationScale = 30.0
	BaselineScale  = 100.0
)

// BaselineMaxPixels is the reduceRegion pixel ceiling for the rural
// reference mean; large enough that the ring is never truncated.
const BaselineMaxPixels = int64(1e13)

// RuralClasses is the WorldCover class whitelist defining the rural
// mask. Class 50 (built-up) and any unlisted code are excluded.
var RuralClasses = []int{10, 20, 30, 40, 60, 70, 80, 90, 100}

// Product names one raster layer the backend can produce: a dataset or
// collection id plus the output bands and nominal resolution.
type Product struct {
	Name    string
	Dataset string
	Bands   []string
	Scale   float64
	Vintage int // resolved snapshot year for static datasets
}

// SurfaceProduct is the per-scene Landsat product carrying LST, NDVI
// and albedo.
func SurfaceProduct() Product {
	return Product{
		Name:    "landsat_surface",
		Dataset: LandsatCollection,
		Bands:   []string{BandLST, BandNDVI, BandAlbedo},
	}
}

// LSTProduct is the per-scene Landsat product carrying LST only, used
// for the rural reference mean.
func LSTProduct() Product {
	return Product{
		Name:    "landsat_lst",
		Dataset: LandsatCollection,
		Bands:   []string{BandLST},
	}
}

// SurfaceImage tags the surface product with one scene.
func SurfaceImage(s Scene) Image {
	return Image{Product: SurfaceProduct(), SceneID: s.ID, Date: s.Date}
}

// LSTImage tags the LST-only product with one scene.
func LSTImage(s Scene) Image {
	return Image{Product: LSTProduct(), SceneID: s.ID, Date: s.Date}
}

// LandsatQuery builds the cloud-filtered per-year scene query.
func LandsatQuery(region geom.T, year int, maxCloudCover float64) SceneQuery {
	return SceneQuery{
		Collection:    LandsatCollection,
		Region:        region,
		StartDate:     fmt.Sprintf("%d-01-01", year),
		EndDate:       fmt.Sprintf("%d-12-31", year),
		MaxCloudCover: maxCloudCover,
	}
}

// GHSLVintage maps a requested year to a published GHSL epoch. Only
// the 2015 and 2020 epochs are supported; anything else is a
// configuration error.
func GHSLVintage(year int) (int, error) {
	switch {
	case year >= 2014 && year <= 2016:
		return 2015, nil
	case year >= 2019 && year <= 2021:
		return 2020, nil
	default:
		return 0, eris.Errorf("imagery: no GHSL epoch for year %d (2015 and 2020 are available)", year)
	}
}

// GHSLImage is the built surface / building volume / population stack
// for the epoch nearest the requested year.
func GHSLImage(year int) (Image, error) {
	vintage, err := GHSLVintage(year)
	if err != nil {
		return Image{}, err
	}
	return Image{Product: Product{
		Name:    "ghsl",
		Dataset: fmt.Sprintf("JRC/GHSL/P2023A/GHS_BUILT_S/%d", vintage),
		Bands:   []string{BandBuiltSurface, BandBuildingVolume, BandPopulation},
		Scale:   GHSLScale,
		Vintage: vintage,
	}}, nil
}

// WaterImage is the surface water stack: occurrence percentage plus
// distance to the nearest persistent water pixel in meters.
func WaterImage() Image {
	return Image{Product: Product{
		Name:    "water",
		Dataset: "JRC/GSW1_4/GlobalSurfaceWater",
		Bands:   []string{BandWaterFraction, BandDistToWater},
		Scale:   WaterScale,
	}}
}

// ElevationImage is the SRTM elevation snapshot.
func ElevationImage() Image {
	return Image{Product: Product{
		Name:    "elevation",
		Dataset: "USGS/SRTMGL1_003",
		Bands:   []string{BandElevation},
		Scale:   ElevationScale,
	}}
}

// WorldCoverMask selects the land-cover vintage closest to year and
// whitelists the non-urban classes. Exactly two vintages exist; the
// lookup is fixed, not interpolated.
func WorldCoverMask(year int) LandMask {
	dataset := "ESA/WorldCover/v100/2020"
	if year > 2020 {
		dataset = "ESA/WorldCover/v200/2021"
	}
	return LandMask{Dataset: dataset, Band: "Map", Classes: RuralClasses}
}
