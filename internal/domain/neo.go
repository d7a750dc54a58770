package domain

// NearEarthObject is the normalized NEO record stored in the cache.
type NearEarthObject struct {
	ID                   string  `json:"id"`
	Name                 string  `json:"name"`
	CloseApproachDate    string  `json:"close_approach_date"`
	AbsoluteMagnitude    float64 `json:"absolute_magnitude"`
	EstimatedDiameterKm  float64 `json:"estimated_diameter_km"`
	RelativeVelocityKmS  float64 `json:"relative_velocity_km_s"`
	MissDistanceAU       float64 `json:"miss_distance_au"`
	PotentiallyHazardous bool    `json:"potentially_hazardous"`

	RawPayload []byte `json:"-"`
}

// MediaTypeImage is the APOD media type that can be rendered as a picture.
const MediaTypeImage = "image"

// PictureOfDay is the APOD record for a single date. It is never persisted.
type PictureOfDay struct {
	Date        string `json:"date,omitempty"`
	Title       string `json:"title"`
	MediaType   string `json:"media_type"`
	URL         string `json:"url"`
	HDURL       string `json:"hd_url,omitempty"`
	Explanation string `json:"explanation,omitempty"`
	Copyright   string `json:"copyright,omitempty"`
}

// IsImage reports whether the picture can be displayed as an image. Videos and
// other media are valid results, just not display-eligible.
func (p PictureOfDay) IsImage() bool {
	return p.MediaType == MediaTypeImage
}
