package render

import "github.com/couchcryptid/rescuecom-dashboard/internal/domain"

// FeatureCollection is a GeoJSON document of request markers.
type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

// Feature is one GeoJSON point.
type Feature struct {
	Type       string           `json:"type"`
	Geometry   Point            `json:"geometry"`
	Properties MarkerProperties `json:"properties"`
}

// Point is a GeoJSON point. Coordinates are [lng, lat].
type Point struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
}

// MarkerProperties styles the circle marker and its tooltip.
type MarkerProperties struct {
	ID        string          `json:"id"`
	Priority  domain.Priority `json:"priority"`
	Color     string          `json:"color"`
	Radius    int             `json:"radius"`
	Opacity   float64         `json:"fill_opacity"`
	Tooltip   string          `json:"tooltip"`
	SelectURL string          `json:"select_url"`
}

// Markers renders every request as a point. The result is rebuilt from
// scratch on each call.
func Markers(reqs []domain.Request) FeatureCollection {
	fc := FeatureCollection{Type: "FeatureCollection", Features: make([]Feature, 0, len(reqs))}
	for _, r := range reqs {
		fc.Features = append(fc.Features, Feature{
			Type: "Feature",
			Geometry: Point{
				Type:        "Point",
				Coordinates: [2]float64{r.Location.Lng, r.Location.Lat},
			},
			Properties: MarkerProperties{
				ID:        r.ID,
				Priority:  r.Priority,
				Color:     MarkerColor(r.Priority),
				Radius:    MarkerRadius(r.Priority),
				Opacity:   0.7,
				Tooltip:   r.Type,
				SelectURL: SelectURL(r.ID),
			},
		})
	}
	return fc
}

// MarkerColor maps a priority to its marker color.
func MarkerColor(p domain.Priority) string {
	switch p {
	case domain.PriorityHigh:
		return "red"
	case domain.PriorityMedium:
		return "orange"
	case domain.PriorityLow:
		return "green"
	default:
		return "blue"
	}
}

// MarkerRadius is 12 for high priority and 8 otherwise.
func MarkerRadius(p domain.Priority) int {
	if p == domain.PriorityHigh {
		return 12
	}
	return 8
}
