package geo

import (
	"fmt"
	"net/url"
)

const streetViewURL = "https://maps.googleapis.com/maps/api/streetview"

// StreetView builds static Street View image links.
type StreetView struct {
	Key  string
	Size string
}

// Link returns the image URL for a point.
func (s StreetView) Link(lat, lng float64) string {
	size := s.Size
	if size == "" {
		size = "640x400"
	}
	q := url.Values{}
	q.Set("size", size)
	q.Set("location", fmt.Sprintf("%g,%g", lat, lng))
	if s.Key != "" {
		q.Set("key", s.Key)
	}
	return streetViewURL + "?" + q.Encode()
}
