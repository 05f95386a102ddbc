// Package geo resolves extracted addresses to coordinates and looks up
// what sits at a point: street imagery and parcel records.
package geo

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"thirdcoast.systems/scanwatch/internal/httpclient"
)

// Bounds is a lat/lng box.
type Bounds struct {
	South, West, North, East float64
}

func (b Bounds) Contains(lat, lng float64) bool {
	return b.South <= lat && lat <= b.North && b.West <= lng && lng <= b.East
}

// ServiceArea restricts geocoding to one locality.
type ServiceArea struct {
	Locality string
	State    string
	Bounds   Bounds
}

// Generic is the formatted address Google returns when it could only
// resolve the locality itself.
func (a ServiceArea) Generic() string {
	return fmt.Sprintf("%s, %s, USA", a.Locality, a.State)
}

// Location is a geocoded point.
type Location struct {
	FormattedAddress string
	Latitude         float64
	Longitude        float64
	PlaceID          string
	MapLink          string
}

type GeocoderOptions struct {
	URL               string
	APIKey            string
	Area              ServiceArea
	Timeout           time.Duration
	RequestsPerSecond float64
}

// Geocoder calls the Google Geocoding API.
type Geocoder struct {
	url    string
	key    string
	area   ServiceArea
	client *httpclient.Client
}

func NewGeocoder(opts GeocoderOptions) *Geocoder {
	if opts.URL == "" {
		opts.URL = "https://maps.googleapis.com/maps/api/geocode/json"
	}
	return &Geocoder{
		url:  opts.URL,
		key:  opts.APIKey,
		area: opts.Area,
		client: httpclient.New(httpclient.Options{
			Service:           "geocode",
			Timeout:           opts.Timeout,
			RequestsPerSecond: opts.RequestsPerSecond,
			MaxElapsed:        15 * time.Second,
		}),
	}
}

type geocodeResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Results      []struct {
		FormattedAddress string `json:"formatted_address"`
		PlaceID          string `json:"place_id"`
		Geometry         struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
}

func (g *Geocoder) query(address string) string {
	q := url.Values{}
	q.Set("address", fmt.Sprintf("%s, %s, %s", address, g.area.Locality, g.area.State))
	q.Set("components", fmt.Sprintf("locality:%s|administrative_area:%s|country:US", g.area.Locality, g.area.State))
	b := g.area.Bounds
	q.Set("bounds", fmt.Sprintf("%g,%g|%g,%g", b.South, b.West, b.North, b.East))
	if g.key != "" {
		q.Set("key", g.key)
	}
	return g.url + "?" + q.Encode()
}

// Geocode resolves address inside the service area. A nil Location with a
// nil error means the address did not resolve to a usable point: no
// result, only the locality itself, or a point outside the bounds.
func (g *Geocoder) Geocode(ctx context.Context, address string) (*Location, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, nil
	}

	var resp geocodeResponse
	if err := g.client.GetJSON(ctx, g.query(address), &resp); err != nil {
		return nil, err
	}
	switch resp.Status {
	case "OK":
	case "ZERO_RESULTS":
		return nil, nil
	default:
		return nil, fmt.Errorf("geocode: status %s: %s", resp.Status, resp.ErrorMessage)
	}
	if len(resp.Results) == 0 {
		return nil, nil
	}

	r := resp.Results[0]
	if r.FormattedAddress == g.area.Generic() {
		return nil, nil
	}
	lat, lng := r.Geometry.Location.Lat, r.Geometry.Location.Lng
	if !g.area.Bounds.Contains(lat, lng) {
		return nil, nil
	}

	return &Location{
		FormattedAddress: r.FormattedAddress,
		Latitude:         lat,
		Longitude:        lng,
		PlaceID:          r.PlaceID,
		MapLink:          MapLink(r.FormattedAddress, r.PlaceID),
	}, nil
}

// MapLink builds a Google Maps search link. Without a place id there is
// nothing stable to link to and it returns "".
func MapLink(formatted, placeID string) string {
	if placeID == "" {
		return ""
	}
	q := url.Values{}
	q.Set("api", "1")
	q.Set("query", formatted)
	q.Set("query_place_id", placeID)
	return "https://www.google.com/maps/search/?" + q.Encode()
}
