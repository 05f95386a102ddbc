package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"thirdcoast.systems/scanwatch/internal/httpclient"
)

// Parcel is what the assessor layer knows about a point. Either field may
// be missing.
type Parcel struct {
	Owner *string
	Value *int64
}

func (p *Parcel) Empty() bool {
	return p == nil || (p.Owner == nil && p.Value == nil)
}

type ParcelOptions struct {
	URL               string
	BufferMeters      float64
	Layers            []int
	Timeout           time.Duration
	RequestsPerSecond float64
}

// ParcelClient queries an ArcGIS MapServer identify endpoint.
type ParcelClient struct {
	url    string
	buffer float64
	layers []int
	client *httpclient.Client
}

func NewParcelClient(opts ParcelOptions) *ParcelClient {
	if opts.BufferMeters <= 0 {
		opts.BufferMeters = 400
	}
	if len(opts.Layers) == 0 {
		opts.Layers = []int{13, 20, 21}
	}
	return &ParcelClient{
		url:    opts.URL,
		buffer: opts.BufferMeters,
		layers: opts.Layers,
		client: httpclient.New(httpclient.Options{
			Service:           "parcel",
			Timeout:           opts.Timeout,
			RequestsPerSecond: opts.RequestsPerSecond,
			MaxElapsed:        15 * time.Second,
		}),
	}
}

const originShift = 20037508.342789244

// WebMercator converts WGS84 degrees to EPSG:3857 meters.
func WebMercator(lng, lat float64) (x, y float64) {
	lat = math.Max(math.Min(lat, 85.05112878), -85.05112878)
	x = lng * originShift / 180
	y = math.Log(math.Tan((90+lat)*math.Pi/360)) * originShift / math.Pi
	return x, y
}

func (c *ParcelClient) query(lat, lng float64) string {
	x, y := WebMercator(lng, lat)
	geom, _ := json.Marshal(map[string]float64{"x": x, "y": y})

	layers := make([]string, len(c.layers))
	for i, l := range c.layers {
		layers[i] = strconv.Itoa(l)
	}

	q := url.Values{}
	q.Set("f", "json")
	q.Set("returnFieldName", "false")
	q.Set("returnGeometry", "false")
	q.Set("returnUnformattedValues", "false")
	q.Set("returnZ", "false")
	q.Set("tolerance", "3")
	q.Set("imageDisplay", "2560,1189,96")
	q.Set("geometry", string(geom))
	q.Set("geometryType", "esriGeometryPoint")
	q.Set("sr", "102100")
	q.Set("mapExtent", fmt.Sprintf("%f,%f,%f,%f", x-c.buffer, y-c.buffer, x+c.buffer, y+c.buffer))
	q.Set("layers", "all:"+strings.Join(layers, ","))
	return c.url + "?" + q.Encode()
}

type identifyResponse struct {
	Results []struct {
		LayerID    int            `json:"layerId"`
		Attributes map[string]any `json:"attributes"`
	} `json:"results"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Property boundaries first, then historic property status.
var layerPreference = []int{20, 13}

func layerRank(id int) int {
	for i, l := range layerPreference {
		if l == id {
			return i
		}
	}
	return len(layerPreference)
}

var (
	ownerKeys = map[string]bool{"currentowner": true, "owner": true, "ownername": true}
	valueKeys = map[string]bool{"assessedvalue": true, "totalassessedvalue": true, "assessedvaluation": true}
)

func foldKey(k string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(k), " ", ""))
}

func attrString(v any) string {
	if v == nil {
		return ""
	}
	s := strings.TrimSpace(fmt.Sprint(v))
	if strings.EqualFold(s, "null") {
		return ""
	}
	return s
}

// assessedValue reads "$1,234,500.00" as 1234500. Cents are dropped.
func assessedValue(v any) (int64, bool) {
	if f, ok := v.(float64); ok {
		return int64(f), f >= 0
	}
	s, _, _ := strings.Cut(attrString(v), ".")
	var sb strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			sb.WriteRune(r)
		}
	}
	if sb.Len() == 0 {
		return 0, false
	}
	n, err := strconv.ParseInt(sb.String(), 10, 64)
	return n, err == nil
}

// Lookup identifies the parcel at a point. A nil Parcel means nothing was
// found; a partially filled one is a valid result.
func (c *ParcelClient) Lookup(ctx context.Context, lat, lng float64) (*Parcel, error) {
	if c.url == "" {
		return nil, nil
	}
	var resp identifyResponse
	if err := c.client.GetJSON(ctx, c.query(lat, lng), &resp); err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("parcel: identify error %d: %s", resp.Error.Code, resp.Error.Message)
	}

	results := resp.Results
	sort.SliceStable(results, func(i, j int) bool {
		return layerRank(results[i].LayerID) < layerRank(results[j].LayerID)
	})

	p := &Parcel{}
	for _, r := range results {
		for k, v := range r.Attributes {
			key := foldKey(k)
			switch {
			case p.Owner == nil && ownerKeys[key]:
				if s := attrString(v); s != "" {
					p.Owner = &s
				}
			case p.Value == nil && valueKeys[key]:
				if n, ok := assessedValue(v); ok {
					p.Value = &n
				}
			}
		}
		if p.Owner != nil && p.Value != nil {
			break
		}
	}
	if p.Empty() {
		return nil, nil
	}
	return p, nil
}
