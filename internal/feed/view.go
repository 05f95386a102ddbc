package feed

import (
	"strconv"
	"time"

	"thirdcoast.systems/scanwatch/internal/incident"
	"thirdcoast.systems/scanwatch/pkg/utils/format"
)

// View is an incident as the dashboard renders it.
type View struct {
	ID           int64  `json:"id"`
	DayBucket    string `json:"day_bucket"`
	FileName     string `json:"file_name"`
	CaptureTime  string `json:"capture_time"`
	System       string `json:"system"`
	Department   string `json:"department"`
	Channel      string `json:"channel"`
	Modulation   string `json:"modulation"`
	Frequency    string `json:"frequency"`
	Talkgroup    string `json:"talkgroup"`
	Content      string `json:"content"`
	Confidence   string `json:"confidence"`
	Label        string `json:"label"`
	HighPriority bool   `json:"high_priority"`

	Address          *string  `json:"address"`
	FormattedAddress *string  `json:"formatted_address"`
	MapLink          *string  `json:"map_link"`
	ImageryLink      *string  `json:"imagery_link"`
	Latitude         *float64 `json:"latitude"`
	Longitude        *float64 `json:"longitude"`
	ParcelOwner      *string  `json:"parcel_owner"`
	ParcelValue      string   `json:"parcel_value"`

	Status    string            `json:"status"`
	Stages    map[string]string `json:"stages"`
	AudioURL  string            `json:"audio_url"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

func NewView(inc *incident.Incident) View {
	stages := make(map[string]string, len(incident.AllStages))
	for _, s := range incident.AllStages {
		stages[s.String()] = inc.StageStatus(s)
	}
	return View{
		ID:               inc.ID,
		DayBucket:        inc.DayBucket,
		FileName:         inc.FileName,
		CaptureTime:      inc.CaptureTime,
		System:           inc.Attributes.System,
		Department:       inc.Attributes.Department,
		Channel:          inc.Attributes.Channel,
		Modulation:       inc.Attributes.Modulation,
		Frequency:        format.Frequency(inc.Attributes.Frequency),
		Talkgroup:        inc.Attributes.Talkgroup,
		Content:          inc.Content(),
		Confidence:       format.Confidence(inc.Confidence),
		Label:            inc.Label,
		HighPriority:     incident.IsHighPriority(inc.Label),
		Address:          inc.Address,
		FormattedAddress: inc.FormattedAddress,
		MapLink:          inc.MapLink,
		ImageryLink:      inc.ImageryLink,
		Latitude:         inc.Latitude,
		Longitude:        inc.Longitude,
		ParcelOwner:      inc.ParcelOwner,
		ParcelValue:      format.Currency(inc.ParcelValue),
		Status:           inc.Status(),
		Stages:           stages,
		AudioURL:         "/api/incidents/" + itoa(inc.ID) + "/audio",
		CreatedAt:        inc.CreatedAt,
		UpdatedAt:        inc.UpdatedAt,
	}
}

func Views(incs []incident.Incident) []View {
	out := make([]View, len(incs))
	for i := range incs {
		out[i] = NewView(&incs[i])
	}
	return out
}

func itoa(id int64) string { return strconv.FormatInt(id, 10) }
