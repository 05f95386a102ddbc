package incident

// Column is one column/value pair written by a stage.
type Column struct {
	Name  string
	Value any
}

// Group is the field group owned by exactly one stage. Implementations are
// the fixed structs below; the store writes only the columns a group
// returns and refuses columns owned by another stage.
type Group interface {
	Stage() Stage
	Columns() []Column
	apply(*Incident)
}

// OwnedColumns lists the columns each stage may write.
var OwnedColumns = map[Stage][]string{
	StageTranscribe:      {"transcript", "confidence"},
	StageClassify:        {"classification_label"},
	StageExtractLocation: {"address"},
	StageGeocode:         {"formatted_address", "map_link", "latitude", "longitude"},
	StageImagery:         {"imagery_link"},
	StageParcel:          {"parcel_owner", "parcel_value"},
}

// TranscriptGroup carries the transcript text. Confidence is nil when the
// transcriber reports none; the column then stays NULL.
type TranscriptGroup struct {
	Text       string   `validate:"required"`
	Confidence *float64 `validate:"omitempty,gte=0,lte=1"`
}

func (TranscriptGroup) Stage() Stage { return StageTranscribe }

func (g TranscriptGroup) Columns() []Column {
	var conf any
	if g.Confidence != nil {
		conf = *g.Confidence
	}
	return []Column{{"transcript", g.Text}, {"confidence", conf}}
}

func (g TranscriptGroup) apply(inc *Incident) {
	inc.Transcript = g.Text
	inc.Confidence = nil
	if g.Confidence != nil {
		c := *g.Confidence
		inc.Confidence = &c
	}
}

type ClassificationGroup struct {
	Label string `validate:"required"`
}

func (ClassificationGroup) Stage() Stage { return StageClassify }

func (g ClassificationGroup) Columns() []Column {
	return []Column{{"classification_label", g.Label}}
}

func (g ClassificationGroup) apply(inc *Incident) { inc.Label = g.Label }

type LocationGroup struct {
	Address string `validate:"required,max=200"`
}

func (LocationGroup) Stage() Stage { return StageExtractLocation }

func (g LocationGroup) Columns() []Column {
	return []Column{{"address", g.Address}}
}

func (g LocationGroup) apply(inc *Incident) {
	a := g.Address
	inc.Address = &a
}

// GeocodeGroup is all-or-nothing: a stage that cannot resolve a point
// commits no group at all.
type GeocodeGroup struct {
	FormattedAddress string  `validate:"required"`
	MapLink          string  `validate:"omitempty,url"`
	Latitude         float64 `validate:"latitude"`
	Longitude        float64 `validate:"longitude"`
}

func (GeocodeGroup) Stage() Stage { return StageGeocode }

func (g GeocodeGroup) Columns() []Column {
	var link any
	if g.MapLink != "" {
		link = g.MapLink
	}
	return []Column{
		{"formatted_address", g.FormattedAddress},
		{"map_link", link},
		{"latitude", g.Latitude},
		{"longitude", g.Longitude},
	}
}

func (g GeocodeGroup) apply(inc *Incident) {
	fa, lat, lng := g.FormattedAddress, g.Latitude, g.Longitude
	inc.FormattedAddress = &fa
	if g.MapLink != "" {
		link := g.MapLink
		inc.MapLink = &link
	}
	inc.Latitude = &lat
	inc.Longitude = &lng
}

type ImageryGroup struct {
	Link string `validate:"required,url"`
}

func (ImageryGroup) Stage() Stage { return StageImagery }

func (g ImageryGroup) Columns() []Column {
	return []Column{{"imagery_link", g.Link}}
}

func (g ImageryGroup) apply(inc *Incident) {
	l := g.Link
	inc.ImageryLink = &l
}

// ParcelGroup may be partial: owner only, value only, or neither.
type ParcelGroup struct {
	Owner *string `validate:"omitempty,min=1"`
	Value *int64  `validate:"omitempty,gte=0"`
}

func (ParcelGroup) Stage() Stage { return StageParcel }

func (g ParcelGroup) Columns() []Column {
	var cols []Column
	if g.Owner != nil {
		cols = append(cols, Column{"parcel_owner", *g.Owner})
	}
	if g.Value != nil {
		cols = append(cols, Column{"parcel_value", *g.Value})
	}
	return cols
}

func (g ParcelGroup) apply(inc *Incident) {
	if g.Owner != nil {
		o := *g.Owner
		inc.ParcelOwner = &o
	}
	if g.Value != nil {
		v := *g.Value
		inc.ParcelValue = &v
	}
}
