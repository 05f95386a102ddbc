package incident

// Stage identifies one enrichment stage. Values are bit flags so a set of
// completed stages fits in one integer column and can be extended with a
// single atomic `state | bit` update.
type Stage uint8

const (
	StageTranscribe Stage = 1 << iota
	StageClassify
	StageExtractLocation
	StageGeocode
	StageImagery
	StageParcel
)

// AllStages is every stage in dependency order.
var AllStages = []Stage{
	StageTranscribe,
	StageClassify,
	StageExtractLocation,
	StageGeocode,
	StageImagery,
	StageParcel,
}

var stageNames = map[Stage]string{
	StageTranscribe:      "transcribe",
	StageClassify:        "classify",
	StageExtractLocation: "extract_location",
	StageGeocode:         "geocode",
	StageImagery:         "imagery",
	StageParcel:          "parcel",
}

// stageRequires is the dependency graph. A stage may only run once every
// stage it requires has committed.
var stageRequires = map[Stage]Stages{
	StageClassify:        Stages(StageTranscribe),
	StageExtractLocation: Stages(StageTranscribe),
	StageGeocode:         Stages(StageExtractLocation),
	StageImagery:         Stages(StageGeocode),
	StageParcel:          Stages(StageGeocode),
}

func (s Stage) String() string {
	if n, ok := stageNames[s]; ok {
		return n
	}
	return "unknown"
}

// Requires returns the stages that must be committed before s can run.
func (s Stage) Requires() Stages {
	return stageRequires[s]
}

// Stages is a set of stages.
type Stages uint8

// Complete is the set holding every stage.
const Complete = Stages(StageTranscribe | StageClassify | StageExtractLocation | StageGeocode | StageImagery | StageParcel)

func (ss Stages) Has(s Stage) bool {
	return ss&Stages(s) != 0
}

func (ss Stages) HasAll(other Stages) bool {
	return ss&other == other
}

func (ss Stages) With(s Stage) Stages {
	return ss | Stages(s)
}

// Names lists the stage names in dependency order.
func (ss Stages) Names() []string {
	out := make([]string, 0, len(AllStages))
	for _, s := range AllStages {
		if ss.Has(s) {
			out = append(out, s.String())
		}
	}
	return out
}
