package incident

import (
	"strings"

	"golang.org/x/text/cases"
)

// LabelUnknown is both the default classification and the failure value.
const LabelUnknown = "unknown"

// Labels is the closed classification set.
var Labels = []string{
	"Assault/Domestic",
	"Theft/Burglary",
	"Disturbance/Noise",
	"Weapons/Shots Fired",
	"Traffic Stop",
	"Motor Vehicle Accident",
	"Medical",
	"Fire Alarm",
	"Structure Fire",
	"Brush/Vehicle Fire",
	"Gas/Electrical Hazard",
	"Wires Down",
	"Hazmat",
	"Animal Complaint",
	"Welfare Check",
	"Suspicious Activity",
	"Missing Person",
	"Alarm (Burglar/Panic)",
	LabelUnknown,
}

// HighPriorityLabels are life-threatening or urgent public safety labels.
var HighPriorityLabels = []string{
	"Medical",
	"Structure Fire",
	"Brush/Vehicle Fire",
	"Fire Alarm",
	"Weapons/Shots Fired",
	"Assault/Domestic",
	"Motor Vehicle Accident",
	"Gas/Electrical Hazard",
	"Hazmat",
	"Missing Person",
	"Alarm (Burglar/Panic)",
}

// Shorthand the models tend to answer with instead of a canonical label.
var labelAliases = map[string]string{
	"burglary":      "Theft/Burglary",
	"larceny":       "Theft/Burglary",
	"shots fired":   "Weapons/Shots Fired",
	"weapons":       "Weapons/Shots Fired",
	"traffic":       "Traffic Stop",
	"mva":           "Motor Vehicle Accident",
	"burglar alarm": "Alarm (Burglar/Panic)",
	"panic alarm":   "Alarm (Burglar/Panic)",
	"fire":          "Structure Fire",
	"other/unknown": LabelUnknown,
	"other":         LabelUnknown,
}

var (
	folder      = cases.Fold()
	labelByFold = func() map[string]string {
		m := make(map[string]string, len(Labels)+len(labelAliases))
		for _, l := range Labels {
			m[folder.String(l)] = l
		}
		for alias, l := range labelAliases {
			m[folder.String(alias)] = l
		}
		return m
	}()
)

// IsLabel reports whether s is exactly one of the canonical labels.
func IsLabel(s string) bool {
	for _, l := range Labels {
		if l == s {
			return true
		}
	}
	return false
}

// NormalizeLabel folds s onto the closed set. Anything it cannot place is
// LabelUnknown.
func NormalizeLabel(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return LabelUnknown
	}
	if l, ok := labelByFold[folder.String(s)]; ok {
		return l
	}
	return LabelUnknown
}

// IsHighPriority reports whether label belongs to the high priority subset.
func IsHighPriority(label string) bool {
	for _, l := range HighPriorityLabels {
		if l == label {
			return true
		}
	}
	return false
}
