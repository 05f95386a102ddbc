package recording

import (
	"path/filepath"
	"strings"

	"thirdcoast.systems/scanwatch/internal/incident"
)

// DefaultExtensions are the audio containers the recorder writes.
var DefaultExtensions = []string{".mp3"}

// ParseAttributes reads the recorder metadata encoded in a file name. Two
// layouts are understood:
//
//	System; Department; Channel; Modulation; Frequency; ...; #Talkgroup
//	10-19-26 14-03-22 - System - Department
//
// Missing fields are left empty; it never fails.
func ParseAttributes(name string) incident.Attributes {
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))

	if strings.Contains(base, ";") {
		parts := strings.Split(base, ";")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		var a incident.Attributes
		field := func(i int) string {
			if i < len(parts) {
				return parts[i]
			}
			return ""
		}
		a.System = field(0)
		a.Department = field(1)
		a.Channel = field(2)
		a.Modulation = field(3)
		a.Frequency = field(4)
		if len(parts) > 5 {
			a.Talkgroup = strings.TrimSpace(strings.TrimPrefix(parts[len(parts)-1], "#"))
		}
		return a
	}

	if loc := namePrefix.FindStringIndex(base); loc != nil {
		rest := strings.TrimSpace(base[loc[1]:])
		rest = strings.TrimPrefix(rest, "-")
		var a incident.Attributes
		fields := strings.Split(rest, " - ")
		for i := range fields {
			fields[i] = strings.TrimSpace(fields[i])
		}
		if len(fields) > 0 {
			a.System = fields[0]
		}
		if len(fields) > 1 {
			a.Department = fields[1]
		}
		if len(fields) > 2 {
			a.Channel = fields[2]
		}
		return a
	}
	return incident.Attributes{}
}

// HasRecordingExt reports whether p ends in one of exts, case-insensitively.
func HasRecordingExt(p string, exts []string) bool {
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	ext := strings.ToLower(filepath.Ext(p))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		if ext == e {
			return true
		}
	}
	return false
}

// IsTemporary reports whether the file is a hidden file or a partial write
// the recorder has not finished with.
func IsTemporary(p string) bool {
	name := filepath.Base(p)
	if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "~") {
		return true
	}
	lower := strings.ToLower(name)
	for _, suffix := range []string{".part", ".partial", ".tmp", ".temp", ".crdownload", "~"} {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return false
}
