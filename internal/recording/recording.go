// Package recording derives the stable identity, day bucket and metadata of
// a scanner recording from its path.
package recording

import (
	"errors"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Namespace scopes every recording identity. Changing it re-keys every row.
var Namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("scanwatch://recordings"))

// DayFolderLayout is the recorder's daily folder name, e.g. 10-19-26.
const DayFolderLayout = "01-02-06"

// BucketLayout is the stored day bucket format.
const BucketLayout = "2006-01-02"

var ErrOutsideRoot = errors.New("recording path is outside the root")

var (
	dayFolderRe = regexp.MustCompile(`^\d{2}-\d{2}-\d{2}$`)
	namePrefix  = regexp.MustCompile(`^(\d{2}-\d{2}-\d{2}) (\d{2})-(\d{2})-(\d{2})`)
)

// RelPath returns p relative to root, slash separated and cleaned.
func RelPath(root, p string) (string, error) {
	rel, err := filepath.Rel(filepath.Clean(root), filepath.Clean(p))
	if err != nil {
		return "", err
	}
	rel = path.Clean(filepath.ToSlash(rel))
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", ErrOutsideRoot
	}
	return rel, nil
}

// Identity returns the deterministic key of the recording at p.
//
// The name is the root-relative slash path, so the same file seen through
// different OS separators or a trailing-slash root maps to one key.
func Identity(root, p string) (string, error) {
	rel, err := RelPath(root, p)
	if err != nil {
		return "", err
	}
	return uuid.NewSHA1(Namespace, []byte(rel)).String(), nil
}

// DayBucket returns the YYYY-MM-DD bucket the recording belongs to. A daily
// folder in the path wins, then a dated file name, then the discovery time.
func DayBucket(p string, discoveredAt time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	dir := filepath.ToSlash(filepath.Dir(p))
	parts := strings.Split(dir, "/")
	for i := len(parts) - 1; i >= 0; i-- {
		if !dayFolderRe.MatchString(parts[i]) {
			continue
		}
		if d, err := time.ParseInLocation(DayFolderLayout, parts[i], loc); err == nil {
			return d.Format(BucketLayout)
		}
	}
	if m := namePrefix.FindStringSubmatch(filepath.Base(p)); m != nil {
		if d, err := time.ParseInLocation(DayFolderLayout, m[1], loc); err == nil {
			return d.Format(BucketLayout)
		}
	}
	return discoveredAt.In(loc).Format(BucketLayout)
}

// BucketOf formats t as a day bucket in loc.
func BucketOf(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(BucketLayout)
}

// DayFolder returns the recorder's folder name for t.
func DayFolder(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(DayFolderLayout)
}

// CaptureTime returns HH:MM:SS, taken from a dated file name when present and
// from modTime otherwise.
func CaptureTime(p string, modTime time.Time, loc *time.Location) string {
	if m := namePrefix.FindStringSubmatch(filepath.Base(p)); m != nil {
		if m[2] < "24" && m[3] < "60" && m[4] < "60" {
			return m[2] + ":" + m[3] + ":" + m[4]
		}
	}
	if loc == nil {
		loc = time.Local
	}
	return modTime.In(loc).Format("15:04:05")
}
