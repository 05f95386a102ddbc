// Package fileserver serves recorded audio from disk.
package fileserver

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/labstack/echo/v4"
	"thirdcoast.systems/scanwatch/internal/recording"
)

const defaultCacheControl = "private, max-age=86400"

// Recordings serves files that live under one recordings root. A recording
// never changes once it is stable, so a stat-based weak ETag is enough.
type Recordings struct {
	root         string
	cacheControl string
}

func NewRecordings(root string) *Recordings {
	return &Recordings{root: root, cacheControl: defaultCacheControl}
}

// Resolve returns the absolute path of p if it lies inside the root.
// Symlinks are resolved on both sides so a link cannot point a recording
// outside the tree.
func (r *Recordings) Resolve(p string) (string, error) {
	return ResolveUnder(r.root, p)
}

// Serve writes the recording at p. Range and conditional requests are left
// to http.ServeContent, which the audio player relies on for seeking.
// A path outside the root returns recording.ErrOutsideRoot.
func (r *Recordings) Serve(c echo.Context, p string) error {
	abs, err := r.Resolve(p)
	if err != nil {
		return err
	}
	f, err := os.Open(abs)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "recording not found")
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil || info.IsDir() {
		return echo.NewHTTPError(http.StatusNotFound, "recording not found")
	}

	h := c.Response().Header()
	h.Set(echo.HeaderCacheControl, r.cacheControl)
	h.Set(echo.HeaderContentType, AudioContentType(abs))
	h.Set("ETag", WeakETag(info))
	http.ServeContent(c.Response(), c.Request(), filepath.Base(abs), info.ModTime(), f)
	return nil
}

// WeakETag derives a validator from size and modification time.
func WeakETag(info os.FileInfo) string {
	return fmt.Sprintf(`W/"%x-%x"`, info.ModTime().Unix(), info.Size())
}

func ResolveUnder(root, p string) (string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	if r, err := filepath.EvalSymlinks(absRoot); err == nil {
		absRoot = r
	}
	absPath, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	if r, err := filepath.EvalSymlinks(absPath); err == nil {
		absPath = r
	}
	if _, err := recording.RelPath(absRoot, absPath); err != nil {
		return "", err
	}
	return absPath, nil
}

// AudioContentType maps a recording extension to its MIME type.
func AudioContentType(p string) string {
	switch strings.ToLower(filepath.Ext(p)) {
	case ".wav":
		return "audio/wav"
	case ".m4a":
		return "audio/mp4"
	case ".ogg":
		return "audio/ogg"
	case ".flac":
		return "audio/flac"
	default:
		return "audio/mpeg"
	}
}
