package project

import (
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/example/mathvideo/internal/models"
)

// Video is a rendered file served under /static.
type Video struct {
	Name      string `json:"name"`
	Path      string `json:"path"`
	SectionID string `json:"section_id,omitempty"`
}

// Script is one scene source file.
type Script struct {
	SectionID string `json:"section_id"`
	Code      string `json:"code"`
}

// Videos lists the final video first, then section videos by section id.
// Partial movie fragments are skipped.
func (p *Project) Videos() ([]Video, error) {
	var out []Video
	if _, err := os.Stat(p.FinalVideoPath()); err == nil {
		out = append(out, Video{Name: FinalVideoFile, Path: p.staticPath(FinalVideoFile)})
	}
	matches, err := doublestar.Glob(os.DirFS(p.Dir), "media/videos/**/*.mp4")
	if err != nil {
		return out, err
	}
	sort.Strings(matches)
	for _, rel := range matches {
		if strings.Contains(rel, "partial_movie_files") {
			continue
		}
		parts := strings.Split(rel, "/")
		out = append(out, Video{Name: path.Base(rel), Path: p.staticPath(rel), SectionID: parts[2]})
	}
	return out, nil
}

func (p *Project) staticPath(rel string) string {
	return "/static/" + p.Slug + "/" + rel
}

// Scripts returns every scene script, ordered by file name.
func (p *Project) Scripts() ([]Script, error) {
	matches, err := doublestar.Glob(os.DirFS(p.ScriptsDir()), "*.py")
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	out := make([]Script, 0, len(matches))
	for _, name := range matches {
		data, err := os.ReadFile(filepath.Join(p.ScriptsDir(), name))
		if err != nil {
			continue
		}
		out = append(out, Script{SectionID: strings.TrimSuffix(name, ".py"), Code: string(data)})
	}
	return out, nil
}

// SectionVideo returns the newest rendered video for a section, or "".
func (p *Project) SectionVideo(sectionID string) string {
	if !models.ValidSectionID(sectionID) {
		return ""
	}
	matches, err := doublestar.Glob(os.DirFS(p.MediaDir()), "videos/"+sectionID+"/**/*.mp4")
	if err != nil {
		return ""
	}
	var best string
	var bestTime time.Time
	for _, rel := range matches {
		if strings.Contains(rel, "partial_movie_files") {
			continue
		}
		full := filepath.Join(p.MediaDir(), filepath.FromSlash(rel))
		st, err := os.Stat(full)
		if err != nil {
			continue
		}
		if best == "" || st.ModTime().After(bestTime) {
			best, bestTime = full, st.ModTime()
		}
	}
	return best
}
