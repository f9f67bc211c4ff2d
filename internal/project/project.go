// Package project manages the on-disk layout of generated videos: one directory
// per slug holding the storyboard, scene scripts, media and inputs.
package project

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/flock"
	log "github.com/sirupsen/logrus"

	"github.com/example/mathvideo/internal/models"
)

var (
	ErrNotFound   = errors.New("project not found")
	ErrLocked     = errors.New("project is locked by another pipeline")
	ErrExists     = errors.New("project already exists")
	ErrBadSlug    = errors.New("invalid project slug")
	ErrBadSection = errors.New("invalid section id")
)

const (
	StoryboardFile = "storyboard.json"
	FinalVideoFile = "final_video.mp4"
	lockFile       = ".pipeline.lock"
)

// Store is the output root.
type Store struct {
	Root string
}

func NewStore(root string) *Store { return &Store{Root: root} }

// Project is one slug directory.
type Project struct {
	Slug string
	Dir  string
}

func validSlug(slug string) error {
	if slug == "" || slug == "." || slug == ".." || strings.ContainsAny(slug, `/\`) {
		return fmt.Errorf("%w %q", ErrBadSlug, slug)
	}
	return nil
}

func (s *Store) project(slug string) *Project {
	return &Project{Slug: slug, Dir: filepath.Join(s.Root, slug)}
}

// Create makes the project directory tree. Creating an existing project is not
// an error.
func (s *Store) Create(slug string) (*Project, error) {
	if err := validSlug(slug); err != nil {
		return nil, err
	}
	p := s.project(slug)
	for _, dir := range []string{p.ScriptsDir(), p.MediaDir(), p.InputsDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create project %s: %w", slug, err)
		}
	}
	return p, nil
}

func (s *Store) Open(slug string) (*Project, error) {
	if err := validSlug(slug); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	p := s.project(slug)
	st, err := os.Stat(p.Dir)
	if err != nil || !st.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, slug)
	}
	return p, nil
}

// Rename moves p to newSlug. Renaming to the same slug is a no-op; an existing
// target is refused with ErrExists and p is left untouched.
func (s *Store) Rename(p *Project, newSlug string) error {
	if newSlug == p.Slug {
		return nil
	}
	if err := validSlug(newSlug); err != nil {
		return err
	}
	target := s.project(newSlug)
	if _, err := os.Stat(target.Dir); err == nil {
		return fmt.Errorf("%w: %s", ErrExists, newSlug)
	}
	if err := os.Rename(p.Dir, target.Dir); err != nil {
		return fmt.Errorf("rename %s -> %s: %w", p.Slug, newSlug, err)
	}
	log.WithFields(log.Fields{"from": p.Slug, "to": newSlug}).Info("project renamed")
	p.Slug, p.Dir = target.Slug, target.Dir
	return nil
}

func (s *Store) Delete(slug string) error {
	p, err := s.Open(slug)
	if err != nil {
		return err
	}
	return os.RemoveAll(p.Dir)
}

// Summary is a project listing entry.
type Summary struct {
	Slug          string             `json:"slug"`
	Topic         string             `json:"topic"`
	CreatedAt     time.Time          `json:"created_at"`
	SectionsCount int                `json:"sections_count"`
	HasVideos     bool               `json:"has_videos"`
	Storyboard    *models.Storyboard `json:"storyboard"`
}

// List returns every project, newest first. Directories without a readable
// storyboard are still listed.
func (s *Store) List() ([]Summary, error) {
	entries, err := os.ReadDir(s.Root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	out := make([]Summary, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		p := s.project(e.Name())
		sum := Summary{Slug: p.Slug, Topic: p.Slug}
		if info, err := e.Info(); err == nil {
			sum.CreatedAt = info.ModTime()
		}
		if sb, err := p.LoadStoryboard(); err == nil {
			sum.Storyboard = sb
			sum.SectionsCount = len(sb.Sections)
			if sb.Topic != "" {
				sum.Topic = sb.Topic
			}
			if st, err := os.Stat(p.StoryboardPath()); err == nil {
				sum.CreatedAt = st.ModTime()
			}
		}
		videos, _ := p.Videos()
		sum.HasVideos = len(videos) > 0
		out = append(out, sum)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (p *Project) ScriptsDir() string     { return filepath.Join(p.Dir, "scripts") }
func (p *Project) MediaDir() string       { return filepath.Join(p.Dir, "media") }
func (p *Project) InputsDir() string      { return filepath.Join(p.Dir, "inputs") }
func (p *Project) AssetsDir() string      { return filepath.Join(p.Dir, "assets") }
func (p *Project) StoryboardPath() string { return filepath.Join(p.Dir, StoryboardFile) }
func (p *Project) FinalVideoPath() string { return filepath.Join(p.Dir, FinalVideoFile) }

func (p *Project) ScriptPath(sectionID string) string {
	return filepath.Join(p.ScriptsDir(), sectionID+".py")
}

// scriptPath is ScriptPath for ids that are about to touch the filesystem.
func (p *Project) scriptPath(sectionID string) (string, error) {
	if !models.ValidSectionID(sectionID) {
		return "", fmt.Errorf("%w %q", ErrBadSection, sectionID)
	}
	path := p.ScriptPath(sectionID)
	if filepath.Dir(path) != filepath.Clean(p.ScriptsDir()) {
		return "", fmt.Errorf("%w %q", ErrBadSection, sectionID)
	}
	return path, nil
}

// SaveStoryboard writes indented UTF-8 JSON without HTML escaping.
func (p *Project) SaveStoryboard(sb *models.Storyboard) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(sb); err != nil {
		return err
	}
	return writeFileAtomic(p.StoryboardPath(), buf.Bytes())
}

func (p *Project) LoadStoryboard() (*models.Storyboard, error) {
	data, err := os.ReadFile(p.StoryboardPath())
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s has no storyboard", ErrNotFound, p.Slug)
	}
	if err != nil {
		return nil, err
	}
	var sb models.Storyboard
	if err := json.Unmarshal(data, &sb); err != nil {
		return nil, fmt.Errorf("decode storyboard for %s: %w", p.Slug, err)
	}
	return &sb, nil
}

func (p *Project) WriteScript(sectionID, code string) (string, error) {
	path, err := p.scriptPath(sectionID)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(p.ScriptsDir(), 0o755); err != nil {
		return "", err
	}
	return path, os.WriteFile(path, []byte(code), 0o644)
}

func (p *Project) ReadScript(sectionID string) (string, error) {
	path, err := p.scriptPath(sectionID)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%w: script for %s", ErrNotFound, sectionID)
	}
	return string(data), err
}

// SaveInput copies an uploaded file into inputs/ under its base name.
func (p *Project) SaveInput(name string, r io.Reader) (string, error) {
	name = filepath.Base(filepath.Clean("/" + name))
	if name == "/" || name == "." {
		return "", fmt.Errorf("invalid input file name")
	}
	if err := os.MkdirAll(p.InputsDir(), 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(p.InputsDir(), name)
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return "", err
	}
	return path, f.Close()
}

// Lock takes the exclusive pipeline lock. It fails fast with ErrLocked.
func (p *Project) Lock() (unlock func(), err error) {
	fl := flock.New(filepath.Join(p.Dir, lockFile))
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", p.Slug, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLocked, p.Slug)
	}
	return func() {
		if err := fl.Unlock(); err != nil {
			log.WithError(err).WithField("slug", p.Slug).Warn("release project lock")
		}
	}, nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
