package project

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/mathvideo/internal/models"
)

func TestCreateOpenAndStoryboardRoundTrip(t *testing.T) {
	s := NewStore(t.TempDir())
	p, err := s.Create("pythagoras-abc123")
	require.NoError(t, err)
	for _, dir := range []string{p.ScriptsDir(), p.MediaDir(), p.InputsDir()} {
		assert.DirExists(t, dir)
	}

	sb := &models.Storyboard{Topic: "勾股定理 <a&b>", TaskType: models.TaskKnowledge, Sections: []models.Section{{ID: "section_1", Title: "Intro"}}}
	require.NoError(t, p.SaveStoryboard(sb))
	raw, err := os.ReadFile(p.StoryboardPath())
	require.NoError(t, err)
	assert.Contains(t, string(raw), "勾股定理 <a&b>")
	assert.Contains(t, string(raw), "\n  \"topic\"")

	opened, err := s.Open("pythagoras-abc123")
	require.NoError(t, err)
	got, err := opened.LoadStoryboard()
	require.NoError(t, err)
	assert.Equal(t, sb.Topic, got.Topic)

	_, err = s.Open("missing")
	assert.True(t, errors.Is(err, ErrNotFound))
	_, err = s.Open("../etc")
	assert.True(t, errors.Is(err, ErrNotFound))
	_, err = s.Create("a/b")
	assert.Error(t, err)
}

func TestRename(t *testing.T) {
	s := NewStore(t.TempDir())
	p, err := s.Create("first")
	require.NoError(t, err)

	require.NoError(t, s.Rename(p, "first"))
	assert.Equal(t, "first", p.Slug)

	_, err = s.Create("taken")
	require.NoError(t, err)
	err = s.Rename(p, "taken")
	assert.True(t, errors.Is(err, ErrExists))
	assert.Equal(t, "first", p.Slug)
	assert.DirExists(t, filepath.Join(s.Root, "first"))

	require.NoError(t, s.Rename(p, "second"))
	assert.Equal(t, "second", p.Slug)
	assert.NoDirExists(t, filepath.Join(s.Root, "first"))
	assert.DirExists(t, p.ScriptsDir())
}

func TestLockIsExclusive(t *testing.T) {
	s := NewStore(t.TempDir())
	p, err := s.Create("locked")
	require.NoError(t, err)

	unlock, err := p.Lock()
	require.NoError(t, err)

	_, err = p.Lock()
	assert.True(t, errors.Is(err, ErrLocked))

	unlock()
	unlock2, err := p.Lock()
	require.NoError(t, err)
	unlock2()
}

func TestScriptsVideosAndList(t *testing.T) {
	s := NewStore(t.TempDir())
	older, err := s.Create("older")
	require.NoError(t, err)
	require.NoError(t, older.SaveStoryboard(&models.Storyboard{Topic: "Old"}))
	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(older.StoryboardPath(), past, past))

	p, err := s.Create("newer")
	require.NoError(t, err)
	require.NoError(t, p.SaveStoryboard(&models.Storyboard{Topic: "New", Sections: []models.Section{{ID: "section_1"}, {ID: "section_2"}}}))
	_, err = p.WriteScript("section_2", "b")
	require.NoError(t, err)
	_, err = p.WriteScript("section_1", "a")
	require.NoError(t, err)

	video := filepath.Join(p.MediaDir(), "videos", "section_1", "480p15", "Section1Scene.mp4")
	partial := filepath.Join(p.MediaDir(), "videos", "section_1", "480p15", "partial_movie_files", "Section1Scene", "x.mp4")
	for _, f := range []string{video, partial, p.FinalVideoPath()} {
		require.NoError(t, os.MkdirAll(filepath.Dir(f), 0o755))
		require.NoError(t, os.WriteFile(f, []byte("v"), 0o644))
	}

	scripts, err := p.Scripts()
	require.NoError(t, err)
	require.Len(t, scripts, 2)
	assert.Equal(t, Script{SectionID: "section_1", Code: "a"}, scripts[0])

	videos, err := p.Videos()
	require.NoError(t, err)
	require.Len(t, videos, 2)
	assert.Equal(t, "/static/newer/final_video.mp4", videos[0].Path)
	assert.Equal(t, "/static/newer/media/videos/section_1/480p15/Section1Scene.mp4", videos[1].Path)
	assert.Equal(t, "section_1", videos[1].SectionID)
	assert.Equal(t, video, p.SectionVideo("section_1"))
	assert.Equal(t, "", p.SectionVideo("section_2"))

	list, err := s.List()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "newer", list[0].Slug)
	assert.Equal(t, "New", list[0].Topic)
	assert.Equal(t, 2, list[0].SectionsCount)
	assert.True(t, list[0].HasVideos)
	assert.False(t, list[1].HasVideos)

	require.NoError(t, s.Delete("older"))
	_, err = s.Open("older")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSaveInputUsesBaseName(t *testing.T) {
	s := NewStore(t.TempDir())
	p, err := s.Create("inputs")
	require.NoError(t, err)
	path, err := p.SaveInput("../../evil/figure.png", strings.NewReader("img"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(p.InputsDir(), "figure.png"), path)
}

func TestExtractPDFTextRejectsNonPDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.pdf")
	require.NoError(t, os.WriteFile(path, []byte("plain text"), 0o644))
	_, err := ExtractPDFText(path, 0)
	assert.Error(t, err)
}

func TestScriptsStayInsideProject(t *testing.T) {
	root := t.TempDir()
	p, err := NewStore(root).Create("demo")
	require.NoError(t, err)

	for _, id := range []string{"../../escaped", "../storyboard", "a/b", "*", ""} {
		_, err := p.WriteScript(id, "print(1)")
		assert.ErrorIs(t, err, ErrBadSection, id)
		_, err = p.ReadScript(id)
		assert.ErrorIs(t, err, ErrBadSection, id)
		assert.Equal(t, "", p.SectionVideo(id))
	}
	assert.NoFileExists(t, filepath.Join(root, "escaped.py"))
	assert.NoFileExists(t, filepath.Join(p.Dir, "storyboard.py"))

	path, err := p.WriteScript("section_1", "print(1)")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(p.ScriptsDir(), "section_1.py"), path)
}
