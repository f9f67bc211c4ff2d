package render

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/mathvideo/internal/models"
)

func fakeBinary(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell fakes need a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "fake")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

// args: -m manim -ql --media_dir <media> <script> <Class>
const fakeManimOK = `stem=$(basename "$6" .py)
mkdir -p "$5/videos/$stem/480p15/partial_movie_files/$7"
touch "$5/videos/$stem/480p15/partial_movie_files/$7/$7.mp4"
touch "$5/videos/$stem/480p15/$7.mp4"
echo rendered`

func TestManimRendererSuccess(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "scripts", "section_1.py")
	require.NoError(t, os.MkdirAll(filepath.Dir(script), 0o755))
	require.NoError(t, os.WriteFile(script, []byte("pass"), 0o644))
	media := filepath.Join(dir, "media")

	r := &ManimRenderer{Python: fakeBinary(t, fakeManimOK)}
	res := r.Render(context.Background(), script, "Section1Scene", media)
	require.True(t, res.OK(), res.ErrorText)
	assert.Equal(t, filepath.Join(media, "videos", "section_1", "480p15", "Section1Scene.mp4"), res.VideoPath)
}

func TestManimRendererFailureCarriesOutput(t *testing.T) {
	dir := t.TempDir()
	r := &ManimRenderer{Python: fakeBinary(t, `echo "NameError: name 'Sqaure' is not defined" >&2; exit 1`)}
	res := r.Render(context.Background(), filepath.Join(dir, "s.py"), "SScene", filepath.Join(dir, "media"))
	assert.Equal(t, models.RenderFailure, res.Status)
	assert.Contains(t, res.ErrorText, "NameError")
}

func TestManimRendererCleanExitWithoutVideoFails(t *testing.T) {
	dir := t.TempDir()
	r := &ManimRenderer{Python: fakeBinary(t, `echo nothing to do`)}
	res := r.Render(context.Background(), filepath.Join(dir, "s.py"), "SScene", filepath.Join(dir, "media"))
	assert.False(t, res.OK())
	assert.Contains(t, res.ErrorText, "no video found")
}

func TestTailError(t *testing.T) {
	assert.Equal(t, "abc", TailError("  abc\n", 10))
	assert.Equal(t, "cde", TailError("abcde", 3))
	long := strings.Repeat("x", 600) + "END"
	assert.Len(t, TailError(long, MaxErrorChars), MaxErrorChars)
	assert.True(t, strings.HasSuffix(TailError(long, MaxErrorChars), "END"))
}

func TestConcatSingleVideoIsCopied(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.mp4")
	require.NoError(t, os.WriteFile(src, []byte("video-a"), 0o644))
	out := filepath.Join(dir, "final_video.mp4")

	f := &FFmpeg{Binary: "/nonexistent/ffmpeg"}
	require.NoError(t, f.Concat(context.Background(), []string{src}, out))
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "video-a", string(data))

	assert.Error(t, f.Concat(context.Background(), nil, out))
}

func TestConcatUsesDemuxerListInOrder(t *testing.T) {
	dir := t.TempDir()
	var videos []string
	for _, name := range []string{"b.mp4", "a.mp4"} {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(name), 0o644))
		videos = append(videos, p)
	}
	out := filepath.Join(dir, "final_video.mp4")
	// args: -y -f concat -safe 0 -i <list> -c copy <out>
	f := &FFmpeg{Binary: fakeBinary(t, `cp "$7" "${10}"`)}

	require.NoError(t, f.Concat(context.Background(), videos, out))
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "file '"+videos[0]+"'\nfile '"+videos[1]+"'\n", string(data))
	assert.NoFileExists(t, filepath.Join(dir, "_concat_list.txt"))
}

func TestExtractFramesClearsOldFrames(t *testing.T) {
	dir := t.TempDir()
	frames := filepath.Join(dir, "frames")
	require.NoError(t, os.MkdirAll(frames, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(frames, "frame_009.png"), nil, 0o644))

	// args: -i <video> -vf <filter> <pattern> -y
	f := &FFmpeg{Binary: fakeBinary(t, `d=$(dirname "$5"); touch "$d/frame_001.png" "$d/frame_002.png"`)}
	got, err := f.ExtractFrames(context.Background(), filepath.Join(dir, "v.mp4"), frames)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(frames, "frame_001.png"), filepath.Join(frames, "frame_002.png")}, got)
}

func TestCheckBinariesReportsMissing(t *testing.T) {
	results := CheckBinaries(context.Background(), "/nonexistent/python", "/nonexistent/ffmpeg")
	require.Len(t, results, 3)
	for _, r := range results {
		assert.False(t, r.Passed, r.Name)
		assert.Contains(t, r.Detail, "not found")
	}
}
