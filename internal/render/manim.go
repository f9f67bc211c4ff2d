package render

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	log "github.com/sirupsen/logrus"

	"github.com/example/mathvideo/internal/models"
)

const defaultRenderTimeout = 10 * time.Minute

// ManimRenderer runs `python -m manim` on one scene.
type ManimRenderer struct {
	Python  string
	Quality string // l, m, h, p or k
	Timeout time.Duration
}

func (m *ManimRenderer) python() string {
	if m.Python == "" {
		return "python"
	}
	return m.Python
}

func (m *ManimRenderer) args(scriptPath, className, mediaDir string) []string {
	q := m.Quality
	if q == "" {
		q = "l"
	}
	return []string{"-m", "manim", "-q" + q, "--media_dir", mediaDir, scriptPath, className}
}

// Render runs the scene and locates the produced video. A zero exit without a
// video counts as a failure.
func (m *ManimRenderer) Render(ctx context.Context, scriptPath, className, mediaDir string) models.RenderResult {
	timeout := m.Timeout
	if timeout <= 0 {
		timeout = defaultRenderTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := os.MkdirAll(mediaDir, 0o755); err != nil {
		return failure(fmt.Sprintf("create media dir: %v", err))
	}
	start := time.Now()
	cmd := exec.CommandContext(ctx, m.python(), m.args(scriptPath, className, mediaDir)...) //nolint:gosec
	cmd.Dir = filepath.Dir(scriptPath)
	out, err := cmd.CombinedOutput()
	entry := log.WithFields(log.Fields{
		"script":  filepath.Base(scriptPath),
		"class":   className,
		"elapsed": time.Since(start).Round(time.Millisecond),
	})
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			entry.Warn("manim render timed out")
			return failure(fmt.Sprintf("render timed out after %s\n%s", timeout, TailError(string(out), MaxErrorChars)))
		}
		entry.WithError(err).Debug("manim render failed")
		text := strings.TrimSpace(string(out))
		if text == "" {
			text = err.Error()
		}
		return failure(text)
	}

	video, err := FindVideo(mediaDir, scriptPath, className)
	if err != nil {
		entry.WithError(err).Warn("manim exited cleanly but produced no video")
		return failure(fmt.Sprintf("%v\n%s", err, TailError(string(out), MaxErrorChars)))
	}
	entry.WithField("video", video).Debug("manim render ok")
	return models.RenderResult{Status: models.RenderSuccess, VideoPath: video}
}

// FindVideo returns the newest <Class>.mp4 under media/videos/<script stem>/.
func FindVideo(mediaDir, scriptPath, className string) (string, error) {
	stem := strings.TrimSuffix(filepath.Base(scriptPath), filepath.Ext(scriptPath))
	pattern := "videos/" + stem + "/**/" + className + ".mp4"
	matches, err := doublestar.Glob(os.DirFS(mediaDir), pattern)
	if err != nil {
		return "", fmt.Errorf("glob %s: %w", pattern, err)
	}
	var best string
	var bestTime time.Time
	for _, rel := range matches {
		if strings.Contains(rel, "partial_movie_files") {
			continue
		}
		path := filepath.Join(mediaDir, filepath.FromSlash(rel))
		st, err := os.Stat(path)
		if err != nil {
			continue
		}
		if best == "" || st.ModTime().After(bestTime) {
			best, bestTime = path, st.ModTime()
		}
	}
	if best == "" {
		return "", fmt.Errorf("no video found for %s in %s", className, mediaDir)
	}
	return best, nil
}
