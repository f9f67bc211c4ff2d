package render

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"
)

// FFmpeg wraps the ffmpeg binary for frame sampling and concatenation.
type FFmpeg struct {
	Binary  string
	Timeout time.Duration
}

func (f *FFmpeg) binary() string {
	if f.Binary == "" {
		return "ffmpeg"
	}
	return f.Binary
}

func (f *FFmpeg) run(ctx context.Context, dir string, args ...string) error {
	timeout := f.Timeout
	if timeout <= 0 {
		timeout = defaultRenderTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, f.binary(), args...) //nolint:gosec
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg: %w: %s", err, TailError(string(out), MaxErrorChars))
	}
	return nil
}

// ExtractFrames samples one frame per second at 320px width into outDir after
// clearing frames from earlier runs. Paths are returned in time order.
func (f *FFmpeg) ExtractFrames(ctx context.Context, videoPath, outDir string) ([]string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, err
	}
	old, _ := doublestar.FilepathGlob(filepath.Join(outDir, "frame_*.png"))
	for _, p := range old {
		_ = os.Remove(p)
	}
	err := f.run(ctx, outDir,
		"-i", videoPath,
		"-vf", "fps=1.0,scale=320:-1",
		filepath.Join(outDir, "frame_%03d.png"),
		"-y",
	)
	if err != nil {
		return nil, fmt.Errorf("extract frames: %w", err)
	}
	frames, err := doublestar.FilepathGlob(filepath.Join(outDir, "frame_*.png"))
	if err != nil {
		return nil, err
	}
	sort.Strings(frames)
	return frames, nil
}

// Concat joins videos in order into out. A single input is copied; two or more
// go through the concat demuxer with stream copy.
func (f *FFmpeg) Concat(ctx context.Context, videos []string, out string) error {
	switch len(videos) {
	case 0:
		return fmt.Errorf("concat: no videos")
	case 1:
		if err := copyFile(videos[0], out); err != nil {
			return fmt.Errorf("concat: copy single video: %w", err)
		}
	default:
		dir := filepath.Dir(out)
		list := filepath.Join(dir, "_concat_list.txt")
		var b strings.Builder
		for _, v := range videos {
			abs, err := filepath.Abs(v)
			if err != nil {
				return err
			}
			fmt.Fprintf(&b, "file '%s'\n", strings.ReplaceAll(abs, "'", `'\''`))
		}
		if err := os.WriteFile(list, []byte(b.String()), 0o644); err != nil {
			return fmt.Errorf("concat: write list: %w", err)
		}
		defer os.Remove(list)
		if err := f.run(ctx, dir, "-y", "-f", "concat", "-safe", "0", "-i", list, "-c", "copy", out); err != nil {
			return fmt.Errorf("concat: %w", err)
		}
	}
	if st, err := os.Stat(out); err == nil {
		log.WithFields(log.Fields{"videos": len(videos), "size": humanize.Bytes(uint64(st.Size()))}).Info("final video written")
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
