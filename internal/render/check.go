package render

import (
	"context"
	"os/exec"
	"strings"
	"time"
)

// Result is one external dependency check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// CheckBinaries verifies that python, the manim module and ffmpeg are usable.
func CheckBinaries(ctx context.Context, python, ffmpeg string) []Result {
	if python == "" {
		python = "python"
	}
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}
	return []Result{
		checkCommand(ctx, "python", python, "--version"),
		checkCommand(ctx, "manim", python, "-m", "manim", "--version"),
		checkCommand(ctx, "ffmpeg", ffmpeg, "-version"),
	}
}

func checkCommand(ctx context.Context, name, binary string, args ...string) Result {
	if _, err := exec.LookPath(binary); err != nil {
		return Result{Name: name, Detail: "not found: " + binary}
	}
	ctx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()
	out, err := exec.CommandContext(ctx, binary, args...).CombinedOutput() //nolint:gosec
	if err != nil {
		return Result{Name: name, Detail: TailError(string(out), 120)}
	}
	line, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	return Result{Name: name, Passed: true, Detail: line}
}
