package agents

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/example/mathvideo/internal/models"
)

const maxSkillsChars = 12000

// SkillLibrary appends curated Manim know-how to prompts. Files live under
// <dir>/common and <dir>/<task type>; markdown is used verbatim and YAML is
// rendered as bullet points. A nil library contributes nothing.
type SkillLibrary struct {
	fsys fs.FS
}

func NewSkillLibrary(dir string) *SkillLibrary {
	if dir == "" {
		return nil
	}
	if st, err := os.Stat(dir); err != nil || !st.IsDir() {
		log.WithField("dir", dir).Debug("skill library not found")
		return nil
	}
	return &SkillLibrary{fsys: os.DirFS(dir)}
}

// NewSkillLibraryFS is used by tests.
func NewSkillLibraryFS(fsys fs.FS) *SkillLibrary { return &SkillLibrary{fsys: fsys} }

type skillDoc struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Rules       []string `yaml:"rules"`
	Examples    []string `yaml:"examples"`
}

// Files lists the skill files that apply to a task type, common ones first.
func (l *SkillLibrary) Files(t models.TaskType) []string {
	if l == nil {
		return nil
	}
	var out []string
	for _, dir := range []string{"common", string(t)} {
		matches, err := doublestar.Glob(l.fsys, dir+"/**/*.{md,yaml,yml}")
		if err != nil {
			continue
		}
		out = append(out, matches...)
	}
	return out
}

// Prompt renders the applicable skills as a prompt section.
func (l *SkillLibrary) Prompt(t models.TaskType) string {
	files := l.Files(t)
	if len(files) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n## Skills\n")
	for _, name := range files {
		text, err := l.render(name)
		if err != nil {
			log.WithError(err).WithField("file", name).Warn("skipping skill file")
			continue
		}
		if text == "" {
			continue
		}
		if b.Len()+len(text) > maxSkillsChars {
			log.WithField("file", name).Debug("skill budget exhausted")
			break
		}
		b.WriteString(text)
		b.WriteString("\n")
	}
	return b.String()
}

func (l *SkillLibrary) render(name string) (string, error) {
	data, err := fs.ReadFile(l.fsys, name)
	if err != nil {
		return "", err
	}
	if path.Ext(name) == ".md" {
		return strings.TrimSpace(string(data)), nil
	}
	var doc skillDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return "", fmt.Errorf("decode %s: %w", name, err)
	}
	title := doc.Name
	if title == "" {
		title = strings.TrimSuffix(path.Base(name), path.Ext(name))
	}
	var b strings.Builder
	fmt.Fprintf(&b, "### %s\n", title)
	if doc.Description != "" {
		b.WriteString(doc.Description + "\n")
	}
	for _, r := range doc.Rules {
		fmt.Fprintf(&b, "- %s\n", r)
	}
	for _, e := range doc.Examples {
		fmt.Fprintf(&b, "Example:\n%s\n", strings.TrimSpace(e))
	}
	return strings.TrimSpace(b.String()), nil
}
