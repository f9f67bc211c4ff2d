package agents

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/example/mathvideo/internal/models"
	"github.com/example/mathvideo/internal/progress"
	"github.com/example/mathvideo/internal/providers/llm"
	"github.com/example/mathvideo/internal/slug"
)

const maxAssetKeywords = 4

// AssetEnhancer asks the model which icons would help and writes a placeholder
// SVG for each so scene code can load them.
type AssetEnhancer struct {
	Model   Model
	Enabled bool
}

// Enhance sets sb.AvailableAssets. Failures are reported and leave the
// storyboard unchanged.
func (a *AssetEnhancer) Enhance(ctx context.Context, sb *models.Storyboard, assetsDir string) {
	if a == nil || !a.Enabled {
		return
	}
	progress.Info(ctx, "looking for helpful visual assets")
	keywords, err := a.Keywords(ctx, sb)
	if err != nil {
		progress.Warn(ctx, fmt.Sprintf("asset analysis failed: %v", err))
		return
	}
	if len(keywords) == 0 {
		progress.Info(ctx, "no assets needed")
		return
	}
	if err := os.MkdirAll(assetsDir, 0o755); err != nil {
		progress.Warn(ctx, fmt.Sprintf("asset directory: %v", err))
		return
	}
	found := make(map[string]string, len(keywords))
	for _, kw := range keywords {
		path := filepath.Join(assetsDir, slug.Slugify(kw)+".svg")
		if err := os.WriteFile(path, placeholderSVG(kw), 0o644); err != nil {
			progress.Warn(ctx, fmt.Sprintf("asset %q: %v", kw, err))
			continue
		}
		found[kw] = path
	}
	if len(found) > 0 {
		sb.AvailableAssets = found
		progress.Success(ctx, fmt.Sprintf("prepared %d asset(s): %s", len(found), strings.Join(keywords, ", ")))
	}
}

// Keywords returns up to four distinct, non-empty icon keywords.
func (a *AssetEnhancer) Keywords(ctx context.Context, sb *models.Storyboard) ([]string, error) {
	brief, err := json.Marshal(struct {
		Topic    string           `json:"topic"`
		Sections []models.Section `json:"sections"`
	}{sb.Topic, sb.Sections})
	if err != nil {
		return nil, err
	}
	var raw []string
	if err := a.Model.CompleteJSON(ctx, assetsPrompt, map[string]string{"Storyboard": string(brief)}, llm.Options{Temperature: 0.3, MaxTokens: 512}, &raw); err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(raw))
	var out []string
	for _, kw := range raw {
		kw = strings.TrimSpace(kw)
		key := strings.ToLower(kw)
		if kw == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, kw)
		if len(out) == maxAssetKeywords {
			break
		}
	}
	return out, nil
}

func placeholderSVG(keyword string) []byte {
	var label strings.Builder
	_ = xml.EscapeText(&label, []byte(keyword))
	return []byte(fmt.Sprintf(`<svg width="200" height="200" xmlns="http://www.w3.org/2000/svg">
  <rect width="200" height="200" fill="#E0E0E0" stroke="black" stroke-width="2"/>
  <text x="100" y="100" font-family="Arial" font-size="20" text-anchor="middle" dominant-baseline="middle" fill="black">%s</text>
</svg>
`, label.String()))
}
