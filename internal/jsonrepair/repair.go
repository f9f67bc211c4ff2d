// Package jsonrepair recovers JSON documents from model output that is wrapped
// in markdown, padded with prose, or subtly malformed.
package jsonrepair

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/tailscale/hujson"
)

// Strategy names the step that produced a successful parse.
type Strategy string

const (
	StrategyStrict         Strategy = "strict"
	StrategyLenient        Strategy = "lenient"
	StrategyEscapedStrict  Strategy = "escape-quotes+strict"
	StrategyEscapedLenient Strategy = "escape-quotes+lenient"
	StrategyModelFix       Strategy = "model-fix"
)

var ErrUnrepairable = errors.New("jsonrepair: no strategy produced valid JSON")

// Fixer asks a model to rewrite broken JSON. It returns the raw reply.
type Fixer func(ctx context.Context, broken string) (string, error)

type parser struct {
	name  Strategy
	parse func(string) (json.RawMessage, error)
}

// local strategies, tried in order on cleaned text.
var parsers = []parser{
	{StrategyStrict, ParseStrict},
	{StrategyLenient, ParseLenient},
	{StrategyEscapedStrict, func(s string) (json.RawMessage, error) { return ParseStrict(EscapeInnerQuotes(s)) }},
	{StrategyEscapedLenient, func(s string) (json.RawMessage, error) { return ParseLenient(EscapeInnerQuotes(s)) }},
}

// Repair runs the strategy cascade and returns the first document that parses.
// fixer may be nil, in which case the model-fix step is skipped.
func Repair(ctx context.Context, raw string, fixer Fixer) (json.RawMessage, Strategy, error) {
	cleaned := Clean(raw)
	if cleaned == "" {
		return nil, "", fmt.Errorf("%w: empty input", ErrUnrepairable)
	}
	for _, p := range parsers {
		if doc, err := p.parse(cleaned); err == nil {
			return doc, p.name, nil
		}
	}
	if fixer == nil {
		return nil, "", ErrUnrepairable
	}

	reply, err := fixer(ctx, cleaned)
	if err != nil {
		return nil, "", fmt.Errorf("%w: model fix: %v", ErrUnrepairable, err)
	}
	fixed := Clean(reply)
	for _, p := range parsers[:2] {
		if doc, err := p.parse(fixed); err == nil {
			return doc, StrategyModelFix, nil
		}
	}
	return nil, "", ErrUnrepairable
}

// Decode repairs raw and unmarshals the result into out.
func Decode(ctx context.Context, raw string, fixer Fixer, out any) (Strategy, error) {
	doc, strategy, err := Repair(ctx, raw, fixer)
	if err != nil {
		return "", err
	}
	if err := json.Unmarshal(doc, out); err != nil {
		return "", fmt.Errorf("%w: decode: %v", ErrUnrepairable, err)
	}
	return strategy, nil
}

// ExtractObject is the light variant used for short replies: clean, then strict
// or lenient parse only.
func ExtractObject(raw string, out any) error {
	cleaned := Clean(raw)
	for _, p := range parsers[:2] {
		doc, err := p.parse(cleaned)
		if err != nil {
			continue
		}
		return json.Unmarshal(doc, out)
	}
	return ErrUnrepairable
}

func ParseStrict(s string) (json.RawMessage, error) {
	if !json.Valid([]byte(s)) {
		return nil, errors.New("invalid json")
	}
	return json.RawMessage(s), nil
}

// ParseLenient accepts comments and trailing commas.
func ParseLenient(s string) (json.RawMessage, error) {
	b, err := hujson.Standardize([]byte(s))
	if err != nil {
		return nil, err
	}
	if !json.Valid(b) {
		return nil, errors.New("invalid json after standardize")
	}
	return json.RawMessage(b), nil
}

var fenceBlock = regexp.MustCompile("(?s)```[A-Za-z0-9_-]*[ \\t]*\\r?\\n?(.*?)```")

// Clean strips markdown fences and trims to the outermost object span. Text
// that starts with '[' is trimmed to the outermost array instead. The first
// fenced block wins only when it parses; values may themselves contain
// backtick fences, so otherwise the span is taken over the whole reply.
func Clean(raw string) string {
	s := strings.TrimSpace(raw)
	if m := fenceBlock.FindStringSubmatch(s); len(m) > 1 {
		inner := outerSpan(strings.TrimSpace(m[1]))
		if _, err := ParseLenient(inner); err == nil {
			return inner
		}
	}
	if strings.HasPrefix(s, "```") {
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			s = s[nl+1:]
		} else {
			s = strings.TrimLeft(s, "`")
		}
	}
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
	return outerSpan(s)
}

func outerSpan(s string) string {
	open, closeCh := byte('{'), byte('}')
	if strings.HasPrefix(s, "[") {
		open, closeCh = '[', ']'
	}
	start := strings.IndexByte(s, open)
	end := strings.LastIndexByte(s, closeCh)
	if start < 0 || end <= start {
		if open == '{' {
			if as, ae := strings.IndexByte(s, '['), strings.LastIndexByte(s, ']'); as >= 0 && ae > as {
				return s[as : ae+1]
			}
		}
		return s
	}
	return s[start : end+1]
}
