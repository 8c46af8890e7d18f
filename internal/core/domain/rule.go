package domain

import (
	"errors"
	"fmt"
	"strings"
)

type RuleType string

const (
	RuleRegex            RuleType = "regex"
	RuleKeyword          RuleType = "keyword"
	RuleKeywordProximity RuleType = "keyword_proximity"
	RuleLineAfterKeyword RuleType = "line_after_keyword"
	RulePosition         RuleType = "position"
)

// ExtractMode narrows the window captured after a keyword.
type ExtractMode string

const (
	ExtractRaw  ExtractMode = "raw"
	ExtractLine ExtractMode = "line"
	ExtractWord ExtractMode = "word"
)

// RuleSpec is the persisted form of an extraction rule: a tagged variant keyed
// by Type. Only the sub-fields of the selected variant are meaningful.
type RuleSpec struct {
	Type RuleType `json:"type" yaml:"type"`

	// regex
	Pattern      string   `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	Patterns     []string `json:"patterns,omitempty" yaml:"patterns,omitempty"`
	CaptureGroup *int     `json:"capture_group,omitempty" yaml:"capture_group,omitempty"`
	Value        string   `json:"value,omitempty" yaml:"value,omitempty"`

	// keyword, keyword_proximity, line_after_keyword
	Keyword     string      `json:"keyword,omitempty" yaml:"keyword,omitempty"`
	Keywords    []string    `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	WindowChars int         `json:"window_chars,omitempty" yaml:"window_chars,omitempty"`
	ExtractAs   ExtractMode `json:"extract_as,omitempty" yaml:"extract_as,omitempty"`
	MaxDistance int         `json:"max_distance,omitempty" yaml:"max_distance,omitempty"`

	// position
	Start *int `json:"start,omitempty" yaml:"start,omitempty"`
	End   *int `json:"end,omitempty" yaml:"end,omitempty"`
}

// AllPatterns returns Pattern followed by Patterns, skipping blanks, in authoring order.
func (s RuleSpec) AllPatterns() []string {
	out := make([]string, 0, len(s.Patterns)+1)
	if strings.TrimSpace(s.Pattern) != "" {
		out = append(out, s.Pattern)
	}
	for _, p := range s.Patterns {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return out
}

// AllKeywords returns Keyword followed by Keywords, skipping blanks, in authoring order.
func (s RuleSpec) AllKeywords() []string {
	out := make([]string, 0, len(s.Keywords)+1)
	if strings.TrimSpace(s.Keyword) != "" {
		out = append(out, s.Keyword)
	}
	for _, k := range s.Keywords {
		if strings.TrimSpace(k) != "" {
			out = append(out, k)
		}
	}
	return out
}

// Validate checks the structural requirements of the selected variant.
// Pattern syntax is checked when the rule is compiled.
func (s RuleSpec) Validate() error {
	var err error
	switch s.Type {
	case "":
		err = errors.New("rule type is required")
	case RuleRegex:
		if len(s.AllPatterns()) == 0 {
			err = errors.New("regex rule requires pattern or patterns")
		} else if s.CaptureGroup != nil && *s.CaptureGroup < 0 {
			err = fmt.Errorf("capture_group must be >= 0, got %d", *s.CaptureGroup)
		}
	case RuleKeyword:
		switch {
		case len(s.AllKeywords()) == 0:
			err = errors.New("keyword rule requires keyword or keywords")
		case s.WindowChars < 0:
			err = fmt.Errorf("window_chars must be >= 0, got %d", s.WindowChars)
		}
		switch s.ExtractAs {
		case "", ExtractRaw, ExtractLine, ExtractWord:
		default:
			err = fmt.Errorf("unknown extract_as %q", s.ExtractAs)
		}
	case RuleKeywordProximity:
		if len(s.AllKeywords()) == 0 {
			err = errors.New("keyword_proximity rule requires keywords")
		} else if s.MaxDistance < 0 {
			err = fmt.Errorf("max_distance must be >= 0, got %d", s.MaxDistance)
		}
	case RuleLineAfterKeyword:
		if strings.TrimSpace(s.Keyword) == "" {
			err = errors.New("line_after_keyword rule requires keyword")
		}
	case RulePosition:
		switch {
		case s.Start == nil || s.End == nil:
			err = errors.New("position rule requires start and end")
		case *s.Start < 0 || *s.End <= *s.Start:
			err = fmt.Errorf("position rule requires 0 <= start < end, got %d..%d", *s.Start, *s.End)
		}
	default:
		err = fmt.Errorf("unknown rule type %q", s.Type)
	}
	if err != nil {
		return WrapError(ErrInvalidRule, "validate rule", err)
	}
	return nil
}
