package extraction

import (
	"fmt"
	"regexp"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/joseffiran/SilkRouteHelper-1/internal/core/domain"
)

// Rule is a compiled extraction rule. Every variant has exactly one handler
// in Evaluator.Apply.
type Rule interface {
	Type() domain.RuleType
}

type RegexRule struct {
	Patterns     []*regexp.Regexp
	CaptureGroup *int
	// Constant replaces the matched text when non-empty.
	Constant string
}

// KeywordRule tries each keyword in authoring order and keeps the best window.
type KeywordRule struct {
	Keywords []*regexp.Regexp
	Window   int
	Mode     domain.ExtractMode
}

type KeywordProximityRule struct {
	Keywords    []*regexp.Regexp
	MaxDistance int
}

type LineAfterKeywordRule struct {
	Keyword string
}

type PositionRule struct {
	Start int
	End   int
}

func (RegexRule) Type() domain.RuleType            { return domain.RuleRegex }
func (KeywordRule) Type() domain.RuleType          { return domain.RuleKeyword }
func (KeywordProximityRule) Type() domain.RuleType { return domain.RuleKeywordProximity }
func (LineAfterKeywordRule) Type() domain.RuleType { return domain.RuleLineAfterKeyword }
func (PositionRule) Type() domain.RuleType         { return domain.RulePosition }

const (
	defaultKeywordWindow = 50
	defaultMaxDistance   = 50
)

// Compiler turns persisted rule specs into compiled rules, reusing compiled
// expressions across calls when a cache is configured.
type Compiler struct {
	keywordWindow int
	cache         *lru.Cache[string, *regexp.Regexp]
}

// NewCompiler builds a compiler; cacheSize <= 0 disables the expression cache.
func NewCompiler(keywordWindow, cacheSize int) *Compiler {
	if keywordWindow <= 0 {
		keywordWindow = defaultKeywordWindow
	}
	c := &Compiler{keywordWindow: keywordWindow}
	if cacheSize > 0 {
		cache, err := lru.New[string, *regexp.Regexp](cacheSize)
		if err == nil {
			c.cache = cache
		}
	}
	return c
}

// Validate reports whether spec compiles into a usable rule.
func Validate(spec domain.RuleSpec) error {
	_, err := NewCompiler(defaultKeywordWindow, 0).Compile(spec)
	return err
}

func (c *Compiler) Compile(spec domain.RuleSpec) (Rule, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	switch spec.Type {
	case domain.RuleRegex:
		return c.compileRegex(spec)
	case domain.RuleKeyword:
		keywords, err := c.keywords(spec.AllKeywords())
		if err != nil {
			return nil, err
		}
		window := spec.WindowChars
		if window == 0 {
			window = c.keywordWindow
		}
		mode := spec.ExtractAs
		if mode == "" {
			mode = domain.ExtractRaw
		}
		return KeywordRule{Keywords: keywords, Window: window, Mode: mode}, nil
	case domain.RuleKeywordProximity:
		keywords, err := c.keywords(spec.AllKeywords())
		if err != nil {
			return nil, err
		}
		rule := KeywordProximityRule{Keywords: keywords, MaxDistance: spec.MaxDistance}
		if rule.MaxDistance == 0 {
			rule.MaxDistance = defaultMaxDistance
		}
		return rule, nil
	case domain.RuleLineAfterKeyword:
		return LineAfterKeywordRule{Keyword: strings.ToLower(spec.Keyword)}, nil
	case domain.RulePosition:
		return PositionRule{Start: *spec.Start, End: *spec.End}, nil
	}
	return nil, domain.WrapError(domain.ErrInvalidRule, "compile rule", fmt.Errorf("unsupported rule type %q", spec.Type))
}

func (c *Compiler) compileRegex(spec domain.RuleSpec) (Rule, error) {
	patterns := spec.AllPatterns()
	rule := RegexRule{
		Patterns:     make([]*regexp.Regexp, 0, len(patterns)),
		CaptureGroup: spec.CaptureGroup,
		Constant:     spec.Value,
	}
	for _, p := range patterns {
		re, err := c.regexp("(?im)" + p)
		if err != nil {
			return nil, err
		}
		if g := spec.CaptureGroup; g != nil && *g > re.NumSubexp() {
			return nil, domain.WrapError(
				domain.ErrInvalidRule,
				"compile regex",
				fmt.Errorf("capture_group %d exceeds %d groups in %q", *g, re.NumSubexp(), p),
			)
		}
		rule.Patterns = append(rule.Patterns, re)
	}
	return rule, nil
}

func (c *Compiler) keywords(keywords []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(keywords))
	for _, k := range keywords {
		re, err := c.regexp(keywordExpr(k))
		if err != nil {
			return nil, err
		}
		out = append(out, re)
	}
	return out, nil
}

func (c *Compiler) regexp(expr string) (*regexp.Regexp, error) {
	if c.cache != nil {
		if re, ok := c.cache.Get(expr); ok {
			return re, nil
		}
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidRule, "compile regex", err)
	}
	if c.cache != nil {
		c.cache.Add(expr, re)
	}
	return re, nil
}

// keywordExpr matches a literal keyword case-insensitively with offsets into the original text.
func keywordExpr(keyword string) string {
	return "(?i)" + regexp.QuoteMeta(keyword)
}
