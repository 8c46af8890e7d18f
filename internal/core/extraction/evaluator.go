package extraction

import (
	"regexp"
	"strings"

	"github.com/joseffiran/SilkRouteHelper-1/internal/core/domain"
)

// BoostSet raises a regex match's confidence by Delta when any of Keywords
// appears near the match.
type BoostSet struct {
	Name     string
	Keywords []string
	Delta    float64
}

type Config struct {
	RegexBaseConfidence float64
	KeywordConfidence   float64
	PositionConfidence  float64
	DegradedConfidence  float64
	// ContextWindow is the number of characters inspected on each side of a regex match.
	ContextWindow  int
	KeywordWindow  int
	Boosts         []BoostSet
	RegexCacheSize int
}

func DefaultConfig() Config {
	return Config{
		RegexBaseConfidence: 0.7,
		KeywordConfidence:   0.85,
		PositionConfidence:  1.0,
		DegradedConfidence:  0.5,
		ContextWindow:       50,
		KeywordWindow:       defaultKeywordWindow,
		RegexCacheSize:      512,
		Boosts: []BoostSet{
			{Name: "declaration", Keywords: []string{"декларация", "таможенная", "грузовая"}, Delta: 0.1},
			{Name: "party", Keywords: []string{"отправитель", "получатель", "декларант"}, Delta: 0.1},
		},
	}
}

// Result is one evaluated field. Found is false for the null result.
type Result struct {
	Value      string
	Confidence float64
	Found      bool
}

// Evaluator applies compiled rules to text. It holds no per-call state and is
// safe for concurrent use.
type Evaluator struct {
	cfg      Config
	compiler *Compiler
	boosts   []BoostSet
}

func NewEvaluator(cfg Config) *Evaluator {
	boosts := make([]BoostSet, 0, len(cfg.Boosts))
	for _, b := range cfg.Boosts {
		lowered := make([]string, 0, len(b.Keywords))
		for _, k := range b.Keywords {
			if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
				lowered = append(lowered, k)
			}
		}
		boosts = append(boosts, BoostSet{Name: b.Name, Keywords: lowered, Delta: b.Delta})
	}
	return &Evaluator{
		cfg:      cfg,
		compiler: NewCompiler(cfg.KeywordWindow, cfg.RegexCacheSize),
		boosts:   boosts,
	}
}

// Evaluate compiles spec and applies it to text. A malformed rule yields the
// null result together with an ErrInvalidRule error.
func (e *Evaluator) Evaluate(text string, spec domain.RuleSpec) (Result, error) {
	rule, err := e.compiler.Compile(spec)
	if err != nil {
		return Result{}, err
	}
	return e.Apply(text, rule), nil
}

func (e *Evaluator) Apply(text string, rule Rule) Result {
	switch r := rule.(type) {
	case RegexRule:
		return e.applyRegex(text, r)
	case KeywordRule:
		return e.applyKeyword(text, r)
	case KeywordProximityRule:
		return e.applyKeywordProximity(text, r)
	case LineAfterKeywordRule:
		return e.applyLineAfterKeyword(text, r)
	case PositionRule:
		return e.applyPosition(text, r)
	default:
		return Result{}
	}
}

// applyRegex scores every match of every pattern and keeps the best one.
// Equal scores keep the earlier match in authoring order.
func (e *Evaluator) applyRegex(text string, r RegexRule) Result {
	var best Result
	for _, re := range r.Patterns {
		group := 0
		if r.CaptureGroup != nil {
			group = *r.CaptureGroup
		} else if re.NumSubexp() > 0 {
			group = 1
		}
		for _, m := range re.FindAllStringSubmatchIndex(text, -1) {
			gs, ge := m[2*group], m[2*group+1]
			if gs < 0 {
				continue
			}
			value := strings.TrimSpace(text[gs:ge])
			if value == "" {
				continue
			}
			if r.Constant != "" {
				value = r.Constant
			}
			confidence := e.regexConfidence(text, m[0], m[1])
			if !best.Found || confidence > best.Confidence {
				best = Result{Value: value, Confidence: confidence, Found: true}
			}
		}
	}
	return best
}

func (e *Evaluator) regexConfidence(text string, start, end int) float64 {
	context := strings.ToLower(tailRunes(text[:start], e.cfg.ContextWindow) +
		text[start:end] +
		headRunes(text[end:], e.cfg.ContextWindow))

	confidence := e.cfg.RegexBaseConfidence
	for _, b := range e.boosts {
		for _, k := range b.Keywords {
			if strings.Contains(context, k) {
				confidence += b.Delta
				break
			}
		}
	}
	return clampConfidence(confidence)
}

// applyKeyword reads the window after each keyword and keeps the best result.
// Every keyword scores the same, so the first one that yields a value wins.
func (e *Evaluator) applyKeyword(text string, r KeywordRule) Result {
	var best Result
	for _, kw := range r.Keywords {
		res := e.keywordWindow(text, kw, r)
		if res.Found && (!best.Found || res.Confidence > best.Confidence) {
			best = res
		}
	}
	return best
}

func (e *Evaluator) keywordWindow(text string, kw *regexp.Regexp, r KeywordRule) Result {
	loc := kw.FindStringIndex(text)
	if loc == nil {
		return Result{}
	}
	window := headRunes(text[loc[1]:], r.Window)

	var value string
	switch r.Mode {
	case domain.ExtractLine:
		value = firstNonEmptyLine(window)
	case domain.ExtractWord:
		value = firstWord(window)
	default:
		value = strings.TrimSpace(window)
	}
	if value == "" {
		return Result{}
	}
	return Result{Value: value, Confidence: clampConfidence(e.cfg.KeywordConfidence), Found: true}
}

// firstWord skips separators such as ":" or "-" left between a label and its value.
func firstWord(window string) string {
	for _, f := range strings.Fields(window) {
		if f = strings.TrimLeft(f, wordSeparators); f != "" {
			return f
		}
	}
	return ""
}

const wordSeparators = ":;,.-–—=#№"

// firstNonEmptyLine returns the rest of the current line, or the following
// line when the keyword ends its line.
func firstNonEmptyLine(window string) string {
	for _, line := range strings.Split(window, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}

func (e *Evaluator) applyKeywordProximity(text string, r KeywordProximityRule) Result {
	for _, kw := range r.Keywords {
		loc := kw.FindStringIndex(text)
		if loc == nil {
			continue
		}
		value := strings.TrimSpace(tailRunes(text[:loc[0]], r.MaxDistance) +
			text[loc[0]:loc[1]] +
			headRunes(text[loc[1]:], r.MaxDistance))
		if value == "" {
			continue
		}
		return Result{Value: value, Confidence: clampConfidence(e.cfg.KeywordConfidence), Found: true}
	}
	return Result{}
}

func (e *Evaluator) applyLineAfterKeyword(text string, r LineAfterKeywordRule) Result {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if !strings.Contains(strings.ToLower(line), r.Keyword) {
			continue
		}
		if i+1 >= len(lines) {
			return Result{}
		}
		value := strings.TrimSpace(lines[i+1])
		if value == "" {
			return Result{}
		}
		return Result{Value: value, Confidence: clampConfidence(e.cfg.KeywordConfidence), Found: true}
	}
	return Result{}
}

func (e *Evaluator) applyPosition(text string, r PositionRule) Result {
	runes := []rune(text)
	if r.Start >= len(runes) {
		return Result{}
	}
	if r.End > len(runes) {
		return Result{Value: string(runes[r.Start:]), Confidence: clampConfidence(e.cfg.DegradedConfidence), Found: true}
	}
	return Result{Value: string(runes[r.Start:r.End]), Confidence: clampConfidence(e.cfg.PositionConfidence), Found: true}
}
