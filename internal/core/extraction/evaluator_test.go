package extraction

import (
	"strings"
	"testing"

	"github.com/joseffiran/SilkRouteHelper-1/internal/core/domain"
)

func intPtr(v int) *int { return &v }

func newTestEvaluator() *Evaluator {
	return NewEvaluator(DefaultConfig())
}

func TestEvaluateRegexDeclarationNumber(t *testing.T) {
	e := newTestEvaluator()
	text := "ТАМОЖЕННАЯ ДЕКЛАРАЦИЯ\nНомер: 26010/18.06.2025/0034784\n"

	res, err := e.Evaluate(text, domain.RuleSpec{
		Type:    domain.RuleRegex,
		Pattern: `(\d{5}/\d{2}\.\d{2}\.\d{4}/\d{7})`,
	})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !res.Found || res.Value != "26010/18.06.2025/0034784" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.Confidence < 0.7 {
		t.Fatalf("expected confidence >= 0.7, got %v", res.Confidence)
	}
}

func TestEvaluateRegexNoMatchIsNull(t *testing.T) {
	res, err := newTestEvaluator().Evaluate("nothing here", domain.RuleSpec{Type: domain.RuleRegex, Pattern: `\d{5}`})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if res.Found || res.Value != "" || res.Confidence != 0 {
		t.Fatalf("expected null result, got %+v", res)
	}
}

func TestEvaluateRegexContextBoosts(t *testing.T) {
	e := newTestEvaluator()
	cases := []struct {
		name string
		text string
		want float64
	}{
		{name: "no context", text: "код 12345", want: 0.7},
		{name: "declaration keyword", text: "Грузовая декларация код 12345", want: 0.8},
		{name: "both keyword sets", text: "Декларация. Отправитель: код 12345", want: 0.9},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := e.Evaluate(tc.text, domain.RuleSpec{Type: domain.RuleRegex, Pattern: `код (\d{5})`})
			if err != nil {
				t.Fatalf("Evaluate() error = %v", err)
			}
			if res.Value != "12345" || res.Confidence != tc.want {
				t.Fatalf("expected 12345 @ %v, got %+v", tc.want, res)
			}
		})
	}
}

func TestEvaluateRegexSecondPatternMatches(t *testing.T) {
	res, err := newTestEvaluator().Evaluate("Invoice ID-42", domain.RuleSpec{
		Type:     domain.RuleRegex,
		Patterns: []string{`NOPE-(\d+)`, `ID-(\d+)`},
	})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !res.Found || res.Value != "42" || res.Confidence != 0.7 {
		t.Fatalf("expected second pattern result, got %+v", res)
	}
}

func TestEvaluateRegexTieKeepsAuthoringOrder(t *testing.T) {
	res, err := newTestEvaluator().Evaluate("A-1 B-2", domain.RuleSpec{
		Type:     domain.RuleRegex,
		Patterns: []string{`B-(\d)`, `A-(\d)`},
	})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if res.Value != "2" {
		t.Fatalf("expected first authored pattern to win the tie, got %+v", res)
	}
}

func TestEvaluateRegexHigherConfidenceWins(t *testing.T) {
	text := "код 111\n" + strings.Repeat("x", 80) + "\nполучатель код 222"
	res, err := newTestEvaluator().Evaluate(text, domain.RuleSpec{Type: domain.RuleRegex, Pattern: `код (\d{3})`})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if res.Value != "222" || res.Confidence != 0.8 {
		t.Fatalf("expected boosted later match, got %+v", res)
	}
}

func TestEvaluateRegexCaptureGroupAndConstant(t *testing.T) {
	e := newTestEvaluator()

	res, err := e.Evaluate("Итого: 100 USD", domain.RuleSpec{
		Type:         domain.RuleRegex,
		Pattern:      `(\d+) (USD|EUR)`,
		CaptureGroup: intPtr(2),
	})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if res.Value != "USD" {
		t.Fatalf("expected capture group 2, got %+v", res)
	}

	res, err = e.Evaluate("Итого: 100 USD", domain.RuleSpec{
		Type:         domain.RuleRegex,
		Pattern:      `(\d+) USD`,
		CaptureGroup: intPtr(0),
	})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if res.Value != "100 USD" {
		t.Fatalf("expected full match for group 0, got %+v", res)
	}

	res, err = e.Evaluate("ГРУЗОВАЯ ТАМОЖЕННАЯ ДЕКЛАРАЦИЯ", domain.RuleSpec{
		Type:    domain.RuleRegex,
		Pattern: `грузовая\s+таможенная\s+декларация`,
		Value:   "ГТД",
	})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if res.Value != "ГТД" {
		t.Fatalf("expected constant value, got %+v", res)
	}
}

func TestEvaluateInvalidRules(t *testing.T) {
	e := newTestEvaluator()
	cases := []struct {
		name string
		spec domain.RuleSpec
	}{
		{name: "missing type", spec: domain.RuleSpec{Pattern: "x"}},
		{name: "unknown type", spec: domain.RuleSpec{Type: "fuzzy"}},
		{name: "bad regex", spec: domain.RuleSpec{Type: domain.RuleRegex, Pattern: `([`}},
		{name: "lookahead unsupported", spec: domain.RuleSpec{Type: domain.RuleRegex, Pattern: `(?=x)`}},
		{name: "capture group out of range", spec: domain.RuleSpec{Type: domain.RuleRegex, Pattern: `(a)`, CaptureGroup: intPtr(3)}},
		{name: "empty keyword", spec: domain.RuleSpec{Type: domain.RuleKeyword}},
		{name: "bad extract mode", spec: domain.RuleSpec{Type: domain.RuleKeyword, Keyword: "a", ExtractAs: "para"}},
		{name: "no proximity keywords", spec: domain.RuleSpec{Type: domain.RuleKeywordProximity}},
		{name: "position missing end", spec: domain.RuleSpec{Type: domain.RulePosition, Start: intPtr(0)}},
		{name: "position inverted", spec: domain.RuleSpec{Type: domain.RulePosition, Start: intPtr(5), End: intPtr(2)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := e.Evaluate("a text", tc.spec)
			if !domain.IsKind(err, domain.ErrInvalidRule) {
				t.Fatalf("expected ErrInvalidRule, got %v", err)
			}
			if res.Found || res.Confidence != 0 {
				t.Fatalf("expected null result, got %+v", res)
			}
		})
	}
}

func TestEvaluateKeyword(t *testing.T) {
	e := newTestEvaluator()
	cases := []struct {
		name  string
		text  string
		spec  domain.RuleSpec
		want  string
		found bool
	}{
		{
			name:  "raw window",
			text:  "Страна: КАЗАХСТАН\nдругое",
			spec:  domain.RuleSpec{Type: domain.RuleKeyword, Keyword: "Страна:"},
			want:  "КАЗАХСТАН\nдругое",
			found: true,
		},
		{
			name:  "case insensitive",
			text:  "СТРАНА: КАЗАХСТАН",
			spec:  domain.RuleSpec{Type: domain.RuleKeyword, Keyword: "страна:"},
			want:  "КАЗАХСТАН",
			found: true,
		},
		{
			name:  "window limit",
			text:  "Код: 1234567890",
			spec:  domain.RuleSpec{Type: domain.RuleKeyword, Keyword: "Код:", WindowChars: 5},
			want:  "1234",
			found: true,
		},
		{
			name:  "line mode on next line",
			text:  "Отправитель:\nООО Ромашка\nадрес",
			spec:  domain.RuleSpec{Type: domain.RuleKeyword, Keyword: "Отправитель:", ExtractAs: domain.ExtractLine},
			want:  "ООО Ромашка",
			found: true,
		},
		{
			name:  "line mode on same line",
			text:  "Отправитель: ООО Ромашка\nадрес",
			spec:  domain.RuleSpec{Type: domain.RuleKeyword, Keyword: "Отправитель:", ExtractAs: domain.ExtractLine},
			want:  "ООО Ромашка",
			found: true,
		},
		{
			name:  "word mode",
			text:  "Валюта: USD 1000",
			spec:  domain.RuleSpec{Type: domain.RuleKeyword, Keyword: "Валюта:", ExtractAs: domain.ExtractWord},
			want:  "USD",
			found: true,
		},
		{
			name: "second keyword matches",
			text: "Торговая страна: КАЗАХСТАН",
			spec: domain.RuleSpec{
				Type:      domain.RuleKeyword,
				Keywords:  []string{"Торг. страна", "Торговая страна"},
				ExtractAs: domain.ExtractWord,
			},
			want:  "КАЗАХСТАН",
			found: true,
		},
		{
			name: "first keyword with a value wins",
			text: "Страна отправления:\nКод страны: KZ\nСтрана отправления: УЗБЕКИСТАН",
			spec: domain.RuleSpec{
				Type:      domain.RuleKeyword,
				Keyword:   "Код страны:",
				Keywords:  []string{"Страна отправления:"},
				ExtractAs: domain.ExtractLine,
			},
			want:  "KZ",
			found: true,
		},
		{
			name:  "word mode skips separators",
			text:  "Валюта - EUR",
			spec:  domain.RuleSpec{Type: domain.RuleKeyword, Keyword: "Валюта", ExtractAs: domain.ExtractWord},
			want:  "EUR",
			found: true,
		},
		{
			name: "absent keyword",
			text: "Валюта: USD",
			spec: domain.RuleSpec{Type: domain.RuleKeyword, Keyword: "Страна:"},
		},
		{
			name: "keyword at end of text",
			text: "Валюта:",
			spec: domain.RuleSpec{Type: domain.RuleKeyword, Keyword: "Валюта:"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := e.Evaluate(tc.text, tc.spec)
			if err != nil {
				t.Fatalf("Evaluate() error = %v", err)
			}
			if res.Found != tc.found || res.Value != tc.want {
				t.Fatalf("expected %q (found=%v), got %+v", tc.want, tc.found, res)
			}
			if tc.found && res.Confidence < 0.8 {
				t.Fatalf("expected high keyword confidence, got %v", res.Confidence)
			}
		})
	}
}

func TestEvaluateKeywordProximity(t *testing.T) {
	e := newTestEvaluator()
	spec := domain.RuleSpec{
		Type:        domain.RuleKeywordProximity,
		Keywords:    []string{"брутто", "Вес"},
		MaxDistance: 5,
	}

	res, err := e.Evaluate("abcdefgh Вес 12 kg more", spec)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if res.Value != "efgh Вес 12 k" || res.Confidence != 0.85 {
		t.Fatalf("unexpected proximity window: %+v", res)
	}

	res, err = e.Evaluate("нет ключевых слов", spec)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if res.Found {
		t.Fatalf("expected null result, got %+v", res)
	}
}

func TestEvaluateLineAfterKeyword(t *testing.T) {
	e := newTestEvaluator()
	spec := domain.RuleSpec{Type: domain.RuleLineAfterKeyword, Keyword: "получатель"}
	cases := []struct {
		name string
		text string
		want string
	}{
		{name: "next line", text: "Header\nГраф 8 Получатель\n  ТОО Астана  \nend", want: "ТОО Астана"},
		{name: "keyword on last line", text: "Header\nПолучатель"},
		{name: "empty next line", text: "Получатель\n   \nТОО"},
		{name: "absent", text: "Header\nОтправитель\nООО"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := e.Evaluate(tc.text, spec)
			if err != nil {
				t.Fatalf("Evaluate() error = %v", err)
			}
			if res.Value != tc.want || res.Found != (tc.want != "") {
				t.Fatalf("expected %q, got %+v", tc.want, res)
			}
		})
	}
}

func TestEvaluatePosition(t *testing.T) {
	e := newTestEvaluator()
	cases := []struct {
		name       string
		text       string
		start, end int
		want       string
		confidence float64
	}{
		{name: "full slice", text: "ABCDEFGH", start: 2, end: 5, want: "CDE", confidence: 1.0},
		{name: "short text degrades", text: "abc", start: 0, end: 5, want: "abc", confidence: 0.5},
		{name: "runes not bytes", text: "ДЕКЛАРАЦИЯ", start: 0, end: 3, want: "ДЕК", confidence: 1.0},
		{name: "start at end of text", text: "abc", start: 3, end: 9},
		{name: "start beyond text", text: "abc", start: 4, end: 9},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := e.Evaluate(tc.text, domain.RuleSpec{Type: domain.RulePosition, Start: intPtr(tc.start), End: intPtr(tc.end)})
			if err != nil {
				t.Fatalf("Evaluate() error = %v", err)
			}
			if res.Value != tc.want || res.Confidence != tc.confidence {
				t.Fatalf("expected %q @ %v, got %+v", tc.want, tc.confidence, res)
			}
			if res.Found != (tc.want != "") {
				t.Fatalf("expected found=%v, got %+v", tc.want != "", res)
			}
		})
	}
}

func TestConfidenceStaysInRange(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Boosts = append(cfg.Boosts, BoostSet{Name: "extra", Keywords: []string{"код"}, Delta: 0.5})
	e := NewEvaluator(cfg)

	texts := []string{
		"декларация отправитель код 12345",
		"код 12345",
		"",
	}
	for _, text := range texts {
		res, err := e.Evaluate(text, domain.RuleSpec{Type: domain.RuleRegex, Pattern: `\d{5}`})
		if err != nil {
			t.Fatalf("Evaluate() error = %v", err)
		}
		if res.Confidence < 0 || res.Confidence > 1 {
			t.Fatalf("confidence out of range for %q: %v", text, res.Confidence)
		}
	}
}

func TestCompilerReusesCompiledExpressions(t *testing.T) {
	c := NewCompiler(50, 8)
	spec := domain.RuleSpec{Type: domain.RuleRegex, Pattern: `\d+`}

	first, err := c.Compile(spec)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	second, err := c.Compile(spec)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	if first.(RegexRule).Patterns[0] != second.(RegexRule).Patterns[0] {
		t.Fatalf("expected cached expression to be reused")
	}
}

func TestValidate(t *testing.T) {
	if err := Validate(domain.RuleSpec{Type: domain.RuleRegex, Pattern: `(\d+)`}); err != nil {
		t.Fatalf("expected valid rule, got %v", err)
	}
	if err := Validate(domain.RuleSpec{Type: domain.RuleRegex, Pattern: `(\d+`}); !domain.IsKind(err, domain.ErrInvalidRule) {
		t.Fatalf("expected ErrInvalidRule, got %v", err)
	}
	if err := Validate(domain.RuleSpec{Type: domain.RuleKeyword, Keywords: []string{"Торг. страна", "Торговая страна"}}); err != nil {
		t.Fatalf("expected keywords-only rule to be valid, got %v", err)
	}
	if err := Validate(domain.RuleSpec{Type: domain.RuleKeyword, Keywords: []string{" "}}); !domain.IsKind(err, domain.ErrInvalidRule) {
		t.Fatalf("expected ErrInvalidRule for blank keywords, got %v", err)
	}
}
