package extraction

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/joseffiran/SilkRouteHelper-1/internal/core/domain"
)

const defaultDateLayout = "02.01.2006"

type Orchestrator struct {
	evaluator         *Evaluator
	concurrency       int
	highConfidence    float64
	defaultConfidence float64
	now               func() time.Time
}

type OrchestratorOption func(*Orchestrator)

func WithConcurrency(n int) OrchestratorOption {
	return func(o *Orchestrator) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

func WithHighConfidenceThreshold(threshold float64) OrchestratorOption {
	return func(o *Orchestrator) {
		o.highConfidence = threshold
	}
}

// WithDefaultConfidence sets the confidence reported for defaulted fields.
func WithDefaultConfidence(confidence float64) OrchestratorOption {
	return func(o *Orchestrator) {
		if confidence > 0 {
			o.defaultConfidence = confidence
		}
	}
}

// WithClock sets the clock used for current_date defaults.
func WithClock(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

func NewOrchestrator(evaluator *Evaluator, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		evaluator:         evaluator,
		concurrency:       4,
		highConfidence:    0.8,
		defaultConfidence: 0.5,
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

type fieldOutcome struct {
	result domain.FieldResult
	found  bool
	err    error
}

// Extract evaluates every field of tpl over text. Fields are independent and
// evaluated in parallel; the report does not depend on scheduling order.
func (o *Orchestrator) Extract(ctx context.Context, text domain.RecognizedText, tpl *domain.Template) (*domain.ExtractionReport, error) {
	if tpl == nil {
		return nil, domain.WrapError(domain.ErrTemplateNotFound, "extract fields", fmt.Errorf("no template supplied"))
	}

	outcomes := make([]fieldOutcome, len(tpl.Fields))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)
	for i := range tpl.Fields {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outcomes[i] = o.evaluateField(text.Text, tpl.Fields[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("extract fields: %w", err)
	}

	report := &domain.ExtractionReport{
		TemplateID:       tpl.ID,
		TemplateName:     tpl.Name,
		TemplateVersion:  tpl.Version,
		Fields:           make(map[string]domain.FieldResult, len(tpl.Fields)),
		SourceConfidence: roundTo(text.MeanConfidence(), 3),
	}
	for i, out := range outcomes {
		field := tpl.Fields[i]
		if out.err != nil {
			report.Failures = append(report.Failures, domain.FieldFailure{Field: field.Name, Error: out.err.Error()})
			slog.Warn("rule_evaluation_failed",
				"template_id", tpl.ID,
				"field", field.Name,
				"rule_type", string(field.Rule.Type),
				"error", out.err.Error(),
			)
		}
		if out.found {
			report.Fields[field.Name] = out.result
		}
	}
	report.Statistics = o.statistics(len(tpl.Fields), report.Fields)
	return report, nil
}

func (o *Orchestrator) evaluateField(text string, field domain.FieldDefinition) (out fieldOutcome) {
	defer func() {
		if r := recover(); r != nil {
			out = fieldOutcome{err: domain.WrapError(domain.ErrInvalidRule, "evaluate rule", fmt.Errorf("panic: %v", r))}
		}
	}()

	res, err := o.evaluator.Evaluate(text, field.Rule)
	if err != nil {
		return fieldOutcome{err: err}
	}
	if !res.Found {
		return o.applyDefault(field, fieldOutcome{})
	}
	return fieldOutcome{
		found: true,
		result: domain.FieldResult{
			Value:      res.Value,
			Confidence: res.Confidence,
			Label:      field.Label,
		},
	}
}

// applyDefault fills a field whose rule ran cleanly but found nothing.
func (o *Orchestrator) applyDefault(field domain.FieldDefinition, out fieldOutcome) fieldOutcome {
	d := field.Default
	if d == nil {
		return out
	}
	value := d.Value
	if d.CurrentDate {
		value = o.now().Format(defaultDateLayout)
	}
	if value == "" {
		return out
	}
	confidence := d.Confidence
	if confidence == 0 {
		confidence = o.defaultConfidence
	}
	out.found = true
	out.result = domain.FieldResult{
		Value:      value,
		Confidence: clampConfidence(confidence),
		Label:      field.Label,
		Defaulted:  true,
	}
	return out
}

func (o *Orchestrator) statistics(total int, fields map[string]domain.FieldResult) domain.Statistics {
	stats := domain.Statistics{TotalFields: total, FilledFields: len(fields)}
	if total > 0 {
		stats.CompletionPercentage = roundTo(float64(stats.FilledFields)/float64(total)*100, 1)
	}
	for _, f := range fields {
		if f.Confidence > o.highConfidence {
			stats.HighConfidenceFields++
		}
	}
	return stats
}
