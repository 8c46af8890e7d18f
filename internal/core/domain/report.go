package domain

type FieldResult struct {
	Value      string           `json:"value"`
	Confidence float64          `json:"confidence"`
	Label      string           `json:"label,omitempty"`
	Defaulted  bool             `json:"defaulted,omitempty"`
	Normalized *NormalizedValue `json:"normalized,omitempty"`
}

// NormalizedValue is a reference-table hit attached next to the original value.
type NormalizedValue struct {
	Table  string `json:"table"`
	Code   string `json:"code"`
	Name   string `json:"name"`
	NameEn string `json:"name_en,omitempty"`
}

type Statistics struct {
	TotalFields          int     `json:"total_fields"`
	FilledFields         int     `json:"filled_fields"`
	CompletionPercentage float64 `json:"completion_percentage"`
	HighConfidenceFields int     `json:"high_confidence_fields"`
}

// FieldFailure records a rule that could not be evaluated.
type FieldFailure struct {
	Field string `json:"field"`
	Error string `json:"error"`
}

type ExtractionReport struct {
	TemplateID       string                 `json:"template_id"`
	TemplateName     string                 `json:"template_name"`
	TemplateVersion  int                    `json:"template_version"`
	Fields           map[string]FieldResult `json:"fields"`
	Statistics       Statistics             `json:"statistics"`
	Failures         []FieldFailure         `json:"failures,omitempty"`
	SourceConfidence float64                `json:"source_confidence,omitempty"`
	NormalizedFields int                    `json:"normalized_fields,omitempty"`
}

// Clone returns a deep copy so refinement passes never mutate their input.
func (r *ExtractionReport) Clone() *ExtractionReport {
	if r == nil {
		return nil
	}
	out := *r
	out.Fields = make(map[string]FieldResult, len(r.Fields))
	for name, res := range r.Fields {
		if res.Normalized != nil {
			n := *res.Normalized
			res.Normalized = &n
		}
		out.Fields[name] = res
	}
	if r.Failures != nil {
		out.Failures = append([]FieldFailure(nil), r.Failures...)
	}
	return &out
}
