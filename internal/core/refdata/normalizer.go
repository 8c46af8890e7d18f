package refdata

import "github.com/joseffiran/SilkRouteHelper-1/internal/core/domain"

// Bindings maps report field names to reference table names.
type Bindings map[string]string

func DefaultBindings() Bindings {
	return Bindings{
		"dispatch_country":             TableCountry,
		"origin_country":               TableCountry,
		"destination_country":          TableCountry,
		"trading_country":              TableCountry,
		"currency_code":                TableCurrency,
		"invoice_currency":             TableCurrency,
		"transport_identity_departure": TableTransport,
		"transport_type_border":        TableTransport,
		"transport_type_inland":        TableTransport,
		"declaration_type":             TableDeclarationType,
		"payment_form":                 TablePaymentForm,
		"transaction_type":             TableTransactionType,
	}
}

type Normalizer struct {
	tables   map[string]Table
	bindings Bindings
}

func NewNormalizer(tables []Table, bindings Bindings) *Normalizer {
	if bindings == nil {
		bindings = DefaultBindings()
	}
	byName := make(map[string]Table, len(tables))
	for _, t := range tables {
		byName[t.Name] = t
	}
	return &Normalizer{tables: byName, bindings: bindings}
}

// Enhance returns a copy of report with reference hits attached to bound
// fields. Original values are never changed, so repeated calls agree.
func (n *Normalizer) Enhance(report *domain.ExtractionReport) *domain.ExtractionReport {
	out := report.Clone()
	if out == nil {
		return nil
	}
	for name, res := range out.Fields {
		tableName, ok := n.bindings[name]
		if !ok {
			continue
		}
		table, ok := n.tables[tableName]
		if !ok {
			continue
		}
		entry, ok := table.Lookup(res.Value)
		if !ok {
			continue
		}
		res.Normalized = &domain.NormalizedValue{
			Table:  tableName,
			Code:   entry.Code,
			Name:   entry.Name,
			NameEn: entry.NameEn,
		}
		out.Fields[name] = res
	}

	out.NormalizedFields = 0
	for _, res := range out.Fields {
		if res.Normalized != nil {
			out.NormalizedFields++
		}
	}
	return out
}

// Lookup resolves raw text in the named table.
func (n *Normalizer) Lookup(tableName, raw string) (Entry, bool) {
	table, ok := n.tables[tableName]
	if !ok {
		return Entry{}, false
	}
	return table.Lookup(raw)
}

// Stats returns entry counts per table.
func (n *Normalizer) Stats() map[string]int {
	out := make(map[string]int, len(n.tables))
	for name, t := range n.tables {
		out[name] = len(t.Entries)
	}
	return out
}
