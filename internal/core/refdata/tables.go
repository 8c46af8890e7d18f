package refdata

import (
	"strings"
	"unicode/utf8"
)

const (
	TableCountry         = "country"
	TableCurrency        = "currency"
	TableTransport       = "transport"
	TableDeclarationType = "declaration_type"
	TablePaymentForm     = "payment_form"
	TableTransactionType = "transaction_type"
)

// Entry is one reference value. Key and Aliases are stored upper-cased.
type Entry struct {
	Key     string
	Code    string
	Name    string
	NameEn  string
	Aliases []string
}

func (e Entry) terms() []string {
	out := make([]string, 0, len(e.Aliases)+3)
	for _, t := range append([]string{e.Key, e.Name, e.NameEn}, e.Aliases...) {
		if t = strings.ToUpper(strings.TrimSpace(t)); t != "" {
			out = append(out, t)
		}
	}
	return out
}

type Table struct {
	Name    string
	Entries []Entry
}

// Lookup resolves raw text against the table: an exact match on any term
// first, then the longest term contained in the text, then a term that
// contains the text. Entry order breaks ties.
func (t Table) Lookup(raw string) (Entry, bool) {
	text := strings.ToUpper(strings.TrimSpace(raw))
	if text == "" {
		return Entry{}, false
	}

	for _, e := range t.Entries {
		for _, term := range e.terms() {
			if term == text {
				return e, true
			}
		}
	}

	var (
		best    Entry
		bestLen int
	)
	for _, e := range t.Entries {
		for _, term := range e.terms() {
			if n := utf8.RuneCountInString(term); n > bestLen && strings.Contains(text, term) {
				best, bestLen = e, n
			}
		}
	}
	if bestLen > 0 {
		return best, true
	}

	if utf8.RuneCountInString(text) < 2 {
		return Entry{}, false
	}
	for _, e := range t.Entries {
		for _, term := range e.terms() {
			if strings.Contains(term, text) {
				return e, true
			}
		}
	}
	return Entry{}, false
}

// DefaultTables returns the built-in customs reference tables.
func DefaultTables() []Table {
	return []Table{
		{Name: TableCountry, Entries: []Entry{
			{Key: "КАЗАХСТАН", Code: "398", Name: "КАЗАХСТАН", NameEn: "KAZAKHSTAN"},
			{Key: "РОССИЯ", Code: "643", Name: "РОССИЯ", NameEn: "RUSSIA", Aliases: []string{"РОССИЙСКАЯ ФЕДЕРАЦИЯ", "РФ"}},
			{Key: "УЗБЕКИСТАН", Code: "860", Name: "УЗБЕКИСТАН", NameEn: "UZBEKISTAN"},
			{Key: "КИТАЙ", Code: "156", Name: "КИТАЙ", NameEn: "CHINA", Aliases: []string{"КНР"}},
			{Key: "ГЕРМАНИЯ", Code: "276", Name: "ГЕРМАНИЯ", NameEn: "GERMANY"},
			{Key: "США", Code: "840", Name: "США", NameEn: "USA"},
			{Key: "ГОНКОНГ", Code: "344", Name: "ГОНКОНГ", NameEn: "HONG KONG"},
			{Key: "ЯПОНИЯ", Code: "392", Name: "ЯПОНИЯ", NameEn: "JAPAN"},
			{Key: "КОРЕЯ", Code: "410", Name: "КОРЕЯ", NameEn: "SOUTH KOREA"},
			{Key: "ТУРЦИЯ", Code: "792", Name: "ТУРЦИЯ", NameEn: "TURKEY"},
		}},
		{Name: TableCurrency, Entries: []Entry{
			{Key: "UZS", Code: "860", Name: "СУМ УЗБЕКИСТАНА", NameEn: "UZBEKISTAN SUM"},
			{Key: "USD", Code: "840", Name: "ДОЛЛАР США", NameEn: "US DOLLAR", Aliases: []string{"$"}},
			{Key: "EUR", Code: "978", Name: "ЕВРО", NameEn: "EURO", Aliases: []string{"€"}},
			{Key: "RUB", Code: "643", Name: "РОССИЙСКИЙ РУБЛЬ", NameEn: "RUSSIAN RUBLE", Aliases: []string{"₽", "РУБ"}},
			{Key: "KZT", Code: "398", Name: "ТЕНГЕ", NameEn: "TENGE", Aliases: []string{"₸"}},
			{Key: "CNY", Code: "156", Name: "ЮАНЬ", NameEn: "YUAN", Aliases: []string{"¥", "RMB"}},
		}},
		{Name: TableTransport, Entries: []Entry{
			{Key: "ЖД", Code: "20", Name: "ЖЕЛЕЗНОДОРОЖНЫЙ", NameEn: "RAILWAY", Aliases: []string{"Ж/Д", "ЖЕЛЕЗН", "RAIL"}},
			{Key: "АВТО", Code: "30", Name: "АВТОМОБИЛЬНЫЙ", NameEn: "ROAD", Aliases: []string{"TRUCK"}},
			{Key: "АВИА", Code: "40", Name: "ВОЗДУШНЫЙ", NameEn: "AIR", Aliases: []string{"FLIGHT"}},
			{Key: "МОРЕ", Code: "10", Name: "МОРСКОЙ", NameEn: "SEA", Aliases: []string{"МОР", "SHIP"}},
			{Key: "РЕЧНОЙ", Code: "80", Name: "РЕЧНОЙ", NameEn: "INLAND WATERWAY"},
		}},
		{Name: TableDeclarationType, Entries: []Entry{
			{Key: "ИМ", Code: "10", Name: "ИМПОРТ", NameEn: "IMPORT"},
			{Key: "ЭК", Code: "20", Name: "ЭКСПОРТ", NameEn: "EXPORT"},
			{Key: "ТР", Code: "30", Name: "ТРАНЗИТ", NameEn: "TRANSIT"},
			{Key: "РЕ", Code: "40", Name: "РЕИМПОРТ", NameEn: "REIMPORT"},
			{Key: "РЭ", Code: "50", Name: "РЕЭКСПОРТ", NameEn: "REEXPORT"},
		}},
		{Name: TablePaymentForm, Entries: []Entry{
			{Key: "ПРЕДОПЛАТА", Code: "1", Name: "ПРЕДОПЛАТА", NameEn: "PREPAYMENT"},
			{Key: "АККРЕДИТИВ", Code: "2", Name: "АККРЕДИТИВ", NameEn: "LETTER OF CREDIT"},
			{Key: "ИНКАССО", Code: "3", Name: "ИНКАССО", NameEn: "COLLECTION"},
			{Key: "БАНКОВСКАЯ ГАРАНТИЯ", Code: "4", Name: "БАНКОВСКАЯ ГАРАНТИЯ", NameEn: "BANK GUARANTEE"},
			{Key: "ОТКРЫТЫЙ СЧЕТ", Code: "5", Name: "ОТКРЫТЫЙ СЧЕТ", NameEn: "OPEN ACCOUNT"},
		}},
		{Name: TableTransactionType, Entries: []Entry{
			{Key: "ПРОДАЖА", Code: "11", Name: "ПРОДАЖА", NameEn: "SALE"},
			{Key: "ПОКУПКА", Code: "12", Name: "ПОКУПКА", NameEn: "PURCHASE"},
			{Key: "ОБМЕН", Code: "21", Name: "ОБМЕН", NameEn: "EXCHANGE"},
			{Key: "ВОЗВРАТ", Code: "31", Name: "ВОЗВРАТ", NameEn: "RETURN"},
			{Key: "ЛИЗИНГ", Code: "41", Name: "ЛИЗИНГ", NameEn: "LEASING"},
		}},
	}
}

// Merge replaces base tables by name with the given overrides and appends new ones.
func Merge(base []Table, overrides ...Table) []Table {
	out := make([]Table, 0, len(base)+len(overrides))
	index := make(map[string]int, len(base))
	for _, t := range base {
		index[t.Name] = len(out)
		out = append(out, t)
	}
	for _, t := range overrides {
		if i, ok := index[t.Name]; ok {
			out[i] = t
			continue
		}
		index[t.Name] = len(out)
		out = append(out, t)
	}
	return out
}
