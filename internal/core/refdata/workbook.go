package refdata

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// LoadWorkbook reads reference tables from an xlsx file. Every sheet is one
// table named after the sheet; the first row is a header and the columns are
// key, code, name, name_en and a comma-separated alias list.
func LoadWorkbook(path string) ([]Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open reference workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	var tables []Table
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("read sheet %s: %w", sheet, err)
		}
		table := Table{Name: strings.ToLower(strings.TrimSpace(sheet))}
		for i, row := range rows {
			if i == 0 {
				continue
			}
			entry, ok := parseRow(row)
			if !ok {
				continue
			}
			table.Entries = append(table.Entries, entry)
		}
		if len(table.Entries) > 0 {
			tables = append(tables, table)
		}
	}
	return tables, nil
}

func parseRow(row []string) (Entry, bool) {
	cell := func(i int) string {
		if i < len(row) {
			return strings.TrimSpace(row[i])
		}
		return ""
	}
	entry := Entry{
		Key:    strings.ToUpper(cell(0)),
		Code:   cell(1),
		Name:   cell(2),
		NameEn: cell(3),
	}
	if entry.Key == "" || entry.Code == "" {
		return Entry{}, false
	}
	if entry.Name == "" {
		entry.Name = entry.Key
	}
	for _, alias := range strings.Split(cell(4), ",") {
		if alias = strings.ToUpper(strings.TrimSpace(alias)); alias != "" {
			entry.Aliases = append(entry.Aliases, alias)
		}
	}
	return entry, true
}
