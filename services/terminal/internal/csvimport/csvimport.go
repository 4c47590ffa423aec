package csvimport

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/opentill/opentill/services/terminal/internal/pos"
)

// Two CSV layouts are accepted. A full layout (Name,Price,Category,Printer)
// imports new menu items; a single Name column reorders the existing menu by
// row position.

var ErrEmptyFile = errors.New("csv file has no rows")

// Report summarizes what a CSV pass did, row by row.
type Report struct {
	Added     int `json:"added"`
	Skipped   int `json:"skipped"`
	Reordered int `json:"reordered"`
	NotFound  int `json:"not_found"`
}

// Result carries the items the caller must persist and queue. NewItems have
// fresh ids; Reordered are existing items with an updated display order.
type Result struct {
	NewItems  []pos.MenuItem `json:"new_items"`
	Reordered []pos.MenuItem `json:"reordered"`
	Report    Report         `json:"report"`
}

// Import parses the CSV and resolves it against the current menu. Rows whose
// name already exists are skipped on import; unknown names are counted on
// reorder. The caller owns persistence and fan-out.
func Import(r io.Reader, existing []pos.MenuItem) (*Result, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("cannot parse csv: %w", err)
	}
	rows = dropHeader(rows)
	if len(rows) == 0 {
		return nil, ErrEmptyFile
	}

	if len(rows[0]) == 1 {
		return reorder(rows, existing), nil
	}
	return importItems(rows, existing)
}

func importItems(rows [][]string, existing []pos.MenuItem) (*Result, error) {
	byName := make(map[string]bool, len(existing))
	for i := range existing {
		byName[normalize(existing[i].Name)] = true
	}

	result := &Result{}
	for i, row := range rows {
		if len(row) < 3 {
			return nil, fmt.Errorf("row %d: expected at least Name,Price,Category", i+1)
		}
		name := strings.TrimSpace(row[0])
		if name == "" {
			result.Report.Skipped++
			continue
		}
		if byName[normalize(name)] {
			result.Report.Skipped++
			continue
		}

		price, err := strconv.ParseFloat(strings.TrimSpace(row[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: invalid price %q", i+1, row[1])
		}

		item := pos.NewMenuItem()
		item.EnsureID()
		item.Name = name
		item.Price = price
		item.Category = strings.TrimSpace(row[2])
		if len(row) > 3 {
			item.Printer = strings.TrimSpace(row[3])
		}

		byName[normalize(name)] = true
		result.NewItems = append(result.NewItems, *item)
		result.Report.Added++
	}
	return result, nil
}

func reorder(rows [][]string, existing []pos.MenuItem) *Result {
	byName := make(map[string]pos.MenuItem, len(existing))
	for i := range existing {
		byName[normalize(existing[i].Name)] = existing[i]
	}

	result := &Result{}
	position := 0
	for _, row := range rows {
		name := strings.TrimSpace(row[0])
		if name == "" {
			continue
		}
		item, found := byName[normalize(name)]
		if !found {
			result.Report.NotFound++
			continue
		}
		order := position
		item.DisplayOrder = &order
		position++
		result.Reordered = append(result.Reordered, item)
		result.Report.Reordered++
	}
	return result
}

// dropHeader removes a leading header row when the first cell reads like a
// column label rather than data.
func dropHeader(rows [][]string) [][]string {
	if len(rows) == 0 {
		return rows
	}
	first := normalize(rows[0][0])
	if first == "name" || first == "item" {
		return rows[1:]
	}
	return rows
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
