// Package spreadsheet ingests resource-intent spreadsheets (.xlsx/.xls)
// into the canonical resource representation, and generates starter
// workbooks for the round-trip flow.
package spreadsheet

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/infrapilot/infrapilot/internal/resource"
)

const sheetName = "Resources"

// reservedColumns are header names with dedicated CanonicalResource fields;
// every other column becomes a free-form property.
var reservedColumns = map[string]bool{
	"platform": true,
	"type":     true,
	"name":     true,
	"tags":     true,
}

// Parse reads one header row plus data rows from the first sheet of r and
// returns the extracted resources alongside any per-row errors and
// warnings. A row missing platform/type/name is reported as an error and
// skipped; everything else becomes a free-form property keyed by its
// column header.
func Parse(r io.Reader) ([]resource.CanonicalResource, []string, []string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("spreadsheet: opening workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, nil, fmt.Errorf("spreadsheet: workbook has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, nil, nil, fmt.Errorf("spreadsheet: reading sheet %q: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, nil, nil, nil
	}

	headers := rows[0]
	colIndex := make(map[string]int, len(headers))
	for i, h := range headers {
		colIndex[strings.ToLower(strings.TrimSpace(h))] = i
	}

	var resources []resource.CanonicalResource
	var errs, warnings []string

	for rowNum, row := range rows[1:] {
		lineNo := rowNum + 2 // header is row 1; data starts at row 2
		cr, rowWarnings, err := parseRow(headers, colIndex, row)
		if err != nil {
			errs = append(errs, fmt.Sprintf("row %d: %v", lineNo, err))
			continue
		}
		for _, w := range rowWarnings {
			warnings = append(warnings, fmt.Sprintf("row %d: %s", lineNo, w))
		}
		resource.MirrorMetadataTags(&cr)
		resource.ApplySafeDefaults(&cr)
		resources = append(resources, cr)
	}

	return resources, errs, warnings, nil
}

func parseRow(headers []string, colIndex map[string]int, row []string) (resource.CanonicalResource, []string, error) {
	cr := resource.CanonicalResource{Properties: map[string]any{}}
	var warnings []string

	cr.Platform = strings.ToLower(cellAt(row, colIndex, "platform"))
	cr.Type = resource.NormalizeType(cellAt(row, colIndex, "type"))
	cr.Name = cellAt(row, colIndex, "name")

	if cr.Platform == "" || cr.Type == "" || cr.Name == "" {
		return cr, nil, fmt.Errorf("platform, type, and name are required")
	}

	if !resource.IsKnownType(cr.Type) {
		warnings = append(warnings, fmt.Sprintf("type %q is not in the known alias table; kept as-is", cr.Type))
	}

	if idx, ok := colIndex["tags"]; ok && idx < len(row) {
		cr.Properties[resource.TagsKey] = parseTagsCell(row[idx])
	} else {
		cr.Properties[resource.TagsKey] = map[string]string{}
	}

	for i, header := range headers {
		key := strings.ToLower(strings.TrimSpace(header))
		if reservedColumns[key] || i >= len(row) {
			continue
		}
		val := strings.TrimSpace(row[i])
		if val == "" {
			continue
		}
		cr.Properties[key] = val
	}

	return cr, warnings, nil
}

// parseTagsCell accepts either `k=v;k=v` or a JSON object, per spec §4.4.
func parseTagsCell(raw string) map[string]string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]string{}
	}

	if strings.HasPrefix(raw, "{") {
		var decoded map[string]string
		if err := json.Unmarshal([]byte(raw), &decoded); err == nil {
			return decoded
		}
	}

	tags := map[string]string{}
	for _, pair := range strings.Split(raw, ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			continue
		}
		tags[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
	}
	return tags
}

func cellAt(row []string, colIndex map[string]int, col string) string {
	idx, ok := colIndex[col]
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}
