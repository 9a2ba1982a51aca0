package spreadsheet

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/xuri/excelize/v2"

	"github.com/infrapilot/infrapilot/internal/resource"
)

// sampleResourceForPlatform names one representative type per platform to
// seed into GenerateTemplate, with one filled-in value per required field so
// the round-trip property in spec §8 holds without the caller needing to
// know the requirements table themselves.
var sampleResourceForPlatform = map[string]struct {
	normalizedType string
	name           string
	values         map[string]string
}{
	"aws": {
		normalizedType: "aws_ec2",
		name:           "sample-instance",
		values: map[string]string{
			"instance_type": "t3.micro",
			"ami":           "ami-0123456789abcdef0",
		},
	},
	"azure": {
		normalizedType: "azure_vm",
		name:           "sample-vm",
		values: map[string]string{
			"size":           "Standard_B2s",
			"resource_group": "sample-rg",
			"location":       "eastus",
			"admin_username": "azureadmin",
			"os":             "linux",
		},
	},
}

// GenerateTemplate produces a starter .xlsx workbook for platform ("aws" or
// "azure") with one sample row populated with every required field for its
// representative resource type, under a header row of platform, type, name,
// that type's required fields (sorted) and Tags.
func GenerateTemplate(platform string) ([]byte, error) {
	sample, ok := sampleResourceForPlatform[platform]
	if !ok {
		return nil, fmt.Errorf("spreadsheet: no starter template for platform %q", platform)
	}

	required := resource.RequiredFields[sample.normalizedType]
	columns := []string{"platform", "type", "name"}
	columns = append(columns, required...)
	columns = append(columns, "Tags")
	sort.Strings(columns[3 : len(columns)-1]) // keep platform/type/name/Tags pinned, required fields sorted

	f := excelize.NewFile()
	defer f.Close()

	f.SetSheetName(f.GetSheetName(0), sheetName)
	for i, col := range columns {
		cellRef, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, fmt.Errorf("spreadsheet: building header cell: %w", err)
		}
		if err := f.SetCellValue(sheetName, cellRef, col); err != nil {
			return nil, fmt.Errorf("spreadsheet: writing header: %w", err)
		}
	}

	for i, col := range columns {
		cellRef, err := excelize.CoordinatesToCellName(i+1, 2)
		if err != nil {
			return nil, fmt.Errorf("spreadsheet: building data cell: %w", err)
		}
		var val string
		switch col {
		case "platform":
			val = platform
		case "type":
			val = sample.normalizedType
		case "name":
			val = sample.name
		case "Tags":
			val = "Project=sample"
		default:
			val = sample.values[col]
		}
		if err := f.SetCellValue(sheetName, cellRef, val); err != nil {
			return nil, fmt.Errorf("spreadsheet: writing sample row: %w", err)
		}
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("spreadsheet: serializing workbook: %w", err)
	}
	return buf.Bytes(), nil
}
