package brandmatch

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/xuri/excelize/v2"
)

// ExportHeaders are the column titles written by the report exporters.
var ExportHeaders = []string{"Consulta", "Índice", "Marca", "Similitud", "Modelo", "Familia"}

const (
	resultsSheet  = "Resultados"
	warningsSheet = "Avisos"
)

// exportRows flattens reports into one row per match. A report without
// matches still yields a row holding just the query.
func exportRows(reports []Report) [][]string {
	var rows [][]string
	for _, r := range reports {
		if len(r.Matches) == 0 {
			rows = append(rows, []string{r.Query, "", "", "", "", ""})
			continue
		}
		for i, m := range r.Matches {
			rows = append(rows, []string{
				r.Query,
				strconv.Itoa(i + 1),
				m.Display,
				strconv.FormatFloat(m.Score, 'f', 2, 64),
				m.Strategy,
				string(m.Family),
			})
		}
	}
	return rows
}

// WriteReportsCSV writes the flat matches of every report as CSV.
func WriteReportsCSV(w io.Writer, reports []Report) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(ExportHeaders); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, row := range exportRows(reports) {
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// WriteReportsXLSX saves the reports to an Excel workbook. Matches go to the
// first sheet and warnings, when present, to a second one.
func WriteReportsXLSX(path string, reports []Report) error {
	f, err := reportsWorkbook(reports)
	if err != nil {
		return err
	}
	defer f.Close()

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create export dir: %w", err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}

// WriteReportsXLSXTo streams the workbook built by WriteReportsXLSX to w.
func WriteReportsXLSXTo(w io.Writer, reports []Report) error {
	f, err := reportsWorkbook(reports)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func reportsWorkbook(reports []Report) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := fillWorkbook(f, reports); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

func fillWorkbook(f *excelize.File, reports []Report) error {
	if err := f.SetSheetName(f.GetSheetName(0), resultsSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#D9E1F2"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}
	if err := writeSheet(f, resultsSheet, ExportHeaders, headerStyle); err != nil {
		return err
	}
	for i, row := range exportRows(reports) {
		values := make([]any, len(row))
		for j, v := range row {
			values[j] = v
		}
		if row[1] != "" {
			values[1], _ = strconv.Atoi(row[1])
			values[3], _ = strconv.ParseFloat(row[3], 64)
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(resultsSheet, cell, &values); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}
	_ = f.SetColWidth(resultsSheet, "A", "A", 24)
	_ = f.SetColWidth(resultsSheet, "C", "C", 32)
	_ = f.SetColWidth(resultsSheet, "E", "F", 14)

	var warnings [][]string
	for _, r := range reports {
		for _, w := range r.Warnings {
			warnings = append(warnings, []string{r.Query, string(w.Kind), w.Strategy, w.Message})
		}
	}
	if len(warnings) > 0 {
		if _, err := f.NewSheet(warningsSheet); err != nil {
			return fmt.Errorf("create sheet: %w", err)
		}
		if err := writeSheet(f, warningsSheet, []string{"Consulta", "Tipo", "Modelo", "Mensaje"}, headerStyle); err != nil {
			return err
		}
		for i, row := range warnings {
			cell, _ := excelize.CoordinatesToCellName(1, i+2)
			if err := f.SetSheetRow(warningsSheet, cell, &row); err != nil {
				return fmt.Errorf("write warning %d: %w", i+2, err)
			}
		}
		_ = f.SetColWidth(warningsSheet, "D", "D", 60)
	}
	f.SetActiveSheet(0)
	return nil
}

func writeSheet(f *excelize.File, sheet string, headers []string, style int) error {
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return fmt.Errorf("write header %s: %w", cell, err)
		}
	}
	last, _ := excelize.CoordinatesToCellName(len(headers), 1)
	if err := f.SetCellStyle(sheet, "A1", last, style); err != nil {
		return fmt.Errorf("style header: %w", err)
	}
	return nil
}
