package dashboard

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"pca-viewer/internal/pca"
)

const (
	sheetPoints   = "Points"
	sheetVariance = "Variance"
	sheetSummary  = "Summary"
)

// WorkbookContentType is the media type of WriteWorkbook output.
const WorkbookContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// WriteWorkbook exports r as an xlsx workbook with one sheet for the
// projected points, one for per-component variance and one summary sheet.
func WriteWorkbook(r pca.Result, w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetPoints); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	for _, name := range []string{sheetVariance, sheetSummary} {
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("new sheet %s: %w", name, err)
		}
	}

	if err := writePoints(f, r); err != nil {
		return err
	}
	if err := writeVariance(f, r); err != nil {
		return err
	}
	if err := writeSummary(f, r); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writePoints(f *excelize.File, r pca.Result) error {
	if err := setRow(f, sheetPoints, 1, []any{"Index", "Label", "PC1", "PC2"}); err != nil {
		return err
	}
	for i, p := range r.Points {
		if err := setRow(f, sheetPoints, i+2, []any{i, p.Label, p.X, p.Y}); err != nil {
			return err
		}
	}
	return nil
}

func writeVariance(f *excelize.File, r pca.Result) error {
	if err := setRow(f, sheetVariance, 1, []any{"Component", "Explained Variance Ratio", "Cumulative Variance Ratio"}); err != nil {
		return err
	}
	for i, v := range r.ExplainedVarianceRatio {
		row := []any{ComponentLabel(i), v}
		if i < len(r.CumulativeVarianceRatio) {
			row = append(row, r.CumulativeVarianceRatio[i])
		}
		if err := setRow(f, sheetVariance, i+2, row); err != nil {
			return err
		}
	}
	return nil
}

func writeSummary(f *excelize.File, r pca.Result) error {
	s := pca.Summarize(r)
	sp := pca.Spread(r)
	rows := [][]any{
		{"Metric", "Value"},
		{"Data Points", s.PointCount},
		{"PC1 Variance", s.PC1Text()},
		{"PC2 Variance", s.PC2Text()},
		{"PC1+PC2 Cum. Var.", s.CumulativeText()},
		{"PC1 Min", sp.PC1.Min},
		{"PC1 Max", sp.PC1.Max},
		{"PC1 Mean", sp.PC1.Mean},
		{"PC1 Std Dev", sp.PC1.StdDev},
		{"PC2 Min", sp.PC2.Min},
		{"PC2 Max", sp.PC2.Max},
		{"PC2 Mean", sp.PC2.Mean},
		{"PC2 Std Dev", sp.PC2.StdDev},
	}
	for i, row := range rows {
		if err := setRow(f, sheetSummary, i+1, row); err != nil {
			return err
		}
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, vals []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &vals); err != nil {
		return fmt.Errorf("%s row %d: %w", sheet, row, err)
	}
	return nil
}
