package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/conorfennell/studyhub/internal/domain"
	"github.com/conorfennell/studyhub/internal/ledger"
)

// Sheet names of the progress workbook.
const (
	DailySheet      = "Daily"
	CategoriesSheet = "Categories"
)

var (
	dailyHeader    = []interface{}{"Date", "Attempts", "Correct", "Incorrect", "Accuracy"}
	categoryHeader = []interface{}{"Category", "Name", "Attempts", "Correct", "Accuracy", "Cards", "High yield", "Attempted", "Coverage"}
)

// Progress holds the derived views written to the workbook.
type Progress struct {
	Days       []ledger.DailySummary
	Categories map[domain.Category]ledger.CategorySummary
	Info       []domain.CategoryInfo
}

// WriteProgress renders p as an XLSX workbook with one sheet per view.
func WriteProgress(w io.Writer, p Progress) error {
	f := excelize.NewFile()
	defer f.Close()

	f.SetSheetName("Sheet1", DailySheet)
	if err := f.SetSheetRow(DailySheet, "A1", &dailyHeader); err != nil {
		return fmt.Errorf("failed to write daily header: %w", err)
	}
	for i, d := range p.Days {
		row := []interface{}{d.Date, d.Attempts, d.Correct, d.Incorrect, d.Accuracy}
		if err := f.SetSheetRow(DailySheet, cell(1, i+2), &row); err != nil {
			return fmt.Errorf("failed to write daily row %s: %w", d.Date, err)
		}
	}

	if _, err := f.NewSheet(CategoriesSheet); err != nil {
		return fmt.Errorf("failed to add categories sheet: %w", err)
	}
	if err := f.SetSheetRow(CategoriesSheet, "A1", &categoryHeader); err != nil {
		return fmt.Errorf("failed to write categories header: %w", err)
	}
	for i, info := range p.Info {
		s := p.Categories[info.ID]
		row := []interface{}{string(info.ID), info.Name, s.Attempts, s.Correct, s.Accuracy, s.Cards, s.HighYield, s.Attempted, s.Coverage}
		if err := f.SetSheetRow(CategoriesSheet, cell(1, i+2), &row); err != nil {
			return fmt.Errorf("failed to write category row %s: %w", info.ID, err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func cell(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}
