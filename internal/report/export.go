package report

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/sinhadeepak1115/MilTrack/internal/core/domain"
)

var entryColumns = []string{
	"Sequence", "Kind", "Asset Type", "Quantity",
	"Source Base", "Target Base", "User", "Ref Sequence", "Note", "Committed At",
}

// WriteEntriesXLSX renders committed ledger entries as a spreadsheet, one
// row per entry in the given order.
func WriteEntriesXLSX(w io.Writer, entries []domain.Entry) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Ledger"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	for col, header := range entryColumns {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, header); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}

	for row, e := range entries {
		values := []any{
			e.Sequence, string(e.Kind), e.AssetTypeID, e.Quantity,
			e.SourceBaseID, e.TargetBaseID, e.UserID, e.RefSequence, e.Note,
			e.CommittedAt.Format("2006-01-02 15:04:05"),
		}
		for col, value := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				return fmt.Errorf("write row %d: %w", row+1, err)
			}
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
