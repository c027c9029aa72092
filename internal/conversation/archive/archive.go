package archive

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/xuri/excelize/v2"

	"claims-intake/internal/common/logger"
	"claims-intake/internal/models"
)

var headerRow = []interface{}{"Conversation ID", "Claim ID", "Transcript", "Timestamp"}

// Workbook appends delivered transcripts to a local xlsx file, one row per
// conversation. It is the offline fallback when the spreadsheet SaaS is
// unreachable and an export operators can hand around.
type Workbook struct {
	path   string
	sheet  string
	logger logger.Logger

	mu sync.Mutex
}

// NewWorkbook creates an archive writing to path. The file and sheet are
// created on first append.
func NewWorkbook(path, sheet string, log logger.Logger) *Workbook {
	if sheet == "" {
		sheet = "Transcripts"
	}
	return &Workbook{
		path:   path,
		sheet:  sheet,
		logger: log,
	}
}

// Append adds one transcript row and saves the workbook.
func (w *Workbook) Append(t models.Transcript) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	file, fresh, err := w.open()
	if err != nil {
		return err
	}
	defer file.Close()

	if fresh {
		if err := w.writeHeader(file); err != nil {
			return err
		}
	}

	rows, err := file.GetRows(w.sheet)
	if err != nil {
		return fmt.Errorf("failed to read archive sheet: %w", err)
	}

	cell, err := excelize.CoordinatesToCellName(1, len(rows)+1)
	if err != nil {
		return fmt.Errorf("failed to compute archive row: %w", err)
	}

	row := []interface{}{
		t.ConversationID,
		t.ClaimID,
		t.Text,
		t.Timestamp.Format(time.RFC3339),
	}
	if err := file.SetSheetRow(w.sheet, cell, &row); err != nil {
		return fmt.Errorf("failed to write archive row: %w", err)
	}

	if err := file.SaveAs(w.path); err != nil {
		return fmt.Errorf("failed to save archive workbook: %w", err)
	}

	w.logger.WithFields(map[string]interface{}{
		"conversation_id": t.ConversationID,
		"path":            w.path,
	}).Debug("Transcript archived", nil)

	return nil
}

func (w *Workbook) open() (*excelize.File, bool, error) {
	if _, err := os.Stat(w.path); os.IsNotExist(err) {
		return excelize.NewFile(), true, nil
	}

	file, err := excelize.OpenFile(w.path)
	if err != nil {
		return nil, false, fmt.Errorf("failed to open archive workbook: %w", err)
	}
	return file, false, nil
}

func (w *Workbook) writeHeader(file *excelize.File) error {
	index, err := file.NewSheet(w.sheet)
	if err != nil {
		return fmt.Errorf("failed to create archive sheet: %w", err)
	}
	file.SetActiveSheet(index)

	if w.sheet != "Sheet1" {
		// Drop the default sheet so the workbook only carries ours.
		file.DeleteSheet("Sheet1")
	}

	header := headerRow
	if err := file.SetSheetRow(w.sheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write archive header: %w", err)
	}

	return nil
}
