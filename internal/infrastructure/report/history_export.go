package report

import (
	"fmt"
	"io"
	"time"

	"github.com/buffrsign/esign-orchestrator/internal/domain/entity"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

const (
	summarySheet = "Workflow"
	historySheet = "History"
	stepsSheet   = "Steps"

	timeLayout = "2006-01-02 15:04:05"
)

// ContentType is the MIME type of the exported workbook
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var historyHeader = []interface{}{"#", "Type", "Name", "Step", "Status", "Started", "Completed", "Duration (s)", "Error"}

var stepsHeader = []interface{}{"#", "Step ID", "Type", "Name", "Status", "Started", "Completed", "Error"}

// HistoryExporter renders a workflow's audit trail as an XLSX workbook
type HistoryExporter struct {
	logger *zap.Logger
}

// NewHistoryExporter creates a new exporter
func NewHistoryExporter(logger *zap.Logger) *HistoryExporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HistoryExporter{logger: logger}
}

// FileName returns the download name for a workflow export
func FileName(wf *entity.Workflow) string {
	return fmt.Sprintf("workflow-%s-history.xlsx", wf.ID)
}

// Export writes the workbook for wf and its history to w
func (e *HistoryExporter) Export(wf *entity.Workflow, history []entity.HistoryEntry, w io.Writer) error {
	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			e.logger.Warn("Failed to close workbook", zap.Error(err))
		}
	}()

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DCE6F1"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return fmt.Errorf("failed to rename sheet: %w", err)
	}
	if err := e.writeSummary(f, wf, headerStyle); err != nil {
		return err
	}

	if _, err := f.NewSheet(historySheet); err != nil {
		return fmt.Errorf("failed to add history sheet: %w", err)
	}
	if err := e.writeHistory(f, history, headerStyle); err != nil {
		return err
	}

	if _, err := f.NewSheet(stepsSheet); err != nil {
		return fmt.Errorf("failed to add steps sheet: %w", err)
	}
	if err := e.writeSteps(f, wf.Steps, headerStyle); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		e.logger.Error("Failed to write workbook", zap.String("workflow_id", wf.ID), zap.Error(err))
		return fmt.Errorf("failed to write workbook: %w", err)
	}

	e.logger.Debug("History exported",
		zap.String("workflow_id", wf.ID),
		zap.Int("entries", len(history)))
	return nil
}

func (e *HistoryExporter) writeSummary(f *excelize.File, wf *entity.Workflow, style int) error {
	rows := [][]interface{}{
		{"Workflow ID", wf.ID},
		{"Name", wf.Name},
		{"Description", wf.Description},
		{"Status", wf.Status},
		{"Current step", fmt.Sprintf("%d / %d", wf.CurrentStepIndex, len(wf.Steps))},
		{"Created by", wf.CreatedBy},
		{"Created", formatTime(wf.CreatedAt)},
		{"Started", formatTimePtr(wf.StartedAt)},
		{"Ended", formatTimePtr(wf.EndedAt)},
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(summarySheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write summary: %w", err)
		}
	}
	if err := f.SetCellStyle(summarySheet, "A1", fmt.Sprintf("A%d", len(rows)), style); err != nil {
		return fmt.Errorf("failed to style summary: %w", err)
	}
	return f.SetColWidth(summarySheet, "A", "B", 24)
}

func (e *HistoryExporter) writeHistory(f *excelize.File, history []entity.HistoryEntry, style int) error {
	if err := writeHeader(f, historySheet, historyHeader, style); err != nil {
		return err
	}

	for i, h := range history {
		duration := ""
		if h.CompletedAt != nil {
			duration = fmt.Sprintf("%.3f", h.Duration().Seconds())
		}
		row := []interface{}{
			i + 1,
			h.Type,
			h.Name,
			h.StepID,
			h.Status,
			formatTime(h.StartedAt),
			formatTimePtr(h.CompletedAt),
			duration,
			h.Error,
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(historySheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write history row %d: %w", i+1, err)
		}
	}
	return f.SetColWidth(historySheet, "B", "I", 20)
}

func (e *HistoryExporter) writeSteps(f *excelize.File, steps []entity.Step, style int) error {
	if err := writeHeader(f, stepsSheet, stepsHeader, style); err != nil {
		return err
	}

	for i, s := range steps {
		row := []interface{}{i + 1, s.ID, string(s.Type), s.Name, "PENDING", "", "", ""}
		if r := s.Result; r != nil {
			row[4] = r.Status
			row[5] = formatTime(r.StartedAt)
			row[6] = formatTime(r.CompletedAt)
			row[7] = r.Error
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(stepsSheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write step row %d: %w", i+1, err)
		}
	}
	return f.SetColWidth(stepsSheet, "B", "H", 20)
}

func writeHeader(f *excelize.File, sheet string, header []interface{}, style int) error {
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write %s header: %w", sheet, err)
	}
	last, _ := excelize.CoordinatesToCellName(len(header), 1)
	if err := f.SetCellStyle(sheet, "A1", last, style); err != nil {
		return fmt.Errorf("failed to style %s header: %w", sheet, err)
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}
