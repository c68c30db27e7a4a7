package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/proctorhub/session-service/internal/repositories"
	"github.com/xuri/excelize/v2"
)

// ExportService produces violation spreadsheets for dashboards and manual
// review. Report rendering itself lives in a separate consumer; this only
// exports the persisted records.
type ExportService interface {
	ExportSessionViolations(ctx context.Context, sessionID string) ([]byte, error)
}

type exportService struct {
	repo   repositories.Repository
	logger *slog.Logger
}

func NewExportService(repo repositories.Repository, logger *slog.Logger) ExportService {
	return &exportService{repo: repo, logger: logger}
}

func (s *exportService) ExportSessionViolations(ctx context.Context, sessionID string) ([]byte, error) {
	session, err := s.repo.Session().GetBySessionID(ctx, sessionID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	violations, _, err := s.repo.Violation().GetBySession(ctx, sessionID, repositories.ViolationFilters{})
	if err != nil {
		return nil, fmt.Errorf("failed to get violations: %w", err)
	}
	summary, err := s.repo.Violation().SummaryBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get violation summary: %w", err)
	}

	f := excelize.NewFile()
	sheetName := "Violations"

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to create Excel sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headers := []string{
		"ID", "Type", "Severity", "Confidence", "Timestamp", "Duration (s)",
		"Source", "Description", "Counted In Score", "Resolved", "Reviewed By",
	}
	for i, header := range headers {
		cell := fmt.Sprintf("%c1", 'A'+i)
		f.SetCellValue(sheetName, cell, header)
	}

	for rowIndex, v := range violations {
		row := []interface{}{
			v.ID,
			string(v.Type),
			string(v.Severity),
			v.Confidence,
			v.Timestamp.Format("2006-01-02 15:04:05"),
		}
		if v.Duration != nil {
			row = append(row, *v.Duration)
		} else {
			row = append(row, "")
		}
		row = append(row, string(v.Source), v.Description, v.CountedInScore, v.Resolved)
		if v.ReviewedBy != nil {
			row = append(row, *v.ReviewedBy)
		} else {
			row = append(row, "")
		}

		for colIndex, value := range row {
			cell := fmt.Sprintf("%c%d", 'A'+colIndex, rowIndex+2)
			f.SetCellValue(sheetName, cell, value)
		}
	}

	// Summary sheet: per-type aggregates plus the session totals.
	summarySheet := "Summary"
	if _, err := f.NewSheet(summarySheet); err != nil {
		return nil, fmt.Errorf("failed to create summary sheet: %w", err)
	}

	summaryHeaders := []string{"Type", "Count", "Avg Confidence", "Total Duration (s)"}
	for i, header := range summaryHeaders {
		cell := fmt.Sprintf("%c1", 'A'+i)
		f.SetCellValue(summarySheet, cell, header)
	}
	for rowIndex, row := range summary {
		f.SetCellValue(summarySheet, fmt.Sprintf("A%d", rowIndex+2), string(row.Type))
		f.SetCellValue(summarySheet, fmt.Sprintf("B%d", rowIndex+2), row.Count)
		f.SetCellValue(summarySheet, fmt.Sprintf("C%d", rowIndex+2), row.AvgConfidence)
		f.SetCellValue(summarySheet, fmt.Sprintf("D%d", rowIndex+2), row.TotalDuration)
	}

	totalsRow := len(summary) + 3
	f.SetCellValue(summarySheet, fmt.Sprintf("A%d", totalsRow), "Integrity Score")
	f.SetCellValue(summarySheet, fmt.Sprintf("B%d", totalsRow), session.IntegrityScore)
	f.SetCellValue(summarySheet, fmt.Sprintf("A%d", totalsRow+1), "Total Violations")
	f.SetCellValue(summarySheet, fmt.Sprintf("B%d", totalsRow+1), session.ViolationCount)

	// Drop the default sheet excelize creates.
	f.DeleteSheet("Sheet1")

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write Excel file: %w", err)
	}

	s.logger.Info("Exported session violations",
		"session_id", sessionID,
		"violations", len(violations))

	return buf.Bytes(), nil
}
