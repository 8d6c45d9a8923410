package services

import (
	"fmt"
	"io"
	"strings"

	"rag-chatbot-backend/internal/logger"
	"rag-chatbot-backend/models"

	"github.com/xuri/excelize/v2"
)

const transcriptSheet = "Transcripts"

var transcriptHeaders = []string{
	"Created At", "Session ID", "Model", "Question", "Reply", "Sources", "Failed", "Latency (ms)",
}

// ExportTranscriptsXLSX writes transcripts as a one-sheet workbook, one row
// per exchange in the given order.
func ExportTranscriptsXLSX(w io.Writer, transcripts []models.Transcript) error {
	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			logger.Warn("Failed to close workbook", "error", err)
		}
	}()

	index, err := f.NewSheet(transcriptSheet)
	if err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("failed to drop default sheet: %w", err)
	}

	for i, header := range transcriptHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(transcriptSheet, cell, header)
	}

	for i, t := range transcripts {
		row := i + 2
		values := []interface{}{
			t.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
			t.SessionID,
			t.Model,
			t.Question,
			t.Reply,
			joinSources(t.Sources),
			t.Failed,
			t.LatencyMS,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			f.SetCellValue(transcriptSheet, cell, v)
		}
	}

	f.SetColWidth(transcriptSheet, "A", "C", 20)
	f.SetColWidth(transcriptSheet, "D", "F", 60)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func joinSources(sources []models.Source) string {
	urls := make([]string, len(sources))
	for i, s := range sources {
		urls[i] = s.URL
	}
	return strings.Join(urls, "\n")
}
