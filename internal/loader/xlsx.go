package loader

import (
	"context"
	"fmt"
	"strings"

	"rag-chatbot-backend/internal/logger"
	"rag-chatbot-backend/models"

	"github.com/xuri/excelize/v2"
)

// XLSXExtractor emits one document per non-empty sheet. Rows are separated by
// newlines and cells by tabs.
type XLSXExtractor struct{}

func (XLSXExtractor) Extensions() []string { return []string{".xlsx"} }

func (XLSXExtractor) Extract(ctx context.Context, path string) ([]models.Document, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", path, err)
	}
	defer f.Close()

	base := baseMetadata(path)
	var docs []models.Document
	for _, sheet := range f.GetSheetList() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rows, err := f.GetRows(sheet)
		if err != nil {
			logger.Warn("Failed to read sheet", "path", path, "sheet", sheet, "error", err)
			continue
		}

		var sb strings.Builder
		for _, row := range rows {
			line := strings.TrimRight(strings.Join(row, "\t"), "\t ")
			if line == "" {
				continue
			}
			sb.WriteString(line)
			sb.WriteByte('\n')
		}
		if sb.Len() == 0 {
			continue
		}

		meta := copyMetadata(base)
		meta[models.MetaPage] = sheet
		docs = append(docs, models.Document{Content: strings.TrimSpace(sb.String()), Metadata: meta})
	}

	return docs, nil
}
