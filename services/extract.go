// Package services holds the supporting services around the ingestion
// pipeline: upload text extraction and the periodic source refresh.
package services

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"

	"knowledge-base-service/internal/config"
	"knowledge-base-service/internal/crawler"
	"knowledge-base-service/internal/logger"
)

// FileExtractor turns uploaded documents into plain text for chunking.
type FileExtractor struct {
	cfg *config.Config
}

func NewFileExtractor(cfg *config.Config) *FileExtractor {
	return &FileExtractor{cfg: cfg}
}

// Extract returns the text content of an uploaded file. The format is
// chosen by extension; unknown extensions are rejected before any bytes
// are read.
func (e *FileExtractor) Extract(path, name string) (string, error) {
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".pdf":
		return e.extractPDF(path)
	case ".xlsx", ".xlsm":
		return e.extractSpreadsheet(path)
	case ".md", ".markdown", ".txt":
		return e.readPlainText(path)
	default:
		return "", fmt.Errorf("%w: %s", crawler.ErrUnsupportedFormat, ext)
	}
}

func (e *FileExtractor) readPlainText(path string) (string, error) {
	if err := e.checkSize(path); err != nil {
		return "", err
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read upload: %w", err)
	}
	return string(content), nil
}

func (e *FileExtractor) extractPDF(path string) (string, error) {
	if err := e.checkSize(path); err != nil {
		return "", err
	}
	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	var sb strings.Builder
	fonts := make(map[string]*pdf.Font)
	for p := 1; p <= reader.NumPage(); p++ {
		page := reader.Page(p)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(fonts)
		if err != nil {
			logger.Warn("pdf page extraction failed, skipping", "page", p, "error", err)
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n\n")
	}
	if strings.TrimSpace(sb.String()) == "" {
		return "", fmt.Errorf("%w: pdf has no extractable text", crawler.ErrUnsupportedFormat)
	}
	return sb.String(), nil
}

// extractSpreadsheet renders each sheet as a markdown section with
// tab-separated rows, so the chunker keeps sheets together under their
// header.
func (e *FileExtractor) extractSpreadsheet(path string) (string, error) {
	if err := e.checkSize(path); err != nil {
		return "", err
	}
	f, err := excelize.OpenFile(path)
	if err != nil {
		return "", fmt.Errorf("open spreadsheet: %w", err)
	}
	defer f.Close()

	var sb strings.Builder
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			logger.Warn("sheet read failed, skipping", "sheet", sheet, "error", err)
			continue
		}
		if len(rows) == 0 {
			continue
		}
		fmt.Fprintf(&sb, "## %s\n\n", sheet)
		for _, row := range rows {
			sb.WriteString(strings.Join(row, "\t"))
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("%w: spreadsheet has no rows", crawler.ErrUnsupportedFormat)
	}
	return sb.String(), nil
}

func (e *FileExtractor) checkSize(path string) error {
	stat, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat upload: %w", err)
	}
	if stat.Size() > e.cfg.MaxFileSize {
		return fmt.Errorf("%w: %d bytes", crawler.ErrTooLarge, stat.Size())
	}
	return nil
}
