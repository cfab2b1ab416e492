// Package store persists enriched listings in batches to a spreadsheet-like destination.
package store

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// RowAppender is a row-oriented destination. Rows are appended in call order.
type RowAppender interface {
	// Clear removes every row, header included.
	Clear(ctx context.Context) error
	AppendRows(ctx context.Context, rows [][]string) error
}

const (
	KindSheets = "sheets"
	KindCSV    = "csv"
	KindXLSX   = "xlsx"
)

// NormalizeKind maps the accepted spellings of an output kind to its canonical name.
func NormalizeKind(kind string) (string, error) {
	k := strings.ToLower(strings.TrimSpace(kind))
	k = strings.NewReplacer("_", "-", " ", "-").Replace(k)
	switch k {
	case "", "sheets", "sheet", "google-sheets", "google-sheet", "gsheets", "gsheet":
		return KindSheets, nil
	case "csv":
		return KindCSV, nil
	case "xlsx", "excel", "xls":
		return KindXLSX, nil
	default:
		return "", fmt.Errorf("unknown output kind %q (want sheets, csv or xlsx)", kind)
	}
}

// Config selects and configures a destination.
type Config struct {
	Kind string

	// Sheets destination.
	SpreadsheetID   string
	Sheet           string
	CredentialsFile string
	Endpoint        string
	Retries         int

	// File destinations.
	Path string

	Logger *zap.Logger
}

// Open builds the destination named by cfg.Kind.
func Open(ctx context.Context, cfg Config) (RowAppender, error) {
	kind, err := NormalizeKind(cfg.Kind)
	if err != nil {
		return nil, err
	}
	switch kind {
	case KindCSV:
		return NewCSV(cfg.Path)
	case KindXLSX:
		return NewXLSX(cfg.Path, cfg.Sheet)
	default:
		return NewSheets(ctx, SheetsConfig{
			SpreadsheetID:   cfg.SpreadsheetID,
			Sheet:           cfg.Sheet,
			CredentialsFile: cfg.CredentialsFile,
			Endpoint:        cfg.Endpoint,
			Retries:         cfg.Retries,
			Logger:          cfg.Logger,
		})
	}
}
