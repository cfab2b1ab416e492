package store

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// CSVFile appends rows to a local CSV file.
type CSVFile struct {
	path string
}

func NewCSV(path string) (*CSVFile, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("csv output path is required")
	}
	return &CSVFile{path: path}, nil
}

func (c *CSVFile) Clear(context.Context) error {
	if err := os.MkdirAll(filepath.Dir(c.path), 0755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	f, err := os.Create(c.path)
	if err != nil {
		return fmt.Errorf("truncate %s: %w", c.path, err)
	}
	return f.Close()
}

func (c *CSVFile) AppendRows(ctx context.Context, rows [][]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f, err := os.OpenFile(c.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open %s: %w", c.path, err)
	}
	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", c.path, err)
	}
	return f.Close()
}
