package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

const defaultXLSXSheet = "Listings"

// XLSXFile appends rows to a worksheet of a local workbook. The workbook is reopened
// for every batch so a crash never leaves more than one batch unsaved.
type XLSXFile struct {
	path  string
	sheet string
}

func NewXLSX(path, sheet string) (*XLSXFile, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("xlsx output path is required")
	}
	sheet = strings.TrimSpace(sheet)
	if sheet == "" {
		sheet = defaultXLSXSheet
	}
	return &XLSXFile{path: path, sheet: sheet}, nil
}

func (x *XLSXFile) Clear(context.Context) error {
	if err := os.MkdirAll(filepath.Dir(x.path), 0755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	if err := f.SetSheetName(f.GetSheetName(0), x.sheet); err != nil {
		return err
	}
	return f.SaveAs(x.path)
}

func (x *XLSXFile) AppendRows(ctx context.Context, rows [][]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f, err := x.open()
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	existing, err := f.GetRows(x.sheet)
	if err != nil {
		return fmt.Errorf("read %s: %w", x.sheet, err)
	}
	next := len(existing) + 1
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, next+i)
		if err != nil {
			return err
		}
		r := row
		if err := f.SetSheetRow(x.sheet, cell, &r); err != nil {
			return fmt.Errorf("write row %d: %w", next+i, err)
		}
	}
	return f.SaveAs(x.path)
}

func (x *XLSXFile) open() (*excelize.File, error) {
	if _, err := os.Stat(x.path); errors.Is(err, os.ErrNotExist) {
		f := excelize.NewFile()
		if err := f.SetSheetName(f.GetSheetName(0), x.sheet); err != nil {
			_ = f.Close()
			return nil, err
		}
		return f, nil
	}
	f, err := excelize.OpenFile(x.path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", x.path, err)
	}
	if idx, _ := f.GetSheetIndex(x.sheet); idx < 0 {
		if _, err := f.NewSheet(x.sheet); err != nil {
			_ = f.Close()
			return nil, err
		}
	}
	return f, nil
}

// ReadXLSX returns every row of sheet in the workbook at path.
func ReadXLSX(path, sheet string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	if strings.TrimSpace(sheet) == "" {
		sheet = defaultXLSXSheet
	}
	return f.GetRows(sheet)
}
