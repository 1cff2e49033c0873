package export

// xlsx.go — sink alternativo en Excel, un libro por stream y por día
// (open_positions_20260830.xlsx, ...). Pensado para revisar una
// simulación a mano sin herramientas de SQL.

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/alejandrodnm/polysim/internal/domain"
)

const sheetName = "Sheet1"

type workbook struct {
	file    *excelize.File
	path    string
	nextRow int
}

// XLSXSink implementa ports.RecordSink escribiendo libros Excel. Cada
// Record guarda el libro a disco: una fila por ciclo no justifica
// buffering, y así un crash nunca pierde registros.
type XLSXSink struct {
	dir   string
	now   func() time.Time
	books map[domain.Stream]*workbook
}

// NewXLSXSink crea el sink sobre el directorio dado, creándolo si no
// existe.
func NewXLSXSink(dir string) (*XLSXSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("export.NewXLSXSink: create dir %q: %w", dir, err)
	}
	return &XLSXSink{
		dir:   dir,
		now:   time.Now,
		books: make(map[domain.Stream]*workbook),
	}, nil
}

// Record añade una fila al libro del stream y lo guarda.
func (s *XLSXSink) Record(_ context.Context, stream domain.Stream, row domain.Row) error {
	cols := stream.Columns()
	if cols == nil {
		return fmt.Errorf("export.Record: unknown stream %q", stream)
	}
	if len(row) != len(cols) {
		return fmt.Errorf("export.Record: %s row has %d values, want %d", stream, len(row), len(cols))
	}

	book, err := s.bookFor(stream)
	if err != nil {
		return err
	}

	cell, err := excelize.CoordinatesToCellName(1, book.nextRow)
	if err != nil {
		return fmt.Errorf("export.Record: %s: %w", stream, err)
	}
	if err := book.file.SetSheetRow(sheetName, cell, &row); err != nil {
		return fmt.Errorf("export.Record: write %s row: %w", stream, err)
	}
	book.nextRow++

	if err := book.file.SaveAs(book.path); err != nil {
		return fmt.Errorf("export.Record: save %s: %w", book.path, err)
	}
	return nil
}

// bookFor devuelve el libro del día para el stream, abriéndolo o
// creándolo con su fila de cabecera. Si la fecha cambió desde la última
// escritura se rota a un libro nuevo.
func (s *XLSXSink) bookFor(stream domain.Stream) (*workbook, error) {
	path := filepath.Join(s.dir, fmt.Sprintf("%s_%s.xlsx", stream, s.now().UTC().Format("20060102")))

	if book, ok := s.books[stream]; ok && book.path == path {
		return book, nil
	}

	var book *workbook
	if _, err := os.Stat(path); err == nil {
		f, err := excelize.OpenFile(path)
		if err != nil {
			return nil, fmt.Errorf("export.bookFor: open %q: %w", path, err)
		}
		rows, err := f.GetRows(sheetName)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("export.bookFor: read %q: %w", path, err)
		}
		book = &workbook{file: f, path: path, nextRow: len(rows) + 1}
	} else {
		f := excelize.NewFile()
		header := make([]any, len(stream.Columns()))
		for i, c := range stream.Columns() {
			header[i] = c
		}
		if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
			f.Close()
			return nil, fmt.Errorf("export.bookFor: write header %q: %w", path, err)
		}
		book = &workbook{file: f, path: path, nextRow: 2}
	}

	if old, ok := s.books[stream]; ok {
		old.file.Close()
	}
	s.books[stream] = book
	return book, nil
}

// Close guarda y cierra todos los libros abiertos.
func (s *XLSXSink) Close() error {
	var firstErr error
	for _, book := range s.books {
		if err := book.file.SaveAs(book.path); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("export.Close: save %q: %w", book.path, err)
		}
		if err := book.file.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("export.Close: close %q: %w", book.path, err)
		}
	}
	return firstErr
}
