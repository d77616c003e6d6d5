package services

import (
	"context"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
)

const (
	exportSheet       = "Libros"
	exportNotDeleted  = "No eliminado"
	exportTimeLayout  = "2006-01-02 15:04:05"
	exportHeaderColor = "D3D3D3"
)

var exportHeaders = []string{
	"ID", "Título", "Autor", "Editorial", "Precio",
	"Disponible", "Género", "Creado", "Actualizado", "Eliminado",
}

// ExportExcel renders every book, soft-deleted ones included, into an xlsx
// workbook ordered by ascending id. Availability is rendered as a localized
// yes/no and a missing deletion timestamp as a sentinel string. Returns the
// date-keyed filename and the serialized workbook.
func (s *BookService) ExportExcel(ctx context.Context) (string, []byte, error) {
	books, err := s.repo.ListAll(ctx)
	if err != nil {
		return "", nil, fmt.Errorf("load books for export: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), exportSheet); err != nil {
		return "", nil, fmt.Errorf("rename sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{exportHeaderColor}},
	})
	if err != nil {
		return "", nil, fmt.Errorf("header style: %w", err)
	}

	for col, header := range exportHeaders {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		if err := f.SetCellValue(exportSheet, cell, header); err != nil {
			return "", nil, fmt.Errorf("write header: %w", err)
		}
		if err := f.SetCellStyle(exportSheet, cell, cell, headerStyle); err != nil {
			return "", nil, fmt.Errorf("style header: %w", err)
		}
	}

	for i, book := range books {
		disponible := "No"
		if book.Disponibilidad {
			disponible = "Sí"
		}
		eliminado := exportNotDeleted
		if book.DeletedAt != nil {
			eliminado = book.DeletedAt.Format(exportTimeLayout)
		}

		values := []any{
			book.ID,
			book.Title,
			book.Author,
			book.Editorial,
			book.Price,
			disponible,
			book.Gender,
			book.CreatedAt.Format(exportTimeLayout),
			book.UpdatedAt.Format(exportTimeLayout),
			eliminado,
		}
		for col, value := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, i+2)
			if err := f.SetCellValue(exportSheet, cell, value); err != nil {
				return "", nil, fmt.Errorf("write row: %w", err)
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return "", nil, fmt.Errorf("serialize workbook: %w", err)
	}

	filename := fmt.Sprintf("libros_%s.xlsx", time.Now().Format("2006-01-02"))
	return filename, buf.Bytes(), nil
}
