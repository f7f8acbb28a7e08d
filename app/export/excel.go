package export

import (
	"fmt"
	"io"
	"time"
	"unicode/utf8"

	models "course-statistics-service/app/models"

	"github.com/xuri/excelize/v2"
)

const (
	SheetName   = "Estadisticas"
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	maxColumnWidth = 60.0
)

var headers = []string{
	"ID", "ID Usuario", "ID Curso", "ID Evaluacion", "Titulo", "Tipo", "Entregado", "Calificacion", "Fecha",
}

// FileName is estadisticas_<timestamp>.xlsx.
func FileName(now time.Time) string {
	return fmt.Sprintf("estadisticas_%s.xlsx", now.Format("20060102_150405"))
}

// Write serializes records as an xlsx workbook with one row per record.
func Write(w io.Writer, records []models.StatisticRecord) error {
	f, err := Build(records)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// Build creates the workbook: bold header row, one row per record, columns sized to content.
func Build(records []models.StatisticRecord) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		f.Close()
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	widths := make([]int, len(headers))
	rows := make([][]interface{}, 0, len(records)+1)

	header := make([]interface{}, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	rows = append(rows, header)
	for _, r := range records {
		rows = append(rows, recordRow(r))
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			f.Close()
			return nil, err
		}
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			f.Close()
			return nil, fmt.Errorf("write row %d: %w", i+1, err)
		}
		for col, v := range row {
			if n := utf8.RuneCountInString(fmt.Sprint(v)); n > widths[col] {
				widths[col] = n
			}
		}
	}

	if err := styleHeader(f); err != nil {
		f.Close()
		return nil, err
	}
	if err := sizeColumns(f, widths); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

func recordRow(r models.StatisticRecord) []interface{} {
	courseID := ""
	if r.CourseID != nil {
		courseID = *r.CourseID
	}
	submitted := "No"
	if r.Submitted {
		submitted = "Si"
	}
	var grade interface{} = ""
	if r.Grade != nil {
		grade = *r.Grade
	}
	return []interface{}{
		r.ID,
		r.UserID,
		courseID,
		r.AssessmentID,
		r.Title,
		string(r.Kind),
		submitted,
		grade,
		r.RecordedAt.UTC().Format("2006-01-02 15:04:05"),
	}
}

func styleHeader(f *excelize.File) error {
	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	last, err := excelize.CoordinatesToCellName(len(headers), 1)
	if err != nil {
		return err
	}
	return f.SetCellStyle(SheetName, "A1", last, style)
}

func sizeColumns(f *excelize.File, widths []int) error {
	for i, w := range widths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		width := float64(w) + 2
		if width > maxColumnWidth {
			width = maxColumnWidth
		}
		if err := f.SetColWidth(SheetName, col, col, width); err != nil {
			return fmt.Errorf("column width %s: %w", col, err)
		}
	}
	return nil
}
