// Package export renders booking history as Excel workbooks.
package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"fixora/internal/models"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

const (
	sheetName   = "Bookings"
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var columns = []struct {
	title string
	width float64
}{
	{"Booking ID", 34},
	{"Created", 18},
	{"Customer", 20},
	{"Professional", 20},
	{"Service", 24},
	{"Address", 30},
	{"Preferred date", 14},
	{"Preferred time", 14},
	{"Urgency", 12},
	{"Status", 12},
	{"Updated", 18},
}

var statusColors = map[string]string{
	models.StatusPending:   "#FFF2CC",
	models.StatusAccepted:  "#DDEBF7",
	models.StatusDeclined:  "#F8CBAD",
	models.StatusCompleted: "#E2EFDA",
}

type Exporter struct {
	dir    string
	logger *zerolog.Logger
}

func New(dir string, logger *zerolog.Logger) *Exporter {
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}
	return &Exporter{dir: dir, logger: logger}
}

// WriteBookings writes an xlsx workbook with one row per booking to w.
func (e *Exporter) WriteBookings(w io.Writer, title string, bookings []models.Booking) error {
	f, err := e.build(title, bookings)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.Write(w); err != nil {
		return fmt.Errorf("error writing workbook: %w", err)
	}
	return nil
}

// SaveBookings stores the workbook under the export directory and returns its path.
func (e *Exporter) SaveBookings(name, title string, bookings []models.Booking) (string, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %w", err)
	}

	f, err := e.build(title, bookings)
	if err != nil {
		return "", err
	}
	defer f.Close()

	path := filepath.Join(e.dir, FileName(name, time.Now()))
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("error saving file: %w", err)
	}

	e.logger.Info().Str("file_path", path).Int("rows", len(bookings)).Msg("Excel file created")
	return path, nil
}

// FileName builds a filesystem-safe export name.
func FileName(name string, at time.Time) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, name)
	return fmt.Sprintf("bookings_%s_%s.xlsx", safe, at.Format("20060102_150405"))
}

func (e *Exporter) build(title string, bookings []models.Booking) (*excelize.File, error) {
	f := excelize.NewFile()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)
	_ = f.DeleteSheet("Sheet1")

	lastCol, _ := excelize.ColumnNumberToName(len(columns))
	_ = f.SetCellValue(sheetName, "A1", title)
	_ = f.MergeCell(sheetName, "A1", lastCol+"1")
	titleStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	_ = f.SetCellStyle(sheetName, "A1", "A1", titleStyle)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#D9D9D9"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})
	for i, col := range columns {
		name, _ := excelize.ColumnNumberToName(i + 1)
		_ = f.SetCellValue(sheetName, name+"2", col.title)
		_ = f.SetColWidth(sheetName, name, name, col.width)
	}
	_ = f.SetCellStyle(sheetName, "A2", lastCol+"2", headerStyle)

	statusStyles := make(map[string]int, len(statusColors))
	for status, color := range statusColors {
		style, err := f.NewStyle(&excelize.Style{
			Fill: excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1},
		})
		if err == nil {
			statusStyles[status] = style
		}
	}

	for i, b := range bookings {
		row := i + 3
		values := []interface{}{
			b.ID,
			b.CreatedAt.Format("2006-01-02 15:04"),
			b.CustomerName,
			b.ProfessionalID,
			b.Service,
			b.Address,
			b.PreferredDate,
			b.PreferredTime,
			b.Urgency,
			b.Status,
			b.UpdatedAt.Format("2006-01-02 15:04"),
		}
		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
			f.Close()
			return nil, fmt.Errorf("error writing row %d: %w", row, err)
		}

		if style, ok := statusStyles[b.Status]; ok {
			statusCell, _ := excelize.CoordinatesToCellName(10, row)
			_ = f.SetCellStyle(sheetName, statusCell, statusCell, style)
		}
	}

	return f, nil
}
