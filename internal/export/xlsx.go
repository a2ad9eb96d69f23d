package export

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/kousskous/menu-extractor/internal/entity"
)

const sheet = "Plats"

var headers = []string{
	"Restaurant",
	"Adresse",
	"Quartier",
	"Téléphone",
	"Chef",
	"Plat",
	"Prix",
	"Description",
	"Végétarien",
	"Vegan",
	"Dates",
	"Services",
	"Longitude",
	"Latitude",
	"Géocodage",
	"Fichier source",
}

// Service renders the restaurant dataset as a one-row-per-dish workbook.
type Service struct {
	logger *slog.Logger
}

func NewService(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger}
}

// RestaurantsXLSX returns the workbook bytes. A restaurant without dishes
// still gets one row so nothing in the dataset disappears from review.
func (s *Service) RestaurantsXLSX(restaurants []entity.Restaurant) ([]byte, error) {
	start := time.Now()

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)
	_ = f.DeleteSheet("Sheet1")

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	for _, r := range restaurants {
		dishes := r.Dishes
		if len(dishes) == 0 {
			dishes = []entity.Dish{{}}
		}
		for _, d := range dishes {
			write := func(col int, v any) {
				cell, _ := excelize.CoordinatesToCellName(col, row)
				_ = f.SetCellValue(sheet, cell, v)
			}
			write(1, r.Name)
			write(2, r.Address)
			write(3, deref(r.District))
			write(4, deref(r.Phone))
			write(5, deref(r.Chef))
			write(6, d.Name)
			write(7, d.Price)
			write(8, truncate(d.Description, 200))
			write(9, yesNo(d.Vegetarian, d.Name != ""))
			write(10, yesNo(d.Vegan, d.Name != ""))
			write(11, FormatDates(d.Dates))
			write(12, strings.Join(d.Services, ", "))
			if r.Longitude != nil && r.Latitude != nil {
				write(13, *r.Longitude)
				write(14, *r.Latitude)
			}
			write(15, r.GeocodingStatus)
			write(16, r.SourceFile)
			row++
		}
	}

	_ = f.SetColWidth(sheet, "A", "A", 28) // restaurant
	_ = f.SetColWidth(sheet, "B", "B", 40) // address
	_ = f.SetColWidth(sheet, "C", "C", 30) // district
	_ = f.SetColWidth(sheet, "D", "E", 18)
	_ = f.SetColWidth(sheet, "F", "F", 32) // dish
	_ = f.SetColWidth(sheet, "G", "G", 12)
	_ = f.SetColWidth(sheet, "H", "H", 60) // description
	_ = f.SetColWidth(sheet, "K", "K", 30) // dates
	_ = f.SetColWidth(sheet, "P", "P", 24)
	_ = f.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"restaurants", len(restaurants),
		"rows", row-2,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

// FormatDates renders dates as "22/08, 23/08".
func FormatDates(dates []entity.Date) string {
	parts := make([]string, len(dates))
	for i, d := range dates {
		parts[i] = fmt.Sprintf("%02d/%02d", d.Day, d.Month)
	}
	return strings.Join(parts, ", ")
}

func yesNo(b, known bool) string {
	if !known {
		return ""
	}
	if b {
		return "oui"
	}
	return "non"
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
