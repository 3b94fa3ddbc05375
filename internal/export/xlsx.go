package export

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"villaops/internal/domain"
	"villaops/internal/models"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

const (
	scheduleSheet = "Schedule"
	jobsSheet     = "Jobs"
	maxDays       = 366
)

// Exporter renders the property calendar to xlsx workbooks.
type Exporter struct {
	repo   domain.Repository
	dir    string
	logger *zerolog.Logger
}

func NewExporter(repo domain.Repository, dir string, logger *zerolog.Logger) *Exporter {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Exporter{repo: repo, dir: dir, logger: logger}
}

// Load collects the grid and the jobs for days nights starting at start.
func (e *Exporter) Load(ctx context.Context, start time.Time, days int) (*Grid, []*models.Job, error) {
	if days <= 0 || days > maxDays {
		return nil, nil, fmt.Errorf("days must be between 1 and %d", maxDays)
	}
	start = models.DateOnly(start)
	end := start.AddDate(0, 0, days)

	properties, err := e.repo.ListProperties(ctx, true)
	if err != nil {
		return nil, nil, err
	}
	bookings, err := e.repo.ListBookings(ctx, models.BookingFilter{From: start, To: end})
	if err != nil {
		return nil, nil, err
	}
	jobs, err := e.repo.ListJobs(ctx, models.JobFilter{From: start, To: end})
	if err != nil {
		return nil, nil, err
	}
	return BuildGrid(start, days, properties, bookings), jobs, nil
}

// WriteFile saves the workbook under the export directory and returns its path.
func (e *Exporter) WriteFile(ctx context.Context, start time.Time, days int) (string, error) {
	grid, jobs, err := e.Load(ctx, start, days)
	if err != nil {
		return "", err
	}
	staff, err := e.staffNames(ctx)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %w", err)
	}
	name := fmt.Sprintf("calendar_%s_to_%s.xlsx",
		grid.Start.Format(models.DateLayout),
		grid.End().AddDate(0, 0, -1).Format(models.DateLayout))
	path := filepath.Join(e.dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("error creating export file: %w", err)
	}
	if err := WriteWorkbook(f, grid, jobs, staff); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}

	e.logger.Info().Str("file_path", path).Int("days", days).Msg("calendar export created")
	return path, nil
}

func (e *Exporter) staffNames(ctx context.Context) (map[int64]string, error) {
	list, err := e.repo.ListStaff(ctx, "", false)
	if err != nil {
		return nil, err
	}
	names := make(map[int64]string, len(list))
	for _, s := range list {
		names[s.ID] = s.Name
	}
	return names, nil
}

// WriteWorkbook writes the schedule grid and the job list as xlsx to w.
func WriteWorkbook(w io.Writer, grid *Grid, jobs []*models.Job, staff map[int64]string) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(scheduleSheet)
	if err != nil {
		return fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := writeSchedule(f, grid); err != nil {
		return err
	}
	if _, err := f.NewSheet(jobsSheet); err != nil {
		return fmt.Errorf("error creating sheet: %w", err)
	}
	if err := writeJobs(f, grid, jobs, staff); err != nil {
		return err
	}
	_ = f.DeleteSheet("Sheet1")

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("error writing workbook: %w", err)
	}
	return nil
}

func writeSchedule(f *excelize.File, g *Grid) error {
	_ = f.SetCellValue(scheduleSheet, "A1", fmt.Sprintf("Period: %s - %s",
		g.Start.Format(models.DateLayout), g.End().AddDate(0, 0, -1).Format(models.DateLayout)))
	titleStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	_ = f.SetCellStyle(scheduleSheet, "A1", "A1", titleStyle)
	lastCol, _ := excelize.ColumnNumberToName(g.Days + 1)
	_ = f.MergeCell(scheduleSheet, "A1", lastCol+"1")

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	for d := 0; d < g.Days; d++ {
		cell, _ := excelize.CoordinatesToCellName(d+2, 2)
		_ = f.SetCellValue(scheduleSheet, cell, g.Day(d).Format("02.01"))
		_ = f.SetCellStyle(scheduleSheet, cell, cell, headerStyle)
	}

	nameStyle, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E2EFDA"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})
	styles := make(map[string]int)
	for i, p := range g.Properties {
		row := i + 3
		cell, _ := excelize.CoordinatesToCellName(1, row)
		_ = f.SetCellValue(scheduleSheet, cell, fmt.Sprintf("%s (%d/%d)", p.Name, g.Occupied(i), g.Days))
		_ = f.SetCellStyle(scheduleSheet, cell, cell, nameStyle)

		for d, c := range g.Cells[i] {
			cell, _ := excelize.CoordinatesToCellName(d+2, row)
			if err := f.SetCellValue(scheduleSheet, cell, c.Text()); err != nil {
				return fmt.Errorf("error writing cell %s: %w", cell, err)
			}
			style, err := cellStyle(f, styles, c.Color())
			if err != nil {
				return err
			}
			_ = f.SetCellStyle(scheduleSheet, cell, cell, style)
		}
	}

	_ = f.SetColWidth(scheduleSheet, "A", "A", 25)
	if g.Days > 0 {
		_ = f.SetColWidth(scheduleSheet, "B", lastCol, 20)
	}
	return nil
}

func cellStyle(f *excelize.File, cache map[string]int, color string) (int, error) {
	if id, ok := cache[color]; ok {
		return id, nil
	}
	id, err := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1},
		Alignment: &excelize.Alignment{
			Horizontal: "left",
			Vertical:   "top",
			WrapText:   true,
		},
	})
	if err != nil {
		return 0, fmt.Errorf("error creating style: %w", err)
	}
	cache[color] = id
	return id, nil
}

var jobHeaders = []string{"ID", "Property", "Type", "Title", "Staff", "Status", "Start", "End"}

func writeJobs(f *excelize.File, g *Grid, jobs []*models.Job, staff map[int64]string) error {
	properties := make(map[int64]string, len(g.Properties))
	for _, p := range g.Properties {
		properties[p.ID] = p.Name
	}

	for i, h := range jobHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(jobsSheet, cell, h)
	}
	bold, _ := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	_ = f.SetCellStyle(jobsSheet, "A1", "H1", bold)

	for i, j := range jobs {
		staffName := ""
		if j.StaffID != nil {
			staffName = staff[*j.StaffID]
		}
		row := []interface{}{
			j.ID,
			properties[j.PropertyID],
			j.Type,
			j.Title,
			staffName,
			j.Status,
			j.ScheduledStart.Format("2006-01-02 15:04"),
			j.ScheduledEnd.Format("2006-01-02 15:04"),
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(jobsSheet, cell, &row); err != nil {
			return fmt.Errorf("error writing job row: %w", err)
		}
	}
	_ = f.SetColWidth(jobsSheet, "B", "D", 22)
	_ = f.SetColWidth(jobsSheet, "G", "H", 18)
	return nil
}
