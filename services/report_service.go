package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"edupath_go/models"
	"edupath_go/repository"

	"github.com/xuri/excelize/v2"
)

const exportBatch = 100

// ReportService builds spreadsheet exports and reads catalogue imports.
type ReportService struct {
	store repository.Store
}

func NewReportService(store repository.Store) *ReportService {
	return &ReportService{store: store}
}

var (
	registrationHeader = []interface{}{"ID", "Full name", "Email", "Phone", "Target country", "Program", "Status", "Fee", "Payment reference", "Submitted", "Created"}
	applicationHeader  = []interface{}{"ID", "Student ID", "University", "Program", "Country", "Intake", "Status", "Progress %", "Current stage", "Updated"}
)

func fmtTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02 15:04")
}

// Export writes the registration queue and all applications as an XLSX
// workbook with one sheet each.
func (s *ReportService) Export(ctx context.Context, w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", "Registrations"); err != nil {
		return err
	}
	if err := s.writeRegistrations(ctx, f, "Registrations"); err != nil {
		return err
	}
	if _, err := f.NewSheet("Applications"); err != nil {
		return err
	}
	if err := s.writeApplications(ctx, f, "Applications"); err != nil {
		return err
	}
	_, err := f.WriteTo(w)
	return err
}

// ExportBytes is Export into memory.
func (s *ReportService) ExportBytes(ctx context.Context) ([]byte, error) {
	var buf bytes.Buffer
	if err := s.Export(ctx, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *ReportService) writeRegistrations(ctx context.Context, f *excelize.File, sheet string) error {
	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return err
	}
	if err := sw.SetRow("A1", registrationHeader); err != nil {
		return err
	}
	row := 2
	for page := 1; ; page++ {
		regs, total, err := s.store.Registrations().List(ctx, "", repository.Page{Page: page, Limit: exportBatch})
		if err != nil {
			return err
		}
		for _, r := range regs {
			cell, _ := excelize.CoordinatesToCellName(1, row)
			if err := sw.SetRow(cell, []interface{}{
				r.ID, r.FullName, r.Email, r.Phone, r.TargetCountry, r.IntendedProgram, r.Status,
				r.FeeAmount, r.PaymentReference, fmtTime(r.PaymentSubmitted), r.CreatedAt.Format("2006-01-02 15:04"),
			}); err != nil {
				return err
			}
			row++
		}
		if int64(page*exportBatch) >= total {
			break
		}
	}
	return sw.Flush()
}

func (s *ReportService) writeApplications(ctx context.Context, f *excelize.File, sheet string) error {
	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return err
	}
	if err := sw.SetRow("A1", applicationHeader); err != nil {
		return err
	}
	row := 2
	for page := 1; ; page++ {
		apps, total, err := s.store.Applications().List(ctx, repository.ApplicationFilter{Page: repository.Page{Page: page, Limit: exportBatch}})
		if err != nil {
			return err
		}
		for _, a := range apps {
			cell, _ := excelize.CoordinatesToCellName(1, row)
			if err := sw.SetRow(cell, []interface{}{
				a.ID, a.StudentID, a.University, a.Program, a.Country, a.Intake,
				a.Status, a.Progress, a.CurrentStage, a.UpdatedAt.Format("2006-01-02 15:04"),
			}); err != nil {
				return err
			}
			row++
		}
		if int64(page*exportBatch) >= total {
			break
		}
	}
	return sw.Flush()
}

// ParseCourseSheet reads course rows from the first sheet of an XLSX
// file. The header row names the columns; unknown columns are ignored.
func ParseCourseSheet(r io.Reader) ([]CourseInput, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	sheet := f.GetSheetName(0)
	if sheet == "" {
		sheet = "Sheet1"
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: empty sheet", ErrInvalidInput)
	}
	idx := mapHeaderIndexes(rows[0])
	for _, required := range []string{"title", "code", "university", "country"} {
		if _, ok := idx[required]; !ok {
			return nil, fmt.Errorf("%w: missing column %q", ErrInvalidInput, required)
		}
	}
	get := func(row []string, col string) string {
		i, ok := idx[col]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var out []CourseInput
	for _, row := range rows[1:] {
		if get(row, "code") == "" && get(row, "title") == "" {
			continue
		}
		out = append(out, CourseInput{
			Title:       get(row, "title"),
			Code:        get(row, "code"),
			University:  get(row, "university"),
			Country:     get(row, "country"),
			Level:       get(row, "level"),
			Duration:    get(row, "duration"),
			TuitionFee:  get(row, "tuition_fee"),
			Intakes:     get(row, "intakes"),
			Description: get(row, "description"),
		})
	}
	return out, nil
}

// ImportResult reports what a course import did.
type ImportResult struct {
	Created int               `json:"created"`
	Updated int               `json:"updated"`
	Errors  map[string]string `json:"errors,omitempty"`
}

// ImportCourses upserts courses by code. Rows that fail validation are
// reported by code and skipped.
func (s *CourseService) ImportCourses(ctx context.Context, rows []CourseInput) (ImportResult, error) {
	res := ImportResult{Errors: map[string]string{}}
	existing := map[string]uint{}
	for page := 1; ; page++ {
		items, total, err := s.store.Courses().List(ctx, repository.CourseFilter{Page: repository.Page{Page: page, Limit: 100}})
		if err != nil {
			return res, err
		}
		for _, c := range items {
			existing[c.Code] = c.ID
		}
		if int64(page*100) >= total {
			break
		}
	}

	for _, in := range rows {
		code := strings.ToUpper(strings.TrimSpace(in.Code))
		var err error
		if id, ok := existing[code]; ok {
			_, err = s.Update(ctx, id, in)
			if err == nil {
				res.Updated++
			}
		} else {
			var c *models.Course
			c, err = s.Create(ctx, in)
			if err == nil {
				res.Created++
				existing[c.Code] = c.ID
			}
		}
		if err != nil {
			key := code
			if key == "" {
				key = in.Title
			}
			res.Errors[key] = err.Error()
		}
	}
	return res, nil
}

func mapHeaderIndexes(header []string) map[string]int {
	m := map[string]int{}
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(h))
		key = strings.ReplaceAll(key, " ", "_")
		m[key] = i
	}
	return m
}
