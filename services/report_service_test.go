package services

import (
	"bytes"
	"context"
	"testing"
	"time"

	"edupath_go/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestExportWorkbook(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	_, st := seedStudent(store, "s1@example.com")
	require.NoError(t, store.Registrations().Create(ctx, &models.Registration{UserID: 50, FullName: "Ana Lima", Email: "ana@example.com", Status: models.RegPendingPayment, FeeAmount: 5000}))
	require.NoError(t, store.Applications().Create(ctx, NewApplication(st.ID, testTemplates, ApplicationInput{University: "UCL", Country: "United Kingdom"})))

	raw, err := NewReportService(store).ExportBytes(ctx)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(raw))
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{"Registrations", "Applications"}, f.GetSheetList())

	regs, err := f.GetRows("Registrations")
	require.NoError(t, err)
	require.Len(t, regs, 2)
	assert.Equal(t, "Ana Lima", regs[1][1])
	assert.Equal(t, "pending_payment", regs[1][6])

	apps, err := f.GetRows("Applications")
	require.NoError(t, err)
	require.Len(t, apps, 2)
	assert.Equal(t, "UCL", apps[1][2])
	assert.Equal(t, models.StageNotStarted, apps[1][6])
}

func courseSheet(t *testing.T, rows [][]interface{}) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}
	var buf bytes.Buffer
	_, err := f.WriteTo(&buf)
	require.NoError(t, err)
	return &buf
}

func TestImportCoursesFromSheet(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	svc := NewCourseService(store, nil, nil, time.Minute)
	_, err := svc.Create(ctx, CourseInput{Title: "Old title", Code: "MBA", University: "Melbourne", Country: "Australia"})
	require.NoError(t, err)

	buf := courseSheet(t, [][]interface{}{
		{"Title", "Code", "University", "Country", "Level", "Tuition Fee"},
		{"MBA (Global)", "mba", "Melbourne", "Australia", "Postgraduate", "AUD 60,000"},
		{"BSc Computing", "BSC-C", "Leeds", "United Kingdom", "Undergraduate", ""},
		{"", "", "", "", "", ""},
		{"Broken", "BRK", "", "Canada", "", ""},
	})
	rows, err := ParseCourseSheet(buf)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "AUD 60,000", rows[0].TuitionFee)

	res, err := svc.ImportCourses(ctx, rows)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, 1, res.Updated)
	assert.Contains(t, res.Errors, "BRK")
}

func TestParseCourseSheetMissingColumn(t *testing.T) {
	buf := courseSheet(t, [][]interface{}{{"Title", "Code"}, {"x", "y"}})
	_, err := ParseCourseSheet(buf)
	assert.ErrorIs(t, err, ErrInvalidInput)
}
