package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"villaops/internal/export"
	"villaops/internal/models"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const (
	bookingsSheet = "Bookings"
	syncLogSheet  = "SyncLog"
	scheduleSheet = "Schedule"

	bookingsLastCol = "N"
	statusCol       = "I"
	updatedCol      = "N"
	stampLayout     = "2006-01-02 15:04:05"
)

// ErrRowNotFound is returned when a booking has no row in the sheet.
var ErrRowNotFound = errors.New("booking row not found")

var bookingHeaders = []interface{}{
	"ID", "Property", "Guest", "Email", "Phone", "Guests", "Check-in", "Check-out",
	"Status", "Source", "External ref", "Conflict", "Created At", "Updated At",
}

// SheetsService mirrors bookings and the sync log into a spreadsheet.
type SheetsService struct {
	service       *sheets.Service
	spreadsheetID string
	rowCache      map[int64]int
	cacheMu       sync.RWMutex
}

// NewSheetsService authenticates with a service account key file. The row
// index is warmed in the background and refreshed hourly until ctx is done.
func NewSheetsService(ctx context.Context, credentialsFile, spreadsheetID string) (*SheetsService, error) {
	credentialsJSON, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}

	config, err := google.JWTConfigFromJSON(credentialsJSON, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}

	srv, err := sheets.NewService(ctx, option.WithHTTPClient(config.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("unable to create Sheets service: %w", err)
	}

	s := newSheetsService(srv, spreadsheetID)
	go s.refreshLoop(ctx, time.Hour)
	return s, nil
}

func newSheetsService(srv *sheets.Service, spreadsheetID string) *SheetsService {
	return &SheetsService{
		service:       srv,
		spreadsheetID: spreadsheetID,
		rowCache:      make(map[int64]int),
	}
}

func (s *SheetsService) refreshLoop(ctx context.Context, every time.Duration) {
	warm := func() {
		wctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		_ = s.WarmUpCache(wctx)
	}
	warm()

	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			warm()
		}
	}
}

// TestConnection reads the header cell of the bookings sheet.
func (s *SheetsService) TestConnection(ctx context.Context) error {
	_, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, bookingsSheet+"!A1").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	return nil
}

// ServiceAccountEmail returns the client_email of a service account key,
// which is the address the spreadsheet has to be shared with.
func ServiceAccountEmail(credentialsFile string) (string, error) {
	file, err := os.ReadFile(credentialsFile)
	if err != nil {
		return "", err
	}

	var creds struct {
		ClientEmail string `json:"client_email"`
	}
	if err := json.Unmarshal(file, &creds); err != nil {
		return "", err
	}
	if creds.ClientEmail == "" {
		return "", fmt.Errorf("client_email missing in %s", credentialsFile)
	}
	return creds.ClientEmail, nil
}

// WarmUpCache rebuilds the row index from the ID column.
func (s *SheetsService) WarmUpCache(ctx context.Context) error {
	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, bookingsSheet+"!A:A").Context(ctx).Do()
	if err != nil {
		return err
	}

	cache := make(map[int64]int)
	for i, row := range resp.Values {
		if id := cellID(row); id > 0 {
			cache[id] = i + 1
		}
	}

	s.cacheMu.Lock()
	s.rowCache = cache
	s.cacheMu.Unlock()
	return nil
}

// AppendBooking adds a row for booking.
func (s *SheetsService) AppendBooking(ctx context.Context, booking *models.Booking) error {
	valueRange := &sheets.ValueRange{
		Values: [][]interface{}{bookingRowValues(booking)},
	}

	resp, err := s.service.Spreadsheets.Values.Append(s.spreadsheetID, bookingsSheet+"!A:A", valueRange).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return err
	}
	if resp.Updates != nil {
		if row := rowFromRange(resp.Updates.UpdatedRange); row > 0 {
			s.setCachedRow(booking.ID, row)
		}
	}
	return nil
}

// UpsertBooking updates an existing booking row or appends a new one if not found.
func (s *SheetsService) UpsertBooking(ctx context.Context, booking *models.Booking) error {
	if booking == nil {
		return fmt.Errorf("booking is nil")
	}

	rowIdx, err := s.FindBookingRow(ctx, booking.ID)
	if err != nil {
		if errors.Is(err, ErrRowNotFound) {
			return s.AppendBooking(ctx, booking)
		}
		return err
	}

	rangeData := fmt.Sprintf("%s!A%d:%s%d", bookingsSheet, rowIdx, bookingsLastCol, rowIdx)
	valueRange := &sheets.ValueRange{
		Values: [][]interface{}{bookingRowValues(booking)},
	}

	_, err = s.service.Spreadsheets.Values.Update(s.spreadsheetID, rangeData, valueRange).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	return err
}

// DeleteBookingRow clears the row that corresponds to bookingID.
func (s *SheetsService) DeleteBookingRow(ctx context.Context, bookingID int64) error {
	rowIdx, err := s.FindBookingRow(ctx, bookingID)
	if err != nil {
		return err
	}

	rangeData := fmt.Sprintf("%s!A%d:%s%d", bookingsSheet, rowIdx, bookingsLastCol, rowIdx)
	_, err = s.service.Spreadsheets.Values.Clear(s.spreadsheetID, rangeData, &sheets.ClearValuesRequest{}).
		Context(ctx).
		Do()
	if err == nil {
		s.deleteCacheRow(bookingID)
	}
	return err
}

// UpdateBookingStatus writes the status and updated-at cells of a booking row.
func (s *SheetsService) UpdateBookingStatus(ctx context.Context, bookingID int64, status string) error {
	rowIdx, err := s.FindBookingRow(ctx, bookingID)
	if err != nil {
		return err
	}

	data := []*sheets.ValueRange{
		{
			Range:  fmt.Sprintf("%s!%s%d", bookingsSheet, statusCol, rowIdx),
			Values: [][]interface{}{{status}},
		},
		{
			Range:  fmt.Sprintf("%s!%s%d", bookingsSheet, updatedCol, rowIdx),
			Values: [][]interface{}{{time.Now().Format(stampLayout)}},
		},
	}
	_, err = s.service.Spreadsheets.Values.BatchUpdate(s.spreadsheetID, &sheets.BatchUpdateValuesRequest{
		ValueInputOption: "RAW",
		Data:             data,
	}).Context(ctx).Do()
	return err
}

// AppendSyncEvent adds one line to the sync log sheet.
func (s *SheetsService) AppendSyncEvent(ctx context.Context, e *models.SyncEvent) error {
	if e == nil {
		return fmt.Errorf("sync event is nil")
	}
	row := []interface{}{
		e.ID,
		e.CreatedAt.Format(stampLayout),
		e.Type,
		e.EntityType,
		e.EntityID,
		e.Source,
	}
	_, err := s.service.Spreadsheets.Values.Append(s.spreadsheetID, syncLogSheet+"!A:F", &sheets.ValueRange{
		Values: [][]interface{}{row},
	}).ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	return err
}

// FindBookingRow locates row index (1-based) for booking_id in column A with cache.
func (s *SheetsService) FindBookingRow(ctx context.Context, bookingID int64) (int, error) {
	if bookingID == 0 {
		return 0, fmt.Errorf("booking id is required")
	}

	if row, ok := s.getCachedRow(bookingID); ok {
		return row, nil
	}

	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, bookingsSheet+"!A:A").Context(ctx).Do()
	if err != nil {
		return 0, err
	}

	for i, row := range resp.Values {
		if cellID(row) == bookingID {
			rowIdx := i + 1
			s.setCachedRow(bookingID, rowIdx)
			return rowIdx, nil
		}
	}
	return 0, ErrRowNotFound
}

// ReplaceBookingsSheet rewrites the whole bookings sheet and its row index.
func (s *SheetsService) ReplaceBookingsSheet(ctx context.Context, bookings []*models.Booking) error {
	_, err := s.service.Spreadsheets.Values.Clear(s.spreadsheetID, bookingsSheet+"!A:Z", &sheets.ClearValuesRequest{}).
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to clear bookings sheet: %w", err)
	}

	values := make([][]interface{}, 0, len(bookings)+1)
	values = append(values, bookingHeaders)
	for _, b := range bookings {
		values = append(values, bookingRowValues(b))
	}

	_, err = s.service.Spreadsheets.Values.Update(s.spreadsheetID, bookingsSheet+"!A1", &sheets.ValueRange{Values: values}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to update bookings sheet: %w", err)
	}

	cache := make(map[int64]int, len(bookings))
	for i, b := range bookings {
		cache[b.ID] = i + 2
	}
	s.cacheMu.Lock()
	s.rowCache = cache
	s.cacheMu.Unlock()
	return nil
}

// WriteSchedule renders the occupancy grid to the schedule sheet with the
// same fills as the xlsx export.
func (s *SheetsService) WriteSchedule(ctx context.Context, g *export.Grid) error {
	sheetID, err := s.SheetID(ctx, scheduleSheet)
	if err != nil {
		return err
	}

	_, err = s.service.Spreadsheets.Values.Clear(s.spreadsheetID, scheduleSheet+"!A:ZZ", &sheets.ClearValuesRequest{}).
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("unable to clear sheet: %w", err)
	}

	header := []interface{}{""}
	for d := 0; d < g.Days; d++ {
		header = append(header, g.Day(d).Format("02.01"))
	}
	data := [][]interface{}{header}

	var requests []*sheets.Request
	for i, p := range g.Properties {
		row := []interface{}{p.Name}
		for d, c := range g.Cells[i] {
			row = append(row, c.Text())
			requests = append(requests, &sheets.Request{
				RepeatCell: &sheets.RepeatCellRequest{
					Range: &sheets.GridRange{
						SheetId:          sheetID,
						StartRowIndex:    int64(i + 1),
						EndRowIndex:      int64(i + 2),
						StartColumnIndex: int64(d + 1),
						EndColumnIndex:   int64(d + 2),
					},
					Cell: &sheets.CellData{
						UserEnteredFormat: &sheets.CellFormat{
							BackgroundColor:   hexColor(c.Color()),
							VerticalAlignment: "TOP",
							WrapStrategy:      "WRAP",
						},
					},
					Fields: "userEnteredFormat(backgroundColor,verticalAlignment,wrapStrategy)",
				},
			})
		}
		data = append(data, row)
	}

	_, err = s.service.Spreadsheets.Values.Update(s.spreadsheetID, scheduleSheet+"!A1", &sheets.ValueRange{Values: data}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("unable to update schedule sheet: %w", err)
	}

	if len(requests) == 0 {
		return nil
	}
	_, err = s.service.Spreadsheets.BatchUpdate(s.spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{
		Requests: requests,
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("unable to apply formatting: %w", err)
	}
	return nil
}

// SheetID returns the numeric id of the named sheet.
func (s *SheetsService) SheetID(ctx context.Context, name string) (int64, error) {
	spreadsheet, err := s.service.Spreadsheets.Get(s.spreadsheetID).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("unable to get spreadsheet: %w", err)
	}
	for _, sheet := range spreadsheet.Sheets {
		if sheet.Properties.Title == name {
			return sheet.Properties.SheetId, nil
		}
	}
	return 0, fmt.Errorf("sheet '%s' not found", name)
}

func (s *SheetsService) getCachedRow(id int64) (int, bool) {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	row, ok := s.rowCache[id]
	return row, ok
}

func (s *SheetsService) setCachedRow(id int64, row int) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.rowCache[id] = row
}

func (s *SheetsService) deleteCacheRow(id int64) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	delete(s.rowCache, id)
}

// ClearCache clears the row index cache.
func (s *SheetsService) ClearCache() {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.rowCache = make(map[int64]int)
}

func bookingRowValues(b *models.Booking) []interface{} {
	return []interface{}{
		b.ID,
		b.PropertyName,
		b.GuestName,
		b.GuestEmail,
		b.GuestPhone,
		b.Guests,
		b.CheckIn.Format(models.DateLayout),
		b.CheckOut.Format(models.DateLayout),
		b.Status,
		b.Source,
		b.ExternalRef,
		b.Conflict,
		b.CreatedAt.Format(stampLayout),
		b.UpdatedAt.Format(stampLayout),
	}
}

func cellID(row []interface{}) int64 {
	if len(row) == 0 {
		return 0
	}
	switch v := row[0].(type) {
	case float64:
		return int64(v)
	case string:
		id, _ := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		return id
	}
	return 0
}

// rowFromRange extracts the first row number of an A1 range like "Bookings!A12:N12".
func rowFromRange(r string) int {
	if i := strings.LastIndex(r, "!"); i >= 0 {
		r = r[i+1:]
	}
	if i := strings.Index(r, ":"); i >= 0 {
		r = r[:i]
	}
	r = strings.TrimLeft(r, "ABCDEFGHIJKLMNOPQRSTUVWXYZ")
	n, err := strconv.Atoi(r)
	if err != nil {
		return 0
	}
	return n
}

func hexColor(hex string) *sheets.Color {
	var r, g, b int
	if _, err := fmt.Sscanf(strings.TrimPrefix(hex, "#"), "%02x%02x%02x", &r, &g, &b); err != nil {
		return &sheets.Color{Red: 1, Green: 1, Blue: 1}
	}
	return &sheets.Color{Red: float64(r) / 255, Green: float64(g) / 255, Blue: float64(b) / 255}
}
