package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"villaops/internal/models"

	"github.com/julienschmidt/httprouter"
)

// bookingRequest is the create payload. Dates are YYYY-MM-DD.
type bookingRequest struct {
	PropertyID  int64   `json:"property_id"`
	GuestName   string  `json:"guest_name"`
	GuestEmail  string  `json:"guest_email"`
	GuestPhone  string  `json:"guest_phone"`
	Guests      int     `json:"guests"`
	CheckIn     string  `json:"check_in"`
	CheckOut    string  `json:"check_out"`
	Source      string  `json:"source"`
	ExternalRef string  `json:"external_ref"`
	TotalAmount float64 `json:"total_amount"`
	Notes       string  `json:"notes"`
}

func (req bookingRequest) booking() (*models.Booking, string) {
	if req.PropertyID <= 0 {
		return nil, "property_id is required"
	}
	if strings.TrimSpace(req.GuestName) == "" {
		return nil, "guest_name is required"
	}
	checkIn, err := time.Parse(models.DateLayout, strings.TrimSpace(req.CheckIn))
	if err != nil {
		return nil, "invalid check_in; expected YYYY-MM-DD"
	}
	checkOut, err := time.Parse(models.DateLayout, strings.TrimSpace(req.CheckOut))
	if err != nil {
		return nil, "invalid check_out; expected YYYY-MM-DD"
	}
	return &models.Booking{
		PropertyID:  req.PropertyID,
		GuestName:   req.GuestName,
		GuestEmail:  strings.TrimSpace(req.GuestEmail),
		GuestPhone:  strings.TrimSpace(req.GuestPhone),
		Guests:      req.Guests,
		CheckIn:     checkIn,
		CheckOut:    checkOut,
		Source:      strings.TrimSpace(req.Source),
		ExternalRef: strings.TrimSpace(req.ExternalRef),
		TotalAmount: req.TotalAmount,
		Notes:       req.Notes,
	}, ""
}

func (s *HTTPServer) handleCreateBooking(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req bookingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	b, msg := req.booking()
	if msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	if err := s.svc.Bookings.Create(r.Context(), b); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, b)
}

func (s *HTTPServer) handleGetBooking(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := pathID(ps, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	b, err := s.svc.Bookings.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, b)
}

func (s *HTTPServer) handleListBookings(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var f models.BookingFilter
	var err error
	if f.PropertyID, err = queryInt64(r, "property_id"); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if f.From, err = queryTime(r, "from"); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if f.To, err = queryTime(r, "to"); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := queryInt64(r, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	f.Limit = int(limit)
	f.Status = r.URL.Query().Get("status")

	bookings, err := s.svc.Bookings.List(r.Context(), f)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, bookings)
}

type bookingTransitionFunc func(ctx context.Context, id, version int64) (*models.Booking, error)

func (s *HTTPServer) bookingTransition(fn bookingTransitionFunc) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		id, err := pathID(ps, "id")
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		version, err := decodeVersion(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		b, err := fn(r.Context(), id, version)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, b)
	}
}

func (s *HTTPServer) handleAvailability(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	propertyID, err := pathID(ps, "property_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	start, err := queryTime(r, "start")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if start.IsZero() {
		start = time.Now()
	}
	days, err := queryInt64(r, "days")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if days == 0 {
		days = 30
	}

	availability, err := s.svc.Bookings.Availability(r.Context(), propertyID, models.DateOnly(start), int(days))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, availability)
}
