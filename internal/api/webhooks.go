package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"villaops/internal/models"

	"github.com/julienschmidt/httprouter"
)

// Webhook events accepted from automation tools.
const (
	webhookBookingCreated   = "booking.created"
	webhookBookingUpdated   = "booking.updated"
	webhookBookingStatus    = "booking.status"
	webhookBookingCancelled = "booking.cancelled"
)

// handleWebhook takes a payload from an automation tool. The booking
// fields may sit under "booking" or at the top level; bookings are matched
// by source and external_ref.
func (s *HTTPServer) handleWebhook(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	source := strings.ToLower(strings.TrimSpace(ps.ByName("source")))
	secret, ok := s.webhooks.Secrets[source]
	if !ok || secret == "" {
		writeError(w, http.StatusNotFound, "unknown webhook source")
		return
	}
	got := r.Header.Get(s.webhooks.SecretHeader)
	if subtle.ConstantTimeCompare([]byte(secret), []byte(got)) != 1 {
		writeError(w, http.StatusUnauthorized, "invalid webhook secret")
		return
	}

	if s.svc.Cache != nil {
		allowed, err := s.svc.Cache.CheckRateLimit(r.Context(), "webhook:"+source,
			models.WebhookRateLimit, models.WebhookRateWindow*time.Second)
		if err != nil {
			s.log.Warn().Err(err).Str("source", source).Msg("webhook rate limit check failed")
		} else if !allowed {
			writeError(w, http.StatusTooManyRequests, errRateLimited.Error())
			return
		}
	}

	var p models.Payload
	if err := decodeJSON(r, &p); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	data := p.GetObject("booking")
	if data == nil {
		data = p
	}

	event := p.GetString("event")
	switch event {
	case webhookBookingCreated, "":
		s.importBooking(w, r, source, data, false)
	case webhookBookingUpdated:
		s.importBooking(w, r, source, data, true)
	case webhookBookingStatus, webhookBookingCancelled:
		status := data.GetString("status")
		if event == webhookBookingCancelled {
			status = models.StatusCancelled
		}
		s.changeBookingStatus(w, r, source, data.GetString("external_ref"), status)
	default:
		writeError(w, http.StatusBadRequest, "unsupported event "+event)
	}
}

// importBooking stores a booking from source. With update set, a booking
// already stored under the same external_ref takes the new stay fields.
func (s *HTTPServer) importBooking(w http.ResponseWriter, r *http.Request, source string, data models.Payload, update bool) {
	b := &models.Booking{
		PropertyID:  data.GetInt64("property_id"),
		GuestName:   data.GetString("guest_name"),
		GuestEmail:  data.GetString("guest_email"),
		GuestPhone:  data.GetString("guest_phone"),
		Guests:      int(data.GetInt64("guests")),
		CheckIn:     data.GetTime("check_in"),
		CheckOut:    data.GetTime("check_out"),
		Status:      data.GetString("status"),
		Source:      source,
		ExternalRef: data.GetString("external_ref"),
		TotalAmount: data.GetFloat("total_amount"),
		Notes:       data.GetString("notes"),
	}
	if b.PropertyID <= 0 || b.ExternalRef == "" {
		writeError(w, http.StatusBadRequest, "property_id and external_ref are required")
		return
	}
	if b.CheckIn.IsZero() || b.CheckOut.IsZero() {
		writeError(w, http.StatusBadRequest, "check_in and check_out are required")
		return
	}

	importFn := s.svc.Bookings.Import
	if update {
		importFn = s.svc.Bookings.UpdateImported
	}
	stored, created, err := importFn(r.Context(), b)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	code := http.StatusOK
	if created {
		code = http.StatusCreated
	}
	writeData(w, code, stored)
}

func (s *HTTPServer) changeBookingStatus(w http.ResponseWriter, r *http.Request, source, ref, status string) {
	if ref == "" {
		writeError(w, http.StatusBadRequest, "external_ref is required")
		return
	}
	transitions := map[string]bookingTransitionFunc{
		models.StatusApproved:  s.svc.Bookings.Approve,
		models.StatusRejected:  s.svc.Bookings.Reject,
		models.StatusCancelled: s.svc.Bookings.Cancel,
		models.StatusCompleted: s.svc.Bookings.Complete,
	}
	fn, ok := transitions[status]
	if !ok {
		writeError(w, http.StatusBadRequest, "unsupported status "+status)
		return
	}

	b, err := s.svc.Repo.GetBookingByExternalRef(r.Context(), source, ref)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if b.Status == status {
		writeData(w, http.StatusOK, b)
		return
	}
	updated, err := fn(r.Context(), b.ID, b.Version)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, updated)
}
