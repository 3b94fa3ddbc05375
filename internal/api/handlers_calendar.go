package api

import (
	"net/http"
	"strings"

	"villaops/internal/calendar"
	"villaops/internal/models"

	"github.com/julienschmidt/httprouter"
)

// calendarQuery reads from, to, property_id, staff_id and kinds.
func calendarQuery(r *http.Request) (calendar.Query, error) {
	var q calendar.Query
	var err error
	if q.From, err = queryTime(r, "from"); err != nil {
		return q, err
	}
	if q.To, err = queryTime(r, "to"); err != nil {
		return q, err
	}
	if q.PropertyID, err = queryInt64(r, "property_id"); err != nil {
		return q, err
	}
	if q.StaffID, err = queryInt64(r, "staff_id"); err != nil {
		return q, err
	}
	q.Kinds = splitCSV(r.URL.Query().Get("kinds"))
	return q, nil
}

func (s *HTTPServer) handleCalendar(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	q, err := calendarQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	evs, err := s.svc.Calendar.Events(r.Context(), q)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, evs)
}

func (s *HTTPServer) handleListConflicts(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	kind := strings.TrimSpace(r.URL.Query().Get("kind"))
	if kind != "" && kind != models.ConflictKindBooking && kind != models.ConflictKindStaff {
		writeError(w, http.StatusBadRequest, "kind must be booking or staff")
		return
	}
	list, err := s.svc.Repo.ListConflicts(r.Context(), kind, !queryBool(r, "all"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, list)
}

func (s *HTTPServer) handleResolveConflict(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := pathID(ps, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	c, err := s.svc.Live.ResolveConflict(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, c)
}

func (s *HTTPServer) handleListSyncEvents(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	f := models.SyncEventFilter{
		EntityType: r.URL.Query().Get("entity_type"),
		Type:       r.URL.Query().Get("type"),
	}
	var err error
	if f.EntityID, err = queryInt64(r, "entity_id"); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := queryInt64(r, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	f.Limit = int(limit)

	list, err := s.svc.SyncLog.List(r.Context(), f)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, list)
}

type decisionRequest struct {
	BookingID  int64   `json:"booking_id"`
	Decision   string  `json:"decision"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
	Model      string  `json:"model"`
}

func (s *HTTPServer) handleRecordDecision(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req decisionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.BookingID <= 0 {
		writeError(w, http.StatusBadRequest, "booking_id is required")
		return
	}
	e, err := s.svc.Approvals.RecordDecision(r.Context(), &models.AILogEntry{
		BookingID:  req.BookingID,
		Decision:   strings.TrimSpace(req.Decision),
		Confidence: req.Confidence,
		Reason:     req.Reason,
		Model:      req.Model,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, e)
}

// handleListDecisions returns pending escalations unless booking_id is set.
func (s *HTTPServer) handleListDecisions(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	bookingID, err := queryInt64(r, "booking_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var list []*models.AILogEntry
	if bookingID != 0 {
		list, err = s.svc.Approvals.ListDecisions(r.Context(), bookingID)
	} else {
		list, err = s.svc.Approvals.ListEscalations(r.Context())
	}
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, list)
}

type resolveRequest struct {
	ReviewerID int64 `json:"reviewer_id"`
	Approve    bool  `json:"approve"`
}

func (s *HTTPServer) handleResolveDecision(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := pathID(ps, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req resolveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.ReviewerID <= 0 {
		writeError(w, http.StatusBadRequest, "reviewer_id is required")
		return
	}
	e, err := s.svc.Approvals.ResolveEscalation(r.Context(), id, req.ReviewerID, req.Approve)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, e)
}
