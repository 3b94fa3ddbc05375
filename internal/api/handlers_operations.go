package api

import (
	"context"
	"net/http"
	"strings"

	"villaops/internal/models"

	"github.com/julienschmidt/httprouter"
)

type staffRequest struct {
	Name           string `json:"name"`
	Email          string `json:"email"`
	Phone          string `json:"phone"`
	Role           string `json:"role"`
	TelegramChatID int64  `json:"telegram_chat_id"`
	IsActive       *bool  `json:"is_active"`
}

func (s *HTTPServer) handleCreateStaff(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req staffRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	p := &models.StaffProfile{
		Name:           req.Name,
		Email:          strings.TrimSpace(req.Email),
		Phone:          strings.TrimSpace(req.Phone),
		Role:           req.Role,
		TelegramChatID: req.TelegramChatID,
	}
	if err := s.svc.Staff.Create(r.Context(), p); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, p)
}

func (s *HTTPServer) handleGetStaff(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := pathID(ps, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	p, err := s.svc.Staff.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, p)
}

func (s *HTTPServer) handleListStaff(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	staff, err := s.svc.Staff.List(r.Context(), r.URL.Query().Get("role"), queryBool(r, "active"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, staff)
}

// handleUpdateStaff applies the non-empty fields of the request.
func (s *HTTPServer) handleUpdateStaff(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := pathID(ps, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req staffRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	p, err := s.svc.Staff.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if req.Name != "" {
		p.Name = req.Name
	}
	if req.Email != "" {
		p.Email = strings.TrimSpace(req.Email)
	}
	if req.Phone != "" {
		p.Phone = strings.TrimSpace(req.Phone)
	}
	if req.Role != "" {
		p.Role = req.Role
	}
	if req.TelegramChatID != 0 {
		p.TelegramChatID = req.TelegramChatID
	}
	if req.IsActive != nil {
		p.IsActive = *req.IsActive
	}
	if err := s.svc.Staff.Update(r.Context(), p); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, p)
}

func (s *HTTPServer) handleDeactivateStaff(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := pathID(ps, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	p, err := s.svc.Staff.Deactivate(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, p)
}

type jobRequest struct {
	PropertyID     int64  `json:"property_id"`
	BookingID      *int64 `json:"booking_id"`
	Type           string `json:"type"`
	Title          string `json:"title"`
	StaffID        *int64 `json:"staff_id"`
	ScheduledStart string `json:"scheduled_start"`
	ScheduledEnd   string `json:"scheduled_end"`
	Notes          string `json:"notes"`
}

func (s *HTTPServer) handleCreateJob(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req jobRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.PropertyID <= 0 {
		writeError(w, http.StatusBadRequest, "property_id is required")
		return
	}
	start, err := parseTime(strings.TrimSpace(req.ScheduledStart))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid scheduled_start")
		return
	}
	end, err := parseTime(strings.TrimSpace(req.ScheduledEnd))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid scheduled_end")
		return
	}

	j := &models.Job{
		PropertyID:     req.PropertyID,
		BookingID:      req.BookingID,
		Type:           req.Type,
		Title:          req.Title,
		StaffID:        req.StaffID,
		ScheduledStart: start.UTC(),
		ScheduledEnd:   end.UTC(),
		Notes:          req.Notes,
	}
	if err := s.svc.Jobs.Create(r.Context(), j); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, j)
}

func (s *HTTPServer) handleGetJob(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := pathID(ps, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	j, err := s.svc.Jobs.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, j)
}

func (s *HTTPServer) handleListJobs(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var f models.JobFilter
	var err error
	for name, dst := range map[string]*int64{
		"property_id": &f.PropertyID,
		"staff_id":    &f.StaffID,
		"booking_id":  &f.BookingID,
	} {
		if *dst, err = queryInt64(r, name); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if f.From, err = queryTime(r, "from"); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if f.To, err = queryTime(r, "to"); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	f.Status = r.URL.Query().Get("status")

	jobs, err := s.svc.Jobs.List(r.Context(), f)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, jobs)
}

type assignRequest struct {
	StaffID int64 `json:"staff_id"`
	Version int64 `json:"version"`
}

func (s *HTTPServer) handleAssignJob(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := pathID(ps, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req assignRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.StaffID <= 0 {
		writeError(w, http.StatusBadRequest, "staff_id is required")
		return
	}
	j, err := s.svc.Jobs.Assign(r.Context(), id, req.StaffID, req.Version)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, j)
}

type jobTransitionFunc func(ctx context.Context, id, version int64) (*models.Job, error)

func (s *HTTPServer) jobTransition(fn jobTransitionFunc) httprouter.Handle {
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
		j, err := fn(r.Context(), id, version)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, j)
	}
}

type notificationRequest struct {
	StaffID int64  `json:"staff_id"`
	Title   string `json:"title"`
	Body    string `json:"body"`
}

func (s *HTTPServer) handleCreateNotification(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req notificationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.StaffID <= 0 {
		writeError(w, http.StatusBadRequest, "staff_id is required")
		return
	}
	n, err := s.svc.Notifications.Notify(r.Context(), req.StaffID, req.Title, req.Body)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, n)
}

func (s *HTTPServer) handleListNotifications(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	staffID, err := queryInt64(r, "staff_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if staffID <= 0 {
		writeError(w, http.StatusBadRequest, "staff_id is required")
		return
	}
	limit, err := queryInt64(r, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	list, err := s.svc.Notifications.List(r.Context(), staffID, queryBool(r, "unread"), int(limit))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, list)
}

func (s *HTTPServer) handleMarkRead(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := pathID(ps, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.svc.Notifications.MarkRead(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"id": id, "read": true})
}
