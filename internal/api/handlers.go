package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/starford/almanac/internal/apperr"
	"github.com/starford/almanac/internal/checksum"
	"github.com/starford/almanac/internal/memoservice"
	"github.com/starford/almanac/internal/models"
)

// Handler holds API route handlers.
type Handler struct {
	svc      *memoservice.Service
	sessions *Sessions
}

// NewHandler creates a new Handler.
func NewHandler(svc *memoservice.Service, sessions *Sessions) *Handler {
	return &Handler{svc: svc, sessions: sessions}
}

func yearParam(r *http.Request) (int, bool) {
	y, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil || y < 1 || y > 9999 {
		return 0, false
	}
	return y, true
}

// ListWindows handles GET /api/windows.
//
//	@Summary		List windows, the synthetic All window first
//	@Tags			windows
//	@Produce		json
//	@Success		200	{object}	WindowListResponse
//	@Security		BearerAuth
//	@Router			/windows [get]
func (h *Handler) ListWindows(w http.ResponseWriter, r *http.Request) {
	ws, err := h.svc.Windows(r.Context())
	if err != nil {
		writeError(w, "list windows", err)
		return
	}
	writeJSON(w, http.StatusOK, WindowListResponse{Windows: ws})
}

// CreateWindow handles POST /api/windows.
//
//	@Summary		Create a window
//	@Tags			windows
//	@Accept			json
//	@Produce		json
//	@Param			body	body		WindowRequest	true	"Window to create"
//	@Success		201		{object}	models.Window
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/windows [post]
func (h *Handler) CreateWindow(w http.ResponseWriter, r *http.Request) {
	var req WindowRequest
	if !readJSON(w, r, &req) {
		return
	}
	win, err := h.svc.CreateWindow(r.Context(), req.Title, req.Color)
	if err != nil {
		writeError(w, "create window", err)
		return
	}
	writeJSON(w, http.StatusCreated, win)
}

// UpdateWindow handles PUT /api/windows/{id}.
//
//	@Summary		Rename or recolour a window
//	@Tags			windows
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string			true	"Window id"
//	@Param			body	body		WindowRequest	true	"New title and/or colour"
//	@Success		200		{object}	models.Window
//	@Failure		400		{object}	errResponse
//	@Failure		403		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/windows/{id} [put]
func (h *Handler) UpdateWindow(w http.ResponseWriter, r *http.Request) {
	var req WindowRequest
	if !readJSON(w, r, &req) {
		return
	}
	win, err := h.svc.UpdateWindow(r.Context(), chi.URLParam(r, "id"), req.Title, req.Color)
	if err != nil {
		writeError(w, "update window", err)
		return
	}
	writeJSON(w, http.StatusOK, win)
}

// DeleteWindow handles DELETE /api/windows/{id}.
func (h *Handler) DeleteWindow(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteWindow(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, "delete window", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetMemo handles GET /api/memos/{year}/{windowID}.
//
//	@Summary		Read a memo body or the combined memo document
//	@Tags			memos
//	@Produce		json
//	@Param			year		path		int		true	"Calendar year"
//	@Param			windowID	path		string	true	"Window id, all or combined"
//	@Success		200			{object}	MemoResponse
//	@Security		BearerAuth
//	@Router			/memos/{year}/{windowID} [get]
func (h *Handler) GetMemo(w http.ResponseWriter, r *http.Request) {
	year, ok := yearParam(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid year"))
		return
	}
	windowID := chi.URLParam(r, "windowID")
	body, err := h.svc.GetBody(r.Context(), windowID, year)
	if err != nil {
		writeError(w, "get memo", err)
		return
	}
	w.Header().Set("ETag", checksum.ETag(body))
	writeJSON(w, http.StatusOK, MemoResponse{WindowID: windowID, Year: year, Body: body, Checksum: checksum.Of(body)})
}

// PutMemo handles PUT /api/memos/{year}/{windowID}.
//
//	@Summary		Write a memo body or the combined memo document
//	@Tags			memos
//	@Accept			json
//	@Produce		json
//	@Param			year		path		int			true	"Calendar year"
//	@Param			windowID	path		string		true	"Window id, all or combined"
//	@Param			If-Match	header		string		false	"Checksum of the body the edit is based on"
//	@Param			body		body		MemoRequest	true	"New body"
//	@Success		200			{object}	MemoResponse
//	@Failure		409			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/memos/{year}/{windowID} [put]
func (h *Handler) PutMemo(w http.ResponseWriter, r *http.Request) {
	year, ok := yearParam(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid year"))
		return
	}
	var req MemoRequest
	if !readJSON(w, r, &req) {
		return
	}
	windowID := chi.URLParam(r, "windowID")
	ctx := r.Context()

	if ifMatch := checksum.ParseIfMatch(r.Header.Get("If-Match")); ifMatch != "" {
		cur, err := h.svc.GetBody(ctx, windowID, year)
		if err != nil {
			writeError(w, "put memo", err)
			return
		}
		if !checksum.Matches(cur, ifMatch) {
			writeError(w, "put memo", apperr.ErrConflict)
			return
		}
	}

	if err := h.svc.SetBody(ctx, windowID, year, req.Body); err != nil {
		writeError(w, "put memo", err)
		return
	}
	body, err := h.svc.GetBody(ctx, windowID, year)
	if err != nil {
		writeError(w, "put memo", err)
		return
	}
	w.Header().Set("ETag", checksum.ETag(body))
	writeJSON(w, http.StatusOK, MemoResponse{WindowID: windowID, Year: year, Body: body, Checksum: checksum.Of(body)})
}

// OpenSession handles POST /api/sessions.
//
//	@Summary		Start an autosave session for one editor
//	@Tags			sessions
//	@Accept			json
//	@Produce		json
//	@Param			body	body		OpenSessionRequest	true	"Year and initial window"
//	@Success		201		{object}	SessionResponse
//	@Security		BearerAuth
//	@Router			/sessions [post]
func (h *Handler) OpenSession(w http.ResponseWriter, r *http.Request) {
	var req OpenSessionRequest
	if !readJSON(w, r, &req) {
		return
	}
	if req.Year < 1 || req.Year > 9999 || req.WindowID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("year and window_id are required"))
		return
	}
	id, sess := h.sessions.Open(req.Year, req.WindowID)
	st, err := sess.Snapshot()
	if err != nil {
		writeError(w, "open session", err)
		return
	}
	writeJSON(w, http.StatusCreated, SessionResponse{ID: id, State: st})
}

// GetSession handles GET /api/sessions/{id}.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess, err := h.sessions.Get(id)
	if err != nil {
		writeError(w, "get session", err)
		return
	}
	st, err := sess.Snapshot()
	if err != nil {
		writeError(w, "get session", err)
		return
	}
	writeJSON(w, http.StatusOK, SessionResponse{ID: id, State: st})
}

// EditDraft handles PUT /api/sessions/{id}/draft.
//
//	@Summary		Replace the draft; saved after the quiet period
//	@Tags			sessions
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string			true	"Session id"
//	@Param			body	body		DraftRequest	true	"Full editor text"
//	@Success		200		{object}	SessionResponse
//	@Security		BearerAuth
//	@Router			/sessions/{id}/draft [put]
func (h *Handler) EditDraft(w http.ResponseWriter, r *http.Request) {
	var req DraftRequest
	if !readJSON(w, r, &req) {
		return
	}
	h.withSession(w, r, "edit draft", func(s sessionAPI) error { return s.Edit(req.Text) })
}

// SwitchWindow handles POST /api/sessions/{id}/switch.
func (h *Handler) SwitchWindow(w http.ResponseWriter, r *http.Request) {
	var req SwitchRequest
	if !readJSON(w, r, &req) {
		return
	}
	if req.WindowID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("window_id is required"))
		return
	}
	h.withSession(w, r, "switch window", func(s sessionAPI) error { return s.Switch(req.WindowID) })
}

// CloseSession handles DELETE /api/sessions/{id}. A dirty draft is saved in
// the background.
func (h *Handler) CloseSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Close(chi.URLParam(r, "id")); err != nil {
		writeError(w, "close session", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type sessionAPI interface {
	Edit(text string) error
	Switch(windowID string) error
}

func (h *Handler) withSession(w http.ResponseWriter, r *http.Request, op string, fn func(sessionAPI) error) {
	id := chi.URLParam(r, "id")
	sess, err := h.sessions.Get(id)
	if err != nil {
		writeError(w, op, err)
		return
	}
	if err := fn(sess); err != nil {
		writeError(w, op, err)
		return
	}
	st, err := sess.Snapshot()
	if err != nil {
		writeError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, SessionResponse{ID: id, State: st})
}

// ListPlans handles GET /api/plans?window=&from=&to=.
//
//	@Summary		List plans, optionally by window and date range
//	@Tags			plans
//	@Produce		json
//	@Param			window	query		string	false	"Window id; all or empty for every window"
//	@Param			from	query		string	false	"Inclusive start, YYYY-MM-DD or RFC 3339"
//	@Param			to		query		string	false	"Exclusive end, YYYY-MM-DD or RFC 3339"
//	@Success		200		{object}	PlanListResponse
//	@Failure		501		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/plans [get]
func (h *Handler) ListPlans(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := parseDate(q.Get("from"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid from"))
		return
	}
	to, err := parseDate(q.Get("to"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid to"))
		return
	}
	plans, err := h.svc.ListPlans(r.Context(), models.PlanFilter{WindowID: q.Get("window"), From: from, To: to})
	if err != nil {
		writeError(w, "list plans", err)
		return
	}
	if plans == nil {
		plans = []models.Plan{}
	}
	writeJSON(w, http.StatusOK, PlanListResponse{Plans: plans})
}

// CreatePlan handles POST /api/plans.
func (h *Handler) CreatePlan(w http.ResponseWriter, r *http.Request) {
	var req PlanRequest
	if !readJSON(w, r, &req) {
		return
	}
	p, err := h.svc.CreatePlan(r.Context(), req.model())
	if err != nil {
		writeError(w, "create plan", err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// UpdatePlan handles PUT /api/plans/{id}.
func (h *Handler) UpdatePlan(w http.ResponseWriter, r *http.Request) {
	var req PlanRequest
	if !readJSON(w, r, &req) {
		return
	}
	p, err := h.svc.UpdatePlan(r.Context(), chi.URLParam(r, "id"), req.model())
	if err != nil {
		writeError(w, "update plan", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// DeletePlan handles DELETE /api/plans/{id}.
func (h *Handler) DeletePlan(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeletePlan(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, "delete plan", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}
