package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dukerupert/choreweek/internal/auth"
	"github.com/dukerupert/choreweek/internal/chore"
	"github.com/dukerupert/choreweek/internal/household"
	"github.com/dukerupert/choreweek/internal/rotation"
)

// CurrentWeek is accepted in place of a week key.
const CurrentWeek = "current"

type WeekHandler struct {
	chores     *chore.Store
	households *household.Repository
	loc        *time.Location
	now        func() time.Time
	logger     *slog.Logger
}

func NewWeekHandler(chores *chore.Store, households *household.Repository, loc *time.Location, logger *slog.Logger) *WeekHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &WeekHandler{chores: chores, households: households, loc: loc, now: time.Now, logger: logger}
}

func (h *WeekHandler) week(r *http.Request) (string, bool) {
	week := chi.URLParam(r, "week")
	if week == CurrentWeek {
		return rotation.WeekKey(h.now().In(h.loc)), true
	}
	return week, rotation.ValidWeekKey(week)
}

func (h *WeekHandler) ref(w http.ResponseWriter, r *http.Request) (chore.Ref, bool) {
	id, err := householdParam(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return chore.Ref{}, false
	}
	week, ok := h.week(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid week"))
		return chore.Ref{}, false
	}
	day, ok := intParam(r, "day")
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid day"))
		return chore.Ref{}, false
	}
	ref := chore.Ref{Household: id, Week: week, Chore: chi.URLParam(r, "chore"), Day: day}
	if err := ref.Validate(); err != nil {
		writeError(w, r, h.logger, err)
		return chore.Ref{}, false
	}
	return ref, true
}

// Get returns the board: the day-to-member assignment and the status of
// every chore on every day.
func (h *WeekHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := householdParam(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	week, ok := h.week(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid week"))
		return
	}
	hh, err := h.households.Ensure(r.Context(), id, household.Defaults())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	record, err := h.chores.LoadWeek(r.Context(), id, week)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	board, err := chore.BuildBoard(*hh, record)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

func (h *WeekHandler) UploadProof(w http.ResponseWriter, r *http.Request) {
	ref, ok := h.ref(w, r)
	if !ok {
		return
	}
	image, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.chores.MaxProofBytes()))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody(chore.ErrTooLarge.Error()))
			return
		}
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read body"))
		return
	}
	if err := h.chores.UploadProof(r.Context(), ref, image, auth.Name(r.Context())); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.respondEntry(w, r, ref, http.StatusCreated)
}

func (h *WeekHandler) GetProof(w http.ResponseWriter, r *http.Request) {
	ref, ok := h.ref(w, r)
	if !ok {
		return
	}
	artifact, data, err := h.chores.FetchProof(r.Context(), ref)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if artifact == nil {
		writeJSON(w, http.StatusNotFound, errorBody("no proof uploaded"))
		return
	}
	contentType := artifact.ContentType
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (h *WeekHandler) DeleteProof(w http.ResponseWriter, r *http.Request) {
	ref, ok := h.ref(w, r)
	if !ok {
		return
	}
	if err := h.chores.RemoveProof(r.Context(), ref); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.respondEntry(w, r, ref, http.StatusOK)
}

type doneRequest struct {
	Done *bool `json:"done"`
}

func (h *WeekHandler) SetDone(w http.ResponseWriter, r *http.Request) {
	ref, ok := h.ref(w, r)
	if !ok {
		return
	}
	var req doneRequest
	if err := decodeJSON(w, r, &req); err != nil || req.Done == nil {
		writeJSON(w, http.StatusBadRequest, errorBody(`body must be {"done": true|false}`))
		return
	}
	if err := h.chores.SetDone(r.Context(), ref, *req.Done, auth.Name(r.Context())); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.respondEntry(w, r, ref, http.StatusOK)
}

func (h *WeekHandler) respondEntry(w http.ResponseWriter, r *http.Request, ref chore.Ref, status int) {
	record, err := h.chores.LoadWeek(r.Context(), ref.Household, ref.Week)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, status, chore.Cell(ref.Day, record.Entry(ref.Chore, ref.Day)))
}
