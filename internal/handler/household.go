package handler

import (
	"log/slog"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/dukerupert/choreweek/internal/household"
	"github.com/dukerupert/choreweek/internal/model"
)

type HouseholdHandler struct {
	repo   *household.Repository
	logger *slog.Logger
}

func NewHouseholdHandler(repo *household.Repository, logger *slog.Logger) *HouseholdHandler {
	return &HouseholdHandler{repo: repo, logger: logger}
}

// ensure loads the household named in the URL, creating it with defaults on
// first access.
func (h *HouseholdHandler) ensure(w http.ResponseWriter, r *http.Request) (*model.Household, bool) {
	id, err := householdParam(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return nil, false
	}
	hh, err := h.repo.Ensure(r.Context(), id, household.Defaults())
	if err != nil {
		writeError(w, r, h.logger, err)
		return nil, false
	}
	return hh, true
}

func (h *HouseholdHandler) Get(w http.ResponseWriter, r *http.Request) {
	hh, ok := h.ensure(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, hh)
}

type memberRequest struct {
	Name string `json:"name"`
}

func (req memberRequest) Validate() error {
	return validation.ValidateStruct(&req,
		validation.Field(&req.Name, validation.Length(0, 64)),
	)
}

func (h *HouseholdHandler) SetMember(w http.ResponseWriter, r *http.Request) {
	idx, ok := intParam(r, "idx")
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid index"))
		return
	}
	var req memberRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	hh, ok := h.ensure(w, r)
	if !ok {
		return
	}
	if err := h.repo.SetMember(r.Context(), hh.ID, idx, req.Name); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.respond(w, r, hh.ID)
}

type choresRequest struct {
	Chores []string `json:"chores"`
}

func (req choresRequest) Validate() error {
	return validation.ValidateStruct(&req,
		validation.Field(&req.Chores, validation.NotNil, validation.Length(0, 50),
			validation.Each(validation.Length(0, 64))),
	)
}

func (h *HouseholdHandler) SetChores(w http.ResponseWriter, r *http.Request) {
	var req choresRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	hh, ok := h.ensure(w, r)
	if !ok {
		return
	}
	if err := h.repo.SetChores(r.Context(), hh.ID, household.CleanChores(req.Chores)); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.respond(w, r, hh.ID)
}

type emailRequest struct {
	Email string `json:"email"`
}

func (h *HouseholdHandler) SetEmail(w http.ResponseWriter, r *http.Request) {
	idx, ok := intParam(r, "idx")
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid index"))
		return
	}
	var req emailRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON"))
		return
	}
	hh, ok := h.ensure(w, r)
	if !ok {
		return
	}
	if err := h.repo.SetEmail(r.Context(), hh.ID, idx, req.Email); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.respond(w, r, hh.ID)
}

func (h *HouseholdHandler) respond(w http.ResponseWriter, r *http.Request, id string) {
	hh, err := h.repo.Load(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if hh == nil {
		writeJSON(w, http.StatusNotFound, errorBody("household not found"))
		return
	}
	writeJSON(w, http.StatusOK, hh)
}
