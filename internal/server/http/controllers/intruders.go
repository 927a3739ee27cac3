package controllers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rzbill/warden/internal/intruder"
	"github.com/rzbill/warden/internal/runtime"
)

// IntrudersController exposes lockout tracking to the host application and
// to operators.
type IntrudersController struct {
	rt *runtime.Runtime
}

func NewIntrudersController(rt *runtime.Runtime) *IntrudersController {
	return &IntrudersController{rt: rt}
}

// RegisterRoutes registers intruder routes with the given router.
func (c *IntrudersController) RegisterRoutes(r chi.Router) {
	r.Post("/v1/intruders/attempts", c.handleAttempt)
	r.Get("/v1/intruders/check", c.handleCheck)
	r.Get("/v1/intruders/{dimension}/{key}", c.handleShow)
	r.Delete("/v1/intruders/{dimension}/{key}", c.handleClear)
}

func (c *IntrudersController) handleAttempt(w http.ResponseWriter, r *http.Request) {
	var req attemptReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Username == "" && req.Address == "" {
		writeError(w, http.StatusBadRequest, "username or address is required")
		return
	}
	svc := c.rt.Intruder()
	if req.Success {
		svc.RecordSuccessfulAttempt(r.Context(), req.Username)
		svc.RecordSuccessfulAddress(r.Context(), req.Address)
	} else {
		svc.RecordFailedAttempt(r.Context(), nil, req.Username, req.Address)
	}
	writeNoContent(w)
}

// handleCheck answers 423 Locked when either the address or the username is
// locked; the address is checked first.
func (c *IntrudersController) handleCheck(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	svc := c.rt.Intruder()
	err := svc.CheckAddressLocked(r.Context(), q.Get("address"))
	if err == nil {
		err = svc.CheckUsernameLocked(r.Context(), q.Get("username"))
	}
	var lo *intruder.LockedOutError
	if errors.As(err, &lo) {
		writeJSONStatus(w, http.StatusLocked, lockedResp{
			Error:     lo.Error(),
			Code:      lo.Code,
			Dimension: lo.Dimension.String(),
			Key:       lo.Key,
			Attempts:  lo.Attempts,
		})
		return
	}
	writeJSON(w, map[string]bool{"locked": false})
}

func (c *IntrudersController) handleShow(w http.ResponseWriter, r *http.Request) {
	dim, err := intruder.ParseDimension(chi.URLParam(r, "dimension"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	key := chi.URLParam(r, "key")
	svc := c.rt.Intruder()
	rec, found, err := svc.Lookup(r.Context(), dim, key)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read record")
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "No record")
		return
	}
	writeJSON(w, recordResp{
		Dimension: dim.String(),
		Key:       key,
		Count:     rec.Count,
		First:     rec.First,
		Last:      rec.Last,
		Alerted:   rec.Alerted,
		Locked:    svc.IsLocked(rec, dim),
	})
}

func (c *IntrudersController) handleClear(w http.ResponseWriter, r *http.Request) {
	dim, err := intruder.ParseDimension(chi.URLParam(r, "dimension"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := c.rt.Intruder().Clear(r.Context(), dim, chi.URLParam(r, "key")); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to clear record")
		return
	}
	writeNoContent(w)
}
