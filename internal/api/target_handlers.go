package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"watchpost/internal/models"
	"watchpost/internal/store"
)

// Lifecycle is the scheduler surface the CRUD layer drives: schedule
// after create or activation, restart after an update, stop after
// deletion or deactivation.
type Lifecycle interface {
	Schedule(target *models.Target)
	Restart(target *models.Target)
	Stop(targetID int)
}

type targetRequest struct {
	UserID   int    `json:"user_id"`
	Name     string `json:"name"`
	URL      string `json:"url"`
	Kind     string `json:"kind"`
	Interval int    `json:"interval"`
	ProxyID  *int   `json:"proxy_id"`
	Active   *bool  `json:"active"`
}

func (r *targetRequest) validate() error {
	if r.Name == "" {
		return fmt.Errorf("name is required")
	}
	if r.Kind != models.KindAPI && r.Kind != models.KindDomain {
		return fmt.Errorf("kind must be %q or %q", models.KindAPI, models.KindDomain)
	}
	if r.Interval < 1 {
		return fmt.Errorf("interval must be at least 1 minute")
	}
	parsed, err := url.Parse(r.URL)
	if err != nil || !parsed.IsAbs() || parsed.Host == "" {
		return fmt.Errorf("url must be an absolute URL")
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("url scheme must be http or https")
	}
	return nil
}

// HandleCreateTarget creates a target and, when active, schedules it.
func HandleCreateTarget(st store.Storer, sched Lifecycle) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req targetRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := req.validate(); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		active := true
		if req.Active != nil {
			active = *req.Active
		}
		target := models.Target{
			UserID:      req.UserID,
			Name:        req.Name,
			URL:         req.URL,
			Kind:        req.Kind,
			Interval:    req.Interval,
			ProxyID:     req.ProxyID,
			Active:      active,
			LastOutcome: models.OutcomePending,
		}

		if err := st.CreateTarget(r.Context(), &target); err != nil {
			writeError(w, http.StatusInternalServerError, "failed to create target")
			return
		}

		if target.Active {
			sched.Schedule(&target)
		}

		writeJSON(w, http.StatusCreated, target)
	}
}

// HandleListTargets lists targets, optionally filtered by user_id.
func HandleListTargets(st store.Storer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _ := strconv.Atoi(r.URL.Query().Get("user_id"))
		targets, err := st.ListTargets(r.Context(), userID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to list targets")
			return
		}
		writeJSON(w, http.StatusOK, targets)
	}
}

// HandleGetTarget returns one target including its status fields.
func HandleGetTarget(st store.Storer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid target id")
			return
		}

		target, err := st.GetTarget(r.Context(), id)
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "target not found")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to get target")
			return
		}
		writeJSON(w, http.StatusOK, target)
	}
}

// HandleUpdateTarget updates a target's definition and restarts its
// schedule entry. Kind is immutable; changing it is delete+recreate.
func HandleUpdateTarget(st store.Storer, sched Lifecycle) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid target id")
			return
		}

		existing, err := st.GetTarget(r.Context(), id)
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "target not found")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to get target")
			return
		}

		var req targetRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Kind == "" {
			req.Kind = existing.Kind
		}
		if err := req.validate(); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if req.Kind != existing.Kind {
			writeError(w, http.StatusBadRequest, "kind is immutable; delete and recreate the target")
			return
		}

		existing.Name = req.Name
		existing.URL = req.URL
		existing.Interval = req.Interval
		existing.ProxyID = req.ProxyID
		if req.Active != nil {
			existing.Active = *req.Active
		}

		if err := st.UpdateTarget(r.Context(), existing); err != nil {
			writeError(w, http.StatusInternalServerError, "failed to update target")
			return
		}

		// Interval, url, proxy or active changes all require the
		// timer to be rebuilt; Restart also drops an entry for a
		// target flipped inactive.
		sched.Restart(existing)

		writeJSON(w, http.StatusOK, existing)
	}
}

// HandleDeleteTarget stops and deletes a target; log history goes with
// it via cascade.
func HandleDeleteTarget(st store.Storer, sched Lifecycle) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid target id")
			return
		}

		sched.Stop(id)

		if err := st.DeleteTarget(r.Context(), id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeError(w, http.StatusNotFound, "target not found")
				return
			}
			writeError(w, http.StatusInternalServerError, "failed to delete target")
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

// HandleGetTargetLogs returns recent monitoring log entries.
func HandleGetTargetLogs(st store.Storer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid target id")
			return
		}

		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		logs, err := st.ListLogs(r.Context(), id, limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to list logs")
			return
		}
		writeJSON(w, http.StatusOK, logs)
	}
}
