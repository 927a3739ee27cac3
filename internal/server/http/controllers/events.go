package controllers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rzbill/warden/internal/eventlog"
	"github.com/rzbill/warden/internal/runtime"
)

// EventsController exposes the event log.
type EventsController struct {
	rt *runtime.Runtime
}

func NewEventsController(rt *runtime.Runtime) *EventsController {
	return &EventsController{rt: rt}
}

// RegisterRoutes registers event log routes with the given router.
func (c *EventsController) RegisterRoutes(r chi.Router) {
	r.Post("/v1/events", c.handleWrite)
	r.Get("/v1/events", c.handleSearch)
}

// handleWrite buffers one event. The write is asynchronous, so success is
// 202 Accepted.
func (c *EventsController) handleWrite(w http.ResponseWriter, r *http.Request) {
	var req writeEventReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	level := eventlog.LevelInfo
	if req.Level != "" {
		l, err := eventlog.ParseLevel(req.Level)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		level = l
	}
	c.rt.EventLog().WriteEvent(eventlog.LogEvent{
		Level:   level,
		Topic:   req.Topic,
		Message: req.Message,
		Source:  req.Source,
		Actor:   req.Actor,
		Cause:   req.Cause,
	})
	writeAccepted(w)
}

// handleSearch runs a bounded search. Query parameters: level, count, actor,
// text, type, maxQueryMs, filter.
func (c *EventsController) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p := c.rt.SearchDefaults()
	if v := q.Get("level"); v != "" {
		l, err := eventlog.ParseLevel(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		p.MinLevel = l
	}
	if v := q.Get("type"); v != "" {
		t, err := eventlog.ParseEventType(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		p.EventType = t
	}
	p.Count = parseLimit(q.Get("count"), p.Count)
	p.MaxQueryTime = parseMillis(q.Get("maxQueryMs"), p.MaxQueryTime)
	p.Actor = q.Get("actor")
	p.Text = q.Get("text")
	p.Filter = q.Get("filter")

	res, err := c.rt.EventLog().ReadStoredEvents(r.Context(), p)
	if errors.Is(err, eventlog.ErrInvalidFilter) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to search events")
		return
	}
	events := res.Events
	if events == nil {
		events = []eventlog.LogEvent{}
	}
	writeJSON(w, searchResp{
		Events:      events,
		TimeBounded: res.TimeBounded,
		Scanned:     res.Scanned,
		Corrupt:     res.Corrupt,
		ElapsedMs:   res.Elapsed.Milliseconds(),
	})
}
