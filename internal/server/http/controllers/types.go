package controllers

import (
	"time"

	"github.com/rzbill/warden/internal/eventlog"
)

// Common request/response types for HTTP controllers

// writeEventReq represents a request to store one event.
type writeEventReq struct {
	Level   string `json:"level"`
	Topic   string `json:"topic"`
	Message string `json:"message"`
	Source  string `json:"source"`
	Actor   string `json:"actor"`
	Cause   string `json:"cause"`
}

// searchResp is the body of an event search.
type searchResp struct {
	Events      []eventlog.LogEvent `json:"events"`
	TimeBounded bool                `json:"timeBounded"`
	Scanned     int                 `json:"scanned"`
	Corrupt     int                 `json:"corrupt"`
	ElapsedMs   int64               `json:"elapsedMs"`
}

// attemptReq reports one authentication outcome.
type attemptReq struct {
	Username string `json:"username"`
	Address  string `json:"address"`
	Success  bool   `json:"success"`
}

// lockedResp is returned with 423 Locked.
type lockedResp struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Dimension string `json:"dimension"`
	Key       string `json:"key"`
	Attempts  uint32 `json:"attempts"`
}

// recordResp describes one stored intruder record.
type recordResp struct {
	Dimension string    `json:"dimension"`
	Key       string    `json:"key"`
	Count     uint32    `json:"count"`
	First     time.Time `json:"first"`
	Last      time.Time `json:"last"`
	Alerted   bool      `json:"alerted"`
	Locked    bool      `json:"locked"`
}
