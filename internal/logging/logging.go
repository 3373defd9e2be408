// Package logging writes one JSON object per line for payment lifecycle
// steps, next to the tagged plain-text logs used everywhere else.
package logging

import (
	"encoding/json"
	"log"
	"time"
)

type Fields struct {
	Component  string `json:"component"`
	OrderID    string `json:"order_id,omitempty"`
	UserID     string `json:"user_id,omitempty"`
	EventID    string `json:"event_id,omitempty"`
	EventType  string `json:"event_type,omitempty"`
	SessionID  string `json:"session_id,omitempty"`
	Step       string `json:"step,omitempty"`
	Status     string `json:"status,omitempty"`
	DurationMS int64  `json:"duration_ms,omitempty"`
	Message    string `json:"message,omitempty"`
}

type line struct {
	Fields
	Timestamp string `json:"timestamp"`
}

func Log(fields Fields) {
	data, err := json.Marshal(line{Fields: fields, Timestamp: time.Now().UTC().Format(time.RFC3339Nano)})
	if err != nil {
		log.Printf("{\"component\":%q,\"status\":\"log_error\",\"error\":%q}", fields.Component, err.Error())
		return
	}
	log.Print(string(data))
}

// Since is a helper for DurationMS.
func Since(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}
