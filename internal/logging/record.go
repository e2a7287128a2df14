// Package logging fans out structured LogRecords to every configured
// logger sink without letting a slow or dead sink block event routing.
package logging

import (
	"time"

	"github.com/relayd/relayd/internal/domain"
)

// New builds a LogRecord for phase, defaulting Timestamp to now.
func New(phase, module string, ev *domain.Event, route, result string, fields map[string]any) domain.LogRecord {
	rec := domain.LogRecord{
		Timestamp: time.Now(),
		Phase:     phase,
		Module:    module,
		Route:     route,
		Result:    result,
		Fields:    fields,
	}
	if ev != nil {
		rec.EventID = ev.ID
		rec.TraceID = ev.TraceID
	}
	return rec
}
