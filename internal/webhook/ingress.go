// Package webhook is the single HTTP server relayd uses to accept inbound
// events for push-capable sources. Requests are matched to a source by URL
// path and handed to that source's plugin.
package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/relayd/relayd/internal/domain"
)

// defaultMaxBodyBytes bounds how much of a webhook request body the
// ingress will read before giving up, independent of any limit the
// underlying transport applies.
const defaultMaxBodyBytes = 4 << 20 // 4 MiB

// Publisher runs the push-model equivalent of a poll cycle for one source:
// stamp and publish the decoded events, returning their assigned ids.
type Publisher interface {
	Push(ctx context.Context, events []domain.SourceEvent) ([]*domain.Event, error)
}

// MethodAccepting is an optional capability a source's PushCapable plugin
// may implement to accept methods other than POST. Without it, the ingress
// accepts only POST and responds 405 to everything else, per source.
type MethodAccepting interface {
	AcceptsMethod(method string) bool
}

type registeredSource struct {
	push      domain.PushCapable
	publisher Publisher
}

// Ingress is the runtime's single HTTP server for webhook delivery.
type Ingress struct {
	mux          *http.ServeMux
	maxBodyBytes int64

	mu      sync.RWMutex
	sources map[string]*registeredSource
}

// New returns an Ingress with no sources registered yet.
func New() *Ingress {
	i := &Ingress{
		mux:          http.NewServeMux(),
		maxBodyBytes: defaultMaxBodyBytes,
		sources:      make(map[string]*registeredSource),
	}
	i.mux.HandleFunc("/webhook/{source}", i.handleWebhook)
	return i
}

// ServeHTTP implements http.Handler.
func (i *Ingress) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	i.mux.ServeHTTP(w, r)
}

// Register adds a push-capable source. Registering the same source id
// twice replaces the previous registration, which happens naturally on
// module reload.
func (i *Ingress) Register(sourceID string, push domain.PushCapable, publisher Publisher) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.sources[sourceID] = &registeredSource{push: push, publisher: publisher}
}

// Unregister removes a source, after which requests to its path 404.
func (i *Ingress) Unregister(sourceID string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.sources, sourceID)
}

func (i *Ingress) handleWebhook(w http.ResponseWriter, r *http.Request) {
	sourceID := r.PathValue("source")

	i.mu.RLock()
	src, ok := i.sources[sourceID]
	i.mu.RUnlock()
	if !ok {
		http.NotFound(w, r)
		return
	}

	if r.Method != http.MethodPost {
		accepts, _ := src.push.(MethodAccepting)
		if accepts == nil || !accepts.AcceptsMethod(r.Method) {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, i.maxBodyBytes+1))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("read body: %v", err))
		return
	}
	if int64(len(body)) > i.maxBodyBytes {
		writeJSONError(w, http.StatusRequestEntityTooLarge, "request body exceeds maximum size")
		return
	}

	events, err := src.push.HandlePush(r.Context(), r.Method, r.Header, body)
	if err != nil {
		if domain.KindOf(err) == domain.ErrKindWebhookValidation {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	published, err := src.publisher.Push(r.Context(), events)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	ids := make([]string, len(published))
	for idx, ev := range published {
		ids[idx] = ev.ID
	}
	writeJSON(w, http.StatusOK, map[string]any{"event_ids": ids})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}
