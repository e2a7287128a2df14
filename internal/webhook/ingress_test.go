package webhook_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/relayd/relayd/internal/domain"
	"github.com/relayd/relayd/internal/webhook"
)

type fakePush struct {
	events []domain.SourceEvent
	err    error
}

func (f *fakePush) HandlePush(ctx context.Context, method string, headers map[string][]string, body []byte) ([]domain.SourceEvent, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.events, nil
}

type fakePublisher struct {
	events []domain.SourceEvent
}

func (f *fakePublisher) Push(ctx context.Context, events []domain.SourceEvent) ([]*domain.Event, error) {
	f.events = events
	out := make([]*domain.Event, len(events))
	for idx, se := range events {
		ev, err := domain.Build("src-1", se.Type, se.Provenance, se.Payload)
		if err != nil {
			return nil, err
		}
		out[idx] = ev
	}
	return out, nil
}

func TestIngress_UnregisteredSourceIs404(t *testing.T) {
	ing := webhook.New()
	req := httptest.NewRequest(http.MethodPost, "/webhook/nope", strings.NewReader("{}"))
	rec := httptest.NewRecorder()
	ing.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestIngress_PublishesDecodedEvents(t *testing.T) {
	ing := webhook.New()
	pub := &fakePublisher{}
	push := &fakePush{events: []domain.SourceEvent{{Type: domain.EventMessageReceived, Payload: map[string]any{"x": 1}}}}
	ing.Register("src-1", push, pub)

	req := httptest.NewRequest(http.MethodPost, "/webhook/src-1", strings.NewReader(`{"x":1}`))
	rec := httptest.NewRecorder()
	ing.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(pub.events) != 1 {
		t.Errorf("expected 1 event forwarded to publisher, got %d", len(pub.events))
	}
}

func TestIngress_NonPostDefaultsTo405(t *testing.T) {
	ing := webhook.New()
	ing.Register("src-1", &fakePush{}, &fakePublisher{})

	req := httptest.NewRequest(http.MethodGet, "/webhook/src-1", nil)
	rec := httptest.NewRecorder()
	ing.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rec.Code)
	}
}

func TestIngress_ValidationErrorMapsTo400(t *testing.T) {
	ing := webhook.New()
	push := &fakePush{err: domain.Wrap(domain.ErrKindWebhookValidation, "src-1", fmt.Errorf("bad signature"))}
	ing.Register("src-1", push, &fakePublisher{})

	req := httptest.NewRequest(http.MethodPost, "/webhook/src-1", strings.NewReader("{}"))
	rec := httptest.NewRecorder()
	ing.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestIngress_OtherPluginErrorMapsTo500(t *testing.T) {
	ing := webhook.New()
	push := &fakePush{err: fmt.Errorf("boom")}
	ing.Register("src-1", push, &fakePublisher{})

	req := httptest.NewRequest(http.MethodPost, "/webhook/src-1", strings.NewReader("{}"))
	rec := httptest.NewRecorder()
	ing.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
}

func TestIngress_UnregisterMakesPath404Again(t *testing.T) {
	ing := webhook.New()
	ing.Register("src-1", &fakePush{}, &fakePublisher{})
	ing.Unregister("src-1")

	req := httptest.NewRequest(http.MethodPost, "/webhook/src-1", strings.NewReader("{}"))
	rec := httptest.NewRecorder()
	ing.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 after unregister, got %d", rec.Code)
	}
}
