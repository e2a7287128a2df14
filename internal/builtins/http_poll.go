// Package builtins implements the small set of source, actor, and transform
// plugins relayd ships in-process rather than as a subprocess: a generic
// poll-a-JSON-endpoint source, a post-the-event actor, and a field-redacting
// transform. Each is registered against a pluginloader.Loader by its Kind
// string before the runtime loads any configured plugin.
package builtins

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/relayd/relayd/internal/domain"
)

// HTTPPollSource polls a configured URL and decodes the response body as a
// JSON object whose "events" array holds the event observations. The
// checkpoint it persists is the raw JSON of the object's top-level
// "checkpoint" field, opaque to this plugin.
type HTTPPollSource struct {
	name   string
	url    string
	method string
	header http.Header
	client *http.Client
}

// NewHTTPPollSource is the pluginloader.BuiltinFactory for kind "http_poll".
func NewHTTPPollSource(cfg domain.PluginConfig) (domain.Plugin, error) {
	url, _ := cfg.Config["url"].(string)
	if url == "" {
		return nil, domain.Wrap(domain.ErrKindConfig, cfg.Name, fmt.Errorf("http_poll: config.url is required"))
	}
	method, _ := cfg.Config["method"].(string)
	if method == "" {
		method = http.MethodGet
	}
	return &HTTPPollSource{
		name:   cfg.Name,
		url:    url,
		method: method,
		header: headerFromConfig(cfg.Config),
		client: &http.Client{Timeout: cfg.GetTimeout()},
	}, nil
}

func (s *HTTPPollSource) Init(ctx context.Context, config map[string]any) error { return nil }

func (s *HTTPPollSource) Shutdown(ctx context.Context) error { return nil }

func (s *HTTPPollSource) Info() domain.PluginInfo {
	return domain.PluginInfo{Name: s.name, Description: "polls " + s.url + " for JSON event bodies"}
}

type pollEnvelope struct {
	Events     []pollEvent     `json:"events"`
	Checkpoint json.RawMessage `json:"checkpoint,omitempty"`
}

type pollEvent struct {
	Type       domain.EventType `json:"type"`
	Provenance map[string]any   `json:"provenance,omitempty"`
	Payload    map[string]any   `json:"payload,omitempty"`
}

// Poll issues the configured request, attaching checkpoint as a
// "X-Relayd-Checkpoint" header when non-empty so the remote endpoint can
// resume from where the last poll left off.
func (s *HTTPPollSource) Poll(ctx context.Context, checkpoint []byte) ([]domain.SourceEvent, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, s.method, s.url, nil)
	if err != nil {
		return nil, nil, domain.Wrap(domain.ErrKindTransientIO, s.name, err)
	}
	for k, vs := range s.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if len(checkpoint) > 0 {
		req.Header.Set("X-Relayd-Checkpoint", string(checkpoint))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, nil, domain.Wrap(domain.ErrKindTransientIO, s.name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, domain.Wrap(domain.ErrKindTransientIO, s.name, err)
	}
	if resp.StatusCode >= 300 {
		return nil, nil, domain.Wrap(domain.ErrKindTransientIO, s.name, fmt.Errorf("http_poll: %s returned %d: %s", s.url, resp.StatusCode, body))
	}
	if len(body) == 0 {
		return nil, checkpoint, nil
	}

	var env pollEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, nil, domain.Wrap(domain.ErrKindTransientIO, s.name, fmt.Errorf("http_poll: decode response: %w", err))
	}

	events := make([]domain.SourceEvent, 0, len(env.Events))
	for _, e := range env.Events {
		if e.Type == "" {
			e.Type = domain.EventResourceChanged
		}
		events = append(events, domain.SourceEvent{Type: e.Type, Provenance: e.Provenance, Payload: e.Payload})
	}

	next := checkpoint
	if len(env.Checkpoint) > 0 {
		next = []byte(env.Checkpoint)
	}
	return events, next, nil
}

func headerFromConfig(cfg map[string]any) http.Header {
	h := http.Header{}
	raw, ok := cfg["headers"].(map[string]any)
	if !ok {
		return h
	}
	for k, v := range raw {
		if s, ok := v.(string); ok {
			h.Set(k, s)
		}
	}
	return h
}
