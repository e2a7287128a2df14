package builtins

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/relayd/relayd/internal/domain"
)

// HTTPPostActor delivers an event by POSTing the JSON encoding of its
// payload to a configured URL. A 2xx response is ActorDelivered, 409 is ActorRejected,
// anything else is ActorError.
type HTTPPostActor struct {
	name   string
	url    string
	header http.Header
	client *http.Client
}

// NewHTTPPostActor is the pluginloader.BuiltinFactory for kind "http_post".
func NewHTTPPostActor(cfg domain.PluginConfig) (domain.Plugin, error) {
	url, _ := cfg.Config["url"].(string)
	if url == "" {
		return nil, domain.Wrap(domain.ErrKindConfig, cfg.Name, fmt.Errorf("http_post: config.url is required"))
	}
	return &HTTPPostActor{
		name:   cfg.Name,
		url:    url,
		header: headerFromConfig(cfg.Config),
		client: &http.Client{Timeout: cfg.GetTimeout()},
	}, nil
}

func (a *HTTPPostActor) Init(ctx context.Context, config map[string]any) error { return nil }

func (a *HTTPPostActor) Shutdown(ctx context.Context) error { return nil }

func (a *HTTPPostActor) Info() domain.PluginInfo {
	return domain.PluginInfo{Name: a.name, Description: "posts events to " + a.url}
}

// Deliver posts ev's payload as a JSON body, including the "delivery" key
// the actor driver merges in from the matched route's With config.
func (a *HTTPPostActor) Deliver(ctx context.Context, ev *domain.Event) (domain.ActorDeliveryResult, error) {
	body, err := json.Marshal(ev.Payload)
	if err != nil {
		return domain.ActorError, domain.Wrap(domain.ErrKindTransientIO, a.name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(body))
	if err != nil {
		return domain.ActorError, domain.Wrap(domain.ErrKindTransientIO, a.name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, vs := range a.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return domain.ActorError, domain.Wrap(domain.ErrKindTransientIO, a.name, err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return domain.ActorDelivered, nil
	case resp.StatusCode == http.StatusConflict:
		return domain.ActorRejected, fmt.Errorf("http_post: %s rejected delivery: %s", a.url, respBody)
	default:
		return domain.ActorError, domain.Wrap(domain.ErrKindTransientIO, a.name, fmt.Errorf("http_post: %s returned %d: %s", a.url, resp.StatusCode, respBody))
	}
}
