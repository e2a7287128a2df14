package pluginloader

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/relayd/relayd/internal/domain"
	"github.com/relayd/relayd/pkg/relayplugin"
)

// subprocessBase is embedded by every subprocess plugin adapter: the
// init/shutdown/info sequence is identical across source, actor,
// transform, and logger kinds, only the domain-specific call differs.
type subprocessBase struct {
	client *RPCClient
	info   domain.PluginInfo
}

func (b *subprocessBase) init(ctx context.Context, config map[string]any) error {
	if err := b.client.Start(ctx); err != nil {
		return fmt.Errorf("start plugin process: %w", err)
	}

	if _, err := b.client.Call(ctx, relayplugin.RPCMethodInit, relayplugin.InitParams{Config: config}); err != nil {
		b.client.Stop()
		return fmt.Errorf("init call: %w", err)
	}

	raw, err := b.client.Call(ctx, relayplugin.RPCMethodGetInfo, struct{}{})
	if err != nil {
		b.client.Stop()
		return fmt.Errorf("get_info call: %w", err)
	}
	var wireInfo relayplugin.PluginInfo
	if err := json.Unmarshal(raw, &wireInfo); err != nil {
		b.client.Stop()
		return fmt.Errorf("decode plugin info: %w", err)
	}
	b.info = domain.PluginInfo{Name: wireInfo.Name, Version: wireInfo.Version, Description: wireInfo.Description}
	return nil
}

func (b *subprocessBase) shutdown(ctx context.Context) error {
	_, _ = b.client.Call(ctx, relayplugin.RPCMethodShutdown, struct{}{})
	b.client.Stop()
	return nil
}

func (b *subprocessBase) Info() domain.PluginInfo { return b.info }

func toWireEvent(ev *domain.Event) relayplugin.Event {
	return relayplugin.Event{
		ID:         ev.ID,
		SourceID:   ev.SourceID,
		Type:       relayplugin.EventType(ev.Type),
		TraceID:    ev.TraceID,
		Timestamp:  ev.Timestamp,
		Provenance: ev.Provenance,
		Payload:    ev.Payload,
	}
}

// SubprocessSource adapts an RPCClient to domain.SourcePlugin.
type SubprocessSource struct {
	subprocessBase
}

// NewSubprocessSource wraps client as a pull-model source plugin.
func NewSubprocessSource(client *RPCClient) *SubprocessSource {
	return &SubprocessSource{subprocessBase{client: client}}
}

func (s *SubprocessSource) Init(ctx context.Context, config map[string]any) error {
	return s.init(ctx, config)
}
func (s *SubprocessSource) Shutdown(ctx context.Context) error { return s.shutdown(ctx) }

func (s *SubprocessSource) Poll(ctx context.Context, checkpoint []byte) ([]domain.SourceEvent, []byte, error) {
	params := relayplugin.PollParams{}
	if len(checkpoint) > 0 {
		params.Checkpoint = json.RawMessage(checkpoint)
	}
	raw, err := s.client.Call(ctx, relayplugin.RPCMethodPoll, params)
	if err != nil {
		return nil, nil, domain.Wrap(domain.ErrKindTransientIO, s.info.Name, err)
	}
	var result relayplugin.PollResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, nil, fmt.Errorf("decode poll result: %w", err)
	}
	return fromWireEvents(result.Events), result.NextCheckpoint, nil
}

func fromWireEvents(events []relayplugin.Event) []domain.SourceEvent {
	out := make([]domain.SourceEvent, len(events))
	for i, e := range events {
		out[i] = domain.SourceEvent{Type: domain.EventType(e.Type), Provenance: e.Provenance, Payload: e.Payload}
	}
	return out
}

// pushCapableSource adds HandlePush to a SubprocessSource for sources
// configured to additionally accept webhook deliveries.
type pushCapableSource struct {
	*SubprocessSource
}

// NewSubprocessPushSource wraps client as a source plugin that supports
// both Poll and HandlePush.
func NewSubprocessPushSource(client *RPCClient) domain.SourcePlugin {
	return pushCapableSource{NewSubprocessSource(client)}
}

func (s pushCapableSource) HandlePush(ctx context.Context, method string, headers map[string][]string, body []byte) ([]domain.SourceEvent, error) {
	raw, err := s.client.Call(ctx, relayplugin.RPCMethodHandle, relayplugin.HandleParams{Method: method, Headers: headers, Body: body})
	if err != nil {
		return nil, domain.Wrap(domain.ErrKindWebhookValidation, s.info.Name, err)
	}
	var result relayplugin.PollResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode handle result: %w", err)
	}
	return fromWireEvents(result.Events), nil
}

// SubprocessActor adapts an RPCClient to domain.ActorPlugin.
type SubprocessActor struct {
	subprocessBase
}

// NewSubprocessActor wraps client as an actor plugin.
func NewSubprocessActor(client *RPCClient) *SubprocessActor {
	return &SubprocessActor{subprocessBase{client: client}}
}

func (a *SubprocessActor) Init(ctx context.Context, config map[string]any) error {
	return a.init(ctx, config)
}
func (a *SubprocessActor) Shutdown(ctx context.Context) error { return a.shutdown(ctx) }

func (a *SubprocessActor) Deliver(ctx context.Context, ev *domain.Event) (domain.ActorDeliveryResult, error) {
	raw, err := a.client.Call(ctx, relayplugin.RPCMethodDeliver, relayplugin.DeliverParams{Event: toWireEvent(ev)})
	if err != nil {
		return domain.ActorError, err
	}
	var result relayplugin.DeliverResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return domain.ActorError, fmt.Errorf("decode deliver result: %w", err)
	}
	switch result.Status {
	case "delivered":
		return domain.ActorDelivered, nil
	case "rejected":
		return domain.ActorRejected, domain.Wrap(domain.ErrKindActorRejected, a.info.Name, fmt.Errorf("%s", result.Reason))
	default:
		return domain.ActorError, fmt.Errorf("actor reported error: %s", result.Reason)
	}
}

// SubprocessTransform adapts an RPCClient to domain.TransformPlugin.
type SubprocessTransform struct {
	subprocessBase
}

// NewSubprocessTransform wraps client as a transform plugin.
func NewSubprocessTransform(client *RPCClient) *SubprocessTransform {
	return &SubprocessTransform{subprocessBase{client: client}}
}

func (t *SubprocessTransform) Init(ctx context.Context, config map[string]any) error {
	return t.init(ctx, config)
}
func (t *SubprocessTransform) Shutdown(ctx context.Context) error { return t.shutdown(ctx) }

func (t *SubprocessTransform) Transform(ctx context.Context, ev *domain.Event) (map[string]any, bool, error) {
	raw, err := t.client.Call(ctx, relayplugin.RPCMethodExecute, relayplugin.ExecuteParams{Event: toWireEvent(ev)})
	if err != nil {
		return nil, false, err
	}
	var result relayplugin.ExecuteResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, false, fmt.Errorf("decode execute result: %w", err)
	}
	if result.Drop {
		return nil, false, nil
	}
	return result.Payload, true, nil
}

// SubprocessLogger adapts an RPCClient to domain.LoggerPlugin.
type SubprocessLogger struct {
	subprocessBase
}

// NewSubprocessLogger wraps client as a logger plugin.
func NewSubprocessLogger(client *RPCClient) *SubprocessLogger {
	return &SubprocessLogger{subprocessBase{client: client}}
}

func (l *SubprocessLogger) Init(ctx context.Context, config map[string]any) error {
	return l.init(ctx, config)
}
func (l *SubprocessLogger) Shutdown(ctx context.Context) error { return l.shutdown(ctx) }

func (l *SubprocessLogger) Log(ctx context.Context, rec domain.LogRecord) error {
	_, err := l.client.Call(ctx, relayplugin.RPCMethodLog, relayplugin.LogParams{
		Timestamp: rec.Timestamp,
		Phase:     rec.Phase,
		Module:    rec.Module,
		EventID:   rec.EventID,
		TraceID:   rec.TraceID,
		Route:     rec.Route,
		Result:    rec.Result,
		Fields:    rec.Fields,
	})
	return err
}

var (
	_ domain.SourcePlugin   = (*SubprocessSource)(nil)
	_ domain.PushCapable    = pushCapableSource{}
	_ domain.ActorPlugin    = (*SubprocessActor)(nil)
	_ domain.TransformPlugin = (*SubprocessTransform)(nil)
	_ domain.LoggerPlugin   = (*SubprocessLogger)(nil)
)
