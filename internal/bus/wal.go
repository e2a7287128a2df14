package bus

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/google/uuid"

	"github.com/relayd/relayd/internal/domain"
)

// WALBus persists every published event to a SQLite database opened in
// WAL journal mode before fanning it out, and tracks each subscriber's
// last-acked row id in a cursor table so a restart can replay whatever a
// subscriber missed instead of losing it. This is the bus.durable: true
// variant of BusConfig.
type WALBus struct {
	db *sql.DB

	mu            sync.RWMutex
	subscriptions map[string]*walSubscription
}

type walSubscription struct {
	id         string
	subscriber string
	cursor     int64
	handler    Handler
	done       chan struct{}
}

// OpenWALBus opens (creating if necessary) the SQLite database at path and
// ensures its schema exists.
func OpenWALBus(path string) (*WALBus, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL")
	if err != nil {
		return nil, domain.Wrap(domain.ErrKindFatal, path, fmt.Errorf("open wal bus db: %w", err))
	}
	b := &WALBus{db: db, subscriptions: make(map[string]*walSubscription)}
	if err := b.init(); err != nil {
		db.Close()
		return nil, err
	}
	return b, nil
}

func (b *WALBus) init() error {
	schema := `
		CREATE TABLE IF NOT EXISTS bus_events (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL,
			source_id TEXT NOT NULL,
			type TEXT NOT NULL,
			trace_id TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			provenance TEXT,
			payload TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_bus_events_type ON bus_events(type);
		CREATE INDEX IF NOT EXISTS idx_bus_events_source ON bus_events(source_id);

		CREATE TABLE IF NOT EXISTS cursors (
			subscriber TEXT PRIMARY KEY,
			last_seq INTEGER NOT NULL
		);
	`
	if _, err := b.db.Exec(schema); err != nil {
		return domain.Wrap(domain.ErrKindFatal, "", fmt.Errorf("create wal bus schema: %w", err))
	}
	return nil
}

func (b *WALBus) Publish(ctx context.Context, ev *domain.Event) error {
	provenance, err := json.Marshal(ev.Provenance)
	if err != nil {
		return domain.Wrap(domain.ErrKindBusPublish, ev.SourceID, fmt.Errorf("marshal provenance: %w", err))
	}
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return domain.Wrap(domain.ErrKindBusPublish, ev.SourceID, fmt.Errorf("marshal payload: %w", err))
	}

	res, err := b.db.ExecContext(ctx, `
		INSERT INTO bus_events (id, source_id, type, trace_id, timestamp, provenance, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, ev.ID, ev.SourceID, string(ev.Type), ev.TraceID, ev.Timestamp.UnixMilli(), string(provenance), string(payload))
	if err != nil {
		return domain.Wrap(domain.ErrKindBusPublish, ev.SourceID, fmt.Errorf("insert event: %w", err))
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return domain.Wrap(domain.ErrKindBusPublish, ev.SourceID, fmt.Errorf("read inserted seq: %w", err))
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subscriptions {
		go b.deliverAndAck(sub, seq, ev)
	}
	return nil
}

func (b *WALBus) deliverAndAck(sub *walSubscription, seq int64, ev *domain.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
	defer cancel()
	if err := sub.handler.Handle(ctx, ev); err == nil {
		b.ack(sub.subscriber, seq)
	}
}

func (b *WALBus) ack(subscriberID string, seq int64) {
	_, _ = b.db.Exec(`
		INSERT INTO cursors (subscriber, last_seq) VALUES (?, ?)
		ON CONFLICT(subscriber) DO UPDATE SET last_seq = excluded.last_seq WHERE excluded.last_seq > cursors.last_seq
	`, subscriberID, seq)
}

// Subscribe registers handler and immediately replays every event the
// subscriber has not yet acked, in ascending order, before joining live
// delivery. Replay is idempotent: re-running it against the same cursor
// produces the same sequence of calls.
func (b *WALBus) Subscribe(ctx context.Context, subscriberID string, handler Handler) (string, error) {
	if handler == nil {
		return "", domain.Wrap(domain.ErrKindConfig, subscriberID, fmt.Errorf("handler must not be nil"))
	}

	var lastSeq int64
	row := b.db.QueryRowContext(ctx, `SELECT last_seq FROM cursors WHERE subscriber = ?`, subscriberID)
	if err := row.Scan(&lastSeq); err != nil && err != sql.ErrNoRows {
		return "", domain.Wrap(domain.ErrKindBusPublish, subscriberID, fmt.Errorf("read cursor: %w", err))
	}

	sub := &walSubscription{
		id:         "sub_" + uuid.New().String(),
		subscriber: subscriberID,
		cursor:     lastSeq,
		handler:    handler,
		done:       make(chan struct{}),
	}

	if err := b.replay(ctx, subscriberID, sub); err != nil {
		return "", err
	}

	b.mu.Lock()
	b.subscriptions[sub.id] = sub
	b.mu.Unlock()

	return sub.id, nil
}

func (b *WALBus) replay(ctx context.Context, subscriberID string, sub *walSubscription) error {
	rows, err := b.db.QueryContext(ctx, `
		SELECT seq, id, source_id, type, trace_id, timestamp, provenance, payload
		FROM bus_events WHERE seq > ? ORDER BY seq ASC
	`, sub.cursor)
	if err != nil {
		return domain.Wrap(domain.ErrKindBusPublish, subscriberID, fmt.Errorf("replay query: %w", err))
	}
	defer rows.Close()

	for rows.Next() {
		var seq int64
		var id, sourceID, typ, traceID, provenanceStr, payloadStr string
		var timestampMs int64
		if err := rows.Scan(&seq, &id, &sourceID, &typ, &traceID, &timestampMs, &provenanceStr, &payloadStr); err != nil {
			return domain.Wrap(domain.ErrKindBusPublish, subscriberID, fmt.Errorf("scan replay row: %w", err))
		}
		var provenance, payload map[string]any
		_ = json.Unmarshal([]byte(provenanceStr), &provenance)
		_ = json.Unmarshal([]byte(payloadStr), &payload)

		ev := &domain.Event{
			ID:         id,
			SourceID:   sourceID,
			Type:       domain.EventType(typ),
			TraceID:    traceID,
			Timestamp:  time.UnixMilli(timestampMs).UTC(),
			Provenance: provenance,
			Payload:    payload,
		}
		dctx, cancel := context.WithTimeout(ctx, deliveryTimeout)
		err := sub.handler.Handle(dctx, ev)
		cancel()
		if err == nil {
			b.ack(subscriberID, seq)
		}
	}
	return rows.Err()
}

func (b *WALBus) Unsubscribe(subID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub, ok := b.subscriptions[subID]
	if !ok {
		return domain.ErrNotFound
	}
	close(sub.done)
	delete(b.subscriptions, subID)
	return nil
}

func (b *WALBus) Close() error {
	b.mu.Lock()
	for _, sub := range b.subscriptions {
		close(sub.done)
	}
	b.subscriptions = map[string]*walSubscription{}
	b.mu.Unlock()
	return b.db.Close()
}

var _ Bus = (*WALBus)(nil)
