// Copyright (C) 2025 memory-palace contributors
// SPDX-License-Identifier: LGPL-3.0-or-later

package handoff

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/memory-palace/core/db"
	"github.com/memory-palace/core/observability/logging"
	"github.com/memory-palace/core/observability/metrics"
	mperrors "github.com/memory-palace/core/pkg/errors"
)

// redisChannel is the pub/sub channel new handoffs are published to for
// live-streaming consumers (the debug HTTP server's websocket feed).
const redisChannel = "memory-palace:handoffs"

// Bus owns the inter-instance handoff mailbox: send, list, and mark
// read, plus an optional Redis fan-out so a connected consumer can
// observe new messages without polling.
type Bus struct {
	backend   db.Backend
	redis     *redis.Client
	instances map[string]bool
	metrics   *metrics.StoreMetrics
	log       logging.Logger
}

// Config bundles Bus's construction-time dependencies.
type Config struct {
	Backend     db.Backend
	Redis       *redis.Client
	InstanceIDs []string
	Metrics     *metrics.StoreMetrics
	Log         logging.Logger
}

// New constructs a Bus. Redis may be nil, in which case SendHandoff
// persists but never publishes.
func New(cfg Config) *Bus {
	instances := make(map[string]bool, len(cfg.InstanceIDs))
	for _, id := range cfg.InstanceIDs {
		instances[id] = true
	}
	return &Bus{
		backend:   cfg.Backend,
		redis:     cfg.Redis,
		instances: instances,
		metrics:   cfg.Metrics,
		log:       cfg.Log,
	}
}

// SendHandoff validates from/to/message_type, inserts the message, and
// publishes it to Redis if configured. from_instance must be one of the
// configured instances; to_instance may additionally be "all".
func (b *Bus) SendHandoff(ctx context.Context, p SendParams) (*SendResult, error) {
	if !b.instances[p.FromInstance] {
		return nil, mperrors.ErrUnknownFromInstance.WithDetail("from_instance", p.FromInstance)
	}
	if p.ToInstance != "all" && !b.instances[p.ToInstance] {
		return nil, mperrors.ErrUnknownToInstance.WithDetail("to_instance", p.ToInstance)
	}
	if !validMessageTypes[p.MessageType] {
		return nil, mperrors.ErrUnknownMessageType.WithDetail("message_type", p.MessageType)
	}

	dialect := b.backend.Dialect()
	var id int64
	var err error
	if dialect == "sqlite" {
		var res sql.Result
		res, err = b.backend.ExecContext(ctx,
			`INSERT INTO handoffs (from_instance, to_instance, message_type, subject, content) VALUES (?, ?, ?, ?, ?)`,
			p.FromInstance, p.ToInstance, p.MessageType, nullString(p.Subject), p.Content)
		if err == nil {
			id, err = res.LastInsertId()
		}
	} else {
		err = b.backend.QueryRowContext(ctx,
			`INSERT INTO handoffs (from_instance, to_instance, message_type, subject, content) VALUES ($1, $2, $3, $4, $5) RETURNING id`,
			p.FromInstance, p.ToInstance, p.MessageType, nullString(p.Subject), p.Content).Scan(&id)
	}
	if err != nil {
		return nil, fmt.Errorf("send_handoff: %w", err)
	}

	if b.metrics != nil {
		b.metrics.RecordHandoffSent(p.MessageType, p.ToInstance)
	}

	if b.redis != nil {
		msg := HandoffMessage{
			ID: id, FromInstance: p.FromInstance, ToInstance: p.ToInstance,
			MessageType: p.MessageType, Subject: p.Subject, Content: p.Content,
		}
		if payload, err := json.Marshal(msg); err == nil {
			if err := b.redis.Publish(ctx, redisChannel, payload).Err(); err != nil && b.log != nil {
				b.log.Warn(ctx, "send_handoff: redis publish failed", logging.Int64("id", id), logging.Error(err))
			}
		}
	}

	return &SendResult{ID: id}, nil
}

// GetHandoffs returns messages addressed to for_instance or to "all",
// newest first, with additive filters.
func (b *Bus) GetHandoffs(ctx context.Context, p GetParams) ([]HandoffMessage, error) {
	if !b.instances[p.ForInstance] {
		return nil, mperrors.ErrUnknownFromInstance.WithDetail("for_instance", p.ForInstance)
	}
	if p.MessageType != "" && !validMessageTypes[p.MessageType] {
		return nil, mperrors.ErrUnknownMessageType.WithDetail("message_type", p.MessageType)
	}
	if p.Limit <= 0 {
		p.Limit = 50
	}

	dialect := b.backend.Dialect()
	clause := fmt.Sprintf("(to_instance = %s OR to_instance = 'all')", db.Placeholder(dialect, 1))
	args := []interface{}{p.ForInstance}
	next := 2

	if p.UnreadOnly {
		clause += " AND read_at IS NULL"
	}
	if p.MessageType != "" {
		clause += fmt.Sprintf(" AND message_type = %s", db.Placeholder(dialect, next))
		args = append(args, p.MessageType)
		next++
	}

	query := fmt.Sprintf(`SELECT id, created_at, from_instance, to_instance, message_type, COALESCE(subject, ''), content, read_at, COALESCE(read_by, '')
		FROM handoffs WHERE %s ORDER BY created_at DESC LIMIT %s`, clause, db.Placeholder(dialect, next))
	args = append(args, p.Limit)

	rows, err := b.backend.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get_handoffs: %w", err)
	}
	defer rows.Close()

	var out []HandoffMessage
	for rows.Next() {
		var m HandoffMessage
		var readAt sql.NullTime
		if err := rows.Scan(&m.ID, &m.CreatedAt, &m.FromInstance, &m.ToInstance, &m.MessageType, &m.Subject, &m.Content, &readAt, &m.ReadBy); err != nil {
			return nil, fmt.Errorf("get_handoffs: scan: %w", err)
		}
		if readAt.Valid {
			t := readAt.Time
			m.ReadAt = &t
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// MarkHandoffRead stamps read_at/read_by unconditionally: re-marking an
// already-read message overwrites the prior reader (last-writer-wins;
// see the design notes on spec.md open question 1).
func (b *Bus) MarkHandoffRead(ctx context.Context, messageID int64, readBy string) error {
	if !b.instances[readBy] {
		return mperrors.ErrUnknownFromInstance.WithDetail("read_by", readBy)
	}

	dialect := b.backend.Dialect()
	var query string
	if dialect == "sqlite" {
		query = `UPDATE handoffs SET read_at = CURRENT_TIMESTAMP, read_by = ? WHERE id = ?`
	} else {
		query = `UPDATE handoffs SET read_at = now(), read_by = $1 WHERE id = $2`
	}
	res, err := b.backend.ExecContext(ctx, query, readBy, messageID)
	if err != nil {
		return fmt.Errorf("mark_handoff_read: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark_handoff_read: %w", err)
	}
	if n == 0 {
		return mperrors.ErrHandoffNotFound.WithDetail("id", messageID)
	}

	if b.metrics != nil {
		var fromInstance string
		_ = b.backend.QueryRowContext(ctx, fmt.Sprintf(`SELECT from_instance FROM handoffs WHERE id = %s`, db.Placeholder(dialect, 1)), messageID).Scan(&fromInstance)
		b.metrics.RecordHandoffRead(fromInstance)
	}
	return nil
}

// Subscribe returns a live subscription to the handoff fan-out channel,
// or nil if no Redis client was configured. Callers must Close the
// returned subscription when done.
func (b *Bus) Subscribe(ctx context.Context) *redis.PubSub {
	if b.redis == nil {
		return nil
	}
	return b.redis.Subscribe(ctx, redisChannel)
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
