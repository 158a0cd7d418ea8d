package ch

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"

	"riskbot/internal/audit"
)

// Journal stores moderation events in ClickHouse
type Journal struct {
	conn clickhouse.Conn
}

var (
	_ audit.Journal   = (*Journal)(nil)
	_ audit.Historian = (*Journal)(nil)
)

// NewJournal opens a ClickHouse connection for the moderation journal
func NewJournal(host string, port int, database, user, password string, useTLS bool) (*Journal, error) {
	addr := fmt.Sprintf("%s:%d", host, port)

	options := &clickhouse.Options{
		Addr:     []string{addr},
		Protocol: clickhouse.Native,
		Auth: clickhouse.Auth{
			Database: database,
			Username: user,
			Password: password,
		},
	}

	if useTLS {
		options.TLS = &tls.Config{
			InsecureSkipVerify: false,
		}
	}

	conn, err := clickhouse.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	return &Journal{conn: conn}, nil
}

// Record inserts one event. The table is managed via migrations.
func (j *Journal) Record(ctx context.Context, event audit.Event) error {
	if event.Time.IsZero() {
		event.Time = time.Now()
	}
	err := j.conn.Exec(ctx, `INSERT INTO moderation_events
		(time, kind, actor_id, target_id, purged, deleted, failed, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		event.Time, string(event.Kind), event.ActorID, event.TargetID,
		int64(event.Purged), int64(event.Deleted), int64(event.Failed), event.Detail)
	if err != nil {
		return fmt.Errorf("failed to record %s event: %w", event.Kind, err)
	}
	return nil
}

// TargetHistory returns the last events recorded against a user, newest first
func (j *Journal) TargetHistory(ctx context.Context, targetID int64, limit int) ([]audit.Event, error) {
	rows, err := j.conn.Query(ctx, `SELECT time, kind, actor_id, target_id, purged, deleted, failed, detail
		FROM moderation_events WHERE target_id = ? ORDER BY time DESC LIMIT ?`, targetID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history for %d: %w", targetID, err)
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		var (
			e                       audit.Event
			kind                    string
			purged, deleted, failed int64
		)
		if err := rows.Scan(&e.Time, &kind, &e.ActorID, &e.TargetID, &purged, &deleted, &failed, &e.Detail); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.Kind = audit.Kind(kind)
		e.Purged, e.Deleted, e.Failed = int(purged), int(deleted), int(failed)
		events = append(events, e)
	}
	return events, rows.Err()
}

// Close closes the connection
func (j *Journal) Close() error {
	if j.conn != nil {
		return j.conn.Close()
	}
	return nil
}
