package ch

import (
	"context"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clickhouseTC "github.com/testcontainers/testcontainers-go/modules/clickhouse"

	"riskbot/internal/audit"
)

// applyMigration applies the goose migration by hand
func applyMigration(ctx context.Context, j *Journal) error {
	raw, err := os.ReadFile("../../../migrations/00001_create_moderation_events.sql")
	if err != nil {
		return err
	}
	_ = j.conn.Exec(ctx, "DROP TABLE IF EXISTS moderation_events")
	return j.conn.Exec(ctx, upSection(string(raw)))
}

// upSection extracts the statement between the goose Up and Down markers
func upSection(sql string) string {
	_, rest, _ := strings.Cut(sql, "-- +goose Up")
	up, _, _ := strings.Cut(rest, "-- +goose Down")
	return up
}

func setupTestJournal(t *testing.T) (*Journal, func()) {
	if testing.Short() {
		t.Skip("skipping ClickHouse container test in short mode")
	}
	ctx := context.Background()

	container, err := clickhouseTC.Run(ctx,
		"clickhouse/clickhouse-server:24.3.3.102-alpine",
		clickhouseTC.WithUsername("default"),
		clickhouseTC.WithPassword(""),
		clickhouseTC.WithDatabase("default"),
	)
	require.NoError(t, err, "Failed to start ClickHouse container")

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "9000/tcp")
	require.NoError(t, err)

	j, err := NewJournal(host, port.Int(), "default", "default", "", false)
	require.NoError(t, err, "Failed to connect to ClickHouse")

	require.NoError(t, applyMigration(ctx, j), "Failed to apply migration")

	cleanup := func() {
		j.Close()
		container.Terminate(ctx)
	}
	return j, cleanup
}

func TestJournal_RecordAndHistory(t *testing.T) {
	j, cleanup := setupTestJournal(t)
	defer cleanup()

	ctx := context.Background()
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, j.Record(ctx, audit.Event{
		Time: base, Kind: audit.KindPurge, ActorID: 7, TargetID: 7, Purged: 3, Deleted: 2, Failed: 1,
	}))
	require.NoError(t, j.Record(ctx, audit.Event{
		Time: base.Add(time.Hour), Kind: audit.KindAdminPurge, ActorID: 1, TargetID: 7, Purged: 1, Deleted: 1,
		Detail: "skipped: Quiet Group",
	}))
	require.NoError(t, j.Record(ctx, audit.Event{
		Time: base, Kind: audit.KindAllBan, ActorID: 1, TargetID: 8,
	}))

	events, err := j.TargetHistory(ctx, 7, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, audit.KindAdminPurge, events[0].Kind)
	assert.Equal(t, "skipped: Quiet Group", events[0].Detail)
	assert.Equal(t, audit.KindPurge, events[1].Kind)
	assert.Equal(t, 3, events[1].Purged)
	assert.Equal(t, 1, events[1].Failed)
}

func TestJournal_ConcurrentRecords(t *testing.T) {
	j, cleanup := setupTestJournal(t)
	defer cleanup()

	ctx := context.Background()
	const n = 10

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			err := j.Record(ctx, audit.Event{
				Time:     time.Now().Add(time.Duration(idx) * time.Minute),
				Kind:     audit.KindPurge,
				TargetID: 42,
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	events, err := j.TargetHistory(ctx, 42, 100)
	require.NoError(t, err)
	assert.Len(t, events, n)
}

func TestJournal_Close(t *testing.T) {
	j, cleanup := setupTestJournal(t)
	defer cleanup()

	assert.NoError(t, j.Close())
	assert.NoError(t, j.Close())
}
