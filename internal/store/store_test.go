package store

import (
	"context"
	"errors"
	"io/fs"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campus/internal/store/migrations"
)

func TestRedisHealthy(t *testing.T) {
	mr := miniredis.RunT(t)
	r := NewRedis(mr.Addr())
	defer r.Close()

	assert.True(t, r.Healthy(context.Background()))
	mr.Close()
	assert.False(t, r.Healthy(context.Background()))
}

func TestNilHandlesAreSafe(t *testing.T) {
	var d *DB
	var r *Redis
	assert.False(t, d.Healthy(context.Background()))
	assert.False(t, r.Healthy(context.Background()))
	assert.NoError(t, d.Close())
	assert.NoError(t, r.Close())
}

func TestMigrationsEmbedded(t *testing.T) {
	b, err := fs.ReadFile(migrations.FS, "00001_init.sql")
	require.NoError(t, err)
	sql := string(b)
	assert.True(t, strings.HasPrefix(sql, "-- +goose Up"))
	assert.Contains(t, sql, "UNIQUE (student_id, subject_id, date)")
	assert.Contains(t, sql, "-- +goose Down")
}

func newPingMock(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return &DB{Client: db}, mock
}

func TestWaitReadyRetriesUntilPingSucceeds(t *testing.T) {
	d, mock := newPingMock(t)
	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	mock.ExpectPing()

	require.NoError(t, d.WaitReady(context.Background(), time.Millisecond))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWaitReadyStopsWithContext(t *testing.T) {
	d, mock := newPingMock(t)
	for i := 0; i < 100; i++ {
		mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, d.WaitReady(ctx, 5*time.Millisecond), context.DeadlineExceeded)
}

func TestHealthyNeedsMigratedSchema(t *testing.T) {
	d, mock := newPingMock(t)
	assert.False(t, d.Healthy(context.Background()))

	d.migrated.Store(true)
	mock.ExpectPing()
	assert.True(t, d.Healthy(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
