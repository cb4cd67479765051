package uow

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	core "refsync/data/db"
	"refsync/data/db/basic"
	"refsync/logging"
)

type recordingParticipant struct {
	name string
	log  *[]string
	fail string
}

func (p *recordingParticipant) step(s string) error {
	*p.log = append(*p.log, p.name+":"+s)
	if p.fail == s {
		return errors.New(p.name + " " + s + " failed")
	}
	return nil
}

func (p *recordingParticipant) Begin(ctx context.Context) (context.Context, error) {
	return ctx, p.step("begin")
}
func (p *recordingParticipant) Commit(ctx context.Context) error   { return p.step("commit") }
func (p *recordingParticipant) Rollback(ctx context.Context) error { return p.step("rollback") }

func TestManager_CommitOrder(t *testing.T) {
	var log []string
	m := NewManager(logging.NewNoopLogger(),
		&recordingParticipant{name: "a", log: &log},
		&recordingParticipant{name: "b", log: &log})

	var seen string
	require.NoError(t, m.Do(context.Background(), func(ctx context.Context) error {
		seen = ID(ctx)
		return nil
	}))
	assert.NotEmpty(t, seen)
	assert.Equal(t, []string{"a:begin", "b:begin", "a:commit", "b:commit"}, log)
}

func TestManager_RollbackOnError(t *testing.T) {
	var log []string
	m := NewManager(logging.NewNoopLogger(),
		&recordingParticipant{name: "a", log: &log},
		&recordingParticipant{name: "b", log: &log})

	boom := errors.New("boom")
	err := m.Do(context.Background(), func(ctx context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"a:begin", "b:begin", "b:rollback", "a:rollback"}, log)
}

func TestManager_BeginFailureRollsBackStarted(t *testing.T) {
	var log []string
	m := NewManager(logging.NewNoopLogger(),
		&recordingParticipant{name: "a", log: &log},
		&recordingParticipant{name: "b", log: &log, fail: "begin"})

	called := false
	err := m.Do(context.Background(), func(ctx context.Context) error {
		called = true
		return nil
	})
	require.Error(t, err)
	assert.False(t, called)
	assert.Equal(t, []string{"a:begin", "b:begin", "a:rollback"}, log)
}

func TestManager_NestedJoinsOuterUnit(t *testing.T) {
	var log []string
	m := NewManager(logging.NewNoopLogger(), &recordingParticipant{name: "a", log: &log})

	require.NoError(t, m.Do(context.Background(), func(outer context.Context) error {
		return m.Do(outer, func(inner context.Context) error {
			assert.Equal(t, ID(outer), ID(inner))
			return nil
		})
	}))
	assert.Equal(t, []string{"a:begin", "a:commit"}, log)
}

func TestManager_PanicRollsBack(t *testing.T) {
	var log []string
	m := NewManager(logging.NewNoopLogger(), &recordingParticipant{name: "a", log: &log})

	assert.Panics(t, func() {
		_ = m.Do(context.Background(), func(ctx context.Context) error { panic("boom") })
	})
	assert.Equal(t, []string{"a:begin", "a:rollback"}, log)
}

func TestSQLParticipant(t *testing.T) {
	ctx := context.Background()
	db, err := basic.New(ctx, core.Config{Driver: "sqlite", DSN: ":memory:", MaxOpenConns: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	_, err = db.Exec(ctx, `CREATE TABLE kv (k TEXT PRIMARY KEY)`)
	require.NoError(t, err)

	m := NewManager(logging.NewNoopLogger(), NewSQLParticipant(db))
	insert := func(ctx context.Context) error {
		_, err := core.Executor(ctx, db).Exec(ctx, `INSERT INTO kv (k) VALUES ('a')`)
		return err
	}

	err = m.Do(ctx, func(ctx context.Context) error {
		require.NoError(t, insert(ctx))
		return errors.New("abort")
	})
	require.Error(t, err)

	var n int
	require.NoError(t, db.QueryRow(ctx, `SELECT COUNT(*) FROM kv`).Scan(&n))
	assert.Zero(t, n)

	require.NoError(t, m.Do(ctx, insert))
	require.NoError(t, db.QueryRow(ctx, `SELECT COUNT(*) FROM kv`).Scan(&n))
	assert.Equal(t, 1, n)
}
