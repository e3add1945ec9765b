package driver

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLiteKV(t *testing.T) *SQLKeyValue {
	t.Helper()
	conn, err := GetDBConnection(&DBConfig{
		Driver: DriverSQLite,
		Schema: filepath.Join(t.TempDir(), "progress.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(context.Background()) })

	kv := NewSQLKeyValue(conn, "")
	require.NoError(t, kv.EnsureSchema(context.Background()))
	return kv
}

func TestSQLKeyValue(t *testing.T) {
	ctx := context.Background()
	kv := newSQLiteKV(t)
	assert.Equal(t, DefaultKVTable, kv.Table)
	assert.NoError(t, kv.Ping(ctx))

	_, err := kv.Get(ctx, "progress")
	assert.ErrorIs(t, err, ErrKeyNotFound)
	ok, err := kv.Exists(ctx, "progress")
	assert.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, kv.Set(ctx, "progress", `{"a":1}`, 0))
	require.NoError(t, kv.Set(ctx, "progress", `{"b":2}`, 0))
	v, err := kv.Get(ctx, "progress")
	assert.NoError(t, err)
	assert.Equal(t, `{"b":2}`, v)

	ok, err = kv.Exists(ctx, "progress")
	assert.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, kv.Del(ctx, "progress"))
	_, err = kv.Get(ctx, "progress")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestSQLKeyValue_Update(t *testing.T) {
	ctx := context.Background()
	kv := newSQLiteKV(t)
	var _ Updater = kv

	require.NoError(t, kv.Update(ctx, "progress", func(v string, found bool) (string, error) {
		assert.False(t, found)
		assert.Empty(t, v)
		return "1", nil
	}))
	require.NoError(t, kv.Update(ctx, "progress", func(v string, found bool) (string, error) {
		assert.True(t, found)
		return v + "2", nil
	}))
	v, err := kv.Get(ctx, "progress")
	require.NoError(t, err)
	assert.Equal(t, "12", v)

	// a failing fn rolls back, the stored value survives
	errAbort := errors.New("abort")
	err = kv.Update(ctx, "progress", func(string, bool) (string, error) {
		return "", errAbort
	})
	assert.ErrorIs(t, err, errAbort)
	v, err = kv.Get(ctx, "progress")
	require.NoError(t, err)
	assert.Equal(t, "12", v)

	err = kv.Update(ctx, "fresh", func(string, bool) (string, error) {
		return "", errAbort
	})
	assert.ErrorIs(t, err, errAbort)
	_, err = kv.Get(ctx, "fresh")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestSQLKeyValue_ConcurrentUpdate(t *testing.T) {
	ctx := context.Background()
	kv := newSQLiteKV(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, kv.Update(ctx, "counter", func(v string, found bool) (string, error) {
				return v + "x", nil
			}))
		}()
	}
	wg.Wait()

	v, err := kv.Get(ctx, "counter")
	require.NoError(t, err)
	assert.Len(t, v, 10)
}

func TestSQLKeyValue_EnsureSchemaTwice(t *testing.T) {
	kv := newSQLiteKV(t)
	assert.NoError(t, kv.EnsureSchema(context.Background()))
}

func TestAdapters(t *testing.T) {
	assert.Equal(t, "SELECT v FROM t WHERE k = ?1 AND x = ?2", sqliteAdapter("SELECT v FROM t\n  WHERE k = $1 AND x = $2"))
	assert.Equal(t, "SELECT `v` FROM t WHERE k = ?", mysqlAdapter(`SELECT "v" FROM t WHERE k = $1`))
}

func TestGetDSN(t *testing.T) {
	assert.Equal(t, "/tmp/p.db", getDSN(&DBConfig{Driver: DriverSQLite, Schema: "/tmp/p.db"}))
	assert.Equal(t, "u:p@tcp(h:3306)/s?parseTime=true", getDSN(&DBConfig{
		Driver: DriverMySQL, User: "u", Password: "p", Protocol: "tcp", Host: "h", Port: 3306, Schema: "s", Query: "parseTime=true",
	}))
	assert.Equal(t, "u:p@h:5432/s", getDSN(&DBConfig{Driver: DriverPostgres, User: "u", Password: "p", Host: "h", Port: 5432, Schema: "s"}))

	_, err := GetDBConnection(&DBConfig{Driver: "oracle"})
	assert.Error(t, err)
}
