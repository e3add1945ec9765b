package driver

import (
	"context"
	"fmt"
	"time"
)

// SQLKeyValue KeyValueDB backed by a two-column table
//
// expiration is ignored, rows live until deleted
type SQLKeyValue struct {
	Conn  ITransactionalDB
	Table string
}

var (
	_ KeyValueDB = &SQLKeyValue{}
	_ Updater    = &SQLKeyValue{}
)

// DefaultKVTable table name used when none is configured
const DefaultKVTable = "kv_store"

// NewSQLKeyValue create a SQLKeyValue on table, defaults to DefaultKVTable
func NewSQLKeyValue(Conn ITransactionalDB, table string) *SQLKeyValue {
	if table == "" {
		table = DefaultKVTable
	}
	return &SQLKeyValue{Conn, table}
}

// EnsureSchema create the backing table if missing
func (kv *SQLKeyValue) EnsureSchema(ctx context.Context) error {
	var ddl string
	switch kv.Conn.Dialect() {
	case DriverMySQL:
		ddl = fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    k VARCHAR(191) NOT NULL PRIMARY KEY,
    v LONGTEXT NOT NULL
)`, kv.Table)
	default:
		ddl = fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    k VARCHAR(191) NOT NULL PRIMARY KEY,
    v TEXT NOT NULL
)`, kv.Table)
	}
	_, err := kv.Conn.ExecContext(ctx, ddl)
	return err
}

func (kv *SQLKeyValue) Get(ctx context.Context, key string) (string, error) {
	v, found, err := kv.get(ctx, kv.Conn, key, false)
	if err != nil {
		return "", err
	}
	if !found {
		return "", ErrKeyNotFound
	}
	return v, nil
}

func (kv *SQLKeyValue) Set(ctx context.Context, key string, value string, expiration time.Duration) error {
	return kv.set(ctx, kv.Conn, key, value)
}

// Update implement Updater, the row is locked for the duration of fn on
// MySQL and PostgreSQL. SQLite serializes writers through its single
// connection.
func (kv *SQLKeyValue) Update(ctx context.Context, key string, fn func(value string, found bool) (string, error)) (err error) {
	tx, err := kv.Conn.BeginTx(ctx, &TxOptions{AccessMode: AccessReadWrite})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	value, found, err := kv.get(ctx, tx, key, true)
	if err != nil {
		return err
	}
	next, err := fn(value, found)
	if err != nil {
		return err
	}
	if err = kv.set(ctx, tx, key, next); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (kv *SQLKeyValue) get(ctx context.Context, db ITransactionalDB, key string, lock bool) (string, bool, error) {
	query := fmt.Sprintf(`SELECT v FROM %s WHERE k = $1`, kv.Table)
	if lock && db.Dialect() != DriverSQLite {
		query += " FOR UPDATE"
	}
	rows, err := db.QueryContext(ctx, query, key)
	if err != nil {
		return "", false, err
	}
	defer rows.Close()

	if !rows.Next() {
		return "", false, nil
	}
	var v string
	if err := rows.Scan(&v); err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (kv *SQLKeyValue) set(ctx context.Context, db ITransactionalDB, key string, value string) error {
	var query string
	switch db.Dialect() {
	case DriverMySQL:
		query = fmt.Sprintf(`INSERT INTO %s(k, v) VALUES($1, $2)
ON DUPLICATE KEY UPDATE v = VALUES(v)`, kv.Table)
	default:
		query = fmt.Sprintf(`INSERT INTO %s(k, v) VALUES($1, $2)
ON CONFLICT (k) DO UPDATE SET v = excluded.v`, kv.Table)
	}
	_, err := db.ExecContext(ctx, query, key, value)
	return err
}

func (kv *SQLKeyValue) Del(ctx context.Context, key string) error {
	_, err := kv.Conn.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE k = $1`, kv.Table), key)
	return err
}

func (kv *SQLKeyValue) Exists(ctx context.Context, key string) (bool, error) {
	_, err := kv.Get(ctx, key)
	if err == nil {
		return true, nil
	}
	if IsKeyNotFound(err) {
		return false, nil
	}
	return false, err
}

func (kv *SQLKeyValue) Ping(ctx context.Context) error {
	return kv.Conn.Ping(ctx)
}
