// Package testutil fakes the postgres state table in memory so the state
// store's tests run without a server.
package testutil

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"strings"
	"time"
)

// StubConn keeps the state table as bucket -> payload and records every
// statement it receives. Setting one of the Fail flags makes the matching
// call error. Only the three statements the state store issues are
// understood; anything else is rejected.
type StubConn struct {
	Execs      []string
	Queries    []string
	Buckets    map[string][]byte
	TableReady bool
	FailExec   bool
	FailUpsert bool
	FailPing   bool
	FailBegin  bool
	FailQuery  bool
	FailCommit bool
	RowsErr    error
	Commits    int
}

// Payload returns the stored payload of bucket.
func (c *StubConn) Payload(bucket string) ([]byte, bool) {
	p, ok := c.Buckets[bucket]
	return p, ok
}

// NewStubDB registers a sql.DB backed by a fresh stub connection.
func NewStubDB() (*sql.DB, *StubConn) {
	conn := &StubConn{Buckets: make(map[string][]byte)}
	name := fmt.Sprintf("stubpg%d", time.Now().UnixNano())
	sql.Register(name, &stubDriver{conn: conn})
	db, err := sql.Open(name, "stub")
	if err != nil {
		panic(err)
	}
	return db, conn
}

type stubDriver struct {
	conn *StubConn
}

func (d *stubDriver) Open(string) (driver.Conn, error) {
	return d.conn, nil
}

type statement int

const (
	stmtUnknown statement = iota
	stmtCreate
	stmtUpsert
	stmtSelect
)

func classify(query string) statement {
	q := strings.ToUpper(strings.Join(strings.Fields(query), " "))
	switch {
	case strings.HasPrefix(q, "CREATE TABLE IF NOT EXISTS STATE "):
		return stmtCreate
	case strings.HasPrefix(q, "INSERT INTO STATE(BUCKET,PAYLOAD) VALUES($1,$2) ON CONFLICT(BUCKET)"):
		return stmtUpsert
	case q == "SELECT BUCKET, PAYLOAD FROM STATE WHERE BUCKET = $1":
		return stmtSelect
	default:
		return stmtUnknown
	}
}

// Prepare implements driver.Conn.
func (c *StubConn) Prepare(string) (driver.Stmt, error) { return nil, fmt.Errorf("not implemented") }

// Close implements driver.Conn.
func (c *StubConn) Close() error { return nil }

// Begin implements driver.Conn.
func (c *StubConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

// Ping implements driver.Pinger.
func (c *StubConn) Ping(_ context.Context) error {
	if c.FailPing {
		return fmt.Errorf("ping fail")
	}
	return nil
}

// BeginTx implements driver.ConnBeginTx.
func (c *StubConn) BeginTx(_ context.Context, _ driver.TxOptions) (driver.Tx, error) {
	if c.FailBegin {
		return nil, fmt.Errorf("begin fail")
	}
	return &stubTx{conn: c}, nil
}

// ExecContext implements driver.ExecerContext for the DDL and the upsert.
func (c *StubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.Execs = append(c.Execs, query)
	if c.FailExec {
		return nil, fmt.Errorf("exec fail")
	}
	switch classify(query) {
	case stmtCreate:
		c.TableReady = true
		return driver.RowsAffected(0), nil
	case stmtUpsert:
		if !c.TableReady {
			return nil, fmt.Errorf(`relation "state" does not exist`)
		}
		if c.FailUpsert {
			return nil, fmt.Errorf("upsert fail")
		}
		bucket, payload, err := upsertArgs(args)
		if err != nil {
			return nil, err
		}
		c.Buckets[bucket] = payload
		return driver.RowsAffected(1), nil
	default:
		return nil, fmt.Errorf("unsupported statement: %s", query)
	}
}

// QueryContext implements driver.QueryerContext for the bucket lookup.
func (c *StubConn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	c.Queries = append(c.Queries, query)
	if c.FailQuery {
		return nil, fmt.Errorf("query fail")
	}
	if classify(query) != stmtSelect {
		return nil, fmt.Errorf("unsupported query: %s", query)
	}
	if !c.TableReady {
		return nil, fmt.Errorf(`relation "state" does not exist`)
	}
	if len(args) != 1 {
		return nil, fmt.Errorf("expected 1 arg, got %d", len(args))
	}
	bucket, ok := args[0].Value.(string)
	if !ok {
		return nil, fmt.Errorf("bucket must be text, got %T", args[0].Value)
	}
	rows := &stubRows{cols: []string{"bucket", "payload"}, err: c.RowsErr}
	if payload, ok := c.Buckets[bucket]; ok {
		rows.rows = append(rows.rows, []driver.Value{bucket, payload})
	}
	return rows, nil
}

func upsertArgs(args []driver.NamedValue) (string, []byte, error) {
	if len(args) != 2 {
		return "", nil, fmt.Errorf("expected 2 args, got %d", len(args))
	}
	bucket, ok := args[0].Value.(string)
	if !ok {
		return "", nil, fmt.Errorf("bucket must be text, got %T", args[0].Value)
	}
	payload, ok := args[1].Value.([]byte)
	if !ok {
		return "", nil, fmt.Errorf("payload must be bytes, got %T", args[1].Value)
	}
	return bucket, append([]byte(nil), payload...), nil
}

type stubTx struct {
	conn *StubConn
}

func (t *stubTx) Commit() error {
	if t.conn.FailCommit {
		return fmt.Errorf("commit fail")
	}
	t.conn.Commits++
	return nil
}

func (t *stubTx) Rollback() error { return nil }

type stubRows struct {
	cols []string
	rows [][]driver.Value
	idx  int
	err  error
}

func (r *stubRows) Columns() []string { return r.cols }
func (r *stubRows) Close() error      { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.rows) {
		if r.err != nil {
			return r.err
		}
		return io.EOF
	}
	copy(dest, r.rows[r.idx])
	r.idx++
	return nil
}
