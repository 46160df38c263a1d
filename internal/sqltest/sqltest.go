// Package sqltest provides a scriptable database/sql driver for tests
// that exercise code written against *sql.DB without a live database.
// Executed statements are recorded; query results and exec outcomes
// are queued ahead of time by the test.
package sqltest

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"io"
	"sync"
)

// Call is one recorded statement execution.
type Call struct {
	Query string
	Args  []driver.Value
}

// Fake owns the scripted state behind one *sql.DB.
type Fake struct {
	mu      sync.Mutex
	calls   []Call
	results []execResult
	rowSets []*rowSet
	execErr error
}

type execResult struct {
	rowsAffected int64
	err          error
}

type rowSet struct {
	cols []string
	rows [][]driver.Value
	pos  int
}

func New() *Fake { return &Fake{} }

// DB returns a *sql.DB backed by this fake.
func (f *Fake) DB() *sql.DB { return sql.OpenDB(fakeConnector{f}) }

// Calls returns every statement executed so far, queries included.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

// QueueResult scripts the outcome of the next Exec. Unscripted Execs
// succeed with one row affected.
func (f *Fake) QueueResult(rowsAffected int64, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = append(f.results, execResult{rowsAffected: rowsAffected, err: err})
}

// QueueRows scripts the result of the next Query. Unscripted queries
// return an empty result set.
func (f *Fake) QueueRows(cols []string, rows ...[]driver.Value) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rowSets = append(f.rowSets, &rowSet{cols: cols, rows: rows})
}

func (f *Fake) record(query string, args []driver.Value) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Query: query, Args: args})
}

func (f *Fake) nextResult() (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.results) == 0 {
		return 1, nil
	}
	r := f.results[0]
	f.results = f.results[1:]
	return r.rowsAffected, r.err
}

func (f *Fake) nextRows() *rowSet {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.rowSets) == 0 {
		return &rowSet{}
	}
	r := f.rowSets[0]
	f.rowSets = f.rowSets[1:]
	return r
}

type fakeConnector struct{ f *Fake }

func (c fakeConnector) Connect(context.Context) (driver.Conn, error) { return fakeConn{c.f}, nil }
func (c fakeConnector) Driver() driver.Driver                        { return fakeDriver{} }

type fakeDriver struct{}

func (fakeDriver) Open(string) (driver.Conn, error) { return nil, driver.ErrBadConn }

type fakeConn struct{ f *Fake }

func (c fakeConn) Prepare(query string) (driver.Stmt, error) { return fakeStmt{c.f, query}, nil }
func (c fakeConn) Close() error                              { return nil }
func (c fakeConn) Begin() (driver.Tx, error)                 { return fakeTx{}, nil }

// Ping keeps sql.DB.PingContext happy.
func (c fakeConn) Ping(context.Context) error { return nil }

type fakeTx struct{}

func (fakeTx) Commit() error   { return nil }
func (fakeTx) Rollback() error { return nil }

type fakeStmt struct {
	f     *Fake
	query string
}

func (s fakeStmt) Close() error  { return nil }
func (s fakeStmt) NumInput() int { return -1 }

func (s fakeStmt) Exec(args []driver.Value) (driver.Result, error) {
	s.f.record(s.query, args)
	n, err := s.f.nextResult()
	if err != nil {
		return nil, err
	}
	return fakeResult{n}, nil
}

func (s fakeStmt) Query(args []driver.Value) (driver.Rows, error) {
	s.f.record(s.query, args)
	return s.f.nextRows(), nil
}

type fakeResult struct{ n int64 }

func (r fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (r fakeResult) RowsAffected() (int64, error) { return r.n, nil }

func (r *rowSet) Columns() []string { return r.cols }
func (r *rowSet) Close() error      { return nil }

func (r *rowSet) Next(dest []driver.Value) error {
	if r.pos >= len(r.rows) {
		return io.EOF
	}
	copy(dest, r.rows[r.pos])
	r.pos++
	return nil
}
