package production

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"
	_ "modernc.org/sqlite"

	"github.com/comalice/corofsm/trace"
)

// SQLiteTraceStore keeps hops of many runs in a SQLite database.
type SQLiteTraceStore struct {
	db *sql.DB
}

// OpenSQLiteTraceStore opens dsn with the modernc SQLite driver and
// initializes the schema. ":memory:" gives a private in-memory store.
func OpenSQLiteTraceStore(dsn string) (*SQLiteTraceStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", dsn)
	}
	// An in-memory database lives and dies with its connection.
	db.SetMaxOpenConns(1)
	s, err := NewSQLiteTraceStore(db)
	if err != nil {
		return nil, errors.CombineErrors(err, db.Close())
	}
	return s, nil
}

// NewSQLiteTraceStore initializes the schema in db, which must use a SQLite
// driver.
func NewSQLiteTraceStore(db *sql.DB) (*SQLiteTraceStore, error) {
	s := &SQLiteTraceStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteTraceStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS hops (
			run TEXT NOT NULL,
			seq INTEGER NOT NULL,
			machine TEXT NOT NULL,
			target TEXT NOT NULL,
			from_state TEXT NOT NULL,
			event TEXT NOT NULL,
			to_state TEXT NOT NULL,
			at_unix_nano INTEGER NOT NULL,
			PRIMARY KEY (run, seq)
		);`,
	)
	return errors.Wrap(err, "init schema")
}

// Append stores hops under run in one transaction.
func (s *SQLiteTraceStore) Append(ctx context.Context, run string, hops []trace.Hop) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO hops (run, seq, machine, target, from_state, event, to_state, at_unix_nano)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return errors.Wrap(err, "prepare")
	}
	defer stmt.Close()

	for _, h := range hops {
		if _, err := stmt.ExecContext(ctx, run, int64(h.Seq), h.Machine, h.Target, h.From, h.Event, h.To, h.At.UnixNano()); err != nil {
			return errors.Wrapf(err, "run %q: insert hop %d", run, h.Seq)
		}
	}
	return errors.Wrap(tx.Commit(), "commit")
}

// Hops returns the hops stored under run ordered by sequence number.
func (s *SQLiteTraceStore) Hops(ctx context.Context, run string) ([]trace.Hop, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, machine, target, from_state, event, to_state, at_unix_nano
		FROM hops
		WHERE run = ?
		ORDER BY seq`, run)
	if err != nil {
		return nil, errors.Wrapf(err, "run %q", run)
	}
	defer rows.Close()

	var out []trace.Hop
	for rows.Next() {
		var (
			h   trace.Hop
			seq int64
			at  int64
		)
		if err := rows.Scan(&seq, &h.Machine, &h.Target, &h.From, &h.Event, &h.To, &at); err != nil {
			return nil, errors.Wrapf(err, "run %q: scan", run)
		}
		h.Seq = uint64(seq)
		h.At = time.Unix(0, at)
		out = append(out, h)
	}
	return out, errors.Wrapf(rows.Err(), "run %q", run)
}

// VisitCounts returns how often each state was entered in run, keyed by
// "machine/state" of the machine owning the state.
func (s *SQLiteTraceStore) VisitCounts(ctx context.Context, run string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT CASE WHEN target = '' THEN machine ELSE target END AS owner, to_state, COUNT(*)
		FROM hops
		WHERE run = ?
		GROUP BY owner, to_state`, run)
	if err != nil {
		return nil, errors.Wrapf(err, "run %q", run)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var (
			owner, state string
			n            int
		)
		if err := rows.Scan(&owner, &state, &n); err != nil {
			return nil, errors.Wrapf(err, "run %q: scan", run)
		}
		out[owner+"/"+state] = n
	}
	return out, errors.Wrapf(rows.Err(), "run %q", run)
}

// Runs lists the stored run names in lexical order.
func (s *SQLiteTraceStore) Runs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT run FROM hops ORDER BY run`)
	if err != nil {
		return nil, errors.Wrap(err, "list runs")
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var run string
		if err := rows.Scan(&run); err != nil {
			return nil, errors.Wrap(err, "scan run")
		}
		out = append(out, run)
	}
	return out, errors.Wrap(rows.Err(), "list runs")
}

// Close closes the underlying database.
func (s *SQLiteTraceStore) Close() error {
	return s.db.Close()
}
