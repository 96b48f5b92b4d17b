package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	_ "modernc.org/sqlite"

	"github.com/joseph-ayodele/examlens/internal/common"
	"github.com/joseph-ayodele/examlens/internal/entity"
)

const (
	resultsTable = "exam_results"
	currentSlot  = "current"
)

// SQLStore keeps the current outcome in a one-row table keyed by slot. The
// statements are built with ent's SQL builder so the same code serves SQLite
// and Postgres.
type SQLStore struct {
	drv     *entsql.Driver
	dialect string
	closeFn func()
	mu      sync.Mutex
	logger  *slog.Logger
}

// OpenSQLite opens (or creates) a SQLite database at path.
func OpenSQLite(ctx context.Context, path string, logger *slog.Logger) (*SQLStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, storageErr("open sqlite", err)
	}
	// one writer; sqlite serializes anyway and this avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)
	s, err := newSQLStore(ctx, db, dialect.SQLite, nil, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func newSQLStore(ctx context.Context, db *sql.DB, name string, closeFn func(), logger *slog.Logger) (*SQLStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &SQLStore{
		drv:     entsql.OpenDB(name, db),
		dialect: name,
		closeFn: closeFn,
		logger:  logger,
	}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// resultsDDL is valid for both SQLite and Postgres.
const resultsDDL = `CREATE TABLE IF NOT EXISTS ` + resultsTable + ` (
	slot         VARCHAR(32) PRIMARY KEY,
	run_id       VARCHAR(64) NOT NULL,
	kind         VARCHAR(16) NOT NULL,
	document     TEXT        NOT NULL,
	completed_at VARCHAR(40) NOT NULL
)`

func (s *SQLStore) migrate(ctx context.Context) error {
	if err := s.drv.Exec(ctx, resultsDDL, []any{}, nil); err != nil {
		return storageErr("create results table", err)
	}
	return nil
}

func (s *SQLStore) Write(ctx context.Context, o entity.Outcome) error {
	doc, err := encode(o)
	if err != nil {
		return err
	}
	completed := o.CompletedAt
	if completed.IsZero() {
		completed = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	query, args := entsql.Dialect(s.dialect).
		Insert(resultsTable).
		Columns("slot", "run_id", "kind", "document", "completed_at").
		Values(currentSlot, o.RunID, o.Kind(), string(doc), completed.Format(time.RFC3339Nano)).
		OnConflict(
			entsql.ConflictColumns("slot"),
			entsql.ResolveWithNewValues(),
		).
		Query()
	if err := s.drv.Exec(ctx, query, args, nil); err != nil {
		return storageErr("upsert result", err)
	}
	s.logger.Info("store.write.ok", "backend", s.dialect, "run_id", o.RunID, "kind", o.Kind(), "bytes", len(doc))
	return nil
}

func (s *SQLStore) ReadCurrent(ctx context.Context) (entity.Outcome, error) {
	query, args := entsql.Dialect(s.dialect).
		Select("run_id", "document", "completed_at").
		From(entsql.Table(resultsTable)).
		Where(entsql.EQ("slot", currentSlot)).
		Query()

	var rows entsql.Rows
	if err := s.drv.Query(ctx, query, args, &rows); err != nil {
		return entity.Outcome{}, storageErr("select result", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return entity.Outcome{}, storageErr("select result", err)
		}
		return entity.Outcome{}, common.ErrNotAvailable
	}
	var runID, doc, completed string
	if err := rows.Scan(&runID, &doc, &completed); err != nil {
		return entity.Outcome{}, storageErr("scan result", err)
	}
	o, err := entity.ParseOutcome([]byte(doc))
	if err != nil {
		return entity.Outcome{}, storageErr("decode result", err)
	}
	o.RunID = runID
	if t, err := time.Parse(time.RFC3339Nano, completed); err == nil {
		o.CompletedAt = t
	}
	return o, nil
}

func (s *SQLStore) Ping(ctx context.Context) error {
	if err := s.drv.DB().PingContext(ctx); err != nil {
		return storageErr("ping", err)
	}
	return nil
}

func (s *SQLStore) Close() error {
	err := s.drv.Close()
	if s.closeFn != nil {
		s.closeFn()
	}
	return err
}
