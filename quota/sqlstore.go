package quota

import (
	"database/sql"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// SQLStore keeps windows in MySQL. Expected schema:
//
//	CREATE TABLE quota_windows (
//	    requester    VARCHAR(128) NOT NULL,
//	    scope        VARCHAR(128) NOT NULL,
//	    window_start BIGINT       NOT NULL,  -- unix milliseconds
//	    count        INT          NOT NULL,
//	    PRIMARY KEY (requester, scope)
//	);
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore opens the MySQL DSN and verifies connectivity.
func NewSQLStore(dsn string) (*SQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLStore{db: db}, nil
}

func (s *SQLStore) Close() error { return s.db.Close() }

func (s *SQLStore) Load(requester, scope string) (*Window, error) {
	row := s.db.QueryRow(
		`SELECT window_start, count FROM quota_windows WHERE requester = ? AND scope = ?`,
		requester, scope,
	)
	var startMS int64
	var count int
	if err := row.Scan(&startMS, &count); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &Window{
		Requester: requester,
		Scope:     scope,
		Start:     time.Unix(0, startMS*int64(time.Millisecond)).UTC(),
		Count:     count,
	}, nil
}

func (s *SQLStore) Store(w *Window) error {
	_, err := s.db.Exec(
		`INSERT INTO quota_windows (requester, scope, window_start, count)
		 VALUES (?, ?, ?, ?)
		 ON DUPLICATE KEY UPDATE window_start = VALUES(window_start), count = VALUES(count)`,
		w.Requester, w.Scope, w.Start.UnixNano()/int64(time.Millisecond), w.Count,
	)
	return err
}
