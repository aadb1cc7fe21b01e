package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/betbot/vaultbot/internal/domain"
	_ "modernc.org/sqlite"
)

// Store persists round results to sqlite. Action lists and the plan are
// stored as JSON blobs; the queryable columns are what the operator
// actually filters on.
type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`
CREATE TABLE IF NOT EXISTS rounds (
  id TEXT PRIMARY KEY,
  started_at TEXT NOT NULL,
  finished_at TEXT NOT NULL,
  dry_run INTEGER NOT NULL,
  recommended TEXT NOT NULL,
  tp_withdrawals TEXT NOT NULL,
  withdrawals TEXT NOT NULL,
  deposits TEXT NOT NULL,
  deposit_submitted INTEGER NOT NULL,
  deposit_skipped INTEGER NOT NULL,
  deposit_errors INTEGER NOT NULL,
  err TEXT
);`,
		`CREATE INDEX IF NOT EXISTS idx_rounds_started_at ON rounds(started_at);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate history db: %w", err)
		}
	}
	return nil
}

// Save inserts one round result.
func (s *Store) Save(ctx context.Context, r *domain.RoundResult) error {
	recommended, err := json.Marshal(r.Recommended)
	if err != nil {
		return fmt.Errorf("marshal recommended: %w", err)
	}
	tp, err := json.Marshal(r.TpWithdrawals)
	if err != nil {
		return fmt.Errorf("marshal tp withdrawals: %w", err)
	}
	wd, err := json.Marshal(r.Withdrawals)
	if err != nil {
		return fmt.Errorf("marshal withdrawals: %w", err)
	}
	dep, err := json.Marshal(r.Deposits)
	if err != nil {
		return fmt.Errorf("marshal deposits: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO rounds (id, started_at, finished_at, dry_run, recommended, tp_withdrawals, withdrawals, deposits, deposit_submitted, deposit_skipped, deposit_errors, err)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?)
`,
		r.ID,
		r.StartedAt.Format(time.RFC3339Nano),
		r.FinishedAt.Format(time.RFC3339Nano),
		boolToInt(r.DryRun),
		string(recommended),
		string(tp),
		string(wd),
		string(dep),
		r.Deposits.Submitted,
		r.Deposits.Skipped,
		r.Deposits.Errors,
		r.Err,
	)
	if err != nil {
		return fmt.Errorf("insert round: %w", err)
	}
	return nil
}

// Recent returns the latest n rounds, newest first.
func (s *Store) Recent(ctx context.Context, n int) ([]domain.RoundResult, error) {
	if n <= 0 {
		n = 20
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, started_at, finished_at, dry_run, recommended, tp_withdrawals, withdrawals, deposits, err
FROM rounds ORDER BY started_at DESC LIMIT ?
`, n)
	if err != nil {
		return nil, fmt.Errorf("query rounds: %w", err)
	}
	defer rows.Close()

	var out []domain.RoundResult
	for rows.Next() {
		var (
			r                    domain.RoundResult
			startedAt, finished  string
			dryRun               int
			recommended, tp, wd  string
			dep                  string
		)
		if err := rows.Scan(&r.ID, &startedAt, &finished, &dryRun, &recommended, &tp, &wd, &dep, &r.Err); err != nil {
			return nil, fmt.Errorf("scan round: %w", err)
		}
		r.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
		r.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished)
		r.DryRun = dryRun != 0
		_ = json.Unmarshal([]byte(recommended), &r.Recommended)
		_ = json.Unmarshal([]byte(tp), &r.TpWithdrawals)
		_ = json.Unmarshal([]byte(wd), &r.Withdrawals)
		_ = json.Unmarshal([]byte(dep), &r.Deposits)
		out = append(out, r)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
