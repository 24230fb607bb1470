package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/halluguard/go-controller/internal/decoding"
	"github.com/danielpatrickdp/halluguard/go-controller/internal/logging"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id        TEXT PRIMARY KEY,
	scorer        TEXT NOT NULL,
	config_json   TEXT NOT NULL,
	started_at    TEXT NOT NULL,
	finished_at   TEXT,
	prompt_count  INTEGER NOT NULL DEFAULT 0,
	failure_count INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS prompt_results (
	run_id        TEXT NOT NULL,
	prompt_index  INTEGER NOT NULL,
	prompt        TEXT NOT NULL,
	baseline      TEXT,
	passage       TEXT,
	word_count    INTEGER NOT NULL DEFAULT 0,
	stop_reason   TEXT,
	rejected_json TEXT NOT NULL DEFAULT '[]',
	error         TEXT,
	created_at    TEXT NOT NULL,
	PRIMARY KEY (run_id, prompt_index),
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);

CREATE TABLE IF NOT EXISTS sentence_attempts (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id          TEXT NOT NULL,
	prompt_index    INTEGER NOT NULL,
	sentence_index  INTEGER NOT NULL,
	attempt_num     INTEGER NOT NULL,
	candidates_json TEXT NOT NULL,
	best_candidate  TEXT NOT NULL,
	best_score      REAL NOT NULL,
	accepted        INTEGER NOT NULL DEFAULT 0,
	FOREIGN KEY (run_id, prompt_index) REFERENCES prompt_results(run_id, prompt_index)
);

CREATE INDEX IF NOT EXISTS idx_sentence_attempts_lookup
ON sentence_attempts(run_id, prompt_index, sentence_index, attempt_num);
`

// #endregion schema

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// #region store-struct
// Store persists run history in SQLite.
type Store struct {
	db *sql.DB
}

// #endregion store-struct

// #region constructor
// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if _, err := db.Exec(logging.Schema); err != nil {
		return nil, fmt.Errorf("migrate decision log: %w", err)
	}
	return &Store{db: db}, nil
}

// #endregion constructor

// #region close
// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// #endregion close

// #region db-accessor
// DB returns the underlying *sql.DB for use by other packages (e.g. logging).
func (s *Store) DB() *sql.DB {
	return s.db
}

// #endregion db-accessor

// #region begin-run
// BeginRun registers a new run and returns its record.
func (s *Store) BeginRun(scorer string, cfg decoding.Config) (RunRecord, error) {
	rec := RunRecord{
		RunID:     uuid.New().String(),
		Scorer:    scorer,
		Config:    cfg,
		StartedAt: time.Now().UTC(),
	}
	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return RunRecord{}, fmt.Errorf("marshal config: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO runs (run_id, scorer, config_json, started_at) VALUES (?, ?, ?, ?)`,
		rec.RunID, rec.Scorer, string(cfgJSON), rec.StartedAt.Format(timeLayout),
	)
	if err != nil {
		return RunRecord{}, fmt.Errorf("insert run: %w", err)
	}
	return rec, nil
}

// #endregion begin-run

// #region finish-run
// FinishRun stamps the run's completion time and counters.
func (s *Store) FinishRun(runID string, promptCount, failureCount int) error {
	res, err := s.db.Exec(
		`UPDATE runs SET finished_at = ?, prompt_count = ?, failure_count = ? WHERE run_id = ?`,
		time.Now().UTC().Format(timeLayout), promptCount, failureCount, runID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s not found", runID)
	}
	return nil
}

// #endregion finish-run

// #region record-prompt
// RecordPrompt persists a prompt outcome with every attempt and one decision
// log row per sentence position, atomically.
func (s *Store) RecordPrompt(rec PromptRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	rejected := rec.Rejected
	if rejected == nil {
		rejected = []string{}
	}
	rejectedJSON, err := json.Marshal(rejected)
	if err != nil {
		return fmt.Errorf("marshal rejected: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO prompt_results
		 (run_id, prompt_index, prompt, baseline, passage, word_count, stop_reason, rejected_json, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.PromptIndex, rec.Prompt, rec.Baseline, rec.Passage, rec.WordCount,
		nullIfEmpty(rec.StopReason), string(rejectedJSON), nullIfEmpty(rec.Error),
		rec.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert prompt: %w", err)
	}

	for _, pos := range rec.Positions {
		for _, a := range pos.Attempts {
			candJSON, err := json.Marshal(a.Candidates)
			if err != nil {
				return fmt.Errorf("marshal candidates: %w", err)
			}
			accepted := 0
			if pos.Decision == decoding.DecisionAccept && a.Number == len(pos.Attempts) {
				accepted = 1
			}
			_, err = tx.Exec(
				`INSERT INTO sentence_attempts
				 (run_id, prompt_index, sentence_index, attempt_num, candidates_json, best_candidate, best_score, accepted)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				rec.RunID, rec.PromptIndex, pos.Index, a.Number, string(candJSON),
				a.BestCandidate, a.BestScore, accepted,
			)
			if err != nil {
				return fmt.Errorf("insert attempt: %w", err)
			}
		}

		if err := logging.LogDecision(tx, decisionEntry(rec, pos)); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func decisionEntry(rec PromptRecord, pos decoding.Position) logging.DecisionEntry {
	entry := logging.DecisionEntry{
		RunID:         rec.RunID,
		PromptIndex:   rec.PromptIndex,
		SentenceIndex: pos.Index,
		Decision:      string(pos.Decision),
		Sentence:      pos.Sentence,
		Score:         pos.Score,
		Attempts:      len(pos.Attempts),
		CreatedAt:     rec.CreatedAt,
	}
	switch {
	case strings.TrimSpace(pos.Sentence) == "":
		entry.Decision = "stall"
		entry.Reason = "empty sentence selected"
	case pos.Decision == decoding.DecisionFallback:
		entry.Reason = fmt.Sprintf("no candidate below threshold in %d attempts", len(pos.Attempts))
	}
	return entry
}

// #endregion record-prompt

// #region get-run
// GetRun retrieves a run by ID.
func (s *Store) GetRun(id string) (RunRecord, error) {
	row := s.db.QueryRow(
		`SELECT run_id, scorer, config_json, started_at, finished_at, prompt_count, failure_count
		 FROM runs WHERE run_id = ?`, id,
	)
	rec, err := scanRun(row)
	if err != nil {
		return RunRecord{}, fmt.Errorf("get run %s: %w", id, err)
	}
	return rec, nil
}

// #endregion get-run

// #region list-runs
// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(limit int) ([]RunRecord, error) {
	rows, err := s.db.Query(
		`SELECT run_id, scorer, config_json, started_at, finished_at, prompt_count, failure_count
		 FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (RunRecord, error) {
	var rec RunRecord
	var cfgJSON, startedStr string
	var finishedStr sql.NullString
	if err := row.Scan(&rec.RunID, &rec.Scorer, &cfgJSON, &startedStr, &finishedStr, &rec.PromptCount, &rec.FailureCount); err != nil {
		return RunRecord{}, err
	}
	if err := json.Unmarshal([]byte(cfgJSON), &rec.Config); err != nil {
		return RunRecord{}, fmt.Errorf("unmarshal config: %w", err)
	}
	rec.StartedAt, _ = time.Parse(timeLayout, startedStr)
	if finishedStr.Valid {
		rec.FinishedAt, _ = time.Parse(timeLayout, finishedStr.String)
	}
	return rec, nil
}

// #endregion list-runs

// #region list-prompts
// ListPrompts returns a run's prompt outcomes in processing order. Positions
// are not populated; use ListAttempts for the per-sentence detail.
func (s *Store) ListPrompts(runID string) ([]PromptRecord, error) {
	rows, err := s.db.Query(
		`SELECT prompt_index, prompt, baseline, passage, word_count, stop_reason, rejected_json, error, created_at
		 FROM prompt_results WHERE run_id = ? ORDER BY prompt_index`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("list prompts: %w", err)
	}
	defer rows.Close()

	var records []PromptRecord
	for rows.Next() {
		rec := PromptRecord{RunID: runID}
		var baseline, passage, stopReason, errText sql.NullString
		var rejectedJSON, createdStr string
		if err := rows.Scan(&rec.PromptIndex, &rec.Prompt, &baseline, &passage, &rec.WordCount,
			&stopReason, &rejectedJSON, &errText, &createdStr); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		rec.Baseline = baseline.String
		rec.Passage = passage.String
		rec.StopReason = stopReason.String
		rec.Error = errText.String
		if err := json.Unmarshal([]byte(rejectedJSON), &rec.Rejected); err != nil {
			return nil, fmt.Errorf("unmarshal rejected: %w", err)
		}
		rec.CreatedAt, _ = time.Parse(timeLayout, createdStr)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// #endregion list-prompts

// #region list-attempts
// ListAttempts returns every attempt for one prompt, ordered by sentence then attempt.
func (s *Store) ListAttempts(runID string, promptIndex int) ([]AttemptRecord, error) {
	rows, err := s.db.Query(
		`SELECT sentence_index, attempt_num, candidates_json, best_candidate, best_score, accepted
		 FROM sentence_attempts WHERE run_id = ? AND prompt_index = ?
		 ORDER BY sentence_index, attempt_num`, runID, promptIndex,
	)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	var records []AttemptRecord
	for rows.Next() {
		rec := AttemptRecord{RunID: runID, PromptIndex: promptIndex}
		var candJSON string
		var accepted int
		if err := rows.Scan(&rec.SentenceIndex, &rec.AttemptNum, &candJSON, &rec.BestCandidate, &rec.BestScore, &accepted); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		if err := json.Unmarshal([]byte(candJSON), &rec.Candidates); err != nil {
			return nil, fmt.Errorf("unmarshal candidates: %w", err)
		}
		rec.Accepted = accepted == 1
		records = append(records, rec)
	}
	return records, rows.Err()
}

// #endregion list-attempts

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
