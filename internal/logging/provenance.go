package logging

import (
	"database/sql"
	"fmt"
	"time"
)

// Execer is satisfied by *sql.DB and *sql.Tx.
type Execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

// #region schema
// Schema creates the decision_log table. Stores embedding the log run it with
// their own migrations.
const Schema = `
CREATE TABLE IF NOT EXISTS decision_log (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id         TEXT NOT NULL,
	prompt_index   INTEGER NOT NULL,
	sentence_index INTEGER NOT NULL,
	decision       TEXT NOT NULL,
	sentence       TEXT,
	score          REAL NOT NULL,
	attempts       INTEGER NOT NULL,
	reason         TEXT,
	created_at     TEXT NOT NULL
);
`

// #endregion schema

// #region log-decision
// LogDecision writes a decision entry to the decision_log table.
func LogDecision(db Execer, entry DecisionEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := db.Exec(
		`INSERT INTO decision_log (run_id, prompt_index, sentence_index, decision, sentence, score, attempts, reason, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.RunID,
		entry.PromptIndex,
		entry.SentenceIndex,
		entry.Decision,
		nullIfEmpty(entry.Sentence),
		entry.Score,
		entry.Attempts,
		nullIfEmpty(entry.Reason),
		entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log decision: %w", err)
	}
	return nil
}

// #endregion log-decision

// #region count-decisions
// CountDecisions tallies decisions for a run, keyed by decision name.
func CountDecisions(db *sql.DB, runID string) (map[string]int, error) {
	rows, err := db.Query(
		`SELECT decision, COUNT(*) FROM decision_log WHERE run_id = ? GROUP BY decision`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("count decisions: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var decision string
		var n int
		if err := rows.Scan(&decision, &n); err != nil {
			return nil, fmt.Errorf("count decisions: %w", err)
		}
		counts[decision] = n
	}
	return counts, rows.Err()
}

// #endregion count-decisions

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
