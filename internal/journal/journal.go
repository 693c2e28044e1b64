// Package journal persists reconstruction runs and the commands they
// dispatched to a local sqlite database, and serves the admin surface for
// inspecting them.
package journal

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Run statuses.
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Run is one reconstruction request from registration to release.
type Run struct {
	RunID      string `json:"run_id"`
	Session    string `json:"session"`
	Script     string `json:"script"`
	Engine     string `json:"engine"`
	Status     string `json:"status"`
	OutputName string `json:"output_name,omitempty"`
	Series     int    `json:"series"`
	Error      string `json:"error,omitempty"`
	StartedAt  int64  `json:"started_at"`
	DurationMS int64  `json:"duration_ms"`
}

// Command is one dispatched engine command within a run.
type Command struct {
	CommandID  string `json:"command_id"`
	RunID      string `json:"run_id"`
	Seq        int    `json:"seq"`
	Line       string `json:"line"`
	ExitCode   int    `json:"exit_code"`
	Output     string `json:"output,omitempty"`
	DurationMS int64  `json:"duration_ms"`
	CreatedAt  int64  `json:"created_at"`
}

type Journal struct {
	*sql.DB
}

// Open opens (creating if needed) the journal database at path and brings
// its schema up to date.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	j := &Journal{db}
	if err := j.MigrateUp(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate journal: %w", err)
	}
	return j, nil
}

// InsertRun persists a new run. If RunID is empty, a UUID is generated; if
// StartedAt is zero, now is stamped; if Status is empty, the run is running.
func (j *Journal) InsertRun(run *Run) error {
	if run.RunID == "" {
		run.RunID = uuid.New().String()
	}
	if run.StartedAt == 0 {
		run.StartedAt = time.Now().UnixNano()
	}
	if run.Status == "" {
		run.Status = StatusRunning
	}

	_, err := j.Exec(`
		INSERT INTO runs (
			run_id, session, script, engine, status,
			output_name, series, error, started_at, duration_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.Session, run.Script, run.Engine, run.Status,
		run.OutputName, run.Series, run.Error, run.StartedAt, run.DurationMS,
	)
	return err
}

// FinishRun records a run's terminal state.
func (j *Journal) FinishRun(run *Run) error {
	res, err := j.Exec(`
		UPDATE runs
		SET status = ?, output_name = ?, series = ?, error = ?, duration_ms = ?
		WHERE run_id = ?`,
		run.Status, run.OutputName, run.Series, run.Error, run.DurationMS, run.RunID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("finish run %s: no such run", run.RunID)
	}
	return nil
}

// InsertCommand persists one dispatched command. If CommandID is empty, a
// UUID is generated; if CreatedAt is zero, now is stamped.
func (j *Journal) InsertCommand(cmd *Command) error {
	if cmd.CommandID == "" {
		cmd.CommandID = uuid.New().String()
	}
	if cmd.CreatedAt == 0 {
		cmd.CreatedAt = time.Now().UnixNano()
	}

	_, err := j.Exec(`
		INSERT INTO run_commands (
			command_id, run_id, seq, line, exit_code, output, duration_ms, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		cmd.CommandID, cmd.RunID, cmd.Seq, cmd.Line, cmd.ExitCode, cmd.Output, cmd.DurationMS, cmd.CreatedAt,
	)
	return err
}

// GetRun returns one run by id.
func (j *Journal) GetRun(runID string) (*Run, error) {
	row := j.QueryRow(`
		SELECT run_id, session, script, engine, status,
		       output_name, series, error, started_at, duration_ms
		FROM runs WHERE run_id = ?`, runID)

	var run Run
	err := row.Scan(&run.RunID, &run.Session, &run.Script, &run.Engine, &run.Status,
		&run.OutputName, &run.Series, &run.Error, &run.StartedAt, &run.DurationMS)
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// RecentRuns returns the most recent runs, newest first.
func (j *Journal) RecentRuns(limit int) ([]*Run, error) {
	rows, err := j.Query(`
		SELECT run_id, session, script, engine, status,
		       output_name, series, error, started_at, duration_ms
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		var run Run
		if err := rows.Scan(&run.RunID, &run.Session, &run.Script, &run.Engine, &run.Status,
			&run.OutputName, &run.Series, &run.Error, &run.StartedAt, &run.DurationMS); err != nil {
			return nil, err
		}
		runs = append(runs, &run)
	}
	return runs, rows.Err()
}

// RunCommands returns a run's commands in dispatch order.
func (j *Journal) RunCommands(runID string) ([]*Command, error) {
	rows, err := j.Query(`
		SELECT command_id, run_id, seq, line, exit_code, output, duration_ms, created_at
		FROM run_commands WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cmds []*Command
	for rows.Next() {
		var cmd Command
		if err := rows.Scan(&cmd.CommandID, &cmd.RunID, &cmd.Seq, &cmd.Line,
			&cmd.ExitCode, &cmd.Output, &cmd.DurationMS, &cmd.CreatedAt); err != nil {
			return nil, err
		}
		cmds = append(cmds, &cmd)
	}
	return cmds, rows.Err()
}

// TableStats is a row count for one journal table.
type TableStats struct {
	Name string `json:"name"`
	Rows int64  `json:"rows"`
}

// Stats summarizes journal contents for the admin stats endpoint.
type Stats struct {
	Tables []TableStats `json:"tables"`
}

// GetStats counts rows in every journal table.
func (j *Journal) GetStats() (*Stats, error) {
	stats := &Stats{}
	for _, table := range []string{"runs", "run_commands"} {
		var n int64
		if err := j.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
			return nil, fmt.Errorf("count %s: %w", table, err)
		}
		stats.Tables = append(stats.Tables, TableStats{Name: table, Rows: n})
	}
	return stats, nil
}
