package state

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/waverunner-ai/waverunner/pkg/models"
)

// SaveBuild upserts the full build snapshot, including its results.
func (db *DB) SaveBuild(b *models.BuildState) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	var completedAt interface{}
	if b.CompletedAt != nil {
		completedAt = b.CompletedAt.UTC()
	}

	_, err = tx.Exec(`
		INSERT INTO builds (id, spec, status, wave_index, merged_branch, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			wave_index = excluded.wave_index,
			merged_branch = excluded.merged_branch,
			completed_at = excluded.completed_at
	`, b.ID, b.Spec, string(b.Status), b.WaveIndex, b.MergedBranch, b.StartedAt.UTC(), completedAt)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("save build %s: %w", b.ID, err)
	}

	for _, r := range b.Results {
		if err := saveResult(tx, b.ID, r); err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

func saveResult(tx *sql.Tx, buildID string, r *models.WorkResult) error {
	created, err := json.Marshal(r.FilesCreated)
	if err != nil {
		return fmt.Errorf("marshal created files: %w", err)
	}
	modified, err := json.Marshal(r.FilesModified)
	if err != nil {
		return fmt.Errorf("marshal modified files: %w", err)
	}

	_, err = tx.Exec(`
		INSERT INTO results (build_id, unit_id, role, status, branch, files_created, files_modified, summary, error, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(build_id, unit_id) DO UPDATE SET
			status = excluded.status,
			branch = excluded.branch,
			files_created = excluded.files_created,
			files_modified = excluded.files_modified,
			summary = excluded.summary,
			error = excluded.error,
			duration_ms = excluded.duration_ms
	`, buildID, r.UnitID, r.Role, string(r.Status), r.Branch, string(created), string(modified), r.Summary, r.Error, r.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("save result %s/%s: %w", buildID, r.UnitID, err)
	}
	return nil
}

// GetBuild loads one build and its results. Returns nil if not found.
func (db *DB) GetBuild(id string) (*models.BuildState, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	row := db.conn.QueryRow(`
		SELECT id, spec, status, wave_index, COALESCE(merged_branch, ''), started_at, completed_at
		FROM builds WHERE id = ?
	`, id)

	b, err := scanBuild(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get build %s: %w", id, err)
	}

	results, err := db.loadResults(b.ID)
	if err != nil {
		return nil, err
	}
	b.Results = results
	return b, nil
}

// LatestBuild loads the most recently started build. Returns nil when the
// history is empty.
func (db *DB) LatestBuild() (*models.BuildState, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	row := db.conn.QueryRow(`
		SELECT id, spec, status, wave_index, COALESCE(merged_branch, ''), started_at, completed_at
		FROM builds ORDER BY started_at DESC LIMIT 1
	`)

	b, err := scanBuild(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest build: %w", err)
	}

	results, err := db.loadResults(b.ID)
	if err != nil {
		return nil, err
	}
	b.Results = results
	return b, nil
}

// ListBuilds returns build summaries (without results), newest first.
func (db *DB) ListBuilds(limit int) ([]*models.BuildState, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}

	rows, err := db.conn.Query(`
		SELECT id, spec, status, wave_index, COALESCE(merged_branch, ''), started_at, completed_at
		FROM builds ORDER BY started_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list builds: %w", err)
	}
	defer rows.Close()

	var builds []*models.BuildState
	for rows.Next() {
		b, err := scanBuild(rows)
		if err != nil {
			return nil, fmt.Errorf("scan build: %w", err)
		}
		builds = append(builds, b)
	}
	return builds, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBuild(row rowScanner) (*models.BuildState, error) {
	var b models.BuildState
	var status string
	var completedAt sql.NullTime

	err := row.Scan(&b.ID, &b.Spec, &status, &b.WaveIndex, &b.MergedBranch, &b.StartedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	b.Status = models.BuildStatus(status)
	if completedAt.Valid {
		t := completedAt.Time
		b.CompletedAt = &t
	}
	return &b, nil
}

func (db *DB) loadResults(buildID string) ([]*models.WorkResult, error) {
	rows, err := db.conn.Query(`
		SELECT unit_id, COALESCE(role, ''), status, COALESCE(branch, ''),
		       COALESCE(files_created, '[]'), COALESCE(files_modified, '[]'),
		       COALESCE(summary, ''), COALESCE(error, ''), duration_ms
		FROM results WHERE build_id = ? ORDER BY unit_id
	`, buildID)
	if err != nil {
		return nil, fmt.Errorf("load results for %s: %w", buildID, err)
	}
	defer rows.Close()

	var results []*models.WorkResult
	for rows.Next() {
		var r models.WorkResult
		var status, created, modified string
		var durationMS int64

		err := rows.Scan(&r.UnitID, &r.Role, &status, &r.Branch, &created, &modified, &r.Summary, &r.Error, &durationMS)
		if err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}

		r.Status = models.ResultStatus(status)
		r.Duration = time.Duration(durationMS) * time.Millisecond
		if err := json.Unmarshal([]byte(created), &r.FilesCreated); err != nil {
			return nil, fmt.Errorf("unmarshal created files: %w", err)
		}
		if err := json.Unmarshal([]byte(modified), &r.FilesModified); err != nil {
			return nil, fmt.Errorf("unmarshal modified files: %w", err)
		}
		results = append(results, &r)
	}
	return results, rows.Err()
}
