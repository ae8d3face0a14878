package state

import (
	"log"

	"github.com/waverunner-ai/waverunner/internal/orchestrator"
)

// Recorder persists the orchestrator's event stream. It subscribes like
// any other observer; recording failures are logged, never surfaced to
// the build.
type Recorder struct {
	db *DB
}

// NewRecorder creates a Recorder writing to the given database.
func NewRecorder(db *DB) *Recorder {
	return &Recorder{db: db}
}

// Listener returns the event listener to subscribe on an orchestrator.
func (r *Recorder) Listener() orchestrator.Listener {
	return r.record
}

func (r *Recorder) record(event orchestrator.Event) {
	errMsg := ""
	if event.Error != nil {
		errMsg = event.Error.Error()
	}

	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	_, err := r.db.conn.Exec(`
		INSERT INTO events (build_id, type, unit_id, message, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, event.BuildID, string(event.Type), event.UnitID, event.Message, errMsg, event.Timestamp.UTC())
	if err != nil {
		log.Printf("[state] record %s event: %v", event.Type, err)
	}
}

// EventCount returns how many events were recorded for a build.
func (db *DB) EventCount(buildID string) (int, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var n int
	row := db.conn.QueryRow("SELECT COUNT(*) FROM events WHERE build_id = ?", buildID)
	if err := row.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
