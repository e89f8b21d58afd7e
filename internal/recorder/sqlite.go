package recorder

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"SignalDesk/internal/model"
)

// SQLiteRecorder persists the ledgers to a SQLite database.
type SQLiteRecorder struct {
	db   *sql.DB
	keep RetentionPolicy
	mu   sync.Mutex
}

// NewSQLiteRecorder opens (or creates) the database and runs migrations.
func NewSQLiteRecorder(dbPath string, keep RetentionPolicy) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db, keep: keep}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Printf("[INFO] sqlite recorder opened: %s", dbPath)
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS audit_log (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp  INTEGER NOT NULL,
			signal_id  TEXT,
			instrument TEXT,
			direction  TEXT,
			category   TEXT,
			score      REAL,
			admitted   INTEGER,
			reason     TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_ts ON audit_log(timestamp)`,

		`CREATE TABLE IF NOT EXISTS decisions (
			id                INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp         INTEGER NOT NULL,
			signal_id         TEXT NOT NULL,
			recommendation_id TEXT,
			instrument        TEXT,
			recommended       TEXT,
			confidence        TEXT,
			human             TEXT,
			override          INTEGER,
			override_reason   TEXT,
			stances           TEXT,
			latency_ms        INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_decisions_ts ON decisions(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_decisions_signal ON decisions(signal_id)`,

		`CREATE TABLE IF NOT EXISTS outcomes (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp     INTEGER NOT NULL,
			signal_id     TEXT NOT NULL UNIQUE,
			class         TEXT,
			favorable_pct REAL,
			adverse_pct   REAL,
			risk_reward   REAL,
			held_ms       INTEGER,
			rec_right     INTEGER,
			human_right   INTEGER,
			vindicated    INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_outcomes_ts ON outcomes(timestamp)`,

		`CREATE TABLE IF NOT EXISTS lessons (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp   INTEGER NOT NULL,
			week        TEXT,
			sample_size INTEGER,
			text        TEXT
		)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) AppendAudit(e *AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO audit_log
		(timestamp, signal_id, instrument, direction, category, score, admitted, reason)
		VALUES (?,?,?,?,?,?,?,?)`,
		e.At.Unix(), e.SignalID, e.Instrument, string(e.Direction), string(e.Category),
		e.Score, boolInt(e.Admitted), e.Reason,
	)
	return err
}

func (r *SQLiteRecorder) RecentAudits(n int) ([]AuditEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.db.Query(`SELECT timestamp, signal_id, instrument, direction, category, score, admitted, reason
		FROM audit_log ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AuditEntry
	for rows.Next() {
		var e AuditEntry
		var ts int64
		var admitted int
		var dir, cat string
		if err := rows.Scan(&ts, &e.SignalID, &e.Instrument, &dir, &cat, &e.Score, &admitted, &e.Reason); err != nil {
			log.Printf("[WARN] skip malformed audit row: %v", err)
			continue
		}
		e.At = time.Unix(ts, 0).UTC()
		e.Direction = model.Direction(dir)
		e.Category = model.SourceCategory(cat)
		e.Admitted = admitted != 0
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *SQLiteRecorder) AppendDecision(d *model.Decision) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stances, err := json.Marshal(d.Stances)
	if err != nil {
		return fmt.Errorf("marshal stances: %w", err)
	}
	_, err = r.db.Exec(`INSERT INTO decisions
		(timestamp, signal_id, recommendation_id, instrument, recommended, confidence,
		 human, override, override_reason, stances, latency_ms)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		d.DecidedAt.Unix(), d.SignalID, d.RecommendationID, d.Instrument,
		string(d.Recommended), string(d.Confidence), string(d.Human),
		boolInt(d.Override), d.OverrideReason, string(stances), d.Latency.Milliseconds(),
	)
	return err
}

func (r *SQLiteRecorder) DecisionsSince(t time.Time) ([]model.Decision, error) {
	return r.queryDecisions(`SELECT timestamp, signal_id, recommendation_id, instrument, recommended,
		confidence, human, override, override_reason, stances, latency_ms
		FROM decisions WHERE timestamp >= ? ORDER BY id`, t.Unix())
}

func (r *SQLiteRecorder) UnmatchedDecisions(t time.Time) ([]model.Decision, error) {
	return r.queryDecisions(`SELECT d.timestamp, d.signal_id, d.recommendation_id, d.instrument, d.recommended,
		d.confidence, d.human, d.override, d.override_reason, d.stances, d.latency_ms
		FROM decisions d LEFT JOIN outcomes o ON d.signal_id = o.signal_id
		WHERE o.signal_id IS NULL AND d.timestamp >= ? AND d.human != 'RE_EVALUATE'
		ORDER BY d.id`, t.Unix())
}

func (r *SQLiteRecorder) queryDecisions(q string, args ...any) ([]model.Decision, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Decision
	for rows.Next() {
		var d model.Decision
		var ts, latencyMS int64
		var override int
		var rec, conf, human, stances string
		if err := rows.Scan(&ts, &d.SignalID, &d.RecommendationID, &d.Instrument, &rec,
			&conf, &human, &override, &d.OverrideReason, &stances, &latencyMS); err != nil {
			log.Printf("[WARN] skip malformed decision row: %v", err)
			continue
		}
		d.DecidedAt = time.Unix(ts, 0).UTC()
		d.Recommended = model.Action(rec)
		d.Confidence = model.Confidence(conf)
		d.Human = model.HumanAction(human)
		d.Override = override != 0
		d.Latency = time.Duration(latencyMS) * time.Millisecond
		if stances != "" {
			if err := json.Unmarshal([]byte(stances), &d.Stances); err != nil {
				log.Printf("[WARN] unparsable stances for %s, dropping field: %v", d.SignalID, err)
			}
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *SQLiteRecorder) AppendOutcome(o *model.OutcomeRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO outcomes
		(timestamp, signal_id, class, favorable_pct, adverse_pct, risk_reward,
		 held_ms, rec_right, human_right, vindicated)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		o.MatchedAt.Unix(), o.SignalID, string(o.Class),
		o.FavorablePct, o.AdversePct, o.RiskReward, o.Held.Milliseconds(),
		boolInt(o.RecommendationRight), boolInt(o.HumanRight), boolInt(o.OverrideVindicated),
	)
	return err
}

func (r *SQLiteRecorder) HasOutcome(signalID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int
	err := r.db.QueryRow(`SELECT COUNT(1) FROM outcomes WHERE signal_id = ?`, signalID).Scan(&n)
	return n > 0, err
}

func (r *SQLiteRecorder) OutcomesSince(t time.Time) ([]model.OutcomeRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.db.Query(`SELECT timestamp, signal_id, class, favorable_pct, adverse_pct,
		risk_reward, held_ms, rec_right, human_right, vindicated
		FROM outcomes WHERE timestamp >= ? ORDER BY id`, t.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.OutcomeRecord
	for rows.Next() {
		var o model.OutcomeRecord
		var ts, heldMS int64
		var recRight, humanRight, vindicated int
		var class string
		if err := rows.Scan(&ts, &o.SignalID, &class, &o.FavorablePct, &o.AdversePct,
			&o.RiskReward, &heldMS, &recRight, &humanRight, &vindicated); err != nil {
			log.Printf("[WARN] skip malformed outcome row: %v", err)
			continue
		}
		o.MatchedAt = time.Unix(ts, 0).UTC()
		o.Class = model.OutcomeClass(class)
		o.Held = time.Duration(heldMS) * time.Millisecond
		o.RecommendationRight = recRight != 0
		o.HumanRight = humanRight != 0
		o.OverrideVindicated = vindicated != 0
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *SQLiteRecorder) AppendLessons(ls []model.Lesson) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, l := range ls {
		if _, err := r.db.Exec(`INSERT INTO lessons (timestamp, week, sample_size, text) VALUES (?,?,?,?)`,
			l.CreatedAt.Unix(), l.Week, l.SampleSize, l.Text); err != nil {
			return err
		}
	}
	// Bounded store: oldest pruned first.
	_, err := r.db.Exec(`DELETE FROM lessons WHERE id NOT IN
		(SELECT id FROM lessons ORDER BY id DESC LIMIT ?)`, r.keep.Lessons)
	return err
}

func (r *SQLiteRecorder) RecentLessons(n int) ([]model.Lesson, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.db.Query(`SELECT timestamp, week, sample_size, text
		FROM lessons ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Lesson
	for rows.Next() {
		var l model.Lesson
		var ts int64
		if err := rows.Scan(&ts, &l.Week, &l.SampleSize, &l.Text); err != nil {
			log.Printf("[WARN] skip malformed lesson row: %v", err)
			continue
		}
		l.CreatedAt = time.Unix(ts, 0).UTC()
		out = append(out, l)
	}
	return out, rows.Err()
}

// Trim keeps only the most recent N entries per ledger.
func (r *SQLiteRecorder) Trim() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	trims := []struct {
		table string
		keep  int
	}{
		{"audit_log", r.keep.Audit},
		{"decisions", r.keep.Decisions},
		{"outcomes", r.keep.Outcomes},
		{"lessons", r.keep.Lessons},
	}
	for _, t := range trims {
		if t.keep <= 0 {
			continue
		}
		q := fmt.Sprintf(`DELETE FROM %s WHERE id NOT IN (SELECT id FROM %s ORDER BY id DESC LIMIT ?)`,
			t.table, t.table)
		if _, err := r.db.Exec(q, t.keep); err != nil {
			return fmt.Errorf("trim %s: %w", t.table, err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) Close() error {
	log.Println("[INFO] closing sqlite recorder")
	return r.db.Close()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
