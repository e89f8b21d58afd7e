package gatekeeper

import (
	"encoding/json"
	"log"
	"os"
	"sync"
	"time"

	"SignalDesk/internal/model"
)

// dailySnapshot is the on-disk shape of one UTC day's admission state.
type dailySnapshot struct {
	Day          string          `json:"day"` // 2006-01-02, UTC
	RunCount     int             `json:"run_count"`
	AdmittedKeys map[string]bool `json:"admitted_keys"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// DailyState tracks per-day admission quota and dedup keys, persisted as JSON.
// It resets itself at the UTC day boundary.
type DailyState struct {
	mu       sync.Mutex
	filePath string
	snap     dailySnapshot
}

// LoadDailyState reads the state file, starting fresh if it is missing or
// unparsable (a corrupt file is discarded, not fatal).
func LoadDailyState(filePath string, now time.Time) (*DailyState, error) {
	d := &DailyState{filePath: filePath}
	d.snap = freshSnapshot(now)

	data, err := os.ReadFile(filePath)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		return d, nil
	}

	var snap dailySnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		log.Printf("[WARN] daily state file unparsable, starting fresh: %v", err)
		return d, nil
	}
	if snap.AdmittedKeys == nil {
		snap.AdmittedKeys = make(map[string]bool)
	}
	d.snap = snap
	d.rollIfNeeded(now)
	return d, nil
}

func freshSnapshot(now time.Time) dailySnapshot {
	return dailySnapshot{
		Day:          now.UTC().Format("2006-01-02"),
		AdmittedKeys: make(map[string]bool),
	}
}

// RollIfNeeded resets the state when the UTC day has changed.
func (d *DailyState) RollIfNeeded(now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rollIfNeeded(now)
}

func (d *DailyState) rollIfNeeded(now time.Time) {
	day := now.UTC().Format("2006-01-02")
	if d.snap.Day != day {
		log.Printf("[INFO] daily state rollover: %s -> %s", d.snap.Day, day)
		d.snap = freshSnapshot(now)
		d.save()
	}
}

// RunCount returns today's admission counter.
func (d *DailyState) RunCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.snap.RunCount
}

// HasKey reports whether the dedup key was already admitted today.
func (d *DailyState) HasKey(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.snap.AdmittedKeys[key]
}

// Commit records an admission: increments the counter and stores the dedup
// key. Called only after a confirmed admit, never speculatively.
func (d *DailyState) Commit(sig *model.Signal, now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rollIfNeeded(now)
	d.snap.RunCount++
	d.snap.AdmittedKeys[sig.DedupKey(now)] = true
	d.save()
}

// TryCommit re-checks quota and the dedup key under the state lock and
// commits only when both still hold, so the evaluate-then-commit sequence
// cannot over-admit when two pipeline runs race for the last slot.
func (d *DailyState) TryCommit(sig *model.Signal, quota int, now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rollIfNeeded(now)
	key := sig.DedupKey(now)
	if d.snap.RunCount >= quota || d.snap.AdmittedKeys[key] {
		return false
	}
	d.snap.RunCount++
	d.snap.AdmittedKeys[key] = true
	d.save()
	return true
}

// save writes the snapshot to disk. Caller holds the lock.
func (d *DailyState) save() {
	if d.filePath == "" {
		return
	}
	d.snap.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(&d.snap, "", "  ")
	if err != nil {
		log.Printf("[ERROR] marshal daily state: %v", err)
		return
	}
	if err := os.WriteFile(d.filePath, data, 0644); err != nil {
		log.Printf("[ERROR] save daily state: %v", err)
	}
}
