package store

import (
	"log"
	"sync"
	"time"
)

const (
	recorderBuffer = 1024
	flushSize      = 50
	flushEvery     = 5 * time.Second
)

// StepStat is the summary of one simulation step
type StepStat struct {
	Step      int       `json:"step"`
	SimTime   float64   `json:"sim_time"`
	Active    int       `json:"active"`
	Overlaps  int       `json:"overlaps"`
	Invasions int       `json:"invasions"`
	ZeroSpeed int       `json:"zero_speed"`
	Created   int       `json:"created"`
	Removed   int       `json:"removed"`
	At        time.Time `json:"at"`
}

// Recorder writes step statistics in batches from a background goroutine
type Recorder struct {
	db    *DB
	stats chan StepStat
	stop  chan struct{}
	wg    sync.WaitGroup

	mu      sync.RWMutex
	viewers int
	last    StepStat
	dropped int
}

// NewRecorder creates and starts the background writer. db may be nil, in
// which case stats are only kept in memory.
func NewRecorder(db *DB) *Recorder {
	r := &Recorder{
		db:    db,
		stats: make(chan StepStat, recorderBuffer),
		stop:  make(chan struct{}),
	}
	r.wg.Add(1)
	go r.writer()
	return r
}

// Track enqueues a step summary (non-blocking)
func (r *Recorder) Track(s StepStat) {
	if s.At.IsZero() {
		s.At = time.Now().UTC()
	}
	r.mu.Lock()
	r.last = s
	r.mu.Unlock()

	select {
	case r.stats <- s:
	default:
		r.mu.Lock()
		r.dropped++
		r.mu.Unlock()
	}
}

// SetViewers updates the live viewer count
func (r *Recorder) SetViewers(n int) {
	r.mu.Lock()
	r.viewers = n
	r.mu.Unlock()
}

// Live returns the live viewer count, the last tracked step and the
// number of stats dropped because the queue was full
func (r *Recorder) Live() (viewers int, last StepStat, dropped int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.viewers, r.last, r.dropped
}

// Stop flushes pending stats and shuts down the writer
func (r *Recorder) Stop() {
	close(r.stop)
	r.wg.Wait()
}

func (r *Recorder) writer() {
	defer r.wg.Done()

	batch := make([]StepStat, 0, 64)
	ticker := time.NewTicker(flushEvery)
	defer ticker.Stop()

	for {
		select {
		case s := <-r.stats:
			batch = append(batch, s)
			if len(batch) >= flushSize {
				r.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				r.flush(batch)
				batch = batch[:0]
			}
		case <-r.stop:
		drain:
			for {
				select {
				case s := <-r.stats:
					batch = append(batch, s)
				default:
					break drain
				}
			}
			if len(batch) > 0 {
				r.flush(batch)
			}
			return
		}
	}
}

func (r *Recorder) flush(stats []StepStat) {
	if r.db == nil || len(stats) == 0 {
		return
	}
	tx, err := r.db.conn.Begin()
	if err != nil {
		log.Printf("store: begin tx error: %v", err)
		return
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO step_stats
		(step, sim_time, active, overlaps, invasions, zero_speed, created, removed, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		log.Printf("store: prepare error: %v", err)
		return
	}
	defer stmt.Close()

	for _, s := range stats {
		_, err := stmt.Exec(s.Step, s.SimTime, s.Active, s.Overlaps, s.Invasions,
			s.ZeroSpeed, s.Created, s.Removed, s.At.Format(time.RFC3339))
		if err != nil {
			log.Printf("store: insert error: %v", err)
		}
	}
	if err := tx.Commit(); err != nil {
		log.Printf("store: commit error: %v", err)
	}
}
