package server

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"ringsim/internal/config"
	"ringsim/internal/store"
)

const frameBuffer = 4

var (
	// ErrNoCheckpoints is returned by Save and Load for systems without
	// checkpoint support.
	ErrNoCheckpoints = errors.New("checkpoints need a ring system")
	// ErrNoDB is returned when persistence was not configured.
	ErrNoDB = errors.New("no database configured")
)

// Runner steps one Sim at a fixed rate, publishes frames and tracks stats
type Runner struct {
	mu     sync.Mutex
	sim    Sim
	paused bool

	system         string
	boundary       string
	tick           time.Duration
	broadcastEvery int
	statsEvery     int

	frames chan []byte
	rec    *store.Recorder
	db     *store.DB

	viewersMu sync.RWMutex
	viewers   int

	stop     chan struct{}
	stopOnce sync.Once
}

// NewRunner creates a Runner for sim. rec and db may be nil.
func NewRunner(sim Sim, conf *config.Config, rec *store.Recorder, db *store.DB) *Runner {
	return &Runner{
		sim:            sim,
		system:         conf.Solver.System.String(),
		boundary:       conf.Solver.Boundary.String(),
		tick:           time.Second / time.Duration(conf.Server.TickRate),
		broadcastEvery: conf.Server.BroadcastEvery,
		statsEvery:     conf.Server.StatsEvery,
		frames:         make(chan []byte, frameBuffer),
		rec:            rec,
		db:             db,
		stop:           make(chan struct{}),
	}
}

// Run steps the simulation until Stop is called
func (r *Runner) Run() {
	ticker := time.NewTicker(r.tick)
	defer ticker.Stop()

	errs := r.sim.Errors()
	for {
		select {
		case <-ticker.C:
			r.update()
		case err := <-errs:
			log.Printf("runner: %v", err)
		case <-r.stop:
			return
		}
	}
}

// Stop terminates the loop started by Run
func (r *Runner) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
}

// Frames delivers encoded frames. Frames are dropped while nobody reads.
func (r *Runner) Frames() <-chan []byte { return r.frames }

func (r *Runner) update() {
	r.mu.Lock()
	if r.paused {
		r.mu.Unlock()
		return
	}
	r.sim.Step()
	stat := r.sim.Stat()
	var frame *Frame
	if stat.Step%r.broadcastEvery == 0 {
		frame = r.sim.Frame()
	}
	r.mu.Unlock()

	if r.rec != nil && stat.Step%r.statsEvery == 0 {
		r.rec.Track(stat)
	}
	if frame != nil {
		r.publish(frame)
	}
}

func (r *Runner) publish(f *Frame) {
	data, err := msgpack.Marshal(f)
	if err != nil {
		log.Printf("runner: encode frame: %v", err)
		return
	}
	select {
	case r.frames <- data:
	default:
	}
}

// Pause stops stepping
func (r *Runner) Pause() {
	r.mu.Lock()
	r.paused = true
	r.mu.Unlock()
}

// Resume restarts stepping
func (r *Runner) Resume() {
	r.mu.Lock()
	r.paused = false
	r.mu.Unlock()
}

// SetViewers records the number of connected viewers
func (r *Runner) SetViewers(n int) {
	r.viewersMu.Lock()
	r.viewers = n
	r.viewersMu.Unlock()
	if r.rec != nil {
		r.rec.SetViewers(n)
	}
}

// Status returns a summary of the runner
func (r *Runner) Status() Status {
	r.viewersMu.RLock()
	viewers := r.viewers
	r.viewersMu.RUnlock()
	var dropped int
	if r.rec != nil {
		_, _, dropped = r.rec.Live()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	stat := r.sim.Stat()
	return Status{
		System:   r.system,
		Boundary: r.boundary,
		Paused:   r.paused,
		Step:     stat.Step,
		SimTime:  stat.SimTime,
		Active:   r.sim.Active(),
		Viewers:  viewers,
		Dropped:  dropped,
	}
}

// Save stores the current population as a checkpoint
func (r *Runner) Save(label string) (SavedMsg, error) {
	if r.db == nil {
		return SavedMsg{}, ErrNoDB
	}
	r.mu.Lock()
	cp, ok := r.sim.(checkpointer)
	if !ok {
		r.mu.Unlock()
		return SavedMsg{}, ErrNoCheckpoints
	}
	snap := cp.Snapshot()
	stat := r.sim.Stat()
	r.mu.Unlock()

	id, err := r.db.SaveCheckpoint(label, stat.Step, stat.SimTime, snap)
	if err != nil {
		return SavedMsg{}, fmt.Errorf("save checkpoint: %w", err)
	}
	log.Printf("runner: saved checkpoint %d %q at step %d (%d rings)", id, label, stat.Step, snap.Len())
	return SavedMsg{ID: id, Label: label, Step: stat.Step}, nil
}

// Load replaces the population with a stored checkpoint and publishes a
// frame of the restored state
func (r *Runner) Load(id int64) error {
	if r.db == nil {
		return ErrNoDB
	}
	if _, ok := r.sim.(checkpointer); !ok {
		return ErrNoCheckpoints
	}
	row, snap, err := r.db.GetCheckpoint(id)
	if err != nil {
		return err
	}

	r.mu.Lock()
	err = r.sim.(checkpointer).Restore(row.Step, row.SimTime, snap)
	var frame *Frame
	if err == nil {
		frame = r.sim.Frame()
	}
	r.mu.Unlock()
	if err != nil {
		return fmt.Errorf("load checkpoint %d: %w", id, err)
	}

	log.Printf("runner: loaded checkpoint %d %q (step %d, %d rings)", id, row.Label, row.Step, row.Rings)
	r.publish(frame)
	return nil
}
