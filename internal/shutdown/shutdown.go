// Package shutdown implements the shutdown supervisor: stop accepting
// connections, acquire each coordinator's writer exclusivity under a
// per-coordinator deadline D, snapshot every store, and retire the
// journal, or, if the global deadline M is exceeded, escalate to a
// forced exit that leaves the journal intact for the next startup's
// recovery.
//
// Grounded on the signal-driven shutdown sequence in
// cuemby/warren/cmd/warren/main.go (os/signal.Notify feeding a select
// against a running server, followed by staged teardown calls), adapted
// from warren's flat call sequence into an explicit context-deadline
// state machine since this supervisor has two independent timeouts (D
// per coordinator, M overall) rather than warren's single teardown call.
package shutdown

import (
	"context"
	"fmt"
	"time"

	"github.com/dirbookd/server/internal/directory"
	"github.com/dirbookd/server/internal/log"
)

// Config carries the shutdown sequence's two deadlines.
type Config struct {
	WriterAcquireDeadline time.Duration // D
	GlobalDeadline        time.Duration // M
}

// Supervisor drives the shutdown sequence against a Directory and
// whatever listener needs to stop accepting connections first.
type Supervisor struct {
	dir    *directory.Directory
	cfg    Config
	stopFn func()
}

// New creates a Supervisor. stopFn is called first, before anything
// else, to stop accepting new connections; it must not block on
// in-flight connections draining.
func New(dir *directory.Directory, cfg Config, stopFn func()) *Supervisor {
	return &Supervisor{dir: dir, cfg: cfg, stopFn: stopFn}
}

// Result reports how the shutdown sequence ended.
type Result struct {
	Clean    bool // true if quiesce, snapshot and journal retirement completed in time
	Escalated bool // true if forced exit was triggered; journal was left intact
}

// Run executes the shutdown sequence. It never itself calls os.Exit; the
// caller decides what a forced-exit Result means for process lifetime.
func (s *Supervisor) Run() Result {
	logger := log.WithComponent("shutdown")
	logger.Info().Msg("shutdown triggered: no longer accepting connections")
	s.stopFn()

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.GlobalDeadline)
	defer cancel()

	if err := s.quiesceAndSnapshot(ctx); err != nil {
		logger.Error().Err(err).Msg("shutdown deadline exceeded, escalating: journal left intact")
		if cerr := s.dir.CloseJournal(); cerr != nil {
			logger.Error().Err(cerr).Msg("failed to close journal during escalation")
		}
		return Result{Clean: false, Escalated: true}
	}

	logger.Info().Msg("shutdown complete")
	return Result{Clean: true}
}

// quiesceAndSnapshot acquires exclusive write access to both coordinators
// (one acquisition bounded by D each), snapshots all three stores, and
// retires the journal. Any failure, including a writer-acquire timeout,
// aborts the sequence for the caller to escalate.
func (s *Supervisor) quiesceAndSnapshot(ctx context.Context) error {
	releaseMain, err := s.acquireWriter(ctx, "main")
	if err != nil {
		return err
	}
	defer releaseMain()

	releaseUsers, err := s.acquireWriter(ctx, "users")
	if err != nil {
		return err
	}
	defer releaseUsers()

	if err := s.dir.Snapshot(); err != nil {
		return fmt.Errorf("shutdown: snapshot: %w", err)
	}
	if err := s.dir.RetireJournal(); err != nil {
		return fmt.Errorf("shutdown: retire journal: %w", err)
	}
	return nil
}

// acquireWriter bounds a single coordinator's writer acquisition to the
// per-coordinator deadline D, layered under the caller's overall context
// (which itself carries the global deadline M).
func (s *Supervisor) acquireWriter(ctx context.Context, which string) (func(), error) {
	dctx, cancel := context.WithTimeout(ctx, s.cfg.WriterAcquireDeadline)
	defer cancel()

	var coord interface {
		AcquireWrite(context.Context) (func(), error)
	}
	switch which {
	case "main":
		coord = s.dir.MainCoord
	case "users":
		coord = s.dir.UserCoord
	default:
		return nil, fmt.Errorf("shutdown: unknown coordinator %q", which)
	}

	release, err := coord.AcquireWrite(dctx)
	if err != nil {
		return nil, fmt.Errorf("shutdown: acquire writer on %s coordinator: %w", which, err)
	}
	return release, nil
}
