// Package syncer drives sync passes: it gates each pass on the game turn,
// runs the operations once per new turn and records the turn as mirrored.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rewired-gh/mercsync/internal/auth"
	"github.com/rewired-gh/mercsync/internal/collector"
	"github.com/rewired-gh/mercsync/internal/logger"
	"github.com/rewired-gh/mercsync/internal/models"
)

// State is the orchestrator state.
type State int

const (
	Idle State = iota
	Syncing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Syncing:
		return "syncing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Outcome is the result of one pass.
type Outcome int

const (
	// Failed means the pass returned an error and wrote nothing to the ledger.
	Failed Outcome = iota
	// Busy means the game was computing a turn; nothing was attempted.
	Busy
	// UpToDate means the current turn was already mirrored.
	UpToDate
	// Synced means the operations ran and the turn was recorded.
	Synced
)

func (o Outcome) String() string {
	switch o {
	case Failed:
		return "failed"
	case Busy:
		return "busy"
	case UpToDate:
		return "up-to-date"
	case Synced:
		return "synced"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// TurnSource reports the current game turn.
type TurnSource interface {
	Turn(ctx context.Context) (int, error)
}

// Ledger is the per-turn sync log.
type Ledger interface {
	HasSyncRecord(ctx context.Context, turn int) (bool, error)
	RecordSync(ctx context.Context, rec models.SyncRecord) error
}

// Notifier receives pass outcomes worth telling a human about.
type Notifier interface {
	SendError(err error) error
	SendRecovery(failureCount int) error
	SendSynced(rec models.SyncRecord) error
}

// Config holds loop timing.
type Config struct {
	Interval       time.Duration
	BusyRetryDelay time.Duration
}

// Syncer is the sync orchestrator.
type Syncer struct {
	turns    TurnSource
	ledger   Ledger
	ops      []collector.Operation
	notifier Notifier
	config   Config
	now      func() time.Time

	mu                  sync.Mutex
	state               State
	lastTurn            int
	consecutiveFailures int
}

// New creates a Syncer. notifier may be nil.
func New(turns TurnSource, ledger Ledger, ops []collector.Operation, notifier Notifier, config Config) *Syncer {
	return &Syncer{
		turns:    turns,
		ledger:   ledger,
		ops:      ops,
		notifier: notifier,
		config:   config,
		now:      time.Now,
	}
}

// State returns the current orchestrator state.
func (s *Syncer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Status is a one-line summary for operators.
func (s *Syncer) Status() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	last := "none"
	if s.lastTurn > 0 {
		last = fmt.Sprint(s.lastTurn)
	}
	return fmt.Sprintf("state: %s, last synced turn: %s, consecutive failures: %d", s.state, last, s.consecutiveFailures)
}

func (s *Syncer) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// RunOnce performs a single pass.
func (s *Syncer) RunOnce(ctx context.Context) (Outcome, error) {
	outcome, _, err := s.runOnce(ctx)
	return outcome, err
}

func (s *Syncer) runOnce(ctx context.Context) (Outcome, *models.SyncRecord, error) {
	passID := uuid.NewString()
	start := s.now()

	turn, err := s.turns.Turn(ctx)
	if errors.Is(err, auth.ErrTurnInProgress) {
		logger.Info("[%s] Turn in progress, waiting", passID)
		return Busy, nil, nil
	}
	if err != nil {
		return Failed, nil, fmt.Errorf("failed to get current turn: %w", err)
	}

	exists, err := s.ledger.HasSyncRecord(ctx, turn)
	if err != nil {
		return Failed, nil, fmt.Errorf("failed to check sync log for turn %d: %w", turn, err)
	}
	if exists {
		logger.Debug("[%s] Turn %d already synced", passID, turn)
		s.markTurn(turn)
		return UpToDate, nil, nil
	}

	s.setState(Syncing)
	defer s.setState(Idle)
	logger.Info("[%s] Syncing turn %d with %d operations", passID, turn, len(s.ops))

	var total, succeeded int
	var errs []error
	for _, op := range s.ops {
		n, err := op.Sync(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return Failed, nil, fmt.Errorf("turn %d pass interrupted during %s: %w", turn, op.Name(), ctx.Err())
			}
			logger.Error("[%s] Operation %s failed: %v", passID, op.Name(), err)
			errs = append(errs, fmt.Errorf("%s: %w", op.Name(), err))
			continue
		}
		logger.Debug("[%s] Operation %s upserted %d records", passID, op.Name(), n)
		total += n
		succeeded++
	}
	if succeeded == 0 && len(s.ops) > 0 {
		return Failed, nil, fmt.Errorf("all operations failed for turn %d: %w", turn, errors.Join(errs...))
	}

	rec := models.SyncRecord{Turn: turn, Timestamp: s.now().UTC(), Records: total}
	if err := s.ledger.RecordSync(ctx, rec); err != nil {
		return Failed, nil, fmt.Errorf("failed to record sync for turn %d: %w", turn, err)
	}
	s.markTurn(turn)
	logger.Info("[%s] Turn %d synced: %d records in %v (%d/%d operations)",
		passID, turn, total, s.now().Sub(start).Round(time.Millisecond), succeeded, len(s.ops))
	return Synced, &rec, nil
}

// Run loops until ctx is cancelled, waiting BusyRetryDelay after a busy turn
// and Interval otherwise. Pass errors are logged and the loop continues.
func (s *Syncer) Run(ctx context.Context) error {
	logger.Info("Starting sync loop (interval: %v, busy retry: %v)", s.config.Interval, s.config.BusyRetryDelay)
	for {
		outcome, rec, err := s.runOnce(ctx)
		if ctx.Err() != nil {
			logger.Info("Sync loop stopped")
			return ctx.Err()
		}
		s.report(outcome, rec, err)

		wait := s.config.Interval
		if outcome == Busy {
			wait = s.config.BusyRetryDelay
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			logger.Info("Sync loop stopped")
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (s *Syncer) markTurn(turn int) {
	s.mu.Lock()
	s.lastTurn = turn
	s.mu.Unlock()
}

// report tracks consecutive failures and notifies on the first failure of a
// run, on recovery, and on every completed sync.
func (s *Syncer) report(outcome Outcome, rec *models.SyncRecord, err error) {
	s.mu.Lock()
	failures := s.consecutiveFailures
	switch outcome {
	case Busy:
	case Failed:
		s.consecutiveFailures++
	default:
		s.consecutiveFailures = 0
	}
	s.mu.Unlock()

	switch outcome {
	case Busy:
		return
	case Failed:
		logger.Error("Sync pass failed: %v", err)
		if failures == 0 && s.notifier != nil {
			if sendErr := s.notifier.SendError(err); sendErr != nil {
				logger.Warn("Failed to send error notification: %v", sendErr)
			}
		}
		return
	}

	if failures > 0 && s.notifier != nil {
		if sendErr := s.notifier.SendRecovery(failures); sendErr != nil {
			logger.Warn("Failed to send recovery notification: %v", sendErr)
		}
	}

	if rec != nil && s.notifier != nil {
		if sendErr := s.notifier.SendSynced(*rec); sendErr != nil {
			logger.Warn("Failed to send sync notification: %v", sendErr)
		}
	}
}
