package history

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/DDownesK12Solutions/PIPSPlus-Sync-UI-sub000/internal/runner"
)

// Recorder observes a runner and records each finished run once. Blocked
// outcomes are skipped: nothing of ours ran. Recording is best-effort and
// never affects the run.
type Recorder struct {
	store  *Store
	logger *slog.Logger

	mu       sync.Mutex
	recorded map[string]struct{}
}

// NewRecorder constructs a recorder over a history store.
func NewRecorder(store *Store, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{store: store, logger: logger, recorded: map[string]struct{}{}}
}

// OnTransition implements runner.RunObserver.
func (r *Recorder) OnTransition(state runner.RunState) {
	if !state.Status.Terminal() || state.Status == runner.StatusBlocked {
		return
	}
	if state.CorrelationID == "" || state.EndTime.IsZero() {
		return
	}
	r.mu.Lock()
	if _, done := r.recorded[state.CorrelationID]; done {
		r.mu.Unlock()
		return
	}
	r.recorded[state.CorrelationID] = struct{}{}
	r.mu.Unlock()

	entry := Entry{
		CorrelationID:  state.CorrelationID,
		ClientID:       state.ClientID,
		EntityType:     state.Config.EntityType,
		SourceOfTruth:  state.Config.SourceOfTruth,
		TargetPlatform: state.Config.TargetPlatform,
		Status:         string(state.Status),
		ErrorMessage:   state.ErrorMessage,
		StartedAt:      state.StartTime,
		EndedAt:        state.EndTime,
	}
	if state.Stats != nil {
		entry = EntryFromStats(entry, state.Stats.Sync, state.Stats.Rules)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := r.store.Record(ctx, entry); err != nil {
		r.logger.Warn("record run history", "correlation_id", state.CorrelationID, "error", err)
	}
}

// OnLogLine implements runner.RunObserver.
func (r *Recorder) OnLogLine(runner.LogLine) {}

// OnPollWarning implements runner.RunObserver.
func (r *Recorder) OnPollWarning(string, error) {}
