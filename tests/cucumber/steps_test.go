package cucumber

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cucumber/godog"

	"github.com/DDownesK12Solutions/PIPSPlus-Sync-UI-sub000/internal/runner"
	"github.com/DDownesK12Solutions/PIPSPlus-Sync-UI-sub000/internal/session"
	"github.com/DDownesK12Solutions/PIPSPlus-Sync-UI-sub000/internal/syncsvc"
)

const (
	pollInterval = 2 * time.Millisecond
	waitTimeout  = 2 * time.Second
)

// scriptedService serves a scripted progress batch. The trigger request
// stays open, mirroring the long-poll behavior of the real service.
type scriptedService struct {
	mu          sync.Mutex
	batch       []syncsvc.ProgressEvent
	conflict    *syncsvc.AlreadyRunningError
	cancelCalls int
}

func (s *scriptedService) Start(ctx context.Context, clientID, sourceOfTruth, entityType string, opts syncsvc.StartOptions) (syncsvc.TriggerOutcome, error) {
	s.mu.Lock()
	conflict := s.conflict
	s.mu.Unlock()
	if conflict != nil {
		return syncsvc.TriggerOutcome{}, conflict
	}
	<-ctx.Done()
	return syncsvc.TriggerOutcome{}, ctx.Err()
}

func (s *scriptedService) Progress(context.Context, string) ([]syncsvc.ProgressEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.batch, nil
}

func (s *scriptedService) FinalStats(context.Context, string, string) ([]map[string]any, error) {
	return nil, nil
}

func (s *scriptedService) Cancel(context.Context, string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelCalls++
	return nil
}

type featureState struct {
	svc      *scriptedService
	sessions *session.MemoryStore
	run      *runner.Runner
}

func InitializeScenario(ctx *godog.ScenarioContext) {
	state := &featureState{}

	ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
		state.reset()
		return ctx, nil
	})

	ctx.After(func(ctx context.Context, sc *godog.Scenario, err error) (context.Context, error) {
		if state.run != nil {
			state.run.Close()
		}
		return ctx, nil
	})

	ctx.Step(`^the sync service will report progress:$`, state.serviceWillReportProgress)
	ctx.Step(`^the sync service rejects triggers because run "([^"]+)" is active$`, state.serviceRejectsTriggers)
	ctx.Step(`^a persisted session "([^"]+)" for client "([^"]+)"$`, state.aPersistedSession)
	ctx.Step(`^I start a students sync for client "([^"]+)" from "([^"]+)"$`, state.iStartASync)
	ctx.Step(`^I join the offered session$`, state.iJoinTheOfferedSession)
	ctx.Step(`^I reattach the session for client "([^"]+)"$`, state.iReattachTheSession)
	ctx.Step(`^the run eventually reports status "([^"]+)"$`, state.runEventuallyReportsStatus)
	ctx.Step(`^the run reports status "([^"]+)" on correlation "([^"]+)"$`, state.runReportsStatusOnCorrelation)
	ctx.Step(`^the run log contains "([^"]+)"$`, state.runLogContains)
	ctx.Step(`^the offered session is "([^"]+)"$`, state.theOfferedSessionIs)
	ctx.Step(`^the persisted session for "([^"]+)" is cleared$`, state.persistedSessionIsCleared)
	ctx.Step(`^the state is marked reconnected$`, state.stateIsMarkedReconnected)
}

func (s *featureState) reset() {
	s.svc = &scriptedService{}
	s.sessions = session.NewMemoryStore()
	s.run = runner.New(s.svc, s.sessions, nil, runner.Deps{PollInterval: pollInterval})
}

func (s *featureState) serviceWillReportProgress(table *godog.Table) error {
	if len(table.Rows) < 2 {
		return fmt.Errorf("progress table needs a header and at least one row")
	}
	var batch []syncsvc.ProgressEvent
	for i, row := range table.Rows[1:] {
		if len(row.Cells) != 2 {
			return fmt.Errorf("progress row needs message and level cells")
		}
		batch = append(batch, syncsvc.ProgressEvent{
			ID:      fmt.Sprintf("e%d", i+1),
			Message: row.Cells[0].Value,
			Level:   row.Cells[1].Value,
		})
	}
	s.svc.mu.Lock()
	s.svc.batch = batch
	s.svc.mu.Unlock()
	return nil
}

func (s *featureState) serviceRejectsTriggers(correlationID string) error {
	s.svc.mu.Lock()
	s.svc.conflict = &syncsvc.AlreadyRunningError{Message: "sync already running", CorrelationID: correlationID}
	s.svc.mu.Unlock()
	return nil
}

func (s *featureState) aPersistedSession(correlationID, clientID string) error {
	return s.sessions.Save(clientID, session.Snapshot{
		CorrelationID: correlationID,
		EntityType:    "students",
		SourceOfTruth: "powerschool",
		StartTime:     time.Now().Add(-time.Minute),
	})
}

func (s *featureState) iStartASync(clientID, sourceOfTruth string) error {
	return s.run.Run(context.Background(), clientID, runner.RunConfig{
		EntityType:     "students",
		TargetPlatform: "all",
		SourceOfTruth:  sourceOfTruth,
	})
}

func (s *featureState) iJoinTheOfferedSession() error {
	return s.run.Join(context.Background())
}

func (s *featureState) iReattachTheSession(clientID string) error {
	attached, err := s.run.AttachSession(context.Background(), clientID)
	if err != nil {
		return err
	}
	if !attached {
		return fmt.Errorf("no persisted session for client %s", clientID)
	}
	return nil
}

func (s *featureState) runEventuallyReportsStatus(status string) error {
	deadline := time.Now().Add(waitTimeout)
	for time.Now().Before(deadline) {
		if string(s.run.State().Status) == status {
			return nil
		}
		time.Sleep(pollInterval)
	}
	return fmt.Errorf("run never reached status %s, got %s", status, s.run.State().Status)
}

func (s *featureState) runReportsStatusOnCorrelation(status, correlationID string) error {
	state := s.run.State()
	if string(state.Status) != status {
		return fmt.Errorf("expected status %s, got %s", status, state.Status)
	}
	if state.CorrelationID != correlationID {
		return fmt.Errorf("expected correlation %s, got %s", correlationID, state.CorrelationID)
	}
	return nil
}

func (s *featureState) runLogContains(message string) error {
	for _, line := range s.run.State().Logs {
		if line.Message == message {
			return nil
		}
	}
	return fmt.Errorf("log line %q not found", message)
}

func (s *featureState) theOfferedSessionIs(correlationID string) error {
	if got := s.run.State().AttachedSessionID; got != correlationID {
		return fmt.Errorf("expected offered session %s, got %q", correlationID, got)
	}
	return nil
}

func (s *featureState) persistedSessionIsCleared(clientID string) error {
	_, ok, err := s.sessions.Load(clientID)
	if err != nil {
		return err
	}
	if ok {
		return fmt.Errorf("expected session for %s cleared", clientID)
	}
	return nil
}

func (s *featureState) stateIsMarkedReconnected() error {
	if !s.run.State().Reconnected {
		return fmt.Errorf("expected reconnected state")
	}
	return nil
}
