package session

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/menta2k/pool-coach/pkg/types"
)

func result(advice string) *types.AnalysisResult {
	return &types.AnalysisResult{Recommendations: []types.ShotRecommendation{}, GeneralAdvice: advice}
}

func TestNewSessionIsIdle(t *testing.T) {
	s := New(nil)
	snap := s.Snapshot()
	if snap.State != StateIdle || snap.Token != 0 || snap.Result != nil {
		t.Errorf("unexpected initial snapshot %+v", snap)
	}
	if s.Deliver(Outcome{Token: 0, Result: result("x")}) {
		t.Error("zero token must never be accepted")
	}
}

func TestDeliverCurrent(t *testing.T) {
	s := New(nil)
	tok := s.Begin()
	if got := s.Snapshot().State; got != StatePending {
		t.Fatalf("Expected pending, got %s", got)
	}
	if !s.Deliver(Outcome{Token: tok, Result: result("ok")}) {
		t.Fatal("current outcome rejected")
	}
	snap := s.Snapshot()
	if snap.State != StateDone || snap.Result.GeneralAdvice != "ok" {
		t.Errorf("unexpected snapshot %+v", snap)
	}
}

func TestDeliverFailure(t *testing.T) {
	s := New(nil)
	tok := s.Begin()
	boom := errors.New("boom")
	s.Deliver(Outcome{Token: tok, Err: boom})
	snap := s.Snapshot()
	if snap.State != StateFailed || !errors.Is(snap.Err, boom) || snap.Result != nil {
		t.Errorf("unexpected snapshot %+v", snap)
	}
}

func TestStaleOutcomeDropped(t *testing.T) {
	s := New(nil)
	first := s.Begin()
	second := s.Begin()

	if s.Deliver(Outcome{Token: first, Result: result("old")}) {
		t.Error("stale outcome accepted")
	}
	if s.Snapshot().State != StatePending {
		t.Error("stale outcome changed state")
	}
	if !s.Deliver(Outcome{Token: second, Result: result("new")}) {
		t.Error("current outcome rejected")
	}
	if s.Snapshot().Result.GeneralAdvice != "new" {
		t.Error("wrong result kept")
	}
}

func TestResetDropsInFlight(t *testing.T) {
	s := New(nil)
	tok := s.Begin()
	s.Reset()
	if s.Deliver(Outcome{Token: tok, Result: result("late")}) {
		t.Error("outcome from before reset accepted")
	}
	if snap := s.Snapshot(); snap.State != StateIdle || snap.Result != nil {
		t.Errorf("Expected idle after reset, got %+v", snap)
	}
}

func TestStartSupersedesAndCancels(t *testing.T) {
	s := New(nil)
	var delivered atomic.Int32
	s.OnDeliver = func(Outcome) { delivered.Add(1) }

	release := make(chan struct{})
	cancelled := make(chan struct{})
	first := s.Start(context.Background(), func(ctx context.Context) (*types.AnalysisResult, error) {
		select {
		case <-ctx.Done():
			close(cancelled)
		case <-time.After(5 * time.Second):
		}
		<-release
		return result("first"), nil
	})

	second := s.Start(context.Background(), func(ctx context.Context) (*types.AnalysisResult, error) {
		return result("second"), nil
	})
	if second <= first {
		t.Fatalf("tokens must increase: %d then %d", first, second)
	}

	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("superseded run was not cancelled")
	}
	close(release)
	s.Wait()

	snap := s.Snapshot()
	if snap.Token != second || snap.State != StateDone || snap.Result.GeneralAdvice != "second" {
		t.Errorf("unexpected snapshot %+v", snap)
	}
	if n := delivered.Load(); n != 1 {
		t.Errorf("OnDeliver should fire once, fired %d times", n)
	}
}

func TestStartCancelledByParent(t *testing.T) {
	s := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx, func(ctx context.Context) (*types.AnalysisResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	cancel()
	s.Wait()

	snap := s.Snapshot()
	if snap.State != StateFailed || !errors.Is(snap.Err, context.Canceled) {
		t.Errorf("unexpected snapshot %+v", snap)
	}
}

func TestOnDeliverHoldsOffNewGenerations(t *testing.T) {
	s := New(nil)
	entered := make(chan struct{})
	release := make(chan struct{})
	var stillCurrent atomic.Bool
	s.OnDeliver = func(o Outcome) {
		close(entered)
		<-release
		stillCurrent.Store(s.Current() == o.Token)
	}

	tok := s.Begin()
	delivered := make(chan bool, 1)
	go func() { delivered <- s.Deliver(Outcome{Token: tok, Result: result("kept")}) }()
	<-entered

	resetDone := make(chan struct{})
	go func() {
		s.Reset()
		close(resetDone)
	}()
	select {
	case <-resetDone:
		t.Fatal("Reset completed while OnDeliver was running")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	if !<-delivered {
		t.Error("current outcome was rejected")
	}
	<-resetDone

	if !stillCurrent.Load() {
		t.Error("OnDeliver saw its outcome superseded")
	}
	if snap := s.Snapshot(); snap.State != StateIdle || snap.Token != tok+1 {
		t.Errorf("Expected idle generation after reset, got %+v", snap)
	}
}
