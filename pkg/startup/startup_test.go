package startup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStartup(maxAttempts int) *Startup {
	s := NewStartup(ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}), maxAttempts)
	s.backoffUnit = time.Millisecond
	return s
}

func recorder(events *[]string, name string, requires ...string) Func {
	return Func{
		Name:     name,
		Requires: requires,
		StartFunc: func(context.Context) error {
			*events = append(*events, "start:"+name)
			return nil
		},
		StopFunc: func(context.Context) error {
			*events = append(*events, "stop:"+name)
			return nil
		},
	}
}

func TestStartup_StartsDependenciesFirstAndStopsInReverse(t *testing.T) {
	var events []string
	s := newTestStartup(1)
	s.AddDependency(recorder(&events, "http", "dashboard"))
	s.AddDependency(recorder(&events, "dashboard", "ledger"))
	s.AddDependency(recorder(&events, "ledger"))

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, []string{"start:ledger", "start:dashboard", "start:http"}, events)
	assert.Equal(t, StatusStarted, s.Status("http"))

	events = nil
	require.NoError(t, s.Stop(context.Background()))
	assert.Equal(t, []string{"stop:http", "stop:dashboard", "stop:ledger"}, events)
	assert.Equal(t, StatusStopped, s.Status("ledger"))
}

func TestStartup_RetriesFailedDependency(t *testing.T) {
	calls := 0
	s := newTestStartup(3)
	s.AddDependency(Func{
		Name: "flaky",
		StartFunc: func(context.Context) error {
			calls++
			if calls < 3 {
				return errors.New("not yet")
			}
			return nil
		},
	})

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, 3, calls)
}

func TestStartup_GivesUpAfterMaxAttempts(t *testing.T) {
	s := newTestStartup(2)
	s.AddDependency(Func{
		Name:      "broken",
		StartFunc: func(context.Context) error { return errors.New("boom") },
	})

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "startup failed after 2 attempts")
	assert.Equal(t, StatusFailed, s.Status("broken"))
}

func TestStartup_UnknownDependency(t *testing.T) {
	s := newTestStartup(1)
	s.AddDependency(Func{Name: "http", Requires: []string{"missing"}})

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown dependency 'missing'")
}
