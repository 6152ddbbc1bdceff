package runner_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plaenen/purchasing/pkg/runner"
)

type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) add(call string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func service(rec *recorder, name string, startErr error) runner.Service {
	return runner.FuncService{
		ServiceName: name,
		StartFunc: func(context.Context) error {
			rec.add("start " + name)
			return startErr
		},
		StopFunc: func(context.Context) error {
			rec.add("stop " + name)
			return nil
		},
	}
}

func TestRunnerStartsInOrderAndStopsInReverse(t *testing.T) {
	rec := &recorder{}
	r := runner.New([]runner.Service{
		service(rec, "store", nil),
		service(rec, "relay", nil),
		service(rec, "http", nil),
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool { return len(rec.snapshot()) == 3 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("runner did not stop")
	}

	assert.Equal(t, []string{
		"start store", "start relay", "start http",
		"stop http", "stop relay", "stop store",
	}, rec.snapshot())
}

func TestRunnerStopsStartedServicesOnStartFailure(t *testing.T) {
	rec := &recorder{}
	boom := errors.New("boom")
	r := runner.New([]runner.Service{
		service(rec, "store", nil),
		service(rec, "relay", boom),
		service(rec, "http", nil),
	})

	err := r.Run(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"start store", "start relay", "stop store"}, rec.snapshot())
}

type unhealthy struct{ runner.FuncService }

func (unhealthy) HealthCheck(context.Context) error { return errors.New("database unreachable") }

func TestRunnerHealthCheck(t *testing.T) {
	r := runner.New([]runner.Service{
		runner.FuncService{ServiceName: "ok"},
		unhealthy{runner.FuncService{ServiceName: "store"}},
	})

	err := r.HealthCheck(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "service store unhealthy")
}
