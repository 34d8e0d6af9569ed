package eventprof_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"go.jacobcolvin.com/gpuprof/cupti"
	"go.jacobcolvin.com/gpuprof/eventprof"
)

type eventLoader struct {
	events []string
	period time.Duration
}

func (eventLoader) InitBaseConfig() {}

func (l eventLoader) EventConfig() ([]string, time.Duration) {
	return l.events, l.period
}

type bareLoader struct{}

func (bareLoader) InitBaseConfig() {}

func TestControllerStartStop(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	c := eventprof.NewController(eventprof.WithClock(func() time.Time { return start }))

	loader := eventLoader{events: []string{"inst_executed"}, period: 50 * time.Millisecond}

	require.NoError(t, c.Start(0xa, loader))
	require.NoError(t, c.Start(0xb, bareLoader{}))
	assert.Equal(t, []cupti.Context{0xa, 0xb}, c.Active())

	s, ok := c.Session(0xa)
	require.True(t, ok)
	assert.Equal(t, eventprof.Session{
		Started:      start,
		Events:       []string{"inst_executed"},
		SamplePeriod: 50 * time.Millisecond,
		Context:      0xa,
	}, s)

	s, ok = c.Session(0xb)
	require.True(t, ok)
	assert.Empty(t, s.Events)

	// Second start keeps the first session.
	require.NoError(t, c.Start(0xa, bareLoader{}))
	s, _ = c.Session(0xa)
	assert.Equal(t, []string{"inst_executed"}, s.Events)

	require.NoError(t, c.Stop(0xa))
	assert.Equal(t, []cupti.Context{0xb}, c.Active())

	require.NoError(t, c.Stop(0xb))
	assert.Empty(t, c.Active())
}

func TestControllerStopUnknownContext(t *testing.T) {
	t.Parallel()

	stops := 0
	c := eventprof.NewController(eventprof.WithStopHook(func(*eventprof.Session) error {
		stops++
		return nil
	}))

	require.NoError(t, c.Stop(0xdead))
	require.NoError(t, c.Stop(0xdead))
	assert.Zero(t, stops)
	assert.Empty(t, c.Active())
}

func TestControllerStartNilLoader(t *testing.T) {
	t.Parallel()

	c := eventprof.NewController()
	require.ErrorIs(t, c.Start(0x1, nil), eventprof.ErrNilLoader)
	assert.Empty(t, c.Active())
}

func TestControllerStopAll(t *testing.T) {
	t.Parallel()

	hookErr := errors.New("flush failed")

	var (
		mu      sync.Mutex
		stopped []cupti.Context
	)

	c := eventprof.NewController(eventprof.WithStopHook(func(s *eventprof.Session) error {
		mu.Lock()
		defer mu.Unlock()

		stopped = append(stopped, s.Context)
		if s.Context == 0x2 {
			return hookErr
		}

		return nil
	}))

	for _, ctx := range []cupti.Context{0x3, 0x1, 0x2} {
		require.NoError(t, c.Start(ctx, bareLoader{}))
	}

	err := c.StopAll()
	require.ErrorIs(t, err, hookErr)
	assert.Equal(t, []cupti.Context{0x1, 0x2, 0x3}, stopped)
	assert.Empty(t, c.Active())
}

func TestControllerConcurrentContexts(t *testing.T) {
	t.Parallel()

	c := eventprof.NewController()

	var g errgroup.Group
	for i := range 64 {
		ctx := cupti.Context(i + 1)
		g.Go(func() error {
			if err := c.Start(ctx, bareLoader{}); err != nil {
				return err
			}

			return c.Stop(ctx)
		})
	}

	require.NoError(t, g.Wait())
	assert.Empty(t, c.Active())
}

func TestNop(t *testing.T) {
	t.Parallel()

	var n eventprof.Nop

	require.NoError(t, n.Start(0x1, bareLoader{}))
	require.NoError(t, n.Stop(0x1))
	require.NoError(t, n.StopAll())
}
