package placement

import (
	"context"
	"errors"
	"math"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/annel0/mmo-level/internal/eventbus"
	"github.com/annel0/mmo-level/internal/level"
	"github.com/annel0/mmo-level/internal/logging"
	"github.com/annel0/mmo-level/internal/storage"
	"github.com/annel0/mmo-level/internal/vec"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	logging.LogDir = ""
	os.Exit(m.Run())
}

type recordedEvents struct {
	mu     sync.Mutex
	events []*eventbus.Envelope
	ch     chan struct{}
}

func (r *recordedEvents) handle(ctx context.Context, ev *eventbus.Envelope) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	select {
	case r.ch <- struct{}{}:
	default:
	}
}

func (r *recordedEvents) wait(t *testing.T, n int) []*eventbus.Envelope {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-r.ch:
		case <-time.After(2 * time.Second):
			t.Fatalf("получено %d из %d событий", i, n)
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*eventbus.Envelope(nil), r.events...)
}

func (r *recordedEvents) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

type fixture struct {
	tracker *Tracker
	level   *level.Level
	repo    *storage.MemoryPositionRepo
	events  *recordedEvents
	reg     *prometheus.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	lvl := level.DefaultLevel("test")
	repo := storage.NewMemoryPositionRepo()
	bus := eventbus.NewMemoryBus(64)
	t.Cleanup(func() { bus.Close() })

	events := &recordedEvents{ch: make(chan struct{}, 64)}
	_, err := bus.Subscribe(context.Background(), eventbus.Filter{}, events.handle)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	tracker := NewTracker(Config{
		Level:      lvl,
		Repo:       repo,
		Publisher:  eventbus.NewPositionPublisher(bus, "test"),
		Autosave:   20 * time.Millisecond,
		Registerer: reg,
	})

	return &fixture{tracker: tracker, level: lvl, repo: repo, events: events, reg: reg}
}

func TestJoin_NewPlayerSpawns(t *testing.T) {
	f := newFixture(t)

	loc, err := f.tracker.Join(context.Background(), 1)
	require.NoError(t, err)

	spawn := f.level.Spawn()
	assert.Same(t, spawn.Dimension(), loc.Dimension())
	assert.Equal(t, spawn.Vec(), loc.Vec())
	assert.Equal(t, []uint64{1}, f.tracker.Online())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.tracker.onlineGauge))
}

func TestJoin_RestoresSavedLocation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.repo.Save(ctx, 7, storage.PositionRecord{
		Dimension: level.NetherName, X: -2.7, Y: 40, Z: 8.5, Yaw: 90,
	}))

	loc, err := f.tracker.Join(ctx, 7)
	require.NoError(t, err)
	assert.Same(t, f.level.Dimension(level.NetherName), loc.Dimension())
	assert.Equal(t, -3, loc.BlockX())
	assert.Equal(t, float32(90), loc.Yaw)
}

func TestJoin_UnknownSavedDimensionFallsBackToSpawn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.repo.Save(ctx, 7, storage.PositionRecord{Dimension: "gone", X: 1, Y: 2, Z: 3}))

	loc, err := f.tracker.Join(ctx, 7)
	require.NoError(t, err)
	assert.Same(t, f.level.Spawn().Dimension(), loc.Dimension())
}

func TestJoin_Twice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.tracker.Join(ctx, 1)
	require.NoError(t, err)
	_, err = f.tracker.Join(ctx, 1)
	assert.True(t, errors.Is(err, ErrAlreadyOnline))
}

func TestJoin_NoSpawn(t *testing.T) {
	lvl := level.NewLevel("empty")
	tracker := NewTracker(Config{Level: lvl, Repo: storage.NewMemoryPositionRepo()})

	_, err := tracker.Join(context.Background(), 1)
	assert.ErrorIs(t, err, ErrNoSpawn)
}

func TestMove_PublishesOnlyOnBlockChange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.tracker.Join(ctx, 1)
	require.NoError(t, err)

	// Спавн (0.5, 64, 0.5): тот же блок
	loc, err := f.tracker.Move(ctx, 1, 0.9, 64.2, 0.1)
	require.NoError(t, err)
	assert.Equal(t, 0, loc.BlockX())

	// Отрицательная координата уходит в блок -1
	loc, err = f.tracker.Move(ctx, 1, -0.3, 64, 0.1)
	require.NoError(t, err)
	assert.Equal(t, -1, loc.BlockX())

	events := f.events.wait(t, 1)
	require.Len(t, events, 1)
	assert.Equal(t, eventbus.EventPositionChanged, events[0].EventType)

	var payload eventbus.PositionChanged
	require.NoError(t, events[0].Decode(&payload))
	assert.Equal(t, uint64(1), payload.UserID)
	assert.Equal(t, level.OverworldName, payload.Dimension)
	assert.Equal(t, 0, payload.FromBlock.X)
	assert.Equal(t, -1, payload.ToBlock.X)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.tracker.moves))
	assert.Equal(t, 1, f.events.count())
}

func TestMove_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.tracker.Move(ctx, 1, 0, 0, 0)
	assert.ErrorIs(t, err, ErrNotOnline)

	_, err = f.tracker.Join(ctx, 1)
	require.NoError(t, err)

	_, err = f.tracker.Move(ctx, 1, float32(math.NaN()), 0, 0)
	assert.ErrorIs(t, err, ErrInvalidCoordinates)

	// Overworld: -64..319
	_, err = f.tracker.Move(ctx, 1, 0, -64.5, 0)
	assert.ErrorIs(t, err, ErrOutOfBounds)

	_, err = f.tracker.Move(ctx, 1, 0, 320, 0)
	assert.ErrorIs(t, err, ErrOutOfBounds)

	_, err = f.tracker.Move(ctx, 1, 0, -64, 0)
	assert.NoError(t, err)
}

func TestTeleport_ChangesDimensionKeepsCoordinates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.tracker.Join(ctx, 1)
	require.NoError(t, err)

	loc, err := f.tracker.Teleport(ctx, 1, level.NetherName, 100.5, 70, -3.2)
	require.NoError(t, err)

	nether := f.level.Dimension(level.NetherName)
	assert.Same(t, nether, loc.Dimension())
	assert.Equal(t, float32(100.5), loc.X())
	assert.Equal(t, -4, loc.BlockZ())

	current, ok := f.tracker.Location(1)
	require.True(t, ok)
	assert.Same(t, nether, current.Dimension())

	saved, found, err := f.repo.Load(ctx, 1)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, level.NetherName, saved.Dimension)

	events := f.events.wait(t, 1)
	require.Len(t, events, 1)
	assert.Equal(t, eventbus.EventDimensionChanged, events[0].EventType)

	var payload eventbus.DimensionChanged
	require.NoError(t, events[0].Decode(&payload))
	assert.Equal(t, level.OverworldName, payload.FromDimension)
	assert.Equal(t, level.NetherName, payload.ToDimension)
	assert.Equal(t, 100, payload.Block.X)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.tracker.teleports))
}

func TestTeleport_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.tracker.Teleport(ctx, 1, level.NetherName, 0, 10, 0)
	assert.ErrorIs(t, err, ErrNotOnline)

	_, err = f.tracker.Join(ctx, 1)
	require.NoError(t, err)

	_, err = f.tracker.Teleport(ctx, 1, "aether", 0, 10, 0)
	assert.ErrorIs(t, err, ErrUnknownDimension)

	// Nether: 0..255
	_, err = f.tracker.Teleport(ctx, 1, level.NetherName, 0, -1, 0)
	assert.ErrorIs(t, err, ErrOutOfBounds)

	_, err = f.tracker.Teleport(ctx, 1, level.NetherName, float32(math.Inf(1)), 10, 0)
	assert.ErrorIs(t, err, ErrInvalidCoordinates)

	// Игрок остался в исходном измерении
	loc, ok := f.tracker.Location(1)
	require.True(t, ok)
	assert.Equal(t, level.OverworldName, loc.Dimension().Name())
}

func TestLook(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.tracker.Look(1, 0, 0)
	assert.ErrorIs(t, err, ErrNotOnline)

	_, err = f.tracker.Join(ctx, 1)
	require.NoError(t, err)

	loc, err := f.tracker.Look(1, -30, 180)
	require.NoError(t, err)
	assert.Equal(t, float32(-30), loc.Pitch)
	assert.Equal(t, float32(180), loc.Yaw)

	_, err = f.tracker.Look(1, float32(math.NaN()), 0)
	assert.ErrorIs(t, err, ErrInvalidCoordinates)
	loc, _ = f.tracker.Location(1)
	assert.Equal(t, float32(-30), loc.Pitch)
}

func TestLookAt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.tracker.LookAt(1, vec.NewVec3f(1, 0, 0))
	assert.ErrorIs(t, err, ErrNotOnline)

	_, err = f.tracker.Join(ctx, 1)
	require.NoError(t, err)

	loc, err := f.tracker.LookAt(1, vec.NewVec3f(-2, 0, 0))
	require.NoError(t, err)
	assert.InDelta(t, 90, float64(loc.Yaw), 1e-4)
	assert.InDelta(t, 0, float64(loc.Pitch), 1e-4)

	_, err = f.tracker.LookAt(1, vec.Vec3f{})
	assert.ErrorIs(t, err, ErrInvalidCoordinates)
	_, err = f.tracker.LookAt(1, vec.NewVec3f(float32(math.Inf(1)), 0, 0))
	assert.ErrorIs(t, err, ErrInvalidCoordinates)

	loc, _ = f.tracker.Location(1)
	assert.InDelta(t, 90, float64(loc.Yaw), 1e-4)
}

func TestLeave_SavesAndForgets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.tracker.Join(ctx, 1)
	require.NoError(t, err)
	_, err = f.tracker.Move(ctx, 1, 5, 70, 5)
	require.NoError(t, err)

	require.NoError(t, f.tracker.Leave(ctx, 1))

	_, ok := f.tracker.Location(1)
	assert.False(t, ok)
	assert.Empty(t, f.tracker.Online())
	assert.Equal(t, 0.0, testutil.ToFloat64(f.tracker.onlineGauge))

	saved, found, err := f.repo.Load(ctx, 1)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, float32(70), saved.Y)

	assert.ErrorIs(t, f.tracker.Leave(ctx, 1), ErrNotOnline)

	// Повторный вход восстанавливает позицию
	loc, err := f.tracker.Join(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 70, loc.BlockY())
}

func TestRun_AutosavesAndFlushesOnStop(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	for _, id := range []uint64{1, 2, 3} {
		_, err := f.tracker.Join(ctx, id)
		require.NoError(t, err)
	}

	done := make(chan error, 1)
	go func() { done <- f.tracker.Run(ctx) }()

	require.Eventually(t, func() bool { return f.repo.Count() == 3 }, 2*time.Second, 10*time.Millisecond)

	_, err := f.tracker.Move(ctx, 2, 10, 80, 10)
	require.NoError(t, err)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run не завершился после отмены контекста")
	}

	saved, found, err := f.repo.Load(context.Background(), 2)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, float32(80), saved.Y)
}

func TestTracker_ConcurrentMoves(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const players = 8
	for id := uint64(1); id <= players; id++ {
		_, err := f.tracker.Join(ctx, id)
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	for id := uint64(1); id <= players; id++ {
		wg.Add(1)
		go func(id uint64) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_, err := f.tracker.Move(ctx, id, float32(i)/4, 64, float32(id))
				assert.NoError(t, err)
			}
		}(id)
	}
	wg.Wait()

	require.NoError(t, f.tracker.SaveAll(ctx))
	assert.Equal(t, players, f.repo.Count())
}
