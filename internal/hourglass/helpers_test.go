package hourglass

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/zulandar/hourglass/internal/analytics"
	"github.com/zulandar/hourglass/internal/db"
	"github.com/zulandar/hourglass/internal/models"
	"github.com/zulandar/hourglass/internal/notify"
	"github.com/zulandar/hourglass/internal/store"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notify.Notification
	// panicFor makes Dispatch panic for the given turn id.
	panicFor string
}

func (r *recordingNotifier) Dispatch(_ context.Context, n notify.Notification) {
	if r.panicFor != "" && n.TurnID == r.panicFor {
		panic("transport exploded")
	}
	r.mu.Lock()
	r.sent = append(r.sent, n)
	r.mu.Unlock()
}

func (r *recordingNotifier) byKind(kind notify.Kind) []notify.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []notify.Notification
	for _, n := range r.sent {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

type recordingSink struct {
	mu     sync.Mutex
	events []analytics.Event
}

func (s *recordingSink) Capture(_ context.Context, ev analytics.Event) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
}

func (s *recordingSink) Close() error { return nil }

func (s *recordingSink) named(name string) []analytics.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []analytics.Event
	for _, ev := range s.events {
		if ev.Name == name {
			out = append(out, ev)
		}
	}
	return out
}

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := db.Open("sqlite", filepath.Join(t.TempDir(), "hourglass.db"))
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(gdb))
	require.NoError(t, gdb.Create(&models.Branch{ID: "br-1", Title: "The Lighthouse"}).Error)
	return gdb
}

func window(m int) *int { return &m }

func seed(t *testing.T, gdb *gorm.DB, turn models.Turn) {
	t.Helper()
	if turn.BranchID == "" {
		turn.BranchID = "br-1"
	}
	require.NoError(t, gdb.Create(&turn).Error)
}

func load(t *testing.T, gdb *gorm.DB, id string) models.Turn {
	t.Helper()
	var turn models.Turn
	require.NoError(t, gdb.Where("id = ?", id).Take(&turn).Error)
	return turn
}

type fixture struct {
	db       *gorm.DB
	store    *store.GormStore
	clock    *clock
	notifier *recordingNotifier
	sink     *recordingSink
	poller   *Poller
}

func newFixture(t *testing.T, mutate func(*Options)) *fixture {
	t.Helper()
	gdb := testDB(t)
	st, err := store.NewGormStore(gdb)
	require.NoError(t, err)

	f := &fixture{
		db:       gdb,
		store:    st,
		clock:    &clock{now: t0},
		notifier: &recordingNotifier{},
		sink:     &recordingSink{},
	}
	opts := Options{
		Store:      st,
		Notifier:   f.notifier,
		Analytics:  f.sink,
		AppBaseURL: "https://app.example.com/",
		AIModel:    "gpt-4o-mini",
		Now:        f.clock.Now,
	}
	if mutate != nil {
		mutate(&opts)
	}
	f.poller, err = New(opts)
	require.NoError(t, err)
	return f
}

func (f *fixture) tick(t *testing.T) TickReport {
	t.Helper()
	r, err := f.poller.Tick(context.Background())
	require.NoError(t, err)
	return r
}
