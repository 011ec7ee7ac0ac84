package trending

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/dayuer/tubebot/internal/catalog"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeCatalog struct {
	mu      sync.Mutex
	calls   int
	regions []string
	fail    bool
}

func (f *fakeCatalog) Search(context.Context, string, int) ([]catalog.VideoSummary, error) {
	return nil, errors.New("not used")
}

func (f *fakeCatalog) Trending(_ context.Context, region string, limit int) ([]catalog.VideoSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.regions = append(f.regions, region)
	if f.fail {
		return nil, errors.New("quota")
	}
	out := make([]catalog.VideoSummary, limit)
	for i := range out {
		out[i] = catalog.VideoSummary{ID: "v", Title: "call"}
	}
	return out, nil
}

func (f *fakeCatalog) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeCatalog) SetFail(v bool) {
	f.mu.Lock()
	f.fail = v
	f.mu.Unlock()
}

func TestStart_RefreshesImmediately(t *testing.T) {
	fc := &fakeCatalog{}
	got := make(chan int, 10)
	r := NewRefresher(fc, Options{Limit: 3, Interval: time.Hour, OnRefresh: func(items []catalog.VideoSummary) {
		got <- len(items)
	}})

	r.Start(context.Background())
	defer r.Stop()

	select {
	case n := <-got:
		assert.Equal(t, 3, n)
	case <-time.After(time.Second):
		t.Fatal("no immediate refresh")
	}

	items, at := r.Snapshot()
	assert.Len(t, items, 3)
	assert.False(t, at.IsZero())
	assert.Equal(t, []string{catalog.DefaultRegion}, fc.regions)
}

func TestStart_Ticks(t *testing.T) {
	fc := &fakeCatalog{}
	r := NewRefresher(fc, Options{Limit: 1, Interval: 10 * time.Millisecond})

	r.Start(context.Background())
	require.Eventually(t, func() bool { return fc.Calls() >= 3 }, time.Second, 5*time.Millisecond)
	r.Stop()

	n := fc.Calls()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, n, fc.Calls(), "no refresh after Stop")
}

func TestRefresh_FailureKeepsSnapshot(t *testing.T) {
	fc := &fakeCatalog{}
	r := NewRefresher(fc, Options{Limit: 2})

	r.Refresh(context.Background())
	_, first := r.Snapshot()

	fc.SetFail(true)
	r.Refresh(context.Background())

	items, at := r.Snapshot()
	assert.Len(t, items, 2)
	assert.Equal(t, first, at)
}

func TestSnapshot_EmptyBeforeRefresh(t *testing.T) {
	r := NewRefresher(&fakeCatalog{}, Options{})
	items, at := r.Snapshot()
	assert.Empty(t, items)
	assert.True(t, at.IsZero())
}

func TestStop_Idempotent(t *testing.T) {
	r := NewRefresher(&fakeCatalog{}, Options{Interval: time.Hour})
	r.Stop()

	r.Start(context.Background())
	r.Start(context.Background())
	r.Stop()
	r.Stop()
}

func TestStart_ParentCancelEndsLoop(t *testing.T) {
	fc := &fakeCatalog{}
	r := NewRefresher(fc, Options{Interval: 5 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	r.Start(ctx)
	require.Eventually(t, func() bool { return fc.Calls() >= 1 }, time.Second, 5*time.Millisecond)
	cancel()
	r.Stop()
}
