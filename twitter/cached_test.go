package twitter

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/deemkeen/birdbridge/cache"
	"github.com/deemkeen/birdbridge/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	calls    atomic.Int32
	accounts map[string]*domain.MirroredAccount
	posts    map[int64]*domain.MirroredPost
	err      error
	delay    time.Duration
}

func (f *fakeSource) GetAccount(_ context.Context, handle string) (*domain.MirroredAccount, error) {
	f.calls.Add(1)
	time.Sleep(f.delay)
	if f.err != nil {
		return nil, f.err
	}
	return f.accounts[handle], nil
}

func (f *fakeSource) GetPost(_ context.Context, id int64) (*domain.MirroredPost, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.posts[id], nil
}

func TestCachedSourceHit(t *testing.T) {
	inner := &fakeSource{accounts: map[string]*domain.MirroredAccount{
		"jack": {ID: 12, Handle: "jack", DisplayName: "Jack"},
	}}
	src := NewCachedSource(inner, cache.NewMemoryStore(0), time.Minute, nil, quietLogger())

	for i := 0; i < 3; i++ {
		acc, err := src.GetAccount(context.Background(), "jack")
		require.NoError(t, err)
		require.NotNil(t, acc)
		assert.Equal(t, "Jack", acc.DisplayName)
	}
	assert.Equal(t, int32(1), inner.calls.Load())
}

func TestCachedSourceDoesNotCacheAbsence(t *testing.T) {
	inner := &fakeSource{accounts: map[string]*domain.MirroredAccount{}}
	src := NewCachedSource(inner, cache.NewMemoryStore(0), time.Minute, nil, quietLogger())

	for i := 0; i < 2; i++ {
		acc, err := src.GetAccount(context.Background(), "ghost")
		require.NoError(t, err)
		assert.Nil(t, acc)
	}
	assert.Equal(t, int32(2), inner.calls.Load())
}

func TestCachedSourcePropagatesErrors(t *testing.T) {
	inner := &fakeSource{err: errors.New("boom")}
	src := NewCachedSource(inner, cache.NewMemoryStore(0), time.Minute, nil, quietLogger())

	_, err := src.GetPost(context.Background(), 1)
	assert.Error(t, err)
}

func TestCachedSourcePost(t *testing.T) {
	inner := &fakeSource{posts: map[int64]*domain.MirroredPost{
		7: {ID: 7, AuthorHandle: "jack", Content: "hi"},
	}}
	src := NewCachedSource(inner, cache.NewMemoryStore(0), time.Minute, nil, quietLogger())

	post, err := src.GetPost(context.Background(), 7)
	require.NoError(t, err)
	require.NotNil(t, post)
	assert.Equal(t, "hi", post.Content)

	_, _ = src.GetPost(context.Background(), 7)
	assert.Equal(t, int32(1), inner.calls.Load())
}

func TestCachedSourceCollapsesConcurrentLookups(t *testing.T) {
	inner := &fakeSource{
		accounts: map[string]*domain.MirroredAccount{"jack": {ID: 12, Handle: "jack"}},
		delay:    50 * time.Millisecond,
	}
	src := NewCachedSource(inner, cache.NewMemoryStore(0), time.Minute, nil, quietLogger())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			acc, err := src.GetAccount(context.Background(), "jack")
			assert.NoError(t, err)
			assert.NotNil(t, acc)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, inner.calls.Load(), int32(2))
}

// gatedSource blocks lookups until release is closed or the ctx ends.
type gatedSource struct {
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
}

func (g *gatedSource) GetAccount(ctx context.Context, handle string) (*domain.MirroredAccount, error) {
	if g.calls.Add(1) == 1 {
		close(g.started)
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-g.release:
		return &domain.MirroredAccount{ID: 12, Handle: handle}, nil
	}
}

func (g *gatedSource) GetPost(context.Context, int64) (*domain.MirroredPost, error) {
	return nil, nil
}

func TestCachedSourceCancelledCallerDoesNotFailOthers(t *testing.T) {
	inner := &gatedSource{started: make(chan struct{}), release: make(chan struct{})}
	src := NewCachedSource(inner, cache.NewMemoryStore(0), time.Minute, nil, quietLogger())

	first, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := src.GetAccount(first, "jack")
		firstErr <- err
	}()
	<-inner.started

	type result struct {
		acc *domain.MirroredAccount
		err error
	}
	second := make(chan result, 1)
	go func() {
		acc, err := src.GetAccount(context.Background(), "jack")
		second <- result{acc, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(inner.release)
	res := <-second
	require.NoError(t, res.err)
	require.NotNil(t, res.acc)
	assert.Equal(t, int64(12), res.acc.ID)
	assert.Equal(t, int32(1), inner.calls.Load())
}
