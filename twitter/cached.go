package twitter

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/deemkeen/birdbridge/cache"
	"github.com/deemkeen/birdbridge/domain"
	"github.com/deemkeen/birdbridge/metrics"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// sharedFetchTimeout bounds a collapsed upstream call, which no longer
// follows any single caller's context.
const sharedFetchTimeout = 30 * time.Second

// CachedSource keeps recent lookups in a cache.Store and collapses
// concurrent lookups of the same key into one upstream call.
type CachedSource struct {
	inner   Source
	store   cache.Store
	ttl     time.Duration
	sf      singleflight.Group
	metrics *metrics.BridgeMetrics
	log     logrus.FieldLogger
}

func NewCachedSource(inner Source, store cache.Store, ttl time.Duration, m *metrics.BridgeMetrics, log logrus.FieldLogger) *CachedSource {
	return &CachedSource{
		inner:   inner,
		store:   store,
		ttl:     ttl,
		metrics: m,
		log:     log.WithField("component", "source-cache"),
	}
}

func (s *CachedSource) GetAccount(ctx context.Context, handle string) (*domain.MirroredAccount, error) {
	var acc domain.MirroredAccount
	found, err := s.load(ctx, "account:"+handle, &acc, func(ctx context.Context) (interface{}, error) {
		return s.inner.GetAccount(ctx, handle)
	})
	if err != nil || !found {
		return nil, err
	}
	return &acc, nil
}

func (s *CachedSource) GetPost(ctx context.Context, id int64) (*domain.MirroredPost, error) {
	var post domain.MirroredPost
	found, err := s.load(ctx, "post:"+strconv.FormatInt(id, 10), &post, func(ctx context.Context) (interface{}, error) {
		return s.inner.GetPost(ctx, id)
	})
	if err != nil || !found {
		return nil, err
	}
	return &post, nil
}

// load fills out from the cache, or runs fetch once per key and stores its
// result. Absent results are not cached. The shared fetch outlives callers
// that give up; each caller only waits as long as its own ctx allows.
func (s *CachedSource) load(ctx context.Context, key string, out interface{}, fetch func(context.Context) (interface{}, error)) (bool, error) {
	if buf, ok, err := s.store.Get(ctx, key); err != nil {
		s.log.WithError(err).WithField("key", key).Warn("Cache read failed")
	} else if ok {
		if err := json.Unmarshal(buf, out); err == nil {
			s.metrics.IncCache("hit")
			return true, nil
		}
		s.log.WithField("key", key).Warn("Dropping undecodable cache entry")
	}
	s.metrics.IncCache("miss")

	ch := s.sf.DoChan(key, func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedFetchTimeout)
		defer cancel()

		v, err := fetch(fetchCtx)
		if err != nil {
			return nil, err
		}
		buf, err := marshalFound(v)
		if err != nil || buf == nil {
			return buf, err
		}
		if err := s.store.Set(fetchCtx, key, buf, s.ttl); err != nil {
			s.log.WithError(err).WithField("key", key).Warn("Cache write failed")
		}
		return buf, nil
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		return false, res.Err
	}

	buf, _ := res.Val.([]byte)
	if buf == nil {
		return false, nil
	}
	if err := json.Unmarshal(buf, out); err != nil {
		return false, fmt.Errorf("decoding %s: %w", key, err)
	}
	return true, nil
}

func marshalFound(v interface{}) ([]byte, error) {
	switch t := v.(type) {
	case *domain.MirroredAccount:
		if t == nil {
			return nil, nil
		}
	case *domain.MirroredPost:
		if t == nil {
			return nil, nil
		}
	case nil:
		return nil, nil
	}
	return json.Marshal(v)
}
