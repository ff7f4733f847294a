// Copyright 2021-2022
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package rcache keeps derived risk results coherent as holdings change.
// Every expensive computation is stored under a structured key with a
// lifecycle of fresh → stale → calculating → fresh/error. Per-key mutexes
// enforce the single-flight invariant: concurrent requests for the same
// key share one in-flight computation instead of racing. Entry state is
// process-local; redis is a write-through payload tier so a restart can
// repopulate without refetching price history.
package rcache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/foliolens/risk-engine/common"
)

var (
	ErrNotCached     = errors.New("no cached value for key")
	ErrNoPayload     = errors.New("entry has no retained payload")
	ErrComputeFailed = errors.New("computation failed")
)

// ComputeFunc produces a fresh value for a key. Implementations must
// honor ctx cancellation; a timed-out job reverts its entry to stale.
type ComputeFunc func(ctx context.Context) (interface{}, error)

// Cache is the coherency manager wrapping all derived risk results
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*Entry

	flightMu sync.Mutex
	flights  map[string]*flight

	local *lru.Cache
	rdb   *redis.Client

	pool *Pool

	maxJobDuration time.Duration
}

type flight struct {
	done chan struct{}
}

// New creates a cache with a compute pool of `workers` workers. rdb may
// be nil when redis is not configured; the in-process tiers still apply.
func New(workers int, rdb *redis.Client) (*Cache, error) {
	size := viper.GetInt("cache.local_size")
	if size <= 0 {
		size = 512
	}
	local, err := lru.New(size)
	if err != nil {
		return nil, err
	}

	maxJob := viper.GetDuration("cache.max_job_duration")
	if maxJob <= 0 {
		maxJob = 2 * time.Minute
	}

	return &Cache{
		entries:        make(map[string]*Entry),
		flights:        make(map[string]*flight),
		local:          local,
		rdb:            rdb,
		pool:           NewPool(workers),
		maxJobDuration: maxJob,
	}, nil
}

// Close stops the compute pool
func (cache *Cache) Close() {
	cache.pool.Stop()
}

// Entry returns a copy of the entry for the key, or ErrNotCached
func (cache *Cache) Entry(key Key) (*Entry, error) {
	cache.mu.RLock()
	defer cache.mu.RUnlock()
	entry, ok := cache.entries[key.String()]
	if !ok {
		return nil, ErrNotCached
	}
	cp := *entry
	return &cp, nil
}

// GetOrCompute returns the cached payload for key, computing it when
// missing, stale, expired, or when force is set. Concurrent callers for
// the same key share a single computation (single-flight); only the
// computation holding the key's flight may transition the entry.
// The result is unmarshaled into out.
func (cache *Cache) GetOrCompute(ctx context.Context, key Key, force bool, compute ComputeFunc, out interface{}) error {
	if !force {
		if err := cache.get(key, out); err == nil {
			return nil
		}
	}

	for {
		fl, leader := cache.joinFlight(key)
		if leader {
			err := cache.runCompute(ctx, key, compute)
			cache.leaveFlight(key, fl)
			if err != nil {
				// serve last good payload when the recompute failed but
				// older data is retained
				if payloadErr := cache.getServable(key, out); payloadErr == nil {
					return nil
				}
				return err
			}
			return cache.get(key, out)
		}

		// follower: await the in-flight computation rather than starting
		// a second one
		select {
		case <-fl.done:
		case <-ctx.Done():
			return ctx.Err()
		}

		if err := cache.getServable(key, out); err == nil {
			return nil
		}
		// leader failed with nothing retained; retry as leader
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// Invalidate marks every entry belonging to the portfolio stale and
// drops the portfolio's payloads from the redis and local tiers so a
// restarted process cannot resurrect them. Entries already stale are
// left untouched to avoid redundant writes; entries mid-calculation
// keep running and their results remain valid for the data they were
// computed from.
func (cache *Cache) Invalidate(portfolioID uuid.UUID) int {
	cache.mu.Lock()
	var n int
	keys := make([]string, 0, 8)
	for _, entry := range cache.entries {
		if entry.Key.PortfolioID != portfolioID {
			continue
		}
		keys = append(keys, entry.Key.String())
		if entry.Status == StatusFresh || entry.Status == StatusError {
			entry.Status = StatusStale
			n++
		}
	}
	cache.mu.Unlock()

	for _, k := range keys {
		cache.local.Remove(k)
	}
	cache.dropRedis(keys)
	return n
}

// StaleKeys returns the keys currently needing recomputation, including
// fresh entries that have outlived their TTL
func (cache *Cache) StaleKeys() []Key {
	cache.mu.RLock()
	defer cache.mu.RUnlock()

	now := time.Now()
	keys := make([]Key, 0, 8)
	for _, entry := range cache.entries {
		if entry.Status == StatusStale || (entry.Status == StatusFresh && entry.Expired(now)) {
			keys = append(keys, entry.Key)
		}
	}
	return keys
}

// RecomputeStale submits one recompute job per stale entry to the worker
// pool using the registered compute function. Returns the number of
// entries handed to the pool; stale entries in families with no
// registered compute function (on-demand-only families) are not
// counted. Invoked by the background scheduler on a fixed interval;
// safe to call while requests are in flight thanks to the per-key
// single-flight discipline.
func (cache *Cache) RecomputeStale(ctx context.Context, computeFor func(Key) ComputeFunc) int {
	var n int
	for _, key := range cache.StaleKeys() {
		key := key
		compute := computeFor(key)
		if compute == nil {
			continue
		}
		if !cache.pool.TrySubmit(func() {
			fl, leader := cache.joinFlight(key)
			if !leader {
				// an ad-hoc request beat us to it
				return
			}
			defer cache.leaveFlight(key, fl)
			if err := cache.runCompute(ctx, key, compute); err != nil {
				log.Warn().Err(err).Str("Key", key.String()).Msg("background recompute failed")
			}
		}) {
			log.Debug().Str("Key", key.String()).Msg("compute pool saturated; entry stays stale until next cycle")
			continue
		}
		n++
	}
	return n
}

// joinFlight acquires or joins the in-flight computation for a key; the
// second return is true for the leader
func (cache *Cache) joinFlight(key Key) (*flight, bool) {
	cache.flightMu.Lock()
	defer cache.flightMu.Unlock()

	if fl, ok := cache.flights[key.String()]; ok {
		return fl, false
	}
	fl := &flight{done: make(chan struct{})}
	cache.flights[key.String()] = fl
	return fl, true
}

func (cache *Cache) leaveFlight(key Key, fl *flight) {
	cache.flightMu.Lock()
	delete(cache.flights, key.String())
	cache.flightMu.Unlock()
	close(fl.done)
}

// runCompute executes the computation under the key's flight and applies
// the resulting state transition. Only the flight leader calls this.
func (cache *Cache) runCompute(ctx context.Context, key Key, compute ComputeFunc) error {
	startedAt := time.Now()
	cache.setStatus(key, StatusCalculating)

	ctx, cancel := context.WithTimeout(ctx, cache.maxJobDuration)
	defer cancel()

	value, err := compute(ctx)

	if ctx.Err() != nil {
		// cancelled or timed out: revert to stale so the scheduler
		// retries; a transient timeout is not an error end-state
		cache.setStatus(key, StatusStale)
		log.Warn().Str("Key", key.String()).Dur("After", time.Since(startedAt)).Msg("compute job cancelled; entry reverts to stale")
		return ctx.Err()
	}

	if err != nil {
		cache.setError(key, err)
		return err
	}

	return cache.store(key, value, startedAt)
}

// store marshals, compresses and saves a freshly computed payload. A
// calculated_at monotonicity check discards late results from superseded
// computations instead of overwriting newer data.
func (cache *Cache) store(key Key, value interface{}, startedAt time.Time) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}

	now := time.Now()
	cache.mu.Lock()
	entry, ok := cache.entries[key.String()]
	if !ok {
		entry = &Entry{Key: key}
		cache.entries[key.String()] = entry
	}
	if entry.CalculatedAt.After(startedAt) {
		cache.mu.Unlock()
		log.Warn().Str("Key", key.String()).Msg("discarding superseded computation result")
		return nil
	}
	entry.Status = StatusFresh
	entry.Payload = payload
	entry.CalculatedAt = now
	entry.LastError = ""
	if ttl := key.Family.TTL(); ttl > 0 {
		entry.ExpiresAt = now.Add(ttl)
	} else {
		entry.ExpiresAt = time.Time{}
	}
	cache.mu.Unlock()

	cache.local.Add(key.String(), payload)
	cache.writeRedis(key, payload)

	return nil
}

// get returns the payload only when the entry is fresh and unexpired.
// A key with no entry at all may be repopulated from redis after a
// restart; the payload is adopted into the entry ledger so later
// invalidations see it.
func (cache *Cache) get(key Key, out interface{}) error {
	cache.mu.RLock()
	entry, ok := cache.entries[key.String()]
	if !ok || entry.Status != StatusFresh || entry.Expired(time.Now()) {
		cache.mu.RUnlock()
		if !ok {
			if payload := cache.readRedis(key); payload != nil {
				cache.adopt(key, payload)
				return json.Unmarshal(payload, out)
			}
		}
		return ErrNotCached
	}
	payload := entry.Payload
	cache.mu.RUnlock()

	return json.Unmarshal(payload, out)
}

// adopt installs a payload recovered from redis as a fresh entry. The
// original calculation time is unknown, so the entry restarts its
// family TTL; only TTL-bearing families are ever written to redis.
func (cache *Cache) adopt(key Key, payload []byte) {
	now := time.Now()
	cache.mu.Lock()
	defer cache.mu.Unlock()
	if _, ok := cache.entries[key.String()]; ok {
		return
	}
	cache.entries[key.String()] = &Entry{
		Key:          key,
		Status:       StatusFresh,
		Payload:      payload,
		CalculatedAt: now,
		ExpiresAt:    now.Add(key.Family.TTL()),
	}
}

// getServable relaxes get to also serve a retained payload from a stale
// or errored entry
func (cache *Cache) getServable(key Key, out interface{}) error {
	cache.mu.RLock()
	entry, ok := cache.entries[key.String()]
	if !ok || !entry.Servable(time.Now()) {
		cache.mu.RUnlock()
		return ErrNoPayload
	}
	payload := entry.Payload
	cache.mu.RUnlock()

	return json.Unmarshal(payload, out)
}

func (cache *Cache) setStatus(key Key, status Status) {
	cache.mu.Lock()
	defer cache.mu.Unlock()
	entry, ok := cache.entries[key.String()]
	if !ok {
		entry = &Entry{Key: key}
		cache.entries[key.String()] = entry
	}
	entry.Status = status
}

// setError records a failed recompute but retains the previous payload,
// if any, for the serve-stale-on-error fallback
func (cache *Cache) setError(key Key, err error) {
	cache.mu.Lock()
	defer cache.mu.Unlock()
	entry, ok := cache.entries[key.String()]
	if !ok {
		entry = &Entry{Key: key}
		cache.entries[key.String()] = entry
	}
	entry.Status = StatusError
	entry.LastError = err.Error()
}

func (cache *Cache) writeRedis(key Key, payload []byte) {
	if cache.rdb == nil {
		return
	}
	ttl := key.Family.TTL()
	if ttl <= 0 {
		// invalidation-only families never hit redis: a payload with no
		// expiry would outlive the invalidation events that govern it
		return
	}
	compressed, err := common.Compress(payload)
	if err != nil {
		log.Warn().Err(err).Msg("could not compress cache payload")
		return
	}
	if err := cache.rdb.Set(context.Background(), key.String(), compressed, ttl).Err(); err != nil {
		log.Warn().Err(err).Str("Key", key.String()).Msg("could not write cache payload to redis")
	}
}

func (cache *Cache) dropRedis(keys []string) {
	if cache.rdb == nil || len(keys) == 0 {
		return
	}
	if err := cache.rdb.Del(context.Background(), keys...).Err(); err != nil {
		log.Warn().Err(err).Msg("could not drop invalidated cache payloads from redis")
	}
}

func (cache *Cache) readRedis(key Key) []byte {
	if cache.rdb == nil {
		return nil
	}
	compressed, err := cache.rdb.Get(context.Background(), key.String()).Bytes()
	if err != nil {
		return nil
	}
	payload, err := common.Decompress(compressed)
	if err != nil {
		return nil
	}
	return payload
}
