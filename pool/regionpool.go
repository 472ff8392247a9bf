// File: pool/regionpool.go
// Package pool
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Recycling store for transfer regions. Ring swaps and short-lived
// clients churn through regions of a handful of sizes, so released
// regions park on per-size free lists instead of going back to the
// allocator.

package pool

import (
	"sync"

	"github.com/momentics/hioload-cmdbuf/api"
	"github.com/momentics/hioload-cmdbuf/shm"
)

const defaultDepth = 16

// Stats counts pool traffic since creation.
type Stats struct {
	Hits    int64
	Misses  int64
	Returns int64
	Drops   int64
}

// RegionPool recycles heap-backed regions keyed by byte size.
type RegionPool struct {
	mu    sync.Mutex
	idle  map[int]chan api.Region
	depth int
	stats Stats
}

// NewRegionPool creates a pool holding up to depth idle regions per
// size. depth below one falls back to the default.
func NewRegionPool(depth int) *RegionPool {
	if depth < 1 {
		depth = defaultDepth
	}
	return &RegionPool{
		idle:  make(map[int]chan api.Region),
		depth: depth,
	}
}

func (p *RegionPool) freelist(sizeBytes int) chan api.Region {
	p.mu.Lock()
	ch, ok := p.idle[sizeBytes]
	if !ok {
		ch = make(chan api.Region, p.depth)
		p.idle[sizeBytes] = ch
	}
	p.mu.Unlock()
	return ch
}

// Get returns a zeroed region of the requested size, reusing an idle
// one when available.
func (p *RegionPool) Get(sizeBytes int) (api.Region, error) {
	select {
	case region := <-p.freelist(sizeBytes):
		wipe(region)
		p.bump(func(s *Stats) { s.Hits++ })
		return region, nil
	default:
	}
	region, err := shm.NewHeapRegion(sizeBytes)
	if err != nil {
		return nil, err
	}
	p.bump(func(s *Stats) { s.Misses++ })
	return region, nil
}

// Put parks a region on its free list. When the list is full the
// region is dropped for the garbage collector.
func (p *RegionPool) Put(region api.Region) {
	if region == nil {
		return
	}
	select {
	case p.freelist(region.Size()) <- region:
		p.bump(func(s *Stats) { s.Returns++ })
	default:
		p.bump(func(s *Stats) { s.Drops++ })
	}
}

// Allocator adapts the pool to the service allocator shape: releases
// recycle instead of freeing.
func (p *RegionPool) Allocator() func(sizeBytes int) (api.Region, func() error, error) {
	return func(sizeBytes int) (api.Region, func() error, error) {
		region, err := p.Get(sizeBytes)
		if err != nil {
			return nil, nil, err
		}
		return region, func() error {
			p.Put(region)
			return nil
		}, nil
	}
}

// Stats returns a copy of the traffic counters.
func (p *RegionPool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

func (p *RegionPool) bump(fn func(*Stats)) {
	p.mu.Lock()
	fn(&p.stats)
	p.mu.Unlock()
}

// wipe clears a recycled region so it is indistinguishable from a
// fresh allocation.
func wipe(region api.Region) {
	entries := region.Entries()
	for i := range entries {
		entries[i] = 0
	}
}
