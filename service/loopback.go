// File: service/loopback.go
// Package service provides an in-process command ring consumer.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Loopback implements api.Channel with a dedicated consumer goroutine,
// so producer back-pressure, wraparound and token acknowledgement run
// against real concurrency rather than a scripted fake. Commands with
// user opcodes are handed to a Handler; the service lock is released
// around every handler call, since handlers are foreign code that must
// not be able to stall state readers.

package service

import (
	"fmt"
	"log"
	"runtime"
	"sync"

	"github.com/eapache/queue"

	"github.com/momentics/hioload-cmdbuf/api"
	"github.com/momentics/hioload-cmdbuf/control"
)

// Handler executes one user command. cmd spans the full command, header
// included. A non-zero code poisons the service permanently.
type Handler func(opcode uint32, cmd []api.Entry) api.ErrorCode

// Allocator produces backing regions for CreateRegion. The release
// callback tears the region down once DestroyRegion retires it; it may
// be nil for garbage-collected memory.
type Allocator func(sizeBytes int) (api.Region, func() error, error)

type regionEntry struct {
	region  api.Region
	release func() error
}

// Loopback is an in-process service end of a command ring.
type Loopback struct {
	mu   sync.Mutex
	cond *sync.Cond

	regions    map[int32]regionEntry
	nextID     int32
	maxRegions int

	ring  []api.Entry
	state api.State

	pending *queue.Queue

	handler Handler
	alloc   Allocator
	step    int

	metrics *control.MetricsRegistry

	closed bool
	done   chan struct{}
}

var (
	_ api.Channel          = (*Loopback)(nil)
	_ api.GracefulShutdown = (*Loopback)(nil)
)

// NewLoopback creates a running loopback service. The consumer
// goroutine lives until Close or Shutdown.
func NewLoopback(opts ...LoopbackOption) *Loopback {
	l := &Loopback{
		regions:    make(map[int32]regionEntry),
		nextID:     1,
		maxRegions: defaultMaxRegions,
		pending:    queue.New(),
		step:       defaultStep,
	}
	l.cond = sync.NewCond(&l.mu)
	l.done = make(chan struct{})
	for _, opt := range opts {
		opt(l)
	}
	if l.alloc == nil {
		l.alloc = heapAllocator
	}
	go l.serve()
	return l
}

// CreateRegion implements api.Channel.CreateRegion.
func (l *Loopback) CreateRegion(sizeBytes int) (api.Region, int32, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, -1, api.ErrChannelClosed
	}
	if len(l.regions) >= l.maxRegions {
		return nil, -1, api.ErrRegionExhausted
	}

	region, release, err := l.alloc(sizeBytes)
	if err != nil {
		return nil, -1, fmt.Errorf("service: allocate region: %w", err)
	}
	id := l.nextID
	l.nextID++
	l.regions[id] = regionEntry{region: region, release: release}
	return region, id, nil
}

// DestroyRegion implements api.Channel.DestroyRegion. Destroying the
// active consumer region detaches the ring first, so the consumer never
// touches released memory.
func (l *Loopback) DestroyRegion(id int32) {
	l.mu.Lock()
	entry, ok := l.regions[id]
	if !ok {
		l.mu.Unlock()
		return
	}
	delete(l.regions, id)
	if backing := entry.region.Entries(); len(l.ring) > 0 && len(backing) > 0 && &l.ring[0] == &backing[0] {
		l.ring = nil
		l.state.NumEntries = 0
	}
	l.cond.Broadcast()
	l.mu.Unlock()

	if entry.release != nil {
		if err := entry.release(); err != nil {
			log.Printf("[service] release region %d: %v", id, err)
		}
	}
}

// SetConsumerRegion implements api.Channel.SetConsumerRegion. Both
// cursors reset to zero; the token register survives ring swaps.
func (l *Loopback) SetConsumerRegion(id int32) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}
	entry, ok := l.regions[id]
	if !ok {
		l.fail(api.ErrorGeneric, fmt.Sprintf("unknown consumer region %d", id))
		return
	}
	l.ring = entry.region.Entries()
	l.state.NumEntries = int32(len(l.ring))
	l.state.GetOffset = 0
	l.state.PutOffset = 0
	l.cond.Broadcast()
}

// GetState implements api.Channel.GetState.
func (l *Loopback) GetState() api.State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Flush implements api.Channel.Flush: the put offset is queued for the
// consumer without waiting.
func (l *Loopback) Flush(putOffset int32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed || !l.admitPut(putOffset) {
		return
	}
	l.pending.Add(putOffset)
	l.state.PutOffset = putOffset
	l.cond.Broadcast()
}

// FlushSync implements api.Channel.FlushSync. It queues the put offset,
// then blocks until the consumer moves past expectedGetOffset, drains
// to the submitted put, fails, or the service closes.
func (l *Loopback) FlushSync(putOffset, expectedGetOffset int32) api.State {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return l.state
	}
	if !l.admitPut(putOffset) {
		return l.state
	}
	l.pending.Add(putOffset)
	l.state.PutOffset = putOffset
	l.cond.Broadcast()

	for l.state.GetOffset == expectedGetOffset &&
		l.state.GetOffset != putOffset &&
		!l.state.Error.IsError() &&
		!l.closed {
		l.cond.Wait()
	}
	return l.state
}

// admitPut validates a wire put offset against the installed ring.
func (l *Loopback) admitPut(putOffset int32) bool {
	if l.state.Error.IsError() {
		return false
	}
	if l.ring == nil {
		l.fail(api.ErrorGeneric, "flush before a consumer region was set")
		return false
	}
	if putOffset < 0 || putOffset >= l.state.NumEntries {
		l.fail(api.ErrorInvalidArguments, fmt.Sprintf("put offset %d outside ring of %d", putOffset, l.state.NumEntries))
		return false
	}
	return true
}

// Close stops the consumer and releases all regions. Clients observe a
// lost context on their next exchange. Close is idempotent.
func (l *Loopback) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		<-l.done
		return nil
	}
	l.closed = true
	if !l.state.Error.IsError() {
		l.state.Error = api.ErrorLostContext
	}
	l.cond.Broadcast()
	l.mu.Unlock()

	<-l.done

	l.mu.Lock()
	entries := make([]regionEntry, 0, len(l.regions))
	for id := range l.regions {
		entries = append(entries, l.regions[id])
	}
	l.regions = make(map[int32]regionEntry)
	l.ring = nil
	l.mu.Unlock()

	var err error
	for _, entry := range entries {
		if entry.release == nil {
			continue
		}
		if rerr := entry.release(); rerr != nil && err == nil {
			err = rerr
		}
	}
	return err
}

// Shutdown implements api.GracefulShutdown.
func (l *Loopback) Shutdown() error {
	return l.Close()
}

// Step reports how many commands each consumption quantum executes.
func (l *Loopback) Step() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.step
}

// Snapshot captures the consumer view. Safe from any goroutine.
func (l *Loopback) Snapshot() api.RingSnapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return api.RingSnapshot{
		TotalEntries: l.state.NumEntries,
		Put:          l.state.PutOffset,
		Get:          l.state.GetOffset,
		Token:        l.state.Token,
		Error:        int32(l.state.Error),
		Usable:       !l.closed && !l.state.Error.IsError(),
	}
}

// RegisterDebug exposes the consumer view through a probe registry.
func (l *Loopback) RegisterDebug(dp *control.DebugProbes) {
	dp.RegisterProbe("service.ring", func() any {
		return l.Snapshot().AsMap()
	})
}

// serve is the consumer goroutine: it pops flush targets and drains the
// ring toward each one, step commands per quantum.
func (l *Loopback) serve() {
	l.mu.Lock()
	defer l.mu.Unlock()
	defer close(l.done)

	for {
		for !l.closed && l.pending.Length() == 0 {
			l.cond.Wait()
		}
		if l.closed {
			return
		}
		target := l.pending.Remove().(int32)
		if !l.drainTo(target) {
			return
		}
		l.cond.Broadcast()
	}
}

// drainTo advances get to the target offset. Returns false when the
// service closed mid-drain. Called with the lock held.
func (l *Loopback) drainTo(target int32) bool {
	for l.state.GetOffset != target {
		if l.closed {
			return false
		}
		if l.state.Error.IsError() || l.ring == nil {
			return true
		}

		for n := 0; n < l.step && l.state.GetOffset != target && !l.state.Error.IsError(); n++ {
			if !l.executeOne() {
				return false
			}
			if l.ring == nil {
				break
			}
		}

		// Quantum finished: publish progress and let producers run.
		l.cond.Broadcast()
		l.mu.Unlock()
		runtime.Gosched()
		l.mu.Lock()
	}
	return true
}

// executeOne runs the command at the get cursor and advances past it.
// The lock is dropped around handler calls. Returns false when the
// service closed while unlocked.
func (l *Loopback) executeOne() bool {
	get := l.state.GetOffset
	total := l.state.NumEntries

	e := l.ring[get]
	size := e.CmdSize()
	if size < 1 {
		l.fail(api.ErrorInvalidSize, fmt.Sprintf("command size %d at offset %d", size, get))
		return true
	}
	if get+size > total {
		l.fail(api.ErrorOutOfBounds, fmt.Sprintf("command of %d entries at offset %d crosses ring end %d", size, get, total))
		return true
	}

	switch op := e.Opcode(); op {
	case api.OpNoop:
		l.count("service.noops", 1)
	case api.OpSetToken:
		l.state.Token = e.Token()
		l.count("service.tokens", 1)
	default:
		if l.handler == nil {
			l.fail(api.ErrorUnknownCommand, fmt.Sprintf("opcode %#x with no handler", op))
			return true
		}
		span := l.ring[get : get+size]
		ring := l.ring
		l.mu.Unlock()
		code := l.handler(op, span)
		l.mu.Lock()
		if l.closed {
			return false
		}
		// The ring may have been detached or swapped while unlocked; the
		// cursor math below only applies to the ring the span came from.
		if len(l.ring) == 0 || &l.ring[0] != &ring[0] || l.state.Error.IsError() {
			return true
		}
		if code.IsError() {
			l.fail(code, fmt.Sprintf("handler rejected opcode %#x", op))
			return true
		}
	}

	get += size
	if get == total {
		get = 0
	}
	l.state.GetOffset = get
	l.count("service.commands", 1)
	return true
}

// fail records the first error and wakes every waiter. The service
// never consumes again after failing.
func (l *Loopback) fail(code api.ErrorCode, detail string) {
	if l.state.Error.IsError() {
		return
	}
	log.Printf("[service] %v: %s", code, detail)
	l.state.Error = code
	l.cond.Broadcast()
}

func (l *Loopback) count(key string, delta int64) {
	if l.metrics != nil {
		l.metrics.Inc(key, delta)
	}
}
