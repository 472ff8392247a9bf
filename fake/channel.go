// Package fake
// Author: momentics <momentics@gmail.com>
//
// Fake channel implementation for testing and development.
// Provides predictable, controllable consumer behavior without a service.

package fake

import (
	"sync"

	"github.com/momentics/hioload-cmdbuf/api"
	"github.com/momentics/hioload-cmdbuf/shm"
)

// Channel is a fake implementation of api.Channel for testing producers.
//
// The default service model is an eager consumer: every FlushSync drains
// the ring up to the submitted put offset, executing token commands on
// the way. OnFlushSync replaces that model with a scripted one for
// back-pressure and failure scenarios.
type Channel struct {
	mu sync.Mutex

	regions  map[int32]api.Region
	nextID   int32
	consumer []api.Entry
	state    api.State

	createError error

	flushCalls     []int32
	flushSyncCalls int
	getStateCalls  int
	destroyedIDs   []int32

	// OnFlushSync, when set, computes the state FlushSync publishes.
	// It receives the current state, the live consumer ring, and the
	// call arguments; the fake adopts whatever state it returns. The
	// hook runs with the fake locked, so it must not call back into
	// the channel.
	OnFlushSync func(cur api.State, ring []api.Entry, putOffset, expectedGetOffset int32) api.State
}

var _ api.Channel = (*Channel)(nil)

// NewChannel creates a new fake channel with default settings.
func NewChannel() *Channel {
	return &Channel{
		regions: make(map[int32]api.Region),
		nextID:  1,
	}
}

// CreateRegion implements api.Channel.CreateRegion.
func (c *Channel) CreateRegion(sizeBytes int) (api.Region, int32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.createError != nil {
		return nil, -1, c.createError
	}

	r, err := shm.NewHeapRegion(sizeBytes)
	if err != nil {
		return nil, -1, err
	}
	id := c.nextID
	c.nextID++
	c.regions[id] = r
	return r, id, nil
}

// DestroyRegion implements api.Channel.DestroyRegion.
func (c *Channel) DestroyRegion(id int32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.regions, id)
	c.destroyedIDs = append(c.destroyedIDs, id)
}

// SetConsumerRegion implements api.Channel.SetConsumerRegion.
// The cursors reset to zero, as a real service does when handed a new ring.
func (c *Channel) SetConsumerRegion(id int32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.consumer = nil
	c.state.NumEntries = 0
	c.state.GetOffset = 0
	c.state.PutOffset = 0
	if r, ok := c.regions[id]; ok {
		c.consumer = r.Entries()
		c.state.NumEntries = int32(len(c.consumer))
	}
}

// GetState implements api.Channel.GetState.
func (c *Channel) GetState() api.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.getStateCalls++
	return c.state
}

// Flush implements api.Channel.Flush. The put offset is recorded but
// nothing is consumed until a FlushSync arrives, mimicking a service
// that is busy elsewhere.
func (c *Channel) Flush(putOffset int32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flushCalls = append(c.flushCalls, putOffset)
	c.state.PutOffset = putOffset
}

// FlushSync implements api.Channel.FlushSync.
func (c *Channel) FlushSync(putOffset, expectedGetOffset int32) api.State {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.flushSyncCalls++
	c.state.PutOffset = putOffset
	if c.OnFlushSync != nil {
		c.state = c.OnFlushSync(c.state, c.consumer, putOffset, expectedGetOffset)
	} else {
		c.drainLocked(putOffset)
	}
	return c.state
}

// drainLocked walks the ring from the current get offset to put,
// executing token commands and wrapping at the ring end.
func (c *Channel) drainLocked(put int32) {
	total := int32(len(c.consumer))
	if total == 0 || c.state.Error.IsError() {
		return
	}
	get := c.state.GetOffset
	for get != put {
		e := c.consumer[get]
		size := e.CmdSize()
		if size < 1 {
			c.state.Error = api.ErrorInvalidSize
			return
		}
		if get+size > total {
			c.state.Error = api.ErrorOutOfBounds
			return
		}
		if e.Opcode() == api.OpSetToken {
			c.state.Token = e.Token()
		}
		get += size
		if get == total {
			get = 0
		}
		c.state.GetOffset = get
	}
}

// SetCreateError configures the channel to fail region creation.
func (c *Channel) SetCreateError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.createError = err
}

// SetError injects a service-side error code into the published state.
func (c *Channel) SetError(code api.ErrorCode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Error = code
}

// SetGetOffset moves the consumer cursor directly, bypassing execution.
func (c *Channel) SetGetOffset(get int32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.GetOffset = get
}

// GetFlushCalls returns the put offsets passed to Flush, in order.
func (c *Channel) GetFlushCalls() []int32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]int32, len(c.flushCalls))
	copy(out, c.flushCalls)
	return out
}

// GetFlushSyncCalls returns how many times FlushSync ran.
func (c *Channel) GetFlushSyncCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flushSyncCalls
}

// GetStateCalls returns how many times GetState ran.
func (c *Channel) GetStateCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getStateCalls
}

// GetDestroyedIDs returns the region ids passed to DestroyRegion.
func (c *Channel) GetDestroyedIDs() []int32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]int32, len(c.destroyedIDs))
	copy(out, c.destroyedIDs)
	return out
}

// ConsumerEntries returns a copy of the consumer ring contents.
func (c *Channel) ConsumerEntries() []api.Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]api.Entry, len(c.consumer))
	copy(out, c.consumer)
	return out
}
