// File: client/property_ring_test.go
// Package client: randomized producer/consumer interleaving checks.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package client

import (
	"math/rand"
	"testing"

	"github.com/momentics/hioload-cmdbuf/api"
	"github.com/momentics/hioload-cmdbuf/fake"
)

// lazyConsumer drains at most maxCommands whole commands per sync
// exchange, honoring command boundaries the way a real service does.
func lazyConsumer(rng *rand.Rand, maxCommands int) func(api.State, []api.Entry, int32, int32) api.State {
	return func(cur api.State, ring []api.Entry, put, exp int32) api.State {
		total := int32(len(ring))
		if total == 0 || cur.Error.IsError() {
			return cur
		}
		get := cur.GetOffset
		for n := rng.Intn(maxCommands + 1); n > 0 && get != put; n-- {
			e := ring[get]
			size := e.CmdSize()
			if size < 1 || get+size > total {
				cur.Error = api.ErrorInvalidSize
				return cur
			}
			if e.Opcode() == api.OpSetToken {
				cur.Token = e.Token()
			}
			get += size
			if get == total {
				get = 0
			}
		}
		cur.GetOffset = get
		return cur
	}
}

func TestRingProtocolPropertyBased(t *testing.T) {
	const totalEntries = 64
	for seed := int64(0); seed < 10; seed++ {
		rng := rand.New(rand.NewSource(seed))

		ch := fake.NewChannel()
		ch.OnFlushSync = lazyConsumer(rng, 3)
		h, err := New(ch, totalEntries*api.EntrySize)
		if err != nil {
			t.Fatalf("seed %d: New: %v", seed, err)
		}

		var lastToken int32
		for i := 0; i < 5000; i++ {
			if rng.Intn(20) == 0 {
				tok := h.InsertToken()
				if tok <= lastToken {
					t.Fatalf("seed %d: token regressed: %d after %d", seed, tok, lastToken)
				}
				lastToken = tok
				if rng.Intn(4) == 0 && !h.WaitForToken(tok) {
					t.Fatalf("seed %d: WaitForToken(%d) failed", seed, tok)
				}
				continue
			}

			n := int32(1 + rng.Intn(5))
			span := h.GetSpace(n)
			if span == nil {
				t.Fatalf("seed %d: GetSpace(%d) returned nil: %+v", seed, n, h.Snapshot())
			}
			if int32(len(span)) != n {
				t.Fatalf("seed %d: span length %d, want %d", seed, len(span), n)
			}
			span[0] = api.MakeHeader(api.OpFirstUser, n)
			for j := int32(1); j < n; j++ {
				span[j] = api.Entry(rng.Uint64())
			}

			// Cursor sanity after every reservation.
			if h.put < 0 || h.put > totalEntries {
				t.Fatalf("seed %d: put out of range: %d", seed, h.put)
			}
			start := h.put - n
			if start < 0 || start+n > totalEntries {
				t.Fatalf("seed %d: span straddles the ring end: start=%d n=%d", seed, start, n)
			}
			if h.immediateEntryCount < 0 {
				t.Fatalf("seed %d: negative immediate count", seed)
			}
			inFlight := (h.put + totalEntries - h.lastState.GetOffset) % totalEntries
			if inFlight > totalEntries-1 {
				t.Fatalf("seed %d: in-flight %d exceeds capacity-1", seed, inFlight)
			}
		}

		if !h.Finish() {
			t.Fatalf("seed %d: Finish failed", seed)
		}
		if h.put != h.lastState.GetOffset {
			t.Fatalf("seed %d: ring not drained: put=%d get=%d", seed, h.put, h.lastState.GetOffset)
		}
		if lastToken > 0 && h.lastState.Token != lastToken {
			t.Fatalf("seed %d: service token %d, want %d", seed, h.lastState.Token, lastToken)
		}
	}
}
