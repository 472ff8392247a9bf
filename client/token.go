// File: client/token.go
// Package client: sync token issue and wait paths.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package client

import (
	"log"

	"github.com/momentics/hioload-cmdbuf/api"
)

// InsertToken writes a set-token command carrying the next token value
// and returns that value. Tokens count up through 31 bits; a token has
// passed once the service has read a value at least as high. On the
// rare wrap to zero the helper drains the ring first, so an old high
// token can never be confused with a fresh low one. An unusable helper
// returns the current value without advancing.
func (h *Helper) InsertToken() int32 {
	h.AllocateRingBuffer()
	if !h.usable {
		return h.token
	}
	h.token = (h.token + 1) & api.TokenMask
	span := h.GetSpace(1)
	if span != nil {
		span[0] = api.MakeSetToken(h.token)
		h.count("client.tokens", 1)
		if h.token == 0 {
			// Wrapped.
			h.Finish()
		}
	}
	return h.token
}

// LastTokenRead polls the channel and returns the highest token value
// the service has executed.
func (h *Helper) LastTokenRead() int32 {
	h.pollState()
	return h.lastState.Token
}

// HasTokenPassed reports whether the service has executed the command
// stream up to the given token, without blocking.
func (h *Helper) HasTokenPassed(token int32) bool {
	if token > h.token {
		// Token not issued in this epoch, so it passed before the wrap.
		return true
	}
	return h.LastTokenRead() >= token
}

// WaitForToken blocks until the service has executed past the given
// token. Waits for negative tokens, or for tokens newer than any
// issued, return immediately: those are stale handles, not errors.
// Observing an empty ring while the token is still outstanding is a
// protocol violation; the helper poisons itself and reports false
// rather than spinning forever. False also means the channel failed
// mid-wait.
func (h *Helper) WaitForToken(token int32) bool {
	if !h.usable || !h.haveRingBuffer() {
		return false
	}
	if token < 0 {
		return true
	}
	if token > h.token {
		// We wrapped.
		return true
	}
	for h.lastState.Token < token {
		if h.lastState.GetOffset == h.put {
			log.Printf("[client] empty ring while waiting on token %d", token)
			h.clearUsable()
			return false
		}
		// Do not loop forever if the sync fails; the consumer may have
		// shut down.
		if !h.FlushSync() {
			return false
		}
	}
	return true
}
