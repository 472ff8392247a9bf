// File: service/loopback_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package service_test

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/momentics/hioload-cmdbuf/api"
	"github.com/momentics/hioload-cmdbuf/client"
	"github.com/momentics/hioload-cmdbuf/control"
	"github.com/momentics/hioload-cmdbuf/service"
)

const ringBytes = 8 * api.EntrySize

func newRing(t *testing.T, lb *service.Loopback, sizeBytes int) (api.Region, int32) {
	t.Helper()
	region, id, err := lb.CreateRegion(sizeBytes)
	if err != nil {
		t.Fatalf("CreateRegion: %v", err)
	}
	lb.SetConsumerRegion(id)
	return region, id
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestLoopbackExecutesInOrder(t *testing.T) {
	lb := service.NewLoopback()
	defer lb.Close()

	region, _ := newRing(t, lb, ringBytes)

	st := lb.GetState()
	if st.NumEntries != 8 || st.GetOffset != 0 || st.PutOffset != 0 || st.Error.IsError() {
		t.Fatalf("unexpected initial state: %+v", st)
	}

	ring := region.Entries()
	ring[0] = api.MakeNoop(2)
	ring[2] = api.MakeSetToken(7)

	st = lb.FlushSync(3, 0)
	if st.Error.IsError() {
		t.Fatalf("unexpected error: %v", st.Error)
	}
	if st.GetOffset != 3 {
		t.Fatalf("get = %d, want 3", st.GetOffset)
	}
	if st.Token != 7 {
		t.Fatalf("token = %d, want 7", st.Token)
	}

	// Nothing new to consume: the exchange returns without blocking.
	st = lb.FlushSync(3, 3)
	if st.GetOffset != 3 || st.Token != 7 {
		t.Fatalf("drained state changed: %+v", st)
	}
}

func TestLoopbackHandlerReceivesCommands(t *testing.T) {
	type call struct {
		opcode uint32
		cmd    []api.Entry
	}
	var mu sync.Mutex
	var calls []call

	lb := service.NewLoopback(service.WithHandler(func(opcode uint32, cmd []api.Entry) api.ErrorCode {
		cp := make([]api.Entry, len(cmd))
		copy(cp, cmd)
		mu.Lock()
		calls = append(calls, call{opcode: opcode, cmd: cp})
		mu.Unlock()
		return api.ErrorNone
	}))
	defer lb.Close()

	region, _ := newRing(t, lb, ringBytes)
	ring := region.Entries()
	ring[0] = api.MakeValueHeader(api.OpFirstUser, 2, 0xABCD)
	ring[1] = api.Entry(42)
	ring[2] = api.MakeHeader(api.OpFirstUser+3, 1)

	st := lb.FlushSync(3, 0)
	if st.Error.IsError() {
		t.Fatalf("unexpected error: %v", st.Error)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(calls) != 2 {
		t.Fatalf("handler saw %d commands, want 2", len(calls))
	}
	first, second := calls[0], calls[1]
	if first.opcode != api.OpFirstUser || len(first.cmd) != 2 {
		t.Fatalf("first command: opcode %#x, %d entries", first.opcode, len(first.cmd))
	}
	if first.cmd[0].Value() != 0xABCD || first.cmd[1] != api.Entry(42) {
		t.Fatalf("first command payload: %v", first.cmd)
	}
	if second.opcode != api.OpFirstUser+3 || len(second.cmd) != 1 {
		t.Fatalf("second command: opcode %#x, %d entries", second.opcode, len(second.cmd))
	}
}

func TestLoopbackEndToEndWithClient(t *testing.T) {
	var executed atomic.Int64
	metrics := control.NewMetricsRegistry()

	lb := service.NewLoopback(
		service.WithHandler(func(opcode uint32, cmd []api.Entry) api.ErrorCode {
			executed.Add(1)
			return api.ErrorNone
		}),
		service.WithMetrics(metrics),
	)
	defer lb.Close()

	h, err := client.New(lb, 16*api.EntrySize)
	if err != nil {
		t.Fatalf("client.New: %v", err)
	}
	if !h.AllocateRingBuffer() {
		t.Fatal("ring allocation failed")
	}

	const commands = 200
	var tokens, lastToken int32
	for i := 0; i < commands; i++ {
		size := int32(1 + i%3)
		span := h.GetSpace(size)
		span[0] = api.MakeHeader(api.OpFirstUser, size)
		for j := int32(1); j < size; j++ {
			span[j] = api.Entry(uint64(i)<<8 | uint64(j))
		}
		if i%5 == 4 {
			lastToken = h.InsertToken()
			tokens++
		}
	}

	if !h.Finish() {
		t.Fatal("Finish returned false")
	}
	if got := executed.Load(); got != commands {
		t.Fatalf("handler executed %d commands, want %d", got, commands)
	}
	if !h.WaitForToken(lastToken) {
		t.Fatalf("token %d never acknowledged", lastToken)
	}

	snap := lb.Snapshot()
	if snap.Token != lastToken {
		t.Fatalf("service token = %d, want %d", snap.Token, lastToken)
	}
	if snap.Put != snap.Get {
		t.Fatalf("ring not drained: put %d, get %d", snap.Put, snap.Get)
	}
	if got := metrics.Counter("service.tokens"); got != int64(tokens) {
		t.Fatalf("service.tokens = %d, want %d", got, tokens)
	}
	if got := metrics.Counter("service.commands"); got < commands {
		t.Fatalf("service.commands = %d, want at least %d", got, commands)
	}
	if h.IsContextLost() {
		t.Fatal("context lost after clean run")
	}
}

func TestLoopbackStepOneBackPressure(t *testing.T) {
	var executed atomic.Int64
	lb := service.NewLoopback(
		service.WithStep(1),
		service.WithHandler(func(uint32, []api.Entry) api.ErrorCode {
			executed.Add(1)
			return api.ErrorNone
		}),
	)
	defer lb.Close()

	h, err := client.New(lb, ringBytes)
	if err != nil {
		t.Fatalf("client.New: %v", err)
	}
	if !h.AllocateRingBuffer() {
		t.Fatal("ring allocation failed")
	}

	// Each iteration demands most of an eight-entry ring, so the
	// producer has to wait for the single-command quanta to catch up.
	const commands = 64
	for i := 0; i < commands; i++ {
		span := h.GetSpace(4)
		span[0] = api.MakeHeader(api.OpFirstUser, 4)
	}
	if !h.Finish() {
		t.Fatal("Finish returned false")
	}
	if got := executed.Load(); got != commands {
		t.Fatalf("executed %d commands, want %d", got, commands)
	}
}

func TestLoopbackUnknownCommandPoisons(t *testing.T) {
	lb := service.NewLoopback()
	defer lb.Close()

	h, err := client.New(lb, ringBytes)
	if err != nil {
		t.Fatalf("client.New: %v", err)
	}
	if !h.AllocateRingBuffer() {
		t.Fatal("ring allocation failed")
	}

	span := h.GetSpace(1)
	span[0] = api.MakeHeader(api.OpFirstUser, 1)
	if h.Finish() {
		t.Fatal("Finish succeeded over a service with no handler")
	}
	if !h.IsContextLost() {
		t.Fatal("client did not observe the lost context")
	}
	if st := lb.GetState(); st.Error != api.ErrorUnknownCommand {
		t.Fatalf("service error = %v, want %v", st.Error, api.ErrorUnknownCommand)
	}
}

func TestLoopbackInvalidSizePoisons(t *testing.T) {
	lb := service.NewLoopback()
	defer lb.Close()

	newRing(t, lb, ringBytes)

	// Entry zero was never written: its size field is zero.
	st := lb.FlushSync(1, 0)
	if st.Error != api.ErrorInvalidSize {
		t.Fatalf("error = %v, want %v", st.Error, api.ErrorInvalidSize)
	}
	if st.GetOffset != 0 {
		t.Fatalf("get moved to %d past a malformed command", st.GetOffset)
	}

	// Poisoning is permanent.
	st = lb.FlushSync(1, 0)
	if st.Error != api.ErrorInvalidSize || st.GetOffset != 0 {
		t.Fatalf("state after poisoning: %+v", st)
	}
}

func TestLoopbackOutOfBoundsPoisons(t *testing.T) {
	lb := service.NewLoopback()
	defer lb.Close()

	region, _ := newRing(t, lb, ringBytes)
	ring := region.Entries()
	ring[0] = api.MakeNoop(6)
	ring[6] = api.MakeNoop(4)

	st := lb.FlushSync(7, 0)
	if st.Error != api.ErrorOutOfBounds {
		t.Fatalf("error = %v, want %v", st.Error, api.ErrorOutOfBounds)
	}
	if st.GetOffset != 6 {
		t.Fatalf("get = %d, want 6", st.GetOffset)
	}
}

func TestLoopbackRejectsWildPut(t *testing.T) {
	lb := service.NewLoopback()
	defer lb.Close()

	newRing(t, lb, ringBytes)

	st := lb.FlushSync(8, 0)
	if st.Error != api.ErrorInvalidArguments {
		t.Fatalf("error = %v, want %v", st.Error, api.ErrorInvalidArguments)
	}
}

func TestLoopbackFlushBeforeRegionFails(t *testing.T) {
	lb := service.NewLoopback()
	defer lb.Close()

	st := lb.FlushSync(1, 0)
	if st.Error != api.ErrorGeneric {
		t.Fatalf("error = %v, want %v", st.Error, api.ErrorGeneric)
	}
}

func TestLoopbackRegionLimit(t *testing.T) {
	lb := service.NewLoopback(service.WithMaxRegions(1))
	defer lb.Close()

	if _, _, err := lb.CreateRegion(ringBytes); err != nil {
		t.Fatalf("first CreateRegion: %v", err)
	}
	_, _, err := lb.CreateRegion(ringBytes)
	if !errors.Is(err, api.ErrRegionExhausted) {
		t.Fatalf("second CreateRegion error = %v, want %v", err, api.ErrRegionExhausted)
	}
}

func TestLoopbackCreateAfterCloseFails(t *testing.T) {
	lb := service.NewLoopback()
	if err := lb.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	_, _, err := lb.CreateRegion(ringBytes)
	if !errors.Is(err, api.ErrChannelClosed) {
		t.Fatalf("CreateRegion error = %v, want %v", err, api.ErrChannelClosed)
	}
}

func TestLoopbackCloseIsIdempotent(t *testing.T) {
	lb := service.NewLoopback()
	newRing(t, lb, ringBytes)
	if err := lb.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := lb.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if err := lb.Shutdown(); err != nil {
		t.Fatalf("Shutdown after Close: %v", err)
	}
}

func TestLoopbackCloseUnblocksWaiter(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once

	lb := service.NewLoopback(service.WithHandler(func(uint32, []api.Entry) api.ErrorCode {
		once.Do(func() { close(entered) })
		<-release
		return api.ErrorNone
	}))

	region, _ := newRing(t, lb, ringBytes)
	region.Entries()[0] = api.MakeHeader(api.OpFirstUser, 1)
	lb.Flush(1)

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("handler never entered")
	}

	got := make(chan api.State, 1)
	go func() {
		got <- lb.FlushSync(1, 0)
	}()
	closed := make(chan error, 1)
	go func() {
		closed <- lb.Close()
	}()

	select {
	case st := <-got:
		if st.Error != api.ErrorLostContext {
			t.Fatalf("waiter state error = %v, want %v", st.Error, api.ErrorLostContext)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("FlushSync still blocked after Close")
	}

	close(release)
	select {
	case err := <-closed:
		if err != nil {
			t.Fatalf("Close: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Close never returned")
	}
}

func TestLoopbackTuningReloadsStep(t *testing.T) {
	cs := control.NewConfigStore()
	cs.SetConfigSync(map[string]any{service.TuningStep: 3})

	lb := service.NewLoopback(service.WithTuning(cs))
	defer lb.Close()

	if got := lb.Step(); got != 3 {
		t.Fatalf("initial step = %d, want 3", got)
	}

	cs.SetConfigSync(map[string]any{service.TuningStep: 9})
	if got := lb.Step(); got != 9 {
		t.Fatalf("step after reload = %d, want 9", got)
	}

	// Zero would stall the consumer, so the knob clamps.
	cs.SetConfigSync(map[string]any{service.TuningStep: 0})
	if got := lb.Step(); got != 1 {
		t.Fatalf("step after bad reload = %d, want 1", got)
	}
}

func TestLoopbackSetConsumerRegionResets(t *testing.T) {
	lb := service.NewLoopback()
	defer lb.Close()

	region, _ := newRing(t, lb, ringBytes)
	region.Entries()[0] = api.MakeSetToken(5)
	if st := lb.FlushSync(1, 0); st.GetOffset != 1 || st.Token != 5 {
		t.Fatalf("state after first drain: %+v", st)
	}

	_, next, err := lb.CreateRegion(2 * ringBytes)
	if err != nil {
		t.Fatalf("CreateRegion: %v", err)
	}
	lb.SetConsumerRegion(next)

	st := lb.GetState()
	if st.NumEntries != 16 || st.GetOffset != 0 || st.PutOffset != 0 {
		t.Fatalf("state after ring swap: %+v", st)
	}
	if st.Token != 5 {
		t.Fatalf("token %d lost across ring swap", st.Token)
	}
}

func TestLoopbackDestroyActiveRegionDetaches(t *testing.T) {
	lb := service.NewLoopback()
	defer lb.Close()

	_, id := newRing(t, lb, ringBytes)
	lb.DestroyRegion(id)

	if st := lb.GetState(); st.NumEntries != 0 {
		t.Fatalf("NumEntries = %d after destroying the active region", st.NumEntries)
	}
	if st := lb.FlushSync(1, 0); st.Error != api.ErrorGeneric {
		t.Fatalf("flush into detached ring: error = %v", st.Error)
	}
}

func TestLoopbackSnapshotAndProbe(t *testing.T) {
	lb := service.NewLoopback()
	defer lb.Close()

	region, _ := newRing(t, lb, ringBytes)
	region.Entries()[0] = api.MakeSetToken(9)
	lb.FlushSync(1, 0)

	snap := lb.Snapshot()
	if snap.TotalEntries != 8 || snap.Get != 1 || snap.Put != 1 || snap.Token != 9 {
		t.Fatalf("snapshot: %+v", snap)
	}
	if !snap.Usable {
		t.Fatal("snapshot reports unusable service")
	}

	dp := control.NewDebugProbes()
	lb.RegisterDebug(dp)
	dump := dp.DumpState()
	if _, ok := dump["service.ring"]; !ok {
		t.Fatalf("probe missing from dump: %v", dump)
	}
}

func TestLoopbackAsyncFlushConsumesEventually(t *testing.T) {
	lb := service.NewLoopback()
	defer lb.Close()

	region, _ := newRing(t, lb, ringBytes)
	region.Entries()[0] = api.MakeSetToken(3)
	lb.Flush(1)

	waitUntil(t, "async flush to drain", func() bool {
		st := lb.GetState()
		return st.GetOffset == 1 && st.Token == 3
	})
}
