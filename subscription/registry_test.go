package subscription

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DeveloperBeau/AutoGraph/errors"
)

// recordingHandler captures callbacks for assertions.
type recordingHandler struct {
	mu       sync.Mutex
	results  []Result
	complete int
	failures []error
}

func (h *recordingHandler) OnResult(r Result) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.results = append(h.results, r)
}

func (h *recordingHandler) OnComplete() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.complete++
}

func (h *recordingHandler) OnFailure(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failures = append(h.failures, err)
}

func (h *recordingHandler) snapshot() ([]Result, int, []error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Result(nil), h.results...), h.complete, append([]error(nil), h.failures...)
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond)
}

func TestRegisterLookupRemove(t *testing.T) {
	r := NewRegistry()
	h := &recordingHandler{}

	r.Register("film", h, []byte(`{"type":"start","id":"film"}`))
	assert.Equal(t, 1, r.Len())

	got, ok := r.Lookup("film")
	require.True(t, ok)
	assert.Same(t, Handler(h), got)

	assert.True(t, r.Remove("film"))
	assert.Equal(t, 0, r.Len())
	_, ok = r.Lookup("film")
	assert.False(t, ok)

	// Removing again is a no-op
	assert.False(t, r.Remove("film"))
}

func TestRemoveDoesNotNotifyHandler(t *testing.T) {
	r := NewRegistry()
	h := &recordingHandler{}

	r.Register("film", h, nil)
	r.Remove("film")

	time.Sleep(20 * time.Millisecond)
	results, complete, failures := h.snapshot()
	assert.Empty(t, results)
	assert.Zero(t, complete)
	assert.Empty(t, failures)
}

func TestDispatchRoutesToSingleSubscriber(t *testing.T) {
	r := NewRegistry()
	target := &recordingHandler{}
	bystander := &recordingHandler{}

	r.Register("film", target, nil)
	r.Register("planet", bystander, nil)

	assert.True(t, r.Dispatch("film", Result{Data: json.RawMessage(`{"title":"A New Hope"}`)}))

	eventually(t, func() bool {
		results, _, _ := target.snapshot()
		return len(results) == 1
	})

	results, _, _ := target.snapshot()
	assert.JSONEq(t, `{"title":"A New Hope"}`, string(results[0].Data))

	otherResults, _, _ := bystander.snapshot()
	assert.Empty(t, otherResults)
}

func TestDispatchUnknownID(t *testing.T) {
	r := NewRegistry()
	assert.False(t, r.Dispatch("ghost", Result{}))
}

func TestDispatchPreservesOrder(t *testing.T) {
	r := NewRegistry()
	h := &recordingHandler{}
	r.Register("ticks", h, nil)

	const n = 200
	for i := 0; i < n; i++ {
		payload, _ := json.Marshal(map[string]int{"seq": i})
		require.True(t, r.Dispatch("ticks", Result{Data: payload}))
	}

	eventually(t, func() bool {
		results, _, _ := h.snapshot()
		return len(results) == n
	})

	results, _, _ := h.snapshot()
	for i, res := range results {
		var got map[string]int
		require.NoError(t, json.Unmarshal(res.Data, &got))
		assert.Equal(t, i, got["seq"])
	}
}

func TestCompleteNotifiesAndRemoves(t *testing.T) {
	r := NewRegistry()
	h := &recordingHandler{}
	r.Register("film", h, nil)

	assert.True(t, r.Complete("film"))
	assert.Equal(t, 0, r.Len())

	eventually(t, func() bool {
		_, complete, _ := h.snapshot()
		return complete == 1
	})

	assert.False(t, r.Complete("film"))
}

func TestDuplicateRegisterLastWriterWins(t *testing.T) {
	r := NewRegistry()
	first := &recordingHandler{}
	second := &recordingHandler{}

	r.Register("film", first, []byte("frame-1"))
	r.Register("film", second, []byte("frame-2"))
	assert.Equal(t, 1, r.Len())

	r.Dispatch("film", Result{Data: json.RawMessage(`{}`)})

	eventually(t, func() bool {
		results, _, _ := second.snapshot()
		return len(results) == 1
	})

	firstResults, _, _ := first.snapshot()
	assert.Empty(t, firstResults)

	frames := r.StartFrames()
	require.Len(t, frames, 1)
	assert.Equal(t, []byte("frame-2"), frames[0].Frame)
}

func TestStartFramesStableOrder(t *testing.T) {
	r := NewRegistry()
	r.Register("zeta", &recordingHandler{}, []byte("z"))
	r.Register("alpha", &recordingHandler{}, []byte("a"))
	r.Register("mid", &recordingHandler{}, []byte("m"))

	frames := r.StartFrames()
	require.Len(t, frames, 3)
	assert.Equal(t, "alpha", frames[0].ID)
	assert.Equal(t, "mid", frames[1].ID)
	assert.Equal(t, "zeta", frames[2].ID)
}

func TestClearNotifiesEveryHandlerOnce(t *testing.T) {
	r := NewRegistry()
	handlers := make([]*recordingHandler, 5)
	for i, id := range []string{"a", "b", "c", "d", "e"} {
		handlers[i] = &recordingHandler{}
		r.Register(id, handlers[i], nil)
	}

	notified := r.Clear(errors.ErrConnectionLost)
	assert.Equal(t, 5, notified)
	assert.Equal(t, 0, r.Len())

	for _, h := range handlers {
		h := h
		eventually(t, func() bool {
			_, _, failures := h.snapshot()
			return len(failures) == 1
		})
		_, _, failures := h.snapshot()
		assert.ErrorIs(t, failures[0], errors.ErrConnectionLost)
	}
}

func TestMailboxDrainsPendingAfterClose(t *testing.T) {
	r := NewRegistry()
	h := &recordingHandler{}
	r.Register("film", h, nil)

	for i := 0; i < 10; i++ {
		r.Dispatch("film", Result{Data: json.RawMessage(`{}`)})
	}
	r.Complete("film")

	eventually(t, func() bool {
		results, complete, _ := h.snapshot()
		return len(results) == 10 && complete == 1
	})
}

func TestChannelHandlerDelivery(t *testing.T) {
	r := NewRegistry()
	h := NewChannelHandler(4)
	r.Register("film", h, nil)

	r.Dispatch("film", Result{Data: json.RawMessage(`{"title":"A New Hope"}`)})
	r.Complete("film")

	select {
	case res := <-h.Results():
		assert.JSONEq(t, `{"title":"A New Hope"}`, string(res.Data))
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for result")
	}

	select {
	case err := <-h.Done():
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for terminal notification")
	}
}
