package dispatch

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/session-hub/session-webhook-bot/internal/infrastructure/external/telegram"
)

func TestDispatcher_MalformedPayloadInvokesNoHandler(t *testing.T) {
	var invoked atomic.Int32

	r := NewRegistry(nil, nil)
	r.Register(Handler{
		Name:  "spy",
		Group: 0,
		Match: func(_ *telegram.Update) bool { return true },
		Run: func(_ context.Context, _ *telegram.Update) error {
			invoked.Add(1)
			return nil
		},
	})

	d := NewDispatcher(r, nil)

	for _, body := range []string{"", "{", "not json at all", `["array"]`} {
		err := d.Dispatch(context.Background(), []byte(body))
		assert.ErrorIs(t, err, ErrMalformedUpdate, "body: %q", body)
	}

	assert.Equal(t, int32(0), invoked.Load())
}

func TestDispatcher_HandlerErrorPropagates(t *testing.T) {
	wantErr := errors.New("send failed")

	r := NewRegistry(nil, nil)
	r.Register(Handler{
		Name:  "failing",
		Group: 0,
		Match: func(_ *telegram.Update) bool { return true },
		Run:   func(_ context.Context, _ *telegram.Update) error { return wantErr },
	})

	d := NewDispatcher(r, nil)
	err := d.Dispatch(context.Background(), []byte(`{"update_id":1}`))

	require.Error(t, err)
	assert.ErrorIs(t, err, wantErr)
}

func TestDispatcher_AllMatchingHandlersRunDespiteFailure(t *testing.T) {
	var invoked atomic.Int32

	r := NewRegistry(nil, nil)
	r.Register(Handler{
		Name:  "failing",
		Group: 0,
		Match: func(_ *telegram.Update) bool { return true },
		Run:   func(_ context.Context, _ *telegram.Update) error { return errors.New("nope") },
	})
	r.Register(Handler{
		Name:  "counting",
		Group: 2,
		Match: func(_ *telegram.Update) bool { return true },
		Run: func(_ context.Context, _ *telegram.Update) error {
			invoked.Add(1)
			return nil
		},
	})

	d := NewDispatcher(r, nil)
	err := d.Dispatch(context.Background(), []byte(`{"update_id":7}`))

	assert.Error(t, err)
	assert.Equal(t, int32(1), invoked.Load())
}

func TestDispatcher_NoMatchIsSuccess(t *testing.T) {
	r := NewRegistry(nil, nil)
	r.Register(Handler{
		Name:  "never",
		Group: 0,
		Match: func(_ *telegram.Update) bool { return false },
		Run:   func(_ context.Context, _ *telegram.Update) error { return errors.New("unreachable") },
	})

	d := NewDispatcher(r, nil)
	assert.NoError(t, d.Dispatch(context.Background(), []byte(`{"update_id":2}`)))
}

func TestDispatcher_PanickingHandlerBecomesError(t *testing.T) {
	r := NewRegistry(nil, nil)
	r.Register(Handler{
		Name:  "panicking",
		Group: 0,
		Match: func(_ *telegram.Update) bool { return true },
		Run:   func(_ context.Context, _ *telegram.Update) error { panic("boom") },
	})

	d := NewDispatcher(r, nil)
	err := d.Dispatch(context.Background(), []byte(`{"update_id":3}`))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")
}
