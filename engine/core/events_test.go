package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withEventSystem(t *testing.T) {
	t.Helper()
	require.True(t, EventSystemInitialize())
	t.Cleanup(EventSystemShutdown)
}

func TestEventSystemInitializeOnce(t *testing.T) {
	withEventSystem(t)
	assert.False(t, EventSystemInitialize())
}

func TestEventFireReachesListenersInOrder(t *testing.T) {
	withEventSystem(t)
	var got []string
	a, b := new(int), new(int)
	require.True(t, EventRegister(EVENT_CODE_RESIZED, a, func(context EventContext) error {
		got = append(got, "a")
		return nil
	}))
	require.True(t, EventRegister(EVENT_CODE_RESIZED, b, func(context EventContext) error {
		se := context.Data.(*SystemEvent)
		assert.Equal(t, uint32(320), se.WindowWidth)
		got = append(got, "b")
		return nil
	}))
	assert.False(t, EventRegister(EVENT_CODE_RESIZED, a, func(EventContext) error { return nil }), "duplicate listener")

	require.NoError(t, EventFire(EventContext{Type: EVENT_CODE_RESIZED, Data: &SystemEvent{WindowWidth: 320, WindowHeight: 200}}))
	assert.Equal(t, []string{"a", "b"}, got)

	assert.True(t, EventUnregister(EVENT_CODE_RESIZED, a))
	assert.False(t, EventUnregister(EVENT_CODE_RESIZED, a))
	got = nil
	require.NoError(t, EventFire(EventContext{Type: EVENT_CODE_RESIZED, Data: &SystemEvent{WindowWidth: 320}}))
	assert.Equal(t, []string{"b"}, got)
}

func TestEventFireJoinsListenerErrors(t *testing.T) {
	withEventSystem(t)
	first, second := errors.New("first"), errors.New("second")
	calls := 0
	for _, err := range []error{first, nil, second} {
		EventRegister(EVENT_CODE_APPLICATION_QUIT, new(int), func(EventContext) error {
			calls++
			return err
		})
	}
	err := EventFire(EventContext{Type: EVENT_CODE_APPLICATION_QUIT})
	assert.ErrorIs(t, err, first)
	assert.ErrorIs(t, err, second)
	assert.Equal(t, 3, calls)
}

func TestEventListenerMayFireNested(t *testing.T) {
	withEventSystem(t)
	refreshed := false
	EventRegister(EVENT_CODE_RESIZED, new(int), func(context EventContext) error {
		return EventFire(EventContext{Type: EVENT_CODE_DEFAULT_RENDERTARGET_REFRESH_REQUIRED, Data: context.Data})
	})
	EventRegister(EVENT_CODE_DEFAULT_RENDERTARGET_REFRESH_REQUIRED, new(int), func(EventContext) error {
		refreshed = true
		return nil
	})
	require.NoError(t, EventFire(EventContext{Type: EVENT_CODE_RESIZED, Data: &SystemEvent{}}))
	assert.True(t, refreshed)
}

func TestEventSystemDown(t *testing.T) {
	fn := func(EventContext) error { return errors.New("never called") }
	assert.False(t, EventRegister(EVENT_CODE_RESIZED, new(int), fn))
	assert.False(t, EventUnregister(EVENT_CODE_RESIZED, nil))
	assert.NoError(t, EventFire(EventContext{Type: EVENT_CODE_RESIZED}))

	withEventSystem(t)
	assert.False(t, EventRegister(MAX_MESSAGE_CODES, new(int), fn))
	assert.False(t, EventRegister(EVENT_CODE_RESIZED, new(int), nil))
	EventRegister(EVENT_CODE_RESIZED, new(int), fn)
	EventSystemShutdown()
	require.True(t, EventSystemInitialize())
	assert.NoError(t, EventFire(EventContext{Type: EVENT_CODE_RESIZED}), "shutdown drops registrations")
}
