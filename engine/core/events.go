package core

import (
	"errors"
	"sync"
)

// System internal event codes. Application should use codes beyond 255.
type SystemEventCode int

const (
	// Shuts the application down on the next frame.
	EVENT_CODE_APPLICATION_QUIT SystemEventCode = 0x01

	// Resized/resolution changed from the OS.
	/* Context usage:
	 * se := data.Data.(*SystemEvent)
	 */
	EVENT_CODE_RESIZED SystemEventCode = 0x08

	// Render targets sized after the viewport must be regenerated.
	/* Context usage:
	 * se := data.Data.(*SystemEvent)
	 */
	EVENT_CODE_DEFAULT_RENDERTARGET_REFRESH_REQUIRED SystemEventCode = 0x16

	MAX_EVENT_CODE SystemEventCode = 0xFF
)

// This should be more than enough codes...
const MAX_MESSAGE_CODES = 16384

type EventContext struct {
	Type SystemEventCode
	Data any
}

type SystemEvent struct {
	WindowWidth  uint32
	WindowHeight uint32
}

// FnOnEvent is invoked synchronously on the goroutine that fires the event.
type FnOnEvent func(context EventContext) error

type registeredEvent struct {
	listener any
	callback FnOnEvent
}

type eventSystemState struct {
	mu          sync.Mutex
	initialized bool
	registered  map[SystemEventCode][]registeredEvent
}

var eventState eventSystemState

/**
 * @brief Initializes the event system. Returns false if it is already running.
 */
func EventSystemInitialize() bool {
	eventState.mu.Lock()
	defer eventState.mu.Unlock()
	if eventState.initialized {
		return false
	}
	eventState.registered = make(map[SystemEventCode][]registeredEvent)
	eventState.initialized = true
	return true
}

// EventSystemShutdown drops every registration. Listeners are not notified.
func EventSystemShutdown() {
	eventState.mu.Lock()
	defer eventState.mu.Unlock()
	eventState.registered = nil
	eventState.initialized = false
}

/**
 * @brief Register to listen for when events are sent with the provided code. A listener
 * registers at most once per code; a duplicate returns false.
 * @param code The event code to listen for.
 * @param listener A comparable listener instance, usually a pointer.
 * @param onEvent The callback invoked when the event code is fired.
 * @returns true if the event is successfully registered; otherwise false.
 */
func EventRegister(code SystemEventCode, listener any, onEvent FnOnEvent) bool {
	if code < 0 || code >= MAX_MESSAGE_CODES || onEvent == nil {
		return false
	}
	eventState.mu.Lock()
	defer eventState.mu.Unlock()
	if !eventState.initialized {
		return false
	}
	for _, e := range eventState.registered[code] {
		if e.listener == listener {
			LogWarn("listener already registered for event code %d", code)
			return false
		}
	}
	eventState.registered[code] = append(eventState.registered[code], registeredEvent{
		listener: listener,
		callback: onEvent,
	})
	return true
}

/**
 * @brief Unregister from listening for when events are sent with the provided code.
 * @returns true if the listener was registered for code; otherwise false.
 */
func EventUnregister(code SystemEventCode, listener any) bool {
	eventState.mu.Lock()
	defer eventState.mu.Unlock()
	if !eventState.initialized {
		return false
	}
	events := eventState.registered[code]
	for i, e := range events {
		if e.listener == listener {
			eventState.registered[code] = append(events[:i:i], events[i+1:]...)
			return true
		}
	}
	return false
}

/**
 * @brief Fires an event to every listener of its code, in registration order.
 * Callbacks run outside the registry lock so they may fire or register in turn.
 * @returns The joined errors of the listeners. Firing with the system down is a no-op.
 */
func EventFire(context EventContext) error {
	eventState.mu.Lock()
	if !eventState.initialized {
		eventState.mu.Unlock()
		return nil
	}
	events := append([]registeredEvent(nil), eventState.registered[context.Type]...)
	eventState.mu.Unlock()

	var errs []error
	for _, e := range events {
		if err := e.callback(context); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
