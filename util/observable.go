package util

import (
	"reflect"
	"sync"
	"sync/atomic"
)

// Events emitted by ptstream components.
const (
	// EventDrop carries (topic string, frames int, err error).
	EventDrop = "drop"
	// EventDecodeError carries (topic string, err error).
	EventDecodeError = "decode-error"
	// EventExpired carries (topic string, lastPing time.Time).
	EventExpired = "expired"
)

type Unsubscriber func()

// Observable dispatches named events to callbacks. Callbacks may have any
// func signature; Emit's arguments must be assignable to its parameters.
// Each callback runs on its own goroutine.
type Observable struct {
	listeners map[string]map[int]func(...interface{})
	mtx       sync.RWMutex
	hdl       int
}

func NewObservable() *Observable {
	return &Observable{
		listeners: make(map[string]map[int]func(...interface{})),
	}
}

func (o *Observable) On(evt string, cb interface{}) Unsubscriber {
	val := reflect.ValueOf(cb)
	if val.Kind() != reflect.Func {
		panic("callback must be of type reflect.Func")
	}
	cbT := val.Type()

	var closed int32
	wrapped := func(args ...interface{}) {
		if atomic.LoadInt32(&closed) == 1 {
			return
		}
		preparedArgs := make([]reflect.Value, len(args))
		for i, arg := range args {
			if arg == nil {
				preparedArgs[i] = reflect.Zero(cbT.In(i))
			} else {
				preparedArgs[i] = reflect.ValueOf(arg)
			}
		}
		val.Call(preparedArgs)
	}

	o.mtx.Lock()
	defer o.mtx.Unlock()
	if o.listeners[evt] == nil {
		o.listeners[evt] = make(map[int]func(...interface{}))
	}
	hdl := o.hdl
	o.hdl++
	o.listeners[evt][hdl] = wrapped
	return func() {
		if !atomic.CompareAndSwapInt32(&closed, 0, 1) {
			return
		}
		o.off(evt, hdl)
	}
}

func (o *Observable) off(evt string, hdl int) {
	o.mtx.Lock()
	defer o.mtx.Unlock()
	delete(o.listeners[evt], hdl)
	if len(o.listeners[evt]) == 0 {
		delete(o.listeners, evt)
	}
}

// Count returns the number of callbacks listening for evt.
func (o *Observable) Count(evt string) int {
	o.mtx.RLock()
	defer o.mtx.RUnlock()
	return len(o.listeners[evt])
}

func (o *Observable) Emit(evt string, args ...interface{}) {
	o.mtx.RLock()
	defer o.mtx.RUnlock()
	for _, lis := range o.listeners[evt] {
		go lis(args...)
	}
}
