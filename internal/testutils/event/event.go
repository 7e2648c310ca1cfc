package testevent

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rainbow-dao/drn/event"
)

type TestEventHandler struct {
	mutex  sync.Mutex
	events []*event.Event
}

func (eh *TestEventHandler) HandleEvent(e *event.Event) {
	eh.mutex.Lock()
	defer eh.mutex.Unlock()
	eh.events = append(eh.events, e)
}

func (eh *TestEventHandler) GetEvents() []*event.Event {
	eh.mutex.Lock()
	defer eh.mutex.Unlock()
	return append([]*event.Event{}, eh.events...)
}

// Of returns content of the events of given type in emit order.
func (eh *TestEventHandler) Of(et event.Type) []any {
	var res []any
	for _, e := range eh.GetEvents() {
		if e.EventType == et {
			res = append(res, e.Content)
		}
	}
	return res
}

func (eh *TestEventHandler) Reset() {
	eh.mutex.Lock()
	defer eh.mutex.Unlock()
	eh.events = []*event.Event{}
}

func ContainsEvent(t *testing.T, eh *TestEventHandler, et event.Type) {
	t.Helper()
	require.NotEmpty(t, eh.Of(et), "expected event %s", et)
}

func NotContainsEvent(t *testing.T, eh *TestEventHandler, et event.Type) {
	t.Helper()
	for _, e := range eh.GetEvents() {
		if e.EventType == et {
			t.Errorf("event %v should not be present", et)
		}
	}
}
