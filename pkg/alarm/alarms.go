package alarm

import (
	"sort"
	"sync"
	"time"
)

type Kind string

const (
	KindTransport Kind = "transport"
	KindRejected  Kind = "rejected"
	KindInvalid   Kind = "invalid"
)

type Alarm struct {
	Kind    Kind      `json:"kind"`
	Message string    `json:"message"`
	Since   time.Time `json:"since"`
}

// ActiveAlarms holds at most one active alarm per kind.
type ActiveAlarms struct {
	activeAlarms map[Kind]Alarm
	sync.RWMutex
}

// Set activates an alarm of kind and returns true if it was not already active.
// The message is updated either way, Since is kept.
func (a *ActiveAlarms) Set(kind Kind, message string) bool {
	a.Lock()
	defer a.Unlock()
	if a.activeAlarms == nil {
		a.activeAlarms = make(map[Kind]Alarm)
	}
	existing, ok := a.activeAlarms[kind]
	if ok {
		existing.Message = message
		a.activeAlarms[kind] = existing
		return false
	}
	a.activeAlarms[kind] = Alarm{Kind: kind, Message: message, Since: time.Now()}
	return true
}

// Clear deactivates the given kinds and returns true if any of them was active.
func (a *ActiveAlarms) Clear(kinds ...Kind) bool {
	hasActive := false
	a.Lock()
	for _, kind := range kinds {
		if _, ok := a.activeAlarms[kind]; ok {
			hasActive = true
			delete(a.activeAlarms, kind)
		}
	}
	a.Unlock()
	return hasActive
}

func (a *ActiveAlarms) List() []Alarm {
	a.RLock()
	defer a.RUnlock()
	list := make([]Alarm, 0, len(a.activeAlarms))
	for _, alarm := range a.activeAlarms {
		list = append(list, alarm)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].Kind < list[j].Kind
	})
	return list
}
