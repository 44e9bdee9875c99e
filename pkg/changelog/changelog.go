package changelog

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const Retention = 7 * 24 * time.Hour

type Subsystem string

const (
	SubsystemWaterHeating Subsystem = "water_heating"
	SubsystemInsideTemp   Subsystem = "inside_temperature"
	SubsystemValveSync    Subsystem = "valve_sync"
	SubsystemPrices       Subsystem = "prices"
)

type Kind string

const (
	KindAutomatic       Kind = "automatic"
	KindOverrideApplied Kind = "override_applied"
	KindOverrideCleared Kind = "override_cleared"
	KindEmergency       Kind = "emergency"
	KindManual          Kind = "manual"
)

type Change struct {
	Time        time.Time `json:"time"`
	Subsystem   Subsystem `json:"subsystem"`
	Kind        Kind      `json:"kind"`
	Description string    `json:"description"`
}

// Log is an in memory audit trail of actuations. Entries older than Retention are dropped.
type Log struct {
	changes   []Change
	listeners []func(Change)
	now       func() time.Time
	sync.RWMutex
}

func New(now func() time.Time) *Log {
	if now == nil {
		now = time.Now
	}
	return &Log{now: now}
}

// OnChange registers fn to be called after every Add.
func (l *Log) OnChange(fn func(Change)) {
	l.Lock()
	l.listeners = append(l.listeners, fn)
	l.Unlock()
}

func (l *Log) Add(subsystem Subsystem, kind Kind, description string) Change {
	c := Change{
		Time:        l.now(),
		Subsystem:   subsystem,
		Kind:        kind,
		Description: description,
	}
	l.Lock()
	l.changes = append(l.changes, c)
	l.prune(c.Time)
	listeners := l.listeners
	l.Unlock()

	logrus.WithFields(logrus.Fields{
		"subsystem": subsystem,
		"kind":      kind,
	}).Infof("changelog: %s", description)

	for _, fn := range listeners {
		fn(c)
	}
	return c
}

func (l *Log) prune(now time.Time) {
	cutoff := now.Add(-Retention)
	i := 0
	for i < len(l.changes) && l.changes[i].Time.Before(cutoff) {
		i++
	}
	if i > 0 {
		l.changes = append([]Change(nil), l.changes[i:]...)
	}
}

// List returns changes newer than since, oldest first. Optional subsystem filter.
func (l *Log) List(since time.Time, subsystem Subsystem) []Change {
	l.Lock()
	l.prune(l.now())
	l.Unlock()

	l.RLock()
	defer l.RUnlock()
	out := []Change{}
	for _, c := range l.changes {
		if c.Time.Before(since) {
			continue
		}
		if subsystem != "" && c.Subsystem != subsystem {
			continue
		}
		out = append(out, c)
	}
	return out
}
