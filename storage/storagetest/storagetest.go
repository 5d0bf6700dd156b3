// Package storagetest gives each test its own store, a captured log and
// counting subscribers, and checks on cleanup that nothing was leaked.
package storagetest

import (
	"testing"

	"github.com/delaneyj/appstate/storage"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
)

type Harness struct {
	Store    *storage.Store
	Registry *storage.Registry
	Logs     *logtest.Hook
}

// New builds a fresh store seeded with initial. When the test ends the
// store is torn down and the registry must be back to empty, so every
// link, prop and spy the test created has to have been released.
func New(t testing.TB, initial ...storage.Initial) *Harness {
	t.Helper()

	logger, hook := logtest.NewNullLogger()
	reg := storage.NewRegistry()
	h := &Harness{
		Registry: reg,
		Logs:     hook,
		Store: storage.NewStore(
			storage.WithRegistry(reg),
			storage.WithLogger(logrus.NewEntry(logger)),
			storage.WithInitial(initial...),
		),
	}

	t.Cleanup(func() {
		h.Store.AboutToBeDeleted()
		assert.Equal(t, 0, reg.Count(), "subscribers leaked past teardown")
	})
	return h
}

// NewApp returns an uninitialized AppStorage logging into a captured hook.
func NewApp(t testing.TB) (*storage.AppStorage, *logtest.Hook) {
	t.Helper()

	logger, hook := logtest.NewNullLogger()
	app := storage.NewAppStorage(storage.WithLogger(logrus.NewEntry(logger)))
	t.Cleanup(app.AboutToBeDeleted)
	return app, hook
}

// Errors returns the messages logged at error level so far.
func (h *Harness) Errors() []string {
	var msgs []string
	for _, e := range h.Logs.AllEntries() {
		if e.Level == logrus.ErrorLevel {
			msgs = append(msgs, e.Message)
		}
	}
	return msgs
}

func (h *Harness) Spy() *Spy {
	return NewSpy(h.Registry)
}

// Spy is a view-like subscriber recording which properties changed.
type Spy struct {
	id      storage.SubscriberID
	reg     *storage.Registry
	Changes []string
}

func NewSpy(reg *storage.Registry) *Spy {
	s := &Spy{reg: reg}
	s.id = reg.Register(s)
	return s
}

func (s *Spy) ID() storage.SubscriberID {
	return s.id
}

func (s *Spy) AboutToBeDeleted() {
	s.reg.Unregister(s.id)
}

func (s *Spy) PropertyHasChanged(info string) {
	s.Changes = append(s.Changes, info)
}

func (s *Spy) Count() int {
	return len(s.Changes)
}

// ValueSpy listens to a single property and records every value pushed.
type ValueSpy[T any] struct {
	id     storage.SubscriberID
	reg    *storage.Registry
	Values []T
}

func NewValueSpy[T any](reg *storage.Registry) *ValueSpy[T] {
	s := &ValueSpy[T]{reg: reg}
	s.id = reg.Register(s)
	return s
}

func (s *ValueSpy[T]) ID() storage.SubscriberID {
	return s.id
}

func (s *ValueSpy[T]) AboutToBeDeleted() {
	s.reg.Unregister(s.id)
}

func (s *ValueSpy[T]) HasChanged(newValue T) {
	s.Values = append(s.Values, newValue)
}

func (s *ValueSpy[T]) Count() int {
	return len(s.Values)
}
