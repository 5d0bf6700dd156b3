// Package storage keeps a key/value store in sync with any number of
// derived views. Each key is backed by an ObservedProperty; views attach to
// it as links (TwoWay, writes flow both directions) or props (OneWay, the
// store pushes down, local writes stay local). Views can be chained: a link
// of a link, a prop of a prop, a prop of a link.
//
// Everything here is synchronous and single threaded. A Set runs the whole
// propagation, depth first and in subscription order, before it returns.
//
// Teardown is explicit. Every link and prop must be released with
// AboutToBeDeleted before the store entry it hangs off can be deleted;
// Delete and Clear refuse while subscribers remain.
package storage

import (
	"fmt"
	"iter"
	"maps"
	"reflect"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// entry is the type-erased view of a store-owned ObservedProperty.
type entry interface {
	Subscriber
	Info() string
	NumberOfSubscribers() int
	Subscribe(s Subscriber) bool
	Unsubscribe(id SubscriberID)
	anyValue() any
}

type options struct {
	reg     *Registry
	log     *logrus.Entry
	initial []Initial
}

type Option func(*options)

// WithRegistry shares reg between stores, so that views registered with one
// store's registry can subscribe to another's properties.
func WithRegistry(reg *Registry) Option {
	return func(o *options) {
		o.reg = reg
	}
}

func WithLogger(log *logrus.Entry) Option {
	return func(o *options) {
		o.log = log
	}
}

// WithInitial seeds the store. See Value.
func WithInitial(values ...Initial) Option {
	return func(o *options) {
		o.initial = append(o.initial, values...)
	}
}

func buildOptions(opts []Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.reg == nil {
		o.reg = NewRegistry()
	}
	if o.log == nil {
		o.log = logrus.NewEntry(logrus.StandardLogger())
	}
	return o
}

// Initial is a typed key/value pair used to seed a store.
type Initial struct {
	Key    string
	create func(s *Store) bool
}

// Value fixes the type of key to T.
func Value[T any](key string, value T) Initial {
	return Initial{
		Key: key,
		create: func(s *Store) bool {
			return SetOrCreate(s, key, value)
		},
	}
}

// Store maps keys to observed properties. AppStorage holds one app-wide
// instance; a LocalStorage is simply another Store.
type Store struct {
	id      uuid.UUID
	reg     *Registry
	log     *logrus.Entry
	entries map[string]entry
}

func NewStore(opts ...Option) *Store {
	o := buildOptions(opts)
	s := &Store{
		id:      uuid.New(),
		reg:     o.reg,
		entries: map[string]entry{},
	}
	s.log = o.log.WithField("store", s.id.String())
	for _, v := range o.initial {
		if !v.create(s) {
			s.log.WithField("key", v.Key).Error("could not seed initial value")
		}
	}
	return s
}

func (s *Store) InstanceID() uuid.UUID {
	return s.id
}

// Registry is where views using this store should register themselves.
func (s *Store) Registry() *Registry {
	return s.reg
}

func (s *Store) Has(key string) bool {
	_, ok := s.entries[key]
	return ok
}

func (s *Store) Size() int {
	return len(s.entries)
}

// Keys enumerates the current keys in no particular order. The sequence
// can be ranged over again and reflects the store at that time.
func (s *Store) Keys() iter.Seq[string] {
	return maps.Keys(s.entries)
}

// Inspect returns the current value of key without fixing its type.
func (s *Store) Inspect(key string) (value any, subscribers int, ok bool) {
	e, ok := s.entries[key]
	if !ok {
		return nil, 0, false
	}
	return e.anyValue(), e.NumberOfSubscribers(), true
}

func (s *Store) NumberOfSubscribersTo(key string) (int, bool) {
	e, ok := s.entries[key]
	if !ok {
		return 0, false
	}
	return e.NumberOfSubscribers(), true
}

// SubscribeToChangesOf attaches a raw listener to key without creating a
// link or prop. The listener should implement SinglePropertyChangeSubscriber
// for the key's type, or MultiPropertiesChangeSubscriber.
func (s *Store) SubscribeToChangesOf(key string, subscriber Subscriber) bool {
	e, ok := s.entries[key]
	if !ok {
		s.log.WithField("key", key).Error("subscribe to unknown key")
		return false
	}
	return e.Subscribe(subscriber)
}

func (s *Store) UnsubscribeFromChangesOf(key string, id SubscriberID) bool {
	e, ok := s.entries[key]
	if !ok {
		return false
	}
	e.Unsubscribe(id)
	return true
}

// Delete removes key. It fails if key is unknown or still has subscribers.
func (s *Store) Delete(key string) bool {
	e, ok := s.entries[key]
	if !ok {
		return false
	}
	if n := e.NumberOfSubscribers(); n > 0 {
		s.log.WithFields(logrus.Fields{
			"key":         key,
			"subscribers": n,
		}).Error("cannot delete property that still has subscribers")
		return false
	}
	e.AboutToBeDeleted()
	delete(s.entries, key)
	return true
}

// Clear empties the store, unless any entry still has subscribers, in which
// case nothing is removed.
func (s *Store) Clear() bool {
	for key, e := range s.entries {
		if n := e.NumberOfSubscribers(); n > 0 {
			s.log.WithFields(logrus.Fields{
				"key":         key,
				"subscribers": n,
			}).Error("cannot clear store, property still has subscribers")
			return false
		}
	}
	for _, e := range s.entries {
		e.AboutToBeDeleted()
	}
	clear(s.entries)
	return true
}

// AboutToBeDeleted releases every entry whether or not it still has
// subscribers. Links and props still attached are orphaned.
func (s *Store) AboutToBeDeleted() {
	for _, e := range s.entries {
		e.AboutToBeDeleted()
	}
	clear(s.entries)
}

func lookup[T any](s *Store, key string) (*ObservedProperty[T], bool) {
	e, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	p, ok := e.(*ObservedProperty[T])
	if !ok {
		s.log.WithFields(logrus.Fields{
			"key":       key,
			"stored":    fmt.Sprintf("%T", e.anyValue()),
			"requested": reflect.TypeFor[T]().String(),
		}).Error("property type mismatch")
		return nil, false
	}
	return p, true
}

func Get[T any](s *Store, key string) (T, bool) {
	p, ok := lookup[T](s, key)
	if !ok {
		var zero T
		return zero, false
	}
	return p.Get(), true
}

// Set updates an existing key. It fails if the key is unknown, holds a
// different type or value is undefined. Setting the current value succeeds
// without notifying anyone.
func Set[T any](s *Store, key string, value T) bool {
	if isUndefined(value) {
		return false
	}
	p, ok := lookup[T](s, key)
	if !ok {
		return false
	}
	p.Set(value)
	return true
}

// SetOrCreate sets key, creating it first if needed.
func SetOrCreate[T any](s *Store, key string, value T) bool {
	if isUndefined(value) {
		s.log.WithField("key", key).Error("cannot store undefined value")
		return false
	}
	if s.Has(key) {
		return Set(s, key, value)
	}
	s.entries[key] = newObservedProperty(s.reg, s.log.WithField("key", key), value, nil, key)
	return true
}

// Link attaches a two-way view to key. subscriber, typically the owning
// view, is notified of every change; info labels those notifications and
// defaults to key.
func Link[T any](s *Store, key string, subscriber Subscriber, info string) (*TwoWay[T], bool) {
	if !s.Has(key) {
		s.log.WithField("key", key).Error("link to unknown key")
		return nil, false
	}
	p, ok := lookup[T](s, key)
	if !ok || !s.accepts(key, subscriber) {
		return nil, false
	}
	return p.CreateLink(subscriber, infoOr(info, key)), true
}

// SetAndLink creates key with defaultValue if it does not exist yet, then
// links to it. An existing value is left alone.
func SetAndLink[T any](s *Store, key string, defaultValue T, subscriber Subscriber, info string) (*TwoWay[T], bool) {
	if !s.Has(key) && !SetOrCreate(s, key, defaultValue) {
		return nil, false
	}
	return Link[T](s, key, subscriber, info)
}

// Prop attaches a one-way view to key.
func Prop[T any](s *Store, key string, subscriber Subscriber, info string) (*OneWay[T], bool) {
	if !s.Has(key) {
		s.log.WithField("key", key).Error("prop of unknown key")
		return nil, false
	}
	p, ok := lookup[T](s, key)
	if !ok || !s.accepts(key, subscriber) {
		return nil, false
	}
	return p.CreateProp(subscriber, infoOr(info, key)), true
}

func SetAndProp[T any](s *Store, key string, defaultValue T, subscriber Subscriber, info string) (*OneWay[T], bool) {
	if !s.Has(key) && !SetOrCreate(s, key, defaultValue) {
		return nil, false
	}
	return Prop[T](s, key, subscriber, info)
}

// accepts reports whether subscriber, if any, was registered with this
// store's registry. Views shared between stores need WithRegistry.
func (s *Store) accepts(key string, subscriber Subscriber) bool {
	if subscriber == nil || s.reg.owns(subscriber) {
		return true
	}
	s.log.WithFields(logrus.Fields{
		"key":        key,
		"subscriber": subscriber.ID(),
	}).Error("subscriber is not registered with this store's registry")
	return false
}

func infoOr(info, key string) string {
	if info == "" {
		return key
	}
	return info
}
