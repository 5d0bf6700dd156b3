package storage

import (
	"reflect"
	"slices"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/mohae/deepcopy"
	"github.com/sirupsen/logrus"
)

// Source is anything a link or prop can be attached to: a store-owned
// ObservedProperty, or another link/prop further down a chain.
type Source[T any] interface {
	Subscriber
	Get() T
	Set(newValue T) bool
	Subscribe(s Subscriber) bool
	Unsubscribe(id SubscriberID)
	NumberOfSubscribers() int
}

// observed holds what every property flavour shares: identity, the ordered
// subscriber list and change dispatch.
type observed[T any] struct {
	reg    *Registry
	log    *logrus.Entry
	id     SubscriberID
	info   string
	subs   []Subscriber
	subIDs mapset.Set[SubscriberID]
}

func (p *observed[T]) init(reg *Registry, log *logrus.Entry, info string, self Subscriber) {
	p.reg = reg
	p.info = info
	p.subIDs = mapset.NewThreadUnsafeSet[SubscriberID]()
	p.id = reg.Register(self)
	p.log = log.WithFields(logrus.Fields{
		"property": info,
		"id":       p.id,
	})
}

func (p *observed[T]) ID() SubscriberID {
	return p.id
}

// Info is the diagnostic label given at creation. Multi-property
// subscribers receive it to tell which of their properties changed.
func (p *observed[T]) Info() string {
	return p.info
}

// Subscribe appends s to the notification list. Subscribing twice is a
// no-op. s must be registered with the property's own registry, ids from
// another registry would collide.
func (p *observed[T]) Subscribe(s Subscriber) bool {
	if s == nil {
		return false
	}
	id := s.ID()
	if !p.reg.owns(s) {
		p.log.WithField("subscriber", id).Error("subscriber is not registered with this registry")
		return false
	}
	if p.subIDs.Contains(id) {
		return true
	}
	p.subIDs.Add(id)
	p.subs = append(p.subs, s)
	return true
}

func (p *observed[T]) Unsubscribe(id SubscriberID) {
	if !p.subIDs.Contains(id) {
		return
	}
	p.subIDs.Remove(id)
	p.subs = slices.DeleteFunc(p.subs, func(s Subscriber) bool {
		return s.ID() == id
	})
}

func (p *observed[T]) NumberOfSubscribers() int {
	return len(p.subs)
}

// notify runs synchronously, in subscription order. A subscriber removed
// by an earlier one during the same dispatch is not called.
func (p *observed[T]) notify(newValue T) {
	for _, s := range slices.Clone(p.subs) {
		id := s.ID()
		if !p.subIDs.Contains(id) {
			continue
		}
		if !p.reg.Has(id) {
			p.log.WithField("subscriber", id).Debug("skipping subscriber no longer in registry")
			continue
		}
		switch s := s.(type) {
		case SinglePropertyChangeSubscriber[T]:
			s.HasChanged(clone(newValue))
		case MultiPropertiesChangeSubscriber:
			s.PropertyHasChanged(p.info)
		default:
			p.log.WithField("subscriber", id).Warn("subscriber cannot receive change notifications")
		}
	}
}

func (p *observed[T]) release() {
	p.reg.Unregister(p.id)
}

// ObservedProperty owns an authoritative value. The store keeps one per key;
// views may also create them directly for component-local state.
type ObservedProperty[T any] struct {
	observed[T]
	value T
}

// NewObservedProperty creates a standalone property registered in reg.
// owner, when not nil, is subscribed straight away.
func NewObservedProperty[T any](reg *Registry, value T, owner Subscriber, info string) *ObservedProperty[T] {
	return newObservedProperty(reg, logrus.NewEntry(logrus.StandardLogger()), value, owner, info)
}

func newObservedProperty[T any](reg *Registry, log *logrus.Entry, value T, owner Subscriber, info string) *ObservedProperty[T] {
	p := &ObservedProperty[T]{value: clone(value)}
	p.init(reg, log, info, p)
	if isUndefined(value) {
		p.log.Warn("property created without a value")
	}
	p.Subscribe(owner)
	return p
}

// Get returns a copy. Mutating it changes nothing until it is Set back.
func (p *ObservedProperty[T]) Get() T {
	return clone(p.value)
}

// Set stores newValue and notifies subscribers. It reports false, without
// notifying anyone, when newValue is undefined or equal to the current value.
func (p *ObservedProperty[T]) Set(newValue T) bool {
	if isUndefined(newValue) {
		p.log.Debug("rejected undefined value")
		return false
	}
	if equal(p.value, newValue) {
		return false
	}
	p.value = clone(newValue)
	p.notify(p.value)
	return true
}

// AboutToBeDeleted drops the property from the registry. Subscribers are
// left in place; they are expected to have torn themselves down first.
func (p *ObservedProperty[T]) AboutToBeDeleted() {
	p.release()
}

// CreateLink returns a two-way view of p. subscriber, when not nil, is
// notified whenever the link's value changes.
func (p *ObservedProperty[T]) CreateLink(subscriber Subscriber, info string) *TwoWay[T] {
	return newTwoWay[T](p.reg, p.log, p, subscriber, info)
}

// CreateProp returns a one-way view of p.
func (p *ObservedProperty[T]) CreateProp(subscriber Subscriber, info string) *OneWay[T] {
	return newOneWay[T](p.reg, p.log, p, subscriber, info)
}

func (p *ObservedProperty[T]) anyValue() any {
	return clone(p.value)
}

// isUndefined reports whether v carries no value at all: the nil interface
// or a nil pointer, map, slice, func or chan.
func isUndefined[T any](v T) bool {
	rv := reflect.ValueOf(any(v))
	if !rv.IsValid() {
		return true
	}
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}

func equal[T any](a, b T) bool {
	return reflect.DeepEqual(a, b)
}

// clone deep copies v so that no two properties share backing arrays, maps
// or pointees. Types with unexported state should implement
// deepcopy.Interface.
func clone[T any](v T) T {
	rv := reflect.ValueOf(any(v))
	if !rv.IsValid() {
		return v
	}
	switch rv.Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		return v
	}
	if isUndefined(v) {
		return v
	}
	c, ok := deepcopy.Copy(v).(T)
	if !ok {
		return v
	}
	return c
}
