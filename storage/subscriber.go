package storage

import "reflect"

// SubscriberID identifies a property, view or external listener. Ids are
// handed out by a Registry and never reused within it.
type SubscriberID uint64

// Subscriber is anything that can be attached to an observed property.
type Subscriber interface {
	ID() SubscriberID
	AboutToBeDeleted()
}

// SinglePropertyChangeSubscriber watches exactly one property and receives
// its new value. Links and props implement it towards their source.
type SinglePropertyChangeSubscriber[T any] interface {
	Subscriber
	HasChanged(newValue T)
}

// MultiPropertiesChangeSubscriber is typically a view that owns several
// links/props. It is told which one changed by the property's info label.
type MultiPropertiesChangeSubscriber interface {
	Subscriber
	PropertyHasChanged(info string)
}

// Registry hands out subscriber ids and tracks which subscribers are still
// alive. It holds back-references only: dropping a subscriber from the
// registry does not detach it from any property.
type Registry struct {
	nextID      SubscriberID
	subscribers map[SubscriberID]Subscriber
}

func NewRegistry() *Registry {
	return &Registry{
		subscribers: map[SubscriberID]Subscriber{},
	}
}

// Register assigns s a fresh id. The subscriber is expected to keep the
// returned id and report it from ID().
func (r *Registry) Register(s Subscriber) SubscriberID {
	r.nextID++
	id := r.nextID
	r.subscribers[id] = s
	return id
}

// Unregister forgets id. Unknown ids are ignored.
func (r *Registry) Unregister(id SubscriberID) {
	delete(r.subscribers, id)
}

func (r *Registry) Get(id SubscriberID) (Subscriber, bool) {
	s, ok := r.subscribers[id]
	return s, ok
}

func (r *Registry) Has(id SubscriberID) bool {
	_, ok := r.subscribers[id]
	return ok
}

// Count is the number of live subscribers. After every view and property
// has been torn down it drops back to where it started, which makes it a
// handy leak probe in tests.
func (r *Registry) Count() int {
	return len(r.subscribers)
}

// owns reports whether s is the subscriber registered under its id here.
func (r *Registry) owns(s Subscriber) bool {
	got, ok := r.subscribers[s.ID()]
	if !ok {
		return false
	}
	t := reflect.TypeOf(got)
	if t != reflect.TypeOf(s) {
		return false
	}
	return !t.Comparable() || got == s
}
