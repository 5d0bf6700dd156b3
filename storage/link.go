package storage

import "github.com/sirupsen/logrus"

var (
	_ Source[int]                         = (*TwoWay[int])(nil)
	_ SinglePropertyChangeSubscriber[int] = (*TwoWay[int])(nil)
)

// TwoWay is a link: writes go up to the source, and source changes come
// back down. A link holds no value of its own, Get and Set resolve through
// the chain to the root, so every link on the same root agrees after a
// single Set.
type TwoWay[T any] struct {
	observed[T]
	source    Source[T]
	deleted   bool
	delivered bool
}

func newTwoWay[T any](reg *Registry, log *logrus.Entry, source Source[T], subscriber Subscriber, info string) *TwoWay[T] {
	l := &TwoWay[T]{source: source}
	l.init(reg, log, info, l)
	source.Subscribe(l)
	l.Subscribe(subscriber)
	return l
}

func (l *TwoWay[T]) Get() T {
	return l.source.Get()
}

// Set writes through to the source. The source fans the change out to all
// of its subscribers, this link included, which then notifies its own.
// Nothing changes if the source rejects the value.
func (l *TwoWay[T]) Set(newValue T) bool {
	if isUndefined(newValue) {
		l.log.Debug("rejected undefined value")
		return false
	}
	l.delivered = false
	if !l.source.Set(newValue) {
		return false
	}
	// a deleted link no longer hears from its source
	if !l.delivered {
		l.notify(newValue)
	}
	return true
}

// HasChanged receives a push from the source.
func (l *TwoWay[T]) HasChanged(newValue T) {
	l.delivered = true
	l.notify(newValue)
}

// AboutToBeDeleted unsubscribes the link from its source. Links and props
// created from this link stay attached to it and keep resolving through it
// to the root; they must be torn down on their own. Calling it twice is
// harmless.
func (l *TwoWay[T]) AboutToBeDeleted() {
	if l.deleted {
		return
	}
	l.deleted = true
	l.source.Unsubscribe(l.id)
	l.release()
}

// CreateLink chains a new link onto this one; it does not attach to the root.
func (l *TwoWay[T]) CreateLink(subscriber Subscriber, info string) *TwoWay[T] {
	return newTwoWay[T](l.reg, l.log, l, subscriber, info)
}

func (l *TwoWay[T]) CreateProp(subscriber Subscriber, info string) *OneWay[T] {
	return newOneWay[T](l.reg, l.log, l, subscriber, info)
}
