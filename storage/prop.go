package storage

import "github.com/sirupsen/logrus"

var (
	_ Source[int]                         = (*OneWay[int])(nil)
	_ SinglePropertyChangeSubscriber[int] = (*OneWay[int])(nil)
)

// OneWay is a prop. It copies its source and may diverge locally, but a
// local Set never travels upstream and the next push from the source wins.
type OneWay[T any] struct {
	observed[T]
	source Source[T]
	value  T
}

func newOneWay[T any](reg *Registry, log *logrus.Entry, source Source[T], subscriber Subscriber, info string) *OneWay[T] {
	p := &OneWay[T]{
		source: source,
		value:  source.Get(),
	}
	p.init(reg, log, info, p)
	source.Subscribe(p)
	p.Subscribe(subscriber)
	return p
}

// Get returns a copy of the local value.
func (p *OneWay[T]) Get() T {
	return clone(p.value)
}

// Set changes the local copy and notifies props and views below it.
func (p *OneWay[T]) Set(newValue T) bool {
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

// HasChanged overwrites whatever was set locally with the source's value.
// The value handed in is already a private copy.
func (p *OneWay[T]) HasChanged(newValue T) {
	if equal(p.value, newValue) {
		return
	}
	p.value = newValue
	p.notify(p.value)
}

func (p *OneWay[T]) AboutToBeDeleted() {
	if p.source == nil {
		return
	}
	p.source.Unsubscribe(p.id)
	p.source = nil
	p.release()
}

func (p *OneWay[T]) CreateLink(subscriber Subscriber, info string) *TwoWay[T] {
	return newTwoWay[T](p.reg, p.log, p, subscriber, info)
}

func (p *OneWay[T]) CreateProp(subscriber Subscriber, info string) *OneWay[T] {
	return newOneWay[T](p.reg, p.log, p, subscriber, info)
}
