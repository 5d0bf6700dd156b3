// Package persist mirrors selected store keys to durable storage. Each
// persisted key is held by a link into the store; every change reaching the
// link is encoded as YAML and written to a Backend.
package persist

import (
	"fmt"
	"maps"
	"slices"

	"github.com/cespare/xxhash/v2"
	"github.com/delaneyj/appstate/storage"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Backend stores encoded values by key.
type Backend interface {
	// Load reports false, without error, for unknown keys.
	Load(key string) ([]byte, bool, error)
	Save(key string, data []byte) error
	Delete(key string) error
	Keys() ([]string, error)
	Close() error
}

type PersistentStorage struct {
	store   *storage.Store
	backend Backend
	log     *logrus.Entry
	keys    map[string]storage.Subscriber
}

type Option func(*PersistentStorage)

func WithLogger(log *logrus.Entry) Option {
	return func(ps *PersistentStorage) {
		ps.log = log
	}
}

func New(store *storage.Store, backend Backend, opts ...Option) *PersistentStorage {
	ps := &PersistentStorage{
		store:   store,
		backend: backend,
		keys:    map[string]storage.Subscriber{},
	}
	for _, opt := range opts {
		opt(ps)
	}
	if ps.log == nil {
		ps.log = logrus.NewEntry(logrus.StandardLogger())
	}
	ps.log = ps.log.WithField("component", "PersistentStorage")
	return ps
}

// PersistProp starts persisting key. The initial value is taken from the
// backend if it has one, otherwise from the store, otherwise defaultValue.
// Persisting an already persisted key is a no-op.
func PersistProp[T any](ps *PersistentStorage, key string, defaultValue T) bool {
	if _, ok := ps.keys[key]; ok {
		return true
	}
	log := ps.log.WithField("key", key)

	value := defaultValue
	var fingerprint uint64
	stored, found := load[T](ps, key)
	switch {
	case found:
		value = stored.value
		fingerprint = stored.fingerprint
	case ps.store.Has(key):
		v, ok := storage.Get[T](ps.store, key)
		if !ok {
			return false
		}
		value = v
	}
	if !storage.SetOrCreate(ps.store, key, value) {
		log.Error("cannot persist undefined value")
		return false
	}

	k := &persistedKey[T]{
		ps:          ps,
		key:         key,
		log:         log,
		fingerprint: fingerprint,
		written:     found,
	}
	k.id = ps.store.Registry().Register(k)
	link, ok := storage.Link[T](ps.store, key, k, key)
	if !ok {
		ps.store.Registry().Unregister(k.id)
		return false
	}
	k.link = link
	k.write(link.Get())
	ps.keys[key] = k
	return true
}

type loaded[T any] struct {
	value       T
	fingerprint uint64
}

func load[T any](ps *PersistentStorage, key string) (loaded[T], bool) {
	var l loaded[T]
	data, ok, err := ps.backend.Load(key)
	if err != nil {
		ps.log.WithError(err).WithField("key", key).Error("could not load persisted value")
		return l, false
	}
	if !ok {
		return l, false
	}
	if err := yaml.Unmarshal(data, &l.value); err != nil {
		ps.log.WithError(err).WithField("key", key).Error("could not decode persisted value")
		return l, false
	}
	l.fingerprint = xxhash.Sum64(data)
	return l, true
}

// DeleteProp stops persisting key and removes it from the backend. The store
// entry stays, and can be deleted once other subscribers are gone.
func (ps *PersistentStorage) DeleteProp(key string) error {
	k, ok := ps.keys[key]
	if !ok {
		return nil
	}
	k.AboutToBeDeleted()
	delete(ps.keys, key)
	if err := ps.backend.Delete(key); err != nil {
		return fmt.Errorf("delete persisted %q: %w", key, err)
	}
	return nil
}

// Keys lists the persisted keys, sorted.
func (ps *PersistentStorage) Keys() []string {
	return slices.Sorted(maps.Keys(ps.keys))
}

// AboutToBeDeleted unlinks every persisted key. Values already written stay
// in the backend.
func (ps *PersistentStorage) AboutToBeDeleted() {
	for _, k := range ps.keys {
		k.AboutToBeDeleted()
	}
	clear(ps.keys)
}

// Close unlinks every key and closes the backend.
func (ps *PersistentStorage) Close() error {
	ps.AboutToBeDeleted()
	if err := ps.backend.Close(); err != nil {
		return fmt.Errorf("close backend: %w", err)
	}
	return nil
}

// persistedKey is the link's only subscriber and writes every value it is
// handed.
type persistedKey[T any] struct {
	ps          *PersistentStorage
	key         string
	log         *logrus.Entry
	id          storage.SubscriberID
	link        *storage.TwoWay[T]
	fingerprint uint64
	written     bool
}

func (k *persistedKey[T]) ID() storage.SubscriberID {
	return k.id
}

func (k *persistedKey[T]) HasChanged(newValue T) {
	k.write(newValue)
}

// write skips the backend when the encoding has not changed since the last
// successful write.
func (k *persistedKey[T]) write(value T) {
	data, err := yaml.Marshal(value)
	if err != nil {
		k.log.WithError(err).Error("could not encode value")
		return
	}
	sum := xxhash.Sum64(data)
	if k.written && sum == k.fingerprint {
		return
	}
	if err := k.ps.backend.Save(k.key, data); err != nil {
		k.log.WithError(err).Error("could not save value")
		return
	}
	k.fingerprint = sum
	k.written = true
}

func (k *persistedKey[T]) AboutToBeDeleted() {
	if k.link != nil {
		k.link.AboutToBeDeleted()
		k.link = nil
	}
	k.ps.store.Registry().Unregister(k.id)
}
