package storage

import (
	"slices"

	"github.com/sirupsen/logrus"
)

// AppStorage owns the application-wide Store. It is constructed once at
// startup and handed to the root of the view tree rather than living in a
// package variable.
//
// Lifecycle: uninitialized, then CreateSingleton, then in use until
// AboutToBeDeleted returns it to uninitialized.
type AppStorage struct {
	opts     []Option
	reg      *Registry
	log      *logrus.Entry
	instance *Store
}

// NewAppStorage keeps the registry and logger stable across store
// lifecycles, so local stores created from it share one registry.
func NewAppStorage(opts ...Option) *AppStorage {
	o := buildOptions(opts)
	return &AppStorage{
		opts: []Option{WithRegistry(o.reg), WithLogger(o.log)},
		reg:  o.reg,
		log:  o.log.WithField("component", "AppStorage"),
	}
}

// CreateSingleton builds the store seeded with initial. A second call is
// logged and ignored; the existing store is kept.
func (a *AppStorage) CreateSingleton(initial ...Initial) bool {
	if a.instance != nil {
		a.log.Error("CreateSingleton called more than once, keeping the existing store")
		return false
	}
	a.instance = NewStore(append(slices.Clone(a.opts), WithInitial(initial...))...)
	return true
}

// Instance returns the store. Used before CreateSingleton it creates an
// empty store and warns, rather than failing early UI code.
func (a *AppStorage) Instance() *Store {
	if a.instance == nil {
		a.log.Warn("AppStorage used before CreateSingleton, creating an empty store")
		a.instance = NewStore(a.opts...)
	}
	return a.instance
}

func (a *AppStorage) IsInitialized() bool {
	return a.instance != nil
}

// AboutToBeDeleted tears the store down. A later CreateSingleton starts over.
func (a *AppStorage) AboutToBeDeleted() {
	if a.instance == nil {
		return
	}
	a.instance.AboutToBeDeleted()
	a.instance = nil
}

func (a *AppStorage) Registry() *Registry {
	return a.reg
}

// NewLocalStorage creates a component-scoped store sharing the app's
// registry and logger. Each call yields an independent map.
func (a *AppStorage) NewLocalStorage(initial ...Initial) *Store {
	return NewStore(append(slices.Clone(a.opts), WithInitial(initial...))...)
}
