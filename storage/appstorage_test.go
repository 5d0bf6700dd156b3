package storage_test

import (
	"testing"

	"github.com/delaneyj/appstate/storage"
	"github.com/delaneyj/appstate/storage/storagetest"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateSingletonTwiceKeepsFirst(t *testing.T) {
	app, logs := storagetest.NewApp(t)

	require.True(t, app.CreateSingleton(storage.Value("say", "Hello")))
	first := app.Instance()

	assert.False(t, app.CreateSingleton(storage.Value("say", "Bye")))
	assert.Same(t, first, app.Instance())
	say, _ := storage.Get[string](app.Instance(), "say")
	assert.Equal(t, "Hello", say)

	require.NotNil(t, logs.LastEntry())
	assert.Equal(t, logrus.ErrorLevel, logs.LastEntry().Level)
}

func TestInstanceBeforeCreateWarns(t *testing.T) {
	app, logs := storagetest.NewApp(t)
	assert.False(t, app.IsInitialized())

	st := app.Instance()
	require.NotNil(t, st)
	assert.Zero(t, st.Size())
	assert.True(t, app.IsInitialized())
	require.NotNil(t, logs.LastEntry())
	assert.Equal(t, logrus.WarnLevel, logs.LastEntry().Level)

	// the lazily created store counts as the singleton
	assert.False(t, app.CreateSingleton())
}

func TestAppStorageCanBeRecreated(t *testing.T) {
	app, _ := storagetest.NewApp(t)

	require.True(t, app.CreateSingleton(storage.Value("n", 1)))
	before := app.Instance().InstanceID()
	app.AboutToBeDeleted()
	assert.False(t, app.IsInitialized())
	assert.Zero(t, app.Registry().Count())

	require.True(t, app.CreateSingleton(storage.Value("n", 2)))
	assert.NotEqual(t, before, app.Instance().InstanceID())
	n, _ := storage.Get[int](app.Instance(), "n")
	assert.Equal(t, 2, n)
}

func TestLocalStoragesAreIndependent(t *testing.T) {
	app, _ := storagetest.NewApp(t)
	app.CreateSingleton(storage.Value("shared", "app"))

	a := app.NewLocalStorage(storage.Value("count", 1))
	b := app.NewLocalStorage(storage.Value("count", 10))
	defer a.AboutToBeDeleted()
	defer b.AboutToBeDeleted()

	assert.Same(t, app.Registry(), a.Registry())
	assert.Same(t, app.Registry(), b.Registry())

	la, _ := storage.Link[int](a, "count", nil, "")
	defer la.AboutToBeDeleted()
	la.Set(2)

	n, _ := storage.Get[int](b, "count")
	assert.Equal(t, 10, n)
	assert.False(t, a.Has("shared"))
	assert.False(t, app.Instance().Has("count"))
}
