package storage_test

import (
	"fmt"
	"testing"

	"github.com/delaneyj/appstate/storage"
	"github.com/delaneyj/appstate/storage/storagetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinkChainsConverge(t *testing.T) {
	for _, depth := range []int{1, 2, 5, 10} {
		t.Run(fmt.Sprintf("depth %d", depth), func(t *testing.T) {
			h := storagetest.New(t, storage.Value("color", "red"))
			st := h.Store

			//  root
			//   |
			//  l0 - sibling
			//   |
			//  l1
			//   |
			//  ...
			sibling, ok := storage.Link[string](st, "color", nil, "sibling")
			require.True(t, ok)
			l0, ok := storage.Link[string](st, "color", nil, "l0")
			require.True(t, ok)
			chain := []*storage.TwoWay[string]{l0}
			for i := 1; i < depth; i++ {
				chain = append(chain, chain[i-1].CreateLink(nil, fmt.Sprintf("l%d", i)))
			}

			assertAll := func(want string) {
				t.Helper()
				root, _ := storage.Get[string](st, "color")
				assert.Equal(t, want, root)
				assert.Equal(t, want, sibling.Get())
				for i, l := range chain {
					assert.Equal(t, want, l.Get(), "link %d", i)
				}
			}

			for i, l := range chain {
				v := fmt.Sprintf("from l%d", i)
				require.True(t, l.Set(v))
				assertAll(v)
			}

			sibling.Set("from sibling")
			assertAll("from sibling")

			storage.Set(st, "color", "from store")
			assertAll("from store")

			for i := len(chain) - 1; i >= 0; i-- {
				chain[i].AboutToBeDeleted()
			}
			sibling.AboutToBeDeleted()
		})
	}
}

func TestLinkSetSameValueDoesNotNotify(t *testing.T) {
	h := storagetest.New(t, storage.Value("volume", 3))
	st := h.Store

	view := h.Spy()
	defer view.AboutToBeDeleted()
	link, ok := storage.Link[int](st, "volume", view, "volume")
	require.True(t, ok)
	defer link.AboutToBeDeleted()

	assert.False(t, link.Set(3))
	assert.True(t, storage.Set(st, "volume", 3))
	assert.Zero(t, view.Count())

	assert.True(t, link.Set(4))
	assert.Equal(t, 1, view.Count())
	assert.False(t, link.Set(4))
	assert.Equal(t, 1, view.Count())
}

func TestViewIsToldWhichPropertyChanged(t *testing.T) {
	h := storagetest.New(t,
		storage.Value("say", "Hello"),
		storage.Value("name", "Guido"),
	)
	st := h.Store

	view := h.Spy()
	defer view.AboutToBeDeleted()
	say, _ := storage.Link[string](st, "say", view, "greeting")
	defer say.AboutToBeDeleted()
	name, _ := storage.Prop[string](st, "name", view, "")
	defer name.AboutToBeDeleted()

	say.Set("Hi")
	storage.Set(st, "name", "Anton")
	name.Set("local")
	assert.Equal(t, []string{"greeting", "name", "name"}, view.Changes)
}

func TestNotificationOrderFollowsSubscription(t *testing.T) {
	h := storagetest.New(t, storage.Value("n", 0))
	st := h.Store

	view := h.Spy()
	defer view.AboutToBeDeleted()
	for _, label := range []string{"a", "b", "c"} {
		l, ok := storage.Link[int](st, "n", view, label)
		require.True(t, ok)
		defer l.AboutToBeDeleted()
	}

	storage.Set(st, "n", 1)
	assert.Equal(t, []string{"a", "b", "c"}, view.Changes)
}

func TestLinkWritesComeBackThroughTheSource(t *testing.T) {
	h := storagetest.New(t, storage.Value("n", 0))
	st := h.Store

	view := h.Spy()
	defer view.AboutToBeDeleted()
	writer, _ := storage.Link[int](st, "n", view, "writer")
	defer writer.AboutToBeDeleted()
	other, _ := storage.Link[int](st, "n", view, "other")
	defer other.AboutToBeDeleted()

	// the writer hears about its own write from the root, in root order
	writer.Set(1)
	assert.Equal(t, []string{"writer", "other"}, view.Changes)
}

func TestDeletedLinkResolvesToRoot(t *testing.T) {
	h := storagetest.New(t, storage.Value("n", 0))
	st := h.Store

	view := h.Spy()
	defer view.AboutToBeDeleted()
	link, _ := storage.Link[int](st, "n", nil, "")
	child := link.CreateLink(view, "child")
	defer child.AboutToBeDeleted()

	link.AboutToBeDeleted()
	link.AboutToBeDeleted()
	n, _ := st.NumberOfSubscribersTo("n")
	assert.Zero(t, n)

	// writes still reach the root, and the child's view hears about them
	assert.True(t, child.Set(5))
	v, _ := storage.Get[int](st, "n")
	assert.Equal(t, 5, v)
	assert.Equal(t, []string{"child"}, view.Changes)

	// root changes are read through, but no longer pushed down
	storage.Set(st, "n", 6)
	assert.Equal(t, 6, link.Get())
	assert.Equal(t, 6, child.Get())
	assert.Equal(t, 1, view.Count())

	assert.False(t, link.Set(6))
}

func TestLinkOfPropStaysBelowProp(t *testing.T) {
	h := storagetest.New(t, storage.Value("n", 1))
	st := h.Store

	prop, _ := storage.Prop[int](st, "n", nil, "")
	defer prop.AboutToBeDeleted()
	link := prop.CreateLink(nil, "")
	defer link.AboutToBeDeleted()

	link.Set(2)
	assert.Equal(t, 2, prop.Get())
	v, _ := storage.Get[int](st, "n")
	assert.Equal(t, 1, v)

	storage.Set(st, "n", 3)
	assert.Equal(t, 3, prop.Get())
	assert.Equal(t, 3, link.Get())
}

type settings struct {
	Brightness int
	Tags       []string
}

func TestStructValuesAreReassigned(t *testing.T) {
	h := storagetest.New(t, storage.Value("settings", settings{Brightness: 1}))
	st := h.Store

	spy := storagetest.NewValueSpy[settings](h.Registry)
	defer spy.AboutToBeDeleted()
	link, _ := storage.Link[settings](st, "settings", spy, "")
	defer link.AboutToBeDeleted()

	s := link.Get()
	s.Brightness = 2
	s.Tags = []string{"night"}
	require.True(t, link.Set(s))

	got, _ := storage.Get[settings](st, "settings")
	assert.Equal(t, s, got)
	assert.Len(t, spy.Values, 1)

	same := settings{Brightness: 2, Tags: []string{"night"}}
	assert.False(t, link.Set(same))
	assert.Len(t, spy.Values, 1)
}

func TestSliceValuesAreNotShared(t *testing.T) {
	h := storagetest.New(t, storage.Value("tags", []string{"a"}))
	st := h.Store

	view := h.Spy()
	defer view.AboutToBeDeleted()
	link, _ := storage.Link[[]string](st, "tags", view, "link")
	defer link.AboutToBeDeleted()
	prop, _ := storage.Prop[[]string](st, "tags", view, "prop")
	defer prop.AboutToBeDeleted()

	// obtain, mutate, reassign
	v, _ := storage.Get[[]string](st, "tags")
	v[0] = "b"
	got, _ := storage.Get[[]string](st, "tags")
	assert.Equal(t, []string{"a"}, got)
	require.True(t, storage.Set(st, "tags", v))
	assert.Equal(t, []string{"link", "prop"}, view.Changes)
	assert.Equal(t, []string{"b"}, link.Get())
	assert.Equal(t, []string{"b"}, prop.Get())

	// the caller's slice stays theirs
	v[0] = "c"
	got, _ = storage.Get[[]string](st, "tags")
	assert.Equal(t, []string{"b"}, got)

	local := prop.Get()
	local[0] = "local"
	require.True(t, prop.Set(local))
	assert.Equal(t, []string{"local"}, prop.Get())
	got, _ = storage.Get[[]string](st, "tags")
	assert.Equal(t, []string{"b"}, got)
	assert.Equal(t, []string{"b"}, link.Get())
}

func TestMapValuesAreNotShared(t *testing.T) {
	h := storagetest.New(t, storage.Value("limits", map[string]int{"cpu": 1}))
	st := h.Store

	spy := storagetest.NewValueSpy[map[string]int](h.Registry)
	defer spy.AboutToBeDeleted()
	link, _ := storage.Link[map[string]int](st, "limits", spy, "")
	defer link.AboutToBeDeleted()

	m := link.Get()
	m["cpu"] = 2
	m["mem"] = 512
	require.True(t, link.Set(m))
	require.Len(t, spy.Values, 1)
	assert.Equal(t, map[string]int{"cpu": 2, "mem": 512}, spy.Values[0])

	spy.Values[0]["cpu"] = 99
	got, _ := storage.Get[map[string]int](st, "limits")
	assert.Equal(t, map[string]int{"cpu": 2, "mem": 512}, got)

	assert.False(t, link.Set(map[string]int{"cpu": 2, "mem": 512}))
	assert.Len(t, spy.Values, 1)
}
