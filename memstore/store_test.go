package memstore_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/factory"
	"github.com/syssam/factory/memstore"
)

type Author struct {
	ID   int64
	Name string
}

type Book struct {
	ID     uuid.UUID
	Title  string
	Author factory.Lazy[*Author]
}

type Tag struct {
	Code  string `factory:"code,pk"`
	Label string
}

func (Tag) TableName() string { return "tags" }

type AuthorFactory struct {
	factory.Base[Author]
}

func (AuthorFactory) Config() factory.Config[Author] {
	return factory.Config[Author]{New: factory.Class[Author]()}
}

func (AuthorFactory) Entity(_ context.Context, a *Author, _ factory.Env) (*Author, error) {
	a.Name = "ursula"
	return a, nil
}

type BookFactory struct {
	factory.Base[Book]
}

func (BookFactory) Config() factory.Config[Book] {
	return factory.Config[Book]{New: factory.Class[Book]()}
}

func (BookFactory) Entity(_ context.Context, b *Book, env factory.Env) (*Book, error) {
	b.Title = "the dispossessed"
	b.Author = factory.Related[Author](env, AuthorFactory{})
	return b, nil
}

func TestStoreWithFactories(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	client := factory.NewClient(store)
	books := factory.MustUse[Book](client, BookFactory{})

	created, err := books.CreateMany(ctx, 3, nil, nil)
	require.NoError(t, err)
	require.Len(t, created, 3)
	assert.Equal(t, 1, store.Initializations())
	assert.Equal(t, 3, store.Count("Book"))
	assert.Equal(t, 3, store.Count("Author"))
	assert.Equal(t, []string{"Author", "Book"}, store.Tables())

	b := created[1]
	assert.NotEqual(t, uuid.Nil, b.ID)
	assert.Equal(t, int64(2), b.Author.Get().ID)

	found, err := memstore.Find[Book](store, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "the dispossessed", found.Title)
	assert.Equal(t, int64(2), found.Author.Get().ID)

	authors, err := memstore.All[Author](store)
	require.NoError(t, err)
	require.Len(t, authors, 3)
	assert.Equal(t, int64(1), authors[0].ID)
	assert.Equal(t, "ursula", authors[2].Name)
}

func TestStoreSave(t *testing.T) {
	ctx := context.Background()

	t.Run("StringKeys", func(t *testing.T) {
		store := memstore.New()
		tag := &Tag{Label: "go"}
		_, err := store.Manager().Save(ctx, tag, factory.SaveOptions{})
		require.NoError(t, err)
		_, err = uuid.Parse(tag.Code)
		assert.NoError(t, err)
		assert.Equal(t, 1, store.Count("tags"))
	})

	t.Run("DuplicateKey", func(t *testing.T) {
		store := memstore.New()
		_, err := store.Manager().Save(ctx, &Tag{Code: "go"}, factory.SaveOptions{})
		require.NoError(t, err)
		_, err = store.Manager().Save(ctx, &Tag{Code: "go"}, factory.SaveOptions{})
		assert.ErrorIs(t, err, memstore.ErrDuplicateKey)

		fresh := &Tag{}
		_, err = store.Manager().Save(ctx, []*Tag{fresh, {Code: "go"}}, factory.SaveOptions{})
		assert.ErrorIs(t, err, memstore.ErrDuplicateKey)
		assert.Empty(t, fresh.Code)
		assert.Equal(t, 1, store.Count("tags"))
	})

	t.Run("AllOrNothing", func(t *testing.T) {
		store := memstore.New(memstore.WithRule(func(_ context.Context, table string, e any) error {
			if a, ok := e.(*Author); ok && a.Name == "" {
				return errors.New("author name required")
			}
			return nil
		}))
		batch := []*Author{{Name: "a"}, {Name: ""}}
		_, err := store.Manager().Save(ctx, batch, factory.SaveOptions{Transaction: true})
		assert.EqualError(t, err, "author name required")
		assert.Zero(t, store.Count("Author"))
		for _, a := range batch {
			assert.Zero(t, a.ID)
		}

		_, err = store.Manager().Save(ctx, []*Author{{Name: "a"}, {Name: "b"}}, factory.SaveOptions{})
		require.NoError(t, err)
		assert.Equal(t, 2, store.Count("Author"))
	})

	t.Run("Pending", func(t *testing.T) {
		store := memstore.New()
		b := &Book{Author: factory.Defer(func(context.Context) (*Author, error) { return nil, nil })}
		_, err := store.Manager().Save(ctx, b, factory.SaveOptions{})
		assert.Error(t, err)
		assert.Zero(t, store.Count("Book"))
	})

	t.Run("NotPointer", func(t *testing.T) {
		_, err := memstore.New().Manager().Save(ctx, Author{}, factory.SaveOptions{})
		assert.Error(t, err)
	})
}

func TestStoreSnapshot(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	_, err := store.Manager().Save(ctx, []*Author{{Name: "a"}, {Name: "b"}}, factory.SaveOptions{})
	require.NoError(t, err)

	data, err := store.Export()
	require.NoError(t, err)

	store.Reset()
	assert.Zero(t, store.Count("Author"))
	_, err = memstore.Find[Author](store, 1)
	assert.ErrorIs(t, err, memstore.ErrNotFound)

	restored := memstore.New()
	require.NoError(t, restored.Import(data))
	a, err := memstore.Find[Author](restored, 2)
	require.NoError(t, err)
	assert.Equal(t, "b", a.Name)

	_, err = restored.Manager().Save(ctx, &Author{Name: "c"}, factory.SaveOptions{})
	require.NoError(t, err)
	c, err := memstore.Find[Author](restored, 3)
	require.NoError(t, err, "sequence survives export")
	assert.Equal(t, "c", c.Name)

	assert.Error(t, restored.Import([]byte{0xc1}))
}
