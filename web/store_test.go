package web

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/odvcencio/sitter/document"
	"github.com/odvcencio/sitter/grammars"
)

func TestStoreLifecycle(t *testing.T) {
	s := NewStore()
	d, err := document.New(context.Background(), grammars.Lookup("javascript"), "a;")
	require.NoError(t, err)
	s.Add(d)
	assert.Equal(t, []string{d.ID()}, s.IDs())

	got, err := s.With(d.ID(), func(doc *document.Document) (any, error) {
		return doc.Text(), nil
	})
	require.NoError(t, err)
	assert.Equal(t, "a;", got)

	_, err = s.With("missing", func(*document.Document) (any, error) { return nil, nil })
	assert.ErrorIs(t, err, ErrUnknownDocument)

	assert.True(t, s.Close(d.ID()))
	assert.False(t, s.Close(d.ID()))
	assert.Empty(t, s.IDs())
	assert.Nil(t, d.Tree())
}

func TestStoreParallelEdits(t *testing.T) {
	s := NewStore()
	defer s.CloseAll()

	var ids []string
	for i := 0; i < 4; i++ {
		d, err := document.New(context.Background(), grammars.Lookup("javascript"), "")
		require.NoError(t, err)
		s.Add(d)
		ids = append(ids, d.ID())
	}

	g, ctx := errgroup.WithContext(context.Background())
	for _, id := range ids {
		g.Go(func() error {
			for i := 0; i < 20; i++ {
				_, err := s.With(id, func(d *document.Document) (any, error) {
					return d.ApplyEdit(ctx, len(d.Text()), "", fmt.Sprintf("v%d = %d;\n", i, i))
				})
				if err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	for _, id := range ids {
		_, err := s.With(id, func(d *document.Document) (any, error) {
			assert.Equal(t, 20, d.Tree().RootNode().NamedChildCount())
			assert.False(t, d.Tree().RootNode().HasError())
			return nil, nil
		})
		require.NoError(t, err)
	}
}
