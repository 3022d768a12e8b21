package wikiapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*MediaWikiClient, string) {
	t.Helper()
	srv := httptest.NewTLSServer(handler)
	t.Cleanup(srv.Close)
	return NewMediaWikiClient(srv.Client(), "test-agent", zerolog.Nop()), srv.Listener.Addr().String()
}

func TestFetchRevisions_ParsesMainSlotContent(t *testing.T) {
	client, domain := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"query":{"pages":[{"revisions":[
			{"revid":42,"tags":["mw-rollback"],"commenthidden":false,"comment":"test",
			 "slots":{"main":{"content":"hello world"}}}
		]}]}}`))
	})

	revs, err := client.FetchRevisions(context.Background(), domain, []uint64{42})
	require.NoError(t, err)
	require.Contains(t, revs, uint64(42))
	assert.Equal(t, "hello world", revs[42].Text)
	assert.Contains(t, revs[42].Tags, "mw-rollback")
}

func TestPageExists_MissingPage(t *testing.T) {
	client, domain := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"query":{"pages":[{"missing":true,"ns":0,"title":"Nope"}]}}`))
	})

	_, ok, err := client.PageExists(context.Background(), domain, "Nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPageExists_FoundPage(t *testing.T) {
	client, domain := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"query":{"pages":[{"pageid":7,"ns":0,"title":"Some Page"}]}}`))
	})

	ref, ok, err := client.PageExists(context.Background(), domain, "Some_Page")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(7), ref.PageID)
	assert.Equal(t, "Some_Page", ref.Title)
}

func TestNamespaces_CollectsCategoryAndFileAliases(t *testing.T) {
	client, domain := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"query":{
			"namespaces":{"6":{"id":6,"name":"File"},"14":{"id":14,"name":"Category"}},
			"namespacealiases":[{"id":6,"alias":"Image"}],
			"fileextensions":[{"ext":"png"},{"ext":"jpg"}]
		}}`))
	})

	site, err := client.Namespaces(context.Background(), domain)
	require.NoError(t, err)
	assert.Contains(t, site.FileNamespaceAliases(), "File")
	assert.Contains(t, site.FileNamespaceAliases(), "Image")
	assert.Contains(t, site.CategoryNamespaceAliases(), "Category")
	assert.Contains(t, site.FileExtensions(), "png")
}

func TestHasExtension_Found(t *testing.T) {
	client, domain := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"query":{"extensions":[{"name":"PageTriage"}]}}`))
	})

	ok, err := client.HasExtension(context.Background(), domain, "pagetriage")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestHasRight_NotFound(t *testing.T) {
	client, domain := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"query":{"userinfo":{"rights":["read"]}}}`))
	})

	ok, err := client.HasRight(context.Background(), domain, "delete")
	require.NoError(t, err)
	assert.False(t, ok)
}
