package pipeline

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIgnoreList_StripsCommentsAndBlankLines(t *testing.T) {
	text := "example\\.com # known mirror\n\n  \nwikipedia\\.org"
	list := ParseIgnoreList(text)
	assert.True(t, list.Matches("https://example.com/page"))
	assert.True(t, list.Matches("https://en.wikipedia.org/wiki/Foo"))
	assert.False(t, list.Matches("https://evil.example.net"))
}

func TestParseIgnoreList_CaseInsensitive(t *testing.T) {
	list := ParseIgnoreList("EXAMPLE\\.com")
	assert.True(t, list.Matches("http://example.com"))
}

func TestParseIgnoreList_InvalidPatternSkipped(t *testing.T) {
	list := ParseIgnoreList("(unterminated\nvalid\\.org")
	assert.True(t, list.Matches("http://valid.org"))
}

func TestCachedIgnoreListLoader_FetchesOnMissThenCaches(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	loader := NewCachedIgnoreListLoader(client, 0, zerolog.Nop())

	calls := 0
	fetch := func(ctx context.Context) (string, error) {
		calls++
		return "cached\\.example", nil
	}

	list, err := loader.Load(context.Background(), "en.wikipedia.org", "Ignore list", fetch)
	require.NoError(t, err)
	assert.True(t, list.Matches("http://cached.example"))
	assert.Equal(t, 1, calls)

	_, err = loader.Load(context.Background(), "en.wikipedia.org", "Ignore list", fetch)
	require.NoError(t, err)
	assert.Equal(t, 1, calls, "second load should hit the cache, not fetch again")
}
