package pipeline

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// IgnoreList holds the case-insensitive regexes operators maintain on a
// wiki page to exclude known-good source domains from a report (§4.3,
// §4.4's "ignore list title" config). Parsing mirrors _parse_ignore_list:
// one pattern per line, "#" starts a trailing comment, invalid patterns
// are skipped rather than aborting the whole list.
type IgnoreList struct {
	patterns []*regexp.Regexp
}

// ParseIgnoreList parses the wikitext of the ignore-list page.
func ParseIgnoreList(pageText string) *IgnoreList {
	var patterns []*regexp.Regexp
	for _, line := range strings.Split(pageText, "\n") {
		line, _, _ = strings.Cut(line, "#")
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		re, err := regexp.Compile("(?i)" + line)
		if err != nil {
			continue
		}
		patterns = append(patterns, re)
	}
	return &IgnoreList{patterns: patterns}
}

// Matches reports whether url matches any pattern in the list.
func (l *IgnoreList) Matches(url string) bool {
	for _, re := range l.patterns {
		if re.MatchString(url) {
			return true
		}
	}
	return false
}

// cacheKeyPrefix namespaces the Redis keys the ignore-list cache uses.
const cacheKeyPrefix = "copypatrol:ignore-list:"

// CachedIgnoreListLoader fetches the ignore-list page text through fetch
// and caches the raw text in Redis for ttl, so every pipeline run doesn't
// need to hit the wiki API just to re-derive the same regex set.
type CachedIgnoreListLoader struct {
	redis  *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// NewCachedIgnoreListLoader builds a loader caching under ttl (default 10m).
func NewCachedIgnoreListLoader(client *redis.Client, ttl time.Duration, logger zerolog.Logger) *CachedIgnoreListLoader {
	if ttl == 0 {
		ttl = 10 * time.Minute
	}
	return &CachedIgnoreListLoader{redis: client, ttl: ttl, logger: logger.With().Str("component", "ignore-list").Logger()}
}

// Load returns the parsed IgnoreList for domain/title, using fetch to
// populate the cache on a miss.
func (l *CachedIgnoreListLoader) Load(ctx context.Context, domain, title string, fetch func(ctx context.Context) (string, error)) (*IgnoreList, error) {
	key := cacheKeyPrefix + domain + ":" + title

	text, err := l.redis.Get(ctx, key).Result()
	if err == nil {
		return ParseIgnoreList(text), nil
	}
	if err != redis.Nil {
		l.logger.Warn().Err(err).Msg("ignore list cache read failed, fetching fresh")
	}

	text, err = fetch(ctx)
	if err != nil {
		return nil, err
	}
	if err := l.redis.Set(ctx, key, text, l.ttl).Err(); err != nil {
		l.logger.Warn().Err(err).Msg("failed to cache ignore list")
	}
	return ParseIgnoreList(text), nil
}
