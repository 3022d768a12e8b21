package stream

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/copypatrol/copypatrol-go/internal/config"
	"github.com/copypatrol/copypatrol-go/internal/models"
)

func configWithSite(site config.SiteConfig) *config.Config {
	return config.NewWithSites(map[string]config.SiteConfig{site.Domain: site})
}

func TestAccept_SiteDisabled(t *testing.T) {
	l := &Listener{cfg: config.NewWithSites(nil), logger: zerolog.Nop()}
	e := models.RevisionCreateEvent{PageNamespace: 0, RevContentChanged: true, RevLen: 10}
	e.Meta.Domain = "en.wikipedia.org"
	reason, ok := l.accept(e)
	assert.False(t, ok)
	assert.Equal(t, "site_disabled", reason)
}

func TestAccept_NamespaceNotWatched(t *testing.T) {
	l := &Listener{logger: zerolog.Nop()}
	l.cfg = configWithSite(config.SiteConfig{Domain: "en.wikipedia.org", Enabled: true, Namespaces: []int{0}})

	e := models.RevisionCreateEvent{PageNamespace: 1, RevContentChanged: true, RevLen: 600}
	e.Meta.Domain = "en.wikipedia.org"
	reason, ok := l.accept(e)
	assert.False(t, ok)
	assert.Equal(t, "namespace", reason)
}

func TestAccept_BotFiltered(t *testing.T) {
	l := &Listener{logger: zerolog.Nop()}
	l.cfg = configWithSite(config.SiteConfig{Domain: "en.wikipedia.org", Enabled: true, Namespaces: []int{0}})

	e := models.RevisionCreateEvent{PageNamespace: 0, RevContentChanged: true, RevLen: 600}
	e.Meta.Domain = "en.wikipedia.org"
	e.Performer.IsBot = true
	reason, ok := l.accept(e)
	assert.False(t, ok)
	assert.Equal(t, "bot", reason)
}

func TestAccept_NoContentChange(t *testing.T) {
	l := &Listener{logger: zerolog.Nop()}
	l.cfg = configWithSite(config.SiteConfig{Domain: "en.wikipedia.org", Enabled: true, Namespaces: []int{0}})

	e := models.RevisionCreateEvent{PageNamespace: 0, RevContentChanged: false, RevLen: 600}
	e.Meta.Domain = "en.wikipedia.org"
	reason, ok := l.accept(e)
	assert.False(t, ok)
	assert.Equal(t, "no_content_change", reason)
}

func TestAccept_TooShort(t *testing.T) {
	l := &Listener{logger: zerolog.Nop()}
	l.cfg = configWithSite(config.SiteConfig{Domain: "en.wikipedia.org", Enabled: true, Namespaces: []int{0}})

	e := models.RevisionCreateEvent{PageNamespace: 0, RevContentChanged: true, RevLen: 500}
	e.Meta.Domain = "en.wikipedia.org"
	reason, ok := l.accept(e)
	assert.False(t, ok)
	assert.Equal(t, "too_short", reason)
}

func TestAccept_Accepted(t *testing.T) {
	l := &Listener{logger: zerolog.Nop()}
	l.cfg = configWithSite(config.SiteConfig{Domain: "en.wikipedia.org", Enabled: true, Namespaces: []int{0}})

	e := models.RevisionCreateEvent{PageNamespace: 0, RevContentChanged: true, RevLen: 600}
	e.Meta.Domain = "en.wikipedia.org"
	_, ok := l.accept(e)
	assert.True(t, ok)
}
