package ingest

import (
	"testing"
)

func TestLangFromDomain(t *testing.T) {
	cases := map[string]string{
		"en.wikipedia.org": "en",
		"es.wikipedia.org": "es",
		"commons.wikimedia.org": "commons",
	}
	for domain, want := range cases {
		if got := langFromDomain(domain); got != want {
			t.Errorf("langFromDomain(%q) = %q, want %q", domain, got, want)
		}
	}
}

func TestIsDuplicateKey(t *testing.T) {
	if isDuplicateKey(nil) {
		t.Error("nil error should not be duplicate key")
	}
}
