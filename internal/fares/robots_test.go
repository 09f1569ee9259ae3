package fares

import "testing"

func TestParseRobotsPrefixMatch(t *testing.T) {
	body := []byte(`
# fare providers
User-agent: *
Disallow: /checkout
Disallow: /account

User-agent: SomeOtherBot
Disallow: /
`)
	rules := ParseRobots(body, DefaultUserAgent)

	allowed := []string{"/", "/search", "/search/flights"}
	for _, path := range allowed {
		if !rules.Allowed(path) {
			t.Fatalf("path %q should be allowed", path)
		}
	}
	blocked := []string{"/checkout", "/checkout/confirm", "/account.json"}
	for _, path := range blocked {
		if rules.Allowed(path) {
			t.Fatalf("path %q should be blocked", path)
		}
	}
}

func TestNilRulesAllowEverything(t *testing.T) {
	var rules *RobotsRules
	if !rules.Allowed("/anything") {
		t.Fatal("nil rules must allow all paths")
	}
}

func TestPathFromURL(t *testing.T) {
	if got := PathFromURL("https://provider.test/search?origin=SEA"); got != "/search" {
		t.Fatalf("got %q, want /search", got)
	}
	if got := PathFromURL("https://provider.test"); got != "/" {
		t.Fatalf("got %q, want /", got)
	}
}
