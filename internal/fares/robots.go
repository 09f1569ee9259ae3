package fares

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// RobotsRules holds disallow rules for our user agent. Matching is prefix
// based: Disallow: /search forbids /search, /search.json, /search/flights.
type RobotsRules struct {
	disallowPrefixes []string
}

// Allowed returns false when the URL path is disallowed. Nil rules or an
// empty path allow everything, so providers without robots.txt are unaffected.
func (r *RobotsRules) Allowed(path string) bool {
	if r == nil || len(r.disallowPrefixes) == 0 {
		return true
	}
	path = normalizePath(path)
	for _, prefix := range r.disallowPrefixes {
		if strings.HasPrefix(path, prefix) {
			return false
		}
	}
	return true
}

// FetchRobotsRules fetches and parses robots.txt for the provider base URL.
// Fetching /robots.txt itself is always allowed by convention.
func FetchRobotsRules(ctx context.Context, client *http.Client, baseURL string) (*RobotsRules, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	u.Path = "/robots.txt"
	u.RawQuery = ""

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", DefaultUserAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("robots.txt fetch: status %d from %s", resp.StatusCode, u.String())
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, err
	}
	return ParseRobots(body, DefaultUserAgent), nil
}

// ParseRobots parses a robots.txt body, keeping Disallow lines from the first
// user-agent block matching userAgent exactly or "*".
func ParseRobots(body []byte, userAgent string) *RobotsRules {
	rules := &RobotsRules{}
	scanner := bufio.NewScanner(strings.NewReader(string(body)))
	inBlock := false
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lower := strings.ToLower(line)
		switch {
		case strings.HasPrefix(lower, "user-agent:"):
			agent := strings.TrimSpace(line[len("user-agent:"):])
			inBlock = agent == "*" || strings.EqualFold(agent, userAgent)
		case inBlock && strings.HasPrefix(lower, "disallow:"):
			path := strings.TrimSpace(line[len("disallow:"):])
			if path != "" {
				rules.disallowPrefixes = append(rules.disallowPrefixes, normalizePath(path))
			}
		}
	}
	return rules
}

// PathFromURL returns the normalized path component of rawURL, or "" if it
// does not parse.
func PathFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return normalizePath(u.Path)
}

func normalizePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if p[0] != '/' {
		return "/" + p
	}
	return p
}
