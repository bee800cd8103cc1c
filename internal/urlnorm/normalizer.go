// Package urlnorm canonicalizes catalog URLs and decides which ones are in
// scope for recursion.
package urlnorm

import (
	"net/url"
	"strings"
)

// Default scoping values for solution catalogs.
const (
	DefaultResourceMarker = "/solutions/"
)

// DefaultExcludePaths lists path fragments that are never crawled.
var DefaultExcludePaths = []string{"/media-center/", "/videos/", "/index.html"}

// Config scopes a Normalizer to one site.
type Config struct {
	// Domain is the registrable domain, e.g. "analog.com".
	Domain         string
	ResourceMarker string
	ExcludePaths   []string
}

// Normalizer implements crawler.URLPolicy.
type Normalizer struct {
	domain   string
	wwwHost  string
	marker   string
	excludes []string
}

// New builds a Normalizer, filling unset fields with defaults.
func New(cfg Config) *Normalizer {
	domain := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(cfg.Domain)), "www.")
	marker := cfg.ResourceMarker
	if marker == "" {
		marker = DefaultResourceMarker
	}
	excludes := cfg.ExcludePaths
	if excludes == nil {
		excludes = DefaultExcludePaths
	}
	n := &Normalizer{
		domain: domain,
		marker: marker,
	}
	if domain != "" {
		n.wwwHost = "www." + domain
	}
	for _, raw := range excludes {
		if value := strings.TrimSpace(raw); value != "" {
			n.excludes = append(n.excludes, value)
		}
	}
	return n
}

// Normalize returns the canonical absolute form of raw, or "" when raw is
// empty, unparseable, or not an http(s) URL.
func (n *Normalizer) Normalize(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if strings.HasPrefix(raw, "//") {
		raw = "https:" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if u.Scheme == "" && u.Host == "" {
		if !n.absolutize(u) {
			return ""
		}
	}
	return n.canonical(u)
}

// Resolve joins ref against base and normalizes the result.
func (n *Normalizer) Resolve(base, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	baseURL, err := url.Parse(n.Normalize(base))
	if err != nil || baseURL.Host == "" {
		return n.Normalize(ref)
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	return n.canonical(baseURL.ResolveReference(refURL))
}

// IsValidResourceURL reports whether raw belongs to the configured domain,
// carries the resource marker, and avoids every excluded path.
func (n *Normalizer) IsValidResourceURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	if !n.inDomain(strings.ToLower(u.Hostname())) {
		return false
	}
	if !strings.Contains(u.Path, n.marker) {
		return false
	}
	for _, exclude := range n.excludes {
		if strings.Contains(u.Path, exclude) {
			return false
		}
	}
	return true
}

// absolutize turns a scheme-less, host-less reference into an absolute URL
// on the target domain. A first path segment naming the domain is treated as
// the host.
func (n *Normalizer) absolutize(u *url.URL) bool {
	if n.domain == "" || u.Path == "" {
		return false
	}
	path, raw := u.Path, u.EscapedPath()
	first, rest, _ := strings.Cut(path, "/")
	if lower := strings.ToLower(first); lower == n.domain || lower == n.wwwHost {
		u.Host = lower
		path = "/" + rest
		_, rawRest, _ := strings.Cut(raw, "/")
		raw = "/" + rawRest
	} else if !strings.HasPrefix(path, "/") {
		path = "/" + path
		raw = "/" + raw
	}
	u.Scheme = "https"
	if u.Host == "" {
		u.Host = n.wwwHost
	}
	u.Path = path
	// Keep escapes such as %2F that name a different resource once decoded.
	u.RawPath = ""
	if decoded, err := url.PathUnescape(raw); err == nil && decoded == path {
		u.RawPath = raw
	}
	return true
}

func (n *Normalizer) canonical(u *url.URL) string {
	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	host := strings.ToLower(u.Host)
	switch {
	case u.Scheme == "http" && strings.HasSuffix(host, ":80"):
		host = strings.TrimSuffix(host, ":80")
	case u.Scheme == "https" && strings.HasSuffix(host, ":443"):
		host = strings.TrimSuffix(host, ":443")
	}
	if host == "" {
		return ""
	}
	hostname := strings.Split(host, ":")[0]
	switch {
	case n.domain != "" && (hostname == n.domain || hostname == n.wwwHost):
		u.Scheme = "https"
		host = n.wwwHost
	case n.inDomain(hostname):
		u.Scheme = "https"
	}
	u.Host = host
	u.User = nil
	u.Fragment = ""
	u.RawFragment = ""
	if u.Path == "" {
		u.Path = "/"
		u.RawPath = ""
	}
	if u.RawQuery != "" {
		u.RawQuery = u.Query().Encode()
	}
	u.ForceQuery = false
	return u.String()
}

func (n *Normalizer) inDomain(host string) bool {
	if n.domain == "" || host == "" {
		return false
	}
	return host == n.domain || strings.HasSuffix(host, "."+n.domain)
}
