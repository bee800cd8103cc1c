package urlnorm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAnalog() *Normalizer {
	return New(Config{Domain: "analog.com"})
}

func TestNormalize(t *testing.T) {
	n := newAnalog()
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"protocol relative", "//www.analog.com/en/solutions.html", "https://www.analog.com/en/solutions.html"},
		{"root relative", "/en/solutions/radar.html", "https://www.analog.com/en/solutions/radar.html"},
		{"path relative", "en/solutions.html", "https://www.analog.com/en/solutions.html"},
		{"http upgraded", "http://www.analog.com/en/x.html", "https://www.analog.com/en/x.html"},
		{"bare domain host", "https://analog.com/en/x.html", "https://www.analog.com/en/x.html"},
		{"bare domain without scheme", "analog.com/en/x.html", "https://www.analog.com/en/x.html"},
		{"fragment dropped", "https://www.analog.com/en/x.html#overview", "https://www.analog.com/en/x.html"},
		{"host lowercased", "HTTPS://WWW.Analog.COM/en/X.html", "https://www.analog.com/en/X.html"},
		{"empty path", "https://www.analog.com", "https://www.analog.com/"},
		{"default port", "https://www.analog.com:443/a", "https://www.analog.com/a"},
		{"subdomain upgraded", "http://shop.analog.com/a", "https://shop.analog.com/a"},
		{"foreign host kept", "http://example.org/a", "http://example.org/a"},
		{"query sorted", "/a?b=2&a=1", "https://www.analog.com/a?a=1&b=2"},
		{"path relative keeps escaped slash", "en/solutions/a%2Fb.html", "https://www.analog.com/en/solutions/a%2Fb.html"},
		{"domain segment keeps escaped slash", "analog.com/en/a%2Fb.html", "https://www.analog.com/en/a%2Fb.html"},
		{"mailto rejected", "mailto:info@analog.com", ""},
		{"javascript rejected", "javascript:void(0)", ""},
		{"fragment only rejected", "#top", ""},
		{"empty", "   ", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, n.Normalize(tc.in))
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	n := newAnalog()
	inputs := []string{
		"//www.analog.com/en/solutions.html",
		"/en/solutions/radar.html?z=1&a=2#frag",
		"http://analog.com",
		"https://example.org/path%20with%20space",
		"en/applications/markets/automotive.html",
		"en/solutions/a%2Fb.html",
	}
	for _, in := range inputs {
		once := n.Normalize(in)
		require.NotEmpty(t, once, in)
		require.Equal(t, once, n.Normalize(once), in)
	}
}

func TestResolve(t *testing.T) {
	n := newAnalog()
	base := "https://www.analog.com/en/solutions/radar.html"
	assert.Equal(t, "https://www.analog.com/en/solutions/automotive.html", n.Resolve(base, "automotive.html"))
	assert.Equal(t, "https://www.analog.com/en/solutions/radar.html", n.Resolve(base, "#specs"))
	assert.Equal(t, "https://www.analog.com/media/en/a.png", n.Resolve(base, "/media/en/a.png"))
	assert.Equal(t, "https://cdn.example.org/a.png", n.Resolve(base, "https://cdn.example.org/a.png"))
	assert.Equal(t, "", n.Resolve(base, ""))
	assert.Equal(t, "https://www.analog.com/en/x.html", n.Resolve("", "/en/x.html"))
}

func TestIsValidResourceURL(t *testing.T) {
	n := newAnalog()
	tests := []struct {
		in   string
		want bool
	}{
		{"https://www.analog.com/en/solutions/radar.html", true},
		{"https://analog.com/en/solutions/radar.html", true},
		{"https://www.analog.com/en/products/ad1234.html", false},
		{"https://www.analog.com/en/solutions/media-center/videos.html", false},
		{"https://www.analog.com/en/solutions/videos/intro.html", false},
		{"https://www.analog.com/en/solutions/index.html", false},
		{"https://www.example.com/en/solutions/radar.html", false},
		{"https://notanalog.com/en/solutions/radar.html", false},
		{"::not a url", false},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, n.IsValidResourceURL(tc.in), tc.in)
	}
}

func TestCustomScope(t *testing.T) {
	n := New(Config{Domain: "www.example.com", ResourceMarker: "/catalog/", ExcludePaths: []string{}})
	assert.True(t, n.IsValidResourceURL("https://www.example.com/catalog/index.html"))
	assert.Equal(t, "https://www.example.com/catalog/", n.Normalize("/catalog/"))
}

func FuzzNormalizeIdempotent(f *testing.F) {
	for _, seed := range []string{"/en/solutions.html", "//analog.com/x#y", "http://a.b/c?d=e"} {
		f.Add(seed)
	}
	n := newAnalog()
	f.Fuzz(func(t *testing.T, in string) {
		once := n.Normalize(in)
		if once == "" {
			return
		}
		if twice := n.Normalize(once); twice != once {
			t.Fatalf("Normalize not idempotent: %q -> %q -> %q", in, once, twice)
		}
	})
}
