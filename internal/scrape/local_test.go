package scrape

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalScraper_CleanHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("User-Agent"), "LeadEnricher")
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><head><title>Jane Doe | Speaker</title></head>
<body><nav>Menu</nav><h1>Jane Doe</h1><p>VP Engineering at ExampleCo &amp; open-source maintainer.</p>
<script>track()</script><footer>Copyright 2024</footer></body></html>`))
	}))
	defer srv.Close()

	s := newLocalScraper(true)
	result, err := s.Scrape(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "local_http", result.Source)
	assert.Equal(t, "Jane Doe | Speaker", result.Page.Title)
	assert.Equal(t, 200, result.Page.StatusCode)
	assert.Contains(t, result.Page.Markdown, "ExampleCo & open-source")
	assert.NotContains(t, result.Page.Markdown, "Menu")
	assert.NotContains(t, result.Page.Markdown, "track()")
	assert.NotContains(t, result.Page.Markdown, "Copyright 2024")
}

func TestLocalScraper_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		wantErr string
	}{
		{
			name: "cloudflare",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Cf-Ray", "abc123")
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`<html><body>Access denied</body></html>`))
			},
			wantErr: "blocked (cloudflare)",
		},
		{
			name: "captcha",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`<html><body>Please complete the reCAPTCHA to continue</body></html>`))
			},
			wantErr: "blocked (captcha)",
		},
		{
			name: "empty",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`<html></html>`))
			},
			wantErr: "empty page",
		},
		{
			name: "not found",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
				_, _ = w.Write([]byte(`<html><body>Not found page with lots of content here to exceed the minimum threshold</body></html>`))
			},
			wantErr: "status 404",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			_, err := newLocalScraper(true).Scrape(context.Background(), srv.URL)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLocalScraper_Supports(t *testing.T) {
	s := NewLocalScraper()
	assert.Equal(t, "local_http", s.Name())
	assert.True(t, s.Supports("https://example.com/in/jane"))
	assert.True(t, s.Supports("HTTP://jane.dev/about"))
	assert.False(t, s.Supports("https://www.linkedin.com/in/jane"))
	assert.False(t, s.Supports("https://uk.linkedin.com/in/jane"))
	assert.False(t, s.Supports("not a url"))
	assert.False(t, s.Supports("file:///etc/passwd"))
	assert.False(t, s.Supports("gopher://example.com/1"))
	assert.False(t, s.Supports("http://169.254.169.254/latest/meta-data"))
	assert.False(t, s.Supports("http://127.0.0.1:8080/admin"))
	assert.False(t, s.Supports("http://[::1]/"))
	assert.False(t, s.Supports("http://10.0.0.7/"))
	assert.True(t, s.Supports("http://93.184.216.34/"))

	assert.True(t, newLocalScraper(true).Supports("http://127.0.0.1:8080/about"))
}

func TestLocalScraper_RefusesInternalAddresses(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(strings.Repeat("INTERNAL-SECRET-TOKEN ", 20)))
	}))
	defer srv.Close()
	_, port, err := net.SplitHostPort(strings.TrimPrefix(srv.URL, "http://"))
	require.NoError(t, err)

	s := NewLocalScraper()
	for _, target := range []string{
		srv.URL + "/latest/meta-data",
		// A hostname resolving to loopback is caught at dial time.
		"http://localhost:" + port + "/latest/meta-data",
	} {
		res, err := s.Scrape(context.Background(), target)
		require.Error(t, err, target)
		assert.Nil(t, res)
		assert.Contains(t, err.Error(), "refusing non-public address")
	}
	assert.Zero(t, hits.Load())

	// Through the chain, the refusal is one more scraper failure.
	_, err = NewChain(nil, s).Scrape(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Zero(t, hits.Load())
}

func TestIsPublic(t *testing.T) {
	tests := map[string]bool{
		"93.184.216.34":    true,
		"2606:4700::1111":  true,
		"127.0.0.1":        false,
		"::1":              false,
		"10.1.2.3":         false,
		"172.16.0.9":       false,
		"192.168.1.1":      false,
		"169.254.169.254":  false,
		"fe80::1":          false,
		"fd00::1":          false,
		"0.0.0.0":          false,
		"::":               false,
		"100.64.0.1":       false,
		"::ffff:127.0.0.1": false,
	}
	for addr, want := range tests {
		assert.Equal(t, want, isPublic(netip.MustParseAddr(addr)), addr)
	}
}

func TestReadHTML(t *testing.T) {
	title, text, err := readHTML([]byte(`<html><head><TITLE> Jane Doe </TITLE>
<meta name="description" content="Engineer and speaker."></head>
<body><header>Site</header><h2>About</h2>
<ul><li>Talks <ul><li>GopherCon</li></ul></li><li>Writing</li></ul>
<p>a &amp; b &lt; c</p><style>.x{}</style><form>Sign up</form></body></html>`))
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", title)
	assert.Equal(t, "Engineer and speaker.\n\n## About\n\nGopherCon\n\nWriting\n\na & b < c", text)
}

func TestReadHTML_FallsBackToBody(t *testing.T) {
	title, text, err := readHTML([]byte(`<html><head><meta property="og:title" content="Jane"></head><body><div>Just   a div</div></body></html>`))
	require.NoError(t, err)
	assert.Equal(t, "Jane", title)
	assert.Equal(t, "Just a div", text)
}
