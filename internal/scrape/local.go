package scrape

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"syscall"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
)

const (
	// maxBody caps how much of a personal site or bio page is read.
	maxBody = 512 * 1024
	// blockSelector lists the elements rendered as separate paragraphs.
	blockSelector = "h1, h2, h3, h4, h5, h6, p, li, blockquote, pre, dt, dd, td"
	// dropSelector lists chrome and code that never carry profile text.
	dropSelector = "script, style, noscript, template, svg, nav, header, footer, form, iframe"
)

// walledHosts answer anonymous fetches with a login wall, so a direct fetch
// is never attempted for them.
var walledHosts = []string{"linkedin.com", "facebook.com", "instagram.com", "x.com", "twitter.com"}

// internalRanges are non-public ranges the netip predicates do not cover:
// "this network" and carrier-grade NAT.
var internalRanges = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("100.64.0.0/10"),
}

// LocalScraper fetches a page directly and reduces its HTML to markdown-ish
// text. It costs nothing, so it runs before the hosted readers.
//
// Profile URLs come from API callers, so the scraper only connects to public
// addresses. The check runs on the resolved IP at dial time, which also
// covers redirects and hostnames that resolve to internal addresses.
type LocalScraper struct {
	client       *http.Client
	allowPrivate bool
}

// NewLocalScraper creates a LocalScraper with short timeouts that refuses
// loopback, private, link-local and unspecified addresses.
func NewLocalScraper() *LocalScraper {
	return newLocalScraper(false)
}

func newLocalScraper(allowPrivate bool) *LocalScraper {
	dialer := &net.Dialer{Timeout: 10 * time.Second}
	if !allowPrivate {
		dialer.Control = refuseInternal
	}
	return &LocalScraper{
		allowPrivate: allowPrivate,
		client: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				DialContext:         dialer.DialContext,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
	}
}

// refuseInternal is a net.Dialer Control hook. It sees the address after
// DNS resolution.
func refuseInternal(_, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return eris.Wrapf(err, "local_http: dial %s", address)
	}
	ip, err := netip.ParseAddr(host)
	if err != nil {
		return eris.Wrapf(err, "local_http: dial %s", address)
	}
	if !isPublic(ip) {
		return eris.Errorf("local_http: refusing non-public address %s", ip)
	}
	return nil
}

func isPublic(ip netip.Addr) bool {
	ip = ip.Unmap()
	if !ip.IsValid() || ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() ||
		ip.IsInterfaceLocalMulticast() || ip.IsMulticast() {
		return false
	}
	for _, p := range internalRanges {
		if p.Contains(ip) {
			return false
		}
	}
	return true
}

func (l *LocalScraper) Name() string { return "local_http" }

// Supports accepts http and https URLs, except for hosts behind a login wall
// and literal non-public IPs.
func (l *LocalScraper) Supports(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return false
	}
	if scheme := strings.ToLower(u.Scheme); scheme != "http" && scheme != "https" {
		return false
	}
	if ip, err := netip.ParseAddr(u.Hostname()); err == nil && !l.allowPrivate && !isPublic(ip) {
		return false
	}
	host := strings.ToLower(strings.TrimPrefix(u.Hostname(), "www."))
	for _, h := range walledHosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return false
		}
	}
	return true
}

func (l *LocalScraper) Scrape(ctx context.Context, targetURL string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "local_http: create request")
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; LeadEnricher/1.0)")
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "local_http: fetch")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, eris.Wrap(err, "local_http: read body")
	}

	if blocked, kind := DetectBlock(resp, body); blocked {
		return nil, eris.Errorf("local_http: blocked (%s)", kind)
	}
	if resp.StatusCode >= 400 {
		return nil, eris.Errorf("local_http: status %d", resp.StatusCode)
	}
	if len(body) < minContent {
		return nil, eris.New("local_http: empty page")
	}

	title, text, err := readHTML(body)
	if err != nil {
		return nil, err
	}
	return &Result{
		Page:   Page{URL: targetURL, Title: title, Markdown: text, StatusCode: resp.StatusCode},
		Source: "local_http",
	}, nil
}

// readHTML returns the document title and its visible text, one block per
// paragraph. The meta description, when present, leads the text.
func readHTML(body []byte) (string, string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", "", eris.Wrap(err, "local_http: parse html")
	}

	title := squash(doc.Find("title").First().Text())
	if title == "" {
		title = squash(doc.Find(`meta[property="og:title"]`).AttrOr("content", ""))
	}

	doc.Find(dropSelector).Remove()

	var blocks []string
	if desc := squash(doc.Find(`meta[name="description"]`).AttrOr("content", "")); desc != "" {
		blocks = append(blocks, desc)
	}
	doc.Find(blockSelector).Each(func(_ int, s *goquery.Selection) {
		// Only leaf blocks, so nested lists are not emitted twice.
		if s.Find(blockSelector).Length() > 0 {
			return
		}
		text := squash(s.Text())
		if text == "" {
			return
		}
		if name := goquery.NodeName(s); len(name) == 2 && name[0] == 'h' {
			text = strings.Repeat("#", int(name[1]-'0')) + " " + text
		}
		blocks = append(blocks, text)
	})

	if len(blocks) == 0 {
		if text := squash(doc.Find("body").Text()); text != "" {
			blocks = append(blocks, text)
		}
	}
	return title, strings.Join(blocks, "\n\n"), nil
}

// squash collapses whitespace runs, non-breaking spaces included, to single
// spaces.
func squash(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
