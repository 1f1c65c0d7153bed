// Package source はパートナー団体のRSS/Atomソースの登録と検出を提供する。
package source

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/africashands/platform/internal/model"
)

const (
	detectTimeout   = 10 * time.Second
	detectMaxBytes  = 5 * 1024 * 1024
	detectUserAgent = "AfricasHands-Importer/1.0"
)

// feedKind はフィードの形式。
type feedKind int

const (
	kindRSS feedKind = iota + 1
	kindAtom
)

// candidate はHTMLのlink要素から見つけたフィード候補。
type candidate struct {
	URL   string
	Kind  feedKind
	Title string
}

// Detection はURLから検出したフィードの情報。
type Detection struct {
	FeedURL string
	SiteURL string
	Title   string
}

// URLGuard は送信前のURL検証と安全なHTTPクライアントを提供する。
// security.SSRFGuardServiceを満たす。
type URLGuard interface {
	ValidateURL(rawURL string) error
	NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client
}

// Detector は入力URLからパートナーのフィードURLを特定する。
type Detector struct {
	guard  URLGuard
	client *http.Client
}

// NewDetector はDetectorを生成する。guardがnilの場合は検証なしの通常クライアントを使う。
func NewDetector(guard URLGuard) *Detector {
	d := &Detector{guard: guard}
	if guard != nil {
		d.client = guard.NewSafeClient(detectTimeout, detectMaxBytes)
	} else {
		d.client = &http.Client{Timeout: detectTimeout}
	}
	return d
}

// Detect はURLがフィードそのものか、フィードを案内するHTMLかを判定してフィードURLを返す。
// HTMLの場合はhead内の rel="alternate" リンクから、同一ホスト > Atom > 出現順 で選ぶ。
func (d *Detector) Detect(ctx context.Context, inputURL string) (*Detection, error) {
	inputURL = strings.TrimSpace(inputURL)
	if inputURL == "" {
		return nil, model.NewInvalidURLError("url")
	}
	if d.guard != nil {
		if err := d.guard.ValidateURL(inputURL); err != nil {
			return nil, model.NewSSRFBlockedError()
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, inputURL, nil)
	if err != nil {
		return nil, model.NewInvalidURLError(err.Error())
	}
	req.Header.Set("User-Agent", detectUserAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml, text/html;q=0.9, */*;q=0.1")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, model.NewFetchFailedError(err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, model.NewFetchFailedError(fmt.Sprintf("HTTP %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, detectMaxBytes))
	if err != nil {
		return nil, model.NewFetchFailedError(err.Error())
	}

	contentType := resp.Header.Get("Content-Type")
	if isFeedDocument(contentType, body) {
		return &Detection{FeedURL: inputURL, SiteURL: siteURL(inputURL)}, nil
	}

	mediaType, _, _ := mime.ParseMediaType(contentType)
	if !strings.Contains(strings.ToLower(mediaType), "html") {
		return nil, model.NewFeedNotDetectedError(inputURL)
	}

	best := pickFeed(feedLinks(body, inputURL), inputURL)
	if best == nil {
		return nil, model.NewFeedNotDetectedError(inputURL)
	}
	return &Detection{FeedURL: best.URL, SiteURL: siteURL(inputURL), Title: best.Title}, nil
}

// isFeedDocument はContent-Typeとボディの先頭からRSS/Atomかどうかを判定する。
func isFeedDocument(contentType string, body []byte) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.TrimSpace(strings.Split(contentType, ";")[0])
	}
	switch strings.ToLower(mediaType) {
	case "application/rss+xml", "application/atom+xml":
		return true
	case "text/xml", "application/xml":
		return looksLikeFeed(body)
	default:
		return false
	}
}

// looksLikeFeed はXMLの先頭4KBにRSSまたはAtomのルート要素があるかを調べる。
func looksLikeFeed(body []byte) bool {
	if len(body) == 0 {
		return false
	}
	prefix := strings.ToLower(string(body[:min(len(body), 4096)]))
	if strings.Contains(prefix, "<rss") || strings.Contains(prefix, "<rdf:rdf") {
		return true
	}
	return strings.Contains(prefix, "<feed") && strings.Contains(prefix, "http://www.w3.org/2005/atom")
}

// feedLinks はHTMLのheadからRSS/Atomの代替リンクを抽出する。
// 相対URLはbaseURLで解決する。
func feedLinks(htmlBody []byte, baseURL string) []candidate {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil
	}

	var found []candidate
	z := html.NewTokenizer(bytes.NewReader(htmlBody))
	inHead := false
	for {
		switch z.Next() {
		case html.ErrorToken:
			return found

		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			switch string(name) {
			case "head":
				inHead = true
				continue
			case "body":
				return found
			case "link":
			default:
				continue
			}
			if !inHead || !hasAttr {
				continue
			}

			var rel, typ, href, title string
			for more := true; more; {
				var key, val []byte
				key, val, more = z.TagAttr()
				switch strings.ToLower(string(key)) {
				case "rel":
					rel = strings.ToLower(string(val))
				case "type":
					typ = strings.ToLower(string(val))
				case "href":
					href = string(val)
				case "title":
					title = string(val)
				}
			}
			if !hasToken(rel, "alternate") || href == "" {
				continue
			}

			var kind feedKind
			switch typ {
			case "application/rss+xml":
				kind = kindRSS
			case "application/atom+xml":
				kind = kindAtom
			default:
				continue
			}

			ref, err := url.Parse(href)
			if err != nil {
				continue
			}
			found = append(found, candidate{URL: base.ResolveReference(ref).String(), Kind: kind, Title: strings.TrimSpace(title)})

		case html.EndTagToken:
			if name, _ := z.TagName(); string(name) == "head" {
				return found
			}
		}
	}
}

// hasToken は空白区切りのrel属性に指定の値が含まれるかを返す。
func hasToken(attr, token string) bool {
	for _, f := range strings.Fields(attr) {
		if f == token {
			return true
		}
	}
	return false
}

// pickFeed は候補から 同一ホスト(+100) > Atom(+10) > 出現順 で1件を選ぶ。
func pickFeed(cands []candidate, inputURL string) *candidate {
	if len(cands) == 0 {
		return nil
	}
	inputHost := hostOf(inputURL)
	bestIdx, bestScore := 0, -1
	for i, c := range cands {
		score := 0
		if hostOf(c.URL) == inputHost {
			score += 100
		}
		if c.Kind == kindAtom {
			score += 10
		}
		if score > bestScore {
			bestIdx, bestScore = i, score
		}
	}
	return &cands[bestIdx]
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// siteURL はURLからスキームとホストだけを残す。
func siteURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return (&url.URL{Scheme: u.Scheme, Host: u.Host}).String()
}
