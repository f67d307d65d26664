package docs

import (
	"bufio"
	"bytes"
	"net/url"
	"path"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/pkg/errors"

	"github.com/jingkaihe/agentkit/pkg/osutil"
)

// document is a downloaded page reduced to Markdown
type document struct {
	Title    string
	Markdown string
	Links    []string
}

type contentKind int

const (
	contentBinary contentKind = iota
	contentHTML
	contentText
)

func classify(contentType string, u *url.URL, body []byte) contentKind {
	switch {
	case strings.Contains(contentType, "text/html"), strings.Contains(contentType, "application/xhtml"):
		return contentHTML
	case strings.HasPrefix(contentType, "text/"):
		return contentText
	case contentType == "" || strings.Contains(contentType, "application/octet-stream"):
		if osutil.IsBinary(body) {
			return contentBinary
		}
		switch strings.ToLower(path.Ext(u.Path)) {
		case ".md", ".markdown", ".txt":
			return contentText
		case "", ".html", ".htm":
			return contentHTML
		}
	}
	return contentBinary
}

// convertHTML extracts the title, the links and the main content of an
// HTML page as Markdown
func convertHTML(base *url.URL, body []byte, selector string) (*document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse HTML")
	}

	out := &document{Title: strings.TrimSpace(doc.Find("title").First().Text())}
	if out.Title == "" {
		out.Title = strings.TrimSpace(doc.Find("h1").First().Text())
	}

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		if href, ok := s.Attr("href"); ok {
			out.Links = append(out.Links, href)
		}
	})

	doc.Find("script, style, noscript, nav, header, footer").Remove()
	// the first selector that matches wins, not the first match in document order
	main := doc.Find("body")
	for _, sel := range strings.Split(selector, ",") {
		if m := doc.Find(strings.TrimSpace(sel)).First(); m.Length() > 0 {
			main = m
			break
		}
	}
	html, err := main.Html()
	if err != nil {
		return nil, errors.Wrap(err, "failed to extract content")
	}

	converter := md.NewConverter(base.Scheme+"://"+base.Host, true, nil)
	markdown, err := converter.ConvertString(html)
	if err != nil {
		return nil, errors.Wrap(err, "failed to convert HTML to Markdown")
	}
	out.Markdown = strings.TrimSpace(markdown) + "\n"
	return out, nil
}

// convertText keeps text and Markdown as they are. The first heading is
// used as the title.
func convertText(body []byte) *document {
	out := &document{Markdown: strings.TrimRight(string(body), "\n") + "\n"}
	scanner := bufio.NewScanner(bytes.NewReader(body))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "# ") {
			out.Title = strings.TrimSpace(strings.TrimPrefix(line, "# "))
			break
		}
	}
	return out
}

// pagePath maps a URL to its cache file relative to the source directory.
// Directory URLs map to index.md inside that directory. The top-level
// IndexFile is reserved for the generated listing: the site root maps to
// home.md and a top-level index page to index-page.md.
func pagePath(u *url.URL, primaryHost string) string {
	p := strings.TrimPrefix(u.Path, "/")
	switch {
	case p == "":
		p = "home"
	case strings.HasSuffix(p, "/"):
		p += "index"
	default:
		for _, ext := range []string{".html", ".htm", ".md", ".markdown", ".txt"} {
			if strings.HasSuffix(strings.ToLower(p), ext) {
				p = p[:len(p)-len(ext)]
				break
			}
		}
	}
	if u.RawQuery != "" {
		p += "-" + sanitize(u.RawQuery)
	}
	if !strings.EqualFold(u.Host, primaryHost) {
		p = sanitize(u.Host) + "/" + p
	}
	p = path.Clean(p) + ".md"
	if p == IndexFile {
		p = reservedIndexPage
	}
	return p
}

// sanitize replaces characters that do not belong in file names
func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, s)
}
