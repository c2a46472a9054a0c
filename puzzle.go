package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// segmentTag is the semantic role of a run of puzzle text.
type segmentTag int

const (
	segPlain segmentTag = iota
	segEmphasis
	segCode
	segStar
	segListItem
)

func (t segmentTag) String() string {
	switch t {
	case segEmphasis:
		return "emphasis"
	case segCode:
		return "code"
	case segStar:
		return "star"
	case segListItem:
		return "list-item"
	default:
		return "plain"
	}
}

type segment struct {
	Text string
	Tag  segmentTag
}

// puzzleContent is the description of one puzzle part.
type puzzleContent struct {
	Year     int
	Day      int
	Part     int
	Title    string
	Segments []segment
}

// puzzles serves puzzle descriptions and inputs. Once a day is unlocked its content
// never changes, so cached entries do not expire.
type puzzles struct {
	remote *remote
	cache  *cacheStore
	clock  clock
	log    *logger
}

// Puzzle returns the description of a part. Part 2 is only served once part 1 is solved.
func (p *puzzles) Puzzle(ctx context.Context, year, day, part int) (*puzzleContent, *time.Time, error) {
	if part != 1 && part != 2 {
		return nil, nil, fmt.Errorf("invalid part %d", part)
	}
	if err := checkUnlocked(p.clock.Now(), year, day); err != nil {
		return nil, nil, err
	}

	key := fmt.Sprintf("pz_%d_%d_%d", year, day, part)
	if e, ok, err := p.cache.read(key); err != nil {
		p.log.warnf("cache read %s: %v", key, err)
	} else if ok {
		if c, err := parsePuzzleArticle(e.Payload, year, day, part); err == nil {
			p.log.debugf("cache hit: %s", key)
			at := e.FetchedAt
			return c, &at, nil
		}
	}

	page, err := p.dayPage(ctx, year, day)
	if err != nil {
		return nil, nil, err
	}
	articles, err := dayArticles(page)
	if err != nil {
		return nil, nil, err
	}
	if len(articles) < part {
		return nil, nil, &notAvailableError{Year: year, Day: day, Part: part}
	}
	raw := articles[part-1]
	c, err := parsePuzzleArticle(raw, year, day, part)
	if err != nil {
		return nil, nil, err
	}
	if err := p.cache.write(key, raw); err != nil {
		return nil, nil, err
	}
	return c, nil, nil
}

// Input returns the user's puzzle input for a day.
func (p *puzzles) Input(ctx context.Context, year, day int) (string, *time.Time, error) {
	if err := checkUnlocked(p.clock.Now(), year, day); err != nil {
		return "", nil, err
	}

	key := fmt.Sprintf("in_%d_%d", year, day)
	if e, ok, err := p.cache.read(key); err != nil {
		p.log.warnf("cache read %s: %v", key, err)
	} else if ok {
		at := e.FetchedAt
		return string(e.Payload), &at, nil
	}

	req := apiRequest{method: http.MethodGet, path: fmt.Sprintf("/%d/day/%d/input", year, day), authed: true}
	body, err := p.remote.fetch(ctx, req, classifyInput)
	if errors.Is(err, ErrNotYetAvailable) {
		return "", nil, &notAvailableError{Year: year, Day: day}
	}
	if err != nil {
		return "", nil, err
	}
	if err := p.cache.write(key, body); err != nil {
		return "", nil, err
	}
	return string(body), nil, nil
}

// CompletedParts fetches the day page live and counts the parts already solved.
func (p *puzzles) CompletedParts(ctx context.Context, year, day int) (int, error) {
	page, err := p.dayPage(ctx, year, day)
	if err != nil {
		return 0, err
	}
	return bytes.Count(page, []byte("Your puzzle answer was")), nil
}

func (p *puzzles) dayPage(ctx context.Context, year, day int) ([]byte, error) {
	req := apiRequest{method: http.MethodGet, path: fmt.Sprintf("/%d/day/%d", year, day), authed: true}
	page, err := p.remote.fetch(ctx, req, classifyMemberPage)
	if errors.Is(err, ErrNotYetAvailable) {
		return nil, &notAvailableError{Year: year, Day: day}
	}
	return page, err
}

// dayArticles returns the rendered HTML of each article.day-desc in page order.
func dayArticles(page []byte) ([][]byte, error) {
	doc, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("parse HTML: %w", err)
	}
	var out [][]byte
	var renderErr error
	findAll(doc, func(n *html.Node) bool {
		if n.Type != html.ElementNode || n.Data != "article" || !hasClass(n, "day-desc") {
			return false
		}
		var buf bytes.Buffer
		if err := html.Render(&buf, n); err != nil {
			renderErr = err
		}
		out = append(out, buf.Bytes())
		return true
	})
	if renderErr != nil {
		return nil, fmt.Errorf("render article: %w", renderErr)
	}
	return out, nil
}

// parsePuzzleArticle converts one article into a title and tagged text segments.
func parsePuzzleArticle(raw []byte, year, day, part int) (*puzzleContent, error) {
	doc, err := html.Parse(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse HTML: %w", err)
	}
	var article *html.Node
	findAll(doc, func(n *html.Node) bool {
		if article == nil && n.Type == html.ElementNode && n.Data == "article" {
			article = n
			return true
		}
		return article != nil
	})
	if article == nil {
		return nil, errors.New("puzzle article not found")
	}

	c := &puzzleContent{Year: year, Day: day, Part: part}
	w := segmentWriter{}
	for n := article.FirstChild; n != nil; n = n.NextSibling {
		if n.Type == html.ElementNode && n.Data == "h2" {
			c.Title = cleanTitle(extractTextContent(n))
			continue
		}
		w.walk(n, segPlain)
	}
	c.Segments = w.segs
	return c, nil
}

func cleanTitle(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "---")
	s = strings.TrimSuffix(s, "---")
	return strings.TrimSpace(s)
}

// segmentWriter accumulates segments, merging adjacent runs with the same tag.
type segmentWriter struct {
	segs []segment
}

func (w *segmentWriter) add(text string, tag segmentTag) {
	if text == "" {
		return
	}
	if n := len(w.segs); n > 0 && w.segs[n-1].Tag == tag {
		w.segs[n-1].Text += text
		return
	}
	w.segs = append(w.segs, segment{Text: text, Tag: tag})
}

// walk emits the text under n. base is the tag for plain text in this context.
func (w *segmentWriter) walk(n *html.Node, base segmentTag) {
	switch n.Type {
	case html.TextNode:
		w.add(n.Data, base)
		return
	case html.ElementNode:
	default:
		return
	}

	switch n.Data {
	case "em":
		tag := segEmphasis
		if hasClass(n, "star") {
			tag = segStar
		}
		w.add(extractTextContent(n), tag)
		return
	case "code":
		w.add(extractTextContent(n), segCode)
		return
	case "li":
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			w.walk(c, segListItem)
		}
		w.add("\n", segPlain)
		return
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.walk(c, base)
	}
	switch n.Data {
	case "p", "pre", "ul":
		w.add("\n", segPlain)
	}
}
