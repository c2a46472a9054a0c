package main

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

// leaderboardRow is one scraped global leaderboard entry before rank and name
// resolution. Rank is 0 when the row did not render one.
type leaderboardRow struct {
	ID        string
	Rank      int
	Score     int
	Time      string
	Link      string
	LinkName  string
	AnonName  string
	PlainName string
	Supporter bool
	Sponsor   bool
}

// fillRanks carries each declared rank forward over the following undeclared
// ones. Entries before the first declared rank stay 0.
func fillRanks(declared []int) []int {
	out := make([]int, len(declared))
	last := 0
	for i, r := range declared {
		if r > 0 {
			last = r
		}
		out[i] = last
	}
	return out
}

// resolveName picks the display name of a row: profile link text, then the
// anonymous badge, then the plain text of the row.
func resolveName(r leaderboardRow) (name string, anonymous bool) {
	switch {
	case r.Link != "" && r.LinkName != "":
		return r.LinkName, false
	case r.AnonName != "":
		return r.AnonName, true
	default:
		return r.PlainName, false
	}
}

// resolveRows turns scraped rows into member entries.
func resolveRows(rows []leaderboardRow, day bool) []memberEntry {
	declared := make([]int, len(rows))
	for i, r := range rows {
		declared[i] = r.Rank
	}
	ranks := fillRanks(declared)

	out := make([]memberEntry, len(rows))
	for i, r := range rows {
		name, anon := resolveName(r)
		e := memberEntry{
			ID:        r.ID,
			Rank:      ranks[i],
			Score:     r.Score,
			Name:      name,
			Anonymous: anon,
			Supporter: r.Supporter,
			Sponsor:   r.Sponsor,
			Link:      r.Link,
		}
		if day {
			e.TimeToComplete = r.Time
			if e.Rank > 0 {
				e.Score = 101 - e.Rank
			}
		}
		out[i] = e
	}
	return out
}

// parseGlobalBoard scrapes the rows of a global leaderboard page. For a day page
// only the section for part is kept; the page lists part 2 before part 1.
func parseGlobalBoard(page []byte, part int) ([]leaderboardRow, error) {
	doc, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("parse HTML: %w", err)
	}

	var rows []leaderboardRow
	section := 0
	findAll(doc, func(n *html.Node) bool {
		if n.Type != html.ElementNode {
			return false
		}
		switch {
		case hasClass(n, "leaderboard-daydesc-both"):
			section = 2
		case hasClass(n, "leaderboard-daydesc-first"):
			section = 1
		case hasClass(n, "leaderboard-entry"):
			if part == 0 || section == part {
				row := parseLeaderboardEntry(n)
				if row.ID == "" {
					row.ID = "row-" + strconv.Itoa(len(rows))
				}
				rows = append(rows, row)
			}
			return true
		}
		return false
	})
	return rows, nil
}

// parseLeaderboardEntry reads one div.leaderboard-entry.
func parseLeaderboardEntry(n *html.Node) leaderboardRow {
	row := leaderboardRow{ID: getAttr(n, "data-user-id")}
	var plain strings.Builder

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			plain.WriteString(c.Data)
			continue
		}
		if c.Type != html.ElementNode {
			continue
		}
		text := strings.TrimSpace(extractTextContent(c))
		switch {
		case hasClass(c, "leaderboard-position"):
			row.Rank, _ = strconv.Atoi(strings.TrimSuffix(text, ")"))
		case hasClass(c, "leaderboard-time"):
			row.Time = text
		case hasClass(c, "leaderboard-totalscore"):
			row.Score, _ = strconv.Atoi(text)
		case hasClass(c, "supporter-badge"):
			row.Supporter = true
		case hasClass(c, "sponsor-badge"):
			row.Sponsor = true
		case hasClass(c, "leaderboard-anon"):
			row.AnonName = text
		case c.Data == "a":
			row.Link = getAttr(c, "href")
			row.LinkName = text
		}
	}
	row.PlainName = strings.TrimSpace(plain.String())
	return row
}

// findAll walks the tree in document order. match returning true skips n's children.
func findAll(n *html.Node, match func(*html.Node) bool) {
	if match(n) {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		findAll(c, match)
	}
}

func hasClass(n *html.Node, class string) bool {
	for _, attr := range n.Attr {
		if attr.Key == "class" {
			for _, c := range strings.Fields(attr.Val) {
				if c == class {
					return true
				}
			}
		}
	}
	return false
}

func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

func extractTextContent(n *html.Node) string {
	var buf strings.Builder
	var extract func(*html.Node)
	extract = func(node *html.Node) {
		if node.Type == html.TextNode {
			buf.WriteString(node.Data)
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}
	extract(n)
	return buf.String()
}
