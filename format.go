package main

import (
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"
)

// writeCachedNote tells the user the data is not live.
func writeCachedNote(w io.Writer, cachedAt *time.Time) {
	if cachedAt == nil {
		return
	}
	_, _ = fmt.Fprintf(w, "(cached at %s, use --force to refresh)\n", cachedAt.Local().Format("2006-01-02 15:04:05"))
}

// writePrivateBoard renders a private board with a star grid, one column per day.
func writePrivateBoard(w io.Writer, s *snapshot) {
	entries := s.Entries()
	if len(entries) == 0 {
		_, _ = fmt.Fprintln(w, "No members.")
		return
	}
	days := eventDays(s.Year)
	rankW := len(strconv.Itoa(len(entries)))
	scoreW := len(strconv.Itoa(entries[0].Score))
	pad := strings.Repeat(" ", rankW+2+scoreW+1)

	var tens, units strings.Builder
	for d := 1; d <= days; d++ {
		if d >= 10 {
			tens.WriteString(strconv.Itoa(d / 10))
		} else {
			tens.WriteByte(' ')
		}
		units.WriteString(strconv.Itoa(d % 10))
	}
	_, _ = fmt.Fprintln(w, pad+strings.TrimRight(tens.String(), " "))
	_, _ = fmt.Fprintln(w, pad+units.String())

	for _, e := range entries {
		var stars strings.Builder
		for d := 1; d <= days; d++ {
			parts := e.Completion[d]
			switch {
			case slices.Contains(parts, 2):
				stars.WriteByte('*')
			case slices.Contains(parts, 1):
				stars.WriteByte('.')
			default:
				stars.WriteByte(' ')
			}
		}
		_, _ = fmt.Fprintf(w, "%*d) %*d %s  %s\n", rankW, e.Rank, scoreW, e.Score, stars.String(), e.Name)
	}
}

// writeGlobalBoard renders a global board.
func writeGlobalBoard(w io.Writer, s *snapshot) {
	entries := s.Entries()
	_, _ = fmt.Fprintf(w, "Global leaderboard %d, %s\n", s.Year, s.Scope)
	if len(entries) == 0 {
		_, _ = fmt.Fprintln(w, "No entries.")
		return
	}
	for _, e := range entries {
		rank := "   "
		if e.Rank > 0 {
			rank = fmt.Sprintf("%3d", e.Rank)
		}
		col := strconv.Itoa(e.Score)
		if e.TimeToComplete != "" {
			col = e.TimeToComplete
		}
		var badges []string
		if e.Supporter {
			badges = append(badges, "(AoC++)")
		}
		if e.Sponsor {
			badges = append(badges, "(Sponsor)")
		}
		line := fmt.Sprintf("%s) %s %s", rank, col, e.Name)
		if len(badges) > 0 {
			line += " " + strings.Join(badges, " ")
		}
		_, _ = fmt.Fprintln(w, line)
	}
}

// writePuzzle renders puzzle segments with light markup: *emphasis*, `code`,
// [star] and "- " list items.
func writePuzzle(w io.Writer, c *puzzleContent) {
	_, _ = fmt.Fprintf(w, "--- %s (%d, part %d) ---\n\n", c.Title, c.Year, c.Part)
	inItem := false
	for _, seg := range c.Segments {
		if seg.Tag == segListItem && !inItem {
			_, _ = fmt.Fprint(w, "- ")
		}
		inItem = seg.Tag == segListItem || (inItem && seg.Tag != segPlain)
		switch seg.Tag {
		case segEmphasis:
			_, _ = fmt.Fprintf(w, "*%s*", seg.Text)
		case segStar:
			_, _ = fmt.Fprintf(w, "[%s]", seg.Text)
		case segCode:
			if strings.Contains(seg.Text, "\n") {
				_, _ = fmt.Fprint(w, seg.Text)
			} else {
				_, _ = fmt.Fprintf(w, "`%s`", seg.Text)
			}
		default:
			_, _ = fmt.Fprint(w, seg.Text)
		}
	}
	_, _ = fmt.Fprintln(w)
}

// writeSubmission renders a submission result.
func writeSubmission(w io.Writer, r submissionResult) {
	switch r.Outcome {
	case outcomeCorrect:
		_, _ = fmt.Fprintln(w, "That's the right answer!")
	case outcomeIncorrect:
		switch {
		case r.TooHigh():
			_, _ = fmt.Fprintln(w, "That's not the right answer; your answer is too high.")
		case r.Hint == hintTooLow:
			_, _ = fmt.Fprintln(w, "That's not the right answer; your answer is too low.")
		default:
			_, _ = fmt.Fprintln(w, "That's not the right answer.")
		}
	case outcomeAlreadyCompleted:
		_, _ = fmt.Fprintln(w, "You have already completed this part.")
	case outcomeRateLimited:
		_, _ = fmt.Fprintf(w, "You gave an answer too recently. Wait %s before trying again (or use --wait).\n", r.Wait)
	}
}
