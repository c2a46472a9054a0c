package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// maxAutoRetries bounds automatic resubmission after a rate-limited answer.
const maxAutoRetries = 1

// outcome is the kind of a submission result.
type outcome int

const (
	outcomeCorrect outcome = iota
	outcomeIncorrect
	outcomeAlreadyCompleted
	outcomeRateLimited
)

func (o outcome) String() string {
	switch o {
	case outcomeCorrect:
		return "correct"
	case outcomeIncorrect:
		return "incorrect"
	case outcomeAlreadyCompleted:
		return "already completed"
	case outcomeRateLimited:
		return "rate limited"
	default:
		return "unknown"
	}
}

// hint is the direction given for a wrong answer, when the site gives one.
type hint int

const (
	hintNone hint = iota
	hintTooHigh
	hintTooLow
)

// submissionResult is the outcome of one answer submission. Wait is set only for
// outcomeRateLimited.
type submissionResult struct {
	Outcome outcome
	Hint    hint
	Wait    time.Duration
	Message string
}

func (r submissionResult) TooHigh() bool { return r.Hint == hintTooHigh }

var (
	reWaitShort   = regexp.MustCompile(`(?i)you have (?:(\d+)m\s*)?(?:(\d+)s\s*)?left`)
	reWaitMinutes = regexp.MustCompile(`(?i)(\d+)\s+minutes?`)
	reWaitSeconds = regexp.MustCompile(`(?i)(\d+)\s+seconds?`)
	reSpaces      = regexp.MustCompile(`\s+`)
)

// classifySubmission maps the text of an answer response onto a result. ok is
// false when the text matches no known response.
func classifySubmission(text string) (res submissionResult, ok bool) {
	lower := strings.ToLower(text)
	res = submissionResult{Message: text}
	switch {
	case strings.Contains(lower, "too recently"):
		res.Outcome = outcomeRateLimited
		res.Wait = parseWait(text)
	case strings.Contains(lower, "not the right answer"):
		res.Outcome = outcomeIncorrect
		switch {
		case strings.Contains(lower, "too high"):
			res.Hint = hintTooHigh
		case strings.Contains(lower, "too low"):
			res.Hint = hintTooLow
		}
	case strings.Contains(lower, "the right answer"):
		res.Outcome = outcomeCorrect
	case strings.Contains(lower, "already complete"),
		strings.Contains(lower, "don't seem to be solving the right level"):
		res.Outcome = outcomeAlreadyCompleted
	default:
		return submissionResult{}, false
	}
	return res, true
}

// parseWait extracts the remaining cooldown from text such as "You have 58s left"
// or "you have 1m 5s left" or "5 minutes".
func parseWait(text string) time.Duration {
	if m := reWaitShort.FindStringSubmatch(text); m != nil && (m[1] != "" || m[2] != "") {
		mins, _ := strconv.Atoi(m[1])
		secs, _ := strconv.Atoi(m[2])
		return time.Duration(mins)*time.Minute + time.Duration(secs)*time.Second
	}
	var d time.Duration
	if m := reWaitMinutes.FindStringSubmatch(text); m != nil {
		n, _ := strconv.Atoi(m[1])
		d += time.Duration(n) * time.Minute
	}
	if m := reWaitSeconds.FindStringSubmatch(text); m != nil {
		n, _ := strconv.Atoi(m[1])
		d += time.Duration(n) * time.Second
	}
	return d
}

// articleText returns the collapsed text of the first article on an answer page.
func articleText(page []byte) string {
	doc, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return string(page)
	}
	text := ""
	findAll(doc, func(n *html.Node) bool {
		if text == "" && n.Type == html.ElementNode && n.Data == "article" {
			text = extractTextContent(n)
			return true
		}
		return text != ""
	})
	return strings.TrimSpace(reSpaces.ReplaceAllString(text, " "))
}

// completionChecker reports how many parts of a day the user has solved.
type completionChecker interface {
	CompletedParts(ctx context.Context, year, day int) (int, error)
}

// submitter posts answers. It never retries on its own; SubmitAndWait is the
// caller's opt-in to wait out a cooldown once.
type submitter struct {
	remote    *remote
	completed completionChecker
	clock     clock
	log       *logger
	wait      func(ctx context.Context, d time.Duration) error
}

func newSubmitter(r *remote, completed completionChecker, c clock, log *logger, countdownOut io.Writer) *submitter {
	return &submitter{
		remote:    r,
		completed: completed,
		clock:     c,
		log:       log,
		wait:      countdown(countdownOut),
	}
}

// Submit makes a single submission attempt.
func (s *submitter) Submit(ctx context.Context, year, day, part int, answer string) (submissionResult, error) {
	if part != 1 && part != 2 {
		return submissionResult{}, fmt.Errorf("invalid part %d", part)
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return submissionResult{}, errors.New("answer must not be empty")
	}
	if err := checkUnlocked(s.clock.Now(), year, day); err != nil {
		return submissionResult{}, err
	}

	done, err := s.completed.CompletedParts(ctx, year, day)
	if err != nil {
		return submissionResult{}, fmt.Errorf("check completion: %w", err)
	}
	if part <= done {
		return submissionResult{Outcome: outcomeAlreadyCompleted, Message: fmt.Sprintf("Day %d part %d is already complete.", day, part)}, nil
	}
	if part == 2 && done < 1 {
		return submissionResult{}, &notAvailableError{Year: year, Day: day, Part: part}
	}

	req := apiRequest{
		method: http.MethodPost,
		path:   fmt.Sprintf("/%d/day/%d/answer", year, day),
		form:   url.Values{"level": {strconv.Itoa(part)}, "answer": {answer}},
		authed: true,
	}
	page, err := s.remote.fetch(ctx, req, classifyAnswer)
	if errors.Is(err, ErrNotYetAvailable) {
		return submissionResult{}, &notAvailableError{Year: year, Day: day, Part: part}
	}
	if err != nil {
		return submissionResult{}, err
	}
	text := articleText(page)
	res, ok := classifySubmission(text)
	if !ok {
		return submissionResult{}, fmt.Errorf("unrecognised answer response: %q", text)
	}
	s.log.debugf("submission %d/%d/%d: %s", year, day, part, res.Outcome)
	return res, nil
}

// SubmitAndWait submits, and when rate limited waits out the cooldown and
// resubmits, at most maxAutoRetries times.
func (s *submitter) SubmitAndWait(ctx context.Context, year, day, part int, answer string) (submissionResult, error) {
	res, err := s.Submit(ctx, year, day, part, answer)
	for retry := 0; err == nil && res.Outcome == outcomeRateLimited && retry < maxAutoRetries; retry++ {
		s.log.warnf("answer submitted too recently, waiting %s before resubmitting", res.Wait)
		if err := s.wait(ctx, res.Wait+time.Second); err != nil {
			return res, err
		}
		res, err = s.Submit(ctx, year, day, part, answer)
	}
	return res, err
}

// countdown returns a wait function that prints the remaining seconds to w once
// per second.
func countdown(w io.Writer) func(ctx context.Context, d time.Duration) error {
	return func(ctx context.Context, d time.Duration) error {
		deadline := time.Now().Add(d)
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			left := time.Until(deadline).Round(time.Second)
			if left <= 0 {
				_, _ = fmt.Fprint(w, "\r\033[K")
				return nil
			}
			_, _ = fmt.Fprintf(w, "\rResubmitting in %s...\033[K", left)
			select {
			case <-ctx.Done():
				_, _ = fmt.Fprintln(w)
				return ctx.Err()
			case <-ticker.C:
			}
		}
	}
}
