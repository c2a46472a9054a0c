package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Session errors.
var (
	ErrAuthTimeout       = errors.New("timed out waiting for authentication")
	ErrDriverUnavailable = errors.New("browser driver unavailable")
)

// Login polling bounds.
const (
	loginTimeout      = 1000 * time.Second
	loginPollInterval = time.Second
)

const sessionFileName = "session"

// tokenAcquirer runs an interactive flow that yields a new session token.
type tokenAcquirer interface {
	Acquire(ctx context.Context) (string, error)
}

// sessionManager owns the session token. It never checks validity itself; callers
// report rejection by asking for a forced re-acquisition.
type sessionManager struct {
	path     string
	override string
	acquirer tokenAcquirer
	log      *logger
}

func newSessionManager(dataDir, override string, acquirer tokenAcquirer, log *logger) *sessionManager {
	return &sessionManager{
		path:     filepath.Join(dataDir, sessionFileName),
		override: strings.TrimSpace(override),
		acquirer: acquirer,
		log:      log,
	}
}

// Token returns the persisted token, acquiring one when none exists or force is set.
func (m *sessionManager) Token(ctx context.Context, force bool) (string, error) {
	if !force {
		if m.override != "" {
			return m.override, nil
		}
		b, err := os.ReadFile(m.path)
		switch {
		case err == nil && strings.TrimSpace(string(b)) != "":
			return strings.TrimSpace(string(b)), nil
		case err != nil && !errors.Is(err, os.ErrNotExist):
			return "", fmt.Errorf("read session: %w", err)
		}
	} else if m.override != "" {
		m.log.warn("AOCSTAT_SESSION was rejected, falling back to interactive login")
		m.override = ""
	}

	token, err := m.acquirer.Acquire(ctx)
	if err != nil {
		return "", err
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", errors.New("empty session token")
	}
	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return "", fmt.Errorf("mkdir data dir: %w", err)
	}
	if err := writeFileAtomic(m.path, []byte(token+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("save session: %w", err)
	}
	m.log.ok("session token saved")
	return token, nil
}

// browserChoice is one entry of the login menu. A nil driver means manual paste.
type browserChoice struct {
	label  string
	driver *browserDriver
}

// interactiveLogin asks the user how to log in and returns the session cookie.
type interactiveLogin struct {
	in       *bufio.Reader
	out      io.Writer
	loginURL string
	choices  []browserChoice
	launch   func(ctx context.Context, d *browserDriver) (webDriverSession, error)
	timeout  time.Duration
	interval time.Duration
}

func newInteractiveLogin(in io.Reader, out io.Writer, baseURL string, year int) *interactiveLogin {
	return &interactiveLogin{
		in:       bufio.NewReader(in),
		out:      out,
		loginURL: fmt.Sprintf("%s/%d/auth/login", baseURL, year),
		choices: []browserChoice{
			{label: "Firefox (default)", driver: &firefoxDriver},
			{label: "Chrome", driver: &chromeDriver},
			{label: "Edge", driver: &edgeDriver},
			{label: "Safari", driver: &safariDriver},
			{label: "'I'll do it myself'"},
		},
		launch:   launchDriver,
		timeout:  loginTimeout,
		interval: loginPollInterval,
	}
}

// Acquire shows the menu until a browser driver starts or the manual option is
// chosen. A missing driver sends the user back to the menu.
func (l *interactiveLogin) Acquire(ctx context.Context) (string, error) {
	for {
		choice, err := l.prompt()
		if err != nil {
			return "", err
		}
		if choice.driver == nil {
			return l.manual()
		}
		token, err := l.viaBrowser(ctx, choice.driver)
		if errors.Is(err, ErrDriverUnavailable) {
			_, _ = fmt.Fprintf(l.out, "\nYou don't have a driver installed for %s (%v), please try again.\n\n", choice.label, err)
			continue
		}
		return token, err
	}
}

func (l *interactiveLogin) prompt() (browserChoice, error) {
	_, _ = fmt.Fprintln(l.out, "Please select a browser to use for authentication (must be one you have installed already):")
	for i, c := range l.choices {
		_, _ = fmt.Fprintf(l.out, "%d) %s\n", i+1, c.label)
	}
	for {
		_, _ = fmt.Fprintf(l.out, "Selection ([1]-%d): ", len(l.choices))
		line, err := l.readLine()
		if err != nil {
			return browserChoice{}, err
		}
		if line == "" {
			return l.choices[0], nil
		}
		n, err := strconv.Atoi(line)
		if err == nil && n >= 1 && n <= len(l.choices) {
			return l.choices[n-1], nil
		}
		_, _ = fmt.Fprintf(l.out, "'%s' isn't a valid selection.\n", line)
	}
}

func (l *interactiveLogin) readLine() (string, error) {
	line, err := l.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		if errors.Is(err, io.EOF) {
			return "", errors.New("no input: interactive login needs a terminal")
		}
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func (l *interactiveLogin) viaBrowser(ctx context.Context, d *browserDriver) (string, error) {
	sess, err := l.launch(ctx, d)
	if err != nil {
		return "", err
	}
	defer func() { _ = sess.Close() }()

	if err := sess.Navigate(ctx, l.loginURL); err != nil {
		return "", err
	}
	_, _ = fmt.Fprintln(l.out, "\nPlease authenticate yourself with one of the methods given.")

	if err := waitForLogin(ctx, sess, l.timeout, l.interval); err != nil {
		return "", err
	}
	token, err := sess.Cookie(ctx, "session")
	if err != nil {
		return "", fmt.Errorf("read session cookie: %w", err)
	}
	_, _ = fmt.Fprintln(l.out, "\nAuthenticated.")
	return token, nil
}

func (l *interactiveLogin) manual() (string, error) {
	_, _ = fmt.Fprintf(l.out, "\nBrave!\n"+
		"1) Navigate to '%s'.\n"+
		"2) Authenticate if necessary.\n"+
		"3) Open the network tools in your browser, refresh the page and examine the GET request for cookies.\n"+
		"4) Copy everything after 'session=' into the field below (a Cookie header or curl command works too).\n",
		l.loginURL)
	_, _ = fmt.Fprint(l.out, "session=")
	line, err := l.readLine()
	if err != nil {
		return "", err
	}
	token := parseSessionValue(line)
	if token == "" {
		return "", errors.New("session cookie not found in input")
	}
	return token, nil
}

// waitForLogin polls sess until the logged-in marker appears or timeout elapses.
func waitForLogin(ctx context.Context, sess webDriverSession, timeout, interval time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		ok, err := sess.LoggedIn(ctx)
		if err != nil && ctx.Err() == nil {
			return fmt.Errorf("check login state: %w", err)
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return ErrAuthTimeout
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

var (
	reSessionPair = regexp.MustCompile(`(?:^|[\s;'"])session=([^;\s'"\\]+)`)
	reUserID      = regexp.MustCompile(`\(anonymous user #(\d+)\)`)
)

// parseSessionValue extracts the session cookie from a bare value, a
// "session=..." pair, a Cookie header or a curl command line.
func parseSessionValue(text string) string {
	text = strings.TrimSpace(text)
	if m := reSessionPair.FindStringSubmatch(text); len(m) == 2 {
		return m[1]
	}
	text = strings.TrimSpace(strings.TrimPrefix(text, "Cookie:"))
	text = strings.Trim(text, `"'`)
	if strings.ContainsAny(text, " ;=") {
		return ""
	}
	return text
}

// userID resolves the numeric id of the logged-in user. It never changes, so the
// cached value has no expiry.
func userID(ctx context.Context, r *remote, cache *cacheStore, year int) (int, error) {
	const key = "id"
	if e, ok, err := cache.read(key); err != nil {
		return 0, err
	} else if ok {
		if id, err := strconv.Atoi(string(e.Payload)); err == nil {
			return id, nil
		}
	}

	body, err := r.fetch(ctx, apiRequest{method: http.MethodGet, path: fmt.Sprintf("/%d/settings", year), authed: true}, classifyMemberPage)
	if err != nil {
		return 0, err
	}
	m := reUserID.FindSubmatch(body)
	if m == nil {
		return 0, errors.New("user id not found on settings page")
	}
	id, err := strconv.Atoi(string(m[1]))
	if err != nil {
		return 0, fmt.Errorf("parse user id: %w", err)
	}
	if err := cache.write(key, m[1]); err != nil {
		return 0, err
	}
	return id, nil
}
