package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"strconv"
	"time"

	"github.com/tebeka/selenium"
)

// driverService is a running WebDriver server.
type driverService interface {
	Stop() error
}

// browserDriver describes a WebDriver server binary for one browser. urlBase is the
// path prefix the server mounts its endpoints under.
type browserDriver struct {
	browser string
	binary  string
	urlBase string
	start   func(path string, port int) (driverService, error)
}

var (
	firefoxDriver = browserDriver{browser: "firefox", binary: "geckodriver", start: func(path string, port int) (driverService, error) {
		s, err := selenium.NewGeckoDriverService(path, port)
		if err != nil {
			return nil, err
		}
		return s, nil
	}}
	chromeDriver = browserDriver{browser: "chrome", binary: "chromedriver", urlBase: "/wd/hub", start: startChromium}
	// msedgedriver is a chromedriver build and takes the same flags.
	edgeDriver   = browserDriver{browser: "MicrosoftEdge", binary: "msedgedriver", urlBase: "/wd/hub", start: startChromium}
	safariDriver = browserDriver{browser: "safari", binary: "safaridriver", start: func(path string, port int) (driverService, error) {
		cmd := exec.Command(path, "-p", strconv.Itoa(port))
		if err := cmd.Start(); err != nil {
			return nil, err
		}
		return processService{cmd: cmd}, nil
	}}
)

func startChromium(path string, port int) (driverService, error) {
	s, err := selenium.NewChromeDriverService(path, port)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// processService is a driver binary started directly, for drivers without a
// selenium service helper.
type processService struct {
	cmd *exec.Cmd
}

func (p processService) Stop() error {
	if err := p.cmd.Process.Kill(); err != nil {
		return err
	}
	_ = p.cmd.Wait()
	return nil
}

// webDriverSession is a remote-controlled browser window.
type webDriverSession interface {
	Navigate(ctx context.Context, url string) error
	LoggedIn(ctx context.Context) (bool, error)
	Cookie(ctx context.Context, name string) (string, error)
	Close() error
}

const (
	driverStartTimeout = 10 * time.Second
	loggedInXPath      = "//a[normalize-space(.)='" + logoutMarker + "']"
)

// launchDriver starts the driver binary on a free local port and opens a browser
// session through it. Any failure to get a browser up is ErrDriverUnavailable.
func launchDriver(ctx context.Context, d *browserDriver) (webDriverSession, error) {
	path, err := exec.LookPath(d.binary)
	if err != nil {
		return nil, fmt.Errorf("%w: %s not found in PATH", ErrDriverUnavailable, d.binary)
	}
	port, err := freePort()
	if err != nil {
		return nil, err
	}

	svc, err := d.start(path, port)
	if err != nil {
		return nil, fmt.Errorf("%w: start %s: %v", ErrDriverUnavailable, d.binary, err)
	}
	wd, err := connectRemote(ctx, selenium.Capabilities{"browserName": d.browser}, fmt.Sprintf("http://localhost:%d%s", port, d.urlBase))
	if err != nil {
		_ = svc.Stop()
		return nil, fmt.Errorf("%w: open %s session: %v", ErrDriverUnavailable, d.browser, err)
	}
	return &browserSession{wd: wd, svc: svc}, nil
}

// connectRemote opens a session, retrying while the driver is still coming up.
func connectRemote(ctx context.Context, caps selenium.Capabilities, urlPrefix string) (selenium.WebDriver, error) {
	ctx, cancel := context.WithTimeout(ctx, driverStartTimeout)
	defer cancel()
	for {
		wd, err := selenium.NewRemote(caps, urlPrefix)
		if err == nil {
			return wd, nil
		}
		select {
		case <-ctx.Done():
			return nil, err
		case <-time.After(200 * time.Millisecond):
		}
	}
}

func freePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("find free port: %w", err)
	}
	defer func() { _ = l.Close() }()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// browserSession adapts a selenium session to webDriverSession. The selenium API
// has no context support, so ctx is only honoured between calls.
type browserSession struct {
	wd  selenium.WebDriver
	svc driverService
}

func (b *browserSession) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.wd.Get(url)
}

// LoggedIn reports whether the current page shows a log out link.
func (b *browserSession) LoggedIn(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	found, err := b.wd.FindElements(selenium.ByXPATH, loggedInXPath)
	if err != nil {
		return false, err
	}
	return len(found) > 0, nil
}

func (b *browserSession) Cookie(ctx context.Context, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	c, err := b.wd.GetCookie(name)
	if err != nil {
		return "", err
	}
	if c.Value == "" {
		return "", fmt.Errorf("cookie %q is empty", name)
	}
	return c.Value, nil
}

// Close ends the browser session and stops the driver.
func (b *browserSession) Close() error {
	return errors.Join(b.wd.Quit(), b.svc.Stop())
}
