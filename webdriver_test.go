package main

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tebeka/selenium"
)

func TestLaunchDriver_MissingBinary(t *testing.T) {
	d := &browserDriver{browser: "firefox", binary: "aocstat-no-such-driver"}
	_, err := launchDriver(context.Background(), d)
	assert.ErrorIs(t, err, ErrDriverUnavailable)
}

func TestLaunchDriver_StartFailure(t *testing.T) {
	exe, err := os.Executable()
	require.NoError(t, err)
	d := &browserDriver{browser: "firefox", binary: exe, start: func(string, int) (driverService, error) {
		return nil, errors.New("exec format error")
	}}

	_, err = launchDriver(context.Background(), d)
	assert.ErrorIs(t, err, ErrDriverUnavailable)
}

// fakeRemote implements the parts of selenium.WebDriver a login session uses.
type fakeRemote struct {
	selenium.WebDriver
	visited  string
	query    string
	elements int
	cookie   string
	quit     bool
}

func (f *fakeRemote) Get(url string) error {
	f.visited = url
	return nil
}

func (f *fakeRemote) FindElements(by, value string) ([]selenium.WebElement, error) {
	f.query = by + " " + value
	return make([]selenium.WebElement, f.elements), nil
}

func (f *fakeRemote) GetCookie(name string) (selenium.Cookie, error) {
	return selenium.Cookie{Name: name, Value: f.cookie}, nil
}

func (f *fakeRemote) Quit() error {
	f.quit = true
	return nil
}

type stoppedService struct{ stopped bool }

func (s *stoppedService) Stop() error {
	s.stopped = true
	return nil
}

func TestBrowserSession(t *testing.T) {
	wd := &fakeRemote{}
	svc := &stoppedService{}
	b := &browserSession{wd: wd, svc: svc}
	ctx := context.Background()

	require.NoError(t, b.Navigate(ctx, "https://adventofcode.com/2024/auth/login"))
	assert.Equal(t, "https://adventofcode.com/2024/auth/login", wd.visited)

	ok, err := b.LoggedIn(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, selenium.ByXPATH+" //a[normalize-space(.)='[Log Out]']", wd.query)

	wd.elements = 1
	ok, err = b.LoggedIn(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = b.Cookie(ctx, "session")
	assert.Error(t, err, "empty cookie")
	wd.cookie = "53616c7465645f5f"
	v, err := b.Cookie(ctx, "session")
	require.NoError(t, err)
	assert.Equal(t, "53616c7465645f5f", v)

	require.NoError(t, b.Close())
	assert.True(t, wd.quit)
	assert.True(t, svc.stopped)
}
