package fetch_test

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// fakeDriver serves canned markup per URL and records navigations.
type fakeDriver struct {
	mu        sync.Mutex
	pages     map[string][]string
	current   string
	navigated []string
	evals     []string
	navErrs   map[string]int
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{pages: map[string][]string{}, navErrs: map[string]int{}}
}

// serve queues snapshots for url; each HTML call pops one, the last one sticks.
func (d *fakeDriver) serve(url string, snapshots ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pages[url] = append(d.pages[url], snapshots...)
}

func (d *fakeDriver) failNavigation(url string, times int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.navErrs[url] = times
}

func (d *fakeDriver) Navigate(_ context.Context, url string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.navigated = append(d.navigated, url)
	if d.navErrs[url] != 0 {
		if d.navErrs[url] > 0 {
			d.navErrs[url]--
		}
		return errors.New("net::ERR_CONNECTION_RESET")
	}
	d.current = url
	return nil
}

func (d *fakeDriver) HTML(context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	snaps := d.pages[d.current]
	if len(snaps) == 0 {
		return "", errors.New("no page loaded")
	}
	html := snaps[0]
	if len(snaps) > 1 {
		d.pages[d.current] = snaps[1:]
	}
	return html, nil
}

func (d *fakeDriver) Eval(_ context.Context, script string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.evals = append(d.evals, script)
	return nil
}

func (d *fakeDriver) navigations() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.navigated...)
}

type fakeOperator struct {
	calls int
	err   error
}

func (o *fakeOperator) AwaitManualSolve(context.Context, string) error {
	o.calls++
	return o.err
}

func page(body string) string {
	return "<html><head><title>Results</title></head><body><main>" + body + "</main></body></html>"
}

func turnstilePage() string {
	return `<html><body><div class="cf-turnstile" data-sitekey="0x4KEY"></div></body></html>`
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if strings.Contains(v, s) {
			return true
		}
	}
	return false
}
