package fetch

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/shpitdev/listing-enricher/internal/throttle"
)

// ProfileWebsites opens a listing's on-site profile page in the browser and returns the
// first outbound link that is not the listing site itself or a social network.
type ProfileWebsites struct {
	driver   Driver
	skipHost func(host string) bool
	waiter   Waiter
	delay    throttle.Range
}

func NewProfileWebsites(driver Driver, skipHost func(string) bool, waiter Waiter, delay throttle.Range) *ProfileWebsites {
	if waiter == nil {
		waiter = throttle.New(0)
	}
	if skipHost == nil {
		skipHost = func(string) bool { return false }
	}
	return &ProfileWebsites{driver: driver, skipHost: skipHost, waiter: waiter, delay: delay}
}

func (p *ProfileWebsites) WebsiteFromProfile(ctx context.Context, profileURL string) (string, error) {
	profileURL = strings.TrimSpace(profileURL)
	if profileURL == "" {
		return "", errors.New("empty profile url")
	}
	if err := p.waiter.Wait(ctx, p.delay); err != nil {
		return "", err
	}
	if err := p.driver.Navigate(ctx, profileURL); err != nil {
		return "", err
	}
	html, err := p.driver.HTML(ctx)
	if err != nil {
		return "", err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}

	site := ""
	doc.Find("a[href^='http']").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href := strings.TrimSpace(s.AttrOr("href", ""))
		u, err := url.Parse(href)
		if err != nil || u.Host == "" || p.skipHost(u.Hostname()) {
			return true
		}
		site = href
		return false
	})
	return site, nil
}
