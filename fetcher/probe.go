package fetcher

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// ProbeResult describes what a plain HTTP fetch of the portal saw
type ProbeResult struct {
	URL         string
	StatusCode  int
	Title       string
	InputFound  bool
	ButtonFound bool
}

// Rendered reports whether the static HTML already carries the form.
// The portal is usually rendered client side, so false is expected.
func (p *ProbeResult) Rendered() bool {
	return p.InputFound && p.ButtonFound
}

// Prober checks that the download portal answers before any browser starts
type Prober struct {
	collector *colly.Collector
}

// NewProber creates a Prober with the given request timeout
func NewProber(timeout time.Duration) *Prober {
	c := colly.NewCollector(
		colly.UserAgent(userAgent),
		colly.AllowURLRevisit(),
	)
	c.SetRequestTimeout(timeout)
	return &Prober{collector: c}
}

// Probe fetches url and looks for an element matching inputSelector and a
// button whose text contains buttonText
func (p *Prober) Probe(url, inputSelector, buttonText string) (*ProbeResult, error) {
	res := &ProbeResult{URL: url}
	c := p.collector.Clone()

	c.OnError(func(r *colly.Response, err error) {
		log.Printf("Error fetching %s: %v\n", r.Request.URL, err)
	})

	c.OnResponse(func(r *colly.Response) {
		res.StatusCode = r.StatusCode
	})

	c.OnHTML("html", func(e *colly.HTMLElement) {
		res.Title = strings.TrimSpace(e.DOM.Find("title").First().Text())
		if inputSelector != "" {
			res.InputFound = e.DOM.Find(inputSelector).Length() > 0
		}
		e.DOM.Find("button").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if buttonText != "" && strings.Contains(s.Text(), buttonText) {
				res.ButtonFound = true
				return false
			}
			return true
		})
	})

	if err := c.Visit(url); err != nil {
		return nil, fmt.Errorf("failed to reach portal %s: %w", url, err)
	}
	c.Wait()

	return res, nil
}
