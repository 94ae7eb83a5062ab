package worker

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/playwright-community/playwright-go"

	"glownest/models"
)

// Fetcher loads one search results page and returns its rendered HTML.
type Fetcher interface {
	FetchPage(url string) (string, error)
	Close() error
}

// Options configures one extraction run.
type Options struct {
	ListingType string
	MaxPages    int
	StartPage   int
	DelayMS     int
	Headful     bool
}

// Scraper walks the search result pages, emitting items and progress onto
// its event stream. Cancellation is cooperative: the current page finishes
// before the loop observes the context and exits cleanly.
type Scraper struct {
	fetcher  Fetcher
	emitter  *Emitter
	resolver *DistrictResolver
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) bool
}

func NewScraper(fetcher Fetcher, emitter *Emitter, resolver *DistrictResolver) *Scraper {
	return &Scraper{
		fetcher:  fetcher,
		emitter:  emitter,
		resolver: resolver,
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

func listURL(listingType string, page int) string {
	segment := "prodazha-kvartir"
	if listingType == "rent" {
		segment = "dolgosrochnaya-arenda-kvartir"
	}
	return fmt.Sprintf("%s/d/uk/nedvizhimost/kvartiry/%s/ivano-frankovsk/?page=%d", baseURL, segment, page)
}

// Run processes pages startPage..maxPages. A context cancellation between
// pages is a clean exit; a fetch failure on a page is logged and the page
// skipped, since one blocked page must not sink a whole run.
func (s *Scraper) Run(ctx context.Context, opts Options) error {
	totalPages := opts.MaxPages
	startPage := opts.StartPage
	if startPage < 1 {
		startPage = 1
	}

	totalItems := 0
	runStart := s.now()

	for page := startPage; page <= totalPages; page++ {
		if ctx.Err() != nil {
			s.emitter.Log(fmt.Sprintf("stopping before page %d", page))
			return nil
		}

		url := listURL(opts.ListingType, page)
		s.emitter.Log(fmt.Sprintf("fetching page %d of %d", page, totalPages))

		html, err := s.fetcher.FetchPage(url)
		if err != nil {
			s.emitter.Log(fmt.Sprintf("page %d fetch failed: %v", page, err))
			continue
		}

		doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
		if err != nil {
			s.emitter.Log(fmt.Sprintf("page %d parse failed: %v", page, err))
			continue
		}

		items := ParseListings(doc, opts.ListingType)
		if len(items) == 0 {
			// Past the last results page; finish instead of walking empties.
			s.emitter.Log(fmt.Sprintf("no listings on page %d, ending run early", page))
			s.emitter.Progress(&models.WorkerProgress{
				CurrentPage:     page,
				TotalPages:      totalPages,
				TotalItems:      totalItems,
				ProgressPercent: 100,
				Message:         fmt.Sprintf("завершено на сторінці %d", page),
				PageCompleted:   true,
				PageURL:         url,
			})
			return nil
		}

		for _, item := range items {
			s.enrich(item)
			s.emitter.Item(item)
		}
		totalItems += len(items)

		donePages := page - startPage + 1
		remaining := totalPages - page
		percent := donePages * 100 / (totalPages - startPage + 1)
		eta := 0
		if donePages > 0 && remaining > 0 {
			perPage := s.now().Sub(runStart) / time.Duration(donePages)
			eta = int((perPage * time.Duration(remaining)).Seconds())
		}

		s.emitter.Progress(&models.WorkerProgress{
			CurrentPage:          page,
			TotalPages:           totalPages,
			PageItems:            len(items),
			CurrentItems:         len(items),
			TotalItems:           totalItems,
			ProgressPercent:      percent,
			Message:              fmt.Sprintf("сторінка %d: %d оголошень", page, len(items)),
			EstimatedTimeLeftSec: eta,
			PageCompleted:        true,
			PageURL:              url,
		})

		if page < totalPages {
			if !s.sleep(ctx, pageDelay(opts.DelayMS)) {
				s.emitter.Log(fmt.Sprintf("stopping after page %d", page))
				return nil
			}
		}
	}
	return nil
}

func (s *Scraper) enrich(p *models.Property) {
	street, district, source := s.resolver.Resolve(p.Title, p.FullLocation)
	if p.Street == "" {
		p.Street = street
	}
	if p.District == "" {
		p.District = district
		p.DistrictSource = source
	}
	p.SellerType = ClassifySeller(p.Title + " " + p.Description)
}

// pageDelay jitters the configured delay up to 2x so request timing does
// not form a detectable pattern.
func pageDelay(delayMS int) time.Duration {
	if delayMS <= 0 {
		return 0
	}
	return time.Duration(delayMS+rand.Intn(delayMS+1)) * time.Millisecond
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// PlaywrightFetcher renders pages in a real Chromium so OLX's scripted
// markup and anti-bot checks behave as they would for a person.
type PlaywrightFetcher struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	page    playwright.Page
}

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
}

func NewPlaywrightFetcher(headful bool) (*PlaywrightFetcher, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("start playwright: %w", err)
	}

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(!headful),
	})
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("launch chromium: %w", err)
	}

	page, err := browser.NewPage(playwright.BrowserNewPageOptions{
		UserAgent: playwright.String(userAgents[rand.Intn(len(userAgents))]),
		Locale:    playwright.String("uk-UA"),
	})
	if err != nil {
		browser.Close()
		pw.Stop()
		return nil, fmt.Errorf("open page: %w", err)
	}

	return &PlaywrightFetcher{pw: pw, browser: browser, page: page}, nil
}

func (f *PlaywrightFetcher) FetchPage(url string) (string, error) {
	_, err := f.page.Goto(url, playwright.PageGotoOptions{
		Timeout:   playwright.Float(60000),
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	})
	if err != nil {
		return "", fmt.Errorf("goto %s: %w", url, err)
	}

	// The card grid is injected after load; without it there is nothing
	// worth parsing.
	_, err = f.page.WaitForSelector(`[data-cy="l-card"]`, playwright.PageWaitForSelectorOptions{
		Timeout: playwright.Float(15000),
	})
	if err != nil {
		return "", fmt.Errorf("wait for listings on %s: %w", url, err)
	}

	return f.page.Content()
}

func (f *PlaywrightFetcher) Close() error {
	if f.browser != nil {
		f.browser.Close()
	}
	if f.pw != nil {
		return f.pw.Stop()
	}
	return nil
}
