package worker

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"glownest/models"
)

func testMappings() []models.StreetMapping {
	return []models.StreetMapping{
		{Street: "Галицька", District: "Центр"},
		{Street: "Вовчинецька", District: "Пасічна"},
	}
}

type fixtureFetcher struct {
	html    string
	fetched []string
	fail    map[string]bool
}

func (f *fixtureFetcher) FetchPage(url string) (string, error) {
	f.fetched = append(f.fetched, url)
	if f.fail[url] {
		return "", errors.New("timeout")
	}
	return f.html, nil
}

func (f *fixtureFetcher) Close() error { return nil }

func fixtureHTML(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile("testdata/listings.html")
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	return string(data)
}

type emitted struct {
	Type     string `json:"type"`
	Message  string `json:"message"`
	Property *models.Property
	models.WorkerProgress
}

func decodeStream(t *testing.T, out *bytes.Buffer) []emitted {
	t.Helper()
	var events []emitted
	scanner := bufio.NewScanner(out)
	for scanner.Scan() {
		var e emitted
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			t.Fatalf("stream line is not valid JSON: %q", scanner.Text())
		}
		events = append(events, e)
	}
	return events
}

func TestRunEmitsItemsAndPageProgress(t *testing.T) {
	fetcher := &fixtureFetcher{html: fixtureHTML(t)}
	var out bytes.Buffer
	s := NewScraper(fetcher, NewEmitter(&out), NewDistrictResolver(testMappings()))

	err := s.Run(context.Background(), Options{ListingType: "sale", MaxPages: 2, StartPage: 1, DelayMS: 0})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(fetcher.fetched) != 2 {
		t.Fatalf("fetched %d pages, want 2", len(fetcher.fetched))
	}
	if !strings.Contains(fetcher.fetched[0], "page=1") || !strings.Contains(fetcher.fetched[1], "page=2") {
		t.Fatalf("fetched urls = %v", fetcher.fetched)
	}

	events := decodeStream(t, &out)
	items, progress := 0, 0
	var last emitted
	for _, e := range events {
		switch e.Type {
		case "item":
			items++
			if e.Property == nil || e.Property.OlxID == "" {
				t.Fatalf("item event without property: %+v", e)
			}
		case "progress":
			progress++
			last = e
			if !e.PageCompleted {
				t.Fatal("page progress without page_completed")
			}
		}
	}
	if items != 6 {
		t.Fatalf("emitted %d items over 2 pages, want 6", items)
	}
	if progress != 2 {
		t.Fatalf("emitted %d progress events, want 2", progress)
	}
	if last.ProgressPercent != 100 || last.TotalItems != 6 {
		t.Fatalf("final progress = %d%% / %d items, want 100%% / 6", last.ProgressPercent, last.TotalItems)
	}
}

func TestRunEnrichesItems(t *testing.T) {
	fetcher := &fixtureFetcher{html: fixtureHTML(t)}
	var out bytes.Buffer
	s := NewScraper(fetcher, NewEmitter(&out), NewDistrictResolver(testMappings()))

	if err := s.Run(context.Background(), Options{ListingType: "sale", MaxPages: 1, StartPage: 1}); err != nil {
		t.Fatalf("run: %v", err)
	}

	byID := map[string]*models.Property{}
	for _, e := range decodeStream(t, &out) {
		if e.Type == "item" {
			byID[e.Property.OlxID] = e.Property
		}
	}

	galytska := byID["824513902"]
	if galytska == nil {
		t.Fatal("expected listing 824513902 in stream")
	}
	if galytska.Street != "Галицька" || galytska.District != "Центр" || galytska.DistrictSource != "street_mapping" {
		t.Fatalf("street resolution = %q/%q/%q", galytska.Street, galytska.District, galytska.DistrictSource)
	}

	owner := byID["824601177"]
	if owner == nil || owner.SellerType != "owner" {
		t.Fatalf("seller classification = %+v, want owner", owner)
	}

	agency := byID["824700421"]
	if agency == nil || agency.SellerType != "agency" {
		t.Fatalf("seller classification = %+v, want agency", agency)
	}
}

func TestRunSkipsFailedPage(t *testing.T) {
	fetcher := &fixtureFetcher{html: fixtureHTML(t)}
	fetcher.fail = map[string]bool{listURL("sale", 1): true}
	var out bytes.Buffer
	s := NewScraper(fetcher, NewEmitter(&out), NewDistrictResolver(nil))

	if err := s.Run(context.Background(), Options{ListingType: "sale", MaxPages: 2, StartPage: 1}); err != nil {
		t.Fatalf("run: %v", err)
	}

	progress := 0
	for _, e := range decodeStream(t, &out) {
		if e.Type == "progress" {
			progress++
		}
	}
	if progress != 1 {
		t.Fatalf("progress events = %d, want 1 (page 1 skipped)", progress)
	}
}

func TestRunStopsBetweenPages(t *testing.T) {
	fetcher := &fixtureFetcher{html: fixtureHTML(t)}
	var out bytes.Buffer
	s := NewScraper(fetcher, NewEmitter(&out), NewDistrictResolver(nil))

	ctx, cancel := context.WithCancel(context.Background())
	s.sleep = func(ctx context.Context, d time.Duration) bool {
		cancel()
		return ctx.Err() == nil
	}

	err := s.Run(ctx, Options{ListingType: "sale", MaxPages: 5, StartPage: 1, DelayMS: 10})
	if err != nil {
		t.Fatalf("run after cancel: %v", err)
	}
	if len(fetcher.fetched) != 1 {
		t.Fatalf("fetched %d pages after cancellation, want 1", len(fetcher.fetched))
	}
}

type pagedFetcher struct {
	pages map[int]string
	next  int
}

func (f *pagedFetcher) FetchPage(url string) (string, error) {
	f.next++
	return f.pages[f.next], nil
}

func (f *pagedFetcher) Close() error { return nil }

func TestRunEndsEarlyOnEmptyPage(t *testing.T) {
	fetcher := &pagedFetcher{pages: map[int]string{
		1: fixtureHTML(t),
		2: "<html><body><div data-testid='listing-grid'></div></body></html>",
	}}
	var out bytes.Buffer
	s := NewScraper(fetcher, NewEmitter(&out), NewDistrictResolver(nil))

	if err := s.Run(context.Background(), Options{ListingType: "sale", MaxPages: 10, StartPage: 1}); err != nil {
		t.Fatalf("run: %v", err)
	}

	if fetcher.next != 2 {
		t.Fatalf("fetched %d pages, want 2 (stop at the first empty page)", fetcher.next)
	}

	events := decodeStream(t, &out)
	last := events[len(events)-1]
	if last.Type != "progress" || last.ProgressPercent != 100 || last.TotalItems != 3 {
		t.Fatalf("final event = %+v, want 100%% progress with 3 items", last)
	}
}

func TestRunStartsAtResumePage(t *testing.T) {
	fetcher := &fixtureFetcher{html: fixtureHTML(t)}
	var out bytes.Buffer
	s := NewScraper(fetcher, NewEmitter(&out), NewDistrictResolver(nil))

	if err := s.Run(context.Background(), Options{ListingType: "sale", MaxPages: 4, StartPage: 3}); err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(fetcher.fetched) != 2 {
		t.Fatalf("fetched %d pages, want 2 (pages 3 and 4)", len(fetcher.fetched))
	}
	if !strings.Contains(fetcher.fetched[0], "page=3") {
		t.Fatalf("first fetched url = %q, want page=3", fetcher.fetched[0])
	}
}
