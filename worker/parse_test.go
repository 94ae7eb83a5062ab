package worker

import (
	"math"
	"os"
	"testing"

	"github.com/PuerkitoBio/goquery"
)

func loadFixture(t *testing.T) *goquery.Document {
	t.Helper()
	f, err := os.Open("testdata/listings.html")
	if err != nil {
		t.Fatalf("open fixture: %v", err)
	}
	defer f.Close()

	doc, err := goquery.NewDocumentFromReader(f)
	if err != nil {
		t.Fatalf("parse fixture: %v", err)
	}
	return doc
}

func TestParseListings(t *testing.T) {
	doc := loadFixture(t)
	props := ParseListings(doc, "sale")

	// The fourth card has no title or usable id and must be dropped.
	if len(props) != 3 {
		t.Fatalf("parsed %d listings, want 3", len(props))
	}

	first := props[0]
	if first.OlxID != "824513902" {
		t.Fatalf("olx id = %q, want 824513902", first.OlxID)
	}
	if first.PriceUSD != 45000 || first.Currency != "USD" {
		t.Fatalf("price = %v %s, want 45000 USD", first.PriceUSD, first.Currency)
	}
	if first.Area != 54.5 || first.Rooms != 2 {
		t.Fatalf("area/rooms = %v/%d, want 54.5/2", first.Area, first.Rooms)
	}
	if first.Floor != 3 || first.TotalFloors != 9 {
		t.Fatalf("floor = %d/%d, want 3/9", first.Floor, first.TotalFloors)
	}
	if !first.IsPromoted {
		t.Fatal("promoted badge not detected")
	}
	if first.ListingURL == "" || first.ListingURL[0] == '/' {
		t.Fatalf("listing url not absolute: %q", first.ListingURL)
	}

	second := props[1]
	if second.Currency != "UAH" {
		t.Fatalf("currency = %s, want UAH", second.Currency)
	}
	wantUSD := 1200000 / uahPerUSD
	if math.Abs(second.PriceUSD-wantUSD) > 0.01 {
		t.Fatalf("converted price = %v, want %v", second.PriceUSD, wantUSD)
	}

	third := props[2]
	if third.PriceUSD != 0 {
		t.Fatalf("negotiable price parsed as %v, want 0", third.PriceUSD)
	}
	if third.Rooms != 3 {
		t.Fatalf("rooms = %d, want 3", third.Rooms)
	}
}

func TestParsePrice(t *testing.T) {
	cases := []struct {
		text     string
		want     float64
		currency string
	}{
		{"45 000 $", 45000, "USD"},
		{"45000$", 45000, "USD"},
		{"1 200 000 грн.", 1200000 / uahPerUSD, "UAH"},
		{"Договірна", 0, "USD"},
		{"", 0, "USD"},
	}
	for _, tc := range cases {
		got, currency := parsePrice(tc.text)
		if math.Abs(got-tc.want) > 0.01 || currency != tc.currency {
			t.Fatalf("parsePrice(%q) = %v %s, want %v %s", tc.text, got, currency, tc.want, tc.currency)
		}
	}
}
