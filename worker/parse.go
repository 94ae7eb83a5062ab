package worker

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"glownest/models"
)

const baseURL = "https://www.olx.ua"

// Rough market rate for normalizing UAH prices into USD.
const uahPerUSD = 41.5

var (
	adIDPattern  = regexp.MustCompile(`-ID([A-Za-z0-9]+)`)
	areaPattern  = regexp.MustCompile(`(\d+(?:[.,]\d+)?)\s*м`)
	roomsPattern = regexp.MustCompile(`(\d+)\s*-?\s*кімн?`)
	floorPattern = regexp.MustCompile(`(\d+)\s*(?:/|з|із)\s*(\d+)\s*пов`)
	digits       = regexp.MustCompile(`[\d\s\xa0]+`)
)

// ParseListings extracts the listing cards from one search results page.
// Cards missing a usable id or title are dropped; a page with markup we do
// not recognize simply yields zero items rather than an error.
func ParseListings(doc *goquery.Document, listingType string) []*models.Property {
	var props []*models.Property

	doc.Find(`[data-cy="l-card"]`).Each(func(_ int, card *goquery.Selection) {
		p := parseCard(card, listingType)
		if p != nil {
			props = append(props, p)
		}
	})
	return props
}

func parseCard(card *goquery.Selection, listingType string) *models.Property {
	link := card.Find(`a[data-cy="l-card-link"]`).First()
	if link.Length() == 0 {
		link = card.Find("a").First()
	}
	href, _ := link.Attr("href")
	if href != "" && strings.HasPrefix(href, "/") {
		href = baseURL + href
	}

	id := extractAdID(card, href)
	if id == "" {
		return nil
	}

	title := strings.TrimSpace(card.Find(`h6[data-cy="l-card-title"]`).First().Text())
	if title == "" {
		title = strings.TrimSpace(card.Find("h4, h6").First().Text())
	}
	if title == "" {
		return nil
	}

	priceText := card.Find(`[data-testid="ad-price"]`).First().Text()
	price, currency := parsePrice(priceText)

	locationText := strings.TrimSpace(card.Find(`[data-cy="l-card-location"], [data-testid="location-date"]`).First().Text())
	area, rooms := parseAreaRooms(title + " " + card.Find(`[data-cy="l-card-details"]`).Text())
	floor, totalFloors := parseFloor(title)

	imageURL, _ := card.Find(`img`).First().Attr("src")

	return &models.Property{
		OlxID:        id,
		Title:        title,
		PriceUSD:     price,
		Currency:     currency,
		Area:         area,
		Rooms:        rooms,
		Floor:        floor,
		TotalFloors:  totalFloors,
		FullLocation: locationText,
		ListingType:  listingType,
		ListingURL:   href,
		ImageURL:     imageURL,
		SellerType:   "unknown",
		IsPromoted:   card.Find(`[data-cy="promoted-badge"]`).Length() > 0,
	}
}

func extractAdID(card *goquery.Selection, href string) string {
	if id, ok := card.Attr("id"); ok && id != "" {
		return id
	}
	if m := adIDPattern.FindStringSubmatch(href); m != nil {
		return m[1]
	}
	return ""
}

// parsePrice normalizes "45 000 $" or "1 200 000 грн." into USD.
func parsePrice(text string) (float64, string) {
	raw := digits.FindString(text)
	if raw == "" {
		return 0, "USD"
	}
	cleaned := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, raw)

	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, "USD"
	}

	if strings.Contains(text, "грн") || strings.Contains(text, "₴") {
		return value / uahPerUSD, "UAH"
	}
	if strings.Contains(text, "€") {
		return value, "EUR"
	}
	return value, "USD"
}

func parseAreaRooms(text string) (area float64, rooms int) {
	lower := strings.ToLower(text)
	if m := areaPattern.FindStringSubmatch(lower); m != nil {
		area, _ = strconv.ParseFloat(strings.ReplaceAll(m[1], ",", "."), 64)
	}
	if m := roomsPattern.FindStringSubmatch(lower); m != nil {
		rooms, _ = strconv.Atoi(m[1])
	}
	return area, rooms
}

func parseFloor(text string) (floor, totalFloors int) {
	if m := floorPattern.FindStringSubmatch(strings.ToLower(text)); m != nil {
		floor, _ = strconv.Atoi(m[1])
		totalFloors, _ = strconv.Atoi(m[2])
	}
	return floor, totalFloors
}
