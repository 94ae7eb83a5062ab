package worker

import "strings"

// Keyword lists mirror the phrasing sellers actually use in listings.
// Owner signals win ties: an owner saying "без агентства" must not be
// classified as an agency because of the word "агентство" itself.
var ownerKeywords = []string{
	"власник", "власниця", "від власника", "без посередників",
	"приватна особа", "безпосередньо", "хазяїн", "хазяйка",
	"особисто", "прямий продаж", "без агентства", "без комісії",
}

var agencyKeywords = []string{
	"агентство", "ріелтор", "рієлтор", "нерухомість", "estate", "realty",
	"девелопер", "забудовник", "компанія", "тов", "фірма",
	"центр нерухомості", "операції з нерухомістю",
}

// ClassifySeller labels a listing owner/agency/unknown from its free text.
func ClassifySeller(text string) string {
	lower := strings.ToLower(text)

	for _, kw := range ownerKeywords {
		if strings.Contains(lower, kw) {
			return "owner"
		}
	}
	for _, kw := range agencyKeywords {
		if strings.Contains(lower, kw) {
			return "agency"
		}
	}
	return "unknown"
}
