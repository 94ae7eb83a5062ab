package worker

import (
	"strings"

	"glownest/models"
)

// DistrictResolver maps listing text onto a city district, preferring an
// exact street match over loose mentions of the district name itself.
type DistrictResolver struct {
	streets   []models.StreetMapping
	districts []string
}

func NewDistrictResolver(mappings []models.StreetMapping) *DistrictResolver {
	r := &DistrictResolver{streets: mappings}
	seen := make(map[string]bool)
	for _, m := range mappings {
		if !seen[m.District] {
			seen[m.District] = true
			r.districts = append(r.districts, m.District)
		}
	}
	return r
}

// Resolve scans the listing's title and location text. Returns the street
// (when one matched), the district, and how the district was derived:
// street_mapping, text_heuristic or unknown.
func (r *DistrictResolver) Resolve(title, location string) (street, district, source string) {
	text := strings.ToLower(title + " " + location)

	for _, m := range r.streets {
		if strings.Contains(text, strings.ToLower(m.Street)) {
			return m.Street, m.District, "street_mapping"
		}
	}

	for _, d := range r.districts {
		if strings.Contains(text, strings.ToLower(d)) {
			return "", d, "text_heuristic"
		}
	}
	return "", "", "unknown"
}
