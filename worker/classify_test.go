package worker

import "testing"

func TestClassifySeller(t *testing.T) {
	cases := []struct {
		text string
		want string
	}{
		{"Продам квартиру від власника, без посередників", "owner"},
		{"Агентство нерухомості пропонує затишну квартиру", "agency"},
		{"Професійний ріелтор допоможе з оформленням", "agency"},
		{"Продається 2-кімнатна квартира в центрі", "unknown"},
		// Owner phrasing that mentions an agency word still means owner.
		{"Продаж без агентства і без комісії", "owner"},
		{"", "unknown"},
	}
	for _, tc := range cases {
		if got := ClassifySeller(tc.text); got != tc.want {
			t.Fatalf("ClassifySeller(%q) = %s, want %s", tc.text, got, tc.want)
		}
	}
}

func TestDistrictResolver(t *testing.T) {
	r := NewDistrictResolver(testMappings())

	street, district, source := r.Resolve("Квартира по вул. Галицька 21", "Івано-Франківськ")
	if street != "Галицька" || district != "Центр" || source != "street_mapping" {
		t.Fatalf("street match = %q/%q/%q", street, district, source)
	}

	street, district, source = r.Resolve("Затишна квартира", "Івано-Франківськ, Пасічна")
	if street != "" || district != "Пасічна" || source != "text_heuristic" {
		t.Fatalf("district heuristic = %q/%q/%q", street, district, source)
	}

	_, district, source = r.Resolve("Квартира", "Івано-Франківськ")
	if district != "" || source != "unknown" {
		t.Fatalf("no match = %q/%q", district, source)
	}
}
