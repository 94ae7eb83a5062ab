package scraper

import "testing"

func TestParseLineClassification(t *testing.T) {
	cases := []struct {
		name string
		line string
		want lineKind
	}{
		{"empty", "   ", lineEmpty},
		{"plain text", "navigating to page 2", lineLog},
		{"progress", `{"type":"progress","current_page":1,"total_pages":2,"progress_percent":50,"page_completed":true}`, lineProgress},
		{"item", `{"type":"item","property":{"olx_id":"123","title":"flat"}}`, lineItem},
		{"structured log", `{"type":"log","message":"cookie banner dismissed"}`, lineLog},
		{"truncated json", `{"type":"progress","current_page":`, lineMalformed},
		{"unknown type", `{"type":"telemetry","x":1}`, lineMalformed},
		{"item without property", `{"type":"item"}`, lineMalformed},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := parseLine(tc.line)
			if got.kind != tc.want {
				t.Fatalf("parseLine(%q) kind = %d, want %d", tc.line, got.kind, tc.want)
			}
		})
	}
}

func TestParseLineProgressFields(t *testing.T) {
	got := parseLine(`{"type":"progress","current_page":3,"total_pages":10,"page_items":40,"current_items":40,"total_items":120,"progress_percent":30,"message":"page 3 done","page_completed":true}`)
	if got.kind != lineProgress {
		t.Fatalf("kind = %d, want progress", got.kind)
	}
	p := got.progress
	if p.CurrentPage != 3 || p.TotalPages != 10 || p.ProgressPercent != 30 || !p.PageCompleted {
		t.Fatalf("parsed progress = %+v", p)
	}
}
