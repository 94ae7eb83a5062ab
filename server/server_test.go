package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"glownest/activity"
	"glownest/config"
	"glownest/models"
	"glownest/scraper"
	"glownest/storage"
	"glownest/stream"
)

// idleProc stays alive until signaled, standing in for a worker process.
type idleProc struct {
	pr   *io.PipeReader
	pw   *io.PipeWriter
	exit chan error
	once sync.Once
}

func newIdleProc() *idleProc {
	pr, pw := io.Pipe()
	return &idleProc{pr: pr, pw: pw, exit: make(chan error, 1)}
}

func (p *idleProc) Stdout() io.Reader { return p.pr }
func (p *idleProc) Signal() error {
	p.once.Do(func() {
		p.pw.Close()
		p.exit <- nil
	})
	return nil
}
func (p *idleProc) Kill() error {
	p.once.Do(func() {
		p.pw.Close()
		p.exit <- fmt.Errorf("killed")
	})
	return nil
}
func (p *idleProc) Wait() error { return <-p.exit }

type idleLauncher struct{}

func (idleLauncher) Launch(ctx context.Context, cfg models.JobConfig, startPage int) (scraper.Process, error) {
	return newIdleProc(), nil
}

func newTestServer(t *testing.T) (*Server, storage.Store) {
	t.Helper()
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "server.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	hub := stream.NewHub()
	t.Cleanup(hub.Close)

	act := activity.New(store, 50)
	controller := scraper.NewController(idleLauncher{}, store, hub, act)

	cfg := &config.Config{
		Scraper: config.ScraperConfig{ListingType: "sale", MaxPages: 10, DelayMS: 100},
	}
	return New(cfg, controller, store, hub, act), store
}

func postJSON(t *testing.T, s *Server, path string, body any) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest("POST", path, &buf)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.App().Test(req)
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	defer resp.Body.Close()

	var decoded map[string]any
	data, _ := io.ReadAll(resp.Body)
	if len(data) > 0 {
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("POST %s returned invalid JSON: %q", path, data)
		}
	}
	return resp.StatusCode, decoded
}

func getJSON(t *testing.T, s *Server, path string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	resp, err := s.App().Test(req)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()

	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("GET %s returned invalid JSON: %v", path, err)
	}
	return resp.StatusCode, decoded
}

func TestStartStopLifecycle(t *testing.T) {
	s, _ := newTestServer(t)

	code, body := postJSON(t, s, "/scraper/start", map[string]any{"max_pages": 3})
	if code != 202 {
		t.Fatalf("start status = %d, want 202", code)
	}
	if body["id"] == nil || body["id"] == "" {
		t.Fatalf("start response has no job id: %v", body)
	}
	if body["status"] != "running" {
		t.Fatalf("start status field = %v, want running", body["status"])
	}

	code, _ = postJSON(t, s, "/scraper/start", nil)
	if code != 409 {
		t.Fatalf("second start status = %d, want 409", code)
	}

	code, getBody := getJSON(t, s, "/scraper/status")
	if code != 200 || getBody["status"] != "running" {
		t.Fatalf("status = %d %v, want 200 running", code, getBody)
	}

	code, body = postJSON(t, s, "/scraper/stop", nil)
	if code != 200 {
		t.Fatalf("stop status = %d, want 200", code)
	}
	if body["status"] != "idle" {
		t.Fatalf("status after stop = %v, want idle", body["status"])
	}

	// Stop is idempotent while idle.
	code, body = postJSON(t, s, "/scraper/stop", nil)
	if code != 200 || body["status"] != "idle" {
		t.Fatalf("idle stop = %d %v, want 200 idle", code, body)
	}
}

func TestStartValidationRejected(t *testing.T) {
	s, _ := newTestServer(t)

	code, body := postJSON(t, s, "/scraper/start", map[string]any{"max_pages": 99})
	if code != 400 {
		t.Fatalf("start status = %d, want 400", code)
	}
	if body["error"] == nil {
		t.Fatalf("400 response without error message: %v", body)
	}

	code, getBody := getJSON(t, s, "/scraper/status")
	if code != 200 || getBody["status"] != "idle" {
		t.Fatalf("rejected start changed status: %v", getBody)
	}
}

func TestStartExplicitZeroValuesReachValidation(t *testing.T) {
	s, _ := newTestServer(t)

	// An explicit max_pages of 0 must be rejected, not defaulted away.
	code, body := postJSON(t, s, "/scraper/start", map[string]any{"max_pages": 0})
	if code != 400 {
		t.Fatalf("start with max_pages=0 status = %d, want 400", code)
	}
	if body["error"] == nil {
		t.Fatalf("400 response without error message: %v", body)
	}

	// An explicit false must override a true config default.
	s.cfg.Scraper.Headful = true
	code, body = postJSON(t, s, "/scraper/start", map[string]any{"max_pages": 2, "headful": false})
	if code != 202 {
		t.Fatalf("start status = %d, want 202", code)
	}
	jobCfg, _ := body["config"].(map[string]any)
	if jobCfg["headful"] != false {
		t.Fatalf("job config headful = %v, want false", jobCfg["headful"])
	}

	if code, _ := postJSON(t, s, "/scraper/stop", nil); code != 200 {
		t.Fatalf("stop status = %d, want 200", code)
	}
}

func TestAddStreetConflictNamesDistrict(t *testing.T) {
	s, _ := newTestServer(t)

	code, _ := postJSON(t, s, "/streets/add", models.StreetMapping{Street: "Шевченка", District: "Центр"})
	if code != 201 {
		t.Fatalf("add status = %d, want 201", code)
	}

	code, body := postJSON(t, s, "/streets/add", models.StreetMapping{Street: "Шевченка", District: "БАМ"})
	if code != 409 {
		t.Fatalf("duplicate add status = %d, want 409", code)
	}
	msg, _ := body["error"].(string)
	if !strings.Contains(msg, "Центр") {
		t.Fatalf("conflict error %q does not name the existing district", msg)
	}

	code, listBody := getJSON(t, s, "/streets/mapping")
	if code != 200 {
		t.Fatalf("mapping status = %d, want 200", code)
	}
	streets, _ := listBody["streets"].([]any)
	if len(streets) != 1 {
		t.Fatalf("streets = %v, want the single original mapping", listBody)
	}
}

func TestAddStreetValidation(t *testing.T) {
	s, _ := newTestServer(t)

	code, _ := postJSON(t, s, "/streets/add", models.StreetMapping{Street: "  ", District: "Центр"})
	if code != 400 {
		t.Fatalf("blank street status = %d, want 400", code)
	}
}

func TestRecentPropertiesAndStats(t *testing.T) {
	s, store := newTestServer(t)
	ctx := context.Background()

	for i, seller := range []string{"owner", "agency", "owner"} {
		p := &models.Property{
			OlxID:      fmt.Sprintf("prop-%d", i),
			Title:      fmt.Sprintf("apartment %d", i),
			PriceUSD:   float64(40000 + i*1000),
			Area:       50,
			Street:     fmt.Sprintf("street %d", i),
			District:   "Центр",
			SellerType: seller,
		}
		if _, err := store.UpsertProperty(ctx, p); err != nil {
			t.Fatalf("seed property: %v", err)
		}
	}

	code, body := getJSON(t, s, "/properties/recent?limit=2")
	if code != 200 {
		t.Fatalf("recent status = %d, want 200", code)
	}
	if body["count"].(float64) != 2 {
		t.Fatalf("recent count = %v, want 2", body["count"])
	}

	code, stats := getJSON(t, s, "/properties/stats")
	if code != 200 {
		t.Fatalf("stats status = %d, want 200", code)
	}
	if stats["total_active"].(float64) != 3 {
		t.Fatalf("total_active = %v, want 3", stats["total_active"])
	}
	if stats["owner_count"].(float64) != 2 || stats["agency_count"].(float64) != 1 {
		t.Fatalf("owner/agency = %v/%v, want 2/1", stats["owner_count"], stats["agency_count"])
	}

	code, history := getJSON(t, s, "/properties/prop-0/history")
	if code != 200 {
		t.Fatalf("history status = %d, want 200", code)
	}
	points, _ := history["history"].([]any)
	if len(points) != 1 {
		t.Fatalf("history = %v, want one initial price point", history)
	}
}

func TestRecentActivityEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	s.activity.Info(context.Background(), "перший запис")
	s.activity.Info(context.Background(), "другий запис")

	code, body := getJSON(t, s, "/activity/recent")
	if code != 200 {
		t.Fatalf("activity status = %d, want 200", code)
	}
	entries, _ := body["entries"].([]any)
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)
	code, body := getJSON(t, s, "/health")
	if code != 200 || body["status"] != "ok" {
		t.Fatalf("health = %d %v", code, body)
	}
}
