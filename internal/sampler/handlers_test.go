package sampler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
)

func ingestApp(t *testing.T) (*fiber.App, *Sampler) {
	t.Helper()
	src := NewPushSource()
	s := startSampler(t, src, Options{AdaptiveInterval: true, CompressionEnabled: false})

	app := fiber.New()
	RegisterRoutes(app.Group("/tracking"), NewIngest(s, src))
	return app, s
}

func postFix(t *testing.T, app *fiber.App, body string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/tracking/fixes", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("test request: %v", err)
	}
	return resp
}

func TestIngestFixFeedsSampler(t *testing.T) {
	app, s := ingestApp(t)
	before := s.Stats().SamplesAccepted

	ts := time.Unix(1700000100, 0).Format(time.RFC3339)
	resp := postFix(t, app, `{"lat":-1.9501,"lng":30.0601,"accuracy":6,"speed":4,"timestamp":"`+ts+`"}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	if got := s.Stats().SamplesAccepted; got != before+1 {
		t.Fatalf("samples accepted = %d, want %d", got, before+1)
	}
}

func TestIngestFixUpdatesBatteryAndNetwork(t *testing.T) {
	app, s := ingestApp(t)

	ts := time.Unix(1700000200, 0).Format(time.RFC3339)
	resp := postFix(t, app, `{"lat":-1.95,"lng":30.06,"accuracy":5,"battery":8,"online":false,"timestamp":"`+ts+`"}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}

	st := s.Status()
	if st.BatteryPct != 8 {
		t.Fatalf("battery = %.0f, want 8", st.BatteryPct)
	}
	if st.NetworkStatus != NetworkOffline {
		t.Fatalf("network = %q, want offline", st.NetworkStatus)
	}
}

func TestIngestFixRejectsBadBody(t *testing.T) {
	app, _ := ingestApp(t)

	if resp := postFix(t, app, `{bad`); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("malformed body: got %d, want 400", resp.StatusCode)
	}
	if resp := postFix(t, app, `{"lat":95.0,"lng":30.06}`); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("out-of-range latitude: got %d, want 400", resp.StatusCode)
	}
}

func TestIngestStatusAndStats(t *testing.T) {
	app, _ := ingestApp(t)

	for _, path := range []string{"/tracking/status", "/tracking/stats"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("test request: %v", err)
		}
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s: got %d, want 200", path, resp.StatusCode)
		}
	}
}
