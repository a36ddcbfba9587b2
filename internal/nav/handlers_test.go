package nav

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
)

func sessionsApp(t *testing.T, planner *fakePlanner) (*fiber.App, *Sessions, *fakeStream) {
	t.Helper()
	stream := &fakeStream{}
	sessions := NewSessions(planner, stream, &fakeSynth{}, testNavTuning())
	t.Cleanup(sessions.StopAll)

	app := fiber.New()
	RegisterRoutes(app.Group("/nav"), sessions)
	return app, sessions, stream
}

func navJSON(t *testing.T, app *fiber.App, method, path, body string) *http.Response {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("test request: %v", err)
	}
	return resp
}

func startSession(t *testing.T, app *fiber.App) sessionResponse {
	t.Helper()
	resp := navJSON(t, app, http.MethodPost, "/nav/sessions",
		`{"origin":{"lat":-1.95,"lng":30.058},"destination":{"lat":-1.95,"lng":30.062}}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("start session: %d", resp.StatusCode)
	}
	var out sessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return out
}

func TestStartSessionNavigates(t *testing.T) {
	app, _, _ := sessionsApp(t, &fakePlanner{routes: []Route{kigaliRoute()}})

	out := startSession(t, app)
	if out.SessionID == "" {
		t.Fatalf("missing session id")
	}
	if out.State.State != StateNavigating {
		t.Fatalf("state = %s, want navigating", out.State.State)
	}

	resp := navJSON(t, app, http.MethodGet, "/nav/sessions/"+out.SessionID, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get session: %d", resp.StatusCode)
	}
}

func TestStartSessionRouteUnavailable(t *testing.T) {
	app, _, _ := sessionsApp(t, &fakePlanner{errs: []error{errors.New("osrm down")}})

	resp := navJSON(t, app, http.MethodPost, "/nav/sessions",
		`{"origin":{"lat":-1.95,"lng":30.058},"destination":{"lat":-1.95,"lng":30.062}}`)
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", resp.StatusCode)
	}
}

func TestSessionValidationAndLookup(t *testing.T) {
	app, _, _ := sessionsApp(t, &fakePlanner{routes: []Route{kigaliRoute()}})

	if resp := navJSON(t, app, http.MethodPost, "/nav/sessions", `{}`); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty request: %d, want 400", resp.StatusCode)
	}
	if resp := navJSON(t, app, http.MethodGet, "/nav/sessions/nope", ""); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown session: %d, want 404", resp.StatusCode)
	}
}

func TestSessionVoiceToggle(t *testing.T) {
	app, sessions, _ := sessionsApp(t, &fakePlanner{routes: []Route{kigaliRoute()}})

	out := startSession(t, app)
	resp := navJSON(t, app, http.MethodPost, "/nav/sessions/"+out.SessionID+"/voice", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("voice toggle: %d", resp.StatusCode)
	}
	var body map[string]bool
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body["muted"] {
		t.Fatalf("first toggle should mute")
	}

	// Toggling a stopped session conflicts.
	n, _ := sessions.get(out.SessionID)
	n.Stop()
	if resp := navJSON(t, app, http.MethodPost, "/nav/sessions/"+out.SessionID+"/voice", ""); resp.StatusCode != http.StatusConflict {
		t.Fatalf("toggle on stopped session: %d, want 409", resp.StatusCode)
	}
}

func TestDeleteSessionStopsNavigator(t *testing.T) {
	app, _, stream := sessionsApp(t, &fakePlanner{routes: []Route{kigaliRoute()}})

	out := startSession(t, app)
	if resp := navJSON(t, app, http.MethodDelete, "/nav/sessions/"+out.SessionID, ""); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete: %d", resp.StatusCode)
	}
	if got := stream.unsubscribed(); got != 1 {
		t.Fatalf("position subscription torn down %d times, want 1", got)
	}
	if resp := navJSON(t, app, http.MethodDelete, "/nav/sessions/"+out.SessionID, ""); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("second delete: %d", resp.StatusCode)
	}
	if resp := navJSON(t, app, http.MethodGet, "/nav/sessions/"+out.SessionID, ""); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("get after delete: %d", resp.StatusCode)
	}
}
