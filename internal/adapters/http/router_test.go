package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dkeye/voicegate/internal/app"
	"github.com/dkeye/voicegate/internal/app/sfu"
	"github.com/dkeye/voicegate/internal/config"
	"github.com/dkeye/voicegate/internal/domain"
)

type fakeChannel struct {
	healthy    bool
	exhausted  bool
	connectErr error
	connects   int
	registered []domain.RoomID
	released   []domain.RoomID
}

func (f *fakeChannel) Identity() sfu.Identity {
	return sfu.Identity{ServerID: "demo", ServerToken: "secret", SFUHost: "sfu.example.com"}
}

func (f *fakeChannel) Healthy() bool { return f.healthy }

func (f *fakeChannel) EnsureRegistered(r domain.RoomID) error {
	f.registered = append(f.registered, r)
	return nil
}

func (f *fakeChannel) Unregister(r domain.RoomID) { f.released = append(f.released, r) }

func (f *fakeChannel) Status() sfu.Status {
	st := sfu.Status{State: sfu.StateDisconnected, Healthy: f.healthy, Exhausted: f.exhausted}
	if f.healthy {
		st.State = sfu.StateConnected
	}
	return st
}

func (f *fakeChannel) Connect(context.Context) error {
	f.connects++
	if f.connectErr == nil {
		f.healthy = true
		f.exhausted = false
	}
	return f.connectErr
}

const testAdminToken = "0123456789abcdef"

type staticIssuer struct{}

func (staticIssuer) Issue(u domain.UserID, r domain.RoomID) (string, error) {
	return "tok-" + string(u), nil
}

func newTestRouter(t *testing.T, ch *fakeChannel) *gin.Engine {
	t.Helper()
	return newRouterWithAdmin(t, ch, testAdminToken)
}

func newRouterWithAdmin(t *testing.T, ch *fakeChannel, adminToken string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{
		Mode:          "test",
		StaticPath:    t.TempDir(),
		ReadLimit:     4096,
		PingPeriod:    time.Second,
		Secret:        "test-secret",
		AdminToken:    adminToken,
		JoinRateLimit: 60,
		JoinRateBurst: 5,
	}
	broker := app.NewBroker(ch, staticIssuer{}, nil)
	return SetupRouter(context.Background(), cfg, broker, ch, http.NotFoundHandler())
}

func do(r http.Handler, method, path, body string, cookies []*http.Cookie) *httptest.ResponseRecorder {
	return serve(r, newRequest(method, path, body, cookies))
}

func doAdmin(r http.Handler, method, path, password string) *httptest.ResponseRecorder {
	req := newRequest(method, path, "", nil)
	req.SetBasicAuth(operatorUser, password)
	return serve(r, req)
}

func serve(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func newRequest(method, path, body string, cookies []*http.Cookie) *http.Request {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	return req
}

func TestHealthz(t *testing.T) {
	ch := &fakeChannel{}
	r := newTestRouter(t, ch)

	if w := do(r, http.MethodGet, "/healthz", "", nil); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("unhealthy: code %d", w.Code)
	}
	ch.healthy = true
	w := do(r, http.MethodGet, "/healthz", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("healthy: code %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"state":"connected"`) {
		t.Fatalf("body %s", w.Body.String())
	}
}

func TestJoinReturnsDescriptorAndRemembersRoom(t *testing.T) {
	ch := &fakeChannel{healthy: true}
	r := newTestRouter(t, ch)

	w := do(r, http.MethodPost, "/api/voice/rooms/general/join", `{"user_id":"alice"}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("code %d: %s", w.Code, w.Body.String())
	}
	var desc domain.JoinDescriptor
	if err := json.Unmarshal(w.Body.Bytes(), &desc); err != nil {
		t.Fatal(err)
	}
	if desc.RoomID != "demo_general" || desc.UserToken != "tok-alice" || desc.SFUURL != "wss://sfu.example.com/server" {
		t.Fatalf("descriptor %+v", desc)
	}
	if len(ch.registered) != 1 || ch.registered[0] != "demo_general" {
		t.Fatalf("registered %v", ch.registered)
	}

	w = do(r, http.MethodGet, "/api/voice/whoami", "", w.Result().Cookies())
	var who map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &who); err != nil {
		t.Fatal(err)
	}
	if who["room_id"] != "demo_general" || who["user_id"] == "" {
		t.Fatalf("whoami %v", who)
	}
}

func TestJoinDefaultsToClientToken(t *testing.T) {
	ch := &fakeChannel{healthy: true}
	r := newTestRouter(t, ch)

	ct := &http.Cookie{Name: "ct", Value: "cookie-user"}
	w := do(r, http.MethodPost, "/api/voice/rooms/lobby/join", "", []*http.Cookie{ct})
	if w.Code != http.StatusOK {
		t.Fatalf("code %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"user_token":"tok-cookie-user"`) {
		t.Fatalf("body %s", w.Body.String())
	}
}

func TestJoinErrors(t *testing.T) {
	tests := []struct {
		name    string
		healthy bool
		path    string
		body    string
		code    int
		errCode string
	}{
		{"unhealthy", false, "/api/voice/rooms/general/join", "", http.StatusServiceUnavailable, "voice_unavailable"},
		{"room too long", true, "/api/voice/rooms/" + strings.Repeat("x", 65) + "/join", "", http.StatusBadRequest, "bad_request"},
		{"bad json", true, "/api/voice/rooms/general/join", `{"user_id":`, http.StatusBadRequest, "bad_payload"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ch := &fakeChannel{healthy: tc.healthy}
			w := do(newTestRouter(t, ch), http.MethodPost, tc.path, tc.body, nil)
			if w.Code != tc.code {
				t.Fatalf("code %d, want %d", w.Code, tc.code)
			}
			if !strings.Contains(w.Body.String(), tc.errCode) {
				t.Fatalf("body %s", w.Body.String())
			}
			if len(ch.registered) != 0 {
				t.Fatalf("registered %v", ch.registered)
			}
		})
	}
}

func TestReleaseRoom(t *testing.T) {
	ch := &fakeChannel{healthy: true}
	r := newTestRouter(t, ch)

	if w := doAdmin(r, http.MethodDelete, "/api/voice/rooms/general", testAdminToken); w.Code != http.StatusNoContent {
		t.Fatalf("code %d", w.Code)
	}
	if len(ch.released) != 1 || ch.released[0] != "demo_general" {
		t.Fatalf("released %v", ch.released)
	}
}

func TestStatusAndReconnect(t *testing.T) {
	ch := &fakeChannel{exhausted: true}
	r := newTestRouter(t, ch)

	w := do(r, http.MethodGet, "/api/voice/status", "", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"exhausted":true`) {
		t.Fatalf("status %d %s", w.Code, w.Body.String())
	}

	ch.connectErr = errors.New("dial refused")
	if w := doAdmin(r, http.MethodPost, "/api/voice/reconnect", testAdminToken); w.Code != http.StatusBadGateway {
		t.Fatalf("failed reconnect: code %d", w.Code)
	}
	ch.connectErr = nil
	w = doAdmin(r, http.MethodPost, "/api/voice/reconnect", testAdminToken)
	if w.Code != http.StatusAccepted || !strings.Contains(w.Body.String(), `"state":"connected"`) {
		t.Fatalf("reconnect %d %s", w.Code, w.Body.String())
	}
	if ch.connects != 2 {
		t.Fatalf("connects = %d", ch.connects)
	}
}

func TestOperatorEndpointsRequireAdminToken(t *testing.T) {
	ch := &fakeChannel{healthy: true}
	r := newTestRouter(t, ch)

	ct := &http.Cookie{Name: "ct", Value: "browser-user"}
	if w := do(r, http.MethodDelete, "/api/voice/rooms/general", "", []*http.Cookie{ct}); w.Code != http.StatusUnauthorized {
		t.Fatalf("cookie only delete: code %d", w.Code)
	}
	if w := doAdmin(r, http.MethodPost, "/api/voice/reconnect", "wrong-password!!"); w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong password reconnect: code %d", w.Code)
	}
	if len(ch.released) != 0 || ch.connects != 0 {
		t.Fatalf("unauthorized calls reached the channel: released=%v connects=%d", ch.released, ch.connects)
	}
}

func TestOperatorEndpointsDisabledWithoutAdminToken(t *testing.T) {
	ch := &fakeChannel{healthy: true}
	r := newRouterWithAdmin(t, ch, "")

	if w := doAdmin(r, http.MethodDelete, "/api/voice/rooms/general", ""); w.Code != http.StatusNotFound && w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("delete: code %d", w.Code)
	}
	if w := doAdmin(r, http.MethodPost, "/api/voice/reconnect", ""); w.Code != http.StatusNotFound {
		t.Fatalf("reconnect: code %d", w.Code)
	}
	if len(ch.released) != 0 || ch.connects != 0 {
		t.Fatalf("released=%v connects=%d", ch.released, ch.connects)
	}
	// joining still works
	if w := do(r, http.MethodPost, "/api/voice/rooms/general/join", `{"user_id":"alice"}`, nil); w.Code != http.StatusOK {
		t.Fatalf("join: code %d", w.Code)
	}
}
