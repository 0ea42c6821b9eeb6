package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
)

func TestCurrentSession(t *testing.T) {
	router, services, store, cfg := newTestRouter(t)
	user := seedUser(t, store, "+15551234567")
	sessionID := login(t, services, user)

	w := perform(router, testRequest{
		method:  "GET",
		path:    "/api/sessions/current",
		cookies: map[string]string{cfg.SessionStore.CookieName: sessionID},
	})
	if w.Code != 200 {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var resp struct {
		AuthMethod string      `json:"authMethod"`
		Session    sessionView `json:"session"`
		Identity   struct {
			UserID string `json:"user_id"`
			Phone  string `json:"phone"`
		} `json:"identity"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.AuthMethod != "session" {
		t.Errorf("authMethod = %q", resp.AuthMethod)
	}
	if resp.Identity.UserID != user.ID.String() {
		t.Errorf("user_id = %q, want %q", resp.Identity.UserID, user.ID.String())
	}
	if !resp.Session.IsCurrent {
		t.Error("current session not marked as current")
	}
}

func TestListSessions(t *testing.T) {
	router, services, store, cfg := newTestRouter(t)
	user := seedUser(t, store, "+15551234567")
	first := login(t, services, user)
	second := login(t, services, user)

	w := perform(router, testRequest{
		method:  "GET",
		path:    "/api/sessions",
		cookies: map[string]string{cfg.SessionStore.CookieName: second},
	})
	if w.Code != 200 {
		t.Fatalf("status = %d", w.Code)
	}

	var resp struct {
		Sessions []sessionView `json:"sessions"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.Sessions) != 2 {
		t.Fatalf("got %d sessions, want 2", len(resp.Sessions))
	}

	currentMarks := 0
	for _, s := range resp.Sessions {
		if s.IsCurrent {
			currentMarks++
			if s.ID != second {
				t.Errorf("wrong session marked current: %q", s.ID)
			}
		}
		if s.ID != first && s.ID != second {
			t.Errorf("unexpected session id %q", s.ID)
		}
	}
	if currentMarks != 1 {
		t.Errorf("%d sessions marked current, want 1", currentMarks)
	}
}

func TestRevokeSession(t *testing.T) {
	router, services, store, cfg := newTestRouter(t)
	user := seedUser(t, store, "+15551234567")
	stranger := seedUser(t, store, "+15559998888")

	current := login(t, services, user)
	other := login(t, services, user)
	foreign := login(t, services, stranger)

	csrf := csrfFor(t, router, cfg, current)
	cookies := map[string]string{
		cfg.SessionStore.CookieName: current,
		cfg.CSRF.CookieName:         csrf,
	}
	headers := map[string]string{cfg.CSRF.HeaderName: csrf}

	t.Run("own session", func(t *testing.T) {
		w := perform(router, testRequest{method: "DELETE", path: "/api/sessions/" + other, cookies: cookies, headers: headers})
		if w.Code != 200 {
			t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
		}

		// Revoked session no longer authenticates.
		check := perform(router, testRequest{
			method:  "GET",
			path:    "/api/sessions/current",
			cookies: map[string]string{cfg.SessionStore.CookieName: other},
		})
		if check.Code != 401 {
			t.Errorf("revoked session still authenticates: %d", check.Code)
		}
	})

	t.Run("foreign session", func(t *testing.T) {
		w := perform(router, testRequest{method: "DELETE", path: "/api/sessions/" + foreign, cookies: cookies, headers: headers})
		if w.Code != 403 {
			t.Fatalf("status = %d, want 403", w.Code)
		}

		// The foreign session must survive the attempt.
		check := perform(router, testRequest{
			method:  "GET",
			path:    "/api/sessions/current",
			cookies: map[string]string{cfg.SessionStore.CookieName: foreign},
		})
		if check.Code != 200 {
			t.Errorf("foreign session was destroyed: %d", check.Code)
		}
	})

	t.Run("unknown session", func(t *testing.T) {
		w := perform(router, testRequest{method: "DELETE", path: "/api/sessions/no-such-session", cookies: cookies, headers: headers})
		if w.Code != 404 {
			t.Errorf("status = %d, want 404", w.Code)
		}
	})
}

func TestRevokeAllSessions(t *testing.T) {
	router, services, store, cfg := newTestRouter(t)
	user := seedUser(t, store, "+15551234567")

	current := login(t, services, user)
	login(t, services, user)
	login(t, services, user)

	csrf := csrfFor(t, router, cfg, current)
	w := perform(router, testRequest{
		method: "POST",
		path:   "/api/sessions/revoke-all",
		cookies: map[string]string{
			cfg.SessionStore.CookieName: current,
			cfg.CSRF.CookieName:         csrf,
		},
		headers: map[string]string{cfg.CSRF.HeaderName: csrf},
	})
	if w.Code != 200 {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var resp struct {
		Revoked int `json:"revoked"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Revoked != 2 {
		t.Errorf("revoked = %d, want 2", resp.Revoked)
	}

	// The current session survives.
	check := perform(router, testRequest{
		method:  "GET",
		path:    "/api/sessions/current",
		cookies: map[string]string{cfg.SessionStore.CookieName: current},
	})
	if check.Code != 200 {
		t.Errorf("current session was revoked: %d", check.Code)
	}
}

func TestLogout(t *testing.T) {
	router, services, store, cfg := newTestRouter(t)
	user := seedUser(t, store, "+15551234567")
	sessionID := login(t, services, user)

	csrf := csrfFor(t, router, cfg, sessionID)
	w := perform(router, testRequest{
		method: "POST",
		path:   "/api/sessions/logout",
		cookies: map[string]string{
			cfg.SessionStore.CookieName: sessionID,
			cfg.CSRF.CookieName:         csrf,
		},
		headers: map[string]string{cfg.CSRF.HeaderName: csrf},
	})
	if w.Code != 200 {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	// Both cookies cleared.
	cleared := map[string]bool{}
	for _, c := range w.Result().Cookies() {
		if c.MaxAge < 0 {
			cleared[c.Name] = true
		}
	}
	if !cleared[cfg.SessionStore.CookieName] || !cleared[cfg.CSRF.CookieName] {
		t.Errorf("cookies not cleared on logout: %v", cleared)
	}

	// The session is gone server-side.
	check := perform(router, testRequest{
		method:  "GET",
		path:    "/api/sessions/current",
		cookies: map[string]string{cfg.SessionStore.CookieName: sessionID},
	})
	if check.Code != 401 {
		t.Errorf("session survives logout: %d", check.Code)
	}
}

func TestLoginHistory(t *testing.T) {
	router, services, store, cfg := newTestRouter(t)
	user := seedUser(t, store, "+15551234567")
	sessionID := login(t, services, user)

	ctx := context.Background()
	services.Identity.RecordLogin(ctx, user.ID, "webauthn_register", "192.0.2.1", "test-agent", "iPhone")
	services.Identity.RecordLogin(ctx, user.ID, "webauthn_login", "192.0.2.2", "test-agent", "iPhone")

	// Another user's logins must not show up.
	stranger := seedUser(t, store, "+15559998888")
	services.Identity.RecordLogin(ctx, stranger.ID, "webauthn_login", "203.0.113.9", "other-agent", "Pixel")

	w := perform(router, testRequest{
		method:  "GET",
		path:    "/api/sessions/history",
		cookies: map[string]string{cfg.SessionStore.CookieName: sessionID},
	})
	if w.Code != 200 {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var resp struct {
		Logins []loginRecordView `json:"logins"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.Logins) != 2 {
		t.Fatalf("got %d records, want 2", len(resp.Logins))
	}
	// Newest first.
	if resp.Logins[0].Method != "webauthn_login" || resp.Logins[1].Method != "webauthn_register" {
		t.Errorf("unexpected order: %q then %q", resp.Logins[0].Method, resp.Logins[1].Method)
	}
	if resp.Logins[0].IP != "192.0.2.2" {
		t.Errorf("IP = %q, want 192.0.2.2", resp.Logins[0].IP)
	}

	t.Run("limit", func(t *testing.T) {
		w := perform(router, testRequest{
			method:  "GET",
			path:    "/api/sessions/history?limit=1",
			cookies: map[string]string{cfg.SessionStore.CookieName: sessionID},
		})
		if w.Code != 200 {
			t.Fatalf("status = %d", w.Code)
		}
		var limited struct {
			Logins []loginRecordView `json:"logins"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &limited); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if len(limited.Logins) != 1 {
			t.Errorf("got %d records, want 1", len(limited.Logins))
		}
	})

	t.Run("unauthenticated", func(t *testing.T) {
		w := perform(router, testRequest{method: "GET", path: "/api/sessions/history"})
		if w.Code != 401 {
			t.Errorf("status = %d, want 401", w.Code)
		}
	})
}

func TestCSRFTokenEndpoint(t *testing.T) {
	router, services, store, cfg := newTestRouter(t)
	user := seedUser(t, store, "+15551234567")
	sessionID := login(t, services, user)

	t.Run("session caller gets cookie and token", func(t *testing.T) {
		w := perform(router, testRequest{
			method:  "GET",
			path:    "/api/sessions/csrf",
			cookies: map[string]string{cfg.SessionStore.CookieName: sessionID},
		})
		if w.Code != 200 {
			t.Fatalf("status = %d", w.Code)
		}
		if !strings.Contains(w.Body.String(), "csrfToken") {
			t.Errorf("missing token in body: %s", w.Body.String())
		}

		var csrfCookie *http.Cookie
		for _, c := range w.Result().Cookies() {
			if c.Name == cfg.CSRF.CookieName {
				csrfCookie = c
			}
		}
		if csrfCookie == nil || csrfCookie.Value == "" {
			t.Fatal("csrf cookie not set")
		}
	})

	t.Run("bearer caller has nothing to bind to", func(t *testing.T) {
		token, err := services.Token.Sign(user)
		if err != nil {
			t.Fatalf("Sign() error = %v", err)
		}
		w := perform(router, testRequest{
			method:  "GET",
			path:    "/api/sessions/csrf",
			headers: map[string]string{"Authorization": "Bearer " + token},
		})
		if w.Code != 400 {
			t.Errorf("status = %d, want 400", w.Code)
		}
	})
}
