package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/maumtalk/counseling-server/internal/store"
)

func newTestRepo(t *testing.T) store.Repository {
	t.Helper()
	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestMiddlewareIssuesAnonymousIdentity(t *testing.T) {
	t.Parallel()
	repo := newTestRepo(t)

	var seenUserID string
	handler := Middleware(repo, true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenUserID = UserIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !isValidAnonID(seenUserID) {
		t.Fatalf("expected valid anonymous ID, got %q", seenUserID)
	}

	var cookie *http.Cookie
	for _, c := range rr.Result().Cookies() {
		if c.Name == AnonCookieName {
			cookie = c
		}
	}
	if cookie == nil {
		t.Fatal("expected identity cookie to be set")
	}
	if cookie.Value != seenUserID {
		t.Fatalf("cookie %q does not match context user %q", cookie.Value, seenUserID)
	}
	if !cookie.HttpOnly {
		t.Fatal("identity cookie must be HttpOnly")
	}

	// The backing user record exists with a derived nickname.
	user, err := repo.GetUser(context.Background(), seenUserID)
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if user == nil {
		t.Fatal("expected user record to be created")
	}
	if user.Nickname == "" {
		t.Fatal("expected derived nickname")
	}
}

func TestMiddlewareReusesValidCookie(t *testing.T) {
	t.Parallel()
	repo := newTestRepo(t)

	var userIDs []string
	handler := Middleware(repo, true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userIDs = append(userIDs, UserIDFromContext(r.Context()))
		w.WriteHeader(http.StatusOK)
	}))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/", nil))

	var cookie *http.Cookie
	for _, c := range first.Result().Cookies() {
		if c.Name == AnonCookieName {
			cookie = c
		}
	}
	if cookie == nil {
		t.Fatal("expected identity cookie")
	}

	second := httptest.NewRequest(http.MethodGet, "/", nil)
	second.AddCookie(cookie)
	handler.ServeHTTP(httptest.NewRecorder(), second)

	if len(userIDs) != 2 || userIDs[0] != userIDs[1] {
		t.Fatalf("expected stable identity across requests, got %v", userIDs)
	}
}

func TestMiddlewareRejectsForgedCookie(t *testing.T) {
	t.Parallel()
	repo := newTestRepo(t)

	var seenUserID string
	handler := Middleware(repo, true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenUserID = UserIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: AnonCookieName, Value: "../../etc/passwd"})
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if seenUserID == "../../etc/passwd" {
		t.Fatal("forged cookie value must not become an identity")
	}
	if !isValidAnonID(seenUserID) {
		t.Fatalf("expected a freshly issued ID, got %q", seenUserID)
	}
}

func TestDeriveNickname(t *testing.T) {
	t.Parallel()

	id, err := generateAnonID()
	if err != nil {
		t.Fatalf("generateAnonID failed: %v", err)
	}
	nick := deriveNickname(id)
	if nick == "내담자" {
		t.Fatalf("full-length ID should derive a suffixed nickname, got %q", nick)
	}
	if deriveNickname("short") != "내담자" {
		t.Fatal("short IDs should fall back to the plain nickname")
	}
}
