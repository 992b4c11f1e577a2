package services

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/askmira/backend/repository"
	"github.com/glebarez/sqlite"
	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestRepository(t *testing.T) *repository.GORMRepository {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("underlying database: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	repo := repository.NewGORMRepository(db)
	if err := repo.AutoMigrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return repo
}

func newAuthRouter(t *testing.T) http.Handler {
	t.Helper()
	authService := NewAuthService(newTestRepository(t), "test-secret")
	endpoints := NewAuthEndpoints(authService)
	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		endpoints.RegisterRoutes(r)
	})
	return r
}

func doAuthRequest(t *testing.T, handler http.Handler, method, path, body string, cookies []*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for _, cookie := range cookies {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeUser(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	user, ok := body["user"].(map[string]any)
	if !ok {
		t.Fatalf("response has no user object: %v", body)
	}
	return user
}

func TestProfileUpdateAndAccountDeletion(t *testing.T) {
	router := newAuthRouter(t)

	rec := doAuthRequest(t, router, http.MethodPost, "/api/auth/signup",
		`{"email":"mira@example.com","password":"secret123","full_name":"Mira"}`, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("signup status = %d, want %d: %s", rec.Code, http.StatusCreated, rec.Body)
	}
	cookies := rec.Result().Cookies()

	rec = doAuthRequest(t, router, http.MethodPut, "/api/auth/me",
		`{"full_name":"Mira Updated"}`, cookies)
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body)
	}
	if user := decodeUser(t, rec); user["full_name"] != "Mira Updated" {
		t.Fatalf("full_name = %v, want %q", user["full_name"], "Mira Updated")
	}

	rec = doAuthRequest(t, router, http.MethodGet, "/api/auth/me", "", cookies)
	if rec.Code != http.StatusOK {
		t.Fatalf("me status = %d, want %d", rec.Code, http.StatusOK)
	}
	if user := decodeUser(t, rec); user["full_name"] != "Mira Updated" {
		t.Fatalf("full_name after reload = %v, want %q", user["full_name"], "Mira Updated")
	}

	rec = doAuthRequest(t, router, http.MethodDelete, "/api/auth/me", "", cookies)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d, want %d", rec.Code, http.StatusNoContent)
	}

	rec = doAuthRequest(t, router, http.MethodPost, "/api/auth/login",
		`{"email":"mira@example.com","password":"secret123"}`, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("login after deletion status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestRefreshRotatesToken(t *testing.T) {
	router := newAuthRouter(t)

	rec := doAuthRequest(t, router, http.MethodPost, "/api/auth/signup",
		`{"email":"mira@example.com","password":"secret123","full_name":"Mira"}`, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("signup status = %d, want %d", rec.Code, http.StatusCreated)
	}

	var refreshCookie *http.Cookie
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == "refresh_token" {
			refreshCookie = cookie
		}
	}
	if refreshCookie == nil {
		t.Fatal("signup set no refresh_token cookie")
	}

	rec = doAuthRequest(t, router, http.MethodPost, "/api/auth/refresh", "", []*http.Cookie{refreshCookie})
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body)
	}
	var rotated *http.Cookie
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == "refresh_token" {
			rotated = cookie
		}
	}
	if rotated == nil || rotated.Value == refreshCookie.Value {
		t.Fatal("refresh did not rotate the refresh token")
	}

	// The retired token is dead.
	rec = doAuthRequest(t, router, http.MethodPost, "/api/auth/refresh", "", []*http.Cookie{refreshCookie})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("reused refresh token status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}

	// The rotated one works.
	rec = doAuthRequest(t, router, http.MethodPost, "/api/auth/refresh", "", []*http.Cookie{rotated})
	if rec.Code != http.StatusOK {
		t.Fatalf("rotated refresh token status = %d, want %d", rec.Code, http.StatusOK)
	}
}
