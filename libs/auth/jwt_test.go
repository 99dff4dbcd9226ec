package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHS256RoundTrip(t *testing.T) {
	secret := "test-secret"

	token, err := SignHS256("user-1", "proofline", RoleOwner, secret, time.Hour)
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}
	parsed, err := ParseAndVerifyHS256(token, secret)
	if err != nil {
		t.Fatalf("ParseAndVerifyHS256 failed: %v", err)
	}
	if parsed.Subject != "user-1" || parsed.Org != "proofline" || parsed.Role != RoleOwner {
		t.Fatalf("claims mismatch: got %+v", parsed)
	}
	if _, err := ParseAndVerifyHS256(token, "wrong-secret"); err == nil {
		t.Fatal("expected verification error with wrong secret")
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	token, err := SignHS256("user-1", "proofline", RoleOwner, "s", -time.Minute)
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}
	if _, err := ParseAndVerifyHS256(token, "s"); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestCanManage(t *testing.T) {
	owner := &Claims{Org: "proofline", Role: RoleOwner}
	if !owner.CanManage("proofline") || owner.CanManage("other") {
		t.Fatal("owner should only manage their own organization")
	}
	admin := &Claims{Role: RoleAdmin}
	if !admin.CanManage("other") {
		t.Fatal("admin should manage any organization")
	}
	var none *Claims
	if none.CanManage("proofline") {
		t.Fatal("nil claims must not manage anything")
	}
}

func TestRequireBearer(t *testing.T) {
	secret := "test-secret"
	var seen *Claims
	h := RequireBearer(secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = ClaimsFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/", nil))
	if rw.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rw.Code)
	}

	token, _ := SignHS256("user-1", "proofline", RoleOwner, secret, time.Hour)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rw = httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if rw.Code != http.StatusNoContent || seen == nil || seen.Org != "proofline" {
		t.Fatalf("expected authorized request, got %d %+v", rw.Code, seen)
	}
}
