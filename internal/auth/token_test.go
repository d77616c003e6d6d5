package auth

import (
	"net/http/httptest"
	"testing"
	"time"
)

var testSecret = []byte("test-secret")

func TestIssueAndParseToken(t *testing.T) {
	token, err := IssueToken(7, "alice", testSecret, time.Hour)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	userID, username, err := ParseToken(token, testSecret)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if userID != 7 || username != "alice" {
		t.Errorf("got userID=%d username=%q, want 7/alice", userID, username)
	}
}

func TestParseToken_WrongSecret(t *testing.T) {
	token, err := IssueToken(7, "alice", testSecret, time.Hour)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	if _, _, err := ParseToken(token, []byte("other-secret")); err == nil {
		t.Error("expected error for foreign-signed token")
	}
}

func TestParseToken_Expired(t *testing.T) {
	token, err := IssueToken(7, "alice", testSecret, -time.Minute)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	if _, _, err := ParseToken(token, testSecret); err == nil {
		t.Error("expected error for expired token")
	}
}

func TestParseToken_Garbage(t *testing.T) {
	if _, _, err := ParseToken("not-a-token", testSecret); err == nil {
		t.Error("expected error for malformed token")
	}
}

func TestTokenFromRequest(t *testing.T) {
	t.Run("cookie", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/books", nil)
		req.Header.Set("Cookie", CookieName+"=from-cookie")

		token, err := TokenFromRequest(req)
		if err != nil {
			t.Fatalf("TokenFromRequest: %v", err)
		}
		if token != "from-cookie" {
			t.Errorf("got %q, want from-cookie", token)
		}
	})

	t.Run("bearer fallback", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/books", nil)
		req.Header.Set("Authorization", "Bearer from-header")

		token, err := TokenFromRequest(req)
		if err != nil {
			t.Fatalf("TokenFromRequest: %v", err)
		}
		if token != "from-header" {
			t.Errorf("got %q, want from-header", token)
		}
	})

	t.Run("cookie wins over header", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/books", nil)
		req.Header.Set("Cookie", CookieName+"=from-cookie")
		req.Header.Set("Authorization", "Bearer from-header")

		token, err := TokenFromRequest(req)
		if err != nil {
			t.Fatalf("TokenFromRequest: %v", err)
		}
		if token != "from-cookie" {
			t.Errorf("got %q, want from-cookie", token)
		}
	})

	t.Run("missing", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/books", nil)
		if _, err := TokenFromRequest(req); err == nil {
			t.Error("expected error with no credentials")
		}
	})

	t.Run("malformed header", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/books", nil)
		req.Header.Set("Authorization", "Token abc")
		if _, err := TokenFromRequest(req); err == nil {
			t.Error("expected error for non-bearer scheme")
		}
	})
}
