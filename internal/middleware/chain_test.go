package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/liveeazy/backend/internal/model"
)

func chainVerifier(userID string) *mockVerifier {
	return &mockVerifier{
		verifyFn: func(ctx context.Context, artifact string) (*model.Session, error) {
			if artifact == "valid-artifact" {
				return &model.Session{
					SubjectID: userID,
					ExpiresAt: time.Now().Add(1 * time.Hour),
				}, nil
			}
			return nil, errors.New("invalid artifact")
		},
	}
}

// TestMiddlewareChain_Session_GETRequest は
// Session ミドルウェアでGETリクエストが通ることを検証する。
func TestMiddlewareChain_Session_GETRequest(t *testing.T) {
	sessionMW := NewSessionMiddleware(chainVerifier("user-chain-test"), testCookieName)

	var capturedUserID string
	handler := sessionMW(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, _ := UserIDFromContext(r.Context())
		capturedUserID = userID
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/test", nil)
	req.AddCookie(&http.Cookie{Name: testCookieName, Value: "valid-artifact"})
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}
	if capturedUserID != "user-chain-test" {
		t.Errorf("userID = %q, want %q", capturedUserID, "user-chain-test")
	}
}

// TestMiddlewareChain_Session_POSTRequest_WithValidSession は
// Session ミドルウェアでPOSTリクエストがセッション付きで通ることを検証する。
func TestMiddlewareChain_Session_POSTRequest_WithValidSession(t *testing.T) {
	sessionMW := NewSessionMiddleware(chainVerifier("user-post-test"), testCookieName)

	handlerCalled := false
	handler := sessionMW(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/test", nil)
	req.AddCookie(&http.Cookie{Name: testCookieName, Value: "valid-artifact"})
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}
	if !handlerCalled {
		t.Error("handler should have been called")
	}
}

// TestMiddlewareChain_NoSession_Returns401 は
// セッションがない場合に401が返されることを検証する。
func TestMiddlewareChain_NoSession_Returns401(t *testing.T) {
	sessionMW := NewSessionMiddleware(&mockVerifier{}, testCookieName)

	handler := sessionMW(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/test", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	// セッション未認証で401が返ること
	if w.Result().StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusUnauthorized)
	}
}
