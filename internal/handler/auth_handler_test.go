package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/liveeazy/backend/internal/middleware"
	"github.com/liveeazy/backend/internal/model"
	"github.com/liveeazy/backend/internal/session"
)

// --- モック定義 ---

type mockAuthService struct {
	loginFn          func(ctx context.Context, rawCredential string) (*model.User, string, error)
	logoutFn         func(ctx context.Context, subjectID string)
	getCurrentUserFn func(ctx context.Context, subjectID string) (*model.User, error)
	maxAge           time.Duration
}

func (m *mockAuthService) Login(ctx context.Context, rawCredential string) (*model.User, string, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, rawCredential)
	}
	return nil, "", nil
}

func (m *mockAuthService) Logout(ctx context.Context, subjectID string) {
	if m.logoutFn != nil {
		m.logoutFn(ctx, subjectID)
	}
}

func (m *mockAuthService) GetCurrentUser(ctx context.Context, subjectID string) (*model.User, error) {
	if m.getCurrentUserFn != nil {
		return m.getCurrentUserFn(ctx, subjectID)
	}
	return nil, nil
}

func (m *mockAuthService) SessionMaxAge() time.Duration {
	if m.maxAge != 0 {
		return m.maxAge
	}
	return 24 * time.Hour
}

type mockPurchaseReader struct {
	statusFn func(ctx context.Context, userID string) (bool, *model.Purchase, error)
	listFn   func(ctx context.Context, userID string) ([]model.Purchase, error)
}

func (m *mockPurchaseReader) GetPurchaseStatus(ctx context.Context, userID string) (bool, *model.Purchase, error) {
	if m.statusFn != nil {
		return m.statusFn(ctx, userID)
	}
	return false, nil, nil
}

func (m *mockPurchaseReader) ListPurchases(ctx context.Context, userID string) ([]model.Purchase, error) {
	if m.listFn != nil {
		return m.listFn(ctx, userID)
	}
	return nil, nil
}

type mockSessionVerifier struct {
	verifyFn func(ctx context.Context, artifact string) (*model.Session, error)
}

func (m *mockSessionVerifier) Verify(ctx context.Context, artifact string) (*model.Session, error) {
	if m.verifyFn != nil {
		return m.verifyFn(ctx, artifact)
	}
	return nil, errors.New("verify not configured")
}

func testCookieWriter() *session.CookieWriter {
	return session.NewCookieWriter("session", "", false)
}

func authedContext(req *http.Request, userID string) *http.Request {
	sess := &model.Session{
		SubjectID: userID,
		Email:     "user@example.com",
		Name:      "テストユーザー",
		ExpiresAt: time.Now().Add(1 * time.Hour),
	}
	return req.WithContext(middleware.ContextWithSession(req.Context(), sess))
}

// --- テスト ---

func TestAuthHandler_SessionLogin_Success(t *testing.T) {
	svc := &mockAuthService{
		loginFn: func(ctx context.Context, rawCredential string) (*model.User, string, error) {
			if rawCredential != "valid-idp-token" {
				t.Errorf("rawCredential = %q, want %q", rawCredential, "valid-idp-token")
			}
			return &model.User{ID: "user-1", Email: "user@example.com"}, "session-artifact", nil
		},
	}
	h := NewAuthHandler(svc, &mockPurchaseReader{}, &mockSessionVerifier{}, testCookieWriter())

	body := strings.NewReader(`{"idToken":"valid-idp-token"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/sessionLogin", body)
	w := httptest.NewRecorder()

	h.SessionLogin(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var got map[string]string
	json.NewDecoder(resp.Body).Decode(&got)
	if got["status"] != "ok" {
		t.Errorf("status = %q, want %q", got["status"], "ok")
	}
	if got["uid"] != "user-1" {
		t.Errorf("uid = %q, want %q", got["uid"], "user-1")
	}

	// セッションCookieが設定されていること
	var found bool
	for _, c := range resp.Cookies() {
		if c.Name == "session" && c.Value == "session-artifact" {
			found = true
			if !c.HttpOnly {
				t.Error("session cookie should be HttpOnly")
			}
		}
	}
	if !found {
		t.Error("session cookie not set")
	}
}

func TestAuthHandler_SessionLogin_MissingToken(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{}, &mockPurchaseReader{}, &mockSessionVerifier{}, testCookieWriter())

	req := httptest.NewRequest(http.MethodPost, "/api/sessionLogin", strings.NewReader(`{}`))
	w := httptest.NewRecorder()

	h.SessionLogin(w, req)

	if w.Result().StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusBadRequest)
	}
}

func TestAuthHandler_SessionLogin_MalformedBody(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{}, &mockPurchaseReader{}, &mockSessionVerifier{}, testCookieWriter())

	req := httptest.NewRequest(http.MethodPost, "/api/sessionLogin", strings.NewReader(`{invalid`))
	w := httptest.NewRecorder()

	h.SessionLogin(w, req)

	if w.Result().StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusBadRequest)
	}
}

func TestAuthHandler_SessionLogin_InvalidCredential(t *testing.T) {
	svc := &mockAuthService{
		loginFn: func(ctx context.Context, rawCredential string) (*model.User, string, error) {
			return nil, "", model.NewUnauthorizedError()
		},
	}
	h := NewAuthHandler(svc, &mockPurchaseReader{}, &mockSessionVerifier{}, testCookieWriter())

	body := strings.NewReader(`{"idToken":"forged-token"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/sessionLogin", body)
	w := httptest.NewRecorder()

	h.SessionLogin(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}

	// Cookieは設定されないこと
	if len(resp.Cookies()) != 0 {
		t.Errorf("cookies = %d, want 0", len(resp.Cookies()))
	}

	var got apiErrorResponse
	json.NewDecoder(resp.Body).Decode(&got)
	if got.Code != model.ErrCodeUnauthorized {
		t.Errorf("code = %q, want %q", got.Code, model.ErrCodeUnauthorized)
	}
}

func TestAuthHandler_SessionLogout_AlwaysSucceeds(t *testing.T) {
	tests := []struct {
		name       string
		withCookie bool
	}{
		{"Cookieあり", true},
		{"Cookieなし", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var logoutCalled bool
			svc := &mockAuthService{
				logoutFn: func(ctx context.Context, subjectID string) {
					logoutCalled = true
					if subjectID != "user-1" {
						t.Errorf("subjectID = %q, want %q", subjectID, "user-1")
					}
				},
			}
			verifier := &mockSessionVerifier{
				verifyFn: func(ctx context.Context, artifact string) (*model.Session, error) {
					return &model.Session{SubjectID: "user-1"}, nil
				},
			}
			h := NewAuthHandler(svc, &mockPurchaseReader{}, verifier, testCookieWriter())

			req := httptest.NewRequest(http.MethodPost, "/api/sessionLogout", nil)
			if tt.withCookie {
				req.AddCookie(&http.Cookie{Name: "session", Value: "some-artifact"})
			}
			w := httptest.NewRecorder()

			h.SessionLogout(w, req)

			resp := w.Result()
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
			}

			if logoutCalled != tt.withCookie {
				t.Errorf("logoutCalled = %v, want %v", logoutCalled, tt.withCookie)
			}

			// Cookieクリアが含まれること
			var cleared bool
			for _, c := range resp.Cookies() {
				if c.Name == "session" && c.MaxAge < 0 {
					cleared = true
				}
			}
			if !cleared {
				t.Error("session cookie should be cleared")
			}
		})
	}
}

func TestAuthHandler_SessionLogout_InvalidCookieStillSucceeds(t *testing.T) {
	verifier := &mockSessionVerifier{
		verifyFn: func(ctx context.Context, artifact string) (*model.Session, error) {
			return nil, errors.New("expired")
		},
	}
	h := NewAuthHandler(&mockAuthService{}, &mockPurchaseReader{}, verifier, testCookieWriter())

	req := httptest.NewRequest(http.MethodPost, "/api/sessionLogout", nil)
	req.AddCookie(&http.Cookie{Name: "session", Value: "expired-artifact"})
	w := httptest.NewRecorder()

	h.SessionLogout(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}
}

func TestAuthHandler_Me_ReturnsUserWithPurchases(t *testing.T) {
	now := time.Now()
	svc := &mockAuthService{
		getCurrentUserFn: func(ctx context.Context, subjectID string) (*model.User, error) {
			return &model.User{
				ID:        "user-1",
				Email:     "user@example.com",
				Name:      "テストユーザー",
				CreatedAt: now,
				UpdatedAt: now,
			}, nil
		},
	}
	purchases := &mockPurchaseReader{
		statusFn: func(ctx context.Context, userID string) (bool, *model.Purchase, error) {
			return true, &model.Purchase{ID: "p-2", OrderID: "order_2", Amount: 50000}, nil
		},
		listFn: func(ctx context.Context, userID string) ([]model.Purchase, error) {
			return []model.Purchase{
				{ID: "p-2", OrderID: "order_2", Amount: 50000},
				{ID: "p-1", OrderID: "order_1", Amount: 30000},
			}, nil
		},
	}
	h := NewAuthHandler(svc, purchases, &mockSessionVerifier{}, testCookieWriter())

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req = authedContext(req, "user-1")
	w := httptest.NewRecorder()

	h.Me(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var got userResponse
	json.NewDecoder(resp.Body).Decode(&got)
	if got.ID != "user-1" {
		t.Errorf("id = %q, want %q", got.ID, "user-1")
	}
	if got.DisplayName != "テストユーザー" {
		t.Errorf("displayName = %q, want %q", got.DisplayName, "テストユーザー")
	}
	if len(got.Purchases) != 2 {
		t.Errorf("purchases = %d, want 2", len(got.Purchases))
	}
	if got.LastPayment == nil || got.LastPayment.OrderID != "order_2" {
		t.Errorf("lastPayment = %+v, want order_2", got.LastPayment)
	}
}

func TestAuthHandler_Me_UserNotFound(t *testing.T) {
	svc := &mockAuthService{
		getCurrentUserFn: func(ctx context.Context, subjectID string) (*model.User, error) {
			return nil, model.NewUserNotFoundError()
		},
	}
	h := NewAuthHandler(svc, &mockPurchaseReader{}, &mockSessionVerifier{}, testCookieWriter())

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req = authedContext(req, "user-unknown")
	w := httptest.NewRecorder()

	h.Me(w, req)

	if w.Result().StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusNotFound)
	}
}

func TestAuthHandler_Me_NoSession(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{}, &mockPurchaseReader{}, &mockSessionVerifier{}, testCookieWriter())

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	w := httptest.NewRecorder()

	h.Me(w, req)

	if w.Result().StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusUnauthorized)
	}
}
