package session

import (
	"net/http"
	"time"
)

// CookieWriter はセッションCookieの付与・削除を行う。
// クロスサイトのフロントエンドから送信されるため SameSite=None を使う。
type CookieWriter struct {
	name   string
	domain string
	secure bool
}

// NewCookieWriter はCookieWriterを生成する。
func NewCookieWriter(name, domain string, secure bool) *CookieWriter {
	return &CookieWriter{name: name, domain: domain, secure: secure}
}

// Name はセッションCookie名を返す。
func (c *CookieWriter) Name() string {
	return c.name
}

// Set はセッションアーティファクトをCookieとして付与する。
func (c *CookieWriter) Set(w http.ResponseWriter, artifact string, maxAge time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.name,
		Value:    artifact,
		Path:     "/",
		Domain:   c.domain,
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteNoneMode,
	})
}

// Clear はセッションCookieを削除する。
func (c *CookieWriter) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.name,
		Value:    "",
		Path:     "/",
		Domain:   c.domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteNoneMode,
	})
}
