package notify

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
)

// FlashCookie holds toasts across a redirect.
const FlashCookie = "flash"

// Middleware attaches a fresh Collector to every request.
//
// Toasts left in the flash cookie by the previous response are loaded into
// the new Collector and the cookie is cleared, so they show exactly once.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := &Collector{}
		if pending := readFlash(r); len(pending) > 0 {
			for _, t := range pending {
				c.Add(t)
			}
			http.SetCookie(w, &http.Cookie{
				Name:     FlashCookie,
				Value:    "",
				Path:     "/",
				MaxAge:   -1,
				HttpOnly: true,
			})
		}
		next.ServeHTTP(w, r.WithContext(WithCollector(r.Context(), c)))
	})
}

// SaveFlash moves the request's pending toasts into the flash cookie. Call it
// before issuing a redirect.
func SaveFlash(w http.ResponseWriter, r *http.Request) {
	c := FromContext(r.Context())
	if c == nil {
		return
	}
	toasts := c.Drain()
	if len(toasts) == 0 {
		return
	}
	raw, err := json.Marshal(toasts)
	if err != nil {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     FlashCookie,
		Value:    base64.RawURLEncoding.EncodeToString(raw),
		Path:     "/",
		MaxAge:   60,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func readFlash(r *http.Request) []Toast {
	cookie, err := r.Cookie(FlashCookie)
	if err != nil || cookie.Value == "" {
		return nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(cookie.Value)
	if err != nil {
		return nil
	}
	var toasts []Toast
	if err := json.Unmarshal(raw, &toasts); err != nil {
		return nil
	}
	return toasts
}
