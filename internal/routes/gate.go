package routes

import (
	"net/http"
	"net/url"
)

// Identify reports whether the request belongs to a signed-in user.
type Identify func(r *http.Request) bool

// Gate enforces a route's access rule:
//   - authenticated routes send anonymous users to /login?redirect=<path>
//   - guest routes send signed-in users home
func Gate(route Route, signedIn Identify) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch route.Access {
			case Authenticated:
				if !signedIn(r) {
					target := "/login?redirect=" + url.QueryEscape(r.URL.RequestURI())
					http.Redirect(w, r, target, http.StatusSeeOther)
					return
				}
			case Guest:
				if signedIn(r) {
					http.Redirect(w, r, "/", http.StatusSeeOther)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
