// Package shield holds the HTTP middleware in front of the manualtr API:
// security headers, HEAD handling and request body limits.
//
// Usage:
//
//	r := chi.NewRouter()
//	for _, mw := range shield.APIStack(maxBody) {
//	    r.Use(mw)
//	}
package shield

import "net/http"

// APIStack returns the middleware stack of a JSON/CSV API, ordered
// HeadToGet → SecurityHeaders → MaxBody.
func APIStack(maxBody int64) []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		HeadToGet,
		SecurityHeaders(APIHeaders()),
		MaxBody(maxBody),
	}
}
