package i18n

import "net/http"

// LangParam is the query parameter that overrides the negotiated language.
const LangParam = "lang"

// Middleware picks the response language for each request: the ?lang=
// parameter first, then Accept-Language, then defaultLang.
func Middleware(defaultLang string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			loc := NewLocalizer(r.URL.Query().Get(LangParam), r.Header.Get("Accept-Language"), defaultLang)
			if loc == nil {
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Set("Vary", "Accept-Language")
			next.ServeHTTP(w, r.WithContext(WithLocalizer(r.Context(), loc)))
		})
	}
}
