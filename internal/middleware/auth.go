package middleware

import (
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/dukerupert/choreweek/internal/auth"
)

// ActorHeader names the acting household member.
const ActorHeader = "X-Actor"

const maxActorLen = 64

// Actor attaches the acting identity: the X-Actor header when present,
// otherwise the client address.
func Actor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a := auth.Actor{Name: strings.TrimSpace(r.Header.Get(ActorHeader)), FromHeader: true}
		if a.Name == "" {
			a = auth.Actor{Name: RealIP(r)}
		}
		if utf8.RuneCountInString(a.Name) > maxActorLen {
			http.Error(w, "X-Actor header too long", http.StatusBadRequest)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithActor(r.Context(), a)))
	})
}
