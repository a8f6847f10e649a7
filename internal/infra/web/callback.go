package web

import (
	"net/url"
	"strings"
)

// BuildCallbackURL assembles the webhook URL handed to the provider at
// submission time. The session id travels both as a plain query parameter
// and inside the signed token, so job linking is never required on the
// happy path.
func BuildCallbackURL(publicBase, path, sessionID string, tokens *CallbackTokenManager) string {
	u := strings.TrimRight(publicBase, "/") + path

	q := url.Values{}
	q.Set("session_id", sessionID)
	if tokens != nil {
		if tok, err := tokens.Mint(sessionID); err == nil {
			q.Set("token", tok)
		}
	}
	return u + "?" + q.Encode()
}
