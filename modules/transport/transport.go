package transport

import (
	"io"
	"net/http"

	"github.com/guarzo/sessionkit/modules/refresh"
	"github.com/guarzo/sessionkit/modules/tokens"
)

// AuthTransport is an http.RoundTripper that attaches the current access
// credential to outgoing requests and, on an authorization failure, asks
// the coordinator for a refresh before retrying the original request
// exactly once. It never talks to the token endpoint itself.
type AuthTransport struct {
	base  http.RoundTripper
	store *tokens.Store
	coord *refresh.Coordinator
}

// NewAuthTransport wraps base (http.DefaultTransport when nil) with
// credential handling.
func NewAuthTransport(base http.RoundTripper, store *tokens.Store, coord *refresh.Coordinator) *AuthTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &AuthTransport{
		base:  base,
		store: store,
		coord: coord,
	}
}

func (t *AuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// clone request to avoid mutating the original
	authed := req.Clone(req.Context())
	if tok := t.store.Current(); tok != nil && tok.AccessToken != "" {
		authed.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	}

	resp, err := t.base.RoundTrip(authed)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized && resp.StatusCode != http.StatusForbidden {
		return resp, nil
	}

	newTok, refreshErr := t.coord.AttemptRefresh(req.Context())
	if refreshErr != nil {
		// surface the original authorization failure; the caller decides
		// whether that means a login redirect
		return resp, nil
	}

	retry, ok := replayable(req)
	if !ok {
		return resp, nil
	}

	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	retry.Header.Set("Authorization", "Bearer "+newTok.AccessToken)
	return t.base.RoundTrip(retry)
}

// replayable clones the request with a fresh body. Requests whose body
// cannot be replayed are not retried.
func replayable(req *http.Request) (*http.Request, bool) {
	clone := req.Clone(req.Context())
	if req.Body == nil || req.Body == http.NoBody {
		return clone, true
	}
	if req.GetBody == nil {
		return nil, false
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, false
	}
	clone.Body = body
	return clone, true
}
