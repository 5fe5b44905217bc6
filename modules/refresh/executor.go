package refresh

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/guarzo/sessionkit/common"
	"github.com/guarzo/sessionkit/common/model"
)

// Executor performs exactly one network exchange of a refresh credential
// for a new access/refresh pair. It knows nothing about callers or
// coordination; the Coordinator is the only caller.
type Executor interface {
	Execute(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

type httpExecutor struct {
	url      string
	clientID string
	client   common.HttpClient
	now      func() time.Time
}

// NewHTTPExecutor constructs an Executor that posts a standard
// grant_type=refresh_token form to the given token endpoint.
func NewHTTPExecutor(endpoint, clientID string, client common.HttpClient) Executor {
	return &httpExecutor{
		url:      endpoint,
		clientID: clientID,
		client:   client,
		now:      time.Now,
	}
}

func (e *httpExecutor) Execute(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	if e.clientID != "" {
		form.Set("client_id", e.clientID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		// fall through to decode
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &RejectedError{StatusCode: resp.StatusCode, Body: body}
	case resp.StatusCode == http.StatusBadRequest && isInvalidGrant(body):
		return nil, &RejectedError{StatusCode: resp.StatusCode, Body: body}
	default:
		return nil, &TransportError{Err: &common.HTTPError{StatusCode: resp.StatusCode, Body: body}}
	}

	var payload model.RefreshResponse
	if err := model.JSONUnmarshal(body, &payload); err != nil {
		return nil, &TransportError{Err: err}
	}
	if payload.AccessToken == "" {
		return nil, &TransportError{Err: errors.New("token endpoint returned no access_token")}
	}

	newRefresh := payload.RefreshToken
	if newRefresh == "" {
		// rotation is optional server-side; keep the credential we sent
		newRefresh = refreshToken
	}

	return &oauth2.Token{
		AccessToken:  payload.AccessToken,
		RefreshToken: newRefresh,
		Expiry:       e.expiry(payload),
	}, nil
}

// expiry derives the pair's expiry from the server-declared lifetime. When
// expires_in is missing, fall back to the access token's exp claim. Neither
// present means the pair is stored already expired and the reactive path
// takes over.
func (e *httpExecutor) expiry(payload model.RefreshResponse) time.Time {
	if payload.ExpiresInSeconds > 0 {
		return e.now().Add(time.Duration(payload.ExpiresInSeconds) * time.Second)
	}
	if exp, ok := jwtExpiry(payload.AccessToken); ok {
		return exp
	}
	return time.Time{}
}

func isInvalidGrant(body []byte) bool {
	var payload model.ErrorResponse
	if err := model.JSONUnmarshal(body, &payload); err != nil {
		return false
	}
	return payload.Error == "invalid_grant"
}

// jwtExpiry reads the exp claim without verifying the signature. The client
// has no key material; only the lifetime matters here.
func jwtExpiry(accessToken string) (time.Time, bool) {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}
