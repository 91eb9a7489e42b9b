package clients

import (
	"net/http"

	"golang.org/x/oauth2"
)

// Credentials selects how outgoing requests are authenticated. A non-empty
// AccessToken takes precedence over Email plus APIToken.
type Credentials struct {
	AccessToken string
	Email       string
	APIToken    string
}

// NewAuthTransport wraps base so every request carries creds. With no usable
// credentials base is returned unchanged.
func NewAuthTransport(base http.RoundTripper, creds Credentials) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	switch {
	case creds.AccessToken != "":
		return &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{
				AccessToken: creds.AccessToken,
				TokenType:   "Bearer",
			}),
			Base: base,
		}
	case creds.Email != "" && creds.APIToken != "":
		return &basicAuthTransport{
			base:     base,
			username: creds.Email + "/token",
			password: creds.APIToken,
		}
	default:
		return base
	}
}

type basicAuthTransport struct {
	base     http.RoundTripper
	username string
	password string
}

func (t *basicAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.SetBasicAuth(t.username, t.password)
	return t.base.RoundTrip(r)
}

// headerTransport sets fixed headers, e.g. marketplace partner headers.
type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	for k, v := range t.headers {
		r.Header.Set(k, v)
	}
	return t.base.RoundTrip(r)
}
