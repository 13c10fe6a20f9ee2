// Package auth supplies oauth2 token sources for servers that accept Bearer
// tokens instead of, or in addition to, Basic credentials.
//
// Pass the token source to client.WithTokenSource:
//
//	ts, err := auth.ClientCredentials(ctx, "https://issuer.example", "nsrpc", secret, nil)
//	c := client.New(params, root, client.WithTokenSource(ts))
package auth

import (
	"context"
	"fmt"
	"net/url"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// Static returns a token source that always yields token.
func Static(token string) oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
}

// Provider is an OIDC issuer whose endpoints were found by discovery.
type Provider struct {
	issuer       string
	oidcProvider *oidc.Provider
}

// Discover queries the issuer's /.well-known/openid-configuration.
func Discover(ctx context.Context, issuer string) (*Provider, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to query provider %q: %w", issuer, err)
	}
	return &Provider{issuer: issuer, oidcProvider: provider}, nil
}

// Issuer returns the issuer URL.
func (p *Provider) Issuer() string {
	return p.issuer
}

// Endpoint returns the issuer's oauth2 endpoints.
func (p *Provider) Endpoint() oauth2.Endpoint {
	return p.oidcProvider.Endpoint()
}

// Option configures a client credentials grant.
type Option func(*clientcredentials.Config)

// WithAudience requests a token for the given audience, for issuers that
// take the audience as an extra token request parameter.
func WithAudience(audience string) Option {
	return func(c *clientcredentials.Config) {
		if c.EndpointParams == nil {
			c.EndpointParams = url.Values{}
		}
		c.EndpointParams.Set("audience", audience)
	}
}

// WithAuthStyle sets how the client id and secret are sent to the token
// endpoint. Defaults to auto-detection.
func WithAuthStyle(style oauth2.AuthStyle) Option {
	return func(c *clientcredentials.Config) {
		c.AuthStyle = style
	}
}

// ClientCredentials returns a token source using the client credentials
// grant against the provider's token endpoint. Tokens are cached until they
// expire. ctx is used for the token requests, not only for this call.
func (p *Provider) ClientCredentials(ctx context.Context, clientID, clientSecret string, scopes []string, opts ...Option) oauth2.TokenSource {
	conf := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     p.Endpoint().TokenURL,
		Scopes:       scopes,
		AuthStyle:    p.Endpoint().AuthStyle,
	}
	for _, opt := range opts {
		opt(conf)
	}
	return conf.TokenSource(ctx)
}

// Verifier returns a verifier for JWTs issued by the provider to audience.
// It checks signature, issuer, audience and expiry.
func (p *Provider) Verifier(audience string) *oidc.IDTokenVerifier {
	return p.oidcProvider.Verifier(&oidc.Config{ClientID: audience})
}

// ClientCredentials discovers issuer and returns a client credentials token
// source for it.
func ClientCredentials(ctx context.Context, issuer, clientID, clientSecret string, scopes []string, opts ...Option) (oauth2.TokenSource, error) {
	p, err := Discover(ctx, issuer)
	if err != nil {
		return nil, err
	}
	return p.ClientCredentials(ctx, clientID, clientSecret, scopes, opts...), nil
}
