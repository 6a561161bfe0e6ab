package fetcher

import (
	"context"

	"golang.org/x/oauth2/clientcredentials"
)

// TokenSource yields the bearer token for API calls.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a fixed bearer token from the environment.
type StaticToken string

// Token implements TokenSource.
func (t StaticToken) Token(context.Context) (string, error) {
	return string(t), nil
}

// OAuthToken mints app-only bearer tokens from a consumer key/secret
// via the client-credentials grant, refreshing as they expire.
type OAuthToken struct {
	cfg *clientcredentials.Config
}

// NewOAuthToken creates a token source for the given app credentials.
func NewOAuthToken(consumerKey, consumerSecret string) *OAuthToken {
	return &OAuthToken{
		cfg: &clientcredentials.Config{
			ClientID:     consumerKey,
			ClientSecret: consumerSecret,
			TokenURL:     "https://api.twitter.com/oauth2/token",
		},
	}
}

// Token implements TokenSource.
func (o *OAuthToken) Token(ctx context.Context) (string, error) {
	tok, err := o.cfg.Token(ctx)
	if err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}
