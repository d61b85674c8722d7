package kledo

import (
	"context"
	"crypto/rand"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/storeledger/kledo-sync/internal/store"
)

const (
	// stateTTL bounds one authorization round trip.
	stateTTL = 5 * time.Minute

	// requestTimeout applies to every outbound call, token endpoints included.
	requestTimeout = 10 * time.Second
)

// Connection owns the OAuth2 authorization-code lifecycle against one Kledo
// tenant: authorization URL construction, code exchange, refresh, and
// disconnect. Credentials come from the settings store; tokens and CSRF state
// go to their stores. The connection is "configured" when all three OAuth
// credentials are present and "connected" when an access token is stored.
type Connection struct {
	settings    *store.SettingsStore
	tokens      *store.TokenStore
	states      store.StateStore
	redirectURI string
	httpClient  *http.Client
	logger      *zap.Logger
	now         func() time.Time
}

// NewConnection creates the connection manager. httpClient may be nil, in
// which case a default client with the fixed request timeout is used.
func NewConnection(settings *store.SettingsStore, tokens *store.TokenStore, states store.StateStore, redirectURI string, httpClient *http.Client, logger *zap.Logger) *Connection {
	if httpClient == nil {
		httpClient = NewHTTPClient(false)
	}
	return &Connection{
		settings:    settings,
		tokens:      tokens,
		states:      states,
		redirectURI: redirectURI,
		httpClient:  httpClient,
		logger:      logger,
		now:         time.Now,
	}
}

// NewHTTPClient builds the outbound HTTP client. TLS verification is on
// unless insecure is explicitly set.
func NewHTTPClient(insecure bool) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if insecure {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return &http.Client{
		Timeout:   requestTimeout,
		Transport: transport,
	}
}

// IsConfigured reports whether client id, client secret, and API endpoint are
// all set.
func (c *Connection) IsConfigured(ctx context.Context) bool {
	cs, err := c.settings.ConnectionSettings(ctx)
	if err != nil {
		c.logger.Error("Failed to load connection settings", zap.Error(err))
		return false
	}
	return cs.IsConfigured()
}

// IsConnected reports whether an access token is stored.
func (c *Connection) IsConnected(ctx context.Context) bool {
	ts, err := c.tokens.Tokens(ctx)
	if err != nil {
		c.logger.Error("Failed to load tokens", zap.Error(err))
		return false
	}
	return ts.AccessToken != ""
}

// AccessToken returns the stored access token, or ErrNotConnected.
func (c *Connection) AccessToken(ctx context.Context) (string, error) {
	ts, err := c.tokens.Tokens(ctx)
	if err != nil {
		return "", err
	}
	if ts.AccessToken == "" {
		return "", ErrNotConnected
	}
	return ts.AccessToken, nil
}

// AuthorizationURL builds the browser redirect target for the authorization
// step. It reuses the stored CSRF state when one is still live and generates
// a fresh one otherwise. No network call is made.
func (c *Connection) AuthorizationURL(ctx context.Context) (string, error) {
	cs, err := c.settings.ConnectionSettings(ctx)
	if err != nil {
		return "", err
	}
	if !cs.IsConfigured() {
		return "", ErrNotConfigured
	}

	state, err := c.ensureState(ctx)
	if err != nil {
		return "", err
	}

	query := url.Values{}
	query.Set("client_id", cs.ClientID)
	query.Set("redirect_uri", c.redirectURI)
	query.Set("response_type", "code")
	query.Set("scope", "")
	query.Set("state", state)

	return cs.BaseURL() + "/oauth/authorize?" + query.Encode(), nil
}

// ExchangeCode converts a callback authorization code into a stored token
// set. The CSRF state is checked first: when a state is stored and the
// callback value differs, the exchange fails with ErrStateMismatch and
// nothing is persisted. Once an exchange succeeds the state is consumed, so a
// replayed callback finds no stored state, skips the mismatch check, and
// fails at the provider instead.
func (c *Connection) ExchangeCode(ctx context.Context, code, state string) error {
	cs, err := c.settings.ConnectionSettings(ctx)
	if err != nil {
		return err
	}
	if !cs.IsConfigured() {
		return ErrNotConfigured
	}

	stored, err := c.states.State(ctx)
	if err != nil {
		return err
	}
	if stored != "" && state != stored {
		return ErrStateMismatch
	}
	if code == "" {
		return ErrEmptyCode
	}

	token, err := c.oauthConfig(cs).Exchange(c.withHTTPClient(ctx), code)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTokenExchangeFailed, err)
	}

	if err := c.tokens.Save(ctx, store.TokenSet{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.Expiry,
	}); err != nil {
		return err
	}

	if err := c.states.DeleteState(ctx); err != nil {
		c.logger.Warn("Failed to delete oauth state after exchange", zap.Error(err))
	}

	c.logger.Info("Kledo connection established")
	return nil
}

// Refresh exchanges the stored refresh token for a new token set. On failure
// the stored tokens are left untouched.
func (c *Connection) Refresh(ctx context.Context) error {
	cs, err := c.settings.ConnectionSettings(ctx)
	if err != nil {
		return err
	}
	if !cs.IsConfigured() {
		return ErrNotConfigured
	}

	ts, err := c.tokens.Tokens(ctx)
	if err != nil {
		return err
	}
	if ts.RefreshToken == "" {
		return ErrNoRefreshToken
	}

	source := c.oauthConfig(cs).TokenSource(c.withHTTPClient(ctx), &oauth2.Token{
		RefreshToken: ts.RefreshToken,
	})
	token, err := source.Token()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRefreshFailed, err)
	}

	if err := c.tokens.Save(ctx, store.TokenSet{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.Expiry,
	}); err != nil {
		return err
	}

	c.logger.Info("Kledo access token refreshed")
	return nil
}

// Disconnect clears the full token set.
func (c *Connection) Disconnect(ctx context.Context) error {
	if err := c.tokens.Clear(ctx); err != nil {
		return err
	}
	c.logger.Info("Kledo connection removed")
	return nil
}

// ExpiryDescription renders the token expiry for the admin UI: "Does not
// expire" when no expiry is stored, "Expired" when past, otherwise the date
// with a relative remainder.
func (c *Connection) ExpiryDescription(ctx context.Context) string {
	ts, err := c.tokens.Tokens(ctx)
	if err != nil {
		c.logger.Error("Failed to load tokens", zap.Error(err))
		return ""
	}

	if ts.ExpiresAt.IsZero() {
		return "Does not expire"
	}

	now := c.now()
	if now.After(ts.ExpiresAt) {
		return "Expired"
	}

	return fmt.Sprintf("%s (%s)", ts.ExpiresAt.Format("January 2, 2006"), humanDuration(ts.ExpiresAt.Sub(now)))
}

func (c *Connection) ensureState(ctx context.Context) (string, error) {
	state, err := c.states.State(ctx)
	if err != nil {
		return "", err
	}
	if state != "" {
		return state, nil
	}

	state, err = randomState(30)
	if err != nil {
		return "", fmt.Errorf("failed to generate oauth state: %w", err)
	}
	if err := c.states.SaveState(ctx, state, stateTTL); err != nil {
		return "", err
	}
	return state, nil
}

func (c *Connection) oauthConfig(cs store.ConnectionSettings) *oauth2.Config {
	base := cs.BaseURL()
	return &oauth2.Config{
		ClientID:     cs.ClientID,
		ClientSecret: cs.ClientSecret,
		RedirectURL:  c.redirectURI,
		Endpoint: oauth2.Endpoint{
			AuthURL:   base + "/oauth/authorize",
			TokenURL:  base + "/oauth/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// withHTTPClient routes the oauth2 package's token calls through our client,
// keeping the fixed timeout and TLS settings.
func (c *Connection) withHTTPClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

func randomState(bytes int) (string, error) {
	buf := make([]byte, bytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// humanDuration renders a coarse relative time for the expiry description.
func humanDuration(d time.Duration) string {
	switch {
	case d < 2*time.Minute:
		return "1 minute"
	case d < time.Hour:
		return fmt.Sprintf("%d minutes", int(d.Minutes()))
	case d < 2*time.Hour:
		return "1 hour"
	case d < 24*time.Hour:
		return fmt.Sprintf("%d hours", int(d.Hours()))
	case d < 48*time.Hour:
		return "1 day"
	default:
		return fmt.Sprintf("%d days", int(d.Hours()/24))
	}
}
