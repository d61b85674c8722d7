package kledo

import "errors"

// Connection and request errors. Transport failures and provider rejections
// during the token dance wrap ErrTokenExchangeFailed / ErrRefreshFailed; a
// well-formed API response carrying success:false is not an error at all and
// is reported through Response.Rejected.
var (
	// ErrNotConfigured blocks every OAuth operation until the client id,
	// client secret, and API endpoint are all set.
	ErrNotConfigured = errors.New("kledo: oauth client is not configured")

	// ErrStateMismatch means the callback state did not match the stored
	// CSRF state.
	ErrStateMismatch = errors.New("kledo: oauth state parameter mismatch")

	// ErrEmptyCode means the callback carried no authorization code.
	ErrEmptyCode = errors.New("kledo: empty authorization code")

	// ErrTokenExchangeFailed means the provider rejected the code exchange
	// or the exchange call failed at the transport level.
	ErrTokenExchangeFailed = errors.New("kledo: authorization code exchange failed")

	// ErrNoRefreshToken means a refresh was attempted with no stored
	// refresh token.
	ErrNoRefreshToken = errors.New("kledo: no refresh token stored")

	// ErrRefreshFailed means the refresh grant was rejected or failed at the
	// transport level; the previously stored tokens are left untouched.
	ErrRefreshFailed = errors.New("kledo: access token refresh failed")

	// ErrNotConnected means an API call was attempted without a stored
	// access token. No network call is made.
	ErrNotConnected = errors.New("kledo: not connected")

	// ErrTransport wraps network-level failures on API calls.
	ErrTransport = errors.New("kledo: transport error")
)
