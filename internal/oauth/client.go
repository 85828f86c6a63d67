package oauth

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/muurk/psddp/internal/logging"
	"github.com/muurk/psddp/internal/version"
)

const (
	// ClientID is the Remote Play application client id
	ClientID = "ba495a24-818c-472b-b12d-ff231c1b5745"

	// ClientSecret is the Remote Play application client secret
	ClientSecret = "mvaiZkRsAsI1IBkY"

	// AuthURL is the PSN authorization endpoint
	AuthURL = "https://auth.api.sonyentertainmentnetwork.com/2.0/oauth/authorize"

	// TokenURL is the PSN token endpoint; account lookups use TokenURL/<token>
	TokenURL = "https://auth.api.sonyentertainmentnetwork.com/2.0/oauth/token"

	// RedirectURL is where PSN sends the browser after login
	RedirectURL = "https://remoteplay.dl.playstation.net/remoteplay/redirect"

	// Scope requested for the token
	Scope = "psn:clientapp"

	// DefaultTimeout bounds each HTTP request
	DefaultTimeout = 3 * time.Second
)

// Encodings accepted by FormatUserID
const (
	EncodingBase64 = "base64"
	EncodingSHA256 = "sha256"
)

// loginParams are the extra query parameters the PSN login page expects
var loginParams = map[string]string{
	"service_entity":     "urn:service-entity:psn",
	"request_locale":     "en_US",
	"ui":                 "pr",
	"service_logo":       "ps",
	"layout_type":        "popup",
	"smcid":              "remoteplay",
	"prompt":             "always",
	"PlatformPrivacyWs1": "minimal",
	"no_captcha":         "true",
}

// Account is the result of a successful login
type Account struct {
	UserID     string         // Numeric PSN account id
	UserRPID   string         // Base64 of the little-endian account id
	Credential string         // Hex SHA-256 of the account id, used in DDP requests
	Info       map[string]any // Full account response
}

// Client performs the PSN authorization code flow
type Client struct {
	// Config holds the OAuth2 endpoints and client credentials
	Config *oauth2.Config

	// HTTPClient is the underlying HTTP client
	HTTPClient *http.Client
}

// NewClient creates a client for the PSN endpoints
func NewClient() *Client {
	return &Client{
		Config: &oauth2.Config{
			ClientID:     ClientID,
			ClientSecret: ClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:   AuthURL,
				TokenURL:  TokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
			RedirectURL: RedirectURL,
			Scopes:      []string{Scope},
		},
		HTTPClient: &http.Client{Timeout: DefaultTimeout},
	}
}

// LoginURL returns the page the user opens to sign in.
func (c *Client) LoginURL() string {
	opts := make([]oauth2.AuthCodeOption, 0, len(loginParams))
	for k, v := range loginParams {
		opts = append(opts, oauth2.SetAuthURLParam(k, v))
	}
	return c.Config.AuthCodeURL("", opts...)
}

// ParseRedirectURL extracts the authorization code from the URL the browser
// was redirected to.
func ParseRedirectURL(redirectURL string) (string, error) {
	u, err := url.Parse(redirectURL)
	if err != nil {
		return "", &AuthError{Type: ErrTypeRedirect, Message: "invalid redirect URL", Err: err}
	}
	code := u.Query().Get("code")
	if code == "" {
		return "", &AuthError{Type: ErrTypeRedirect, Message: "code not in query"}
	}
	if len(code) <= 1 {
		return "", &AuthError{Type: ErrTypeRedirect, Message: "code is too short"}
	}
	logging.Debug("Got auth code", zap.Int("length", len(code)))
	return code, nil
}

// ExchangeCode trades an authorization code for an access token.
func (c *Client) ExchangeCode(ctx context.Context, code string) (string, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.HTTPClient)
	token, err := c.Config.Exchange(ctx, code)
	if err != nil {
		authErr := &AuthError{Type: ErrTypeToken, Message: "error getting token", Err: err}
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil {
			authErr.StatusCode = re.Response.StatusCode
		}
		return "", authErr
	}
	return token.AccessToken, nil
}

// FetchAccount looks up the account behind an access token and derives the
// DDP credential from it.
func (c *Client) FetchAccount(ctx context.Context, accessToken string) (*Account, error) {
	endpoint := c.Config.Endpoint.TokenURL + "/" + url.PathEscape(accessToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &AuthError{Type: ErrTypeAccount, Message: "failed to build request", Err: err}
	}
	req.SetBasicAuth(c.Config.ClientID, c.Config.ClientSecret)
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, &AuthError{Type: ErrTypeAccount, Message: "account request failed", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &AuthError{Type: ErrTypeParse, Message: "failed to read response", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		logging.Error("Error getting account", zap.Int("status", resp.StatusCode))
		return nil, &AuthError{
			Type:       ErrTypeAccount,
			Message:    fmt.Sprintf("unexpected status %d", resp.StatusCode),
			StatusCode: resp.StatusCode,
		}
	}

	var info map[string]any
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&info); err != nil {
		return nil, &AuthError{Type: ErrTypeParse, Message: "invalid account response", Err: err}
	}

	userID := userIDString(info["user_id"])
	if userID == "" {
		return nil, &AuthError{Type: ErrTypeParse, Message: "account response has no user_id"}
	}

	rpid, err := FormatUserID(userID, EncodingBase64)
	if err != nil {
		return nil, &AuthError{Type: ErrTypeParse, Message: "user_id is not numeric", Err: err}
	}
	credential, _ := FormatUserID(userID, EncodingSHA256)

	return &Account{
		UserID:     userID,
		UserRPID:   rpid,
		Credential: credential,
		Info:       info,
	}, nil
}

// GetUserAccount runs the whole flow from a redirect URL to an Account.
func (c *Client) GetUserAccount(ctx context.Context, redirectURL string) (*Account, error) {
	code, err := ParseRedirectURL(redirectURL)
	if err != nil {
		return nil, err
	}
	token, err := c.ExchangeCode(ctx, code)
	if err != nil {
		return nil, err
	}
	return c.FetchAccount(ctx, token)
}

// FormatUserID encodes a numeric account id. EncodingBase64 yields the base64
// of its 8-byte little-endian form; EncodingSHA256 yields the hex SHA-256 of
// the decimal string.
func FormatUserID(userID, encoding string) (string, error) {
	switch encoding {
	case EncodingSHA256:
		sum := sha256.Sum256([]byte(userID))
		return hex.EncodeToString(sum[:]), nil
	case EncodingBase64:
		n, err := strconv.ParseUint(userID, 10, 64)
		if err != nil {
			return "", fmt.Errorf("failed to parse user id: %w", err)
		}
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], n)
		return base64.StdEncoding.EncodeToString(buf[:]), nil
	default:
		return "", fmt.Errorf("%w: %q (use %s or %s)", ErrInvalidEncoding, encoding, EncodingBase64, EncodingSHA256)
	}
}

// userIDString accepts the user id as a JSON string or number.
func userIDString(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case json.Number:
		return id.String()
	default:
		return ""
	}
}
