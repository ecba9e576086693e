// Package amigos is a Go client for the AmigosApp backend.
//
// It covers the REST API (auth, matches, candidates, requests, message
// history, uploads) and the realtime channel used for live chat and match
// notifications.
//
// Example:
//
//	client := amigos.NewClient("")
//	login, _ := client.Login(ctx, "ana@example.com", "secret")
//	client.SetToken(login.Token)
//
//	session := amigos.NewSession(client, login.User.ID, nil)
//	_ = session.Start(ctx)
//	defer session.Close()
//
//	conv, _ := session.OpenConversation(ctx, amigos.Peer{ID: "peer-id"})
//	conv.SendText("hola!")
package amigos

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const (
	DefaultBaseURL = "https://amigosapp-backend.onrender.com/api"
	DefaultTimeout = 30 * time.Second
)

// Client talks to the AmigosApp REST API. It is safe for concurrent use.
type Client struct {
	baseURL string
	rest    *resty.Client
	log     *zap.Logger
}

type ClientOption func(*Client)

func WithBaseURL(url string) ClientOption {
	return func(c *Client) { c.baseURL = strings.TrimRight(url, "/") }
}

func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) { c.rest.SetTimeout(timeout) }
}

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.rest = resty.NewWithClient(hc) }
}

// WithLogger sets the logger used by the client and by every realtime
// component created from it. Defaults to a no-op logger.
func WithLogger(log *zap.Logger) ClientOption {
	return func(c *Client) { c.log = log }
}

// NewClient creates an AmigosApp client. token is the bearer credential from
// a prior login; pass "" for unauthenticated calls (login, register).
func NewClient(token string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		rest:    resty.New().SetTimeout(DefaultTimeout),
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.rest.SetBaseURL(c.baseURL)
	if token != "" {
		c.rest.SetAuthToken(token)
	}
	return c
}

// SetToken sets or replaces the bearer credential, e.g. after a login.
func (c *Client) SetToken(token string) {
	c.rest.SetAuthToken(token)
}

// BaseURL returns the configured API base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Logger returns the client's logger.
func (c *Client) Logger() *zap.Logger {
	return c.log
}

func apiErr(resp *resty.Response) error {
	if e, ok := resp.Error().(*APIError); ok && e != nil && e.Msg != "" {
		e.StatusCode = resp.StatusCode()
		return e
	}
	return &APIError{StatusCode: resp.StatusCode(), Msg: http.StatusText(resp.StatusCode())}
}

// ============================================================================
// Auth
// ============================================================================

// Login exchanges credentials for a token and the account profile. The token
// is installed on the client for subsequent calls.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	var out LoginResult
	resp, err := c.rest.R().
		SetContext(ctx).
		SetBody(map[string]string{"email": email, "password": password}).
		SetResult(&out).
		SetError(&APIError{}).
		Post("/auth/login")
	if err != nil {
		return nil, fmt.Errorf("login request: %w", err)
	}
	if resp.IsError() {
		return nil, apiErr(resp)
	}
	c.SetToken(out.Token)
	return &out, nil
}

// Register creates an account. The caller still has to log in afterwards.
func (c *Client) Register(ctx context.Context, name, email, password, avatarURL string) error {
	resp, err := c.rest.R().
		SetContext(ctx).
		SetBody(map[string]string{
			"nombre":   name,
			"email":    email,
			"password": password,
			"imagen":   avatarURL,
		}).
		SetError(&APIError{}).
		Post("/auth/registrar")
	if err != nil {
		return fmt.Errorf("register request: %w", err)
	}
	if resp.IsError() {
		return apiErr(resp)
	}
	return nil
}

// VerifyAccount confirms a fresh registration with the 6-digit code the
// backend mailed out.
func (c *Client) VerifyAccount(ctx context.Context, email, code string) error {
	resp, err := c.rest.R().
		SetContext(ctx).
		SetBody(map[string]string{"email": email, "codigo": code}).
		SetError(&APIError{}).
		Post("/auth/verificar")
	if err != nil {
		return fmt.Errorf("verify request: %w", err)
	}
	if resp.IsError() {
		return apiErr(resp)
	}
	return nil
}

// ForgotPassword asks the backend to mail a reset code to the account.
func (c *Client) ForgotPassword(ctx context.Context, email string) error {
	resp, err := c.rest.R().
		SetContext(ctx).
		SetBody(map[string]string{"email": email}).
		SetError(&APIError{}).
		Post("/auth/olvide-password")
	if err != nil {
		return fmt.Errorf("forgot password request: %w", err)
	}
	if resp.IsError() {
		return apiErr(resp)
	}
	return nil
}

// CheckResetToken validates a password reset code before the new password is
// chosen.
func (c *Client) CheckResetToken(ctx context.Context, email, token string) error {
	resp, err := c.rest.R().
		SetContext(ctx).
		SetBody(map[string]string{"email": email, "token": token}).
		SetError(&APIError{}).
		Post("/auth/comprobar-token")
	if err != nil {
		return fmt.Errorf("check reset token request: %w", err)
	}
	if resp.IsError() {
		return apiErr(resp)
	}
	return nil
}

// NewPassword completes a password reset with a previously validated token.
func (c *Client) NewPassword(ctx context.Context, email, token, password string) error {
	resp, err := c.rest.R().
		SetContext(ctx).
		SetBody(map[string]string{"email": email, "token": token, "password": password}).
		SetError(&APIError{}).
		Post("/auth/nuevo-password")
	if err != nil {
		return fmt.Errorf("new password request: %w", err)
	}
	if resp.IsError() {
		return apiErr(resp)
	}
	return nil
}

// UpdateProfile patches the account profile and returns the updated record.
func (c *Client) UpdateProfile(ctx context.Context, update ProfileUpdate) (*User, error) {
	var out ProfileResult
	resp, err := c.rest.R().
		SetContext(ctx).
		SetBody(update).
		SetResult(&out).
		SetError(&APIError{}).
		Put("/auth/perfil")
	if err != nil {
		return nil, fmt.Errorf("update profile request: %w", err)
	}
	if resp.IsError() {
		return nil, apiErr(resp)
	}
	return &out.User, nil
}

// DeleteAccount permanently removes the account. The stored token is invalid
// afterwards.
func (c *Client) DeleteAccount(ctx context.Context) error {
	resp, err := c.rest.R().
		SetContext(ctx).
		SetError(&APIError{}).
		Delete("/auth/perfil")
	if err != nil {
		return fmt.Errorf("delete account request: %w", err)
	}
	if resp.IsError() {
		return apiErr(resp)
	}
	return nil
}

// ============================================================================
// Matching
// ============================================================================

// Matches lists the users the account has matched with.
func (c *Client) Matches(ctx context.Context) ([]User, error) {
	var out []User
	resp, err := c.rest.R().
		SetContext(ctx).
		SetResult(&out).
		SetError(&APIError{}).
		Get("/app/matches")
	if err != nil {
		return nil, fmt.Errorf("matches request: %w", err)
	}
	if resp.IsError() {
		return nil, apiErr(resp)
	}
	return out, nil
}

// Candidates lists profiles available for a like/pass decision.
func (c *Client) Candidates(ctx context.Context) ([]User, error) {
	var out []User
	resp, err := c.rest.R().
		SetContext(ctx).
		SetResult(&out).
		SetError(&APIError{}).
		Get("/app/candidatos")
	if err != nil {
		return nil, fmt.Errorf("candidates request: %w", err)
	}
	if resp.IsError() {
		return nil, apiErr(resp)
	}
	return out, nil
}

// Like posts a like decision for a candidate.
func (c *Client) Like(ctx context.Context, candidateID string) error {
	resp, err := c.rest.R().
		SetContext(ctx).
		SetBody(map[string]string{"idCandidato": candidateID}).
		SetError(&APIError{}).
		Post("/app/like")
	if err != nil {
		return fmt.Errorf("like request: %w", err)
	}
	if resp.IsError() {
		return apiErr(resp)
	}
	return nil
}

// Requests lists pending friend requests. Its length is the authoritative
// unseen count used to reseed the notification counter on session start.
func (c *Client) Requests(ctx context.Context) ([]Request, error) {
	var out []Request
	resp, err := c.rest.R().
		SetContext(ctx).
		SetResult(&out).
		SetError(&APIError{}).
		Get("/app/solicitudes")
	if err != nil {
		return nil, fmt.Errorf("requests request: %w", err)
	}
	if resp.IsError() {
		return nil, apiErr(resp)
	}
	return out, nil
}

// Respond accepts or rejects a pending request. action is ActionAccept or
// ActionReject.
func (c *Client) Respond(ctx context.Context, candidateID, action string) error {
	resp, err := c.rest.R().
		SetContext(ctx).
		SetBody(map[string]string{"idCandidato": candidateID, "accion": action}).
		SetError(&APIError{}).
		Post("/app/solicitudes")
	if err != nil {
		return fmt.Errorf("respond request: %w", err)
	}
	if resp.IsError() {
		return apiErr(resp)
	}
	return nil
}

// Unmatch dissolves an existing match. The shared conversation becomes
// inaccessible on both sides.
func (c *Client) Unmatch(ctx context.Context, peerID string) error {
	resp, err := c.rest.R().
		SetContext(ctx).
		SetBody(map[string]string{"idUsuario": peerID}).
		SetError(&APIError{}).
		Post("/app/eliminarmatch")
	if err != nil {
		return fmt.Errorf("unmatch request: %w", err)
	}
	if resp.IsError() {
		return apiErr(resp)
	}
	return nil
}

// ============================================================================
// Messages & uploads
// ============================================================================

// Messages fetches the persisted transcript with one peer, oldest first.
func (c *Client) Messages(ctx context.Context, peerID string) ([]Message, error) {
	var out []Message
	resp, err := c.rest.R().
		SetContext(ctx).
		SetResult(&out).
		SetError(&APIError{}).
		Get("/app/mensajes/" + peerID)
	if err != nil {
		return nil, fmt.Errorf("messages request: %w", err)
	}
	if resp.IsError() {
		return nil, apiErr(resp)
	}
	return out, nil
}

// Upload sends image bytes to the backend and returns the public URL. mime
// may be empty; the backend sniffs the content.
func (c *Client) Upload(ctx context.Context, fileName, mime string, data []byte) (string, error) {
	if fileName == "" {
		fileName = "chat_img.jpg"
	}
	req := c.rest.R().
		SetContext(ctx).
		SetError(&APIError{})
	if mime != "" {
		req.SetMultipartField("imagen", fileName, mime, bytes.NewReader(data))
	} else {
		req.SetFileReader("imagen", fileName, bytes.NewReader(data))
	}
	var out UploadResult
	resp, err := req.SetResult(&out).Post("/upload")
	if err != nil {
		return "", fmt.Errorf("upload request: %w", err)
	}
	if resp.IsError() {
		return "", apiErr(resp)
	}
	if out.URL == "" {
		return "", fmt.Errorf("upload response missing url")
	}
	return out.URL, nil
}
