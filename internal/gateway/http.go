package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"taskboard/internal/models"
)

// expiredTokenMessage is what the task API answers when it refuses a token.
const expiredTokenMessage = "Invalid or expired token"

// TokenSource supplies the bearer token for each request. An error from
// Token means the session is over.
type TokenSource interface {
	Token() (string, error)
}

type HTTPConfig struct {
	// BaseURL is the API root, e.g. http://localhost:4000/api.
	BaseURL string
	Timeout time.Duration
	// RequestsPerSecond paces outgoing requests. Zero disables pacing.
	RequestsPerSecond float64
	Burst             int
}

func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{
		BaseURL: "http://localhost:4000/api",
		Timeout: 10 * time.Second,
	}
}

// HTTPGateway speaks JSON to the task API over HTTP.
type HTTPGateway struct {
	baseURL string
	client  *http.Client
	tokens  TokenSource
	limiter *rate.Limiter
	logger  *log.Logger
}

func NewHTTPGateway(cfg HTTPConfig, tokens TokenSource, logger *log.Logger) *HTTPGateway {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultHTTPConfig().BaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultHTTPConfig().Timeout
	}
	if logger == nil {
		logger = log.StandardLogger()
	}

	g := &HTTPGateway{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: cfg.Timeout},
		tokens:  tokens,
		logger:  logger,
	}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return g
}

func (g *HTTPGateway) List(ctx context.Context, teamID *string) ([]models.Task, error) {
	query := url.Values{}
	if teamID != nil && *teamID != "" {
		query.Set("teamId", *teamID)
	}

	var tasks []models.Task
	if err := g.do(ctx, OpList, http.MethodGet, "/tasks", query, nil, &tasks); err != nil {
		return nil, err
	}
	if tasks == nil {
		tasks = []models.Task{}
	}
	return tasks, nil
}

func (g *HTTPGateway) Create(ctx context.Context, task models.NewTask) (models.Task, error) {
	var created models.Task
	err := g.do(ctx, OpCreate, http.MethodPost, "/tasks", nil, task, &created)
	return created, err
}

func (g *HTTPGateway) Update(ctx context.Context, id string, patch models.TaskPatch) (models.Task, error) {
	var updated models.Task
	err := g.do(ctx, OpUpdate, http.MethodPatch, "/tasks/"+url.PathEscape(id), nil, patch, &updated)
	return updated, err
}

func (g *HTTPGateway) Delete(ctx context.Context, id string) error {
	return g.do(ctx, OpDelete, http.MethodDelete, "/tasks/"+url.PathEscape(id), nil, nil, nil)
}

func (g *HTTPGateway) do(ctx context.Context, op Op, method, path string, query url.Values, body, out interface{}) error {
	token, err := g.tokens.Token()
	if err != nil {
		g.logger.WithFields(log.Fields{"op": op, "error": err}).Warn("gateway.token.rejected")
		return &Error{Op: op, Message: SessionExpiredMessage, Err: fmt.Errorf("%w: %v", ErrSessionExpired, err)}
	}

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return &Error{Op: op, Message: DefaultErrorMessage, Err: err}
		}
	}

	target := g.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		buf := new(bytes.Buffer)
		if err := json.NewEncoder(buf).Encode(body); err != nil {
			return &Error{Op: op, Message: DefaultErrorMessage, Err: err}
		}
		reader = buf
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return &Error{Op: op, Message: DefaultErrorMessage, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+token)

	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		g.logger.WithFields(log.Fields{"op": op, "method": method, "url": target, "error": err}).Warn("gateway.request.failed")
		return &Error{Op: op, Message: transportMessage(err), Err: err}
	}
	defer resp.Body.Close()

	g.logger.WithFields(log.Fields{
		"op":       op,
		"method":   method,
		"status":   resp.StatusCode,
		"duration": time.Since(start).String(),
	}).Debug("gateway.request")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return responseError(op, resp)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{Op: op, StatusCode: resp.StatusCode, Message: DefaultErrorMessage, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// responseError turns a non-2xx response into an *Error. A refused token is
// reported as ErrSessionExpired.
func responseError(op Op, resp *http.Response) error {
	var body errorBody
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	_ = json.Unmarshal(raw, &body)

	message := body.Message
	if message == "" {
		message = DefaultErrorMessage
	}

	if resp.StatusCode == http.StatusUnauthorized ||
		(resp.StatusCode == http.StatusForbidden && message == expiredTokenMessage) {
		return &Error{Op: op, StatusCode: resp.StatusCode, Message: SessionExpiredMessage, Err: ErrSessionExpired}
	}

	var cause error
	if body.Error != "" {
		cause = errors.New(body.Error)
	}
	return &Error{Op: op, StatusCode: resp.StatusCode, Message: message, Err: cause}
}

func transportMessage(err error) string {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return "Request timed out"
	}
	if errors.Is(err, context.Canceled) {
		return "Request cancelled"
	}
	return DefaultErrorMessage
}
