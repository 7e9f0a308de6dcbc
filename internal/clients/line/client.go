package line

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/lineflow-backend/internal/pkg/httpx"
	"github.com/yungbote/lineflow-backend/internal/pkg/linemsg"
	"github.com/yungbote/lineflow-backend/internal/platform/envutil"
	"github.com/yungbote/lineflow-backend/internal/platform/logger"
)

// Client is the subset of the LINE Messaging API the bot uses.
type Client interface {
	Reply(ctx context.Context, replyToken string, messages []linemsg.Message) error
	Push(ctx context.Context, to string, messages []linemsg.Message) error
	GetProfile(ctx context.Context, userID string) (*Profile, error)
	FollowerIDs(ctx context.Context, start string) (*FollowerPage, error)
}

type Config struct {
	ChannelAccessToken string
	ChannelSecret      string
	BaseURL            string
	Timeout            time.Duration
	MaxRetries         int
}

func ConfigFromEnv() Config {
	return Config{
		ChannelAccessToken: envutil.String("LINE_CHANNEL_ACCESS_TOKEN", ""),
		ChannelSecret:      envutil.String("LINE_CHANNEL_SECRET", ""),
		BaseURL:            envutil.String("LINE_API_BASE_URL", ""),
		Timeout:            time.Duration(envutil.Int("LINE_TIMEOUT_SECONDS", 15)) * time.Second,
		MaxRetries:         envutil.Int("LINE_MAX_RETRIES", 3),
	}
}

func NewFromEnv(log *logger.Logger) (Client, error) {
	return New(log, ConfigFromEnv())
}

func New(log *logger.Logger, cfg Config) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	cfg.ChannelAccessToken = strings.TrimSpace(cfg.ChannelAccessToken)
	if cfg.ChannelAccessToken == "" {
		return nil, fmt.Errorf("missing LINE_CHANNEL_ACCESS_TOKEN")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://api.line.me"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	return &client{
		log:        log.With("client", "LineClient"),
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		maxRetries: cfg.MaxRetries,
		backoff:    time.Second,
	}, nil
}

type client struct {
	log        *logger.Logger
	cfg        Config
	httpClient *http.Client
	maxRetries int
	backoff    time.Duration
}

type Profile struct {
	UserID        string `json:"userId"`
	DisplayName   string `json:"displayName"`
	PictureURL    string `json:"pictureUrl,omitempty"`
	StatusMessage string `json:"statusMessage,omitempty"`
	Language      string `json:"language,omitempty"`
}

type FollowerPage struct {
	UserIDs []string `json:"userIds"`
	Next    string   `json:"next,omitempty"`
}

// MaxMessagesPerRequest is the API limit for reply and push.
const MaxMessagesPerRequest = 5

func (c *client) Reply(ctx context.Context, replyToken string, messages []linemsg.Message) error {
	replyToken = strings.TrimSpace(replyToken)
	if replyToken == "" {
		return fmt.Errorf("line: reply token required")
	}
	if err := checkMessages(messages); err != nil {
		return err
	}
	body := map[string]any{"replyToken": replyToken, "messages": messages}
	// reply tokens are single use, so a reply is never retried
	_, _, err := c.doOnce(ctx, http.MethodPost, c.cfg.BaseURL+"/v2/bot/message/reply", body, "")
	return err
}

func (c *client) Push(ctx context.Context, to string, messages []linemsg.Message) error {
	to = strings.TrimSpace(to)
	if to == "" {
		return fmt.Errorf("line: recipient required")
	}
	if err := checkMessages(messages); err != nil {
		return err
	}
	body := map[string]any{"to": to, "messages": messages}
	// the same retry key on every attempt lets the API drop duplicate pushes
	retryKey := uuid.NewString()
	_, err := c.do(ctx, http.MethodPost, c.cfg.BaseURL+"/v2/bot/message/push", body, retryKey)
	return err
}

func (c *client) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("line: user id required")
	}
	raw, err := c.do(ctx, http.MethodGet, c.cfg.BaseURL+"/v2/bot/profile/"+url.PathEscape(userID), nil, "")
	if err != nil {
		return nil, err
	}
	var p Profile
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("line: decode profile: %w", err)
	}
	return &p, nil
}

func (c *client) FollowerIDs(ctx context.Context, start string) (*FollowerPage, error) {
	q := url.Values{}
	q.Set("limit", "1000")
	if start != "" {
		q.Set("start", start)
	}
	raw, err := c.do(ctx, http.MethodGet, c.cfg.BaseURL+"/v2/bot/followers/ids?"+q.Encode(), nil, "")
	if err != nil {
		return nil, err
	}
	var page FollowerPage
	if err := json.Unmarshal(raw, &page); err != nil {
		return nil, fmt.Errorf("line: decode followers: %w", err)
	}
	return &page, nil
}

func checkMessages(messages []linemsg.Message) error {
	if len(messages) == 0 {
		return fmt.Errorf("line: at least one message required")
	}
	if len(messages) > MaxMessagesPerRequest {
		return fmt.Errorf("line: at most %d messages per request, got %d", MaxMessagesPerRequest, len(messages))
	}
	return nil
}

// ---------- HTTP / retry helpers ----------

type apiError struct {
	Message string `json:"message"`
	Details []struct {
		Message  string `json:"message"`
		Property string `json:"property"`
	} `json:"details,omitempty"`
}

type HTTPError struct {
	StatusCode int
	Body       string
	APIError   *apiError
}

func (e *HTTPError) Error() string {
	if e == nil {
		return "line: <nil error>"
	}
	if e.APIError != nil && strings.TrimSpace(e.APIError.Message) != "" {
		if len(e.APIError.Details) > 0 {
			d := e.APIError.Details[0]
			return fmt.Sprintf("line http %d: %s (%s: %s)", e.StatusCode, e.APIError.Message, d.Property, d.Message)
		}
		return fmt.Sprintf("line http %d: %s", e.StatusCode, e.APIError.Message)
	}
	msg := strings.TrimSpace(e.Body)
	if msg == "" {
		msg = "<empty body>"
	}
	if len(msg) > 2000 {
		msg = msg[:2000] + "..."
	}
	return fmt.Sprintf("line http %d: %s", e.StatusCode, msg)
}

func (e *HTTPError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

func (c *client) do(ctx context.Context, method, urlStr string, body any, retryKey string) ([]byte, error) {
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		raw, resp, err := c.doOnce(ctx, method, urlStr, body, retryKey)
		if err == nil {
			return raw, nil
		}
		// 409 on a retried push means an earlier attempt was accepted
		if retryKey != "" && attempt > 0 && resp != nil && resp.StatusCode == http.StatusConflict {
			return raw, nil
		}
		if !httpx.IsRetryableError(err) || attempt == c.maxRetries {
			return nil, err
		}

		sleepFor := httpx.RetryAfterDuration(resp, httpx.Backoff(c.backoff, 10*time.Second, attempt+1), 10*time.Second)
		sleepFor = httpx.JitterSleep(sleepFor)

		c.log.Warn("LINE request retrying",
			"url", urlStr,
			"attempt", attempt+1,
			"max_retries", c.maxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)

		if err := httpx.SleepContext(ctx, sleepFor); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("unreachable retry loop")
}

func (c *client) doOnce(ctx context.Context, method, urlStr string, body any, retryKey string) ([]byte, *http.Response, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, nil, fmt.Errorf("line: encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, urlStr, reader)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.ChannelAccessToken)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if retryKey != "" {
		req.Header.Set("X-Line-Retry-Key", retryKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, resp, err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return nil, resp, readErr
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var ae apiError
		if json.Unmarshal(raw, &ae) == nil && strings.TrimSpace(ae.Message) != "" {
			return nil, resp, &HTTPError{StatusCode: resp.StatusCode, Body: string(raw), APIError: &ae}
		}
		return nil, resp, &HTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return raw, resp, nil
}
