package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"
)

const defaultTimeout = 15 * time.Second

// HTTPClient talks to a Mollie-style REST API.
type HTTPClient struct {
	base    *url.URL
	http    *http.Client
	limiter *rate.Limiter
}

// Option customises NewHTTPClient.
type Option func(*options)

type options struct {
	transport *http.Client
	cache     TokenCache
}

// WithBaseHTTPClient sets the client used underneath the OAuth transport.
func WithBaseHTTPClient(c *http.Client) Option {
	return func(o *options) { o.transport = c }
}

// WithTokenCache shares OAuth tokens through cache, e.g. Redis.
func WithTokenCache(c TokenCache) Option {
	return func(o *options) { o.cache = c }
}

func NewHTTPClient(ctx context.Context, cfg Config, opts ...Option) (*HTTPClient, error) {
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" {
		return nil, fmt.Errorf("gateway base url %q invalid", cfg.BaseURL)
	}
	if o.transport != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, o.transport)
	}

	var ts oauth2.TokenSource
	switch {
	case cfg.ClientID != "":
		cc := clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
		}
		ts = cc.TokenSource(ctx)
		if o.cache != nil {
			ts = oauth2.ReuseTokenSource(nil, &cachedTokenSource{
				ctx:   ctx,
				cache: o.cache,
				key:   "payledger:gateway-token:" + cfg.ClientID,
				base:  ts,
			})
		}
	case cfg.APIKey != "":
		ts = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.APIKey, TokenType: "Bearer"})
	default:
		return nil, errors.New("gateway credentials required: api key or oauth client")
	}

	hc := oauth2.NewClient(ctx, ts)
	hc.Timeout = cfg.Timeout
	if hc.Timeout <= 0 {
		hc.Timeout = defaultTimeout
	}

	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &HTTPClient{base: base, http: hc, limiter: rate.NewLimiter(limit, burst)}, nil
}

type wireAmount struct {
	Currency string `json:"currency"`
	Value    string `json:"value"`
}

type wirePayment struct {
	ID       string            `json:"id"`
	Mode     string            `json:"mode"`
	Status   string            `json:"status"`
	Amount   wireAmount        `json:"amount"`
	Metadata map[string]string `json:"metadata"`
	Links    struct {
		Checkout *struct {
			Href string `json:"href"`
		} `json:"checkout"`
	} `json:"_links"`
}

type wireCreate struct {
	Amount      wireAmount        `json:"amount"`
	Description string            `json:"description"`
	RedirectURL string            `json:"redirectUrl"`
	WebhookURL  string            `json:"webhookUrl,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Testmode    bool              `json:"testmode,omitempty"`
}

type wireError struct {
	Status int    `json:"status"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

func (c *HTTPClient) CreatePayment(ctx context.Context, req CreatePaymentRequest) (Payment, error) {
	body, err := json.Marshal(wireCreate{
		Amount:      wireAmount{Currency: req.Currency, Value: req.Amount.StringFixed(2)},
		Description: req.Description,
		RedirectURL: req.RedirectURL,
		WebhookURL:  req.WebhookURL,
		Metadata:    req.Metadata,
		Testmode:    req.Testmode,
	})
	if err != nil {
		return Payment{}, fmt.Errorf("encode payment: %w", err)
	}
	headers := http.Header{}
	if req.IdempotencyKey != "" {
		headers.Set("Idempotency-Key", req.IdempotencyKey)
	}
	var wp wirePayment
	if err := c.do(ctx, http.MethodPost, "/v2/payments", nil, headers, body, &wp); err != nil {
		return Payment{}, err
	}
	return wp.payment()
}

func (c *HTTPClient) GetPayment(ctx context.Context, id string, opts GetOptions) (Payment, error) {
	if strings.TrimSpace(id) == "" {
		return Payment{}, errors.New("gateway: payment id required")
	}
	q := url.Values{}
	if opts.Testmode {
		q.Set("testmode", "true")
	}
	var wp wirePayment
	if err := c.do(ctx, http.MethodGet, "/v2/payments/"+url.PathEscape(id), q, nil, nil, &wp); err != nil {
		return Payment{}, err
	}
	return wp.payment()
}

func (c *HTTPClient) do(ctx context.Context, method, path string, q url.Values, headers http.Header, body []byte, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("gateway rate limit: %w", err)
	}
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	u.RawQuery = q.Encode()

	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), rdr)
	if err != nil {
		return err
	}
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("gateway %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("gateway read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		ge := &Error{StatusCode: resp.StatusCode, Title: http.StatusText(resp.StatusCode)}
		var we wireError
		if json.Unmarshal(data, &we) == nil {
			if we.Title != "" {
				ge.Title = we.Title
			}
			ge.Detail = we.Detail
		}
		return ge
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("gateway malformed response: %w", err)
	}
	return nil
}

func (wp wirePayment) payment() (Payment, error) {
	if wp.ID == "" || wp.Status == "" {
		return Payment{}, errors.New("gateway malformed response: missing id or status")
	}
	p := Payment{
		ID:       wp.ID,
		Status:   wp.Status,
		Currency: wp.Amount.Currency,
		Metadata: wp.Metadata,
		Testmode: wp.Mode == "test",
	}
	if wp.Amount.Value != "" {
		amt, err := decimal.NewFromString(wp.Amount.Value)
		if err != nil {
			return Payment{}, fmt.Errorf("gateway malformed amount %q: %w", wp.Amount.Value, err)
		}
		p.Amount = amt
	}
	if wp.Links.Checkout != nil {
		p.CheckoutURL = wp.Links.Checkout.Href
	}
	return p, nil
}
