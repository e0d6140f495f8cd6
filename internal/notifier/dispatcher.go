package notifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"hoststatus/internal/ratelimiter"
)

const (
	defaultDeliveryTimeout = 10 * time.Second
	maxErrorBodyChars      = 400
)

type Status string

const (
	StatusDelivered Status = "delivered"
	StatusFailed    Status = "failed"
)

type OverallStatus string

const (
	AllDelivered    OverallStatus = "all_delivered"
	PartiallyFailed OverallStatus = "partially_failed"
)

type ErrorKind string

const (
	ErrorKindNetworkFailure  ErrorKind = "network_failure"
	ErrorKindChannelRejected ErrorKind = "channel_rejected"
)

// DeliveryError describes why a single chunk was not delivered.
type DeliveryError struct {
	Kind       ErrorKind
	StatusCode int
	Body       string
	Cause      error
}

func (e *DeliveryError) Error() string {
	if e == nil {
		return "<nil>"
	}

	parts := make([]string, 0, 4)
	parts = append(parts, "delivery error", string(e.Kind))

	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.StatusCode))
	}
	if body := strings.TrimSpace(e.Body); body != "" {
		parts = append(parts, body)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}

	return strings.Join(parts, ": ")
}

func (e *DeliveryError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Outcome is the result of the single delivery attempt for one chunk.
type Outcome struct {
	ChunkIndex  int
	Status      Status
	HTTPStatus  int
	ErrorKind   ErrorKind
	ErrorDetail string
	Duration    time.Duration
}

// Delivery holds per-chunk outcomes in chunk order.
type Delivery struct {
	Outcomes []Outcome
	Status   OverallStatus
}

func (d Delivery) Failed() int {
	failed := 0
	for _, outcome := range d.Outcomes {
		if outcome.Status != StatusDelivered {
			failed++
		}
	}
	return failed
}

// noRedirects hands a 3xx back as the response, so it is judged like any
// other non-204 status.
var noRedirects = resty.RedirectPolicyFunc(func(*http.Request, []*http.Request) error {
	return http.ErrUseLastResponse
})

type webhookRequest struct {
	Content string `json:"content"`
}

// Dispatcher posts chunks to a Discord-compatible webhook, one at a time.
type Dispatcher struct {
	client      *resty.Client
	timeout     time.Duration
	rateLimiter *ratelimiter.RateLimiter
	log         *slog.Logger
}

// Option configures the dispatcher.
type Option func(*Dispatcher)

// WithClient replaces the HTTP client. Retries and redirects are always disabled.
func WithClient(client *resty.Client) Option {
	return func(d *Dispatcher) {
		if client != nil {
			d.client = client
		}
	}
}

// WithTimeout bounds each chunk delivery.
func WithTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// WithRateLimiter spaces consecutive chunk deliveries.
func WithRateLimiter(rl *ratelimiter.RateLimiter) Option {
	return func(d *Dispatcher) {
		d.rateLimiter = rl
	}
}

func NewDispatcher(log *slog.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		client:  resty.New(),
		timeout: defaultDeliveryTimeout,
		log:     log,
	}
	for _, opt := range opts {
		opt(d)
	}

	if d.client.GetClient().Timeout == 0 {
		d.client.SetTimeout(d.timeout)
	}
	d.client.SetRetryCount(0)
	d.client.SetRedirectPolicy(noRedirects)

	return d
}

// DeliverAll sends chunks to target strictly in order. A failed chunk never
// stops the remaining ones. If ctx is done between chunks, delivery stops and
// the outcomes gathered so far are returned.
func (d *Dispatcher) DeliverAll(ctx context.Context, target string, chunks []Chunk) Delivery {
	delivery := Delivery{
		Outcomes: make([]Outcome, 0, len(chunks)),
		Status:   AllDelivered,
	}

	target = strings.TrimSpace(target)
	host := targetHost(target)

	for _, chunk := range chunks {
		if err := d.wait(ctx, target); err != nil {
			d.log.WarnContext(ctx, "Delivery is interrupted",
				"error", err,
				"host", host,
				"chunkIndex", chunk.Index,
				"chunkCount", len(chunks),
				"attemptedCount", len(delivery.Outcomes))

			break
		}

		outcome := d.deliver(ctx, target, chunk)
		delivery.Outcomes = append(delivery.Outcomes, outcome)

		if outcome.Status == StatusDelivered {
			d.log.InfoContext(ctx, "Chunk is delivered",
				"host", host,
				"chunkIndex", chunk.Index,
				"chunkCount", len(chunks),
				"httpStatus", outcome.HTTPStatus)

			continue
		}

		d.log.ErrorContext(ctx, "Failed to deliver chunk",
			"host", host,
			"chunkIndex", chunk.Index,
			"chunkCount", len(chunks),
			"httpStatus", outcome.HTTPStatus,
			"errorKind", outcome.ErrorKind,
			"errorDetail", outcome.ErrorDetail)
	}

	if len(delivery.Outcomes) < len(chunks) || delivery.Failed() > 0 {
		delivery.Status = PartiallyFailed
	}

	return delivery
}

func (d *Dispatcher) wait(ctx context.Context, target string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.rateLimiter.Wait(ctx, target)
}

func (d *Dispatcher) deliver(ctx context.Context, target string, chunk Chunk) Outcome {
	start := time.Now()

	statusCode, err := d.send(ctx, target, chunk.Text)

	outcome := Outcome{
		ChunkIndex: chunk.Index,
		Status:     StatusDelivered,
		HTTPStatus: statusCode,
		Duration:   time.Since(start),
	}

	if err != nil {
		outcome.Status = StatusFailed
		outcome.ErrorKind = ErrorKindNetworkFailure
		outcome.ErrorDetail = err.Error()

		var deliveryErr *DeliveryError
		if errors.As(err, &deliveryErr) {
			outcome.ErrorKind = deliveryErr.Kind
		}
	}

	return outcome
}

// send performs exactly one POST. Only 204 No Content counts as delivered.
func (d *Dispatcher) send(ctx context.Context, target, content string) (int, error) {
	if target == "" {
		return 0, &DeliveryError{
			Kind:  ErrorKindNetworkFailure,
			Cause: errors.New("channel URL is empty"),
		}
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	resp, err := d.client.R().
		SetContext(sendCtx).
		SetHeader("Content-Type", "application/json").
		SetBody(webhookRequest{Content: content}).
		Post(target)
	if resp != nil {
		d.rateLimiter.Observe(target, resp.Header())
	}
	if err != nil {
		return 0, &DeliveryError{
			Kind:  ErrorKindNetworkFailure,
			Cause: redactURL(err),
		}
	}

	statusCode := resp.StatusCode()
	if statusCode != http.StatusNoContent {
		return statusCode, &DeliveryError{
			Kind:       ErrorKindChannelRejected,
			StatusCode: statusCode,
			Body:       truncate(strings.TrimSpace(resp.String()), maxErrorBodyChars),
		}
	}

	return statusCode, nil
}

func targetHost(target string) string {
	u, err := url.Parse(target)
	if err != nil {
		return ""
	}
	return u.Host
}

// redactURL drops the request URL from transport errors; webhook URLs embed a secret token.
func redactURL(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return fmt.Errorf("%s %s: %w", urlErr.Op, targetHost(urlErr.URL), urlErr.Err)
	}
	return err
}

func truncate(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars])
}
