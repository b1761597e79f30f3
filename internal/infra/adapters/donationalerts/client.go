// Package donationalerts reads donations from the DonationAlerts REST API.
package donationalerts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"donation-subscription-bot/internal/config"
	"donation-subscription-bot/internal/domain"
	"donation-subscription-bot/internal/domain/model"
	"donation-subscription-bot/internal/domain/ports/adapter"
	"donation-subscription-bot/internal/infra/metrics"

	"github.com/rs/zerolog"
)

var _ adapter.DonationFeed = (*Client)(nil)

const backoffCeiling = time.Hour

type Options struct {
	BaseURL                string
	AccessToken            string
	RequestTimeout         time.Duration
	PageDelay              time.Duration
	RateLimitRetries       int
	RateLimitBackoff       time.Duration
	MaxBackoff             time.Duration
	TransientRetries       int
	TransientBackoff       time.Duration
	MaxConsecutiveFailures int
}

func OptionsFromConfig(cfg config.FeedConfig) Options {
	return Options{
		BaseURL:                cfg.BaseURL,
		AccessToken:            cfg.AccessToken,
		RequestTimeout:         cfg.RequestTimeout,
		PageDelay:              cfg.PageDelay,
		RateLimitRetries:       cfg.RateLimitRetries,
		RateLimitBackoff:       cfg.RateLimitBackoff,
		MaxBackoff:             cfg.MaxBackoff,
		TransientRetries:       cfg.TransientRetries,
		TransientBackoff:       cfg.TransientBackoff,
		MaxConsecutiveFailures: cfg.MaxConsecutiveFailures,
	}
}

// Client walks the paginated donations endpoint.
type Client struct {
	opts   Options
	client *http.Client
	log    *zerolog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// Page is one decoded page. Size counts every record on the page, including
// the ones that failed to parse.
type Page struct {
	Number  int
	Size    int
	Events  []model.DonationEvent
	HasNext bool
}

func NewClient(opts Options, httpClient *http.Client, logger *zerolog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if opts.MaxConsecutiveFailures <= 0 {
		opts.MaxConsecutiveFailures = 1
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	compLog := logger.With().Str("component", "DonationAlerts").Logger()
	return &Client{
		opts:   opts,
		client: httpClient,
		log:    &compLog,
		sleep:  sleepCtx,
	}
}

// statusError keeps the HTTP details of a failed request while matching one
// of the domain feed errors through errors.Is.
type statusError struct {
	class      error
	status     int
	retryAfter time.Duration
	msg        string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%v (status %d): %s", e.class, e.status, e.msg)
}

func (e *statusError) Unwrap() error { return e.class }

// FetchPage fetches one page, retrying rate limits with exponential backoff
// and transient failures with a fixed backoff. Authentication failures are
// returned at once.
func (c *Client) FetchPage(ctx context.Context, page int) (*Page, error) {
	var rateAttempts, transientAttempts int
	for {
		p, err := c.getPage(ctx, page)
		if err == nil {
			metrics.IncFeedRequest("ok")
			return p, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		var wait time.Duration
		switch {
		case errors.Is(err, domain.ErrFeedAuth):
			metrics.IncFeedRequest("auth")
			return nil, err
		case errors.Is(err, domain.ErrFeedRateLimited):
			metrics.IncFeedRequest("rate_limited")
			if rateAttempts >= c.opts.RateLimitRetries {
				return nil, err
			}
			wait = c.rateLimitBackoff(rateAttempts, err)
			rateAttempts++
		default:
			metrics.IncFeedRequest("transient")
			if transientAttempts >= c.opts.TransientRetries {
				return nil, err
			}
			wait = c.opts.TransientBackoff
			transientAttempts++
		}

		c.log.Warn().Err(err).Int("page", page).Dur("backoff", wait).Msg("donation page request failed, retrying")
		if err := c.sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
}

// rateLimitBackoff doubles RateLimitBackoff per attempt, honours Retry-After
// and never exceeds MaxBackoff (backoffCeiling when unset).
func (c *Client) rateLimitBackoff(attempt int, err error) time.Duration {
	limit := c.opts.MaxBackoff
	if limit <= 0 {
		limit = backoffCeiling
	}
	wait := c.opts.RateLimitBackoff
	for i := 0; i < attempt && wait > 0 && wait < limit; i++ {
		wait *= 2
	}
	var se *statusError
	if errors.As(err, &se) && se.retryAfter > wait {
		wait = se.retryAfter
	}
	if wait > limit {
		wait = limit
	}
	if wait < 0 {
		wait = 0
	}
	return wait
}

// FetchRange returns the donations in [start, end], newest first. A zero start
// or end leaves that side open. The walk stops at an empty page, at the last
// page, or at the first donation older than start.
//
// A page that keeps failing is attempted again until MaxConsecutiveFailures
// is reached; the fetch then ends with what it has and Partial set.
func (c *Client) FetchRange(ctx context.Context, start, end time.Time) (*model.FetchResult, error) {
	res := &model.FetchResult{}
	seen := make(map[string]struct{})
	failures := 0

	for page := 1; ; {
		p, err := c.FetchPage(ctx, page)
		if err != nil {
			if errors.Is(err, domain.ErrFeedAuth) || ctx.Err() != nil {
				return nil, err
			}
			failures++
			c.log.Error().Err(err).Int("page", page).Int("consecutive_failures", failures).Msg("donation page failed")
			if failures >= c.opts.MaxConsecutiveFailures {
				res.Partial = true
				metrics.IncFeedFetchAborted()
				c.log.Warn().Int("pages", res.Pages).Int("events", len(res.Events)).Msg("donation fetch aborted, returning partial result")
				return res, nil
			}
			if err := c.sleep(ctx, c.opts.TransientBackoff); err != nil {
				return nil, err
			}
			continue
		}
		failures = 0
		res.Pages++

		if p.Size == 0 {
			return res, nil
		}
		for _, ev := range p.Events {
			if !start.IsZero() && ev.OccurredAt.Before(start) {
				return res, nil
			}
			if !end.IsZero() && ev.OccurredAt.After(end) {
				continue
			}
			if _, dup := seen[ev.ExternalID]; dup {
				metrics.IncFeedEventSkipped("duplicate")
				continue
			}
			seen[ev.ExternalID] = struct{}{}
			res.Events = append(res.Events, ev)
		}
		if !p.HasNext {
			return res, nil
		}

		page++
		if err := c.sleep(ctx, c.opts.PageDelay); err != nil {
			return nil, err
		}
	}
}

func (c *Client) getPage(ctx context.Context, page int) (*Page, error) {
	if c.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.RequestTimeout)
		defer cancel()
	}

	u := c.opts.BaseURL + "/alerts/donations?" + url.Values{"page": {strconv.Itoa(page)}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.opts.AccessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrFeedTransient, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", domain.ErrFeedTransient, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &statusError{class: domain.ErrFeedAuth, status: resp.StatusCode, msg: snippet(body)}
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &statusError{
			class:      domain.ErrFeedRateLimited,
			status:     resp.StatusCode,
			retryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			msg:        snippet(body),
		}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, &statusError{class: domain.ErrFeedTransient, status: resp.StatusCode, msg: snippet(body)}
	}

	var payload donationsResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: decode page %d: %v", domain.ErrFeedTransient, page, err)
	}

	p := &Page{
		Number:  page,
		Size:    len(payload.Data),
		HasNext: payload.Links.Next != nil && strings.TrimSpace(*payload.Links.Next) != "",
	}
	for _, raw := range payload.Data {
		var dto donationDTO
		if err := json.Unmarshal(raw, &dto); err != nil {
			c.skip(page, fmt.Errorf("%w: %v", domain.ErrFeedParse, err))
			continue
		}
		ev, err := dto.toEvent()
		if err != nil {
			c.skip(page, err)
			continue
		}
		p.Events = append(p.Events, ev)
	}
	return p, nil
}

func (c *Client) skip(page int, err error) {
	metrics.IncFeedEventSkipped("parse")
	c.log.Warn().Err(err).Int("page", page).Msg("skipping malformed donation")
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}

func snippet(b []byte) string {
	const limit = 200
	s := strings.TrimSpace(string(b))
	if len(s) > limit {
		return s[:limit]
	}
	return s
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
