//go:build !integration

package donationalerts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"donation-subscription-bot/internal/domain"

	"github.com/rs/zerolog"
)

func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

// fakeFeed serves scripted pages and counts requests per page.
type fakeFeed struct {
	mu       sync.Mutex
	pages    map[int]func(w http.ResponseWriter)
	requests map[int]int
	lastAuth string
}

func newFakeFeed() *fakeFeed {
	return &fakeFeed{pages: map[int]func(http.ResponseWriter){}, requests: map[int]int{}}
}

func (f *fakeFeed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/alerts/donations" {
		http.NotFound(w, r)
		return
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	f.mu.Lock()
	f.requests[page]++
	f.lastAuth = r.Header.Get("Authorization")
	h, ok := f.pages[page]
	f.mu.Unlock()
	if !ok {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"data":[],"links":{"next":null}}`)
		return
	}
	h(w)
}

func (f *fakeFeed) count(page int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[page]
}

func donation(id int, message string, amount string, createdAt string) string {
	return fmt.Sprintf(`{"id":%d,"username":"donor%d","amount":%s,"currency":"RUB","message":%q,"created_at":%q,"shown_at":null}`,
		id, id, amount, message, createdAt)
}

func jsonPage(next bool, records ...string) func(http.ResponseWriter) {
	link := "null"
	if next {
		link = `"https://example.test/next"`
	}
	body := fmt.Sprintf(`{"data":[%s],"links":{"next":%s}}`, strings.Join(records, ","), link)
	return func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, body)
	}
}

func status(code int) func(http.ResponseWriter) {
	return func(w http.ResponseWriter) { w.WriteHeader(code) }
}

func newTestClient(t *testing.T, feed *fakeFeed) (*Client, *[]time.Duration) {
	t.Helper()
	srv := httptest.NewServer(feed)
	t.Cleanup(srv.Close)

	c := NewClient(Options{
		BaseURL:                srv.URL + "/",
		AccessToken:            "secret-token",
		RequestTimeout:         5 * time.Second,
		PageDelay:              500 * time.Millisecond,
		RateLimitRetries:       2,
		RateLimitBackoff:       time.Second,
		MaxBackoff:             3 * time.Second,
		TransientRetries:       1,
		TransientBackoff:       2 * time.Second,
		MaxConsecutiveFailures: 1,
	}, srv.Client(), newTestLogger())

	var mu sync.Mutex
	var slept []time.Duration
	c.sleep = func(ctx context.Context, d time.Duration) error {
		mu.Lock()
		slept = append(slept, d)
		mu.Unlock()
		return ctx.Err()
	}
	return c, &slept
}

func ts(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestFetchRange(t *testing.T) {
	ctx := context.Background()

	t.Run("should walk pages newest first and stop at the window start", func(t *testing.T) {
		feed := newFakeFeed()
		feed.pages[1] = jsonPage(true,
			donation(5, "@future", "500", "2024-03-10T12:00:00Z"),
			donation(4, "@alice", "200", "2024-03-05T12:00:00Z"),
		)
		feed.pages[2] = jsonPage(true,
			donation(3, "@bob", "400", "2024-03-02T12:00:00Z"),
			donation(2, "@old", "200", "2024-02-20T12:00:00Z"),
		)
		feed.pages[3] = jsonPage(false, donation(1, "@older", "200", "2024-02-01T12:00:00Z"))
		c, slept := newTestClient(t, feed)

		res, err := c.FetchRange(ctx, ts("2024-03-01T00:00:00Z"), ts("2024-03-06T00:00:00Z"))
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(res.Events) != 2 || res.Events[0].ExternalID != "4" || res.Events[1].ExternalID != "3" {
			t.Fatalf("unexpected events: %+v", res.Events)
		}
		if res.Partial {
			t.Error("expected a complete result")
		}
		if feed.count(3) != 0 {
			t.Error("expected the walk to stop before page 3")
		}
		if len(*slept) != 1 || (*slept)[0] != 500*time.Millisecond {
			t.Errorf("expected one polite delay between pages, got %v", *slept)
		}
		if feed.lastAuth != "Bearer secret-token" {
			t.Errorf("unexpected auth header %q", feed.lastAuth)
		}
	})

	t.Run("should skip malformed records without dropping the page", func(t *testing.T) {
		feed := newFakeFeed()
		feed.pages[1] = jsonPage(false,
			donation(3, "@ok_one", "200", "2024-03-05T12:00:00Z"),
			`{"id":2,"amount":200,"message":"@bad","created_at":"yesterday"}`,
			`{"id":1,"message":"@no_amount","created_at":"2024-03-04T12:00:00Z"}`,
			donation(0, "@api_style", `"250.50"`, "2024-03-04 10:00:00"),
		)
		c, _ := newTestClient(t, feed)

		res, err := c.FetchRange(ctx, time.Time{}, time.Time{})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(res.Events) != 2 {
			t.Fatalf("expected 2 good events, got %d", len(res.Events))
		}
		if got := res.Events[1].Amount.String(); got != "250.5" {
			t.Errorf("expected decimal amount 250.5, got %s", got)
		}
		if !res.Events[1].OccurredAt.Equal(ts("2024-03-04T10:00:00Z")) {
			t.Errorf("expected space separated timestamp to parse as UTC, got %v", res.Events[1].OccurredAt)
		}
	})

	t.Run("should drop donations repeated across shifted pages", func(t *testing.T) {
		feed := newFakeFeed()
		feed.pages[1] = jsonPage(true, donation(2, "@a_user", "200", "2024-03-05T12:00:00Z"))
		feed.pages[2] = jsonPage(false,
			donation(2, "@a_user", "200", "2024-03-05T12:00:00Z"),
			donation(1, "@b_user", "200", "2024-03-04T12:00:00Z"),
		)
		c, _ := newTestClient(t, feed)

		res, _ := c.FetchRange(ctx, time.Time{}, time.Time{})
		if len(res.Events) != 2 {
			t.Errorf("expected 2 unique events, got %d", len(res.Events))
		}
	})

	t.Run("should return pages 1-2 when page 3 stays rate limited", func(t *testing.T) {
		feed := newFakeFeed()
		feed.pages[1] = jsonPage(true, donation(3, "@p1", "200", "2024-03-05T12:00:00Z"))
		feed.pages[2] = jsonPage(true, donation(2, "@p2", "200", "2024-03-04T12:00:00Z"))
		feed.pages[3] = status(http.StatusTooManyRequests)
		c, slept := newTestClient(t, feed)

		res, err := c.FetchRange(ctx, time.Time{}, time.Time{})
		if err != nil {
			t.Fatalf("expected the ranged fetch not to fail, got %v", err)
		}
		if !res.Partial {
			t.Error("expected a partial result")
		}
		if len(res.Events) != 2 {
			t.Errorf("expected events from pages 1-2, got %d", len(res.Events))
		}
		if n := feed.count(3); n != 3 {
			t.Errorf("expected 3 attempts on page 3, got %d", n)
		}
		// two page delays, then exponential backoff 1s, 2s
		want := []time.Duration{500 * time.Millisecond, 500 * time.Millisecond, time.Second, 2 * time.Second}
		if fmt.Sprint(*slept) != fmt.Sprint(want) {
			t.Errorf("expected sleeps %v, got %v", want, *slept)
		}
	})

	t.Run("should retry a failing page until the consecutive failure threshold", func(t *testing.T) {
		feed := newFakeFeed()
		feed.pages[1] = status(http.StatusBadGateway)
		c, _ := newTestClient(t, feed)
		c.opts.MaxConsecutiveFailures = 3

		res, err := c.FetchRange(ctx, time.Time{}, time.Time{})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !res.Partial || len(res.Events) != 0 {
			t.Errorf("expected an empty partial result, got %+v", res)
		}
		// 3 page attempts x (1 try + 1 retry)
		if n := feed.count(1); n != 6 {
			t.Errorf("expected 6 requests, got %d", n)
		}
	})

	t.Run("should propagate authentication failures", func(t *testing.T) {
		feed := newFakeFeed()
		feed.pages[1] = status(http.StatusUnauthorized)
		c, _ := newTestClient(t, feed)

		_, err := c.FetchRange(ctx, time.Time{}, time.Time{})
		if !errors.Is(err, domain.ErrFeedAuth) {
			t.Fatalf("expected ErrFeedAuth, got %v", err)
		}
		if feed.count(1) != 1 {
			t.Errorf("expected no retry on auth failure, got %d requests", feed.count(1))
		}
	})
}

func TestFetchPage(t *testing.T) {
	ctx := context.Background()

	t.Run("should raise the rate limit error after exhausting retries", func(t *testing.T) {
		feed := newFakeFeed()
		feed.pages[1] = status(http.StatusTooManyRequests)
		c, _ := newTestClient(t, feed)

		_, err := c.FetchPage(ctx, 1)
		if !errors.Is(err, domain.ErrFeedRateLimited) {
			t.Fatalf("expected ErrFeedRateLimited, got %v", err)
		}
		if feed.count(1) != 3 {
			t.Errorf("expected 3 attempts, got %d", feed.count(1))
		}
	})

	t.Run("should honour Retry-After up to the cap", func(t *testing.T) {
		feed := newFakeFeed()
		feed.pages[1] = func(w http.ResponseWriter) {
			w.Header().Set("Retry-After", "60")
			w.WriteHeader(http.StatusTooManyRequests)
		}
		c, slept := newTestClient(t, feed)
		c.opts.RateLimitRetries = 1

		_, _ = c.FetchPage(ctx, 1)
		if len(*slept) != 1 || (*slept)[0] != 3*time.Second {
			t.Errorf("expected a single capped backoff of 3s, got %v", *slept)
		}
	})

	t.Run("should recover from a transient error", func(t *testing.T) {
		feed := newFakeFeed()
		var calls int
		ok := jsonPage(false, donation(1, "@again", "200", "2024-03-05T12:00:00Z"))
		feed.pages[1] = func(w http.ResponseWriter) {
			calls++
			if calls == 1 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			ok(w)
		}
		c, slept := newTestClient(t, feed)

		p, err := c.FetchPage(ctx, 1)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(p.Events) != 1 || p.HasNext {
			t.Errorf("unexpected page %+v", p)
		}
		if len(*slept) != 1 || (*slept)[0] != 2*time.Second {
			t.Errorf("expected one fixed backoff, got %v", *slept)
		}
	})

	t.Run("should stop when the context is cancelled", func(t *testing.T) {
		feed := newFakeFeed()
		feed.pages[1] = status(http.StatusInternalServerError)
		c, _ := newTestClient(t, feed)
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		if _, err := c.FetchPage(cctx, 1); !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}

func TestRateLimitBackoff(t *testing.T) {
	limited := &statusError{class: domain.ErrFeedRateLimited, status: http.StatusTooManyRequests}

	t.Run("should double per attempt up to the max backoff", func(t *testing.T) {
		c := NewClient(Options{RateLimitBackoff: time.Second, MaxBackoff: 3 * time.Second}, nil, newTestLogger())
		want := []time.Duration{time.Second, 2 * time.Second, 3 * time.Second, 3 * time.Second}
		for attempt, w := range want {
			if got := c.rateLimitBackoff(attempt, limited); got != w {
				t.Errorf("attempt %d: expected %v, got %v", attempt, w, got)
			}
		}
	})

	t.Run("should stay clamped for attempts that would overflow a shift", func(t *testing.T) {
		c := NewClient(Options{RateLimitBackoff: 2 * time.Second, MaxBackoff: time.Minute}, nil, newTestLogger())
		for _, attempt := range []int{40, 63, 64, 200} {
			if got := c.rateLimitBackoff(attempt, limited); got != time.Minute {
				t.Errorf("attempt %d: expected %v, got %v", attempt, time.Minute, got)
			}
		}
	})

	t.Run("should fall back to the ceiling without a max backoff", func(t *testing.T) {
		c := NewClient(Options{RateLimitBackoff: time.Second}, nil, newTestLogger())
		if got := c.rateLimitBackoff(100, limited); got != backoffCeiling {
			t.Errorf("expected %v, got %v", backoffCeiling, got)
		}
	})

	t.Run("should honour retry-after within the limit", func(t *testing.T) {
		c := NewClient(Options{RateLimitBackoff: time.Second, MaxBackoff: time.Minute}, nil, newTestLogger())
		err := &statusError{class: domain.ErrFeedRateLimited, status: http.StatusTooManyRequests, retryAfter: 20 * time.Second}
		if got := c.rateLimitBackoff(0, err); got != 20*time.Second {
			t.Errorf("expected 20s, got %v", got)
		}
	})
}
