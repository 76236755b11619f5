// internal/adapters/smoobu/client.go
package smoobu

import (
	"bytes"
	"context"
	crand "crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"resort_booking/internal/adapters/observability"
	"resort_booking/internal/domain"
)

// Client talks to the channel manager. It is a pure I/O boundary: the remote
// wire shape (kebab-case string-keyed fields) never leaves this package.
type Client struct {
	base string
	hc   *http.Client
	key  string
	rl   *rate.Limiter
}

func New(base, key string, rps int) (*Client, error) {
	if key == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if rps <= 0 {
		rps = 5
	}
	return &Client{
		base: strings.TrimRight(base, "/"),
		hc:   &http.Client{Timeout: 20 * time.Second},
		key:  key,
		rl:   rate.NewLimiter(rate.Limit(rps), rps),
	}, nil
}

var _ domain.ChannelClient = (*Client)(nil)

// ---- Public API ----

func (c *Client) ListUnitDayRates(ctx context.Context, unitRemoteIDs []string, from, to time.Time) (map[string][]domain.DayRate, error) {
	q := url.Values{}
	q.Set("apartments", strings.Join(unitRemoteIDs, ","))
	q.Set("start-date", from.Format(dateLayout))
	q.Set("end-date", to.Format(dateLayout))

	var raw ratesResponse
	if err := c.do(ctx, http.MethodGet, c.base+"/api/rates?"+q.Encode(), nil, &raw); err != nil {
		return nil, err
	}
	return mapDayRates(raw)
}

func (c *Client) CreateReservation(ctx context.Context, r domain.RemoteReservation) (string, error) {
	var out map[string]any
	if err := c.do(ctx, http.MethodPost, c.base+"/api/reservations", reservationPayload(r), &out); err != nil {
		return "", err
	}
	id := reservationID(out)
	if id == "" {
		return "", fmt.Errorf("create reservation: no id in response")
	}
	return id, nil
}

func (c *Client) CancelReservation(ctx context.Context, remoteReservationID string) error {
	err := c.do(ctx, http.MethodDelete, c.base+"/api/reservations/"+url.PathEscape(remoteReservationID), nil, nil)
	if errors.Is(err, ErrNotFound) {
		// already gone remotely; cancellation is best-effort and idempotent
		return nil
	}
	return err
}

// ---- Internals ----

var (
	ErrNotFound     = errors.New("smoobu: not found")
	ErrUnauthorized = errors.New("smoobu: unauthorized")
	ErrForbidden    = errors.New("smoobu: forbidden")
	ErrRejected     = errors.New("smoobu: request rejected")
)

// do performs a request with client-side rate limiting, retries, and JSON
// decode into out (out may be nil). Retries on 429 and transient 5xx,
// honoring Retry-After when provided.
func (c *Client) do(ctx context.Context, method, u string, body any, out any) error {
	if err := c.rl.Wait(ctx); err != nil {
		return err
	}

	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return err
		}
	}

	endpoint := method + " " + shortPath(u)
	start := time.Now()
	var lastErr error
	for i := 0; i < 4; i++ {
		// fresh request each attempt
		var rd io.Reader
		if payload != nil {
			rd = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, u, rd)
		if err != nil {
			return err
		}
		req.Header.Set("Api-Key", c.key)
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", "resort-booking/1.0")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.hc.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
			if i < 3 && sleepCtx(ctx, backoff(i)) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			observability.ObserveExternal("smoobu", endpoint, 0, time.Since(start))
			return lastErr
		}

		switch resp.StatusCode {
		case http.StatusOK, http.StatusCreated, http.StatusAccepted:
			observability.ObserveExternal("smoobu", endpoint, resp.StatusCode, time.Since(start))
			if out == nil {
				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
				return nil
			}
			err := json.NewDecoder(resp.Body).Decode(out)
			resp.Body.Close()
			return err

		case http.StatusNoContent:
			observability.ObserveExternal("smoobu", endpoint, resp.StatusCode, time.Since(start))
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			return nil

		case http.StatusNotFound:
			resp.Body.Close()
			observability.ObserveExternal("smoobu", endpoint, resp.StatusCode, time.Since(start))
			return ErrNotFound

		case http.StatusUnauthorized:
			resp.Body.Close()
			observability.ObserveExternal("smoobu", endpoint, resp.StatusCode, time.Since(start))
			return ErrUnauthorized

		case http.StatusForbidden:
			resp.Body.Close()
			observability.ObserveExternal("smoobu", endpoint, resp.StatusCode, time.Since(start))
			return ErrForbidden

		case http.StatusBadRequest, http.StatusUnprocessableEntity:
			// remote-validation rejection; no point retrying
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			observability.ObserveExternal("smoobu", endpoint, resp.StatusCode, time.Since(start))
			return fmt.Errorf("%w: %s", ErrRejected, strings.TrimSpace(string(b)))

		case http.StatusTooManyRequests, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			// Prefer server-provided Retry-After; otherwise exponential backoff.
			wait := retryAfter(resp)
			resp.Body.Close()
			if wait == 0 {
				wait = backoff(i)
			}
			lastErr = fmt.Errorf("remote %d", resp.StatusCode)
			if i < 3 && sleepCtx(ctx, wait) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			observability.ObserveExternal("smoobu", endpoint, resp.StatusCode, time.Since(start))
			return lastErr

		default:
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			observability.ObserveExternal("smoobu", endpoint, resp.StatusCode, time.Since(start))
			return fmt.Errorf("bad status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
		}
	}

	return lastErr
}

// shortPath strips query and host for the metrics endpoint label.
func shortPath(u string) string {
	if p, err := url.Parse(u); err == nil {
		return p.Path
	}
	return u
}

// sleepCtx waits for d or returns early if ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// retryAfter parses Retry-After header (seconds or HTTP-date). Returns 0 if absent/invalid.
func retryAfter(resp *http.Response) time.Duration {
	h := resp.Header.Get("Retry-After")
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(h)); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(h); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// backoff returns an exponential delay (200ms, 400ms, 800ms...) with up to
// +50% jitter to avoid thundering herds.
func backoff(i int) time.Duration {
	base := time.Duration(1<<i) * 200 * time.Millisecond
	var b [1]byte
	if _, err := crand.Read(b[:]); err != nil {
		return base
	}
	f := float64(b[0]) / 255.0
	j := time.Duration(0.5 * f * float64(base))
	return base + j
}
