// Copyright (c) 2025 BVK Chaitanya

// Package coinex implements the CoinEx account adapter. REST endpoints
// serve the full balance and position snapshots; the websocket feed pushes
// incremental balance.update and position.update notices.
package coinex

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bvk/syncbot/coinex/internal"
	"github.com/bvk/syncbot/syncmap"

	"github.com/visvasity/topic"
	"golang.org/x/time/rate"
)

type websocketNoticeHandler func(context.Context, *internal.WebsocketNotice) error

type Client struct {
	lifeCtx    context.Context
	lifeCancel context.CancelCauseFunc

	wg sync.WaitGroup

	opts Options

	client http.Client

	limiter *rate.Limiter

	key, secret string

	balanceUpdatesTopic  *topic.Topic[*internal.BalanceUpdate]
	positionUpdatesTopic *topic.Topic[*internal.PositionUpdate]

	websocketHandlerMap map[string]websocketNoticeHandler

	websocketCallCh  chan *internal.WebsocketCall
	websocketCallMap syncmap.Map[int64, *internal.WebsocketCall]
}

// New returns a new client instance. The background websocket task signs in
// and subscribes to the account update channels as soon as the connection
// is up, and reconnects with backoff on failures.
func New(key, secret string, opts *Options) (*Client, error) {
	if opts == nil {
		opts = new(Options)
	}
	opts.setDefaults()
	if err := opts.Check(); err != nil {
		return nil, err
	}

	lifeCtx, lifeCancel := context.WithCancelCause(context.Background())
	c := &Client{
		opts:       *opts,
		lifeCtx:    lifeCtx,
		lifeCancel: lifeCancel,
		key:        key,
		secret:     secret,
		client: http.Client{
			Timeout: opts.HttpClientTimeout,
		},
		limiter:              rate.NewLimiter(rate.Limit(opts.MaxRequestsPerSecond), 1),
		websocketHandlerMap:  make(map[string]websocketNoticeHandler),
		websocketCallCh:      make(chan *internal.WebsocketCall, 10),
		balanceUpdatesTopic:  topic.New[*internal.BalanceUpdate](),
		positionUpdatesTopic: topic.New[*internal.PositionUpdate](),
	}
	c.websocketHandlerMap["balance.update"] = c.onBalanceUpdate
	c.websocketHandlerMap["position.update"] = c.onPositionUpdate

	c.wg.Add(1)
	go c.goGetMessages(c.lifeCtx)
	return c, nil
}

// Close releases resources and destroys the client instance.
func (c *Client) Close() error {
	c.lifeCancel(os.ErrClosed)
	c.wg.Wait()
	c.balanceUpdatesTopic.Close()
	c.positionUpdatesTopic.Close()
	return nil
}

// GetBalances retrieves all funds information in the spot account.
func (c *Client) GetBalances(ctx context.Context) ([]*internal.Balance, error) {
	addrURL := &url.URL{
		Scheme: RestURL.Scheme,
		Host:   RestURL.Host,
		Path:   path.Join(RestURL.Path, "/assets/spot/balance"),
	}
	resp := new(internal.GetBalancesResponse)
	if err := privateGetJSON(ctx, c, addrURL, nil /* request */, resp); err != nil {
		if !errors.Is(err, context.Canceled) {
			slog.Error("could not get asset balances", "url", addrURL, "err", err)
		}
		return nil, err
	}
	return resp.Data, nil
}

// GetPositions retrieves all pending positions in the futures account,
// following pagination so the result is always the complete list.
func (c *Client) GetPositions(ctx context.Context) ([]*internal.Position, error) {
	addrURL := &url.URL{
		Scheme: RestURL.Scheme,
		Host:   RestURL.Host,
		Path:   path.Join(RestURL.Path, "/futures/pending-position"),
	}

	values := make(url.Values)
	values.Set("market_type", "FUTURES")

	var positions []*internal.Position
	for page := 1; ; page++ {
		values.Set("page", strconv.FormatInt(int64(page), 10))
		addrURL.RawQuery = values.Encode()

		resp := new(internal.GetPositionsResponse)
		if err := privateGetJSON(ctx, c, addrURL, nil /* request */, resp); err != nil {
			if !errors.Is(err, context.Canceled) {
				slog.Error("could not get pending positions", "page", page, "url", addrURL, "err", err)
			}
			return nil, err
		}
		positions = append(positions, resp.Data...)

		if resp.Pagination == nil || resp.Pagination.HasNext == false {
			return positions, nil
		}
	}
}

func (c *Client) do(ctx context.Context, method string, addrURL *url.URL, body, contentType string) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var sb strings.Builder
	sb.WriteString(method)
	sb.WriteString(addrURL.Path)
	if len(addrURL.RawQuery) != 0 {
		sb.WriteRune('?')
		sb.WriteString(addrURL.RawQuery)
	}
	if body != "" {
		sb.WriteString(body)
	}

	now := time.Now()
	timestamp := strconv.FormatInt(now.UnixMilli(), 10)
	sb.WriteString(timestamp)

	hash := hmac.New(sha256.New, []byte(c.secret))
	io.WriteString(hash, sb.String())
	signature := hash.Sum(nil)

	req, err := http.NewRequestWithContext(ctx, method, addrURL.String(), strings.NewReader(body))
	if err != nil {
		slog.Error("could not create http request object with context", "method", method, "url", addrURL, "err", err)
		return nil, err
	}

	if len(contentType) != 0 {
		req.Header.Add("Content-Type", contentType)
	}
	req.Header.Add("X-COINEX-KEY", c.key)
	req.Header.Add("X-COINEX-SIGN", fmt.Sprintf("%x", signature))
	req.Header.Add("X-COINEX-TIMESTAMP", timestamp)
	return c.client.Do(req)
}

func sleep(ctx context.Context, d time.Duration) error {
	sctx, scancel := context.WithTimeout(ctx, d)
	<-sctx.Done()
	scancel()
	if ctx.Err() != nil {
		return context.Cause(ctx)
	}
	return nil
}

// retryStatus handles the retriable http status codes. Returns true after
// the appropriate delay when the request should be resent.
func retryStatus(ctx context.Context, resp *http.Response) (bool, error) {
	if resp.StatusCode == http.StatusBadGateway {
		if err := sleep(ctx, time.Second); err != nil {
			return false, err
		}
		return true, nil
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusTeapot {
		timeout := time.Second
		if x := resp.Header.Get("Retry-After"); len(x) != 0 {
			if v, err := strconv.Atoi(x); err == nil {
				timeout = time.Duration(v) * time.Second
			}
		}
		if err := sleep(ctx, timeout); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

func decodeResponse[PT *T, T any](addrURL *url.URL, data []byte, response PT) error {
	var genericResp internal.GenericResponse
	if err := json.Unmarshal(data, &genericResp); err != nil {
		slog.Error("could not unmarshal into generic response", "response", string(data), "err", err)
		return err
	}
	if genericResp.Code != 0 {
		slog.Error("request failed", "url", addrURL, "response", string(data))
		return fmt.Errorf("failed with code=%d message=%s", genericResp.Code, genericResp.Message)
	}

	if err := json.Unmarshal(data, response); err != nil {
		slog.Error("could not decode response to json", "err", err)
		return err
	}
	return nil
}

func privateGetJSON[PT *T, T any](ctx context.Context, c *Client, addrURL *url.URL, request any, response PT) error {
	var sb strings.Builder
	contentType := ""
	if request != nil {
		if err := json.NewEncoder(&sb).Encode(request); err != nil {
			return err
		}
		contentType = "application/json"
	}

	resp, err := c.do(ctx, http.MethodGet, addrURL, sb.String(), contentType)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			slog.Error("could not perform http get request", "url", addrURL, "err", err)
		}
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		slog.Warn("http get returned unsuccessful status code", "status-code", resp.StatusCode)
		if body, err := io.ReadAll(resp.Body); err == nil {
			log.Printf("server response was %s", body)
		}
		retry, err := retryStatus(ctx, resp)
		if err != nil {
			return err
		}
		if retry {
			return privateGetJSON(ctx, c, addrURL, request, response)
		}
		return fmt.Errorf("http GET returned %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	return decodeResponse(addrURL, data, response)
}

func privatePostJSON[PT *T, T any](ctx context.Context, c *Client, addrURL *url.URL, request any, response PT) error {
	var sb strings.Builder
	if request != nil {
		if err := json.NewEncoder(&sb).Encode(request); err != nil {
			return err
		}
	}

	resp, err := c.do(ctx, http.MethodPost, addrURL, sb.String(), "application/json")
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			slog.Error("could not perform http post request", "url", addrURL, "err", err)
		}
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		slog.Warn("http post returned unsuccessful status code", "status-code", resp.StatusCode)
		if body, err := io.ReadAll(resp.Body); err == nil {
			log.Printf("server response was %s", body)
		}
		retry, err := retryStatus(ctx, resp)
		if err != nil {
			return err
		}
		if retry {
			return privatePostJSON(ctx, c, addrURL, request, response)
		}
		return fmt.Errorf("http POST returned %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	return decodeResponse(addrURL, data, response)
}
