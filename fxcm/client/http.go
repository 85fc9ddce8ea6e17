package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/go-resty/resty/v2"

	"github.com/betbot/gofx/fxcm/types"
	"github.com/betbot/gofx/pkg/ratelimit"
)

// Send 发送一条命令。推送通道已连接时，在发送时刻注入 socket_id 和 access_token。
// 所有失败都以 Status=false 的 Response 返回，同时返回同一个错误。
func (c *Client) Send(ctx context.Context, method, endpoint string, params url.Values) (*types.Response, error) {
	return c.send(ctx, method, endpoint, params, true)
}

func (c *Client) send(ctx context.Context, method, endpoint string, params url.Values, inject bool) (*types.Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if params == nil {
		params = url.Values{}
	}
	if inject {
		c.injectIdentity(params)
	}

	if c.rateLimiter != nil {
		if err := c.rateLimiter.Wait(ctx, rateLimitKey(method, endpoint)); err != nil {
			return c.fail(endpoint, &types.TransportError{Detail: "rate limit wait: " + err.Error()})
		}
	}

	c.logger.Debugf("%s %s%s params=%v", method, c.env.TradingURL, endpoint, paramKeys(params))

	req := c.http.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "request")

	var resp *resty.Response
	var err error
	switch strings.ToUpper(method) {
	case http.MethodGet:
		resp, err = req.SetQueryParamsFromValues(params).Get(endpoint)
	case http.MethodPost:
		resp, err = req.SetFormDataFromValues(params).Post(endpoint)
	default:
		return c.fail(endpoint, &types.TransportError{Detail: "unsupported method: " + method})
	}
	if err != nil {
		return c.fail(endpoint, &types.TransportError{Detail: err.Error()})
	}

	out, err := parseResponse(resp.StatusCode(), resp.Body())
	if err != nil {
		c.logFailure(endpoint, err)
		if out == nil {
			out = types.Failed(err)
		}
		return out, err
	}
	return out, nil
}

// injectIdentity 每次都从通道读取 client id，重连后不会用到旧值
func (c *Client) injectIdentity(params url.Values) {
	ch := c.channelState()
	if ch == nil || !ch.Connected() {
		return
	}
	params.Set("socket_id", ch.ClientID())
	params.Set("access_token", c.Token())
}

func (c *Client) fail(endpoint string, err error) (*types.Response, error) {
	c.logFailure(endpoint, err)
	return types.Failed(err), err
}

func (c *Client) logFailure(endpoint string, err error) {
	switch err.(type) {
	case *types.BusinessError:
		c.logger.Warnf("%s not executed: %v", endpoint, err)
	default:
		c.logger.Errorf("failed to send request %s: %v", endpoint, err)
	}
}

// parseResponse 解析 {response: {executed, error}, ...payload}
func parseResponse(status int, body []byte) (*types.Response, error) {
	if status < 200 || status >= 300 {
		return nil, &types.TransportError{StatusCode: status, Detail: truncateForLog(string(body), 240)}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, &types.TransportError{StatusCode: status, Detail: "malformed response body: " + err.Error()}
	}
	rawMeta, ok := fields["response"]
	if !ok {
		return nil, &types.TransportError{StatusCode: status, Detail: "response body has no \"response\" field"}
	}
	var meta struct {
		Executed bool            `json:"executed"`
		Error    json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(rawMeta, &meta); err != nil {
		return nil, &types.TransportError{StatusCode: status, Detail: "malformed response field: " + err.Error()}
	}
	delete(fields, "response")

	out := &types.Response{StatusCode: status, Payload: fields}
	if !meta.Executed {
		out.Err = &types.BusinessError{Message: errorText(meta.Error)}
		return out, out.Err
	}
	out.Status = true
	return out, nil
}

func errorText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func rateLimitKey(method, endpoint string) string {
	switch {
	case strings.HasPrefix(endpoint, "/candles/"):
		return ratelimit.KeyCandlesGet
	case strings.HasPrefix(endpoint, "/trading/") && strings.EqualFold(method, http.MethodPost):
		return ratelimit.KeyTradingPost
	}
	return ratelimit.KeyGeneral
}

func paramKeys(params url.Values) []string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func truncateForLog(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "...(truncated)"
}
