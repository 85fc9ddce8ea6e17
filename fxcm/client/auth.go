package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/betbot/gofx/fxcm/types"
)

// tradingClientID 第二阶段换取交易 token 时固定使用的 client_id
const tradingClientID = "TRADING"

// Authenticate 两阶段认证：先向 OAuth 地址取外层 token，再到 /authenticate 换取交易会话 token。
// 成功后 token 会保存在客户端中。
func (c *Client) Authenticate(ctx context.Context, username, password string) (string, error) {
	outer, err := c.requestOuterToken(ctx, username, password)
	if err != nil {
		c.logger.Criticalf("could not authenticate: %v", err)
		return "", err
	}

	params := url.Values{}
	params.Set("client_id", tradingClientID)
	params.Set("access_token", outer)
	resp, err := c.send(ctx, http.MethodPost, EndpointAuthenticate, params, false)
	if err != nil {
		authErr := &types.AuthenticationError{Phase: types.AuthPhaseSession, StatusCode: resp.StatusCode, Detail: err.Error()}
		c.logger.Criticalf("could not authenticate: %v", authErr)
		return "", authErr
	}

	var token string
	if err := resp.Decode("access_token", &token); err != nil || token == "" {
		authErr := &types.AuthenticationError{Phase: types.AuthPhaseSession, StatusCode: resp.StatusCode, Detail: "response carries no access_token"}
		c.logger.Criticalf("could not authenticate: %v", authErr)
		return "", authErr
	}

	c.SetToken(token)
	return token, nil
}

func (c *Client) requestOuterToken(ctx context.Context, username, password string) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetFormData(map[string]string{
			"client_id":     c.clientID,
			"client_secret": c.clientSecret,
			"grant_type":    "password",
			"username":      username,
			"password":      password,
		}).
		Post(c.env.AuthURL)
	if err != nil {
		return "", &types.AuthenticationError{Phase: types.AuthPhaseToken, Detail: err.Error()}
	}
	if resp.StatusCode() != http.StatusOK {
		return "", &types.AuthenticationError{
			Phase:      types.AuthPhaseToken,
			StatusCode: resp.StatusCode(),
			Detail:     truncateForLog(string(resp.Body()), 240),
		}
	}

	var body struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(resp.Body(), &body); err != nil || body.AccessToken == "" {
		return "", &types.AuthenticationError{
			Phase:      types.AuthPhaseToken,
			StatusCode: resp.StatusCode(),
			Detail:     "token response carries no access_token",
		}
	}
	return body.AccessToken, nil
}
