package client

import (
	"context"
	"net/http"
	"net/url"

	"github.com/betbot/gofx/fxcm/types"
)

// GetModel 获取一个或多个数据模型的当前快照
func (c *Client) GetModel(ctx context.Context, kinds ...types.ModelKind) (*types.Response, error) {
	params := url.Values{"models": types.ModelNames(kinds)}
	return c.Send(ctx, http.MethodGet, EndpointGetModel, params)
}

// Snapshot 获取单个模型的快照列表
func (c *Client) Snapshot(ctx context.Context, kind types.ModelKind) ([]types.Record, error) {
	resp, err := c.GetModel(ctx, kind)
	if err != nil {
		return nil, err
	}
	records, err := resp.Records(kind.PayloadKey())
	if err != nil {
		return nil, &types.TransportError{StatusCode: resp.StatusCode, Detail: err.Error()}
	}
	return records, nil
}

// SubscribeModels 订阅模型推送
func (c *Client) SubscribeModels(ctx context.Context, kinds ...types.ModelKind) (*types.Response, error) {
	return c.Send(ctx, http.MethodPost, EndpointModelSubscribe, url.Values{"models": types.ModelNames(kinds)})
}

// UnsubscribeModels 退订模型推送
func (c *Client) UnsubscribeModels(ctx context.Context, kinds ...types.ModelKind) (*types.Response, error) {
	return c.Send(ctx, http.MethodPost, EndpointModelUnsubscribe, url.Values{"models": types.ModelNames(kinds)})
}

// SubscribeSymbols 订阅品种报价
func (c *Client) SubscribeSymbols(ctx context.Context, pairs ...string) (*types.Response, error) {
	return c.Send(ctx, http.MethodPost, EndpointSubscribe, url.Values{"pairs": pairs})
}

// UnsubscribeSymbols 退订品种报价
func (c *Client) UnsubscribeSymbols(ctx context.Context, pairs ...string) (*types.Response, error) {
	return c.Send(ctx, http.MethodPost, EndpointUnsubscribe, url.Values{"pairs": pairs})
}

// Logout 结束交易会话
func (c *Client) Logout(ctx context.Context) (*types.Response, error) {
	return c.Send(ctx, http.MethodPost, EndpointLogout, nil)
}

// Permissions 查询账户/品种的权限对象
func (c *Client) Permissions(ctx context.Context) (*types.Response, error) {
	return c.Send(ctx, http.MethodGet, EndpointPermissions, nil)
}

// ChangePassword 修改密码
func (c *Client) ChangePassword(ctx context.Context, oldPassword, newPassword string) (*types.Response, error) {
	p := newParams("change_password")
	p.str("oldPswd", oldPassword, true)
	p.str("newPswd", newPassword, true)
	p.str("confirmNewPswd", newPassword, true)
	return c.post(ctx, EndpointChangePassword, p)
}
