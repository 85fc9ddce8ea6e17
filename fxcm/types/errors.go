package types

import (
	"fmt"
	"sort"
	"strings"
)

// AuthPhase 认证阶段
type AuthPhase int

const (
	// AuthPhaseToken OAuth 取外层 access token
	AuthPhaseToken AuthPhase = 1
	// AuthPhaseSession 用外层 token 换取交易会话 token
	AuthPhaseSession AuthPhase = 2
)

func (p AuthPhase) String() string {
	switch p {
	case AuthPhaseToken:
		return "oauth"
	case AuthPhaseSession:
		return "trading-session"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// AuthenticationError 两阶段认证中任一阶段失败
type AuthenticationError struct {
	Phase      AuthPhase
	StatusCode int
	Detail     string
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication failed at %s phase (status=%d): %s", e.Phase, e.StatusCode, e.Detail)
}

// TransportError 非 2xx、网络错误或无法解析的响应体
type TransportError struct {
	StatusCode int
	Detail     string
}

func (e *TransportError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("transport error (status=%d): %s", e.StatusCode, e.Detail)
	}
	return "transport error: " + e.Detail
}

// BusinessError 服务器返回 executed=false
type BusinessError struct {
	Message string
}

func (e *BusinessError) Error() string {
	if e.Message == "" {
		return "command not executed"
	}
	return "command not executed: " + e.Message
}

// MissingParameterError 必填参数缺失，在发请求之前返回
type MissingParameterError struct {
	Command string
	Params  []string
}

func (e *MissingParameterError) Error() string {
	return fmt.Sprintf("%s: missing required parameter(s): %s", e.Command, strings.Join(e.Params, ", "))
}

// UnknownInstrumentError 品种无法解析为数字 ID
type UnknownInstrumentError struct {
	Instrument string
}

func (e *UnknownInstrumentError) Error() string {
	return fmt.Sprintf("instrument %s not found", e.Instrument)
}

// SubscriptionError 批量订阅/退订中部分 key 失败
type SubscriptionError struct {
	Failures map[string]error
}

func (e *SubscriptionError) Error() string {
	keys := make([]string, 0, len(e.Failures))
	for k := range e.Failures {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %v", k, e.Failures[k]))
	}
	return fmt.Sprintf("%d subscription(s) failed: %s", len(keys), strings.Join(parts, "; "))
}
