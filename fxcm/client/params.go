package client

import (
	"net/url"
	"strconv"

	"github.com/betbot/gofx/fxcm/types"
)

// params 收集表单参数并记录缺失的必填项。
// 指针字段为 nil 视为缺失，false 和 0 是合法值。
type params struct {
	command string
	values  url.Values
	missing []string
}

func newParams(command string) *params {
	return &params{command: command, values: url.Values{}}
}

func (p *params) str(name, v string, required bool) {
	if v == "" {
		if required {
			p.missing = append(p.missing, name)
		}
		return
	}
	p.values.Set(name, v)
}

func (p *params) float(name string, v *float64, required bool) {
	if v == nil {
		if required {
			p.missing = append(p.missing, name)
		}
		return
	}
	p.values.Set(name, strconv.FormatFloat(*v, 'f', -1, 64))
}

func (p *params) boolean(name string, v *bool, required bool) {
	if v == nil {
		if required {
			p.missing = append(p.missing, name)
		}
		return
	}
	p.values.Set(name, strconv.FormatBool(*v))
}

func (p *params) list(name string, v []string, required bool) {
	if len(v) == 0 {
		if required {
			p.missing = append(p.missing, name)
		}
		return
	}
	p.values[name] = append([]string(nil), v...)
}

func (p *params) err() error {
	if len(p.missing) == 0 {
		return nil
	}
	return &types.MissingParameterError{Command: p.command, Params: p.missing}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func floatOrZero(v *float64) *float64 {
	if v == nil {
		return types.Float(0)
	}
	return v
}
