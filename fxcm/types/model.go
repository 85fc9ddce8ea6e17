package types

// ModelKind 服务器端数据模型
type ModelKind int

const (
	ModelUnknown ModelKind = iota
	ModelOffer
	ModelAccount
	ModelOrder
	ModelOpenPosition
	ModelClosedPosition
	ModelSummary
	ModelLeverageProfile
	ModelProperties
)

var modelNames = map[ModelKind]string{
	ModelOffer:           "Offer",
	ModelAccount:         "Account",
	ModelOrder:           "Order",
	ModelOpenPosition:    "OpenPosition",
	ModelClosedPosition:  "ClosedPosition",
	ModelSummary:         "Summary",
	ModelLeverageProfile: "LeverageProfile",
	ModelProperties:      "Properties",
}

// get_model 快照中每个模型对应的字段名
var modelPayloadKeys = map[ModelKind]string{
	ModelOffer:           "offers",
	ModelAccount:         "accounts",
	ModelOrder:           "orders",
	ModelOpenPosition:    "open_positions",
	ModelClosedPosition:  "closed_positions",
	ModelSummary:         "summary",
	ModelLeverageProfile: "leverage_profile",
	ModelProperties:      "properties",
}

// AllModelKinds 返回所有已知模型，顺序固定
func AllModelKinds() []ModelKind {
	return []ModelKind{
		ModelOffer, ModelAccount, ModelOrder, ModelOpenPosition,
		ModelClosedPosition, ModelSummary, ModelLeverageProfile, ModelProperties,
	}
}

func (m ModelKind) String() string {
	if n, ok := modelNames[m]; ok {
		return n
	}
	return "Unknown"
}

// PayloadKey get_model 响应中的字段名
func (m ModelKind) PayloadKey() string {
	return modelPayloadKeys[m]
}

// Known 是否为已知模型
func (m ModelKind) Known() bool {
	_, ok := modelNames[m]
	return ok
}

// ParseModelKind 按名称解析模型，未知名称返回 ModelUnknown
func ParseModelKind(name string) ModelKind {
	for k, n := range modelNames {
		if n == name {
			return k
		}
	}
	return ModelUnknown
}

// ModelNames 将模型列表转换为名称列表
func ModelNames(kinds []ModelKind) []string {
	out := make([]string, 0, len(kinds))
	for _, k := range kinds {
		out = append(out, k.String())
	}
	return out
}
