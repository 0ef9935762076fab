package domain

import (
	"github.com/shopspring/decimal"
)

// Policy 风控策略参数。全部以百分比或费率表示，可在运行期通过
// UPDATE_POLICIES 事件热更新。
type Policy struct {
	SafetyMarginLevel     decimal.Decimal `json:"safety_margin_level" mapstructure:"safety_margin_level"`
	MarginCallLevel       decimal.Decimal `json:"margin_call_level" mapstructure:"margin_call_level"`
	StopOutLevel          decimal.Decimal `json:"stop_out_level" mapstructure:"stop_out_level"`
	DefaultCommissionRate decimal.Decimal `json:"default_commission_rate" mapstructure:"default_commission_rate"`
	DailySwapRate         decimal.Decimal `json:"daily_swap_rate" mapstructure:"daily_swap_rate"`
}

// DefaultPolicy 返回缺省风控参数。
// 安全边际 125%，追保线 100%，强平线 20%，佣金 0.1%，隔夜费 0.01%/天。
func DefaultPolicy() Policy {
	return Policy{
		SafetyMarginLevel:     decimal.NewFromInt(125),
		MarginCallLevel:       decimal.NewFromInt(100),
		StopOutLevel:          decimal.NewFromInt(20),
		DefaultCommissionRate: decimal.NewFromFloat(0.001),
		DailySwapRate:         decimal.NewFromFloat(0.0001),
	}
}

// isZero 表示事件未携带策略阈值，更新时保持现值不变。
func (p Policy) isZero() bool {
	return p.SafetyMarginLevel.IsZero() && p.MarginCallLevel.IsZero() && p.StopOutLevel.IsZero() &&
		p.DefaultCommissionRate.IsZero() && p.DailySwapRate.IsZero()
}

func (p Policy) validate() bool {
	if p.SafetyMarginLevel.IsNegative() || p.MarginCallLevel.IsNegative() || p.StopOutLevel.IsNegative() {
		return false
	}
	if p.DefaultCommissionRate.IsNegative() || p.DailySwapRate.IsNegative() {
		return false
	}
	return p.StopOutLevel.LessThanOrEqual(p.MarginCallLevel)
}
