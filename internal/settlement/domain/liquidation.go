package domain

import (
	"sort"
)

// LiquidationOrder 返回按强平优先级排序的 OPEN 持仓 ID：
// 浮亏最深的在前（unrealizedPnL 升序），其次开仓时间早的在前，
// 最后按持仓 ID 升序兜底，保证排序全序且可重放。
func LiquidationOrder(positions map[string]PositionState) []string {
	open := make([]PositionState, 0, len(positions))
	for _, p := range positions {
		if p.Status == PositionStatusOpen {
			open = append(open, p)
		}
	}
	sort.Slice(open, func(i, j int) bool {
		a, b := open[i], open[j]
		if !a.UnrealizedPnL.Equal(b.UnrealizedPnL) {
			return a.UnrealizedPnL.LessThan(b.UnrealizedPnL)
		}
		if a.OpenedAt != b.OpenedAt {
			return a.OpenedAt < b.OpenedAt
		}
		return a.PositionID < b.PositionID
	})
	ids := make([]string, len(open))
	for i, p := range open {
		ids[i] = p.PositionID
	}
	return ids
}
