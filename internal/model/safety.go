package model

// Severity 安全检查失败的严重级别
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// 安全检查类型
const (
	CheckPositionSize     = "POSITION_SIZE"
	CheckDailyTradeLimit  = "DAILY_TRADE_LIMIT"
	CheckDrawdown         = "DRAWDOWN"
	CheckConfidenceFloor  = "CONFIDENCE_FLOOR"
	CheckConflictingOrder = "CONFLICTING_ORDER"
)

// SafetyCheck 单项安全检查的结果
// 检查失败不是错误，是常规的预期结果，总是上报，从不抛出
type SafetyCheck struct {
	Type     string
	Passed   bool
	Message  string
	Severity Severity
}

// OverallValid 聚合判定: 没有任何 HIGH 或 CRITICAL 级别的失败才算通过
func OverallValid(checks []SafetyCheck) bool {
	for _, c := range checks {
		if c.Passed {
			continue
		}
		if c.Severity == SeverityHigh || c.Severity == SeverityCritical {
			return false
		}
	}
	return true
}
