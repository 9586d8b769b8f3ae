// Package safety 实现独立于策略的信号安全校验
// 校验失败不是错误: 结果总是完整的检查列表加聚合判定，从不抛出
package safety

import (
	"fmt"

	"crypto-trade-engine/internal/model"

	"go.uber.org/zap"
)

// Config 安全引擎的全局限制
type Config struct {
	MaxPositionSize float64 // 单笔订单价值占组合价值的最大比例
	MaxDailyTrades  int     // 当日最大成交笔数
	MaxDrawdown     float64 // 最大允许回撤比例
	MinConfidence   float64 // 全局置信度下限
}

// Context 校验时的上下文快照，由引擎从当前状态构建
type Context struct {
	ActiveOrders    []*model.Order
	TradesToday     int
	PortfolioValue  float64
	CurrentDrawdown float64
	// EstimatedValue 是引擎在校验前用策略实际定出的仓位算出的订单价值
	// (size × price)，而不是占位估计
	EstimatedValue float64
}

// Engine 无状态校验器: 对每个信号跑一套固定的检查
type Engine struct {
	cfg    Config
	logger *zap.SugaredLogger
}

func NewEngine(cfg Config, logger *zap.SugaredLogger) *Engine {
	return &Engine{cfg: cfg, logger: logger}
}

// ValidateSignal 按固定顺序执行全部检查并返回完整列表和聚合判定
// 判定规则: 不存在 HIGH 或 CRITICAL 级别的失败即为通过
func (e *Engine) ValidateSignal(sig *model.Signal, ctx Context) ([]model.SafetyCheck, bool) {
	checks := []model.SafetyCheck{
		e.checkPositionSize(ctx),
		e.checkDailyTradeLimit(ctx),
		e.checkDrawdown(ctx),
		e.checkConfidenceFloor(sig),
		e.checkConflictingOrder(sig, ctx),
	}
	valid := model.OverallValid(checks)
	if !valid {
		e.logger.Infow("Signal failed safety validation",
			"strategy", sig.StrategyID, "symbol", sig.Symbol, "side", sig.Side)
	}
	return checks, valid
}

// checkPositionSize 订单价值 / 组合价值 <= 上限，失败为 HIGH
func (e *Engine) checkPositionSize(ctx Context) model.SafetyCheck {
	check := model.SafetyCheck{Type: model.CheckPositionSize, Severity: model.SeverityHigh}
	if ctx.PortfolioValue <= 0 {
		check.Message = "portfolio value is not positive"
		return check
	}
	ratio := ctx.EstimatedValue / ctx.PortfolioValue
	if ratio > e.cfg.MaxPositionSize {
		check.Message = fmt.Sprintf("estimated order value %.2f is %.1f%% of portfolio, limit %.1f%%",
			ctx.EstimatedValue, ratio*100, e.cfg.MaxPositionSize*100)
		return check
	}
	check.Passed = true
	check.Message = fmt.Sprintf("position size %.1f%% within limit %.1f%%", ratio*100, e.cfg.MaxPositionSize*100)
	return check
}

// checkDailyTradeLimit 当日成交笔数 < 上限，失败为 MEDIUM
func (e *Engine) checkDailyTradeLimit(ctx Context) model.SafetyCheck {
	check := model.SafetyCheck{Type: model.CheckDailyTradeLimit, Severity: model.SeverityMedium}
	if ctx.TradesToday >= e.cfg.MaxDailyTrades {
		check.Message = fmt.Sprintf("daily trade limit reached: %d of %d", ctx.TradesToday, e.cfg.MaxDailyTrades)
		return check
	}
	check.Passed = true
	check.Message = fmt.Sprintf("trades today %d of %d", ctx.TradesToday, e.cfg.MaxDailyTrades)
	return check
}

// checkDrawdown 当前回撤 <= 上限，失败为 CRITICAL (单独否决整个校验)
func (e *Engine) checkDrawdown(ctx Context) model.SafetyCheck {
	check := model.SafetyCheck{Type: model.CheckDrawdown, Severity: model.SeverityCritical}
	if ctx.CurrentDrawdown > e.cfg.MaxDrawdown {
		check.Message = fmt.Sprintf("current drawdown %.2f%% exceeds max %.2f%%",
			ctx.CurrentDrawdown*100, e.cfg.MaxDrawdown*100)
		return check
	}
	check.Passed = true
	check.Message = fmt.Sprintf("drawdown %.2f%% within max %.2f%%", ctx.CurrentDrawdown*100, e.cfg.MaxDrawdown*100)
	return check
}

// checkConfidenceFloor 信号置信度 >= 全局下限，失败为 MEDIUM
func (e *Engine) checkConfidenceFloor(sig *model.Signal) model.SafetyCheck {
	check := model.SafetyCheck{Type: model.CheckConfidenceFloor, Severity: model.SeverityMedium}
	if sig.Confidence < e.cfg.MinConfidence {
		check.Message = fmt.Sprintf("signal confidence %.1f below global minimum %.1f", sig.Confidence, e.cfg.MinConfidence)
		return check
	}
	check.Passed = true
	check.Message = fmt.Sprintf("confidence %.1f meets minimum %.1f", sig.Confidence, e.cfg.MinConfidence)
	return check
}

// checkConflictingOrder 同一交易对上不存在反方向的未完结订单，失败为 HIGH
func (e *Engine) checkConflictingOrder(sig *model.Signal, ctx Context) model.SafetyCheck {
	check := model.SafetyCheck{Type: model.CheckConflictingOrder, Severity: model.SeverityHigh}
	for _, o := range ctx.ActiveOrders {
		if o == nil || o.Status.IsTerminal() {
			continue
		}
		if o.Symbol == sig.Symbol && o.Side == sig.Side.Opposite() {
			check.Message = fmt.Sprintf("open %s order %s conflicts with %s signal on %s",
				o.Side, o.OrderID, sig.Side, sig.Symbol)
			return check
		}
	}
	check.Passed = true
	check.Message = "no conflicting open orders"
	return check
}

// FailureReasons 提取失败检查的文字描述，用于拒绝事件
func FailureReasons(checks []model.SafetyCheck) []string {
	var reasons []string
	for _, c := range checks {
		if !c.Passed {
			reasons = append(reasons, fmt.Sprintf("[%s/%s] %s", c.Type, c.Severity, c.Message))
		}
	}
	return reasons
}
