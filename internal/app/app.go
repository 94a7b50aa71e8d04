package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"futures-trader/internal/account"
	"futures-trader/internal/config"
	"futures-trader/internal/exchange"
	"futures-trader/internal/execution"
	"futures-trader/internal/journal"
	"futures-trader/internal/store"
)

// App 聚合核心依赖并执行单条下单命令。
// 所有协作方都通过构造函数显式传入，不存在进程级共享的客户端或日志器。
type App struct {
	cfg    *config.Config
	logger *zap.Logger
	store  *store.Store
}

// New 创建 App 实例。
func New(cfg *config.Config, logger *zap.Logger, store *store.Store) *App {
	return &App{
		cfg:    cfg,
		logger: logger,
		store:  store,
	}
}

// Run 执行一条命令：构建网关、资金检查器与执行引擎，
// 分发到对应策略，并把结果写入执行日志。
func (a *App) Run(ctx context.Context, cmd Command) error {
	a.logger.Info("开始执行命令",
		zap.String("command", cmd.Name),
		zap.String("symbol", cmd.symbol()),
		zap.String("environment", a.cfg.App.Environment),
		zap.Bool("sandbox", a.cfg.Exchange.UseSandbox),
	)

	gateway, err := exchange.NewClient(a.cfg.Exchange, a.logger)
	if err != nil {
		return fmt.Errorf("初始化交易所客户端失败: %w", err)
	}

	guard := account.NewGuard(gateway, a.cfg.Exchange.SettleAsset, a.logger)
	engine := execution.NewEngine(gateway, guard, execution.Options{
		SlicePrecision: a.cfg.Execution.SlicePrecision,
	}, a.logger)

	journalSvc, err := journal.NewService(a.store, a.logger)
	if err != nil {
		return fmt.Errorf("初始化执行日志失败: %w", err)
	}

	journalSvc.RecordCommandStarted(ctx, cmd.Name, cmd.symbol(), cmd.Args())

	report, err := a.dispatch(ctx, engine, cmd)
	if err != nil {
		journalSvc.RecordFailure(ctx, cmd.Name, cmd.symbol(), report, err)
		a.reportFailure(cmd, report, err)
		return err
	}

	journalSvc.RecordReport(ctx, report)
	a.logger.Info("命令执行完成",
		zap.String("command", cmd.Name),
		zap.String("symbol", report.Symbol),
		zap.Int("planned", report.Planned),
		zap.Int("completed", report.Completed()),
	)
	return nil
}

func (a *App) dispatch(ctx context.Context, engine *execution.Engine, cmd Command) (execution.Report, error) {
	switch cmd.Name {
	case CommandMarket:
		params, err := cmd.toOrderParams(false)
		if err != nil {
			return execution.Report{}, err
		}
		return engine.PlaceMarket(ctx, params)
	case CommandLimit:
		params, err := cmd.toOrderParams(true)
		if err != nil {
			return execution.Report{}, err
		}
		return engine.PlaceLimit(ctx, params)
	case CommandOCO:
		params, err := cmd.toOCOParams()
		if err != nil {
			return execution.Report{}, err
		}
		return engine.PlaceOCO(ctx, params)
	case CommandGrid:
		params, err := cmd.toGridParams()
		if err != nil {
			return execution.Report{}, err
		}
		return engine.ExecuteGrid(ctx, params)
	case CommandTWAP:
		params, err := cmd.toTWAPParams()
		if err != nil {
			return execution.Report{}, err
		}
		return engine.ExecuteTWAP(ctx, params)
	default:
		return execution.Report{}, &execution.ConfigError{
			Reason: fmt.Sprintf("未知命令 %q", cmd.Name),
		}
	}
}

// reportFailure 把失败结果按错误类别落到日志：
// 部分失败必须枚举仍在场的子单，供操作员手工核对或撤销。
func (a *App) reportFailure(cmd Command, report execution.Report, err error) {
	var partial *execution.PartialFailureError
	if errors.As(err, &partial) {
		fields := []zap.Field{
			zap.String("command", cmd.Name),
			zap.String("symbol", report.Symbol),
			zap.Int("planned", partial.Planned),
			zap.Int("live", len(partial.Succeeded)),
			zap.NamedError("cause", partial.Cause),
		}
		for _, child := range partial.Succeeded {
			fields = append(fields, zap.String(
				fmt.Sprintf("live_order_%d", child.Index+1), child.OrderID))
		}
		a.logger.Error("策略部分失败，存在需人工处理的在场委托", fields...)
		return
	}

	a.logger.Error("命令执行失败",
		zap.String("command", cmd.Name),
		zap.String("symbol", cmd.symbol()),
		zap.Error(err),
	)
}
