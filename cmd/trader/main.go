package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"futures-trader/internal/app"
	"futures-trader/internal/config"
	"futures-trader/internal/log"
	"futures-trader/internal/store"
)

func main() {
	// .env 仅承载凭证等环境变量，缺失不算错误。
	_ = godotenv.Load()

	cmd, configPath, err := parseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n\n", err)
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	logger, err := log.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer func(logger *zap.Logger) {
		_ = logger.Sync()
	}(logger)

	sqliteStore, err := store.NewSQLite(cfg.Database)
	if err != nil {
		logger.Error("初始化数据库失败", zap.Error(err))
		os.Exit(1)
	}
	defer func() {
		if closeErr := sqliteStore.Close(); closeErr != nil {
			logger.Warn("关闭数据库失败", zap.Error(closeErr))
		}
	}()

	trader := app.New(cfg, logger, sqliteStore)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := trader.Run(ctx, cmd); err != nil {
		logger.Error("命令执行异常", zap.Error(err))
		os.Exit(1)
	}
}

type requiredFlag struct {
	name  string
	value *string
}

// parseArgs 解析 `trader [-config path] <command> [flags]`。
// 每个命令的必填项在此强制：缺失即报错，绝不静默取默认值。
func parseArgs(args []string) (app.Command, string, error) {
	global := flag.NewFlagSet("trader", flag.ContinueOnError)
	configPath := global.String("config", "", "配置文件路径，默认使用 configs/config.yaml")
	if err := global.Parse(args); err != nil {
		return app.Command{}, "", err
	}

	rest := global.Args()
	if len(rest) == 0 {
		return app.Command{}, "", fmt.Errorf("缺少命令")
	}

	name := strings.ToLower(rest[0])
	cmd := app.Command{Name: name}

	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	symbol := fs.String("symbol", "", "交易对，如 BTCUSDT")
	side := fs.String("side", "", "方向：BUY 或 SELL")
	required := []requiredFlag{
		{"symbol", symbol},
		{"side", side},
	}

	// assign 在 Parse 之后执行，把各命令专属参数写回 cmd。
	var assign func()

	switch name {
	case app.CommandMarket:
		quantity := fs.String("quantity", "", "下单数量")
		required = append(required, requiredFlag{"quantity", quantity})
		assign = func() { cmd.Quantity = *quantity }
	case app.CommandLimit:
		quantity := fs.String("quantity", "", "下单数量")
		price := fs.String("price", "", "限价")
		required = append(required,
			requiredFlag{"quantity", quantity},
			requiredFlag{"price", price},
		)
		assign = func() {
			cmd.Quantity = *quantity
			cmd.Price = *price
		}
	case app.CommandOCO:
		quantity := fs.String("quantity", "", "下单数量")
		tp := fs.String("tp", "", "止盈限价")
		stop := fs.String("stop", "", "止损触发价")
		sl := fs.String("sl", "", "止损限价（STOP_MARKET 下保留）")
		required = append(required,
			requiredFlag{"quantity", quantity},
			requiredFlag{"tp", tp},
			requiredFlag{"stop", stop},
			requiredFlag{"sl", sl},
		)
		assign = func() {
			cmd.Quantity = *quantity
			cmd.TakeProfit = *tp
			cmd.StopTrigger = *stop
			cmd.StopLimit = *sl
		}
	case app.CommandGrid:
		total := fs.String("total_quantity", "", "网格总数量")
		lower := fs.String("lower_price", "", "网格下边界价格")
		upper := fs.String("upper_price", "", "网格上边界价格")
		count := fs.Int("grid_count", 0, "网格档数（不小于 2）")
		required = append(required,
			requiredFlag{"total_quantity", total},
			requiredFlag{"lower_price", lower},
			requiredFlag{"upper_price", upper},
		)
		assign = func() {
			cmd.TotalQuantity = *total
			cmd.LowerPrice = *lower
			cmd.UpperPrice = *upper
			cmd.GridCount = *count
		}
	case app.CommandTWAP:
		total := fs.String("total_quantity", "", "TWAP 总数量")
		slices := fs.Int("num_slices", 0, "分片数量")
		interval := fs.Int("interval", 0, "片间间隔（秒）")
		orderType := fs.String("type", "MARKET", "委托类型：MARKET 或 LIMIT")
		required = append(required, requiredFlag{"total_quantity", total})
		assign = func() {
			cmd.TotalQuantity = *total
			cmd.NumSlices = *slices
			cmd.IntervalSecs = *interval
			cmd.OrderType = strings.ToUpper(*orderType)
		}
	default:
		return app.Command{}, "", fmt.Errorf("未知命令 %q", name)
	}

	if err := fs.Parse(rest[1:]); err != nil {
		return app.Command{}, "", err
	}

	for _, rf := range required {
		if strings.TrimSpace(*rf.value) == "" {
			return app.Command{}, "", fmt.Errorf("%s 命令缺少必填参数 --%s", name, rf.name)
		}
	}

	cmd.Symbol = strings.ToUpper(*symbol)
	cmd.Side = strings.ToUpper(*side)
	assign()

	return cmd, *configPath, nil
}

func usage() {
	fmt.Fprint(os.Stderr, `用法: trader [-config 路径] <命令> [参数]

命令:
  market  --symbol --side --quantity
  limit   --symbol --side --quantity --price
  oco     --symbol --side --quantity --tp --stop --sl
  grid    --symbol --side --total_quantity --lower_price --upper_price --grid_count
  twap    --symbol --side --total_quantity --num_slices --interval [--type MARKET|LIMIT]
`)
}
