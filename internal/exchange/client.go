package exchange

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	ccxt "github.com/ccxt/ccxt/go/v4"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"futures-trader/internal/config"
)

// Client 负责与币安 USDⓈ-M 合约交互，是核心逻辑唯一的下单出口。
type Client struct {
	cfg      config.ExchangeConfig
	logger   *zap.Logger
	exchange *ccxt.Binanceusdm

	marketsMu     sync.Mutex
	marketsLoaded bool
	markets       map[string]ccxt.MarketInterface
}

// NewClient 构造 Binance USDⓈ-M 客户端。
func NewClient(cfg config.ExchangeConfig, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	userConfig := map[string]interface{}{
		"enableRateLimit": true,
		"options": map[string]interface{}{
			"adjustForTimeDifference": true,
			"defaultType":             "future",
		},
	}

	if cfg.APIKey != "" {
		userConfig["apiKey"] = cfg.APIKey
	}
	if cfg.APISecret != "" {
		userConfig["secret"] = cfg.APISecret
	}

	ex := ccxt.NewBinanceusdm(userConfig)
	if cfg.UseSandbox {
		ex.SetSandboxMode(true)
	}

	return &Client{
		cfg:      cfg,
		logger:   logger,
		exchange: ex,
	}, nil
}

// SymbolConstraints 返回指定交易对的量化约束。
// 约束取自交易所原始过滤器字符串，经 decimal 无损解析。
func (c *Client) SymbolConstraints(ctx context.Context, symbol string) (SymbolConstraints, error) {
	market, err := c.resolveMarket(ctx, symbol)
	if err != nil {
		return SymbolConstraints{}, err
	}

	constraints, err := parseConstraints(symbol, market.Info)
	if err != nil {
		return SymbolConstraints{}, err
	}

	return constraints, nil
}

// MarkPrice 返回交易对当前标记价格。
func (c *Client) MarkPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	market, err := c.resolveMarket(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}

	var ticker ccxt.Ticker
	err = c.callWithRetry(ctx, "fetch_mark_price", func() error {
		result, fetchErr := c.exchange.FetchMarkPrice(derefString(market.Symbol))
		if fetchErr != nil {
			return fetchErr
		}
		ticker = result
		return nil
	})
	if err != nil {
		return decimal.Zero, newFault("fetch_mark_price", err)
	}

	price := derefFloat(ticker.MarkPrice)
	if price == 0 && ticker.Info != nil {
		price = parseNumeric(ticker.Info["markPrice"])
	}
	if price == 0 {
		price = derefFloat(ticker.Last)
	}
	if price <= 0 {
		return decimal.Zero, &Fault{Op: "fetch_mark_price", Message: fmt.Sprintf("交易所未返回 %s 的标记价格", symbol)}
	}

	return decimal.NewFromFloat(price), nil
}

// AvailableBalance 返回结算资产的可用余额。
func (c *Client) AvailableBalance(ctx context.Context, asset string) (decimal.Decimal, error) {
	var balances ccxt.Balances
	err := c.callWithRetry(ctx, "fetch_balance", func() error {
		result, fetchErr := c.exchange.FetchBalance()
		if fetchErr != nil {
			return fetchErr
		}
		balances = result
		return nil
	})
	if err != nil {
		return decimal.Zero, newFault("fetch_balance", err)
	}

	if balances.Free != nil {
		if free, ok := balances.Free[strings.ToUpper(asset)]; ok && free != nil {
			return decimal.NewFromFloat(*free), nil
		}
	}

	// 账户从未入金时交易所可能不返回该资产条目，视为零余额而非故障。
	return decimal.Zero, nil
}

// SubmitOrder 向交易所提交一笔委托并返回回执。
func (c *Client) SubmitOrder(ctx context.Context, spec OrderSpec) (OrderResult, error) {
	market, err := c.resolveMarket(ctx, spec.Symbol)
	if err != nil {
		return OrderResult{}, err
	}

	unified := derefString(market.Symbol)
	side := strings.ToLower(string(spec.Side))
	amount := spec.Quantity.InexactFloat64()

	var order ccxt.Order
	submit := func() error {
		var submitErr error
		switch spec.Kind {
		case KindMarket:
			order, submitErr = c.exchange.CreateMarketOrder(unified, side, amount)
		case KindLimit:
			params := map[string]interface{}{}
			if spec.TimeInForce != "" {
				params["timeInForce"] = spec.TimeInForce
			}
			order, submitErr = c.exchange.CreateLimitOrder(
				unified, side, amount, spec.Price.InexactFloat64(),
				ccxt.WithCreateLimitOrderParams(params),
			)
		case KindStopMarket:
			params := map[string]interface{}{
				"stopPrice":   spec.StopPrice.InexactFloat64(),
				"workingType": "MARK_PRICE",
			}
			order, submitErr = c.exchange.CreateOrder(
				unified, "market", side, amount,
				ccxt.WithCreateOrderParams(params),
			)
		default:
			return fmt.Errorf("exchange: 不支持的委托类型 %s", spec.Kind)
		}
		return submitErr
	}

	err = c.callWithRetry(ctx, "create_order", func() error {
		return c.runWithTimeout(ctx, submit)
	})
	if err != nil {
		return OrderResult{}, newFault("create_order", err)
	}

	result := OrderResult{
		OrderID:   derefString(order.Id),
		Symbol:    spec.Symbol,
		Side:      string(spec.Side),
		Kind:      string(spec.Kind),
		Quantity:  spec.Quantity,
		Price:     spec.Price,
		Status:    strings.ToUpper(derefString(order.Status)),
		Timestamp: time.Now().UTC(),
	}
	if echoed := derefFloat(order.Amount); echoed > 0 {
		result.Quantity = decimal.NewFromFloat(echoed)
	}
	if echoed := derefFloat(order.Price); echoed > 0 {
		result.Price = decimal.NewFromFloat(echoed)
	}

	return result, nil
}

// runWithTimeout 为单次提交施加可配置的超时。
// 超时后底层调用所在的 goroutine 会继续运行直至自行返回，结果被丢弃。
func (c *Client) runWithTimeout(ctx context.Context, fn func() error) error {
	if c.cfg.SubmitTimeout <= 0 {
		return fn()
	}

	done := make(chan error, 1)
	go func() {
		done <- fn()
	}()

	timer := time.NewTimer(c.cfg.SubmitTimeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("exchange: 提交超时（超过 %s）", c.cfg.SubmitTimeout)
	}
}

// resolveMarket 按统一符号或交易所原始 ID（如 BTCUSDT）查找市场，大小写不敏感。
func (c *Client) resolveMarket(ctx context.Context, symbol string) (ccxt.MarketInterface, error) {
	if err := c.ensureMarketsLoaded(ctx); err != nil {
		return ccxt.MarketInterface{}, err
	}

	if market, ok := c.markets[symbol]; ok {
		return market, nil
	}

	for _, market := range c.markets {
		if strings.EqualFold(derefString(market.Id), symbol) ||
			strings.EqualFold(derefString(market.Symbol), symbol) {
			return market, nil
		}
	}

	return ccxt.MarketInterface{}, fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
}

func (c *Client) ensureMarketsLoaded(ctx context.Context) error {
	c.marketsMu.Lock()
	defer c.marketsMu.Unlock()

	if c.marketsLoaded {
		return nil
	}

	var markets map[string]ccxt.MarketInterface
	loadErr := c.callWithRetry(ctx, "load_markets", func() error {
		result, err := c.exchange.LoadMarkets()
		if err != nil {
			return err
		}
		markets = result
		return nil
	})
	if loadErr != nil {
		return newFault("load_markets", loadErr)
	}

	c.markets = markets
	c.marketsLoaded = true
	c.logger.Info("已完成市场元数据加载", zap.Int("markets", len(markets)))
	return nil
}

// callWithRetry 以配置驱动的退避重试执行网关调用。
// max_attempts 默认为 1，任何网关故障都不自动重试。
func (c *Client) callWithRetry(ctx context.Context, operation string, fn func() error) error {
	attempt := 0
	maxAttempts := c.cfg.Retry.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	delay := c.cfg.Retry.MinDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	maxDelay := c.cfg.Retry.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 5 * time.Second
	}

	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		attempt++
		start := time.Now()
		err := fn()
		duration := time.Since(start)
		if err == nil {
			if attempt > 1 {
				c.logger.Info("交易所调用重试后成功",
					zap.String("operation", operation),
					zap.Int("attempts", attempt),
					zap.Duration("latency", duration),
				)
			}
			return nil
		}

		normalizedErr, retry := c.classifyError(err)

		if errors.Is(normalizedErr, ErrMaintenance) {
			c.logger.Warn("交易所维护中",
				zap.String("operation", operation),
				zap.Error(normalizedErr),
			)
			return normalizedErr
		}

		if !retry || attempt >= maxAttempts {
			c.logger.Error("交易所调用失败",
				zap.String("operation", operation),
				zap.Int("attempts", attempt),
				zap.Duration("latency", duration),
				zap.Error(normalizedErr),
			)
			return normalizedErr
		}

		wait := delay
		if wait > maxDelay {
			wait = maxDelay
		}

		c.logger.Warn("交易所调用失败，等待重试",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(normalizedErr),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}

func (c *Client) classifyError(err error) (error, bool) {
	if err == nil {
		return nil, false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err, false
	}

	var ccxtErr *ccxt.Error
	if errors.As(err, &ccxtErr) {
		if ccxtErr.Type == ccxt.OnMaintenanceErrType {
			message := strings.TrimSpace(ccxtErr.Message)
			if message == "" {
				message = "exchange under maintenance"
			}
			return fmt.Errorf("%w: %s", ErrMaintenance, message), false
		}
		return err, IsRetryable(err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return err, true
	}

	return err, false
}

// parseConstraints 从币安原始市场信息中提取 LOT_SIZE / PRICE_FILTER 约束。
func parseConstraints(symbol string, info map[string]interface{}) (SymbolConstraints, error) {
	constraints := SymbolConstraints{Symbol: symbol}

	rawFilters, ok := info["filters"].([]interface{})
	if !ok {
		return constraints, &Fault{Op: "load_markets", Message: fmt.Sprintf("交易对 %s 缺少过滤器信息", symbol)}
	}

	var haveLot, havePrice bool
	for _, raw := range rawFilters {
		filter, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		switch stringField(filter, "filterType") {
		case "LOT_SIZE":
			minQty, err := decimalField(filter, "minQty")
			if err != nil {
				return constraints, err
			}
			step, err := decimalField(filter, "stepSize")
			if err != nil {
				return constraints, err
			}
			constraints.MinQuantity = minQty
			constraints.QuantityStep = step
			haveLot = true
		case "PRICE_FILTER":
			minPrice, err := decimalField(filter, "minPrice")
			if err != nil {
				return constraints, err
			}
			tick, err := decimalField(filter, "tickSize")
			if err != nil {
				return constraints, err
			}
			constraints.MinPrice = minPrice
			constraints.PriceTick = tick
			havePrice = true
		}
	}

	if !haveLot || !havePrice {
		return constraints, &Fault{Op: "load_markets", Message: fmt.Sprintf("交易对 %s 的过滤器不完整", symbol)}
	}
	if constraints.QuantityStep.Sign() <= 0 || constraints.PriceTick.Sign() <= 0 {
		return constraints, &Fault{Op: "load_markets", Message: fmt.Sprintf("交易对 %s 的步长非法", symbol)}
	}

	return constraints, nil
}

func stringField(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func decimalField(m map[string]interface{}, key string) (decimal.Decimal, error) {
	raw := stringField(m, key)
	if raw == "" {
		return decimal.Zero, &Fault{Op: "load_markets", Message: fmt.Sprintf("过滤器字段 %s 缺失", key)}
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, &Fault{Op: "load_markets", Message: fmt.Sprintf("过滤器字段 %s 解析失败: %v", key, err)}
	}
	return value, nil
}

func parseNumeric(value interface{}) float64 {
	switch v := value.(type) {
	case float64:
		return v
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0
		}
		return parsed
	default:
		return 0
	}
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func derefFloat(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
