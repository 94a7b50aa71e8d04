package config

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
)

// Config 聚合系统运行所需的全部配置项。
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Exchange  ExchangeConfig  `mapstructure:"exchange"`
	Execution ExecutionConfig `mapstructure:"execution"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// AppConfig 控制应用级参数。
type AppConfig struct {
	Environment string `mapstructure:"environment"`
}

// ExchangeConfig 描述交易所连接信息。
type ExchangeConfig struct {
	Name        string        `mapstructure:"name"`
	SettleAsset string        `mapstructure:"settle_asset"`
	APIKey      string        `mapstructure:"api_key"`
	APISecret   string        `mapstructure:"api_secret"`
	UseSandbox  bool          `mapstructure:"use_sandbox"`
	// SubmitTimeout 为单次提交的超时，0 表示不设超时。
	SubmitTimeout time.Duration `mapstructure:"submit_timeout"`
	Retry         RetryConfig   `mapstructure:"retry"`
}

// RetryConfig 控制网关调用重试。max_attempts 为 1 时从不自动重试。
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	MinDelay    time.Duration `mapstructure:"min_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

// ExecutionConfig 控制多子单执行行为。
type ExecutionConfig struct {
	SlicePrecision int32 `mapstructure:"slice_precision"`
}

// DatabaseConfig 管理执行日志数据库连接。
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	InMemory        bool          `mapstructure:"in_memory"`
}

// LoggingConfig 控制日志输出。
type LoggingConfig struct {
	Level            string   `mapstructure:"level"`
	Encoding         string   `mapstructure:"encoding"`
	Development      bool     `mapstructure:"development"`
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

// Validate 对配置进行基本校验。
func (c *Config) Validate() error {
	var err error

	if c.App.Environment == "" {
		err = multierr.Append(err, errors.New("app.environment 不能为空"))
	}
	if c.Exchange.Name == "" {
		err = multierr.Append(err, errors.New("exchange.name 不能为空"))
	}
	if c.Exchange.SettleAsset == "" {
		err = multierr.Append(err, errors.New("exchange.settle_asset 不能为空"))
	}
	if c.Exchange.SubmitTimeout < 0 {
		err = multierr.Append(err, errors.New("exchange.submit_timeout 不能为负"))
	}
	if c.Exchange.Retry.MaxAttempts <= 0 {
		err = multierr.Append(err, errors.New("exchange.retry.max_attempts 必须大于0"))
	}
	if c.Exchange.Retry.MaxAttempts > 1 {
		if c.Exchange.Retry.MinDelay <= 0 || c.Exchange.Retry.MaxDelay <= 0 {
			err = multierr.Append(err, errors.New("exchange.retry.delay 必须为正"))
		}
		if c.Exchange.Retry.MinDelay > c.Exchange.Retry.MaxDelay {
			err = multierr.Append(err, errors.New("exchange.retry.min_delay 不能大于 max_delay"))
		}
	}
	if c.Execution.SlicePrecision <= 0 || c.Execution.SlicePrecision > 18 {
		err = multierr.Append(err, errors.New("execution.slice_precision 必须位于[1,18]"))
	}
	if c.Database.Path == "" && !c.Database.InMemory {
		err = multierr.Append(err, errors.New("database.path 不能为空"))
	}
	if c.Database.MaxOpenConns <= 0 {
		err = multierr.Append(err, errors.New("database.max_open_conns 必须大于0"))
	}
	if c.Database.MaxIdleConns < 0 {
		err = multierr.Append(err, errors.New("database.max_idle_conns 不能为负"))
	}
	if c.Database.ConnMaxLifetime < 0 {
		err = multierr.Append(err, errors.New("database.conn_max_lifetime 不能为负"))
	}
	if c.Logging.Level == "" {
		err = multierr.Append(err, errors.New("logging.level 不能为空"))
	}
	if c.Logging.Encoding == "" {
		err = multierr.Append(err, errors.New("logging.encoding 不能为空"))
	}
	if len(c.Logging.OutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.output_paths 至少包含一个输出目标"))
	}
	if len(c.Logging.ErrorOutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.error_output_paths 至少包含一个输出目标"))
	}

	if err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}

	return nil
}
