// Package config 加载 textfit 的运行配置（textfit.yaml + TEXTFIT_* 环境变量），
// 并把 DSL 中 clamp 的属性表解码为截断参数。
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ByLCY/textfit/fit"
)

type Config struct {
	LogLevel string       `mapstructure:"log_level"`
	Fit      FitConfig    `mapstructure:"fit"`
	Render   RenderConfig `mapstructure:"render"`
	Watch    WatchConfig  `mapstructure:"watch"`
}

// FitConfig 是所有 clamp 的默认截断参数，可被 DSL 属性覆盖。
type FitConfig struct {
	Ellipsis    string `mapstructure:"ellipsis"`
	Granularity string `mapstructure:"granularity"`
	MaxProbes   int    `mapstructure:"max_probes"`
}

type RenderConfig struct {
	Backend   string  `mapstructure:"backend"` // canvas | terminal
	CellWidth float64 `mapstructure:"cell_width"`
	Margin    float64 `mapstructure:"margin"`
}

type WatchConfig struct {
	Debounce    time.Duration `mapstructure:"debounce"`
	MetricsAddr string        `mapstructure:"metrics_addr"`
}

func defaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Fit: FitConfig{
			Ellipsis:    fit.DefaultEllipsis,
			Granularity: "grapheme",
		},
		Render: RenderConfig{
			Backend:   "canvas",
			CellWidth: 2,
			Margin:    10,
		},
		Watch: WatchConfig{
			Debounce: 150 * time.Millisecond,
		},
	}
}

// Load 读取配置。configPath 为空时在当前目录与 ~/.config/textfit 中查找 textfit.yaml，
// 找不到文件时使用默认值。
func Load(configPath string) (*Config, error) {
	v := viper.New()

	cfg := defaultConfig()
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("fit.ellipsis", cfg.Fit.Ellipsis)
	v.SetDefault("fit.granularity", cfg.Fit.Granularity)
	v.SetDefault("fit.max_probes", cfg.Fit.MaxProbes)
	v.SetDefault("render.backend", cfg.Render.Backend)
	v.SetDefault("render.cell_width", cfg.Render.CellWidth)
	v.SetDefault("render.margin", cfg.Render.Margin)
	v.SetDefault("watch.debounce", cfg.Watch.Debounce)
	v.SetDefault("watch.metrics_addr", cfg.Watch.MetricsAddr)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("textfit")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/textfit")
	}

	v.SetEnvPrefix("TEXTFIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return &config, nil
}

// Options 把配置转换为 fit.Options。
func (c FitConfig) Options() (fit.Options, error) {
	g, ok := fit.ParseGranularity(c.Granularity)
	if !ok {
		return fit.Options{}, fmt.Errorf("未知截断粒度 %q", c.Granularity)
	}
	return fit.Options{Ellipsis: c.Ellipsis, Granularity: g, MaxProbes: c.MaxProbes}, nil
}
