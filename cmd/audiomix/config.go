package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/opd-ai/audiomix/pcm"
)

// appConfig is the merged file, environment and flag configuration.
type appConfig struct {
	Output struct {
		Rate     uint32 `mapstructure:"rate"`
		Channels uint8  `mapstructure:"channels"`
	} `mapstructure:"output"`
	Engine struct {
		PeriodMS uint32 `mapstructure:"period_ms"`
	} `mapstructure:"engine"`
	Logging struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"logging"`
}

// loadConfig resolves configuration from audiomix.yaml, AUDIOMIX_*
// environment variables and bound flags, then applies the log level.
func loadConfig() (*appConfig, error) {
	viper.SetDefault("output.rate", 48000)
	viper.SetDefault("output.channels", 2)
	viper.SetDefault("engine.period_ms", 20)
	viper.SetDefault("logging.level", "warn")

	viper.SetConfigName("audiomix")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.audiomix")

	viper.AutomaticEnv()
	viper.SetEnvPrefix("AUDIOMIX")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg appConfig
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Logging.Level, err)
	}
	logrus.SetLevel(level)

	return &cfg, nil
}

// outFormat derives the engine output format from the configuration.
func (c *appConfig) outFormat() (pcm.Format, error) {
	f := pcm.Format{SampleRate: c.Output.Rate, Bits: 16, Channels: c.Output.Channels}
	if !f.Valid() {
		return pcm.Format{}, fmt.Errorf("invalid output format %s", f)
	}
	return f, nil
}
