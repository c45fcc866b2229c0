package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type LogConfig struct {
	Level    string `mapstructure:"level"`
	Prettify bool   `mapstructure:"prettify"`
}

type RPCBatchSizeConfig struct {
	Blocks   int `mapstructure:"blocks"`
	Logs     int `mapstructure:"logs"`
	Traces   int `mapstructure:"traces"`
	Receipts int `mapstructure:"receipts"`
}

type RPCTracesConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type RPCBlockReceiptsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type RPCConfig struct {
	URL              string                 `mapstructure:"url"`
	TimeoutSeconds   int                    `mapstructure:"timeoutSeconds"`
	BlocksPerRequest RPCBatchSizeConfig     `mapstructure:"blocksPerRequest"`
	Traces           RPCTracesConfig        `mapstructure:"traces"`
	BlockReceipts    RPCBlockReceiptsConfig `mapstructure:"blockReceipts"`
}

type ClickhouseConfig struct {
	Hosts     []string `mapstructure:"hosts"`
	Port      int      `mapstructure:"port"`
	Database  string   `mapstructure:"database"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	EnableTLS bool     `mapstructure:"enableTLS"`
}

type MemoryConfig struct {
	MaxItems int `mapstructure:"maxItems"`
}

type StorageConfig struct {
	Clickhouse *ClickhouseConfig `mapstructure:"clickhouse"`
	Memory     *MemoryConfig     `mapstructure:"memory"`
}

type IngesterConfig struct {
	BlocksPerBatch     int `mapstructure:"blocksPerBatch"`
	ConfirmationMargin int `mapstructure:"confirmationMargin"`
	MaxReorgRefetches  int `mapstructure:"maxReorgRefetches"`
}

type RetryConfig struct {
	MaxAttempts         int     `mapstructure:"maxAttempts"`
	InitialIntervalMs   int     `mapstructure:"initialIntervalMs"`
	MaxIntervalMs       int     `mapstructure:"maxIntervalMs"`
	Multiplier          float64 `mapstructure:"multiplier"`
	RandomizationFactor float64 `mapstructure:"randomizationFactor"`
}

type ExportConfig struct {
	Directory          string `mapstructure:"directory"`
	Format             string `mapstructure:"format"`
	FileBatchSize      int    `mapstructure:"fileBatchSize"`
	PartitionBatchSize int    `mapstructure:"partitionBatchSize"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

type Config struct {
	RPC      RPCConfig      `mapstructure:"rpc"`
	Log      LogConfig      `mapstructure:"log"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Ingester IngesterConfig `mapstructure:"ingester"`
	Retry    RetryConfig    `mapstructure:"retry"`
	Export   ExportConfig   `mapstructure:"export"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

var Cfg Config

func LoadConfig(cfgFile string) error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading config file: %w", err)
		}
	} else {
		viper.SetConfigName("config")
		viper.AddConfigPath("./configs")
		if err := viper.ReadInConfig(); err != nil {
			// the config file is optional, flags and env vars may carry everything
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	// sets e.g. RPC_URL to rpc.url
	replacer := strings.NewReplacer(".", "_")
	viper.SetEnvKeyReplacer(replacer)

	viper.AutomaticEnv()

	if err := viper.Unmarshal(&Cfg); err != nil {
		return fmt.Errorf("error unmarshalling config: %w", err)
	}

	return nil
}
