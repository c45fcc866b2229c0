package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	config "github.com/chainmirror/chainmirror/configs"
	customLogger "github.com/chainmirror/chainmirror/internal/log"
)

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   "chainmirror",
		Short: "Mirror Ethereum chain data into a columnar store",
		Long: `chainmirror incrementally syncs blocks, transactions, traces and logs
from an Ethereum node into a columnar store. Every run resumes from the
store's own contents and is safe to re-run unmodified.`,
	}
)

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./configs/config.yml)")
	rootCmd.PersistentFlags().String("rpc-url", "", "Node endpoint: http(s)://, ws(s)://, file:// or a .ipc path")
	rootCmd.PersistentFlags().Int("rpc-blocksPerRequest-blocks", 0, "How many blocks to fetch per batch request")
	rootCmd.PersistentFlags().Int("rpc-blocksPerRequest-logs", 0, "How many blocks to fetch logs for per batch request")
	rootCmd.PersistentFlags().Int("rpc-blocksPerRequest-traces", 0, "How many blocks to fetch traces for per batch request")
	rootCmd.PersistentFlags().Int("rpc-blocksPerRequest-receipts", 0, "How many blocks to fetch receipts for per batch request")
	rootCmd.PersistentFlags().Bool("rpc-traces-enabled", true, "Whether to fetch traces from the node")
	rootCmd.PersistentFlags().Bool("rpc-blockReceipts-enabled", true, "Whether to fetch block receipts from the node")
	rootCmd.PersistentFlags().String("log-level", "", "Log level to use for the application")
	rootCmd.PersistentFlags().Bool("log-prettify", false, "Whether to prettify the log output")
	rootCmd.PersistentFlags().StringSlice("storage-clickhouse-hosts", nil, "Clickhouse hosts")
	rootCmd.PersistentFlags().Int("storage-clickhouse-port", 0, "Clickhouse native protocol port")
	rootCmd.PersistentFlags().String("storage-clickhouse-database", "", "Clickhouse database")
	rootCmd.PersistentFlags().String("storage-clickhouse-username", "", "Clickhouse username")
	rootCmd.PersistentFlags().String("storage-clickhouse-password", "", "Clickhouse password")
	rootCmd.PersistentFlags().Int("ingester-blocksPerBatch", 0, "How many blocks to process per sub-range")
	rootCmd.PersistentFlags().Int("ingester-confirmationMargin", 0, "How many blocks below the chain head to stay")
	rootCmd.PersistentFlags().Bool("metrics-enabled", false, "Whether to serve prometheus metrics")
	rootCmd.PersistentFlags().Int("metrics-port", 2112, "Port to serve prometheus metrics on")
	viper.BindPFlag("rpc.url", rootCmd.PersistentFlags().Lookup("rpc-url"))
	viper.BindPFlag("rpc.blocksPerRequest.blocks", rootCmd.PersistentFlags().Lookup("rpc-blocksPerRequest-blocks"))
	viper.BindPFlag("rpc.blocksPerRequest.logs", rootCmd.PersistentFlags().Lookup("rpc-blocksPerRequest-logs"))
	viper.BindPFlag("rpc.blocksPerRequest.traces", rootCmd.PersistentFlags().Lookup("rpc-blocksPerRequest-traces"))
	viper.BindPFlag("rpc.blocksPerRequest.receipts", rootCmd.PersistentFlags().Lookup("rpc-blocksPerRequest-receipts"))
	viper.BindPFlag("rpc.traces.enabled", rootCmd.PersistentFlags().Lookup("rpc-traces-enabled"))
	viper.BindPFlag("rpc.blockReceipts.enabled", rootCmd.PersistentFlags().Lookup("rpc-blockReceipts-enabled"))
	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log.prettify", rootCmd.PersistentFlags().Lookup("log-prettify"))
	viper.BindPFlag("storage.clickhouse.hosts", rootCmd.PersistentFlags().Lookup("storage-clickhouse-hosts"))
	viper.BindPFlag("storage.clickhouse.port", rootCmd.PersistentFlags().Lookup("storage-clickhouse-port"))
	viper.BindPFlag("storage.clickhouse.database", rootCmd.PersistentFlags().Lookup("storage-clickhouse-database"))
	viper.BindPFlag("storage.clickhouse.username", rootCmd.PersistentFlags().Lookup("storage-clickhouse-username"))
	viper.BindPFlag("storage.clickhouse.password", rootCmd.PersistentFlags().Lookup("storage-clickhouse-password"))
	viper.BindPFlag("ingester.blocksPerBatch", rootCmd.PersistentFlags().Lookup("ingester-blocksPerBatch"))
	viper.BindPFlag("ingester.confirmationMargin", rootCmd.PersistentFlags().Lookup("ingester-confirmationMargin"))
	viper.BindPFlag("metrics.enabled", rootCmd.PersistentFlags().Lookup("metrics-enabled"))
	viper.BindPFlag("metrics.port", rootCmd.PersistentFlags().Lookup("metrics-port"))
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(infoCmd)
}

func initConfig() {
	if err := config.LoadConfig(cfgFile); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	customLogger.InitLogger()
}

// signalContext is cancelled on SIGINT/SIGTERM. The running sub-range's
// commit is simply not acknowledged; the next run retries it in full.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func serveMetrics() {
	if !config.Cfg.Metrics.Enabled {
		return
	}
	port := config.Cfg.Metrics.Port
	if port == 0 {
		port = 2112
	}
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		addr := fmt.Sprintf(":%d", port)
		log.Info().Msgf("Serving metrics on %s/metrics", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Error().Err(err).Msg("Metrics server stopped")
		}
	}()
}
