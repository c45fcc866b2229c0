package cmd

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	config "github.com/chainmirror/chainmirror/configs"
	"github.com/chainmirror/chainmirror/internal/common"
	"github.com/chainmirror/chainmirror/internal/rpc"
	"github.com/chainmirror/chainmirror/internal/storage"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Print the chain head and per-table checkpoints",
	Run: func(cmd *cobra.Command, args []string) {
		RunInfo(cmd, args)
	},
}

func RunInfo(cmd *cobra.Command, args []string) {
	ctx, stop := signalContext()
	defer stop()

	rpcClient, err := rpc.Initialize()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize node client")
	}
	defer rpcClient.Close()

	store, err := storage.NewConnector(&config.Cfg.Storage)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize storage")
	}
	defer store.Close()

	chainHead, err := rpcClient.GetLatestBlockNumber(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to resolve chain head")
	}
	fmt.Printf("chain head: %d\n", chainHead)

	checkpoints, err := storage.GetCheckpoints(ctx, store, common.AllTables)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read checkpoints")
	}
	for _, table := range common.AllTables {
		checkpoint := checkpoints[table]
		if checkpoint == common.NoCheckpoint {
			fmt.Printf("%-12s no rows\n", table)
			continue
		}
		fmt.Printf("%-12s %d (behind head by %d)\n", table, checkpoint, chainHead-checkpoint)
	}
}
