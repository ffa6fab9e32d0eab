package cmd

import (
	"context"
	"fmt"
	"log"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/openjobs/jobmatch/internal/logger"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the score cache",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Drop every cached score",
	Run: func(_ *cobra.Command, _ []string) {
		withDeps(func(ctx context.Context, d *deps) {
			n := d.scores.Len()
			d.scores.Clear(ctx)
			d.logger.Info("score cache cleared", zap.Int("entries", n))
		})
	},
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print the cache size and the AI quota usage",
	Run: func(_ *cobra.Command, _ []string) {
		withDeps(func(ctx context.Context, d *deps) {
			fmt.Printf("cached scores:  %d\n", d.scores.Len())
			if limit := d.quota.Limit(); limit > 0 {
				fmt.Printf("ai quota:       %d/%d used today\n", d.quota.Used(ctx), limit)
			} else {
				fmt.Println("ai quota:       unlimited")
			}
		})
	},
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheClearCmd, cacheStatsCmd)
}

func withDeps(fn func(ctx context.Context, d *deps)) {
	ctx := context.Background()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	d, err := newDeps(ctx, config, logger, false)
	if err != nil {
		logger.Fatal("preparing components", zap.Error(err))
	}
	defer d.Close(ctx)

	fn(ctx, d)
}
