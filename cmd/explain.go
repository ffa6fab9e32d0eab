package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/openjobs/jobmatch/internal/jobs"
	"github.com/openjobs/jobmatch/internal/logger"
)

var explainCmd = &cobra.Command{
	Use:    "explain <job-id>",
	Short:  "Score a single job offer with AI and explain the score",
	Args:   cobra.ExactArgs(1),
	PreRun: bindJobsFile,
	Run: func(cmd *cobra.Command, args []string) {
		explain(cmd, args[0])
	},
}

func init() {
	rootCmd.AddCommand(explainCmd)

	explainCmd.Flags().String("extra-info", "", "additional context appended to the prompt, bypasses the cache")
	explainCmd.Flags().BoolP("force", "f", false, "ignore the cached AI score")
	explainCmd.Flags().String("jobs-file", "", "look the job up in a JSON file instead of the API")
	explainCmd.Flags().StringP("output", "o", outputTable, "output format: table or json")
}

func explain(cmd *cobra.Command, jobID string) {
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

	job, err := findJob(ctx, config, strings.TrimSpace(jobID), logger)
	if err != nil {
		logger.Fatal("getting the job", zap.Error(err))
	}
	if job == nil {
		logger.Fatal("job not found", zap.String("job_id", jobID))
	}

	opts, err := d.scoreOptions()
	if err != nil {
		logger.Fatal("preparing the request", zap.Error(err))
	}
	opts.ExtraInfo, _ = cmd.Flags().GetString("extra-info")
	opts.Force, _ = cmd.Flags().GetBool("force")

	if av := d.matcher.Available(ctx); !av.Available {
		logger.Warn("ai scoring unavailable, falling back to the local score", zap.String("reason", av.Reason))
	}

	res, err := d.matcher.ScoreOne(ctx, job, opts)
	if err != nil {
		logger.Fatal("scoring failed", zap.Error(err))
	}

	format, _ := cmd.Flags().GetString("output")
	if err := writeResult(os.Stdout, format, res); err != nil {
		logger.Fatal("writing result", zap.Error(err))
	}
}

// findJob returns nil without error when no job has the id.
func findJob(ctx context.Context, config *Config, id string, logger *zap.Logger) (*jobs.Job, error) {
	source := config.Source
	if source != nil && strings.TrimSpace(source.JobsFile) != "" {
		list, err := jobs.LoadFile(source.JobsFile)
		if err != nil {
			return nil, fmt.Errorf("loading jobs file: %w", err)
		}
		return list.FindByID(id), nil
	}

	return newOpendataClient(source, logger).FindByID(ctx, id)
}
