package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/openjobs/jobmatch/internal/coordinator"
	"github.com/openjobs/jobmatch/internal/filtering"
	"github.com/openjobs/jobmatch/internal/jobs"
	"github.com/openjobs/jobmatch/internal/logger"
	"github.com/openjobs/jobmatch/internal/matcher"
	"github.com/openjobs/jobmatch/internal/opendata"
)

const (
	PromptDone                = "Done"
	PromptBack                = "back"
	PromptReportByEmployers   = "Report by employers"
	PromptExplainJob          = "Explain a job with AI"
	PromptAppendToExcludeFile = "Append all jobs to exclude file"
	PromptJobsToFile          = "Dump jobs to file"
)

var errExit = errors.New("exit requested")

var scoreCmd = &cobra.Command{
	Use:    "score",
	Short:  "Fetch, filter and score job offers",
	PreRun: bindJobsFile,
	Run: func(cmd *cobra.Command, _ []string) {
		score(cmd)
	},
}

func init() {
	rootCmd.AddCommand(scoreCmd)

	scoreCmd.Flags().StringP("query", "q", "", "full-text search, overrides source.search.q")
	scoreCmd.Flags().Int("max-records", 0, "maximum number of offers to fetch")
	scoreCmd.Flags().String("jobs-file", "", "score offers from a JSON file instead of the API")
	scoreCmd.Flags().StringP("exclude-file", "e", "", "special file with jobs to exclude. Default is unset.")
	scoreCmd.Flags().Bool("keep-empty", false, "do not drop jobs without usable text")
	scoreCmd.Flags().BoolP("force", "f", false, "ignore cached scores")
	scoreCmd.Flags().StringP("output", "o", outputTable, "output format: table or json")
	scoreCmd.Flags().Bool("countdown", false, "print rate-limit countdowns to stderr")
	scoreCmd.Flags().BoolP("yes", "y", false, "do not show the interactive menu after scoring")

	viper.BindPFlag("exclude-file", scoreCmd.Flags().Lookup("exclude-file"))
}

// bindJobsFile binds the jobs-file flag of the running command only, as
// several commands define it.
func bindJobsFile(cmd *cobra.Command, _ []string) {
	viper.BindPFlag("source.jobs-file", cmd.Flags().Lookup("jobs-file"))
}

func score(cmd *cobra.Command) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	logger.Info("starting the jobmatch", zap.String("version", version))

	// do not bother error since there is a valid parseable config
	pretty, _ := json.MarshalIndent(redacted(config), "", "  ")
	logger.Debug(fmt.Sprintf("starting with config: \n %s", pretty))

	force, _ := cmd.Flags().GetBool("force")
	d, err := newDeps(ctx, config, logger, force)
	if err != nil {
		logger.Fatal("preparing components", zap.Error(err))
	}
	defer d.Close(context.Background())

	list, err := getJobs(ctx, cmd, config, logger)
	if err != nil {
		logger.Fatal("getting jobs", zap.Error(err))
	}
	if list.Len() == 0 {
		logger.Info("exiting", zap.String("reason", "no jobs found"))
		return
	}

	steps := filtering.Default()
	if keep, _ := cmd.Flags().GetBool("keep-empty"); keep {
		filtering.DisableByName(steps, "no_data", "keep-empty flag is set")
	}
	logger.Debug("filter pipeline", zap.Any("steps", filtering.Describe(steps)))

	list, _, err = filtering.Run(ctx, filterConfig(config), filtering.Deps{Logger: logger}, steps, list)
	if err != nil {
		logger.Fatal("filtering failed", zap.Error(err))
	}
	if list.Len() == 0 {
		logger.Info("exiting", zap.String("reason", "no jobs left after filters"))
		return
	}

	var observer matcher.WaitObserver
	if countdown, _ := cmd.Flags().GetBool("countdown"); countdown {
		observer = matcher.WaitFunc(func(remaining int) {
			fmt.Fprintf(os.Stderr, "\rrate limited, retrying in %3ds", remaining)
			if remaining == 1 {
				fmt.Fprintln(os.Stderr)
			}
		})
	}

	report, err := d.coordinator.Run(ctx, list.Items, observer)
	if err != nil && report == nil {
		logger.Fatal("scoring failed", zap.Error(err))
	}
	if err != nil {
		logger.Warn("scoring interrupted, showing partial results", zap.Error(err))
	}

	format, _ := cmd.Flags().GetString("output")
	if err := writeReport(os.Stdout, format, report); err != nil {
		logger.Fatal("writing report", zap.Error(err))
	}

	if yes, _ := cmd.Flags().GetBool("yes"); yes || format == outputJSON {
		return
	}

	menu := promptui.Select{
		Label: "What next?",
		Items: []string{PromptDone, PromptReportByEmployers, PromptExplainJob, PromptJobsToFile, PromptAppendToExcludeFile},
	}
	for {
		_, action, err := menu.Run()
		if err != nil {
			logger.Fatal("exiting", zap.Error(err))
		}

		if err := handleAction(ctx, action, d, list, report); err != nil {
			if errors.Is(err, errExit) {
				return
			}
			logger.Fatal("exiting", zap.Error(err))
		}
	}
}

func handleAction(ctx context.Context, action string, d *deps, list *jobs.Jobs, report *coordinator.Report) error {
	switch action {
	case PromptDone:
		d.logger.Info("exiting", zap.String("reason", "done"))
		return errExit
	case PromptReportByEmployers:
		pretty, _ := json.MarshalIndent(list.ReportByEmployer(report.Assessments()), "", "  ")
		fmt.Println(string(pretty))
		return nil
	case PromptExplainJob:
		return explainInteractive(ctx, d, list)
	case PromptJobsToFile:
		filename, err := list.DumpToTmpFile()
		if err != nil {
			return fmt.Errorf("dump results to file: %w", err)
		}
		d.logger.Info("dumping result to file", zap.String("filename", filename))
		return nil
	case PromptAppendToExcludeFile:
		return appendToExcludeFile(d, list)
	default:
		return fmt.Errorf("invalid action: %s", action)
	}
}

func explainInteractive(ctx context.Context, d *deps, list *jobs.Jobs) error {
	items := make([]string, 0, list.Len()+1)
	for _, j := range list.Items {
		items = append(items, fmt.Sprintf("%s %s / %s", j.ID, j.Title, j.Employer))
	}

	jobPrompt := promptui.Select{
		Label: "Choose a job and press ENTER",
		Items: append(items, PromptBack),
	}
	_, selected, err := jobPrompt.Run()
	if err != nil {
		return err
	}
	if selected == PromptBack {
		return nil
	}

	jobID := strings.Split(selected, " ")[0]
	job := list.FindByID(jobID)
	if job == nil {
		return fmt.Errorf("there is no such job id %s", jobID)
	}

	opts, err := d.scoreOptions()
	if err != nil {
		return err
	}
	res, err := d.matcher.ScoreOne(ctx, job, opts)
	if err != nil {
		return err
	}
	return writeResult(os.Stdout, outputTable, res)
}

func appendToExcludeFile(d *deps, list *jobs.Jobs) error {
	excludeFile := strings.TrimSpace(viper.GetString("exclude-file"))
	if excludeFile == "" {
		d.logger.Warn("no exclude file configured", zap.String("hint", "set --exclude-file or the 'exclude-file' key"))
		return nil
	}

	excluded, err := jobs.GetExcludedJobsFromFile(excludeFile)
	if errors.Is(err, os.ErrNotExist) {
		excluded, err = &jobs.ExcludedJobs{}, nil
	}
	if err != nil {
		return err
	}

	excluded.Append(list.ToExcluded("dismissed after scoring"))
	if err := excluded.ToFile(excludeFile); err != nil {
		return err
	}

	d.logger.Info("appended to exclude file", zap.String("filename", excludeFile), zap.Int("count", list.Len()))
	list.Exclude(jobs.JobIDField, excluded.JobIDs())
	return nil
}

// getJobs loads the jobs file when one is configured and searches the
// open-data API otherwise.
func getJobs(ctx context.Context, cmd *cobra.Command, config *Config, logger *zap.Logger) (*jobs.Jobs, error) {
	source := config.Source
	if source == nil {
		source = &SourceConfig{}
	}

	if path := strings.TrimSpace(source.JobsFile); path != "" {
		list, err := jobs.LoadFile(path)
		if err != nil {
			return nil, fmt.Errorf("loading jobs file: %w", err)
		}
		logger.Info("jobs loaded from file", zap.String("path", path), zap.Int("count", list.Len()))
		return list, nil
	}

	params := &opendata.SearchParams{}
	if source.Search != nil {
		copied := *source.Search
		params = &copied
	}
	if cmd != nil {
		if q, _ := cmd.Flags().GetString("query"); q != "" {
			params.Query = q
		}
		if n, _ := cmd.Flags().GetInt("max-records"); n > 0 {
			params.MaxRecords = n
		}
	}

	client := newOpendataClient(source, logger)
	logger.Info("starting the search", zap.String("query", params.Query), zap.String("dataset", client.Dataset))

	list, err := client.Search(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	logger.Info("getting jobs", zap.Int("count", list.Len()))
	return list, nil
}

func newOpendataClient(source *SourceConfig, logger *zap.Logger) *opendata.Client {
	client := opendata.New(logger)
	if source == nil {
		return client
	}
	if source.APIURL != "" {
		client.APIURL = source.APIURL
	}
	if source.Dataset != "" {
		client.Dataset = source.Dataset
	}
	if source.UserAgent != "" {
		client.UserAgent = source.UserAgent
	}
	return client
}

func filterConfig(config *Config) *filtering.Config {
	cfg := &filtering.Config{ExcludeFile: viper.GetString("exclude-file")}
	if cfg.ExcludeFile == "" {
		cfg.ExcludeFile = config.ExcludeFile
	}
	if config.Exclude != nil {
		cfg.Employers = config.Exclude.Employers
	}
	return cfg
}

// redacted returns a copy of config safe to log.
func redacted(config *Config) *Config {
	if config == nil || config.AI == nil || config.AI.Gemini == nil || config.AI.Gemini.APIKey == "" {
		return config
	}
	c := *config
	aiCfg := *config.AI
	gemini := *config.AI.Gemini
	gemini.APIKey = "***"
	aiCfg.Gemini = &gemini
	c.AI = &aiCfg
	return &c
}
