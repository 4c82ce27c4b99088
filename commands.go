package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/researchaccelerator-hub/viewcast/client"
	"github.com/researchaccelerator-hub/viewcast/config"
	"github.com/researchaccelerator-hub/viewcast/discovery"
	"github.com/researchaccelerator-hub/viewcast/feature"
	"github.com/researchaccelerator-hub/viewcast/harvest"
	"github.com/researchaccelerator-hub/viewcast/model"
	"github.com/researchaccelerator-hub/viewcast/predict"
	"github.com/researchaccelerator-hub/viewcast/quota"
	"github.com/researchaccelerator-hub/viewcast/runner"
	"github.com/researchaccelerator-hub/viewcast/snapshot"
	"github.com/researchaccelerator-hub/viewcast/store"
	"github.com/researchaccelerator-hub/viewcast/validate"
)

func newRootCommand() *cobra.Command {
	var configFlag string
	var verboseFlag bool

	rootCmd := &cobra.Command{
		Use:           "viewcast",
		Short:         "Regional video viewership collector and forecaster",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
			zerolog.SetGlobalLevel(zerolog.InfoLevel)
			if verboseFlag {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(newCollectCommand(&configFlag))
	rootCmd.AddCommand(newDiscoverCommand(&configFlag))
	rootCmd.AddCommand(newTrackCommand(&configFlag))
	rootCmd.AddCommand(newPredictCommand(&configFlag))
	rootCmd.AddCommand(newQuotaCommand(&configFlag))

	return rootCmd
}

// app holds the shared collaborators a subcommand needs.
type app struct {
	cfg    *config.Config
	store  store.Store
	ledger *quota.Ledger
	client *client.YouTubeClient
}

func buildApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	specs := make([]quota.CredentialSpec, 0, len(cfg.Credentials))
	for _, cred := range cfg.Credentials {
		specs = append(specs, quota.CredentialSpec{
			Name:       cred.Name,
			Key:        cred.Key,
			DailyQuota: cred.DailyQuota,
		})
	}
	ledger, err := quota.NewLedger(specs, quota.DefaultCostTable())
	if err != nil {
		return nil, err
	}

	yt, err := client.NewYouTubeClient(ledger)
	if err != nil {
		return nil, err
	}

	s, err := store.New(cfg.Storage)
	if err != nil {
		return nil, err
	}

	return &app{cfg: cfg, store: s, ledger: ledger, client: yt}, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close store")
	}
}

func (a *app) validator() *validate.Validator {
	return validate.New(a.store, a.store)
}

func (a *app) tracker() *snapshot.Tracker {
	return snapshot.NewTracker(a.cfg.Snapshots, a.store, a.client, a.validator())
}

func newCollectCommand(configFlag *string) *cobra.Command {
	return &cobra.Command{
		Use:   "collect",
		Short: "Run one collection sweep: discover, harvest and snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(*configFlag)
			if err != nil {
				return err
			}
			defer a.close()

			validator := a.validator()
			tracker := a.tracker()
			harvester := harvest.NewHarvester(a.cfg.Collection, a.client, a.store, validator, tracker)
			discoverer := discovery.New(a.cfg.Discovery, a.cfg.Region, a.client)
			r := runner.New(a.cfg, a.store, discoverer, harvester, tracker, validator)

			summary, err := r.Run(cmd.Context())
			if err != nil {
				return err
			}

			rows := [][]string{
				{"Run ID", summary.RunID},
				{"Duration", summary.FinishedAt.Sub(summary.StartedAt).Round(time.Millisecond).String()},
				{"Channels discovered", strconv.Itoa(summary.ChannelsDiscovered)},
				{"Channels in review band", strconv.Itoa(summary.ChannelsForReview)},
				{"Videos harvested", strconv.Itoa(summary.Harvested)},
				{"Videos skipped (known)", strconv.Itoa(summary.Skipped)},
				{"Videos quarantined", strconv.Itoa(summary.Quarantined)},
				{"Failures", strconv.Itoa(summary.Failed)},
				{"Snapshots captured", strconv.Itoa(summary.SnapshotsCaptured)},
				{"Statistic anomalies", strconv.Itoa(summary.Anomalies)},
				{"Observations retired", strconv.Itoa(summary.Retired)},
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Metric", "Value"}, rows, 1))

			for _, msg := range summary.Errors {
				fmt.Fprintf(cmd.OutOrStdout(), "recovered error: %s\n", msg)
			}
			return nil
		},
	}
}

func newDiscoverCommand(configFlag *string) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Search seed keywords and score candidate channels",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(*configFlag)
			if err != nil {
				return err
			}
			defer a.close()

			outcome, err := discovery.New(a.cfg.Discovery, a.cfg.Region, a.client).Discover(cmd.Context())
			if err != nil {
				return err
			}

			if !dryRun {
				validator := a.validator()
				for _, channel := range outcome.Accepted {
					if res := validator.ValidateChannel(channel); !res.OK {
						log.Warn().Str("channel_id", channel.ID).Strs("issues", res.Strings()).
							Msg("Discovered channel failed validation, not admitted")
						continue
					}
					if err := a.store.SaveChannel(cmd.Context(), channel); err != nil {
						return err
					}
				}
			}

			printChannels := func(title string, channels []*model.Channel) {
				if len(channels) == 0 {
					return
				}
				rows := make([][]string, 0, len(channels))
				for _, ch := range channels {
					rows = append(rows, []string{
						ch.ID, ch.Title, ch.Country,
						strconv.FormatFloat(ch.RelevanceScore, 'f', 2, 64),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), title)
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Channel", "Title", "Country", "Relevance"}, rows, 3))
			}
			printChannels("Accepted", outcome.Accepted)
			printChannels("Review band", outcome.Review)
			fmt.Fprintf(cmd.OutOrStdout(), "Rejected: %d\n", outcome.Rejected)
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Score candidates without admitting them")
	return cmd
}

func newTrackCommand(configFlag *string) *cobra.Command {
	return &cobra.Command{
		Use:   "track",
		Short: "Capture statistics snapshots for all due observations",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(*configFlag)
			if err != nil {
				return err
			}
			defer a.close()

			report, err := a.tracker().CaptureDue(cmd.Context())
			if err != nil {
				return err
			}

			rows := [][]string{
				{"Captured", strconv.Itoa(report.Captured)},
				{"Anomalous", strconv.Itoa(report.Anomalous)},
				{"Retired", strconv.Itoa(report.Retired)},
				{"Failed", strconv.Itoa(report.Failed)},
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Metric", "Value"}, rows, 1))
			return nil
		},
	}
}

func newPredictCommand(configFlag *string) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "predict <video-id>",
		Short: "Forecast viewership for a harvested video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(*configFlag)
			if err != nil {
				return err
			}
			defer a.close()

			videoID := args[0]
			ctx := cmd.Context()

			video, err := a.store.GetVideo(ctx, videoID)
			if err != nil {
				return fmt.Errorf("video %s: %w", videoID, err)
			}
			channel, err := a.store.GetChannel(ctx, video.ChannelID)
			if err != nil {
				// The channel may have been pruned; extraction degrades to
				// defaults for the authority features.
				channel = nil
			}
			recent, err := a.store.ListSnapshots(ctx, videoID, 10)
			if err != nil {
				return err
			}

			extractor := feature.NewExtractor(a.cfg.Features, a.cfg.Discovery.Languages)
			engine, err := predict.NewEngine(a.cfg.Prediction, extractor)
			if err != nil {
				return err
			}

			result := engine.Predict(video, channel, recent)
			return printPrediction(cmd, result, asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit the raw prediction JSON")
	return cmd
}

func printPrediction(cmd *cobra.Command, result model.PredictionResult, asJSON bool) error {
	if asJSON {
		raw, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(raw))
		return nil
	}

	rows := [][]string{
		{"24h views", strconv.FormatFloat(result.Horizon24h, 'f', 0, 64)},
		{"7d views", strconv.FormatFloat(result.Horizon7d, 'f', 0, 64)},
		{"30d views", strconv.FormatFloat(result.Horizon30d, 'f', 0, 64)},
		{"Confidence", strconv.FormatFloat(result.Confidence, 'f', 2, 64)},
		{"Model", string(result.ModelVariant)},
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Horizon", "Forecast"}, rows, 1))
	return nil
}

func newQuotaCommand(configFlag *string) *cobra.Command {
	return &cobra.Command{
		Use:   "quota",
		Short: "Show the configured credential pool and call costs",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(*configFlag)
			if err != nil {
				return err
			}
			defer a.close()

			remaining := a.ledger.Remaining()
			names := make([]string, 0, len(remaining))
			for name := range remaining {
				names = append(names, name)
			}
			sort.Strings(names)

			rows := make([][]string, 0, len(names))
			for _, name := range names {
				rows = append(rows, []string{name, strconv.Itoa(remaining[name])})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Credential", "Daily budget"}, rows, 1))

			kinds := []quota.CallKind{
				quota.CallVideosList, quota.CallChannelsList,
				quota.CallPlaylistItemsList, quota.CallSearchList,
			}
			costRows := make([][]string, 0, len(kinds))
			for _, kind := range kinds {
				costRows = append(costRows, []string{string(kind), strconv.Itoa(a.ledger.Cost(kind))})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Call", "Cost"}, costRows, 1))
			return nil
		},
	}
}
