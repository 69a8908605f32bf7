package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"moltbot/internal/brain"
	"moltbot/internal/config"
	"moltbot/internal/heartbeat"
	"moltbot/internal/intel"
	"moltbot/internal/karma"
	"moltbot/internal/logging"
	"moltbot/internal/platform"
	"moltbot/internal/ratelimit"
	"moltbot/internal/store"
	"moltbot/internal/strategy"
)

var (
	// Global flags
	verbose    bool
	configPath string

	// status flags
	historyCount int

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "moltbot",
	Short: "moltbot - autonomous Moltbook karma agent",
	Long: `moltbot is an autonomous agent for the Moltbook platform.

Each heartbeat it reads its own karma, decides whether to post, comment,
or sit out (weighted by reputation tier and gated by persisted rate limits),
and acts on the decision. An intelligence subsystem keeps a cached picture
of platform trends, competitors, and engagement opportunities.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
}

// runCmd starts the agent loop
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the agent: heartbeat loop plus background intelligence refresh",
	RunE:  runAgent,
}

// cycleCmd executes one cycle and exits
var cycleCmd = &cobra.Command{
	Use:   "cycle",
	Short: "Execute a single heartbeat cycle and exit",
	RunE:  runSingleCycle,
}

// statusCmd prints the agent status
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print agent status (karma, rate limits, cycle history)",
	RunE:  showStatus,
}

// intelCmd prints the current intelligence snapshot
var intelCmd = &cobra.Command{
	Use:   "intel",
	Short: "Print the current intelligence snapshot",
	RunE:  showIntel,
}

// opportunitiesCmd prints live engagement opportunities
var opportunitiesCmd = &cobra.Command{
	Use:   "opportunities",
	Short: "Print live engagement opportunities, best first",
	RunE:  showOpportunities,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "moltbot.yaml", "Path to config file")
	statusCmd.Flags().IntVar(&historyCount, "history", 10, "Number of recent cycles to show (0 to hide)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(cycleCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(intelCmd)
	rootCmd.AddCommand(opportunitiesCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// agent bundles everything a command needs after wiring.
type agent struct {
	cfg       *config.Config
	api       platform.API
	archive   *store.Archive
	intel     *intel.Orchestrator
	heartbeat *heartbeat.Orchestrator
}

func (a *agent) close() {
	_ = a.archive.Close()
}

// buildAgent loads config and wires every subsystem. withBrain controls
// whether the Gemini pipeline is constructed; read-only commands skip it so
// they work without a Gemini key.
func buildAgent(ctx context.Context, withBrain bool) (*agent, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if err := os.MkdirAll(cfg.Storage.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	if err := logging.Initialize(cfg.Storage.DataDir, logging.Settings{
		Enabled:    cfg.Logging.Enabled,
		Level:      cfg.Logging.Level,
		Categories: cfg.Logging.Categories,
		JSONFormat: cfg.Logging.JSONFormat,
	}); err != nil {
		return nil, err
	}
	logging.Boot("moltbot %s starting (agent %s)", cfg.Version, cfg.Platform.AgentName)

	api := platform.NewClient(cfg.Platform.BaseURL, cfg.Platform.APIKey, cfg.PlatformTimeout(), cfg.Platform.MaxRetries)

	archive, err := store.OpenArchive(cfg.Storage.ArchivePath)
	if err != nil {
		return nil, err
	}

	limiter, err := ratelimit.New(
		store.NewStateFile(cfg.Storage.DataDir, store.RateLimitStateFile),
		cfg.MinPostInterval(), cfg.MinCommentInterval(), cfg.RateLimit.DailyCommentCap)
	if err != nil {
		return nil, err
	}

	tracker, err := karma.NewTracker(store.NewStateFile(cfg.Storage.DataDir, store.KarmaHistoryFile))
	if err != nil {
		return nil, err
	}

	cache, err := intel.NewCache(
		store.NewStateFile(cfg.Storage.DataDir, store.IntelCacheFile),
		cfg.MemoryTTL(), cfg.SnapshotTTL())
	if err != nil {
		return nil, err
	}

	intelOrch := intel.NewOrchestrator(
		cache, archive,
		intel.NewMetricsCollector(api),
		intel.NewTrendTracker(api),
		intel.NewCompetitorTracker(api, cfg.Intel.Rivals, cfg.Intel.CompetitorBatchSize, cfg.CompetitorBatchWait()),
		intel.NewOpportunityFinder(api, cfg.Intel.Rivals),
		cfg.FullRefreshEvery(), cfg.OppRefreshEvery(),
	)

	var pipe brain.ContentPipeline
	if withBrain {
		pipe, err = brain.NewGeminiBrain(ctx, cfg.Brain.APIKey, cfg.Brain.Models)
		if err != nil {
			_ = archive.Close()
			return nil, err
		}
	}

	hb, err := heartbeat.New(api, limiter, tracker, strategy.NewEngine(nil), intelOrch, pipe, archive,
		store.NewStateFile(cfg.Storage.DataDir, store.HeartbeatStateFile),
		cfg.HeartbeatInterval(), cfg.KarmaSettleWait())
	if err != nil {
		_ = archive.Close()
		return nil, err
	}

	return &agent{cfg: cfg, api: api, archive: archive, intel: intelOrch, heartbeat: hb}, nil
}

func runAgent(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	a, err := buildAgent(ctx, true)
	if err != nil {
		return err
	}
	defer a.close()

	// Config hot-reload: only logging settings apply live.
	watcher, err := config.NewWatcher(configPath, func(cfg *config.Config) {
		logging.Reconfigure(logging.Settings{
			Enabled:    cfg.Logging.Enabled,
			Level:      cfg.Logging.Level,
			Categories: cfg.Logging.Categories,
			JSONFormat: cfg.Logging.JSONFormat,
		})
		logger.Info("Config reloaded")
	})
	if err != nil {
		logger.Warn("Config watcher unavailable", zap.Error(err))
	} else if err := watcher.Start(); err != nil {
		logger.Warn("Config watcher failed to start", zap.Error(err))
	} else {
		defer watcher.Stop()
	}

	a.intel.Start(ctx)
	defer a.intel.Stop()
	a.heartbeat.Start(ctx)
	defer a.heartbeat.Stop()

	logger.Info("Agent running",
		zap.Duration("heartbeat", a.cfg.HeartbeatInterval()),
		zap.Duration("intel_refresh", a.cfg.FullRefreshEvery()))

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
	case <-ctx.Done():
	}
	return nil
}

func runSingleCycle(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := buildAgent(ctx, true)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.heartbeat.RunCycle(ctx); err != nil {
		return err
	}
	return printJSON(a.heartbeat.Status())
}

func showStatus(cmd *cobra.Command, args []string) error {
	a, err := buildAgent(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer a.close()

	status := a.heartbeat.Status()
	if profile, err := a.api.GetProfile(cmd.Context(), ""); err == nil {
		status.Karma = profile.Karma
	}
	if err := printJSON(status); err != nil {
		return err
	}

	if historyCount <= 0 {
		return nil
	}
	cycles, err := a.archive.RecentCycles(historyCount)
	if err != nil || len(cycles) == 0 {
		return nil
	}
	fmt.Println("\nRecent cycles:")
	for _, c := range cycles {
		outcome := "ok"
		if c.Failed {
			outcome = "FAILED"
		}
		fmt.Printf("  #%d %s  %-8s %s (delta %+d) %s\n",
			c.CycleCount, c.RecordedAt.Format(time.RFC3339), c.Action, outcome, c.Delta, c.Reason)
	}
	return nil
}

func showIntel(cmd *cobra.Command, args []string) error {
	a, err := buildAgent(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer a.close()

	snap, err := a.intel.GetSnapshot(cmd.Context(), false)
	if err != nil {
		return err
	}
	return printJSON(snap)
}

func showOpportunities(cmd *cobra.Command, args []string) error {
	a, err := buildAgent(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer a.close()

	snap, err := a.intel.GetSnapshot(cmd.Context(), false)
	if err != nil {
		return err
	}
	live := snap.LiveOpportunities(time.Now(), intel.PriorityLow)
	if len(live) == 0 {
		fmt.Println("No live opportunities.")
		return nil
	}
	for _, opp := range live {
		fmt.Printf("[%3d] %-8s %-7s %s  %q (m/%s)\n",
			opp.Score, opp.Priority, opp.Kind, opp.TargetID, opp.Title, opp.Community)
	}
	return nil
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
