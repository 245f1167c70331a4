// Package main is the CLI entry point for presenced.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/eliteGoblin/presenced/internal/config"
	"github.com/eliteGoblin/presenced/internal/daemon"
	"github.com/eliteGoblin/presenced/internal/domain"
	"github.com/eliteGoblin/presenced/internal/infra"
	"github.com/eliteGoblin/presenced/internal/usecase"
)

var (
	// Version info (set via ldflags)
	Version   = "0.1.0"
	Commit    = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "presenced",
	Short: "Rich presence daemon for the game client",
	Long: `presenced mirrors what you are doing in the game to your chat
profile: the page you are on, your character's name, age and gender.

Every field can be hidden. The master switch turns it off entirely.`,
	Version:      Version,
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the presence daemon in the foreground",
	Long: `Runs the presence engine until interrupted. The host state file is
polled every tick and the config file is watched for changes.`,
	RunE: runDaemon,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	RunE:  runStatus,
}

var composeCmd = &cobra.Command{
	Use:   "compose",
	Short: "Print the activity the current host state would produce",
	Long:  `Reads the host state file once and prints the details and state lines the daemon would publish, without connecting.`,
	RunE:  runCompose,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Prints version, commit, and build time. Use --json for machine-readable output.`,
	Run:   runVersion,
}

var (
	configPath string
	dataDir    string
	statePath  string
	verbose    bool
	dryRun     bool
	jsonOutput bool
)

func init() {
	paths := infra.DetectPaths()
	rootCmd.PersistentFlags().StringVar(&configPath, "config", paths.ConfigPath, "Config file")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", paths.DataDir, "Directory for the encrypted store and status file")
	rootCmd.PersistentFlags().StringVar(&statePath, "state", "", "Host state file (default from config, else <data-dir>/state.yaml)")
	runCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log to stderr at debug level")
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Log activity updates instead of sending them")
	statusCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output status as JSON")
	versionCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(composeCmd)
	rootCmd.AddCommand(prefsCmd)
	rootCmd.AddCommand(credentialCmd)
	rootCmd.AddCommand(versionCmd)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := createLogger(cfg.Logging)
	defer func() { _ = logger.Sync() }()

	pm := infra.NewProcessManager()
	status := infra.NewStatusFile(dataDir)
	if prev, err := status.Read(); err == nil && prev != nil && prev.PID != pm.GetCurrentPID() && pm.IsRunning(prev.PID) {
		return fmt.Errorf("presenced already running (pid %d)", prev.PID)
	}

	// Stored overrides are optional: without the store the daemon runs on
	// the config file alone.
	store, err := openStore()
	if err != nil {
		logger.Warn("encrypted store unavailable, using config only", zap.Error(err))
	} else {
		defer store.Close()
		if id, err := store.GetSecret(infra.SecretClientID); err == nil {
			cfg.Presence.ClientID = id
		}
	}
	prefs := effectivePreferences(cfg, store, logger)

	client := presenceClient(cfg, pm, logger)
	state := infra.NewStateFile(resolveStatePath(cfg), logger.Named("state"))
	engine := usecase.NewEngine(cfg.Engine(prefs, time.Now()), client, state, usecase.SystemClock{}, logger.Named("engine"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("received shutdown signal")
		cancel()
	}()

	watcher := config.NewWatcher(configPath, cfg, logger.Named("config"))
	go func() { _ = watcher.Run(ctx) }()
	prefUpdates := make(chan domain.DisplayPreferences, 1)
	go forwardPreferences(ctx, watcher, store, prefUpdates, logger)

	runner := daemon.NewRunner(daemon.RunnerConfig{
		TickInterval:   cfg.Daemon.TickInterval,
		StatusInterval: cfg.Daemon.StatusInterval,
		AppVersion:     Version,
	}, engine, state, status, prefUpdates, pm, logger.Named("daemon"))

	if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// forwardPreferences turns config reloads into preference updates, keeping
// stored overrides on top. Only preferences change at runtime; transport
// and credential changes need a restart.
func forwardPreferences(ctx context.Context, w *config.Watcher, store *infra.EncryptedStore, out chan<- domain.DisplayPreferences, logger *zap.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case cfg := <-w.Updates():
			p := effectivePreferences(cfg, store, logger)
			select {
			case out <- p:
			case <-ctx.Done():
				return
			}
		}
	}
}

// effectivePreferences overlays stored overrides onto the config file.
func effectivePreferences(cfg *config.Config, store *infra.EncryptedStore, logger *zap.Logger) domain.DisplayPreferences {
	base := cfg.Preferences()
	if store == nil {
		return base
	}
	prefs, err := store.LoadPreferences(base)
	if err != nil {
		logger.Warn("failed to load stored preferences", zap.Error(err))
		return base
	}
	return prefs
}

func presenceClient(cfg *config.Config, pm domain.ProcessManager, logger *zap.Logger) domain.PresenceClient {
	var client domain.PresenceClient
	if dryRun || cfg.Transport.Mode == config.TransportLog {
		client = infra.NewLogClient(logger.Named("dry-run"))
	} else {
		client = infra.NewWSClient(infra.WSClientConfig{
			URL:              cfg.Transport.URL,
			HandshakeTimeout: cfg.Transport.HandshakeTimeout,
			RateLimit:        cfg.Transport.RateLimit,
			RateWindow:       cfg.Transport.RateWindow,
		}, logger.Named("transport"))
	}
	if cfg.Transport.ServiceProcess == "" || dryRun {
		return client
	}
	return infra.NewServiceProbe(client, pm, cfg.Transport.ServiceProcess, logger.Named("probe"))
}

func resolveStatePath(cfg *config.Config) string {
	switch {
	case statePath != "":
		return statePath
	case cfg.Daemon.StatePath != "":
		return cfg.Daemon.StatePath
	default:
		return filepath.Join(dataDir, "state.yaml")
	}
}

func openStore() (*infra.EncryptedStore, error) {
	key, _, err := infra.EnsureKey(infra.NewFileKeyProvider(dataDir))
	if err != nil {
		return nil, fmt.Errorf("failed to load store key: %w", err)
	}
	return infra.NewEncryptedStore(dataDir, key)
}

func runStatus(cmd *cobra.Command, args []string) error {
	pm := infra.NewProcessManager()
	st, err := infra.NewStatusFile(dataDir).Read()
	if err != nil {
		return err
	}

	running := st != nil && pm.IsRunning(st.PID)
	if jsonOutput {
		out := struct {
			Running bool                   `json:"running"`
			Status  *domain.PresenceStatus `json:"status,omitempty"`
		}{Running: running, Status: st}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	fmt.Println("\n=== presenced Status ===")
	if st == nil {
		fmt.Println("Status: NOT RUNNING")
		fmt.Println("\nRun 'presenced run' to start the daemon.")
		return nil
	}
	if !running {
		fmt.Printf("Status: NOT RUNNING (stale status from pid %d)\n", st.PID)
		return nil
	}

	conn := "disconnected"
	if st.Connected {
		conn = "connected"
	}
	fmt.Printf("Status: RUNNING (pid %d, %s)\n", st.PID, conn)
	fmt.Printf("Activity: %s\n", st.Activity)
	if st.CredentialSuspect {
		fmt.Println("Client id: SUSPECT (not fully numeric, reconnects disabled)")
	}
	fmt.Printf("Up: %s\n", time.Since(st.StartedAt).Round(time.Second))
	fmt.Printf("Last update: %s ago\n", time.Since(st.UpdatedAt).Round(time.Second))
	fmt.Println("\nPreferences:")
	printPreferences(st.Preferences)
	fmt.Println("========================")
	return nil
}

func runCompose(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	var store *infra.EncryptedStore
	if s, err := openStore(); err == nil {
		defer s.Close()
		store = s
	}
	prefs := effectivePreferences(cfg, store, zap.NewNop())

	state := infra.NewStateFile(resolveStatePath(cfg), zap.NewNop())
	if err := state.Refresh(); err != nil {
		return err
	}

	if !prefs.ShowGame {
		fmt.Println("presence disabled")
		return nil
	}
	if !prefs.ShowStatus {
		fmt.Println("status hidden: details and state are blank")
		return nil
	}
	c, ok := usecase.Compose(usecase.ComposeInput{
		Context:      state.Context(),
		Player:       state.Player(),
		Reconnecting: state.Reconnecting(),
		IdleIndex:    cfg.Presence.IdleExpressionIndex,
		Preferences:  prefs,
	})
	if !ok {
		fmt.Printf("nothing to report for context %q\n", state.Context())
		return nil
	}
	if !prefs.ShowDetails {
		c.State = ""
	}
	fmt.Printf("Activity: %s\n", c.Type)
	fmt.Printf("Details:  %s\n", usecase.NewBoundedText(c.Details, usecase.TextCapacity))
	fmt.Printf("State:    %s\n", usecase.NewBoundedText(c.State, usecase.TextCapacity))
	return nil
}

func createLogger(cfg config.LoggingConfig) *zap.Logger {
	if verbose {
		logger, err := zap.NewDevelopment()
		if err == nil {
			return logger
		}
	}

	path := cfg.Path
	if path == "" {
		path = infra.DetectPaths().LogPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		logger, _ := zap.NewProduction()
		return logger
	}

	zc := zap.NewProductionConfig()
	zc.OutputPaths = []string{path}
	zc.ErrorOutputPaths = []string{path}
	zc.EncoderConfig.TimeKey = "time"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if level, err := zapcore.ParseLevel(cfg.Level); err == nil {
		zc.Level = zap.NewAtomicLevelAt(level)
	}

	logger, err := zc.Build()
	if err != nil {
		// Fallback to stdout if file logging fails
		logger, _ = zap.NewProduction()
	}
	return logger
}

func runVersion(cmd *cobra.Command, args []string) {
	if jsonOutput {
		fmt.Printf(`{"version":"%s","commit":"%s","build_time":"%s"}`+"\n",
			Version, Commit, BuildTime)
	} else {
		fmt.Printf("presenced %s (commit: %s, built: %s)\n",
			Version, Commit, BuildTime)
	}
}
