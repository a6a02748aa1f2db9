package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/qvvonk/smart-replays/internal/config"
	"github.com/qvvonk/smart-replays/internal/daemon"
	"github.com/qvvonk/smart-replays/internal/domain"
	"github.com/qvvonk/smart-replays/internal/infra"
	"github.com/qvvonk/smart-replays/internal/naming"
	"github.com/qvvonk/smart-replays/internal/usecase"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the replay watcher in the foreground",
	Long: `Runs the replay watcher until interrupted.

Save triggers arrive as signals: SIGUSR1 is the primary hotkey, SIGUSR2 the
secondary hotkey, SIGHUP reloads the config file and custom names.
Bind your hotkeys to 'smartreplays save' and 'smartreplays save --secondary',
or to 'smartreplays save --mode <mode>' for one hotkey per naming mode.
'save --mode' and 'restart' go through the control socket in the data dir.`,
	RunE: runDaemon,
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the replay watcher in the background",
	RunE:  runStart,
}

var saveCmd = &cobra.Command{
	Use:   "save",
	Short: "Ask the running watcher to save the replay buffer",
	Long: `Asks the running watcher to save the replay buffer.

Without --mode the save is delivered as a hotkey signal and returns at once.
With --mode the save runs through the control socket and prints the clip.`,
	RunE: runSave,
}

var restartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Restart the replay buffer now and reset the restart schedule",
	RunE:  runRestart,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show watcher status, restart schedule and recent clips",
	RunE:  runStatus,
}

var (
	saveSecondary bool
	saveMode      string
	statusClips   int
)

// controlTimeout bounds control socket calls; a save waits on the buffer.
const controlTimeout = 2 * time.Minute

func init() {
	saveCmd.Flags().BoolVar(&saveSecondary, "secondary", false, "Use the secondary hotkey's naming mode")
	saveCmd.Flags().StringVar(&saveMode, "mode", "", "Naming mode for this save (current_process, most_recorded_process, current_scene)")
	saveCmd.MarkFlagsMutuallyExclusive("secondary", "mode")
	statusCmd.Flags().IntVar(&statusClips, "clips", 5, "Number of recent clips to show")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := createDaemonLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	store, paths, err := openStore(cfg)
	if err != nil {
		logger.Error("failed to open state store", zap.Error(err))
		return err
	}
	defer store.Close()

	pm := infra.NewProcessManager()
	if info, err := daemon.RunningDaemon(store, pm); err == nil && info.PID != pm.GetCurrentPID() {
		return fmt.Errorf("smartreplays is already running (pid %d)", info.PID)
	}

	rules, err := loadRules(store, cfg.Naming.CustomNames, logger)
	if err != nil {
		return err
	}

	buffer := infra.NewCommandBufferController(cfg.Buffer, logger)
	notifier := buildNotifier(cfg, logger)
	gate := usecase.NewSaveLock()

	resolver := usecase.NewModeResolver(
		infra.NewX11WindowInspector(pm),
		buffer,
		nil,
		cfg.Naming.TieBreak,
		logger,
	)

	scheduler := daemon.NewRestartScheduler(buffer, infra.NewIdleInputMonitor(), gate, notifier, logger)
	scheduler.SetRestartTimeout(cfg.Restart.Timeout)
	gate.OnRelease(scheduler.OnSaveReleased)
	scheduler.OnRestart(resolver.ResetWindow)
	if persisted, err := store.RestartState(); err == nil {
		scheduler.Restore(persisted, cfg.Restart.Interval, time.Now())
	} else {
		logger.Warn("failed to load restart schedule", zap.Error(err))
		scheduler.Configure(cfg.Restart.Interval, time.Now())
	}

	orchestrator := usecase.NewSaveOrchestrator(
		usecase.OrchestratorConfig{
			DefaultMode:      cfg.Naming.Mode,
			BasePath:         cfg.BasePath,
			SortIntoFolders:  cfg.SortIntoFolders,
			RestartAfterSave: cfg.Restart.AfterSave,
		},
		gate,
		resolver,
		rules,
		nil,
		buffer,
		infra.NewFileSystemManager(),
		notifier,
		scheduler,
		store,
		logger,
	)
	// An invalid template is logged and replaced by the default.
	_ = orchestrator.SetTemplate(cfg.Naming.Template)

	reload := func(ctx context.Context) error {
		newCfg, err := reloadConfig()
		if err != nil {
			return err
		}
		newRules, err := loadRules(store, nil, logger)
		if err != nil {
			return err
		}
		orchestrator.SetRules(newRules)
		_ = orchestrator.SetTemplate(newCfg.Naming.Template)
		if newCfg.Restart.Interval != scheduler.Snapshot().Interval {
			scheduler.Configure(newCfg.Restart.Interval, time.Now())
		}
		return nil
	}

	watcherConfig := daemon.DefaultWatcherConfig()
	watcherConfig.SamplingInterval = cfg.SamplingInterval
	watcherConfig.TrackDwell = cfg.TracksDwell()

	info := domain.DaemonInfo{
		PID:        pm.GetCurrentPID(),
		StartedAt:  time.Now(),
		AppVersion: Version,
	}
	triggers := daemon.NewSignalTriggerSource(cfg.Hotkeys)

	watcher := daemon.NewWatcher(
		watcherConfig,
		orchestrator,
		resolver,
		scheduler,
		buffer,
		store,
		triggers,
		reload,
		info,
		logger,
	)

	control := daemon.NewControlServer(daemon.ControlConfig{
		SocketPath: paths.SocketFile,
		Saver:      orchestrator,
		Scheduler:  scheduler,
		Reload:     triggers.RequestReload,
		Daemon:     info,
		Logger:     logger,
	})
	if err := control.Start(); err != nil {
		// Signals still work without the socket.
		logger.Warn("control socket unavailable", zap.Error(err))
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := control.Shutdown(shutdownCtx); err != nil {
				logger.Warn("failed to stop control socket", zap.Error(err))
			}
		}()
	}

	// Set up graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("replay watcher stopped")
	return nil
}

// loadRules reads the stored custom names, seeding them from seed when the
// store has none. Invalid stored rules are logged and skipped.
func loadRules(store domain.StateStore, seed []string, logger *zap.Logger) (*naming.RuleSet, error) {
	raw, err := store.CustomNames()
	if err != nil {
		return nil, fmt.Errorf("failed to load custom names: %w", err)
	}

	seeding := len(raw) == 0 && len(seed) > 0
	if seeding {
		raw = seed
	}

	rules, ruleErrs := naming.ParseRulesLenient(raw)
	for _, re := range ruleErrs {
		logger.Warn("ignoring invalid custom name",
			zap.Int("index", re.Index+1),
			zap.String("rule", re.Rule),
			zap.Error(re.Err))
	}

	if seeding {
		if err := store.SetCustomNames(rules.Strings()); err != nil {
			return nil, fmt.Errorf("failed to seed custom names: %w", err)
		}
		logger.Info("seeded custom names from config", zap.Int("count", rules.Len()))
	}
	return rules, nil
}

func buildNotifier(cfg *config.Config, logger *zap.Logger) domain.Notifier {
	notifiers := infra.MultiNotifier{
		infra.NewLogNotifier(logger),
		infra.NewCommandNotifier(cfg.Notifications.NotifierConfig),
	}
	if cfg.Notifications.CopyPath {
		notifiers = append(notifiers, infra.NewClipboardNotifier())
	}
	return notifiers
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, paths, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	pm := infra.NewProcessManager()
	if info, err := daemon.RunningDaemon(store, pm); err == nil {
		fmt.Printf("smartreplays is already running (pid %d)\n", info.PID)
		return nil
	}

	logFile := cfg.Log.File
	if logFile == "" {
		logFile = paths.LogFile
	}
	runArgs := []string{"--log-file", logFile, "--data-dir", paths.DataDir}
	if cfgFile != "" {
		runArgs = append(runArgs, "--config", cfgFile)
	}

	pid, err := daemon.StartDetached("", runArgs...)
	if err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}

	// Wait a moment for the watcher to register
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if info, err := store.Daemon(); err == nil && info != nil && info.PID == pid {
			fmt.Printf("smartreplays started (pid %d)\n", pid)
			fmt.Printf("Logs: %s\n", logFile)
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	fmt.Printf("smartreplays spawned (pid %d) but has not registered yet; check %s\n", pid, logFile)
	return nil
}

func runSave(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if saveMode != "" {
		return runControlSave(cmd.Context(), cfg, saveMode)
	}
	store, _, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	sig := daemon.SignalSavePrimary
	if saveSecondary {
		sig = daemon.SignalSaveSecondary
	}
	pid, err := daemon.SignalDaemon(store, infra.NewProcessManager(), sig)
	if errors.Is(err, daemon.ErrNotRunning) {
		return fmt.Errorf("%w; run 'smartreplays start' first", err)
	}
	if err != nil {
		return err
	}
	fmt.Printf("Save requested (pid %d)\n", pid)
	return nil
}

func runControlSave(ctx context.Context, cfg *config.Config, mode string) error {
	if _, err := domain.ParseClipNamingMode(mode); err != nil {
		return err
	}
	client := daemon.NewControlClient(infra.DetectPaths(cfg.DataDir).SocketFile, controlTimeout)
	resp, err := client.Save(commandContext(ctx), mode)
	if errors.Is(err, daemon.ErrNotRunning) {
		return fmt.Errorf("%w; run 'smartreplays start' first", err)
	}
	if err != nil {
		return fmt.Errorf("save failed: %w", err)
	}
	fmt.Printf("Saved %s (%s, %s)\n", resp.Path, resp.Name, humanize.Bytes(uint64(resp.SizeBytes)))
	return nil
}

func runRestart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client := daemon.NewControlClient(infra.DetectPaths(cfg.DataDir).SocketFile, controlTimeout)
	err = client.Restart(commandContext(cmd.Context()))
	if errors.Is(err, daemon.ErrNotRunning) {
		return fmt.Errorf("%w; run 'smartreplays start' first", err)
	}
	if err != nil {
		return fmt.Errorf("restart failed: %w", err)
	}
	fmt.Println("Replay buffer restarted; restart schedule reset")
	return nil
}

func commandContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, paths, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	fmt.Println("\n=== smartreplays Status ===")

	info, err := daemon.RunningDaemon(store, infra.NewProcessManager())
	if err != nil {
		fmt.Println("Status: NOT RUNNING")
		fmt.Println("\nRun 'smartreplays start' to start the watcher.")
	} else {
		fmt.Printf("Status: RUNNING (pid %d, v%s)\n", info.PID, info.AppVersion)
		fmt.Printf("Started: %s\n", humanize.Time(info.StartedAt))
		fmt.Printf("Last heartbeat: %s\n", humanize.Time(info.LastHeartbeat))
	}

	fmt.Println("\nNaming:")
	fmt.Printf("  Mode:            %s\n", cfg.Naming.Mode)
	fmt.Printf("  Primary hotkey:  %s\n", modeName(cfg.Hotkeys.Primary, cfg.Naming.Mode))
	fmt.Printf("  Second hotkey:   %s\n", modeName(cfg.Hotkeys.Secondary, cfg.Naming.Mode))
	fmt.Printf("  Template:        %s\n", cfg.Naming.Template)
	if names, err := store.CustomNames(); err == nil {
		fmt.Printf("  Custom names:    %d\n", len(names))
	}

	fmt.Println("\nBuffer restart:")
	state, err := store.RestartState()
	switch {
	case err != nil:
		fmt.Printf("  unavailable: %v\n", err)
	case state.Interval == 0:
		fmt.Println("  disabled")
	default:
		fmt.Printf("  Every %s, next %s", state.Interval, humanize.Time(state.DueAt))
		if state.Pending {
			fmt.Print(" (pending)")
		}
		fmt.Println()
	}

	clips, err := store.RecentClips(statusClips)
	if err == nil && len(clips) > 0 {
		fmt.Println("\nRecent clips:")
		for _, c := range clips {
			fmt.Printf("  %-14s %-20s %s\n", humanize.Time(c.SavedAt), c.Name, c.Path)
		}
	}

	fmt.Printf("\nState: %s\n", paths.DataDir)
	fmt.Println("================================")
	return nil
}

// notifyDaemonReload asks a running watcher to pick up rule changes.
func notifyDaemonReload(store domain.StateStore) {
	pid, err := daemon.SignalDaemon(store, infra.NewProcessManager(), daemon.SignalReload)
	if err == nil {
		fmt.Printf("Reloaded running watcher (pid %d)\n", pid)
		return
	}
	if !errors.Is(err, daemon.ErrNotRunning) {
		fmt.Fprintf(os.Stderr, "Warning: could not notify watcher: %v\n", err)
	}
}
