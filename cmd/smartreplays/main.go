// Package main is the CLI entry point for smartreplays.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/qvvonk/smart-replays/internal/config"
	"github.com/qvvonk/smart-replays/internal/daemon"
	"github.com/qvvonk/smart-replays/internal/domain"
	"github.com/qvvonk/smart-replays/internal/infra"
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
	Use:   "smartreplays",
	Short: "Names and files replay buffer clips after what you were playing",
	Long: `smartreplays watches which application is in the foreground while the
replay buffer records. When a replay is saved it names the clip after that
application (or the active scene), applies your custom names and filename
template, and optionally sorts clips into per-game folders.

It can also restart the replay buffer periodically, postponing the restart
while you are still at the keyboard so no moment is lost.`,
	Version:           Version,
	SilenceUsage:      true,
	PersistentPreRunE: initConfig,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Prints version, commit, and build time. Use --json for machine-readable output.`,
	Run:   runVersion,
}

var rotateKeyCmd = &cobra.Command{
	Use:   "rotate-key",
	Short: "Re-encrypt the state database under a new key",
	Long: `Generates a new store key, re-encrypts the state database with it and
replaces the key file. Stop the watcher first.`,
	RunE: runRotateKey,
}

var (
	cfgFile    string
	jsonOutput bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file path (default ~/.config/smart-replays/config.yaml)")
	rootCmd.PersistentFlags().String("data-dir", "", "Directory holding the encrypted state database")
	rootCmd.PersistentFlags().String("log-level", "", "Logging level: debug|info|warn|error")
	rootCmd.PersistentFlags().String("log-file", "", "Write daemon logs to this file")

	_ = viper.BindPFlag("data_dir", rootCmd.PersistentFlags().Lookup("data-dir"))
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log.file", rootCmd.PersistentFlags().Lookup("log-file"))

	versionCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(saveCmd)
	rootCmd.AddCommand(restartCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(rulesCmd)
	rootCmd.AddCommand(templateCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(rotateKeyCmd)
	rootCmd.AddCommand(versionCmd)
}

// configPath returns the config file in use.
func configPath() string {
	if strings.TrimSpace(cfgFile) != "" {
		return cfgFile
	}
	return infra.DetectPaths("").ConfigFile
}

func initConfig(cmd *cobra.Command, args []string) error {
	return config.Init(viper.GetViper(), configPath())
}

// loadConfig returns the validated configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.FromViper(viper.GetViper())
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// reloadConfig re-reads the config file on top of the current settings.
func reloadConfig() (*config.Config, error) {
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}
	return loadConfig()
}

// openStore opens the encrypted state database.
func openStore(cfg *config.Config) (*infra.EncryptedStore, infra.Paths, error) {
	paths := infra.DetectPaths(cfg.DataDir)
	store, err := infra.OpenStore(paths.DataDir, infra.NewStoreKeyFile(paths.DataDir))
	if err != nil {
		return nil, paths, err
	}
	return store, paths, nil
}

// createDaemonLogger builds the production logger used by the daemon.
func createDaemonLogger(cfg config.LogConfig) *zap.Logger {
	zapConfig := zap.NewProductionConfig()
	if cfg.File != "" {
		zapConfig.OutputPaths = []string{cfg.File}
		zapConfig.ErrorOutputPaths = []string{cfg.File}
	}
	zapConfig.EncoderConfig.TimeKey = "time"
	zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if level, err := zap.ParseAtomicLevel(cfg.Level); err == nil {
		zapConfig.Level = level
	}

	logger, err := zapConfig.Build()
	if err != nil {
		// Fallback to stderr if file logging fails
		logger, _ = zap.NewProduction()
	}
	return logger
}

// createCLILogger builds a console logger for interactive commands.
func createCLILogger(cfg config.LogConfig) *zap.Logger {
	zapConfig := zap.NewDevelopmentConfig()
	zapConfig.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	if cfg.Level != "" && cfg.Level != "info" {
		if level, err := zap.ParseAtomicLevel(cfg.Level); err == nil {
			zapConfig.Level = level
		}
	}
	logger, err := zapConfig.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func runRotateKey(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, paths, err := openStore(cfg)
	if err != nil {
		return err
	}
	info, err := daemon.RunningDaemon(store, infra.NewProcessManager())
	store.Close()
	if err == nil {
		return fmt.Errorf("watcher is running (pid %d); stop it first", info.PID)
	}

	if err := infra.RotateStoreKey(context.Background(), paths.DataDir, infra.NewStoreKeyFile(paths.DataDir)); err != nil {
		return err
	}
	fmt.Printf("Store key rotated (%s)\n", paths.DataDir)
	return nil
}

func runVersion(cmd *cobra.Command, args []string) {
	if jsonOutput {
		out, _ := json.Marshal(map[string]string{
			"version":    Version,
			"commit":     Commit,
			"build_time": BuildTime,
		})
		fmt.Println(string(out))
	} else {
		fmt.Printf("smartreplays %s (commit: %s, built: %s)\n",
			Version, Commit, BuildTime)
	}
}

func modeName(m *domain.ClipNamingMode, fallback domain.ClipNamingMode) string {
	if m == nil {
		return string(fallback) + " (default)"
	}
	return string(*m)
}
