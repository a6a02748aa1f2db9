// Package config maps viper settings onto a typed, validated Config.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/qvvonk/smart-replays/internal/daemon"
	"github.com/qvvonk/smart-replays/internal/domain"
	"github.com/qvvonk/smart-replays/internal/infra"
	"github.com/qvvonk/smart-replays/internal/naming"
	"github.com/qvvonk/smart-replays/internal/usecase"
)

// EnvPrefix is the prefix of environment overrides (SMART_REPLAYS_NAMING_MODE, ...).
const EnvPrefix = "SMART_REPLAYS"

// Config is the typed view of the application settings.
type Config struct {
	Naming           NamingConfig
	Restart          RestartConfig
	BasePath         string
	SortIntoFolders  bool
	Hotkeys          daemon.HotkeyModes
	SamplingInterval time.Duration
	Notifications    NotificationsConfig
	Buffer           infra.BufferCommands
	DataDir          string
	Log              LogConfig
}

// NamingConfig controls how clips are named.
type NamingConfig struct {
	Mode        domain.ClipNamingMode
	Template    string
	TieBreak    usecase.TieBreak
	CustomNames []string
}

// RestartConfig controls the periodic buffer restart.
type RestartConfig struct {
	Interval  time.Duration
	AfterSave bool
	Timeout   time.Duration
}

// NotificationsConfig controls save outcome reporting.
type NotificationsConfig struct {
	infra.NotifierConfig
	CopyPath bool
}

// LogConfig controls the daemon logger.
type LogConfig struct {
	Level string
	File  string
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("naming.mode", string(domain.ModeCurrentProcess))
	v.SetDefault("naming.template", naming.DefaultTemplate)
	v.SetDefault("naming.tie_break", string(usecase.TieBreakMostRecent))
	v.SetDefault("naming.custom_names", []string{})

	v.SetDefault("restart.interval", 0)
	v.SetDefault("restart.after_save", false)
	v.SetDefault("restart.timeout_seconds", 30)

	v.SetDefault("saving.base_path", "")
	v.SetDefault("saving.sort_into_folders", false)

	v.SetDefault("hotkeys.primary_mode", "")
	v.SetDefault("hotkeys.secondary_mode", string(domain.ModeMostRecordedProcess))

	v.SetDefault("sampling.interval", time.Second)

	v.SetDefault("notifications.success", true)
	v.SetDefault("notifications.failure", true)
	v.SetDefault("notifications.success_command", "")
	v.SetDefault("notifications.failure_command", "")
	v.SetDefault("notifications.copy_path", false)

	v.SetDefault("buffer.save_command", "")
	v.SetDefault("buffer.restart_command", "")
	v.SetDefault("buffer.status_command", "")
	v.SetDefault("buffer.scene_command", "")
	v.SetDefault("buffer.max_clip_seconds", 300)

	v.SetDefault("data_dir", "~/.smart-replays")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
}

// Init applies defaults and environment overrides, then reads cfgFile if set.
// A missing default config file is not an error.
func Init(v *viper.Viper, cfgFile string) error {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	cfgFile = strings.TrimSpace(cfgFile)
	if cfgFile == "" {
		return nil
	}
	v.SetConfigFile(cfgFile)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read config %s: %w", cfgFile, err)
	}
	return nil
}

// FromViper builds a validated Config from v.
func FromViper(v *viper.Viper) (*Config, error) {
	mode, err := domain.ParseClipNamingMode(v.GetString("naming.mode"))
	if err != nil {
		return nil, fmt.Errorf("naming.mode: %w", err)
	}
	tieBreak, err := usecase.ParseTieBreak(v.GetString("naming.tie_break"))
	if err != nil {
		return nil, fmt.Errorf("naming.tie_break: %w", err)
	}
	primary, err := optionalMode(v.GetString("hotkeys.primary_mode"))
	if err != nil {
		return nil, fmt.Errorf("hotkeys.primary_mode: %w", err)
	}
	secondary, err := optionalMode(v.GetString("hotkeys.secondary_mode"))
	if err != nil {
		return nil, fmt.Errorf("hotkeys.secondary_mode: %w", err)
	}

	cfg := &Config{
		Naming: NamingConfig{
			Mode:        mode,
			Template:    v.GetString("naming.template"),
			TieBreak:    tieBreak,
			CustomNames: v.GetStringSlice("naming.custom_names"),
		},
		Restart: RestartConfig{
			Interval:  time.Duration(v.GetInt("restart.interval")) * time.Second,
			AfterSave: v.GetBool("restart.after_save"),
			Timeout:   time.Duration(v.GetInt("restart.timeout_seconds")) * time.Second,
		},
		BasePath:         strings.TrimSpace(v.GetString("saving.base_path")),
		SortIntoFolders:  v.GetBool("saving.sort_into_folders"),
		Hotkeys:          daemon.HotkeyModes{Primary: primary, Secondary: secondary},
		SamplingInterval: v.GetDuration("sampling.interval"),
		Notifications: NotificationsConfig{
			NotifierConfig: infra.NotifierConfig{
				Success:        v.GetBool("notifications.success"),
				Failure:        v.GetBool("notifications.failure"),
				SuccessCommand: v.GetString("notifications.success_command"),
				FailureCommand: v.GetString("notifications.failure_command"),
			},
			CopyPath: v.GetBool("notifications.copy_path"),
		},
		Buffer: infra.BufferCommands{
			Save:    v.GetString("buffer.save_command"),
			Restart: v.GetString("buffer.restart_command"),
			Status:  v.GetString("buffer.status_command"),
			Scene:   v.GetString("buffer.scene_command"),
			MaxClip: time.Duration(v.GetInt("buffer.max_clip_seconds")) * time.Second,
		},
		DataDir: v.GetString("data_dir"),
		Log: LogConfig{
			Level: v.GetString("log.level"),
			File:  v.GetString("log.file"),
		},
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func optionalMode(s string) (*domain.ClipNamingMode, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	mode, err := domain.ParseClipNamingMode(s)
	if err != nil {
		return nil, err
	}
	return &mode, nil
}

// Validate checks ranges that parsing alone does not catch.
// The filename template is not checked here: an invalid template falls back
// to the default at save time.
func (c *Config) Validate() error {
	if err := daemon.ValidateInterval(c.Restart.Interval); err != nil {
		return fmt.Errorf("restart.interval: %w", err)
	}
	if c.Restart.Timeout <= 0 {
		return fmt.Errorf("restart.timeout_seconds must be positive")
	}
	if c.SamplingInterval <= 0 {
		return fmt.Errorf("sampling.interval must be positive, got %s", c.SamplingInterval)
	}
	for key, command := range map[string]string{
		"buffer.save_command":           c.Buffer.Save,
		"buffer.restart_command":        c.Buffer.Restart,
		"buffer.status_command":         c.Buffer.Status,
		"buffer.scene_command":          c.Buffer.Scene,
		"notifications.success_command": c.Notifications.SuccessCommand,
		"notifications.failure_command": c.Notifications.FailureCommand,
	} {
		if _, err := infra.ParseCommandLine(command); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	if c.Buffer.MaxClip < 0 {
		return fmt.Errorf("buffer.max_clip_seconds must not be negative")
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level: unknown level %q", c.Log.Level)
	}
	return nil
}

// TracksDwell reports whether any configured mode needs foreground sampling.
func (c *Config) TracksDwell() bool {
	if c.Naming.Mode.TracksDwell() {
		return true
	}
	for _, m := range []*domain.ClipNamingMode{c.Hotkeys.Primary, c.Hotkeys.Secondary} {
		if m != nil && m.TracksDwell() {
			return true
		}
	}
	return false
}
