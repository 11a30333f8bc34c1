package app

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/apkextract/internal/config"
	"github.com/blackwell-systems/apkextract/internal/logger"
)

var (
	dbPath   string
	serial   string
	cfgFile  string
	logLevel string

	// appCfg is loaded by the root command before any subcommand runs.
	appCfg *config.Config

	// RootCmd is the root command for apkextract
	RootCmd = &cobra.Command{
		Use:   "apkextract",
		Short: "List, export, share and reinstall Android app archives",
		Long: `apkextract lists the applications installed on an Android device and
copies their package archives (APKs) to a local directory, stages them for
sharing, or installs archives back onto the device. It talks to the device
through adb.

Quick Start:
  1. apkextract prefs set dir ~/APKs
  2. apkextract list
  3. apkextract export com.example.app

Features:
  • Type selection, filters and sorting that persist between runs
  • File names built from a template (name, package, version)
  • Export history with archive metadata
  • Staged installs with progress
  • A watcher that keeps backups of chosen apps up to date

Examples:
  # List user and updated system apps, newest update first
  apkextract list --updated-system --sort updated --desc

  # Save two apps to the configured directory
  apkextract export com.example.maps com.example.mail

  # Reinstall a saved archive
  apkextract install ~/APKs/Maps_com.example.maps.apk

  # Show saved archives
  apkextract archives list`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setup,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("apkextract: Android app archive extractor")
			fmt.Println()
			dbPath, _ := getDBPath()
			if _, err := os.Stat(dbPath); os.IsNotExist(err) {
				fmt.Println("Run 'apkextract prefs set dir <path>' to choose where archives go.")
			} else {
				fmt.Println("Tip: Run 'apkextract list' to see installed apps.")
			}
			fmt.Println("Run 'apkextract --help' for the full reference.")
			return nil
		},
	}
)

func init() {
	// Global flags
	RootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database path (default: ~/.apkextract/apkextract.db)")
	RootCmd.PersistentFlags().StringVar(&serial, "serial", "", "device serial passed to adb -s")
	RootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.config/apkextract/config.yaml)")
	RootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")

	// Enable cobra's built-in suggestion feature for unknown subcommands
	RootCmd.SuggestionsMinimumDistance = 2

	RootCmd.AddCommand(listCmd)
	RootCmd.AddCommand(exportCmd)
	RootCmd.AddCommand(shareCmd)
	RootCmd.AddCommand(installCmd)
	RootCmd.AddCommand(archivesCmd)
	RootCmd.AddCommand(prefsCmd)
	RootCmd.AddCommand(actionCmd)
	RootCmd.AddCommand(historyCmd)
	RootCmd.AddCommand(watchCmd)
}

// Execute runs the root command
func Execute() error {
	defer logger.Close()
	return RootCmd.Execute()
}

// setup loads the configuration, letting flags win over the file and the
// environment, and initialises logging.
func setup(cmd *cobra.Command, args []string) error {
	v, err := config.New()
	if err != nil {
		return err
	}

	flags := cmd.Root().PersistentFlags()
	bindings := map[string]string{
		"database.path": "db",
		"adb.serial":    "serial",
		"logging.level": "log-level",
	}
	for key, name := range bindings {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			return fmt.Errorf("failed to bind --%s: %w", name, err)
		}
	}

	cfg, err := config.Load(v, cfgFile)
	if err != nil {
		return err
	}
	appCfg = cfg

	return logger.Init(cfg.Logging.Level, cfg.Logging.File)
}

// currentConfig returns the loaded configuration, or the defaults when the
// root command did not run.
func currentConfig() (*config.Config, error) {
	if appCfg != nil {
		return appCfg, nil
	}
	v, err := config.New()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(v, cfgFile)
	if err != nil {
		return nil, err
	}
	appCfg = cfg
	return cfg, nil
}

// getDataDir returns ~/.apkextract, creating it if needed.
func getDataDir() (string, error) {
	dir, err := config.DataDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create apkextract directory: %w", err)
	}
	return dir, nil
}

// getDBPath returns the database path, using the flag value, then the
// config, and creates its directory.
func getDBPath() (string, error) {
	if dbPath != "" {
		return dbPath, nil
	}

	cfg, err := currentConfig()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0755); err != nil {
		return "", fmt.Errorf("failed to create database directory: %w", err)
	}
	return cfg.Database.Path, nil
}

// getDefaultPIDFile returns the default PID file path
func getDefaultPIDFile() (string, error) {
	dir, err := getDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "watch.pid"), nil
}

// getDefaultLogFile returns the default log file path
func getDefaultLogFile() (string, error) {
	dir, err := getDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "watch.log"), nil
}
