// Package cli implements the gigbell commands.
package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/nhle/gigbell/internal/app"
	"github.com/nhle/gigbell/internal/model"
)

var (
	cfgFile string
	envFile string
	cfg     *model.AppConfig
)

var rootCmd = &cobra.Command{
	Use:   "gigbell",
	Short: "Live notification bell for the gig marketplace",
	Long: `gigbell keeps a live connection to the marketplace notification
stream and shows incoming notifications behind a bell with an unread badge.

Run without a subcommand to open the dashboard.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
	RunE:              runDashboard,
}

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Open the notification dashboard",
	Args:  cobra.NoArgs,
	RunE:  runDashboard,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default "+model.DefaultConfigPath()+")")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the config")

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(dashboardCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(tailCmd)
	rootCmd.AddCommand(whoamiCmd)
}

func configPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return model.DefaultConfigPath()
}

// loadConfig reads the dotenv file, if present, and then the config file.
// Variables already set in the environment win over the dotenv file.
func loadConfig(cmd *cobra.Command, args []string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", envFile, err)
		}
	}

	c, err := model.LoadConfig(configPath())
	if err != nil {
		return err
	}
	cfg = c
	return nil
}

func runDashboard(cmd *cobra.Command, args []string) error {
	logPath := cfg.Log.File
	if logPath == "" {
		logPath = model.DefaultLogPath()
	}
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return fmt.Errorf("creating log directory: %w", err)
	}
	f, err := tea.LogToFile(logPath, "gigbell")
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	defer f.Close()

	p := tea.NewProgram(
		app.New(app.Options{Config: *cfg, Logger: log.Default()}),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)

	final, err := p.Run()
	if m, ok := final.(app.Model); ok {
		m.Close()
	}
	return err
}
