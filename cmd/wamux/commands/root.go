// Package commands provides the CLI commands for wamux.
package commands

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/telnet2/wamux/internal/config"
	"github.com/telnet2/wamux/internal/credential"
	"github.com/telnet2/wamux/internal/logging"
)

var (
	// Version information set at build time
	Version   = "0.1.0"
	BuildTime = "dev"
)

// Global flags
var (
	printLogs bool
	logLevel  string
	dataDir   string
)

// settings is loaded before any subcommand runs.
var settings *config.Settings

var rootCmd = &cobra.Command{
	Use:   "wamux",
	Short: "wamux - multi-session WhatsApp bot",
	Long: `wamux runs several WhatsApp accounts in one process. Each session has
its own owner, prefix, mode and sudo list, and answers chat commands
loaded from a directory of Markdown manifests.

Run 'wamux serve' to start every configured session and the HTTP API.`,
	Version:           Version,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&printLogs, "print-logs", false, "Print logs to stderr")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (DEBUG|INFO|WARN|ERROR)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Data directory (sessions, credentials, commands)")

	rootCmd.SetVersionTemplate(fmt.Sprintf("wamux %s (%s)\n", Version, BuildTime))

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute() error {
	defer logging.Close()
	return rootCmd.Execute()
}

// setup loads settings and configures logging. serve always logs to stderr;
// other commands only with --print-logs.
func setup(cmd *cobra.Command, args []string) error {
	workDir, err := os.Getwd()
	if err != nil {
		return err
	}
	s, err := config.Load(workDir)
	if err != nil {
		return err
	}
	if dataDir != "" {
		s.DataDir = dataDir
		if os.Getenv("WAMUX_COMMANDS_DIR") == "" {
			s.CommandsDir = filepath.Join(dataDir, "commands")
		}
	}
	if logLevel != "" {
		s.LogLevel = logLevel
	}
	settings = s

	var out io.Writer = io.Discard
	if printLogs || cmd == serveCmd {
		out = os.Stderr
	}
	logging.Init(logging.Config{
		Level:     logging.ParseLevel(s.LogLevel),
		Output:    out,
		Pretty:    s.PrettyLogs,
		LogToFile: s.LogToFile,
		LogDir:    config.GetPaths().LogDir(),
	})
	return nil
}

// openBackup returns the configured backup, or nil when none is set.
func openBackup(s *config.Settings) (*credential.Backup, error) {
	if s.BackupURL == "" {
		return nil, nil
	}
	blobs, err := credential.NewHTTPBlobStore(s.BackupURL)
	if err != nil {
		return nil, err
	}
	blobs.Token = s.BackupToken
	return credential.NewBackup(blobs), nil
}
