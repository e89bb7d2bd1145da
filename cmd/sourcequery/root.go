package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/energizer-project/sourcequery/internal/config"
)

var (
	configDir = config.DefaultConfigDir
	logLevel  = ""

	rootCmd = &cobra.Command{
		Use:           "sourcequery",
		Short:         "Query and monitor Source engine game servers",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serveCmd.RunE(cmd, args)
		},
	}
)

func envString(name string, defVal string) string {
	envString := os.Getenv(name)
	if envString == "" {
		return defVal
	}

	return envString
}

func init() {
	envVarPrefix := "SOURCEQUERY_"
	configDir = envString(envVarPrefix+"CONFIG_DIR", configDir)
	rootCmd.PersistentFlags().StringVarP(&configDir, "config-dir", "c", configDir, "directory holding config.json")
	logLevel = envString(envVarPrefix+"LOG_LEVEL", logLevel)
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", logLevel, "override the configured log level")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(versionCmd)
}
