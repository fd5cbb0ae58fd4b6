// Package cmd contains the ledger client app.
package cmd

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:           "ledger",
	Short:         "Client for the donation ledger node",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().String("url", "http://localhost:8080", "Base URL of the node public API")
	rootCmd.PersistentFlags().Duration("timeout", 30*time.Second, "Timeout for a single request")
	rootCmd.PersistentFlags().Bool("pretty", true, "Indent the JSON output")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		panic(err)
	}

	viper.SetEnvPrefix("ledger")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	viper.SetConfigName("ledger")
	viper.AddConfigPath(".")

	cobra.OnInitialize(readConfig)
}

// readConfig loads an optional ledger.yaml/ledger.json from the working
// directory. A missing file is not an error.
func readConfig() {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			rootCmd.PrintErrf("reading config: %s\n", err)
		}
	}
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		rootCmd.PrintErrln("Error:", err)
		os.Exit(1)
	}
}
