package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/signato/signato-auth/configuration"
	"github.com/signato/signato-auth/logging"
)

var configPath string
var configName string

// appConfig is loaded by initConfig before any server command runs.
var appConfig *configuration.ServiceConfiguration

var rootCmd = &cobra.Command{
	Use:   "signato-auth",
	Short: "Signer authentication and smart card signing relay",
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "configPath", ".", "Directory holding the config file")
	rootCmd.PersistentFlags().StringVar(&configName, "configName", "signato-auth", "Name of the config file, without extension")
}

// initConfig loads the config file and applies the configured verbosity.
func initConfig(cmd *cobra.Command, args []string) {
	config, err := configuration.LoadConfigFromFile(configPath, configName)
	if err != nil {
		logging.Log().WithError(err).Fatal("Could not load configuration")
	}
	if err := logging.Configure(config.Verbosity); err != nil {
		logging.Log().WithError(err).Fatal("Could not configure logging")
	}
	appConfig = config
}
