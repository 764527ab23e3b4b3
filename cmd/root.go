package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jareddonovan/creative-coding-showcase/internal/config"
	"github.com/jareddonovan/creative-coding-showcase/internal/utils"
)

var cfgFile string

const (
	LOGO = `
   ___ _
  / __| |_  _____ __ ____ _ ___ ___
  \__ \ ' \/ _ \ V  V / _/ _' (_-</ -_)
  |___/_||_\___/\_/\_/\__\__,_/__/\___|

`
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "showcase",
	Short: "Creative coding showcase kiosk backend.",
	Long: LOGO + `showcase runs the kiosk side of the creative coding showcase: it hands out
one-time import codes, polls the import service for sketches submitted with
them, downloads each sketch from the p5.js editor and adds it to the gallery.`,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	SilenceUsage: true,
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
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.showcase.yaml)")

	// Global flags
	rootCmd.PersistentFlags().StringP("proxy", "", "", "HTTP Proxy (Useful for debugging. Example: http://127.0.0.1:8080)")
	rootCmd.PersistentFlags().StringP("loglevel", "l", "info", "Set log level. Available: debug, info, warn, error, fatal")
	rootCmd.PersistentFlags().String("sketches", "", "Sketches directory (overrides sketchesPath)")

	viper.BindPFlag(config.KeyProxy, rootCmd.PersistentFlags().Lookup("proxy"))
	viper.BindPFlag(config.KeySketchesPath, rootCmd.PersistentFlags().Lookup("sketches"))
}

// initConfig reads in .env, the config file and SHOWCASE_* variables.
func initConfig() {
	levelString, _ := rootCmd.PersistentFlags().GetString("loglevel")
	utils.SetLogLevel(levelString)

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		utils.Log.Warnf("Could not load .env: %v", err)
	}

	config.SetDefaults(viper.GetViper())

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		viper.AddConfigPath(home)
		viper.SetConfigName(".showcase")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("SHOWCASE")
	viper.AutomaticEnv()

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; create it with defaults.
			home, _ := homedir.Dir()
			configPath := filepath.Join(home, ".showcase.yaml")
			if err := viper.SafeWriteConfigAs(configPath); err != nil {
				utils.Log.Warnf("Error creating config file: %s", err)
			}
		} else {
			utils.Log.Warnf("Error reading config file: %s", err)
		}
	}
}

// loadOptions resolves the merged settings. A config file written by
// another version is reported but still used.
func loadOptions() (config.Options, error) {
	opts, err := config.Load(viper.GetViper())
	if err != nil {
		return opts, fmt.Errorf("invalid configuration: %w", err)
	}
	if msg := opts.VersionMismatch(); msg != "" {
		utils.Log.Warn(msg)
	}
	return opts, nil
}
