package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/relayd/relayd/internal/config"
	"github.com/relayd/relayd/internal/obslog"
	"github.com/relayd/relayd/internal/runtime"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "relayd",
	Short:   "relayd routes events from sources to actors through configured transforms",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("relayd version %s (%s)\n", Version, Commit))
	rootCmd.PersistentFlags().String("config", "relayd.yaml", "path to the project configuration file")

	runCmd.Flags().Bool("control-api", false, "override control_api.enabled for this run")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "start the relayd process and block until it receives a shutdown signal",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}

		if override, _ := cmd.Flags().GetBool("control-api"); override {
			cfg.ControlAPI.Enabled = true
		}

		obslog.Info("starting relayd")
		rt := runtime.New(cfg, filepath.Dir(path))
		return rt.Run(context.Background())
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "parse and validate the project configuration without starting the process",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}
		fmt.Printf("config OK: %d source(s), %d actor(s), %d transform(s), %d route(s), %d module(s)\n",
			len(cfg.Sources), len(cfg.Actors), len(cfg.Transforms), len(cfg.Routes), len(cfg.Modules))
		return nil
	},
}
