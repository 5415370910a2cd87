package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	u "idsheet/internal/utils"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "idsheetctl",
		Short: "Lay out and print 3x4 cm ID photo sheets",
		Long: `idsheetctl places copies of one portrait photo on an A4 or Letter page
in a fixed 30x40 mm grid and writes the sheet as PDF, HTML or PNG.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(cmd)
		},
	}
	root.PersistentFlags().String("config", "", "Path to config.yaml (default $CONFIG_PATH or ./config.yaml)")
	root.PersistentFlags().String("log-level", "", "Override logger.level (debug, info, warn, error)")

	root.AddCommand(newRenderCmd(), newPlanCmd(), newVersionCmd())
	return root
}

func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// initConfig loads .env, then the YAML config, and sets up console logging.
func initConfig(cmd *cobra.Command) error {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()

	if path := mustGetString(cmd, "config"); path != "" {
		if err := os.Setenv("CONFIG_PATH", path); err != nil {
			return err
		}
	}
	cfg := u.LoadConfig()
	if v := os.Getenv("CHROME_BIN"); v != "" && cfg.PDF.ChromePath == "" {
		cfg.PDF.ChromePath = v
		u.SetConfig(cfg)
	}

	level := cfg.Logger.Level
	if l := mustGetString(cmd, "log-level"); l != "" {
		level = l
	}
	u.InitLogger("", 0, 0, 0, false, level)
	return nil
}
