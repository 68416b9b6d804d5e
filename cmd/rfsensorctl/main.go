package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/rfsensor/internal/config"
	"github.com/danmuck/rfsensor/internal/logging"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:   "rfsensorctl",
	Short: "Run RF sensor vehicles, the ground station, or an in-process simulation.",
	Long: `rfsensorctl runs one node of the TDMA radio network: a vehicle that ` +
		`measures link strength to its peers, or the ground station that uploads ` +
		`missions and records measurements. The sim command runs a whole network ` +
		`in one process.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if envFile != "" {
			if err := godotenv.Load(envFile); err != nil {
				return fmt.Errorf("load env file: %w", err)
			}
			return nil
		}
		// a missing .env is fine
		_ = godotenv.Load()
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env", "", "dotenv file to load before configuring logging")
	rootCmd.AddCommand(vehicleCmd(), groundCmd(), simCmd(), configCmd())
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "rfsensorctl: %v\n", err)
		os.Exit(1)
	}
}

// configureLogging applies the [log] section; env overrides still win.
func configureLogging(level, file string) {
	logging.ConfigureWith(logging.ProfileRuntime, func(c *logging.Config) {
		if lvl, ok := logging.ParseLevel(level); ok {
			c.Level = lvl
		}
		if file != "" {
			c.File = file
		}
	})
}

func vehicleCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "vehicle",
		Short: "Run a vehicle node over UDP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadRuntimeConfig(path)
			if err != nil {
				return err
			}
			configureLogging(cfg.LogLevel, cfg.LogFile)
			if cfg.Sensor.ID == 0 {
				return fmt.Errorf("%w: vehicle sensor.id must be >= 1", config.ErrInvalid)
			}
			if cfg.Transport != config.TransportUDP {
				return fmt.Errorf("%w: transport %q is only available in sim", config.ErrInvalid, cfg.Transport)
			}
			plan, err := loadPlanFor(cfg)
			if err != nil {
				return err
			}
			return runVehicle(cmd.Context(), cfg, newUDP(cfg), newSimVehicle(cfg, 0), plan)
		},
	}
	cmd.Flags().StringVarP(&path, "config", "c", "rfsensor.toml", "node config file")
	return cmd
}

func groundCmd() *cobra.Command {
	var path, planPath string
	cmd := &cobra.Command{
		Use:   "ground",
		Short: "Run the ground station: upload a plan and record measurements",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadRuntimeConfig(path)
			if err != nil {
				return err
			}
			configureLogging(cfg.LogLevel, cfg.LogFile)
			if cfg.Sensor.ID != 0 {
				return fmt.Errorf("%w: ground station sensor.id must be 0", config.ErrInvalid)
			}
			if cfg.Transport != config.TransportUDP {
				return fmt.Errorf("%w: transport %q is only available in sim", config.ErrInvalid, cfg.Transport)
			}
			if planPath == "" {
				planPath = cfg.PlanFile
			}
			plan, err := loadPlan(planPath)
			if err != nil {
				return err
			}
			return runGround(cmd.Context(), cfg, newUDP(cfg), plan)
		},
	}
	cmd.Flags().StringVarP(&path, "config", "c", "rfsensor.toml", "node config file")
	cmd.Flags().StringVarP(&planPath, "plan", "p", "", "YAML mission plan to upload")
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Create or check rfsensor.toml files",
	}

	var kind string
	var force bool
	initCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a config template",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "rfsensor.toml"
			if len(args) == 1 {
				path = args[0]
			}
			if err := config.WriteTemplate(path, kind, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s config to %s\n", kind, path)
			return nil
		},
	}
	initCmd.Flags().StringVar(&kind, "kind", "vehicle", "template kind: vehicle or ground")
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	validateCmd := &cobra.Command{
		Use:   "validate <path>",
		Short: "Strictly validate a config file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.ValidateFile(args[0]); err != nil {
				return err
			}
			if _, err := loadRuntimeConfig(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(initCmd, validateCmd)
	return cmd
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		log.Debug().Err(err).Msg("rfsensorctl shutdown")
		return nil
	}
	return err
}
