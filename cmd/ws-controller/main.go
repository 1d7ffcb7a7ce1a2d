// ws-controller runs the workstation provisioner across a fleet over WinRM:
// one host at a time, the full agent sequence per host, a summary CSV at the
// end. The WinRM password comes from the environment, never from a file.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/pallav98/windows-ws/internal/controller"
)

var (
	version   = "1.0.0"
	commit    = ""
	buildDate = ""
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "ws-controller",
		Short:         "Fleet-wide workstation agent provisioning over WinRM",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.PersistentFlags().StringP("log", "l", "info", "Set log level. Available: debug, info, warn, error")

	cmd.PersistentPreRun = func(c *cobra.Command, args []string) {
		levelStr, _ := c.Flags().GetString("log")
		switch levelStr {
		case "debug":
			zerolog.SetGlobalLevel(zerolog.DebugLevel)
		case "info":
			zerolog.SetGlobalLevel(zerolog.InfoLevel)
		case "warn":
			zerolog.SetGlobalLevel(zerolog.WarnLevel)
		case "error":
			zerolog.SetGlobalLevel(zerolog.ErrorLevel)
		default:
			zerolog.SetGlobalLevel(zerolog.InfoLevel)
		}
	}

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Provision every host in the host list",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			hostsPath, _ := cmd.Flags().GetString("hosts")
			outPath, _ := cmd.Flags().GetString("out")

			cfg := controller.DefaultConfig()
			if cfgPath != "" {
				var err error
				if cfg, err = controller.LoadConfig(cfgPath); err != nil {
					return err
				}
			}

			hosts, err := controller.LoadHosts(hostsPath)
			if err != nil {
				return err
			}

			password, err := cfg.Password()
			if err != nil {
				return err
			}

			log.Info().Int("hosts", len(hosts)).Strs("sequence", cfg.Sequence).Msg("starting fleet run")

			fleet := controller.NewFleet(cfg, password, log.Logger)
			rows := fleet.Run(cmd.Context(), hosts)

			if err := controller.WriteSummary(outPath, rows); err != nil {
				return err
			}
			log.Info().Str("summary", outPath).Int("rows", len(rows)).Msg("fleet run complete")

			if controller.Failed(rows) {
				return fmt.Errorf("fleet run had failures; see %s", outPath)
			}
			return nil
		},
	}
	cmd.Flags().String("config", "", "YAML controller config (defaults used when omitted)")
	cmd.Flags().String("hosts", "hosts.csv", "CSV host list: hostname,username")
	cmd.Flags().String("out", "summary.csv", "summary CSV output path")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("ws-controller %s (%s) %s\n", version, commit, buildDate)
		},
	}
}

func main() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	root := newRootCmd()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	root.SetContext(ctx)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
