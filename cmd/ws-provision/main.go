// ws-provision installs and verifies endpoint agents on the local Windows
// workstation. Every install run is idempotent and ends with a one-line JSON
// result on stdout plus a process exit code the fleet controller consumes.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/pallav98/windows-ws/internal/agentspec"
	"github.com/pallav98/windows-ws/internal/catalog"
	"github.com/pallav98/windows-ws/internal/history"
	"github.com/pallav98/windows-ws/internal/hostprep"
	"github.com/pallav98/windows-ws/internal/installer"
	"github.com/pallav98/windows-ws/internal/platform/eventlog"
)

var (
	version   = "1.0.0"
	commit    = ""
	buildDate = ""
)

const defaultDataDir = `C:\ProgramData\ws-provision`

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "ws-provision",
		Short:         "Idempotent endpoint agent provisioning for Windows workstations",
		Long:          "ws-provision detects, acquires, installs, and verifies endpoint agents.\nEvery run is safe to repeat; the last stdout line is a machine-readable result.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.PersistentFlags().StringP("log", "l", "info", "Set log level. Available: debug, info, warn, error")
	cmd.PersistentFlags().String("secrets", "", "secrets.env file with KEY=VALUE lines for ${VAR} placeholders")

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

	cmd.AddCommand(newInstallCmd())
	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newHostprepCmd())
	cmd.AddCommand(newHistoryCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd
}

func newInstallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install <agent>",
		Short: "Install one agent if it is not already present, then verify it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			catalogPath, _ := cmd.Flags().GetString("catalog")
			dataDir, _ := cmd.Flags().GetString("data-dir")
			secretsPath, _ := cmd.Flags().GetString("secrets")

			secrets, err := loadSecrets(secretsPath)
			if err != nil {
				return err
			}

			spec, err := resolveSpec(args[0], catalogPath, secrets)
			if err != nil {
				return err
			}

			runInstall(cmd.Context(), spec, dataDir)
			return nil // unreachable; runInstall exits
		},
	}
	cmd.Flags().String("catalog", "", "YAML catalog file (default: built-in agent catalog)")
	cmd.Flags().String("data-dir", defaultDataDir, "directory for the run history database")
	return cmd
}

// runInstall owns the full run: event log start entry, workflow, history,
// report, exit. It never returns.
func runInstall(ctx context.Context, spec *agentspec.Spec, dataDir string) {
	// Best effort; a missing event log source must not block the install.
	_ = eventlog.Info(eventlog.EventInstallStart, fmt.Sprintf("%s: install run starting (expected %s)", spec.Name, spec.Expected))

	res := installer.New(log.Logger).Install(ctx, spec)

	if store, err := history.Open(dataDir); err != nil {
		log.Warn().Err(err).Msg("run history unavailable")
	} else {
		if err := store.Append(res); err != nil {
			log.Warn().Err(err).Msg("failed to record run history")
		}
		store.Close()
	}

	if err := installer.Report(res, spec.LogDestination, os.Stdout); err != nil {
		log.Warn().Err(err).Msg("failed to write run log")
	}
	os.Exit(res.ExitCode)
}

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the agents this tool can provision",
		RunE: func(cmd *cobra.Command, args []string) error {
			catalogPath, _ := cmd.Flags().GetString("catalog")
			secretsPath, _ := cmd.Flags().GetString("secrets")

			if catalogPath != "" {
				secrets, err := loadSecrets(secretsPath)
				if err != nil {
					return err
				}
				cat, err := agentspec.LoadCatalog(catalogPath, secrets)
				if err != nil {
					return err
				}
				for key, spec := range cat.Agents {
					fmt.Printf("%-14s %s (expected %s)\n", key, spec.Name, spec.Expected)
				}
				return nil
			}

			builtin := catalog.Builtin()
			for _, key := range catalog.Names() {
				spec := builtin[key]
				fmt.Printf("%-14s %s (expected %s)\n", key, spec.Name, spec.Expected)
			}
			return nil
		},
	}
	cmd.Flags().String("catalog", "", "YAML catalog file (default: built-in agent catalog)")
	return cmd
}

func newHostprepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hostprep",
		Short: "Prepare the host: timezone, event log source",
		RunE: func(cmd *cobra.Command, args []string) error {
			tz, _ := cmd.Flags().GetString("timezone")

			failed := 0
			for _, r := range hostprep.RunAll(cmd.Context(), hostprep.Steps(tz)) {
				if r.Err != nil {
					failed++
					log.Error().Str("step", r.Name).Err(r.Err).Msg("host preparation step failed")
					continue
				}
				log.Info().Str("step", r.Name).Msg("ok")
			}
			if failed > 0 {
				return fmt.Errorf("%d host preparation step(s) failed", failed)
			}
			return nil
		},
	}
	cmd.Flags().String("timezone", "", `Windows timezone id to set (e.g. "Eastern Standard Time"); empty leaves the host alone`)
	return cmd
}

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent install runs recorded on this host",
		RunE: func(cmd *cobra.Command, args []string) error {
			dataDir, _ := cmd.Flags().GetString("data-dir")
			limit, _ := cmd.Flags().GetInt("limit")

			store, err := history.Open(dataDir)
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := store.Recent(limit)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Println("no runs recorded")
				return nil
			}
			for _, r := range records {
				fmt.Printf("%s  %-28s %-20s exit=%d\n",
					r.CreatedAt.Format(time.RFC3339), r.Software, r.Status, r.ExitCode)
			}
			return nil
		},
	}
	cmd.Flags().String("data-dir", defaultDataDir, "directory holding the run history database")
	cmd.Flags().Int("limit", 20, "maximum runs to show")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("ws-provision %s (%s) %s\n", version, commit, buildDate)
		},
	}
}

func loadSecrets(path string) (map[string]string, error) {
	if path == "" {
		return map[string]string{}, nil
	}
	secrets, err := agentspec.LoadSecretsEnv(path)
	if err != nil {
		return nil, fmt.Errorf("load secrets: %w", err)
	}
	return secrets, nil
}

func resolveSpec(name, catalogPath string, secrets map[string]string) (*agentspec.Spec, error) {
	if catalogPath == "" {
		return catalog.Get(name, secrets)
	}
	cat, err := agentspec.LoadCatalog(catalogPath, secrets)
	if err != nil {
		return nil, err
	}
	spec, ok := cat.Agents[name]
	if !ok {
		return nil, fmt.Errorf("agent %q not in catalog %s", name, catalogPath)
	}
	return spec, nil
}

func setupLogger() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

func main() {
	setupLogger()
	root := newRootCmd()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	root.SetContext(ctx)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(3)
	}
}
