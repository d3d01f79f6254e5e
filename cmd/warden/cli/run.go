package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/wardenhq/warden/cmd/warden/cli/agent"
	"github.com/wardenhq/warden/cmd/warden/cli/config"
	"github.com/wardenhq/warden/cmd/warden/cli/logging"
	"github.com/wardenhq/warden/cmd/warden/cli/policy"
	"github.com/wardenhq/warden/cmd/warden/cli/session"
	"github.com/wardenhq/warden/cmd/warden/cli/telemetry"
)

func newRunCmd() *cobra.Command {
	var (
		task         string
		agentKind    string
		configPath   string
		timeout      time.Duration
		interval     time.Duration
		agentCommand []string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a supervised agent session",
		Long: `Run launches the selected coding agent and supervises it until it
completes, times out, or violates the guardrail policy. The exit code is
zero only when the session completes normally.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			workdir, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to resolve working directory: %w", err)
			}

			cfgPath := configPath
			if !filepath.IsAbs(cfgPath) {
				cfgPath = filepath.Join(workdir, cfgPath)
			}
			cfg, pol := loadConfig(cmd, cfgPath)
			if timeout > 0 {
				cfg.Session.Timeout = timeout
			}
			if interval > 0 {
				cfg.Session.CheckpointInterval = interval
			}

			telem := telemetry.New(cfg.Telemetry.Enabled, cfg.Telemetry.APIKey, cfg.Telemetry.Endpoint)

			sess, err := session.New(ctx, session.Options{
				Task:         task,
				AgentKind:    agentKind,
				AgentCommand: agentCommand,
				Workdir:      workdir,
				Config:       cfg,
				Policy:       pol,
				Telemetry:    telem,
			})
			if err != nil {
				return err
			}

			if err := logging.Init(filepath.Join(workdir, session.StateDirName, "logs"), sess.ID); err == nil {
				defer logging.Close()
			}
			logging.Info(ctx, "session starting",
				slog.String("session_id", sess.ID),
				slog.String("agent", agentKind),
				slog.String("base_revision", sess.BaseRevision),
			)

			status, runErr := sess.Run(ctx)
			if runErr != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "agent error: %v\n", runErr)
			}

			renderSummary(cmd.OutOrStdout(), sess, status)
			exitCode = status.ExitCode()
			return nil
		},
	}

	cmd.Flags().StringVarP(&task, "task", "t", "", "task to hand to the agent (required)")
	cmd.Flags().StringVarP(&agentKind, "agent", "a", agent.KindClaudeCode,
		fmt.Sprintf("agent kind (%v)", agent.Kinds()))
	cmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultFileName, "guardrail config file")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "override session timeout")
	cmd.Flags().DurationVar(&interval, "interval", 0, "override checkpoint interval")
	cmd.Flags().StringSliceVar(&agentCommand, "command", nil, "launch argv for the custom agent kind")
	_ = cmd.MarkFlagRequired("task")

	return cmd
}

// loadConfig loads the config file, degrading to the conservative
// built-in policy on any config-layer failure. A broken config never
// prevents the engine from running in its safest-default mode.
func loadConfig(cmd *cobra.Command, path string) (*config.Config, *policy.Policy) {
	cfg, err := config.Load(path)
	if err != nil {
		var cfgErr *config.ConfigError
		if errors.As(err, &cfgErr) {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v; using built-in conservative policy\n", err)
		}
		return config.Default(), policy.Default()
	}

	pol, err := cfg.Policy()
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v; using built-in conservative policy\n", err)
		return cfg, policy.Default()
	}
	return cfg, pol
}
