package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/unkn0wn-root/memocache"
	"github.com/unkn0wn-root/memocache/internal/config"
)

var errFlushFailed = errors.New("flush failed")

type app struct {
	configPath string
	logLevel   string

	cfg config.Config
	log *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "memocache",
		Short:         "Memoize command output in a shared cache",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "YAML config file")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	root.AddCommand(a.getCmd(), a.flushCmd(), a.flushGroupCmd())
	return root
}

func (a *app) init(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return a.fail(cmd, err)
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	log, err := newLogger(cfg.LogLevel)
	if err != nil {
		return a.fail(cmd, err)
	}
	a.cfg, a.log = cfg, log
	return nil
}

func (a *app) fail(cmd *cobra.Command, err error) error {
	fmt.Fprintln(cmd.ErrOrStderr(), "memocache:", err)
	return err
}

func (a *app) withFacade(cmd *cobra.Command, fn func(context.Context, memocache.Facade[[]byte]) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	fc, err := newFacade(ctx, a.cfg, a.log)
	if err != nil {
		return a.fail(cmd, err)
	}
	defer func() {
		if err := fc.Close(ctx); err != nil {
			a.log.Warn("close backing store", zap.Error(err))
		}
	}()
	if err := fn(ctx, fc); err != nil {
		return a.fail(cmd, err)
	}
	return nil
}

func (a *app) getCmd() *cobra.Command {
	var (
		group   string
		expire  string
		single  bool
		global  bool
		tenant  string
		network string
	)
	cmd := &cobra.Command{
		Use:   "get KEY -- COMMAND [ARGS...]",
		Short: "Print the cached output of COMMAND, running it on a miss",
		Args: func(cmd *cobra.Command, args []string) error {
			if dash := cmd.ArgsLenAtDash(); dash != 1 || len(args) < 2 {
				return errors.New("usage: memocache get KEY -- COMMAND [ARGS...]")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			raw := map[string]any{"group": group, "single": single, "network_global": global}
			if expire != "" {
				raw["expire"] = expire
			}
			opts, err := memocache.ParseCallOptions(raw)
			if err != nil {
				return a.fail(cmd, err)
			}
			if cmd.Flags().Changed("tenant") || cmd.Flags().Changed("network") {
				a.cfg.Tenant.Multi = true
				if tenant != "" {
					a.cfg.Tenant.ID = tenant
				}
				if network != "" {
					a.cfg.Tenant.Network = network
				}
			}

			key, argv := args[0], args[1:]
			return a.withFacade(cmd, func(ctx context.Context, fc memocache.Facade[[]byte]) error {
				out, err := fc.GetOrCompute(ctx, key, runCommand(argv, cmd.ErrOrStderr()), opts)
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(out)
				return err
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&group, "group", "", "cache group (default from config)")
	f.StringVar(&expire, "expire", "", `time to live: seconds or a duration such as "90m" or "1d"; 0 = never expire`)
	f.BoolVar(&single, "single", false, "store as a single record instead of inside the group aggregate")
	f.BoolVar(&global, "global", false, "share the entry across all tenants of the network")
	f.StringVar(&tenant, "tenant", "", "tenant id (enables multi-tenant addressing)")
	f.StringVar(&network, "network", "", "network id (enables multi-tenant addressing)")
	return cmd
}

// runCommand returns a producer capturing the stdout of argv. Stderr passes
// through; a non-zero exit fails the producer and nothing is cached.
func runCommand(argv []string, stderr io.Writer) memocache.Producer[[]byte] {
	return func(ctx context.Context) ([]byte, error) {
		var out bytes.Buffer
		c := exec.CommandContext(ctx, argv[0], argv[1:]...)
		c.Stdin = os.Stdin
		c.Stdout = &out
		c.Stderr = stderr
		if err := c.Run(); err != nil {
			return nil, fmt.Errorf("%s: %w", argv[0], err)
		}
		return out.Bytes(), nil
	}
}

func (a *app) flushCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "flush",
		Short: "Clear the whole backing store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withFacade(cmd, func(ctx context.Context, fc memocache.Facade[[]byte]) error {
				if !fc.FlushAll(ctx) {
					return errFlushFailed
				}
				return nil
			})
		},
	}
}

func (a *app) flushGroupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "flush-group [GROUP]",
		Short: "Drop the aggregate record of GROUP (default group from config)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			group := ""
			if len(args) == 1 {
				group = args[0]
			}
			return a.withFacade(cmd, func(ctx context.Context, fc memocache.Facade[[]byte]) error {
				if !fc.FlushGroup(ctx, group) {
					return errFlushFailed
				}
				return nil
			})
		},
	}
}
