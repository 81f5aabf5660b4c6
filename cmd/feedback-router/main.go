package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/drakesmith3/Skillfullhealth-Bolt-sub002/config"
	appctx "github.com/drakesmith3/Skillfullhealth-Bolt-sub002/pkg/context"
	"github.com/drakesmith3/Skillfullhealth-Bolt-sub002/pkg/tracing"
)

type options struct {
	once    bool
	envFile string
}

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:          "feedback-router",
		Short:        "Routes feedback to inboxes, the manual-review queue and the unregistered-entity ledger",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts)
		},
	}
	bindFlags(cmd.Flags(), opts)
	return cmd
}

func bindFlags(flags *pflag.FlagSet, opts *options) {
	flags.BoolVar(&opts.once, "once", false, "route every pending submission once and exit")
	flags.StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before the environment")
}

func run(ctx context.Context, opts *options) error {
	cfg, err := config.Load(opts.envFile)
	if err != nil {
		return err
	}

	zapLogger, err := newZapLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = zapLogger.Sync() }()
	logger := zapadapter.NewZapEctoLogger(zapLogger, withContextFields)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := newApp(cfg, logger)
	if opts.once {
		err = a.runOnce(ctx)
	} else {
		err = a.serve(ctx)
	}
	if err != nil {
		logger.WithError(err).Error("feedback-router exited with an error")
	}
	return err
}

// withContextFields copies the request, tick and trace ids from a log line's context into its
// fields. Fields set explicitly win.
func withContextFields(msg ectologger.EctoLogMessage) ectologger.EctoLogMessage {
	if msg.Ctx == nil {
		return msg
	}
	extra := appctx.LogFields(msg.Ctx)
	if traceID := tracing.GetTraceID(msg.Ctx); traceID != "" {
		extra["trace_id"] = traceID
	}
	if len(extra) == 0 {
		return msg
	}

	fields := make(map[string]any, len(extra)+len(msg.Fields))
	for k, v := range extra {
		fields[k] = v
	}
	for k, v := range msg.Fields {
		fields[k] = v
	}
	msg.Fields = fields
	return msg
}

func newZapLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	zapCfg := zap.NewProductionConfig()
	if cfg.PrettyLogs {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	return zapCfg.Build(zap.Fields(zap.String("app", cfg.AppName), zap.String("version", cfg.Version)))
}
