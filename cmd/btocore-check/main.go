// Command btocore-check loads the configured entity store, reports invariant
// violations and dangling references, and can export the loaded state as CSV
// record files on the configured blob store.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"btocore/internal/blob"
	"btocore/internal/config"
	"btocore/internal/core"
	"btocore/internal/infra/persistence/records"
	"btocore/pkg/domain"
)

const (
	exitOK      = 0
	exitError   = 1
	exitBlocked = 2
)

var exitFunc = os.Exit

// errBlocked reports blocking violations without printing an error line.
var errBlocked = errors.New("blocking violations found")

func main() {
	exitFunc(cli(os.Args[1:], os.Stdout, os.Stderr))
}

func cli(args []string, stdout, stderr io.Writer) int {
	a := &app{}
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.ExecuteContext(context.Background())
	if terr := a.teardown(); terr != nil && err == nil {
		err = terr
	}
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, errBlocked):
		return exitBlocked
	default:
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}
}

type app struct {
	configPath  string
	logLevel    string
	metricsFile string

	cfg      *config.Config
	logger   *zap.Logger
	registry *prometheus.Registry
	metrics  *core.PrometheusMetricsRecorder
}

func newRootCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "btocore-check",
		Short:         "Check and export BTO application records",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return a.setup()
		},
	}
	cmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "config file path (YAML)")
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override log.level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&a.metricsFile, "metrics-file", "", "write Prometheus text metrics here on exit (requires metrics.enabled)")

	cmd.AddCommand(a.checkCmd(), a.exportCmd())
	return cmd
}

func (a *app) setup() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	logger, err := config.NewLogger(cfg.Log)
	if err != nil {
		return err
	}
	a.cfg, a.logger = cfg, logger
	if cfg.Metrics.Enabled {
		a.registry = prometheus.NewRegistry()
		a.metrics, err = core.NewPrometheusMetricsRecorder(a.registry, cfg.Metrics.Namespace)
		if err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
	}
	return nil
}

// teardown writes the metrics file and syncs the logger. It runs after every
// command, including failed ones.
func (a *app) teardown() error {
	if a.logger == nil {
		return nil
	}
	defer func() { _ = a.logger.Sync() }()
	if a.metricsFile == "" || a.registry == nil {
		return nil
	}
	families, err := a.registry.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	f, err := os.Create(a.metricsFile)
	if err != nil {
		return fmt.Errorf("create metrics file: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(f, mf); err != nil {
			_ = f.Close()
			return fmt.Errorf("write metrics: %w", err)
		}
	}
	return f.Close()
}

func (a *app) observe(ctx context.Context, op string, start time.Time, err error) {
	if a.metrics != nil {
		a.metrics.Observe(ctx, op, err == nil, time.Since(start))
	}
}

func (a *app) openStore(ctx context.Context) (domain.PersistentStore, error) {
	opts := a.cfg.StorageOptions()
	store, err := core.OpenPersistentStore(ctx, opts, core.NewDefaultRulesEngine())
	if err != nil {
		return nil, err
	}
	a.logger.Debug("store opened", zap.String("driver", string(opts.Driver)))
	return store, nil
}

func (a *app) service(store domain.PersistentStore) *core.Service {
	opts := []core.Option{
		core.WithLogger(core.NewZapLogger(a.logger)),
		core.WithPolicy(a.cfg.CorePolicy()),
	}
	if a.metrics != nil {
		opts = append(opts, core.WithMetricsRecorder(a.metrics))
	}
	return core.NewService(store, opts...)
}

func (a *app) checkCmd() *cobra.Command {
	var strict bool
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Evaluate every invariant rule over the stored state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			ctx := cmd.Context()
			start := time.Now()
			defer func() { a.observe(ctx, "check", start, err) }()

			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()
			svc := a.service(store)

			res, err := svc.CheckInvariants(ctx)
			if err != nil {
				return err
			}
			refs, err := svc.DanglingReferences(ctx)
			if err != nil {
				return err
			}
			res.Merge(refs)

			out := cmd.OutOrStdout()
			if err := printViolations(out, res.Violations); err != nil {
				return err
			}
			blocking := res.HasBlocking() || (strict && len(res.Violations) > 0)
			if blocking {
				a.logger.Warn("check failed", zap.Int("violations", len(res.Violations)))
				return errBlocked
			}
			_, err = fmt.Fprintf(out, "ok: %d warning(s)\n", len(res.Violations))
			return err
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "treat warnings as failures")
	return cmd
}

func (a *app) exportCmd() *cobra.Command {
	var prefix string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Copy the stored state into CSV record files on the blob store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			ctx := cmd.Context()
			start := time.Now()
			defer func() { a.observe(ctx, "export", start, err) }()

			src, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = src.Close() }()

			blobs, err := blob.Open(ctx, a.cfg.BlobOptions())
			if err != nil {
				return fmt.Errorf("open blob store: %w", err)
			}
			dst, err := records.NewStore(ctx, blobs, prefix, nil)
			if err != nil {
				return err
			}
			defer func() { _ = dst.Close() }()
			if err := core.CopyState(ctx, dst, src); err != nil {
				return err
			}
			a.logger.Info("state exported",
				zap.String("prefix", dst.Prefix()),
				zap.Int("generation", dst.Generation()),
				zap.Duration("elapsed", time.Since(start)))
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "exported generation %d to %s\n", dst.Generation(), dst.GenerationKey(records.FileUsers))
			return err
		},
	}
	cmd.Flags().StringVar(&prefix, "prefix", "export", "blob key prefix for the exported record files")
	return cmd
}

func printViolations(w io.Writer, violations []domain.Violation) error {
	if len(violations) == 0 {
		return nil
	}
	sorted := append([]domain.Violation(nil), violations...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Severity != sorted[j].Severity {
			return sorted[i].Severity == domain.SeverityBlock
		}
		return sorted[i].Rule < sorted[j].Rule
	})
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "SEVERITY\tRULE\tENTITY\tID\tMESSAGE")
	for _, v := range sorted {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", v.Severity, v.Rule, v.Entity, v.EntityID, v.Message)
	}
	return tw.Flush()
}
