package main

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"tinymist/internal/compiler"
	"tinymist/internal/diag"
	"tinymist/internal/logging"
	"tinymist/internal/observ"
	"tinymist/internal/render"
	"tinymist/internal/session"
	"tinymist/internal/snapshot"
)

var compileCmd = &cobra.Command{
	Use:   "compile [flags] <file>",
	Short: "Compile a document once and export it",
	Args:  cobra.ExactArgs(1),
	RunE:  runCompile,
}

func init() {
	compileCmd.Flags().String("format", "", "export format (txt|html); default from tinymist.toml")
	compileCmd.Flags().String("output", "", "output path pattern ($root, $dir, $name)")
	compileCmd.Flags().StringToString("input", nil, "input values for #input (key=value)")
	compileCmd.Flags().Duration("timeout", time.Minute, "give up after this long")
	compileCmd.Flags().String("timings", "", "report phase timings to stderr (text|json)")
}

// viewCollector keeps the latest merged diagnostics of the unit.
type viewCollector struct {
	mu   sync.Mutex
	view map[string][]diag.Located
}

func (c *viewCollector) PublishDiagnostics(_ string, view map[string][]diag.Located) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.view = view
}

func (c *viewCollector) latest() map[string][]diag.Located {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view
}

func runCompile(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	timings, err := cmd.Flags().GetString("timings")
	if err != nil {
		return err
	}
	var timer *observ.Timer
	switch timings {
	case "":
	case "text", "json":
		timer = observ.NewTimer()
		defer reportTimings(cmd, timer, timings)
	default:
		return fmt.Errorf("compile: unsupported timings format %q", timings)
	}

	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if f, _ := cmd.Flags().GetString("format"); f != "" {
		cfg.ExportFormat = f
	}
	if out, _ := cmd.Flags().GetString("output"); out != "" {
		cfg.OutputPath = out
	}
	inputs, err := cmd.Flags().GetStringToString("input")
	if err != nil {
		return err
	}
	for k, v := range inputs {
		if cfg.Inputs == nil {
			cfg.Inputs = map[string]string{}
		}
		cfg.Inputs[k] = v
	}
	timeout, err := cmd.Flags().GetDuration("timeout")
	if err != nil {
		return err
	}
	quiet, err := cmd.Root().PersistentFlags().GetBool("quiet")
	if err != nil {
		return err
	}
	cfg.ExportPDF = render.ExportOnType.String()
	if err := cfg.Validate(); err != nil {
		return err
	}

	path, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}
	root := cfg.Root
	if root == "" {
		root = filepath.Dir(path)
	}
	entry := snapshot.ActiveEntry(root, path)

	tracer, cleanup, err := setupTracing(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	endStart := timer.Begin("start")
	collector := &viewCollector{}
	exported := make(chan render.Exported, 1)
	sess := session.New(session.Options{
		Config: cfg,
		Sink:   collector,
		OnExport: func(_ string, e render.Exported) {
			select {
			case exported <- e:
			default:
			}
		},
		Tracer: tracer,
		Log:    logging.With("compile"),
	})
	defer sess.Close()

	client, err := sess.Server("cli", entry, cfg.Inputs)
	endStart("")
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	endCompile := timer.Begin("compile")
	// steal выполняется после первой компиляции
	published, err := compiler.StealValueAsync(ctx, client, func(d *compiler.Driver) bool {
		return d.LatestVersion() > 0
	})
	endCompile(fmt.Sprintf("published=%t", published))
	if err != nil {
		return fmt.Errorf("compile %s: %w", args[0], err)
	}

	diags := flatten(collector.latest(), "tinymist")
	printLocated(cmd.ErrOrStderr(), diags)
	if !published {
		return fmt.Errorf("compile %s: %d error(s)", args[0], countErrors(diags))
	}

	endExport := timer.Begin("export")
	select {
	case e := <-exported:
		endExport(fmt.Sprintf("version %d", e.Version))
		if !quiet {
			fmt.Fprintf(cmd.OutOrStdout(), "exported %s\n", e.Path)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("compile %s: export did not finish: %w", args[0], ctx.Err())
	}
}

func reportTimings(cmd *cobra.Command, timer *observ.Timer, format string) {
	out := cmd.ErrOrStderr()
	if format == "json" {
		if err := json.NewEncoder(out).Encode(timer.Report()); err != nil {
			fmt.Fprintf(out, "failed to write timings: %v\n", err)
		}
		return
	}
	fmt.Fprint(out, timer.Summary())
}
