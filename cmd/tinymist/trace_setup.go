package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"tinymist/internal/trace"
)

// traceConfig reads the persistent --trace* flags. ok is false when
// tracing is off.
func traceConfig(cmd *cobra.Command) (cfg trace.Config, ok bool, err error) {
	flags := cmd.Root().PersistentFlags()
	levelStr, err := flags.GetString("trace-level")
	if err != nil {
		return cfg, false, fmt.Errorf("failed to get trace-level flag: %w", err)
	}
	modeStr, err := flags.GetString("trace-mode")
	if err != nil {
		return cfg, false, fmt.Errorf("failed to get trace-mode flag: %w", err)
	}
	if cfg.OutputPath, err = flags.GetString("trace"); err != nil {
		return cfg, false, fmt.Errorf("failed to get trace flag: %w", err)
	}
	if cfg.RingSize, err = flags.GetInt("trace-ring-size"); err != nil {
		return cfg, false, fmt.Errorf("failed to get trace-ring-size flag: %w", err)
	}
	if cfg.Heartbeat, err = flags.GetDuration("trace-heartbeat"); err != nil {
		return cfg, false, fmt.Errorf("failed to get trace-heartbeat flag: %w", err)
	}
	if cfg.Level, err = trace.ParseLevel(levelStr); err != nil {
		return cfg, false, err
	}
	if cfg.Mode, err = trace.ParseMode(modeStr); err != nil {
		return cfg, false, err
	}

	switch {
	case cfg.Level == trace.LevelOff && cfg.OutputPath == "":
		return cfg, false, nil
	case cfg.Level == trace.LevelOff:
		// --trace без уровня: фазы
		cfg.Level = trace.LevelPhase
	}
	return cfg, true, nil
}

// setupTracing builds the tracer from the flags and stores it in the
// command context. In ring mode the kept events are written to the
// --trace path (stderr by default) when cleanup runs.
func setupTracing(cmd *cobra.Command) (trace.Tracer, func(), error) {
	cfg, ok, err := traceConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		cmd.SetContext(trace.WithTracer(cmd.Context(), trace.Nop))
		return trace.Nop, func() {}, nil
	}
	if cfg.Mode != trace.ModeRing && cfg.OutputPath == "" {
		cfg.OutputPath = "-"
	}

	tracer, err := trace.New(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create tracer: %w", err)
	}
	cmd.SetContext(trace.WithTracer(cmd.Context(), tracer))
	heartbeat := trace.StartHeartbeat(tracer, cfg.Heartbeat)

	stderr := cmd.ErrOrStderr()
	cleanup := func() {
		heartbeat.Stop()
		if ring, isRing := tracer.(*trace.RingTracer); isRing {
			if err := dumpRing(ring, cfg.OutputPath); err != nil {
				fmt.Fprintf(stderr, "trace: dump error: %v\n", err)
			}
		}
		if err := tracer.Flush(); err != nil {
			fmt.Fprintf(stderr, "trace: flush error: %v\n", err)
		}
		if err := tracer.Close(); err != nil {
			fmt.Fprintf(stderr, "trace: close error: %v\n", err)
		}
	}
	return tracer, cleanup, nil
}

func dumpRing(ring *trace.RingTracer, path string) error {
	format := trace.FormatText
	if path == "" || path == "-" {
		return ring.Dump(os.Stderr, format)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := ring.Dump(f, format); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
