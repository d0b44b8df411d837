package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"tinymist/internal/fonts"
	"tinymist/internal/logging"
	"tinymist/internal/lsp"
	"tinymist/internal/version"
)

var lspCmd = &cobra.Command{
	Use:          "lsp",
	Short:        "Run the tinymist language server over stdio",
	SilenceUsage: true,
	RunE:         runLSP,
}

func init() {
	lspCmd.Flags().String("preview-addr", "", "serve the live preview websocket on this address (e.g. 127.0.0.1:23625)")
	lspCmd.Flags().Bool("no-font-cache", false, "do not keep the font index on disk")
}

func runLSP(cmd *cobra.Command, _ []string) error {
	log := logging.With("lsp")
	cfg, found, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if !found {
		// корень берётся из initialize
		cfg.Root = ""
	}
	previewAddr, err := cmd.Flags().GetString("preview-addr")
	if err != nil {
		return err
	}
	noCache, err := cmd.Flags().GetBool("no-font-cache")
	if err != nil {
		return err
	}
	tracer, cleanup, err := setupTracing(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	var cache *fonts.DiskCache
	if !noCache {
		if cache, err = fonts.OpenDiskCache("tinymist"); err != nil {
			log.Warn("font cache disabled", "error", err)
			cache = nil
		}
	}

	server := lsp.NewServer(os.Stdin, os.Stdout, lsp.ServerOptions{
		Config:    cfg,
		FontCache: cache,
		Preview:   previewAddr != "",
		Tracer:    tracer,
		Log:       log,
		Version:   version.Version,
	})

	if previewAddr != "" {
		stop, err := servePreview(previewAddr, server.PreviewHandler())
		if err != nil {
			return err
		}
		defer stop()
		log.Info("preview listening", "addr", previewAddr)
	}

	if err := server.Run(cmd.Context()); err != nil {
		if errors.Is(err, lsp.ErrExit) {
			return nil
		}
		if errors.Is(err, lsp.ErrExitWithoutShutdown) {
			return fmt.Errorf("lsp exit without shutdown")
		}
		return err
	}
	return nil
}

func servePreview(addr string, handler http.Handler) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("preview: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/ws", handler)
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.With("preview").Error("preview server failed", "error", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
