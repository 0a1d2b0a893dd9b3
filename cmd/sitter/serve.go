package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/odvcencio/sitter/web"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd(a *app) *cobra.Command {
	var addr, root string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve live documents over WebSocket JSON-RPC",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = a.cfg.Addr
			}
			if root == "" {
				root = a.cfg.Root
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return err
			}
			return a.serve(ctx, ln, root)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	cmd.Flags().StringVar(&root, "root", "", "directory documents are opened from (overrides config)")
	return cmd
}

// serve runs the document server on ln until ctx is done.
func (a *app) serve(ctx context.Context, ln net.Listener, root string) error {
	srv := web.NewServer(root,
		web.WithLogger(a.log.Named("web")),
		web.WithParseTimeout(a.cfg.ParseTimeout),
	)
	defer srv.Documents().CloseAll()

	httpSrv := &http.Server{
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- httpSrv.Serve(ln) }()
	a.log.Info("serving", zap.String("addr", ln.Addr().String()), zap.String("root", root))

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
