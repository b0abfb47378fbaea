package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Zerofisher/chargelog/internal/report"
	"github.com/Zerofisher/chargelog/pkg/api"
)

// serve command flags
var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the read-only HTTP API",
	Long: `Serve latest-revision lookups over HTTP:

  GET /healthz
  GET /v1/locations?speed=Rapid
  GET /v1/locations/{locationId}/connector-groups
  GET /v1/locations/{locationId}/connector-group?plugType=CCS&speed=Fast
  GET /v1/connector-groups?where=count>2`,
	Example: `  chargelog serve --addr 127.0.0.1:8080`,
	Args:    cobra.NoArgs,
	GroupID: "service",
	RunE:    runServe,
}

// report command flags
var reportOutput string

var reportCmd = &cobra.Command{
	Use:     "report",
	Short:   "Summarize the database as Markdown",
	Long:    `Generate a Markdown summary of stored locations, connector groups, availability and prices.`,
	Example: `  chargelog report -o report.md`,
	Args:    cobra.NoArgs,
	GroupID: "query",
	RunE:    runReport,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides config)")
	reportCmd.Flags().StringVarP(&reportOutput, "output", "o", "", "Output file (default: stdout)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(cmd)
	defer cancel()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	addr := cfg.API.ListenAddr
	if serveAddr != "" {
		addr = serveAddr
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           api.NewServer(a.Store().DB(), a.Pipeline().Resolver(), log.Named("api")).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("api listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	log.Info("api shutting down")
	return srv.Shutdown(shutdownCtx)
}

func runReport(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	data, err := report.Generate(cmd.Context(), a.Store().DB(), a.Store().Path())
	if err != nil {
		return fmt.Errorf("generate report: %w", err)
	}

	out := cmd.OutOrStdout()
	if reportOutput != "" && reportOutput != "-" {
		f, err := os.Create(reportOutput)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		out = f
	}
	return report.WriteMarkdown(out, data)
}
