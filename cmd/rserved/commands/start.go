package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/spf13/cobra"

	"github.com/marmos91/rserved/internal/adminapi"
	"github.com/marmos91/rserved/internal/archive"
	"github.com/marmos91/rserved/internal/config"
	"github.com/marmos91/rserved/internal/eval"
	"github.com/marmos91/rserved/internal/ledger"
	"github.com/marmos91/rserved/internal/logger"
	"github.com/marmos91/rserved/internal/metrics"
	"github.com/marmos91/rserved/internal/server"
	"github.com/marmos91/rserved/internal/telemetry"
	"github.com/marmos91/rserved/internal/transport"
)

var foreground bool

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the rserved server",
	Long: `Start the rserved QAP1 server with the specified configuration.

Examples:
  # Start with defaults
  rserved start

  # Start with a custom config file
  rserved start --config /etc/rserved/config.yaml

  # Start with environment variable overrides
  RSERVED_LOGGING_LEVEL=DEBUG rserved start`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().BoolVarP(&foreground, "foreground", "f", true, "Run in the foreground (rserved has no daemon mode; flag kept for CLI parity)")
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := initLogger(cfg); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	telemetryShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: Version,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(context.Background()); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}()
	if telemetry.IsEnabled() {
		logger.Info("telemetry enabled", "service", cfg.Telemetry.ServiceName)
	}

	sessionLedger, err := ledger.Open(cfg.Ledger.Path)
	if err != nil {
		return fmt.Errorf("failed to open session ledger: %w", err)
	}
	defer func() {
		if err := sessionLedger.Close(); err != nil {
			logger.Error("ledger close error", "error", err)
		}
	}()

	archiveBackend, err := buildArchiveBackend(ctx, cfg.Archive)
	if err != nil {
		return err
	}

	recorder := metrics.New()

	gateway := eval.New()
	srv, err := server.New(server.Config{
		BindAddress:     cfg.Server.BindAddress,
		Port:            cfg.Server.Port,
		Workdir:         cfg.Server.Workdir,
		MaxConnections:  cfg.Server.MaxConnections,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		LocalOnly:       cfg.Server.LocalOnly,
		InputCeiling:    cfg.Server.InputCeiling,
		Transport: transport.Config{
			Enabled:  cfg.Transport.Enabled,
			CertFile: cfg.Transport.CertFile,
			KeyFile:  cfg.Transport.KeyFile,
		},
	}, gateway, sessionLedger, recorder, archiveBackend)
	if err != nil {
		return fmt.Errorf("failed to build server: %w", err)
	}

	var adminSrv *http.Server
	if cfg.Admin.Enabled {
		adminSrv = &http.Server{
			Addr: cfg.Admin.Addr,
			Handler: adminapi.NewRouter(adminapi.Config{
				JWTSecret: cfg.Admin.JWTSecret,
				Sessions:  sessionLedger,
				Metrics:   recorder.Handler(),
				Shutdown:  adminapi.ShutdownFunc(cancel),
			}),
		}
		go func() {
			logger.Info("admin API listening", "addr", cfg.Admin.Addr)
			if err := adminSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("admin API server error", "error", err)
			}
		}()
	}

	serverDone := make(chan error, 1)
	go func() { serverDone <- srv.Serve(ctx) }()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	logger.Info("rserved starting", "bind", cfg.Server.BindAddress, "port", cfg.Server.Port, "local_only", cfg.Server.LocalOnly)

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("shutdown signal received, initiating graceful shutdown")
		cancel()
		if err := <-serverDone; err != nil {
			logger.Error("server shutdown error", "error", err)
		}
	case err := <-serverDone:
		signal.Stop(sigChan)
		if err != nil {
			logger.Error("server error", "error", err)
			return err
		}
	}

	if adminSrv != nil {
		_ = adminSrv.Close()
	}
	logger.Info("rserved stopped")
	return nil
}

// buildArchiveBackend returns the no-op backend unless S3 archival is
// enabled, in which case it loads the default AWS credential chain
// (shared config/env/IMDS, via aws-sdk-go-v2/config).
func buildArchiveBackend(ctx context.Context, cfg config.ArchiveConfig) (archive.Backend, error) {
	if !cfg.Enabled {
		return archive.NoopBackend{}, nil
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("archive: load AWS config: %w", err)
	}

	backend, err := archive.NewS3Backend(ctx, archive.S3Config{
		Client: s3.NewFromConfig(awsCfg),
		Bucket: cfg.Bucket,
		Prefix: cfg.Prefix,
	})
	if err != nil {
		return nil, err
	}
	return backend, nil
}
