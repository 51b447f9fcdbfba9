package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"qr-gate/internal/config"
	"qr-gate/internal/logging"
	"qr-gate/internal/server"
	"qr-gate/internal/store"
	"qr-gate/pkg/mq"
)

var (
	// Global flags
	configPath string
	dbPath     string
	driver     string
	logLevel   string

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "qr-gate",
	Short: "Gate QR scan logger with door sequencing and office dashboard",
	Long: `qr-gate records QR scans from the browser scanner page, tracks the
door scan order configured for each gate, and raises an action card when a
gate's doors have all been scanned in order.

Run without a subcommand to start the web server.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: runServer,
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Serve the scanner, dashboard and API",
	RunE:  runServer,
}

var httpAddr string

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default "+config.DefaultFile+")")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path (overrides DB_PATH)")
	rootCmd.PersistentFlags().StringVar(&driver, "driver", "", "store driver: sqlite|mysql")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug|info|warn|error")

	serverCmd.Flags().StringVar(&httpAddr, "addr", "", "listen address (default from config, 0.0.0.0:5053)")
	rootCmd.Flags().AddFlagSet(serverCmd.Flags())

	rootCmd.AddCommand(serverCmd, exportCmd, scanCmd, gatesCmd, actionsCmd, configCmd)
}

func configFile() string {
	if configPath == "" {
		return config.DefaultFile
	}
	return configPath
}

func setup(cmd *cobra.Command, args []string) error {
	c, err := config.Load(configFile())
	if err != nil {
		return err
	}
	if dbPath != "" {
		c.Store.Path = dbPath
		c.Store.DSN = ""
	}
	if driver != "" {
		c.Store.Driver = strings.ToLower(driver)
	}
	if logLevel != "" {
		c.Logging.Level = logLevel
	}
	if httpAddr != "" {
		c.HTTP.Addr = httpAddr
	}
	if err := c.Validate(); err != nil {
		return err
	}
	cfg = c

	logger, err = logging.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

func openStore(ctx context.Context) (*store.Store, error) {
	door2, err := cfg.Scan.Door2TimeoutDuration()
	if err != nil {
		return nil, err
	}
	return store.NewFromConfig(ctx, cfg.Store, store.WithDoor2Timeout(door2))
}

func runServer(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	version, err := st.ServerVersion(ctx)
	if err != nil {
		return err
	}

	door2, _ := cfg.Scan.Door2TimeoutDuration()
	dedupe, _ := cfg.Scan.DedupeWindowDuration()
	bus := mq.NewMemory()
	bus.Subscribe(mq.TopicActionCompleted, func(b []byte) error {
		logger.Debug("action event published", zap.ByteString("payload", b))
		return nil
	})

	srv := server.New(st,
		server.WithLogger(logger),
		server.WithBus(bus),
		server.WithDedupeWindow(dedupe),
		server.WithDoor2Timeout(door2),
	)

	logger.Info("starting qr-gate",
		zap.String("addr", cfg.HTTP.Addr),
		zap.String("driver", st.Driver()),
		zap.String("server_version", version),
		zap.String("db_path", cfg.Store.Path),
		zap.Duration("door2_timeout", door2),
		zap.Duration("dedupe_window", dedupe),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(gctx, cfg.HTTP.Addr)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		return nil
	})
	return g.Wait()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
