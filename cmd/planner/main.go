package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/loomdb/loomdb/pkg/common/config"
	"github.com/loomdb/loomdb/pkg/common/metrics"
	"github.com/loomdb/loomdb/pkg/planner"
)

var (
	cfgFile string
	logger  *zap.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "loomdb-planner",
	Short: "LoomDB Planner Node",
	Long: `LoomDB Planner Node optimizes analyzed logical query plans: it decorrelates
subqueries and pushes partial aggregations below joins, serving the rewrite
engine over REST to the coordination tier.`,
	RunE: run,
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is /etc/loomdb/planner.yaml)")
}

func initConfig() {
	var err error
	logger, err = zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
}

func run(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Load configuration
	cfg, err := config.LoadPlannerConfig(cfgFile)
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	logger.Info("Starting LoomDB Planner Node",
		zap.String("node_id", cfg.NodeID),
		zap.String("bind_addr", cfg.BindAddr),
		zap.Int("rest_port", cfg.RESTPort),
		zap.Int("optimizer_max_passes", cfg.OptimizerMaxPasses),
	)

	// Create planner node
	collector := metrics.NewMetricsCollector("planner")
	plannerNode, err := planner.NewPlannerNode(cfg, logger, collector)
	if err != nil {
		logger.Fatal("Failed to create planner node", zap.Error(err))
	}

	// Start planner node
	if err := plannerNode.Start(ctx); err != nil {
		logger.Fatal("Failed to start planner node", zap.Error(err))
	}

	// Setup signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Planner node started successfully",
		zap.String("rest_endpoint", fmt.Sprintf("http://%s:%d", cfg.BindAddr, cfg.RESTPort)),
	)

	// Wait for shutdown signal
	<-sigCh
	logger.Info("Received shutdown signal, stopping planner node...")

	// Graceful shutdown
	if err := plannerNode.Stop(ctx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
		return err
	}

	logger.Info("Planner node stopped successfully")
	return nil
}
