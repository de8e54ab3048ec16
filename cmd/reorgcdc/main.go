// Command reorgcdc runs the reorg-aware block synchronizer: poll an
// upstream view-provider, drive a sandboxed transform module block by
// block, and forward the CDC records it emits to a configured sink.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"reorgcdc/core"
	"reorgcdc/internal/config"
	"reorgcdc/internal/jsonrpc"
	"reorgcdc/internal/logging"
	"reorgcdc/internal/sink"
	"reorgcdc/internal/synchronizer"
)

func main() {
	rootCmd := &cobra.Command{Use: "reorgcdc"}
	rootCmd.AddCommand(runCmd())
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "run the reorg-aware CDC synchronizer",
		RunE:  runE,
	}
	cmd.Flags().String("config", "", "path to a JSON configuration file; when set, all other flags are ignored")
	cmd.Flags().String("metashrew-url", "", "upstream JSON-RPC endpoint")
	cmd.Flags().String("transform", "", "path to the sandboxed transform module")
	cmd.Flags().String("sink-type", "console", "sink kind: kafka|postgres|file|console")
	cmd.Flags().String("sink-config", "", "path to a JSON file with sink-specific fields")
	cmd.Flags().Uint32("cache-size", 6, "number of blocks to retain for reorg handling")
	cmd.Flags().Uint32("start-height", 0, "starting block height (0 adopts the upstream tip)")
	cmd.Flags().String("log-level", "info", "log level")
	return cmd
}

func runE(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrConfiguration, err)
	}

	client, err := jsonrpc.NewClient(cfg.Upstream.URL,
		jsonrpc.WithLogger(logger),
		jsonrpc.WithMaxRetries(uint64(cfg.Upstream.MaxRetries)),
		jsonrpc.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.Upstream.TimeoutSecs) * time.Second}))
	if err != nil {
		return err
	}

	wasmBytes, err := os.ReadFile(cfg.Transform.Path)
	if err != nil {
		return fmt.Errorf("%w: read transform module: %v", core.ErrBytecodeLoad, err)
	}
	engine, err := core.NewWasmEngine(wasmBytes)
	if err != nil {
		return err
	}

	sinkCfg, err := cfg.Sink.Resolve()
	if err != nil {
		return err
	}
	cdcSink, err := sink.New(sinkCfg)
	if err != nil {
		return err
	}

	runtime := core.NewRuntime(engine, client, core.NewViewRegistry(), logger)
	sync, err := synchronizer.New(client, runtime, cdcSink, cfg.CacheSize, logger)
	if err != nil {
		return err
	}
	if cfg.StartHeight != nil {
		sync.SetStartingHeight(*cfg.StartHeight)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		logger.Info("received shutdown signal")
		sync.Stop()
		cancel()
	}()

	if err := sync.Run(ctx); err != nil && err != context.Canceled {
		_ = cdcSink.Close()
		return err
	}
	return cdcSink.Close()
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")
	if configPath != "" {
		return config.Load(configPath)
	}

	metashrewURL, _ := cmd.Flags().GetString("metashrew-url")
	transformPath, _ := cmd.Flags().GetString("transform")
	sinkType, _ := cmd.Flags().GetString("sink-type")
	sinkConfigPath, _ := cmd.Flags().GetString("sink-config")
	cacheSize, _ := cmd.Flags().GetUint32("cache-size")
	startHeight, _ := cmd.Flags().GetUint32("start-height")
	logLevel, _ := cmd.Flags().GetString("log-level")

	var sinkSection config.SinkSection
	if sinkConfigPath != "" {
		raw, err := os.ReadFile(sinkConfigPath)
		if err != nil {
			return nil, fmt.Errorf("%w: read sink config: %v", core.ErrConfiguration, err)
		}
		if err := json.Unmarshal(raw, &sinkSection); err != nil {
			return nil, fmt.Errorf("%w: parse sink config: %v", core.ErrConfiguration, err)
		}
	}
	sinkSection.Type = sinkType

	cfg := &config.Config{
		Upstream:  config.UpstreamConfig{URL: metashrewURL, TimeoutSecs: 30, MaxRetries: 3, RetryDelayMS: 1000},
		Transform: config.TransformConfig{Path: transformPath},
		Sink:      sinkSection,
		CacheSize: cacheSize,
		LogLevel:  logLevel,
	}
	if startHeight != 0 {
		cfg.StartHeight = &startHeight
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
