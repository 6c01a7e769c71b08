package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/drlrcc/torcs-driver/internal/api"
	"github.com/drlrcc/torcs-driver/internal/config"
	"github.com/drlrcc/torcs-driver/internal/dispatcher"
	"github.com/drlrcc/torcs-driver/internal/drive"
	"github.com/drlrcc/torcs-driver/internal/episode"
	"github.com/drlrcc/torcs-driver/internal/influx"
	"github.com/drlrcc/torcs-driver/internal/logging"
	intOtel "github.com/drlrcc/torcs-driver/internal/otel"
	"github.com/drlrcc/torcs-driver/internal/session"
	"github.com/drlrcc/torcs-driver/internal/simulator"
	"github.com/drlrcc/torcs-driver/internal/storage"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

func run(parent context.Context, stdout io.Writer) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	sessCfg := config.GetSessionConfig()
	recCfg := config.GetRecorderConfig()
	storageCfg := config.GetStorageConfig()

	// logging
	logsDir := viper.GetString("logsDir")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("creating logs dir: %w", err)
	}
	logPath := logging.LogFilePath(logsDir, BinaryName, start)
	logFile, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	defer logFile.Close()

	episodes := episode.NewContext()
	slogManager := logging.NewSlogManager()
	slogManager.SetEpisodeSource(episodes)
	var extra []slog.Handler
	if viper.GetBool("graylog.enabled") {
		h, err := slogManager.EnableGraylog(viper.GetString("graylog.address"), viper.GetString("logLevel"))
		if err != nil {
			fmt.Fprintln(os.Stderr, "Graylog disabled:", err)
		} else {
			extra = append(extra, h)
		}
	}
	slogManager.Setup(logFile, viper.GetString("logLevel"), extra...)
	defer slogManager.Close()
	logger := slogManager.Logger()
	logger.Info("Starting", "version", Version, "build", BuildDate, "log", logPath)

	dbLogger := zerolog.New(logFile).With().Timestamp().Str("binary", BinaryName).Logger()

	// metrics
	otelCfg := config.GetOTelConfig()
	provider, err := intOtel.New(intOtel.Config{
		Enabled:        otelCfg.Enabled,
		ServiceName:    otelCfg.ServiceName,
		ServiceVersion: Version,
		ExportInterval: otelCfg.ExportInterval,
		Writer:         logFile,
	})
	if err != nil {
		logger.Error("Failed to initialize OTel provider", "error", err)
	} else {
		defer provider.Shutdown(context.WithoutCancel(ctx))
	}

	// storage
	backend, err := storage.NewBackend(storageCfg, storage.Dependencies{
		Logger:   logger,
		DBLogger: dbLogger.With().Str("component", "database").Logger(),
		Tag:      recCfg.Tag,
	})
	if err != nil {
		return fmt.Errorf("creating storage backend: %w", err)
	}
	if err := backend.Init(); err != nil {
		return fmt.Errorf("initializing %s storage: %w", storageCfg.Type, err)
	}
	defer func() {
		if err := backend.Close(); err != nil {
			logger.Error("Closing storage failed", "error", err)
		}
	}()
	logger.Info("Storage backend initialized", "type", storageCfg.Type)

	// telemetry sinks
	events, err := dispatcher.New(logger)
	if err != nil {
		return fmt.Errorf("creating dispatcher: %w", err)
	}
	sinks := registerSinks(ctx, events, backend, sinkOptions{
		Debug:      sessCfg.Debug,
		Stdout:     stdout,
		DBLogger:   dbLogger,
		BackupPath: filepath.Join(logsDir, influx.BackupFileName(start)),
	}, logger)
	// dispatcher first so buffered sinks drain before they close
	defer sinks.Close()
	defer events.Close()

	// training server
	apiCfg := config.GetAPIConfig()
	client := api.New(apiCfg.ServerURL, apiCfg.APIKey, apiCfg.Timeout)
	if err := client.Healthcheck(ctx); err != nil {
		logger.Info("Training server is offline", "url", apiCfg.ServerURL)
	} else {
		logger.Info("Training server is online", "url", apiCfg.ServerURL)
	}

	pol, err := buildPolicy(ctx, config.GetPolicyConfig(), sessCfg.MaxSpeed, recCfg.IgnoreSteps, client, logger)
	if err != nil {
		return err
	}

	var sim simulator.Controller = simulator.Noop{}
	if simCfg := config.GetSimulatorConfig(); simCfg.Managed {
		sim = simulator.NewProcess(simCfg, nil, logger)
	}

	var progress io.Writer = stdout
	if sessCfg.Debug {
		progress = nil
	}
	newSession := func() (drive.Session, error) {
		s, err := session.New(session.Options{
			Address:        sessCfg.Address(),
			ID:             sessCfg.ID,
			ReceiveTimeout: sessCfg.ReceiveTimeout,
			RetryBudget:    sessCfg.RetryBudget,
		}, session.Dependencies{
			Restarter: sim,
			Logger:    logger,
			Progress:  progress,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	}

	var uploader drive.Uploader
	if recCfg.Upload {
		uploader = client
	}

	runner, err := drive.NewRunner(drive.Options{
		Session:    sessCfg,
		Recorder:   recCfg,
		PolicyName: pol.Name,
		ModelFile:  pol.ModelFile,
		Settings:   settings(sessCfg, storageCfg.Type, pol.Name),
	}, drive.Dependencies{
		NewSession: newSession,
		Simulator:  sim,
		Policy:     pol.Policy,
		Storage:    backend,
		Events:     events,
		Uploader:   uploader,
		Episodes:   episodes,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	summary, err := runner.Run(ctx)
	sinks.StopView()
	summary.Print(stdout)
	if errors.Is(err, context.Canceled) {
		logger.Info("Interrupted, shutting down")
		return nil
	}
	if err != nil {
		logger.Error("Run failed", "error", err)
		return err
	}
	return nil
}

func settings(c config.SessionConfig, storageType, policyName string) map[string]string {
	return map[string]string{
		"host":     c.Host,
		"port":     strconv.Itoa(c.Port),
		"id":       c.ID,
		"stage":    strconv.Itoa(c.Stage),
		"track":    c.Track,
		"maxSteps": strconv.Itoa(c.MaxSteps),
		"maxSpeed": strconv.FormatFloat(c.MaxSpeed, 'g', -1, 64),
		"storage":  storageType,
		"policy":   policyName,
	}
}
