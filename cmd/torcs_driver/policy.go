package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/drlrcc/torcs-driver/internal/api"
	"github.com/drlrcc/torcs-driver/internal/config"
	"github.com/drlrcc/torcs-driver/internal/policy"
)

type selectedPolicy struct {
	Policy    policy.Policy
	Name      string
	ModelFile string
}

// buildPolicy returns the baseline driver, with learned steering after
// warmup ticks when configured. With sync enabled the model is fetched from
// the training server first; the local copy is used when that fails.
func buildPolicy(ctx context.Context, cfg config.PolicyConfig, maxSpeed float64, warmup int, client *api.Client, logger *slog.Logger) (selectedPolicy, error) {
	if !cfg.Learned {
		return selectedPolicy{Policy: policy.Baseline{MaxSpeed: maxSpeed}, Name: "baseline"}, nil
	}
	if cfg.ModelPath == "" {
		return selectedPolicy{}, errors.New("learned steering needs a model file")
	}

	path := cfg.ModelPath
	if cfg.Sync && client != nil {
		p, err := client.DownloadModel(ctx, filepath.Base(cfg.ModelPath), cfg.ModelDir)
		if err != nil {
			logger.Warn("Model download failed, using local file", "model", cfg.ModelPath, "error", err)
		} else {
			logger.Info("Model downloaded", "path", p)
			path = p
		}
	}

	steerer, err := policy.LoadLinearSteerer(path)
	if err != nil {
		return selectedPolicy{}, fmt.Errorf("loading steering model: %w", err)
	}
	logger.Info("Learned steering enabled", "model", path)
	return selectedPolicy{
		Policy:    policy.Baseline{MaxSpeed: maxSpeed, Steering: steerer, Warmup: warmup},
		Name:      "learned",
		ModelFile: filepath.Base(path),
	}, nil
}
