package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v10"
)

// EnvPrefix starts every environment variable the server reads.
const EnvPrefix = "QUESTLINE_"

// applyEnv overlays QUESTLINE_* variables onto cfg; unset variables keep the
// value already in cfg.
func applyEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	cfg.Webhook.Endpoints = trimList(cfg.Webhook.Endpoints)
	cfg.Webhook.EventTypes = trimList(cfg.Webhook.EventTypes)
	cfg.Security.APIKeys = trimList(cfg.Security.APIKeys)
	return nil
}

// trimList drops blanks from comma-separated values such as "a, b,".
func trimList(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
