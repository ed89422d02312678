package config

import (
	"log/slog"
	"os"
	"strconv"
)

// Environment variable names recognized by the loader.
const (
	EnvPort              = "PORT"
	EnvSessionHistoryDir = "SESSION_HISTORY_DIR"
	EnvGPUCleanupDelayMS = "GPU_CLEANUP_DELAY_MS"
	EnvHFToken           = "HF_TOKEN"
	EnvFluxLoraPath      = "FLUX_LORA_PATH"
	EnvFluxLoraScale     = "FLUX_LORA_SCALE"
	EnvModalEndpointURL  = "MODAL_ENDPOINT_URL"
	EnvModalTokenID      = "MODAL_TOKEN_ID"
	EnvModalTokenSecret  = "MODAL_TOKEN_SECRET"
)

// servicePortEnv maps a service name to its port override variable.
func servicePortEnv(name string) string {
	switch name {
	case ServiceFlux:
		return "FLUX_PORT"
	case ServiceVision:
		return "VISION_PORT"
	case ServiceLLM:
		return "LLM_PORT"
	case ServiceVLM:
		return "VLM_PORT"
	}
	return ""
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOrDefault(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("Ignoring non-integer environment value", "key", key, "value", v)
		return fallback
	}
	return n
}

func envFloatOrDefault(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		slog.Warn("Ignoring non-numeric environment value", "key", key, "value", v)
		return fallback
	}
	return f
}
