package config

import (
	"fmt"
	"time"
)

// Service names in supervisor order. Each is a long-running model daemon
// with a reserved port.
const (
	ServiceLLM    = "llm"
	ServiceFlux   = "flux"
	ServiceVision = "vision"
	ServiceVLM    = "vlm"
)

// ServiceNames returns the four managed service names.
func ServiceNames() []string {
	return []string{ServiceLLM, ServiceFlux, ServiceVision, ServiceVLM}
}

// IsValidServiceName reports whether name is one of the managed services.
func IsValidServiceName(name string) bool {
	switch name {
	case ServiceLLM, ServiceFlux, ServiceVision, ServiceVLM:
		return true
	}
	return false
}

// ServiceConfig is the launch definition for one model daemon.
//
// Args may contain the literal "{port}" which the supervisor substitutes
// with the resolved port at start time.
type ServiceConfig struct {
	Name    string   `yaml:"-"`
	Port    int      `yaml:"port"`
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
	WorkDir string   `yaml:"work_dir"`

	// Disabled marks a service that must not be started locally, for
	// deployments that serve the capability remotely instead.
	Disabled bool `yaml:"disabled"`

	// HealthPath is the HTTP path probed for liveness, default "/health".
	HealthPath string `yaml:"health_path"`

	// GracefulTimeout bounds the SIGTERM-to-SIGKILL window on stop.
	GracefulTimeout time.Duration `yaml:"graceful_timeout"`

	// StartupTimeout bounds the wait for the first healthy probe after
	// start. Model daemons load multi-gigabyte weights, so this is long.
	StartupTimeout time.Duration `yaml:"startup_timeout"`

	// Env is appended to the daemon's environment as KEY=VALUE pairs.
	Env []string `yaml:"env"`

	// Flux-only fields. A non-empty ModelPath switches the daemon to a
	// local checkpoint, which requires all three encoder paths.
	ModelPath        string  `yaml:"model_path"`
	TextEncoderPath  string  `yaml:"text_encoder_path"`
	TextEncoder2Path string  `yaml:"text_encoder_2_path"`
	VAEPath          string  `yaml:"vae_path"`
	LoraPath         string  `yaml:"lora_path"`
	LoraScale        float64 `yaml:"lora_scale"`
}

// Configured reports whether the service can be launched locally.
func (s *ServiceConfig) Configured() bool {
	return !s.Disabled && s.Command != ""
}

// HealthURL returns the full health endpoint for the service.
func (s *ServiceConfig) HealthURL() string {
	return fmt.Sprintf("http://127.0.0.1:%d%s", s.Port, s.HealthPath)
}

// BaseURL returns the daemon's HTTP base address.
func (s *ServiceConfig) BaseURL() string {
	return fmt.Sprintf("http://127.0.0.1:%d", s.Port)
}
