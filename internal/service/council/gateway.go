package council

import (
	"github.com/hugo-lorenzo-mato/llm-council/internal/adapters/ollama"
	"github.com/hugo-lorenzo-mato/llm-council/internal/adapters/worker"
	"github.com/hugo-lorenzo-mato/llm-council/internal/config"
	"github.com/hugo-lorenzo-mato/llm-council/internal/core"
	"github.com/hugo-lorenzo-mato/llm-council/internal/telemetry"
)

// NewLocalGateway builds the backend client from the configuration.
func NewLocalGateway(cfg *config.Config) *ollama.Client {
	return ollama.New(ollama.Config{
		BaseURL:        cfg.Ollama.BaseURL,
		Timeout:        cfg.Timeouts.Generation,
		ConnectTimeout: cfg.Timeouts.Connect,
		HealthTimeout:  cfg.Timeouts.HealthCheck,
	})
}

// GatewayFor selects the generator the stages call. A master with a worker URL
// forwards every call to the worker; anything else uses the local backend.
// The result is instrumented with tracing and token metrics.
func GatewayFor(cfg *config.Config, local core.Generator) core.Generator {
	if cfg.IsMaster() && cfg.Worker.URL != "" {
		remote := worker.New(worker.Config{
			BaseURL:        cfg.Worker.URL,
			Timeout:        cfg.Timeouts.Generation,
			ConnectTimeout: cfg.Timeouts.Connect,
		})
		return telemetry.Instrument(remote, "worker")
	}
	return telemetry.Instrument(local, "ollama")
}

// Gateways are the generators a master's stages call.
type Gateways struct {
	// Stages serves the opinion and review calls.
	Stages core.Generator
	// Synthesis serves the chairman call.
	Synthesis core.Generator
}

// GatewaysFor pairs GatewayFor with the local backend for synthesis. The
// chairman always runs on the master's own backend, even when a worker
// answers the other stages.
func GatewaysFor(cfg *config.Config, local core.Generator) Gateways {
	return Gateways{
		Stages:    GatewayFor(cfg, local),
		Synthesis: telemetry.Instrument(local, "ollama"),
	}
}

// NewFromConfig wires the gateways, the stages and the orchestrator the way
// the server and the CLI both need them.
func NewFromConfig(cfg *config.Config, store core.SessionStore, gw Gateways, opts ...Option) (*Orchestrator, error) {
	prompts, err := NewPromptRenderer()
	if err != nil {
		return nil, err
	}
	stageOpts := []StagesOption{WithConcurrency(cfg.Council.Concurrency)}
	if gw.Synthesis != nil {
		stageOpts = append(stageOpts, WithSynthesizer(gw.Synthesis))
	}
	stages := NewStages(gw.Stages, prompts, stageOpts...)
	all := append([]Option{
		WithDefaults(core.ReviewProtocol(cfg.Council.Protocol), cfg.Council.ChairmanModel),
	}, opts...)
	return New(store, stages, all...), nil
}
