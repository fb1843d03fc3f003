package audioio

import (
	"fmt"
	"log/slog"
)

// NewSource creates an audio source for cfg.Backend. BackendAuto picks
// malgo when it is compiled in and falls back to mock.
func NewSource(cfg Config, logger *slog.Logger) (Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("audioio: invalid config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	backend := cfg.Backend
	if backend == BackendAuto || backend == "" {
		backend = detectBackend()
	}

	logger.Info("creating audio source",
		"backend", backend,
		"sample_rate", cfg.SampleRate,
		"channels", cfg.Channels,
		"buffer_ms", cfg.BufferDuration.Milliseconds(),
	)

	switch backend {
	case BackendMock:
		return NewMockSource(cfg, logger), nil
	case BackendMalgo:
		return newMalgoSource(cfg, logger)
	default:
		return nil, fmt.Errorf("audioio: unsupported backend: %s", backend)
	}
}

func detectBackend() Backend {
	if malgoAvailable {
		return BackendMalgo
	}
	return BackendMock
}

// AvailableBackends returns the backends compiled into this build.
func AvailableBackends() []Backend {
	backends := []Backend{BackendMock}
	if malgoAvailable {
		backends = append(backends, BackendMalgo)
	}
	return backends
}
