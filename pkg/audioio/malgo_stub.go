//go:build !cgo

package audioio

import "log/slog"

func newMalgoSource(cfg Config, logger *slog.Logger) (Source, error) {
	return nil, ErrBackendUnavailable
}

const malgoAvailable = false
