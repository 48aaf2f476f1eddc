//go:build !linux

package tunnel

import (
	"errors"
	"log/slog"
	"time"
)

// NewOSService returns a stub service on platforms without TUN support.
func NewOSService(ifaceName string, log *slog.Logger) Service {
	return unsupportedService{}
}

type unsupportedService struct{}

func (unsupportedService) Authorized() bool { return false }

func (unsupportedService) Start(timeout time.Duration) (Device, error) {
	return nil, errors.New("tunnel devices are not supported on this platform")
}

func (unsupportedService) Stop(timeout time.Duration) error { return nil }
