package whatsapp

import (
	"fmt"
	"log/slog"

	waLog "go.mau.fi/whatsmeow/util/log"
)

// slogAdapter транслирует логи whatsmeow в slog.
type slogAdapter struct {
	logger *slog.Logger
}

// NewLogger оборачивает slog.Logger в waLog.Logger.
func NewLogger(logger *slog.Logger) waLog.Logger {
	return &slogAdapter{logger: logger}
}

func (a *slogAdapter) Errorf(msg string, args ...any) {
	a.logger.Error(fmt.Sprintf(msg, args...))
}

func (a *slogAdapter) Warnf(msg string, args ...any) {
	a.logger.Warn(fmt.Sprintf(msg, args...))
}

func (a *slogAdapter) Infof(msg string, args ...any) {
	a.logger.Info(fmt.Sprintf(msg, args...))
}

func (a *slogAdapter) Debugf(msg string, args ...any) {
	a.logger.Debug(fmt.Sprintf(msg, args...))
}

func (a *slogAdapter) Sub(module string) waLog.Logger {
	return &slogAdapter{logger: a.logger.With("module", module)}
}
