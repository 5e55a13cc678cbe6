package whatsapp

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"go.mau.fi/whatsmeow/store"

	"github.com/shaiso/Fanline/internal/gateway"
)

// Factory создаёт сессии поверх общего Container.
type Factory struct {
	container *Container
	media     MediaSource
	logger    *slog.Logger
}

// NewFactory создаёт Factory.
func NewFactory(container *Container, media MediaSource, logger *slog.Logger) *Factory {
	return &Factory{container: container, media: media, logger: logger}
}

// NewSession создаёт сессию для instance.
// При пустом deviceJID (или утерянных учётных данных) устройство
// создаётся заново и сессия начнёт пейринг с QR.
func (f *Factory) NewSession(ctx context.Context, instanceID uuid.UUID, deviceJID string) (gateway.Session, error) {
	var device *store.Device
	if deviceJID != "" {
		found, err := f.container.GetDevice(ctx, deviceJID)
		if err != nil {
			return nil, err
		}
		device = found
	}
	if device == nil {
		device = f.container.NewDevice()
	}

	return NewSession(device, f.media, f.logger.With("instance_id", instanceID)), nil
}

// DropCredentials удаляет учётные данные устройства.
// Отсутствующее устройство не считается ошибкой.
func (f *Factory) DropCredentials(ctx context.Context, deviceJID string) error {
	device, err := f.container.GetDevice(ctx, deviceJID)
	if err != nil {
		return err
	}
	if device == nil {
		return nil
	}
	return f.container.DeleteDevice(ctx, device)
}
