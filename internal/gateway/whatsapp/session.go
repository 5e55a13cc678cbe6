// Package whatsapp реализует gateway.Session поверх whatsmeow.
package whatsapp

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"go.mau.fi/whatsmeow"
	waProto "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"

	"github.com/shaiso/Fanline/internal/domain"
	"github.com/shaiso/Fanline/internal/gateway"
)

// MediaSource отдаёт содержимое загруженных файлов рассылок.
// Реализуется media.Store.
type MediaSource interface {
	Read(name string) ([]byte, error)
}

// Session — реализация gateway.Session поверх whatsmeow.Client.
type Session struct {
	client *whatsmeow.Client
	device *store.Device
	media  MediaSource
	logger *slog.Logger

	events    chan gateway.Event
	closeOnce sync.Once

	mu        sync.RWMutex
	connected bool
}

var _ gateway.Session = (*Session)(nil)

// NewSession создаёт сессию поверх устройства из Container.
func NewSession(device *store.Device, media MediaSource, logger *slog.Logger) *Session {
	client := whatsmeow.NewClient(device, NewLogger(logger.With("component", "whatsmeow")))
	client.EnableAutoReconnect = true
	client.AutoTrustIdentity = true

	s := &Session{
		client: client,
		device: device,
		media:  media,
		logger: logger,
		events: make(chan gateway.Event, 16),
	}
	client.AddEventHandler(s.handleEvent)
	return s
}

// handleEvent транслирует события whatsmeow в gateway.Event.
func (s *Session) handleEvent(evt interface{}) {
	switch evt.(type) {
	case *events.Connected:
		s.setConnected(true)
		s.emit(gateway.Event{Kind: gateway.EventConnected, At: time.Now()})
	case *events.Disconnected:
		s.setConnected(false)
		s.emit(gateway.Event{Kind: gateway.EventDisconnected, At: time.Now()})
	case *events.LoggedOut:
		s.setConnected(false)
		s.emit(gateway.Event{Kind: gateway.EventLoggedOut, At: time.Now()})
	}
}

// emit отправляет событие без блокировки обработчика whatsmeow.
func (s *Session) emit(evt gateway.Event) {
	select {
	case s.events <- evt:
	default:
		s.logger.Warn("event channel full, dropping event", "kind", evt.Kind)
	}
}

// Connect устанавливает соединение. Для неспаренного устройства
// запускает выдачу QR через Events.
func (s *Session) Connect(ctx context.Context) error {
	if !s.LoggedIn() {
		qrChan, err := s.client.GetQRChannel(ctx)
		if err != nil {
			return fmt.Errorf("get qr channel: %w", err)
		}
		go s.pumpQR(qrChan)
	}

	if err := s.client.Connect(); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	return nil
}

// pumpQR перекладывает QR-коды из канала whatsmeow в Events.
func (s *Session) pumpQR(qrChan <-chan whatsmeow.QRChannelItem) {
	for item := range qrChan {
		switch item.Event {
		case "code":
			s.emit(gateway.Event{Kind: gateway.EventQR, Code: item.Code, At: time.Now()})
		case "success":
			s.logger.Info("pairing succeeded")
		case "timeout":
			s.logger.Warn("qr channel timed out")
		case "error":
			s.logger.Error("qr channel error", "error", item.Error)
		}
	}
}

// Disconnect разрывает соединение, не отвязывая аккаунт.
func (s *Session) Disconnect() {
	s.client.Disconnect()
	s.setConnected(false)
}

// Connected сообщает, подключена ли сессия.
func (s *Session) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

func (s *Session) setConnected(connected bool) {
	s.mu.Lock()
	s.connected = connected
	s.mu.Unlock()
}

// LoggedIn сообщает, есть ли сохранённые учётные данные.
func (s *Session) LoggedIn() bool {
	return s.device.ID != nil
}

// Phone возвращает номер телефона аккаунта.
func (s *Session) Phone() string {
	if s.device.ID == nil {
		return ""
	}
	return s.device.ID.User
}

// DeviceJID возвращает идентификатор устройства.
func (s *Session) DeviceJID() string {
	if s.device.ID == nil {
		return ""
	}
	return s.device.ID.String()
}

// Send отправляет одно сообщение с имитацией набора текста.
func (s *Session) Send(ctx context.Context, toJID string, spec domain.MessageSpec, typing time.Duration) error {
	jid, err := types.ParseJID(toJID)
	if err != nil {
		return fmt.Errorf("parse recipient jid: %w", err)
	}

	if typing > 0 {
		if err := s.imitateTyping(ctx, jid, typing); err != nil {
			return err
		}
	}

	msg, err := s.buildMessage(ctx, spec)
	if err != nil {
		return err
	}

	if _, err := s.client.SendMessage(ctx, jid, msg); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// imitateTyping показывает получателю индикатор набора текста.
func (s *Session) imitateTyping(ctx context.Context, jid types.JID, typing time.Duration) error {
	if err := s.client.SendChatPresence(ctx, jid, types.ChatPresenceComposing, types.ChatPresenceMediaText); err != nil {
		return fmt.Errorf("send composing presence: %w", err)
	}

	timer := time.NewTimer(typing)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}

	if err := s.client.SendChatPresence(ctx, jid, types.ChatPresencePaused, types.ChatPresenceMediaText); err != nil {
		return fmt.Errorf("send paused presence: %w", err)
	}
	return nil
}

// buildMessage собирает протокольное сообщение по MessageSpec.
func (s *Session) buildMessage(ctx context.Context, spec domain.MessageSpec) (*waProto.Message, error) {
	switch spec.Type {
	case domain.MessageTypeText:
		return &waProto.Message{Conversation: proto.String(spec.Text)}, nil

	case domain.MessageTypeImage:
		data, err := s.media.Read(spec.File)
		if err != nil {
			return nil, fmt.Errorf("read image file: %w", err)
		}
		uploaded, err := s.client.Upload(ctx, data, whatsmeow.MediaImage)
		if err != nil {
			return nil, fmt.Errorf("upload image: %w", err)
		}
		return &waProto.Message{
			ImageMessage: &waProto.ImageMessage{
				Caption:       proto.String(spec.Text),
				Mimetype:      proto.String(http.DetectContentType(data)),
				URL:           proto.String(uploaded.URL),
				DirectPath:    proto.String(uploaded.DirectPath),
				MediaKey:      uploaded.MediaKey,
				FileEncSHA256: uploaded.FileEncSHA256,
				FileSHA256:    uploaded.FileSHA256,
				FileLength:    proto.Uint64(uploaded.FileLength),
			},
		}, nil

	case domain.MessageTypeAudio:
		data, err := s.media.Read(spec.File)
		if err != nil {
			return nil, fmt.Errorf("read audio file: %w", err)
		}
		uploaded, err := s.client.Upload(ctx, data, whatsmeow.MediaAudio)
		if err != nil {
			return nil, fmt.Errorf("upload audio: %w", err)
		}
		return &waProto.Message{
			AudioMessage: &waProto.AudioMessage{
				PTT:           proto.Bool(spec.PTT),
				Mimetype:      proto.String("audio/ogg; codecs=opus"),
				URL:           proto.String(uploaded.URL),
				DirectPath:    proto.String(uploaded.DirectPath),
				MediaKey:      uploaded.MediaKey,
				FileEncSHA256: uploaded.FileEncSHA256,
				FileSHA256:    uploaded.FileSHA256,
				FileLength:    proto.Uint64(uploaded.FileLength),
			},
		}, nil

	default:
		return nil, fmt.Errorf("unknown message type %q", spec.Type)
	}
}

// Participants возвращает участников группового чата.
func (s *Session) Participants(ctx context.Context, chatJID string) ([]gateway.Participant, error) {
	jid, err := types.ParseJID(chatJID)
	if err != nil {
		return nil, fmt.Errorf("parse chat jid: %w", err)
	}

	info, err := s.client.GetGroupInfo(ctx, jid)
	if err != nil {
		return nil, fmt.Errorf("get group info: %w", err)
	}

	participants := make([]gateway.Participant, 0, len(info.Participants))
	for _, p := range info.Participants {
		participants = append(participants, gateway.Participant{
			JID:     p.JID.String(),
			IsAdmin: p.IsAdmin || p.IsSuperAdmin,
		})
	}
	return participants, nil
}

// Groups возвращает групповые чаты, в которых состоит аккаунт.
func (s *Session) Groups(ctx context.Context) ([]gateway.Group, error) {
	joined, err := s.client.GetJoinedGroups(ctx)
	if err != nil {
		return nil, fmt.Errorf("get joined groups: %w", err)
	}

	groups := make([]gateway.Group, 0, len(joined))
	for _, g := range joined {
		groups = append(groups, gateway.Group{
			JID:  g.JID.String(),
			Name: g.Name,
			Size: len(g.Participants),
		})
	}
	return groups, nil
}

// Events возвращает канал событий сессии.
func (s *Session) Events() <-chan gateway.Event {
	return s.events
}

// Close разрывает соединение и закрывает канал событий.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.client.Disconnect()
		s.setConnected(false)
		close(s.events)
	})
}
