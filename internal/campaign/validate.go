package campaign

import (
	"fmt"

	"github.com/shaiso/Fanline/internal/domain"
)

// validateParams проверяет параметры новой кампании.
func validateParams(params CreateParams) error {
	if params.TargetChatID == "" {
		return fmt.Errorf("target chat id is required")
	}
	if len(params.InstanceIDs) == 0 {
		return ErrNoInstances
	}
	if len(params.Messages) == 0 {
		return ErrNoMessages
	}

	for i, m := range params.Messages {
		switch m.Type {
		case domain.MessageTypeText:
			if m.Text == "" {
				return fmt.Errorf("message %d: text is required", i)
			}
		case domain.MessageTypeImage, domain.MessageTypeAudio:
			if m.File == "" {
				return fmt.Errorf("message %d: file is required", i)
			}
		default:
			return fmt.Errorf("message %d: unknown type %q", i, m.Type)
		}
	}

	bounds := []struct {
		name     string
		min, max int
	}{
		{"delay", params.MinDelaySec, params.MaxDelaySec},
		{"message delay", params.MinMessageDelaySec, params.MaxMessageDelaySec},
		{"typing", params.MinTypingSec, params.MaxTypingSec},
	}
	for _, b := range bounds {
		if b.min < 0 || b.max < b.min {
			return fmt.Errorf("%w: %s [%d, %d]", ErrBadDelays, b.name, b.min, b.max)
		}
	}
	if params.MinDelaySec == 0 && params.MaxDelaySec == 0 {
		return fmt.Errorf("%w: delay bounds must be positive", ErrBadDelays)
	}

	return nil
}
