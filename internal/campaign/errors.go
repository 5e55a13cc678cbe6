package campaign

import "errors"

// Ошибки сервиса кампаний.
var (
	// ErrNoInstances — кампании не назначено ни одного instance.
	ErrNoInstances = errors.New("campaign has no instances")

	// ErrInstanceUnavailable — ни один из назначенных instances не
	// подключён.
	ErrInstanceUnavailable = errors.New("no connected instance available")

	// ErrNoRecipients — после фильтрации не осталось получателей.
	ErrNoRecipients = errors.New("campaign has no recipients")

	// ErrNoMessages — кампании не задано ни одного сообщения.
	ErrNoMessages = errors.New("campaign has no messages")

	// ErrBadDelays — границы задержек некорректны.
	ErrBadDelays = errors.New("invalid delay bounds")

	// ErrNotActive — операция требует активной кампании.
	ErrNotActive = errors.New("campaign is not active")

	// ErrActive — операция требует остановленной кампании.
	ErrActive = errors.New("campaign is active")
)
