package call

import "github.com/pkg/errors"

// Ошибки использования API. Сравниваются через errors.Is; сетевые ошибки
// коллабораторов оборачиваются отдельно через errors.Wrap.
var (
	// ErrDialogEnded возвращается при попытке завершить уже завершённый
	// диалог. Флаг ended монотонный, повторное завершение — ошибка
	// использования, а не отказ сети.
	ErrDialogEnded = errors.New("dialog already ended")

	// ErrNotImplemented возвращают заглушки MuteAudio и PauseVideo.
	ErrNotImplemented = errors.New("not implemented")

	// ErrNoAddresses возвращается из Invite без адресов участников.
	ErrNoAddresses = errors.New("no addresses to invite")

	// ErrInviteDecided возвращается при повторном Accept или Reject
	// одного и того же приглашения.
	ErrInviteDecided = errors.New("invite already decided")

	// ErrInviteRejected разрешает результат отклонённого приглашения.
	ErrInviteRejected = errors.New("invite rejected")
)
