// Package ua определяет контракт user agent — сигнального коллаборатора
// ядра вызовов — и его реализацию поверх SIP (sipgo).
//
// Ядро (pkg/call) потребляет только интерфейсы пакета: регистрацию на
// rendezvous сервисе, исходящие приглашения и поток входящих приглашений.
// Детали протокола (кодирование сообщений, транзакции, транспорт) остаются
// внутри реализации.
package ua

import (
	"context"

	"github.com/arzzra/conf_call/pkg/token"
)

// UserAgent — набор возможностей сигнального агента.
//
// Registered — чистая проекция состояния регистрации: значение не
// кэшируется потребителями и запрашивается по требованию.
type UserAgent interface {
	// Register регистрирует агента на rendezvous сервисе.
	// Ненулевой cred заменяет текущие учётные данные перед регистрацией.
	Register(ctx context.Context, cred *token.Credential) error

	// Unregister снимает регистрацию. Ошибка не меняет состояние
	// регистрации, если сервис не подтвердил снятие.
	Unregister(ctx context.Context) error

	// Invite выполняет исходящее приглашение участника по адресу.
	// Блокируется до окончательного ответа удалённой стороны и
	// возвращает установленное вызывное плечо.
	Invite(ctx context.Context, address string) (DialogHandle, error)

	// OnInvite устанавливает обработчик входящих приглашений.
	OnInvite(handler func(InviteTransaction))

	// Registered возвращает true, пока агент зарегистрирован.
	Registered() bool

	// Credential возвращает текущие учётные данные агента.
	Credential() *token.Credential
}

// DialogHandle — установленное вызывное плечо на сигнальном уровне.
//
// Ядро оборачивает DialogHandle в Dialog; завершение и пересогласование
// сессии проходят через этот интерфейс.
type DialogHandle interface {
	// CallID возвращает идентификатор сессии плеча.
	CallID() string

	// From возвращает адрес вызывающей стороны.
	From() string

	// To возвращает адрес вызываемой стороны.
	To() string

	// Remote возвращает адрес удалённого участника плеча.
	Remote() string

	// Hangup завершает плечо со стороны локального агента.
	Hangup(ctx context.Context) error

	// Reinvite запускает пересогласование сессии с новым SDP предложением.
	Reinvite(ctx context.Context, offer []byte) error

	// OnHangup устанавливает обработчик завершения плеча удалённой стороной.
	OnHangup(handler func())
}

// InviteTransaction — входящее приглашение, ожидающее решения приложения.
type InviteTransaction interface {
	// From возвращает адрес пригласившего участника.
	From() string

	// Accept принимает приглашение и возвращает установленное плечо.
	Accept(ctx context.Context) (DialogHandle, error)

	// Reject отклоняет приглашение с указанным кодом и причиной.
	Reject(ctx context.Context, statusCode int, reason string) error
}
