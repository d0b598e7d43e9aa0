package ua

import (
	"context"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/emiago/sipgo"
	"github.com/emiago/sipgo/sip"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/arzzra/conf_call/pkg/token"
)

// Проверяем, что SIPUserAgent реализует интерфейс UserAgent
var _ UserAgent = (*SIPUserAgent)(nil)

// SIPUserAgent реализует UserAgent поверх sipgo.
//
// Агент совмещает роли UAC (регистрация, исходящие приглашения) и UAS
// (входящие приглашения, BYE для активных плеч).
type SIPUserAgent struct {
	cfg Config

	ua     *sipgo.UserAgent
	client *sipgo.Client
	server *sipgo.Server

	contact sip.Uri

	mu            sync.RWMutex
	cred          *token.Credential
	registered    bool
	inviteHandler func(InviteTransaction)
	handles       map[string]*sipDialogHandle
	closed        bool
}

// NewSIPUserAgent создаёт SIP user agent по конфигурации.
// Прослушивание входящих запросов запускается отдельно через Serve.
func NewSIPUserAgent(cfg Config) (*SIPUserAgent, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid user agent config")
	}

	u := &SIPUserAgent{
		cfg:     cfg,
		cred:    cfg.Credential,
		handles: make(map[string]*sipDialogHandle),
	}

	host, portStr, _ := net.SplitHostPort(cfg.ListenAddr)
	port, _ := strconv.Atoi(portStr)
	u.contact = sip.Uri{Scheme: "sip", Host: host, Port: port}

	agent, err := sipgo.NewUA(
		sipgo.WithUserAgentHostname(host),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create user agent")
	}
	u.ua = agent

	client, err := sipgo.NewClient(agent,
		sipgo.WithClientHostname(host),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create client")
	}
	u.client = client

	server, err := sipgo.NewServer(agent)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create server")
	}
	u.server = server

	u.registerHandlers()

	return u, nil
}

// registerHandlers регистрирует обработчики входящих запросов сервера.
func (u *SIPUserAgent) registerHandlers() {
	u.server.OnInvite(u.handleInvite)
	u.server.OnAck(u.handleAck)
	u.server.OnBye(u.handleBye)
	u.server.OnCancel(u.handleCancel)
	u.server.OnOptions(u.handleOptions)
}

// Serve запускает прослушивание входящих запросов.
// Блокируется до отмены контекста или ошибки транспорта.
func (u *SIPUserAgent) Serve(ctx context.Context) error {
	slog.Debug("SIPUserAgent.Serve",
		slog.String("transport", u.cfg.Transport),
		slog.String("listen", u.cfg.ListenAddr))
	return u.server.ListenAndServe(ctx, u.cfg.Transport, u.cfg.ListenAddr)
}

// Close останавливает агента и освобождает транспортные ресурсы.
func (u *SIPUserAgent) Close() error {
	u.mu.Lock()
	if u.closed {
		u.mu.Unlock()
		return nil
	}
	u.closed = true
	u.mu.Unlock()

	return u.ua.Close()
}

// Register регистрирует агента на rendezvous сервисе.
// Ненулевой cred заменяет текущие учётные данные перед регистрацией.
func (u *SIPUserAgent) Register(ctx context.Context, cred *token.Credential) error {
	u.mu.Lock()
	if cred != nil {
		u.cred = cred
	}
	current := u.cred
	u.mu.Unlock()

	if current == nil {
		return errors.New("no credential to register with")
	}

	slog.Debug("SIPUserAgent.Register",
		slog.String("address", current.Address()),
		slog.String("registrar", u.cfg.Registrar))

	res, err := u.sendRegister(ctx, current.Address(), u.cfg.Expires)
	if err != nil {
		return errors.Wrap(err, "failed to send REGISTER")
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return errors.Errorf("registration rejected: %d %s", res.StatusCode, res.Reason)
	}

	u.mu.Lock()
	u.registered = true
	u.mu.Unlock()
	return nil
}

// Unregister снимает регистрацию (REGISTER с Expires: 0).
// Состояние регистрации сбрасывается только при подтверждении сервисом.
func (u *SIPUserAgent) Unregister(ctx context.Context) error {
	u.mu.RLock()
	current := u.cred
	u.mu.RUnlock()

	if current == nil {
		return errors.New("no credential to unregister")
	}

	slog.Debug("SIPUserAgent.Unregister", slog.String("address", current.Address()))

	res, err := u.sendRegister(ctx, current.Address(), 0)
	if err != nil {
		return errors.Wrap(err, "failed to send unREGISTER")
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return errors.Errorf("unregistration rejected: %d %s", res.StatusCode, res.Reason)
	}

	u.mu.Lock()
	u.registered = false
	u.mu.Unlock()
	return nil
}

// sendRegister отправляет REGISTER с указанным сроком регистрации.
func (u *SIPUserAgent) sendRegister(ctx context.Context, address string, expires int) (*sip.Response, error) {
	host, port := u.cfg.registrarHostPort()
	registrar := sip.Uri{Scheme: "sip", Host: host, Port: port}
	aor := sip.Uri{Scheme: "sip", User: address, Host: u.cfg.Domain}

	req := sip.NewRequest(sip.REGISTER, registrar)
	req.AppendHeader(&sip.FromHeader{
		Address: aor,
		Params:  sip.NewParams().Add("tag", newTag()),
	})
	req.AppendHeader(&sip.ToHeader{Address: aor})
	callID := sip.CallIDHeader(uuid.NewString())
	req.AppendHeader(&callID)
	req.AppendHeader(&sip.CSeqHeader{SeqNo: 1, MethodName: sip.REGISTER})
	req.AppendHeader(&sip.ContactHeader{Address: u.contact})
	req.AppendHeader(sip.NewHeader("Expires", strconv.Itoa(expires)))
	req.AppendHeader(sip.NewHeader("User-Agent", u.cfg.UserAgent))

	return u.client.Do(ctx, req)
}

// Registered возвращает true, пока агент зарегистрирован.
func (u *SIPUserAgent) Registered() bool {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.registered
}

// Credential возвращает текущие учётные данные агента.
func (u *SIPUserAgent) Credential() *token.Credential {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.cred
}

// OnInvite устанавливает обработчик входящих приглашений.
func (u *SIPUserAgent) OnInvite(handler func(InviteTransaction)) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.inviteHandler = handler
}

// Invite выполняет исходящее приглашение участника по адресу.
//
// Адрес может быть именем участника ("bob", домен берётся из конфигурации)
// или полным SIP URI ("sip:bob@example.com").
func (u *SIPUserAgent) Invite(ctx context.Context, address string) (DialogHandle, error) {
	u.mu.RLock()
	current := u.cred
	closed := u.closed
	u.mu.RUnlock()

	if closed {
		return nil, errors.New("user agent is closed")
	}
	if current == nil {
		return nil, errors.New("no credential to invite with")
	}

	target, err := u.resolveTarget(address)
	if err != nil {
		return nil, err
	}

	localURI := sip.Uri{Scheme: "sip", User: current.Address(), Host: u.cfg.Domain}
	localTag := newTag()
	callID := sip.CallIDHeader(uuid.NewString())

	req := sip.NewRequest(sip.INVITE, target)
	req.AppendHeader(&sip.FromHeader{
		Address: localURI,
		Params:  sip.NewParams().Add("tag", localTag),
	})
	req.AppendHeader(&sip.ToHeader{Address: target})
	req.AppendHeader(&callID)
	req.AppendHeader(&sip.CSeqHeader{SeqNo: 1, MethodName: sip.INVITE})
	req.AppendHeader(&sip.ContactHeader{Address: u.contact})
	req.AppendHeader(sip.NewHeader("User-Agent", u.cfg.UserAgent))

	slog.Debug("SIPUserAgent.Invite",
		slog.String("callID", string(callID)),
		slog.String("target", target.String()))

	tx, err := u.client.TransactionRequest(ctx, req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to send INVITE")
	}
	defer tx.Terminate()

	for {
		select {
		case res, ok := <-tx.Responses():
			if !ok {
				return nil, errors.New("invite transaction closed without final response")
			}
			if res.StatusCode < 200 {
				slog.Debug("SIPUserAgent.Invite provisional",
					slog.String("callID", string(callID)),
					slog.Int("status", int(res.StatusCode)))
				continue
			}
			if res.StatusCode >= 300 {
				return nil, errors.Errorf("invite rejected: %d %s", res.StatusCode, res.Reason)
			}
			return u.confirmInvite(req, res, callID, localURI, localTag, target)

		case <-ctx.Done():
			return nil, ctx.Err()

		case <-tx.Done():
			if err := tx.Err(); err != nil {
				return nil, errors.Wrap(err, "invite transaction failed")
			}
			return nil, errors.New("invite transaction terminated")
		}
	}
}

// confirmInvite подтверждает 2xx ответ (ACK) и создаёт плечо.
func (u *SIPUserAgent) confirmInvite(req *sip.Request, res *sip.Response, callID sip.CallIDHeader, localURI sip.Uri, localTag string, target sip.Uri) (DialogHandle, error) {
	ack := sip.NewAckRequest(req, res, nil)
	if err := u.client.WriteRequest(ack); err != nil {
		return nil, errors.Wrap(err, "failed to send ACK")
	}

	remoteTag, _ := res.To().Params.Get("tag")
	remoteTarget := target
	if contact := res.GetHeader("Contact"); contact != nil {
		if uri := uriFromHeaderValue(contact.Value()); uri != nil {
			remoteTarget = *uri
		}
	}

	h := &sipDialogHandle{
		agent:        u,
		callID:       string(callID),
		localURI:     localURI,
		remoteURI:    target,
		localTag:     localTag,
		remoteTag:    remoteTag,
		remoteTarget: remoteTarget,
		from:         localURI.User,
		to:           target.User,
		remote:       target.User,
	}
	h.cseq.Store(1)

	u.mu.Lock()
	u.handles[h.callID] = h
	u.mu.Unlock()

	slog.Debug("SIPUserAgent.Invite established",
		slog.String("callID", h.callID),
		slog.String("remote", h.remote))
	return h, nil
}

// resolveTarget строит URI вызываемого участника.
func (u *SIPUserAgent) resolveTarget(address string) (sip.Uri, error) {
	if address == "" {
		return sip.Uri{}, errors.New("empty invite address")
	}
	if strings.HasPrefix(address, "sip:") || strings.HasPrefix(address, "sips:") {
		var uri sip.Uri
		if err := sip.ParseUri(address, &uri); err != nil {
			return sip.Uri{}, errors.Wrapf(err, "failed to parse target URI %q", address)
		}
		return uri, nil
	}
	host, port := u.cfg.registrarHostPort()
	return sip.Uri{Scheme: "sip", User: address, Host: host, Port: port}, nil
}

// handleInvite обрабатывает входящий INVITE.
func (u *SIPUserAgent) handleInvite(req *sip.Request, tx sip.ServerTransaction) {
	u.mu.RLock()
	handler := u.inviteHandler
	u.mu.RUnlock()

	from := req.From().Address.User
	slog.Debug("SIPUserAgent.handleInvite",
		slog.String("callID", req.CallID().Value()),
		slog.String("from", from))

	if handler == nil {
		res := sip.NewResponseFromRequest(req, sip.StatusTemporarilyUnavailable, "Temporarily Unavailable", nil)
		if err := tx.Respond(res); err != nil {
			slog.Debug("SIPUserAgent.handleInvite respond failed",
				slog.String("error", err.Error()))
		}
		return
	}

	ringing := sip.NewResponseFromRequest(req, sip.StatusRinging, "Ringing", nil)
	if err := tx.Respond(ringing); err != nil {
		slog.Debug("SIPUserAgent.handleInvite ringing failed",
			slog.String("error", err.Error()))
	}

	itx := &sipInviteTransaction{agent: u, req: req, tx: tx, from: from}
	go handler(itx)
}

// handleAck обрабатывает ACK. Подтверждение не требует ответа.
func (u *SIPUserAgent) handleAck(req *sip.Request, tx sip.ServerTransaction) {
	slog.Debug("SIPUserAgent.handleAck", slog.String("callID", req.CallID().Value()))
}

// handleBye обрабатывает BYE: подтверждает запрос и завершает плечо.
func (u *SIPUserAgent) handleBye(req *sip.Request, tx sip.ServerTransaction) {
	callID := req.CallID().Value()
	slog.Debug("SIPUserAgent.handleBye", slog.String("callID", callID))

	res := sip.NewResponseFromRequest(req, sip.StatusOK, "OK", nil)
	if err := tx.Respond(res); err != nil {
		slog.Debug("SIPUserAgent.handleBye respond failed",
			slog.String("error", err.Error()))
	}

	u.mu.Lock()
	h := u.handles[callID]
	delete(u.handles, callID)
	u.mu.Unlock()

	if h != nil {
		h.remoteEnded()
	}
}

// handleCancel обрабатывает CANCEL входящего приглашения.
func (u *SIPUserAgent) handleCancel(req *sip.Request, tx sip.ServerTransaction) {
	slog.Debug("SIPUserAgent.handleCancel", slog.String("callID", req.CallID().Value()))
	res := sip.NewResponseFromRequest(req, sip.StatusOK, "OK", nil)
	if err := tx.Respond(res); err != nil {
		slog.Debug("SIPUserAgent.handleCancel respond failed",
			slog.String("error", err.Error()))
	}
}

// handleOptions отвечает на OPTIONS запросы (проверка доступности).
func (u *SIPUserAgent) handleOptions(req *sip.Request, tx sip.ServerTransaction) {
	res := sip.NewResponseFromRequest(req, sip.StatusOK, "OK", nil)
	if err := tx.Respond(res); err != nil {
		slog.Debug("SIPUserAgent.handleOptions respond failed",
			slog.String("error", err.Error()))
	}
}

// dropHandle убирает плечо из таблицы активных.
func (u *SIPUserAgent) dropHandle(callID string) {
	u.mu.Lock()
	delete(u.handles, callID)
	u.mu.Unlock()
}

// newTag генерирует тег для From/To заголовков.
func newTag() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
}

// uriFromHeaderValue извлекает URI из значения заголовка вида "<sip:...>".
func uriFromHeaderValue(value string) *sip.Uri {
	start := strings.IndexByte(value, '<')
	end := strings.IndexByte(value, '>')
	if start >= 0 && end > start {
		value = value[start+1 : end]
	}
	var uri sip.Uri
	if err := sip.ParseUri(value, &uri); err != nil {
		return nil
	}
	return &uri
}
