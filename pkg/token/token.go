// Package token реализует разбор capability токенов для идентификации
// локальной точки подключения.
//
// Токен представляет собой JWT строку, выданную сервисом авторизации.
// Пакет извлекает из токена стабильный адрес участника (clientName из
// incoming scope) и идентификатор аккаунта. Проверка подписи не выполняется:
// токен валидирует rendezvous сервис, клиент использует его как непрозрачную
// строку.
package token

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Имена scope, которые могут присутствовать в capability токене.
const (
	scopeIncoming = "scope:client:incoming"
	scopeOutgoing = "scope:client:outgoing"
)

// Credential содержит идентификацию локальной точки подключения,
// извлечённую из capability токена.
type Credential struct {
	address    string
	accountSID string
	raw        string
}

// Parse разбирает capability токен из строки.
//
// Из claims извлекаются:
//   - адрес участника: параметр clientName из "scope:client:incoming"
//   - идентификатор аккаунта: claim "iss"
func Parse(raw string) (*Credential, error) {
	if raw == "" {
		return nil, fmt.Errorf("empty token string")
	}

	parser := jwt.NewParser()
	tok, _, err := parser.ParseUnverified(raw, jwt.MapClaims{})
	if err != nil {
		return nil, fmt.Errorf("failed to parse capability token: %w", err)
	}

	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("unexpected claims type in capability token")
	}

	cred := &Credential{raw: raw}

	if iss, ok := claims["iss"].(string); ok {
		cred.accountSID = iss
	}

	scope, _ := claims["scope"].(string)
	address, err := incomingClientName(scope)
	if err != nil {
		return nil, err
	}
	cred.address = address

	return cred, nil
}

// incomingClientName извлекает clientName из incoming scope.
//
// Формат scope claim: список scope через пробел, каждый вида
// "scope:client:incoming?clientName=alice".
func incomingClientName(scope string) (string, error) {
	for _, s := range strings.Fields(scope) {
		name, query, found := strings.Cut(s, "?")
		if name != scopeIncoming {
			continue
		}
		if !found {
			return "", fmt.Errorf("incoming scope has no parameters")
		}
		params, err := url.ParseQuery(query)
		if err != nil {
			return "", fmt.Errorf("failed to parse incoming scope parameters: %w", err)
		}
		clientName := params.Get("clientName")
		if clientName == "" {
			return "", fmt.Errorf("incoming scope has no clientName parameter")
		}
		return clientName, nil
	}
	return "", fmt.Errorf("token has no %q scope", scopeIncoming)
}

// NewCredential создаёт Credential напрямую, без разбора токена.
// Используется в тестах и при локальной конфигурации без сервиса авторизации.
func NewCredential(address, accountSID string) *Credential {
	return &Credential{address: address, accountSID: accountSID}
}

// Address возвращает стабильный адрес участника.
func (c *Credential) Address() string {
	return c.address
}

// AccountSID возвращает идентификатор аккаунта.
func (c *Credential) AccountSID() string {
	return c.accountSID
}

// Raw возвращает исходную строку токена.
// Пустая строка, если Credential создан через NewCredential.
func (c *Credential) Raw() string {
	return c.raw
}
