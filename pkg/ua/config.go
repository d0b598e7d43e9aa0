package ua

import (
	"fmt"
	"net"
	"strconv"

	"github.com/arzzra/conf_call/pkg/token"
)

// Config содержит конфигурацию SIP user agent.
type Config struct {
	// Registrar — адрес rendezvous сервиса в формате host:port.
	Registrar string

	// Domain — SIP домен для адресов участников.
	// По умолчанию хост из Registrar.
	Domain string

	// Transport — транспорт сигнализации: "udp" или "tcp".
	// По умолчанию "udp".
	Transport string

	// ListenAddr — локальный адрес для входящих запросов.
	// По умолчанию "0.0.0.0:5060".
	ListenAddr string

	// UserAgent — значение заголовка User-Agent.
	UserAgent string

	// Expires — срок регистрации в секундах. По умолчанию 3600.
	Expires int

	// Credential — учётные данные локального участника.
	// Могут быть заменены позже через Register.
	Credential *token.Credential
}

// Validate проверяет конфигурацию и заполняет значения по умолчанию.
func (c *Config) Validate() error {
	if c.Registrar == "" {
		return fmt.Errorf("registrar address is required")
	}
	host, port, err := net.SplitHostPort(c.Registrar)
	if err != nil {
		return fmt.Errorf("invalid registrar address %q: %w", c.Registrar, err)
	}
	if _, err := strconv.Atoi(port); err != nil {
		return fmt.Errorf("invalid registrar port %q: %w", port, err)
	}

	if c.Domain == "" {
		c.Domain = host
	}
	switch c.Transport {
	case "":
		c.Transport = "udp"
	case "udp", "tcp":
	default:
		return fmt.Errorf("unsupported transport %q", c.Transport)
	}
	if c.ListenAddr == "" {
		c.ListenAddr = "0.0.0.0:5060"
	}
	if _, _, err := net.SplitHostPort(c.ListenAddr); err != nil {
		return fmt.Errorf("invalid listen address %q: %w", c.ListenAddr, err)
	}
	if c.UserAgent == "" {
		c.UserAgent = "conf_call/1.0"
	}
	if c.Expires <= 0 {
		c.Expires = 3600
	}
	return nil
}

// registrarHostPort возвращает хост и порт rendezvous сервиса.
// Вызывается после Validate.
func (c *Config) registrarHostPort() (string, int) {
	host, portStr, _ := net.SplitHostPort(c.Registrar)
	port, _ := strconv.Atoi(portStr)
	return host, port
}
