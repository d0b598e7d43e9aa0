// Package sound реализует воспроизведение сигналов хода вызова
// (исходящий гудок, входящий звонок).
//
// Само воспроизведение звука выполняет внешнее устройство через интерфейс
// Device. По умолчанию используется тихое устройство: библиотека сигнализации
// не тянет за собой аудио зависимости, приложение подключает реальный вывод
// при необходимости.
package sound

import (
	"log/slog"
	"sync"
)

// Device воспроизводит именованный сигнал. Start вызывается при начале
// воспроизведения, Stop — при остановке. Реализация должна быть
// потокобезопасной.
type Device interface {
	Start(name string) error
	Stop(name string)
}

// silentDevice — устройство по умолчанию, ничего не воспроизводит.
type silentDevice struct{}

func (silentDevice) Start(string) error { return nil }
func (silentDevice) Stop(string)        {}

// SilentDevice возвращает устройство, которое ничего не воспроизводит.
func SilentDevice() Device { return silentDevice{} }

// Cue — один сигнал хода вызова с идемпотентными Play/Stop.
type Cue struct {
	name   string
	device Device

	mu      sync.Mutex
	playing bool
	plays   int
	stops   int
}

// NewCue создаёт сигнал с указанным именем. Если device равен nil,
// используется тихое устройство.
func NewCue(name string, device Device) *Cue {
	if device == nil {
		device = silentDevice{}
	}
	return &Cue{name: name, device: device}
}

// Play начинает воспроизведение. Повторный вызов во время воспроизведения
// игнорируется. Ошибка устройства не прерывает вызов: сигнал — best-effort.
func (c *Cue) Play() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.playing {
		return
	}
	c.playing = true
	c.plays++

	if err := c.device.Start(c.name); err != nil {
		slog.Debug("Cue.Play device failed",
			slog.String("cue", c.name),
			slog.String("error", err.Error()))
	}
}

// Stop останавливает воспроизведение. Идемпотентен: повторный вызов после
// остановки не трогает устройство.
func (c *Cue) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.playing {
		return
	}
	c.playing = false
	c.stops++

	c.device.Stop(c.name)
}

// Playing возвращает true, пока сигнал воспроизводится.
func (c *Cue) Playing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playing
}

// Plays возвращает количество запусков воспроизведения.
func (c *Cue) Plays() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.plays
}

// Stops возвращает количество фактических остановок устройства.
func (c *Cue) Stops() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stops
}
