package media

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/rtp"
)

// TrackKind тип медиа дорожки.
type TrackKind string

const (
	TrackKindAudio TrackKind = "audio"
	TrackKindVideo TrackKind = "video"
)

// Track — одна медиа дорожка локального или удалённого потока.
//
// Track служит точкой стыковки с конвейером захвата: источник пишет RTP
// пакеты через WriteRTP, сигнальный слой использует атрибуты дорожки для
// построения SDP. Сама передача пакетов по сети — внешняя забота.
type Track struct {
	id          string
	kind        TrackKind
	codec       string
	payloadType uint8
	clockRate   uint32
	ssrc        uint32

	mu          sync.Mutex
	lastSeq     uint16
	packets     uint64
	payloadSize uint64
}

// NewTrack создаёт дорожку с уникальным идентификатором и случайным SSRC.
//
// Параметры:
//   - kind: тип дорожки (audio или video)
//   - codec: имя кодека для rtpmap (например, "PCMU", "VP8")
//   - payloadType: RTP payload type
//   - clockRate: частота в Гц (8000 для PCMU, 90000 для видео)
func NewTrack(kind TrackKind, codec string, payloadType uint8, clockRate uint32) *Track {
	return &Track{
		id:          uuid.NewString(),
		kind:        kind,
		codec:       codec,
		payloadType: payloadType,
		clockRate:   clockRate,
		ssrc:        randomSSRC(),
	}
}

func randomSSRC() uint32 {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand не возвращает ошибку на поддерживаемых платформах
		return uuid.New().ID()
	}
	return binary.BigEndian.Uint32(b[:])
}

// ID возвращает уникальный идентификатор дорожки.
func (t *Track) ID() string { return t.id }

// Kind возвращает тип дорожки.
func (t *Track) Kind() TrackKind { return t.kind }

// Codec возвращает имя кодека.
func (t *Track) Codec() string { return t.codec }

// PayloadType возвращает RTP payload type дорожки.
func (t *Track) PayloadType() uint8 { return t.payloadType }

// ClockRate возвращает частоту кодека в Гц.
func (t *Track) ClockRate() uint32 { return t.clockRate }

// SSRC возвращает идентификатор источника синхронизации.
func (t *Track) SSRC() uint32 { return t.ssrc }

// WriteRTP принимает RTP пакет от источника дорожки.
// Payload type пакета должен совпадать с типом дорожки.
func (t *Track) WriteRTP(p *rtp.Packet) error {
	if p == nil {
		return fmt.Errorf("nil RTP packet")
	}
	if p.PayloadType != t.payloadType {
		return fmt.Errorf("payload type mismatch: packet %d, track %d", p.PayloadType, t.payloadType)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastSeq = p.SequenceNumber
	t.packets++
	t.payloadSize += uint64(len(p.Payload))
	return nil
}

// Stats возвращает счётчики принятых пакетов.
func (t *Track) Stats() (packets uint64, payloadBytes uint64, lastSeq uint16) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.packets, t.payloadSize, t.lastSeq
}
