package media

import (
	"crypto"
	"crypto/x509"
	"fmt"
	"strconv"
	"time"

	"github.com/pion/dtls/v2/pkg/crypto/fingerprint"
	"github.com/pion/dtls/v2/pkg/crypto/selfsign"
	"github.com/pion/sdp/v3"
	"github.com/pkg/errors"
)

// Fingerprint возвращает отпечаток DTLS сертификата потока в формате
// значения SDP атрибута fingerprint ("sha-256 AA:BB:...").
//
// Сертификат самоподписанный и генерируется лениво при первом обращении,
// один на поток.
func (s *Stream) Fingerprint() (string, error) {
	s.fpOnce.Do(func() {
		cert, err := selfsign.GenerateSelfSigned()
		if err != nil {
			s.fpErr = errors.Wrap(err, "failed to generate DTLS certificate")
			return
		}
		leaf, err := x509.ParseCertificate(cert.Certificate[0])
		if err != nil {
			s.fpErr = errors.Wrap(err, "failed to parse DTLS certificate")
			return
		}
		fp, err := fingerprint.Fingerprint(leaf, crypto.SHA256)
		if err != nil {
			s.fpErr = errors.Wrap(err, "failed to fingerprint DTLS certificate")
			return
		}
		s.fp = "sha-256 " + fp
	})
	return s.fp, s.fpErr
}

// BuildOffer строит SDP предложение из текущего набора дорожек потока.
//
// Предложение содержит по одной медиа секции на тип дорожки (audio, video)
// со всеми payload типами этого типа, rtpmap атрибутами и отпечатком DTLS
// сертификата. Адреса в предложении нулевые: сбор кандидатов выполняет
// транспортный слой.
func BuildOffer(s *Stream, sessionName string) ([]byte, error) {
	if s == nil {
		return nil, fmt.Errorf("nil stream")
	}

	fp, err := s.Fingerprint()
	if err != nil {
		return nil, err
	}

	now := time.Now().Unix()
	desc := &sdp.SessionDescription{
		Version: 0,
		Origin: sdp.Origin{
			Username:       "-",
			SessionID:      uint64(now),
			SessionVersion: uint64(now),
			NetworkType:    "IN",
			AddressType:    "IP4",
			UnicastAddress: "0.0.0.0",
		},
		SessionName: sdp.SessionName(sessionName),
		ConnectionInformation: &sdp.ConnectionInformation{
			NetworkType: "IN",
			AddressType: "IP4",
			Address:     &sdp.Address{Address: "0.0.0.0"},
		},
		TimeDescriptions: []sdp.TimeDescription{
			{Timing: sdp.Timing{StartTime: 0, StopTime: 0}},
		},
		Attributes: []sdp.Attribute{
			{Key: "fingerprint", Value: fp},
		},
	}

	for _, kind := range []TrackKind{TrackKindAudio, TrackKindVideo} {
		md := mediaSection(s, kind)
		if md != nil {
			desc.MediaDescriptions = append(desc.MediaDescriptions, md)
		}
	}

	if len(desc.MediaDescriptions) == 0 {
		return nil, fmt.Errorf("stream has no tracks to offer")
	}

	return desc.Marshal()
}

// mediaSection строит m= секцию для дорожек указанного типа.
// Возвращает nil, если дорожек этого типа нет.
func mediaSection(s *Stream, kind TrackKind) *sdp.MediaDescription {
	var formats []string
	var attrs []sdp.Attribute

	seen := make(map[uint8]bool)
	for _, t := range s.Tracks() {
		if t.Kind() != kind {
			continue
		}
		pt := t.PayloadType()
		if !seen[pt] {
			seen[pt] = true
			formats = append(formats, strconv.Itoa(int(pt)))
			attrs = append(attrs, sdp.Attribute{
				Key:   "rtpmap",
				Value: fmt.Sprintf("%d %s/%d", pt, t.Codec(), t.ClockRate()),
			})
		}
		attrs = append(attrs, sdp.Attribute{
			Key:   "ssrc",
			Value: fmt.Sprintf("%d cname:%s", t.SSRC(), t.ID()),
		})
	}

	if len(formats) == 0 {
		return nil
	}

	attrs = append(attrs, sdp.Attribute{Key: "sendrecv"})

	return &sdp.MediaDescription{
		MediaName: sdp.MediaName{
			Media:   string(kind),
			Port:    sdp.RangedPort{Value: 9},
			Protos:  []string{"UDP", "TLS", "RTP", "SAVPF"},
			Formats: formats,
		},
		Attributes: attrs,
	}
}
