// Package media реализует поток медиа дорожек — коллаборатор сигнального
// ядра со стороны захвата и воспроизведения.
//
// Stream хранит набор дорожек и уведомляет подписчиков об их добавлении и
// удалении. Диалоги подписываются на изменения локального потока, чтобы
// запускать пересогласование сессии. Транспорт медиа (ICE, SRTP) находится
// за пределами пакета.
package media

import (
	"log/slog"
	"sync"
)

// TrackHandler вызывается при добавлении или удалении дорожки.
// Обработчики вызываются последовательно, вне блокировки потока.
type TrackHandler func(*Track)

// Stream — изменяемый набор медиа дорожек с уведомлениями об изменениях.
type Stream struct {
	mu      sync.Mutex
	tracks  map[string]*Track
	order   []string
	nextSub int
	added   map[int]TrackHandler
	removed map[int]TrackHandler

	fpOnce sync.Once
	fp     string
	fpErr  error
}

// NewStream создаёт пустой поток.
func NewStream() *Stream {
	return &Stream{
		tracks:  make(map[string]*Track),
		added:   make(map[int]TrackHandler),
		removed: make(map[int]TrackHandler),
	}
}

// AddTrack добавляет дорожку в поток и уведомляет подписчиков.
// Повторное добавление той же дорожки игнорируется.
func (s *Stream) AddTrack(t *Track) {
	if t == nil {
		return
	}

	s.mu.Lock()
	if _, ok := s.tracks[t.id]; ok {
		s.mu.Unlock()
		return
	}
	s.tracks[t.id] = t
	s.order = append(s.order, t.id)
	handlers := snapshotHandlers(s.added)
	s.mu.Unlock()

	slog.Debug("Stream.AddTrack",
		slog.String("trackID", t.id),
		slog.String("kind", string(t.kind)))

	for _, h := range handlers {
		h(t)
	}
}

// RemoveTrack удаляет дорожку по идентификатору и уведомляет подписчиков.
// Удаление неизвестной дорожки игнорируется.
func (s *Stream) RemoveTrack(id string) {
	s.mu.Lock()
	t, ok := s.tracks[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(s.tracks, id)
	for i, tid := range s.order {
		if tid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	handlers := snapshotHandlers(s.removed)
	s.mu.Unlock()

	slog.Debug("Stream.RemoveTrack", slog.String("trackID", id))

	for _, h := range handlers {
		h(t)
	}
}

// Tracks возвращает снимок дорожек потока в порядке добавления.
func (s *Stream) Tracks() []*Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Track, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.tracks[id])
	}
	return out
}

// OnTrackAdded подписывает обработчик на добавление дорожек.
// Возвращает идентификатор подписки для Unsubscribe.
func (s *Stream) OnTrackAdded(h TrackHandler) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSub++
	s.added[s.nextSub] = h
	return s.nextSub
}

// OnTrackRemoved подписывает обработчик на удаление дорожек.
// Возвращает идентификатор подписки для Unsubscribe.
func (s *Stream) OnTrackRemoved(h TrackHandler) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSub++
	s.removed[s.nextSub] = h
	return s.nextSub
}

// Unsubscribe снимает подписку по идентификатору.
// Неизвестный идентификатор игнорируется.
func (s *Stream) Unsubscribe(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.added, id)
	delete(s.removed, id)
}

func snapshotHandlers(m map[int]TrackHandler) []TrackHandler {
	out := make([]TrackHandler, 0, len(m))
	for _, h := range m {
		out = append(out, h)
	}
	return out
}
