package notifier

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"eventpush/internal/publish"
	"eventpush/internal/storage"
	logx "eventpush/pkg/logx"
)

// PushFailed alerts about a failed push. Repeats for the same event and reason
// collapse into one alert per dedup window.
func (s *Service) PushFailed(ctx context.Context, ev storage.Event, res publish.Result) {
	msg := Message{
		Key:   "push_failed:" + strconv.FormatInt(ev.ID, 10) + ":" + string(res.Reason),
		Level: LevelAlert,
		Text: fmt.Sprintf("Push failed for event #%d %q (%s)\n%s",
			ev.ID, ev.Name, ev.PublishDatetime, res.Detail),
	}
	if res.Reason == publish.ReasonNotConfigured {
		msg.Key = "push_failed:not_configured"
		msg.Level = LevelWarn
		msg.Text = "WordPress is not configured; due events are waiting"
	}
	s.notify(ctx, msg)
}

// EventSent alerts about a successful push when NotifySent is on.
func (s *Service) EventSent(ctx context.Context, ev storage.Event) {
	s.mu.Lock()
	on := s.cfg.NotifySent
	s.mu.Unlock()
	if !on {
		return
	}
	s.notify(ctx, Message{
		Key:   "event_sent:" + strconv.FormatInt(ev.ID, 10),
		Level: LevelInfo,
		Text:  fmt.Sprintf("Published event #%d %q: %s", ev.ID, ev.Name, ev.DisplayText),
	})
}

func (s *Service) notify(ctx context.Context, m Message) {
	err := s.Notify(ctx, m)
	switch {
	case err == nil, errors.Is(err, ErrDisabled), errors.Is(err, ErrStopped):
	default:
		s.log.Debug("alert not queued", logx.String("key", m.Key), logx.Err(err))
	}
}
