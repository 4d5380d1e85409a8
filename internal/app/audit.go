package app

import (
	"context"

	"raidbot/internal/eventbus"
	"raidbot/internal/notifier"
	logx "raidbot/pkg/logx"
)

// auditLoop writes raid lifecycle and delivery events to the log.
func auditLoop(ctx context.Context, bus eventbus.Bus, log logx.Logger) {
	events, unsub := bus.Subscribe(128)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			logEvent(log, e)
		}
	}
}

func logEvent(log logx.Logger, e eventbus.Event) {
	fields := []logx.Field{logx.String("type", e.Type), logx.Time("at", e.Time)}
	switch d := e.Data.(type) {
	case eventbus.RaidData:
		fields = append(fields, logx.String("event_id", d.EventID))
		if d.Name != "" {
			fields = append(fields, logx.String("name", d.Name))
		}
		if d.Participant != 0 {
			fields = append(fields, logx.Int64("participant", d.Participant))
		}
		if d.Role != "" {
			fields = append(fields, logx.String("role", d.Role))
		}
		if d.Label != "" {
			fields = append(fields, logx.String("label", d.Label))
		}
		log.Info("audit", fields...)
	case notifier.NotificationEvent:
		fields = append(fields, logx.String("channel", d.Channel), logx.Int64("chat_id", d.ChatID))
		if d.Error != "" {
			fields = append(fields, logx.String("error", d.Error))
			log.Warn("audit", fields...)
			return
		}
		// deliveries are frequent
		log.Debug("audit", fields...)
	default:
		log.Debug("event", fields...)
	}
}
