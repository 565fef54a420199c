package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"swipechat/models"
)

// HandleEvent decodes one inbound event and applies it. Malformed payloads
// are rejected with errs.ErrInvalidPayload and leave state untouched.
func (e *Engine) HandleEvent(ctx context.Context, ev models.Event) error {
	switch ev.Name {
	case models.EventNewMessage:
		var p models.MessagePayload
		if err := ev.Decode(&p); err != nil {
			return err
		}
		e.ApplyRemoteMessage(p.Message)
	case models.EventMessageUpdated:
		var p models.MessagePayload
		if err := ev.Decode(&p); err != nil {
			return err
		}
		e.ApplyMessageUpdated(p.Message)
	case models.EventTyping, models.EventStopTyping:
		var p models.TypingPayload
		if err := ev.Decode(&p); err != nil {
			return err
		}
		if ev.Name == models.EventTyping {
			e.ApplyTypingStart(p.ConversationID, p.UserID, p.UserName)
		} else {
			e.ApplyTypingStop(p.ConversationID, p.UserID, p.UserName)
		}
	case models.EventUserOnline, models.EventUserOffline:
		var p models.PresencePayload
		if err := ev.Decode(&p); err != nil {
			return err
		}
		status, err := models.StatusForEvent(ev.Name)
		if err != nil {
			return err
		}
		e.ApplyPresence(p.UserID, status)
	case models.EventMessageSeen:
		var p models.ReceiptPayload
		if err := ev.Decode(&p); err != nil {
			return err
		}
		e.ApplySeen(p)
	case models.EventMessageDelivered:
		var p models.ReceiptPayload
		if err := ev.Decode(&p); err != nil {
			return err
		}
		e.ApplyDelivered(p)
	case models.EventLikedYou:
		var p models.LikedPayload
		if err := ev.Decode(&p); err != nil {
			return err
		}
		e.ApplyLiked(p)
	case models.EventMatchFound:
		var p models.MatchPayload
		if err := ev.Decode(&p); err != nil {
			return err
		}
		e.ApplyMatch(p)
	case models.EventReconnected:
		if err := e.Resync(ctx); err != nil {
			return fmt.Errorf("resync after reconnect: %w", err)
		}
	default:
		e.logger.Debug("unhandled event", zap.String("event", ev.Name))
	}
	return nil
}

// Run applies events in arrival order until ctx is done or events closes.
// Per-event failures are logged and do not stop the loop.
func (e *Engine) Run(ctx context.Context, events <-chan models.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := e.HandleEvent(ctx, ev); err != nil {
				e.logger.Warn("event rejected", zap.String("event", ev.Name), zap.Error(err))
			}
		}
	}
}
