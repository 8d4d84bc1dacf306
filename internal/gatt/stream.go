package gatt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/gattstream/internal/device"
)

// Stream runs the notification loop: wait up to poll for one notification,
// hand it to the dispatcher, then check ctx. It returns ctx.Err() on
// cancellation and the link error when the link fails. The session stays in
// Streaming; the caller disconnects.
func (s *Session) Stream(ctx context.Context, poll time.Duration) error {
	if poll <= 0 {
		poll = DefaultPollInterval
	}

	s.mu.Lock()
	if err := s.expect(StateSubscribed, "stream"); err != nil {
		s.mu.Unlock()
		return err
	}
	link := s.link
	s.setState(StateStreaming)
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"address":  link.Address(),
		"bindings": s.dispatcher.Len(),
		"poll":     poll,
	}).Info("Streaming notifications")

	for {
		n, ok, err := link.WaitForEvent(poll)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			s.logger.WithField("error", err).Error("Notification wait failed")
			return s.linkError(err)
		}
		if ok {
			s.dispatcher.OnNotification(n.Handle, n.Payload)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

// linkError marks any wait failure as a lost link.
func (s *Session) linkError(err error) error {
	if errors.Is(err, device.ErrNotConnected) {
		return err
	}
	return fmt.Errorf("%w: %w", device.ErrNotConnected, err)
}
