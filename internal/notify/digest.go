package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// DigestFunc sends the digest for day and reports how many staff members
// received it.
type DigestFunc func(ctx context.Context, day time.Time) (int, error)

// ParseClock parses an "HH:MM" time of day.
func ParseClock(s string) (hour, minute int, err error) {
	if _, err := fmt.Sscanf(s, "%d:%d", &hour, &minute); err != nil {
		return 0, 0, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid time of day %q", s)
	}
	return hour, minute, nil
}

// StartDigest runs fn every day at the given local time until ctx is done.
func StartDigest(ctx context.Context, at string, fn DigestFunc, logger *zerolog.Logger) error {
	hour, minute, err := ParseClock(at)
	if err != nil {
		return err
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	go func() {
		timer := time.NewTimer(untilNext(time.Now(), hour, minute))
		defer timer.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case now := <-timer.C:
				sent, err := fn(ctx, now)
				if err != nil {
					logger.Error().Err(err).Msg("daily digest error")
				} else {
					logger.Info().Int("recipients", sent).Msg("daily digest sent")
				}
				timer.Reset(untilNext(time.Now(), hour, minute))
			}
		}
	}()
	return nil
}

func untilNext(now time.Time, hour, minute int) time.Duration {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next.Sub(now)
}
