package devapi

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/grifitth12/absen-siswa/internal/metrics"
)

// StartExpiryJob deactivates expired attendance codes every interval until
// ctx is done.
func StartExpiryJob(ctx context.Context, interval time.Duration, store *Store, log zerolog.Logger) {
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				closed := store.CloseExpired(time.Now().UTC())
				if closed > 0 {
					metrics.ExpiredCodes(closed)
					log.Info().Int("closed", closed).Msg("expiry job closed attendance codes")
				}
			}
		}
	}()
}
