package client

import (
	"context"
	"errors"
	"time"
)

// Heartbeat renews the lease on documentID every interval until ctx is
// cancelled, then releases it best-effort. When the server reports the lease
// as expired or held by someone else, onLost is called once and the heartbeat
// stops. Transient failures are logged and retried on the next tick; the lease
// TTL leaves room for at least one missed renewal.
func (c *Client) Heartbeat(ctx context.Context, documentID string, interval time.Duration, onLost func(error)) error {
	if interval <= 0 {
		return errors.New("heartbeat interval must be positive")
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.releaseOnExit(ctx, documentID)
			return nil
		case <-ticker.C:
		}

		_, err := c.RenewLease(ctx, documentID)
		switch {
		case err == nil:
		case ctx.Err() != nil:
			c.releaseOnExit(ctx, documentID)
			return nil
		case errors.Is(err, ErrLeaseExpired), errors.Is(err, ErrLeaseUnavailable):
			if onLost != nil {
				onLost(err)
			}
			return err
		default:
			c.logger.Warn("lease renewal failed",
				"event", "review_client_renew_failed",
				"module", "client",
				"layer", "sdk",
				"document_id", documentID,
				"error", err.Error(),
			)
		}
	}
}

func (c *Client) releaseOnExit(ctx context.Context, documentID string) {
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if _, err := c.ReleaseLease(releaseCtx, documentID); err != nil {
		c.logger.Warn("lease release on exit failed",
			"event", "review_client_release_failed",
			"module", "client",
			"layer", "sdk",
			"document_id", documentID,
			"error", err.Error(),
		)
	}
}
