package db

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
)

// Listen signals wake on every incident write until ctx is done. On SQLite
// there is no notification channel and Listen returns immediately; callers
// fall back to polling.
func (db *DatabaseConnection) Listen(ctx context.Context, wake chan<- struct{}) {
	if db.driver != DriverPostgres || db.pool == nil {
		return
	}
	connConf := db.pool.Config().ConnConfig.Copy()

	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := pgx.ConnectConfig(ctx, connConf)
		if err != nil {
			slog.Error("listen connect failed", "channel", NotifyChannel, "error", err)
			sleepCtx(ctx, 2*time.Second)
			continue
		}

		if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{NotifyChannel}.Sanitize()); err != nil {
			slog.Error("LISTEN failed", "channel", NotifyChannel, "error", err)
			_ = conn.Close(context.Background())
			sleepCtx(ctx, 2*time.Second)
			continue
		}

		for {
			if ctx.Err() != nil {
				_ = conn.Close(context.Background())
				return
			}

			if _, err := conn.WaitForNotification(ctx); err != nil {
				if ctx.Err() == nil {
					slog.Error("wait for notification failed", "channel", NotifyChannel, "error", err)
				}
				_ = conn.Close(context.Background())
				break
			}

			select {
			case wake <- struct{}{}:
			default:
			}
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
