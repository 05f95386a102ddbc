// Package feed_api streams the live incident feed to dashboards.
package feed_api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/starfederation/datastar-go/datastar"
	"thirdcoast.systems/scanwatch/cmd/web/handlers/common"
	"thirdcoast.systems/scanwatch/cmd/web/internal/feedhub"
	"thirdcoast.systems/scanwatch/internal/feed"
)

const keepAliveInterval = 10 * time.Second

type Resyncer interface {
	Resync(ctx context.Context, bucket string, since int64) (feed.Batch, error)
}

type Hub interface {
	Subscribe(client string) (*feedhub.Subscription, func(), bool)
}

// clientSignals is what a reconnecting dashboard tells us about the rows it
// already holds.
type clientSignals struct {
	FeedBucket    string `json:"feedBucket"`
	FeedWatermark int64  `json:"feedWatermark"`
}

// stream tracks what one viewer has been sent.
type stream struct {
	bucket    string
	watermark int64
}

// apply turns a batch into the signal patches for this viewer. Rows are
// keyed by id, so delivering a row twice is harmless on the client.
func (s *stream) apply(b feed.Batch) []map[string]any {
	var out []map[string]any
	if b.Bucket != "" && b.Bucket != s.bucket {
		out = append(out, map[string]any{
			"feedBucket":    b.Bucket,
			"feedWatermark": 0,
			"incidents":     nil,
		})
		s.bucket, s.watermark = b.Bucket, 0
	}

	switch b.Kind {
	case feed.KindHeartbeat:
		out = append(out, map[string]any{"feedHeartbeat": b.At.UnixMilli()})
		return out
	case feed.KindIncidents, feed.KindResync:
		rows := make(map[string]feed.View, len(b.Incidents))
		for _, v := range b.Incidents {
			if b.Kind == feed.KindIncidents && v.ID <= s.watermark {
				continue
			}
			rows[strconv.FormatInt(v.ID, 10)] = v
		}
		if b.Watermark > s.watermark {
			s.watermark = b.Watermark
		}
		if b.Kind == feed.KindResync {
			out = append(out, map[string]any{"feedBucket": s.bucket, "feedWatermark": s.watermark, "incidents": rows})
			return out
		}
		if len(rows) > 0 {
			out = append(out, map[string]any{"feedWatermark": s.watermark, "incidents": rows})
		}
	case feed.KindUpdates:
		if len(b.Incidents) == 0 {
			return out
		}
		rows := make(map[string]feed.View, len(b.Incidents))
		for _, v := range b.Incidents {
			rows[strconv.FormatInt(v.ID, 10)] = v
		}
		out = append(out, map[string]any{"incidents": rows})
	}
	return out
}

// catchUp resyncs the current day from since. If the viewer still holds an
// earlier day, the current one is sent from the beginning.
func (s *stream) catchUp(ctx context.Context, r Resyncer, since int64) (feed.Batch, error) {
	b, err := r.Resync(ctx, "", since)
	if err != nil {
		return b, err
	}
	if since != 0 && s.bucket != "" && b.Bucket != s.bucket {
		return r.Resync(ctx, b.Bucket, 0)
	}
	return b, nil
}

// drain discards whatever is still buffered on c.
func drain(c <-chan feed.Batch) int {
	n := 0
	for {
		select {
		case <-c:
			n++
		default:
			return n
		}
	}
}

// receive turns the next published batch into patches. Once the hub has
// dropped batches for this viewer, the buffered ones are stale and any of
// the dropped ones may have carried field updates below the watermark, so
// the whole day is resent instead. The client merges rows by id.
func (s *stream) receive(ctx context.Context, r Resyncer, sub *feedhub.Subscription, b feed.Batch) ([]map[string]any, error) {
	if !sub.TakeLagged() {
		return s.apply(b), nil
	}
	stale := drain(sub.C) + 1
	slog.Warn("feed subscriber lagged, resyncing day", "subscriber", sub.ID, "discarded", stale, "watermark", s.watermark)
	catch, err := s.catchUp(ctx, r, 0)
	if err != nil {
		return nil, err
	}
	return s.apply(catch), nil
}

func patch(sse *datastar.ServerSentEventGenerator, patches []map[string]any) error {
	for _, p := range patches {
		raw, err := json.Marshal(p)
		if err != nil {
			return err
		}
		if err := sse.PatchSignals(raw); err != nil {
			return err
		}
	}
	return nil
}

// HandleStream serves the live feed over SSE: a snapshot from the viewer's
// watermark, then every batch the poller publishes.
func HandleStream(hub Hub, resync Resyncer) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()

		var signals clientSignals
		_ = datastar.ReadSignals(c.Request(), &signals)
		since, err := common.OptionalInt(c, "since", signals.FeedWatermark)
		if err != nil {
			return err
		}
		bucket, err := common.OptionalBucket(c, "bucket", signals.FeedBucket)
		if err != nil {
			return err
		}

		// Subscribe before the snapshot so nothing published in between is lost.
		sub, unsubscribe, ok := hub.Subscribe(c.RealIP())
		if !ok {
			return c.String(http.StatusTooManyRequests, "too many open feed streams")
		}
		defer unsubscribe()

		resp := c.Response()
		flusher, ok := resp.Writer.(http.Flusher)
		if !ok {
			return c.String(http.StatusInternalServerError, "streaming unsupported")
		}

		common.SetSSEHeaders(c)
		sse := datastar.NewSSE(resp, c.Request())

		st := &stream{bucket: bucket, watermark: since}
		snapshot, err := st.catchUp(ctx, resync, st.watermark)
		if err != nil {
			slog.Error("feed snapshot failed", "since", since, "bucket", bucket, "error", err)
			return nil
		}
		if st.bucket == "" {
			st.bucket = snapshot.Bucket
		}
		if err := patch(sse, st.apply(snapshot)); err != nil {
			return nil
		}
		slog.Debug("feed stream opened", "subscriber", sub.ID, "bucket", st.bucket, "watermark", st.watermark)

		_, _ = fmt.Fprintf(resp, ": connected\n\n")
		flusher.Flush()

		ticker := time.NewTicker(keepAliveInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return nil
			case b := <-sub.C:
				patches, err := st.receive(ctx, resync, sub, b)
				if err != nil {
					slog.Error("feed resync failed", "subscriber", sub.ID, "error", err)
					return nil
				}
				if err := patch(sse, patches); err != nil {
					return nil
				}
				flusher.Flush()
			case <-ticker.C:
				_, _ = fmt.Fprintf(resp, ": keepalive\n\n")
				flusher.Flush()
			}
		}
	}
}
