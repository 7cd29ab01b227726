// Package sse implements the SSE Transport (C8): framing orchestrator
// events onto an HTTP response as `data: <JSON>\n\n` with an explicit
// flush per event, a keep-alive comment during silence, and client
// disconnect mapped to cancellation of the upstream token (spec §4.8).
//
// Grounded on Danor93-Articles-Chat/internal/handlers/chat.go's
// handleStreamingChat, generalized from a single ProcessChatStream
// channel to any orchestrator event channel, and adding the keep-alive
// ping the teacher's handler did not need.
package sse

import (
	"bufio"
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ZM-BAD/dag-chat/internal/services"
)

// KeepAliveInterval is the maximum silence before a `: ping\n\n` comment
// is written to defeat proxy idle timeouts (spec §4.8).
const KeepAliveInterval = 15 * time.Second

// presenceTTL bounds how long a stream can go without a heartbeat before
// a sibling instance or /health would consider it dead — a few ticks'
// worth of slack past KeepAliveInterval.
const presenceTTL = 3 * KeepAliveInterval

// Stream drains events onto c's response body as SSE frames until the
// channel closes or ctx is done. Each value is JSON-marshaled verbatim
// as the frame's data payload. A disconnect (ctx cancellation) stops
// writing immediately without an explicit close frame — the client
// already knows, since it's the one who hung up. presence is registered
// under streamID for the stream's lifetime and released on exit (spec
// §4.8, §11).
//
// cancel is the request-scoped context's own cancel func. fasthttp only
// invokes the body-stream writer after the handler that calls
// SetBodyStreamWriter has already returned, so the deadline's cancel
// must fire from inside that writer, not from a defer in the handler —
// a defer there would cancel the context before the writer ever runs.
func Stream(c *fiber.Ctx, ctx context.Context, cancel context.CancelFunc, events <-chan interface{}, presence services.StreamPresence, streamID string) error {
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	if err := presence.Heartbeat(ctx, streamID, presenceTTL); err != nil {
		slog.Warn("sse presence heartbeat failed", "stream_id", streamID, "error", err)
	}

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer cancel()
		defer func() {
			releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := presence.Release(releaseCtx, streamID); err != nil {
				slog.Warn("sse presence release failed", "stream_id", streamID, "error", err)
			}
		}()

		ticker := time.NewTicker(KeepAliveInterval)
		defer ticker.Stop()

		for {
			select {
			case event, ok := <-events:
				if !ok {
					return
				}
				if err := writeFrame(w, event); err != nil {
					slog.Error("sse write failed", "error", err)
					return
				}
				if err := presence.Heartbeat(ctx, streamID, presenceTTL); err != nil {
					slog.Warn("sse presence heartbeat failed", "stream_id", streamID, "error", err)
				}
				ticker.Reset(KeepAliveInterval)

			case <-ticker.C:
				if _, err := w.WriteString(": ping\n\n"); err != nil {
					return
				}
				if err := w.Flush(); err != nil {
					return
				}
				if err := presence.Heartbeat(ctx, streamID, presenceTTL); err != nil {
					slog.Warn("sse presence heartbeat failed", "stream_id", streamID, "error", err)
				}

			case <-ctx.Done():
				return
			}
		}
	})

	return nil
}

func writeFrame(w *bufio.Writer, event interface{}) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if _, err := w.Write([]byte("data: ")); err != nil {
		return err
	}
	if _, err := w.Write(payload); err != nil {
		return err
	}
	if _, err := w.WriteString("\n\n"); err != nil {
		return err
	}
	return w.Flush()
}
