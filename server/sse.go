package server

import (
	"bufio"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v3"
)

const keepaliveInterval = 15 * time.Second

// handleEventStream pushes hub events as server-sent events. The hub keeps
// no history, so a client that connects mid-job pairs this stream with one
// GET /scraper/status to reconstruct current progress.
func (s *Server) handleEventStream(c fiber.Ctx) error {
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	sub := s.hub.Subscribe()

	return c.SendStreamWriter(func(w *bufio.Writer) {
		defer sub.Close()

		keepalive := time.NewTicker(keepaliveInterval)
		defer keepalive.Stop()

		for {
			select {
			case event, ok := <-sub.Events():
				if !ok {
					return
				}
				data, err := json.Marshal(event)
				if err != nil {
					continue
				}
				fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
				if err := w.Flush(); err != nil {
					return
				}
			case <-keepalive.C:
				fmt.Fprint(w, ": keepalive\n\n")
				if err := w.Flush(); err != nil {
					return
				}
			}
		}
	})
}
