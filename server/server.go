// Package server exposes the orchestrator over HTTP: job control, live
// event streams, stored properties and reference data.
package server

import (
	"log"
	"time"

	"github.com/gofiber/fiber/v3"

	"glownest/activity"
	"glownest/config"
	"glownest/scraper"
	"glownest/storage"
	"glownest/stream"
)

type Server struct {
	app        *fiber.App
	cfg        *config.Config
	controller *scraper.Controller
	store      storage.Store
	hub        *stream.Hub
	activity   *activity.Log
}

func New(cfg *config.Config, controller *scraper.Controller, store storage.Store,
	hub *stream.Hub, act *activity.Log) *Server {
	s := &Server{
		app:        fiber.New(fiber.Config{}),
		cfg:        cfg,
		controller: controller,
		store:      store,
		hub:        hub,
		activity:   act,
	}

	s.app.Use(requestLog)
	s.routes()
	return s
}

func (s *Server) routes() {
	s.app.Get("/health", s.handleHealth)

	s.app.Post("/scraper/start", s.handleStart)
	s.app.Post("/scraper/stop", s.handleStop)
	s.app.Get("/scraper/status", s.handleStatus)

	s.app.Get("/events/stream", s.handleEventStream)
	s.app.Get("/ws", s.handleWS)

	s.app.Get("/properties/recent", s.handleRecentProperties)
	s.app.Get("/properties/stats", s.handleStats)
	s.app.Get("/properties/:olxID/history", s.handlePriceHistory)

	s.app.Get("/activity/recent", s.handleRecentActivity)

	s.app.Get("/streets/mapping", s.handleStreetMappings)
	s.app.Post("/streets/add", s.handleAddStreet)
}

func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// App exposes the fiber app for in-process request tests.
func (s *Server) App() *fiber.App {
	return s.app
}

func requestLog(c fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	log.Printf("http %s %s -> %d (%s)", c.Method(), c.Path(), c.Response().StatusCode(), time.Since(start))
	return err
}
