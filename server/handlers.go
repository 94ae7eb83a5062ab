package server

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v3"

	"glownest/models"
	"glownest/scraper"
	"glownest/storage"
)

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(c fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// startRequest distinguishes absent fields from explicit zero values, so a
// posted max_pages of 0 is validated rather than silently defaulted.
type startRequest struct {
	ListingType *string `json:"listing_type"`
	MaxPages    *int    `json:"max_pages"`
	DelayMS     *int    `json:"delay_ms"`
	Headful     *bool   `json:"headful"`
}

func (s *Server) handleStart(c fiber.Ctx) error {
	cfg := models.JobConfig{
		ListingType: s.cfg.Scraper.ListingType,
		MaxPages:    s.cfg.Scraper.MaxPages,
		DelayMS:     s.cfg.Scraper.DelayMS,
		Headful:     s.cfg.Scraper.Headful,
	}
	if len(c.Body()) > 0 {
		var req startRequest
		if err := c.Bind().Body(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Error: "malformed request body"})
		}
		if req.ListingType != nil {
			cfg.ListingType = *req.ListingType
		}
		if req.MaxPages != nil {
			cfg.MaxPages = *req.MaxPages
		}
		if req.DelayMS != nil {
			cfg.DelayMS = *req.DelayMS
		}
		if req.Headful != nil {
			cfg.Headful = *req.Headful
		}
	}

	job, err := s.controller.Start(c.Context(), cfg)
	switch {
	case errors.Is(err, scraper.ErrJobRunning):
		return c.Status(fiber.StatusConflict).JSON(errorResponse{Error: err.Error()})
	case errors.Is(err, scraper.ErrInvalidConfig):
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Error: err.Error()})
	case err != nil:
		return c.Status(fiber.StatusInternalServerError).JSON(errorResponse{Error: err.Error()})
	}

	return c.Status(fiber.StatusAccepted).JSON(job)
}

func (s *Server) handleStop(c fiber.Ctx) error {
	job, err := s.controller.Stop(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(errorResponse{Error: err.Error()})
	}
	return c.JSON(job)
}

func (s *Server) handleStatus(c fiber.Ctx) error {
	return c.JSON(s.controller.Status())
}

func (s *Server) handleRecentProperties(c fiber.Ctx) error {
	limit := fiber.Query(c, "limit", 20)
	if limit < 1 || limit > 100 {
		limit = 20
	}
	district := c.Query("district")

	props, err := s.store.GetRecentProperties(c.Context(), limit, district)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(errorResponse{Error: err.Error()})
	}
	if props == nil {
		props = []models.Property{}
	}
	return c.JSON(fiber.Map{"properties": props, "count": len(props)})
}

func (s *Server) handleStats(c fiber.Ctx) error {
	stats, err := s.store.Stats(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(errorResponse{Error: err.Error()})
	}
	return c.JSON(stats)
}

func (s *Server) handlePriceHistory(c fiber.Ctx) error {
	olxID := c.Params("olxID")
	points, err := s.store.GetPriceHistory(c.Context(), olxID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(errorResponse{Error: err.Error()})
	}
	if points == nil {
		points = []models.PricePoint{}
	}
	return c.JSON(fiber.Map{"olx_id": olxID, "history": points})
}

func (s *Server) handleRecentActivity(c fiber.Ctx) error {
	limit := fiber.Query(c, "limit", 50)
	return c.JSON(fiber.Map{"entries": s.activity.Recent(limit)})
}

func (s *Server) handleStreetMappings(c fiber.Ctx) error {
	mappings, err := s.store.GetStreetMappings(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(errorResponse{Error: err.Error()})
	}
	if mappings == nil {
		mappings = []models.StreetMapping{}
	}
	return c.JSON(fiber.Map{"streets": mappings})
}

func (s *Server) handleAddStreet(c fiber.Ctx) error {
	var req models.StreetMapping
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Error: "malformed request body"})
	}

	req.Street = strings.TrimSpace(req.Street)
	req.District = strings.TrimSpace(req.District)
	if req.Street == "" || req.District == "" {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Error: "street and district are required"})
	}

	err := s.store.AddStreetMapping(c.Context(), req.Street, req.District)
	if errors.Is(err, storage.ErrStreetMapped) {
		return c.Status(fiber.StatusConflict).JSON(errorResponse{Error: err.Error()})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(errorResponse{Error: err.Error()})
	}

	s.activity.Info(c.Context(), "Додано вулицю "+req.Street+" до району "+req.District)
	return c.Status(fiber.StatusCreated).JSON(req)
}
