package handler

import (
	"github.com/gofiber/fiber/v3"

	"github.com/arturoeanton/go-code-retriever/internal/domain"
	"github.com/arturoeanton/go-code-retriever/internal/middleware"
	"github.com/arturoeanton/go-code-retriever/internal/service"
)

// SessionHandler handles codebase upload and session lifecycle endpoints.
type SessionHandler struct {
	ragService *service.RAGService
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(ragService *service.RAGService) *SessionHandler {
	return &SessionHandler{ragService: ragService}
}

// Register sets up session routes.
func (h *SessionHandler) Register(router fiber.Router) {
	sessions := router.Group("/sessions")
	sessions.Get("/", h.List)
	sessions.Delete("/", h.Reset)
	sessions.Post("/upload", h.Upload)
	sessions.Post("/cleanup", h.Cleanup)
	sessions.Post("/:id/chunks", h.StoreChunks)
	sessions.Get("/:id/stats", h.Stats)
}

// Upload decodes, chunks, embeds and stores a batch of base64 files.
func (h *SessionHandler) Upload(c fiber.Ctx) error {
	var body struct {
		SessionID string                `json:"session_id"`
		Files     []domain.UploadedFile `json:"files"`
	}
	if err := c.Bind().JSON(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if len(body.Files) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "files are required"})
	}

	res, err := h.ragService.IndexFiles(c.Context(), body.Files, body.SessionID)
	if err != nil {
		return respondError(c, err)
	}
	middleware.SetSessionID(c, res.SessionID)

	return c.Status(fiber.StatusCreated).JSON(res)
}

// StoreChunks appends already-embedded chunks to a session.
func (h *SessionHandler) StoreChunks(c fiber.Ctx) error {
	sessionID := c.Params("id")
	middleware.SetSessionID(c, sessionID)

	var body struct {
		Chunks []domain.Chunk `json:"chunks"`
	}
	if err := c.Bind().JSON(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	sid, err := h.ragService.StoreChunks(c.Context(), body.Chunks, sessionID)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"session_id": sid,
		"stored":     len(body.Chunks),
	})
}

// Stats returns chunk counts by type for a session.
func (h *SessionHandler) Stats(c fiber.Ctx) error {
	sessionID := c.Params("id")
	middleware.SetSessionID(c, sessionID)

	stats, err := h.ragService.GetSessionStats(c.Context(), sessionID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(stats)
}

// List returns every stored session, oldest first.
func (h *SessionHandler) List(c fiber.Ctx) error {
	sessions, err := h.ragService.ListSessions(c.Context())
	if err != nil {
		return respondError(c, err)
	}
	if sessions == nil {
		sessions = []domain.Session{}
	}
	return c.JSON(fiber.Map{"sessions": sessions})
}

// Cleanup keeps the keep_recent newest sessions and deletes the rest.
func (h *SessionHandler) Cleanup(c fiber.Ctx) error {
	var body struct {
		KeepRecent *int `json:"keep_recent"`
	}
	if err := c.Bind().JSON(&body); err != nil || body.KeepRecent == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "keep_recent is required"})
	}

	removed, err := h.ragService.CleanupOldSessions(c.Context(), *body.KeepRecent)
	if err != nil {
		return respondError(c, err)
	}
	if removed == nil {
		removed = []string{}
	}
	return c.JSON(fiber.Map{"removed": removed})
}

// Reset drops every session. It requires ?confirm=true.
func (h *SessionHandler) Reset(c fiber.Ctx) error {
	if c.Query("confirm") != "true" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "add ?confirm=true to reset the database"})
	}
	if err := h.ragService.ResetDatabase(c.Context()); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"ok": true})
}
