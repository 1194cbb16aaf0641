package handler

import (
	"github.com/gofiber/fiber/v3"

	"github.com/arturoeanton/go-code-retriever/internal/middleware"
	"github.com/arturoeanton/go-code-retriever/internal/service"
)

// RAGHandler handles retrieval endpoints.
type RAGHandler struct {
	ragService *service.RAGService
}

// NewRAGHandler creates a new RAG handler.
func NewRAGHandler(ragService *service.RAGService) *RAGHandler {
	return &RAGHandler{ragService: ragService}
}

// Register sets up retrieval routes.
func (h *RAGHandler) Register(router fiber.Router) {
	router.Post("/retrieve", h.Retrieve)
}

// Retrieve ranks a session's chunks for a query and returns them together
// with the formatted context block and a summary.
func (h *RAGHandler) Retrieve(c fiber.Ctx) error {
	var body struct {
		Query     string `json:"query"`
		SessionID string `json:"session_id"`
		MaxChunks int    `json:"max_chunks"`
	}
	if err := c.Bind().JSON(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if body.SessionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "session_id is required"})
	}
	middleware.SetSessionID(c, body.SessionID)

	chunks, err := h.ragService.RetrieveRelevantChunks(c.Context(), body.Query, body.SessionID, body.MaxChunks)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"chunks":  chunks,
		"context": h.ragService.FormatContextForAI(chunks, body.Query),
		"summary": h.ragService.ContextSummary(chunks),
	})
}
