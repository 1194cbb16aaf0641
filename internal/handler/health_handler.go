package handler

import "github.com/gofiber/fiber/v3"

// HealthHandler reports liveness and the configured backends.
type HealthHandler struct {
	appName string
	backend string
	model   string
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(appName, backend, model string) *HealthHandler {
	return &HealthHandler{appName: appName, backend: backend, model: model}
}

// Register sets up the health route.
func (h *HealthHandler) Register(router fiber.Router) {
	router.Get("/health", h.Health)
}

// Health returns a static status document.
func (h *HealthHandler) Health(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":          "healthy",
		"app":             h.appName,
		"vector_backend":  h.backend,
		"embedding_model": h.model,
	})
}
