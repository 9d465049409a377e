package validation

import (
	"regexp"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

var (
	scriptPattern = regexp.MustCompile(`(?i)(<script|<iframe|javascript:|onerror=|onload=|onclick=)`)

	validScopeTypes = map[string]bool{
		"chapter":      true,
		"standard":     true,
		"sub-standard": true,
		"all":          true,
	}
)

type Config struct {
	MaxEvidenceSize     int
	AllowedContentTypes []string
	Logger              *zap.Logger
}

func Middleware(cfg Config) fiber.Handler {
	if cfg.MaxEvidenceSize == 0 {
		cfg.MaxEvidenceSize = 10 * 1024 * 1024
	}
	if len(cfg.AllowedContentTypes) == 0 {
		cfg.AllowedContentTypes = []string{"application/json", "multipart/form-data"}
	}

	return func(c *fiber.Ctx) error {
		if c.Method() == "POST" || c.Method() == "PUT" || c.Method() == "PATCH" {
			contentType := c.Get("Content-Type")
			if contentType != "" {
				allowed := false
				for _, allowedType := range cfg.AllowedContentTypes {
					if strings.Contains(contentType, allowedType) {
						allowed = true
						break
					}
				}
				if !allowed {
					return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
						"error": "Unsupported content type",
					})
				}
			}
		}

		path := c.Path()

		if strings.HasSuffix(path, "/api/v1/assessments") && c.Method() == "POST" {
			var req map[string]interface{}
			if err := c.BodyParser(&req); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Invalid JSON format",
				})
			}

			projectID, ok := req["project_id"].(string)
			if !ok || projectID == "" {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "project_id is required and must be a string",
				})
			}

			scopeType, ok := req["scope_type"].(string)
			if !ok || !validScopeTypes[scopeType] {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "scope_type must be one of: chapter, standard, sub-standard, all",
				})
			}

			if scopeType != "all" {
				scopeID, ok := req["scope_id"].(string)
				if !ok || scopeID == "" {
					return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
						"error": "scope_id is required for scoped assessments",
					})
				}
			}
		}

		if strings.HasSuffix(path, "/api/v1/evidence") && c.Method() == "POST" {
			var req map[string]interface{}
			if err := c.BodyParser(&req); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Invalid JSON format",
				})
			}

			documentName, ok := req["document_name"].(string)
			if !ok || documentName == "" {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "document_name is required and must be a string",
				})
			}

			if containsScript(documentName) {
				cfg.Logger.Warn("Rejected document name with embedded markup",
					zap.String("ip", c.IP()),
					zap.String("document_name", documentName),
				)
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Invalid document name",
				})
			}

			content, ok := req["content"].(string)
			if ok && len(content) > cfg.MaxEvidenceSize {
				return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{
					"error": "Evidence content exceeds maximum size",
				})
			}
		}

		return c.Next()
	}
}

func containsScript(input string) bool {
	return scriptPattern.MatchString(input)
}
