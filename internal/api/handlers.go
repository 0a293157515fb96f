package api

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/pscankit/autotag/internal/domain"
)

// Handlers contains all HTTP handlers for the auto-tag API
type Handlers struct {
	params        domain.RuleParams
	engine        domain.TagEngine
	cache         domain.CacheManager
	validator     domain.Validator
	healthChecker domain.HealthChecker
	persister     domain.TreePersister
}

// NewHandlers creates a new instance of API handlers
func NewHandlers(params domain.RuleParams, engine domain.TagEngine, cache domain.CacheManager, validator domain.Validator, healthChecker domain.HealthChecker) *Handlers {
	return &Handlers{
		params:        params,
		engine:        engine,
		cache:         cache,
		validator:     validator,
		healthChecker: healthChecker,
	}
}

// SetPersister sets the store persister used to flush the config tree to
// disk after mutating operations. Without one, mutations stay in memory.
func (h *Handlers) SetPersister(p domain.TreePersister) {
	h.persister = p
}

// ReplaceRulesRequest represents the request payload for wholesale rule replacement
// @Description Request payload replacing the whole rule list
type ReplaceRulesRequest struct {
	Rules []domain.RuleRecord `json:"rules" validate:"required"`
}

// UpdateOptionsRequest represents the request payload for the options endpoint.
// Absent fields are left unchanged.
// @Description Request payload updating the policy flags
type UpdateOptionsRequest struct {
	ConfirmRemoveRule *bool `json:"confirm_remove_rule,omitempty" example:"true"`
	ScanOnlyInScope   *bool `json:"scan_only_in_scope,omitempty" example:"false"`
}

// OptionsResponse represents the two policy flags
// @Description Policy flag values
type OptionsResponse struct {
	ConfirmRemoveRule bool `json:"confirm_remove_rule" example:"true"`
	ScanOnlyInScope   bool `json:"scan_only_in_scope" example:"false"`
}

// ScanRequest represents the request payload for the scan endpoint
// @Description HTTP message transcript to evaluate
type ScanRequest struct {
	Message domain.HTTPMessage `json:"message" validate:"required"`
}

// ScanResponse represents the response payload for the scan endpoint
// @Description Matches produced by the rule engine
type ScanResponse struct {
	Matches  []domain.Match `json:"matches"`
	CacheHit bool           `json:"cache_hit" example:"false"`
	Skipped  bool           `json:"skipped" example:"false"`
}

// ErrorResponse represents the standard error response format
// @Description Standard error response format
type ErrorResponse struct {
	Status  string `json:"status" example:"error"`
	Code    string `json:"code" example:"VALIDATION_FAILED"`
	Message string `json:"message" example:"Invalid input provided"`
	Details any    `json:"details,omitempty"`
}

// SuccessResponse represents the standard success response format
// @Description Standard success response format
type SuccessResponse struct {
	Status string `json:"status" example:"success"`
	Data   any    `json:"data"`
}

// RuleListResponse represents the response for listing rules
// @Description Response containing the ordered rule list
type RuleListResponse struct {
	Rules []domain.RuleRecord `json:"rules"`
	Count int                 `json:"count" example:"5"`
}

// ListRulesHandler handles GET /v1/rules requests
// @Summary      List auto-tag rules
// @Description  Retrieves the current ordered rule list; list order is evaluation priority
// @Tags         Rules
// @Produce      json
// @Success      200 {object} SuccessResponse{data=RuleListResponse} "Successfully retrieved rules"
// @Router       /v1/rules [get]
func (h *Handlers) ListRulesHandler(c *fiber.Ctx) error {
	rules := h.params.Rules()

	return c.Status(200).JSON(SuccessResponse{
		Status: "success",
		Data: RuleListResponse{
			Rules: rules,
			Count: len(rules),
		},
	})
}

// ReplaceRulesHandler handles PUT /v1/rules requests
// @Summary      Replace the rule list
// @Description  Replaces the whole rule list and rewrites the persisted subtree. A rule-set change is always all-or-nothing at the list level; there is no per-rule update.
// @Tags         Rules
// @Accept       json
// @Produce      json
// @Param        request body ReplaceRulesRequest true "New rule list"
// @Success      200 {object} SuccessResponse{data=RuleListResponse} "Successfully replaced rules"
// @Failure      400 {object} ErrorResponse "Invalid request payload"
// @Failure      409 {object} ErrorResponse "Duplicate rule name"
// @Failure      422 {object} ErrorResponse "Validation failed"
// @Failure      500 {object} ErrorResponse "Internal server error"
// @Router       /v1/rules [put]
func (h *Handlers) ReplaceRulesHandler(c *fiber.Ctx) error {
	ctx := c.Context()

	var req ReplaceRulesRequest
	if err := c.BodyParser(&req); err != nil {
		appErr := domain.NewAppError(
			domain.ErrInvalidInput,
			"Invalid JSON payload",
			400,
			map[string]string{"error": err.Error()},
		).WithContext(ctx, "replace_rules_parsing")

		return h.sendError(c, appErr)
	}
	if req.Rules == nil {
		return h.sendError(c, domain.NewAppError(
			domain.ErrValidationFailed,
			"Field rules is required",
			422,
			map[string]string{"field": "rules"},
		))
	}

	for i := range req.Rules {
		req.Rules[i].Name = strings.TrimSpace(req.Rules[i].Name)
	}

	// The parameter set trusts its caller on name uniqueness; enforce it here
	if err := h.validator.ValidateRules(req.Rules); err != nil {
		appErr := err.(*domain.AppError).WithContext(ctx, "replace_rules_validation")
		return h.sendError(c, appErr)
	}

	if err := h.params.SetRules(req.Rules); err != nil {
		log.Error().Err(err).Int("count", len(req.Rules)).Msg("Failed to persist rule list")
		return h.sendError(c, domain.NewAppError(
			domain.ErrInternal,
			"Failed to persist rule list",
			500,
			nil,
		))
	}

	if err := h.engine.SetRules(ctx, req.Rules); err != nil {
		log.Error().Err(err).Msg("Failed to load rules into engine")
		// Persisted state is already updated; engine catches up on reload
	}

	if err := h.flush(); err != nil {
		return h.sendError(c, err)
	}

	rules := h.params.Rules()
	return c.Status(200).JSON(SuccessResponse{
		Status: "success",
		Data: RuleListResponse{
			Rules: rules,
			Count: len(rules),
		},
	})
}

// GetOptionsHandler handles GET /v1/options requests
// @Summary      Get policy flags
// @Description  Returns the confirm-remove-rule and scan-only-in-scope flags
// @Tags         Options
// @Produce      json
// @Success      200 {object} SuccessResponse{data=OptionsResponse} "Successfully retrieved options"
// @Router       /v1/options [get]
func (h *Handlers) GetOptionsHandler(c *fiber.Ctx) error {
	return c.Status(200).JSON(SuccessResponse{
		Status: "success",
		Data: OptionsResponse{
			ConfirmRemoveRule: h.params.ConfirmRemoveRule(),
			ScanOnlyInScope:   h.params.ScanOnlyInScope(),
		},
	})
}

// UpdateOptionsHandler handles PUT /v1/options requests
// @Summary      Update policy flags
// @Description  Sets the provided flags; each set persists immediately
// @Tags         Options
// @Accept       json
// @Produce      json
// @Param        request body UpdateOptionsRequest true "Flags to update"
// @Success      200 {object} SuccessResponse{data=OptionsResponse} "Successfully updated options"
// @Failure      400 {object} ErrorResponse "Invalid request payload"
// @Failure      500 {object} ErrorResponse "Internal server error"
// @Router       /v1/options [put]
func (h *Handlers) UpdateOptionsHandler(c *fiber.Ctx) error {
	ctx := c.Context()

	var req UpdateOptionsRequest
	if err := c.BodyParser(&req); err != nil {
		appErr := domain.NewAppError(
			domain.ErrInvalidInput,
			"Invalid JSON payload",
			400,
			map[string]string{"error": err.Error()},
		).WithContext(ctx, "update_options_parsing")

		return h.sendError(c, appErr)
	}

	if req.ConfirmRemoveRule != nil {
		if err := h.params.SetConfirmRemoveRule(*req.ConfirmRemoveRule); err != nil {
			log.Error().Err(err).Msg("Failed to persist confirm-remove flag")
			return h.sendError(c, domain.NewAppError(domain.ErrInternal, "Failed to persist flag", 500, nil))
		}
	}
	if req.ScanOnlyInScope != nil {
		if err := h.params.SetScanOnlyInScope(*req.ScanOnlyInScope); err != nil {
			log.Error().Err(err).Msg("Failed to persist scan-only-in-scope flag")
			return h.sendError(c, domain.NewAppError(domain.ErrInternal, "Failed to persist flag", 500, nil))
		}
	}

	if err := h.flush(); err != nil {
		return h.sendError(c, err)
	}

	return c.Status(200).JSON(SuccessResponse{
		Status: "success",
		Data: OptionsResponse{
			ConfirmRemoveRule: h.params.ConfirmRemoveRule(),
			ScanOnlyInScope:   h.params.ScanOnlyInScope(),
		},
	})
}

// ScanHandler handles POST /v1/scan requests
// @Summary      Scan an HTTP message
// @Description  Evaluates the rule set against a message transcript; out-of-scope messages are skipped when scan-only-in-scope is set
// @Tags         Scan
// @Accept       json
// @Produce      json
// @Param        request body ScanRequest true "Message to scan"
// @Success      200 {object} SuccessResponse{data=ScanResponse} "Successfully scanned message"
// @Failure      400 {object} ErrorResponse "Invalid request payload"
// @Failure      422 {object} ErrorResponse "Validation failed"
// @Failure      500 {object} ErrorResponse "Internal server error"
// @Router       /v1/scan [post]
func (h *Handlers) ScanHandler(c *fiber.Ctx) error {
	ctx := c.Context()
	requestID := ""
	if rid := c.Locals("requestid"); rid != nil {
		requestID = rid.(string)
	}

	var req ScanRequest
	if err := c.BodyParser(&req); err != nil {
		appErr := domain.NewAppError(
			domain.ErrInvalidInput,
			"Invalid JSON payload",
			400,
			map[string]string{"error": err.Error()},
		).WithContext(ctx, "scan_request_parsing")

		return h.sendError(c, appErr)
	}

	req.Message.URL = strings.TrimSpace(req.Message.URL)
	if err := h.validator.ValidateMessage(&req.Message); err != nil {
		appErr := err.(*domain.AppError).WithContext(ctx, "scan_request_validation")
		return h.sendError(c, appErr)
	}

	if h.params.ScanOnlyInScope() && !req.Message.InScope {
		return c.Status(200).JSON(SuccessResponse{
			Status: "success",
			Data: ScanResponse{
				Matches: []domain.Match{},
				Skipped: true,
			},
		})
	}

	result, err := h.engine.Scan(ctx, &req.Message)
	if err != nil {
		log.Error().
			Err(err).
			Str("url", req.Message.URL).
			Str("request_id", requestID).
			Msg("Failed to scan message")

		appErr := domain.NewAppError(
			domain.ErrInternal,
			"Failed to scan message",
			500,
			nil,
		).WithContext(ctx, "message_scan")

		return h.sendError(c, appErr)
	}

	return c.Status(200).JSON(SuccessResponse{
		Status: "success",
		Data: ScanResponse{
			Matches:  result.Matches,
			CacheHit: result.CacheHit,
		},
	})
}

// ReloadHandler handles POST /v1/reload requests
// @Summary      Reload persisted configuration
// @Description  Re-reads the persisted rule subtree and flags, then reloads the engine
// @Tags         Rules
// @Produce      json
// @Success      200 {object} SuccessResponse{data=RuleListResponse} "Successfully reloaded rules"
// @Failure      500 {object} ErrorResponse "Internal server error"
// @Router       /v1/reload [post]
func (h *Handlers) ReloadHandler(c *fiber.Ctx) error {
	ctx := c.Context()

	h.params.Load()

	rules := h.params.Rules()
	if err := h.engine.SetRules(ctx, rules); err != nil {
		log.Error().Err(err).Msg("Failed to load rules into engine after reload")
		return h.sendError(c, domain.NewAppError(
			domain.ErrInternal,
			"Failed to reload rules",
			500,
			nil,
		))
	}

	return c.Status(200).JSON(SuccessResponse{
		Status: "success",
		Data: RuleListResponse{
			Rules: rules,
			Count: len(rules),
		},
	})
}

// HealthHandler handles GET /health requests
// @Summary      Health check
// @Description  Returns the health status of the service
// @Tags         System
// @Produce      json
// @Success      200 {object} map[string]any "Service is healthy"
// @Router       /health [get]
func (h *Handlers) HealthHandler(c *fiber.Ctx) error {
	ctx := c.Context()

	health := h.healthChecker.CheckHealth(ctx)

	status := 200
	if health.Status == domain.HealthStatusUnhealthy {
		status = 503 // Service Unavailable
	}

	return c.Status(status).JSON(map[string]any{
		"status":     health.Status,
		"timestamp":  health.Timestamp.Format(time.RFC3339),
		"components": health.Components,
		"uptime":     health.Uptime.String(),
	})
}

// MetricsHandler handles GET /metrics requests
// @Summary      System metrics
// @Description  Returns system metrics including cache statistics and rule counts
// @Tags         System
// @Produce      json
// @Success      200 {object} SuccessResponse "Successfully retrieved metrics"
// @Router       /metrics [get]
func (h *Handlers) MetricsHandler(c *fiber.Ctx) error {
	ctx := c.Context()

	cacheStats := h.cache.Stats()

	return c.Status(200).JSON(SuccessResponse{
		Status: "success",
		Data: map[string]any{
			"cache": map[string]any{
				"hits":      cacheStats.Hits,
				"misses":    cacheStats.Misses,
				"size":      cacheStats.Size,
				"max_size":  cacheStats.MaxSize,
				"hit_ratio": cacheStats.HitRatio,
			},
			"params": h.params.Stats(),
			"engine": h.engine.GetStats(ctx),
			"uptime": map[string]any{
				"timestamp": time.Now().UTC().Format(time.RFC3339),
			},
		},
	})
}

// flush persists the config tree when a persister is wired
func (h *Handlers) flush() *domain.AppError {
	if h.persister == nil {
		return nil
	}
	if err := h.persister.Save(); err != nil {
		log.Error().Err(err).Msg("Failed to flush config tree to disk")
		return domain.NewAppErrorWithCause(
			domain.ErrStorePersist,
			"Failed to persist configuration",
			500,
			err,
			nil,
		)
	}
	return nil
}

// sendError sends a standardized error response
func (h *Handlers) sendError(c *fiber.Ctx, appErr *domain.AppError) error {
	return c.Status(appErr.StatusCode).JSON(ErrorResponse{
		Status:  "error",
		Code:    appErr.Code,
		Message: appErr.Message,
		Details: appErr.Details,
	})
}
