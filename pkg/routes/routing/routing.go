package routing

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	appctx "github.com/drakesmith3/Skillfullhealth-Bolt-sub002/pkg/context"
	"github.com/drakesmith3/Skillfullhealth-Bolt-sub002/pkg/models"
)

// Service is the admin surface the handlers expose
type Service interface {
	Stats() models.RoutingStats
	ReviewQueue(ctx context.Context, includeResolved bool) ([]models.ReviewEntry, error)
	Ledger(ctx context.Context, category models.Category) ([]models.LedgerEntry, error)
	MarkInvitationSent(ctx context.Context, key string) (*models.LedgerEntry, error)
	ManuallyMatch(ctx context.Context, submissionID string, req models.ManualMatchRequest, resolvedBy string) (*models.RoutedRecord, error)
}

// Trigger wakes the scheduler for an extra tick
type Trigger interface {
	Trigger()
}

type Handler struct {
	service Service
	trigger Trigger
	logger  ectologger.Logger
}

func NewHandler(service Service, trigger Trigger, logger ectologger.Logger) *Handler {
	return &Handler{service: service, trigger: trigger, logger: logger}
}

// Register mounts the routing admin routes on g
func (h *Handler) Register(g *echo.Group) {
	g.GET("/stats", h.GetStats)
	g.GET("/review-queue", h.ListReviewQueue)
	g.POST("/review-queue/:submission_id/match", h.ManuallyMatch)
	g.GET("/ledger", h.ListLedger)
	g.POST("/ledger/:key/invitation", h.MarkInvitationSent)
	g.POST("/run", h.Run)
}

func (h *Handler) GetStats(c echo.Context) error {
	return c.JSON(http.StatusOK, h.service.Stats())
}

// ListReviewQueue hides resolved entries unless include_resolved=true
func (h *Handler) ListReviewQueue(c echo.Context) error {
	includeResolved := false
	if raw := c.QueryParam("include_resolved"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			return httperror.NewHTTPErrorf(http.StatusBadRequest, "include_resolved must be a boolean, got '%s'", raw)
		}
		includeResolved = parsed
	}

	entries, err := h.service.ReviewQueue(c.Request().Context(), includeResolved)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, entries)
}

func (h *Handler) ListLedger(c echo.Context) error {
	category := models.Category(c.QueryParam("category"))
	if category != "" && !category.Valid() {
		return httperror.NewHTTPErrorf(http.StatusBadRequest, "unknown category '%s'", category)
	}

	entries, err := h.service.Ledger(c.Request().Context(), category)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, entries)
}

func (h *Handler) MarkInvitationSent(c echo.Context) error {
	key, err := pathParam(c, "key")
	if err != nil {
		return err
	}
	entry, err := h.service.MarkInvitationSent(c.Request().Context(), key)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, entry)
}

func (h *Handler) ManuallyMatch(c echo.Context) error {
	ctx := c.Request().Context()

	var req models.ManualMatchRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	submissionID := c.Param("submission_id")
	record, err := h.service.ManuallyMatch(ctx, submissionID, req, appctx.GetUserID(ctx))
	if err != nil {
		return err
	}

	h.logger.WithContext(ctx).WithFields(map[string]any{
		"submission_id": submissionID,
		"target_id":     req.TargetID,
	}).Info("Manually matched review entry")

	return c.JSON(http.StatusOK, record)
}

// Run schedules a tick and returns without waiting for it
func (h *Handler) Run(c echo.Context) error {
	if h.trigger == nil {
		return httperror.NewHTTPError(http.StatusServiceUnavailable, "scheduler is not running")
	}
	h.trigger.Trigger()
	return c.JSON(http.StatusAccepted, map[string]string{"status": "triggered"})
}

// pathParam decodes a path parameter. Echo routes on the raw path when the request escapes
// a "/", and then hands the parameter back still escaped.
func pathParam(c echo.Context, name string) (string, error) {
	value := c.Param(name)
	if c.Request().URL.RawPath == "" {
		return value, nil
	}
	decoded, err := url.PathUnescape(value)
	if err != nil {
		return "", httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid %s", name)
	}
	return decoded, nil
}
