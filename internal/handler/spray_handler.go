package handler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"

	"spray-machine-monitoring/internal/middleware"
	"spray-machine-monitoring/internal/models"
	"spray-machine-monitoring/internal/repository"
	"spray-machine-monitoring/internal/service"
	"spray-machine-monitoring/internal/shift"
	"spray-machine-monitoring/pkg/utils"

	"github.com/gin-gonic/gin"
)

// ShiftRotator opens the shift records of a date.
// Implemented by service.ShiftScheduler.
type ShiftRotator interface {
	RotateAll(ctx context.Context, date string) service.RotationSummary
}

// AuditRecorder stores admin actions.
// Implemented by repository.AuditRepository.
type AuditRecorder interface {
	Record(ctx context.Context, userID uint, action, details string) error
}

type SprayHandler struct {
	sprayService *service.SprayService
	rotator      ShiftRotator
	audit        AuditRecorder
}

func NewSprayHandler(sprayService *service.SprayService, rotator ShiftRotator, audit AuditRecorder) *SprayHandler {
	return &SprayHandler{
		sprayService: sprayService,
		rotator:      rotator,
		audit:        audit,
	}
}

// machine returns the machine resolved by CheckMachineAccess
func machine(c *gin.Context) *models.Machine {
	m, _ := c.Get(middleware.MachineContextKey)
	return m.(*models.Machine)
}

// respondError maps query errors to HTTP statuses
func respondError(c *gin.Context, err error, what string) {
	switch {
	case errors.Is(err, shift.ErrInvalidDate):
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid date, expected YYYY-MM-DD")
	case errors.Is(err, repository.ErrShiftRecordNotFound):
		utils.ErrorResponse(c, http.StatusNotFound, "No shift data for this date")
	default:
		log.Printf("[API] Error fetching %s: %v", what, err)
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to fetch "+what)
	}
}

// GetRealtime returns the live card of a machine
func (h *SprayHandler) GetRealtime(c *gin.Context) {
	view, err := h.sprayService.Realtime(c.Request.Context(), machine(c))
	if err != nil {
		respondError(c, err, "realtime data")
		return
	}
	utils.SuccessResponse(c, view)
}

// GetDaily returns one shift record, today unless ?date= is given
func (h *SprayHandler) GetDaily(c *gin.Context) {
	rec, err := h.sprayService.Daily(c.Request.Context(), machine(c).MachineID, c.Query("date"))
	if err != nil {
		respondError(c, err, "daily data")
		return
	}
	utils.SuccessResponse(c, rec)
}

// GetWeekly returns Monday to Sunday of the week containing ?date=
func (h *SprayHandler) GetWeekly(c *gin.Context) {
	days, err := h.sprayService.Weekly(c.Request.Context(), machine(c).MachineID, c.Query("date"))
	if err != nil {
		respondError(c, err, "weekly data")
		return
	}
	utils.SuccessResponse(c, gin.H{
		"days":  days,
		"count": len(days),
	})
}

// GetMonthly returns every day of the month containing ?date=
func (h *SprayHandler) GetMonthly(c *gin.Context) {
	days, err := h.sprayService.Monthly(c.Request.Context(), machine(c).MachineID, c.Query("date"))
	if err != nil {
		respondError(c, err, "monthly data")
		return
	}
	utils.SuccessResponse(c, gin.H{
		"days":  days,
		"count": len(days),
	})
}

func (h *SprayHandler) GetHistory(c *gin.Context) {
	history, err := h.sprayService.History(c.Request.Context(), machine(c).MachineID)
	if err != nil {
		respondError(c, err, "history")
		return
	}
	utils.SuccessResponse(c, gin.H{
		"records": history,
		"count":   len(history),
	})
}

func (h *SprayHandler) GetStatistics(c *gin.Context) {
	stats, err := h.sprayService.Statistics(c.Request.Context(), machine(c).MachineID)
	if err != nil {
		respondError(c, err, "statistics")
		return
	}
	utils.SuccessResponse(c, stats)
}

func (h *SprayHandler) GetPieChart(c *gin.Context) {
	slices, err := h.sprayService.PieChart(c.Request.Context(), machine(c).MachineID, c.Query("date"))
	if err != nil {
		respondError(c, err, "pie chart")
		return
	}
	utils.SuccessResponse(c, slices)
}

type resetRequest struct {
	Date string `json:"date"`
}

// Reset opens the shift records of a date for every spray machine (admin only)
// Machines that already have a record keep it untouched; shifts that
// have not started yet are refused
func (h *SprayHandler) Reset(c *gin.Context) {
	var req resetRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
			return
		}
	}
	if req.Date == "" {
		req.Date = h.sprayService.Today()
	}
	if err := h.sprayService.CheckStarted(req.Date); err != nil {
		if errors.Is(err, service.ErrFutureShift) {
			utils.ErrorResponse(c, http.StatusBadRequest, "Shift of "+req.Date+" has not started yet")
		} else {
			utils.ErrorResponse(c, http.StatusBadRequest, "Invalid date, expected YYYY-MM-DD")
		}
		return
	}

	userID, _ := c.Get("userID")
	summary := h.rotator.RotateAll(c.Request.Context(), req.Date)

	details := fmt.Sprintf("date=%s created=%d existing=%d failed=%d",
		summary.Date, len(summary.Created), len(summary.Existing), len(summary.Failed))
	if err := h.audit.Record(c.Request.Context(), userID.(uint), repository.AuditManualShiftReset, details); err != nil {
		log.Printf("[API] Failed to record audit log: %v", err)
	}

	if err := summary.Err(); err != nil {
		utils.PartialResponse(c, http.StatusInternalServerError, err.Error(), summary)
		return
	}
	utils.SuccessResponse(c, summary)
}

// Register mounts the spray routes on an authenticated group
func (h *SprayHandler) Register(spray *gin.RouterGroup, access *middleware.AccessControlMiddleware) {
	owned := spray.Group("", access.CheckMachineAccess())
	{
		owned.GET("/realtime/:machineId", h.GetRealtime)
		owned.GET("/daily/:machineId", h.GetDaily)
		owned.GET("/weekly/:machineId", h.GetWeekly)
		owned.GET("/monthly/:machineId", h.GetMonthly)
		owned.GET("/history/:machineId", h.GetHistory)
		owned.GET("/statistics/:machineId", h.GetStatistics)
		owned.GET("/pie-chart/:machineId", h.GetPieChart)
	}

	// Admin-only routes
	spray.POST("/reset", middleware.RequireAdmin(), h.Reset)
}
