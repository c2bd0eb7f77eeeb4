package middleware

import (
	"context"
	"errors"
	"net/http"

	"spray-machine-monitoring/internal/models"
	"spray-machine-monitoring/internal/repository"
	"spray-machine-monitoring/internal/service"
	"spray-machine-monitoring/pkg/utils"

	"github.com/gin-gonic/gin"
)

// MachineContextKey holds the *models.Machine resolved by CheckMachineAccess
const MachineContextKey = "machine"

// MachineResolver loads a machine on behalf of a user.
// Implemented by service.SprayService.
type MachineResolver interface {
	Machine(ctx context.Context, machineID string, userID uint, role string) (*models.Machine, error)
}

// AccessControlMiddleware provides machine ownership checks
type AccessControlMiddleware struct {
	machines MachineResolver
}

// NewAccessControlMiddleware creates a new access control middleware
func NewAccessControlMiddleware(machines MachineResolver) *AccessControlMiddleware {
	return &AccessControlMiddleware{machines: machines}
}

// CheckMachineAccess verifies the user owns the machine in the path, or is an admin
// Expected path parameter: :machineId
func (m *AccessControlMiddleware) CheckMachineAccess() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Get user info from context (set by AuthMiddleware)
		userID, exists := c.Get("userID")
		if !exists {
			utils.ErrorResponse(c, http.StatusUnauthorized, "User not authenticated")
			c.Abort()
			return
		}

		role, exists := c.Get("role")
		if !exists {
			utils.ErrorResponse(c, http.StatusUnauthorized, "User role not found")
			c.Abort()
			return
		}

		machineID := c.Param("machineId")
		if machineID == "" {
			utils.ErrorResponse(c, http.StatusBadRequest, "Machine ID is required")
			c.Abort()
			return
		}

		machine, err := m.machines.Machine(c.Request.Context(), machineID, userID.(uint), role.(string))
		switch {
		case errors.Is(err, repository.ErrMachineNotFound):
			utils.ErrorResponse(c, http.StatusNotFound, "Spray machine not found")
			c.Abort()
			return
		case errors.Is(err, service.ErrAccessDenied):
			utils.ErrorResponse(c, http.StatusForbidden, err.Error())
			c.Abort()
			return
		case err != nil:
			utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to verify access")
			c.Abort()
			return
		}

		c.Set(MachineContextKey, machine)
		c.Next()
	}
}
