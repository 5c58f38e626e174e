package handlers

import (
	"github.com/gin-gonic/gin"

	"cargoride/internal/models"
	"cargoride/internal/utils"
	"cargoride/internal/validators"
)

func currentUser(c *gin.Context) (string, bool) {
	userID := c.GetString("user_id")
	if userID == "" {
		utils.UnauthorizedResponse(c)
		return "", false
	}
	return userID, true
}

func isAdmin(c *gin.Context) bool {
	return c.GetString("role") == utils.RoleAdmin
}

// bindJSON decodes and validates the body, writing the error response itself on failure.
func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		utils.BadRequestResponse(c, "Invalid request: "+err.Error())
		return false
	}
	if errs := validators.ValidateStruct(req); len(errs) > 0 {
		utils.ValidationErrorResponse(c, errs.Map())
		return false
	}
	return true
}

// isParticipant reports whether userID is the requester or the assigned driver.
func isParticipant(svc *models.Service, userID string) bool {
	driverID := svc.ParticipantDriverID()
	return userID == svc.RequesterID || (driverID != "" && userID == driverID)
}

// canView reports whether a caller may read a service and its bids. Drivers may look at
// any service still collecting offers; after that only participants and admins can.
func canView(svc *models.Service, userID, role string) bool {
	if role == utils.RoleAdmin || isParticipant(svc, userID) {
		return true
	}
	return role == utils.RoleDriver && svc.Status == models.ServiceStatusPendingOffers
}

// canViewOffers is canView for an offers snapshot: once a bid is accepted, rival drivers
// lose sight of the list.
func canViewOffers(svc *models.Service, offers []*models.Offer, userID, role string) bool {
	if role == utils.RoleAdmin || userID == svc.RequesterID {
		return true
	}
	for _, offer := range offers {
		if offer.Status == models.OfferStatusAccepted {
			return offer.DriverID == userID
		}
	}
	return canView(svc, userID, role)
}
