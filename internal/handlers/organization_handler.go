package handlers

import (
	"github.com/gin-gonic/gin"

	"cargoride/internal/services"
	"cargoride/internal/utils"
	"cargoride/internal/validators"
)

type OrganizationHandler struct {
	organizations services.OrganizationService
}

func NewOrganizationHandler(organizations services.OrganizationService) *OrganizationHandler {
	return &OrganizationHandler{organizations: organizations}
}

// JoinOrganization makes the given organization the caller's active one
func (h *OrganizationHandler) JoinOrganization(c *gin.Context) {
	driverID, ok := currentUser(c)
	if !ok {
		return
	}

	var req validators.MembershipRequest
	if !bindJSON(c, &req) {
		return
	}

	membership, err := h.organizations.UpsertMembership(c.Request.Context(), &services.UpsertMembershipInput{
		DriverID:            driverID,
		OrganizationID:      req.OrganizationID,
		ActsAsInvoiceIssuer: req.ActsAsInvoiceIssuer,
	})
	if err != nil {
		utils.EngineErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, "Membership updated", membership)
}

func (h *OrganizationHandler) LeaveOrganization(c *gin.Context) {
	driverID, ok := currentUser(c)
	if !ok {
		return
	}

	membership, err := h.organizations.DeactivateMembership(c.Request.Context(), driverID, c.Param("org_id"))
	if err != nil {
		utils.EngineErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, "Membership deactivated", membership)
}

func (h *OrganizationHandler) ListMemberships(c *gin.Context) {
	driverID, ok := currentUser(c)
	if !ok {
		return
	}

	memberships, err := h.organizations.ListMemberships(c.Request.Context(), driverID)
	if err != nil {
		utils.EngineErrorResponse(c, err)
		return
	}

	utils.SuccessResponseWithMeta(c, "Memberships retrieved successfully", memberships, &utils.Meta{Count: len(memberships)})
}
