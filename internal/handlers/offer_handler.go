package handlers

import (
	"github.com/gin-gonic/gin"

	"cargoride/internal/models"
	"cargoride/internal/services"
	"cargoride/internal/utils"
	"cargoride/internal/validators"
)

type OfferHandler struct {
	offers     services.OfferService
	acceptance services.AcceptanceService
	lifecycle  services.ServiceLifecycleService
}

func NewOfferHandler(offers services.OfferService, acceptance services.AcceptanceService, lifecycle services.ServiceLifecycleService) *OfferHandler {
	return &OfferHandler{
		offers:     offers,
		acceptance: acceptance,
		lifecycle:  lifecycle,
	}
}

// SubmitOffer places the calling driver's bid on a service
func (h *OfferHandler) SubmitOffer(c *gin.Context) {
	driverID, ok := currentUser(c)
	if !ok {
		return
	}

	var req validators.SubmitOfferRequest
	if !bindJSON(c, &req) {
		return
	}

	offer, err := h.offers.SubmitOffer(c.Request.Context(), &services.SubmitOfferInput{
		ServiceID:                c.Param("id"),
		DriverID:                 driverID,
		Price:                    req.Price,
		EstimatedMinutes:         req.EstimatedMinutes,
		Notes:                    req.Notes,
		UsesOrganizationAsIssuer: req.UsesOrganizationAsIssuer,
	})
	if err != nil {
		utils.EngineErrorResponse(c, err)
		return
	}

	utils.CreatedResponse(c, "Offer submitted successfully", offer)
}

// ListOffers returns the bids on a service in feed order, or by price or ETA with ?sort=
func (h *OfferHandler) ListOffers(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var query validators.ListOffersQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		utils.BadRequestResponse(c, "Invalid query: "+err.Error())
		return
	}
	if errs := validators.ValidateStruct(&query); len(errs) > 0 {
		utils.ValidationErrorResponse(c, errs.Map())
		return
	}

	ctx := c.Request.Context()
	svc, err := h.lifecycle.GetService(ctx, c.Param("id"))
	if err != nil {
		utils.EngineErrorResponse(c, err)
		return
	}

	offers, err := h.offers.ListOffers(ctx, svc.ID, services.OfferSort(query.Sort))
	if err != nil {
		utils.EngineErrorResponse(c, err)
		return
	}
	if !canViewOffers(svc, offers, userID, c.GetString("role")) {
		utils.ForbiddenResponse(c)
		return
	}

	utils.SuccessResponseWithMeta(c, "Offers retrieved successfully", offers, &utils.Meta{Count: len(offers)})
}

func (h *OfferHandler) RejectOffer(c *gin.Context) {
	if _, ok := h.requireRequester(c); !ok {
		return
	}

	offer, err := h.offers.RejectOffer(c.Request.Context(), c.Param("id"), c.Param("offer_id"))
	if err != nil {
		utils.EngineErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, "Offer rejected", offer)
}

// AcceptOffer assigns the service to the offer's driver; all other bids are rejected
func (h *OfferHandler) AcceptOffer(c *gin.Context) {
	svc, ok := h.requireRequester(c)
	if !ok {
		return
	}

	var req validators.AcceptOfferRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
		return
	}

	result, err := h.acceptance.AcceptOffer(c.Request.Context(), &services.AcceptOfferInput{
		ServiceID:       svc.ID,
		OfferID:         c.Param("offer_id"),
		VehicleID:       req.VehicleID,
		NegotiatedPrice: req.NegotiatedPrice,
		PaymentMethod:   models.PaymentMethod(req.PaymentMethod),
		ReceiptType:     models.ReceiptType(req.ReceiptType),
	})
	if err != nil {
		utils.EngineErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, "Offer accepted", gin.H{
		"service":  result.Service,
		"offer":    result.Offer,
		"rejected": len(result.Rejected),
	})
}

// requireRequester loads the service and checks the caller owns it.
func (h *OfferHandler) requireRequester(c *gin.Context) (*models.Service, bool) {
	userID, ok := currentUser(c)
	if !ok {
		return nil, false
	}

	svc, err := h.lifecycle.GetService(c.Request.Context(), c.Param("id"))
	if err != nil {
		utils.EngineErrorResponse(c, err)
		return nil, false
	}
	if svc.RequesterID != userID && !isAdmin(c) {
		utils.ForbiddenResponse(c)
		return nil, false
	}
	return svc, true
}
