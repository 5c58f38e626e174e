package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"cargoride/internal/models"
	"cargoride/internal/services"
	"cargoride/internal/utils"
	"cargoride/internal/validators"
)

type ServiceHandler struct {
	lifecycle services.ServiceLifecycleService
	history   services.HistoryService
}

func NewServiceHandler(lifecycle services.ServiceLifecycleService, history services.HistoryService) *ServiceHandler {
	return &ServiceHandler{
		lifecycle: lifecycle,
		history:   history,
	}
}

// CreateService publishes a new service request for the caller
func (h *ServiceHandler) CreateService(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req validators.CreateServiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request: "+err.Error())
		return
	}
	if errs := validators.ValidateCreateService(&req); len(errs) > 0 {
		utils.ValidationErrorResponse(c, errs.Map())
		return
	}

	svc, err := h.lifecycle.CreateService(c.Request.Context(), userID, createServiceInput(&req))
	if err != nil {
		utils.EngineErrorResponse(c, err)
		return
	}

	utils.CreatedResponse(c, "Service created successfully", svc)
}

func createServiceInput(req *validators.CreateServiceRequest) *services.CreateServiceInput {
	route := make([]models.Waypoint, len(req.Route))
	for i, stop := range req.Route {
		route[i] = models.Waypoint{Address: stop.Address, Lat: stop.Lat, Lng: stop.Lng}
	}

	return &services.CreateServiceInput{
		Route:            route,
		Kind:             models.ServiceKind(req.Kind),
		SLAMinutes:       req.SLAMinutes,
		DistanceKm:       req.DistanceKm,
		EstimatedMinutes: req.EstimatedMinutes,
		EstimatedPrice:   req.EstimatedPrice,
		PaymentMethod:    models.PaymentMethod(req.PaymentMethod),
		ReceiptType:      models.ReceiptType(req.ReceiptType),
		Cargo: models.CargoDetails{
			WeightTons:    req.Cargo.WeightTons,
			VolumeM3:      req.Cargo.VolumeM3,
			NeedsHelpers:  req.Cargo.NeedsHelpers,
			HelperCount:   req.Cargo.HelperCount,
			NeedsForklift: req.Cargo.NeedsForklift,
			CargoNotes:    req.Cargo.CargoNotes,
		},
		ScheduledFor: req.ScheduledFor,
		Notes:        req.Notes,
	}
}

func (h *ServiceHandler) GetService(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	svc, err := h.lifecycle.GetService(c.Request.Context(), c.Param("id"))
	if err != nil {
		utils.EngineErrorResponse(c, err)
		return
	}
	if !canView(svc, userID, c.GetString("role")) {
		utils.ForbiddenResponse(c)
		return
	}

	response := gin.H{"service": svc}
	if compliant := services.IsSLACompliant(svc); compliant != nil {
		response["sla_compliant"] = *compliant
	}
	utils.SuccessResponse(c, "Service retrieved successfully", response)
}

// StartTrip moves an accepted service into progress. Only the assigned driver may start it.
func (h *ServiceHandler) StartTrip(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	driverID := userID
	if isAdmin(c) {
		driverID = ""
	}

	svc, err := h.lifecycle.StartTrip(c.Request.Context(), c.Param("id"), driverID)
	if err != nil {
		utils.EngineErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, "Trip started", svc)
}

func (h *ServiceHandler) CompleteTrip(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req validators.CompleteTripRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
		return
	}

	input := &services.CompleteTripInput{DriverID: userID}
	if isAdmin(c) {
		input.DriverID = ""
		input.CommissionRate = req.CommissionRate
	} else if req.CommissionRate != nil {
		utils.ForbiddenResponse(c)
		return
	}

	svc, err := h.lifecycle.CompleteTrip(c.Request.Context(), c.Param("id"), input)
	if err != nil {
		utils.EngineErrorResponse(c, err)
		return
	}

	response := gin.H{"service": svc}
	if compliant := services.IsSLACompliant(svc); compliant != nil {
		response["sla_compliant"] = *compliant
	}
	utils.SuccessResponse(c, "Trip completed", response)
}

func (h *ServiceHandler) CancelService(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req validators.CancelServiceRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
		return
	}

	ctx := c.Request.Context()
	svc, err := h.lifecycle.GetService(ctx, c.Param("id"))
	if err != nil {
		utils.EngineErrorResponse(c, err)
		return
	}
	if !isAdmin(c) && !isParticipant(svc, userID) {
		utils.ForbiddenResponse(c)
		return
	}

	svc, err = h.lifecycle.CancelService(ctx, svc.ID, &services.CancelServiceInput{Reason: req.Reason, Actor: userID})
	if err != nil {
		utils.EngineErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, "Service cancelled", svc)
}

// UploadReceipt stores the client receipt of a completed service from a multipart "file" field
func (h *ServiceHandler) UploadReceipt(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	svc, err := h.lifecycle.GetService(ctx, c.Param("id"))
	if err != nil {
		utils.EngineErrorResponse(c, err)
		return
	}
	if !isAdmin(c) && !isParticipant(svc, userID) {
		utils.ForbiddenResponse(c)
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		utils.BadRequestResponse(c, "Receipt file is required")
		return
	}
	if fileHeader.Size > utils.MaxReceiptSize {
		utils.ErrorResponse(c, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", "Receipt exceeds the size limit")
		return
	}
	contentType := fileHeader.Header.Get("Content-Type")
	if !allowedReceiptType(contentType) {
		utils.BadRequestResponse(c, "Unsupported receipt type "+contentType)
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		utils.BadRequestResponse(c, "Unreadable receipt file")
		return
	}
	defer file.Close()

	svc, err = h.lifecycle.AttachReceipt(ctx, svc.ID, &services.ReceiptUpload{
		FileName:    fileHeader.Filename,
		ContentType: contentType,
		Size:        fileHeader.Size,
		Reader:      file,
	})
	if err != nil {
		utils.EngineErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, "Receipt attached", svc)
}

// GetReceipt returns a short-lived download link for the service's receipt
func (h *ServiceHandler) GetReceipt(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	svc, err := h.lifecycle.GetService(ctx, c.Param("id"))
	if err != nil {
		utils.EngineErrorResponse(c, err)
		return
	}
	if !isAdmin(c) && !isParticipant(svc, userID) {
		utils.ForbiddenResponse(c)
		return
	}

	url, err := h.lifecycle.ReceiptURL(ctx, svc.ID)
	if err != nil {
		utils.EngineErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, "Receipt link created", gin.H{"url": url})
}

func allowedReceiptType(contentType string) bool {
	for _, t := range utils.AllowedReceiptTypes {
		if t == contentType {
			return true
		}
	}
	return false
}

func (h *ServiceHandler) RateService(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req validators.RateServiceRequest
	if !bindJSON(c, &req) {
		return
	}

	svc, err := h.lifecycle.RateService(c.Request.Context(), c.Param("id"), userID, req.Rating)
	if err != nil {
		utils.EngineErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, "Rating recorded", svc)
}

func (h *ServiceHandler) UpdateDriverLocation(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req validators.LocationUpdateRequest
	if !bindJSON(c, &req) {
		return
	}

	svc, err := h.lifecycle.UpdateDriverLocation(c.Request.Context(), c.Param("id"), userID, req.Lat, req.Lng)
	if err != nil {
		utils.EngineErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, "Location updated", svc.DriverLocation)
}

// GetHistory returns every service the caller requested or drove, newest first
func (h *ServiceHandler) GetHistory(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	history, err := h.history.History(c.Request.Context(), userID)
	if err != nil {
		utils.EngineErrorResponse(c, err)
		return
	}

	utils.SuccessResponseWithMeta(c, "History retrieved successfully", history, &utils.Meta{Count: len(history)})
}
