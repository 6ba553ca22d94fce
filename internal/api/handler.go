package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"festival-ticketing/internal/models"
	"festival-ticketing/internal/service"
	"festival-ticketing/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains HTTP handlers
type Handler struct {
	admission *service.AdmissionService
	purchases *service.PurchaseService
	admin     *service.AdminService
}

// NewHandler creates a new HTTP handler
func NewHandler(admission *service.AdmissionService, purchases *service.PurchaseService, admin *service.AdminService) *Handler {
	return &Handler{
		admission: admission,
		purchases: purchases,
		admin:     admin,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/tickets/:id/purchasable", h.checkPurchasable)
		v1.GET("/tickets/:id/stock", h.getRemainingStock)
		v1.POST("/purchases", h.purchase)
		v1.GET("/payments/:payment_id", h.getPaymentStatus)

		v1.POST("/festivals", h.createFestival)
		v1.POST("/tickets", h.createTicket)
	}
}

func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

type checkPurchasableRequest struct {
	BuyerID int64 `json:"buyer_id" binding:"required"`
}

// checkPurchasable runs admission for one buyer against one ticket
func (h *Handler) checkPurchasable(c *gin.Context) {
	ticketID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ticket ID"})
		return
	}

	var req checkPurchasableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	resp, err := h.admission.CheckPurchasable(c.Request.Context(), ticketID, req.BuyerID)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// getRemainingStock reports free units, cache-first
func (h *Handler) getRemainingStock(c *gin.Context) {
	ticketID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ticket ID"})
		return
	}

	remain, err := h.admission.RemainingStock(c.Request.Context(), ticketID)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ticket_id":    ticketID,
		"remain_stock": remain,
	})
}

// purchase commits an admitted buyer and kicks off the payment saga
func (h *Handler) purchase(c *gin.Context) {
	var req service.PurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	resp, err := h.purchases.ProcessPurchase(c.Request.Context(), &req)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, resp)
}

// getPaymentStatus answers the buyer's poll after an accepted purchase
func (h *Handler) getPaymentStatus(c *gin.Context) {
	resp, err := h.purchases.GetPaymentStatus(c.Request.Context(), c.Param("payment_id"))
	if err != nil {
		respondDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

type createFestivalRequest struct {
	Title     string    `json:"title" binding:"required"`
	StartTime time.Time `json:"start_time" binding:"required"`
	EndTime   time.Time `json:"end_time" binding:"required"`
}

func (h *Handler) createFestival(c *gin.Context) {
	var req createFestivalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}
	if !req.EndTime.After(req.StartTime) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "end_time must be after start_time"})
		return
	}

	festival := &models.Festival{
		Title:     req.Title,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
	}
	if err := h.admin.CreateFestival(c.Request.Context(), festival); err != nil {
		respondDomainError(c, err)
		return
	}

	c.JSON(http.StatusCreated, festival)
}

type createTicketRequest struct {
	FestivalID    int64     `json:"festival_id" binding:"required"`
	Name          string    `json:"name" binding:"required"`
	Detail        string    `json:"detail"`
	Price         int64     `json:"price" binding:"required"`
	Quantity      int       `json:"quantity" binding:"required,min=1"`
	StartSaleTime time.Time `json:"start_sale_time" binding:"required"`
	EndSaleTime   time.Time `json:"end_sale_time" binding:"required"`
}

func (h *Handler) createTicket(c *gin.Context) {
	var req createTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}
	if !req.EndSaleTime.After(req.StartSaleTime) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "end_sale_time must be after start_sale_time"})
		return
	}

	ticket := &models.Ticket{
		FestivalID:    req.FestivalID,
		Name:          req.Name,
		Detail:        req.Detail,
		Price:         req.Price,
		Quantity:      req.Quantity,
		StartSaleTime: req.StartSaleTime,
		EndSaleTime:   req.EndSaleTime,
	}
	if err := h.admin.CreateTicket(c.Request.Context(), ticket); err != nil {
		respondDomainError(c, err)
		return
	}

	c.JSON(http.StatusCreated, ticket)
}

// respondDomainError maps domain errors onto HTTP statuses. Unknown errors
// surface as 500 without leaking internals.
func respondDomainError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, models.ErrFestivalNotFound),
		errors.Is(err, models.ErrTicketNotFound),
		errors.Is(err, models.ErrPurchaseNotFound),
		errors.Is(err, models.ErrPaymentNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrInvalidPurchaseTime):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrAlreadyPurchased),
		errors.Is(err, models.ErrAlreadyReserved),
		errors.Is(err, models.ErrStockMismatch):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrPurchaseSessionExpired):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
