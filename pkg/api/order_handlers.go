package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/example/storefront/pkg/service"
)

type orderLineRequest struct {
	ProductID string  `json:"product_id"`
	VariantID *string `json:"variant_id"`
	Quantity  int     `json:"quantity"`
}

type shippingRequest struct {
	Name       string `json:"name"`
	Address    string `json:"address"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Phone      string `json:"phone"`
}

type placeOrderRequest struct {
	Items             []orderLineRequest `json:"items"`
	CartID            string             `json:"cart_id"`
	Shipping          shippingRequest    `json:"shipping"`
	Email             string             `json:"email"`
	PaymentMethod     string             `json:"payment_method"`
	DiscountCode      string             `json:"discount_code"`
	DiscountAmount    float64            `json:"discount_amount"`
	LoyaltyPointsUsed float64            `json:"loyalty_points_used"`
	CreateAccount     bool               `json:"create_account"`
	AccountName       string             `json:"account_name"`
}

func (s *Server) placeOrder(c *gin.Context) {
	var req placeOrderRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	in := service.PlaceOrderInput{
		CartID: req.CartID,
		Shipping: service.ShippingInput{
			Name:       req.Shipping.Name,
			Address:    req.Shipping.Address,
			City:       req.Shipping.City,
			State:      req.Shipping.State,
			PostalCode: req.Shipping.PostalCode,
			Phone:      req.Shipping.Phone,
		},
		Email:             req.Email,
		Payment:           req.PaymentMethod,
		DiscountCode:      req.DiscountCode,
		DiscountAmount:    req.DiscountAmount,
		LoyaltyPointsUsed: req.LoyaltyPointsUsed,
		CreateAccount:     req.CreateAccount,
		AccountName:       req.AccountName,
	}
	for _, line := range req.Items {
		in.Items = append(in.Items, service.OrderLineInput{
			ProductID: line.ProductID,
			VariantID: line.VariantID,
			Quantity:  line.Quantity,
		})
	}

	placed, err := s.orders.PlaceOrder(c.Request.Context(), currentIdentity(c), in)
	if err != nil {
		s.writeError(c, err)
		return
	}

	resp := gin.H{
		"order_id":     placed.Order.ID,
		"order_number": placed.Order.OrderNumber,
		"total_amount": placed.Order.TotalAmount,
		"status":       placed.Order.Status,
	}
	if placed.NewAccount != nil {
		resp["new_account"] = gin.H{
			"user_id": placed.NewAccount.UserID,
			"email":   placed.NewAccount.Email,
		}
	}
	c.JSON(http.StatusCreated, resp)
}

func (s *Server) getOrder(c *gin.Context) {
	order, err := s.orders.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}

	identity := currentIdentity(c)
	owner := order.UserID != nil && identity.UserID != "" && *order.UserID == identity.UserID
	// Guest orders are fetchable with the cookie that placed them.
	owner = owner || (order.GuestID != nil && identity.GuestID != "" && *order.GuestID == identity.GuestID)
	user := currentUser(c)
	admin := user != nil && user.IsAdmin
	if !owner && !admin {
		s.writeError(c, service.ErrForbidden)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": order})
}

func (s *Server) orderAudit(c *gin.Context) {
	limit, _ := strconv.ParseInt(c.DefaultQuery("limit", "50"), 10, 64)

	logs, err := s.orders.AuditTrail(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs})
}

func (s *Server) listOrders(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	orders, total, err := s.orders.ListOrders(c.Request.Context(), currentUser(c).ID, page, pageSize)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders, "total": total})
}

type updateStatusRequest struct {
	Status string `json:"status" binding:"required"`
	Note   string `json:"note"`
}

func (s *Server) updateOrderStatus(c *gin.Context) {
	var req updateStatusRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	order, err := s.orders.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status, req.Note)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": order})
}
