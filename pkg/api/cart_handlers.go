package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/example/storefront/pkg/service"
)

type addItemRequest struct {
	ProductID string  `json:"product_id" binding:"required"`
	VariantID *string `json:"variant_id"`
	Quantity  int     `json:"quantity" binding:"required"`
}

func (s *Server) addCartItem(c *gin.Context) {
	var req addItemRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cart, err := s.carts.AddItem(c.Request.Context(), currentIdentity(c), toAddItemInput(req))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cart": cart})
}

func toAddItemInput(req addItemRequest) service.AddItemInput {
	return service.AddItemInput{
		ProductID: req.ProductID,
		VariantID: req.VariantID,
		Quantity:  req.Quantity,
	}
}

type updateItemRequest struct {
	ProductID string  `json:"product_id" binding:"required"`
	VariantID *string `json:"variant_id"`
	Quantity  *int    `json:"quantity" binding:"required"`
}

func (s *Server) updateCartItem(c *gin.Context) {
	var req updateItemRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cart, err := s.carts.UpdateItemQuantity(c.Request.Context(), currentIdentity(c), req.ProductID, req.VariantID, *req.Quantity)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cart": cart})
}

func (s *Server) getCart(c *gin.Context) {
	cart, err := s.carts.GetCart(c.Request.Context(), currentIdentity(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cart": cart})
}

// associateCart folds the caller's guest cart into their user cart. The
// guest marker cookie is dropped either way: after a merge it is spent, and
// with nothing to merge it is stale.
func (s *Server) associateCart(c *gin.Context) {
	user := currentUser(c)
	guestID, _ := c.Cookie(guestCookie)

	cart, err := s.carts.Reconcile(c.Request.Context(), user.ID, guestID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	clearGuestCookie(c)
	c.JSON(http.StatusOK, gin.H{"cart": cart})
}
