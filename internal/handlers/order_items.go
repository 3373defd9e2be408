package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"agency-backend/internal/apperr"
	"agency-backend/internal/models"
	"agency-backend/internal/store"
	"agency-backend/internal/validation"
)

type OrderItemStore interface {
	List(ctx context.Context, orderID *primitive.ObjectID) ([]models.OrderItem, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.OrderItem, error)
	Create(ctx context.Context, item *models.OrderItem) error
	Update(ctx context.Context, id primitive.ObjectID, update store.OrderItemUpdate) (*models.OrderItem, error)
	Delete(ctx context.Context, id primitive.ObjectID) error
}

type createOrderItemRequest struct {
	UnitAmount  float64  `json:"unitAmount" binding:"gte=0"`
	Quantity    int      `json:"quantity" binding:"required,min=1"`
	TotalAmount *float64 `json:"totalAmount" binding:"omitempty,gte=0"`
	OrderID     string   `json:"orderId" binding:"required,objectid"`
	ServiceID   string   `json:"serviceId" binding:"required,objectid"`
}

type updateOrderItemRequest struct {
	UnitAmount  *float64 `json:"unitAmount" binding:"omitempty,gte=0"`
	Quantity    *int     `json:"quantity" binding:"omitempty,min=1"`
	TotalAmount *float64 `json:"totalAmount" binding:"omitempty,gte=0"`
	OrderID     *string  `json:"orderId" binding:"omitempty,objectid"`
	ServiceID   *string  `json:"serviceId" binding:"omitempty,objectid"`
}

func (r updateOrderItemRequest) empty() bool {
	return r.UnitAmount == nil && r.Quantity == nil && r.TotalAmount == nil && r.OrderID == nil && r.ServiceID == nil
}

func (r updateOrderItemRequest) touchesAmounts() bool {
	return r.UnitAmount != nil || r.Quantity != nil || r.TotalAmount != nil
}

func ListOrderItems(items OrderItemStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /order-items"
		defer handlePanic(c, route)

		var orderID *primitive.ObjectID
		if raw := c.Query("orderId"); raw != "" {
			id, err := validation.ParseID(raw, "orderId")
			if err != nil {
				respondError(c, route, err)
				return
			}
			orderID = &id
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		list, err := items.List(ctx, orderID)
		if err != nil {
			respondError(c, route, storeError("order item", err))
			return
		}
		page, err := paginate(c, list)
		if err != nil {
			respondError(c, route, err)
			return
		}
		respond(c, http.StatusOK, "order items retrieved", page)
	}
}

func GetOrderItem(items OrderItemStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /order-items/:id"
		defer handlePanic(c, route)

		id, err := validation.ParseID(c.Param("id"), "id")
		if err != nil {
			respondError(c, route, err)
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		item, err := items.GetByID(ctx, id)
		if err != nil {
			respondError(c, route, storeError("order item", err))
			return
		}
		respond(c, http.StatusOK, "order item retrieved", item)
	}
}

func CreateOrderItem(items OrderItemStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /order-items"
		defer handlePanic(c, route)

		var req createOrderItemRequest
		if err := validation.BindJSON(c, &req); err != nil {
			respondError(c, route, err)
			return
		}

		total, err := itemTotal("totalAmount", req.UnitAmount, req.Quantity, req.TotalAmount)
		if err != nil {
			respondError(c, route, apperr.Validation("validation failed", err.Error()))
			return
		}
		orderID, _ := primitive.ObjectIDFromHex(req.OrderID)
		serviceID, _ := primitive.ObjectIDFromHex(req.ServiceID)
		item := &models.OrderItem{
			UnitAmount:  req.UnitAmount,
			Quantity:    req.Quantity,
			TotalAmount: total,
			OrderID:     orderID,
			ServiceID:   serviceID,
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		if err := items.Create(ctx, item); err != nil {
			respondError(c, route, storeError("order item", err))
			return
		}
		respond(c, http.StatusCreated, "order item created", item)
	}
}

func UpdateOrderItem(items OrderItemStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PUT /order-items/:id"
		defer handlePanic(c, route)

		id, err := validation.ParseID(c.Param("id"), "id")
		if err != nil {
			respondError(c, route, err)
			return
		}

		var req updateOrderItemRequest
		if err := validation.BindJSON(c, &req); err != nil {
			respondError(c, route, err)
			return
		}
		if req.empty() {
			respondError(c, route, apperr.Validation("validation failed", "at least one field must be provided"))
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		update := store.OrderItemUpdate{
			UnitAmount: req.UnitAmount,
			Quantity:   req.Quantity,
		}
		if req.touchesAmounts() {
			current, err := items.GetByID(ctx, id)
			if err != nil {
				respondError(c, route, storeError("order item", err))
				return
			}
			unit, quantity := current.UnitAmount, current.Quantity
			if req.UnitAmount != nil {
				unit = *req.UnitAmount
			}
			if req.Quantity != nil {
				quantity = *req.Quantity
			}
			total, err := itemTotal("totalAmount", unit, quantity, req.TotalAmount)
			if err != nil {
				respondError(c, route, apperr.Validation("validation failed", err.Error()))
				return
			}
			update.TotalAmount = &total
		}
		if req.OrderID != nil {
			orderID, _ := primitive.ObjectIDFromHex(*req.OrderID)
			update.OrderID = &orderID
		}
		if req.ServiceID != nil {
			serviceID, _ := primitive.ObjectIDFromHex(*req.ServiceID)
			update.ServiceID = &serviceID
		}

		item, err := items.Update(ctx, id, update)
		if err != nil {
			respondError(c, route, storeError("order item", err))
			return
		}
		respond(c, http.StatusOK, "order item updated", item)
	}
}

func DeleteOrderItem(items OrderItemStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "DELETE /order-items/:id"
		defer handlePanic(c, route)

		id, err := validation.ParseID(c.Param("id"), "id")
		if err != nil {
			respondError(c, route, err)
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		if err := items.Delete(ctx, id); err != nil {
			respondError(c, route, storeError("order item", err))
			return
		}
		respond(c, http.StatusOK, "order item deleted", nil)
	}
}
