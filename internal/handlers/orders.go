package handlers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"agency-backend/internal/apperr"
	"agency-backend/internal/middleware"
	"agency-backend/internal/models"
	"agency-backend/internal/store"
	"agency-backend/internal/validation"
)

type OrderStore interface {
	Create(ctx context.Context, order *models.Order, items []models.OrderItem) ([]models.OrderItem, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Order, error)
	GetDetailed(ctx context.Context, id primitive.ObjectID) (*models.Order, error)
	List(ctx context.Context, filter store.OrderFilter) ([]models.Order, error)
	Update(ctx context.Context, id primitive.ObjectID, update store.OrderUpdate) (*models.Order, error)
	Delete(ctx context.Context, id primitive.ObjectID) error
}

type orderItemInput struct {
	ServiceID   string   `json:"serviceId" binding:"required,objectid"`
	UnitAmount  float64  `json:"unitAmount" binding:"gte=0"`
	Quantity    int      `json:"quantity" binding:"required,min=1"`
	TotalAmount *float64 `json:"totalAmount" binding:"omitempty,gte=0"`
}

type createOrderRequest struct {
	StatusMain    models.OrderStatus   `json:"statusMain" binding:"omitempty,oneof=NEW VALIDATED IN_PROGRESS COMPLETED ARCHIVED"`
	StatusPayment models.PaymentStatus `json:"statusPayment" binding:"omitempty,oneof=PENDING_DEPOSIT DEPOSIT_PAID PENDING_FINAL FULLY_PAID"`
	TotalAmount   *float64             `json:"totalAmount" binding:"omitempty,gte=0"`
	DepositAmount float64              `json:"depositAmount" binding:"gte=0"`
	DeadlineDate  *time.Time           `json:"deadlineDate"`
	UserID        string               `json:"userId" binding:"omitempty,objectid"`
	Items         []orderItemInput     `json:"items" binding:"omitempty,dive"`
}

type updateOrderRequest struct {
	StatusMain    *models.OrderStatus   `json:"statusMain" binding:"omitempty,oneof=NEW VALIDATED IN_PROGRESS COMPLETED ARCHIVED"`
	StatusPayment *models.PaymentStatus `json:"statusPayment" binding:"omitempty,oneof=PENDING_DEPOSIT DEPOSIT_PAID PENDING_FINAL FULLY_PAID"`
	TotalAmount   *float64              `json:"totalAmount" binding:"omitempty,gte=0"`
	DepositAmount *float64              `json:"depositAmount" binding:"omitempty,gte=0"`
	DeadlineDate  *time.Time            `json:"deadlineDate"`
	UserID        *string               `json:"userId" binding:"omitempty,objectid"`
}

func (r updateOrderRequest) empty() bool {
	return r.StatusMain == nil && r.StatusPayment == nil && r.TotalAmount == nil &&
		r.DepositAmount == nil && r.DeadlineDate == nil && r.UserID == nil
}

// buildOrder turns the request into an order owned by the caller. Only
// administrators may create orders for someone else or preset the payment
// status.
func buildOrder(caller *models.User, req createOrderRequest) (*models.Order, []models.OrderItem, error) {
	order := &models.Order{
		StatusMain:    req.StatusMain,
		DepositAmount: req.DepositAmount,
		DeadlineDate:  req.DeadlineDate,
		UserID:        caller.ID,
	}

	if caller.IsAdmin() {
		order.StatusPayment = req.StatusPayment
		if req.UserID != "" {
			order.UserID, _ = primitive.ObjectIDFromHex(req.UserID)
		}
	} else if req.StatusPayment != "" && req.StatusPayment != models.PaymentPendingDeposit {
		return nil, nil, apperr.Forbidden("only administrators may set statusPayment")
	}

	items := make([]models.OrderItem, 0, len(req.Items))
	var problems []string
	for i, in := range req.Items {
		total, err := itemTotal(fmt.Sprintf("items[%d].totalAmount", i), in.UnitAmount, in.Quantity, in.TotalAmount)
		if err != nil {
			problems = append(problems, err.Error())
			continue
		}
		serviceID, _ := primitive.ObjectIDFromHex(in.ServiceID)
		items = append(items, models.OrderItem{
			UnitAmount:  in.UnitAmount,
			Quantity:    in.Quantity,
			TotalAmount: total,
			ServiceID:   serviceID,
		})
	}
	if len(problems) > 0 {
		return nil, nil, apperr.Validation("validation failed", problems...)
	}

	switch {
	case req.TotalAmount != nil:
		order.TotalAmount = *req.TotalAmount
	case len(items) > 0:
		order.TotalAmount = sumAmounts(lo.Map(items, func(item models.OrderItem, _ int) float64 {
			return item.TotalAmount
		}))
	}
	return order, items, nil
}

func ListOrders(orders OrderStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /orders"
		defer handlePanic(c, route)

		caller, _ := middleware.CurrentUser(c)

		filter := store.OrderFilter{}
		if !caller.IsAdmin() {
			filter.UserID = &caller.ID
		} else if raw := c.Query("userId"); raw != "" {
			userID, err := validation.ParseID(raw, "userId")
			if err != nil {
				respondError(c, route, err)
				return
			}
			filter.UserID = &userID
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		list, err := orders.List(ctx, filter)
		if err != nil {
			respondError(c, route, storeError("order", err))
			return
		}
		page, err := paginate(c, list)
		if err != nil {
			respondError(c, route, err)
			return
		}
		respond(c, http.StatusOK, "orders retrieved", page)
	}
}

func GetOrder(orders OrderStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /orders/:id"
		defer handlePanic(c, route)

		id, err := validation.ParseID(c.Param("id"), "id")
		if err != nil {
			respondError(c, route, err)
			return
		}
		caller, _ := middleware.CurrentUser(c)

		ctx, cancel := requestContext(c)
		defer cancel()

		order, err := orders.GetDetailed(ctx, id)
		if err != nil {
			respondError(c, route, storeError("order", err))
			return
		}
		if !order.OwnedBy(caller.ID) && !caller.IsAdmin() {
			respondError(c, route, apperr.Forbidden("not allowed to access this order"))
			return
		}
		respond(c, http.StatusOK, "order retrieved", order)
	}
}

func CreateOrder(orders OrderStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /orders"
		defer handlePanic(c, route)

		caller, _ := middleware.CurrentUser(c)

		var req createOrderRequest
		if err := validation.BindJSON(c, &req); err != nil {
			respondError(c, route, err)
			return
		}

		order, items, err := buildOrder(caller, req)
		if err != nil {
			respondError(c, route, err)
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		created, err := orders.Create(ctx, order, items)
		if err != nil {
			respondError(c, route, storeError("order", err))
			return
		}
		order.Items = created

		log.Printf("[ORDER] [INFO] order %s created for user %s with %d items", order.ID.Hex(), order.UserID.Hex(), len(created))
		respond(c, http.StatusCreated, "order created", order)
	}
}

func UpdateOrder(orders OrderStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PUT /orders/:id"
		defer handlePanic(c, route)

		id, err := validation.ParseID(c.Param("id"), "id")
		if err != nil {
			respondError(c, route, err)
			return
		}

		var req updateOrderRequest
		if err := validation.BindJSON(c, &req); err != nil {
			respondError(c, route, err)
			return
		}
		if req.empty() {
			respondError(c, route, apperr.Validation("validation failed", "at least one field must be provided"))
			return
		}

		update := store.OrderUpdate{
			StatusMain:    req.StatusMain,
			StatusPayment: req.StatusPayment,
			TotalAmount:   req.TotalAmount,
			DepositAmount: req.DepositAmount,
			DeadlineDate:  req.DeadlineDate,
		}
		if req.UserID != nil {
			userID, _ := primitive.ObjectIDFromHex(*req.UserID)
			update.UserID = &userID
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		order, err := orders.Update(ctx, id, update)
		if err != nil {
			respondError(c, route, storeError("order", err))
			return
		}
		respond(c, http.StatusOK, "order updated", order)
	}
}

func DeleteOrder(orders OrderStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "DELETE /orders/:id"
		defer handlePanic(c, route)

		id, err := validation.ParseID(c.Param("id"), "id")
		if err != nil {
			respondError(c, route, err)
			return
		}
		caller, _ := middleware.CurrentUser(c)

		ctx, cancel := requestContext(c)
		defer cancel()

		order, err := orders.GetByID(ctx, id)
		if err != nil {
			respondError(c, route, storeError("order", err))
			return
		}
		if !order.OwnedBy(caller.ID) && !caller.IsAdmin() {
			respondError(c, route, apperr.Forbidden("not allowed to delete this order"))
			return
		}

		if err := orders.Delete(ctx, id); err != nil {
			if errors.Is(err, store.ErrStateConflict) {
				respondError(c, route, apperr.Conflict("order payment has started; it can no longer be deleted"))
				return
			}
			respondError(c, route, storeError("order", err))
			return
		}
		log.Printf("[ORDER] [INFO] order %s deleted by %s", id.Hex(), caller.ID.Hex())
		respond(c, http.StatusOK, "order deleted", nil)
	}
}
