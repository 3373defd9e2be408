package handlers

import (
	"context"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"agency-backend/internal/apperr"
	"agency-backend/internal/gateway"
	"agency-backend/internal/middleware"
	"agency-backend/internal/models"
	"agency-backend/internal/store"
	"agency-backend/internal/validation"
)

type ServiceStore interface {
	List(ctx context.Context, activeOnly bool) ([]models.Service, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Service, error)
	Create(ctx context.Context, service *models.Service) error
	Update(ctx context.Context, id primitive.ObjectID, update store.ServiceUpdate) (*models.Service, error)
	SetStripeProductID(ctx context.Context, id primitive.ObjectID, productID string) error
	Delete(ctx context.Context, id primitive.ObjectID) error
}

// ProductGateway mirrors services as gateway products.
type ProductGateway interface {
	CreateProduct(ctx context.Context, in gateway.ProductInput) (string, error)
	UpdateProduct(ctx context.Context, productID string, in gateway.ProductInput) error
}

// Catalog groups what the service endpoints need.
type Catalog struct {
	Services  ServiceStore
	Products  ProductGateway
	Currency  string
	UploadDir string
}

type createServiceRequest struct {
	Name        string             `json:"name" binding:"required"`
	Description string             `json:"description" binding:"required"`
	BasePrice   float64            `json:"basePrice" binding:"gte=0"`
	Image       string             `json:"image"`
	Type        models.ServiceType `json:"type" binding:"required,oneof=VITRINE ECOMMERCE SAAS COACHING"`
	Features    []string           `json:"features"`
	IsActive    *bool              `json:"isActive"`
}

type updateServiceRequest struct {
	Name        *string             `json:"name" binding:"omitempty,min=1"`
	Description *string             `json:"description"`
	BasePrice   *float64            `json:"basePrice" binding:"omitempty,gte=0"`
	Image       *string             `json:"image"`
	Type        *models.ServiceType `json:"type" binding:"omitempty,oneof=VITRINE ECOMMERCE SAAS COACHING"`
	Features    *[]string           `json:"features"`
	IsActive    *bool               `json:"isActive"`
}

func (r updateServiceRequest) empty() bool {
	return r.Name == nil && r.Description == nil && r.BasePrice == nil && r.Image == nil &&
		r.Type == nil && r.Features == nil && r.IsActive == nil
}

func (cat Catalog) productInput(service models.Service) gateway.ProductInput {
	return gateway.ProductInput{
		Name:        service.Name,
		Description: service.Description,
		Active:      service.IsActive,
		UnitAmount:  gateway.MinorUnits(service.BasePrice),
		Currency:    cat.Currency,
	}
}

// seesInactive reports whether the caller asked for, and may see, inactive
// services.
func seesInactive(c *gin.Context) bool {
	user, ok := middleware.CurrentUser(c)
	return ok && user.IsAdmin() && c.Query("all") == "true"
}

func ListServices(cat Catalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /services"
		defer handlePanic(c, route)

		ctx, cancel := requestContext(c)
		defer cancel()

		list, err := cat.Services.List(ctx, !seesInactive(c))
		if err != nil {
			respondError(c, route, storeError("service", err))
			return
		}
		page, err := paginate(c, list)
		if err != nil {
			respondError(c, route, err)
			return
		}
		respond(c, http.StatusOK, "services retrieved", page)
	}
}

func GetService(cat Catalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /services/:id"
		defer handlePanic(c, route)

		id, err := validation.ParseID(c.Param("id"), "id")
		if err != nil {
			respondError(c, route, err)
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		service, err := cat.Services.GetByID(ctx, id)
		if err != nil {
			respondError(c, route, storeError("service", err))
			return
		}
		if !service.IsActive {
			if user, ok := middleware.CurrentUser(c); !ok || !user.IsAdmin() {
				respondError(c, route, apperr.NotFound("service not found"))
				return
			}
		}
		respond(c, http.StatusOK, "service retrieved", service)
	}
}

// CreateService registers the gateway product first; nothing is stored when
// the gateway refuses.
func CreateService(cat Catalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /services"
		defer handlePanic(c, route)

		var req createServiceRequest
		if err := validation.BindJSON(c, &req); err != nil {
			respondError(c, route, err)
			return
		}

		service := &models.Service{
			Name:        strings.TrimSpace(req.Name),
			Description: strings.TrimSpace(req.Description),
			BasePrice:   req.BasePrice,
			Image:       strings.TrimSpace(req.Image),
			Type:        req.Type,
			Features:    models.StringList(req.Features),
			IsActive:    req.IsActive == nil || *req.IsActive,
		}
		if service.Features == nil {
			service.Features = models.StringList{}
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		productID, err := cat.Products.CreateProduct(ctx, cat.productInput(*service))
		if err != nil {
			respondError(c, route, apperr.Upstream("payment product creation failed", err))
			return
		}
		service.StripeProductID = &productID

		if err := cat.Services.Create(ctx, service); err != nil {
			// Archive the orphaned product so it never shows up at checkout.
			orphan := cat.productInput(*service)
			orphan.Active = false
			if archiveErr := cat.Products.UpdateProduct(ctx, productID, orphan); archiveErr != nil {
				log.Printf("[%s] archive orphan product %s failed: %v", route, productID, archiveErr)
			}
			respondError(c, route, storeError("service", err))
			return
		}

		log.Printf("[SERVICE] [INFO] service %s created with product %s", service.ID.Hex(), productID)
		respond(c, http.StatusCreated, "service created", service)
	}
}

// UpdateService stores the change, then mirrors it to the gateway. Mirror
// failures are logged; the stored service is authoritative.
func UpdateService(cat Catalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PUT /services/:id"
		defer handlePanic(c, route)

		id, err := validation.ParseID(c.Param("id"), "id")
		if err != nil {
			respondError(c, route, err)
			return
		}

		var req updateServiceRequest
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

		before, err := cat.Services.GetByID(ctx, id)
		if err != nil {
			respondError(c, route, storeError("service", err))
			return
		}

		service, err := cat.Services.Update(ctx, id, store.ServiceUpdate{
			Name:        req.Name,
			Description: req.Description,
			Image:       req.Image,
			BasePrice:   req.BasePrice,
			Type:        req.Type,
			Features:    req.Features,
			IsActive:    req.IsActive,
		})
		if err != nil {
			respondError(c, route, storeError("service", err))
			return
		}

		if req.Image != nil && before.Image != service.Image {
			cat.removeImage(before.Image)
		}
		cat.mirror(ctx, service)

		respond(c, http.StatusOK, "service updated", service)
	}
}

func DeleteService(cat Catalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "DELETE /services/:id"
		defer handlePanic(c, route)

		id, err := validation.ParseID(c.Param("id"), "id")
		if err != nil {
			respondError(c, route, err)
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		service, err := cat.Services.GetByID(ctx, id)
		if err != nil {
			respondError(c, route, storeError("service", err))
			return
		}
		if err := cat.Services.Delete(ctx, id); err != nil {
			respondError(c, route, storeError("service", err))
			return
		}

		cat.removeImage(service.Image)
		if service.StripeProductID != nil {
			archived := cat.productInput(*service)
			archived.Active = false
			if err := cat.Products.UpdateProduct(ctx, *service.StripeProductID, archived); err != nil {
				log.Printf("[%s] archive product %s failed: %v", route, *service.StripeProductID, err)
			}
		}
		respond(c, http.StatusOK, "service deleted", nil)
	}
}

func (cat Catalog) mirror(ctx context.Context, service *models.Service) {
	if service.StripeProductID != nil && *service.StripeProductID != "" {
		if err := cat.Products.UpdateProduct(ctx, *service.StripeProductID, cat.productInput(*service)); err != nil {
			log.Printf("[SERVICE] [ERROR] mirror service %s failed: %v", service.ID.Hex(), err)
		}
		return
	}

	productID, err := cat.Products.CreateProduct(ctx, cat.productInput(*service))
	if err != nil {
		log.Printf("[SERVICE] [ERROR] create missing product for service %s failed: %v", service.ID.Hex(), err)
		return
	}
	if err := cat.Services.SetStripeProductID(ctx, service.ID, productID); err != nil {
		log.Printf("[SERVICE] [ERROR] store product id for service %s failed: %v", service.ID.Hex(), err)
		return
	}
	service.StripeProductID = &productID
}

func (cat Catalog) removeImage(imageURL string) {
	if cat.UploadDir == "" || !strings.HasPrefix(imageURL, imageURLPrefix) {
		return
	}
	if err := safeDeleteUpload(cat.UploadDir, imageURL); err != nil {
		log.Printf("[UPLOAD] remove %s failed: %v", imageURL, err)
	}
}
