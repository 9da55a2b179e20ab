package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/awraqsoft/munaqasat/internal/config"
	"github.com/awraqsoft/munaqasat/internal/recon"
	"github.com/awraqsoft/munaqasat/internal/service"
	"github.com/awraqsoft/munaqasat/internal/store"
)

// Handlers is the handler collection.
type Handlers struct {
	Auth     *AuthHandler
	Tender   *TenderHandler
	Material *MaterialHandler
	Document *DocumentHandler
	Activity *ActivityHandler
	Nav      *NavStateHandler
}

// NewHandlers builds all handlers from the service graph.
func NewHandlers(svc *service.Services, cfg *config.Config) *Handlers {
	return &Handlers{
		Auth:     NewAuthHandler(svc.Auth),
		Tender:   NewTenderHandler(svc.Tender),
		Material: NewMaterialHandler(svc.Material),
		Document: NewDocumentHandler(svc.Document),
		Activity: NewActivityHandler(svc.Activity, svc.Hub),
		Nav:      NewNavStateHandler(svc.Pending),
	}
}

// Response is the common response envelope.
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Success writes a 200 envelope.
func Success(c *gin.Context, data interface{}) {
	c.JSON(200, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// Created writes a 201 envelope.
func Created(c *gin.Context, data interface{}) {
	c.JSON(201, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// Error writes an error envelope; the HTTP status is the leading three
// digits of the application code.
func Error(c *gin.Context, code int, message string) {
	statusCode := code / 100
	if statusCode < 100 || statusCode > 599 {
		statusCode = 500
	}
	c.JSON(statusCode, Response{
		Code:    code,
		Message: message,
	})
}

func BadRequest(c *gin.Context, message string) {
	Error(c, 40000, message)
}

func Unauthorized(c *gin.Context, message string) {
	Error(c, 40100, message)
}

func Forbidden(c *gin.Context, message string) {
	Error(c, 40300, message)
}

func NotFound(c *gin.Context, message string) {
	Error(c, 40400, message)
}

func Conflict(c *gin.Context, message string) {
	Error(c, 40900, message)
}

func InternalError(c *gin.Context, message string) {
	Error(c, 50000, message)
}

// GetActor builds the service actor from the JWT middleware context.
func GetActor(c *gin.Context) service.Actor {
	return service.Actor{
		ID:        c.GetString("user_id"),
		CompanyID: c.GetString("company_id"),
	}
}

// ServiceError maps domain errors onto the response envelope.
func ServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		NotFound(c, err.Error())
	case errors.Is(err, store.ErrUnauthorized):
		Forbidden(c, err.Error())
	case errors.Is(err, recon.ErrBusy):
		Error(c, 40901, err.Error())
	case errors.Is(err, service.ErrDuplicateReference),
		errors.Is(err, service.ErrDuplicateMaterial),
		errors.Is(err, service.ErrEmailTaken):
		Conflict(c, err.Error())
	case errors.Is(err, service.ErrInvalidCredentials):
		Unauthorized(c, err.Error())
	case errors.Is(err, service.ErrInvalidStatus),
		errors.Is(err, service.ErrUnknownMaterialType):
		BadRequest(c, err.Error())
	default:
		InternalError(c, err.Error())
	}
}
