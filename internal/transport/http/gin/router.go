package httpgin

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/arunkumar-com/tablebook/internal/domain"
	redisrepo "github.com/arunkumar-com/tablebook/internal/repository/redis"
	"github.com/arunkumar-com/tablebook/internal/service"
	"github.com/arunkumar-com/tablebook/internal/service/booking"
	"github.com/arunkumar-com/tablebook/internal/service/query"
)

func NewRouter(
	svcs *service.Services,
	idem *redisrepo.IdempotencyStore,
	jwtSecret string,
	logger *slog.Logger,
	middlewares ...gin.HandlerFunc,
) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery(), LoggingMiddleware(logger), RequestIDMiddleware(), CORS())
	for _, m := range middlewares {
		if m != nil {
			r.Use(m)
		}
	}

	// Swagger UI
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// health
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")

	// Public API
	api.GET("/restaurants/:id", handleGetRestaurant(svcs))
	api.GET("/reservations/slots", handleListSlots(svcs))

	// Authenticated API
	authed := api.Group("", AuthMiddleware(jwtSecret))
	authed.POST("/reservations", handleCreateReservation(svcs, idem))
	authed.GET("/reservations", handleListOwn(svcs))
	authed.GET("/reservations/all", handleListAll(svcs))
	authed.GET("/reservations/:id", handleGetReservation(svcs))
	authed.DELETE("/reservations/:id", handleCancelReservation(svcs))
	authed.POST("/admin/reconcile", handleReconcile(svcs))

	return r
}

// --- Handlers with Swagger annotations ---

// @Summary  Get restaurant configuration
// @Param    id  path  string  true  "Restaurant ID (uuid)"
// @Success  200  {object}  RestaurantResponse
// @Failure  404  {object}  ErrorResponse
// @Router   /api/restaurants/{id} [get]
func handleGetRestaurant(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		r, err := svcs.Query.GetRestaurant(c.Request.Context(), id)
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, toRestaurantResponse(r), "public, max-age=60", true)
	}
}

// @Summary  List slot availability for a restaurant and date
// @Param    restaurantId  query  string  true  "Restaurant ID (uuid)"
// @Param    date          query  string  true  "Date (YYYY-MM-DD)"
// @Success  200  {object}  SlotsResponse
// @Failure  400  {object}  ErrorResponse
// @Failure  404  {object}  ErrorResponse
// @Router   /api/reservations/slots [get]
func handleListSlots(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		restaurantID, err := uuid.Parse(c.Query("restaurantId"))
		if err != nil {
			badRequest(c, "invalid restaurantId")
			return
		}

		slots, err := svcs.Query.ListSlots(c.Request.Context(), restaurantID, c.Query("date"))
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, SlotsResponse{Slots: slots}, "public, max-age=15", true)
	}
}

// @Summary  Create reservation (idempotent)
// @Param    req body  CreateReservationRequest true "payload"
// @Header   201 {string} Idempotency-Key "echo"
// @Success  201 {object} ReservationResponse
// @Failure  400 {object} ErrorResponse
// @Failure  404 {object} ErrorResponse "unknown restaurant"
// @Failure  409 {object} ErrorResponse "no availability / idem in progress"
// @Failure  429 {object} ErrorResponse "rate limited"
// @Security BearerAuth
// @Router   /api/reservations [post]
func handleCreateReservation(
	svcs *service.Services,
	idem *redisrepo.IdempotencyStore,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		ident, ok := identityFrom(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthenticated"})
			return
		}

		var req CreateReservationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		restaurantID, err := uuid.Parse(req.RestaurantID)
		if err != nil {
			badRequest(c, "invalid restaurantId")
			return
		}

		idemKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
		var idemStorageKey string
		if idem != nil && idemKey != "" {
			idemStorageKey = redisrepo.KeyIdemBooking(ident.UserID, idemKey)

			if payload, ok, _ := idem.GetResult(c.Request.Context(), idemStorageKey); ok {
				c.Header("Idempotency-Key", idemKey)
				c.Data(http.StatusCreated, "application/json; charset=utf-8", []byte(payload))
				return
			}

			locked, err := idem.AcquireLock(c.Request.Context(), idemStorageKey, 60*time.Second)
			if err != nil {
				respondErr(c, err)
				return
			}
			if !locked {
				if payload, ok, _ := idem.GetResult(c.Request.Context(), idemStorageKey); ok {
					c.Header("Idempotency-Key", idemKey)
					c.Data(http.StatusCreated, "application/json; charset=utf-8", []byte(payload))
					return
				}
				c.Header("Retry-After", "1")
				c.JSON(http.StatusConflict, ErrorResponse{Error: "idempotency key in progress"})
				return
			}
		}

		res, err := svcs.Booking.Book(
			c.Request.Context(),
			ident,
			booking.Request{
				RestaurantID:    restaurantID,
				Date:            req.Date,
				Time:            req.Time,
				TableType:       domain.TableType(req.TableType),
				SpecialRequests: req.SpecialRequests,
			},
			"ip:"+c.ClientIP(),
		)
		if err != nil {
			if idemStorageKey != "" && idem != nil {
				_ = idem.Release(c.Request.Context(), idemStorageKey)
			}
			respondErr(c, err)
			return
		}

		resp := toReservationResponse(res)

		if idemStorageKey != "" && idem != nil {
			b, _ := json.Marshal(resp)
			_ = idem.SaveResult(c.Request.Context(), idemStorageKey, string(b))
			c.Header("Idempotency-Key", idemKey)
		}

		c.JSON(http.StatusCreated, resp)
	}
}

// @Summary  Cancel reservation
// @Param    id  path  string  true  "Reservation ID (uuid)"
// @Success  204
// @Failure  403 {object} ErrorResponse
// @Failure  404 {object} ErrorResponse
// @Security BearerAuth
// @Router   /api/reservations/{id} [delete]
func handleCancelReservation(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		ident, ok := identityFrom(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthenticated"})
			return
		}
		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		if err := svcs.Booking.Cancel(c.Request.Context(), ident, id); err != nil {
			respondErr(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// @Summary  List own reservations
// @Success  200 {array} ReservationResponse
// @Security BearerAuth
// @Router   /api/reservations [get]
func handleListOwn(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		ident, ok := identityFrom(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthenticated"})
			return
		}
		out, err := svcs.Query.ListOwn(c.Request.Context(), ident)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, toReservationResponses(out))
	}
}

// @Summary  List all reservations (admin)
// @Success  200 {array} ReservationResponse
// @Failure  403 {object} ErrorResponse
// @Security BearerAuth
// @Router   /api/reservations/all [get]
func handleListAll(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		ident, ok := identityFrom(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthenticated"})
			return
		}
		out, err := svcs.Query.ListAll(c.Request.Context(), ident)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, toReservationResponses(out))
	}
}

// @Summary  Get reservation
// @Param    id  path  string  true  "Reservation ID (uuid)"
// @Success  200 {object} ReservationResponse
// @Failure  403 {object} ErrorResponse
// @Failure  404 {object} ErrorResponse
// @Security BearerAuth
// @Router   /api/reservations/{id} [get]
func handleGetReservation(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		ident, ok := identityFrom(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthenticated"})
			return
		}
		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		res, err := svcs.Query.GetReservation(c.Request.Context(), ident, id)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, toReservationResponse(res))
	}
}

// @Summary  Trigger a ledger reconciliation pass (admin)
// @Success  200 {object} ReconcileResponse
// @Failure  403 {object} ErrorResponse
// @Security BearerAuth
// @Router   /api/admin/reconcile [post]
func handleReconcile(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		ident, ok := identityFrom(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthenticated"})
			return
		}
		if !ident.Admin {
			c.JSON(http.StatusForbidden, ErrorResponse{Error: "forbidden"})
			return
		}
		fixed, err := svcs.Reconcile.Run(c.Request.Context())
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, ReconcileResponse{Fixed: fixed})
	}
}

// --- Helpers ---

func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	v, err := uuid.Parse(c.Param(name))
	if err != nil {
		badRequest(c, "invalid "+name)
		return uuid.Nil, false
	}
	return v, true
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}

func respondErr(c *gin.Context, err error) {
	if err == nil {
		c.Status(http.StatusNoContent)
		return
	}

	switch {
	// booking service
	case errors.Is(err, booking.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid input"})
		return
	case errors.Is(err, booking.ErrNoAvailability):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "no availability"})
		return
	case errors.Is(err, booking.ErrForbidden):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "forbidden"})
		return
	case errors.Is(err, booking.ErrRestaurantNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "restaurant not found"})
		return
	case errors.Is(err, booking.ErrReservationNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "reservation not found"})
		return
	case errors.Is(err, booking.ErrRateLimited):
		c.Header("Retry-After", "60")
		c.JSON(http.StatusTooManyRequests, ErrorResponse{Error: "rate limited"})
		return
	case errors.Is(err, booking.ErrPersistenceFailure):
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "could not persist reservation"})
		return
	// query service
	case errors.Is(err, query.ErrInvalidDate):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid date"})
		return
	case errors.Is(err, query.ErrRestaurantNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "restaurant not found"})
		return
	case errors.Is(err, query.ErrReservationNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "reservation not found"})
		return
	case errors.Is(err, query.ErrForbidden):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "forbidden"})
		return
	}

	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
}
