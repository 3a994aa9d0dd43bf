package main

import (
	"context"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/MikeMC777/chili-ordenes/internal/httpx"
	"github.com/MikeMC777/chili-ordenes/internal/idempotency"
	ord "github.com/MikeMC777/chili-ordenes/internal/order"
	"github.com/MikeMC777/chili-ordenes/internal/product"
)

func registerRoutes(r gin.IRouter, svc *ord.Service, idem idempotency.Store, v httpx.Verifier) {
	g := r.Group("/orders", httpx.Authenticate(v))
	g.POST("", createOrderHandler(svc, idem))
	g.GET("", listOrdersHandler(svc))
	g.GET("/:id", getOrderHandler(svc))
	g.PUT("/:id/status", updateOrderStatusHandler(svc))
	g.PUT("/:id/cancel", cancelOrderHandler(svc))
}

func toResponses(orders []ord.Order) []ord.OrderResponse {
	out := make([]ord.OrderResponse, 0, len(orders))
	for i := range orders {
		out = append(out, ord.ToResponse(&orders[i]))
	}
	return out
}

// createOrderHandler godoc
// @Summary  Place an order for the authenticated user
// @Tags     orders
// @Accept   json
// @Produce  json
// @Param    body             body    order.CreateOrderRequest  true   "Cart"
// @Param    Idempotency-Key  header  string                    false  "Replays the original order when repeated"
// @Success  201 {object} order.OrderResponse
// @Failure  400 {object} product.HTTPError
// @Failure  409 {object} product.HTTPError
// @Security BearerAuth
// @Router   /orders [post]
func createOrderHandler(svc *ord.Service, idem idempotency.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ord.CreateOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, product.HTTPError{Error: "invalid json"})
			return
		}
		ctx := c.Request.Context()
		caller := httpx.CurrentIdentity(c)

		var key string
		if k := strings.TrimSpace(c.GetHeader("Idempotency-Key")); k != "" && idem != nil {
			key = idempotency.Key(caller.UserID, k)
			existing, claimed, err := idem.Claim(ctx, key)
			if err != nil {
				httpx.WriteError(c, err)
				return
			}
			if !claimed {
				o, err := svc.GetOrder(ctx, caller, existing)
				if err != nil {
					httpx.WriteError(c, err)
					return
				}
				c.JSON(http.StatusOK, ord.ToResponse(o))
				return
			}
		}

		o, err := svc.PlaceOrder(ctx, caller, req.Cart())
		// the key must settle even if the client has gone away
		keyCtx := context.WithoutCancel(ctx)
		if err != nil {
			if key != "" {
				if rerr := idem.Release(keyCtx, key); rerr != nil {
					log.Printf("[orders] rid=%s release idempotency key: %v", httpx.RID(c), rerr)
				}
			}
			httpx.WriteError(c, err)
			return
		}
		if key != "" {
			if err := idem.Complete(keyCtx, key, o.ID); err != nil {
				log.Printf("[orders] rid=%s store idempotency key: %v", httpx.RID(c), err)
			}
		}
		c.JSON(http.StatusCreated, ord.ToResponse(o))
	}
}

// listOrdersHandler godoc
// @Summary  List orders (admin: all, user: own), newest first
// @Tags     orders
// @Produce  json
// @Success  200 {array} order.OrderResponse
// @Security BearerAuth
// @Router   /orders [get]
func listOrdersHandler(svc *ord.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		orders, err := svc.ListOrders(c.Request.Context(), httpx.CurrentIdentity(c))
		if err != nil {
			httpx.WriteError(c, err)
			return
		}
		c.JSON(http.StatusOK, toResponses(orders))
	}
}

// getOrderHandler godoc
// @Summary  Get an order (owner or admin)
// @Tags     orders
// @Produce  json
// @Param    id  path  string  true  "Order ID"
// @Success  200 {object} order.OrderResponse
// @Failure  403 {object} product.HTTPError
// @Failure  404 {object} product.HTTPError
// @Security BearerAuth
// @Router   /orders/{id} [get]
func getOrderHandler(svc *ord.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		o, err := svc.GetOrder(c.Request.Context(), httpx.CurrentIdentity(c), c.Param("id"))
		if err != nil {
			httpx.WriteError(c, err)
			return
		}
		c.JSON(http.StatusOK, ord.ToResponse(o))
	}
}

// updateOrderStatusHandler godoc
// @Summary  Change order status (admin)
// @Tags     orders
// @Accept   json
// @Produce  json
// @Param    id    path  string                    true  "Order ID"
// @Param    body  body  order.UpdateStatusRequest  true  "New status"
// @Success  200 {object} order.OrderResponse
// @Failure  400 {object} product.HTTPError
// @Security BearerAuth
// @Router   /orders/{id}/status [put]
func updateOrderStatusHandler(svc *ord.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ord.UpdateStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, product.HTTPError{Error: "invalid json"})
			return
		}
		next, err := ord.ParseStatus(req.Status)
		if err != nil {
			httpx.WriteError(c, err)
			return
		}
		o, err := svc.AdvanceStatus(c.Request.Context(), httpx.CurrentIdentity(c), c.Param("id"), next)
		if err != nil {
			httpx.WriteError(c, err)
			return
		}
		c.JSON(http.StatusOK, ord.ToResponse(o))
	}
}

// cancelOrderHandler godoc
// @Summary  Cancel a PENDING order (owner)
// @Tags     orders
// @Produce  json
// @Param    id  path  string  true  "Order ID"
// @Success  200 {object} order.OrderResponse
// @Failure  400 {object} product.HTTPError
// @Security BearerAuth
// @Router   /orders/{id}/cancel [put]
func cancelOrderHandler(svc *ord.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		o, err := svc.CancelOrder(c.Request.Context(), httpx.CurrentIdentity(c), c.Param("id"))
		if err != nil {
			httpx.WriteError(c, err)
			return
		}
		c.JSON(http.StatusOK, ord.ToResponse(o))
	}
}
