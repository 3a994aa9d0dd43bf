package main

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MikeMC777/chili-ordenes/internal/auth"
	"github.com/MikeMC777/chili-ordenes/internal/httpx"
	prod "github.com/MikeMC777/chili-ordenes/internal/product"
)

func registerRoutes(r gin.IRouter, repo prod.Repository, v httpx.Verifier) {
	r.GET("/products", listProductsHandler(repo, false))
	r.GET("/products/:id", getProductHandler(repo))

	admin := r.Group("/", httpx.Authenticate(v), httpx.RequireRole(auth.RoleAdmin))
	admin.GET("/products/all", listProductsHandler(repo, true))
	admin.POST("/products", createProductHandler(repo))
	admin.PUT("/products/:id", updateProductHandler(repo))
	admin.DELETE("/products/:id", deleteProductHandler(repo))
}

// fromRequest validates the payload into a product.
func fromRequest(req prod.ProductRequest) (prod.Product, error) {
	price, err := decimal.NewFromString(strings.TrimSpace(req.Price))
	if err != nil {
		return prod.Product{}, fmt.Errorf("%w: price must be a decimal", prod.ErrInvalid)
	}
	p := prod.Product{
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		Price:       price,
		Stock:       req.Stock,
		IsActive:    true,
	}
	if req.IsActive != nil {
		p.IsActive = *req.IsActive
	}
	return p, prod.Validate(&p)
}

func toResponses(ps []prod.Product) []prod.ProductResponse {
	out := make([]prod.ProductResponse, 0, len(ps))
	for _, p := range ps {
		out = append(out, prod.ToResponse(p))
	}
	return out
}

// listProductsHandler godoc
// @Summary  List products (active only unless includeInactive)
// @Tags     products
// @Produce  json
// @Success  200 {array} product.ProductResponse
// @Router   /products [get]
func listProductsHandler(repo prod.Repository, includeInactive bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		ps, err := repo.List(c.Request.Context(), includeInactive)
		if err != nil {
			httpx.WriteError(c, err)
			return
		}
		c.JSON(http.StatusOK, toResponses(ps))
	}
}

// getProductHandler godoc
// @Summary  Get product by id
// @Tags     products
// @Produce  json
// @Param    id  path  string  true  "Product ID"
// @Success  200 {object} product.ProductResponse
// @Failure  404 {object} product.HTTPError
// @Router   /products/{id} [get]
func getProductHandler(repo prod.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := repo.GetByID(c.Request.Context(), c.Param("id"))
		if err != nil {
			httpx.WriteError(c, err)
			return
		}
		c.JSON(http.StatusOK, prod.ToResponse(*p))
	}
}

func createProductHandler(repo prod.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req prod.ProductRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, prod.HTTPError{Error: "invalid json"})
			return
		}
		p, err := fromRequest(req)
		if err != nil {
			httpx.WriteError(c, err)
			return
		}
		p.ID = uuid.NewString()
		if err := repo.Create(c.Request.Context(), &p); err != nil {
			httpx.WriteError(c, err)
			return
		}
		c.JSON(http.StatusCreated, prod.ToResponse(p))
	}
}

func updateProductHandler(repo prod.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req prod.ProductRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, prod.HTTPError{Error: "invalid json"})
			return
		}
		p, err := fromRequest(req)
		if err != nil {
			httpx.WriteError(c, err)
			return
		}
		p.ID = c.Param("id")
		if err := repo.Update(c.Request.Context(), &p); err != nil {
			httpx.WriteError(c, err)
			return
		}
		c.JSON(http.StatusOK, prod.ToResponse(p))
	}
}

// deleteProductHandler deactivates; order history keeps referring to the row.
func deleteProductHandler(repo prod.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := repo.Deactivate(c.Request.Context(), c.Param("id")); err != nil {
			httpx.WriteError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "product deactivated"})
	}
}
