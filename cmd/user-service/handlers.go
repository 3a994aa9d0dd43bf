package main

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/MikeMC777/chili-ordenes/internal/httpx"
	"github.com/MikeMC777/chili-ordenes/internal/product"
	"github.com/MikeMC777/chili-ordenes/internal/user"
)

func registerRoutes(r gin.IRouter, svc *user.Service) {
	r.POST("/auth/register", registerHandler(svc))
	r.POST("/auth/login", loginHandler(svc))
}

// registerHandler godoc
// @Summary  Register a USER account
// @Tags     auth
// @Accept   json
// @Produce  json
// @Param    body  body  user.RegisterRequest  true  "Account"
// @Success  201 {object} user.User
// @Failure  400 {object} product.HTTPError
// @Router   /auth/register [post]
func registerHandler(svc *user.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req user.RegisterRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, product.HTTPError{Error: "invalid json"})
			return
		}
		u, err := svc.Register(c.Request.Context(), req)
		if err != nil {
			httpx.WriteError(c, err)
			return
		}
		c.JSON(http.StatusCreated, u)
	}
}

// loginHandler godoc
// @Summary  Exchange credentials for a bearer token
// @Tags     auth
// @Accept   json
// @Produce  json
// @Param    body  body  user.LoginRequest  true  "Credentials"
// @Success  200 {object} user.LoginResponse
// @Failure  401 {object} product.HTTPError
// @Router   /auth/login [post]
func loginHandler(svc *user.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req user.LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, product.HTTPError{Error: "invalid json"})
			return
		}
		resp, err := svc.Login(c.Request.Context(), req)
		if err != nil {
			httpx.WriteError(c, err)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}
