package httpx

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/MikeMC777/chili-ordenes/internal/auth"
	"github.com/MikeMC777/chili-ordenes/internal/idempotency"
	"github.com/MikeMC777/chili-ordenes/internal/order"
	"github.com/MikeMC777/chili-ordenes/internal/product"
	"github.com/MikeMC777/chili-ordenes/internal/user"
)

var statusTable = []struct {
	err    error
	status int
}{
	{order.ErrValidation, http.StatusBadRequest},
	{order.ErrInsufficientStock, http.StatusBadRequest},
	{order.ErrInactiveProduct, http.StatusBadRequest},
	{order.ErrProductNotFound, http.StatusBadRequest},
	{order.ErrInvalidTransition, http.StatusBadRequest},
	{product.ErrInvalid, http.StatusBadRequest},
	{user.ErrInvalid, http.StatusBadRequest},
	{user.ErrAlreadyExist, http.StatusBadRequest},
	{auth.ErrUnauthenticated, http.StatusUnauthorized},
	{user.ErrInvalidCredentials, http.StatusUnauthorized},
	{auth.ErrForbidden, http.StatusForbidden},
	{order.ErrNotFound, http.StatusNotFound},
	{product.ErrNotFound, http.StatusNotFound},
	{user.ErrNotFound, http.StatusNotFound},
	{order.ErrConflict, http.StatusConflict},
	{idempotency.ErrInFlight, http.StatusConflict},
}

// Status maps a domain error to its HTTP status; unknown errors are 500.
func Status(err error) int {
	for _, e := range statusTable {
		if errors.Is(err, e.err) {
			return e.status
		}
	}
	return http.StatusInternalServerError
}

// WriteError answers with {"error": msg}. Internal errors are logged and
// their detail withheld from the client.
func WriteError(c *gin.Context, err error) {
	status := Status(err)
	if status == http.StatusInternalServerError {
		log.Printf("[http] rid=%s %s %s err=%v", RID(c), c.Request.Method, c.Request.URL.Path, err)
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
