package server

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/paysettle/internal/observability/context"
	paymentdomain "github.com/smallbiznis/paysettle/internal/payment/domain"
)

const contextOrderCodeKey = "order_code"

// OrderCodeParam validates the :orderCode path segment and tags the request
// context with it so every log line of the request carries the code.
func OrderCodeParam() gin.HandlerFunc {
	return func(c *gin.Context) {
		code, err := strconv.ParseInt(strings.TrimSpace(c.Param("orderCode")), 10, 64)
		if err != nil || code <= 0 {
			AbortWithError(c, paymentdomain.ErrInvalidOrderCode)
			return
		}

		c.Set(contextOrderCodeKey, code)
		c.Request = c.Request.WithContext(obscontext.WithOrderCode(c.Request.Context(), code))
		c.Next()
	}
}

func orderCodeFromContext(c *gin.Context) int64 {
	return c.GetInt64(contextOrderCodeKey)
}
