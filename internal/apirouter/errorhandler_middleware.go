package apirouter

import "github.com/gin-gonic/gin"

// ErrorHandlerMiddleware translates the last gin.Error attached to the
// context (via c.Error(err)) into the SPEC_FULL.md §6 envelope, mirroring
// the teacher's errorhandler_middleware.go single-responsibility shape.
func ErrorHandlerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		ginErr := c.Errors.Last()
		if ginErr == nil {
			return
		}

		resp := asErrorResponse(ginErr.Err)
		c.JSON(resp.Code, resp)
	}
}
