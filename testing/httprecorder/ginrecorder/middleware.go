/*
Package ginrecorder provides a middleware to wire a httprecorder into Gin routers used in test fakes.
*/
package ginrecorder

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/esmem/esmem/o11y"
	"github.com/esmem/esmem/testing/httprecorder"
)

func Middleware(ctx context.Context, rec *httprecorder.RequestRecorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		err := rec.Record(c.Request)
		if err != nil {
			o11y.LogError(ctx, "ginrecorder: record", err)
		}
		c.Next()
	}
}
