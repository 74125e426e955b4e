// Package ginrouter builds gin engines with request tracing and panic recovery.
package ginrouter

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/esmem/esmem/o11y"
)

var once sync.Once

func Default(ctx context.Context, serverName string) *gin.Engine {
	once.Do(func() {
		gin.SetMode(gin.ReleaseMode)
	})

	r := gin.New()
	r.Use(
		Middleware(o11y.FromContext(ctx), serverName),
		Recovery(),
	)

	r.UseRawPath = true

	return r
}

// Middleware starts a span for each request and records a handler timing metric.
func Middleware(provider o11y.Provider, serverName string) gin.HandlerFunc {
	m := provider.MetricsProvider()
	return func(c *gin.Context) {
		before := time.Now()

		ctx := o11y.WithProvider(c.Request.Context(), provider)
		ctx, span := provider.StartSpan(ctx, fmt.Sprintf("http-server %s: %s %s",
			serverName, c.Request.Method, c.FullPath()))
		defer span.End()

		c.Request = c.Request.WithContext(ctx)

		route := c.FullPath()
		if route == "" {
			route = "not-found"
		}
		c.Header("X-Route", route)

		span.AddRawField("meta.type", "http_server")
		span.AddRawField("http.server_name", serverName)
		span.AddRawField("http.route", route)
		span.AddRawField("http.method", c.Request.Method)
		span.AddRawField("http.target", c.Request.URL.Path)
		span.AddRawField("http.client_ip", c.ClientIP())

		defer func() {
			status := c.Writer.Status()
			span.AddRawField("http.status_code", status)
			span.AddRawField("http.response_content_length", c.Writer.Size())

			if m != nil {
				_ = m.TimeInMilliseconds("handler",
					float64(time.Since(before).Nanoseconds())/1000000.0,
					[]string{
						"http.server_name:" + serverName,
						"http.method:" + c.Request.Method,
						"http.route:" + route,
						"http.status_code:" + strconv.Itoa(status),
					},
					1,
				)
			}
		}()

		c.Next()
	}
}

// Recovery turns a handler panic into a 500 and records it on the request span.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if p := recover(); p != nil {
				span := o11y.FromContext(c.Request.Context()).GetSpan(c.Request.Context())
				if span != nil {
					span.AddRawField("panic", fmt.Sprintf("%v", p))
				}
				c.AbortWithStatus(http.StatusInternalServerError)
			}
		}()
		c.Next()
	}
}
