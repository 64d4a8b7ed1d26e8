package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/cors"

	"tubesum/internal/logger"
)

const requestIDHeader = "X-Request-ID"

// requestID tags the request context so pipeline logs can be correlated.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		c.Header(requestIDHeader, id)
		c.Request = c.Request.WithContext(logger.WithRequestID(c.Request.Context(), id))
		c.Next()
	}
}

// NewRouter builds the gin engine with access logging and panic recovery and
// wraps it in the CORS policy for origins.
func NewRouter(h *Handler, origins []string) http.Handler {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	h.RegisterRoutes(router)

	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		ExposedHeaders:   []string{requestIDHeader},
		AllowCredentials: true,
	}).Handler(router)
}
