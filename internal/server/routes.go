package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const version = "0.1.0"

func (s *Server) RegisterRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.Started).String(),
			"node":    s.Name,
			"version": version,
		})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.GET("/status", func(c *gin.Context) {
		body := gin.H{"node": s.Name}
		if s.src.Node != nil {
			body["sensor"] = s.src.Node()
		}
		if s.src.Mission != nil {
			body["mission"] = s.src.Mission()
		}
		if s.src.Uploads != nil {
			body["uploads"] = s.src.Uploads()
		}
		c.JSON(http.StatusOK, body)
	})

	s.router.GET("/measurements", func(c *gin.Context) {
		if s.src.Measurements == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "no recorder on this node"})
			return
		}
		limit := 100
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
				return
			}
			limit = n
		}
		rows, err := s.src.Measurements(c.Request.Context(), limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"measurements": rows})
	})
}
