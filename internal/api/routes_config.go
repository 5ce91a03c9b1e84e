package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/flailbot/flailbot/internal/config"
)

// handleGetConfig returns the current configuration.
func (s *Server) handleGetConfig(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"client": s.cfg.GetClient(),
		"path":   s.cfg.Path(),
	})
}

// handleSetClient validates and stores new client settings. They apply on
// the next start.
func (s *Server) handleSetClient(c *gin.Context) {
	var client config.ClientConfig
	if err := c.ShouldBindJSON(&client); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	candidate := config.DefaultConfig()
	candidate.Client = client
	result := config.Validate(candidate)
	if !result.IsValid() {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":  "invalid client config",
			"errors": result.Errors,
		})
		return
	}

	s.cfg.SetClient(client)

	if err := s.cfg.Save(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save config"})
		return
	}

	log.Info().Str("client_ip", c.ClientIP()).Msg("API: client config updated")

	c.JSON(http.StatusOK, gin.H{
		"status":   "updated",
		"warnings": result.Warnings,
		"data":     s.cfg.GetClient(),
	})
}
