package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/flailbot/flailbot/internal/util"
)

const defaultHistoryLimit = 50

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": util.AppName,
		"version": s.version,
	})
}

// handleGetVersion returns the build version.
func (s *Server) handleGetVersion(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"version": s.version,
		"name":    util.AppName,
	})
}

// handleGetStatus returns the connection summary.
func (s *Server) handleGetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.state.Status())
}

// handleGetHost returns host information and current resource usage.
func (s *Server) handleGetHost(c *gin.Context) {
	usage, err := util.GetHostUsage(".")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"system": util.GetSystemInfo(),
		"usage":  usage,
	})
}

func (s *Server) handleGetEntities(c *gin.Context) {
	entities := s.state.Entities(c.Query("kind"))
	c.JSON(http.StatusOK, gin.H{
		"entities": entities,
		"total":    len(entities),
	})
}

func (s *Server) handleGetEntity(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 16)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid entity id"})
		return
	}

	e, ok := s.state.Entity(uint16(id))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "entity not found"})
		return
	}
	c.JSON(http.StatusOK, e)
}

func (s *Server) handleGetKing(c *gin.Context) {
	king, ok := s.state.King()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no king reported"})
		return
	}
	c.JSON(http.StatusOK, king)
}

func (s *Server) handleGetLeaderboard(c *gin.Context) {
	c.JSON(http.StatusOK, s.state.Leaderboard())
}

func (s *Server) handleGetMap(c *gin.Context) {
	m, ok := s.state.MapConfig()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no map config received"})
		return
	}
	c.JSON(http.StatusOK, m)
}

// History

func (s *Server) handleGetFeed(c *gin.Context) {
	feed, err := s.history.RecentFeed(queryLimit(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"feed":  feed,
		"count": len(feed),
	})
}

func (s *Server) handleGetKings(c *gin.Context) {
	kings, err := s.history.Kings(queryLimit(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"kings": kings,
		"count": len(kings),
	})
}

func (s *Server) handleGetFeedStats(c *gin.Context) {
	stats, err := s.history.Stats()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) handleGetRecordedLeaderboard(c *gin.Context) {
	lb, err := s.history.LatestLeaderboard()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, lb)
}

// queryLimit reads ?limit=, clamped to 1..1000.
func queryLimit(c *gin.Context) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultHistoryLimit)))
	if err != nil || limit < 1 {
		limit = defaultHistoryLimit
	}
	if limit > 1000 {
		limit = 1000
	}
	return limit
}
