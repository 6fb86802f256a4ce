package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Laranguyen811/Stock-market-application-2024/pkg/exception"
)

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": len(s.subs.Sessions())})
}

func (s *Server) symbol(c *gin.Context) {
	symbol := strings.ToUpper(c.Param("symbol"))
	v, ok := s.snaps.Symbol(symbol)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "symbol not found: " + symbol})
		return
	}
	c.JSON(http.StatusOK, v)
}

func (s *Server) portfolio(c *gin.Context) {
	id := c.Param("id")
	v, ok := s.snaps.Portfolio(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "portfolio not found: " + id})
		return
	}
	if v.Owner != "" && v.Owner != ownerOf(c) {
		c.JSON(http.StatusForbidden, gin.H{"error": exception.ErrUnauthorized.Error()})
		return
	}
	c.JSON(http.StatusOK, v)
}

func (s *Server) watchlist(c *gin.Context) {
	id := c.Param("id")
	v, ok := s.snaps.Watchlist(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "watchlist not found: " + id})
		return
	}
	if v.Owner != "" && v.Owner != ownerOf(c) {
		c.JSON(http.StatusForbidden, gin.H{"error": exception.ErrUnauthorized.Error()})
		return
	}
	c.JSON(http.StatusOK, v)
}

func (s *Server) listFeeds(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"feeds": s.feeds.Feeds()})
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, exception.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, exception.ErrCapacityExceeded):
		return http.StatusUnprocessableEntity
	case errors.Is(err, exception.ErrUnknownPortfolio), errors.Is(err, exception.ErrUnknownWatchlist),
		errors.Is(err, exception.ErrUnknownView), errors.Is(err, exception.ErrUnknownSession):
		return http.StatusNotFound
	case errors.Is(err, exception.ErrInvalidArgument):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
