package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// listEvents returns the persisted event log, newest first.
func (s *RESTServer) listEvents(c *gin.Context) {
	p := ParsePagination(c, PaginationConfig{
		DefaultLimit: 100,
		MaxLimit:     1000,
	})

	events, err := s.repo.ListEvents(p.Limit, p.Offset)
	if err != nil {
		respondDatabaseError(c, err)
		return
	}
	total, err := s.repo.CountEvents()
	if err != nil {
		respondDatabaseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"events":     events,
		"pagination": NewPaginationResponse(p, total),
	})
}
