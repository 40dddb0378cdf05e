package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// listScans returns the scan history, newest first.
func (s *RESTServer) listScans(c *gin.Context) {
	p := ParsePagination(c, DefaultPaginationConfig())

	scans, err := s.repo.ListScans(p.Limit, p.Offset)
	if err != nil {
		respondDatabaseError(c, err)
		return
	}
	total, err := s.repo.CountScans()
	if err != nil {
		respondDatabaseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"scans":      scans,
		"pagination": NewPaginationResponse(p, total),
	})
}

// getScan returns a single scan record.
func (s *RESTServer) getScan(c *gin.Context) {
	scanID := c.Param("scan_id")

	scan, found, err := s.repo.GetScan(scanID)
	if err != nil {
		respondDatabaseError(c, err)
		return
	}
	if !found {
		respondNotFound(c, "Scan")
		return
	}

	c.JSON(http.StatusOK, scan)
}

// getScanFiles returns the per-file outcomes of a scan.
func (s *RESTServer) getScanFiles(c *gin.Context) {
	scanID := c.Param("scan_id")

	_, found, err := s.repo.GetScan(scanID)
	if err != nil {
		respondDatabaseError(c, err)
		return
	}
	if !found {
		respondNotFound(c, "Scan")
		return
	}

	files, err := s.repo.ListScanFiles(scanID)
	if err != nil {
		respondDatabaseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"scan_id": scanID, "files": files})
}

// triggerScan starts a library scan in the background.
func (s *RESTServer) triggerScan(c *gin.Context) {
	scanID, err := s.scanner.TriggerAsync()
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"scan_id": scanID, "status": "started"})
}
