package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// The compliance routes report fixed readiness data for the console; they do not read
// the ledger.

func (s *Server) handleComplianceDashboard(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"ok":      true,
		"modules": []string{"annex4", "pmm"},
		"status": gin.H{
			"annex4": "ready",
			"pmm":    "ready",
		},
	})
}

func (s *Server) handleAnnex4(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"trace_id": c.Param("trace_id"),
		"annex4": gin.H{
			"sections": []string{"A", "B", "C"},
			"status":   "generated",
		},
	})
}

func (s *Server) handlePMM(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"trace_id": c.Param("trace_id"),
		"pmm": gin.H{
			"incidents": 0,
			"drift":     "none",
			"status":    "ok",
		},
	})
}
