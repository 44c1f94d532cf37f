package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"forex-agent/internal/audit"
)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
		"data":   s.monitor.Status(),
	})
}

func (s *Server) handleStatus(c *gin.Context) {
	status := gin.H{
		"equity":    s.seq.Equity(),
		"daily_pnl": s.riskMgr.DailyPnL(),
		"data":      s.monitor.Status(),
	}
	if pos := s.seq.Open(); pos != nil {
		status["open_position"] = pos
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) handlePositions(c *gin.Context) {
	positions, err := s.exec.OpenPositions()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"positions": positions, "count": len(positions)})
}

func (s *Server) handleRiskMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"equity":    s.riskMgr.Equity(),
		"daily_pnl": s.riskMgr.DailyPnL(),
	})
}

// handleAuditVerify walks the full ledger chain. A FAIL here is tamper
// evidence and halts any go-live determination.
func (s *Server) handleAuditVerify(c *gin.Context) {
	result, err := audit.VerifyFile(s.auditPath)
	if err != nil && result.Status != audit.VerifyFail {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	code := http.StatusOK
	if result.Status == audit.VerifyFail {
		code = http.StatusConflict
	}
	c.JSON(code, result)
}
