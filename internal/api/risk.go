package api

import (
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/iancossa/attendance-fullstack/internal/risk"
)

func registerRiskRoutes(r *gin.RouterGroup, d Deps) {
	r.GET("/students/:id/risk", studentRisk(d))
	r.GET("/risk/classify", classify)
	r.GET("/risk/levels", levels)
}

func studentRisk(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		key, err := actingStudent(c, c.Param("id"))
		if err != nil {
			respondError(c, d.Logger, err)
			return
		}
		out, err := d.Attendance.StudentRisk(c.Request.Context(), key)
		if err != nil {
			respondError(c, d.Logger, err)
			return
		}
		c.JSON(http.StatusOK, out)
	}
}

// classify buckets an arbitrary percentage. Out-of-range values are classified as given.
func classify(c *gin.Context) {
	p, err := strconv.ParseFloat(c.Query("p"), 64)
	if err != nil || math.IsNaN(p) || math.IsInf(p, 0) {
		badRequest(c, "p must be a number")
		return
	}
	sev := risk.Classify(p)
	c.JSON(http.StatusOK, gin.H{
		"percentage": p,
		"display":    risk.Clamp(p),
		"severity":   sev,
		"label":      sev.Label(),
		"color":      sev.Color(),
		"at_risk":    sev.AtRisk(),
	})
}

func levels(c *gin.Context) {
	t := risk.Thresholds
	type level struct {
		Severity risk.Severity `json:"severity"`
		Label    string        `json:"label"`
		Color    string        `json:"color"`
	}
	out := make([]level, 0, len(risk.All))
	for _, s := range risk.All {
		out = append(out, level{Severity: s, Label: s.Label(), Color: s.Color()})
	}
	c.JSON(http.StatusOK, gin.H{
		"levels":     out,
		"thresholds": gin.H{"excellent": t.Excellent, "good": t.Good, "poor": t.Poor},
	})
}
