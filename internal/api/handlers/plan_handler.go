package handlers

import (
	"net/http"
	"strconv"

	"github.com/andresuchdata/cloudpath/internal/bulk"
	"github.com/andresuchdata/cloudpath/internal/plan"
	"github.com/andresuchdata/cloudpath/internal/service"
	"github.com/gin-gonic/gin"
)

// PlanHandler serves the plan journal shared by every backend.
type PlanHandler struct {
	journal bulk.Journal
	files   map[string]*service.FileService
}

func NewPlanHandler(journal bulk.Journal, files map[string]*service.FileService) *PlanHandler {
	return &PlanHandler{journal: journal, files: files}
}

func (h *PlanHandler) List(c *gin.Context) {
	if h.journal == nil {
		respondError(c, bulk.ErrNoJournal)
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	plans, err := h.journal.ListPlans(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	if plans == nil {
		plans = []plan.Summary{}
	}
	c.JSON(http.StatusOK, plans)
}

func (h *PlanHandler) Get(c *gin.Context) {
	if h.journal == nil {
		respondError(c, bulk.ErrNoJournal)
		return
	}
	p, err := h.journal.GetPlan(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// Resume hands the plan to the service of the backend it was built for.
func (h *PlanHandler) Resume(c *gin.Context) {
	if h.journal == nil {
		respondError(c, bulk.ErrNoJournal)
		return
	}
	p, err := h.journal.GetPlan(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	svc, ok := h.files[p.Backend]
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "backend " + p.Backend + " is not configured"})
		return
	}
	p, err = svc.ResumePlan(c.Request.Context(), p.ID)
	respondPlan(c, p, err)
}
