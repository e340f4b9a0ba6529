package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"jobrunner/models"
)

// submissionRunner is the orchestrator surface the controller needs.
type submissionRunner interface {
	Run(req *models.ApplicationRequest) *models.ApplicationResult
}

type ApplicationController struct {
	Orchestrator submissionRunner
	RunModel     *models.RunModel
}

func NewApplicationController(orchestrator submissionRunner, runModel *models.RunModel) *ApplicationController {
	return &ApplicationController{
		Orchestrator: orchestrator,
		RunModel:     runModel,
	}
}

// SubmitApplication runs one application end to end and always answers with
// the normalized result object, never an unhandled failure.
func (c *ApplicationController) SubmitApplication(ctx *gin.Context) {
	var req models.ApplicationRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	result := c.Orchestrator.Run(&req)

	response := gin.H{
		"ok":       result.OK,
		"status":   result.Status,
		"platform": result.Platform,
		"evidence": result.Evidence,
		"error":    result.Error,
	}
	if result.Evidence != nil {
		response["log"] = result.Evidence.Log
	}

	ctx.JSON(http.StatusOK, response)
}

// GetRun returns a persisted run record by ID.
func (c *ApplicationController) GetRun(ctx *gin.Context) {
	id := ctx.Param("id")
	record, err := c.RunModel.GetByID(id)
	if err != nil {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "Run not found"})
		return
	}
	ctx.JSON(http.StatusOK, record)
}
