package controllers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"jobrunner/models"
)

type stubRunner struct {
	lastRequest *models.ApplicationRequest
	result      *models.ApplicationResult
}

func (s *stubRunner) Run(req *models.ApplicationRequest) *models.ApplicationResult {
	s.lastRequest = req
	return s.result
}

func setupRouter(runner submissionRunner) *gin.Engine {
	gin.SetMode(gin.TestMode)
	controller := NewApplicationController(runner, nil)
	router := gin.New()
	router.POST("/api/applications/submit", controller.SubmitApplication)
	return router
}

func postJSON(t *testing.T, router *gin.Engine, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/applications/submit", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	return recorder
}

func TestSubmitApplicationMalformedBody(t *testing.T) {
	router := setupRouter(&stubRunner{})

	recorder := postJSON(t, router, "{not json")

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	var body map[string]any
	assert.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	assert.Equal(t, "Invalid request body", body["error"])
}

func TestSubmitApplicationReturnsResult(t *testing.T) {
	evidence := models.NewEvidenceBundle()
	evidence.Logf("Loaded page")
	runner := &stubRunner{result: &models.ApplicationResult{
		OK:       true,
		Status:   models.StatusSubmitted,
		Platform: "Greenhouse",
		Evidence: evidence,
	}}
	router := setupRouter(runner)

	recorder := postJSON(t, router, `{"job_url":"https://boards.greenhouse.io/acme/jobs/1","email":"a@b.com","full_name":"A B"}`)

	assert.Equal(t, http.StatusOK, recorder.Code)
	var body map[string]any
	assert.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, "submitted", body["status"])
	assert.Equal(t, "Greenhouse", body["platform"])
	log, ok := body["log"].([]any)
	assert.True(t, ok)
	assert.Contains(t, log[0], "Loaded page")

	assert.Equal(t, "https://boards.greenhouse.io/acme/jobs/1", runner.lastRequest.JobURL)
	assert.Equal(t, "a@b.com", runner.lastRequest.Email)
}

func TestSubmitApplicationFailureStillAnswers200(t *testing.T) {
	runner := &stubRunner{result: &models.ApplicationResult{
		OK:       false,
		Status:   models.StatusMissingFields,
		Evidence: models.NewEvidenceBundle(),
		Error:    "missing mandatory fields: [email]",
	}}
	router := setupRouter(runner)

	recorder := postJSON(t, router, `{"job_url":"https://example.com/jobs/1"}`)

	assert.Equal(t, http.StatusOK, recorder.Code)
	var body map[string]any
	assert.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	assert.Equal(t, false, body["ok"])
	assert.Equal(t, "missing_fields", body["status"])
	assert.Contains(t, body["error"], "email")
}
