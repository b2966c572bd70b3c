package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"flowpilot/internal/core/memory"
	"flowpilot/internal/core/ports"
	"flowpilot/internal/domain"
	"flowpilot/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type okExecutor struct{}

func (okExecutor) Execute(context.Context, string, string) (*domain.AIResult, error) {
	return &domain.AIResult{Content: "ok", Model: "gpt-3.5-turbo"}, nil
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repos := memory.NewRepositories()
	workflows := service.NewWorkflowService(repos.Workflows)
	instances := service.NewInstanceService(
		repos.Workflows, repos.Instances, repos.Executions, repos.Validations,
		okExecutor{}, ports.SystemClock{}, nil, nil,
		"http://app.test", 7*24*time.Hour,
	)

	router := gin.New()
	New(workflows, instances, nil, nil).Register(router.Group("/api/v1"))
	return router
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func createWorkflowViaAPI(t *testing.T, router *gin.Engine) (uuid.UUID, uuid.UUID) {
	t.Helper()
	authorID := uuid.New()

	rec := doJSON(t, router, http.MethodPost, "/api/v1/workflows", map[string]any{
		"author_id": authorID,
		"title":     "Service Catalog - Banking",
		"category":  "service_catalog",
		"steps": []map[string]any{
			{"kind": "human", "label": "Intake", "instructions": "upload the file"},
			{"kind": "ai", "label": "Analyze", "system_prompt": "sys", "user_prompt_template": "{{data}}"},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		Workflow struct {
			ID uuid.UUID `json:"id"`
		} `json:"workflow"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Workflow.ID, authorID
}

func TestWorkflowEndpoints(t *testing.T) {
	router := newTestRouter(t)
	workflowID, authorID := createWorkflowViaAPI(t, router)

	rec := doJSON(t, router, http.MethodGet, "/api/v1/workflows/"+workflowID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Service Catalog - Banking")

	rec = doJSON(t, router, http.MethodGet, "/api/v1/workflows?author_id="+authorID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/v1/workflows/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/v1/workflows/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateWorkflowRejectsBadKind(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/workflows", map[string]any{
		"author_id": uuid.New(),
		"title":     "Broken",
		"steps": []map[string]any{
			{"kind": "teleport", "label": "Nope"},
		},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInstanceEndpoints(t *testing.T) {
	router := newTestRouter(t)
	workflowID, _ := createWorkflowViaAPI(t, router)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/instances", map[string]any{
		"workflow_id": workflowID,
		"started_by":  uuid.New(),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var instance domain.WorkflowInstance
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &instance))
	base := "/api/v1/instances/" + instance.ID.String()

	// Human step.
	rec = doJSON(t, router, http.MethodPost, base+"/steps", map[string]any{
		"output":            "done",
		"execution_time_ms": 1000,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"kind":"human"`)

	// AI step, last in the definition.
	rec = doJSON(t, router, http.MethodPost, base+"/steps", map[string]any{
		"input": map[string]any{"data": "x"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"instance_completed":true`)

	// Executing past the end is a conflict.
	rec = doJSON(t, router, http.MethodPost, base+"/steps", map[string]any{"output": "x"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Quality score.
	rec = doJSON(t, router, http.MethodPut, base, map[string]any{"output_quality_score": 4.0})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	// Metrics with a benchmark.
	rec = doJSON(t, router, http.MethodGet, base+"/metrics?industry_time_ms=100000&industry_cost=2.5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "time_savings_pct")

	rec = doJSON(t, router, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"completed"`)
}

func TestFailInstanceEndpoint(t *testing.T) {
	router := newTestRouter(t)
	workflowID, _ := createWorkflowViaAPI(t, router)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/instances", map[string]any{
		"workflow_id": workflowID,
		"started_by":  uuid.New(),
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var instance domain.WorkflowInstance
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &instance))

	path := fmt.Sprintf("/api/v1/instances/%s/fail", instance.ID)
	rec = doJSON(t, router, http.MethodPost, path, map[string]any{"reason": "client cancelled"})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	// Failing twice conflicts.
	rec = doJSON(t, router, http.MethodPost, path, map[string]any{"reason": "again"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Reason is mandatory.
	rec = doJSON(t, router, http.MethodPost, path, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestClientValidationEndpoints(t *testing.T) {
	router := newTestRouter(t)

	authorID := uuid.New()
	rec := doJSON(t, router, http.MethodPost, "/api/v1/workflows", map[string]any{
		"author_id": authorID,
		"title":     "Client Intake",
		"steps": []map[string]any{
			{"kind": "client_validate", "label": "Upload", "instructions": "please upload"},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var wf struct {
		Workflow struct {
			ID uuid.UUID `json:"id"`
		} `json:"workflow"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &wf))

	rec = doJSON(t, router, http.MethodPost, "/api/v1/instances", map[string]any{
		"workflow_id":  wf.Workflow.ID,
		"started_by":   uuid.New(),
		"client_email": "client@example.com",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var instance domain.WorkflowInstance
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &instance))

	rec = doJSON(t, router, http.MethodPost, "/api/v1/instances/"+instance.ID.String()+"/steps", map[string]any{})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var stepResp struct {
		SecureLink string `json:"secure_link"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stepResp))
	require.NotEmpty(t, stepResp.SecureLink)

	// The token is the last path segment of the secure link.
	token := stepResp.SecureLink[len("http://app.test/client-validation/"):]

	rec = doJSON(t, router, http.MethodGet, "/api/v1/client-validations/"+token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"pending"`)
	// The bearer token itself is never serialized.
	assert.NotContains(t, rec.Body.String(), token)

	rec = doJSON(t, router, http.MethodPost, "/api/v1/client-validations/"+token, map[string]any{
		"files": []string{"report.pdf"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "wait_time_ms")

	// Double submit conflicts; unknown token is 404.
	rec = doJSON(t, router, http.MethodPost, "/api/v1/client-validations/"+token, map[string]any{})
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = doJSON(t, router, http.MethodGet, "/api/v1/client-validations/bogus", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
