package server

import (
	"errors"
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"

	"github.com/loomworks/loom/internal/engine"
	"github.com/loomworks/loom/internal/graph"
	"github.com/loomworks/loom/internal/layout"
	"github.com/loomworks/loom/internal/schema"
	"github.com/loomworks/loom/internal/store"
	"github.com/loomworks/loom/pkg/api"
)

var (
	ErrGetEngineState = errors.New("failed to get engine state")
	ErrUnknownForm    = errors.New("unknown form, want nodes or steps")
)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, api.MessageResponse{Message: "ok"})
}

func (s *Server) handleEngine(c *gin.Context) {
	engState, err := s.engine.GetEngineState(c.Request.Context())
	if err != nil {
		serverError(c, ErrGetEngineState)
		return
	}
	c.JSON(http.StatusOK, engState)
}

func (s *Server) listWorkflows(c *gin.Context) {
	workflows, err := s.workflows.List(c.Request.Context())
	if err != nil {
		serverError(c, err)
		return
	}
	c.JSON(http.StatusOK, api.WorkflowsListResponse{
		Workflows: workflows,
		Count:     len(workflows),
	})
}

func (s *Server) createWorkflow(c *gin.Context) {
	var wf api.Workflow
	if err := c.ShouldBindJSON(&wf); err != nil {
		badRequest(c, err)
		return
	}

	if wf.ID == "" {
		wf.ID = api.SanitizeID(api.WorkflowID(wf.Name))
	}

	if res := s.engine.ValidateWorkflow(&wf); !res.Valid {
		c.JSON(http.StatusBadRequest, res)
		return
	}

	if err := s.workflows.Put(c.Request.Context(), &wf); err != nil {
		serverError(c, err)
		return
	}
	c.JSON(http.StatusCreated, &wf)
}

func (s *Server) getWorkflow(c *gin.Context) {
	id := api.WorkflowID(c.Param("workflowID"))
	wf, err := s.workflows.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrWorkflowNotFound) {
			notFound(c, err)
			return
		}
		serverError(c, err)
		return
	}
	c.JSON(http.StatusOK, wf)
}

func (s *Server) updateWorkflow(c *gin.Context) {
	var wf api.Workflow
	if err := c.ShouldBindJSON(&wf); err != nil {
		badRequest(c, err)
		return
	}
	wf.ID = api.WorkflowID(c.Param("workflowID"))

	if res := s.engine.ValidateWorkflow(&wf); !res.Valid {
		c.JSON(http.StatusBadRequest, res)
		return
	}

	if err := s.workflows.Put(c.Request.Context(), &wf); err != nil {
		serverError(c, err)
		return
	}
	c.JSON(http.StatusOK, &wf)
}

func (s *Server) deleteWorkflow(c *gin.Context) {
	id := api.WorkflowID(c.Param("workflowID"))
	if err := s.workflows.Delete(c.Request.Context(), id); err != nil {
		if errors.Is(err, store.ErrWorkflowNotFound) {
			notFound(c, err)
			return
		}
		serverError(c, err)
		return
	}
	c.JSON(http.StatusOK, api.MessageResponse{Message: "workflow deleted"})
}

func (s *Server) validateWorkflow(c *gin.Context) {
	var wf api.Workflow
	if err := c.ShouldBindJSON(&wf); err != nil {
		badRequest(c, err)
		return
	}
	c.JSON(http.StatusOK, s.engine.ValidateWorkflow(&wf))
}

func (s *Server) layoutWorkflow(c *gin.Context) {
	var wf api.Workflow
	if err := c.ShouldBindJSON(&wf); err != nil {
		badRequest(c, err)
		return
	}

	g, err := graph.Canonicalize(&wf)
	if err != nil {
		badRequest(c, err)
		return
	}
	c.JSON(http.StatusOK, api.LayoutResponse{
		Positions: layout.Project(g.Order),
	})
}

func (s *Server) convertWorkflow(c *gin.Context) {
	var wf api.Workflow
	if err := c.ShouldBindJSON(&wf); err != nil {
		badRequest(c, err)
		return
	}

	g, err := graph.Canonicalize(&wf)
	if err != nil {
		badRequest(c, err)
		return
	}

	switch c.Param("form") {
	case "nodes":
		c.JSON(http.StatusOK, graph.ToNodeForm(g, &wf))
	case "steps":
		c.JSON(http.StatusOK, graph.ToStepForm(g, &wf))
	default:
		badRequest(c, ErrUnknownForm)
	}
}

func (s *Server) executeWorkflow(c *gin.Context) {
	id := api.WorkflowID(c.Param("workflowID"))
	wf, err := s.workflows.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrWorkflowNotFound) {
			notFound(c, err)
			return
		}
		serverError(c, err)
		return
	}

	var req api.ExecuteRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}

	execID, err := s.engine.StartExecution(c.Request.Context(), wf, req.Input)
	if err != nil {
		badRequest(c, err)
		return
	}

	c.JSON(http.StatusAccepted, api.ExecutionStartedResponse{
		Message:     "execution started",
		ExecutionID: execID,
		WorkflowID:  id,
	})
}

func (s *Server) listExecutions(c *gin.Context) {
	digests, err := s.engine.ListExecutions(c.Request.Context())
	if err != nil {
		serverError(c, err)
		return
	}
	c.JSON(http.StatusOK, api.ExecutionsListResponse{
		Executions: digests,
		Count:      len(digests),
	})
}

func (s *Server) getExecution(c *gin.Context) {
	id := api.ExecutionID(c.Param("executionID"))
	st, err := s.engine.GetExecutionState(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, engine.ErrExecutionNotFound) {
			notFound(c, err)
			return
		}
		serverError(c, err)
		return
	}
	c.JSON(http.StatusOK, api.ExecutionResponse{
		Execution: st,
		Progress:  st.Progress(),
	})
}

func (s *Server) cancelExecution(c *gin.Context) {
	id := api.ExecutionID(c.Param("executionID"))
	reason := c.Query("reason")

	err := s.engine.CancelExecution(c.Request.Context(), id, reason)
	if err != nil {
		switch {
		case errors.Is(err, engine.ErrExecutionNotFound):
			notFound(c, err)
		case errors.Is(err, engine.ErrExecutionTerminal):
			c.JSON(http.StatusConflict, api.ErrorResponse{
				Error:  err.Error(),
				Status: http.StatusConflict,
			})
		default:
			serverError(c, err)
		}
		return
	}
	c.JSON(http.StatusOK, api.MessageResponse{Message: "cancel requested"})
}

func (s *Server) listSchemas(c *gin.Context) {
	types := s.schemas.Types()
	sort.Slice(types, func(i, j int) bool {
		return types[i] < types[j]
	})

	res := make([]api.SchemaResponse, 0, len(types))
	for _, t := range types {
		fields, err := s.schemas.SchemaFor(t)
		if err != nil {
			continue
		}
		res = append(res, api.SchemaResponse{Type: t, Fields: fields})
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) getSchema(c *gin.Context) {
	t := api.StepType(c.Param("stepType"))
	fields, err := s.schemas.SchemaFor(t)
	if err != nil {
		if errors.Is(err, schema.ErrUnknownStepType) {
			notFound(c, err)
			return
		}
		serverError(c, err)
		return
	}
	c.JSON(http.StatusOK, api.SchemaResponse{Type: t, Fields: fields})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, api.ErrorResponse{
		Error:  err.Error(),
		Status: http.StatusBadRequest,
	})
}

func notFound(c *gin.Context, err error) {
	c.JSON(http.StatusNotFound, api.ErrorResponse{
		Error:  err.Error(),
		Status: http.StatusNotFound,
	})
}

func serverError(c *gin.Context, err error) {
	c.JSON(http.StatusInternalServerError, api.ErrorResponse{
		Error:  err.Error(),
		Status: http.StatusInternalServerError,
	})
}
