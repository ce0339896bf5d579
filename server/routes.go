package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/hupe1980/vecforge/errs"
	"github.com/hupe1980/vecforge/jobs"
)

func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "hello",
		Method:      http.MethodGet,
		Path:        "/",
		Summary:     "Service banner",
		Tags:        []string{"system"},
	}, s.handleHello)

	huma.Register(s.api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Tags:        []string{"system"},
	}, func(_ context.Context, _ *struct{}) (*healthOutput, error) {
		out := &healthOutput{}
		out.Body.Status = "ok"
		return out, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID:   "create-index",
		Method:        http.MethodPost,
		Path:          "/create_index",
		Summary:       "Submit an index build job",
		Tags:          []string{"jobs"},
		DefaultStatus: http.StatusCreated,
	}, s.handleCreateIndex)

	huma.Register(s.api, huma.Operation{
		OperationID: "get-job",
		Method:      http.MethodGet,
		Path:        "/job/{id}",
		Summary:     "Get job status",
		Tags:        []string{"jobs"},
	}, s.handleGetJob)

	huma.Register(s.api, huma.Operation{
		OperationID: "list-jobs",
		Method:      http.MethodGet,
		Path:        "/jobs",
		Summary:     "List jobs",
		Tags:        []string{"jobs"},
	}, s.handleListJobs)
}

// --- Request/Response types for huma ---

type healthOutput struct {
	Body struct {
		Status string `json:"status" example:"ok" doc:"Health status"`
	}
}

type helloOutput struct {
	Body struct {
		Message   string `json:"message"`
		Timestamp string `json:"timestamp"`
	}
}

// createIndexInput takes the raw body so that every malformed request gets
// the same 400 answer.
type createIndexInput struct {
	RawBody []byte
}

type createIndexBody struct {
	JobID  string `json:"job_id,omitempty"`
	Status string `json:"status,omitempty"`
	Error  string `json:"error,omitempty"`
}

type createIndexOutput struct {
	Status int
	Body   createIndexBody
}

type getJobInput struct {
	ID string `path:"id"`
}

type jobStatus struct {
	Status string       `json:"status"`
	Result *jobs.Result `json:"result"`
	Error  *string      `json:"error"`
}

type getJobOutput struct {
	Body jobStatus
}

type listJobsOutput struct {
	Body struct {
		Jobs []*jobs.Job `json:"jobs"`
	}
}

// --- Handlers ---

func (s *Server) handleHello(_ context.Context, _ *struct{}) (*helloOutput, error) {
	out := &helloOutput{}
	out.Body.Message = "vecforge index build service"
	out.Body.Timestamp = time.Now().UTC().Format(time.RFC3339)
	return out, nil
}

func (s *Server) handleCreateIndex(ctx context.Context, input *createIndexInput) (*createIndexOutput, error) {
	var req jobs.Request
	if err := json.Unmarshal(input.RawBody, &req); err != nil {
		s.log.WarnContext(ctx, "rejected create_index request", "error", err)
		return invalidRequest(), nil
	}
	j, err := s.jobs.Submit(ctx, req)
	if err != nil {
		if errors.Is(err, errs.ErrConfiguration) {
			s.log.WarnContext(ctx, "rejected create_index request", "error", err)
			return invalidRequest(), nil
		}
		return nil, toHTTPError("submitting job", err)
	}
	return &createIndexOutput{
		Status: http.StatusCreated,
		Body:   createIndexBody{JobID: j.ID, Status: string(j.Status)},
	}, nil
}

func invalidRequest() *createIndexOutput {
	return &createIndexOutput{
		Status: http.StatusBadRequest,
		Body:   createIndexBody{Error: "Invalid request"},
	}
}

func (s *Server) handleGetJob(ctx context.Context, input *getJobInput) (*getJobOutput, error) {
	j, err := s.jobs.Get(ctx, input.ID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, huma.Error404NotFound(fmt.Sprintf("Job not found with Id %s", input.ID))
		}
		return nil, toHTTPError("getting job", err)
	}
	out := &getJobOutput{Body: jobStatus{Status: string(j.Status), Result: j.Result}}
	if j.Error != "" {
		out.Body.Error = &j.Error
	}
	return out, nil
}

func (s *Server) handleListJobs(ctx context.Context, _ *struct{}) (*listJobsOutput, error) {
	list, err := s.jobs.List(ctx)
	if err != nil {
		return nil, toHTTPError("listing jobs", err)
	}
	out := &listJobsOutput{}
	out.Body.Jobs = list
	return out, nil
}

func toHTTPError(msg string, err error) huma.StatusError {
	return huma.NewError(errs.HTTPStatus(err), msg, err)
}
