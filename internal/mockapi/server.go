// Package mockapi implements an in-memory fake of the Infinity REST API.
// The e2e tests drive the real client against it over HTTP, and
// cmd/mockserver runs it standalone for offline development.
package mockapi

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/toinfinity/infinity-go/internal/model"
	"github.com/toinfinity/infinity-go/pkg/response"
)

// Config parameterizes a mock server.
type Config struct {
	// Token is the only accepted authentication token.
	Token string
	// Generators seeds the schema catalog; DefaultGenerators() when empty.
	Generators []model.GeneratorInfo
	// AutoCompleteAfter, when positive, succeeds pending jobs once they
	// reach that age. Zero leaves job states under test control.
	AutoCompleteAfter time.Duration
	Log               zerolog.Logger
}

// Server is a fake Infinity API bound to an in-memory store.
type Server struct {
	app      *fiber.App
	store    *store
	token    string
	validate *validator.Validate
	log      zerolog.Logger

	baseURL       string
	autoComplete  time.Duration
	stopCompleter chan struct{}
}

// DefaultGenerators returns the schema catalog the mock serves when none is
// configured: one preview-capable generator and one without previews.
func DefaultGenerators() []model.GeneratorInfo {
	min0 := 0.5
	max0 := 3.0
	min1 := 1.0
	max1 := 20.0
	return []model.GeneratorInfo{
		{
			Name: "roomscene",
			Params: []model.ParamInfo{
				{Name: "height", Type: "float", DefaultValue: 1.7, Options: &model.ParamOptions{Min: &min0, Max: &max0}},
				{Name: "count", Type: "int", DefaultValue: 1.0, Options: &model.ParamOptions{Min: &min1, Max: &max1}},
				{Name: "style", Type: "str", DefaultValue: "day", Options: &model.ParamOptions{Choices: []any{"day", "night", "fog"}}},
				{Name: "seed", Type: "int", DefaultValue: 0.0},
			},
			Options: model.GeneratorOptions{Preview: true},
		},
		{
			Name: "cityscape",
			Params: []model.ParamInfo{
				{Name: "density", Type: "str", DefaultValue: "medium", Options: &model.ParamOptions{Choices: []any{"low", "medium", "high"}}},
			},
			Options: model.GeneratorOptions{Preview: false},
		},
	}
}

// New builds a ready-to-start mock server.
func New(cfg Config) *Server {
	generators := cfg.Generators
	if len(generators) == 0 {
		generators = DefaultGenerators()
	}
	s := &Server{
		app:           fiber.New(fiber.Config{DisableStartupMessage: true}),
		store:         newStore(generators),
		token:         cfg.Token,
		validate:      validator.New(),
		log:           cfg.Log,
		autoComplete:  cfg.AutoCompleteAfter,
		stopCompleter: make(chan struct{}),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	api := s.app.Group("/api", s.requireToken)
	api.Post("/batch/", s.submitBatch)
	api.Get("/batch/", s.listBatches)
	api.Get("/batch/summary/:id/", s.batchSummary)
	api.Get("/batch/:id/", s.getBatch)
	api.Get("/jobs/", s.listGenerators)
	api.Get("/jobs/:name/", s.getGenerator)
	api.Get("/job_runs/counts/", s.usage)

	// Artifact URLs are pre-signed in the real service, so no auth here.
	s.app.Get("/artifacts/:id/", s.artifact)
}

// requireToken validates the Token authorization header.
func (s *Server) requireToken(c *fiber.Ctx) error {
	header := c.Get("Authorization")
	if header == "" {
		return response.Unauthorized(c, "Missing authorization header")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "token") {
		return response.Unauthorized(c, "Invalid authorization header format")
	}
	if parts[1] != s.token {
		return response.Unauthorized(c, "Invalid token")
	}
	return c.Next()
}

type jobRunInput struct {
	Name        string          `json:"name" validate:"required"`
	IsPreview   bool            `json:"is_preview"`
	ParamValues model.JobParams `json:"param_values" validate:"required"`
}

type submitBatchInput struct {
	Name    string        `json:"name"`
	JobRuns []jobRunInput `json:"job_runs" validate:"required,min=1,dive"`
}

type jobRunView struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	IsPreview   bool            `json:"is_preview"`
	ParamValues model.JobParams `json:"param_values"`
	State       string          `json:"state"`
	ResultURL   string          `json:"result_url,omitempty"`
	Error       string          `json:"error,omitempty"`
}

type batchView struct {
	ID      string       `json:"id"`
	Name    string       `json:"name"`
	Created time.Time    `json:"created"`
	JobRuns []jobRunView `json:"job_runs"`
}

func (s *Server) submitBatch(c *fiber.Ctx) error {
	var input submitBatchInput
	if err := c.BodyParser(&input); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if err := s.validate.Struct(&input); err != nil {
		return response.ValidationError(c, "Validation failed", err.Error())
	}
	for _, r := range input.JobRuns {
		if _, ok := s.store.generator(r.Name); !ok {
			return response.NotFound(c, fmt.Sprintf("Unknown generator %q", r.Name))
		}
	}
	b := s.store.createBatch(input.Name, input.JobRuns)
	s.log.Info().Str("batch_id", b.ID).Int("jobs", len(b.JobIDs)).Msg("mock batch created")
	return response.Created(c, s.batchView(b))
}

func (s *Server) batchView(b *storedBatch) batchView {
	view := batchView{ID: b.ID, Name: b.Name, Created: b.Created}
	for _, j := range s.store.batchJobs(b) {
		view.JobRuns = append(view.JobRuns, jobRunView{
			ID:          j.ID,
			Name:        j.Generator,
			IsPreview:   j.IsPreview,
			ParamValues: j.Params,
			State:       j.State,
			ResultURL:   j.ResultURL,
			Error:       j.Error,
		})
	}
	return view
}

func (s *Server) getBatch(c *fiber.Ctx) error {
	b, ok := s.store.batch(c.Params("id"))
	if !ok {
		return response.NotFound(c, "Batch not found")
	}
	return response.OK(c, s.batchView(b))
}

type jobStatusView struct {
	ID         string `json:"id"`
	InProgress bool   `json:"in_progress"`
	State      string `json:"state"`
	ResultURL  string `json:"result_url,omitempty"`
	Error      string `json:"error,omitempty"`
}

func (s *Server) batchSummary(c *fiber.Ctx) error {
	b, ok := s.store.batch(c.Params("id"))
	if !ok {
		return response.NotFound(c, "Batch not found")
	}
	summary := struct {
		ID      string          `json:"id"`
		JobRuns []jobStatusView `json:"job_runs"`
	}{ID: b.ID}
	for _, j := range s.store.batchJobs(b) {
		summary.JobRuns = append(summary.JobRuns, jobStatusView{
			ID:         j.ID,
			InProgress: j.State == "pending",
			State:      j.State,
			ResultURL:  j.ResultURL,
			Error:      j.Error,
		})
	}
	return response.OK(c, summary)
}

func (s *Server) listBatches(c *fiber.Ctx) error {
	start, end, err := timeRange(c)
	if err != nil {
		return response.ValidationError(c, err.Error(), nil)
	}
	entries := []model.BatchListEntry{}
	for _, b := range s.store.listBatches(start, end) {
		entries = append(entries, model.BatchListEntry{
			ID:       b.ID,
			Name:     b.Name,
			Created:  b.Created,
			JobCount: len(b.JobIDs),
		})
	}
	return response.OK(c, entries)
}

func (s *Server) listGenerators(c *fiber.Ctx) error {
	return response.OK(c, s.store.allGenerators())
}

func (s *Server) getGenerator(c *fiber.Ctx) error {
	g, ok := s.store.generator(c.Params("name"))
	if !ok {
		return response.NotFound(c, "Generator not found")
	}
	return response.OK(c, g)
}

func (s *Server) usage(c *fiber.Ctx) error {
	start, end, err := timeRange(c)
	if err != nil {
		return response.ValidationError(c, err.Error(), nil)
	}
	return response.OK(c, s.store.usage(start, end))
}

func (s *Server) artifact(c *fiber.Ctx) error {
	j, ok := s.store.job(c.Params("id"))
	if !ok || j.Artifact == nil {
		return response.NotFound(c, "Artifact not found")
	}
	c.Set("Content-Type", "application/zip")
	return c.Send(j.Artifact)
}

func timeRange(c *fiber.Ctx) (time.Time, time.Time, error) {
	start := time.Time{}
	end := time.Now().UTC().Add(time.Hour)
	if v := c.Query("start_time"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return start, end, fmt.Errorf("invalid start_time: %v", err)
		}
		start = t
	}
	if v := c.Query("end_time"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return start, end, fmt.Errorf("invalid end_time: %v", err)
		}
		end = t
	}
	return start, end, nil
}

// Start binds the server to a loopback port and serves in the background.
// It returns the base URL to point a client at.
func (s *Server) Start() (string, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", fmt.Errorf("failed to listen: %w", err)
	}
	return s.serve(ln)
}

// StartOn binds the server to the given address.
func (s *Server) StartOn(addr string) (string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.serve(ln)
}

func (s *Server) serve(ln net.Listener) (string, error) {
	s.baseURL = "http://" + ln.Addr().String()
	go func() {
		if err := s.app.Listener(ln); err != nil {
			s.log.Error().Err(err).Msg("mock server stopped")
		}
	}()
	if s.autoComplete > 0 {
		go s.runAutoCompleter()
	}
	return s.baseURL, nil
}

// Shutdown stops the server and the auto-completer.
func (s *Server) Shutdown() error {
	close(s.stopCompleter)
	return s.app.Shutdown()
}

// BaseURL returns the server's base URL once started.
func (s *Server) BaseURL() string {
	return s.baseURL
}

// CompleteJob marks a job succeeded and serves artifact as its result.
func (s *Server) CompleteJob(jobID string, artifact []byte) error {
	url := fmt.Sprintf("%s/artifacts/%s/", s.baseURL, jobID)
	return s.store.setJobState(jobID, "succeeded", url, "", artifact)
}

// FailJob marks a job definitively failed.
func (s *Server) FailJob(jobID, message string) error {
	return s.store.setJobState(jobID, "failed", "", message, nil)
}

// SetJobStateRaw forces an arbitrary remote status string onto a job, for
// exercising client handling of unrecognized statuses.
func (s *Server) SetJobStateRaw(jobID, state string) error {
	return s.store.setJobState(jobID, state, "", "", nil)
}

// runAutoCompleter periodically succeeds pending jobs older than the
// configured age, with a placeholder artifact.
func (s *Server) runAutoCompleter() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCompleter:
			return
		case <-ticker.C:
			cutoff := time.Now().UTC().Add(-s.autoComplete)
			for _, j := range s.store.pendingJobs() {
				if j.Created.After(cutoff) {
					continue
				}
				artifact := []byte(fmt.Sprintf("mock artifact for job %s\n", j.ID))
				if err := s.CompleteJob(j.ID, artifact); err == nil {
					s.log.Info().Str("job_id", j.ID).Msg("auto-completed mock job")
				}
			}
		}
	}
}
