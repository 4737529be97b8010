package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/sakif/fargate-executor/internal/apperror"
	"github.com/sakif/fargate-executor/internal/executor"
	"github.com/sakif/fargate-executor/internal/model"
	"github.com/sakif/fargate-executor/internal/repository"
)

// mockExecutionRepo keeps executions in insertion order.
type mockExecutionRepo struct {
	executions []*model.Execution
	createErr  error
	listErr    error
}

func (m *mockExecutionRepo) Create(_ context.Context, e *model.Execution) error {
	if m.createErr != nil {
		return m.createErr
	}
	e.ID = fmt.Sprintf("mock-%d", len(m.executions)+1)
	stored := *e
	m.executions = append(m.executions, &stored)
	return nil
}

func (m *mockExecutionRepo) GetByID(_ context.Context, id string) (*model.Execution, error) {
	for _, e := range m.executions {
		if e.ID == id {
			result := *e
			return &result, nil
		}
	}
	return nil, apperror.NotFound("execution", id)
}

func (m *mockExecutionRepo) List(_ context.Context, opts repository.ListOptions) ([]model.Execution, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	result := make([]model.Execution, 0, len(m.executions))
	for i := len(m.executions) - 1; i >= 0; i-- {
		result = append(result, *m.executions[i])
	}
	if opts.Offset >= len(result) {
		return []model.Execution{}, nil
	}
	result = result[opts.Offset:]
	if opts.Limit > 0 && opts.Limit < len(result) {
		result = result[:opts.Limit]
	}
	return result, nil
}

// mockExecutor returns a canned result and remembers the last request.
type mockExecutor struct {
	result *executor.ExecutionResult
	err    error
	calls  int
	last   executor.ExecutionRequest
}

func (m *mockExecutor) Execute(_ context.Context, req executor.ExecutionRequest) (*executor.ExecutionResult, error) {
	m.calls++
	m.last = req
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

func newTestService(t *testing.T, exec *mockExecutor) (*ExecutionService, *mockExecutionRepo) {
	t.Helper()
	repo := &mockExecutionRepo{}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewExecutionService(exec, "fargate", repo, logger), repo
}

func pythonBatch(code string) executor.ExecutionRequest {
	return executor.ExecutionRequest{Blocks: []executor.CodeBlock{{Code: code, Language: "python"}}}
}

func TestExecute_Success(t *testing.T) {
	exec := &mockExecutor{result: &executor.ExecutionResult{
		ExitCode: 0,
		Output:   "Hello, World!",
		TaskARN:  "arn:aws:ecs:us-west-2:123456789012:task/cluster/abc",
		Duration: 2 * time.Second,
	}}
	svc, repo := newTestService(t, exec)

	got, err := svc.Execute(context.Background(), "ci", pythonBatch(`print("Hello, World!")`))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if got.ID == "" {
		t.Error("expected execution to have an ID")
	}
	if got.Status != model.StatusSucceeded {
		t.Errorf("Status = %q, want %q", got.Status, model.StatusSucceeded)
	}
	if got.Output != "Hello, World!" {
		t.Errorf("Output = %q, want %q", got.Output, "Hello, World!")
	}
	if got.Backend != "fargate" || got.Subject != "ci" {
		t.Errorf("Backend/Subject = %q/%q, want fargate/ci", got.Backend, got.Subject)
	}
	if got.Duration != 2*time.Second {
		t.Errorf("Duration = %v, want 2s", got.Duration)
	}
	if len(repo.executions) != 1 {
		t.Errorf("recorded %d executions, want 1", len(repo.executions))
	}
}

func TestExecute_NonZeroExitIsNotAnError(t *testing.T) {
	exec := &mockExecutor{result: &executor.ExecutionResult{ExitCode: 1, Output: "Error: something went wrong"}}
	svc, _ := newTestService(t, exec)

	got, err := svc.Execute(context.Background(), "", pythonBatch(`raise SystemExit(1)`))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if got.Status != model.StatusFailed {
		t.Errorf("Status = %q, want %q", got.Status, model.StatusFailed)
	}
	if got.ExitCode != 1 {
		t.Errorf("ExitCode = %d, want 1", got.ExitCode)
	}
}

func TestExecute_ExecutorErrorIsRecorded(t *testing.T) {
	exec := &mockExecutor{err: apperror.Timeout("task abc did not stop within 15m0s")}
	svc, repo := newTestService(t, exec)

	_, err := svc.Execute(context.Background(), "", pythonBatch(`import time; time.sleep(3600)`))
	if !errors.Is(err, apperror.ErrTimeout) {
		t.Fatalf("error = %v, want ErrTimeout", err)
	}

	if len(repo.executions) != 1 {
		t.Fatalf("recorded %d executions, want 1", len(repo.executions))
	}
	rec := repo.executions[0]
	if rec.Status != model.StatusError {
		t.Errorf("Status = %q, want %q", rec.Status, model.StatusError)
	}
	if !strings.Contains(rec.Error, "did not stop") {
		t.Errorf("Error = %q, want the executor error text", rec.Error)
	}
}

func TestExecute_RecordsLanguages(t *testing.T) {
	exec := &mockExecutor{result: &executor.ExecutionResult{}}
	svc, _ := newTestService(t, exec)

	got, err := svc.Execute(context.Background(), "", executor.ExecutionRequest{Blocks: []executor.CodeBlock{
		{Code: "print(1)", Language: " Python "},
		{Code: "echo 2", Language: "sh"},
	}})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if got.BlockCount != 2 {
		t.Errorf("BlockCount = %d, want 2", got.BlockCount)
	}
	if strings.Join(got.Languages, ",") != "python,sh" {
		t.Errorf("Languages = %v, want [python sh]", got.Languages)
	}
	if len(exec.last.Blocks) != 2 {
		t.Errorf("executor saw %d blocks, want 2", len(exec.last.Blocks))
	}
}

func TestExecute_RepositoryFailure(t *testing.T) {
	exec := &mockExecutor{result: &executor.ExecutionResult{}}
	svc, repo := newTestService(t, exec)
	repo.createErr = errors.New("disk full")

	_, err := svc.Execute(context.Background(), "", pythonBatch("print(1)"))
	if err == nil {
		t.Fatal("Execute() should error when the record cannot be saved")
	}
}

func TestExecute_Validation(t *testing.T) {
	tooMany := make([]executor.CodeBlock, MaxBlocks+1)
	for i := range tooMany {
		tooMany[i] = executor.CodeBlock{Code: "print(1)", Language: "python"}
	}

	tests := []struct {
		name   string
		blocks []executor.CodeBlock
	}{
		{name: "no blocks", blocks: nil},
		{name: "too many blocks", blocks: tooMany},
		{name: "empty code", blocks: []executor.CodeBlock{{Code: "  ", Language: "python"}}},
		{name: "unknown language", blocks: []executor.CodeBlock{{Code: "puts 1", Language: "ruby"}}},
		{name: "code too long", blocks: []executor.CodeBlock{
			{Code: strings.Repeat("a", MaxCodeLength/2+1), Language: "python"},
			{Code: strings.Repeat("b", MaxCodeLength/2), Language: "python"},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := &mockExecutor{result: &executor.ExecutionResult{}}
			svc, repo := newTestService(t, exec)

			_, err := svc.Execute(context.Background(), "", executor.ExecutionRequest{Blocks: tt.blocks})
			if !errors.Is(err, apperror.ErrValidation) {
				t.Errorf("error = %v, want ErrValidation", err)
			}
			if exec.calls != 0 {
				t.Errorf("executor called %d times, want 0", exec.calls)
			}
			if len(repo.executions) != 0 {
				t.Errorf("recorded %d executions, want 0", len(repo.executions))
			}
		})
	}
}

func TestGet(t *testing.T) {
	exec := &mockExecutor{result: &executor.ExecutionResult{Output: "ok"}}
	svc, _ := newTestService(t, exec)

	created, err := svc.Execute(context.Background(), "", pythonBatch("print('ok')"))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	got, err := svc.Get(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Output != "ok" {
		t.Errorf("Output = %q, want %q", got.Output, "ok")
	}
}

func TestGet_NotFound(t *testing.T) {
	svc, _ := newTestService(t, &mockExecutor{})

	_, err := svc.Get(context.Background(), "nonexistent")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestGet_EmptyID(t *testing.T) {
	svc, _ := newTestService(t, &mockExecutor{})

	_, err := svc.Get(context.Background(), "  ")
	if !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("error = %v, want ErrValidation", err)
	}
}

func TestList(t *testing.T) {
	exec := &mockExecutor{result: &executor.ExecutionResult{}}
	svc, _ := newTestService(t, exec)

	for range 3 {
		if _, err := svc.Execute(context.Background(), "", pythonBatch("print(1)")); err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
	}

	all, err := svc.List(context.Background(), 0, 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 3 {
		t.Errorf("List() returned %d, want 3", len(all))
	}
	if all[0].ID != "mock-3" {
		t.Errorf("first ID = %q, want newest mock-3", all[0].ID)
	}

	page, err := svc.List(context.Background(), 2, -5)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(page) != 2 {
		t.Errorf("List(limit=2) returned %d, want 2", len(page))
	}
}

func TestList_RepositoryError(t *testing.T) {
	svc, repo := newTestService(t, &mockExecutor{})
	repo.listErr = errors.New("database is locked")

	if _, err := svc.List(context.Background(), 10, 0); err == nil {
		t.Fatal("List() should propagate repository errors")
	}
}
