package runs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"pca-viewer/internal/analyzer"
	"pca-viewer/internal/collector"
	"pca-viewer/internal/dashboard"
	"pca-viewer/internal/pca"
	"pca-viewer/internal/shared/metrics"
	"pca-viewer/internal/shared/storage/object"
	"pca-viewer/internal/shared/telemetry"
)

// ExportName is the artifact name of the spreadsheet export.
const ExportName = "export.xlsx"

// ChartArtifact is the stored PNG name for a chart.
func ChartArtifact(name dashboard.ChartName) string {
	return name.FileName(dashboard.FormatPNG)
}

// Submission is everything known about one settled submission.
type Submission struct {
	SessionID  string
	Source     string
	Files      []collector.SelectedFile
	Rejected   []string
	Result     *pca.Result
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

// Service records runs and their artifacts.
type Service struct {
	Repo  Repo
	Store object.ObjectStore
	Now   func() time.Time
}

// Record persists the outcome of a submission. When it succeeded and a store
// is configured, rendered charts and the export are stored too; artifact
// failures are logged and leave the run without artifacts.
func (s *Service) Record(ctx context.Context, sub Submission) (Run, error) {
	run := s.newRun(sub)
	if err := s.Repo.Create(ctx, run); err != nil {
		return Run{}, fmt.Errorf("create run: %w", err)
	}

	metrics.ObserveSubmissionDurationMs(float64(run.DurationMS))
	metrics.ObserveFilesPerSubmission(len(run.Files))
	if run.Status == StatusFailed {
		metrics.IncSubmissionFailed(run.ErrorKind)
	} else {
		metrics.IncSubmissionCompleted()
	}

	fields := map[string]any{
		"run_id":      run.ID,
		"session_id":  run.SessionID,
		"source":      run.Source,
		"status":      run.Status,
		"files":       len(run.Files),
		"duration_ms": run.DurationMS,
	}
	if run.Status == StatusFailed {
		fields["error_kind"] = run.ErrorKind
		telemetry.Warn("run.recorded", fields)
		return run, nil
	}
	telemetry.Info("run.recorded", fields)

	if s.Store == nil {
		return run, nil
	}
	names, err := s.storeArtifacts(ctx, run)
	if err != nil {
		telemetry.Error("run.artifacts.failed", map[string]any{"run_id": run.ID, "err": err})
		return run, nil
	}
	if err := s.Repo.SetArtifacts(ctx, run.ID, names); err != nil {
		telemetry.Error("run.artifacts.failed", map[string]any{"run_id": run.ID, "err": err})
		return run, nil
	}
	metrics.AddArtifactsStored(len(names))
	run.Artifacts = names
	return run, nil
}

// Get returns a run by id.
func (s *Service) Get(ctx context.Context, id string) (Run, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Run{}, ErrNotFound
	}
	return s.Repo.GetByID(ctx, id)
}

// List returns recent runs, newest first.
func (s *Service) List(ctx context.Context, limit, offset int) ([]Run, error) {
	return s.Repo.ListRecent(ctx, limit, offset)
}

// WriteChart writes the named chart of a completed run. Stored PNGs are
// streamed back; anything else is rendered from the stored result.
func (s *Service) WriteChart(ctx context.Context, run Run, name dashboard.ChartName, format dashboard.Format, w io.Writer) error {
	if run.Result == nil {
		return ErrNoResult
	}
	if format == dashboard.FormatPNG && s.copyArtifact(ctx, run, ChartArtifact(name), w) {
		return nil
	}
	return dashboard.RenderChart(dashboard.Build(*run.Result), name, format, w)
}

// WriteExport writes the spreadsheet export of a completed run.
func (s *Service) WriteExport(ctx context.Context, run Run, w io.Writer) error {
	if run.Result == nil {
		return ErrNoResult
	}
	if s.copyArtifact(ctx, run, ExportName, w) {
		return nil
	}
	return dashboard.WriteWorkbook(*run.Result, w)
}

func (s *Service) copyArtifact(ctx context.Context, run Run, name string, w io.Writer) bool {
	if s.Store == nil || !run.HasArtifact(name) {
		return false
	}
	key, err := object.RunKey(run.ID, name)
	if err != nil {
		return false
	}
	rc, err := s.Store.Open(ctx, key)
	if err != nil {
		telemetry.Warn("run.artifact.open_failed", map[string]any{"run_id": run.ID, "artifact": name, "err": err})
		return false
	}
	defer rc.Close()
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, rc); err != nil {
		telemetry.Warn("run.artifact.read_failed", map[string]any{"run_id": run.ID, "artifact": name, "err": err})
		return false
	}
	_, err = buf.WriteTo(w)
	return err == nil
}

func (s *Service) storeArtifacts(ctx context.Context, run Run) ([]string, error) {
	board := dashboard.Build(*run.Result)
	var names []string
	for _, chart := range dashboard.ChartNames {
		var buf bytes.Buffer
		err := dashboard.RenderChart(board, chart, dashboard.FormatPNG, &buf)
		if errors.Is(err, dashboard.ErrEmptyChart) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("render %s: %w", chart, err)
		}
		name := ChartArtifact(chart)
		if err := s.put(ctx, run.ID, name, dashboard.FormatPNG.ContentType(), &buf); err != nil {
			return nil, err
		}
		names = append(names, name)
	}

	var buf bytes.Buffer
	if err := dashboard.WriteWorkbook(*run.Result, &buf); err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	if err := s.put(ctx, run.ID, ExportName, dashboard.WorkbookContentType, &buf); err != nil {
		return nil, err
	}
	return append(names, ExportName), nil
}

func (s *Service) put(ctx context.Context, runID, name, contentType string, r io.Reader) error {
	key, err := object.RunKey(runID, name)
	if err != nil {
		return err
	}
	if _, err := s.Store.Put(ctx, key, contentType, r); err != nil {
		return fmt.Errorf("store %s: %w", name, err)
	}
	return nil
}

func (s *Service) newRun(sub Submission) Run {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	created := now().UTC()
	if sub.StartedAt.IsZero() {
		sub.StartedAt = created
	}
	if sub.FinishedAt.IsZero() {
		sub.FinishedAt = created
	}
	source := sub.Source
	if source == "" {
		source = SourceWeb
	}

	run := Run{
		ID:          uuid.NewString(),
		SessionID:   sub.SessionID,
		Source:      source,
		Files:       make([]FileRef, 0, len(sub.Files)),
		Rejected:    append([]string{}, sub.Rejected...),
		Artifacts:   []string{},
		DurationMS:  sub.FinishedAt.Sub(sub.StartedAt).Milliseconds(),
		StartedAt:   sub.StartedAt.UTC(),
		CompletedAt: sub.FinishedAt.UTC(),
		CreatedAt:   created,
	}
	for _, f := range sub.Files {
		run.Files = append(run.Files, FileRef{Name: f.Name, Bytes: int64(len(f.Data)), SHA256: f.Digest()})
		run.FileBytes += int64(len(f.Data))
	}

	if sub.Err != nil || sub.Result == nil {
		run.Status = StatusFailed
		run.ErrorKind, run.HTTPStatus = classify(sub.Err)
		msg := analyzer.UserMessage(sub.Err)
		if msg == "" {
			msg = analyzer.UserMessage(errors.New("no result"))
		}
		run.ErrorMessage = &msg
		return run
	}

	res := *sub.Result
	stats := pca.Summarize(res)
	run.Status = StatusCompleted
	run.Result = &res
	run.Stats = &stats
	return run
}

func classify(err error) (string, int) {
	var aerr *analyzer.Error
	switch {
	case errors.As(err, &aerr):
		return string(aerr.Kind), aerr.Status
	case errors.Is(err, analyzer.ErrNotConfigured):
		return "not_configured", 0
	case errors.Is(err, analyzer.ErrNoFiles):
		return "no_files", 0
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout", 0
	case errors.Is(err, context.Canceled):
		return "canceled", 0
	}
	return "unknown", 0
}
