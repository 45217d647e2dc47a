// Package session owns the per-user state of the viewer: the current file
// selection, the last rendered dashboard, the loading flag and the pending
// notification. Handlers only ever read immutable View snapshots.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"pca-viewer/internal/analyzer"
	"pca-viewer/internal/collector"
	"pca-viewer/internal/dashboard"
	"pca-viewer/internal/pca"
	"pca-viewer/internal/shared/telemetry"
)

var (
	// ErrNothingSelected is returned by Submit while the selection is empty.
	ErrNothingSelected = errors.New("no files selected")
	// ErrSubmissionInFlight is returned by Submit while an earlier submission
	// has not settled.
	ErrSubmissionInFlight = errors.New("submission already in progress")
)

// Outcome describes one settled submission.
type Outcome struct {
	Selection  collector.Selection
	Files      []string
	Bytes      int64
	Result     *pca.Result
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration is how long the submission took.
func (o Outcome) Duration() time.Duration {
	return o.FinishedAt.Sub(o.StartedAt)
}

// View is a snapshot of a controller, safe to hand to templates.
type View struct {
	Files        []string
	Rejected     []string
	CanSubmit    bool
	Loading      bool
	Notification string
	Dashboard    *dashboard.Dashboard
	RunID        string
}

// Controller holds the state of one viewer session.
type Controller struct {
	client analyzer.Client
	now    func() time.Time

	mu           sync.Mutex
	selection    collector.Selection
	result       *pca.Result
	board        *dashboard.Dashboard
	runID        string
	loading      bool
	notification string
}

// NewController wires a controller to the analysis client.
func NewController(client analyzer.Client) *Controller {
	return &Controller{client: client, now: time.Now}
}

// Select replaces the current selection with the accepted subset of files.
func (c *Controller) Select(files []collector.SelectedFile) collector.Selection {
	sel := collector.Collect(files)
	if len(sel.Rejected) > 0 {
		telemetry.Warn("selection.rejected", map[string]any{
			"rejected": sel.Rejected,
			"accepted": len(sel.Files),
		})
	}

	c.mu.Lock()
	c.selection = sel
	c.mu.Unlock()
	return sel
}

// Submit sends the current selection for analysis. The returned error is
// either a precondition failure (nothing was sent) or the analysis error,
// which is also stored as the notification.
func (c *Controller) Submit(ctx context.Context) (Outcome, error) {
	c.mu.Lock()
	if c.loading {
		c.mu.Unlock()
		return Outcome{}, ErrSubmissionInFlight
	}
	if !c.selection.CanSubmit() {
		c.mu.Unlock()
		return Outcome{}, ErrNothingSelected
	}
	files := append([]collector.SelectedFile(nil), c.selection.Files...)
	out := Outcome{
		Selection: collector.Selection{
			Files:    files,
			Rejected: append([]string(nil), c.selection.Rejected...),
		},
		Files:     c.selection.Names(),
		Bytes:     c.selection.TotalBytes(),
		StartedAt: c.now(),
	}
	c.loading = true
	c.notification = ""
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.loading = false
		c.mu.Unlock()
	}()

	result, err := c.client.Analyze(ctx, files)
	out.FinishedAt = c.now()

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		out.Err = err
		c.notification = analyzer.UserMessage(err)
		return out, err
	}
	board := dashboard.Build(result)
	out.Result = &result
	c.result = &result
	c.board = &board
	c.runID = ""
	return out, nil
}

// AttachRun links the current dashboard to a stored run.
func (c *Controller) AttachRun(id string) {
	c.mu.Lock()
	c.runID = id
	c.mu.Unlock()
}

// Notify replaces the pending notification.
func (c *Controller) Notify(msg string) {
	c.mu.Lock()
	c.notification = msg
	c.mu.Unlock()
}

// Dismiss clears the pending notification.
func (c *Controller) Dismiss() {
	c.Notify("")
}

// Result returns the last successful analysis, if any.
func (c *Controller) Result() (pca.Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.result == nil {
		return pca.Result{}, false
	}
	return *c.result, true
}

// View snapshots the controller.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := View{
		Files:        c.selection.Names(),
		Rejected:     append([]string(nil), c.selection.Rejected...),
		CanSubmit:    c.selection.CanSubmit() && !c.loading,
		Loading:      c.loading,
		Notification: c.notification,
		RunID:        c.runID,
	}
	if c.board != nil {
		b := *c.board
		v.Dashboard = &b
	}
	return v
}
