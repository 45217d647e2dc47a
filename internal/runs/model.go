package runs

import (
	"time"

	"pca-viewer/internal/pca"
)

const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

const (
	SourceWeb = "web"
	SourceAPI = "api"
	SourceCLI = "cli"
)

// FileRef identifies one submitted file without keeping its contents.
type FileRef struct {
	Name   string `json:"name"`
	Bytes  int64  `json:"bytes"`
	SHA256 string `json:"sha256"`
}

// Run is the record of one settled submission.
type Run struct {
	ID           string      `json:"id"`
	SessionID    string      `json:"-"`
	Source       string      `json:"source"`
	Status       string      `json:"status"`
	Files        []FileRef   `json:"files"`
	FileBytes    int64       `json:"fileBytes"`
	Rejected     []string    `json:"rejected"`
	Result       *pca.Result `json:"result,omitempty"`
	Stats        *pca.Stats  `json:"stats,omitempty"`
	ErrorKind    string      `json:"errorKind,omitempty"`
	ErrorMessage *string     `json:"errorMessage,omitempty"`
	HTTPStatus   int         `json:"httpStatus,omitempty"`
	Artifacts    []string    `json:"artifacts"`
	DurationMS   int64       `json:"durationMs"`
	StartedAt    time.Time   `json:"startedAt"`
	CompletedAt  time.Time   `json:"completedAt"`
	CreatedAt    time.Time   `json:"createdAt"`
}

// HasArtifact reports whether name was stored for the run.
func (r Run) HasArtifact(name string) bool {
	for _, a := range r.Artifacts {
		if a == name {
			return true
		}
	}
	return false
}
