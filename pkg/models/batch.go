package models

// BatchMode controls how a batch treats missing targets.
// upsert creates them; update_only fails the whole batch.
type BatchMode string

const (
	BatchModeUpsert     BatchMode = "upsert"
	BatchModeUpdateOnly BatchMode = "update_only"
)

// IsValid reports whether the mode is known. Empty defaults to upsert.
func (m BatchMode) IsValid() bool {
	return m == "" || m == BatchModeUpsert || m == BatchModeUpdateOnly
}

// OperationOutcome classifies what a single batch operation did.
type OperationOutcome string

const (
	OutcomeCreated   OperationOutcome = "created"
	OutcomeUpdated   OperationOutcome = "updated"
	OutcomeDeleted   OperationOutcome = "deleted"
	OutcomeUnchanged OperationOutcome = "unchanged"
)

// SortableOperation is one desired (domain_id, position) pair inside a batch.
// ExpectedTag, when set, is an optimistic-concurrency precondition for this item.
type SortableOperation struct {
	DomainID    string `json:"domain_id" validate:"required,max=64"`
	Position    int64  `json:"position,omitempty"`
	Delete      bool   `json:"delete,omitempty"`
	ExpectedTag string `json:"expected_tag,omitempty"`
}

// OperationResult is the per-item outcome of a batch.
type OperationResult struct {
	DomainID string           `json:"domain_id"`
	Outcome  OperationOutcome `json:"outcome"`
	Position int64            `json:"position,omitempty"`
	ETag     string           `json:"etag,omitempty"`
}

// BatchSummary counts outcomes across the whole batch.
type BatchSummary struct {
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Deleted   int `json:"deleted"`
	Unchanged int `json:"unchanged"`
}

// BatchSortableRequest applies many sortable mutations atomically.
// ReplaceAll additionally deletes every row in the scope absent from Operations.
type BatchSortableRequest struct {
	Operations []SortableOperation `json:"operations" validate:"required,min=1,dive"`
	Mode       BatchMode           `json:"mode,omitempty"`
	ReplaceAll bool                `json:"replace_all,omitempty"`
}

// BatchResult is the structured outcome of one atomic batch.
type BatchResult struct {
	Results []OperationResult `json:"results"`
	Summary BatchSummary      `json:"summary"`
	ETag    string            `json:"etag,omitempty"`
}

// Append records a per-item result and updates the summary counts.
func (r *BatchResult) Append(res OperationResult) {
	r.Results = append(r.Results, res)
	switch res.Outcome {
	case OutcomeCreated:
		r.Summary.Created++
	case OutcomeUpdated:
		r.Summary.Updated++
	case OutcomeDeleted:
		r.Summary.Deleted++
	case OutcomeUnchanged:
		r.Summary.Unchanged++
	}
}
