package domain

import "context"

// DocumentStore is the durable backend abstraction for whole documents. Save
// replaces any previous state stored under the same id.
type DocumentStore interface {
	Save(ctx context.Context, state DocumentState) error
	Load(ctx context.Context, id string) (DocumentState, error)
	List(ctx context.Context) ([]DocumentSummary, error)
	Delete(ctx context.Context, id string) (bool, error)
}

// ErrDocumentNotFound is returned by DocumentStore.Load for unknown ids.
type ErrDocumentNotFound struct {
	ID string
}

func (e ErrDocumentNotFound) Error() string {
	return "document " + e.ID + " not found"
}
