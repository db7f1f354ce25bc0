package calls

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepo is an in-memory Store used by tests and dry runs.
// It is not intended for production use.
type MemoryRepo struct {
	mu sync.Mutex

	calls      map[string]CallRecord // key: id
	byProvider map[string]string     // provider_call_id -> id
	mappings   map[string]ExtensionMapping

	clock func() time.Time
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		calls:      map[string]CallRecord{},
		byProvider: map[string]string{},
		mappings:   map[string]ExtensionMapping{},
		clock:      time.Now,
	}
}

// PutExtensionMapping seeds a mapping.
func (r *MemoryRepo) PutExtensionMapping(m ExtensionMapping) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mappings[m.ExtensionID] = m
}

// Calls returns a snapshot of all stored calls ordered by start time.
func (r *MemoryRepo) Calls() []CallRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]CallRecord, 0, len(r.calls))
	for _, c := range r.calls {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CallStartTime.Before(out[j].CallStartTime) })
	return out
}

func (r *MemoryRepo) GetCallsNeedingTranscription(ctx context.Context, limit int) ([]CallRecord, error) {
	if limit <= 0 {
		return nil, ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []CallRecord
	for _, c := range r.calls {
		if c.NeedsTranscription() {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CallStartTime.After(out[j].CallStartTime) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepo) CreateCallRecording(ctx context.Context, rec CallRecord) (bool, error) {
	if rec.ProviderCallID == "" {
		return false, ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byProvider[rec.ProviderCallID]; ok {
		return false, nil
	}
	now := r.clock().UTC()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	r.calls[rec.ID] = rec
	r.byProvider[rec.ProviderCallID] = rec.ID
	return true, nil
}

func (r *MemoryRepo) UpdateCallRecording(ctx context.Context, id string, patch CallPatch) error {
	if id == "" {
		return ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.calls[id]
	if !ok {
		return ErrNotFound
	}
	if patch.TranscriptText != nil {
		v := *patch.TranscriptText
		c.TranscriptText = &v
	}
	if patch.TranscriptMetadata != nil {
		m := *patch.TranscriptMetadata
		c.TranscriptMetadata = &m
	}
	if patch.IsSalesCall != nil {
		v := *patch.IsSalesCall
		c.IsSalesCall = &v
	}
	if patch.ProviderSessionID != nil && c.ProviderSessionID == "" {
		c.ProviderSessionID = *patch.ProviderSessionID
	}
	c.UpdatedAt = r.clock().UTC()
	r.calls[id] = c
	return nil
}

func (r *MemoryRepo) GetCallRecordingByProviderID(ctx context.Context, providerCallID string) (CallRecord, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byProvider[providerCallID]
	if !ok {
		return CallRecord{}, false, nil
	}
	return r.calls[id], true, nil
}

func (r *MemoryRepo) GetCallRecording(ctx context.Context, id string) (CallRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.calls[id]
	if !ok {
		return CallRecord{}, ErrNotFound
	}
	return c, nil
}

func (r *MemoryRepo) GetExtensionMapping(ctx context.Context, extensionID string) (ExtensionMapping, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.mappings[extensionID]
	return m, ok, nil
}

func (r *MemoryRepo) ListCallsMissingSessionID(ctx context.Context) ([]CallRecord, error) {
	var out []CallRecord
	for _, c := range r.Calls() {
		if c.ProviderSessionID == "" {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *MemoryRepo) CountCallsWithSessionID(ctx context.Context) (int, error) {
	n := 0
	for _, c := range r.Calls() {
		if c.ProviderSessionID != "" {
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepo) ListCalls(ctx context.Context, from, to time.Time) ([]CallRecord, error) {
	if !to.After(from) {
		return nil, ErrInvalidArgument
	}
	var out []CallRecord
	for _, c := range r.Calls() {
		if !c.CallStartTime.Before(from) && c.CallStartTime.Before(to) {
			out = append(out, c)
		}
	}
	return out, nil
}
