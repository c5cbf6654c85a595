package storage

import (
	"context"
	"reflect"

	"github.com/boddenberg/influmatch-bfa-go/internal/domain"
)

// ============================================================
// Collaboration requests — collaboration_requests collection
// ============================================================

// ListRequests returns every stored collaboration request.
func (s *Store) ListRequests(ctx context.Context) ([]domain.CollaborationRequest, error) {
	ctx, span := tracer.Start(ctx, "Storage.ListRequests")
	defer span.End()

	var requests []domain.CollaborationRequest
	if _, err := s.getJSON(ctx, KeyRequests, &requests); err != nil {
		return nil, err
	}
	return requests, nil
}

// UpdateRequests runs a read-modify-write on the collection. fn reports
// whether it changed anything; nothing is written otherwise. Requests fn
// added or modified are validated before the write; untouched legacy
// records are carried over as they are so one bad record cannot block every
// later write. The orphan repair moves those aside.
func (s *Store) UpdateRequests(ctx context.Context, fn func([]domain.CollaborationRequest) ([]domain.CollaborationRequest, bool, error)) error {
	ctx, span := tracer.Start(ctx, "Storage.UpdateRequests")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	var requests []domain.CollaborationRequest
	if _, err := s.getJSON(ctx, KeyRequests, &requests); err != nil {
		return err
	}
	before := make(map[string][]domain.CollaborationRequest, len(requests))
	for _, r := range requests {
		before[r.ID] = append(before[r.ID], r)
	}

	updated, changed, err := fn(requests)
	if err != nil || !changed {
		return err
	}
	for i := range updated {
		if unchanged(before[updated[i].ID], updated[i]) {
			continue
		}
		if err := updated[i].Validate(); err != nil {
			return s.rejectInvalid(KeyRequests, updated[i].ID, err)
		}
	}
	if updated == nil {
		updated = []domain.CollaborationRequest{}
	}
	return s.putJSON(ctx, KeyRequests, updated)
}

func unchanged(prev []domain.CollaborationRequest, r domain.CollaborationRequest) bool {
	for _, p := range prev {
		if reflect.DeepEqual(p, r) {
			return true
		}
	}
	return false
}

// ListQuarantinedRequests returns requests moved aside by the orphan repair.
func (s *Store) ListQuarantinedRequests(ctx context.Context) ([]domain.CollaborationRequest, error) {
	var requests []domain.CollaborationRequest
	if _, err := s.getJSON(ctx, KeyOrphanedRequests, &requests); err != nil {
		return nil, err
	}
	return requests, nil
}

// QuarantineRequests moves every request matching pred from the live
// collection to orphaned_collaboration_requests. The quarantine is written
// first and deduplicated by id, so an interrupted run is completed by the next.
func (s *Store) QuarantineRequests(ctx context.Context, pred func(domain.CollaborationRequest) bool) ([]domain.CollaborationRequest, error) {
	ctx, span := tracer.Start(ctx, "Storage.QuarantineRequests")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	var live []domain.CollaborationRequest
	if _, err := s.getJSON(ctx, KeyRequests, &live); err != nil {
		return nil, err
	}

	var moved, kept []domain.CollaborationRequest
	for _, r := range live {
		if pred(r) {
			moved = append(moved, r)
		} else {
			kept = append(kept, r)
		}
	}
	if len(moved) == 0 {
		return nil, nil
	}

	var quarantine []domain.CollaborationRequest
	if _, err := s.getJSON(ctx, KeyOrphanedRequests, &quarantine); err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(quarantine))
	for _, r := range quarantine {
		seen[r.ID] = true
	}
	for _, r := range moved {
		if !seen[r.ID] {
			quarantine = append(quarantine, r)
			seen[r.ID] = true
		}
	}

	if err := s.putJSON(ctx, KeyOrphanedRequests, quarantine); err != nil {
		return nil, err
	}
	if kept == nil {
		kept = []domain.CollaborationRequest{}
	}
	if err := s.putJSON(ctx, KeyRequests, kept); err != nil {
		return nil, err
	}
	return moved, nil
}
