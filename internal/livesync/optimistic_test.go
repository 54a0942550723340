package livesync

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

type sequenceIDProvider struct {
	next int
}

func (p *sequenceIDProvider) NewID() (string, error) {
	p.next++
	return fmt.Sprintf("id-%d", p.next), nil
}

func newTestMutator(t *testing.T, store *Store[testRecord]) *Mutator[testRecord] {
	t.Helper()
	mutator, err := NewMutator(MutatorConfig[testRecord]{
		Store:      store,
		IDProvider: &sequenceIDProvider{},
		Clock:      func() time.Time { return time.Unix(1700000600, 0).UTC() },
	})
	if err != nil {
		t.Fatalf("failed to construct mutator: %v", err)
	}
	return mutator
}

func TestMutatorReplacesTentativeOnSuccess(t *testing.T) {
	store := NewStore[testRecord]()
	mutator := newTestMutator(t, store)

	var stagedID string
	confirmed, err := mutator.Do(context.Background(),
		func(tempID string, stagedAt time.Time) testRecord {
			stagedID = tempID
			record := newRecord(tempID, "hi")
			record.createdAt = stagedAt
			return record
		},
		func(ctx context.Context) (testRecord, error) {
			if store.Len() != 1 {
				t.Fatalf("expected tentative record staged before send")
			}
			return newRecord("m-42", "hi"), nil
		})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if confirmed.id != "m-42" {
		t.Fatalf("expected confirmed id m-42, got %q", confirmed.id)
	}
	if !IsTempID(stagedID) {
		t.Fatalf("expected staged id to carry the temp prefix, got %q", stagedID)
	}

	if store.Len() != 1 {
		t.Fatalf("expected exactly one record after reconciliation, got %d", store.Len())
	}
	if _, ok := store.Get(stagedID); ok {
		t.Fatalf("tentative record must not survive reconciliation")
	}
}

func TestMutatorRollsBackOnFailure(t *testing.T) {
	store := NewStore[testRecord]()
	store.Append(newRecord("m-1", "earlier"))
	before := store.All()
	mutator := newTestMutator(t, store)

	sendErr := errors.New("backend unavailable")
	_, err := mutator.Do(context.Background(),
		func(tempID string, stagedAt time.Time) testRecord {
			return newRecord(tempID, "doomed")
		},
		func(ctx context.Context) (testRecord, error) {
			var zero testRecord
			return zero, sendErr
		})
	if !errors.Is(err, sendErr) {
		t.Fatalf("expected send error to surface, got %v", err)
	}

	after := store.All()
	if len(after) != len(before) {
		t.Fatalf("expected store restored to pre-mutation state, got %d records", len(after))
	}
	if after[0].id != "m-1" {
		t.Fatalf("unexpected surviving record: %#v", after[0])
	}
}

func TestMutatorOutOfOrderResponsesResolveOwnSlots(t *testing.T) {
	store := NewStore[testRecord]()
	mutator := newTestMutator(t, store)

	release := make(chan struct{})
	firstDone := make(chan struct{})
	go func() {
		defer close(firstDone)
		_, err := mutator.Do(context.Background(),
			func(tempID string, stagedAt time.Time) testRecord {
				return newRecord(tempID, "first")
			},
			func(ctx context.Context) (testRecord, error) {
				<-release
				return newRecord("m-1", "first"), nil
			})
		if err != nil {
			t.Errorf("unexpected error for first mutation: %v", err)
		}
	}()

	// Wait for the first tentative record to be staged, then resolve a
	// second mutation before the first completes.
	deadline := time.After(2 * time.Second)
	for store.Len() < 1 {
		select {
		case <-deadline:
			t.Fatal("first tentative record was never staged")
		case <-time.After(5 * time.Millisecond):
		}
	}

	_, err := mutator.Do(context.Background(),
		func(tempID string, stagedAt time.Time) testRecord {
			return newRecord(tempID, "second")
		},
		func(ctx context.Context) (testRecord, error) {
			return newRecord("m-2", "second"), nil
		})
	if err != nil {
		t.Fatalf("unexpected error for second mutation: %v", err)
	}

	close(release)
	<-firstDone

	all := store.All()
	if len(all) != 2 {
		t.Fatalf("expected 2 records, got %d", len(all))
	}
	if all[0].content != "first" || all[1].content != "second" {
		t.Fatalf("expected insertion order preserved across out-of-order responses, got %#v", all)
	}
	if all[0].id != "m-1" || all[1].id != "m-2" {
		t.Fatalf("expected each response to resolve its own slot, got %#v", all)
	}
}
