package state

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/erentorlak/todv2/pkg/models"
)

// stores runs fn against every SessionStore implementation.
func stores(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Run("sqlite", func(t *testing.T) { fn(t, setupTestDB(t)) })
	t.Run("memory", func(t *testing.T) { fn(t, NewMemory()) })
}

func sampleSession(id string) *models.Session {
	s := models.NewSession(id)
	s.CreatedAt = s.CreatedAt.UTC().Truncate(time.Second)
	s.UpdatedAt = s.CreatedAt
	s.CurrentIntent = "book_flight"
	s.ExtractedParameters["origin"] = "New York"
	s.SelectedTools = []string{"search_flights", "book_flight"}
	s.Context.RequiredParameters = []string{"origin", "destination", "date"}
	s.Context.ExecutionOrder = [][]string{{"search_flights"}, {"book_flight"}}
	s.Context.RetryCounts["destination"] = 2
	s.Context.AwaitingConfirmation = &models.SwitchProposal{From: "book_flight", To: "book_hotel"}
	s.PausedIntents = []models.PausedIntent{{
		Intent:     "book_hotel",
		Parameters: map[string]string{"destination": "Rome"},
		PausedAt:   models.PausedAtParameterCollection,
	}}
	s.Messages = []models.Message{{Role: models.RoleUser, Content: "Book a flight from New York", At: s.CreatedAt}}
	return s
}

func TestCreateAndGetSession(t *testing.T) {
	stores(t, func(t *testing.T, st Store) {
		want := sampleSession("sess-1")
		if err := st.CreateSession(want); err != nil {
			t.Fatalf("CreateSession failed: %v", err)
		}

		got, err := st.GetSession("sess-1")
		if err != nil {
			t.Fatalf("GetSession failed: %v", err)
		}
		if got == nil {
			t.Fatal("GetSession returned nil")
		}
		if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
			t.Errorf("session mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestCreateSession_Duplicate(t *testing.T) {
	stores(t, func(t *testing.T, st Store) {
		if err := st.CreateSession(sampleSession("dup")); err != nil {
			t.Fatal(err)
		}
		if err := st.CreateSession(sampleSession("dup")); err == nil {
			t.Error("expected error creating duplicate session")
		}
	})
}

func TestGetSession_NotFound(t *testing.T) {
	stores(t, func(t *testing.T, st Store) {
		got, err := st.GetSession("missing")
		if err != nil {
			t.Fatalf("GetSession failed: %v", err)
		}
		if got != nil {
			t.Errorf("expected nil, got %+v", got)
		}
	})
}

func TestSaveSession_Upsert(t *testing.T) {
	stores(t, func(t *testing.T, st Store) {
		s := sampleSession("sess-2")
		if err := st.SaveSession(s); err != nil {
			t.Fatalf("SaveSession (insert) failed: %v", err)
		}

		s.CurrentIntent = "book_hotel"
		s.Ended = true
		s.ExtractedParameters["destination"] = "Paris"
		if err := st.SaveSession(s); err != nil {
			t.Fatalf("SaveSession (update) failed: %v", err)
		}

		got, err := st.GetSession("sess-2")
		if err != nil || got == nil {
			t.Fatalf("GetSession: %v, %v", got, err)
		}
		if got.CurrentIntent != "book_hotel" || !got.Ended || got.ExtractedParameters["destination"] != "Paris" {
			t.Errorf("update not persisted: %+v", got)
		}

		list, err := st.ListSessions()
		if err != nil {
			t.Fatal(err)
		}
		if len(list) != 1 || list[0].Intent != "book_hotel" || !list[0].Ended {
			t.Errorf("unexpected listing %+v", list)
		}
	})
}

func TestGetSession_DoesNotShareState(t *testing.T) {
	stores(t, func(t *testing.T, st Store) {
		s := sampleSession("sess-3")
		if err := st.SaveSession(s); err != nil {
			t.Fatal(err)
		}
		s.ExtractedParameters["origin"] = "mutated"

		got, _ := st.GetSession("sess-3")
		if got.ExtractedParameters["origin"] != "New York" {
			t.Errorf("stored session was mutated through the caller's pointer")
		}
	})
}

func TestDeleteSession(t *testing.T) {
	stores(t, func(t *testing.T, st Store) {
		if err := st.SaveSession(sampleSession("gone")); err != nil {
			t.Fatal(err)
		}
		if err := st.DeleteSession("gone"); err != nil {
			t.Fatalf("DeleteSession failed: %v", err)
		}
		got, err := st.GetSession("gone")
		if err != nil || got != nil {
			t.Errorf("expected deleted session, got %v, %v", got, err)
		}
	})
}

func TestListSessions_Order(t *testing.T) {
	stores(t, func(t *testing.T, st Store) {
		base := time.Now().UTC().Truncate(time.Second)
		for i, id := range []string{"a", "b", "c"} {
			s := sampleSession(id)
			s.UpdatedAt = base.Add(time.Duration(i) * time.Minute)
			if err := st.SaveSession(s); err != nil {
				t.Fatal(err)
			}
		}
		list, err := st.ListSessions()
		if err != nil {
			t.Fatal(err)
		}
		var ids []string
		for _, info := range list {
			ids = append(ids, info.ID)
		}
		if diff := cmp.Diff([]string{"c", "b", "a"}, ids); diff != "" {
			t.Errorf("order mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestPurgeOldSessions(t *testing.T) {
	stores(t, func(t *testing.T, st Store) {
		old := sampleSession("old")
		old.UpdatedAt = time.Now().Add(-48 * time.Hour)
		fresh := sampleSession("fresh")
		fresh.UpdatedAt = time.Now()
		for _, s := range []*models.Session{old, fresh} {
			if err := st.SaveSession(s); err != nil {
				t.Fatal(err)
			}
		}

		n, err := st.PurgeOldSessions(24 * time.Hour)
		if err != nil {
			t.Fatalf("PurgeOldSessions failed: %v", err)
		}
		if n != 1 {
			t.Errorf("purged %d, want 1", n)
		}
		if s, _ := st.GetSession("fresh"); s == nil {
			t.Error("fresh session was purged")
		}
		if s, _ := st.GetSession("old"); s != nil {
			t.Error("old session survived purge")
		}
	})
}

func TestPurgeOldSessions_EmptyDB(t *testing.T) {
	stores(t, func(t *testing.T, st Store) {
		n, err := st.PurgeOldSessions(time.Hour)
		if err != nil {
			t.Fatalf("PurgeOldSessions failed: %v", err)
		}
		if n != 0 {
			t.Errorf("purged %d from empty store", n)
		}
	})
}

func TestJanitor_Sweep(t *testing.T) {
	st := NewMemory()
	old := sampleSession("old")
	old.UpdatedAt = time.Now().Add(-2 * time.Hour)
	if err := st.SaveSession(old); err != nil {
		t.Fatal(err)
	}

	if n, _ := NewJanitor(st, 0, 0).Sweep(); n != 0 {
		t.Errorf("zero retention should keep everything, purged %d", n)
	}
	n, err := NewJanitor(st, time.Hour, 0).Sweep()
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("purged %d, want 1", n)
	}
}
