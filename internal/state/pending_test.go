package state

import "testing"

func pending(id, action, outcome string) PendingAction {
	return PendingAction{
		ID:      id,
		Action:  action,
		Outcome: outcome,
		Args:    map[string]string{"event_text": "sync"},
	}
}

func TestPendingStoreAppendAndList(t *testing.T) {
	store := NewPendingStore()
	store.Append("t1", pending("pa_1", "google_calendar", "calendar_write"))
	store.Append("t1", pending("pa_2", "google_gmail", "gmail_send"))
	store.Append("t2", pending("pa_3", "google_gmail", "gmail_send"))

	got := store.List("t1")
	if len(got) != 2 {
		t.Fatalf("List(t1) len = %d, want 2", len(got))
	}
	if got[0].ID != "pa_1" || got[1].ID != "pa_2" {
		t.Errorf("order = %s, %s; want pa_1, pa_2", got[0].ID, got[1].ID)
	}
	for _, a := range got {
		if a.ThreadID != "t1" {
			t.Errorf("thread id = %q, want t1", a.ThreadID)
		}
		if a.Status != PendingStatus {
			t.Errorf("status = %q, want pending", a.Status)
		}
	}
	if len(store.List("t2")) != 1 {
		t.Error("threads must not share pending lists")
	}
}

func TestPendingStoreListReturnsCopies(t *testing.T) {
	store := NewPendingStore()
	store.Append("t1", pending("pa_1", "google_calendar", "calendar_write"))

	first := store.List("t1")
	first[0].Args["event_text"] = "mutated"
	second := store.List("t1")
	if second[0].Args["event_text"] != "sync" {
		t.Error("mutating a listed action leaked into the store")
	}
}

func TestPendingStoreRemove(t *testing.T) {
	store := NewPendingStore()
	store.Append("t1", pending("pa_1", "google_calendar", "calendar_write"))
	store.Append("t1", pending("pa_2", "google_gmail", "gmail_send"))

	removed := store.Remove("t1", []string{"pa_1", "pa_missing"})
	if removed != 1 {
		t.Errorf("Remove = %d, want 1", removed)
	}
	left := store.List("t1")
	if len(left) != 1 || left[0].ID != "pa_2" {
		t.Errorf("remaining = %+v, want only pa_2", left)
	}
}

func TestPendingStoreReplacePreservesIdentifier(t *testing.T) {
	store := NewPendingStore()
	store.Append("t1", pending("pa_1", "google_calendar", "calendar_write"))

	actions := store.List("t1")
	actions[0].Args["event_day"] = "friday"
	store.Replace("t1", actions)

	got := store.List("t1")
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	if got[0].ID != "pa_1" {
		t.Errorf("id = %q, want pa_1 (edit keeps the identifier)", got[0].ID)
	}
	if got[0].Args["event_day"] != "friday" {
		t.Errorf("edited field not stored: %+v", got[0].Args)
	}
	if got[0].Status != PendingStatus {
		t.Errorf("status = %q, want pending", got[0].Status)
	}
}

func TestThreadStoreUpdate(t *testing.T) {
	store := NewThreadStore()
	store.Update("t1", func(st *ThreadState) {
		st.LastAction = "web_search"
		st.LastWebQuery = "latest Go release"
	})
	got := store.Get("t1")
	if got.LastAction != "web_search" || got.LastWebQuery != "latest Go release" {
		t.Errorf("state = %+v", got)
	}
	if other := store.Get("t2"); other.LastAction != "" {
		t.Error("thread state must not leak across threads")
	}
}
