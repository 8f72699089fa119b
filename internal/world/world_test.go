package world

import "testing"

func TestUpdateUserCreatesAndArbitratesNick(t *testing.T) {
	w := New()
	u, changed := w.UpdateUser(UserSnapshot{ID: "U1", ProposedNick: "alice"})
	if changed {
		t.Fatalf("creation should not report a nick change")
	}
	if u.Nick != "alice" {
		t.Fatalf("nick = %q, want alice", u.Nick)
	}
	got, ok := w.UserByName("ALICE")
	if !ok || got.ID != "U1" {
		t.Fatalf("UserByName case-folded lookup failed")
	}
}

func TestUpdateUserCollisionGetsSuffixed(t *testing.T) {
	w := New()
	w.UpdateUser(UserSnapshot{ID: "U1", ProposedNick: "bob"})
	u2, _ := w.UpdateUser(UserSnapshot{ID: "U2", ProposedNick: "bob"})
	if u2.Nick != "bob1" {
		t.Fatalf("second bob = %q, want bob1", u2.Nick)
	}
}

func TestUpdateUserRenameReindexesAndReportsChange(t *testing.T) {
	w := New()
	w.UpdateUser(UserSnapshot{ID: "U1", ProposedNick: "alice"})
	_, changed := w.UpdateUser(UserSnapshot{ID: "U1", ProposedNick: "alicia"})
	if !changed {
		t.Fatalf("expected nick change to be reported")
	}
	if _, ok := w.UserByName("alice"); ok {
		t.Fatalf("old folded name should have been removed")
	}
	if got, ok := w.UserByName("alicia"); !ok || got.ID != "U1" {
		t.Fatalf("new folded name not indexed")
	}
}

func TestJoinPartInvariantAndIdempotence(t *testing.T) {
	w := New()
	w.UpdateUser(UserSnapshot{ID: "U1", ProposedNick: "alice"})
	w.UpdateChannel(KindPublic, ChannelSnapshot{ID: "C1", ProposedName: "general"})

	if !w.Join("U1", "C1") {
		t.Fatalf("first join should report a change")
	}
	if w.Join("U1", "C1") {
		t.Fatalf("re-join should be idempotent (no change)")
	}

	u, _ := w.User("U1")
	c, _ := w.Channel("C1")
	if !u.InChannel("C1") || !c.HasMember("U1") {
		t.Fatalf("bidirectional membership invariant violated after join")
	}

	if !w.Part("U1", "C1") {
		t.Fatalf("first part should report a change")
	}
	if u.InChannel("C1") || c.HasMember("U1") {
		t.Fatalf("bidirectional membership invariant violated after part")
	}
	if w.Part("U1", "C1") {
		t.Fatalf("re-part should be idempotent (no change)")
	}
}

func TestUpdateChannelStableNameOnRefresh(t *testing.T) {
	w := New()
	c := w.UpdateChannel(KindPublic, ChannelSnapshot{ID: "C1", ProposedName: "general", Topic: "t1"})
	name := c.Name
	c2 := w.UpdateChannel(KindPublic, ChannelSnapshot{ID: "C1", ProposedName: "renamed-upstream", Topic: "t2"})
	if c2.Name != name {
		t.Fatalf("channel name changed on refresh: %q -> %q", name, c2.Name)
	}
	if c2.Topic != "t2" {
		t.Fatalf("topic should update on refresh")
	}
}

func TestUpdateChannelMembersStubCreatesUsers(t *testing.T) {
	w := New()
	c := w.UpdateChannel(KindPublic, ChannelSnapshot{ID: "C1", ProposedName: "general", MemberIDs: []string{"U1", "U2"}})
	if !c.HasMember("U1") || !c.HasMember("U2") {
		t.Fatalf("members not linked")
	}
	u1, ok := w.User("U1")
	if !ok || !u1.InChannel("C1") {
		t.Fatalf("stub user not bidirectionally linked")
	}
}

func TestUpdateChannelClosedExcludesSelf(t *testing.T) {
	w := New()
	w.SelfID = "SELF"
	w.UpdateUser(UserSnapshot{ID: "SELF", ProposedNick: "me"})
	c := w.UpdateChannel(KindGroup, ChannelSnapshot{
		ID: "G1", ProposedName: "grp", MemberIDs: []string{"SELF", "U2"}, Closed: true,
	})
	if c.HasMember("SELF") {
		t.Fatalf("closed group should exclude self from membership")
	}
	if !c.HasMember("U2") {
		t.Fatalf("non-self member should still be linked")
	}
}

func TestDeleteChannelRemovesBidirectionalLinks(t *testing.T) {
	w := New()
	w.UpdateChannel(KindPublic, ChannelSnapshot{ID: "C1", ProposedName: "general", MemberIDs: []string{"U1"}})
	w.DeleteChannel("C1")
	if _, ok := w.Channel("C1"); ok {
		t.Fatalf("channel should be gone")
	}
	u, _ := w.User("U1")
	if u.InChannel("C1") {
		t.Fatalf("member's channel set should no longer reference deleted channel")
	}
}

func TestDMLifecycle(t *testing.T) {
	w := New()
	w.UpdateUser(UserSnapshot{ID: "U1", ProposedNick: "bob"})

	w.BeginDMPending("U1", "hi")
	w.QueueDM("U1", "there")

	u, _ := w.User("U1")
	if u.DMState != DMPending || len(u.TxQueue) != 2 {
		t.Fatalf("expected pending state with 2 queued messages, got %+v", u)
	}

	queued, ok := w.SetDMID("U1", "D1")
	if !ok {
		t.Fatalf("SetDMID failed")
	}
	if len(queued) != 2 || queued[0] != "hi" || queued[1] != "there" {
		t.Fatalf("queue not drained FIFO: %+v", queued)
	}
	if u.DMState != DMPresent || len(u.TxQueue) != 0 {
		t.Fatalf("state not present/drained after SetDMID: %+v", u)
	}
	got, ok := w.UserByDMID("D1")
	if !ok || got.ID != "U1" {
		t.Fatalf("users_by_dmid invariant violated")
	}
}

func TestResetClearsEverything(t *testing.T) {
	w := New()
	w.SelfID = "SELF"
	w.UpdateUser(UserSnapshot{ID: "SELF", ProposedNick: "me"})
	w.UpdateChannel(KindPublic, ChannelSnapshot{ID: "C1", ProposedName: "general", MemberIDs: []string{"SELF"}})

	w.Reset()

	if w.SelfID != "" {
		t.Fatalf("self id should be cleared")
	}
	if len(w.Users()) != 0 || len(w.Channels()) != 0 {
		t.Fatalf("maps should be empty after reset")
	}
	if _, ok := w.UserByName("me"); ok {
		t.Fatalf("secondary index should be cleared too")
	}
}
