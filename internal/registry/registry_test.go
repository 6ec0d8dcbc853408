package registry

import (
	"fmt"
	"sort"
	"sync"
	"testing"
)

type fakeChannel struct {
	id string

	mu   sync.Mutex
	sent [][]byte
}

func (f *fakeChannel) ID() string { return f.id }

func (f *fakeChannel) Send(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, data)
	return nil
}

func TestRegisterAndLookup(t *testing.T) {
	r := New()
	alice := &fakeChannel{id: "a"}

	r.Register("room1", "alice", alice)

	if got := r.Lookup("room1", "alice"); got != Channel(alice) {
		t.Fatalf("Lookup returned %v, want alice's channel", got)
	}
	if got := r.Lookup("room1", "bob"); got != nil {
		t.Fatalf("Lookup for absent participant returned %v, want nil", got)
	}
	if got := r.Lookup("room2", "alice"); got != nil {
		t.Fatalf("Lookup in absent room returned %v, want nil", got)
	}
}

func TestRegisterLastWins(t *testing.T) {
	r := New()
	first := &fakeChannel{id: "conn-1"}
	second := &fakeChannel{id: "conn-2"}

	r.Register("room1", "alice", first)
	r.Register("room1", "alice", second)

	if got := r.Lookup("room1", "alice"); got != Channel(second) {
		t.Fatalf("Lookup returned %v, want the second registration", got)
	}
	members := r.Members("room1")
	if len(members) != 1 || members[0] != "alice" {
		t.Fatalf("Members=%v, want [alice]", members)
	}
}

func TestUnregisterPrunesEmptyRoom(t *testing.T) {
	r := New()
	r.Register("room1", "alice", &fakeChannel{id: "a"})
	r.Register("room1", "bob", &fakeChannel{id: "b"})

	if pruned := r.Unregister("room1", "alice"); pruned {
		t.Fatalf("room pruned while bob is still a member")
	}
	if rooms, _ := r.Stats(); rooms != 1 {
		t.Fatalf("rooms=%d after first unregister, want 1", rooms)
	}

	if pruned := r.Unregister("room1", "bob"); !pruned {
		t.Fatalf("emptied room was not pruned")
	}
	rooms, registrations := r.Stats()
	if rooms != 0 || registrations != 0 {
		t.Fatalf("rooms=%d registrations=%d after last unregister, want 0/0", rooms, registrations)
	}
	if members := r.Members("room1"); len(members) != 0 {
		t.Fatalf("Members=%v for pruned room, want empty", members)
	}
}

func TestUnregisterUnknownIsNoop(t *testing.T) {
	r := New()
	r.Register("room1", "alice", &fakeChannel{id: "a"})

	r.Unregister("room1", "bob")
	r.Unregister("room2", "alice")

	if got := r.Lookup("room1", "alice"); got == nil {
		t.Fatalf("alice's registration was lost")
	}
}

func TestUnregisterChannelRemovesAllMemberships(t *testing.T) {
	r := New()
	conn := &fakeChannel{id: "shared"}
	other := &fakeChannel{id: "other"}

	r.Register("room1", "alice", conn)
	r.Register("room2", "alice2", conn)
	r.Register("room2", "bob", other)

	removed, pruned := r.UnregisterChannel(conn)
	if len(removed) != 2 {
		t.Fatalf("removed=%v, want 2 memberships", removed)
	}
	sort.Slice(removed, func(i, j int) bool { return removed[i].Room < removed[j].Room })
	if removed[0] != (Membership{Room: "room1", Participant: "alice"}) {
		t.Fatalf("removed[0]=%v", removed[0])
	}
	if removed[1] != (Membership{Room: "room2", Participant: "alice2"}) {
		t.Fatalf("removed[1]=%v", removed[1])
	}

	// Only room1 became empty; room2 still holds bob and must not be reported.
	if len(pruned) != 1 || pruned[0] != "room1" {
		t.Fatalf("pruned=%v, want [room1]", pruned)
	}

	// room1 is empty and pruned; room2 still holds bob.
	rooms, registrations := r.Stats()
	if rooms != 1 || registrations != 1 {
		t.Fatalf("rooms=%d registrations=%d, want 1/1", rooms, registrations)
	}
	if got := r.Lookup("room2", "bob"); got != Channel(other) {
		t.Fatalf("bob's registration was lost")
	}
}

func TestUnregisterChannelForUnknownChannel(t *testing.T) {
	r := New()
	r.Register("room1", "alice", &fakeChannel{id: "a"})

	removed, pruned := r.UnregisterChannel(&fakeChannel{id: "never-joined"})
	if len(removed) != 0 || len(pruned) != 0 {
		t.Fatalf("removed=%v pruned=%v, want none", removed, pruned)
	}
	if got := r.Lookup("room1", "alice"); got == nil {
		t.Fatalf("alice's registration was lost")
	}
}

func TestSnapshotExcludesParticipant(t *testing.T) {
	r := New()
	r.Register("room1", "alice", &fakeChannel{id: "a"})
	r.Register("room1", "bob", &fakeChannel{id: "b"})
	r.Register("room1", "carol", &fakeChannel{id: "c"})

	snap := r.Snapshot("room1", "bob")
	if len(snap) != 2 {
		t.Fatalf("snapshot=%v, want alice and carol", snap)
	}
	if _, ok := snap["bob"]; ok {
		t.Fatalf("snapshot contains the excluded participant")
	}

	all := r.Snapshot("room1", "")
	if len(all) != 3 {
		t.Fatalf("snapshot without exclusion has %d members, want 3", len(all))
	}

	if snap := r.Snapshot("absent", ""); len(snap) != 0 {
		t.Fatalf("snapshot of absent room=%v, want empty", snap)
	}
}

func TestConcurrentRegisterUnregister(t *testing.T) {
	r := New()

	const workers = 16
	const iterations = 200

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			participant := fmt.Sprintf("user-%d", i)
			ch := &fakeChannel{id: participant}
			for j := 0; j < iterations; j++ {
				r.Register("room1", participant, ch)
				r.Members("room1")
				r.Snapshot("room1", participant)
				r.Unregister("room1", participant)
			}
		}(i)
	}
	wg.Wait()

	rooms, registrations := r.Stats()
	if rooms != 0 || registrations != 0 {
		t.Fatalf("rooms=%d registrations=%d after churn, want 0/0", rooms, registrations)
	}
}

func TestConcurrentChannelTeardown(t *testing.T) {
	r := New()

	const workers = 8
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ch := &fakeChannel{id: fmt.Sprintf("conn-%d", i)}
			for j := 0; j < 100; j++ {
				room := fmt.Sprintf("room-%d", j%4)
				r.Register(room, fmt.Sprintf("user-%d", i), ch)
				removed, _ := r.UnregisterChannel(ch)
				for _, m := range removed {
					if m.Participant != fmt.Sprintf("user-%d", i) {
						t.Errorf("removed someone else's membership: %v", m)
						return
					}
				}
			}
		}(i)
	}
	wg.Wait()

	if _, registrations := r.Stats(); registrations != 0 {
		t.Fatalf("registrations=%d after teardown churn, want 0", registrations)
	}
}
