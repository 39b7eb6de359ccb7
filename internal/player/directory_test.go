/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package player

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/msx_bridge/internal/identity"
)

type fakeRegistrar struct {
	mu             sync.Mutex
	registers      int32
	unregisters    int32
	failNext       bool
	failUnregister bool
	delay          time.Duration
}

func (f *fakeRegistrar) Register(ctx context.Context, key identity.Key, name string) error {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	fail := f.failNext
	f.failNext = false
	f.mu.Unlock()
	if fail {
		return errors.New("host rejected registration")
	}
	atomic.AddInt32(&f.registers, 1)
	return nil
}

func (f *fakeRegistrar) Unregister(ctx context.Context, key identity.Key) error {
	f.mu.Lock()
	fail := f.failUnregister
	f.mu.Unlock()
	if fail {
		return errors.New("host unavailable")
	}
	atomic.AddInt32(&f.unregisters, 1)
	return nil
}

func newTestDirectory(reg *fakeRegistrar) *Directory {
	return NewDirectory(reg, nil, zerolog.Nop())
}

func TestGetOrCreateConcurrentSingleInstance(t *testing.T) {
	reg := &fakeRegistrar{delay: 10 * time.Millisecond}
	dir := newTestDirectory(reg)
	key := identity.Key("msx_livingroom")

	const callers = 20
	results := make([]*Player, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := dir.GetOrCreate(context.Background(), key, "")
			if err != nil {
				t.Errorf("caller %d: unexpected error: %v", i, err)
				return
			}
			results[i] = p
		}(i)
	}
	wg.Wait()

	if got := atomic.LoadInt32(&reg.registers); got != 1 {
		t.Fatalf("expected exactly 1 host registration, got %d", got)
	}
	for i := 1; i < callers; i++ {
		if results[i] != results[0] {
			t.Fatalf("caller %d got a different player instance", i)
		}
	}
	if dir.Len() != 1 {
		t.Fatalf("expected 1 player in directory, got %d", dir.Len())
	}
}

func TestGetOrCreateRollbackOnRegisterFailure(t *testing.T) {
	reg := &fakeRegistrar{failNext: true}
	dir := newTestDirectory(reg)
	key := identity.Key("msx_bedroom")

	if _, err := dir.GetOrCreate(context.Background(), key, ""); err == nil {
		t.Fatal("expected error from failed registration")
	}
	if dir.Get(key) != nil {
		t.Fatal("failed creation must not leave a directory entry")
	}

	// A later call retries registration from scratch.
	p, err := dir.GetOrCreate(context.Background(), key, "")
	if err != nil {
		t.Fatalf("retry after failure: %v", err)
	}
	if p == nil || dir.Get(key) != p {
		t.Fatal("retry did not store the player")
	}
}

func TestRemoveUnregisters(t *testing.T) {
	reg := &fakeRegistrar{}
	dir := newTestDirectory(reg)
	key := identity.Key("msx_kitchen")

	if _, err := dir.GetOrCreate(context.Background(), key, ""); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := dir.Remove(context.Background(), key); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if atomic.LoadInt32(&reg.unregisters) != 1 {
		t.Fatalf("expected 1 unregister, got %d", reg.unregisters)
	}
	if dir.Get(key) != nil {
		t.Fatal("player still present after remove")
	}

	// Removing a missing key is a no-op.
	if err := dir.Remove(context.Background(), key); err != nil {
		t.Fatalf("remove missing key: %v", err)
	}
	if atomic.LoadInt32(&reg.unregisters) != 1 {
		t.Fatal("remove of missing key must not unregister again")
	}
}

// sequencedRegistrar records host-call ordering and lets a test hold
// Unregister open to race it against a new creation.
type sequencedRegistrar struct {
	mu      sync.Mutex
	calls   []string
	release chan struct{}
}

func (f *sequencedRegistrar) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *sequencedRegistrar) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *sequencedRegistrar) Register(ctx context.Context, key identity.Key, name string) error {
	f.record("register")
	return nil
}

func (f *sequencedRegistrar) Unregister(ctx context.Context, key identity.Key) error {
	f.record("unregister.start")
	if f.release != nil {
		<-f.release
	}
	f.record("unregister.done")
	return nil
}

func waitForCall(t *testing.T, reg *sequencedRegistrar, call string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, c := range reg.callLog() {
			if c == call {
				return
			}
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("call %q never observed; log: %v", call, reg.callLog())
}

func TestRemoveSerializesWithCreate(t *testing.T) {
	reg := &sequencedRegistrar{release: make(chan struct{})}
	dir := NewDirectory(reg, nil, zerolog.Nop())
	key := identity.Key("msx_hall")
	ctx := context.Background()

	if _, err := dir.GetOrCreate(ctx, key, ""); err != nil {
		t.Fatalf("create: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := dir.Remove(ctx, key); err != nil {
			t.Errorf("remove: %v", err)
		}
	}()
	waitForCall(t, reg, "unregister.start")

	// A creation racing the removal must wait for the unregister.
	var recreated *Player
	wg.Add(1)
	go func() {
		defer wg.Done()
		p, err := dir.GetOrCreate(ctx, key, "")
		if err != nil {
			t.Errorf("recreate: %v", err)
		}
		recreated = p
	}()

	time.Sleep(20 * time.Millisecond)
	for _, c := range reg.callLog()[1:] {
		if c == "register" {
			t.Fatalf("register issued while unregister in flight; log: %v", reg.callLog())
		}
	}

	close(reg.release)
	wg.Wait()

	want := []string{"register", "unregister.start", "unregister.done", "register"}
	got := reg.callLog()
	if len(got) != len(want) {
		t.Fatalf("call log = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("call log = %v, want %v", got, want)
		}
	}
	if recreated == nil || dir.Get(key) != recreated {
		t.Fatal("recreated player not stored")
	}
}

func TestRemoveKeepsEntryOnUnregisterFailure(t *testing.T) {
	reg := &fakeRegistrar{}
	dir := newTestDirectory(reg)
	key := identity.Key("msx_attic")

	p, err := dir.GetOrCreate(context.Background(), key, "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	reg.mu.Lock()
	reg.failUnregister = true
	reg.mu.Unlock()

	if err := dir.Remove(context.Background(), key); err == nil {
		t.Fatal("expected error from failed unregister")
	}
	if dir.Get(key) != p {
		t.Fatal("failed unregister must keep the directory entry")
	}

	reg.mu.Lock()
	reg.failUnregister = false
	reg.mu.Unlock()

	if err := dir.Remove(context.Background(), key); err != nil {
		t.Fatalf("retry remove: %v", err)
	}
	if dir.Get(key) != nil {
		t.Fatal("player still present after successful retry")
	}
}

func TestDisablePreservesEntryAndState(t *testing.T) {
	reg := &fakeRegistrar{}
	dir := newTestDirectory(reg)
	key := identity.Key("msx_den")

	p, err := dir.GetOrCreate(context.Background(), key, "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	p.SetPlaying(nil)
	p.SetVolume(40)

	if !dir.SetDisabled(key, true) {
		t.Fatal("SetDisabled returned false for existing player")
	}
	if atomic.LoadInt32(&reg.unregisters) != 0 {
		t.Fatal("disable must not unregister from the host")
	}
	got := dir.Get(key)
	if got == nil || !got.Disabled() {
		t.Fatal("disabled player lost its directory entry")
	}
	if got.State() != StatePlaying || got.Volume() != 40 {
		t.Fatal("disable must preserve playback state")
	}

	dir.SetDisabled(key, false)
	if got.Disabled() {
		t.Fatal("enable did not clear the disabled flag")
	}
}

func TestReaperSweep(t *testing.T) {
	reg := &fakeRegistrar{}
	dir := newTestDirectory(reg)
	ctx := context.Background()

	stale, _ := dir.GetOrCreate(ctx, "msx_stale", "")
	fresh, _ := dir.GetOrCreate(ctx, "msx_fresh", "")
	disabled, _ := dir.GetOrCreate(ctx, "msx_disabled", "")
	disabled.SetDisabled(true)

	old := time.Now().Add(-time.Hour)
	stale.mu.Lock()
	stale.lastActivity = old
	stale.mu.Unlock()
	disabled.mu.Lock()
	disabled.lastActivity = old
	disabled.mu.Unlock()

	var reapedKeys []identity.Key
	reaper := NewReaper(dir, 30*time.Minute, time.Minute, func(ctx context.Context, key identity.Key) {
		reapedKeys = append(reapedKeys, key)
	})
	if got := reaper.Sweep(ctx); got != 1 {
		t.Fatalf("expected 1 reaped player, got %d", got)
	}
	if len(reapedKeys) != 1 || reapedKeys[0] != "msx_stale" {
		t.Fatalf("onReap keys = %v", reapedKeys)
	}
	if dir.Get("msx_stale") != nil {
		t.Fatal("stale player survived the sweep")
	}
	if dir.Get(fresh.Key) == nil {
		t.Fatal("fresh player was reaped")
	}
	if dir.Get("msx_disabled") == nil {
		t.Fatal("disabled player must never be reaped")
	}
}

func TestTouchRefreshesActivity(t *testing.T) {
	dir := newTestDirectory(&fakeRegistrar{})
	p, _ := dir.GetOrCreate(context.Background(), "msx_tv", "")
	p.mu.Lock()
	p.lastActivity = time.Now().Add(-time.Hour)
	p.mu.Unlock()

	dir.Touch("msx_tv")
	if time.Since(p.LastActivity()) > time.Minute {
		t.Fatal("Touch did not refresh last activity")
	}
	// Touching an unknown key must not panic.
	dir.Touch("msx_unknown")
}

func TestPauseSnapshotsElapsed(t *testing.T) {
	p := New("msx_tv", "")
	p.SetPlaying(nil)
	p.mu.Lock()
	p.elapsedUpdated = time.Now().Add(-42 * time.Second)
	p.mu.Unlock()

	p.SetPaused()
	elapsed := p.Elapsed()
	if elapsed < 41 || elapsed > 44 {
		t.Fatalf("paused elapsed = %.2f, want ~42", elapsed)
	}
	// Elapsed must not advance while paused.
	time.Sleep(20 * time.Millisecond)
	if p.Elapsed() != elapsed {
		t.Fatal("elapsed advanced while paused")
	}
}

func TestTranslateQueueIndex(t *testing.T) {
	p := New("msx_tv", "")
	p.SetQueuePlaylist("queue-1", 3, 10)

	cases := []struct {
		host, want int
	}{
		{3, 0},
		{4, 1},
		{9, 6},
		{0, 7},
		{2, 9},
	}
	for _, tc := range cases {
		if got := p.TranslateQueueIndex(tc.host); got != tc.want {
			t.Errorf("TranslateQueueIndex(%d) = %d, want %d", tc.host, got, tc.want)
		}
	}
}

func TestGroupMembersExcludeSelf(t *testing.T) {
	p := New("msx_leader", "")
	p.SetMembers([]identity.Key{"msx_leader", "msx_a", "msx_b"}, nil)
	members := p.GroupMembers()
	if len(members) != 2 {
		t.Fatalf("expected 2 members, got %v", members)
	}
	p.SetMembers(nil, []identity.Key{"msx_a"})
	if got := p.GroupMembers(); len(got) != 1 || got[0] != "msx_b" {
		t.Fatalf("after remove, members = %v", got)
	}
}
