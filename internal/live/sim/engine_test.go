package sim

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"hunt-server/internal/domain"
	"hunt-server/internal/live"
)

type recordingListener struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingListener) add(s string) {
	r.mu.Lock()
	r.events = append(r.events, s)
	r.mu.Unlock()
}

func (r *recordingListener) OnPlayerJoin(name string)          { r.add("join:" + name) }
func (r *recordingListener) OnPlayerQuit(name string)          { r.add("quit:" + name) }
func (r *recordingListener) OnPlayerDeath(name, killer string) { r.add("death:" + name + ":" + killer) }
func (r *recordingListener) OnDragonDefeated(world string)     { r.add("dragon:" + world) }

func TestEngine_WorldLifecycle(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	e := New(dir)

	w, err := e.CreateWorld(ctx, live.WorldSpec{Name: "hardcore_1", Seed: 1000})
	if err != nil {
		t.Fatalf("CreateWorld() error = %v", err)
	}
	if w.Seed != 1000 || w.Spawn.World != "hardcore_1" {
		t.Errorf("unexpected world handle: %+v", w)
	}
	if _, err := os.Stat(filepath.Join(dir, "hardcore_1", levelFile)); err != nil {
		t.Errorf("level file not written: %v", err)
	}
	if _, err := e.CreateWorld(ctx, live.WorldSpec{Name: "hardcore_1"}); !errors.Is(err, live.ErrWorldExists) {
		t.Errorf("duplicate create error = %v, want ErrWorldExists", err)
	}

	if err := e.ConfigureWorld(ctx, "hardcore_1", live.WorldRules{Difficulty: live.DifficultyHard, BorderSize: 100}); err != nil {
		t.Fatal(err)
	}
	if err := e.PreloadChunk(ctx, "hardcore_1", 0, 0); err != nil {
		t.Errorf("PreloadChunk inside border: %v", err)
	}
	if err := e.PreloadChunk(ctx, "hardcore_1", 50, 0); !errors.Is(err, live.ErrChunkOutOfWorld) {
		t.Errorf("PreloadChunk outside border = %v", err)
	}

	if err := e.UnloadWorld(ctx, "hardcore_1", true); err != nil {
		t.Fatalf("UnloadWorld() error = %v", err)
	}
	if len(e.LoadedWorlds()) != 0 {
		t.Error("world still loaded")
	}

	// Перезагрузка с диска сохраняет сид и правила
	reloaded, err := e.LoadWorld(ctx, "hardcore_1")
	if err != nil {
		t.Fatalf("LoadWorld() error = %v", err)
	}
	if reloaded.Seed != 1000 || reloaded.Spawn != w.Spawn {
		t.Errorf("reloaded world differs: %+v vs %+v", reloaded, w)
	}
	if rules, _ := e.Rules("hardcore_1"); rules.Difficulty != live.DifficultyHard {
		t.Errorf("rules lost on reload: %+v", rules)
	}
	if _, err := e.LoadWorld(ctx, "missing"); !errors.Is(err, live.ErrWorldNotFound) {
		t.Errorf("LoadWorld(missing) = %v", err)
	}
}

func TestEngine_PlayersAndEvents(t *testing.T) {
	ctx := context.Background()
	e := New(t.TempDir(), WithDefaultWorld("lobby"), WithAllowList(true))
	listener := &recordingListener{}
	e.Subscribe(listener)

	if _, err := e.CreateWorld(ctx, live.WorldSpec{Name: "lobby", Flat: true}); err != nil {
		t.Fatal(err)
	}

	if err := e.Join("hunter"); !errors.Is(err, ErrNotAllowed) {
		t.Fatalf("Join() without allow-list entry = %v", err)
	}
	_ = e.SetAllowed(ctx, "hunter", true)
	if err := e.Join("hunter"); err != nil {
		t.Fatal(err)
	}

	loc, ok := e.PlayerLocation("hunter")
	if !ok || loc.World != "lobby" {
		t.Errorf("new player should spawn in lobby, got %+v", loc)
	}

	_ = e.GiveItems(ctx, "hunter", []domain.ItemStack{{Material: "IRON_SWORD", Amount: 1}})
	_ = e.SetGameMode(ctx, "hunter", domain.GameModeAdventure)
	p, _ := e.Player("hunter")
	if len(p.Inventory) != 1 || p.Mode != "ADVENTURE" {
		t.Errorf("unexpected player state: %+v", p)
	}

	if err := e.UnloadWorld(ctx, "lobby", false); err == nil {
		t.Error("unload must fail while a player is in the world")
	}

	_ = e.Kill("hunter", "streamer")
	_ = e.Kick(ctx, "hunter", "Your hunt has ended!")
	if e.IsOnline("hunter") {
		t.Error("kicked player still online")
	}
	if err := e.Teleport(ctx, "hunter", loc); !errors.Is(err, live.ErrPlayerOffline) {
		t.Errorf("Teleport(offline) = %v", err)
	}
	_ = e.DefeatDragon("lobby")

	want := []string{"join:hunter", "death:hunter:streamer", "quit:hunter", "dragon:lobby"}
	listener.mu.Lock()
	defer listener.mu.Unlock()
	if len(listener.events) != len(want) {
		t.Fatalf("events = %v, want %v", listener.events, want)
	}
	for i := range want {
		if listener.events[i] != want[i] {
			t.Errorf("event[%d] = %q, want %q", i, listener.events[i], want[i])
		}
	}
}
