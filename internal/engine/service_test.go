package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"hunt-server/internal/dispatch"
	"hunt-server/internal/domain"
	"hunt-server/internal/live"
	"hunt-server/internal/live/sim"
	"hunt-server/internal/network"
	"hunt-server/pkg/api"
)

const (
	streamer = "streamer"
	hunter   = "hunter_one"
)

// --- Фейки ---

type recordedEvent struct {
	event string
	data  map[string]string
}

type recorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *recorder) Notify(_ context.Context, event string, data map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{event: event, data: data})
	return nil
}

func (r *recorder) count(event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.event == event {
			n++
		}
	}
	return n
}

func (r *recorder) last(event string) (map[string]string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].event == event {
			return r.events[i].data, true
		}
	}
	return nil, false
}

type fakeHUD struct {
	mu      sync.Mutex
	running map[string]bool
}

func (h *fakeHUD) Start(id string, _ network.HUDProvider) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.running[id] = true
}

func (h *fakeHUD) Stop(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.running, id)
}

func (h *fakeHUD) active() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.running)
}

type memHistory struct {
	mu    sync.Mutex
	saves int
	last  []domain.AttemptRecord
}

func (m *memHistory) Load(context.Context) []domain.AttemptRecord { return nil }

func (m *memHistory) Save(_ context.Context, history []domain.AttemptRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	m.last = append([]domain.AttemptRecord(nil), history...)
}

func (m *memHistory) saveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// fakeWorlds создает миры прямо в симуляции, без прегенерации
type fakeWorlds struct {
	sim *sim.Engine

	mu       sync.Mutex
	ready    bool
	seq      int
	seed     int64
	resets   int
	pregens  int
	active   *domain.World
	autoNext bool // Следующий мир готов сразу после активации
}

func (f *fakeWorlds) Current() domain.WorldState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return domain.WorldState{Active: f.active}
}

func (f *fakeWorlds) IsNextReady() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ready
}

func (f *fakeWorlds) ActivateNext(ctx context.Context) (domain.WorldState, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.seq++
	w, err := f.sim.CreateWorld(ctx, live.WorldSpec{Name: fmt.Sprintf("hardcore_%d", f.seq), Seed: f.seed})
	if err != nil {
		return domain.WorldState{}, 0, err
	}
	f.active = &w
	f.ready = f.autoNext
	return domain.WorldState{Active: &w}, w.Seed, nil
}

func (f *fakeWorlds) ResetWorld(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
	f.active = nil
	f.ready = true
	return nil
}

func (f *fakeWorlds) PregenerateNext() <-chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pregens++
	f.ready = true
	done := make(chan struct{})
	close(done)
	return done
}

func (f *fakeWorlds) pregenCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pregens
}

func (f *fakeWorlds) resetCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resets
}

func (f *fakeWorlds) Shutdown() {}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// --- Фикстура ---

type fixture struct {
	svc     *GameService
	sim     *sim.Engine
	worlds  *fakeWorlds
	events  *recorder
	hud     *fakeHUD
	history *memHistory
	clock   *clock
}

func testConfig() Config {
	return Config{
		StreamerName:    streamer,
		JoinTimeout:     time.Hour,
		HuntDuration:    time.Hour,
		DeathEndDelay:   10 * time.Millisecond,
		VictoryEndDelay: 10 * time.Millisecond,
		SpawnRadius:     40,
		Loadout: LoadoutConfig{
			Armor:            []string{"IRON_HELMET", "IRON_CHESTPLATE", "IRON_BOOTS"},
			Items:            []string{"BREAD:16", "ENDER_PEARL:2"},
			Weapons:          []string{"STONE_SWORD", "BOW", "ARROW:32"},
			ItemsPerCategory: 2,
		},
		ImmediateReselect: true,
		Seed:              42,
	}
}

func newFixture(t *testing.T, mutate func(*Config)) *fixture {
	t.Helper()
	return newFixtureWith(t, mutate, nil)
}

// newFixtureWith позволяет подменить движок оберткой над симуляцией
func newFixtureWith(t *testing.T, mutate func(*Config), wrap func(*sim.Engine, func() *GameService) live.Engine) *fixture {
	t.Helper()
	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	engine := sim.New(t.TempDir(), sim.WithAllowList(true))
	_ = engine.SetAllowed(context.Background(), streamer, true)

	queueCtx, stopQueue := context.WithCancel(context.Background())
	queue := dispatch.NewWorldQueue(16)
	go queue.Run(queueCtx)
	bg := dispatch.NewBackground(context.Background())

	f := &fixture{
		sim:     engine,
		worlds:  &fakeWorlds{sim: engine, ready: true, seed: 1000},
		events:  &recorder{},
		hud:     &fakeHUD{running: make(map[string]bool)},
		history: &memHistory{},
		clock:   &clock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)},
	}
	var e live.Engine = engine
	if wrap != nil {
		e = wrap(engine, func() *GameService { return f.svc })
	}
	f.svc = NewService(cfg, Deps{
		Engine:   e,
		Queue:    queue,
		Bg:       bg,
		Worlds:   f.worlds,
		History:  f.history,
		Notifier: f.events,
		HUD:      f.hud,
	})
	f.svc.now = f.clock.now
	engine.Subscribe(f.svc)

	t.Cleanup(func() {
		bg.Shutdown()
		bg.Wait()
		stopQueue()
	})
	return f
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// startWithStreamer запускает попытку с игроком-стримером в новом мире
func (f *fixture) startWithStreamer(t *testing.T) domain.AttemptRecord {
	t.Helper()
	if err := f.sim.Join(streamer); err != nil {
		t.Fatal(err)
	}
	attempt, err := f.svc.StartAttempt(context.Background(), streamer)
	if err != nil {
		t.Fatalf("StartAttempt() error = %v", err)
	}
	return attempt
}

func (f *fixture) selectHunter(t *testing.T) {
	t.Helper()
	_, err := f.svc.SelectHunter(context.Background(), api.SelectionRequest{
		MinecraftUsername: hunter,
		TwitchUsername:    "twitch_" + hunter,
	})
	if err != nil {
		t.Fatalf("SelectHunter() error = %v", err)
	}
}

func (f *fixture) joinHunter(t *testing.T) {
	t.Helper()
	if err := f.sim.Join(hunter); err != nil {
		t.Fatalf("hunter join: %v", err)
	}
	waitFor(t, "hunter to become active", func() bool {
		s := f.svc.State().ActiveSession
		return s != nil && s.HunterJoined
	})
}

func (f *fixture) encounters() []domain.Encounter {
	st := f.svc.State()
	if st.CurrentAttempt != nil {
		return st.CurrentAttempt.Encounters
	}
	if len(st.History) == 0 {
		return nil
	}
	return st.History[len(st.History)-1].Encounters
}

// --- Попытки ---

func TestStartAttempt_NotReadyLeavesStateUntouched(t *testing.T) {
	f := newFixture(t, nil)
	f.worlds.ready = false
	before := f.svc.State()

	_, err := f.svc.StartAttempt(context.Background(), streamer)
	if !errors.Is(err, domain.ErrNotReady) {
		t.Fatalf("StartAttempt() error = %v, want ErrNotReady", err)
	}

	after := f.svc.State()
	if after.Active || after.CurrentAttempt != nil || len(after.History) != len(before.History) {
		t.Errorf("state changed on rejection: %+v", after)
	}
	if f.history.saveCount() != 0 {
		t.Error("rejected start must not persist")
	}
}

func TestStartAttempt(t *testing.T) {
	f := newFixture(t, nil)
	attempt := f.startWithStreamer(t)

	if attempt.AttemptNumber != 1 || attempt.Seed != 1000 || attempt.Outcome != domain.AttemptInProgress {
		t.Errorf("unexpected attempt: %+v", attempt)
	}
	if attempt.WorldName != "hardcore_1" || attempt.StreamerName != streamer {
		t.Errorf("unexpected attempt world/streamer: %+v", attempt)
	}
	st := f.svc.State()
	if !st.Active || st.Paused || !st.Consistent() {
		t.Errorf("unexpected state: %+v", st)
	}
	if f.history.saveCount() == 0 {
		t.Error("start must persist history")
	}

	p, _ := f.sim.Player(streamer)
	if p.Location.World != "hardcore_1" || p.Mode != "SURVIVAL" || len(p.Inventory) != 0 {
		t.Errorf("streamer not prepared: %+v", p)
	}

	waitFor(t, "game-started", func() bool { return f.events.count(api.EventGameStarted) == 1 })
	data, _ := f.events.last(api.EventGameStarted)
	if data["attemptNumber"] != "1" || data["worldSeed"] != "1000" {
		t.Errorf("game-started data = %v", data)
	}

	if _, err := f.svc.StartAttempt(context.Background(), streamer); !errors.Is(err, domain.ErrInvalidState) {
		t.Errorf("second start error = %v, want ErrInvalidState", err)
	}
}

func TestEndAttempt_WithoutAttempt(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.svc.EndAttempt(context.Background(), domain.AttemptCancelled)
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("EndAttempt() error = %v, want ErrInvalidState", err)
	}
	if f.history.saveCount() != 0 || f.worlds.resetCount() != 0 {
		t.Error("rejected end must have no effects")
	}
}

func TestEndAttempt_Outcomes(t *testing.T) {
	tests := []struct {
		outcome domain.AttemptOutcome
		event   string
		resets  int
	}{
		{domain.AttemptCancelled, api.EventGameEnded, 1},
		{domain.AttemptDeath, api.EventStreamerDied, 1},
		{domain.AttemptVictory, api.EventStreamerVictory, 0},
	}

	for _, tt := range tests {
		t.Run(tt.outcome.String(), func(t *testing.T) {
			f := newFixture(t, nil)
			f.startWithStreamer(t)

			f.clock.advance(90 * time.Second)
			record, err := f.svc.EndAttempt(context.Background(), tt.outcome)
			if err != nil {
				t.Fatalf("EndAttempt() error = %v", err)
			}
			if record.Outcome != tt.outcome || record.EndedAt == nil {
				t.Errorf("unexpected record: %+v", record)
			}
			if d, _ := record.DurationSeconds(); d != 90 {
				t.Errorf("duration = %d, want 90", d)
			}

			st := f.svc.State()
			if st.Active || st.CurrentAttempt != nil || len(st.History) != 1 {
				t.Errorf("unexpected state: %+v", st)
			}
			if f.worlds.resetCount() != tt.resets {
				t.Errorf("resets = %d, want %d", f.worlds.resetCount(), tt.resets)
			}
			waitFor(t, tt.event, func() bool { return f.events.count(tt.event) == 1 })
		})
	}
}

func TestEndAttempt_CancelsSessionIntoEndedAttempt(t *testing.T) {
	f := newFixture(t, nil)
	f.startWithStreamer(t)
	f.selectHunter(t)
	f.joinHunter(t)

	record, err := f.svc.EndAttempt(context.Background(), domain.AttemptCancelled)
	if err != nil {
		t.Fatal(err)
	}
	if len(record.Encounters) != 1 || record.Encounters[0].Outcome != domain.EncounterCancelled {
		t.Fatalf("encounters = %+v, want one CANCELLED", record.Encounters)
	}
	if f.sim.IsAllowed(hunter) {
		t.Error("hunter access must be revoked")
	}
	if p, _ := f.sim.Player(hunter); p.Online {
		t.Error("hunter must be kicked")
	}
	if f.hud.active() != 0 {
		t.Error("HUD must be stopped")
	}
	if f.svc.currentSession() != nil || f.svc.State().ActiveSession != nil {
		t.Error("session must be cleared")
	}
}

func TestPauseResume(t *testing.T) {
	f := newFixture(t, nil)
	f.startWithStreamer(t)
	f.selectHunter(t)

	// Стример вышел - пауза через триггер
	if err := f.sim.Quit(streamer); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "pause", func() bool { return f.svc.State().Paused })

	st := f.svc.State()
	if st.ActiveSession != nil || !st.Consistent() {
		t.Errorf("pause must clear the session: %+v", st)
	}
	if enc := f.encounters(); len(enc) != 1 || enc[0].Outcome != domain.EncounterCancelled {
		t.Errorf("encounters = %+v", enc)
	}
	if rules, _ := f.sim.Rules("hardcore_1"); rules.DaylightCycle {
		t.Error("daylight must be frozen while paused")
	}
	waitFor(t, "game-paused", func() bool { return f.events.count(api.EventGamePaused) == 1 })
	if data, _ := f.events.last(api.EventGamePaused); data["attempt"] != "1" {
		t.Errorf("game-paused data = %v", data)
	}

	if err := f.svc.PauseAttempt(context.Background()); !errors.Is(err, domain.ErrInvalidState) {
		t.Errorf("double pause error = %v", err)
	}

	// Вернулся - продолжаем
	if err := f.sim.Join(streamer); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "resume", func() bool { return !f.svc.State().Paused })
	if rules, _ := f.sim.Rules("hardcore_1"); !rules.DaylightCycle {
		t.Error("daylight must run again after resume")
	}
	waitFor(t, "game-resumed", func() bool { return f.events.count(api.EventGameResumed) == 1 })

	if err := f.svc.ResumeAttempt(context.Background()); !errors.Is(err, domain.ErrInvalidState) {
		t.Errorf("resume of running attempt error = %v", err)
	}
}

func TestPausedGameKicksJoiningPlayers(t *testing.T) {
	f := newFixture(t, nil)
	f.startWithStreamer(t)
	if err := f.svc.PauseAttempt(context.Background()); err != nil {
		t.Fatal(err)
	}

	_ = f.sim.SetAllowed(context.Background(), "visitor", true)
	if err := f.sim.Join("visitor"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "visitor kick", func() bool {
		p, _ := f.sim.Player("visitor")
		return !p.Online && p.KickReason == kickPaused
	})
}

// --- Выбор охотника ---

func TestSelectHunter_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(t *testing.T, f *fixture)
		wantErr error
	}{
		{
			name:    "no active attempt",
			prepare: func(*testing.T, *fixture) {},
			wantErr: domain.ErrNoActiveAttempt,
		},
		{
			name: "paused",
			prepare: func(t *testing.T, f *fixture) {
				f.startWithStreamer(t)
				if err := f.svc.PauseAttempt(context.Background()); err != nil {
					t.Fatal(err)
				}
			},
			wantErr: domain.ErrAttemptPaused,
		},
		{
			name: "session in progress",
			prepare: func(t *testing.T, f *fixture) {
				f.startWithStreamer(t)
				f.selectHunter(t)
			},
			wantErr: domain.ErrSessionInProgress,
		},
		{
			name: "target offline",
			prepare: func(t *testing.T, f *fixture) {
				// Попытку начали из консоли, стример еще не зашел
				if _, err := f.svc.StartAttempt(context.Background(), ""); err != nil {
					t.Fatal(err)
				}
			},
			wantErr: domain.ErrTargetOffline,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			tt.prepare(t, f)

			_, err := f.svc.SelectHunter(context.Background(), api.SelectionRequest{MinecraftUsername: "other_hunter"})
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("SelectHunter() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestHunterDiedScenario(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.HuntDuration = 900000 * time.Millisecond })
	attempt := f.startWithStreamer(t)
	if attempt.Seed != 1000 {
		t.Fatalf("seed = %d, want 1000", attempt.Seed)
	}

	f.selectHunter(t)
	if !f.sim.IsAllowed(hunter) {
		t.Fatal("selected hunter must be allowed in")
	}
	f.joinHunter(t)

	waitFor(t, "hunter-joined", func() bool { return f.events.count(api.EventHunterJoined) == 1 })
	if data, _ := f.events.last(api.EventHunterJoined); data["huntDurationMillis"] != "900000" {
		t.Errorf("hunter-joined data = %v", data)
	}

	p, _ := f.sim.Player(hunter)
	target, _ := f.sim.PlayerLocation(streamer)
	if p.Location.World != target.World {
		t.Fatalf("hunter spawned in %s, target in %s", p.Location.World, target.World)
	}
	dx, dz := p.Location.X-target.X, p.Location.Z-target.Z
	if d := math.Hypot(dx, dz); d < 19 || d > 41 {
		t.Errorf("hunter spawned %.1f blocks away, want [20, 40)", d)
	}
	if len(p.Inventory) != 6 {
		t.Errorf("loadout size = %d, want 6", len(p.Inventory))
	}
	if f.hud.active() != 1 {
		t.Error("HUD must run while the hunt is active")
	}

	f.clock.advance(10 * time.Second)
	if err := f.sim.Kill(hunter, ""); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "session end", func() bool { return f.svc.State().ActiveSession == nil })

	enc := f.encounters()
	if len(enc) != 1 {
		t.Fatalf("encounters = %+v", enc)
	}
	e := enc[0]
	if e.Outcome != domain.EncounterDied || e.HunterActorName != hunter || e.HunterQueueName != "twitch_"+hunter {
		t.Errorf("unexpected encounter: %+v", e)
	}
	if e.JoinedAt == nil || e.EndedAt.Sub(*e.JoinedAt) != 10*time.Second {
		t.Errorf("encounter timing: %+v", e)
	}

	st := f.svc.State()
	if !st.Active || st.Paused {
		t.Error("the attempt must stay active after the hunter dies")
	}
	p, _ = f.sim.Player(hunter)
	if p.Online || p.KickReason != kickHuntEnded {
		t.Errorf("hunter must be kicked: %+v", p)
	}
	waitFor(t, "hunter-left", func() bool { return f.events.count(api.EventHunterLeft) == 1 })
}

// joinOnAllow имитирует охотника, который входит в момент выдачи доступа
type joinOnAllow struct {
	*sim.Engine
	svc  func() *GameService
	once sync.Once
}

func (e *joinOnAllow) SetAllowed(ctx context.Context, name string, allowed bool) error {
	if err := e.Engine.SetAllowed(ctx, name, allowed); err != nil {
		return err
	}
	if allowed && name == hunter {
		e.once.Do(func() {
			if sess := e.svc().currentSession(); sess != nil {
				_ = sess.HandleParticipantJoined(ctx, name)
			}
		})
	}
	return nil
}

// denyHunter не дает выдать охотнику доступ
type denyHunter struct {
	*sim.Engine
}

func (e *denyHunter) SetAllowed(ctx context.Context, name string, allowed bool) error {
	if allowed && name == hunter {
		return errors.New("allow-list is read-only")
	}
	return e.Engine.SetAllowed(ctx, name, allowed)
}

func TestSelectHunter_JoinDuringAccessGrant(t *testing.T) {
	f := newFixtureWith(t, nil, func(e *sim.Engine, svc func() *GameService) live.Engine {
		return &joinOnAllow{Engine: e, svc: svc}
	})
	f.startWithStreamer(t)

	snapshot, err := f.svc.SelectHunter(context.Background(), api.SelectionRequest{
		MinecraftUsername: hunter,
		TwitchUsername:    "twitch_" + hunter,
	})
	if err != nil {
		t.Fatalf("SelectHunter() error = %v", err)
	}
	if !snapshot.HunterJoined {
		t.Errorf("snapshot = %+v, want joined hunter", snapshot)
	}

	st := f.svc.State()
	if st.ActiveSession == nil || !st.ActiveSession.HunterJoined {
		t.Fatalf("ActiveSession = %+v, want the joined session", st.ActiveSession)
	}
	if f.svc.currentSession() == nil {
		t.Fatal("service lost the running session")
	}
	if f.hud.active() != 1 || !f.sim.IsAllowed(hunter) {
		t.Errorf("hud = %d, allowed = %v", f.hud.active(), f.sim.IsAllowed(hunter))
	}

	_, err = f.svc.SelectHunter(context.Background(), api.SelectionRequest{MinecraftUsername: "hunter_two", TwitchUsername: "twitch_two"})
	if !errors.Is(err, domain.ErrSessionInProgress) {
		t.Errorf("second selection error = %v, want ErrSessionInProgress", err)
	}
}

func TestSelectHunter_AccessGrantFails(t *testing.T) {
	f := newFixtureWith(t, func(c *Config) { c.JoinTimeout = 20 * time.Millisecond }, func(e *sim.Engine, _ func() *GameService) live.Engine {
		return &denyHunter{Engine: e}
	})
	f.startWithStreamer(t)

	_, err := f.svc.SelectHunter(context.Background(), api.SelectionRequest{
		MinecraftUsername: hunter,
		TwitchUsername:    "twitch_" + hunter,
	})
	if err == nil {
		t.Fatal("SelectHunter() must fail when access cannot be granted")
	}
	if f.svc.State().ActiveSession != nil || f.svc.currentSession() != nil {
		t.Error("failed selection must not leave a session behind")
	}
	if f.sim.IsAllowed(hunter) {
		t.Error("hunter must not keep access")
	}

	// Таймер ожидания снят: ни встречи, ни перевыбора
	time.Sleep(60 * time.Millisecond)
	if n := len(f.encounters()); n != 0 {
		t.Errorf("encounters = %d, want 0", n)
	}
	if f.events.count(api.EventNoShowImmediateReselect) != 0 {
		t.Error("aborted session must not request a reselect")
	}
}

func TestNoShow(t *testing.T) {
	for _, reselect := range []bool{true, false} {
		t.Run(fmt.Sprintf("reselect=%v", reselect), func(t *testing.T) {
			f := newFixture(t, func(c *Config) {
				c.JoinTimeout = 20 * time.Millisecond
				c.ImmediateReselect = reselect
			})
			f.startWithStreamer(t)
			f.selectHunter(t)

			waitFor(t, "join timeout", func() bool { return f.svc.State().ActiveSession == nil })
			enc := f.encounters()
			if len(enc) != 1 || enc[0].Outcome != domain.EncounterJoinTimeout || enc[0].JoinedAt != nil {
				t.Fatalf("encounters = %+v", enc)
			}
			if f.sim.IsAllowed(hunter) {
				t.Error("no-show hunter must lose access")
			}
			if f.svc.currentSession() != nil {
				t.Error("session pointer must be cleared")
			}

			want := 0
			if reselect {
				want = 1
				waitFor(t, "reselect", func() bool { return f.events.count(api.EventNoShowImmediateReselect) > 0 })
			}
			time.Sleep(50 * time.Millisecond)
			if n := f.events.count(api.EventNoShowImmediateReselect); n != want {
				t.Errorf("reselect notifications = %d, want %d", n, want)
			}
			if f.events.count(api.EventHunterLeft) != 0 {
				t.Error("hunter that never joined must not produce hunter-left")
			}
		})
	}
}

func TestJoinAfterCancelDoesNotRearm(t *testing.T) {
	f := newFixture(t, nil)
	f.startWithStreamer(t)
	f.selectHunter(t)

	sess := f.svc.currentSession()
	sess.Cancel(context.Background())

	err := sess.HandleParticipantJoined(context.Background(), hunter)
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("join after cancel error = %v, want ErrInvalidState", err)
	}

	state := sess.State()
	if state.Phase != domain.PhaseEnded || state.Outcome != domain.EncounterCancelled {
		t.Errorf("state = %+v", state)
	}
	sess.mu.Lock()
	armed := sess.joinTimer != nil || sess.huntTimer != nil
	sess.mu.Unlock()
	if armed {
		t.Error("ended session must not hold timers")
	}
	if f.events.count(api.EventNoShowImmediateReselect) != 0 {
		t.Error("cancel must never request a reselect")
	}
}

func TestHuntTimeout(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.HuntDuration = 30 * time.Millisecond })
	f.startWithStreamer(t)
	f.selectHunter(t)
	f.joinHunter(t)

	waitFor(t, "hunt timeout", func() bool { return f.svc.State().ActiveSession == nil })
	if enc := f.encounters(); len(enc) != 1 || enc[0].Outcome != domain.EncounterHuntTimeout {
		t.Fatalf("encounters = %+v", enc)
	}

	found := false
	for _, msg := range f.sim.Broadcasts() {
		if strings.Contains(msg, "ran out of time") {
			found = true
		}
	}
	if !found {
		t.Error("timeout must be announced")
	}
}

func TestHunterDisconnect(t *testing.T) {
	f := newFixture(t, nil)
	f.startWithStreamer(t)
	f.selectHunter(t)
	f.joinHunter(t)

	if err := f.sim.Quit(hunter); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "disconnect", func() bool { return f.svc.State().ActiveSession == nil })
	if enc := f.encounters(); len(enc) != 1 || enc[0].Outcome != domain.EncounterDisconnected {
		t.Fatalf("encounters = %+v", enc)
	}
	if f.sim.IsAllowed(hunter) {
		t.Error("access must be revoked after disconnect")
	}
}

func TestStreamerKilledByHunter(t *testing.T) {
	f := newFixture(t, nil)
	f.startWithStreamer(t)
	f.selectHunter(t)
	f.joinHunter(t)

	if err := f.sim.Kill(streamer, hunter); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "attempt end", func() bool { return !f.svc.State().Active })

	st := f.svc.State()
	record := st.History[len(st.History)-1]
	if record.Outcome != domain.AttemptDeath {
		t.Errorf("outcome = %s, want DEATH", record.Outcome)
	}
	if len(record.Encounters) != 1 || record.Encounters[0].Outcome != domain.EncounterKilledTarget {
		t.Errorf("encounters = %+v", record.Encounters)
	}
	waitFor(t, "streamer-died", func() bool { return f.events.count(api.EventStreamerDied) == 1 })
	if f.worlds.resetCount() != 1 {
		t.Error("death must reset the world")
	}
}

func TestDragonVictory(t *testing.T) {
	f := newFixture(t, nil)
	f.startWithStreamer(t)

	// Чужой мир игнорируется
	if _, err := f.sim.CreateWorld(context.Background(), live.WorldSpec{Name: "hardcore_10_the_end", Environment: live.EnvironmentEnd}); err != nil {
		t.Fatal(err)
	}
	_ = f.sim.DefeatDragon("hardcore_10_the_end")
	time.Sleep(30 * time.Millisecond)
	if !f.svc.State().Active {
		t.Fatal("dragon in a foreign world must not end the attempt")
	}

	if _, err := f.sim.CreateWorld(context.Background(), live.WorldSpec{Name: "hardcore_1_the_end", Environment: live.EnvironmentEnd}); err != nil {
		t.Fatal(err)
	}
	if err := f.sim.DefeatDragon("hardcore_1_the_end"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "victory", func() bool { return !f.svc.State().Active })

	st := f.svc.State()
	if st.History[0].Outcome != domain.AttemptVictory {
		t.Errorf("outcome = %s, want VICTORY", st.History[0].Outcome)
	}
	if f.worlds.resetCount() != 0 {
		t.Error("victory keeps the world")
	}
	waitFor(t, "next world after victory", func() bool { return f.worlds.pregenCount() == 1 })
	if !f.svc.Status().WorldReady {
		t.Error("victory must prepare the next world")
	}

	// Следующая попытка запускается без ручного сброса
	if _, err := f.svc.StartAttempt(context.Background(), streamer); err != nil {
		t.Fatalf("StartAttempt() after victory error = %v", err)
	}
}

func TestStatusAndSummary(t *testing.T) {
	f := newFixture(t, nil)

	status := f.svc.Status()
	if status.GameActive || status.CurrentAttempt != nil || !status.WorldReady {
		t.Errorf("idle status = %+v", status)
	}

	f.startWithStreamer(t)
	status = f.svc.Status()
	if !status.GameActive || status.CurrentAttempt == nil || *status.CurrentAttempt != 1 || status.WorldReady {
		t.Errorf("active status = %+v", status)
	}

	f.clock.advance(time.Minute)
	if _, err := f.svc.EndAttempt(context.Background(), domain.AttemptDeath); err != nil {
		t.Fatal(err)
	}
	sum := f.svc.Summary()
	if sum.TotalAttempts != 1 || sum.Deaths != 1 || sum.LongestAttemptSeconds == nil || *sum.LongestAttemptSeconds != 60 {
		t.Errorf("summary = %+v", sum)
	}
}

// --- Инвариант на случайных последовательностях ---

func TestStateInvariantUnderRandomOperations(t *testing.T) {
	f := newFixture(t, nil)
	f.worlds.autoNext = true
	if err := f.sim.Join(streamer); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	rng := rand.New(rand.NewSource(7))
	outcomes := []domain.AttemptOutcome{domain.AttemptCancelled, domain.AttemptDeath, domain.AttemptVictory}

	prevHistory := 0
	for step := 0; step < 300; step++ {
		switch rng.Intn(7) {
		case 0:
			_, _ = f.svc.StartAttempt(ctx, "")
		case 1:
			_, _ = f.svc.EndAttempt(ctx, outcomes[rng.Intn(len(outcomes))])
		case 2:
			_ = f.svc.PauseAttempt(ctx)
		case 3:
			_ = f.svc.ResumeAttempt(ctx)
		case 4:
			_, _ = f.svc.SelectHunter(ctx, api.SelectionRequest{MinecraftUsername: fmt.Sprintf("hunter_%d", step)})
		case 5:
			if sess := f.svc.currentSession(); sess != nil {
				sess.Cancel(ctx)
			}
		case 6:
			_ = f.svc.RecordEncounter(ctx, domain.Encounter{EndedAt: f.clock.now(), Outcome: domain.EncounterDied})
		}

		st := f.svc.State()
		if !st.Consistent() {
			t.Fatalf("step %d: inconsistent state %+v", step, st)
		}
		if len(st.History) < prevHistory {
			t.Fatalf("step %d: history shrank", step)
		}
		prevHistory = len(st.History)
		for i, a := range st.History {
			if a.AttemptNumber != i+1 || a.Outcome == domain.AttemptInProgress {
				t.Fatalf("step %d: bad history entry %d: %+v", step, i, a)
			}
		}
		if st.CurrentAttempt != nil && st.CurrentAttempt.AttemptNumber != len(st.History)+1 {
			t.Fatalf("step %d: current attempt number %d", step, st.CurrentAttempt.AttemptNumber)
		}
	}
}
