package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"hunt-server/internal/dispatch"
	"hunt-server/internal/domain"
	"hunt-server/internal/infrastructure/storage"
	"hunt-server/internal/live"
	"hunt-server/internal/network"
	"hunt-server/pkg/api"
	"hunt-server/pkg/logger"
	"hunt-server/pkg/utils"

	"github.com/sirupsen/logrus"
)

// Notifier доставляет событие внешним подписчикам (бот чата, лента /ws)
type Notifier interface {
	Notify(ctx context.Context, event string, data map[string]string) error
}

// Notifiers рассылает событие всем получателям и собирает ошибки
type Notifiers []Notifier

func (n Notifiers) Notify(ctx context.Context, event string, data map[string]string) error {
	var errs []error
	for _, target := range n {
		if err := target.Notify(ctx, event, data); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// HUD - публикация телеметрии активной охоты
type HUD interface {
	Start(sessionID string, provider network.HUDProvider)
	Stop(sessionID string)
}

// Worlds - то, что оркестратору нужно от менеджера миров
type Worlds interface {
	Current() domain.WorldState
	IsNextReady() bool
	ActivateNext(ctx context.Context) (domain.WorldState, int64, error)
	ResetWorld(ctx context.Context) error
	PregenerateNext() <-chan struct{}
	Shutdown()
}

// History - хранилище истории попыток
type History interface {
	Load(ctx context.Context) []domain.AttemptRecord
	Save(ctx context.Context, history []domain.AttemptRecord)
}

// Deps - зависимости GameService
type Deps struct {
	Engine   live.Engine
	Queue    *dispatch.WorldQueue
	Bg       *dispatch.Background
	Worlds   Worlds
	History  History
	Notifier Notifier
	HUD      HUD
}

// GameService - оркестратор игры: попытки, пауза, выбор охотника.
// Снимок GameState читается без блокировок, переходы идут под mu.
type GameService struct {
	cfg      Config
	engine   live.Engine
	queue    *dispatch.WorldQueue
	bg       *dispatch.Background
	worlds   Worlds
	history  History
	notifier Notifier
	hud      HUD
	now      func() time.Time
	log      *logrus.Entry

	state atomic.Pointer[domain.GameState]

	// mu сериализует переходы. Методы сессии под mu не вызываются:
	// сессия сама возвращается в RecordEncounter и releaseSession.
	mu      sync.Mutex
	session *HuntSession

	rngMu sync.Mutex
	rng   *rand.Rand
}

func NewService(cfg Config, deps Deps) *GameService {
	s := &GameService{
		cfg:      cfg,
		engine:   deps.Engine,
		queue:    deps.Queue,
		bg:       deps.Bg,
		worlds:   deps.Worlds,
		history:  deps.History,
		notifier: deps.Notifier,
		hud:      deps.HUD,
		now:      time.Now,
		log:      logger.For("game"),
		rng:      rand.New(rand.NewSource(cfg.Seed)),
	}
	if s.notifier == nil {
		s.notifier = Notifiers(nil)
	}
	s.state.Store(&domain.GameState{History: []domain.AttemptRecord{}})
	return s
}

// Init загружает историю. Незавершенные попытки прошлого запуска
// остаются в истории как есть.
func (s *GameService) Init(ctx context.Context) {
	history := s.history.Load(ctx)

	s.mu.Lock()
	st := domain.NewGameState(history)
	s.state.Store(&st)
	s.mu.Unlock()

	s.log.WithField("attempts", len(history)).Info("Game history loaded")
}

// State возвращает текущий снимок
func (s *GameService) State() domain.GameState {
	return *s.state.Load()
}

// commit публикует снимок и синхронно сохраняет историю. Только под mu.
func (s *GameService) commit(ctx context.Context, st domain.GameState) {
	s.state.Store(&st)
	s.history.Save(ctx, st.History)
}

// StartAttempt начинает новую попытку на заранее сгенерированном мире
func (s *GameService) StartAttempt(ctx context.Context, initiator string) (domain.AttemptRecord, error) {
	s.mu.Lock()
	st := *s.state.Load()
	if st.Active {
		s.mu.Unlock()
		return domain.AttemptRecord{}, domain.InvalidStatef("attempt #%d is already in progress", st.CurrentAttempt.AttemptNumber)
	}
	if !s.worlds.IsNextReady() {
		s.mu.Unlock()
		return domain.AttemptRecord{}, fmt.Errorf("%w: the next world is still being prepared", domain.ErrNotReady)
	}

	ws, seed, err := s.worlds.ActivateNext(ctx)
	if err != nil {
		s.mu.Unlock()
		return domain.AttemptRecord{}, fmt.Errorf("failed to activate world: %w", err)
	}
	active := *ws.Active

	attempt := domain.NewAttempt(len(st.History)+1, seed, s.now().UTC(), s.cfg.StreamerName, active.Name)
	s.commit(ctx, st.WithNewAttempt(attempt))
	s.mu.Unlock()

	log := s.log.WithFields(logrus.Fields{
		"attempt": attempt.AttemptNumber,
		"world":   active.Name,
		"seed":    seed,
	})
	log.Info("Attempt started")

	if initiator != "" {
		err := s.queue.Do(ctx, func(ctx context.Context) error {
			return s.resetAvatar(ctx, initiator, active.Spawn)
		})
		if err != nil {
			log.WithError(err).WithField("initiator", initiator).Warn("Failed to prepare initiator")
		}
	}

	s.broadcast(ctx, fmt.Sprintf("Attempt #%d has started! Good luck!", attempt.AttemptNumber))
	s.notify(api.EventGameStarted, map[string]string{
		"attemptNumber": strconv.Itoa(attempt.AttemptNumber),
		"worldSeed":     strconv.FormatInt(seed, 10),
	})
	return attempt, nil
}

// resetAvatar возвращает актора к стартовому состоянию. Только в контексте мира.
func (s *GameService) resetAvatar(ctx context.Context, name string, spawn domain.Location) error {
	if err := s.engine.ResetVitals(ctx, name); err != nil {
		return err
	}
	if err := s.engine.SetGameMode(ctx, name, domain.GameModeSurvival); err != nil {
		return err
	}
	if err := s.engine.ClearInventory(ctx, name); err != nil {
		return err
	}
	return s.engine.Teleport(ctx, name, spawn)
}

// EndAttempt завершает попытку. Активная сессия отменяется, и ее встреча
// попадает в завершаемую попытку. Без победы мир сбрасывается.
func (s *GameService) EndAttempt(ctx context.Context, outcome domain.AttemptOutcome) (domain.AttemptRecord, error) {
	if outcome == domain.AttemptInProgress {
		return domain.AttemptRecord{}, domain.InvalidStatef("attempt cannot end as %s", outcome)
	}

	s.mu.Lock()
	if !s.state.Load().Active {
		s.mu.Unlock()
		return domain.AttemptRecord{}, domain.InvalidStatef("no attempt in progress")
	}
	sess := s.session
	s.session = nil
	s.mu.Unlock()

	if sess != nil {
		sess.Cancel(ctx)
	}

	s.mu.Lock()
	st := *s.state.Load()
	if !st.Active {
		// Попытку успели завершить параллельно
		s.mu.Unlock()
		return domain.AttemptRecord{}, domain.InvalidStatef("no attempt in progress")
	}
	ended := st.WithEndedAttempt(outcome, s.now().UTC())
	s.commit(ctx, ended)
	s.mu.Unlock()

	record := ended.History[len(ended.History)-1]
	duration, _ := record.DurationSeconds()
	s.log.WithFields(logrus.Fields{
		"attempt":  record.AttemptNumber,
		"outcome":  outcome,
		"duration": duration,
	}).Info("Attempt ended")

	s.broadcast(ctx, fmt.Sprintf("Attempt #%d is over: %s", record.AttemptNumber, outcome.Label()))
	s.notify(endEvent(outcome), map[string]string{
		"attemptNumber":   strconv.Itoa(record.AttemptNumber),
		"outcome":         outcome.String(),
		"durationSeconds": strconv.FormatInt(duration, 10),
	})

	if outcome == domain.AttemptVictory {
		// Мир победы остается открытым, следующий готовится заранее
		s.worlds.PregenerateNext()
	} else if err := s.worlds.ResetWorld(ctx); err != nil {
		s.log.WithError(err).Error("Failed to reset world")
	}
	return record, nil
}

func endEvent(outcome domain.AttemptOutcome) string {
	switch outcome {
	case domain.AttemptDeath:
		return api.EventStreamerDied
	case domain.AttemptVictory:
		return api.EventStreamerVictory
	default:
		return api.EventGameEnded
	}
}

// endAttemptIf завершает попытку, только если это все еще попытка number.
// Используется отложенными триггерами (смерть, победа).
func (s *GameService) endAttemptIf(ctx context.Context, number int, outcome domain.AttemptOutcome) error {
	if current, ok := s.State().CurrentAttemptNumber(); !ok || current != number {
		s.log.WithField("attempt", number).Debug("Delayed end skipped, attempt already finished")
		return nil
	}
	_, err := s.EndAttempt(ctx, outcome)
	return err
}

// PauseAttempt ставит попытку на паузу: сессия отменяется, время в мире замирает
func (s *GameService) PauseAttempt(ctx context.Context) error {
	s.mu.Lock()
	st := *s.state.Load()
	if !st.Active || st.Paused {
		s.mu.Unlock()
		return domain.InvalidStatef("no running attempt to pause")
	}
	sess := s.session
	s.session = nil
	s.commit(ctx, st.WithPaused())
	s.mu.Unlock()

	if sess != nil {
		sess.Cancel(ctx)
	}

	s.setDaylight(ctx, false)
	s.log.WithField("attempt", st.CurrentAttempt.AttemptNumber).Info("Attempt paused")
	s.broadcast(ctx, "The game is paused.")
	s.notify(api.EventGamePaused, map[string]string{"attempt": strconv.Itoa(st.CurrentAttempt.AttemptNumber)})
	return nil
}

// ResumeAttempt снимает паузу
func (s *GameService) ResumeAttempt(ctx context.Context) error {
	s.mu.Lock()
	st := *s.state.Load()
	if !st.Active || !st.Paused {
		s.mu.Unlock()
		return domain.InvalidStatef("no paused attempt to resume")
	}
	s.commit(ctx, st.WithResumed())
	s.mu.Unlock()

	s.setDaylight(ctx, true)
	s.log.WithField("attempt", st.CurrentAttempt.AttemptNumber).Info("Attempt resumed")
	s.broadcast(ctx, "The game has resumed!")
	s.notify(api.EventGameResumed, map[string]string{"attempt": strconv.Itoa(st.CurrentAttempt.AttemptNumber)})
	return nil
}

func (s *GameService) setDaylight(ctx context.Context, enabled bool) {
	active := s.worlds.Current().Active
	if active == nil {
		return
	}
	err := s.queue.Do(ctx, func(ctx context.Context) error {
		return s.engine.SetDaylightCycle(ctx, active.Name, enabled)
	})
	if err != nil {
		s.log.WithError(err).WithField("world", active.Name).Warn("Failed to toggle daylight cycle")
	}
}

// RecordEncounter дописывает встречу в текущую попытку
func (s *GameService) RecordEncounter(ctx context.Context, e domain.Encounter) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := *s.state.Load()
	if !st.Active {
		return domain.InvalidStatef("no attempt to record %s encounter of %s", e.Outcome, e.HunterQueueName)
	}
	s.commit(ctx, st.WithEncounter(e))
	return nil
}

// BeginSession регистрирует сессию охотника
func (s *GameService) BeginSession(ctx context.Context, sess *HuntSession, snapshot domain.SessionSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := *s.state.Load()
	if err := selectable(st); err != nil {
		return err
	}
	if s.session != nil {
		return domain.ErrSessionInProgress
	}
	s.session = sess
	s.commit(ctx, st.WithSession(snapshot))
	return nil
}

// ClearSession снимает активную сессию, какой бы она ни была
func (s *GameService) ClearSession(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.session = nil
	if st := *s.state.Load(); st.ActiveSession != nil {
		s.commit(ctx, st.WithoutSession())
	}
}

// releaseSession снимает сессию, только если она все еще текущая
func (s *GameService) releaseSession(ctx context.Context, sess *HuntSession) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session != sess {
		return
	}
	s.session = nil
	if st := *s.state.Load(); st.ActiveSession != nil && st.ActiveSession.SessionID == sess.id {
		s.commit(ctx, st.WithoutSession())
	}
}

// updateSession обновляет слепок текущей сессии
func (s *GameService) updateSession(ctx context.Context, sess *HuntSession, snapshot domain.SessionSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session != sess {
		return
	}
	s.commit(ctx, s.state.Load().WithSession(snapshot))
}

func (s *GameService) currentSession() *HuntSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

func selectable(st domain.GameState) error {
	switch {
	case !st.Active:
		return domain.ErrNoActiveAttempt
	case st.Paused:
		return domain.ErrAttemptPaused
	case st.ActiveSession != nil:
		return domain.ErrSessionInProgress
	}
	return nil
}

// SelectHunter запускает сессию для выбранного охотника
func (s *GameService) SelectHunter(ctx context.Context, req api.SelectionRequest) (domain.SessionSnapshot, error) {
	if err := selectable(s.State()); err != nil {
		return domain.SessionSnapshot{}, err
	}

	var online bool
	err := s.queue.Do(ctx, func(ctx context.Context) error {
		online = s.engine.IsOnline(s.cfg.StreamerName)
		return nil
	})
	if err != nil {
		return domain.SessionSnapshot{}, err
	}
	if !online {
		return domain.SessionSnapshot{}, domain.ErrTargetOffline
	}

	attempt, _ := s.State().CurrentAttemptNumber()
	sess := newHuntSession(s, utils.GenerateID(), attempt, req.TwitchUsername, req.MinecraftUsername)
	if err := s.BeginSession(ctx, sess, sess.Snapshot()); err != nil {
		return domain.SessionSnapshot{}, err
	}
	if err := sess.Start(ctx); err != nil {
		s.releaseSession(ctx, sess)
		return domain.SessionSnapshot{}, err
	}
	return sess.Snapshot(), nil
}

// Status - краткое состояние для статус-роута
func (s *GameService) Status() api.StatusResponse {
	st := s.State()
	resp := api.StatusResponse{
		GameActive: st.Active,
		GamePaused: st.Paused,
		WorldReady: s.worlds.IsNextReady(),
	}
	if n, ok := st.CurrentAttemptNumber(); ok {
		resp.CurrentAttempt = &n
	}
	return resp
}

// Summary - агрегаты по завершенным попыткам
func (s *GameService) Summary() domain.AttemptSummary {
	return storage.Summarize(s.State().History)
}

// Shutdown отменяет сессию, сбрасывает историю на диск и останавливает миры
func (s *GameService) Shutdown(ctx context.Context) {
	s.mu.Lock()
	sess := s.session
	s.session = nil
	s.mu.Unlock()

	if sess != nil {
		sess.Cancel(ctx)
	}

	s.mu.Lock()
	st := *s.state.Load()
	if st.ActiveSession != nil {
		st = st.WithoutSession()
	}
	s.commit(ctx, st)
	s.mu.Unlock()

	s.worlds.Shutdown()
	s.log.Info("Game service stopped")
}

// notify отправляет событие в фоне. Ошибки доставки только логируются.
func (s *GameService) notify(event string, data map[string]string) {
	s.bg.Go("notify:"+event, func(ctx context.Context) error {
		if err := s.notifier.Notify(ctx, event, data); err != nil {
			s.log.WithError(err).WithField("event", event).Warn("Failed to deliver notification")
		}
		return nil
	})
}

func (s *GameService) broadcast(ctx context.Context, msg string) {
	err := s.queue.Do(ctx, func(ctx context.Context) error {
		return s.engine.Broadcast(ctx, msg)
	})
	if err != nil {
		s.log.WithError(err).Warn("Failed to broadcast message")
	}
}

// withRand дает доступ к общему генератору
func (s *GameService) withRand(fn func(r *rand.Rand)) {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	fn(s.rng)
}
