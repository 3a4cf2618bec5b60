package engine

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"hunt-server/internal/dispatch"
	"hunt-server/internal/domain"
	"hunt-server/pkg/api"
	"hunt-server/pkg/utils"

	"github.com/sirupsen/logrus"
)

const (
	kickHuntEnded = "Your hunt has ended!"
	kickCancelled = "The hunt was cancelled."
)

// HuntSession - одна сессия охотника: ожидание входа, охота, финал.
// Фазы идут только вперед, в Ended любое событие отклоняется.
type HuntSession struct {
	id        string
	attempt   int
	queueName string
	actorName string
	startedAt time.Time
	expiresAt time.Time

	owner *GameService
	log   *logrus.Entry

	mu           sync.Mutex
	started      bool
	state        domain.SessionState
	joinTimer    *dispatch.Timer
	huntTimer    *dispatch.Timer
	huntDeadline time.Time
}

func newHuntSession(owner *GameService, id string, attempt int, queueName, actorName string) *HuntSession {
	now := owner.now().UTC()
	return &HuntSession{
		id:        id,
		attempt:   attempt,
		queueName: queueName,
		actorName: actorName,
		startedAt: now,
		expiresAt: now.Add(owner.cfg.JoinTimeout),
		owner:     owner,
		log: owner.log.WithFields(logrus.Fields{
			"session": utils.ShortID(id),
			"hunter":  actorName,
		}),
		state: domain.WaitingForJoin(),
	}
}

func (s *HuntSession) ActorName() string { return s.actorName }

// State возвращает текущую фазу и ее данные
func (s *HuntSession) State() domain.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Snapshot - публичный слепок для GameState
func (s *HuntSession) Snapshot() domain.SessionSnapshot {
	s.mu.Lock()
	joined := s.state.JoinedAt != nil
	s.mu.Unlock()

	return domain.SessionSnapshot{
		SessionID:       s.id,
		HunterQueueName: s.queueName,
		HunterActorName: s.actorName,
		StartedAt:       s.startedAt,
		ExpiresAt:       s.expiresAt,
		HunterJoined:    joined,
	}
}

// Start запускает таймер ожидания входа и открывает охотнику доступ.
// Таймер взводится до выдачи доступа: охотник может войти сразу после нее.
func (s *HuntSession) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started || s.state.IsEnded() {
		phase := s.state.Phase
		s.mu.Unlock()
		return domain.InvalidStatef("session %s cannot start from %s", s.id, phase)
	}
	s.started = true
	if s.state.Phase == domain.PhaseWaitingForJoin {
		s.joinTimer = s.owner.bg.AfterFunc(s.owner.cfg.JoinTimeout, "join-timeout:"+s.id, s.onJoinTimeout)
	}
	s.mu.Unlock()

	err := s.owner.queue.Do(ctx, func(ctx context.Context) error {
		return s.owner.engine.SetAllowed(ctx, s.actorName, true)
	})
	if err != nil {
		if s.abort(ctx) {
			return fmt.Errorf("failed to allow hunter %s: %w", s.actorName, err)
		}
		s.log.WithError(err).Warn("Allow-list update failed after the hunter joined")
	}

	switch s.State().Phase {
	case domain.PhaseActive:
		// Охотник вошел, пока выдавался доступ
		return nil
	case domain.PhaseEnded:
		// Сессию закрыли раньше, чем доступ был выдан: доступ не должен пережить ее
		s.revoke(ctx)
		return domain.InvalidStatef("session %s ended before it started", s.id)
	}

	s.log.WithField("queueName", s.queueName).Info("Hunter selected, waiting for join")
	s.owner.broadcast(ctx, fmt.Sprintf("%s has been selected as the next hunter! They have %s to join.",
		s.actorName, s.owner.cfg.JoinTimeout))
	return nil
}

// abort закрывает так и не начавшуюся сессию. false - охотник уже вошел.
func (s *HuntSession) abort(ctx context.Context) bool {
	s.mu.Lock()
	if s.state.Phase != domain.PhaseWaitingForJoin {
		ended := s.state.IsEnded()
		s.mu.Unlock()
		return ended
	}
	s.state = domain.EndedSession(s.owner.now().UTC(), domain.EncounterCancelled, nil)
	joinTimer := s.joinTimer
	s.joinTimer = nil
	s.mu.Unlock()

	joinTimer.Stop()
	s.revoke(ctx)
	return true
}

// revoke снимает охотника с allow-list
func (s *HuntSession) revoke(ctx context.Context) {
	err := s.owner.queue.Do(ctx, func(ctx context.Context) error {
		return s.owner.engine.SetAllowed(ctx, s.actorName, false)
	})
	if err != nil {
		s.log.WithError(err).Warn("Failed to revoke hunter access")
	}
}

// HandleParticipantJoined переводит сессию в Active: точка спавна, набор
// предметов, телепорт, таймер охоты и HUD.
func (s *HuntSession) HandleParticipantJoined(ctx context.Context, actor string) error {
	if actor != s.actorName {
		return domain.InvalidStatef("%s is not the hunter of session %s", actor, s.id)
	}

	s.mu.Lock()
	if s.state.Phase != domain.PhaseWaitingForJoin {
		phase := s.state.Phase
		s.mu.Unlock()
		s.log.WithField("phase", phase).Warn("Ignoring join outside of waiting phase")
		return domain.InvalidStatef("session %s is %s", s.id, phase)
	}
	s.joinTimer.Stop()
	s.joinTimer = nil
	s.mu.Unlock()

	spawn, err := s.spawnPoint(ctx)
	if err != nil {
		s.log.WithError(err).Error("Failed to compute hunter spawn point")
		s.finish(ctx, domain.EncounterCancelled, kickCancelled, domain.PhaseWaitingForJoin)
		return err
	}

	var loadout []domain.ItemStack
	s.owner.withRand(func(r *rand.Rand) {
		loadout = GenerateLoadout(r, s.owner.cfg.Loadout)
	})

	s.mu.Lock()
	if s.state.Phase != domain.PhaseWaitingForJoin {
		// Сессию отменили, пока считали спавн
		s.mu.Unlock()
		return domain.InvalidStatef("session %s ended before the hunter was placed", s.id)
	}
	joinedAt := s.owner.now().UTC()
	s.state = domain.ActiveSession(joinedAt, spawn)
	s.huntDeadline = joinedAt.Add(s.owner.cfg.HuntDuration)
	s.huntTimer = s.owner.bg.AfterFunc(s.owner.cfg.HuntDuration, "hunt-timeout:"+s.id, s.onHuntTimeout)
	s.mu.Unlock()

	err = s.owner.queue.Do(ctx, func(ctx context.Context) error {
		return s.equip(ctx, spawn, loadout)
	})
	if err != nil {
		s.log.WithError(err).Warn("Failed to equip hunter")
	}

	s.mu.Lock()
	if s.state.Phase == domain.PhaseActive {
		s.owner.hud.Start(s.id, s.hudFrame)
	}
	s.mu.Unlock()

	s.owner.updateSession(ctx, s, s.Snapshot())
	s.log.WithFields(logrus.Fields{
		"x": spawn.BlockX(),
		"y": spawn.BlockY(),
		"z": spawn.BlockZ(),
	}).Info("Hunter joined")

	s.owner.notify(api.EventHunterJoined, map[string]string{
		"huntDurationMillis": strconv.FormatInt(s.owner.cfg.HuntDuration.Milliseconds(), 10),
	})
	return nil
}

// spawnPoint ищет точку вокруг цели в контексте мира
func (s *HuntSession) spawnPoint(ctx context.Context) (domain.Location, error) {
	var spawn domain.Location
	err := s.owner.queue.Do(ctx, func(ctx context.Context) error {
		center, ok := s.owner.engine.PlayerLocation(s.owner.cfg.StreamerName)
		if !ok {
			active := s.owner.worlds.Current().Active
			if active == nil {
				return domain.InvalidStatef("no active world to spawn in")
			}
			center = active.Spawn
		}

		height := func(x, z int) (int, error) {
			return s.owner.engine.HighestBlockY(center.World, x, z)
		}
		var err error
		s.owner.withRand(func(r *rand.Rand) {
			spawn, err = SpawnPoint(r, center, s.owner.cfg.SpawnRadius, height)
		})
		return err
	})
	return spawn, err
}

// equip готовит охотника к охоте. Только в контексте мира.
func (s *HuntSession) equip(ctx context.Context, spawn domain.Location, loadout []domain.ItemStack) error {
	e := s.owner.engine
	if err := e.ClearInventory(ctx, s.actorName); err != nil {
		return err
	}
	if err := e.ResetVitals(ctx, s.actorName); err != nil {
		return err
	}
	if err := e.SetGameMode(ctx, s.actorName, domain.GameModeSurvival); err != nil {
		return err
	}
	if err := e.Teleport(ctx, s.actorName, spawn); err != nil {
		return err
	}
	if err := e.GiveItems(ctx, s.actorName, loadout); err != nil {
		return err
	}

	minutes := int(s.owner.cfg.HuntDuration / time.Minute)
	if err := e.SendMessage(ctx, s.actorName, fmt.Sprintf("You have %d minutes to hunt down %s. Good luck!", minutes, s.owner.cfg.StreamerName)); err != nil {
		s.log.WithError(err).Debug("Failed to message hunter")
	}
	return e.Broadcast(ctx, fmt.Sprintf("%s has entered the hunt!", s.actorName))
}

// hudFrame собирает кадр телеметрии для HUD
func (s *HuntSession) hudFrame(ctx context.Context) (api.HUDView, bool) {
	s.mu.Lock()
	if s.state.Phase != domain.PhaseActive {
		s.mu.Unlock()
		return api.HUDView{}, false
	}
	deadline := s.huntDeadline
	s.mu.Unlock()

	remaining := deadline.Sub(s.owner.now())
	if remaining < 0 {
		remaining = 0
	}
	view := api.HUDView{
		AttemptNumber:    s.attempt,
		SessionID:        s.id,
		HunterName:       s.actorName,
		TargetName:       s.owner.cfg.StreamerName,
		RemainingSeconds: int64(remaining / time.Second),
	}

	err := s.owner.queue.Do(ctx, func(ctx context.Context) error {
		hunter, ok1 := s.owner.engine.PlayerLocation(s.actorName)
		target, ok2 := s.owner.engine.PlayerLocation(s.owner.cfg.StreamerName)
		if ok1 && ok2 && hunter.World == target.World {
			d := hunter.DistanceTo(target)
			view.DistanceBlocks = &d
		}
		return nil
	})
	if err != nil {
		s.log.WithError(err).Debug("HUD frame without distance")
	}
	return view, true
}

// HandleParticipantDefeated - охотник погиб
func (s *HuntSession) HandleParticipantDefeated(ctx context.Context) error {
	return s.finish(ctx, domain.EncounterDied, kickHuntEnded, domain.PhaseActive)
}

// HandleTargetDefeated - охотник убил цель
func (s *HuntSession) HandleTargetDefeated(ctx context.Context) error {
	if err := s.finish(ctx, domain.EncounterKilledTarget, kickHuntEnded, domain.PhaseActive); err != nil {
		return err
	}
	s.owner.broadcast(ctx, fmt.Sprintf("%s has slain %s!", s.actorName, s.owner.cfg.StreamerName))
	return nil
}

// HandleParticipantLeft - охотник вышел с сервера
func (s *HuntSession) HandleParticipantLeft(ctx context.Context) error {
	return s.finish(ctx, domain.EncounterDisconnected, "", domain.PhaseActive)
}

// Cancel завершает сессию из любой нетерминальной фазы. Повторный выбор не запрашивается.
func (s *HuntSession) Cancel(ctx context.Context) {
	err := s.finish(ctx, domain.EncounterCancelled, kickCancelled, domain.PhaseWaitingForJoin, domain.PhaseActive)
	if err == nil {
		s.log.Info("Hunt session cancelled")
	}
}

func (s *HuntSession) onJoinTimeout(ctx context.Context) error {
	if err := s.finish(ctx, domain.EncounterJoinTimeout, "", domain.PhaseWaitingForJoin); err != nil {
		return nil
	}
	s.log.Info("Hunter did not join in time")

	if s.owner.cfg.ImmediateReselect {
		s.owner.notify(api.EventNoShowImmediateReselect, map[string]string{
			"hunterQueueName": s.queueName,
			"hunterActorName": s.actorName,
		})
	}
	return nil
}

func (s *HuntSession) onHuntTimeout(ctx context.Context) error {
	if err := s.finish(ctx, domain.EncounterHuntTimeout, kickHuntEnded, domain.PhaseActive); err != nil {
		return nil
	}
	s.owner.broadcast(ctx, fmt.Sprintf("%s ran out of time!", s.actorName))
	return nil
}

// finish переводит сессию в Ended, если текущая фаза входит в from,
// и выполняет общую уборку: встреча, доступ, кик, HUD, событие, снятие сессии.
func (s *HuntSession) finish(ctx context.Context, outcome domain.EncounterOutcome, kickReason string, from ...domain.SessionPhase) error {
	s.mu.Lock()
	prev := s.state
	if !phaseIn(prev.Phase, from) {
		s.mu.Unlock()
		s.log.WithFields(logrus.Fields{
			"phase":   prev.Phase,
			"outcome": outcome,
		}).Debug("Session event rejected")
		return domain.InvalidStatef("session %s cannot end as %s from %s", s.id, outcome, prev.Phase)
	}
	endedAt := s.owner.now().UTC()
	s.state = domain.EndedSession(endedAt, outcome, prev.JoinedAt)
	joinTimer, huntTimer := s.joinTimer, s.huntTimer
	s.joinTimer, s.huntTimer = nil, nil
	s.mu.Unlock()

	joinTimer.Stop()
	huntTimer.Stop()

	err := s.owner.RecordEncounter(ctx, domain.Encounter{
		EndedAt:         endedAt,
		JoinedAt:        prev.JoinedAt,
		HunterQueueName: s.queueName,
		HunterActorName: s.actorName,
		Outcome:         outcome,
	})
	if err != nil {
		s.log.WithError(err).Warn("Encounter not recorded")
	}

	err = s.owner.queue.Do(ctx, func(ctx context.Context) error {
		if err := s.owner.engine.SetAllowed(ctx, s.actorName, false); err != nil {
			return err
		}
		if kickReason != "" && s.owner.engine.IsOnline(s.actorName) {
			return s.owner.engine.Kick(ctx, s.actorName, kickReason)
		}
		return nil
	})
	if err != nil {
		s.log.WithError(err).Warn("Failed to revoke hunter access")
	}

	s.owner.hud.Stop(s.id)
	if prev.Phase == domain.PhaseActive {
		s.owner.notify(api.EventHunterLeft, map[string]string{
			"hunterQueueName": s.queueName,
			"outcome":         outcome.String(),
		})
	}
	s.owner.releaseSession(ctx, s)

	s.log.WithField("outcome", outcome).Info("Hunt session ended")
	return nil
}

func phaseIn(p domain.SessionPhase, set []domain.SessionPhase) bool {
	for _, candidate := range set {
		if p == candidate {
			return true
		}
	}
	return false
}
