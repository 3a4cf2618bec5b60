package engine

import (
	"context"
	"errors"
	"slices"

	"hunt-server/internal/domain"
)

const kickPaused = "The game is paused. Please wait for the streamer to come back."

// Обработчики событий движка. Вызываются из контекста мира, поэтому
// сразу уходят в фон: оркестратор сам обращается к миру через очередь.

func (s *GameService) OnPlayerJoin(name string) {
	s.bg.Go("trigger:join:"+name, func(ctx context.Context) error {
		return s.handleJoin(ctx, name)
	})
}

func (s *GameService) OnPlayerQuit(name string) {
	s.bg.Go("trigger:quit:"+name, func(ctx context.Context) error {
		return s.handleQuit(ctx, name)
	})
}

func (s *GameService) OnPlayerDeath(name, killer string) {
	s.bg.Go("trigger:death:"+name, func(ctx context.Context) error {
		return s.handleDeath(ctx, name, killer)
	})
}

func (s *GameService) OnDragonDefeated(world string) {
	s.bg.Go("trigger:dragon:"+world, func(ctx context.Context) error {
		return s.handleDragon(ctx, world)
	})
}

func (s *GameService) handleJoin(ctx context.Context, name string) error {
	st := s.State()

	if name == s.cfg.StreamerName {
		if st.Active && st.Paused {
			s.log.Info("Streamer is back, resuming")
			return s.ResumeAttempt(ctx)
		}
		return nil
	}

	if st.Active && st.Paused {
		return s.queue.Do(ctx, func(ctx context.Context) error {
			return s.engine.Kick(ctx, name, kickPaused)
		})
	}

	if sess := s.currentSession(); sess != nil && sess.ActorName() == name {
		return s.ignoreRejected(sess.HandleParticipantJoined(ctx, name))
	}
	return nil
}

func (s *GameService) handleQuit(ctx context.Context, name string) error {
	st := s.State()

	if name == s.cfg.StreamerName {
		if st.Active && !st.Paused {
			s.log.Info("Streamer left, pausing")
			return s.PauseAttempt(ctx)
		}
		return nil
	}

	if sess := s.currentSession(); sess != nil && sess.ActorName() == name {
		return s.ignoreRejected(sess.HandleParticipantLeft(ctx))
	}
	return nil
}

func (s *GameService) handleDeath(ctx context.Context, victim, killer string) error {
	sess := s.currentSession()

	if victim != s.cfg.StreamerName {
		if sess != nil && sess.ActorName() == victim {
			return s.ignoreRejected(sess.HandleParticipantDefeated(ctx))
		}
		return nil
	}

	number, ok := s.State().CurrentAttemptNumber()
	if !ok {
		return nil
	}
	if sess != nil && killer != "" && sess.ActorName() == killer {
		_ = s.ignoreRejected(sess.HandleTargetDefeated(ctx))
	}

	s.log.WithField("attempt", number).Info("Streamer died, ending attempt")
	s.bg.AfterFunc(s.cfg.DeathEndDelay, "end:death", func(ctx context.Context) error {
		return s.endAttemptIf(ctx, number, domain.AttemptDeath)
	})
	return nil
}

func (s *GameService) handleDragon(ctx context.Context, world string) error {
	active := s.worlds.Current().Active
	number, ok := s.State().CurrentAttemptNumber()
	if !ok || active == nil || !slices.Contains(active.Dimensions(), world) {
		return nil
	}

	s.log.WithField("attempt", number).Info("Dragon defeated, ending attempt")
	s.broadcast(ctx, "The Ender Dragon has been defeated!")
	s.bg.AfterFunc(s.cfg.VictoryEndDelay, "end:victory", func(ctx context.Context) error {
		return s.endAttemptIf(ctx, number, domain.AttemptVictory)
	})
	return nil
}

// ignoreRejected глушит отказы сессии: событие пришло не в той фазе
func (s *GameService) ignoreRejected(err error) error {
	if err != nil && errors.Is(err, domain.ErrInvalidState) {
		return nil
	}
	return err
}
