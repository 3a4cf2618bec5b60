package world

import (
	"context"
	"fmt"

	"hunt-server/internal/domain"
	"hunt-server/internal/live"
	"hunt-server/pkg/terrain"

	"github.com/sirupsen/logrus"
)

// pregenJob - единственная задача генерации в полете
type pregenJob struct {
	id     uint64
	cancel context.CancelFunc
	done   chan struct{}
}

// PregenerateNext отменяет генерацию в полете и запускает новую.
// Если следующий мир уже готов и ничего не генерируется - ничего не делает.
// Возвращаемый канал закрывается, когда задача завершилась (включая уборку
// за отмененной задачей).
func (m *Manager) PregenerateNext() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.state.Load()
	if (st.Next != nil && m.pregen == nil) || m.bg.Context().Err() != nil {
		done := make(chan struct{})
		close(done)
		return done
	}

	if m.pregen != nil {
		m.log.WithField("job", m.pregen.id).Info("Cancelling in-flight pregeneration")
		m.pregen.cancel()
	}

	m.jobSeq++
	ctx, cancel := context.WithCancel(m.bg.Context())
	job := &pregenJob{id: m.jobSeq, cancel: cancel, done: make(chan struct{})}
	m.pregen = job
	m.swap(st.WithPregenerationStarted())

	m.bg.Go(fmt.Sprintf("pregenerate#%d", job.id), func(context.Context) error {
		defer close(job.done)
		defer cancel()
		return m.runPregeneration(ctx, job)
	})
	return job.done
}

// cancelPregeneration отменяет задачу в полете и снимает флаг
func (m *Manager) cancelPregeneration() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pregen == nil {
		return
	}
	m.pregen.cancel()
	m.pregen = nil
	m.swap(m.state.Load().WithPregenerationFailed())
}

func (m *Manager) runPregeneration(ctx context.Context, job *pregenJob) error {
	log := m.log.WithField("job", job.id)
	log.Info("Pregeneration started")

	w, created, err := m.generate(ctx)

	m.mu.Lock()
	current := m.pregen == job && ctx.Err() == nil
	if current {
		m.pregen = nil
		st := m.state.Load()
		if err == nil {
			m.swap(st.WithNextWorld(&w))
		} else {
			m.swap(st.WithPregenerationFailed())
		}
	}
	m.mu.Unlock()

	switch {
	case current && err == nil:
		log.WithFields(logrus.Fields{
			"world": w.Name,
			"seed":  w.Seed,
		}).Info("Next world is ready")
		return nil
	case current:
		log.WithError(err).Error("Pregeneration failed")
	default:
		log.WithField("created", created).Info("Pregeneration cancelled, cleaning up")
	}

	// Отмененная или упавшая задача убирает за собой все, что успела создать.
	// Контекст задачи уже может быть отменен, поэтому уборка идет на корневом.
	if len(created) > 0 {
		if terr := m.teardown(m.bg.Context(), created, m.cfg.UnloadSettle); terr != nil {
			log.WithError(terr).Warn("Failed to clean up after pregeneration")
		}
	}
	return err
}

// generate создает новый инстанс: overworld + nether + end, настраивает
// правила и предзагружает чанки вокруг спавна. created - уже созданные
// измерения (для уборки при ошибке или отмене).
func (m *Manager) generate(ctx context.Context) (domain.World, []string, error) {
	var (
		world   domain.World
		created []string
	)

	// 1. Имя и overworld - одной задачей мира, чтобы скан имен не разошелся с созданием
	err := m.queue.Do(ctx, func(ctx context.Context) error {
		name := m.nextInstanceName()
		w, err := m.engine.CreateWorld(ctx, live.WorldSpec{
			Name:        name,
			Seed:        m.now().UnixMilli(),
			Environment: live.EnvironmentNormal,
		})
		if err != nil {
			return err
		}
		created = append(created, name)
		world = w
		return nil
	})
	if err != nil {
		return world, created, fmt.Errorf("create overworld: %w", err)
	}

	// 2. Дополнительные измерения
	extra := []struct {
		suffix string
		env    live.Environment
	}{
		{domain.NetherSuffix, live.EnvironmentNether},
		{domain.EndSuffix, live.EnvironmentEnd},
	}
	for _, dim := range extra {
		name := world.Name + dim.suffix
		err := m.queue.Do(ctx, func(ctx context.Context) error {
			if _, err := m.engine.CreateWorld(ctx, live.WorldSpec{Name: name, Seed: world.Seed, Environment: dim.env}); err != nil {
				return err
			}
			created = append(created, name)
			return nil
		})
		if err != nil {
			return world, created, fmt.Errorf("create %s: %w", name, err)
		}
	}

	// 3. Правила. Время стоит до активации.
	err = m.queue.Do(ctx, func(ctx context.Context) error {
		for _, name := range world.Dimensions() {
			if err := m.engine.ConfigureWorld(ctx, name, m.rules(world.Spawn, false)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return world, created, fmt.Errorf("configure %s: %w", world.Name, err)
	}

	// 4. Предзагрузка (2r+1)^2 чанков. Каждый чанк - отдельная задача,
	// чтобы не занимать контекст мира надолго.
	cx, cz := terrain.ChunkOf(world.Spawn.BlockX(), world.Spawn.BlockZ())
	r := m.cfg.PreloadRadius
	for dx := -r; dx <= r; dx++ {
		for dz := -r; dz <= r; dz++ {
			if err := ctx.Err(); err != nil {
				return world, created, err
			}
			x, z := cx+dx, cz+dz
			err := m.queue.Do(ctx, func(ctx context.Context) error {
				return m.engine.PreloadChunk(ctx, world.Name, x, z)
			})
			if err != nil {
				return world, created, fmt.Errorf("preload chunk [%d,%d]: %w", x, z, err)
			}
		}
	}

	return world, created, nil
}
