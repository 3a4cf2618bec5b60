package world

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"hunt-server/internal/live"

	"golang.org/x/sync/errgroup"
)

// teardown выгружает измерения в контексте мира, ждет settle и удаляет
// их директории по точному имени. Директория, чье измерение не удалось
// выгрузить, не трогается: движок еще держит ее файлы.
func (m *Manager) teardown(ctx context.Context, names []string, settle time.Duration) error {
	log := m.log.WithField("worlds", names)

	unloaded := make([]string, 0, len(names))
	var errs []error

	// 1. Выгрузка. Сначала дочерние измерения, overworld последним.
	for i := len(names) - 1; i >= 0; i-- {
		name := names[i]
		err := m.queue.Do(ctx, func(ctx context.Context) error {
			return m.engine.UnloadWorld(ctx, name, false)
		})
		switch {
		case err == nil, errors.Is(err, live.ErrWorldNotFound):
			unloaded = append(unloaded, name)
		default:
			errs = append(errs, fmt.Errorf("unload %s: %w", name, err))
		}
	}

	// 2. Даем движку отпустить файлы
	if settle > 0 && len(unloaded) > 0 {
		select {
		case <-time.After(settle):
		case <-ctx.Done():
			return errors.Join(append(errs, ctx.Err())...)
		}
	}

	// 3. Удаление директорий параллельно
	g, _ := errgroup.WithContext(ctx)
	for _, name := range unloaded {
		dir := m.worldDir(name)
		g.Go(func() error {
			if err := os.RemoveAll(dir); err != nil {
				return fmt.Errorf("delete %s: %w", dir, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		errs = append(errs, err)
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}
	log.Info("World instances deleted")
	return nil
}
