// Package ui drives the terminal event loop and differential renderer
// together: it owns the tcell screen via input.Loop, recomposes a frame
// from the current snapshot on every repaint tick, and applies decoded
// actions to the view state (spec §4.F, §4.G).
package ui

import (
	"context"
	"log/slog"

	"github.com/all-smi/all-smi/pkg/input"
	"github.com/all-smi/all-smi/pkg/render"
	"github.com/all-smi/all-smi/pkg/snapshot"
)

// Run opens the terminal, polls input and repaints until the user quits or
// ctx is cancelled.
func Run(ctx context.Context, store *snapshot.Store, logger *slog.Logger) error {
	loop, err := input.New(store)
	if err != nil {
		return err
	}
	defer loop.Close()

	renderer := render.NewRenderer(loop.Screen())

	repaint := func(force bool) {
		snap := store.Snapshot()
		width, height := loop.Screen().Size()

		cpuCoreCount := 0
		if len(snap.CPUs) > 0 {
			cpuCoreCount = len(snap.CPUs[0].PerCore)
		}

		frame := render.Compose(snap, store.Notifications().Entries(), width, height, cpuCoreCount, store.ClusterHistory())
		renderer.Show(frame, force)
	}

	loop.Run(ctx, func(ev input.Event) {
		input.Apply(store, ev)
	}, repaint)

	logger.Debug("exiting terminal UI")

	return nil
}
