// Package input implements the event loop (spec §4.F): keyboard, mouse and
// resize events are decoded via gdamore/tcell/v2, the terminal library named
// in the domain stack (ktop's manifest pulls in the same dependency for its
// own live dashboard). Full-frame recomposition is throttled independently
// of input polling.
package input

import (
	"context"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/all-smi/all-smi/pkg/snapshot"
	"github.com/all-smi/all-smi/pkg/types"
)

const (
	pollTimeout    = 50 * time.Millisecond
	frameThrottle  = 33 * time.Millisecond
)

// Action is one decoded user intent, independent of the tcell key that
// produced it.
type Action int

// Supported actions.
const (
	ActionNone Action = iota
	ActionToggleHelp
	ActionExit
	ActionPrevTab
	ActionNextTab
	ActionUp
	ActionDown
	ActionPageUp
	ActionPageDown
	ActionSortPID
	ActionSortMemory
	ActionSortCPU
	ActionSortGPUMem
	ActionToggleSortDir
	ActionTogglePerCoreCPU
	ActionMouseTabClick
	ActionMouseScrollUp
	ActionMouseScrollDown
)

// Event pairs a decoded Action with any positional data mouse events carry.
type Event struct {
	Action Action
	MouseX int
	MouseY int
}

// Loop owns the tcell screen and translates raw events into Actions,
// forcing a repaint on resize and the view transitions spec §4.F names.
type Loop struct {
	screen tcell.Screen
	store  *snapshot.Store

	lastFrame time.Time
}

// New initializes and starts a tcell screen.
func New(store *snapshot.Store) (*Loop, error) {
	screen, err := tcell.NewScreen()
	if err != nil {
		return nil, err
	}

	if err := screen.Init(); err != nil {
		return nil, err
	}

	screen.EnableMouse()

	return &Loop{screen: screen, store: store}, nil
}

// Screen exposes the underlying tcell.Screen for the renderer.
func (l *Loop) Screen() tcell.Screen { return l.screen }

// Close finalizes the terminal.
func (l *Loop) Close() { l.screen.Fini() }

// Run polls for input until ctx is cancelled, invoking onEvent for every
// decoded Event and onRepaint whenever a frame is due (either because
// frameThrottle elapsed or a forced repaint was requested).
func (l *Loop) Run(ctx context.Context, onEvent func(Event), onRepaint func(force bool)) {
	events := make(chan tcell.Event, 16)

	go func() {
		for {
			ev := l.screen.PollEvent()
			if ev == nil {
				return
			}

			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	ticker := time.NewTicker(pollTimeout)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case ev := <-events:
			action, force := l.decode(ev)
			if action != ActionNone {
				event := Event{Action: action}
				if m, ok := ev.(*tcell.EventMouse); ok {
					event.MouseX, event.MouseY = m.Position()
				}

				onEvent(event)
			}

			if force {
				onRepaint(true)
				l.lastFrame = time.Now()
			}

			if action == ActionExit {
				return
			}

		case <-ticker.C:
			if time.Since(l.lastFrame) >= frameThrottle {
				onRepaint(false)
				l.lastFrame = time.Now()
			}
		}
	}
}

// decode maps one tcell.Event to an Action and whether it forces a repaint
// (resize, help toggle, per-core toggle, tab switch — spec §4.F).
func (l *Loop) decode(ev tcell.Event) (Action, bool) {
	switch e := ev.(type) {
	case *tcell.EventResize:
		l.screen.Sync()

		return ActionNone, true

	case *tcell.EventKey:
		return decodeKey(e)

	case *tcell.EventMouse:
		return decodeMouse(e)
	}

	return ActionNone, false
}

func decodeKey(e *tcell.EventKey) (Action, bool) {
	switch e.Key() {
	case tcell.KeyF1:
		return ActionToggleHelp, true
	case tcell.KeyF10:
		return ActionExit, false
	case tcell.KeyEscape:
		return ActionExit, false
	case tcell.KeyLeft:
		return ActionPrevTab, true
	case tcell.KeyRight:
		return ActionNextTab, true
	case tcell.KeyUp:
		return ActionUp, false
	case tcell.KeyDown:
		return ActionDown, false
	case tcell.KeyPgUp:
		return ActionPageUp, false
	case tcell.KeyPgDn:
		return ActionPageDown, false
	case tcell.KeyTab:
		return ActionTogglePerCoreCPU, true
	case tcell.KeyRune:
		switch e.Rune() {
		case 'h':
			return ActionToggleHelp, true
		case 'q':
			return ActionExit, false
		case 'p':
			return ActionSortPID, false
		case 'm':
			return ActionSortMemory, false
		case 'c':
			return ActionSortCPU, false
		case 'g':
			return ActionSortGPUMem, false
		case 's':
			return ActionToggleSortDir, false
		}
	}

	return ActionNone, false
}

func decodeMouse(e *tcell.EventMouse) (Action, bool) {
	switch e.Buttons() {
	case tcell.WheelUp:
		return ActionMouseScrollUp, false
	case tcell.WheelDown:
		return ActionMouseScrollDown, false
	case tcell.Button1:
		return ActionMouseTabClick, true
	}

	return ActionNone, false
}

// Apply mutates the view state in response to a decoded Event (spec §4.F
// key table). Tab/sort changes are applied here so callers need not know
// the ViewState shape. Page up/down, mouse click, mouse scroll and exit
// events leave the view state unchanged.
func Apply(store *snapshot.Store, ev Event) {
	store.MutateView(func(v *types.ViewState) {
		switch ev.Action {
		case ActionToggleHelp:
			v.ShowHelp = !v.ShowHelp
		case ActionPrevTab:
			if v.CurrentTab > 0 {
				v.CurrentTab--
			}
		case ActionNextTab:
			if v.CurrentTab < len(v.Tabs)-1 {
				v.CurrentTab++
			}
		case ActionUp:
			if v.SelectedProcessIndex > 0 {
				v.SelectedProcessIndex--
			}
		case ActionDown:
			v.SelectedProcessIndex++
		case ActionSortPID:
			v.SortCriteria = types.SortPID
		case ActionSortMemory:
			v.SortCriteria = types.SortMemory
		case ActionSortCPU:
			v.SortCriteria = types.SortCPU
		case ActionSortGPUMem:
			v.SortCriteria = types.SortGPUMem
		case ActionToggleSortDir:
			if v.SortDirection == types.SortAsc {
				v.SortDirection = types.SortDesc
			} else {
				v.SortDirection = types.SortAsc
			}
		case ActionTogglePerCoreCPU:
			v.ShowPerCoreCPU = !v.ShowPerCoreCPU
		}
	})
}
