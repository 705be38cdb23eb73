package bridge

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"rokubridge/internal/device"
	"rokubridge/internal/ecp"
)

// Action names exposed to the host
const (
	ActionSendText      = "sendText"
	ActionSendKeypress  = "sendKeypress"
	ActionLaunchApp     = "launchApp"
	ActionTuneToChannel = "tuneToChannel"
)

type actionKind int

const (
	kindSendText actionKind = iota
	kindSendKeypress
	kindLaunchApp
	kindTuneToChannel
	numActionKinds
)

var actionKindNames = [numActionKinds]string{
	kindSendText:      ActionSendText,
	kindSendKeypress:  ActionSendKeypress,
	kindLaunchApp:     ActionLaunchApp,
	kindTuneToChannel: ActionTuneToChannel,
}

func (k actionKind) String() string {
	if k < 0 || k >= numActionKinds {
		return fmt.Sprintf("actionKind(%d)", int(k))
	}
	return actionKindNames[k]
}

func parseActionKind(name string) (actionKind, bool) {
	for kind, kindName := range actionKindNames {
		if kindName == name {
			return actionKind(kind), true
		}
	}
	return 0, false
}

// actionHandler validates input and then issues exactly one remote call
type actionHandler func(ctx context.Context, e *Entity, input string) error

var actionHandlers = [numActionKinds]actionHandler{
	kindSendText:      handleSendText,
	kindSendKeypress:  handleSendKeypress,
	kindLaunchApp:     handleLaunchApp,
	kindTuneToChannel: handleTuneToChannel,
}

func handleSendText(ctx context.Context, e *Entity, input string) error {
	return e.remote.Text(ctx, input)
}

func handleSendKeypress(ctx context.Context, e *Entity, input string) error {
	if !e.hasKey(input) {
		return fmt.Errorf("%w: %q", ErrUnknownKey, input)
	}
	return e.remote.Keypress(ctx, ecp.Key(input))
}

func handleLaunchApp(ctx context.Context, e *Entity, input string) error {
	app, ok := e.lookupApp(input)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownApp, input)
	}
	return e.remote.Launch(ctx, app.ID)
}

func handleTuneToChannel(ctx context.Context, e *Entity, input string) error {
	return e.remote.TuneChannel(ctx, input)
}

// executor drives action invocations through pending to a terminal status
type executor struct {
	host   device.Host
	now    func() time.Time
	logger zerolog.Logger
}

func newExecutor(host device.Host, log zerolog.Logger) *executor {
	return &executor{
		host:   host,
		now:    time.Now,
		logger: log,
	}
}

// perform notifies pending, runs the action and notifies exactly one
// terminal status, which it also returns
func (x *executor) perform(ctx context.Context, e *Entity, name, input string) *device.Action {
	action := &device.Action{
		ID:            uuid.New().String(),
		DeviceID:      e.id,
		Name:          name,
		Input:         input,
		Status:        device.ActionPending,
		TimeRequested: x.now(),
	}
	x.host.NotifyActionStatus(e.id, *action)

	err := x.dispatch(ctx, e, name, input)

	completed := x.now()
	action.TimeCompleted = &completed
	if err != nil {
		action.Status = device.ActionFailed
		action.Error = err.Error()
		x.logger.Warn().
			Str("action", name).
			Str("action_id", action.ID).
			Err(err).
			Msg("Action failed")
	} else {
		action.Status = device.ActionSucceeded
		x.logger.Debug().
			Str("action", name).
			Str("action_id", action.ID).
			Msg("Action succeeded")
	}

	x.host.NotifyActionStatus(e.id, *action)
	return action
}

func (x *executor) dispatch(ctx context.Context, e *Entity, name, input string) error {
	kind, ok := parseActionKind(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownAction, name)
	}
	if !e.exposes(name) {
		return fmt.Errorf("%w: %s", ErrActionUnavailable, kind)
	}
	return actionHandlers[kind](ctx, e, input)
}
