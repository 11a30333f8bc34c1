// Package actions defines the per-application actions a user can trigger
// (from a swipe or a menu) and dispatches them to their implementations.
package actions

import (
	"context"
	"errors"
	"fmt"

	"github.com/blackwell-systems/apkextract/internal/android"
	"github.com/blackwell-systems/apkextract/internal/docs"
	"github.com/blackwell-systems/apkextract/internal/naming"
)

// Action identifies an application action. Its value is the persisted
// preference value.
type Action string

const (
	Save      Action = "save_apk"
	Share     Action = "share_apk"
	SaveIcon  Action = "save_icon"
	Settings  Action = "open_settings"
	Open      Action = "open_app"
	Uninstall Action = "uninstall_app"
)

// All lists every action in menu order.
var All = []Action{Save, Share, SaveIcon, Settings, Open, Uninstall}

var (
	ErrUnknownAction = errors.New("unknown action")
	ErrUnsupported   = errors.New("action not supported for this app")
	ErrNoHandler     = errors.New("no handler for action")
)

// FromPreference maps a stored swipe preference to its action.
func FromPreference(v string) (Action, error) {
	for _, a := range All {
		if string(a) == v {
			return a, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAction, v)
}

// Supported reports whether a can run for pkg. Opening needs a launcher
// entry; uninstalling needs a user app or an updated system app.
func Supported(pkg *android.Package, a Action) bool {
	switch a {
	case Open:
		return pkg.HasLauncher
	case Uninstall:
		return !pkg.IsSystem() || pkg.UpdatedAt.After(pkg.InstalledAt)
	default:
		return true
	}
}

// Params carries what individual actions need. Unused fields are ignored.
type Params struct {
	SaveDir  docs.URI
	Template naming.Template
	Notify   func(msg string) // optional
}

func (p Params) notify(format string, args ...any) {
	if p.Notify != nil {
		p.Notify(fmt.Sprintf(format, args...))
	}
}

// Handler runs an action for one application.
type Handler func(ctx context.Context, pkg *android.Package, p Params) error

// Dispatcher maps actions to handlers.
type Dispatcher struct {
	handlers map[Action]Handler
}

// NewDispatcher creates an empty Dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[Action]Handler)}
}

// Register installs h for a, replacing any previous handler.
func (d *Dispatcher) Register(a Action, h Handler) {
	d.handlers[a] = h
}

// Handles reports whether a handler is registered for a.
func (d *Dispatcher) Handles(a Action) bool {
	_, ok := d.handlers[a]
	return ok
}

// Available returns the actions that can run for pkg, in menu order.
func (d *Dispatcher) Available(pkg *android.Package) []Action {
	var out []Action
	for _, a := range All {
		if d.Handles(a) && Supported(pkg, a) {
			out = append(out, a)
		}
	}
	return out
}

// Dispatch runs a for pkg.
func (d *Dispatcher) Dispatch(ctx context.Context, a Action, pkg *android.Package, p Params) error {
	h, ok := d.handlers[a]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoHandler, a)
	}
	if !Supported(pkg, a) {
		return fmt.Errorf("%w: %s on %s", ErrUnsupported, a, pkg.Name)
	}
	return h(ctx, pkg, p)
}
