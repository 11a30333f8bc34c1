package actions

import (
	"context"
	"errors"
	"fmt"

	"github.com/blackwell-systems/apkextract/internal/android"
	"github.com/blackwell-systems/apkextract/internal/docs"
	"github.com/blackwell-systems/apkextract/internal/export"
	"github.com/blackwell-systems/apkextract/internal/naming"
)

// Exporter is the part of the export engine the actions use.
type Exporter interface {
	ExportMany(ctx context.Context, items []*android.Package, tmpl naming.Template, dest docs.URI) export.Result
	ShareMany(ctx context.Context, items []*android.Package, tmpl naming.Template) ([]docs.URI, error)
}

// Device runs app-level commands on the device.
type Device interface {
	Launch(ctx context.Context, name string) error
	OpenSettings(ctx context.Context, name string) error
	Uninstall(ctx context.Context, name string) error
}

// Standard returns a dispatcher wired to the export engine and the device.
// Saving an icon needs the archive's resource table, which is not decoded,
// so SaveIcon has no handler.
func Standard(exp Exporter, dev Device) *Dispatcher {
	d := NewDispatcher()

	d.Register(Save, func(ctx context.Context, pkg *android.Package, p Params) error {
		if p.SaveDir == "" {
			return errors.New("no save directory configured")
		}
		res := exp.ExportMany(ctx, []*android.Package{pkg}, p.Template, p.SaveDir)
		if !res.OK() {
			return errors.New(res.Message)
		}
		p.notify("Saved %s", pkg.DisplayName())
		return nil
	})

	d.Register(Share, func(ctx context.Context, pkg *android.Package, p Params) error {
		item := pkg.Clone()
		item.Selected = true
		uris, err := exp.ShareMany(ctx, []*android.Package{item}, p.Template)
		if err != nil {
			return err
		}
		if len(uris) == 0 {
			return fmt.Errorf("failed to stage %s for sharing", pkg.DisplayName())
		}
		p.notify("%s", uris[0])
		return nil
	})

	d.Register(Settings, func(ctx context.Context, pkg *android.Package, p Params) error {
		return dev.OpenSettings(ctx, pkg.Name)
	})

	d.Register(Open, func(ctx context.Context, pkg *android.Package, p Params) error {
		return dev.Launch(ctx, pkg.Name)
	})

	d.Register(Uninstall, func(ctx context.Context, pkg *android.Package, p Params) error {
		if err := dev.Uninstall(ctx, pkg.Name); err != nil {
			return err
		}
		p.notify("Uninstalled %s", pkg.DisplayName())
		return nil
	})

	return d
}
