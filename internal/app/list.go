package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/apkextract/internal/android"
	"github.com/blackwell-systems/apkextract/internal/inventory"
	"github.com/blackwell-systems/apkextract/internal/output"
	"github.com/blackwell-systems/apkextract/internal/selection"
	"github.com/blackwell-systems/apkextract/internal/watcher"
)

var (
	listUser          bool
	listSystem        bool
	listUpdatedSystem bool
	listSort          string
	listDesc          bool
	listNoFavorites   bool
	listQuery         string
	listInstaller     string
	listCategory      string
	listFilters       []string
	listSizes         bool
	listFollow        bool

	listCmd = &cobra.Command{
		Use:   "list",
		Short: "List installed applications",
		Long: `List the applications installed on the device.

The type selection, filters and sort order come from the saved preferences
(see 'apkextract prefs list'). Flags override them for one run without
changing the preferences.

Types:
  • user: apps installed by the user
  • updated-system: system apps with an installed update
  • system: other system apps, listed only with --updated-system`,
		Example: `  # Default view from preferences
  apkextract list

  # Everything, most recently updated first
  apkextract list --user --updated-system --system --sort updated --desc

  # Apps from one store that have a launcher entry
  apkextract list --installer com.android.vending --filter launcher

  # Search by label or package name, with archive sizes
  apkextract list --query maps --sizes

  # Keep the list on screen and redraw it as apps change
  apkextract list --follow`,
		Args: cobra.NoArgs,
		RunE: runList,
	}
)

// sortKeys maps --sort values to selection sort keys.
var sortKeys = map[string]int{
	"name":      selection.SortName,
	"package":   selection.SortPackageName,
	"installed": selection.SortInstallTime,
	"updated":   selection.SortUpdateTime,
}

func init() {
	listCmd.Flags().BoolVar(&listUser, "user", false, "include user apps")
	listCmd.Flags().BoolVar(&listSystem, "system", false, "include system apps (needs --updated-system)")
	listCmd.Flags().BoolVar(&listUpdatedSystem, "updated-system", false, "include updated system apps")
	listCmd.Flags().StringVar(&listSort, "sort", "", "sort by: name, package, installed, updated")
	listCmd.Flags().BoolVar(&listDesc, "desc", false, "sort descending")
	listCmd.Flags().BoolVar(&listNoFavorites, "no-favorites-first", false, "do not list favorites first")
	listCmd.Flags().StringVarP(&listQuery, "query", "q", "", "only apps whose label or package contains this text")
	listCmd.Flags().StringVar(&listInstaller, "installer", "", "only apps installed by this package")
	listCmd.Flags().StringVar(&listCategory, "category", "", "only apps in this category")
	listCmd.Flags().StringSliceVar(&listFilters, "filter", nil, "other filters: launcher, no_launcher, enabled, disabled")
	listCmd.Flags().BoolVar(&listSizes, "sizes", false, "query archive sizes (slower)")
	listCmd.Flags().BoolVarP(&listFollow, "follow", "f", false, "redraw the list as apps are installed, updated or removed")
}

// applyListFlags overrides opts with the flags the user set.
func applyListFlags(cmd *cobra.Command, opts *selection.Options) error {
	flags := cmd.Flags()

	if flags.Changed("user") || flags.Changed("system") || flags.Changed("updated-system") {
		opts.Types = selection.Types{
			User:          listUser,
			System:        listSystem,
			UpdatedSystem: listUpdatedSystem,
		}
	}
	if listSort != "" {
		key, ok := sortKeys[strings.ToLower(listSort)]
		if !ok {
			return fmt.Errorf("invalid --sort %q (valid: name, package, installed, updated)", listSort)
		}
		opts.Sort.Key = key
	}
	if flags.Changed("desc") {
		opts.Sort.Ascending = !listDesc
	}
	if flags.Changed("no-favorites-first") {
		opts.Sort.FavoritesFirst = !listNoFavorites
	}
	if flags.Changed("installer") {
		opts.Filters.Installer = optional(listInstaller)
	}
	if flags.Changed("category") {
		opts.Filters.Category = optional(listCategory)
	}
	if flags.Changed("filter") {
		for _, f := range listFilters {
			switch f {
			case selection.OtherLauncher, selection.OtherNoLauncher, selection.OtherEnabled, selection.OtherDisabled:
			default:
				return fmt.Errorf("invalid --filter %q (valid: launcher, no_launcher, enabled, disabled)", f)
			}
		}
		opts.Filters.Others = listFilters
	}
	return nil
}

// optional maps "" to no restriction.
func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func runList(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	opts := selection.OptionsFrom(s.prefs)
	if err := applyListFlags(cmd, &opts); err != nil {
		return err
	}

	ctx := cmd.Context()
	spinner := output.NewSpinner("Reading installed applications")
	spinner.Start()
	inv, err := s.inventory(ctx)
	spinner.Stop()
	if err != nil {
		return err
	}

	if listFollow {
		return followList(cmd, s, inv)
	}

	pkgs := selection.Compute(inv.Snapshot(), opts, listQuery)
	if listSizes {
		pkgs = inv.WithSizes(ctx, pkgs)
	}
	printList(pkgs)
	return nil
}

func printList(pkgs []*android.Package) {
	fmt.Print(output.RenderPackageTable(pkgs))
	fmt.Println()
	fmt.Print(output.RenderPackageSummary(pkgs))
}

// followList redraws the list each time the view changes. Package events
// come from the poller; preference changes made by this process also
// reach the view.
func followList(cmd *cobra.Command, s *session, inv *inventory.Inventory) error {
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	w, err := watcher.New(s.client, s.cfg.Watch.Interval, s.log)
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := w.Start(ctx); err != nil {
		return err
	}
	defer w.Stop()
	go watcher.Forward(ctx, w.Events(), inv, s.log)

	p := selection.NewPipeline(s.cfg.Search.Debounce)
	defer p.Close()
	p.SetOverride(func(o *selection.Options) {
		// Flags were validated before following started.
		_ = applyListFlags(cmd, o)
	})
	updates, unsubscribe := p.Updates()
	defer unsubscribe()

	go p.Run(ctx, inv, s.prefs)
	if listQuery != "" {
		p.SetQuery(listQuery)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case pkgs, ok := <-updates:
			if !ok {
				return nil
			}
			if listSizes {
				pkgs = inv.WithSizes(ctx, pkgs)
			}
			fmt.Printf("── %s ──\n", time.Now().Format("15:04:05"))
			printList(pkgs)
			fmt.Println()
		}
	}
}
