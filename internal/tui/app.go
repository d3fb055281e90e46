package tui

import (
	"context"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/tgfilter/internal/api"
	"github.com/matheus3301/tgfilter/internal/supervise"
	"github.com/matheus3301/tgfilter/internal/tui/keys"
	"github.com/matheus3301/tgfilter/internal/tui/model"
	"github.com/matheus3301/tgfilter/internal/tui/views"
	"github.com/rivo/tview"
)

const (
	pageStalled = "stalled"
	pageFilters = "filters"
	pageEvents  = "events"
	pageHelp    = "help"

	refreshEvery = 3 * time.Second
	flashFor     = 5 * time.Second
)

// App is the dashboard shell.
type App struct {
	app       *tview.Application
	pages     *tview.Pages
	vm        *model.ViewModel
	registry  *keys.Registry
	statusBar *views.StatusBar
	stalled   *views.StalledTable
	filters   *views.FilterTable
	events    *views.EventLog
	help      *views.HelpView
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewApp creates the dashboard for the named instance.
func NewApp(d model.Daemon, instanceName string) *App {
	ctx, cancel := context.WithCancel(context.Background())

	a := &App{
		app:       tview.NewApplication(),
		pages:     tview.NewPages(),
		vm:        model.NewViewModel(d),
		registry:  keys.NewRegistry(),
		statusBar: views.NewStatusBar(),
		stalled:   views.NewStalledTable(),
		filters:   views.NewFilterTable(),
		events:    views.NewEventLog(),
		help:      views.NewHelpView(),
		ctx:       ctx,
		cancel:    cancel,
	}

	a.statusBar.SetInstance(instanceName)
	a.setupBindings()
	a.setupLayout()

	return a
}

func (a *App) setupBindings() {
	a.registry.AddGlobal(&keys.Action{
		Key: tcell.KeyRune, Rune: '1',
		Description: "1:stalled", Visible: true,
		Handler: func() { a.show(pageStalled) },
	})
	a.registry.AddGlobal(&keys.Action{
		Key: tcell.KeyRune, Rune: '2',
		Description: "2:filters", Visible: true,
		Handler: func() { a.show(pageFilters) },
	})
	a.registry.AddGlobal(&keys.Action{
		Key: tcell.KeyRune, Rune: '3',
		Description: "3:events", Visible: true,
		Handler: func() { a.show(pageEvents) },
	})
	a.registry.AddGlobal(&keys.Action{
		Key: tcell.KeyRune, Rune: 'r',
		Description: "r:refresh", Visible: true,
		Handler: func() { go a.refresh() },
	})
	a.registry.AddGlobal(&keys.Action{
		Key: tcell.KeyRune, Rune: '?',
		Description: "?:help", Visible: true,
		Handler: func() { a.show(pageHelp) },
	})
	a.registry.AddGlobal(&keys.Action{
		Key: tcell.KeyRune, Rune: 'q',
		Description: "q:quit", Visible: true,
		Handler: a.Stop,
	})
	a.registry.AddGlobal(&keys.Action{
		Key:     tcell.KeyEscape,
		Handler: func() { a.show(pageStalled) },
	})
	a.registry.AddPage(pageFilters, &keys.Action{
		Key: tcell.KeyRune, Rune: 'd',
		Description: "d:disable", Visible: true,
		Handler: a.disableSelected,
	})
}

func (a *App) setupLayout() {
	a.pages.AddPage(pageStalled, a.stalled, true, true)
	a.pages.AddPage(pageFilters, a.filters, true, false)
	a.pages.AddPage(pageEvents, a.events, true, false)
	a.pages.AddPage(pageHelp, a.help, true, false)

	root := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.statusBar, 1, 0, false)

	a.app.SetRoot(root, true)
	a.statusBar.SetHints(a.registry.Hints(pageStalled))

	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		page, _ := a.pages.GetFrontPage()
		if a.registry.HandleEvent(page, event) {
			return nil
		}
		return event
	})
}

// show must run on the UI goroutine.
func (a *App) show(page string) {
	a.pages.SwitchToPage(page)
	if _, p := a.pages.GetFrontPage(); p != nil {
		a.app.SetFocus(p)
	}
	a.statusBar.SetHints(a.registry.Hints(page))
}

func (a *App) disableSelected() {
	f, ok := a.filters.Selected()
	if !ok {
		return
	}
	go func() {
		if err := a.vm.DisableFilter(a.ctx, f); err != nil {
			a.vm.Flash.Error("disable failed: "+err.Error(), flashFor)
		} else {
			a.vm.Flash.Info("filter disabled: "+f.Pattern, flashFor)
		}
		a.redraw()
	}()
}

func (a *App) refresh() {
	if err := a.vm.Refresh(a.ctx); err != nil && a.ctx.Err() == nil {
		a.vm.Flash.Error("refresh failed: "+err.Error(), flashFor)
	}
	a.redraw()
}

// redraw pushes the view model into the views.
func (a *App) redraw() {
	a.app.QueueUpdateDraw(func() {
		now := time.Now()
		a.statusBar.SetStatus(a.vm.Status())
		a.stalled.Update(a.vm.Stalled(), now)
		a.filters.Update(a.vm.Filters(), now)
		a.statusBar.SetFlash(a.vm.Flash.Get())
	})
}

func (a *App) watchEvents(ctx context.Context) error {
	return a.vm.Watch(ctx, func(_ api.Event) {
		a.app.QueueUpdateDraw(func() {
			a.events.Update(a.vm.Events())
		})
	})
}

// Run starts background loading and blocks until the dashboard exits.
func (a *App) Run() error {
	go func() {
		a.refresh()
		ticker := time.NewTicker(refreshEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				a.refresh()
			case <-a.ctx.Done():
				return
			}
		}
	}()

	// The stream reconnects with backoff while the daemon restarts.
	go func() {
		_ = supervise.Loop(a.ctx, "events", nil, a.watchEvents,
			supervise.WithBackoff(time.Second, 10*time.Second),
			supervise.OnRestart(func(_ int, err error) {
				a.vm.Flash.Error("event stream lost: "+err.Error(), flashFor)
			}),
		)
	}()

	return a.app.Run()
}

// Stop shuts the dashboard down.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}
