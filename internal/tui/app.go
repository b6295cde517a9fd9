// Package tui is the terminal client of a session daemon.
package tui

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/rentchat/internal/tui/client"
	"github.com/matheus3301/rentchat/internal/tui/keys"
	"github.com/matheus3301/rentchat/internal/tui/model"
	"github.com/matheus3301/rentchat/internal/tui/ui"
	"github.com/matheus3301/rentchat/internal/tui/views"
	"github.com/rivo/tview"
)

// Page names.
const (
	pageConversations = "conversations"
	pageThread        = "thread"
	pageSearch        = "search"
	pageDetails       = "details"
	pagePresence      = "presence"
	pageHelp          = "help"
)

const keystrokeInterval = time.Second

// App is the main TUI application shell.
type App struct {
	app      *tview.Application
	theme    *ui.Theme
	root     *tview.Flex
	pages    *ui.Pages
	header   *ui.Header
	crumbs   *ui.Crumbs
	flash    *ui.FlashModel
	flashBar *ui.FlashBar
	prompt   *ui.Prompt
	vm       *model.ViewModel
	registry *keys.Registry

	list     *views.ConversationList
	thread   *views.MessageThread
	search   *views.SearchView
	details  *views.ConversationInfo
	presence *views.PresenceView
	help     *views.HelpView

	components    map[string]ui.Component
	sessionName   string
	lastKeystroke time.Time
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewApp creates the TUI application.
func NewApp(c *client.Client, sessionName string) *App {
	ctx, cancel := context.WithCancel(context.Background())
	theme := ui.DefaultTheme()

	a := &App{
		app:         tview.NewApplication(),
		theme:       theme,
		pages:       ui.NewPages(),
		header:      ui.NewHeader(theme),
		crumbs:      ui.NewCrumbs(theme),
		flash:       ui.NewFlashModel(),
		flashBar:    ui.NewFlashBar(theme),
		prompt:      ui.NewPrompt(theme),
		vm:          model.NewViewModel(c.Session, c.Chat),
		registry:    keys.NewRegistry(),
		list:        views.NewConversationList(theme),
		thread:      views.NewMessageThread(theme),
		search:      views.NewSearchView(theme),
		details:     views.NewConversationInfo(theme),
		presence:    views.NewPresenceView(theme),
		help:        views.NewHelpView(theme),
		sessionName: sessionName,
		ctx:         ctx,
		cancel:      cancel,
	}
	a.components = make(map[string]ui.Component)
	for _, c := range []ui.Component{a.list, a.thread, a.search, a.details, a.presence, a.help} {
		a.components[c.Name()] = c
	}

	a.setupBindings()
	a.setupCallbacks()
	a.setupLayout()
	return a
}

func (a *App) setupBindings() {
	key := func(r rune, desc string, visible bool, fn func()) *keys.Action {
		return &keys.Action{Key: tcell.KeyRune, Rune: r, Description: desc, Visible: visible, Handler: fn}
	}

	a.registry.AddGlobal("back", &keys.Action{Key: tcell.KeyEscape, Label: "Esc", Description: "Back", Visible: true, Handler: a.back})
	a.registry.AddGlobal("command", key(':', "Command", true, func() { a.showPrompt(ui.PromptCommand) }))
	a.registry.AddGlobal("help", key('?', "Help", true, func() { a.push(pageHelp) }))
	a.registry.AddGlobal("quit", key('q', "Quit", true, a.Stop))
	a.registry.AddGlobal("dismiss", &keys.Action{
		Key: tcell.KeyCtrlL, Label: "Ctrl-L", Description: "Dismiss alert",
		Handler: func() {
			a.flash.Dismiss()
			a.flashBar.Update(nil)
		},
	})

	a.registry.AddView(pageConversations, "open", &keys.Action{Label: "Enter", Description: "Open", Visible: true})
	a.registry.AddView(pageConversations, "filter", key('/', "Filter", true, func() { a.showPrompt(ui.PromptFilter) }))
	a.registry.AddView(pageConversations, "search", key('s', "Search", true, func() { a.showSearch("") }))
	a.registry.AddView(pageConversations, "presence", key('p', "Presence", true, a.showPresence))
	a.registry.AddView(pageConversations, "jump", &keys.Action{Label: "1-9", Description: "Jump", Visible: true, Numeric: true})

	a.registry.AddView(pageThread, "compose", key('i', "Compose", true, func() { a.app.SetFocus(a.thread.Composer()) }))
	a.registry.AddView(pageThread, "retry", key('r', "Retry failed", true, func() { a.failedAction("retry", a.vm.RetryLastFailed) }))
	a.registry.AddView(pageThread, "discard", key('x', "Discard failed", true, func() { a.failedAction("discard", a.vm.DiscardLastFailed) }))
	a.registry.AddView(pageThread, "details", key('d', "Details", true, a.showDetails))
	a.registry.AddView(pageThread, "search", key('/', "Search here", true, func() { a.showSearch("") }))

	a.registry.AddView(pageSearch, "run", &keys.Action{Label: "Enter", Description: "Search/Open", Visible: true})
	a.registry.AddView(pageSearch, "scope", &keys.Action{Label: "Tab", Description: "Scope", Visible: true})
}

func (a *App) setupCallbacks() {
	a.list.SetSelectedFunc(func(row, _ int) {
		if conv := a.list.ConversationByIndex(row); conv != "" {
			a.openConversation(conv)
		}
	})

	a.thread.SetOnSend(func(text string) {
		go func() {
			if _, err := a.vm.Send(a.ctx, text, false); err != nil {
				a.flash.Err(fmt.Errorf("send failed: %w", err))
			}
		}()
	})
	a.thread.SetOnType(func() {
		if time.Since(a.lastKeystroke) < keystrokeInterval {
			return
		}
		a.lastKeystroke = time.Now()
		go func() { _ = a.vm.Keystroke(a.ctx) }()
	})

	a.search.SetOnQuery(func(query, conv string) {
		go a.runSearch(query, conv)
	})
	a.search.Results().SetSelectedFunc(func(_, _ int) {
		if conv, _ := a.search.SelectedResult(); conv != "" {
			a.openConversation(conv)
		}
	})

	a.prompt.SetOnSubmit(func(mode ui.PromptMode, text string) {
		a.hidePrompt()
		switch mode {
		case ui.PromptFilter:
			a.list.SetFilter(text)
		case ui.PromptCommand:
			a.runCommand(ParseCommand(text))
		}
	})
	a.prompt.SetOnCancel(a.hidePrompt)
	a.prompt.SetCompletions(CompleteCommand)

	a.pages.SetOnChange(a.updateChrome)
}

// updateChrome redraws the breadcrumbs and the menu for the page stack.
func (a *App) updateChrome(stack []string) {
	titles := make([]string, len(stack))
	for i, p := range stack {
		titles[i] = a.components[p].Title()
	}
	a.crumbs.Update(titles)
	if len(stack) > 0 {
		a.header.Menu.Update(a.registry.Hints(stack[len(stack)-1]))
	}
}

func (a *App) setupLayout() {
	for name, c := range a.components {
		a.pages.AddPage(name, c, true, false)
	}

	a.root = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.header, 7, 0, false).
		AddItem(a.prompt, 0, 0, false).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.crumbs, 1, 0, false).
		AddItem(a.flashBar, 1, 0, false)
	a.app.SetRoot(a.root, true)
	a.pages.Reset(pageConversations)

	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		current := a.pages.Current()

		// Inputs get every key; Esc leaves the composer or the page.
		if input, ok := a.app.GetFocus().(*tview.InputField); ok {
			if event.Key() != tcell.KeyEscape || input == a.prompt.InputField {
				return event
			}
			if input == a.thread.Composer() {
				a.app.SetFocus(a.thread.Messages())
			} else {
				a.back()
			}
			return nil
		}

		if current == pageConversations && event.Key() == tcell.KeyRune && event.Rune() >= '1' && event.Rune() <= '9' {
			n, _ := strconv.Atoi(string(event.Rune()))
			if conv := a.list.ConversationByIndex(n); conv != "" {
				a.openConversation(conv)
			}
			return nil
		}

		if a.registry.HandleEvent(current, event) {
			return nil
		}
		return event
	})
}

func (a *App) push(page string) {
	if a.pages.Current() == page {
		return
	}
	a.pages.Push(page)
	a.app.SetFocus(a.components[page].Focus())
}

// back pops one page. Leaving the thread leaves the conversation too.
func (a *App) back() {
	current := a.pages.Current()
	if a.pages.Depth() <= 1 {
		a.list.ClearFilter()
		return
	}
	a.pages.Pop()
	if current == pageThread {
		go func() { _ = a.vm.Close(a.ctx) }()
	}
	a.app.SetFocus(a.components[a.pages.Current()].Focus())
}

func (a *App) showPrompt(mode ui.PromptMode) {
	a.prompt.Activate(mode)
	a.root.ResizeItem(a.prompt, 3, 0)
	a.app.SetFocus(a.prompt)
}

func (a *App) hidePrompt() {
	a.root.ResizeItem(a.prompt, 0, 0)
	a.app.SetFocus(a.components[a.pages.Current()].Focus())
}

func (a *App) runCommand(cmd Command) {
	switch cmd.Name {
	case "quit":
		a.Stop()
	case "help":
		a.push(pageHelp)
	case "open":
		if cmd.Args == "" {
			a.flash.Warn("usage: :open <conversation id>")
			return
		}
		a.openConversation(cmd.Args)
	case "search":
		a.showSearch(cmd.Args)
	case "presence":
		a.showPresence()
	case "fallback":
		if a.vm.Active() == "" || cmd.Args == "" {
			a.flash.Warn("usage: :fallback <text> inside a conversation")
			return
		}
		go func() {
			if _, err := a.vm.Send(a.ctx, cmd.Args, true); err != nil {
				a.flash.Err(fmt.Errorf("fallback send failed: %w", err))
				return
			}
			a.flash.Info("sent through the REST API")
		}()
	case "read":
		go func() {
			n, err := a.vm.MarkRead(a.ctx)
			if err != nil {
				a.flash.Err(err)
				return
			}
			a.flash.Info(fmt.Sprintf("%d marked read", n))
		}()
	default:
		a.flash.Warn("unknown command: " + cmd.Name)
	}
}

func (a *App) openConversation(conv string) {
	go func() {
		if err := a.vm.Open(a.ctx, conv); err != nil {
			a.flash.Err(fmt.Errorf("open failed: %w", err))
			return
		}
		c, ok := a.vm.Conversation(conv)
		if !ok {
			c.ID = conv
		}
		a.app.QueueUpdateDraw(func() {
			a.thread.SetConversation(c)
			a.thread.Update(a.vm.Messages())
			a.thread.SetTyping(a.vm.Typing())
			a.list.Update(a.vm.Conversations())
			a.pages.PopTo(pageConversations)
			a.push(pageThread)
		})
	}()
}

func (a *App) showSearch(query string) {
	a.search.SetConversation(a.vm.Active())
	a.search.SetQuery(query)
	a.push(pageSearch)
	if query != "" {
		go a.runSearch(query, a.search.Scope())
	}
}

func (a *App) runSearch(query, conv string) {
	results, err := a.vm.Search(a.ctx, query, conv)
	if err != nil {
		a.flash.Err(fmt.Errorf("search failed: %w", err))
		return
	}
	a.app.QueueUpdateDraw(func() {
		a.search.Update(results)
		a.app.SetFocus(a.search.Results())
	})
}

func (a *App) showPresence() {
	a.push(pagePresence)
	go func() {
		if err := a.vm.LoadPresence(a.ctx); err != nil {
			a.flash.Err(err)
			return
		}
		a.app.QueueUpdateDraw(func() { a.presence.Update(a.vm.Presence()) })
	}()
}

func (a *App) showDetails() {
	conv := a.vm.Active()
	c, ok := a.vm.Conversation(conv)
	if !ok {
		c.ID = conv
	}
	a.details.Update(c, a.vm.Typing())
	a.push(pageDetails)
}

func (a *App) failedAction(verb string, fn func(context.Context) (bool, error)) {
	go func() {
		found, err := fn(a.ctx)
		switch {
		case err != nil:
			a.flash.Err(fmt.Errorf("%s failed: %w", verb, err))
		case !found:
			a.flash.Info("no failed message here")
		}
	}()
}

// Run starts the TUI application.
func (a *App) Run() error {
	go func() {
		if err := a.vm.LoadStatus(a.ctx); err != nil {
			a.flash.Err(err)
		}
		if err := a.vm.LoadConversations(a.ctx); err != nil {
			a.flash.Err(err)
		}
		a.app.QueueUpdateDraw(func() {
			a.list.Update(a.vm.Conversations())
			a.renderStatus()
		})
		a.startRefreshLoop()
		go a.watchFlash()
		a.watchEvents()
	}()

	return a.app.Run()
}

// watchEvents folds the daemon's event stream into the view, reopening the
// stream with backoff when it drops.
func (a *App) watchEvents() {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 0
	bo.MaxInterval = 30 * time.Second
	for {
		started := time.Now()
		err := a.vm.Watch(a.ctx, a.onChange)
		if a.ctx.Err() != nil {
			return
		}
		if time.Since(started) > time.Minute {
			bo.Reset()
		}
		a.flash.Warn(fmt.Sprintf("event stream lost: %v", err))
		select {
		case <-time.After(bo.NextBackOff()):
		case <-a.ctx.Done():
			return
		}
	}
}

func (a *App) onChange(c model.Change) {
	if c.Alert != nil {
		a.flash.Alert(c.Alert.Message, c.Alert.Severity, c.Alert.Sticky)
	}
	if c.Resync {
		go a.resync()
	}
	a.app.QueueUpdateDraw(func() {
		if c.Conversations {
			a.list.Update(a.vm.Conversations())
		}
		if c.Messages {
			a.thread.Update(a.vm.Messages())
		}
		if c.Typing {
			a.thread.SetTyping(a.vm.Typing())
		}
		if c.Presence && a.pages.Current() == pagePresence {
			a.presence.Update(a.vm.Presence())
		}
		if c.Status {
			a.renderStatus()
		}
	})
}

func (a *App) resync() {
	if err := a.vm.Resync(a.ctx); err != nil {
		a.flash.Err(fmt.Errorf("resync failed: %w", err))
		return
	}
	a.app.QueueUpdateDraw(func() {
		a.list.Update(a.vm.Conversations())
		a.thread.Update(a.vm.Messages())
		a.renderStatus()
	})
}

func (a *App) watchFlash() {
	for {
		select {
		case msg := <-a.flash.Watch():
			a.app.QueueUpdateDraw(func() { a.flashBar.Update(&msg) })
		case <-a.ctx.Done():
			return
		}
	}
}

func (a *App) renderStatus() {
	s := a.vm.Status()
	if s == nil {
		a.header.Info.Update(&ui.SessionData{Session: a.sessionName, Messaging: "UNKNOWN"})
		return
	}
	a.header.Info.Update(&ui.SessionData{
		Session:       s.Session,
		UserID:        s.UserID,
		Messaging:     s.Messaging.State,
		Presence:      s.Presence.State,
		Attempts:      s.Messaging.Attempts,
		Conversations: s.ConversationCount,
		Messages:      s.MessageCount,
		Pending:       s.PendingSends,
		Uptime:        time.Duration(s.UptimeMs) * time.Millisecond,
	})
}

func (a *App) startRefreshLoop() {
	ticker := time.NewTicker(5 * time.Second)
	go func() {
		for {
			select {
			case <-ticker.C:
				_ = a.vm.LoadStatus(a.ctx)
				_ = a.vm.LoadConversations(a.ctx)
				a.app.QueueUpdateDraw(func() {
					a.list.Update(a.vm.Conversations())
					a.renderStatus()
					a.flashBar.Update(a.flash.Current())
				})
			case <-a.ctx.Done():
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop gracefully shuts down the TUI, leaving any open conversation.
func (a *App) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = a.vm.Close(ctx)
	a.cancel()
	a.app.Stop()
}
