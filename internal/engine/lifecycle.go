package engine

import (
	"context"
	"time"

	"github.com/vincentbai/browsetrace-core/internal/browser"
	"github.com/vincentbai/browsetrace-core/internal/models"
	"github.com/vincentbai/browsetrace-core/internal/navigation"
	"golang.org/x/sync/errgroup"
)

// TabUpdate is a browser notification that a tab's url or title changed.
type TabUpdate struct {
	TabID    int    `json:"tabId"`
	WindowID *int   `json:"windowId,omitempty"`
	URL      string `json:"url,omitempty"`
	Title    string `json:"title,omitempty"`
}

// OnTabActivated records tabID as the active tab of windowID and emits a
// tab-switch event naming the tab that was active before, when known.
func (e *Engine) OnTabActivated(ctx context.Context, windowID, tabID int) {
	e.mu.Lock()
	e.tabs.Revive(tabID)
	previous, hadPrevious := e.tabs.Activate(windowID, tabID)
	e.mu.Unlock()

	if hadPrevious && previous == tabID {
		return
	}

	var current, prior browser.Tab
	var group errgroup.Group
	group.Go(func() error {
		current = e.resolveTab(ctx, tabID)
		return nil
	})
	if hadPrevious {
		group.Go(func() error {
			prior = e.resolveTab(ctx, previous)
			return nil
		})
	}
	_ = group.Wait()

	payload := map[string]any{"toTabId": tabID}
	if current.URL != "" {
		payload["toUrl"] = current.URL
	}
	if hadPrevious {
		payload["fromTabId"] = previous
		if prior.URL != "" {
			payload["fromUrl"] = prior.URL
		}
	}

	e.ingestSynthetic(e.newEvent(models.TypeTabSwitch, tabID, models.IntPtr(windowID), current.URL, current.Title, payload))
	e.logger.Debug("tab switch", "window", windowID, "from", previous, "to", tabID)
}

// OnTabRemoved emits a tab-removal event carrying the tab's last known url and
// title, then drops all state kept for the tab. Repeated removals are ignored.
func (e *Engine) OnTabRemoved(ctx context.Context, tabID int, windowID *int) {
	e.mu.Lock()
	first := e.tabs.MarkRemoved(tabID)
	e.mu.Unlock()
	if !first {
		return
	}

	tab := e.resolveTab(ctx, tabID)
	if windowID == nil {
		windowID = tab.WindowID
	}
	event := e.newEvent(models.TypeTabRemoval, tabID, windowID, tab.URL, tab.Title, nil)

	e.mu.Lock()
	e.pushLocked(event)
	e.tabs.Forget(tabID)
	e.nav.Forget(tabID)
	e.fields.ForgetTab(tabID)
	e.mu.Unlock()

	e.store.Persist(event)
	e.logger.Debug("tab removed", "tab", tabID)
}

// OnTabUpdated feeds a url observation to the navigation detector and emits a
// page-load event when it marks a new page.
func (e *Engine) OnTabUpdated(ctx context.Context, update TabUpdate) {
	tabID := update.TabID

	e.mu.Lock()
	e.tabs.Revive(tabID)
	e.tabs.Remember(browser.Tab{ID: tabID, WindowID: update.WindowID, URL: update.URL, Title: update.Title})
	changed := update.URL != "" && e.nav.Observe(tabID, update.URL)
	e.mu.Unlock()

	if !changed || navigation.Ignored(update.URL) {
		return
	}

	if navigation.NeedsGracePeriod(update.URL) {
		// let the single-page app settle its document title
		e.sleep(ctx, e.opts.GracePeriod)
	}

	tab := e.resolveTab(ctx, tabID)
	if tab.URL == "" {
		tab.URL = update.URL
	}
	if tab.Title == "" {
		tab.Title = update.Title
	}
	if tab.WindowID == nil {
		tab.WindowID = update.WindowID
	}
	content := e.pageContent(ctx, tabID)

	e.mu.Lock()
	referrer := e.nav.LastActual(tabID)
	e.mu.Unlock()

	payload := map[string]any{"markdown": content}
	if referrer != "" {
		payload["referrer"] = referrer
	}
	e.ingestSynthetic(e.newEvent(models.TypePageLoad, tabID, tab.WindowID, tab.URL, tab.Title, payload))

	e.mu.Lock()
	e.nav.SetActual(tabID, tab.URL)
	e.mu.Unlock()
	e.logger.Debug("page load", "tab", tabID, "url", tab.URL)
}

// resolveTab asks the browser for a tab and falls back to the last known
// values. Fields neither source knows stay empty.
func (e *Engine) resolveTab(ctx context.Context, tabID int) browser.Tab {
	lookupCtx, cancel := withTimeout(ctx, e.opts.LookupTimeout)
	defer cancel()

	live, err := e.browser.Tab(lookupCtx, tabID)

	e.mu.Lock()
	defer e.mu.Unlock()
	if err == nil {
		live.ID = tabID
		if !e.tabs.Removed(tabID) {
			e.tabs.Remember(live)
		}
		return live
	}

	e.logger.Debug("tab lookup failed", "tab", tabID, "err", err)
	known, _ := e.tabs.LastKnown(tabID)
	known.ID = tabID
	return known
}

func (e *Engine) pageContent(ctx context.Context, tabID int) string {
	contentCtx, cancel := withTimeout(ctx, e.opts.ContentTimeout)
	defer cancel()

	content, err := e.browser.PageContent(contentCtx, tabID)
	if err != nil {
		e.logger.Debug("page content unavailable", "tab", tabID, "err", err)
		return ""
	}
	return content
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
