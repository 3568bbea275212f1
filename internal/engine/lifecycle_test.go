package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vincentbai/browsetrace-core/internal/browser"
	"github.com/vincentbai/browsetrace-core/internal/models"
)

func navigate(e *testEngine, tabID int, url string) {
	e.OnTabUpdated(context.Background(), TabUpdate{TabID: tabID, WindowID: models.IntPtr(1), URL: url})
}

func pageLoads(e *testEngine) []models.InteractionEvent {
	return ofType(e.global.Snapshot(), models.TypePageLoad)
}

func TestPageLoadOncePerNormalizedTransition(t *testing.T) {
	e := newTestEngine(t, 50, nil)

	for _, url := range []string{
		"https://a.com/",
		"https://a.com/",
		"https://b.com/",
		"https://b.com/",
		"https://a.com/",
	} {
		navigate(e, 7, url)
	}

	loads := pageLoads(e)
	require.Len(t, loads, 3)
	assert.Equal(t, "https://a.com/", loads[0].URL)
	assert.Equal(t, "https://b.com/", loads[1].URL)
	assert.Equal(t, "https://a.com/", loads[2].URL)
}

func TestFragmentChangeIsNavigationOnlyOnWebmail(t *testing.T) {
	e := newTestEngine(t, 50, nil)

	navigate(e, 7, "https://a.com/")
	navigate(e, 7, "https://a.com/#x")
	assert.Len(t, pageLoads(e), 1)
	assert.Empty(t, e.sleeps, "ordinary hosts get no grace period")

	navigate(e, 8, "https://mail.google.com/mail/u/0/#inbox")
	navigate(e, 8, "https://mail.google.com/mail/u/0/#sent")
	assert.Len(t, ofType(e.TabEvents(8), models.TypePageLoad), 2)
	assert.Equal(t, []time.Duration{500 * time.Millisecond, 500 * time.Millisecond}, e.sleeps)
}

func TestIgnoredPagesRecordStateWithoutEvents(t *testing.T) {
	e := newTestEngine(t, 50, nil)

	navigate(e, 1, "chrome://newtab/")
	assert.Empty(t, pageLoads(e))

	navigate(e, 1, "https://a.com/")
	navigate(e, 1, "about:blank")
	navigate(e, 1, "https://a.com/")

	assert.Len(t, pageLoads(e), 2, "returning from an internal page is a new navigation")
}

func TestPageLoadUsesLiveTabAndReferrer(t *testing.T) {
	fb := newFakeBrowser()
	e := newTestEngine(t, 50, fb)

	fb.set(browser.Tab{ID: 4, WindowID: models.IntPtr(9), URL: "https://a.com/start?session=1", Title: "Start"})
	fb.content[4] = "# Start"
	navigate(e, 4, "https://a.com/start")

	fb.set(browser.Tab{ID: 4, WindowID: models.IntPtr(9), URL: "https://a.com/next", Title: "Next"})
	delete(fb.content, 4)
	navigate(e, 4, "https://a.com/next")

	loads := pageLoads(e)
	require.Len(t, loads, 2)

	assert.Equal(t, "Start", loads[0].Title)
	assert.Equal(t, "https://a.com/start?session=1", loads[0].URL)
	assert.Equal(t, 9, *loads[0].WindowID)
	assert.Equal(t, "# Start", loads[0].Payload["markdown"])
	assert.NotContains(t, loads[0].Payload, "referrer")

	assert.Equal(t, "Next", loads[1].Title)
	assert.Equal(t, "", loads[1].Payload["markdown"], "missing content never blocks the event")
	assert.Equal(t, "https://a.com/start?session=1", loads[1].Payload["referrer"])
}

func TestPageLoadFallsBackToValuesInHand(t *testing.T) {
	e := newTestEngine(t, 50, nil)

	e.OnTabUpdated(context.Background(), TabUpdate{TabID: 2, WindowID: models.IntPtr(3), URL: "https://a.com/", Title: "A"})

	loads := pageLoads(e)
	require.Len(t, loads, 1)
	assert.Equal(t, "https://a.com/", loads[0].URL)
	assert.Equal(t, "A", loads[0].Title)
	assert.Equal(t, 3, *loads[0].WindowID)
	assert.Len(t, e.store.events, 1, "synthesized events are persisted too")
}

func TestTitleOnlyUpdateEmitsNothing(t *testing.T) {
	e := newTestEngine(t, 50, nil)

	e.OnTabUpdated(context.Background(), TabUpdate{TabID: 2, Title: "Loading"})
	assert.Empty(t, pageLoads(e))
}

func TestTabRemoval(t *testing.T) {
	fb := newFakeBrowser()
	e := newTestEngine(t, 50, fb)
	ctx := context.Background()

	e.Ingest(models.InteractionEvent{ID: "c1", Type: models.TypeClick, Timestamp: 1, TabID: models.IntPtr(5), URL: "https://a.com/", Title: "A"}, models.Origin{})
	navigate(e, 5, "https://a.com/")
	require.True(t, e.nav.Tracked(5))

	// the browser has already forgotten the tab when the notification arrives
	fb.close(5)
	e.OnTabRemoved(ctx, 5, models.IntPtr(1))

	removals := ofType(e.global.Snapshot(), models.TypeTabRemoval)
	require.Len(t, removals, 1)
	assert.Equal(t, 5, *removals[0].TabID)
	assert.Equal(t, 1, *removals[0].WindowID)
	assert.Equal(t, "https://a.com/", removals[0].URL, "last known url survives the tab")
	assert.Equal(t, "A", removals[0].Title)

	assert.False(t, e.tabs.HasBuffer(5))
	assert.False(t, e.nav.Tracked(5))

	e.OnTabRemoved(ctx, 5, nil)
	assert.Len(t, ofType(e.global.Snapshot(), models.TypeTabRemoval), 1, "removal is idempotent")

	e.Ingest(click("c2", 2), models.Origin{TabID: models.IntPtr(5)})
	assert.Equal(t, []string{"c2"}, idsOf(e.TabEvents(5)), "a reused id starts with an empty buffer")

	navigate(e, 5, "https://a.com/")
	assert.Len(t, pageLoads(e), 2, "navigation state was cleared")
}

func TestTabRemovalOfUnknownTab(t *testing.T) {
	e := newTestEngine(t, 50, nil)

	e.OnTabRemoved(context.Background(), 11, nil)

	removals := ofType(e.global.Snapshot(), models.TypeTabRemoval)
	require.Len(t, removals, 1)
	assert.Empty(t, removals[0].URL)
	assert.Empty(t, removals[0].Title)
	assert.Nil(t, removals[0].WindowID)
	assert.False(t, e.tabs.HasBuffer(11))
}

func TestTabActivation(t *testing.T) {
	fb := newFakeBrowser()
	e := newTestEngine(t, 50, fb)
	ctx := context.Background()

	fb.set(browser.Tab{ID: 1, URL: "https://one.com/", Title: "One"})
	fb.set(browser.Tab{ID: 2, URL: "https://two.com/", Title: "Two"})

	e.OnTabActivated(ctx, 10, 1)
	e.OnTabActivated(ctx, 10, 1)
	e.OnTabActivated(ctx, 10, 2)
	e.OnTabActivated(ctx, 10, 3)

	switches := ofType(e.global.Snapshot(), models.TypeTabSwitch)
	require.Len(t, switches, 3, "re-activating the active tab is not a switch")

	first := switches[0]
	assert.Equal(t, 1, *first.TabID)
	assert.Equal(t, 10, *first.WindowID)
	assert.Equal(t, "One", first.Title)
	assert.Equal(t, map[string]any{"toTabId": 1, "toUrl": "https://one.com/"}, first.Payload)

	second := switches[1]
	assert.Equal(t, map[string]any{
		"fromTabId": 1, "fromUrl": "https://one.com/",
		"toTabId": 2, "toUrl": "https://two.com/",
	}, second.Payload)

	third := switches[2]
	assert.Equal(t, map[string]any{"fromTabId": 2, "fromUrl": "https://two.com/", "toTabId": 3}, third.Payload,
		"a failed lookup omits the url")
	assert.Empty(t, third.URL)

	active, ok := e.tabs.ActiveTab(10)
	require.True(t, ok)
	assert.Equal(t, 3, active)
}

func TestTabActivationPerWindow(t *testing.T) {
	e := newTestEngine(t, 50, nil)
	ctx := context.Background()

	e.OnTabActivated(ctx, 1, 100)
	e.OnTabActivated(ctx, 2, 200)

	for _, event := range ofType(e.global.Snapshot(), models.TypeTabSwitch) {
		assert.NotContains(t, event.Payload, "fromTabId")
	}
}

func TestRemovalDuringPageLoadLeavesNoTabState(t *testing.T) {
	e := newTestEngine(t, 50, nil)
	e.sleep = func(ctx context.Context, _ time.Duration) {
		e.OnTabRemoved(ctx, 8, nil)
	}

	navigate(e, 8, "https://mail.google.com/mail/u/0/#inbox")

	require.Len(t, pageLoads(e), 1, "the late page load is still recorded globally")
	assert.Len(t, e.store.events, 2)
	assert.False(t, e.tabs.HasBuffer(8))
	_, known := e.tabs.LastKnown(8)
	assert.False(t, known)

	e.Ingest(click("c1", 5), models.Origin{TabID: models.IntPtr(8)})
	assert.Equal(t, []string{"c1"}, idsOf(e.TabEvents(8)), "a reused id starts with an empty buffer")
}

// lookupHookBrowser knows no tabs and runs onLookup before answering.
type lookupHookBrowser struct {
	onLookup func(tabID int)
}

func (b *lookupHookBrowser) Tab(_ context.Context, tabID int) (browser.Tab, error) {
	if b.onLookup != nil {
		b.onLookup(tabID)
	}
	return browser.Tab{}, browser.ErrTabNotFound
}

func (b *lookupHookBrowser) PageContent(context.Context, int) (string, error) {
	return "", browser.ErrNoContent
}

func TestRemovalDuringActivationLeavesNoTabState(t *testing.T) {
	hook := &lookupHookBrowser{}
	e := newTestEngine(t, 50, hook)
	ctx := context.Background()

	// only the activated tab is looked up, so a single goroutine runs the hook
	removing := false
	hook.onLookup = func(tabID int) {
		if !removing {
			removing = true
			e.OnTabRemoved(ctx, tabID, nil)
		}
	}

	e.OnTabActivated(ctx, 1, 9)

	assert.Len(t, ofType(e.global.Snapshot(), models.TypeTabSwitch), 1)
	assert.Len(t, ofType(e.global.Snapshot(), models.TypeTabRemoval), 1)
	assert.False(t, e.tabs.HasBuffer(9))
	_, known := e.tabs.LastKnown(9)
	assert.False(t, known)
}
