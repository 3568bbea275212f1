// Package browser is the boundary to the live browser: tab lookups and page
// content requests answered by the capture adapter. Every call is best-effort.
package browser

import (
	"context"
	"errors"
)

var (
	// ErrTabNotFound means the tab no longer exists.
	ErrTabNotFound = errors.New("tab not found")
	// ErrUnavailable means no adapter is configured to answer lookups.
	ErrUnavailable = errors.New("browser adapter unavailable")
	// ErrNoContent means the adapter could not extract the page content.
	ErrNoContent = errors.New("page content unavailable")
)

type Tab struct {
	ID       int    `json:"id"`
	WindowID *int   `json:"windowId,omitempty"`
	URL      string `json:"url,omitempty"`
	Title    string `json:"title,omitempty"`
}

type Client interface {
	// Tab returns the current url/title/window of a tab.
	Tab(ctx context.Context, tabID int) (Tab, error)
	// PageContent asks the capture adapter in the tab for the page's text.
	PageContent(ctx context.Context, tabID int) (string, error)
}

// Offline answers every lookup with ErrUnavailable.
type Offline struct{}

func (Offline) Tab(context.Context, int) (Tab, error) {
	return Tab{}, ErrUnavailable
}

func (Offline) PageContent(context.Context, int) (string, error) {
	return "", ErrUnavailable
}
