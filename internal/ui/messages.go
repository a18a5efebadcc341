// Package ui provides the Bubble Tea TUI for livefeed.
package ui

import "github.com/abelbrown/livefeed/internal/controller"

// FeedUpdated carries the latest published View from the controller.
type FeedUpdated struct {
	View controller.View
}

// bannerExpired clears the arrival banner unless a newer one replaced it.
type bannerExpired struct {
	seq int
}

// URLCopied is sent after a copy-to-clipboard attempt.
type URLCopied struct {
	URL string
	Err error
}

// noticeExpired clears the transient status notice.
type noticeExpired struct {
	seq int
}
