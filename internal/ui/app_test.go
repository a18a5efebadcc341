package ui

import (
	"errors"
	"strings"
	"testing"

	"github.com/abelbrown/livefeed/internal/controller"
	"github.com/abelbrown/livefeed/internal/feed"
	"github.com/abelbrown/livefeed/internal/transport"
	tea "github.com/charmbracelet/bubbletea"
)

// mockCmds records the calls the App makes into the controller.
type mockCmds struct {
	refreshes  int
	reconnects int
	retargets  []string
	copied     []string
	copyErr    error
}

func (m *mockCmds) config() AppConfig {
	return AppConfig{
		Refresh:   func() { m.refreshes++ },
		Reconnect: func() { m.reconnects++ },
		Retarget:  func(s string) { m.retargets = append(m.retargets, s) },
		CopyURL: func(url string) error {
			m.copied = append(m.copied, url)
			return m.copyErr
		},
	}
}

func key(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func listings(ids ...string) []feed.Item {
	items := make([]feed.Item, len(ids))
	for i, id := range ids {
		items[i] = feed.Item{ID: id, Title: "Listing " + id, URL: "https://example.com/" + id, PriceEUR: 1000}
	}
	return items
}

func update(t *testing.T, a App, msg tea.Msg) (App, tea.Cmd) {
	t.Helper()
	m, cmd := a.Update(msg)
	app, ok := m.(App)
	if !ok {
		t.Fatalf("Update returned %T, want App", m)
	}
	return app, cmd
}

func sized(t *testing.T, a App) App {
	t.Helper()
	a, _ = update(t, a, tea.WindowSizeMsg{Width: 100, Height: 30})
	return a
}

func TestAppInit(t *testing.T) {
	app := NewApp(AppConfig{})
	if app.Init() == nil {
		t.Fatal("Init should start the spinner")
	}
}

func TestAppNavigation(t *testing.T) {
	app := NewApp(AppConfig{})
	app, _ = update(t, app, FeedUpdated{View: controller.View{Items: listings("a", "b", "c")}})

	if app.Cursor() != 0 {
		t.Fatalf("initial cursor = %d, want 0", app.Cursor())
	}

	app, _ = update(t, app, key("j"))
	app, _ = update(t, app, key("j"))
	if app.Cursor() != 2 {
		t.Errorf("cursor after jj = %d, want 2", app.Cursor())
	}

	app, _ = update(t, app, key("j"))
	if app.Cursor() != 2 {
		t.Errorf("cursor should stop at the last item, got %d", app.Cursor())
	}

	app, _ = update(t, app, key("k"))
	if app.Cursor() != 1 {
		t.Errorf("cursor after k = %d, want 1", app.Cursor())
	}

	app, _ = update(t, app, key("g"))
	if app.Cursor() != 0 {
		t.Errorf("cursor after g = %d, want 0", app.Cursor())
	}

	app, _ = update(t, app, key("G"))
	if app.Cursor() != 2 {
		t.Errorf("cursor after G = %d, want 2", app.Cursor())
	}
}

func TestAppCursorFollowsSelectionOnPrepend(t *testing.T) {
	app := NewApp(AppConfig{})
	app, _ = update(t, app, FeedUpdated{View: controller.View{Items: listings("a", "b", "c")}})
	app, _ = update(t, app, key("j")) // on "b"

	app, _ = update(t, app, FeedUpdated{View: controller.View{Items: listings("x", "y", "a", "b", "c"), Arrivals: 2}})
	if app.Cursor() != 3 {
		t.Errorf("cursor = %d, want 3 (still on b)", app.Cursor())
	}
}

func TestAppCursorClampsWhenListShrinks(t *testing.T) {
	app := NewApp(AppConfig{})
	app, _ = update(t, app, FeedUpdated{View: controller.View{Items: listings("a", "b", "c")}})
	app, _ = update(t, app, key("G"))

	app, _ = update(t, app, FeedUpdated{View: controller.View{Items: listings("z")}})
	if app.Cursor() != 0 {
		t.Errorf("cursor = %d, want 0 after reset to a new list", app.Cursor())
	}
}

func TestAppArrivalBanner(t *testing.T) {
	app := NewApp(AppConfig{})
	app, cmd := update(t, app, FeedUpdated{View: controller.View{Items: listings("a")}})
	if cmd != nil || app.Banner() != "" {
		t.Fatalf("first load should not announce, banner=%q", app.Banner())
	}

	app, cmd = update(t, app, FeedUpdated{View: controller.View{Items: listings("b", "c", "a"), Arrivals: 2}})
	if cmd == nil {
		t.Fatal("arrivals should schedule the banner timeout")
	}
	if app.Banner() != "2 new listings" {
		t.Errorf("banner = %q, want %q", app.Banner(), "2 new listings")
	}

	// A stale timeout must not clear a newer banner.
	app, _ = update(t, app, FeedUpdated{View: controller.View{Items: listings("d", "b", "c", "a"), Arrivals: 3}})
	if app.Banner() != "1 new listing" {
		t.Errorf("banner = %q, want %q", app.Banner(), "1 new listing")
	}
	app, _ = update(t, app, bannerExpired{seq: 1})
	if app.Banner() == "" {
		t.Error("stale bannerExpired cleared the banner")
	}
	app, _ = update(t, app, bannerExpired{seq: 2})
	if app.Banner() != "" {
		t.Errorf("banner should clear, got %q", app.Banner())
	}
}

func TestAppRefreshAndReconnect(t *testing.T) {
	mock := &mockCmds{}
	app := NewApp(mock.config())

	app, _ = update(t, app, key("r"))
	app, _ = update(t, app, key("c"))

	if mock.refreshes != 1 {
		t.Errorf("refreshes = %d, want 1", mock.refreshes)
	}
	if mock.reconnects != 1 {
		t.Errorf("reconnects = %d, want 1", mock.reconnects)
	}
}

func TestAppCopyURL(t *testing.T) {
	mock := &mockCmds{}
	app := NewApp(mock.config())
	app, _ = update(t, app, FeedUpdated{View: controller.View{Items: listings("a", "b")}})
	app, _ = update(t, app, key("j"))

	app, cmd := update(t, app, key("y"))
	if cmd == nil {
		t.Fatal("y should return a copy command")
	}
	msg := cmd()
	copied, ok := msg.(URLCopied)
	if !ok {
		t.Fatalf("copy command returned %T, want URLCopied", msg)
	}
	if copied.URL != "https://example.com/b" || copied.Err != nil {
		t.Errorf("URLCopied = %+v", copied)
	}
	if len(mock.copied) != 1 || mock.copied[0] != "https://example.com/b" {
		t.Errorf("clipboard got %v", mock.copied)
	}

	app = sized(t, app)
	app, _ = update(t, app, copied)
	if !strings.Contains(app.View(), "copied https://example.com/b") {
		t.Error("status bar should confirm the copy")
	}
}

func TestAppCopyURLFailure(t *testing.T) {
	mock := &mockCmds{copyErr: errors.New("no clipboard")}
	app := sized(t, NewApp(mock.config()))
	app, _ = update(t, app, FeedUpdated{View: controller.View{Items: listings("a")}})

	_, cmd := update(t, app, key("y"))
	app, _ = update(t, app, cmd())
	if !strings.Contains(app.View(), "copy failed: no clipboard") {
		t.Error("status bar should report the copy failure")
	}
}

func TestAppRetargetViaInput(t *testing.T) {
	mock := &mockCmds{}
	app := sized(t, NewApp(mock.config()))

	app, _ = update(t, app, key("/"))
	if !app.editing {
		t.Fatal("/ should open the source input")
	}
	// keys go to the input, not navigation
	app, _ = update(t, app, key("q"))
	app, _ = update(t, app, key("bmw"))
	app, _ = update(t, app, tea.KeyMsg{Type: tea.KeyEnter})

	if app.editing {
		t.Error("enter should close the input")
	}
	if len(mock.retargets) != 1 || mock.retargets[0] != "qbmw" {
		t.Errorf("retargets = %v, want [qbmw]", mock.retargets)
	}
}

func TestAppRetargetEscCancels(t *testing.T) {
	mock := &mockCmds{}
	app := NewApp(mock.config())

	app, _ = update(t, app, key("/"))
	app, _ = update(t, app, key("audi"))
	app, _ = update(t, app, tea.KeyMsg{Type: tea.KeyEsc})

	if app.editing {
		t.Error("esc should close the input")
	}
	if len(mock.retargets) != 0 {
		t.Errorf("esc should not retarget, got %v", mock.retargets)
	}
}

func TestAppQuit(t *testing.T) {
	app := NewApp(AppConfig{})
	_, cmd := update(t, app, key("q"))
	if cmd == nil {
		t.Fatal("q should return a command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q should quit")
	}
}

func TestAppViewStates(t *testing.T) {
	app := NewApp(AppConfig{})
	if app.View() != "Loading..." {
		t.Errorf("unsized view = %q", app.View())
	}

	app = sized(t, app)
	app, _ = update(t, app, FeedUpdated{View: controller.View{FirstLoad: true, State: transport.StateLoading}})
	if !strings.Contains(app.View(), "Loading listings") {
		t.Error("first load should show the loading line")
	}

	app, _ = update(t, app, FeedUpdated{View: controller.View{
		FirstLoad: true,
		State:     transport.StateErrored,
		Err:       errors.New("connection refused"),
	}})
	out := app.View()
	if !strings.Contains(out, "Error: connection refused") {
		t.Errorf("error should be shown while nothing is loaded, got:\n%s", out)
	}

	app, _ = update(t, app, FeedUpdated{View: controller.View{
		Items:   listings("a"),
		State:   transport.StateErrored,
		LastErr: errors.New("timeout"),
	}})
	out = app.View()
	if strings.Contains(out, "Error:") {
		t.Error("errors after a load belong in the status bar only")
	}
	if !strings.Contains(out, "Listing a") {
		t.Error("loaded items should stay visible after an error")
	}
	if !strings.Contains(out, "! timeout") {
		t.Error("status bar should show the last error")
	}
}

func TestAppDebugToggle(t *testing.T) {
	app := sized(t, NewApp(AppConfig{}))
	app, _ = update(t, app, key("D"))
	if !strings.Contains(app.View(), "[DEBUG]") {
		t.Error("D should show the debug overlay")
	}
	app, _ = update(t, app, key("D"))
	if strings.Contains(app.View(), "[DEBUG]") {
		t.Error("second D should close the overlay")
	}
}
