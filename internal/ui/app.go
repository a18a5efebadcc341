package ui

import (
	"fmt"
	"io"
	"time"

	"github.com/abelbrown/livefeed/internal/controller"
	"github.com/abelbrown/livefeed/internal/otel"
	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

const (
	bannerTTL = 3 * time.Second
	noticeTTL = 2 * time.Second
)

// AppConfig wires the App to the controller. Every func is optional.
type AppConfig struct {
	Refresh   func()
	Reconnect func()
	Retarget  func(source string)
	CopyURL   func(url string) error // nil uses the system clipboard
	Bell      io.Writer              // receives "\a" on arrivals; nil is silent
	Ring      *otel.RingBuffer       // debug overlay source
	Initial   controller.View
}

// App is the root Bubble Tea model.
// IMPORTANT: App does NOT hold the controller. It receives Views via messages.
type App struct {
	cfg AppConfig

	view   controller.View
	cursor int
	width  int
	height int
	ready  bool

	spinner spinner.Model
	input   textinput.Model
	editing bool

	showDebug bool

	banner    string
	bannerSeq int
	notice    string
	noticeSeq int
}

// NewApp creates an App.
func NewApp(cfg AppConfig) App {
	if cfg.CopyURL == nil {
		cfg.CopyURL = clipboard.WriteAll
	}
	ti := textinput.New()
	ti.Prompt = "source: "
	ti.Placeholder = "listing URL or filter"
	ti.CharLimit = 2048

	return App{
		cfg:     cfg,
		view:    cfg.Initial,
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot)),
		input:   ti,
	}
}

// Init starts the spinner.
func (a App) Init() tea.Cmd {
	return a.spinner.Tick
}

// Update handles messages and returns the updated model and any commands.
func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if a.editing {
			return a.handleInputKey(msg)
		}
		return a.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.input.Width = max(msg.Width-12, 10)
		a.ready = true
		return a, nil

	case FeedUpdated:
		return a.applyView(msg.View)

	case bannerExpired:
		if msg.seq == a.bannerSeq {
			a.banner = ""
		}
		return a, nil

	case noticeExpired:
		if msg.seq == a.noticeSeq {
			a.notice = ""
		}
		return a, nil

	case URLCopied:
		if msg.Err != nil {
			return a, a.setNotice(StateBad.Render("copy failed: " + msg.Err.Error()))
		}
		return a, a.setNotice(StateOK.Render("copied " + truncateRunes(msg.URL, 40)))

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd
	}

	return a, nil
}

// applyView installs a new View, keeping the selected listing selected as
// arrivals are prepended above it.
func (a App) applyView(v controller.View) (tea.Model, tea.Cmd) {
	selected := ""
	if a.cursor >= 0 && a.cursor < len(a.view.Items) {
		selected = a.view.Items[a.cursor].ID
	}
	prevArrivals := a.view.Arrivals
	a.view = v

	a.cursor = 0
	if selected != "" {
		for i, it := range v.Items {
			if it.ID == selected {
				a.cursor = i
				break
			}
		}
	}
	if a.cursor >= len(v.Items) {
		a.cursor = max(len(v.Items)-1, 0)
	}

	if n := v.Arrivals - prevArrivals; n > 0 {
		return a, a.announce(n)
	}
	return a, nil
}

// announce shows the arrival banner and rings the bell.
func (a *App) announce(n int) tea.Cmd {
	a.bannerSeq++
	seq := a.bannerSeq
	if n == 1 {
		a.banner = "1 new listing"
	} else {
		a.banner = fmt.Sprintf("%d new listings", n)
	}

	cmds := []tea.Cmd{
		tea.Tick(bannerTTL, func(time.Time) tea.Msg { return bannerExpired{seq: seq} }),
	}
	if bell := a.cfg.Bell; bell != nil {
		cmds = append(cmds, func() tea.Msg {
			io.WriteString(bell, "\a")
			return nil
		})
	}
	return tea.Batch(cmds...)
}

func (a *App) setNotice(s string) tea.Cmd {
	a.noticeSeq++
	seq := a.noticeSeq
	a.notice = s
	return tea.Tick(noticeTTL, func(time.Time) tea.Msg { return noticeExpired{seq: seq} })
}

// handleKeyMsg processes keyboard input.
func (a App) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return a, tea.Quit

	case "j", "down":
		if a.cursor < len(a.view.Items)-1 {
			a.cursor++
		}
		return a, nil

	case "k", "up":
		if a.cursor > 0 {
			a.cursor--
		}
		return a, nil

	case "g", "home":
		a.cursor = 0
		return a, nil

	case "G", "end":
		if len(a.view.Items) > 0 {
			a.cursor = len(a.view.Items) - 1
		}
		return a, nil

	case "y":
		if a.cursor < len(a.view.Items) {
			url := a.view.Items[a.cursor].URL
			if url == "" {
				return a, a.setNotice(StateBad.Render("listing has no url"))
			}
			copyURL := a.cfg.CopyURL
			return a, func() tea.Msg {
				return URLCopied{URL: url, Err: copyURL(url)}
			}
		}
		return a, nil

	case "r":
		if a.cfg.Refresh != nil {
			a.cfg.Refresh()
			return a, a.setNotice(StatusBarText.Render("refreshing..."))
		}
		return a, nil

	case "c":
		if a.cfg.Reconnect != nil {
			a.cfg.Reconnect()
		}
		return a, nil

	case "/":
		if a.cfg.Retarget == nil {
			return a, nil
		}
		a.editing = true
		a.input.SetValue(a.view.Source)
		a.input.CursorEnd()
		return a, a.input.Focus()

	case "D":
		a.showDebug = !a.showDebug
		return a, nil
	}

	return a, nil
}

// handleInputKey edits the source filter.
func (a App) handleInputKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		a.editing = false
		a.input.Blur()
		return a, nil
	case tea.KeyEnter:
		a.editing = false
		a.input.Blur()
		source := a.input.Value()
		if source != a.view.Source {
			a.cfg.Retarget(source)
			a.cursor = 0
		}
		return a, nil
	}
	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)
	return a, cmd
}

// View renders the UI.
func (a App) View() string {
	if !a.ready {
		return "Loading..."
	}

	if a.showDebug {
		return debugOverlay(a.cfg.Ring, a.width, a.height-1) + "\n" + debugStatusBar(a.width)
	}

	// status bar plus optional banner, error and input lines
	contentHeight := a.height - 1
	var header, footer string
	if a.banner != "" {
		header = ArrivalBanner.Width(a.width).Render(a.banner) + "\n"
		contentHeight--
	}
	if a.view.Err != nil {
		footer += ErrorStyle.Width(a.width).Render("Error: "+a.view.Err.Error()) + "\n"
		contentHeight--
	}
	if a.editing {
		footer += FilterBar.Width(a.width).Render(a.input.View()) + "\n"
		contentHeight--
	}

	var body string
	if len(a.view.Items) == 0 && a.view.Loading() {
		body = HelpStyle.Render(a.spinner.View() + " Loading listings...")
	} else {
		body = RenderStream(a.view.Items, a.view.IsNew, a.cursor, a.width, contentHeight)
	}

	status := RenderStatusBar(a.view, a.cursor, a.spinner.View(), a.notice, a.width)
	return header + body + footer + status
}

// Cursor returns the current cursor position (for testing).
func (a App) Cursor() int {
	return a.cursor
}

// Banner returns the current arrival banner (for testing).
func (a App) Banner() string {
	return a.banner
}
