package ui

import "github.com/charmbracelet/lipgloss"

// Colors used in the application.
var (
	colorPrimary   = lipgloss.Color("62")  // Purple
	colorSecondary = lipgloss.Color("241") // Gray
	colorMuted     = lipgloss.Color("240") // Darker gray
	colorHighlight = lipgloss.Color("212") // Pink
	colorSuccess   = lipgloss.Color("78")  // Green
	colorWarn      = lipgloss.Color("214") // Amber
	colorError     = lipgloss.Color("196") // Red
)

// SelectedItem style for the card under the cursor.
var SelectedItem = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("255")).
	Background(colorPrimary).
	Padding(0, 1)

// NormalItem style for card titles.
var NormalItem = lipgloss.NewStyle().
	Foreground(lipgloss.Color("255")).
	Padding(0, 1)

// NewItem style for titles of just-arrived cards.
var NewItem = lipgloss.NewStyle().
	Bold(true).
	Foreground(colorSuccess).
	Padding(0, 1)

// NewBadge marks just-arrived cards.
var NewBadge = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("16")).
	Background(colorSuccess).
	Padding(0, 1)

// MetaItem style for the secondary card line.
var MetaItem = lipgloss.NewStyle().
	Foreground(colorSecondary).
	PaddingLeft(3)

// PriceStyle for the right-aligned price.
var PriceStyle = lipgloss.NewStyle().
	Foreground(colorHighlight).
	Bold(true)

// PriceOnRequest for listings without a price.
var PriceOnRequest = lipgloss.NewStyle().
	Foreground(colorMuted).
	Italic(true)

// ArrivalBanner announces new listings.
var ArrivalBanner = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("16")).
	Background(colorSuccess).
	Padding(0, 1)

// StatusBar style for the bottom status bar.
var StatusBar = lipgloss.NewStyle().
	Foreground(lipgloss.Color("255")).
	Background(lipgloss.Color("236")).
	Padding(0, 1)

// StatusBarKey style for key hints in status bar.
var StatusBarKey = lipgloss.NewStyle().
	Foreground(colorHighlight).
	Bold(true)

// StatusBarText style for descriptive text in status bar.
var StatusBarText = lipgloss.NewStyle().
	Foreground(colorSecondary)

// Connection state colors in the status bar.
var (
	StateOK   = lipgloss.NewStyle().Foreground(colorSuccess).Bold(true)
	StateBusy = lipgloss.NewStyle().Foreground(colorWarn).Bold(true)
	StateBad  = lipgloss.NewStyle().Foreground(colorError).Bold(true)
)

// ErrorStyle for displaying errors.
var ErrorStyle = lipgloss.NewStyle().
	Foreground(colorError).
	Bold(true).
	Padding(0, 1)

// HelpStyle for help text.
var HelpStyle = lipgloss.NewStyle().
	Foreground(colorMuted).
	Padding(1, 2)

// FilterBar style for the source input bar.
var FilterBar = lipgloss.NewStyle().
	Foreground(lipgloss.Color("255")).
	Background(lipgloss.Color("240")).
	Padding(0, 1)

// DebugPanel frames the debug overlay.
var DebugPanel = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(colorPrimary).
	Padding(1, 2)

// DebugHeaderStyle for section headers in the debug overlay.
var DebugHeaderStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(colorHighlight)
