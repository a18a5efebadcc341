package ui

import (
	"strings"
	"testing"

	"github.com/abelbrown/livefeed/internal/controller"
	"github.com/abelbrown/livefeed/internal/feed"
	"github.com/abelbrown/livefeed/internal/transport"
)

func noneNew(string) bool { return false }

func TestRenderStreamEmpty(t *testing.T) {
	out := RenderStream(nil, noneNew, 0, 80, 20)
	if !strings.Contains(out, "No listings yet") {
		t.Errorf("empty stream = %q", out)
	}
}

func TestRenderStreamCards(t *testing.T) {
	items := []feed.Item{
		{ID: "1", Title: "BMW 320d Touring", PriceEUR: 12500, Year: 2018, Km: 143000, PS: 190, KW: 140, Location: "Berlin", Fuel: "Diesel"},
		{ID: "2", Title: "Golf VII", Year: 2015},
	}
	out := RenderStream(items, func(id string) bool { return id == "1" }, 0, 100, 20)

	for _, want := range []string{
		"BMW 320d Touring",
		"€ 12,500",
		"NEW",
		"2018 · 143,000 km · 190 PS (140 kW)",
		"Berlin • Diesel",
		"Golf VII",
		"on request",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("stream missing %q:\n%s", want, out)
		}
	}
	if strings.Count(out, "NEW") != 1 {
		t.Error("only highlighted items get the badge")
	}
}

func TestRenderStreamScrollsToCursor(t *testing.T) {
	items := make([]feed.Item, 20)
	for i := range items {
		items[i] = feed.Item{ID: string(rune('a' + i)), Title: "Listing " + string(rune('a'+i))}
	}
	// 10 lines fit 5 cards; cursor 12 shows items 8..12
	out := RenderStream(items, noneNew, 12, 80, 10)
	if strings.Contains(out, "Listing h") {
		t.Error("item above the window should be scrolled off")
	}
	for _, want := range []string{"Listing i", "Listing m"} {
		if !strings.Contains(out, want) {
			t.Errorf("window missing %q", want)
		}
	}
	if strings.Contains(out, "Listing n") {
		t.Error("item below the window should not render")
	}
}

func TestCalcScrollOffset(t *testing.T) {
	tests := []struct {
		cursor, total, visible, want int
	}{
		{0, 0, 5, 0},
		{0, 10, 5, 0},
		{4, 10, 5, 0},
		{5, 10, 5, 1},
		{9, 10, 5, 5},
		{15, 10, 5, 5},
		{-1, 10, 5, 0},
	}
	for _, tt := range tests {
		if got := calcScrollOffset(tt.cursor, tt.total, tt.visible); got != tt.want {
			t.Errorf("calcScrollOffset(%d, %d, %d) = %d, want %d",
				tt.cursor, tt.total, tt.visible, got, tt.want)
		}
	}
}

func TestFormatPrice(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "on request"},
		{-5, "on request"},
		{999, "€ 999"},
		{12499.6, "€ 12,500"},
		{1250000, "€ 1,250,000"},
	}
	for _, tt := range tests {
		if got := formatPrice(tt.in); got != tt.want {
			t.Errorf("formatPrice(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMetaLine(t *testing.T) {
	tests := []struct {
		name string
		item feed.Item
		want string
	}{
		{"empty", feed.Item{}, ""},
		{"ps only", feed.Item{PS: 150}, "150 PS"},
		{"kw only", feed.Item{KW: 110, Picker: "Automatik"}, "110 kW · Automatik"},
		{"facts only", feed.Item{Location: "Hamburg", SellerType: "Dealer"}, "Hamburg • Dealer"},
		{"both", feed.Item{Year: 2020, Transmission: "Manual"}, "2020 · Manual"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := metaLine(tt.item); got != tt.want {
				t.Errorf("metaLine = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTruncateRunes(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello world", 8, "hello..."},
		{"Größenwahn", 5, "Gr..."},
		{"abc", 2, "ab"},
		{"abc", 0, ""},
	}
	for _, tt := range tests {
		if got := truncateRunes(tt.in, tt.n); got != tt.want {
			t.Errorf("truncateRunes(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

func TestRenderStatusBar(t *testing.T) {
	v := controller.View{
		Items:  []feed.Item{{ID: "a"}, {ID: "b"}},
		State:  transport.StateConnected,
		Source: "https://example.com/search?q=bmw",
	}
	out := RenderStatusBar(v, 1, "*", "", 160)
	for _, want := range []string{"connected", "2/2", "example.com", "q:quit"} {
		if !strings.Contains(out, want) {
			t.Errorf("status bar missing %q:\n%s", want, out)
		}
	}

	narrow := RenderStatusBar(v, 0, "*", "", 30)
	if strings.Contains(narrow, "q:quit") {
		t.Error("narrow status bar should drop key hints")
	}
}

func TestStateLabelShowsSpinnerWhileBusy(t *testing.T) {
	busy := stateLabel(controller.View{State: transport.StateRefreshing}, "@")
	if !strings.Contains(busy, "@ refreshing") {
		t.Errorf("busy label = %q", busy)
	}
	idle := stateLabel(controller.View{State: transport.StateIdle}, "@")
	if strings.Contains(idle, "@") {
		t.Errorf("idle label should not spin: %q", idle)
	}
}
