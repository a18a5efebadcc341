// Package feed holds the catalog data model and the reconciliation logic that
// folds successive Snapshots into a bounded, newest-first Display List.
//
// Everything in this package is pure: no I/O, no timers, no goroutines.
package feed

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Item is one catalog entry. Identity is ID alone; every other field is
// display metadata carried through untouched.
type Item struct {
	ID           string  `json:"id"`
	URL          string  `json:"url,omitempty"`
	Title        string  `json:"title,omitempty"`
	Fuel         string  `json:"fuel,omitempty"`
	Transmission string  `json:"transmission,omitempty"`
	Picker       string  `json:"picker,omitempty"` // inspection sticker or other tag
	Year         int     `json:"year,omitempty"`
	Km           int     `json:"km,omitempty"`
	PS           int     `json:"ps,omitempty"`
	KW           int     `json:"kw,omitempty"`
	SellerType   string  `json:"sellerType,omitempty"`
	Location     string  `json:"location,omitempty"`
	PriceEUR     float64 `json:"priceEur,omitempty"`
	Image        string  `json:"image,omitempty"`
}

// errBadID rejects an element whose id is neither a string nor a number.
var errBadID = errors.New("id is not a string or number")

// UnmarshalJSON decodes an item leniently. The id may be a string or a number.
// Metadata of the wrong JSON type decodes as the zero value, and numbers may
// arrive as strings ("27000", "143.000"), so one odd field never costs the
// listing.
func (it *Item) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	id, ok := looseString(raw["id"])
	if !ok {
		return errBadID
	}
	str := func(key string) string {
		v, _ := looseString(raw[key])
		return v
	}
	*it = Item{
		ID:           id,
		URL:          str("url"),
		Title:        str("title"),
		Fuel:         str("fuel"),
		Transmission: str("transmission"),
		Picker:       str("picker"),
		Year:         looseInt(raw["year"]),
		Km:           looseInt(raw["km"]),
		PS:           looseInt(raw["ps"]),
		KW:           looseInt(raw["kw"]),
		SellerType:   str("sellerType"),
		Location:     str("location"),
		PriceEUR:     looseFloat(raw["priceEur"]),
		Image:        str("image"),
	}
	return nil
}

// looseString accepts a JSON string or number. Absent and null give "", true.
func looseString(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return "", true
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", false
		}
		return s, true
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		return string(raw), true
	}
	return "", false
}

// groupedDigits matches thousands-grouped integers such as 143.000 or 1,250,000.
var groupedDigits = regexp.MustCompile(`^\d{1,3}([.,]\d{3})+$`)

// looseFloat accepts a JSON number or a numeric string; anything else is 0.
func looseFloat(raw json.RawMessage) float64 {
	s, ok := looseString(raw)
	if !ok {
		return 0
	}
	s = strings.NewReplacer(" ", "", "\u00a0", "", "€", "").Replace(strings.TrimSpace(s))
	if groupedDigits.MatchString(s) {
		s = strings.NewReplacer(".", "", ",", "").Replace(s)
	} else {
		s = strings.Replace(s, ",", ".", 1)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

func looseInt(raw json.RawMessage) int {
	return int(math.Round(looseFloat(raw)))
}

// Snapshot is the complete item listing from one ingestion event. It may hold
// duplicate IDs; Merge deduplicates.
type Snapshot []Item

// IDs returns the identifiers in order.
func (s Snapshot) IDs() []string {
	ids := make([]string, len(s))
	for i, it := range s {
		ids[i] = it.ID
	}
	return ids
}

// ErrNotArray is wrapped by ParseError when the payload is valid JSON but not an array.
var ErrNotArray = errors.New("snapshot payload is not a JSON array")

// ParseError reports a Snapshot payload that could not be decoded.
type ParseError struct {
	Size int // payload length in bytes
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse snapshot (%d bytes): %v", e.Size, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ParseStats describes what ParseSnapshot had to discard.
type ParseStats struct {
	Total     int // elements in the payload array
	MissingID int // elements dropped for an empty id
	Malformed int // elements dropped because they could not be decoded
}

// Dropped returns the number of elements left out of the snapshot.
func (s ParseStats) Dropped() int { return s.MissingID + s.Malformed }

// ParseSnapshot decodes a JSON array of items. Elements with an empty id are
// dropped since they cannot be tracked, as are elements that are not objects.
// Only a payload that is not a JSON array is an error.
func ParseSnapshot(data []byte) (Snapshot, error) {
	snap, _, err := ParseSnapshotStats(data)
	return snap, err
}

// ParseSnapshotStats is ParseSnapshot that also reports dropped elements.
func ParseSnapshotStats(data []byte) (Snapshot, ParseStats, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			err = ErrNotArray
		}
		return nil, ParseStats{}, &ParseError{Size: len(data), Err: err}
	}
	if raw == nil {
		// JSON null
		return nil, ParseStats{}, &ParseError{Size: len(data), Err: ErrNotArray}
	}

	stats := ParseStats{Total: len(raw)}
	snap := make(Snapshot, 0, len(raw))
	for _, elem := range raw {
		var it Item
		if err := json.Unmarshal(elem, &it); err != nil {
			stats.Malformed++
			continue
		}
		if it.ID == "" {
			stats.MissingID++
			continue
		}
		snap = append(snap, it)
	}
	return snap, stats, nil
}

// Dedupe returns s with later duplicates of an ID removed, preserving order.
// Returns s itself when there is nothing to remove.
func Dedupe(s Snapshot) Snapshot {
	if len(s) < 2 {
		return s
	}
	seen := make(map[string]struct{}, len(s))
	dup := false
	for _, it := range s {
		if _, ok := seen[it.ID]; ok {
			dup = true
			break
		}
		seen[it.ID] = struct{}{}
	}
	if !dup {
		return s
	}

	clear(seen)
	out := make(Snapshot, 0, len(s))
	for _, it := range s {
		if _, ok := seen[it.ID]; ok {
			continue
		}
		seen[it.ID] = struct{}{}
		out = append(out, it)
	}
	return out
}
