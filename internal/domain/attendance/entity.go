package attendance

import (
	"fmt"
	"strconv"
	"strings"
)

// Status values are the portal's verbatim record states.
const (
	StatusStarted  = "Начат"
	StatusFinished = "Завершен"
)

// Record is a single day's check-in as the server reports it. The client
// never mutates records directly; it submits start/finish and re-reads.
type Record struct {
	ID          int64  `json:"id"`
	Date        string `json:"date"`
	Auditorium  string `json:"auditorium"`
	StartGeo    string `json:"start_geo"`
	FinishGeo   string `json:"finish_geo"`
	StartPhoto  string `json:"start_photo"`
	FinishPhoto string `json:"finish_photo"`
	WorkingTime string `json:"working_time"`
	Status      string `json:"status_info"`
}

// OpenCheckIn is the client-side view of a record that was started today and
// not yet finished. It carries forward the start coordinates the proximity
// gate compares against.
type OpenCheckIn struct {
	Auditorium string
	Start      Coordinates
}

// Coordinates is a WGS84 point.
type Coordinates struct {
	Latitude  float64
	Longitude float64
}

// Format renders coordinates in the wire form "lat, lon".
func (c Coordinates) Format() string {
	return fmt.Sprintf("%v, %v", c.Latitude, c.Longitude)
}

// ParseGeo parses the wire form "lat, lon" back into coordinates.
func ParseGeo(s string) (Coordinates, error) {
	parts := strings.SplitN(s, ",", 2)
	if len(parts) != 2 {
		return Coordinates{}, fmt.Errorf("geo %q: want \"lat, lon\"", s)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return Coordinates{}, fmt.Errorf("geo latitude %q: %w", parts[0], err)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return Coordinates{}, fmt.Errorf("geo longitude %q: %w", parts[1], err)
	}
	return Coordinates{Latitude: lat, Longitude: lon}, nil
}

// Auditorium is the location a QR code identifies.
type Auditorium struct {
	Campus string
	Corpus string
	Room   string
}

// ID is the slash-joined identifier submitted with a check-in.
func (a Auditorium) ID() string {
	return a.Campus + "/" + a.Corpus + "/" + a.Room
}
