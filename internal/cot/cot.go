// Package cot renders decoded positions as Cursor-on-Target XML events
// for the ATAK mesh. Mechanical by design: the protocol engine hands it
// finished positions and it hands the UDP sender finished documents.
package cot

import (
	"encoding/xml"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mighkel/GdogTAK/internal/alpha"
)

const timeFormat = "2006-01-02T15:04:05.000Z"

// Encoder holds the externally-configured unit identity applied to
// every event.
type Encoder struct {
	UID      string
	Callsign string
	Team     string
	Role     string
	// Stale is how far in the future events go stale; collars report
	// every few seconds, so the default keeps dropped links visible
	// quickly.
	Stale time.Duration
}

// NewEncoder fills identity defaults; a random stable UID is generated
// when none is configured.
func NewEncoder(uid, callsign, team, role string) *Encoder {
	if uid == "" {
		uid = "GDOGTAK-" + uuid.NewString()
	}
	if callsign == "" {
		callsign = "K9"
	}
	return &Encoder{
		UID:      uid,
		Callsign: callsign,
		Team:     team,
		Role:     role,
		Stale:    30 * time.Second,
	}
}

type event struct {
	XMLName xml.Name `xml:"event"`
	Version string   `xml:"version,attr"`
	UID     string   `xml:"uid,attr"`
	Type    string   `xml:"type,attr"`
	Time    string   `xml:"time,attr"`
	Start   string   `xml:"start,attr"`
	Stale   string   `xml:"stale,attr"`
	How     string   `xml:"how,attr"`
	Point   point    `xml:"point"`
	Detail  detail   `xml:"detail"`
}

type point struct {
	Lat string `xml:"lat,attr"`
	Lon string `xml:"lon,attr"`
	Hae string `xml:"hae,attr"`
	Ce  string `xml:"ce,attr"`
	Le  string `xml:"le,attr"`
}

type detail struct {
	Contact   contact   `xml:"contact"`
	Group     group     `xml:"__group"`
	Track     track     `xml:"track"`
	Precision precision `xml:"precisionlocation"`
	Remarks   string    `xml:"remarks"`
}

type contact struct {
	Callsign string `xml:"callsign,attr"`
}

type group struct {
	Name string `xml:"name,attr"`
	Role string `xml:"role,attr"`
}

type track struct {
	Course string `xml:"course,attr"`
	Speed  string `xml:"speed,attr"`
}

type precision struct {
	AltSrc      string `xml:"altsrc,attr"`
	GeoPointSrc string `xml:"geopointsrc,attr"`
}

// eventType maps the device class to its CoT type string.
func eventType(src alpha.Source) string {
	switch src {
	case alpha.SourceCollar:
		return "a-f-G-U-C-I"
	case alpha.SourceHandheld:
		return "a-f-G-U-C"
	default:
		return "a-f-G-U-C"
	}
}

// Encode renders one position as a CoT event document. Events for
// different device classes carry distinct UIDs so ATAK tracks them
// separately.
func (e *Encoder) Encode(p alpha.Position, now time.Time) ([]byte, error) {
	now = now.UTC()
	ev := event{
		Version: "2.0",
		UID:     fmt.Sprintf("%s-%s", e.UID, p.Source.String()),
		Type:    eventType(p.Source),
		Time:    now.Format(timeFormat),
		Start:   now.Format(timeFormat),
		Stale:   now.Add(e.Stale).Format(timeFormat),
		How:     "m-g",
		Point: point{
			Lat: fmt.Sprintf("%.7f", p.LatDeg),
			Lon: fmt.Sprintf("%.7f", p.LonDeg),
			Hae: "0",
			Ce:  "10.0",
			Le:  "10.0",
		},
		Detail: detail{
			Contact:   contact{Callsign: e.Callsign},
			Group:     group{Name: e.Team, Role: e.Role},
			Track:     track{Course: "0", Speed: "0"},
			Precision: precision{AltSrc: "GPS", GeoPointSrc: "GPS"},
			Remarks:   "Relayed by GdogTAK from Garmin collar link",
		},
	}

	body, err := xml.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal cot event: %w", err)
	}
	return append([]byte(xml.Header), body...), nil
}
