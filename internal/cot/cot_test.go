package cot

import (
	"encoding/xml"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mighkel/GdogTAK/internal/alpha"
)

var testPosition = alpha.Position{
	LatDeg: 43.741700649261475,
	LonDeg: -116.01004600524902,
	Source: alpha.SourceCollar,
}

func TestNewEncoderDefaults(t *testing.T) {
	e := NewEncoder("", "", "Cyan", "Team Member")
	assert.True(t, strings.HasPrefix(e.UID, "GDOGTAK-"), "generated UID: %s", e.UID)
	assert.Equal(t, "K9", e.Callsign)
	assert.Equal(t, 30*time.Second, e.Stale)

	e2 := NewEncoder("MY-UID", "K9-ROVER", "Cyan", "Team Member")
	assert.Equal(t, "MY-UID", e2.UID)
	assert.Equal(t, "K9-ROVER", e2.Callsign)
}

func TestEncode(t *testing.T) {
	e := NewEncoder("TEST-UID", "K9-ROVER", "CCVFD-SAR", "SAR Canine")
	now := time.Date(2026, 5, 14, 16, 30, 0, 0, time.UTC)

	doc, err := e.Encode(testPosition, now)
	require.NoError(t, err)

	require.True(t, strings.HasPrefix(string(doc), xml.Header), "XML declaration required by some TAK servers")

	var ev struct {
		UID   string `xml:"uid,attr"`
		Type  string `xml:"type,attr"`
		Time  string `xml:"time,attr"`
		Start string `xml:"start,attr"`
		Stale string `xml:"stale,attr"`
		How   string `xml:"how,attr"`
		Point struct {
			Lat string `xml:"lat,attr"`
			Lon string `xml:"lon,attr"`
		} `xml:"point"`
		Detail struct {
			Contact struct {
				Callsign string `xml:"callsign,attr"`
			} `xml:"contact"`
			Group struct {
				Name string `xml:"name,attr"`
				Role string `xml:"role,attr"`
			} `xml:"__group"`
		} `xml:"detail"`
	}
	require.NoError(t, xml.Unmarshal(doc, &ev))

	assert.Equal(t, "TEST-UID-collar", ev.UID)
	assert.Equal(t, "a-f-G-U-C-I", ev.Type)
	assert.Equal(t, "2026-05-14T16:30:00.000Z", ev.Time)
	assert.Equal(t, ev.Time, ev.Start)
	assert.Equal(t, "2026-05-14T16:30:30.000Z", ev.Stale)
	assert.Equal(t, "m-g", ev.How)
	assert.Equal(t, "43.7417006", ev.Point.Lat)
	assert.Equal(t, "-116.0100460", ev.Point.Lon)
	assert.Equal(t, "K9-ROVER", ev.Detail.Contact.Callsign)
	assert.Equal(t, "CCVFD-SAR", ev.Detail.Group.Name)
	assert.Equal(t, "SAR Canine", ev.Detail.Group.Role)
}

func TestEncodeDistinctUIDsPerSource(t *testing.T) {
	e := NewEncoder("TEST-UID", "K9-ROVER", "", "")
	now := time.Now()

	collar := testPosition
	handheld := testPosition
	handheld.Source = alpha.SourceHandheld

	collarDoc, err := e.Encode(collar, now)
	require.NoError(t, err)
	handheldDoc, err := e.Encode(handheld, now)
	require.NoError(t, err)

	assert.Contains(t, string(collarDoc), `uid="TEST-UID-collar"`)
	assert.Contains(t, string(handheldDoc), `uid="TEST-UID-handheld"`)
	assert.Contains(t, string(handheldDoc), `type="a-f-G-U-C"`)
}

func TestEncodeStaleHonorsConfiguredWindow(t *testing.T) {
	e := NewEncoder("TEST-UID", "K9-ROVER", "", "")
	e.Stale = 5 * time.Minute
	now := time.Date(2026, 5, 14, 16, 30, 0, 0, time.UTC)

	doc, err := e.Encode(testPosition, now)
	require.NoError(t, err)
	assert.Contains(t, string(doc), `stale="2026-05-14T16:35:00.000Z"`)
}
