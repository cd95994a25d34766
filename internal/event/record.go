package event

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"time"
)

// An event as rendered by the Windows event log in XML, e.g. by wevtutil qe Security /f:xml.
type XMLRecord struct {
	EventID int `xml:"System>EventID"`
	Created struct {
		SystemTime string `xml:"SystemTime,attr"`
	} `xml:"System>TimeCreated"`
	Data []struct {
		Name  string `xml:"Name,attr"`
		Value string `xml:",chardata"`
	} `xml:"EventData>Data"`
	raw []byte
}

// In-memory event for producers that do not deliver XML.
type Fields struct {
	EventID int
	Created *time.Time
	Data    map[string]string
}

// Decodes all Event elements found in the data.
// Returns the records decoded so far together with the error if the data is malformed.
func Decode(data []byte) ([]*XMLRecord, error) {
	var records []*XMLRecord
	decoder := xml.NewDecoder(bytes.NewReader(data))
	for {
		offset := decoder.InputOffset()
		token, err := decoder.Token()
		if err == io.EOF {
			return records, nil
		}
		if err != nil {
			return records, err
		}
		start, ok := token.(xml.StartElement)
		if !ok || start.Name.Local != "Event" {
			continue
		}
		var rec XMLRecord
		if err = decoder.DecodeElement(&rec, &start); err != nil {
			return records, fmt.Errorf("cannot decode event at offset %d: %w", offset, err)
		}
		rec.raw = bytes.TrimSpace(data[offset:decoder.InputOffset()])
		records = append(records, &rec)
	}
}

func (rec *XMLRecord) ID() int {
	return rec.EventID
}

func (rec *XMLRecord) TimeCreated() *time.Time {
	if len(rec.Created.SystemTime) == 0 {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(rec.Created.SystemTime))
	if err != nil {
		return nil
	}
	return &t
}

func (rec *XMLRecord) Field(name string) (string, bool) {
	for _, data := range rec.Data {
		if data.Name == name {
			return strings.TrimSpace(data.Value), true
		}
	}
	return "", false
}

// Returns the XML text the record was decoded from.
func (rec *XMLRecord) Raw() []byte {
	return rec.raw
}

func (f *Fields) ID() int {
	return f.EventID
}

func (f *Fields) TimeCreated() *time.Time {
	return f.Created
}

func (f *Fields) Field(name string) (string, bool) {
	val, ok := f.Data[name]
	return val, ok
}
