package transform

import (
	"bytes"
	"encoding/json"
	"fmt"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Row is one record of a report payload, keyed by column name.
type Row = map[string]interface{}

// Header carries the routing metadata of a report envelope.
type Header struct {
	Report     string  `json:"report"`
	KeyID      *string `json:"key_id"`
	IsTruncate bool    `json:"is_truncate"`
}

// Envelope is the JSON body of one broker message.
type Envelope struct {
	Header Header `json:"header"`
	Data   []Row  `json:"data"`
}

// Key returns the business key, or the empty string for a null key_id.
func (e *Envelope) Key() string {
	if e.Header.KeyID == nil {
		return ""
	}
	return *e.Header.KeyID
}

// DecodeEnvelope parses a message body, tolerating a UTF-8 BOM prefix.
func DecodeEnvelope(body []byte) (*Envelope, error) {
	body = bytes.TrimPrefix(body, utf8BOM)

	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &ContentError{Reason: fmt.Sprintf("decoding envelope: %v", err)}
	}
	return &env, nil
}
