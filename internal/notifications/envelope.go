package notifications

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// SiteAttribute is the message attribute carrying the producing site identity.
const SiteAttribute = "siteid"

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" {
			return f.Name
		}
		return tag
	})
	return v
}

// Envelope is the completion notification body published by each sub-process.
type Envelope struct {
	SiteID    string          `json:"siteid"`
	ObjectKey string          `json:"objectkey" validate:"required"`
	Process   string          `json:"process" validate:"required"`
	Status    string          `json:"status" validate:"required"`
	Message   json.RawMessage `json:"message,omitempty"`
	Timestamp json.RawMessage `json:"timestamp,omitempty"`
}

// DecodeEnvelope parses and validates a message body. Bodies may arrive base64 encoded.
func DecodeEnvelope(data []byte) (Envelope, error) {
	payload, err := decodePayload(data)
	if err != nil {
		return Envelope{}, err
	}
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	env.ObjectKey = strings.TrimSpace(env.ObjectKey)
	env.Process = strings.TrimSpace(env.Process)
	env.Status = strings.TrimSpace(env.Status)
	env.SiteID = strings.TrimSpace(env.SiteID)
	if err := validate.Struct(env); err != nil {
		return Envelope{}, fmt.Errorf("invalid envelope: %w", err)
	}
	return env, nil
}

func decodePayload(data []byte) ([]byte, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("payload empty")
	}
	if trimmed[0] == '{' {
		return trimmed, nil
	}
	if decoded, err := base64.StdEncoding.DecodeString(string(trimmed)); err == nil {
		return decoded, nil
	}
	return trimmed, nil
}

// Hash identifies the semantic content of a notification. Redeliveries and
// duplicate publishes of the same outcome share a hash even when their
// timestamps differ.
func (e Envelope) Hash() string {
	canonical, _ := json.Marshal(struct {
		ObjectKey string `json:"objectkey"`
		Process   string `json:"process"`
		Status    string `json:"status"`
		Message   string `json:"message"`
	}{
		ObjectKey: e.ObjectKey,
		Process:   e.Process,
		Status:    strings.ToUpper(e.Status),
		Message:   compactJSON(e.Message),
	})
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])
}

// VendorTime parses the optional timestamp as RFC 3339 or unix seconds/milliseconds.
func (e Envelope) VendorTime() *time.Time {
	raw := strings.Trim(strings.TrimSpace(string(e.Timestamp)), `"`)
	if raw == "" || raw == "null" {
		return nil
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		utc := t.UTC()
		return &utc
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil && n > 0 {
		var t time.Time
		if n > 1e12 {
			t = time.UnixMilli(n)
		} else {
			t = time.Unix(n, 0)
		}
		utc := t.UTC()
		return &utc
	}
	return nil
}

func compactJSON(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

func previewBytes(b []byte, max int) string {
	if len(b) <= max {
		return string(b)
	}
	return string(b[:max]) + "...(truncated)"
}
