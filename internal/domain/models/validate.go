package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var (
	ErrMissingField     = errors.New("envelope: missing field")
	ErrUnexpectedField  = errors.New("envelope: unexpected field")
	ErrInvalidTimestamp = errors.New("envelope: timestamp must be ISO-8601 with a UTC offset")
	ErrInvalidEnvelope  = errors.New("envelope: invalid")
)

var envelopeFields = []string{"event_id", "event_type", "timestamp", "source", "version", "host", "payload"}

var envelopeValidator = newEnvelopeValidator()

func newEnvelopeValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("utc_timestamp", func(fl validator.FieldLevel) bool {
		_, err := ParseUTCTimestamp(fl.Field().String())
		return err == nil
	})
	return v
}

// ParseUTCTimestamp accepts RFC 3339 timestamps with an explicit zero offset
// ("Z" or "+00:00"). Naive timestamps and other offsets are rejected.
func ParseUTCTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, s)
	}
	if _, off := t.Zone(); off != 0 {
		return time.Time{}, fmt.Errorf("%w: non-UTC offset in %q", ErrInvalidTimestamp, s)
	}
	return t.UTC(), nil
}

// ParseLenientTimestamp reads timestamps found in heartbeat lines and
// historical records. A missing offset is taken as UTC.
func ParseLenientTimestamp(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), true
	}
	for _, layout := range []string{"2006-01-02T15:04:05.999999999", "2006-01-02 15:04:05.999999999"} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ValidateEnvelope checks field presence, the event_id format and the
// timestamp rule.
func ValidateEnvelope(e *Envelope) error {
	err := envelopeValidator.Struct(e)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fmt.Errorf("%w: %s", ErrMissingField, fe.Field())
	case "utc_timestamp":
		return fmt.Errorf("%w: %q", ErrInvalidTimestamp, fe.Value())
	default:
		return fmt.Errorf("%w: %s failed %s", ErrInvalidEnvelope, fe.Field(), fe.Tag())
	}
}

// ValidateEnvelopeJSON decodes one serialized envelope and requires its key
// set to be exactly the seven canonical fields.
func ValidateEnvelopeJSON(raw []byte) (*Envelope, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}

	var missing, extra []string
	for _, k := range envelopeFields {
		if _, ok := fields[k]; !ok {
			missing = append(missing, k)
		}
	}
	for k := range fields {
		if !isEnvelopeField(k) {
			extra = append(extra, k)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingField, strings.Join(missing, ", "))
	}
	if len(extra) > 0 {
		sort.Strings(extra)
		return nil, fmt.Errorf("%w: %s", ErrUnexpectedField, strings.Join(extra, ", "))
	}

	var e Envelope
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	if err := ValidateEnvelope(&e); err != nil {
		return nil, err
	}
	return &e, nil
}

func isEnvelopeField(k string) bool {
	for _, f := range envelopeFields {
		if f == k {
			return true
		}
	}
	return false
}
