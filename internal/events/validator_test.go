package events

import (
	"errors"
	"testing"
)

func newValidator(t *testing.T) *Validator {
	t.Helper()
	v, err := NewValidator("../../schemas")
	if err != nil {
		t.Fatalf("NewValidator: %v", err)
	}
	return v
}

func TestValidator_LoadsAllEvents(t *testing.T) {
	v := newValidator(t)
	for _, event := range []string{EventUpload, EventConversion, EventExport} {
		if err := v.Validate(event, []byte(`{"filename":"cat.png"}`)); event != EventExport && err != nil {
			t.Errorf("%s: unexpected error %v", event, err)
		}
	}
}

func TestValidator_ExportRequiresFormat(t *testing.T) {
	v := newValidator(t)

	if err := v.Validate(EventExport, []byte(`{"format":"svg","filename":"cat.svg"}`)); err != nil {
		t.Errorf("valid export payload rejected: %v", err)
	}
	err := v.Validate(EventExport, []byte(`{"filename":"cat.svg"}`))
	if !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation for missing format, got %v", err)
	}
	err = v.Validate(EventExport, []byte(`{"format":"bmp"}`))
	if !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation for unknown format, got %v", err)
	}
}

func TestValidator_RejectsMalformedJSON(t *testing.T) {
	v := newValidator(t)
	err := v.Validate(EventUpload, []byte(`{not json`))
	if !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestValidator_UnknownEvent(t *testing.T) {
	v := newValidator(t)
	if err := v.Validate("telemetry", []byte(`{}`)); err == nil {
		t.Error("expected an error for an unregistered event")
	}
}
