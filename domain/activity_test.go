package domain

import (
	"errors"
	"testing"
	"time"
)

func now() time.Time {
	return time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)
}

func TestParseActivityType(t *testing.T) {
	for _, typ := range ActivityTypes() {
		parsed, err := ParseActivityType(string(typ))
		if err != nil {
			t.Fatalf("expected %q to parse, got %v", typ, err)
		}
		if parsed != typ {
			t.Fatalf("expected %q got %q", typ, parsed)
		}
	}
}

func TestParseActivityTypeRejectsUnknown(t *testing.T) {
	_, err := ParseActivityType("bark")
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestActivityTypeLabelsAreExhaustive(t *testing.T) {
	for _, typ := range ActivityTypes() {
		if !typ.Valid() {
			t.Fatalf("declared type %q reported invalid", typ)
		}
		// Label's switch must cover every declared constant; falling through
		// to the raw string means a case is missing.
		if typ.Label() == string(typ) {
			t.Fatalf("no label for declared type %q", typ)
		}
	}
}

func TestActivityPatchEmpty(t *testing.T) {
	if !(ActivityPatch{}).Empty() {
		t.Fatal("zero patch should be empty")
	}
	notes := "chewed the sofa"
	if (ActivityPatch{Notes: &notes}).Empty() {
		t.Fatal("patch with notes should not be empty")
	}
}

func TestSessionExpired(t *testing.T) {
	var nilSession *Session
	if !nilSession.Expired(now()) {
		t.Fatal("nil session should read as expired")
	}

	live := &Session{ExpiresAt: now().Add(time.Hour)}
	if live.Expired(now()) {
		t.Fatal("future expiry should not be expired")
	}

	stale := &Session{ExpiresAt: now().Add(-time.Minute)}
	if !stale.Expired(now()) {
		t.Fatal("past expiry should be expired")
	}

	unset := &Session{}
	if unset.Expired(now()) {
		t.Fatal("zero expiry means the provider set none; treat as live")
	}
}
