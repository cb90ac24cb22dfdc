package model

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/hashicorp/go-multierror"
)

func TestClassifyMediaKind(t *testing.T) {
	tests := []struct {
		contentType string
		want        MediaKind
	}{
		{"image/png", MediaKindImage},
		{" IMAGE/JPEG ", MediaKindImage},
		{"application/pdf", MediaKindDocument},
		{"", MediaKindDocument},
		{"text/plain; charset=utf-8", MediaKindDocument},
	}
	for _, tt := range tests {
		if got := ClassifyMediaKind(tt.contentType); got != tt.want {
			t.Errorf("ClassifyMediaKind(%q) = %q, want %q", tt.contentType, got, tt.want)
		}
	}
}

func TestIsInlineImageType(t *testing.T) {
	tests := []struct {
		contentType string
		want        bool
	}{
		{"image/png", true},
		{"IMAGE/JPEG", true},
		{"image/webp; q=1", true},
		{"image/gif", true},
		{"image/svg+xml", false},
		{"image/x-icon", false},
		{"text/html", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsInlineImageType(tt.contentType); got != tt.want {
			t.Errorf("IsInlineImageType(%q) = %v, want %v", tt.contentType, got, tt.want)
		}
	}
}

func TestSession_Expired(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s := &Session{ExpiresAt: now}

	if !s.Expired(now) {
		t.Error("session should be expired at ExpiresAt")
	}
	if s.Expired(now.Add(-time.Second)) {
		t.Error("session should be valid before ExpiresAt")
	}
}

func TestIsCode(t *testing.T) {
	wrapped := fmt.Errorf("vote: %w", NewLedgerRuleViolationError("Already voted"))

	if !IsCode(wrapped, ErrCodeLedgerRuleViolation) {
		t.Error("IsCode should see through wrapping")
	}
	if IsCode(wrapped, ErrCodeLedgerTimeout) {
		t.Error("IsCode should not match a different code")
	}
	if IsCode(errors.New("plain"), ErrCodeLedgerRuleViolation) {
		t.Error("IsCode should be false for non-APIError")
	}
}

func TestRequireFieldsAndValidationErrorFrom(t *testing.T) {
	var merr *multierror.Error
	merr = RequireFields(merr, "name", "Asha", "mobile", "", "aadhar", "")
	merr = multierror.Append(merr, &FieldError{Field: "ethAddress", Reason: "invalid address"})

	err := ValidationErrorFrom(merr)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Code != ErrCodeValidation {
		t.Fatalf("err = %v, want VALIDATION_ERROR", err)
	}
	want := []string{"mobile: required", "aadhar: required", "ethAddress: invalid address"}
	if len(apiErr.Details) != len(want) {
		t.Fatalf("Details = %v, want %v", apiErr.Details, want)
	}
	for i := range want {
		if apiErr.Details[i] != want[i] {
			t.Errorf("Details[%d] = %q, want %q", i, apiErr.Details[i], want[i])
		}
	}
}

func TestValidationErrorFrom_NoErrors(t *testing.T) {
	var merr *multierror.Error
	merr = RequireFields(merr, "name", "Asha")
	if err := ValidationErrorFrom(merr); err != nil {
		t.Errorf("err = %v, want nil", err)
	}
}

func TestCandidate_DateOfBirthString(t *testing.T) {
	tests := []struct {
		dob  time.Time
		want string
	}{
		{time.Date(1984, 5, 1, 0, 0, 0, 0, time.UTC), "1984-05-01"},
		{time.Date(1950, 12, 31, 0, 0, 0, 0, time.UTC), "1950-12-31"},
		// UTC以外のタイムゾーンでもUTC日付で表す
		{time.Date(1984, 5, 1, 3, 0, 0, 0, time.FixedZone("IST", 5*3600+1800)), "1984-04-30"},
	}
	for _, tt := range tests {
		c := &Candidate{DateOfBirth: tt.dob}
		if got := c.DateOfBirthString(); got != tt.want {
			t.Errorf("DateOfBirthString(%v) = %q, want %q", tt.dob, got, tt.want)
		}
	}
}

func TestAPIError_Error(t *testing.T) {
	err := NewValidationError("name: required", "age: required")
	if got := err.Error(); got != "[VALIDATION_ERROR] "+err.Message+" (name: required; age: required)" {
		t.Errorf("Error() = %q", got)
	}
	if got := NewAdminForbiddenError().Error(); got != "[ADMIN_FORBIDDEN] "+NewAdminForbiddenError().Message {
		t.Errorf("Error() = %q", got)
	}
}
