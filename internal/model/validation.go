package model

import (
	"errors"

	"github.com/hashicorp/go-multierror"
)

// FieldError は1項目分の入力エラー。
type FieldError struct {
	Field  string
	Reason string
}

// Error はerrorインターフェースを実装する。
func (e *FieldError) Error() string {
	return e.Field + ": " + e.Reason
}

// RequireFields は値が空の項目についてFieldErrorを蓄積する。
// fieldsは項目名と値の組を交互に並べる。
func RequireFields(merr *multierror.Error, fields ...string) *multierror.Error {
	for i := 0; i+1 < len(fields); i += 2 {
		if fields[i+1] == "" {
			merr = multierror.Append(merr, &FieldError{Field: fields[i], Reason: "required"})
		}
	}
	return merr
}

// ValidationErrorFrom は蓄積した入力エラーをValidationErrorに変換する。
// エラーがなければnilを返す。
func ValidationErrorFrom(merr *multierror.Error) error {
	if merr.ErrorOrNil() == nil {
		return nil
	}
	details := make([]string, 0, len(merr.Errors))
	for _, err := range merr.Errors {
		var fe *FieldError
		if errors.As(err, &fe) {
			details = append(details, fe.Error())
			continue
		}
		details = append(details, err.Error())
	}
	return NewValidationError(details...)
}
