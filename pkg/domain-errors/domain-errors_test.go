package domainerrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/suite"
)

// DomainErrorsSuite tests the domain error primitives.
//
// Justification: These are core error primitives used at every trust boundary.
// Unit tests ensure invariants like "wrapped domain errors preserve original code"
// and "errors.Is matches by code" are maintained.
type DomainErrorsSuite struct {
	suite.Suite
}

func TestDomainErrorsSuite(t *testing.T) {
	suite.Run(t, new(DomainErrorsSuite))
}

func (s *DomainErrorsSuite) TestErrorInterface() {
	s.Run("returns message when present", func() {
		err := &Error{Code: CodeNotFound, Message: "code not found"}
		s.Equal("code not found", err.Error())
	})

	s.Run("returns code when message is empty", func() {
		err := &Error{Code: CodeExpired}
		s.Equal("expired", err.Error())
	})
}

func (s *DomainErrorsSuite) TestUnwrap() {
	s.Run("returns wrapped error", func() {
		inner := errors.New("database connection failed")
		err := &Error{Code: CodeInternal, Message: "service error", Err: inner}
		s.Equal(inner, err.Unwrap())
	})

	s.Run("returns nil when no wrapped error", func() {
		err := &Error{Code: CodeNotFound, Message: "not found"}
		s.Nil(err.Unwrap())
	})
}

func (s *DomainErrorsSuite) TestIsMatching() {
	s.Run("matches by code only", func() {
		err1 := &Error{Code: CodeInvalidated, Message: "too many attempts"}
		err2 := &Error{Code: CodeInvalidated, Message: "superseded by resend"}
		s.True(err1.Is(err2))
	})

	s.Run("does not match different codes", func() {
		err1 := &Error{Code: CodeExpired}
		err2 := &Error{Code: CodeInvalidated}
		s.False(err1.Is(err2))
	})

	s.Run("works with errors.Is through chain", func() {
		inner := &Error{Code: CodeIncorrectCode, Message: "original"}
		wrapped := &Error{Code: CodeInternal, Message: "wrapped", Err: inner}
		target := &Error{Code: CodeIncorrectCode}
		s.True(errors.Is(wrapped, target))
	})
}

func (s *DomainErrorsSuite) TestWrapPreservesCode() {
	s.Run("wrapping a domain error keeps the inner code", func() {
		inner := New(CodeRateLimited, "too many requests")
		wrapped := Wrap(inner, CodeInternal, "issue failed")
		s.True(HasCode(wrapped, CodeRateLimited))
	})

	s.Run("wrapping a plain error uses the given code", func() {
		wrapped := Wrap(errors.New("boom"), CodeInternal, "store failure")
		s.True(HasCode(wrapped, CodeInternal))
	})
}

func (s *DomainErrorsSuite) TestCodeOf() {
	s.Run("extracts code from domain error", func() {
		s.Equal(CodeAccountLocked, CodeOf(New(CodeAccountLocked, "locked")))
	})

	s.Run("defaults to internal for foreign errors", func() {
		s.Equal(CodeInternal, CodeOf(errors.New("boom")))
	})

	s.Run("sees through wrapping", func() {
		err := Wrap(New(CodeExpired, "expired"), CodeInternal, "validate failed")
		s.Equal(CodeExpired, CodeOf(err))
	})
}
