package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/suite"
)

type ErrorTestSuite struct {
	suite.Suite
}

func TestErrorSuite(t *testing.T) {
	suite.Run(t, new(ErrorTestSuite))
}

func (suite *ErrorTestSuite) TestNewError() {
	err := New(ErrCodeInvalidParameter, "invalid parameter")
	suite.NotNil(err)
	suite.Equal(ErrCodeInvalidParameter, err.Code)
	suite.Equal("invalid parameter", err.Message)
	suite.Nil(err.Cause)
}

func (suite *ErrorTestSuite) TestNewfError() {
	err := Newf(ErrCodeUnsupportedSymbol, "no trading rule for %s", "BTC-USDC")
	suite.Equal(ErrCodeUnsupportedSymbol, err.Code)
	suite.Equal("no trading rule for BTC-USDC", err.Message)
}

func (suite *ErrorTestSuite) TestWrapError() {
	cause := errors.New("connection reset")
	err := Wrap(ErrCodeUpstream, "failed to fetch positions", cause)
	suite.Equal(ErrCodeUpstream, err.Code)
	suite.Equal(cause, err.Cause)
	suite.Equal(cause, err.Unwrap())
	suite.True(Is(err, cause))
}

func (suite *ErrorTestSuite) TestWrapfError() {
	cause := errors.New("deadline exceeded")
	err := Wrapf(ErrCodeUpstreamTimeout, cause, "request timed out: url=%s", "/v1/ticker")
	suite.Equal("request timed out: url=/v1/ticker", err.Message)
}

func (suite *ErrorTestSuite) TestErrorString() {
	suite.Equal("[200] invalid parameter", New(ErrCodeInvalidParameter, "invalid parameter").Error())

	err := Wrap(ErrCodeUpstream, "upstream failed", errors.New("boom"))
	suite.Equal("[300] upstream failed: boom", err.Error())
}

func (suite *ErrorTestSuite) TestGetCode() {
	suite.Equal(ErrCodeDataShape, GetCode(New(ErrCodeDataShape, "missing field")))
	suite.Equal(ErrCodeUnknown, GetCode(errors.New("standard error")))

	// outermost code wins
	inner := New(ErrCodeUpstreamTimeout, "timeout")
	suite.Equal(ErrCodeOrderRejected, GetCode(Wrap(ErrCodeOrderRejected, "rejected", inner)))
}

func (suite *ErrorTestSuite) TestHasCode() {
	err := New(ErrCodePriceUnavailable, "unavailable")
	suite.True(HasCode(err, ErrCodePriceUnavailable))
	suite.False(HasCode(err, ErrCodeNotFound))
}

func (suite *ErrorTestSuite) TestCategories() {
	suite.True(IsConfiguration(New(ErrCodeMissingSecret, "missing")))
	suite.False(IsConfiguration(New(ErrCodeUpstream, "x")))
	suite.True(IsUpstream(New(ErrCodeOrderRejected, "x")))
	suite.True(IsUpstream(New(ErrCodeUpstreamTimeout, "x")))
	suite.False(IsUpstream(errors.New("plain")))
}

func (suite *ErrorTestSuite) TestMessage() {
	suite.Equal("Insufficient balance (30031)", Message(New(ErrCodeOrderRejected, "Insufficient balance (30031)")))
	suite.Equal("plain", Message(errors.New("plain")))
	suite.Equal("", Message(nil))
}

func (suite *ErrorTestSuite) TestAsError() {
	err := New(ErrCodeInvalidParameter, "invalid parameter")
	var coded *Error
	suite.True(As(err, &coded))
	suite.Equal(ErrCodeInvalidParameter, coded.Code)
}
