package errno

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithMessageKeepsCode(t *testing.T) {
	err := ErrValidation.WithMessage("value %q is not an integer", "abc")
	assert.Equal(t, ErrValidation.Code, err.Code)
	assert.Equal(t, `value "abc" is not an integer`, err.Message)
	assert.True(t, ErrValidation.Is(err))
}

func TestIsMatchesByCode(t *testing.T) {
	assert.True(t, errors.Is(ErrBusy.WithMessage("try later"), ErrBusy))
	assert.False(t, errors.Is(ErrBusy, ErrAuth))

	// 经过 %w 包装后依然可以匹配
	wrapped := fmt.Errorf("approve failed: %w", ErrAuth)
	assert.True(t, errors.Is(wrapped, ErrAuth))
}

func TestDecode(t *testing.T) {
	code, msg := Decode(nil)
	assert.Equal(t, OK.Code, code)
	assert.Equal(t, OK.Message, msg)

	code, msg = Decode(ErrRecordNotFound)
	assert.Equal(t, ErrRecordNotFound.Code, code)
	assert.Equal(t, ErrRecordNotFound.Message, msg)

	code, _ = Decode(errors.New("boom"))
	assert.Equal(t, InternalServerError.Code, code)
}
