package auth

import (
	"context"
	"testing"

	"signer-core/pkg/errno"

	"github.com/stretchr/testify/assert"
)

func TestStaticAuthenticator(t *testing.T) {
	a := NewStaticAuthenticator("secret")

	// 口令正确
	ctx := WithPasscode(context.Background(), "secret")
	assert.NoError(t, a.Authenticate(ctx, "approve tx"))

	// 口令错误
	ctx = WithPasscode(context.Background(), "nope")
	err := a.Authenticate(ctx, "approve tx")
	assert.True(t, errno.ErrAuth.Is(err))

	// 没带口令
	err = a.Authenticate(context.Background(), "approve tx")
	assert.True(t, errno.ErrAuth.Is(err))
}

func TestStaticAuthenticatorDevMode(t *testing.T) {
	// 未配置口令视为开发模式，直接放行
	a := NewStaticAuthenticator("")
	assert.NoError(t, a.Authenticate(context.Background(), "approve tx"))
}
