package auth

import (
	"context"
	"crypto/subtle"

	"signer-core/pkg/errno"
)

// Authenticator 是签名前的授权闸门
// 移动端是生物识别，服务端用本地口令 / 外部审批系统代替
type Authenticator interface {
	// Authenticate 在签名前请求用户授权
	// reason 会展示给用户 (例如 "Approve transaction to 0xabc...")
	// 授权失败或不可用时返回 errno.ErrAuth
	Authenticate(ctx context.Context, reason string) error
}

// StaticAuthenticator 使用共享口令做授权校验
// 口令通过 approveAndSubmit 请求随附的 passcode 字段传入
type StaticAuthenticator struct {
	passcode string
}

func NewStaticAuthenticator(passcode string) *StaticAuthenticator {
	return &StaticAuthenticator{passcode: passcode}
}

type passcodeKey struct{}

// WithPasscode 把请求携带的口令放进 context
func WithPasscode(ctx context.Context, passcode string) context.Context {
	return context.WithValue(ctx, passcodeKey{}, passcode)
}

func (a *StaticAuthenticator) Authenticate(ctx context.Context, reason string) error {
	if a.passcode == "" {
		// 未配置口令视为开发模式，直接放行
		return nil
	}

	got, _ := ctx.Value(passcodeKey{}).(string)
	if subtle.ConstantTimeCompare([]byte(got), []byte(a.passcode)) != 1 {
		return errno.ErrAuth
	}
	return nil
}
