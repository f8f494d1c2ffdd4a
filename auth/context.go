package auth

import "context"

// AttributeName is the name under which the resolved identity is attached to
// a request. It is also used as the log group for authentication details.
const AttributeName = "auth_user"

type userInfoKey struct{}

// WithUserInfo attaches user info to a context.
func WithUserInfo(ctx context.Context, ui UserInfo) context.Context {
	return context.WithValue(ctx, userInfoKey{}, ui)
}

// UserInfoFromContext returns the user info attached by the gate, if any.
func UserInfoFromContext(ctx context.Context) (UserInfo, bool) {
	ui, ok := ctx.Value(userInfoKey{}).(UserInfo)
	return ui, ok && ui != nil
}
