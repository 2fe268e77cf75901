package lambda

import "context"

type clientAddressKey struct{}

// ClientAddressFunc resolves the address of the client that sent a request.
// It is evaluated lazily, so a misconfigured address header only fails the
// requests that actually ask for the address.
type ClientAddressFunc func() (string, error)

// WithClientAddress attaches fn to ctx.
func WithClientAddress(ctx context.Context, fn ClientAddressFunc) context.Context {
	return context.WithValue(ctx, clientAddressKey{}, fn)
}

// ClientAddress returns the client address recorded in ctx.
func ClientAddress(ctx context.Context) (string, error) {
	fn, ok := ctx.Value(clientAddressKey{}).(ClientAddressFunc)
	if !ok {
		return "", nil
	}
	return fn()
}
