package jsonrpc

import (
	"context"
	"io"
)

// Conn is the client side of a persistent connection.
type Conn interface {
	io.Writer
	Equal(other Conn) bool
}

type connKey struct{}

func withConn(ctx context.Context, conn Conn) context.Context {
	return context.WithValue(ctx, connKey{}, conn)
}

// ConnFromContext returns the connection a request arrived on. Requests served over HTTP carry none.
func ConnFromContext(ctx context.Context) (Conn, bool) {
	conn, ok := ctx.Value(connKey{}).(Conn)
	return conn, ok && conn != nil
}
