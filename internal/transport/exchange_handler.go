package transport

import (
	"net"

	tomb "gopkg.in/tomb.v2"

	"github.com/saiputravu-labs/meridian/internal/exchange"
)

// NewExchangeHandler builds the frame Handler for the exchange/bootstrap
// node: it only ever sees AssignClient frames, authenticating the client
// before handing back an engine address.
func NewExchangeHandler(x *exchange.Exchange) Handler {
	return func(t *tomb.Tomb, conn net.Conn, f Frame) error {
		if f.Method != MethodAssignClient {
			return ErrInvalidMethod
		}
		req, err := DecodeAssignClientRequest(f.Payload)
		if err != nil {
			return err
		}
		if !x.Authenticate(req.ClientID, req.Secret) {
			return WriteFrame(conn, MethodAssignClient, AssignClientResponse{Authenticated: false}.Encode())
		}
		addr, err := x.AssignClient(req.Location)
		if err != nil {
			return WriteFrame(conn, MethodAssignClient, AssignClientResponse{Authenticated: true}.Encode())
		}
		return WriteFrame(conn, MethodAssignClient, AssignClientResponse{Authenticated: true, EngineAddr: addr}.Encode())
	}
}
