//go:build dev

package webservice

// Development builds may talk to a plain-http server. Release builds keep the
// https precondition.
func init() {
	insecureTransportAllowed = true
}
