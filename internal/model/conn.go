package model

// Conn is a live client connection as the lobby core sees it. The id is
// opaque and unique per socket, which lets broadcasts exclude an originator
// without comparing connection identity.
type Conn interface {
	ID() string
	SendJSON(v any) error
	Open() bool
}
