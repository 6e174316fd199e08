package health

import "context"

// APIPinger checks the content API.
type APIPinger interface {
	Ping(ctx context.Context) error
}

// StorePinger checks the bookmark store.
type StorePinger interface {
	Ping(ctx context.Context) error
}
