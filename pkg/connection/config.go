package connection

import (
	"fmt"
	"net/url"

	"github.com/modelsync/modelsync/internal/codec"
	"github.com/modelsync/modelsync/pkg/constants"
	"github.com/modelsync/modelsync/pkg/logger"
	"github.com/modelsync/modelsync/pkg/wire"
)

type Config struct {
	URL   url.URL
	Codec codec.Codec
	// QueueSize bounds the outbound queue; messages beyond it are dropped
	// and logged.
	QueueSize int
	Logger    logger.Logger
	// Retryer, when set, paces further dial attempts after a failed one.
	Retryer Retryer
	// OnMessage receives every inbound message, from the transport's read
	// goroutine.
	OnMessage func(*Message)
}

// NewConfig creates a Config for the websocket endpoint u. The codec is
// chosen by the "codec" query parameter and defaults to JSON.
func NewConfig(u *url.URL) (*Config, error) {
	if u.Scheme != constants.WebsocketScheme && u.Scheme != constants.WebsocketSecureScheme {
		return nil, fmt.Errorf("invalid websocket scheme %q", u.Scheme)
	}
	name := u.Query().Get("codec")
	c, ok := wire.ByName(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", constants.ErrUnknownCodec, name)
	}
	return &Config{
		URL:       *u,
		Codec:     c,
		QueueSize: constants.DefaultQueueSize,
		Logger:    logger.Default(),
	}, nil
}
