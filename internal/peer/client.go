package peer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/imroc/req/v3"
	"github.com/openmined/dirsync/internal/version"
)

const (
	DefaultPort             = 8080
	DefaultHandshakeTimeout = 2 * time.Second
)

var (
	ErrHandshakeStatus    = errors.New("handshake: unexpected status")
	ErrMalformedHandshake = errors.New("handshake: malformed device payload")
)

// handshakePayload keeps id optional so a body without one is rejected
// instead of decoding as device 0.
type handshakePayload struct {
	ID   *int64 `json:"id"`
	Name string `json:"name"`
}

// Client asks a host on the LAN to identify itself.
type Client struct {
	http *req.Client
	port int
}

func NewClient(port int, timeout time.Duration) *Client {
	if port <= 0 {
		port = DefaultPort
	}
	if timeout <= 0 {
		timeout = DefaultHandshakeTimeout
	}

	return &Client{
		port: port,
		http: req.C().
			SetTimeout(timeout).
			SetUserAgent(version.AppName+"/"+version.Version).
			SetJsonMarshal(json.Marshal).
			SetJsonUnmarshal(json.Unmarshal),
	}
}

func (c *Client) Port() int {
	return c.port
}

// Handshake issues GET http://<ip>:<port>/ and decodes the device it
// answers with. Any failure means there is no device at ip.
func (c *Client) Handshake(ctx context.Context, ip string) (*Device, error) {
	url := "http://" + net.JoinHostPort(ip, strconv.Itoa(c.port)) + "/"

	res, err := c.http.R().
		SetContext(ctx).
		Get(url)
	if err != nil {
		return nil, fmt.Errorf("handshake %s: %w", ip, err)
	}

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w %d from %s", ErrHandshakeStatus, res.StatusCode, ip)
	}

	var payload handshakePayload
	if err := json.Unmarshal(res.Bytes(), &payload); err != nil {
		return nil, fmt.Errorf("%w from %s: %v", ErrMalformedHandshake, ip, err)
	}
	if payload.ID == nil {
		return nil, fmt.Errorf("%w from %s: missing id", ErrMalformedHandshake, ip)
	}

	return &Device{ID: *payload.ID, Name: payload.Name}, nil
}
