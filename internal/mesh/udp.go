package mesh

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"

	"golang.org/x/time/rate"
)

// Defaults match the shared mesh channel the radios listen on.
const (
	DefaultGroup   = "224.0.0.69"
	DefaultPort    = 4403
	DefaultChannel = "LongFast"
	DefaultKey     = "AQ=="
)

type Config struct {
	Group   string
	Port    int
	Channel string
	// Key is the shared channel key, carried in the frame header so
	// receivers can match the channel.
	Key string

	// MaxSendsPerSec caps the outbound datagram rate. The mesh has no flow
	// control; the radios assume senders respect the duty cycle.
	MaxSendsPerSec float64
}

func (c Config) withDefaults() Config {
	if c.Group == "" {
		c.Group = DefaultGroup
	}
	if c.Port <= 0 {
		c.Port = DefaultPort
	}
	if c.Channel == "" {
		c.Channel = DefaultChannel
	}
	if c.Key == "" {
		c.Key = DefaultKey
	}
	if c.MaxSendsPerSec <= 0 {
		c.MaxSendsPerSec = 1
	}
	return c
}

// UDP publishes packets to the multicast mesh group.
//
// The identity announced last is attached as sender to subsequent text and
// position packets, mirroring how the radio firmware attributes packets to
// the most recently heard nodeinfo.
type UDP struct {
	conn    *net.UDPConn
	channel string
	key     string
	limiter *rate.Limiter

	mu   sync.Mutex
	node NodeInfo
}

var _ Transport = (*UDP)(nil)

// Dial opens the multicast socket. The caller owns Close.
func Dial(cfg Config) (*UDP, error) {
	cfg = cfg.withDefaults()

	addr, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(cfg.Group, strconv.Itoa(cfg.Port)))
	if err != nil {
		return nil, fmt.Errorf("mesh: resolve %s:%d: %w", cfg.Group, cfg.Port, err)
	}
	conn, err := net.DialUDP("udp4", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("mesh: dial %s: %w", addr, err)
	}

	burst := int(cfg.MaxSendsPerSec)
	if burst < 1 {
		burst = 1
	}
	return &UDP{
		conn:    conn,
		channel: cfg.Channel,
		key:     cfg.Key,
		limiter: rate.NewLimiter(rate.Limit(cfg.MaxSendsPerSec), burst),
	}, nil
}

func (u *UDP) Close() error {
	if u.conn == nil {
		return nil
	}
	return u.conn.Close()
}

// ---- wire frames ----

// frame is the on-wire datagram. One frame per send, JSON-encoded.
// Coordinates use the radio convention of degrees scaled by 1e7.
type frame struct {
	Type    string `json:"type"` // "nodeinfo" | "text" | "position"
	Channel string `json:"channel"`
	Key     string `json:"key,omitempty"`
	From    string `json:"from"`

	LongName  string `json:"long_name,omitempty"`
	ShortName string `json:"short_name,omitempty"`

	Text string `json:"text,omitempty"`

	LatitudeI  int32 `json:"latitude_i,omitempty"`
	LongitudeI int32 `json:"longitude_i,omitempty"`
	Altitude   int   `json:"altitude,omitempty"`
}

func (u *UDP) AnnounceIdentity(ctx context.Context, node NodeInfo) error {
	if node.ID == "" {
		return transportErr("nodeinfo", errors.New("empty node id"))
	}
	u.mu.Lock()
	u.node = node
	u.mu.Unlock()

	return u.send(ctx, "nodeinfo", frame{
		Type:      "nodeinfo",
		From:      node.ID,
		LongName:  node.LongName,
		ShortName: node.ShortName,
	})
}

func (u *UDP) SendText(ctx context.Context, message string) error {
	return u.send(ctx, "text", frame{
		Type: "text",
		From: u.sender(),
		Text: message,
	})
}

func (u *UDP) SendPosition(ctx context.Context, pos Position) error {
	return u.send(ctx, "position", frame{
		Type:       "position",
		From:       u.sender(),
		LatitudeI:  int32(pos.Latitude * 1e7),
		LongitudeI: int32(pos.Longitude * 1e7),
		Altitude:   pos.AltitudeMeters,
	})
}

func (u *UDP) sender() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.node.ID
}

func (u *UDP) send(ctx context.Context, op string, f frame) error {
	f.Channel = u.channel
	f.Key = u.key

	if err := u.limiter.Wait(ctx); err != nil {
		return transportErr(op, err)
	}

	b, err := json.Marshal(f)
	if err != nil {
		return transportErr(op, err)
	}
	if _, err := u.conn.Write(b); err != nil {
		return transportErr(op, err)
	}
	return nil
}
