package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/Versifine/mecharig/internal/input"
	"github.com/Versifine/mecharig/internal/protocol"
	"github.com/sandertv/go-raknet"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"
)

const dialTimeout = 10 * time.Second

var ErrNoWelcome = errors.New("server closed before welcome")

// Conn is the client side of one connection. Every Write and ReadPacket
// carries exactly one message.
type Conn interface {
	ReadPacket() ([]byte, error)
	Write(b []byte) (int, error)
	Close() error
}

type Options struct {
	ServerAddr string
	MovePulse  time.Duration
	MouseStep  float32
	// In is read for key presses. A terminal is put into raw mode first.
	// Nil disables the console input.
	In  io.Reader
	Out io.Writer
	// Dial opens the connection. It defaults to RakNet.
	Dial func(ctx context.Context, addr string) (Conn, error)
}

// Client controls one character on a server: it sends one input snapshot per
// server step and shows the state the server sends back.
type Client struct {
	serverAddr string
	in         io.Reader
	dial       func(ctx context.Context, addr string) (Conn, error)
	sampler    *input.Sampler
	console    *Console
	welcome    protocol.Welcome
}

func New(opts Options) *Client {
	dial := opts.Dial
	if dial == nil {
		dial = dialRakNet
	}
	sampler := input.NewSampler(opts.MovePulse)
	return &Client{
		serverAddr: opts.ServerAddr,
		in:         opts.In,
		dial:       dial,
		sampler:    sampler,
		console:    NewConsole(sampler, opts.MouseStep, opts.Out),
	}
}

func (c *Client) Sampler() *input.Sampler {
	return c.sampler
}

func (c *Client) Console() *Console {
	return c.console
}

// Welcome is the handshake result, zero before Start connects.
func (c *Client) Welcome() protocol.Welcome {
	return c.welcome
}

// Start runs until ctx is done, the user quits or the connection drops.
func (c *Client) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	slog.Info("Connecting", "server", c.serverAddr)
	conn, err := c.dial(ctx, c.serverAddr)
	if err != nil {
		return err
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	welcome, err := awaitWelcome(conn)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	c.welcome = welcome
	slog.Info("Joined", "character", welcome.Character, "tickRate", welcome.TickRate)

	if c.in != nil {
		restore, err := enterRawMode(c.in)
		if err != nil {
			return err
		}
		defer restore()
		go c.keyLoop(cancel)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.recvLoop(gctx, conn)
	})
	g.Go(func() error {
		return c.sendLoop(gctx, conn, time.Second/time.Duration(welcome.TickRate))
	})
	err = g.Wait()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func awaitWelcome(conn Conn) (protocol.Welcome, error) {
	for {
		frame, err := conn.ReadPacket()
		if err != nil {
			return protocol.Welcome{}, errors.Join(ErrNoWelcome, err)
		}
		packet, err := protocol.ReadPacket(frame)
		if err != nil {
			slog.Warn("Dropping malformed message", "error", err)
			continue
		}
		if packet.ID != protocol.S2CWelcome {
			continue
		}
		return protocol.ParseWelcome(packet.Payload)
	}
}

func (c *Client) recvLoop(ctx context.Context, conn Conn) error {
	for {
		frame, err := conn.ReadPacket()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("connection lost: %w", err)
		}
		packet, err := protocol.ReadPacket(frame)
		if err != nil {
			slog.Warn("Dropping malformed message", "error", err)
			continue
		}
		switch packet.ID {
		case protocol.S2CState:
			st, err := protocol.ParseState(packet.Payload)
			if err != nil {
				slog.Warn("Dropping malformed state", "error", err)
				continue
			}
			if st.Character != c.welcome.Character {
				continue
			}
			c.console.Update(st)
		default:
			slog.Debug("Packet received", "packetID", packet.ID)
		}
	}
}

func (c *Client) sendLoop(ctx context.Context, conn Conn, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := protocol.WritePacket(conn, protocol.CreateInputPacket(c.sampler.Sample())); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("send input: %w", err)
			}
		}
	}
}

func (c *Client) keyLoop(quit context.CancelFunc) {
	reader := bufio.NewReader(c.in)
	for {
		b, err := reader.ReadByte()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				slog.Warn("Error reading console input", "error", err)
			}
			return
		}
		if !c.console.HandleKey(reader, b) {
			quit()
			return
		}
	}
}

// enterRawMode switches a terminal to raw mode so single key presses are
// delivered. Other readers are used as is.
func enterRawMode(in io.Reader) (func(), error) {
	f, ok := in.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return func() {}, nil
	}
	fd := int(f.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("set terminal raw mode: %w", err)
	}
	return func() {
		_ = term.Restore(fd, oldState)
		fmt.Print("\r\n")
	}, nil
}

func dialRakNet(ctx context.Context, addr string) (Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	conn, err := raknet.DialContext(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("dial raknet %s: %w", addr, err)
	}
	return conn, nil
}
