package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Versifine/mecharig/internal/entity"
	"github.com/Versifine/mecharig/internal/input"
	"github.com/Versifine/mecharig/internal/protocol"
	"github.com/Versifine/mecharig/internal/report"
	"github.com/Versifine/mecharig/internal/world"
	"github.com/elliotchance/orderedmap/v2"
	"github.com/sandertv/go-raknet"
	"golang.org/x/sync/errgroup"
)

// Conn is one player connection. Every Write and ReadPacket carries exactly
// one message.
type Conn interface {
	ReadPacket() ([]byte, error)
	Write(b []byte) (int, error)
	Close() error
	RemoteAddr() net.Addr
}

type Listener interface {
	Accept() (Conn, error)
	Close() error
	Addr() net.Addr
}

// World is the part of *world.World the server drives.
type World interface {
	Spawn(id entity.ID, remote string) error
	Despawn(id entity.ID) error
	Submit(id entity.ID, snap input.Snapshot) bool
	Step(ctx context.Context) (world.Tick, error)
}

type Options struct {
	ListenAddr string
	Interval   time.Duration
	World      World
	// Listen opens the listener. It defaults to a RakNet listener.
	Listen func(addr string) (Listener, error)
}

type Server struct {
	listenAddr string
	interval   time.Duration
	world      World
	listen     func(addr string) (Listener, error)

	nextID atomic.Uint32

	mu       sync.Mutex
	sessions *orderedmap.OrderedMap[entity.ID, *session]
	closing  bool
	addr     net.Addr
	ready    chan struct{}

	handlers sync.WaitGroup
}

type session struct {
	id   entity.ID
	conn Conn
	// Writes come from the tick loop and the handshake.
	writeMu sync.Mutex
}

func (s *session) send(p *protocol.Packet) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return protocol.WritePacket(s.conn, p)
}

func NewServer(opts Options) *Server {
	listen := opts.Listen
	if listen == nil {
		listen = listenRakNet
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = time.Second / 30
	}
	return &Server{
		listenAddr: opts.ListenAddr,
		interval:   interval,
		world:      opts.World,
		listen:     listen,
		sessions:   orderedmap.NewOrderedMap[entity.ID, *session](),
		ready:      make(chan struct{}),
	}
}

// Ready is closed once the listener is open.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr is the bound listener address, nil before Ready.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// TickRate is the step rate announced to clients.
func (s *Server) TickRate() int32 {
	rate := int32(time.Second / s.interval)
	if rate < 1 {
		rate = 1
	}
	return rate
}

// Start accepts players and steps the world until ctx is done. A failed
// step stops the server and is returned.
func (s *Server) Start(ctx context.Context) error {
	if s.world == nil {
		return fmt.Errorf("server world is nil")
	}
	slog.Info("Starting server", "listenAddr", s.listenAddr, "tickRate", s.TickRate())
	listener, err := s.listen(s.listenAddr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.addr = listener.Addr()
	s.mu.Unlock()
	close(s.ready)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down server")
		_ = listener.Close()
		s.closeSessions()
		return nil
	})
	g.Go(func() error {
		return s.acceptLoop(gctx, listener)
	})
	g.Go(func() error {
		return s.tickLoop(gctx)
	})
	err = g.Wait()
	s.handlers.Wait()
	slog.Info("Server stopped")
	return err
}

func (s *Server) acceptLoop(ctx context.Context, listener Listener) error {
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			slog.Error("Error accepting connection", "error", err)
			return err
		}
		s.handlers.Add(1)
		go func() {
			defer s.handlers.Done()
			s.handleConnection(ctx, conn)
		}()
	}
}

func (s *Server) tickLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.step(ctx); err != nil {
				return err
			}
		}
	}
}

func (s *Server) step(ctx context.Context) error {
	tick, err := s.world.Step(ctx)
	if err != nil {
		slog.Error("World step failed", "error", err)
		report.Error(err, map[string]string{"component": "world"})
		return fmt.Errorf("world step: %w", err)
	}
	for _, st := range tick.States {
		sess, ok := s.session(st.Character)
		if !ok {
			continue
		}
		p, err := protocol.CreateStatePacket(protocol.State{
			Tick:      tick.Number,
			Character: st.Character,
			Position:  st.Transform.Position,
			Heading:   st.Transform.Heading,
			Motion:    st.Motion,
			Clip:      st.Clip.ID,
			Looping:   st.Looping,
			Eye:       st.Pose.Eye,
			LookAt:    st.Pose.LookAt,
		})
		if err != nil {
			slog.Warn("Error encoding state", "character", st.Character, "error", err)
			continue
		}
		if err := sess.send(p); err != nil {
			// The read loop notices the broken connection and despawns.
			slog.Debug("Error sending state", "character", st.Character, "error", err)
		}
	}
	return nil
}

func (s *Server) handleConnection(ctx context.Context, conn Conn) {
	defer conn.Close()
	remote := conn.RemoteAddr().String()
	id := entity.ID(s.nextID.Add(1))

	if err := s.world.Spawn(id, remote); err != nil {
		slog.Error("Error spawning character", "remote", remote, "error", err)
		return
	}
	sess := &session{id: id, conn: conn}
	if !s.register(sess) {
		// Accepted while shutting down; closeSessions has already run.
		if err := s.world.Despawn(id); err != nil {
			slog.Warn("Error despawning character", "character", id, "error", err)
		}
		return
	}
	defer func() {
		s.mu.Lock()
		s.sessions.Delete(id)
		s.mu.Unlock()
		if err := s.world.Despawn(id); err != nil {
			slog.Warn("Error despawning character", "character", id, "error", err)
		}
		slog.Info("Connection closed", "character", id, "remote", remote)
	}()

	if err := sess.send(protocol.CreateWelcomePacket(protocol.Welcome{Character: id, TickRate: s.TickRate()})); err != nil {
		slog.Error("Error sending welcome", "character", id, "error", err)
		return
	}
	slog.Info("Player connected", "character", id, "remote", remote)

	if err := s.readLoop(ctx, sess); err != nil && ctx.Err() == nil {
		slog.Debug("Read loop ended", "character", id, "error", err)
	}
}

func (s *Server) readLoop(ctx context.Context, sess *session) error {
	for {
		frame, err := sess.conn.ReadPacket()
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
		packet, err := protocol.ReadPacket(frame)
		if err != nil {
			slog.Warn("Dropping malformed message", "character", sess.id, "error", err)
			continue
		}
		switch packet.ID {
		case protocol.C2SInput:
			snap, err := protocol.ParseInput(packet.Payload)
			if err != nil {
				slog.Warn("Dropping malformed input", "character", sess.id, "error", err)
				continue
			}
			s.world.Submit(sess.id, snap)
		default:
			slog.Debug("Packet received", "character", sess.id, "error", fmt.Errorf("%w: 0x%02x", protocol.ErrUnknownPacket, packet.ID))
		}
	}
}

func (s *Server) session(id entity.ID) (*session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions.Get(id)
}

// Sessions returns the connected characters in join order.
func (s *Server) Sessions() []entity.ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions.Keys()
}

func (s *Server) register(sess *session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.sessions.Set(sess.id, sess)
	return true
}

// closeSessions closes every registered connection and refuses later ones.
func (s *Server) closeSessions() {
	s.mu.Lock()
	s.closing = true
	conns := make([]Conn, 0, s.sessions.Len())
	for _, id := range s.sessions.Keys() {
		sess, _ := s.sessions.Get(id)
		conns = append(conns, sess.conn)
	}
	s.mu.Unlock()
	for _, c := range conns {
		_ = c.Close()
	}
}

type raknetListener struct {
	l *raknet.Listener
}

func listenRakNet(addr string) (Listener, error) {
	l, err := raknet.Listen(addr)
	if err != nil {
		return nil, fmt.Errorf("listen raknet %s: %w", addr, err)
	}
	return raknetListener{l: l}, nil
}

func (r raknetListener) Accept() (Conn, error) {
	c, err := r.l.Accept()
	if err != nil {
		return nil, err
	}
	return c.(*raknet.Conn), nil
}

func (r raknetListener) Close() error {
	return r.l.Close()
}

func (r raknetListener) Addr() net.Addr {
	return r.l.Addr()
}
