package server

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/Versifine/mecharig/internal/anim"
	"github.com/Versifine/mecharig/internal/camera"
	"github.com/Versifine/mecharig/internal/entity"
	"github.com/Versifine/mecharig/internal/event"
	"github.com/Versifine/mecharig/internal/input"
	"github.com/Versifine/mecharig/internal/movement"
	"github.com/Versifine/mecharig/internal/protocol"
	"github.com/Versifine/mecharig/internal/world"
)

type fakeAddr string

func (a fakeAddr) Network() string { return "fake" }
func (a fakeAddr) String() string  { return string(a) }

// fakeConn 是一个内存中的消息连接
type fakeConn struct {
	remote string
	in     chan []byte
	out    chan []byte

	once   sync.Once
	closed chan struct{}
}

func newFakeConn(remote string) *fakeConn {
	return &fakeConn{
		remote: remote,
		in:     make(chan []byte, 16),
		out:    make(chan []byte, 256),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) ReadPacket() ([]byte, error) {
	select {
	case b := <-c.in:
		return b, nil
	case <-c.closed:
		return nil, net.ErrClosed
	}
}

func (c *fakeConn) Write(b []byte) (int, error) {
	select {
	case <-c.closed:
		return 0, net.ErrClosed
	default:
	}
	select {
	case c.out <- append([]byte(nil), b...):
	default:
		// 测试不关心被丢弃的旧状态
	}
	return len(b), nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) RemoteAddr() net.Addr { return fakeAddr(c.remote) }

func (c *fakeConn) send(t *testing.T, p *protocol.Packet) {
	t.Helper()
	data, err := p.Marshal()
	if err != nil {
		t.Fatalf("Marshal() 返回错误: %v", err)
	}
	c.in <- data
}

// next 等待下一条指定 ID 的消息
func (c *fakeConn) next(t *testing.T, id int32) *protocol.Packet {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case data := <-c.out:
			p, err := protocol.ReadPacket(data)
			if err != nil {
				t.Fatalf("ReadPacket() 返回错误: %v", err)
			}
			if p.ID == id {
				return p
			}
		case <-deadline:
			t.Fatalf("等待消息 0x%02x 超时", id)
			return nil
		}
	}
}

type fakeListener struct {
	conns  chan Conn
	once   sync.Once
	closed chan struct{}
}

func newFakeListener() *fakeListener {
	return &fakeListener{conns: make(chan Conn, 4), closed: make(chan struct{})}
}

func (l *fakeListener) Accept() (Conn, error) {
	select {
	case c := <-l.conns:
		return c, nil
	case <-l.closed:
		return nil, net.ErrClosed
	}
}

func (l *fakeListener) Close() error {
	l.once.Do(func() { close(l.closed) })
	return nil
}

func (l *fakeListener) Addr() net.Addr { return fakeAddr("fake:19133") }

func newTestWorld(t *testing.T) *world.World {
	t.Helper()
	lib, err := anim.NewLibrary("assets/mecha.glb/animations", map[string]string{
		"idle_2":  "idle_2.anim",
		"walk_5":  "walk_5.anim",
		"dash_0":  "dash_0.anim",
		"punch_4": "punch_4.anim",
	})
	if err != nil {
		t.Fatalf("NewLibrary() 返回错误: %v", err)
	}
	w, err := world.New(world.Options{
		Profile: anim.Canonical(false),
		Library: lib,
		Clips: map[anim.MotionState]string{
			anim.Idle:     "idle_2",
			anim.Walking:  "walk_5",
			anim.Dashing:  "dash_0",
			anim.Punching: "punch_4",
			anim.Jumping:  "dash_0",
		},
		Camera:   camera.DefaultTuning(),
		Movement: movement.DefaultTuning(),
		Workers:  2,
		Bus:      event.NewBus(),
	})
	if err != nil {
		t.Fatalf("world.New() 返回错误: %v", err)
	}
	return w
}

func startServer(t *testing.T, w World) (*Server, *fakeListener, <-chan error, context.CancelFunc) {
	t.Helper()
	l := newFakeListener()
	s := NewServer(Options{
		ListenAddr: "fake:19133",
		Interval:   5 * time.Millisecond,
		World:      w,
		Listen:     func(string) (Listener, error) { return l, nil },
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()
	select {
	case <-s.Ready():
	case <-time.After(3 * time.Second):
		t.Fatal("等待服务器启动超时")
	}
	t.Cleanup(cancel)
	return s, l, done, cancel
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("等待%s超时", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// TestServerWelcomeAndState 测试连接后收到 Welcome，输入会反映在 State 中
func TestServerWelcomeAndState(t *testing.T) {
	w := newTestWorld(t)
	s, l, _, _ := startServer(t, w)

	conn := newFakeConn("10.0.0.1:5000")
	l.conns <- conn

	welcome, err := protocol.ParseWelcome(conn.next(t, protocol.S2CWelcome).Payload)
	if err != nil {
		t.Fatalf("ParseWelcome() 返回错误: %v", err)
	}
	if welcome.Character != 1 {
		t.Errorf("Welcome.Character = %s, 期望 1", welcome.Character)
	}
	if welcome.TickRate != s.TickRate() {
		t.Errorf("Welcome.TickRate = %d, 期望 %d", welcome.TickRate, s.TickRate())
	}

	conn.send(t, protocol.CreateInputPacket(input.Snapshot{Forward: true}))

	var got protocol.State
	waitFor(t, "角色开始行走", func() bool {
		st, err := protocol.ParseState(conn.next(t, protocol.S2CState).Payload)
		if err != nil {
			t.Fatalf("ParseState() 返回错误: %v", err)
		}
		got = st
		return st.Motion == anim.Walking
	})
	if got.Character != welcome.Character {
		t.Errorf("State.Character = %s, 期望 %s", got.Character, welcome.Character)
	}
	if got.Clip != "walk_5" || !got.Looping {
		t.Errorf("State clip = %q looping=%v, 期望 walk_5 循环", got.Clip, got.Looping)
	}
	if got.Position.X() <= 0 {
		t.Errorf("State.Position = %v, 期望沿 +X 前进", got.Position)
	}
	if got.Eye.X() >= got.Position.X() || got.LookAt.X() <= got.Position.X() {
		t.Errorf("相机 Eye=%v LookAt=%v 应位于角色前后", got.Eye, got.LookAt)
	}
}

// TestServerDespawnsOnDisconnect 测试断开连接后角色被移除
func TestServerDespawnsOnDisconnect(t *testing.T) {
	w := newTestWorld(t)
	s, l, _, _ := startServer(t, w)

	a := newFakeConn("10.0.0.1:5000")
	b := newFakeConn("10.0.0.2:5000")
	l.conns <- a
	a.next(t, protocol.S2CWelcome)
	l.conns <- b
	b.next(t, protocol.S2CWelcome)

	if ids := s.Sessions(); len(ids) != 2 || ids[0] != 1 || ids[1] != 2 {
		t.Fatalf("Sessions() = %v, 期望 [1 2]", ids)
	}

	_ = a.Close()
	waitFor(t, "角色被移除", func() bool { return w.Len() == 1 })
	if ids := w.Characters(); ids[0] != entity.ID(2) {
		t.Errorf("Characters() = %v, 期望 [2]", ids)
	}
}

// TestServerIgnoresBadMessages 测试非法与未知消息不会断开连接
func TestServerIgnoresBadMessages(t *testing.T) {
	w := newTestWorld(t)
	_, l, _, _ := startServer(t, w)

	conn := newFakeConn("10.0.0.1:5000")
	l.conns <- conn
	conn.next(t, protocol.S2CWelcome)

	conn.in <- []byte{}
	conn.send(t, &protocol.Packet{ID: 0x7f, Payload: []byte{1, 2, 3}})
	conn.send(t, &protocol.Packet{ID: protocol.C2SInput, Payload: []byte{1}})
	conn.send(t, protocol.CreateInputPacket(input.Snapshot{Punch: true}))

	waitFor(t, "角色出拳", func() bool {
		st, err := protocol.ParseState(conn.next(t, protocol.S2CState).Payload)
		if err != nil {
			t.Fatalf("ParseState() 返回错误: %v", err)
		}
		return st.Motion == anim.Punching
	})
	if w.Len() != 1 {
		t.Errorf("Len() = %d, 期望 1", w.Len())
	}
}

type failingWorld struct {
	err error
}

func (f failingWorld) Spawn(entity.ID, string) error            { return nil }
func (f failingWorld) Despawn(entity.ID) error                  { return nil }
func (f failingWorld) Submit(entity.ID, input.Snapshot) bool    { return true }
func (f failingWorld) Step(context.Context) (world.Tick, error) { return world.Tick{}, f.err }

// TestServerStopsOnStepError 测试单步失败时服务器停止并返回错误
func TestServerStopsOnStepError(t *testing.T) {
	boom := errors.New("boom")
	_, _, done, _ := startServer(t, failingWorld{err: boom})

	select {
	case err := <-done:
		if !errors.Is(err, boom) {
			t.Fatalf("Start() = %v, 期望包含 %v", err, boom)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("等待服务器停止超时")
	}
}

// TestServerStopsOnCancel 测试取消 context 后服务器正常退出
func TestServerStopsOnCancel(t *testing.T) {
	w := newTestWorld(t)
	_, l, done, cancel := startServer(t, w)

	conn := newFakeConn("10.0.0.1:5000")
	l.conns <- conn
	conn.next(t, protocol.S2CWelcome)

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Start() = %v, 期望 nil", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("等待服务器停止超时")
	}
	waitFor(t, "角色被移除", func() bool { return w.Len() == 0 })
}

// slowSpawnWorld 在 Spawn 中等待，直到测试放行
type slowSpawnWorld struct {
	*world.World
	entered chan struct{}
	release chan struct{}
}

func (w *slowSpawnWorld) Spawn(id entity.ID, remote string) error {
	close(w.entered)
	<-w.release
	return w.World.Spawn(id, remote)
}

// TestServerClosesConnAcceptedDuringShutdown 测试关闭过程中才完成注册的连接也会被关闭
func TestServerClosesConnAcceptedDuringShutdown(t *testing.T) {
	w := &slowSpawnWorld{
		World:   newTestWorld(t),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	s, l, done, cancel := startServer(t, w)

	conn := newFakeConn("10.0.0.1:5000")
	l.conns <- conn
	select {
	case <-w.entered:
	case <-time.After(3 * time.Second):
		t.Fatal("等待 Spawn 超时")
	}

	cancel()
	waitFor(t, "关闭已有会话", func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.closing
	})
	close(w.release)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Start() = %v, 期望 nil", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("等待服务器停止超时")
	}
	select {
	case <-conn.closed:
	default:
		t.Error("连接未被关闭")
	}
	if w.Len() != 0 {
		t.Errorf("Len() = %d, 期望 0", w.Len())
	}
	if ids := s.Sessions(); len(ids) != 0 {
		t.Errorf("Sessions() = %v, 期望为空", ids)
	}
}

func TestTickRate(t *testing.T) {
	tests := []struct {
		interval time.Duration
		want     int32
	}{
		{time.Second / 30, 30},
		{time.Second / 60, 60},
		{2 * time.Second, 1},
	}
	for _, tt := range tests {
		s := NewServer(Options{Interval: tt.interval})
		if got := s.TickRate(); got != tt.want {
			t.Errorf("TickRate(%s) = %d, 期望 %d", tt.interval, got, tt.want)
		}
	}
}
