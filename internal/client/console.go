package client

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/Versifine/mecharig/internal/input"
	"github.com/Versifine/mecharig/internal/protocol"
)

// DefaultMouseStep is the mouse delta, in pixels, of one arrow key press.
const DefaultMouseStep = float32(5)

// Console turns raw terminal bytes into sampler input and draws a one line
// status of the controlled character.
type Console struct {
	sampler   *input.Sampler
	mouseStep float32
	out       io.Writer

	mu          sync.Mutex
	last        protocol.State
	hasState    bool
	statusWidth int
}

func NewConsole(sampler *input.Sampler, mouseStep float32, out io.Writer) *Console {
	if mouseStep <= 0 {
		mouseStep = DefaultMouseStep
	}
	return &Console{sampler: sampler, mouseStep: mouseStep, out: out}
}

// HandleKey applies one key. It returns false when the key asks to quit.
// Arrow keys arrive as ESC [ A..D and consume two more bytes from reader.
func (c *Console) HandleKey(reader *bufio.Reader, b byte) bool {
	switch b {
	case 'q', 'Q', 3: // 3 is Ctrl-C in raw mode
		return false
	case 'w', 'W':
		c.sampler.PulseForward()
	case 's', 'S':
		c.sampler.PulseBack()
	case 'a', 'A':
		c.sampler.PulseLeft()
	case 'd', 'D':
		c.sampler.PulseRight()
	case ' ':
		slog.Debug("Jump toggled", "enabled", c.sampler.ToggleJump())
	case '[':
		slog.Debug("Dash toggled", "enabled", c.sampler.ToggleDash())
	case 'f', 'F':
		slog.Debug("Punch toggled", "enabled", c.sampler.TogglePunch())
	case 'x', 'X':
		c.sampler.Clear()
	case 'h', 'H', '?':
		c.printHelp()
		return true
	case 27: // ESC + arrow sequence
		next, err := reader.ReadByte()
		if err != nil || next != '[' {
			return true
		}
		arrow, err := reader.ReadByte()
		if err != nil {
			return true
		}
		switch arrow {
		case 'D': // left
			c.sampler.AddMouse(-c.mouseStep, 0)
		case 'C': // right
			c.sampler.AddMouse(c.mouseStep, 0)
		case 'A': // up
			c.sampler.AddMouse(0, -c.mouseStep)
		case 'B': // down
			c.sampler.AddMouse(0, c.mouseStep)
		}
	}
	c.Render()
	return true
}

// Update records the newest state of the controlled character and redraws.
func (c *Console) Update(st protocol.State) {
	c.mu.Lock()
	c.last = st
	c.hasState = true
	c.mu.Unlock()
	c.Render()
}

func (c *Console) Render() {
	if c.out == nil {
		return
	}
	line := c.StatusLine()

	c.mu.Lock()
	defer c.mu.Unlock()
	padding := ""
	if c.statusWidth > len(line) {
		padding = strings.Repeat(" ", c.statusWidth-len(line))
	}
	if len(line) > c.statusWidth {
		c.statusWidth = len(line)
	}
	fmt.Fprintf(c.out, "\r%s%s", line, padding)
}

func (c *Console) StatusLine() string {
	in := c.sampler.Peek()
	c.mu.Lock()
	st, ok := c.last, c.hasState
	c.mu.Unlock()

	keys := fmt.Sprintf("[W:%s S:%s A:%s D:%s DSH:%s JMP:%s PUN:%s",
		boolLabel(in.Forward),
		boolLabel(in.Back),
		boolLabel(in.Left),
		boolLabel(in.Right),
		boolLabel(in.Dash),
		boolLabel(in.Jump),
		boolLabel(in.Punch),
	)
	if !ok {
		return keys + " | waiting for state]"
	}
	loop := ""
	if st.Looping {
		loop = " loop"
	}
	return fmt.Sprintf("%s | #%d %s %s%s | X:%.2f Y:%.2f Z:%.2f | eye:(%.1f,%.1f,%.1f)]",
		keys,
		st.Tick,
		st.Motion,
		st.Clip,
		loop,
		st.Position.X(), st.Position.Y(), st.Position.Z(),
		st.Eye.X(), st.Eye.Y(), st.Eye.Z(),
	)
}

func (c *Console) printHelp() {
	if c.out == nil {
		return
	}
	fmt.Fprint(c.out, "\r\n[client] keys:\r\n")
	fmt.Fprint(c.out, "  W/S/A/D: pulse movement\r\n")
	fmt.Fprint(c.out, "  Arrow Left/Right: turn\r\n")
	fmt.Fprint(c.out, "  Arrow Up/Down: tilt camera\r\n")
	fmt.Fprint(c.out, "  [: toggle dash\r\n")
	fmt.Fprint(c.out, "  Space: toggle jump\r\n")
	fmt.Fprint(c.out, "  F: toggle punch\r\n")
	fmt.Fprint(c.out, "  X: clear all input\r\n")
	fmt.Fprint(c.out, "  Q: quit\r\n")
}

func boolLabel(v bool) string {
	if v {
		return "on"
	}
	return "off"
}
