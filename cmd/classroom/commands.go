package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"liveclass/internal/session"
	"liveclass/pkg/types"
)

const helpText = `commands:
  chat <text>                     send a chat message
  draw x,y x,y ...                pen stroke through normalized points
  erase x,y x,y ...               eraser stroke
  line x1 y1 x2 y2                straight line
  text x y <content>              text at a normalized anchor
  move <index> dx dy              move a line or text
  undo | clear                    edit the board
  tool <pen|eraser|line|move> [color] [width]
  mic                             toggle the broadcast
  state                           show the session
  quit
`

type command struct {
	name   string
	text   string
	points []types.Point
	nums   []float64
	index  int
	tool   session.Tool
	color  string
}

// controls is the part of the session controller the console drives.
type controls interface {
	SendChat(text string) error
	PenStroke(points []types.Point, color string, width float64) error
	EraserStroke(points []types.Point, width float64) error
	Line(x1, y1, x2, y2 float64, color string, width float64) error
	Text(x, y float64, content string, fontSize float64, color string) error
	Move(index int, dx, dy float64) error
	Undo() error
	Clear() error
	SetTool(tool session.Tool, color string, width float64) error
	ToggleMicrophone() error
	Snapshot() (session.Snapshot, error)
}

func parseCommand(line string) (command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return command{}, nil
	}
	cmd := command{name: strings.ToLower(fields[0])}
	args := fields[1:]

	switch cmd.name {
	case "chat":
		cmd.text = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), fields[0]))
		if cmd.text == "" {
			return command{}, types.ErrEmptyMessage
		}
	case "draw", "erase":
		if len(args) == 0 {
			return command{}, fmt.Errorf("%s needs at least one point", cmd.name)
		}
		for _, a := range args {
			p, err := parsePoint(a)
			if err != nil {
				return command{}, err
			}
			cmd.points = append(cmd.points, p)
		}
	case "line":
		nums, err := parseFloats(args, 4)
		if err != nil {
			return command{}, err
		}
		cmd.nums = nums
	case "text":
		if len(args) < 3 {
			return command{}, fmt.Errorf("usage: text x y <content>")
		}
		nums, err := parseFloats(args[:2], 2)
		if err != nil {
			return command{}, err
		}
		cmd.nums = nums
		cmd.text = strings.Join(args[2:], " ")
	case "move":
		if len(args) != 3 {
			return command{}, fmt.Errorf("usage: move <index> dx dy")
		}
		idx, err := strconv.Atoi(args[0])
		if err != nil {
			return command{}, fmt.Errorf("bad index %q", args[0])
		}
		nums, err := parseFloats(args[1:], 2)
		if err != nil {
			return command{}, err
		}
		cmd.index = idx
		cmd.nums = nums
	case "tool":
		if len(args) == 0 || len(args) > 3 {
			return command{}, fmt.Errorf("usage: tool <name> [color] [width]")
		}
		tool, ok := session.ParseTool(args[0])
		if !ok {
			return command{}, fmt.Errorf("unknown tool %q", args[0])
		}
		cmd.tool = tool
		if len(args) > 1 {
			cmd.color = args[1]
		}
		if len(args) > 2 {
			nums, err := parseFloats(args[2:], 1)
			if err != nil {
				return command{}, err
			}
			cmd.nums = nums
		}
	case "undo", "clear", "mic", "state", "help", "quit":
		if len(args) != 0 {
			return command{}, fmt.Errorf("%s takes no arguments", cmd.name)
		}
	default:
		return command{}, fmt.Errorf("unknown command %q", cmd.name)
	}
	return cmd, nil
}

func parsePoint(s string) (types.Point, error) {
	xs, ys, ok := strings.Cut(s, ",")
	if !ok {
		return types.Point{}, fmt.Errorf("bad point %q, want x,y", s)
	}
	nums, err := parseFloats([]string{xs, ys}, 2)
	if err != nil {
		return types.Point{}, err
	}
	return types.Point{nums[0], nums[1]}, nil
}

func parseFloats(args []string, n int) ([]float64, error) {
	if len(args) != n {
		return nil, fmt.Errorf("want %d numbers, got %d", n, len(args))
	}
	out := make([]float64, n)
	for i, a := range args {
		v, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return nil, fmt.Errorf("bad number %q", a)
		}
		out[i] = v
	}
	return out, nil
}

// execute runs one parsed command. Drawing uses the console's current
// color and width, which "tool" changes.
func execute(ctrl controls, cmd command, con *console) error {
	switch cmd.name {
	case "chat":
		return ctrl.SendChat(cmd.text)
	case "draw":
		return ctrl.PenStroke(cmd.points, con.color, con.width)
	case "erase":
		return ctrl.EraserStroke(cmd.points, con.width)
	case "line":
		n := cmd.nums
		return ctrl.Line(n[0], n[1], n[2], n[3], con.color, con.width)
	case "text":
		return ctrl.Text(cmd.nums[0], cmd.nums[1], cmd.text, 24, con.color)
	case "move":
		return ctrl.Move(cmd.index, cmd.nums[0], cmd.nums[1])
	case "undo":
		return ctrl.Undo()
	case "clear":
		return ctrl.Clear()
	case "mic":
		return ctrl.ToggleMicrophone()
	case "tool":
		var width float64
		if len(cmd.nums) == 1 {
			width = cmd.nums[0]
		}
		if err := ctrl.SetTool(cmd.tool, cmd.color, width); err != nil {
			return err
		}
		if cmd.color != "" {
			con.color = cmd.color
		}
		if width > 0 {
			con.width = width
		}
		return nil
	case "state":
		s, err := ctrl.Snapshot()
		if err != nil {
			return err
		}
		con.printSnapshot(s)
		return nil
	case "help":
		con.printf("%s", helpText)
		return nil
	}
	return fmt.Errorf("unknown command %q", cmd.name)
}

// console serializes output from the prompt loop and the session goroutine.
type console struct {
	mu    sync.Mutex
	out   io.Writer
	color string
	width float64
}

func newConsole(out io.Writer) *console {
	return &console{out: out, color: "#000000", width: 3}
}

func (c *console) printf(format string, args ...interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

// update renders session updates as they happen.
func (c *console) update(u session.Update) {
	switch u.Kind {
	case session.UpdateState:
		c.printf("[channel %s]\n", u.State)
	case session.UpdateChat:
		who := u.Message.SenderName
		if u.Message.FromTeacher() {
			who += " (teacher)"
		}
		c.printf("<%s> %s\n", who, u.Message.Content)
	case session.UpdateNotice:
		if u.Notice.Text != "" {
			c.printf("! %s\n", u.Notice.Text)
		}
	case session.UpdateEvent:
		switch u.Event.Type {
		case types.EventUserJoin:
			c.printf("* %s joined\n", u.Event.Username)
		case types.EventUserLeave:
			c.printf("* %s left\n", u.Event.Username)
		case types.EventAudioStart:
			c.printf("* teacher is speaking\n")
		case types.EventAudioStop:
			c.printf("* teacher stopped speaking\n")
		}
	}
}

func (c *console) printSnapshot(s session.Snapshot) {
	room := "(none)"
	if s.Room != nil {
		room = s.Room.Name
	}
	c.printf("room: %s\nchannel: %s\nactions: %d\nmessages: %d\nonline: %s\ntool: %s\n",
		room, s.State, len(s.Actions), len(s.Messages), strings.Join(s.Participants, ", "), s.Tool)
	if s.TeacherSpeaking {
		c.printf("teacher is speaking\n")
	}
	if s.Broadcasting {
		c.printf("microphone on\n")
	}
	for _, n := range s.Notices {
		c.printf("! %s\n", n.Text)
	}
}
