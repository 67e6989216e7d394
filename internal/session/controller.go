// Package session drives one participant's view of a live classroom. A
// Controller serializes every input onto a single goroutine, which alone
// owns the board, the chat log, the session channel and the audio roles,
// so none of that state needs locking.
package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"liveclass/internal/audio"
	"liveclass/internal/channel"
	"liveclass/internal/chat"
	"liveclass/internal/whiteboard"
	wsconn "liveclass/internal/websocket"
	"liveclass/pkg/interfaces"
	"liveclass/pkg/types"
)

// MicrophoneNotice is shown when the microphone cannot be acquired.
const MicrophoneNotice = "Could not access microphone. Please allow microphone access."

// Backend is the REST collaborator the controller loads history from and
// falls back to for chat.
type Backend interface {
	chat.HistorySource
	chat.MessagePoster
}

// Options configures a Controller.
type Options struct {
	Username string
	Role     types.Role
	Token    string
	RelayURL string

	// RelayEchoes tells whether the relay sends a participant's own
	// whiteboard events back to them. When it does not, sent actions are
	// applied locally right after a successful send.
	RelayEchoes bool

	RetryDelay     time.Duration
	NoticeDuration time.Duration
	RequestTimeout time.Duration
	Connection     wsconn.Options

	TargetRate int
	MaxLead    time.Duration
	ResetLead  time.Duration

	Surface interfaces.Surface
	Capture interfaces.CaptureSource
	Players interfaces.PlayerFactory

	// OnUpdate observes changes. It runs on the controller goroutine and
	// must not call back into the Controller.
	OnUpdate func(Update)
}

// Notice is a transient user-facing message.
type Notice struct {
	ID      uint64
	Text    string
	Expires time.Time
}

// UpdateKind classifies an Update.
type UpdateKind int

const (
	UpdateState UpdateKind = iota
	UpdateEvent
	UpdateChat
	UpdateHistory
	UpdateNotice
	UpdateRoom
)

// Update describes one observable change.
type Update struct {
	Kind    UpdateKind
	State   types.ConnectionState
	Event   types.Event
	Message types.ChatMessage
	Notice  Notice
	Room    *types.Room
}

// Snapshot is a consistent copy of the controller's state.
type Snapshot struct {
	Room            *types.Room
	State           types.ConnectionState
	Actions         []types.Action
	Messages        []types.ChatMessage
	Participants    []string
	Notices         []Notice
	TeacherSpeaking bool
	Broadcasting    bool
	Listening       bool
	Tool            Tool
}

type command struct {
	fn     func() error
	result chan error
}

type historyLoaded struct {
	log  *chat.Log
	msgs []types.ChatMessage
	err  error
}

type chatPosted struct {
	log *chat.Log
	msg *types.ChatMessage
	err error
}

type noticeExpired struct {
	id uint64
}

// Controller is the session event loop.
type Controller struct {
	opts    Options
	backend Backend
	logger  *zap.Logger

	inbox           chan interface{}
	shutdownChannel chan struct{}
	doneChannel     chan struct{}
	running         bool
	stopped         bool
	mu              sync.Mutex

	// Owned by the loop goroutine.
	ctx             context.Context
	room            *types.Room
	board           *whiteboard.Board
	chat            *chat.Log
	channel         *channel.Client
	roles           audio.Roles
	broadcaster     *audio.Broadcaster
	listener        *audio.Listener
	presence        map[string]bool
	teacherSpeaking bool
	notices         []Notice
	noticeTimers    map[uint64]*time.Timer
	noticeSeq       uint64
	tools           toolState
	cancelLoad      context.CancelFunc
}

// NewController validates the identity and prepares an idle controller.
// backend may be nil, in which case no history is loaded and chat only
// travels over the channel.
func NewController(opts Options, backend Backend, logger *zap.Logger) (*Controller, error) {
	if !types.IsValidUsername(opts.Username) || !opts.Role.IsValid() {
		return nil, ErrInvalidIdentity
	}
	if opts.NoticeDuration <= 0 {
		opts.NoticeDuration = 4 * time.Second
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 10 * time.Second
	}
	if opts.Surface == nil {
		opts.Surface = whiteboard.NewRecorder(1280, 720)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Controller{
		opts:            opts,
		backend:         backend,
		logger:          logger.Named("session").With(zap.String("user", opts.Username)),
		inbox:           make(chan interface{}, 1024),
		shutdownChannel: make(chan struct{}),
		doneChannel:     make(chan struct{}),
		board:           whiteboard.NewBoard(opts.Surface),
		presence:        make(map[string]bool),
		noticeTimers:    make(map[uint64]*time.Timer),
		tools:           defaultTools(),
	}
	live := liveChannel{c}
	c.broadcaster = audio.NewBroadcaster(audio.BroadcasterOptions{
		Source:     opts.Capture,
		Channel:    live,
		Roles:      &c.roles,
		TargetRate: opts.TargetRate,
		Post:       func(f audio.Frame) { c.post(f) },
	}, c.logger)
	c.listener = audio.NewListener(audio.ListenerOptions{
		Players:   opts.Players,
		Roles:     &c.roles,
		Rate:      opts.TargetRate,
		MaxLead:   opts.MaxLead,
		ResetLead: opts.ResetLead,
	}, c.logger)
	return c, nil
}

// Start launches the event loop.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return ErrAlreadyRunning
	}
	if c.stopped {
		return ErrStopped
	}
	c.running = true
	c.ctx = ctx
	go c.run(ctx)
	return nil
}

// Stop tears down the active room and ends the loop.
func (c *Controller) Stop() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return ErrNotRunning
	}
	c.running = false
	c.stopped = true
	close(c.shutdownChannel)
	c.mu.Unlock()

	<-c.doneChannel
	return nil
}

func (c *Controller) isRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *Controller) run(ctx context.Context) {
	defer close(c.doneChannel)
	defer c.logger.Debug("session loop stopped")

	for {
		select {
		case m := <-c.inbox:
			c.dispatch(m)
		case <-c.shutdownChannel:
			c.teardown()
			return
		case <-ctx.Done():
			c.mu.Lock()
			c.running = false
			c.stopped = true
			c.mu.Unlock()
			c.teardown()
			return
		}
	}
}

// post queues a message from any goroutine. It gives up once the loop has
// exited.
func (c *Controller) post(m interface{}) {
	select {
	case c.inbox <- m:
	case <-c.doneChannel:
	}
}

// call runs fn on the loop and waits for its result.
func (c *Controller) call(fn func() error) error {
	if !c.isRunning() {
		return ErrNotRunning
	}
	cmd := command{fn: fn, result: make(chan error, 1)}
	select {
	case c.inbox <- cmd:
	case <-c.doneChannel:
		return ErrNotRunning
	}
	select {
	case err := <-cmd.result:
		return err
	case <-c.doneChannel:
		return ErrNotRunning
	}
}

func (c *Controller) dispatch(m interface{}) {
	switch m := m.(type) {
	case command:
		m.result <- m.fn()
	case channel.Signal:
		if c.channel == nil {
			m.Discard()
			return
		}
		if ev, ok := c.channel.Handle(m); ok {
			c.applyInbound(ev)
		}
	case audio.Frame:
		c.broadcaster.HandleFrame(m)
	case historyLoaded:
		c.handleHistory(m)
	case chatPosted:
		c.handleChatPosted(m)
	case noticeExpired:
		c.expireNotice(m.id)
	default:
		c.logger.Warn("unknown session message")
	}
}

func (c *Controller) emit(u Update) {
	if c.opts.OnUpdate != nil {
		c.opts.OnUpdate(u)
	}
}

// SelectRoom makes room the active room. Everything belonging to the
// previous room is released first; then history is loaded and the new
// channel opened.
func (c *Controller) SelectRoom(room types.Room) error {
	if room.ID == "" || room.Name == "" {
		return ErrInvalidRoom
	}
	return c.call(func() error {
		c.teardown()
		r := room
		c.room = &r
		c.chat = chat.NewLog(room.ID)
		c.logger.Info("room selected", zap.String("room", room.Name))
		c.emit(Update{Kind: UpdateRoom, Room: c.room})

		if c.backend == nil {
			c.openChannel()
			return nil
		}
		log := c.chat
		ctx, cancel := context.WithTimeout(c.ctx, c.opts.RequestTimeout)
		c.cancelLoad = cancel
		go func() {
			defer cancel()
			msgs, err := c.backend.Messages(ctx, room.ID)
			c.post(historyLoaded{log: log, msgs: msgs, err: err})
		}()
		return nil
	})
}

// Leave releases the active room without selecting another.
func (c *Controller) Leave() error {
	return c.call(func() error {
		c.teardown()
		c.emit(Update{Kind: UpdateRoom})
		return nil
	})
}

func (c *Controller) handleHistory(m historyLoaded) {
	if m.log != c.chat {
		return
	}
	if m.err != nil {
		c.logger.Warn("chat history unavailable", zap.Error(m.err))
	} else {
		c.chat.Replace(m.msgs)
		c.emit(Update{Kind: UpdateHistory})
	}
	c.openChannel()
}

func (c *Controller) openChannel() {
	if c.room == nil || c.channel != nil {
		return
	}
	cl, err := channel.NewClient(c.opts.RelayURL, c.room.Name, c.opts.Token,
		func(s channel.Signal) { c.post(s) },
		channel.Options{
			RetryDelay: c.opts.RetryDelay,
			Connection: c.opts.Connection,
			OnState:    c.onState,
		}, c.logger)
	if err != nil {
		c.logger.Error("cannot open session channel", zap.Error(err))
		return
	}
	c.channel = cl
	if err := cl.Open(); err != nil {
		c.logger.Error("cannot open session channel", zap.Error(err))
	}
}

func (c *Controller) onState(s types.ConnectionState) {
	if s != types.StateOpen {
		// A new connection will announce its own participants.
		c.presence = make(map[string]bool)
	}
	c.emit(Update{Kind: UpdateState, State: s})
}

// teardown releases the active room: audio first so listeners still get
// audio_stop, then the channel, then timers and room state.
func (c *Controller) teardown() {
	if c.cancelLoad != nil {
		c.cancelLoad()
		c.cancelLoad = nil
	}
	c.tools.cancel()
	c.broadcaster.Stop()
	c.listener.HandleStop()
	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	for id, t := range c.noticeTimers {
		t.Stop()
		delete(c.noticeTimers, id)
	}
	c.notices = nil
	c.board.Clear()
	c.chat = nil
	c.room = nil
	c.presence = make(map[string]bool)
	c.teacherSpeaking = false
}

func (c *Controller) addNotice(text string) Notice {
	c.noticeSeq++
	n := Notice{ID: c.noticeSeq, Text: text, Expires: time.Now().Add(c.opts.NoticeDuration)}
	c.notices = append(c.notices, n)
	id := n.ID
	c.noticeTimers[id] = time.AfterFunc(c.opts.NoticeDuration, func() {
		c.post(noticeExpired{id: id})
	})
	c.emit(Update{Kind: UpdateNotice, Notice: n})
	return n
}

func (c *Controller) expireNotice(id uint64) {
	if _, ok := c.noticeTimers[id]; !ok {
		return
	}
	delete(c.noticeTimers, id)
	for i, n := range c.notices {
		if n.ID == id {
			c.notices = append(c.notices[:i], c.notices[i+1:]...)
			break
		}
	}
	c.emit(Update{Kind: UpdateNotice})
}

func (c *Controller) state() types.ConnectionState {
	if c.channel == nil {
		return types.StateClosedFinal
	}
	return c.channel.State()
}

// Snapshot copies the current state.
func (c *Controller) Snapshot() (Snapshot, error) {
	var s Snapshot
	err := c.call(func() error {
		if c.room != nil {
			r := *c.room
			r.Participants = append([]string(nil), c.room.Participants...)
			s.Room = &r
		}
		s.State = c.state()
		s.Actions = c.board.Actions()
		if c.chat != nil {
			s.Messages = c.chat.Messages()
		}
		for name := range c.presence {
			s.Participants = append(s.Participants, name)
		}
		sort.Strings(s.Participants)
		s.Notices = append([]Notice(nil), c.notices...)
		s.TeacherSpeaking = c.teacherSpeaking
		s.Broadcasting = c.broadcaster.Active()
		s.Listening = c.listener.Active()
		s.Tool = c.tools.tool
		return nil
	})
	return s, err
}

// liveChannel forwards to whichever channel client is current. It is only
// used from the loop goroutine.
type liveChannel struct {
	c *Controller
}

func (l liveChannel) State() types.ConnectionState {
	return l.c.state()
}

func (l liveChannel) Send(ev types.Event) error {
	if l.c.channel == nil {
		return channel.ErrNotOpen
	}
	return l.c.channel.Send(ev)
}
