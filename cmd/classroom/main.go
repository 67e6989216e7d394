// Command classroom joins a live classroom from the terminal. Teachers draw
// and broadcast a test tone; students watch the board, chat and record the
// teacher's audio to a file.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"liveclass/internal/audio"
	"liveclass/internal/backend"
	"liveclass/internal/config"
	"liveclass/internal/logging"
	"liveclass/internal/session"
	"liveclass/pkg/types"
)

type options struct {
	configFile   string
	room         string
	create       bool
	participants string
	tone         float64
	playback     string
	username     string
	role         string
	token        string
	api          string
	relay        string
}

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func parseFlags(args []string) (*options, error) {
	var o options
	fs := flag.NewFlagSet("classroom", flag.ContinueOnError)
	fs.StringVar(&o.configFile, "config", os.Getenv("LIVECLASS_CONFIG_FILE"), "path to a JSON config file")
	fs.StringVar(&o.room, "room", "", "name of the room to join")
	fs.BoolVar(&o.create, "create", false, "create the room when it does not exist (teachers only)")
	fs.StringVar(&o.participants, "participants", "", "comma-separated participants for -create")
	fs.Float64Var(&o.tone, "tone", 0, "broadcast a sine tone of this frequency instead of a microphone")
	fs.StringVar(&o.playback, "playback", "", "write received audio as 16-bit PCM to this file")
	fs.StringVar(&o.username, "user", "", "username (overrides config)")
	fs.StringVar(&o.role, "role", "", "teacher or student (overrides config)")
	fs.StringVar(&o.token, "token", "", "API token; registers a new account when empty")
	fs.StringVar(&o.api, "api", "", "REST backend base URL (overrides config)")
	fs.StringVar(&o.relay, "relay", "", "relay base URL (overrides config)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if o.room == "" {
		return nil, errors.New("-room is required")
	}
	return &o, nil
}

// applyFlags layers command-line overrides on top of the loaded config.
func applyFlags(cfg *config.Config, o *options) error {
	c := cfg.Client
	if o.username != "" {
		c.Username = o.username
	}
	if o.role != "" {
		c.Role = types.Role(o.role)
	}
	if o.token != "" {
		c.Token = o.token
	}
	if o.api != "" {
		c.APIBaseURL = o.api
	}
	if o.relay != "" {
		c.RelayURL = o.relay
	}
	if !types.IsValidUsername(c.Username) {
		return types.ErrInvalidUsername
	}
	if !c.Role.IsValid() {
		return types.ErrInvalidRole
	}
	return nil
}

func run(args []string, in io.Reader, out io.Writer) error {
	o, err := parseFlags(args)
	if err != nil {
		return err
	}
	cfg := config.LoadConfigWithPrecedence(o.configFile)
	if err := applyFlags(cfg, o); err != nil {
		return err
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	api, err := backend.NewClient(cfg.Client.APIBaseURL, cfg.Client.Token, cfg.Client.RequestTimeout, logger)
	if err != nil {
		return err
	}
	if api.Token() == "" {
		user, err := api.Register(ctx, cfg.Client.Username, cfg.Client.Role)
		if err != nil {
			return fmt.Errorf("register %s: %w", cfg.Client.Username, err)
		}
		logger.Info("registered", zap.String("user", user.Username), zap.String("role", string(user.UserType)))
	}

	room, err := findRoom(ctx, api, o, cfg.Client.Role)
	if err != nil {
		return err
	}

	con := newConsole(out)
	opts := session.Options{
		Username:       cfg.Client.Username,
		Role:           cfg.Client.Role,
		Token:          api.Token(),
		RelayURL:       cfg.Client.RelayURL,
		RelayEchoes:    cfg.Client.RelayEchoes,
		RetryDelay:     cfg.Client.RetryDelay,
		NoticeDuration: cfg.Client.NoticeDuration,
		RequestTimeout: cfg.Client.RequestTimeout,
		TargetRate:     cfg.Audio.TargetRate,
		MaxLead:        cfg.Audio.MaxLead,
		ResetLead:      cfg.Audio.ResetLead,
		OnUpdate:       con.update,
	}
	if o.tone > 0 {
		opts.Capture = audio.ToneSource(o.tone, 48000, cfg.Audio.CaptureBufferSize)
	}
	if o.playback != "" {
		f, err := os.Create(o.playback)
		if err != nil {
			return fmt.Errorf("open playback file: %w", err)
		}
		defer f.Close()
		opts.Players = audio.WriterPlayerFactory(f)
	}

	ctrl, err := session.NewController(opts, api, logger)
	if err != nil {
		return err
	}
	if err := ctrl.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = ctrl.Stop() }()

	if err := ctrl.SelectRoom(*room); err != nil {
		return err
	}
	con.printf("joined %s as %s (%s); type \"help\" for commands\n", room.Name, cfg.Client.Username, cfg.Client.Role)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			cmd, err := parseCommand(line)
			if err != nil {
				con.printf("error: %v\n", err)
				continue
			}
			if cmd.name == "" {
				continue
			}
			if cmd.name == "quit" {
				return ctrl.Leave()
			}
			if err := execute(ctrl, cmd, con); err != nil {
				con.printf("error: %v\n", err)
			}
		}
	}
}

// findRoom locates the room by name among the user's rooms, creating it
// when asked to.
func findRoom(ctx context.Context, api *backend.Client, o *options, role types.Role) (*types.Room, error) {
	rooms, err := api.ListRooms(ctx)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	for i := range rooms {
		if rooms[i].Name == o.room {
			return &rooms[i], nil
		}
	}
	if !o.create {
		return nil, fmt.Errorf("room %q not found", o.room)
	}
	if role != types.RoleTeacher {
		return nil, errors.New("only teachers can create rooms")
	}
	var participants []string
	for _, p := range strings.Split(o.participants, ",") {
		if p = strings.TrimSpace(p); p != "" {
			participants = append(participants, p)
		}
	}
	room, err := api.CreateRoom(ctx, o.room, participants)
	if err != nil {
		return nil, fmt.Errorf("create room: %w", err)
	}
	return room, nil
}
