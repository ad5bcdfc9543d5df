package sh

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/xmega.go/pkg/bridge"
	"github.com/robotalks/xmega.go/pkg/env"
)

// Shell provides ishell backed interactive shell talking to xmegad
// through the bridge.
type Shell struct {
	Interactive bool
	OutputJSON  bool
	Timeout     time.Duration

	Shell  *ishell.Shell
	PubSub bridge.PubSub

	lock    sync.Mutex
	meta    *bridge.Meta
	metaCh  chan struct{}
	metaSub io.Closer
	watches map[string]io.Closer
}

const (
	shellKey = "$shell"
	prompt   = "xmega > "
)

var (
	// flags

	evalOnly   bool
	outputJSON bool

	// commands
	commands = []*ishell.Cmd{
		&TypesCmd,
		&SendCmd,
		&WatchCmd,
		&UnwatchCmd,
	}

	// ErrNoMeta indicates xmegad is not found on the broker.
	ErrNoMeta = errors.New("xmegad not found")
)

func init() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print output in JSON.")
}

// AddCmds is used by other commands providers during init func.
func AddCmds(cmds ...*ishell.Cmd) {
	commands = append(commands, cmds...)
}

// New creates a new shell.
func New(ps bridge.PubSub) *Shell {
	s := newShell(ps)
	s.Shell = ishell.New()
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(prompt)
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

func newShell(ps bridge.PubSub) *Shell {
	s := &Shell{
		Interactive: !evalOnly,
		OutputJSON:  outputJSON,
		Timeout:     time.Second,

		PubSub:  ps,
		metaCh:  make(chan struct{}),
		watches: make(map[string]io.Closer),
	}
	s.metaSub = ps.Subscribe(bridge.TopicMeta, s.metaReceived)
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

func (s *Shell) metaReceived(topic string, payload []byte) {
	var meta *bridge.Meta
	if len(payload) > 0 {
		meta = &bridge.Meta{}
		if err := json.Unmarshal(payload, meta); err != nil {
			log.Printf("bad meta: %v", err)
			return
		}
	}
	s.lock.Lock()
	s.meta = meta
	select {
	case <-s.metaCh:
	default:
		close(s.metaCh)
	}
	s.lock.Unlock()
}

// Meta waits for the retained meta of xmegad.
func (s *Shell) Meta() (*bridge.Meta, error) {
	select {
	case <-s.metaCh:
	case <-time.After(s.Timeout):
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.meta == nil {
		return nil, ErrNoMeta
	}
	return s.meta, nil
}

// FormatTypes prints types of meta for display.
func FormatTypes(meta *bridge.Meta) string {
	var lines []string
	lines = append(lines, fmt.Sprintf("%s (link %s)", meta.Port, meta.Link))
	for _, t := range meta.Types {
		lines = append(lines, fmt.Sprintf("  0x%02x %-4s %-10s %s", t.Code, t.Direction, t.Length, t.Name))
	}
	return strings.Join(lines, "\n")
}

// ParsePayload parses bytes like "0x05 9 0b11".
func ParsePayload(args []string) ([]byte, error) {
	var payload []byte
	for _, arg := range args {
		val, err := strconv.ParseUint(arg, 0, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid byte %q", arg)
		}
		payload = append(payload, byte(val))
	}
	return payload, nil
}

// Send requests xmegad to send a frame.
func (s *Shell) Send(name string, payload []byte) error {
	data, err := (&bridge.Envelope{Type: name, Data: payload}).Encode()
	if err != nil {
		return err
	}
	return s.PubSub.Publish(bridge.TopicOut+name, data, 0, false)
}

// Watch prints frames received by xmegad of the names, or all frames.
func (s *Shell) Watch(w io.Writer, names ...string) {
	topics := []string{bridge.TopicIn + "+"}
	if len(names) > 0 {
		topics = topics[:0]
		for _, name := range names {
			topics = append(topics, bridge.TopicIn+name)
		}
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	for _, topic := range topics {
		if _, ok := s.watches[topic]; ok {
			continue
		}
		s.watches[topic] = s.PubSub.Subscribe(topic, func(topic string, payload []byte) {
			s.printFrame(w, topic, payload)
		})
	}
}

// Unwatch stops watching the names, or all.
func (s *Shell) Unwatch(names ...string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	for topic, sub := range s.watches {
		if len(names) > 0 && !contains(names, strings.TrimPrefix(topic, bridge.TopicIn)) {
			continue
		}
		sub.Close()
		delete(s.watches, topic)
	}
}

// Watching returns the watched topics.
func (s *Shell) Watching() []string {
	s.lock.Lock()
	defer s.lock.Unlock()
	topics := make([]string, 0, len(s.watches))
	for topic := range s.watches {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	return topics
}

func (s *Shell) printFrame(w io.Writer, topic string, payload []byte) {
	env, err := bridge.UnmarshalEnvelope(payload)
	if err != nil {
		fmt.Fprintf(w, "%s: bad envelope: %v\n", topic, err)
		return
	}
	if s.OutputJSON {
		out, _ := json.Marshal(env)
		fmt.Fprintln(w, string(out))
		return
	}
	fmt.Fprintf(w, "%s 0x%02x [% x]\n", env.Type, env.Code, env.Data)
}

func contains(items []string, item string) bool {
	for _, i := range items {
		if i == item {
			return true
		}
	}
	return false
}

// Close unsubscribes all topics.
func (s *Shell) Close() error {
	s.Unwatch()
	return s.metaSub.Close()
}

// Run runs the shell.
func (s *Shell) Run(args ...string) {
	if len(args) > 0 {
		if err := s.Shell.Process(args...); err != nil {
			log.Fatalln(err)
		}
		return
	}
	if s.Interactive {
		s.Shell.Run()
		return
	}
	log.Fatalln("command expected")
}

var (
	// TypesCmd lists types known by xmegad.
	TypesCmd = ishell.Cmd{
		Name:    "types",
		Aliases: []string{"list", "l"},
		Help:    "list types",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			meta, err := s.Meta()
			if err != nil {
				c.Err(err)
				return
			}
			if s.OutputJSON {
				out, err := json.Marshal(meta)
				if err != nil {
					c.Err(err)
					return
				}
				c.Println(string(out))
				return
			}
			c.Println(FormatTypes(meta))
		},
	}

	// SendCmd sends a frame.
	SendCmd = ishell.Cmd{
		Name:    "send",
		Aliases: []string{"s"},
		Help:    "NAME [BYTE...]",
		Func: func(c *ishell.Context) {
			if len(c.Args) == 0 {
				c.Err(fmt.Errorf("type name expected"))
				return
			}
			payload, err := ParsePayload(c.Args[1:])
			if err != nil {
				c.Err(err)
				return
			}
			if err = ShellFrom(c).Send(c.Args[0], payload); err != nil {
				c.Err(err)
				return
			}
			c.Println("OK")
		},
	}

	// WatchCmd prints received frames.
	WatchCmd = ishell.Cmd{
		Name:    "watch",
		Aliases: []string{"w"},
		Help:    "[NAME...]",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			s.Watch(stdout{c}, c.Args...)
			c.Println(strings.Join(s.Watching(), " "))
		},
	}

	// UnwatchCmd stops printing received frames.
	UnwatchCmd = ishell.Cmd{
		Name:    "unwatch",
		Aliases: []string{"u"},
		Help:    "[NAME...]",
		Func: func(c *ishell.Context) {
			ShellFrom(c).Unwatch(c.Args...)
		},
	}
)

type stdout struct {
	c *ishell.Context
}

func (w stdout) Write(p []byte) (int, error) {
	w.c.Print(string(p))
	return len(p), nil
}

// Main is a helper to provide a single call in main.
func Main() {
	flag.Parse()
	conf := env.MustNewConfig()
	client, err := conf.NewMQTTClient("cli", false)
	if err != nil {
		log.Fatalln(err)
	}
	if err = client.Connect(); err != nil {
		log.Fatalln(err)
	}
	defer client.Close()
	s := New(client)
	defer s.Close()
	s.Run(flag.Args()...)
}
