// Package proxy runs the interception process and fans its output out to
// log stream subscribers.
package proxy

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/hpcloud/tail"
	log "github.com/sirupsen/logrus"

	"github.com/aitweaker/tweakd/pkg/logtail"
)

const PortPlaceholder = "{port}"

var DefaultCommand = []string{"mitmdump", "-s", "addon_proxy.py", "-p", PortPlaceholder, "--set", "block_global=false"}

// Manager owns at most one proxy process.
type Manager struct {
	// Command is the argv used to start the proxy; PortPlaceholder is
	// replaced by the port.
	Command []string
	Dir     string

	mu      sync.Mutex
	cmd     *exec.Cmd
	running bool
	port    int

	backlog *logtail.Buffer
	subMu   sync.Mutex
	subs    map[chan string]struct{}
}

func NewManager(command []string, dir string, defaultPort int) *Manager {
	if len(command) == 0 {
		command = DefaultCommand
	}
	return &Manager{
		Command: command,
		Dir:     dir,
		port:    defaultPort,
		backlog: logtail.NewBuffer(logtail.DefaultCapacity),
		subs:    map[chan string]struct{}{},
	}
}

// Status reports whether the proxy runs and on which port it was last started.
func (m *Manager) Status() (bool, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running, m.port
}

// Start launches the proxy on port. Starting a running proxy does nothing.
func (m *Manager) Start(port int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return nil
	}

	argv := make([]string, len(m.Command))
	for i, a := range m.Command {
		argv[i] = strings.ReplaceAll(a, PortPlaceholder, strconv.Itoa(port))
	}
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = m.Dir
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		m.Publish(fmt.Sprintf("Failed to start proxy: %v", err))
		return err
	}
	m.cmd, m.running, m.port = cmd, true, port

	var readers sync.WaitGroup
	readers.Add(2)
	go m.pump(stdout, &readers)
	go m.pump(stderr, &readers)
	go func() {
		readers.Wait()
		err := cmd.Wait()
		m.mu.Lock()
		if m.cmd == cmd {
			m.cmd, m.running = nil, false
		}
		m.mu.Unlock()
		if err != nil {
			log.Debugf("proxy exited: %v", err)
		}
	}()

	log.Infof("proxy started on port %d", port)
	m.Publish(fmt.Sprintf("Proxy started on port %d", port))
	return nil
}

// Stop terminates the proxy. Stopping a stopped proxy does nothing.
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cmd == nil {
		return nil
	}
	if err := m.cmd.Process.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	m.cmd, m.running = nil, false
	m.Publish("Proxy stopped")
	return nil
}

func (m *Manager) pump(r io.Reader, wg *sync.WaitGroup) {
	defer wg.Done()
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			m.Publish(line)
		}
	}
}

// Follow publishes every line appended to path until ctx is done. It is used
// when the proxy runs outside of this process and logs to a file.
func (m *Manager) Follow(ctx context.Context, path string) error {
	t, err := tail.TailFile(path, tail.Config{
		Follow:    true,
		ReOpen:    true,
		MustExist: false,
		Location:  &tail.SeekInfo{Offset: 0, Whence: io.SeekEnd},
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		return fmt.Errorf("unable to follow %s: %w", path, err)
	}
	defer t.Cleanup()
	for {
		select {
		case <-ctx.Done():
			return t.Stop()
		case line, ok := <-t.Lines:
			if !ok {
				return t.Err()
			}
			if line.Err != nil {
				log.Errorf("follow %s: %v", path, line.Err)
				continue
			}
			m.Publish(strings.TrimRight(line.Text, "\r"))
		}
	}
}

// Publish records line in the backlog and hands it to every subscriber.
// Subscribers that fall behind lose lines.
func (m *Manager) Publish(line string) {
	m.backlog.Push(line)
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for ch := range m.subs {
		select {
		case ch <- line:
		default:
		}
	}
}

// Subscribe returns the current backlog and a channel of new lines. cancel
// must be called to release the subscription.
func (m *Manager) Subscribe() (backlog []string, lines <-chan string, cancel func()) {
	ch := make(chan string, logtail.DefaultCapacity)
	m.subMu.Lock()
	m.subs[ch] = struct{}{}
	backlog = m.backlog.Lines()
	m.subMu.Unlock()
	return backlog, ch, func() {
		m.subMu.Lock()
		delete(m.subs, ch)
		m.subMu.Unlock()
	}
}
