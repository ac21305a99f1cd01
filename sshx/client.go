package sshx

import (
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/velocitylabs/vcollect/types"
)

// Client dials real SSH sessions with an interactive shell and PTY, the
// way network devices expect. Implements Dialer.
type Client struct {
	// ConnectTimeout bounds the TCP dial and SSH handshake.
	ConnectTimeout time.Duration

	// PromptTimeout bounds the initial prompt detection after login.
	PromptTimeout time.Duration
}

// NewClient returns a Client with conventional timeouts.
func NewClient() *Client {
	return &Client{
		ConnectTimeout: 15 * time.Second,
		PromptTimeout:  10 * time.Second,
	}
}

// Dial opens an authenticated interactive session and detects the device
// prompt. Errors are classified into the taxonomy.
func (c *Client) Dial(ctx context.Context, target Target) (Session, error) {
	port := target.Port
	if port == 0 {
		port = 22
	}
	addr := net.JoinHostPort(target.Host, fmt.Sprintf("%d", port))

	methods, err := authMethods(target.Auth)
	if err != nil {
		return nil, types.NewDeviceError(types.ErrKindConfig, "auth", target.Host, err)
	}

	config := &ssh.ClientConfig{
		User: target.Auth.Username,
		Auth: methods,
		// Network devices rotate host keys on reimage; pinning is the
		// CMDB's problem, not the collector's.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         c.ConnectTimeout,
		Config: ssh.Config{
			// Older network OSes still negotiate legacy ciphers.
			KeyExchanges: append(defaultKexOrder(), "diffie-hellman-group14-sha1", "diffie-hellman-group1-sha1"),
			Ciphers:      append(defaultCipherOrder(), "aes128-cbc", "3des-cbc"),
		},
	}

	netConn, err := dialContext(ctx, addr, c.ConnectTimeout)
	if err != nil {
		return nil, classifyDial(target.Host, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(netConn, addr, config)
	if err != nil {
		_ = netConn.Close()
		return nil, classifyDial(target.Host, err)
	}
	client := ssh.NewClient(sshConn, chans, reqs)

	sess, err := newShellSession(client, target)
	if err != nil {
		_ = client.Close()
		return nil, classifyDial(target.Host, err)
	}

	promptCtx := ctx
	if c.PromptTimeout > 0 {
		var cancel context.CancelFunc
		promptCtx, cancel = context.WithTimeout(ctx, c.PromptTimeout)
		defer cancel()
	}
	if err := sess.detectPrompt(promptCtx); err != nil {
		_ = sess.Close()
		return nil, err
	}

	return sess, nil
}

func dialContext(ctx context.Context, addr string, timeout time.Duration) (net.Conn, error) {
	d := net.Dialer{Timeout: timeout}
	return d.DialContext(ctx, "tcp", addr)
}

func authMethods(auth Auth) ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod

	if auth.PrivateKey != "" {
		var signer ssh.Signer
		var err error
		if auth.Passphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase([]byte(auth.PrivateKey), []byte(auth.Passphrase))
		} else {
			signer, err = ssh.ParsePrivateKey([]byte(auth.PrivateKey))
		}
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}

	if auth.Password != "" {
		methods = append(methods, ssh.Password(auth.Password))
		// Some devices front password auth with keyboard-interactive.
		methods = append(methods, ssh.KeyboardInteractive(
			func(_, _ string, questions []string, _ []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range questions {
					answers[i] = auth.Password
				}
				return answers, nil
			}))
	}

	if len(methods) == 0 {
		return nil, fmt.Errorf("credential has neither password nor key")
	}
	return methods, nil
}

func classifyDial(host string, err error) error {
	return types.NewDeviceError(types.ClassifyTransport(err), "connect", host, err)
}

func defaultKexOrder() []string {
	return []string{
		"curve25519-sha256", "curve25519-sha256@libssh.org",
		"ecdh-sha2-nistp256", "ecdh-sha2-nistp384", "ecdh-sha2-nistp521",
		"diffie-hellman-group14-sha256",
	}
}

func defaultCipherOrder() []string {
	return []string{
		"aes128-gcm@openssh.com", "aes256-gcm@openssh.com",
		"chacha20-poly1305@openssh.com",
		"aes128-ctr", "aes192-ctr", "aes256-ctr",
	}
}

// shellSession is the production Session: a PTY shell with a background
// reader pumping output chunks to Run.
type shellSession struct {
	client *ssh.Client
	sess   *ssh.Session
	stdin  io.WriteCloser

	chunks  chan []byte
	readErr chan error

	profile Profile
	host    string

	// prompt is the exact detected prompt line; empty until detectPrompt.
	prompt string

	closeOnce sync.Once
	closeErr  error
}

func newShellSession(client *ssh.Client, target Target) (*shellSession, error) {
	sess, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 115200,
		ssh.TTY_OP_OSPEED: 115200,
	}
	if err := sess.RequestPty("vt100", 200, 500, modes); err != nil {
		_ = sess.Close()
		return nil, fmt.Errorf("request pty: %w", err)
	}

	stdin, err := sess.StdinPipe()
	if err != nil {
		_ = sess.Close()
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := sess.StdoutPipe()
	if err != nil {
		_ = sess.Close()
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}

	if err := sess.Shell(); err != nil {
		_ = sess.Close()
		return nil, fmt.Errorf("start shell: %w", err)
	}

	s := &shellSession{
		client:  client,
		sess:    sess,
		stdin:   stdin,
		chunks:  make(chan []byte, 16),
		readErr: make(chan error, 1),
		profile: ProfileFor(target.Driver),
		host:    target.Host,
	}

	go func() {
		buf := make([]byte, 4096)
		for {
			n, err := stdout.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				s.chunks <- chunk
			}
			if err != nil {
				s.readErr <- err
				return
			}
		}
	}()

	return s, nil
}

// detectPrompt drains the login banner, nudges the device with a bare
// newline, and records the last line it answers with as the prompt.
func (s *shellSession) detectPrompt(ctx context.Context) error {
	if _, err := s.stdin.Write([]byte("\n")); err != nil {
		return types.NewDeviceError(types.ErrKindTransport, "detect-prompt", s.host, err)
	}

	var buf strings.Builder
	settle := time.NewTimer(500 * time.Millisecond)
	defer settle.Stop()

	for {
		select {
		case <-ctx.Done():
			if line := lastLine(buf.String()); line != "" && s.profile.PromptPattern.MatchString(line) {
				s.prompt = line
				return nil
			}
			return types.NewDeviceError(types.ErrKindCommand, "detect-prompt", s.host,
				fmt.Errorf("no prompt within deadline"))
		case err := <-s.readErr:
			return types.NewDeviceError(types.ErrKindTransport, "detect-prompt", s.host, err)
		case chunk := <-s.chunks:
			buf.Write(chunk)
			if !settle.Stop() {
				select {
				case <-settle.C:
				default:
				}
			}
			settle.Reset(500 * time.Millisecond)
		case <-settle.C:
			line := lastLine(buf.String())
			if line != "" && s.profile.PromptPattern.MatchString(line) {
				s.prompt = line
				return nil
			}
			// Nudge again; some devices stay silent until the second newline.
			if _, err := s.stdin.Write([]byte("\n")); err != nil {
				return types.NewDeviceError(types.ErrKindTransport, "detect-prompt", s.host, err)
			}
			settle.Reset(time.Second)
		}
	}
}

// Run sends a command and accumulates output until the detected prompt
// reappears or ctx is done.
func (s *shellSession) Run(ctx context.Context, command string) (string, error) {
	if _, err := s.stdin.Write([]byte(command + "\n")); err != nil {
		return "", types.NewDeviceError(types.ErrKindTransport, "exec", s.host, err)
	}

	var buf strings.Builder
	for {
		select {
		case <-ctx.Done():
			return buf.String(), types.NewDeviceError(types.ErrKindTimeout, "exec", s.host, ctx.Err())
		case err := <-s.readErr:
			return buf.String(), types.NewDeviceError(types.ErrKindTransport, "exec", s.host, err)
		case chunk := <-s.chunks:
			buf.Write(chunk)
			if s.promptReturned(buf.String()) {
				return buf.String(), nil
			}
		}
	}
}

// promptReturned reports whether output ends at a prompt. The detected
// prompt string wins; the profile pattern is the fallback for devices
// that rewrite their prompt mid-session (context changes, config mode).
func (s *shellSession) promptReturned(output string) bool {
	line := lastLine(output)
	if line == "" {
		return false
	}
	if s.prompt != "" && strings.TrimSpace(line) == strings.TrimSpace(s.prompt) {
		return true
	}
	return s.profile.PromptPattern.MatchString(line)
}

// Close is safe under concurrent Run; the reader goroutine unblocks with
// an error and Run returns.
func (s *shellSession) Close() error {
	s.closeOnce.Do(func() {
		_ = s.sess.Close()
		s.closeErr = s.client.Close()
		// Drain residual chunks so the reader goroutine can exit.
		go func() {
			for {
				select {
				case <-s.chunks:
				case <-s.readErr:
					return
				}
			}
		}()
	})
	return s.closeErr
}

func lastLine(text string) string {
	text = strings.TrimRight(text, " \t")
	if idx := strings.LastIndexByte(text, '\n'); idx >= 0 {
		return strings.TrimRight(text[idx+1:], " \t\r")
	}
	return strings.TrimRight(text, " \t\r")
}
