package sink

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"net"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/opd-ai/go-cutsim/internal/raster"
)

const sshScheme = "ssh://"

// DefaultSSHTimeout bounds dialing and the upload itself.
const DefaultSSHTimeout = 30 * time.Second

// ErrUnsafePath is returned for remote paths that could escape quoting.
var ErrUnsafePath = errors.New("unsafe remote path")

// SSHTarget is a parsed ssh://[user@]host[:port]/path target.
type SSHTarget struct {
	User string
	Host string
	Port int
	// Path is the remote file path. Paths starting with "~/" are relative to
	// the remote user's home directory.
	Path string
}

// Address returns host:port for dialing.
func (t SSHTarget) Address() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

// ParseSSHTarget parses an ssh:// output target.
func ParseSSHTarget(target string) (SSHTarget, error) {
	u, err := url.Parse(target)
	if err != nil {
		return SSHTarget{}, fmt.Errorf("invalid ssh target: %w", err)
	}
	if u.Scheme != "ssh" {
		return SSHTarget{}, fmt.Errorf("invalid ssh target: scheme %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return SSHTarget{}, fmt.Errorf("invalid ssh target: host is required")
	}

	t := SSHTarget{Host: u.Hostname(), Port: 22}
	if u.User != nil {
		t.User = u.User.Username()
	}
	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil || port <= 0 || port > 65535 {
			return SSHTarget{}, fmt.Errorf("invalid ssh target: port %q", p)
		}
		t.Port = port
	}

	t.Path = u.Path
	if strings.HasPrefix(t.Path, "/~/") {
		t.Path = t.Path[1:]
	}
	if t.Path == "" || t.Path == "/" || strings.HasSuffix(t.Path, "/") {
		return SSHTarget{}, fmt.Errorf("invalid ssh target: file path is required")
	}
	return t, nil
}

// AuthMethod selects how the SSH sink authenticates.
type AuthMethod interface {
	isAuthMethod()
}

// PasswordAuth authenticates with a password.
type PasswordAuth struct {
	Password string
}

// KeyAuth authenticates with a private key file.
type KeyAuth struct {
	PrivateKeyPath string
	Passphrase     string
}

// AgentAuth authenticates through the agent at SSH_AUTH_SOCK.
type AgentAuth struct{}

func (PasswordAuth) isAuthMethod() {}
func (KeyAuth) isAuthMethod()      {}
func (AgentAuth) isAuthMethod()    {}

// SSHConfig configures SSHSink.
type SSHConfig struct {
	// User is used when the target URL does not name one.
	User string
	// Auth selects the authentication method. Nil means AgentAuth.
	Auth AuthMethod
	// KnownHostsPath is the known_hosts file used to verify host keys.
	// Empty means ~/.ssh/known_hosts.
	KnownHostsPath string
	// InsecureIgnoreHostKey disables host key verification.
	InsecureIgnoreHostKey bool
	// Timeout bounds the connection and the upload. Zero means DefaultSSHTimeout.
	Timeout time.Duration
	// Options are passed to the encoder.
	Options raster.EncodeOptions
}

// dialFunc matches ssh.Dial so tests can substitute it.
type dialFunc func(network, addr string, config *ssh.ClientConfig) (*ssh.Client, error)

// SSHSink uploads images to a remote host over SSH by streaming the encoded
// bytes into `cat` on the remote side.
type SSHSink struct {
	config SSHConfig
	dial   dialFunc
}

// NewSSHSink creates an SSHSink.
func NewSSHSink(config SSHConfig) *SSHSink {
	if config.Timeout <= 0 {
		config.Timeout = DefaultSSHTimeout
	}
	return &SSHSink{config: config, dial: ssh.Dial}
}

// Persist encodes img and writes it to the remote path named by target.
func (s *SSHSink) Persist(ctx context.Context, target string, img image.Image) error {
	t, err := ParseSSHTarget(target)
	if err != nil {
		return err
	}
	if !validRemotePath(t.Path) {
		return fmt.Errorf("%w: %s", ErrUnsafePath, t.Path)
	}

	format := raster.FormatFromPath(t.Path)
	if format == raster.FormatUnknown {
		return fmt.Errorf("%w: %s", raster.ErrUnsupportedFormat, path.Ext(t.Path))
	}
	var payload bytes.Buffer
	if err := raster.Encode(&payload, img, format, s.config.Options); err != nil {
		return fmt.Errorf("failed to encode %s: %w", format, err)
	}

	clientConfig, err := s.clientConfig(t)
	if err != nil {
		return fmt.Errorf("failed to build SSH config: %w", err)
	}

	client, err := s.dial("tcp", t.Address(), clientConfig)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", t.Address(), err)
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	defer session.Close()

	var stderr bytes.Buffer
	session.Stdin = &payload
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() {
		done <- session.Run(uploadCommand(t.Path))
	}()

	timer := time.NewTimer(s.config.Timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("upload to %s failed: %w (stderr: %s)", t.Host, err, strings.TrimSpace(stderr.String()))
		}
		return nil
	case <-timer.C:
		_ = session.Signal(ssh.SIGKILL)
		return fmt.Errorf("upload to %s timed out after %v", t.Host, s.config.Timeout)
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		return ctx.Err()
	}
}

// clientConfig builds the ssh.ClientConfig for a target.
func (s *SSHSink) clientConfig(t SSHTarget) (*ssh.ClientConfig, error) {
	user := t.User
	if user == "" {
		user = s.config.User
	}
	if user == "" {
		return nil, fmt.Errorf("user is required")
	}

	auth, err := authMethods(s.config.Auth)
	if err != nil {
		return nil, err
	}

	hostKey, err := s.hostKeyCallback()
	if err != nil {
		return nil, err
	}

	return &ssh.ClientConfig{
		User:            user,
		Auth:            auth,
		HostKeyCallback: hostKey,
		Timeout:         s.config.Timeout,
	}, nil
}

func (s *SSHSink) hostKeyCallback() (ssh.HostKeyCallback, error) {
	if s.config.InsecureIgnoreHostKey {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	known := s.config.KnownHostsPath
	if known == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to locate known_hosts: %w", err)
		}
		known = filepath.Join(home, ".ssh", "known_hosts")
	}
	cb, err := knownhosts.New(known)
	if err != nil {
		return nil, fmt.Errorf("failed to load known_hosts %s: %w", known, err)
	}
	return cb, nil
}

func authMethods(method AuthMethod) ([]ssh.AuthMethod, error) {
	if method == nil {
		method = AgentAuth{}
	}

	switch auth := method.(type) {
	case PasswordAuth:
		return []ssh.AuthMethod{ssh.Password(auth.Password)}, nil
	case KeyAuth:
		key, err := os.ReadFile(auth.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read private key: %w", err)
		}
		var signer ssh.Signer
		if auth.Passphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(key, []byte(auth.Passphrase))
		} else {
			signer, err = ssh.ParsePrivateKey(key)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
	case AgentAuth:
		socket := os.Getenv("SSH_AUTH_SOCK")
		if socket == "" {
			return nil, fmt.Errorf("SSH_AUTH_SOCK not set")
		}
		return []ssh.AuthMethod{ssh.PublicKeysCallback(func() ([]ssh.Signer, error) {
			conn, err := net.Dial("unix", socket)
			if err != nil {
				return nil, fmt.Errorf("failed to connect to SSH agent: %w", err)
			}
			defer conn.Close()
			return agent.NewClient(conn).Signers()
		})}, nil
	default:
		return nil, fmt.Errorf("unsupported auth method type: %T", auth)
	}
}

// uploadCommand creates the parent directory and streams stdin to the file.
func uploadCommand(p string) string {
	dir := path.Dir(p)
	if strings.HasPrefix(p, "~/") {
		// Leave ~ unquoted so the remote shell expands it.
		rest := strings.TrimPrefix(p, "~/")
		restDir := path.Dir(rest)
		if restDir == "." {
			return "cat > ~/" + shellEscape(rest)
		}
		return "mkdir -p ~/" + shellEscape(restDir) + " && cat > ~/" + shellEscape(rest)
	}
	return "mkdir -p " + shellEscape(dir) + " && cat > " + shellEscape(p)
}

// shellEscape wraps s in single quotes, escaping embedded single quotes.
func shellEscape(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "'\\''") + "'"
}

// validRemotePath rejects traversal and characters outside a conservative set.
func validRemotePath(p string) bool {
	if p == "" || strings.Contains(p, "..") {
		return false
	}
	for i, c := range p {
		if c == '~' && i == 0 {
			continue
		}
		if !((c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') ||
			(c >= '0' && c <= '9') || c == '-' || c == '_' ||
			c == '/' || c == '.') {
			return false
		}
	}
	return true
}
