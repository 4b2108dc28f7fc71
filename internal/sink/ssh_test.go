package sink

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/crypto/ssh"
)

func TestParseSSHTarget(t *testing.T) {
	tests := []struct {
		name    string
		target  string
		want    SSHTarget
		wantErr bool
	}{
		{
			name:   "full",
			target: "ssh://plotter@cutter.local:2222/var/spool/cut.png",
			want:   SSHTarget{User: "plotter", Host: "cutter.local", Port: 2222, Path: "/var/spool/cut.png"},
		},
		{
			name:   "default port",
			target: "ssh://cutter/tmp/cut.png",
			want:   SSHTarget{Host: "cutter", Port: 22, Path: "/tmp/cut.png"},
		},
		{
			name:   "home relative",
			target: "ssh://me@cutter/~/jobs/cut.pdf",
			want:   SSHTarget{User: "me", Host: "cutter", Port: 22, Path: "~/jobs/cut.pdf"},
		},
		{name: "wrong scheme", target: "sftp://cutter/tmp/cut.png", wantErr: true},
		{name: "no host", target: "ssh:///tmp/cut.png", wantErr: true},
		{name: "no path", target: "ssh://cutter", wantErr: true},
		{name: "directory", target: "ssh://cutter/tmp/", wantErr: true},
		{name: "bad port", target: "ssh://cutter:99999/tmp/cut.png", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSSHTarget(tt.target)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestSSHTargetAddress(t *testing.T) {
	tgt := SSHTarget{Host: "::1", Port: 22}
	if got := tgt.Address(); got != "[::1]:22" {
		t.Errorf("Address() = %q", got)
	}
}

func TestShellEscape(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"simple", "'simple'"},
		{"with space", "'with space'"},
		{"it's", `'it'\''s'`},
		{"", "''"},
	}
	for _, tt := range tests {
		if got := shellEscape(tt.in); got != tt.want {
			t.Errorf("shellEscape(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestUploadCommand(t *testing.T) {
	tests := []struct {
		path, want string
	}{
		{"/tmp/out/cut.png", "mkdir -p '/tmp/out' && cat > '/tmp/out/cut.png'"},
		{"~/cut.png", "cat > ~/'cut.png'"},
		{"~/jobs/cut.png", "mkdir -p ~/'jobs' && cat > ~/'jobs/cut.png'"},
	}
	for _, tt := range tests {
		if got := uploadCommand(tt.path); got != tt.want {
			t.Errorf("uploadCommand(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestValidRemotePath(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/tmp/cut.png", true},
		{"~/jobs/cut_01.png", true},
		{"/tmp/../etc/cut.png", false},
		{"/tmp/cut$(id).png", false},
		{"/tmp/a~b.png", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := validRemotePath(tt.path); got != tt.want {
			t.Errorf("validRemotePath(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestAuthMethods(t *testing.T) {
	t.Run("password", func(t *testing.T) {
		m, err := authMethods(PasswordAuth{Password: "secret"})
		if err != nil || len(m) != 1 {
			t.Errorf("authMethods(password) = %v, %v", m, err)
		}
	})

	t.Run("missing key", func(t *testing.T) {
		_, err := authMethods(KeyAuth{PrivateKeyPath: filepath.Join(t.TempDir(), "nope")})
		if err == nil {
			t.Error("expected error for missing key file")
		}
	})

	t.Run("garbage key", func(t *testing.T) {
		p := filepath.Join(t.TempDir(), "id")
		if err := os.WriteFile(p, []byte("not a key"), 0o600); err != nil {
			t.Fatal(err)
		}
		_, err := authMethods(KeyAuth{PrivateKeyPath: p})
		if err == nil || !strings.Contains(err.Error(), "parse") {
			t.Errorf("err = %v, want parse error", err)
		}
	})

	t.Run("agent without socket", func(t *testing.T) {
		t.Setenv("SSH_AUTH_SOCK", "")
		if _, err := authMethods(nil); err == nil {
			t.Error("expected error without SSH_AUTH_SOCK")
		}
	})
}

func TestClientConfig(t *testing.T) {
	known := filepath.Join(t.TempDir(), "known_hosts")
	if err := os.WriteFile(known, nil, 0o600); err != nil {
		t.Fatal(err)
	}

	s := NewSSHSink(SSHConfig{
		User:           "fallback",
		Auth:           PasswordAuth{Password: "pw"},
		KnownHostsPath: known,
	})

	cfg, err := s.clientConfig(SSHTarget{Host: "h", Port: 22, Path: "/x.png"})
	if err != nil {
		t.Fatalf("clientConfig failed: %v", err)
	}
	if cfg.User != "fallback" {
		t.Errorf("User = %q, want fallback", cfg.User)
	}
	if cfg.Timeout != DefaultSSHTimeout {
		t.Errorf("Timeout = %v, want %v", cfg.Timeout, DefaultSSHTimeout)
	}

	cfg, err = s.clientConfig(SSHTarget{User: "explicit", Host: "h", Port: 22, Path: "/x.png"})
	if err != nil {
		t.Fatalf("clientConfig failed: %v", err)
	}
	if cfg.User != "explicit" {
		t.Errorf("User = %q, want explicit", cfg.User)
	}
}

func TestClientConfigErrors(t *testing.T) {
	s := NewSSHSink(SSHConfig{Auth: PasswordAuth{}, InsecureIgnoreHostKey: true})
	if _, err := s.clientConfig(SSHTarget{Host: "h"}); err == nil {
		t.Error("expected error without a user")
	}

	s = NewSSHSink(SSHConfig{
		User:           "u",
		Auth:           PasswordAuth{},
		KnownHostsPath: filepath.Join(t.TempDir(), "missing"),
	})
	if _, err := s.clientConfig(SSHTarget{Host: "h"}); err == nil {
		t.Error("expected error for missing known_hosts")
	}
}

func TestSSHSinkPersistDialError(t *testing.T) {
	s := NewSSHSink(SSHConfig{
		User:                  "u",
		Auth:                  PasswordAuth{Password: "pw"},
		InsecureIgnoreHostKey: true,
	})
	dialErr := errors.New("connection refused")
	var dialed string
	s.dial = func(network, addr string, cfg *ssh.ClientConfig) (*ssh.Client, error) {
		dialed = addr
		return nil, dialErr
	}

	err := s.Persist(context.Background(), "ssh://cutter:2200/tmp/cut.png", testCanvas())
	if !errors.Is(err, dialErr) {
		t.Errorf("err = %v, want dial error", err)
	}
	if dialed != "cutter:2200" {
		t.Errorf("dialed %q, want cutter:2200", dialed)
	}
}

func TestSSHSinkPersistRejectsBeforeDialing(t *testing.T) {
	s := NewSSHSink(SSHConfig{User: "u", Auth: PasswordAuth{}, InsecureIgnoreHostKey: true})
	s.dial = func(string, string, *ssh.ClientConfig) (*ssh.Client, error) {
		t.Fatal("dial should not be reached")
		return nil, nil
	}

	ctx := context.Background()
	if err := s.Persist(ctx, "ssh://cutter/tmp/cut$x.png", testCanvas()); !errors.Is(err, ErrUnsafePath) {
		t.Errorf("unsafe path err = %v, want ErrUnsafePath", err)
	}
	if err := s.Persist(ctx, "ssh://cutter/tmp/cut.xyz", testCanvas()); err == nil {
		t.Error("expected error for unknown extension")
	}
	if err := s.Persist(ctx, "not a url", testCanvas()); err == nil {
		t.Error("expected error for non-ssh target")
	}
}
