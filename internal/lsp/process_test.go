package lsp

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sourcegraph/jsonrpc2"
	"go.lsp.dev/protocol"
)

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
}

// writeScript writes an executable shell script into dir and returns its path.
func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestStartProcessEmptyCommand(t *testing.T) {
	_, err := StartProcess(context.Background(), t.TempDir(), "   ", ProcessOptions{DataDir: t.TempDir()})
	if !errors.Is(err, ErrLaunch) {
		t.Fatalf("err = %v, want ErrLaunch", err)
	}
}

func TestStartProcessMissingBinary(t *testing.T) {
	cmd := filepath.Join(t.TempDir(), "no-such-jdtls")
	_, err := StartProcess(context.Background(), t.TempDir(), cmd, ProcessOptions{DataDir: t.TempDir()})
	if !errors.Is(err, ErrLaunch) {
		t.Fatalf("err = %v, want ErrLaunch", err)
	}
}

func TestStartProcessExitsImmediately(t *testing.T) {
	skipOnWindows(t)
	script := writeScript(t, t.TempDir(), "dies.sh", "echo 'bad flag' >&2\nexit 3\n")

	_, err := StartProcess(context.Background(), t.TempDir(), script, ProcessOptions{
		DataDir:     t.TempDir(),
		LaunchGrace: 500 * time.Millisecond,
	})
	if !errors.Is(err, ErrLaunch) {
		t.Fatalf("err = %v, want ErrLaunch", err)
	}
}

func TestStartProcessArgsAndTerminate(t *testing.T) {
	skipOnWindows(t)
	workspace := t.TempDir()
	dataDir := t.TempDir()
	script := writeScript(t, t.TempDir(), "jdtls.sh",
		"echo \"$@\" > args.txt\necho 'starting' >&2\nexec cat\n")

	p, err := StartProcess(context.Background(), workspace, script+"  -Xmx1g\t-Dfoo=bar", ProcessOptions{
		DataDir:     dataDir,
		LaunchGrace: 100 * time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !p.IsAlive() {
		t.Fatal("process not alive after launch")
	}
	if p.Pid() <= 0 {
		t.Errorf("pid = %d", p.Pid())
	}

	// The script runs in the workspace and sees the split command plus -data.
	argsFile := filepath.Join(workspace, "args.txt")
	var args []byte
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if args, err = os.ReadFile(argsFile); err == nil && len(args) > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	want := "-Xmx1g -Dfoo=bar -data " + dataDir
	if got := strings.TrimSpace(string(args)); got != want {
		t.Errorf("args = %q, want %q", got, want)
	}

	// stdio is wired through: cat echoes what we send.
	rw := p.Stdio()
	if _, err := io.WriteString(rw, "ping\n"); err != nil {
		t.Fatal(err)
	}
	line := make(chan string, 1)
	go func() {
		s, _ := bufio.NewReader(rw).ReadString('\n')
		line <- s
	}()
	select {
	case got := <-line:
		if got != "ping\n" {
			t.Errorf("echo = %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no echo from process")
	}

	var graceful atomic.Int32
	p.Terminate(context.Background(), func(context.Context) { graceful.Add(1) })
	if p.IsAlive() {
		t.Error("process alive after Terminate")
	}
	select {
	case <-p.Exited():
	default:
		t.Error("Exited not closed after Terminate")
	}

	p.Terminate(context.Background(), func(context.Context) { graceful.Add(1) })
	if n := graceful.Load(); n != 1 {
		t.Errorf("graceful ran %d times, want 1", n)
	}
}

func TestDrainStderrConsumesOverlongLines(t *testing.T) {
	r, w := io.Pipe()
	drained := make(chan struct{})
	go func() {
		drainStderr(r)
		close(drained)
	}()

	written := make(chan error, 1)
	go func() {
		long := strings.Repeat("x", 2_000_000)
		if _, err := io.WriteString(w, long+"\n"); err != nil {
			written <- err
			return
		}
		for range 1000 {
			if _, err := io.WriteString(w, "short line\n"); err != nil {
				written <- err
				return
			}
		}
		written <- w.Close()
	}()

	select {
	case err := <-written:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("writer blocked: stderr not drained past a long line")
	}
	select {
	case <-drained:
	case <-time.After(time.Second):
		t.Fatal("drain did not return at EOF")
	}
}

func TestStartProcessLongStderrLine(t *testing.T) {
	skipOnWindows(t)
	workspace := t.TempDir()
	script := writeScript(t, t.TempDir(), "noisy.sh",
		"head -c 2000000 /dev/zero | tr '\\0' a >&2\n"+
			"echo >&2\n"+
			"yes 'indexing' | head -n 30000 >&2\n"+
			"touch done.marker\n"+
			"exec cat\n")

	p, err := StartProcess(context.Background(), workspace, script, ProcessOptions{
		DataDir:     t.TempDir(),
		LaunchGrace: 50 * time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer p.Terminate(context.Background(), nil)

	marker := filepath.Join(workspace, "done.marker")
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(marker); err == nil {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("server stalled writing stderr (alive=%v)", p.IsAlive())
}

// TestHelperProcess is not a real test. It is re-executed as a fake language
// server by TestSessionEndToEnd.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	runFakeServer()
	os.Exit(0)
}

type stdioStream struct{}

func (stdioStream) Read(p []byte) (int, error)  { return os.Stdin.Read(p) }
func (stdioStream) Write(p []byte) (int, error) { return os.Stdout.Write(p) }
func (stdioStream) Close() error                { return os.Stdin.Close() }

func runFakeServer() {
	handler := jsonrpc2.HandlerWithError(func(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) (any, error) {
		switch req.Method {
		case protocol.MethodInitialize:
			return protocol.InitializeResult{
				ServerInfo: &protocol.ServerInfo{Name: "helper"},
			}, nil
		case protocol.MethodInitialized:
			_ = conn.Notify(ctx, methodLanguageStatus, statusReport{Type: "ServiceReady", Message: "ServiceReady"})
			return nil, nil
		case protocol.MethodWorkspaceSymbol:
			return []protocol.SymbolInformation{{
				Name: "Repo",
				Kind: protocol.SymbolKindClass,
				Location: protocol.Location{
					URI:   "file:///ws/Repo.java",
					Range: protocol.Range{Start: protocol.Position{Line: 2}, End: protocol.Position{Line: 2, Character: 17}},
				},
			}}, nil
		case protocol.MethodShutdown:
			return nil, nil
		case protocol.MethodExit:
			os.Exit(0)
		}
		return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeMethodNotFound, Message: req.Method}
	})
	conn := jsonrpc2.NewConn(context.Background(),
		jsonrpc2.NewBufferedStream(stdioStream{}, jsonrpc2.VSCodeObjectCodec{}), handler)
	<-conn.DisconnectNotify()
}

func TestSessionEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("spawns a subprocess")
	}
	t.Setenv("GO_WANT_HELPER_PROCESS", "1")

	exe, err := os.Executable()
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	s, err := Start(ctx, t.TempDir(), exe+" -test.run=^TestHelperProcess$ --", Options{
		DataDir:        t.TempDir(),
		LaunchGrace:    100 * time.Millisecond,
		RequestTimeout: 5 * time.Second,
		InitTimeout:    5 * time.Second,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Shutdown(ctx)

	if err := s.Initialize(ctx); err != nil {
		t.Fatal(err)
	}
	if !s.WaitReady(ctx, 5*time.Second) {
		t.Fatal("server never reported ready")
	}

	syms, err := s.FindWorkspaceSymbols(ctx, "*")
	if err != nil {
		t.Fatal(err)
	}
	if len(syms) != 1 || syms[0].Name != "Repo" {
		t.Fatalf("symbols = %+v", syms)
	}

	s.Shutdown(ctx)
	if s.proc.IsAlive() {
		t.Error("server alive after Shutdown")
	}
	if _, err := s.FindWorkspaceSymbols(ctx, "*"); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("err = %v, want ErrNotInitialized class", err)
	}
}
