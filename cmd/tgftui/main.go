package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/matheus3301/tgfilter/internal/api"
	"github.com/matheus3301/tgfilter/internal/instance"
	"github.com/matheus3301/tgfilter/internal/tui"
)

func main() {
	instanceFlag := flag.String("instance", "", "instance name (overrides config default)")
	noStart := flag.Bool("no-start", false, "do not start tgfd when it is not running")
	flag.Parse()

	name := instance.Resolve(*instanceFlag)
	if err := instance.ValidateName(name); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	socketPath := instance.SocketPath(name)

	if !daemonAnswers(socketPath) {
		if *noStart {
			fmt.Fprintf(os.Stderr, "daemon not running for instance %q\n", name)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "daemon not running for instance %q, starting...\n", name)
		if err := startDaemon(name); err != nil {
			fmt.Fprintf(os.Stderr, "failed to start daemon: %v\n", err)
			os.Exit(1)
		}
		if !waitForDaemon(socketPath, 10*time.Second) {
			fmt.Fprintf(os.Stderr, "daemon did not become ready\n")
			os.Exit(1)
		}
	}

	c, err := api.Dial(socketPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect to daemon: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = c.Close() }()

	if err := tui.NewApp(c, name).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// daemonAnswers reports whether a daemon answers Status on the socket.
func daemonAnswers(socketPath string) bool {
	if _, err := os.Stat(socketPath); err != nil {
		return false
	}
	c, err := api.Dial(socketPath)
	if err != nil {
		return false
	}
	defer func() { _ = c.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err = c.Status(ctx)
	return err == nil
}

// startDaemon launches tgfd detached, preferring the binary next to this one.
func startDaemon(name string) error {
	executable, err := os.Executable()
	if err != nil {
		return err
	}
	tgfd := filepath.Join(filepath.Dir(executable), "tgfd")
	if _, err := os.Stat(tgfd); err != nil {
		tgfd = "tgfd"
	}

	cmd := exec.Command(tgfd, "--instance", name)
	cmd.Stderr = os.Stderr
	return cmd.Start()
}

func waitForDaemon(socketPath string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if daemonAnswers(socketPath) {
			return true
		}
		time.Sleep(300 * time.Millisecond)
	}
	return false
}
