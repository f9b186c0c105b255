// Package console implements the operator-facing command line: a
// line-oriented REPL reading from stdin that can inspect and mutate the
// running Directory and trigger a graceful shutdown. UI polish is
// explicitly out of scope; this is the verb dispatch table the console's
// commands route through.
//
// Grounded in shape on cuemby/warren/cmd/warren/main.go's subcommand
// registration (a flat table of verb -> handler), reimplemented as a
// stdin REPL since there is no live cobra re-invocation once the server
// process is already running.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/dirbookd/server/internal/audit"
	"github.com/dirbookd/server/internal/credentials"
	"github.com/dirbookd/server/internal/directory"
	"github.com/dirbookd/server/internal/log"
	"github.com/dirbookd/server/internal/store"
	"github.com/dirbookd/server/internal/types"
)

// Console reads operator commands from in and writes responses to out.
type Console struct {
	dir      *directory.Directory
	auditLog *audit.Log
	in       io.Reader
	out      io.Writer
	shutdown func()
}

// New creates a Console wired to dir and auditLog. shutdown is invoked when
// the operator types "shutdown"; it must not block the console goroutine.
func New(dir *directory.Directory, auditLog *audit.Log, in io.Reader, out io.Writer, shutdown func()) *Console {
	return &Console{dir: dir, auditLog: auditLog, in: in, out: out, shutdown: shutdown}
}

// Run scans commands from in until EOF or a "shutdown" command is issued.
func (c *Console) Run() {
	logger := log.WithComponent("console")
	scanner := bufio.NewScanner(c.in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if done := c.dispatch(line); done {
			return
		}
	}
	if err := scanner.Err(); err != nil {
		logger.Warn().Err(err).Msg("console input error")
	}
}

// dispatch runs one command line and reports whether the console should
// stop reading further commands (true only for "shutdown").
func (c *Console) dispatch(line string) bool {
	fields := strings.Fields(line)
	cmd := fields[0]
	args := fields[1:]

	switch {
	case cmd == "shutdown":
		fmt.Fprintln(c.out, "shutting down...")
		c.shutdown()
		return true
	case cmd == "print" && len(args) == 1 && args[0] == "main":
		c.printMain()
	case cmd == "print" && len(args) == 1 && args[0] == "users":
		c.printUsers()
	case cmd == "add-main":
		c.addMain(args)
	case cmd == "del-main":
		c.delMain(args)
	case cmd == "add-priv":
		c.addUser(args, true)
	case cmd == "add-norm":
		c.addUser(args, false)
	case cmd == "del-priv":
		c.delUser(args, true)
	case cmd == "del-norm":
		c.delUser(args, false)
	case cmd == "list-audit":
		c.listAudit(args)
	default:
		fmt.Fprintf(c.out, "unrecognized command: %s\n", line)
	}
	return false
}

func (c *Console) printMain() {
	ctx := context.Background()
	release, err := c.dir.MainCoord.AcquireRead(ctx)
	if err != nil {
		fmt.Fprintf(c.out, "error: %v\n", err)
		return
	}
	defer release()
	c.dir.Main.Iterate(func(r store.Record) bool {
		fmt.Fprintf(c.out, "%s:%s\n", r.Key, r.Value)
		return true
	})
}

func (c *Console) printUsers() {
	release, err := c.dir.UserCoord.AcquireRead(context.Background())
	if err != nil {
		fmt.Fprintf(c.out, "error: %v\n", err)
		return
	}
	defer release()

	fmt.Fprintln(c.out, "privileged:")
	c.dir.Users.Privileged.Iterate(func(r store.Record) bool {
		fmt.Fprintf(c.out, "  %s\n", r.Key)
		return true
	})
	fmt.Fprintln(c.out, "normal:")
	c.dir.Users.Normal.Iterate(func(r store.Record) bool {
		fmt.Fprintf(c.out, "  %s\n", r.Key)
		return true
	})
}

func (c *Console) addMain(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(c.out, "usage: add-main NAME [NUMBERS]")
		return
	}
	numbers := ""
	if len(args) > 1 {
		numbers = args[1]
	}
	if err := c.dir.AddMain(context.Background(), args[0], numbers); err != nil {
		fmt.Fprintf(c.out, "error: %v\n", err)
		return
	}
	fmt.Fprintln(c.out, "ok")
}

func (c *Console) delMain(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(c.out, "usage: del-main NAME")
		return
	}
	if err := c.dir.DeleteMain(context.Background(), args[0]); err != nil {
		fmt.Fprintf(c.out, "error: %v\n", err)
		return
	}
	fmt.Fprintln(c.out, "ok")
}

// addUser adds username to the privileged or normal table. If username
// already exists in the opposite table, the directory promotes or
// demotes it in place instead, atomically moving it between the two
// tables rather than leaving it in both.
func (c *Console) addUser(args []string, privileged bool) {
	if len(args) != 2 {
		fmt.Fprintln(c.out, "usage: add-priv|add-norm USERNAME PASSWORD")
		return
	}
	username, password := args[0], args[1]
	if !types.ValidUsername(username) {
		fmt.Fprintln(c.out, "error: invalid username")
		return
	}
	if !types.ValidPassword(password) {
		fmt.Fprintln(c.out, "error: invalid password")
		return
	}
	hash, err := credentials.HashPassword(password)
	if err != nil {
		fmt.Fprintf(c.out, "error: %v\n", err)
		return
	}

	if privileged {
		err = c.dir.AddPrivilegedUser(context.Background(), username, hash)
	} else {
		err = c.dir.AddNormalUser(context.Background(), username, hash)
	}
	if err != nil {
		fmt.Fprintf(c.out, "error: %v\n", err)
		return
	}
	fmt.Fprintln(c.out, "ok")
}

func (c *Console) delUser(args []string, privileged bool) {
	if len(args) != 1 {
		fmt.Fprintln(c.out, "usage: del-priv|del-norm USERNAME")
		return
	}

	var err error
	if privileged {
		err = c.dir.RemovePrivilegedUser(context.Background(), args[0])
	} else {
		err = c.dir.RemoveNormalUser(context.Background(), args[0])
	}
	if err != nil {
		fmt.Fprintf(c.out, "error: %v\n", err)
		return
	}
	fmt.Fprintln(c.out, "ok")
}

func (c *Console) listAudit(args []string) {
	if c.auditLog == nil {
		fmt.Fprintln(c.out, "audit log not available")
		return
	}
	limit := 20
	events, err := c.auditLog.Recent(limit)
	if err != nil {
		fmt.Fprintf(c.out, "error: %v\n", err)
		return
	}
	for _, ev := range events {
		fmt.Fprintf(c.out, "%s %s %s %s\n", ev.Timestamp.Format("2006-01-02T15:04:05"), ev.RemoteAddr, ev.Username, ev.Outcome)
	}
}
