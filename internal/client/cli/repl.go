package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for REPL output.
var printlnFn = fmt.Println

// execIface is the command surface the REPL drives.
type execIface interface {
	isLoggedIn() bool
	Signup(ctx context.Context) error
	Signin(ctx context.Context) error
	Whoami(ctx context.Context) error
	Refresh(ctx context.Context) error
	Signout(ctx context.Context) error
}

// runREPL reads commands from reader until EOF or "exit". Command errors
// are reported by the commands themselves and do not stop the loop.
//
//	Not signed in: help, signup, signin, exit
//	Signed in:     help, whoami, refresh, signout, exit
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader) {
	for {
		printlnFn(fmt.Sprintf("gophauth %s> ", statusFn()))

		line, err := reader.ReadString('\n')
		parts := strings.Fields(line)
		if len(parts) == 0 {
			if err != nil {
				return
			}
			continue
		}

		switch cmd := parts[0]; cmd {
		case "help":
			if a.isLoggedIn() {
				printlnFn("Available commands: whoami, refresh, signout, exit")
			} else {
				printlnFn("Available commands: signup, signin, exit")
			}
		case "signup", "register":
			_ = a.Signup(ctx)
		case "signin", "login":
			_ = a.Signin(ctx)
		case "whoami":
			_ = a.Whoami(ctx)
		case "refresh":
			_ = a.Refresh(ctx)
		case "signout", "logout":
			_ = a.Signout(ctx)
		case "exit", "quit":
			printlnFn("Bye!")
			return
		default:
			printlnFn("Unknown command:", cmd)
		}

		if err != nil {
			return
		}
	}
}
