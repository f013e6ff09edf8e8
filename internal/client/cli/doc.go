// Package cli implements the interactive gophauth client: a small REPL with
// signup, signin, whoami, refresh and signout commands.
package cli
