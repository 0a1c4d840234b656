// Command djcore runs statements against a DataJoint database, introspects
// its tables, manages content-addressed attachments and serves the HTTP
// console.
//
// Usage:
//
//	djcore [-config djcore.yaml] [-log-level debug] <command> [options]
//
// Commands:
//
//	exec   <sql> [args...]          run a statement, print affected rows
//	fetch  [-limit n] [-format json|table] <sql> [args...]
//	tables [-schema s] [table]      list tables, or describe one
//	hash   <file|->...              print content ids
//	attach put <file> | get [-o out] <id> | url <id> | list
//	serve  [-addr host:port]        run the HTTP console
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/koustreak/djcore/internal/errs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{stdin: os.Stdin, stdout: os.Stdout, stderr: os.Stderr}
	if err := a.run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "djcore:", err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	var u *usageError
	switch {
	case errors.As(err, &u):
		return 2
	case errs.IsConnection(err), errs.IsNotConnected(err):
		return 3
	}
	return 1
}
