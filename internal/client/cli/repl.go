package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

const helpText = "Available commands: submit, draft, (l)ist, retry <id>, delete <id>, sync, status, help, exit"

// execIface is the command surface the REPL needs. App satisfies it; tests
// provide a lightweight stub.
type execIface interface {
	Submit(ctx context.Context) error
	Draft(ctx context.Context) error
	List(ctx context.Context) error
	Retry(ctx context.Context, id int64) error
	Delete(ctx context.Context, id int64) error
	Sync(ctx context.Context) error
	Status(ctx context.Context) error
}

// runREPL reads one command per line from reader and dispatches it to a.
// The loop exits on EOF, on "exit" or "quit", or when ctx is done.
//
// Errors returned by command handlers are printed and the loop continues.
// Commands that prompt for more input read from the same reader.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader) {
	for {
		if ctx.Err() != nil {
			return
		}

		printlnFn(fmt.Sprintf("formsync %s> ", statusFn()))
		line, err := reader.ReadString('\n')
		if err != nil && (!errors.Is(err, io.EOF) || line == "") {
			return
		}

		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		var cmdErr error
		switch cmd {
		case "help":
			printlnFn(helpText)

		case "submit":
			cmdErr = a.Submit(ctx)

		case "draft":
			cmdErr = a.Draft(ctx)

		case "l", "list":
			cmdErr = a.List(ctx)

		case "retry":
			id, ok := parseID(cmd, args)
			if !ok {
				continue
			}
			cmdErr = a.Retry(ctx, id)

		case "delete":
			id, ok := parseID(cmd, args)
			if !ok {
				continue
			}
			cmdErr = a.Delete(ctx, id)

		case "sync":
			cmdErr = a.Sync(ctx)

		case "status":
			cmdErr = a.Status(ctx)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}

		if cmdErr != nil {
			printlnFn("Error:", cmdErr)
		}
	}
}

func parseID(cmd string, args []string) (int64, bool) {
	if len(args) == 0 {
		printlnFn(fmt.Sprintf("Usage: %s <id>", cmd))
		return 0, false
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		printlnFn("Invalid id:", args[0])
		return 0, false
	}
	return id, true
}
