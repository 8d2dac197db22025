package cli

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/DDownesK12Solutions/PIPSPlus-Sync-UI-sub000/internal/resource"
)

func runResources(cmd *Command) func(args []string, stdout, stderr io.Writer) int {
	return func(args []string, stdout, stderr io.Writer) int {
		if wantsHelp(args) {
			printCommandUsage(cmd, stdout)
			return ExitOK
		}
		if len(args) == 0 {
			fmt.Fprintln(stderr, "missing action")
			printCommandUsage(cmd, stderr)
			return ExitUsage
		}
		action := args[0]

		fs := flag.NewFlagSet(cmd.Name, flag.ContinueOnError)
		fs.SetOutput(stderr)
		configPath := fs.String("config", "", "Path to config file (default: search for .pipsync/config.yml)")
		data := fs.String("data", "", "Inline JSON record payload")
		file := fs.String("file", "", "Path to a JSON record payload, or - for stdin")
		if err := fs.Parse(args[1:]); err != nil {
			return ExitUsage
		}
		rest := fs.Args()

		cfg, err := loadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(stderr, "Failed to load config: %v\n", err)
			return ExitError
		}
		warnTokenExpiry(cfg, stderr)
		client := newResourceClient(cfg)

		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Sync.RequestTimeoutSeconds)*time.Second)
		defer cancel()

		switch action {
		case "list":
			return resourceList(ctx, client, rest, stdout, stderr, cmd)
		case "get":
			return resourceGet(ctx, client, rest, stdout, stderr, cmd)
		case "create":
			return resourceCreate(ctx, client, rest, *data, *file, stdout, stderr, cmd)
		case "update":
			return resourceUpdate(ctx, client, rest, *data, *file, stdout, stderr, cmd)
		case "delete":
			return resourceDelete(ctx, client, rest, stdout, stderr, cmd)
		default:
			fmt.Fprintf(stderr, "unknown action %q\n", action)
			printCommandUsage(cmd, stderr)
			return ExitUsage
		}
	}
}

func resourceList(ctx context.Context, client *resource.Client, args []string, stdout, stderr io.Writer, cmd *Command) int {
	collection, ok := takeCollection(args, 1, stderr, cmd)
	if !ok {
		return ExitUsage
	}
	records, err := client.List(ctx, collection)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return ExitError
	}
	return printRecordJSON(records, stdout, stderr)
}

func resourceGet(ctx context.Context, client *resource.Client, args []string, stdout, stderr io.Writer, cmd *Command) int {
	collection, ok := takeCollection(args, 2, stderr, cmd)
	if !ok {
		return ExitUsage
	}
	record, err := client.Get(ctx, collection, args[1])
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return ExitError
	}
	return printRecordJSON(record, stdout, stderr)
}

func resourceCreate(ctx context.Context, client *resource.Client, args []string, data, file string, stdout, stderr io.Writer, cmd *Command) int {
	collection, ok := takeCollection(args, 1, stderr, cmd)
	if !ok {
		return ExitUsage
	}
	record, err := loadRecordPayload(data, file)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return ExitUsage
	}
	created, err := client.Create(ctx, collection, record)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return ExitError
	}
	return printRecordJSON(created, stdout, stderr)
}

func resourceUpdate(ctx context.Context, client *resource.Client, args []string, data, file string, stdout, stderr io.Writer, cmd *Command) int {
	collection, ok := takeCollection(args, 2, stderr, cmd)
	if !ok {
		return ExitUsage
	}
	record, err := loadRecordPayload(data, file)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return ExitUsage
	}
	updated, err := client.Update(ctx, collection, args[1], record)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return ExitError
	}
	return printRecordJSON(updated, stdout, stderr)
}

func resourceDelete(ctx context.Context, client *resource.Client, args []string, stdout, stderr io.Writer, cmd *Command) int {
	collection, ok := takeCollection(args, 2, stderr, cmd)
	if !ok {
		return ExitUsage
	}
	if err := client.Delete(ctx, collection, args[1]); err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return ExitError
	}
	fmt.Fprintf(stdout, "Deleted %s/%s\n", collection, args[1])
	return ExitOK
}

// takeCollection validates the positional arguments of a resource
// action: a known collection name plus, when want is 2, a record id.
func takeCollection(args []string, want int, stderr io.Writer, cmd *Command) (string, bool) {
	if len(args) != want {
		fmt.Fprintln(stderr, "wrong number of arguments")
		printCommandUsage(cmd, stderr)
		return "", false
	}
	collection := args[0]
	if !slices.Contains(resource.Collections, collection) {
		fmt.Fprintf(stderr, "unknown collection %q (want one of %s)\n", collection, strings.Join(resource.Collections, ", "))
		return "", false
	}
	return collection, true
}

// loadRecordPayload reads the record body from --data, --file, or stdin
// via "--file -".
func loadRecordPayload(data, file string) (resource.Record, error) {
	if data != "" && file != "" {
		return nil, fmt.Errorf("pass either --data or --file, not both")
	}
	var raw []byte
	switch {
	case data != "":
		raw = []byte(data)
	case file == "-":
		body, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		raw = body
	case file != "":
		body, err := os.ReadFile(file)
		if err != nil {
			return nil, err
		}
		raw = body
	default:
		return nil, fmt.Errorf("a record payload is required: pass --data or --file")
	}
	var record resource.Record
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("decode record payload: %w", err)
	}
	return record, nil
}

func printRecordJSON(payload any, stdout, stderr io.Writer) int {
	encoder := json.NewEncoder(stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(payload); err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return ExitError
	}
	return ExitOK
}
