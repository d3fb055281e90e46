package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/matheus3301/tgfilter/internal/api"
	"github.com/matheus3301/tgfilter/internal/config"
	"github.com/matheus3301/tgfilter/internal/instance"
	"github.com/samber/lo"
)

func main() {
	instanceFlag := flag.String("instance", "", "instance name (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Usage = printUsage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	// init works without a daemon.
	if args[0] == "init" {
		cmdInit(args[1:])
		return
	}

	name := instance.Resolve(*instanceFlag)
	if err := instance.ValidateName(name); err != nil {
		fatal(err)
	}

	c, err := api.Dial(instance.SocketPath(name))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: cannot connect to daemon for instance %q: %v\n", name, err)
		os.Exit(1)
	}
	defer func() { _ = c.Close() }()

	if args[0] == "watch" {
		cmdWatch(c, args[1:], *jsonFlag)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch args[0] {
	case "status":
		cmdStatus(ctx, c, *jsonFlag)
	case "filters":
		cmdFilters(ctx, c, args[1:], *jsonFlag)
	case "users":
		cmdUsers(ctx, c, args[1:])
	case "stalled":
		cmdStalled(ctx, c, args[1:], *jsonFlag)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: tgfctl [--instance <name>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  status                               Show daemon status")
	fmt.Fprintln(os.Stderr, "  filters add <user_id> <pattern>      Add a filter")
	fmt.Fprintln(os.Stderr, "  filters list [user_id]               List active filters")
	fmt.Fprintln(os.Stderr, "  filters disable <user_id> <id>       Disable a filter")
	fmt.Fprintln(os.Stderr, "  users enable|disable <user_id>       Change user status")
	fmt.Fprintln(os.Stderr, "  stalled [--older-than 5m] [--limit n] List unprocessed deliveries")
	fmt.Fprintln(os.Stderr, "  watch [kind-prefix]                  Stream daemon events")
	fmt.Fprintln(os.Stderr, "  init [--force]                       Write a default config file")
}

func cmdStatus(ctx context.Context, c *api.Client, jsonOut bool) {
	resp, err := c.Status(ctx)
	if err != nil {
		fatal(err)
	}
	if jsonOut {
		outputJSON(resp)
		return
	}
	fmt.Printf("Instance:   %s\n", resp.Instance)
	fmt.Printf("State:      %s\n", resp.State)
	fmt.Printf("Uptime:     %s\n", (time.Duration(resp.UptimeMs) * time.Millisecond).Round(time.Second))
	fmt.Printf("Inbound:    %d/%d\n", resp.Inbound.Len, resp.Inbound.Cap)
	fmt.Printf("Outbound:   %d/%d\n", resp.Outbound.Len, resp.Outbound.Cap)
	fmt.Printf("Messages:   %d stored, %d seen, %d skipped\n", resp.MessageCount, resp.Pipeline.Messages, resp.Pipeline.Skipped)
	fmt.Printf("Jobs:       %d queued, %d unroutable, %d failed\n", resp.Pipeline.Jobs, resp.Pipeline.Unroutable, resp.Pipeline.Failures)
	fmt.Printf("Deliveries: %d processed, %d pending, %d stalled at last sweep\n", resp.Processed, resp.Pending, resp.LastStalled)
	if resp.StoreError != "" {
		fmt.Printf("Store:      unavailable (%s)\n", resp.StoreError)
	}
}

func cmdFilters(ctx context.Context, c *api.Client, args []string, jsonOut bool) {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: tgfctl filters <add|list|disable>")
		os.Exit(1)
	}
	switch args[0] {
	case "add":
		if len(args) != 3 {
			fmt.Fprintln(os.Stderr, "usage: tgfctl filters add <user_id> <pattern>")
			os.Exit(1)
		}
		f, err := c.AddFilter(ctx, parseID(args[1]), args[2])
		if err != nil {
			fatal(err)
		}
		if jsonOut {
			outputJSON(f)
			return
		}
		fmt.Printf("Filter %d added for user %d: %s\n", f.ID, f.UserID, f.Pattern)
	case "list":
		var userID int64
		if len(args) > 1 {
			userID = parseID(args[1])
		}
		filters, err := c.ListFilters(ctx, userID)
		if err != nil {
			fatal(err)
		}
		if jsonOut {
			outputJSON(filters)
			return
		}
		if len(filters) == 0 {
			fmt.Println("No active filters.")
			return
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tUSER\tCREATED\tPATTERN")
		for _, f := range filters {
			fmt.Fprintf(w, "%d\t%d\t%s\t%s\n", f.ID, f.UserID, formatMs(f.CreatedAtMs), f.Pattern)
		}
		_ = w.Flush()
	case "disable":
		if len(args) != 3 {
			fmt.Fprintln(os.Stderr, "usage: tgfctl filters disable <user_id> <filter_id>")
			os.Exit(1)
		}
		if err := c.DisableFilter(ctx, parseID(args[1]), parseID(args[2])); err != nil {
			fatal(err)
		}
		fmt.Println("Filter disabled.")
	default:
		fmt.Fprintf(os.Stderr, "unknown filters subcommand: %s\n", args[0])
		os.Exit(1)
	}
}

func cmdUsers(ctx context.Context, c *api.Client, args []string) {
	if len(args) != 2 || (args[0] != "enable" && args[0] != "disable") {
		fmt.Fprintln(os.Stderr, "usage: tgfctl users <enable|disable> <user_id>")
		os.Exit(1)
	}
	if err := c.SetUserStatus(ctx, parseID(args[1]), args[0] == "enable"); err != nil {
		fatal(err)
	}
	fmt.Printf("User %sd.\n", args[0])
}

func cmdStalled(ctx context.Context, c *api.Client, args []string, jsonOut bool) {
	fs := flag.NewFlagSet("stalled", flag.ExitOnError)
	olderThan := fs.Duration("older-than", 5*time.Minute, "minimum record age")
	limit := fs.Int("limit", 100, "maximum records")
	_ = fs.Parse(args)

	recs, err := c.StalledRecords(ctx, &api.StalledRecordsRequest{
		OlderThanMs: olderThan.Milliseconds(),
		Limit:       *limit,
	})
	if err != nil {
		fatal(err)
	}
	if jsonOut {
		outputJSON(recs)
		return
	}
	if len(recs) == 0 {
		fmt.Println("No stalled deliveries.")
		return
	}
	users := lo.Uniq(lo.Map(recs, func(r api.DeliveryRecord, _ int) int64 { return r.UserID }))
	fmt.Printf("%d stalled deliveries for %d users (no chat binding when they matched):\n", len(recs), len(users))
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "USER\tCHANNEL\tMESSAGE\tCREATED")
	for _, r := range recs {
		fmt.Fprintf(w, "%d\t%d\t%d\t%s\n", r.UserID, r.ChannelID, r.MessageID, formatMs(r.CreatedAtMs))
	}
	_ = w.Flush()
}

func cmdWatch(c *api.Client, args []string, jsonOut bool) {
	prefix := ""
	if len(args) > 0 {
		prefix = args[0]
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := c.Watch(ctx, prefix, func(evt *api.Event) {
		if jsonOut {
			outputJSON(evt)
			return
		}
		fields := lo.MapToSlice(evt.Fields, func(k, v string) string { return k + "=" + v })
		slices.Sort(fields)
		fmt.Printf("%s %-22s %s\n", formatMs(evt.OccurredAtMs), evt.Kind, strings.Join(fields, " "))
	})
	if err != nil && ctx.Err() == nil {
		fatal(err)
	}
}

func cmdInit(args []string) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	force := fs.Bool("force", false, "overwrite an existing config file")
	_ = fs.Parse(args)

	path := instance.ConfigPath()
	if _, err := os.Stat(path); err == nil && !*force {
		fmt.Fprintf(os.Stderr, "config already exists at %s (use --force to overwrite)\n", path)
		os.Exit(1)
	}
	cfg := config.Default()
	cfg.DefaultInstance = instance.DefaultName
	if err := config.Save(path, cfg); err != nil {
		fatal(err)
	}
	fmt.Printf("Wrote %s\n", path)
}

func parseID(s string) int64 {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		fatal(fmt.Errorf("invalid id %q", s))
	}
	return id
}

func formatMs(ms int64) string {
	return time.UnixMilli(ms).Format("2006-01-02 15:04:05")
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}
