// Command roverctl drives a running rovermap: commands and status over
// gRPC, maps over HTTP.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/roverscan/rovermap/internal/api"
	"github.com/roverscan/rovermap/internal/session"
	"github.com/roverscan/rovermap/internal/transport/grpcapi"
	"github.com/spf13/pflag"
)

const usage = `usage: roverctl [flags] <command> [args]

commands:
  send <command line>   submit a rover command, e.g. "DriveForward 10"
  status                print the latest status
  watch                 stream status lines until interrupted
  maps                  list stored maps
  get <name>            print a map document ("current" is the live map)
  geojson <name> [dir]  download a map as GeoJSON

flags:
`

type options struct {
	grpcAddr string
	httpAddr string
	timeout  time.Duration
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, "roverctl:", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	opts := options{}
	fs := pflag.NewFlagSet("roverctl", pflag.ContinueOnError)
	fs.StringVar(&opts.grpcAddr, "addr", "localhost:50051", "rovermap gRPC address")
	fs.StringVar(&opts.httpAddr, "http", "http://localhost:8080", "rovermap HTTP base URL")
	fs.DurationVar(&opts.timeout, "timeout", 10*time.Second, "per-request timeout")
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}

	rest := fs.Args()
	if len(rest) == 0 {
		fs.Usage()
		return errors.New("no command given")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch strings.ToLower(rest[0]) {
	case "send":
		if len(rest) < 2 {
			return errors.New("send needs a command")
		}
		return withClient(opts.grpcAddr, func(c *grpcapi.Client) error {
			rctx, cancel := context.WithTimeout(ctx, opts.timeout)
			defer cancel()
			ack, err := c.SendText(rctx, strings.Join(rest[1:], " "))
			if err != nil {
				return err
			}
			return printAck(out, ack)
		})

	case "status":
		return withClient(opts.grpcAddr, func(c *grpcapi.Client) error {
			rctx, cancel := context.WithTimeout(ctx, opts.timeout)
			defer cancel()
			snap, err := c.Status(rctx)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(out, snap.Status)
			return err
		})

	case "watch":
		return withClient(opts.grpcAddr, func(c *grpcapi.Client) error {
			err := c.Watch(ctx, func(s session.Snapshot) error {
				_, err := fmt.Fprintln(out, s.Status)
				return err
			})
			if ctx.Err() != nil {
				return nil
			}
			return err
		})

	case "maps":
		maps, err := api.New(opts.httpAddr).ListMaps()
		if err != nil {
			return err
		}
		for _, m := range maps {
			fmt.Fprintf(out, "%-40s %10d  %s\n", m.Name, m.Size, m.UpdatedAt.Format(time.RFC3339))
		}
		return nil

	case "get":
		if len(rest) != 2 {
			return errors.New("get needs a map name")
		}
		doc, err := api.New(opts.httpAddr).GetMap(rest[1])
		if err != nil {
			return err
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)

	case "geojson":
		if len(rest) < 2 || len(rest) > 3 {
			return errors.New("geojson needs a map name and an optional directory")
		}
		dir := "."
		if len(rest) == 3 {
			dir = rest[2]
		}
		path, err := api.New(opts.httpAddr).DownloadGeoJSON(rest[1], dir)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, "wrote", path)
		return err
	}

	fs.Usage()
	return fmt.Errorf("unknown command %q", rest[0])
}

func withClient(addr string, fn func(*grpcapi.Client) error) error {
	c, err := grpcapi.Dial(addr)
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(c)
}

func printAck(out io.Writer, ack *session.Ack) error {
	if !ack.Success {
		return errors.New(ack.Message)
	}
	_, err := fmt.Fprintln(out, "ok:", ack.Message)
	return err
}
