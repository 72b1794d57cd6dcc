package peer

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/FishyDanny/simple-file-sharing-server/pkg/log"
	"github.com/FishyDanny/simple-file-sharing-server/pkg/stop"
	"github.com/FishyDanny/simple-file-sharing-server/sharing"
	"github.com/FishyDanny/simple-file-sharing-server/transfer"
)

const availableCommands = "Available commands are: get, lap, lpf, pub, sch, unp, xit"

// Console is the interactive front of a peer: it logs in, serves uploads from
// a directory, relays typed commands to the tracker and starts downloads.
type Console struct {
	client *Client
	dir    string
	in     *bufio.Scanner

	outMu sync.Mutex
	out   io.Writer

	// UploadAddr is the address the upload listener binds.
	UploadAddr string
}

// NewConsole creates a Console sharing and downloading files in dir.
func NewConsole(client *Client, dir string, in io.Reader, out io.Writer) *Console {
	return &Console{
		client:     client,
		dir:        dir,
		in:         bufio.NewScanner(in),
		out:        out,
		UploadAddr: ":0",
	}
}

func (c *Console) println(a ...interface{}) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	fmt.Fprintln(c.out, a...)
}

func (c *Console) prompt(p string) (string, bool) {
	c.outMu.Lock()
	fmt.Fprint(c.out, p)
	c.outMu.Unlock()

	if !c.in.Scan() {
		return "", false
	}
	return strings.TrimSpace(c.in.Text()), true
}

// Run logs in and processes commands until `xit`, the end of input or a
// broken control connection.
func (c *Console) Run(ctx context.Context) error {
	if err := c.login(); err != nil {
		return err
	}
	c.println(availableCommands)
	c.client.StartHeartbeat(sharing.HeartbeatInterval)

	workers := stop.NewGroup()
	defer func() {
		if errs := workers.Stop().Wait(); len(errs) > 0 {
			log.Error("failed to stop transfer workers", log.Fields{"errors": errs})
		}
	}()

	uploads, err := transfer.Listen(c.UploadAddr, c.dir)
	if err != nil {
		return err
	}
	workers.Add(uploads)
	if err := c.client.RegisterPort(uploads.Port()); err != nil {
		log.Warn("tracker refused the upload port", log.Err(err))
	}

	downloads := transfer.NewDownloader(c.dir)
	workers.Add(downloads)

	for {
		line, ok := c.prompt("")
		if !ok {
			return c.in.Err()
		}
		if line == "" {
			continue
		}

		// The tracker never answers a heartbeat.
		if sharing.ParseCommand(line).Kind == sharing.Heartbeat {
			if err := c.client.Send(line); err != nil {
				return err
			}
			continue
		}

		resp, err := c.client.Request(line)
		if err != nil {
			return err
		}

		lines, req, exit := describe(resp)
		for _, l := range lines {
			c.println(l)
		}
		if req != nil {
			downloads.Go(*req, c.reportDownload)
		}
		if exit {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

func (c *Console) login() error {
	for {
		username, ok := c.prompt("Enter username: ")
		if !ok {
			return io.ErrUnexpectedEOF
		}
		password, ok := c.prompt("Enter password: ")
		if !ok {
			return io.ErrUnexpectedEOF
		}

		err := c.client.Authenticate(username, password)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, ErrAuthRejected):
			c.println("Authentication failed. Please try again.")
		case errors.Is(err, ErrUnexpectedResponse):
			c.println("Unexpected response from server")
		default:
			return err
		}
	}
}

func (c *Console) reportDownload(res transfer.Result) {
	switch {
	case res.Err == nil:
		c.println(res.Filename + " downloaded successfully")
	case errors.Is(res.Err, transfer.ErrSizeMismatch):
		c.println(res.Filename + " download failed")
	default:
		c.println("File transfer failed: " + res.Err.Error())
	}
}

// describe renders a tracker response as console lines. A successful `get`
// also yields the download to start, and `xit` ends the session.
func describe(resp string) (lines []string, req *transfer.Request, exit bool) {
	switch {
	case resp == "":
		return []string{"Message from server is empty"}, nil, false
	case strings.HasPrefix(resp, sharing.Get.String()):
		host, port, filename, err := sharing.ParseGetResponse(resp)
		if err != nil {
			return []string{"File not found"}, nil, false
		}
		return nil, &transfer.Request{Host: host, Port: port, Filename: filename}, false
	case strings.HasPrefix(resp, sharing.ListPeers.String()):
		return describeList(sharing.ListPeers, resp, "No active peers", "active peer", "active peers"), nil, false
	case strings.HasPrefix(resp, sharing.ListFiles.String()):
		return describeList(sharing.ListFiles, resp, "No files published", "published file", "published files"), nil, false
	case strings.HasPrefix(resp, sharing.Search.String()):
		return describeList(sharing.Search, resp, "No files found", "file found", "files found"), nil, false
	case strings.HasPrefix(resp, sharing.Publish.String()):
		return []string{describeStatus(resp, sharing.PubOK, sharing.PubErr,
			"File published successfully", "Failed to publish file")}, nil, false
	case strings.HasPrefix(resp, sharing.Unpublish.String()):
		return []string{describeStatus(resp, sharing.UnpOK, sharing.UnpErr,
			"File unpublished successfully", "Failed to unpublish file")}, nil, false
	case strings.HasPrefix(resp, sharing.Exit.String()):
		return []string{"Goodbye!"}, nil, true
	default:
		return []string{"Invalid command"}, nil, false
	}
}

func describeList(kind sharing.CommandKind, resp, empty, one, many string) []string {
	items := sharing.ParseListResponse(kind, resp)
	if len(items) == 0 {
		return []string{empty}
	}

	header := fmt.Sprintf("%d %s:", len(items), many)
	if len(items) == 1 {
		header = fmt.Sprintf("1 %s:", one)
	}
	return append([]string{header}, items...)
}

func describeStatus(resp, okResp, errResp, okMsg, errMsg string) string {
	switch resp {
	case okResp:
		return okMsg
	case errResp:
		return errMsg
	default:
		return "Unexpected response from server"
	}
}
