package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"scribed/pkg/types"
)

// scribectl is a thin client for a running scribed daemon. It exists for
// manual testing and shell scripting; the desktop UI talks to the same API.

type client struct {
	base string
	http *http.Client
}

func (c *client) post(path string, req, resp any) error {
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}
	r, err := c.http.Post(c.base+path, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer r.Body.Close()
	return decodeOrError(r, resp)
}

func (c *client) get(path string, resp any) error {
	r, err := c.http.Get(c.base + path)
	if err != nil {
		return err
	}
	defer r.Body.Close()
	return decodeOrError(r, resp)
}

func decodeOrError(r *http.Response, resp any) error {
	if r.StatusCode/100 != 2 {
		var e types.ErrorResponse
		if json.NewDecoder(r.Body).Decode(&e) == nil && e.Error != "" {
			if e.Hint != "" {
				return fmt.Errorf("%s (hint: %s)", e.Error, e.Hint)
			}
			return fmt.Errorf("%s", e.Error)
		}
		return fmt.Errorf("daemon returned %s", r.Status)
	}
	if resp == nil {
		return nil
	}
	return json.NewDecoder(r.Body).Decode(resp)
}

func newRootCmd() *cobra.Command {
	var addr string
	root := &cobra.Command{
		Use:           "scribectl",
		Short:         "Client for a running scribed daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&addr, "addr", "http://127.0.0.1:8573", "Daemon base URL")
	cl := func() *client {
		return &client{base: strings.TrimRight(addr, "/"), http: &http.Client{}}
	}

	root.AddCommand(newStatusCmd(cl))
	root.AddCommand(newBackendsCmd(cl))
	root.AddCommand(newTranscribeCmd(cl))
	root.AddCommand(newCorrectCmd(cl))
	root.AddCommand(newProbeCmd(cl))
	return root
}

func newStatusCmd(cl func() *client) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			var st types.StatusResponse
			if err := cl().get("/v1/status", &st); err != nil {
				return err
			}
			out, _ := json.MarshalIndent(st, "", "  ")
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
}

func newBackendsCmd(cl func() *client) *cobra.Command {
	return &cobra.Command{
		Use:   "backends",
		Short: "List configured backends",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp types.BackendsResponse
			if err := cl().get("/v1/backends", &resp); err != nil {
				return err
			}
			for _, b := range resp.Backends {
				fmt.Fprintf(cmd.OutOrStdout(), "%-18s %-10s %-11s %s\n", b.ID, b.Kind, b.Mode, b.Name)
			}
			return nil
		},
	}
}

func newTranscribeCmd(cl func() *client) *cobra.Command {
	var backend string
	cmd := &cobra.Command{
		Use:   "transcribe <audio-file>",
		Short: "Transcribe a local audio file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			done := startSpinner("transcribing")
			var res types.ResultResponse
			err = cl().post("/v1/transcribe", types.TranscribeRequest{AudioPath: path, Backend: backend}, &res)
			done()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Text)
			return nil
		},
	}
	cmd.Flags().StringVar(&backend, "backend", "", "Backend id (default: server default)")
	return cmd
}

func newCorrectCmd(cl func() *client) *cobra.Command {
	var backend, prompt string
	cmd := &cobra.Command{
		Use:   "correct [text]",
		Short: "Correct transcript text (reads stdin when no argument)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var text string
			if len(args) == 1 {
				text = args[0]
			} else {
				b, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return err
				}
				text = string(b)
			}
			done := startSpinner("correcting")
			var res types.ResultResponse
			err := cl().post("/v1/correct", types.CorrectRequest{Text: text, Backend: backend, Prompt: prompt}, &res)
			done()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Text)
			return nil
		},
	}
	cmd.Flags().StringVar(&backend, "backend", "", "Backend id (default: server default)")
	cmd.Flags().StringVar(&prompt, "prompt", "", "Override the correction system prompt")
	return cmd
}

func newProbeCmd(cl func() *client) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "probe [module]",
		Short: "Check interpreter capabilities",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := types.ProbeRequest{Force: force}
			if len(args) == 1 {
				req.Module = args[0]
			}
			var resp types.ProbeResponse
			if err := cl().post("/v1/probe", req, &resp); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "interpreter: %s\n", resp.Interpreter)
			for mod, ok := range resp.Available {
				state := "missing"
				if ok {
					state = "available"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-16s %s\n", mod, state)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Re-run checks, ignoring cached results")
	return cmd
}

// startSpinner shows an indeterminate progress spinner on a terminal and is
// a no-op when output is piped. Returns a stop func.
func startSpinner(desc string) func() {
	if !term.IsTerminal(int(os.Stderr.Fd())) {
		return func() {}
	}
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(desc),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionClearOnFinish(),
	)
	stop := make(chan struct{})
	go func() {
		t := time.NewTicker(100 * time.Millisecond)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				_ = bar.Add(1)
			}
		}
	}()
	return func() {
		close(stop)
		_ = bar.Finish()
	}
}
