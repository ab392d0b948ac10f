// Package console is a line-oriented client over a session: it prints the
// week board whenever the household or week changes and runs one command
// per input line.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/dukerupert/choreweek/internal/chore"
	"github.com/dukerupert/choreweek/internal/session"
)

const help = `commands:
  show                          print the board
  week <key|next|prev|current>  switch week
  household <id>                switch household
  member <day> <name>           set who is responsible on a weekday
  chores <a,b,c>                replace the chore list
  email <day> <address>         set the notification address ("-" clears)
  proof <chore> <day> <file>    upload a proof image
  unproof <chore> <day>         remove the proof
  done <chore> <day>            mark completed (needs proof)
  undone <chore> <day>          clear completion
  actor <name>                  set who you are
  quit
days are 0-6 or mon..sun`

var dayNames = []string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

// errQuit ends Run without error.
var errQuit = errors.New("quit")

type Console struct {
	s        *session.Session
	out      io.Writer
	readFile func(string) ([]byte, error)
}

func New(s *session.Session, out io.Writer) *Console {
	return &Console{s: s, out: out, readFile: os.ReadFile}
}

// Run prints the board, then executes commands from in until quit, EOF or
// ctx ends. Remote changes reprint the board between commands.
func (c *Console) Run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	c.Show()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.s.Changes():
			c.Show()
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			err := c.Exec(ctx, line)
			if errors.Is(err, errQuit) {
				return nil
			}
			if err != nil {
				fmt.Fprintf(c.out, "error: %v\n", err)
			}
		}
	}
}

// Exec runs one command line.
func (c *Console) Exec(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	switch cmd {
	case "help", "?":
		fmt.Fprintln(c.out, help)
		return nil
	case "quit", "exit":
		return errQuit
	case "show":
		c.Show()
		return nil
	case "week":
		if len(args) != 1 {
			return usage("week <key|next|prev|current>")
		}
		var err error
		switch args[0] {
		case "next":
			err = c.s.ShiftWeek(ctx, 1)
		case "prev":
			err = c.s.ShiftWeek(ctx, -1)
		case "current":
			err = c.s.CurrentWeek(ctx)
		default:
			err = c.s.SetWeek(ctx, args[0])
		}
		return err
	case "household":
		if len(args) != 1 {
			return usage("household <id>")
		}
		return c.s.SwitchHousehold(ctx, args[0])
	case "member":
		if len(args) < 2 {
			return usage("member <day> <name>")
		}
		day, err := parseDay(args[0])
		if err != nil {
			return err
		}
		return c.s.SetMember(ctx, day, strings.Join(args[1:], " "))
	case "chores":
		list := strings.Split(strings.Join(args, " "), ",")
		return c.s.SetChores(ctx, list)
	case "email":
		if len(args) != 2 {
			return usage("email <day> <address>")
		}
		day, err := parseDay(args[0])
		if err != nil {
			return err
		}
		addr := args[1]
		if addr == "-" {
			addr = ""
		}
		return c.s.SetEmail(ctx, day, addr)
	case "actor":
		if len(args) == 0 {
			return usage("actor <name>")
		}
		c.s.SetActor(strings.Join(args, " "))
		fmt.Fprintf(c.out, "acting as %s\n", c.s.Actor())
		return nil
	case "proof":
		if len(args) != 3 {
			return usage("proof <chore> <day> <file>")
		}
		day, err := parseDay(args[1])
		if err != nil {
			return err
		}
		image, err := c.readFile(args[2])
		if err != nil {
			return fmt.Errorf("read proof: %w", err)
		}
		return c.s.UploadProof(ctx, args[0], day, image)
	case "unproof", "done", "undone":
		if len(args) != 2 {
			return usage(cmd + " <chore> <day>")
		}
		day, err := parseDay(args[1])
		if err != nil {
			return err
		}
		switch cmd {
		case "unproof":
			return c.s.RemoveProof(ctx, args[0], day)
		case "done":
			return c.s.SetDone(ctx, args[0], day, true)
		default:
			return c.s.SetDone(ctx, args[0], day, false)
		}
	}
	return fmt.Errorf("unknown command %q (try help)", cmd)
}

// Show prints the board of the followed week.
func (c *Console) Show() {
	board, err := c.s.Board()
	if err != nil {
		fmt.Fprintf(c.out, "error: %v\n", err)
		return
	}
	fmt.Fprintf(c.out, "\n%s  %s  (acting as %s)\n", board.Household, board.Week, orNone(c.s.Actor()))

	tw := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	header := []string{"DAY", "DATE", "MEMBER"}
	for _, row := range board.Chores {
		header = append(header, row.Name)
	}
	fmt.Fprintln(tw, strings.Join(header, "\t"))
	for i, a := range board.Days {
		cols := []string{dayNames[i], a.Date.Format("Jan 2"), a.Assignee}
		for _, row := range board.Chores {
			cols = append(cols, cell(row.Days[i]))
		}
		fmt.Fprintln(tw, strings.Join(cols, "\t"))
	}
	tw.Flush()
}

func cell(d chore.DayStatus) string {
	switch d.Status {
	case chore.StatusCompleted:
		if d.CompletedBy != nil {
			return "done (" + *d.CompletedBy + ")"
		}
		return "done"
	case chore.StatusProofUploaded:
		return "proof"
	default:
		return "-"
	}
}

func parseDay(s string) (int, error) {
	if n, err := strconv.Atoi(s); err == nil {
		if n < 0 || n > 6 {
			return 0, fmt.Errorf("day %d out of range 0-6", n)
		}
		return n, nil
	}
	for i, name := range dayNames {
		if strings.EqualFold(s, name) {
			return i, nil
		}
	}
	return 0, fmt.Errorf("unknown day %q", s)
}

func usage(u string) error {
	return fmt.Errorf("usage: %s", u)
}

func orNone(s string) string {
	if s == "" {
		return "nobody"
	}
	return s
}
