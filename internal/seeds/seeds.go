// Package seeds reads the seed group ids of a scan from arguments or an
// interactive prompt.
package seeds

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/groupoverlap/groupoverlap/internal/directory"
	"github.com/groupoverlap/groupoverlap/pkg/group"
)

// ErrPromptClosed is returned when the input ends before any id was entered.
var ErrPromptClosed = errors.New("prompt closed before any group id was entered")

// ParseIDs removes spaces, splits input on commas and parses each token as a
// positive group id. Tokens that are not valid ids are returned in rejected.
// Empty tokens are skipped.
func ParseIDs(input string) (ids []group.ID, rejected []string) {
	for _, token := range strings.Split(strings.ReplaceAll(input, " ", ""), ",") {
		if token == "" {
			continue
		}
		id, err := group.ParseID(token)
		if err != nil {
			rejected = append(rejected, token)
			continue
		}
		ids = append(ids, id)
	}
	return ids, rejected
}

// Validator checks that a group exists. Errors matching directory.ErrNotFound
// mean the id does not exist; any other error means it could not be checked.
type Validator func(ctx context.Context, id group.ID) error

const banner = "Input a valid group id or multiple ids separated by a comma.\n" +
	"Type done to stop prompting ids and run the scan.\n" +
	"Type help for a list of commands.\n"

const help = "list - Prints a list of all the ids inputted.\n" +
	"rem <id> - Removes an id from the input.\n" +
	"del <id> - Same as rem.\n"

// Prompt is a line-oriented loop that accumulates validated group ids.
type Prompt struct {
	in       *bufio.Scanner
	out      io.Writer
	validate Validator
	ids      map[group.ID]struct{}
}

func NewPrompt(in io.Reader, out io.Writer, validate Validator) *Prompt {
	return &Prompt{
		in:       bufio.NewScanner(in),
		out:      out,
		validate: validate,
		ids:      map[group.ID]struct{}{},
	}
}

// Run prompts until the user types done with at least one id entered. The ids
// are returned in ascending order. When the input ends first, the ids entered
// so far are returned, or ErrPromptClosed if there are none.
func (p *Prompt) Run(ctx context.Context) ([]group.ID, error) {
	fmt.Fprint(p.out, banner)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		fmt.Fprint(p.out, "> ")
		if !p.in.Scan() {
			// end the dangling prompt line
			fmt.Fprintln(p.out)
			if err := p.in.Err(); err != nil {
				return nil, fmt.Errorf("reading group ids: %w", err)
			}
			if len(p.ids) == 0 {
				return nil, ErrPromptClosed
			}
			return p.sorted(), nil
		}

		line := strings.TrimSpace(p.in.Text())
		command, arg, _ := strings.Cut(line, " ")

		switch command {
		case "":
		case "help":
			fmt.Fprint(p.out, help)
		case "done":
			if len(p.ids) == 0 {
				fmt.Fprintln(p.out, "You must input at least one group id!")
				continue
			}
			return p.sorted(), nil
		case "list":
			if len(p.ids) == 0 {
				fmt.Fprintln(p.out, "There are no group ids.")
				continue
			}
			for _, id := range p.sorted() {
				fmt.Fprintln(p.out, id)
			}
		case "rem", "del":
			p.remove(strings.TrimSpace(arg))
		default:
			p.add(ctx, line)
		}
	}
}

func (p *Prompt) remove(arg string) {
	if arg == "" {
		fmt.Fprintln(p.out, "ID cannot be blank!")
		return
	}

	id, err := group.ParseID(arg)
	if _, ok := p.ids[id]; err != nil || !ok {
		fmt.Fprintf(p.out, "Cannot find %s in inputted ids.\n", arg)
		return
	}
	delete(p.ids, id)
}

func (p *Prompt) add(ctx context.Context, line string) {
	ids, rejected := ParseIDs(line)
	for _, token := range rejected {
		fmt.Fprintf(p.out, "%s is not a valid id, ignoring id.\n", token)
	}

	for _, id := range ids {
		if _, ok := p.ids[id]; ok {
			continue
		}
		if err := p.validate(ctx, id); err != nil {
			if directory.IsNotFound(err) {
				fmt.Fprintf(p.out, "The group id %s does not exist, ignoring id.\n", id)
			} else {
				fmt.Fprintf(p.out, "The group id %s could not be checked, ignoring id.\n", id)
			}
			continue
		}
		p.ids[id] = struct{}{}
	}
}

func (p *Prompt) sorted() []group.ID {
	ids := make([]group.ID, 0, len(p.ids))
	for id := range p.ids {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
