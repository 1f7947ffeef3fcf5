// Package report renders the ranking of a scan as text or YAML.
package report

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"sigs.k8s.io/yaml"

	"github.com/groupoverlap/groupoverlap/internal/pipeline"
	"github.com/groupoverlap/groupoverlap/internal/ranker"
	"github.com/groupoverlap/groupoverlap/pkg/group"
)

const (
	FormatText = "text"
	FormatYAML = "yaml"

	// fileNameLayout renders as e.g. Mon-15_04_05-Jan-2006.
	fileNameLayout = "Mon-15_04_05-Jan-2006"

	DefaultGroupURLBase = "https://www.roblox.com/groups"
)

var nonAlphanumeric = regexp.MustCompile(`[^A-Za-z0-9]+`)

// FileName returns the report file name for a run started at t.
func FileName(t time.Time, format string) string {
	ext := ".txt"
	if format == FormatYAML {
		ext = ".yaml"
	}
	return t.Format(fileNameLayout) + ext
}

// Slug turns a group name into the URL path segment used by group pages.
func Slug(name string) string {
	slug := strings.Trim(nonAlphanumeric.ReplaceAllString(name, "-"), "-")
	if slug == "" {
		return "x"
	}
	return slug
}

type WriterOption func(w *Writer)

// WithGroupURLBase sets the base of the group page links.
func WithGroupURLBase(base string) WriterOption {
	return func(w *Writer) {
		w.groupURLBase = strings.TrimSuffix(base, "/")
	}
}

// WithTop limits the report to the first n entries. n <= 0 keeps every entry.
func WithTop(n int) WriterOption {
	return func(w *Writer) {
		w.top = n
	}
}

type Writer struct {
	groupURLBase string
	top          int
}

func NewWriter(opts ...WriterOption) *Writer {
	w := &Writer{groupURLBase: DefaultGroupURLBase}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

func (w *Writer) groupURL(g group.Record) string {
	return fmt.Sprintf("%s/%d/%s", w.groupURLBase, uint64(g.ID), Slug(g.Name))
}

func (w *Writer) entries(r pipeline.Report) []group.RankingEntry {
	return ranker.Top(r.Entries, w.top)
}

// WriteText writes one line per ranked group.
func (w *Writer) WriteText(out io.Writer, r pipeline.Report) error {
	buf := bufio.NewWriter(out)
	for _, e := range w.entries(r) {
		noun := "occurrences"
		if e.SharedMemberCount == 1 {
			noun = "occurrence"
		}
		if _, err := fmt.Fprintf(buf, "%s - %s - %d %s\n", e.Group.Name, w.groupURL(e.Group), e.SharedMemberCount, noun); err != nil {
			return err
		}
	}
	return buf.Flush()
}

type yamlGroup struct {
	ID    uint64 `json:"id"`
	Name  string `json:"name"`
	URL   string `json:"url"`
	Owner string `json:"owner,omitempty"`
}

type yamlEntry struct {
	yamlGroup
	SharedMemberCount int `json:"sharedMemberCount"`
}

type yamlReport struct {
	RunID      string         `json:"runId"`
	StartedAt  time.Time      `json:"startedAt"`
	FinishedAt time.Time      `json:"finishedAt"`
	Seeds      []yamlGroup    `json:"seeds"`
	Stats      pipeline.Stats `json:"stats"`
	Entries    []yamlEntry    `json:"entries"`
}

func (w *Writer) yamlGroup(g group.Record) yamlGroup {
	out := yamlGroup{ID: uint64(g.ID), Name: g.Name, URL: w.groupURL(g)}
	if g.Owner != nil {
		out.Owner = g.Owner.DisplayName
	}
	return out
}

// WriteYAML writes the run summary, including stage statistics, as YAML.
func (w *Writer) WriteYAML(out io.Writer, r pipeline.Report) error {
	doc := yamlReport{
		RunID:      r.RunID,
		StartedAt:  r.StartedAt.UTC(),
		FinishedAt: r.FinishedAt.UTC(),
		Stats:      r.Stats,
		Seeds:      make([]yamlGroup, 0, len(r.Seeds)),
		Entries:    make([]yamlEntry, 0, len(r.Entries)),
	}
	for _, s := range r.Seeds {
		doc.Seeds = append(doc.Seeds, w.yamlGroup(s))
	}
	for _, e := range w.entries(r) {
		doc.Entries = append(doc.Entries, yamlEntry{yamlGroup: w.yamlGroup(e.Group), SharedMemberCount: e.SharedMemberCount})
	}

	b, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	_, err = out.Write(b)
	return err
}

// WriteFile writes the report into dir under FileName and returns its path.
func (w *Writer) WriteFile(dir, format string, r pipeline.Report) (string, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}

	path := filepath.Join(dir, FileName(r.StartedAt, format))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating report file: %w", err)
	}

	switch format {
	case FormatYAML:
		err = w.WriteYAML(f, r)
	case FormatText:
		err = w.WriteText(f, r)
	default:
		err = fmt.Errorf("unknown report format '%s'", format)
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return "", fmt.Errorf("writing report '%s': %w", path, err)
	}

	return path, nil
}
