package cli

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/NamiraNet/matchcounter/internal/search"
	"github.com/enescakir/emoji"
	"github.com/fatih/color"
	"golang.org/x/time/rate"
)

// InputReader resolves the search root and keyword, prompting line by line
// for whatever was not supplied on the command line or in the environment.
type InputReader struct {
	in      *bufio.Reader
	prompts io.Writer
}

func NewInputReader(in io.Reader, prompts io.Writer) *InputReader {
	return &InputReader{
		in:      bufio.NewReader(in),
		prompts: prompts,
	}
}

func (ir *InputReader) Resolve(root, keyword string) (string, string, error) {
	var err error
	if strings.TrimSpace(root) == "" {
		root, err = ir.Prompt("Enter base directory (e.g. /usr/local/go/src): ")
		if err != nil {
			return "", "", fmt.Errorf("error reading base directory: %w", err)
		}
	}
	if keyword == "" {
		keyword, err = ir.Prompt("Enter keyword (e.g. volatile): ")
		if err != nil {
			return "", "", fmt.Errorf("error reading keyword: %w", err)
		}
	}
	if strings.TrimSpace(root) == "" {
		return "", "", fmt.Errorf("no base directory given")
	}
	if keyword == "" {
		return "", "", search.ErrEmptyKeyword
	}
	return strings.TrimSpace(root), keyword, nil
}

// Prompt writes label and reads one line. The keyword is taken verbatim apart
// from the line terminator.
func (ir *InputReader) Prompt(label string) (string, error) {
	fmt.Fprint(ir.prompts, label)
	line, err := ir.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// Progress renders a single self-overwriting status line while a search
// runs. Redraws are throttled; counts are exact.
type Progress struct {
	out       io.Writer
	sometimes *rate.Sometimes

	mu      sync.Mutex
	dirs    int
	files   int
	matches int
	errors  int
	drawn   bool
}

var _ search.Observer = (*Progress)(nil)

func NewProgress(out io.Writer, interval time.Duration) *Progress {
	return &Progress{
		out:       out,
		sometimes: &rate.Sometimes{First: 1, Interval: interval},
	}
}

func (p *Progress) DirectoryScanned(string) {
	p.mu.Lock()
	p.dirs++
	p.mu.Unlock()
	p.sometimes.Do(p.draw)
}

func (p *Progress) FileScanned(_ string, matched bool) {
	p.mu.Lock()
	p.files++
	if matched {
		p.matches++
	}
	p.mu.Unlock()
	p.sometimes.Do(p.draw)
}

func (p *Progress) ErrorAbsorbed(error) {
	p.mu.Lock()
	p.errors++
	p.mu.Unlock()
}

func (p *Progress) draw() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.drawn = true
	fmt.Fprintf(p.out, "\rScanning: %d dirs, %d files, %d matches, %d errors",
		p.dirs, p.files, p.matches, p.errors)
}

// Finish draws the final counts and ends the progress line.
func (p *Progress) Finish() {
	p.mu.Lock()
	drawn := p.drawn
	p.mu.Unlock()
	if !drawn {
		return
	}
	p.draw()
	fmt.Fprintln(p.out)
}

type OutputOptions struct {
	Format   string
	Filename string
}

type OutputManager struct {
	out io.Writer
}

func NewOutputManager(out io.Writer) *OutputManager {
	return &OutputManager{out: out}
}

func (om *OutputManager) Output(report *search.Report, options OutputOptions) error {
	var output string
	var err error

	switch options.Format {
	case "json":
		output, err = om.JSON(report)
	case "csv":
		output = om.CSV(report)
	case "table", "":
		output = om.Table(report)
	default:
		return fmt.Errorf("unsupported output format: %s", options.Format)
	}

	if err != nil {
		return err
	}

	if options.Filename != "" {
		return os.WriteFile(options.Filename, []byte(output), 0644)
	}

	_, err = fmt.Fprint(om.out, output)
	return err
}

func (om *OutputManager) JSON(report *search.Report) (string, error) {
	data, err := json.MarshalIndent(report.Summary(), "", "  ")
	if err != nil {
		return "", err
	}
	return string(data) + "\n", nil
}

func (om *OutputManager) CSV(report *search.Report) string {
	lines := []string{"Kind,Path,Detail"}
	for _, m := range report.Matches {
		lines = append(lines, fmt.Sprintf("match,%s,", escapeCSV(m)))
	}
	for _, err := range report.Errors {
		lines = append(lines, fmt.Sprintf("error,%s,%s", escapeCSV(errorPath(err)), escapeCSV(err.Error())))
	}
	return strings.Join(lines, "\n") + "\n"
}

func (om *OutputManager) Table(report *search.Report) string {
	var lines []string

	lines = append(lines, fmt.Sprintf("%-6s %s", "KIND", "PATH"))
	lines = append(lines, strings.Repeat("-", 80))
	for _, m := range report.Matches {
		lines = append(lines, fmt.Sprintf("%-6s %s", "match", m))
	}
	for _, err := range report.Errors {
		lines = append(lines, fmt.Sprintf("%-6s %s", "error", truncateString(err.Error(), 120)))
	}

	return strings.Join(lines, "\n") + "\n"
}

type SummaryPrinter struct {
	out io.Writer
}

func NewSummaryPrinter(out io.Writer) *SummaryPrinter {
	return &SummaryPrinter{out: out}
}

// PrintSummary prints the match count, the pool's peak size and, separately,
// how many errors were absorbed along the way.
func (sp *SummaryPrinter) PrintSummary(report *search.Report) {
	label := color.New(color.FgCyan).SprintFunc()
	good := color.New(color.FgGreen, color.Bold).SprintFunc()
	bad := color.New(color.FgRed).SprintFunc()

	fmt.Fprintln(sp.out, "\n"+strings.Repeat("=", 50))
	fmt.Fprintln(sp.out, "SUMMARY")
	fmt.Fprintln(sp.out, strings.Repeat("=", 50))
	fmt.Fprintf(sp.out, "%v %s %s in %s\n", emoji.MagnifyingGlassTiltedLeft, label("Keyword:"), report.Keyword, report.Root)
	fmt.Fprintf(sp.out, "%v %s %s\n", emoji.CheckMarkButton, label("Matching files:"), good(report.Count))
	fmt.Fprintf(sp.out, "%v %s %d files in %d directories (%d skipped)\n",
		emoji.OpenFileFolder, label("Scanned:"), report.FilesScanned, report.DirsScanned, report.Skipped)
	fmt.Fprintf(sp.out, "%v %s %d (peak active tasks %d)\n",
		emoji.HighVoltage, label("Largest pool size:"), report.PeakWorkers, report.PeakActive)
	fmt.Fprintf(sp.out, "%v %s %s\n", emoji.Stopwatch, label("Elapsed:"), report.Duration.Round(time.Millisecond))

	if n := len(report.Errors); n > 0 {
		fmt.Fprintf(sp.out, "%v %s %s (count may be low)\n", emoji.Warning, label("Errors absorbed:"), bad(n))
	}
}

// Utility functions
// truncateString limits s to maxLen runes.
func truncateString(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxLen-3]) + "..."
}

func escapeCSV(s string) string {
	if strings.ContainsAny(s, ",\"\r\n") {
		s = strings.ReplaceAll(s, "\"", "\"\"")
		return "\"" + s + "\""
	}
	return s
}

func errorPath(err error) string {
	var listErr *search.ListingError
	var readErr *search.FileReadError
	switch {
	case errors.As(err, &listErr):
		return listErr.Path
	case errors.As(err, &readErr):
		return readErr.Path
	}
	return ""
}
