package ui

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/olekukonko/tablewriter"
)

// clearScreen erases the terminal and homes the cursor.
const clearScreen = "\x1b[2J\x1b[H"

// Console is the Reporter writing to a terminal or plain stream.
type Console struct {
	out          io.Writer
	clearOnBuild bool

	success lipgloss.Style
	hint    lipgloss.Style
	failure lipgloss.Style
	dim     lipgloss.Style
}

// NewConsole creates a Console. The screen is cleared before each successful
// build only when clearOnBuild is set.
func NewConsole(out io.Writer, clearOnBuild bool) *Console {
	r := lipgloss.NewRenderer(out)

	return &Console{
		out:          out,
		clearOnBuild: clearOnBuild,
		success:      r.NewStyle().Foreground(lipgloss.Color("2")).Bold(true),
		hint:         r.NewStyle().Foreground(lipgloss.Color("6")).Bold(true),
		failure:      r.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		dim:          r.NewStyle().Foreground(lipgloss.Color("8")),
	}
}

// Built prints the summary of a successful dev iteration.
func (c *Console) Built(elapsed time.Duration, listenURL string) {
	if c.clearOnBuild {
		c.printf("%s", clearScreen)
	}

	c.printf("%s\n", c.success.Render(fmt.Sprintf("Built in %.2fs!", elapsed.Seconds())))
	c.printf("\n")
	c.printf("Stackable development server has started!\n")
	c.printf("\n")
	c.printf("    Listen: %s\n", listenURL)
	c.printf("\n")
	c.printf("%s\n", c.hint.Render("To produce a production build, you can use `stackctl build --release`."))
}

// BuildFailed prints a failed dev iteration. The loop keeps watching.
func (c *Console) BuildFailed(err error) {
	c.printf("%s %v\n", c.failure.Render("build failed:"), err)
	c.printf("%s\n", c.dim.Render("Waiting for changes..."))
}

// ReleaseStarted announces a release build.
func (c *Console) ReleaseStarted() {
	c.printf("%s\n", c.hint.Render("Building Release Distribution..."))
}

// ReleaseFinished prints where the release artifacts are.
func (c *Console) ReleaseFinished(frontendDir, binary string, elapsed time.Duration) {
	var tableBuffer bytes.Buffer

	table := tablewriter.NewWriter(&tableBuffer)
	table.SetHeader([]string{"Part", "Artifact"})
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetAutoWrapText(false)
	table.SetColumnAlignment([]int{tablewriter.ALIGN_LEFT, tablewriter.ALIGN_LEFT})
	table.Append([]string{"frontend", frontendDir})
	table.Append([]string{"backend", binary})
	table.Render()

	c.printf("\n%s", tableBuffer.String())
	c.printf("\n%s\n", c.success.Render(fmt.Sprintf("Built in %.2fs!", elapsed.Seconds())))
	c.printf("The server binary is available at: %s\n", binary)
}

// Error prints a fatal error.
func (c *Console) Error(err error) {
	c.printf("%s %v\n", c.failure.Render("error:"), err)
}

func (c *Console) printf(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(c.out, format, args...)
}
