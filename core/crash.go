// Package core holds process-level crash handling shared by every goroutine
package core

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Dumper contributes a debug section to crash reports
type Dumper interface {
	Dump() string
}

// Finisher restores the terminal; tcell.Screen satisfies it
type Finisher interface {
	Fini()
}

// CrashReporter tears down the terminal and persists a crash dump
// Only the first Report does any work
type CrashReporter struct {
	logDir string
	out    io.Writer
	now    func() time.Time

	mu      sync.Mutex
	term    Finisher
	dumpers []Dumper

	reported atomic.Bool
	lastPath atomic.Pointer[string]
}

// NewCrashReporter writes dump files into logDir and the banner to out
// Empty logDir disables the dump file; nil out means os.Stderr
func NewCrashReporter(logDir string, out io.Writer) *CrashReporter {
	if out == nil {
		out = os.Stderr
	}
	return &CrashReporter{
		logDir: logDir,
		out:    out,
		now:    time.Now,
	}
}

// SetTerminal registers the terminal restored before anything is printed
func (c *CrashReporter) SetTerminal(f Finisher) {
	c.mu.Lock()
	c.term = f
	c.mu.Unlock()
}

// AddDumper appends sections written into the dump file, in order
func (c *CrashReporter) AddDumper(d ...Dumper) {
	c.mu.Lock()
	c.dumpers = append(c.dumpers, d...)
	c.mu.Unlock()
}

// Report handles one crash: terminal Fini, dump file, stderr banner
// Returns the dump file path, empty when no file was written
func (c *CrashReporter) Report(r any, stack []byte) string {
	if !c.reported.CompareAndSwap(false, true) {
		return ""
	}

	c.mu.Lock()
	term := c.term
	dumpers := append([]Dumper(nil), c.dumpers...)
	c.mu.Unlock()

	if term != nil {
		finiQuietly(term)
	}

	path, err := c.writeDump(r, stack, dumpers)

	fmt.Fprintf(c.out, "\r\n\x1b[31mCRASH DETECTED: %v\x1b[0m\r\n", r)
	switch {
	case err != nil:
		fmt.Fprintf(c.out, "crash dump failed: %v\r\n", err)
		fmt.Fprintf(c.out, "Stack Trace:\r\n%s\r\n", stack)
	case path != "":
		fmt.Fprintf(c.out, "crash dump written to %s\r\n", path)
	default:
		fmt.Fprintf(c.out, "Stack Trace:\r\n%s\r\n", stack)
	}
	if f, ok := c.out.(*os.File); ok {
		f.Sync()
	}

	if path != "" {
		c.lastPath.Store(&path)
	}
	return path
}

// Reported reports whether a crash has been handled
func (c *CrashReporter) Reported() bool {
	return c.reported.Load()
}

// LastDump returns the path of the written dump, if any
func (c *CrashReporter) LastDump() string {
	if p := c.lastPath.Load(); p != nil {
		return *p
	}
	return ""
}

func (c *CrashReporter) writeDump(r any, stack []byte, dumpers []Dumper) (string, error) {
	if c.logDir == "" {
		return "", nil
	}
	if err := os.MkdirAll(c.logDir, 0o755); err != nil {
		return "", fmt.Errorf("create crash dir: %w", err)
	}

	ts := c.now()
	var sb strings.Builder
	fmt.Fprintf(&sb, "crash at %s\n", ts.Format(time.RFC3339Nano))
	fmt.Fprintf(&sb, "panic: %v\n\n", r)
	for _, d := range dumpers {
		sb.WriteString(dumpQuietly(d))
		sb.WriteString("\n")
	}
	sb.WriteString("stack:\n")
	sb.Write(stack)

	path := filepath.Join(c.logDir, "crash-"+ts.Format("20060102-150405")+".log")
	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		return "", fmt.Errorf("write crash dump: %w", err)
	}
	return path, nil
}

// dumpQuietly keeps one broken component from hiding the others
func dumpQuietly(d Dumper) (out string) {
	defer func() {
		if r := recover(); r != nil {
			out = fmt.Sprintf("<dump panicked: %v>\n", r)
		}
	}()
	return d.Dump()
}

func finiQuietly(f Finisher) {
	defer func() { _ = recover() }()
	f.Fini()
}

var installed atomic.Pointer[CrashReporter]

// Install makes c the reporter used by HandleCrash and Go
func Install(c *CrashReporter) {
	installed.Store(c)
}

// HandleCrash is the unified goroutine panic handler: report, then exit
func HandleCrash(r any) {
	if r == nil {
		return
	}
	stack := debug.Stack()
	if c := installed.Load(); c != nil {
		c.Report(r, stack)
	} else {
		fmt.Fprintf(os.Stderr, "\r\n\x1b[31mCRASH DETECTED: %v\x1b[0m\r\n", r)
		fmt.Fprintf(os.Stderr, "Stack Trace:\r\n%s\r\n", stack)
	}
	os.Exit(1)
}

// Go runs a function in a new goroutine with panic recovery
// Use this instead of the 'go' keyword to ensure terminal cleanup on crash
func Go(fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				HandleCrash(r)
			}
		}()
		fn()
	}()
}
