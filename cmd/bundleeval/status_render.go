package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const ansiReset = "\x1b[0m"

var statusStyles = map[statusKind]struct {
	label string
	color string
}{
	statusInfo:  {"INFO", "\x1b[34m"},
	statusOK:    {"OK", "\x1b[32m"},
	statusWarn:  {"WARN", "\x1b[33m"},
	statusError: {"ERROR", "\x1b[31m"},
}

const statusLabelWidth = 24

// statusPrinter writes labelled status lines and section headers, coloured
// only when the destination is a terminal.
type statusPrinter struct {
	w        io.Writer
	colorize bool
}

func newStatusPrinter(w io.Writer) *statusPrinter {
	return &statusPrinter{w: w, colorize: shouldColorize(w)}
}

func (p *statusPrinter) section(title string) {
	head := "== " + strings.TrimSpace(title) + " =="
	p.paint(statusInfo, head)
	p.paint(statusInfo, strings.Repeat("-", len(head)))
}

func (p *statusPrinter) line(label string, kind statusKind, message string) {
	style := statusStyles[kind]
	text := fmt.Sprintf("  %-*s [%s]", statusLabelWidth, label+":", style.label)
	if message != "" {
		text += " " + message
	}
	p.paint(kind, text)
}

func (p *statusPrinter) paint(kind statusKind, text string) {
	if p.colorize {
		text = statusStyles[kind].color + text + ansiReset
	}
	fmt.Fprintln(p.w, text)
}

func shouldColorize(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
