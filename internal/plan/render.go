package plan

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/andresuchdata/cloudpath/internal/storage"
	"github.com/fatih/color"
	"gopkg.in/yaml.v3"
)

// Format selects how plans are written.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat maps a flag value onto a Format.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case "", FormatText:
		return FormatText, nil
	case FormatJSON, FormatYAML:
		return f, nil
	}
	return "", fmt.Errorf("unknown output format %q (want text, json or yaml)", s)
}

// Render writes p to w.
func Render(w io.Writer, p *Plan, f Format) error {
	switch f {
	case FormatJSON:
		return encodeJSON(w, p)
	case FormatYAML:
		return encodeYAML(w, p)
	}
	return renderText(w, p)
}

// RenderSummaries writes a plan listing to w.
func RenderSummaries(w io.Writer, plans []Summary, f Format) error {
	switch f {
	case FormatJSON:
		return encodeJSON(w, plans)
	case FormatYAML:
		return encodeYAML(w, plans)
	}
	for _, s := range plans {
		if _, err := fmt.Fprintf(w, "%s  %-6s %-6s %-10s %3d  %s\n",
			s.ID, s.Backend, s.Operation, statusColor(s.Status).Sprint(s.Status), s.Steps, s.Source); err != nil {
			return err
		}
	}
	return nil
}

// RenderObjects writes a listing of objs to w.
func RenderObjects(w io.Writer, objs []storage.RemoteObject, f Format) error {
	if objs == nil {
		objs = []storage.RemoteObject{}
	}
	switch f {
	case FormatJSON:
		return encodeJSON(w, objs)
	case FormatYAML:
		return encodeYAML(w, objs)
	}
	for _, o := range objs {
		key := o.Key
		if o.IsFolder() {
			key = color.New(color.FgBlue, color.Bold).Sprint(key + "/")
		}
		if _, err := fmt.Fprintf(w, "%10d  %s\n", o.Size, key); err != nil {
			return err
		}
	}
	return nil
}

func renderText(w io.Writer, p *Plan) error {
	header := color.New(color.Bold, color.FgCyan).Sprint(string(p.Operation))
	detail := p.Source
	switch p.Operation {
	case OpRename:
		detail = fmt.Sprintf("%s (%q -> %q)", p.Source, p.From, p.To)
	case OpMove:
		detail = fmt.Sprintf("%s -> %s", p.Source, p.Destination)
	}

	tag := statusColor(p.Status).Sprint(p.Status)
	if p.DryRun {
		tag = color.New(color.FgYellow).Sprint("dry run")
	}

	if _, err := fmt.Fprintf(w, "%s %s %s %s\n", header, detail,
		color.New(color.Faint).Sprint("• "+p.ID), tag); err != nil {
		return err
	}

	if len(p.Steps) == 0 {
		_, err := fmt.Fprintln(w, color.New(color.Faint).Sprint("  nothing to do"))
		return err
	}

	for _, s := range p.Steps {
		if _, err := fmt.Fprintf(w, "  %s %s %s\n",
			s.Source.Key,
			stateColor(s.State).Sprint("==>"),
			color.New(color.FgCyan).Sprint(s.Destination)); err != nil {
			return err
		}
		if s.Error != "" {
			if _, err := fmt.Fprintf(w, "      %s\n", color.New(color.FgRed).Sprint(s.Error)); err != nil {
				return err
			}
		}
	}

	if p.Error != "" {
		_, err := fmt.Fprintf(w, "%s %s\n", color.New(color.FgRed, color.Bold).Sprint("error:"), p.Error)
		return err
	}
	return nil
}

func statusColor(s Status) *color.Color {
	switch s {
	case StatusCompleted:
		return color.New(color.FgGreen)
	case StatusFailed:
		return color.New(color.FgRed)
	case StatusProcessing:
		return color.New(color.FgBlue)
	}
	return color.New(color.FgYellow)
}

func stateColor(s StepState) *color.Color {
	switch s {
	case StepDeleted:
		return color.New(color.FgGreen)
	case StepCopied:
		return color.New(color.FgBlue)
	case StepFailed:
		return color.New(color.FgRed)
	}
	return color.New(color.Faint)
}

func encodeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func encodeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
