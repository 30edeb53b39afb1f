// SPDX-License-Identifier: MIT
package cmd

import (
	"fmt"
	"io"
	"iter"
	"strings"
	"text/tabwriter"

	"passthru/internal/audio"
)

// Lister is the part of the device catalog the commands read.
type Lister interface {
	ListInputs() iter.Seq[audio.Endpoint]
	ListOutputs() iter.Seq[audio.Endpoint]
	DefaultInput() (audio.Endpoint, bool)
	DefaultOutput() (audio.Endpoint, bool)
}

// PrintEndpoints writes one table per direction. Defaults are starred and
// outputs the safety policy refuses are flagged.
func PrintEndpoints(w io.Writer, l Lister) error {
	defIn, _ := l.DefaultInput()
	defOut, _ := l.DefaultOutput()

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for i, section := range []struct {
		title string
		seq   iter.Seq[audio.Endpoint]
		def   audio.Endpoint
	}{
		{"INPUTS", l.ListInputs(), defIn},
		{"OUTPUTS", l.ListOutputs(), defOut},
	} {
		if i > 0 {
			fmt.Fprintln(tw)
		}
		fmt.Fprintln(tw, section.title)
		fmt.Fprintln(tw, "DEFAULT\tID\tNAME\tTRANSPORT\tCHANNELS\tRATE\tNOTE")

		n := 0
		for ep := range section.seq {
			n++
			current := ""
			if !section.def.IsZero() && ep.Equal(section.def) {
				current = "*"
			}
			note := ""
			if ep.RiskySpeaker {
				note = "speaker, refused as output"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%.0f Hz\t%s\n",
				current, ep.ID, ep.Name, ep.Transport, ep.MaxChannels, ep.DefaultSampleRate, note)
		}
		if n == 0 {
			fmt.Fprintln(tw, "\t-\tnone found\t\t\t\t")
		}
	}
	return tw.Flush()
}

// FindEndpoint resolves a configured device name against seq. An exact ID
// match wins, then a case-insensitive name match, then the first name
// containing want. An empty want selects nothing, meaning follow the
// system default.
func FindEndpoint(seq iter.Seq[audio.Endpoint], want string) (audio.Endpoint, error) {
	if want == "" {
		return audio.Endpoint{}, nil
	}

	lower := strings.ToLower(want)
	var byName, partial audio.Endpoint
	for ep := range seq {
		if ep.ID == want {
			return ep, nil
		}
		name := strings.ToLower(ep.Name)
		if byName.IsZero() && name == lower {
			byName = ep
		}
		if partial.IsZero() && strings.Contains(name, lower) {
			partial = ep
		}
	}
	switch {
	case !byName.IsZero():
		return byName, nil
	case !partial.IsZero():
		return partial, nil
	}
	return audio.Endpoint{}, fmt.Errorf("%q: %w", want, audio.ErrDeviceNotFound)
}
