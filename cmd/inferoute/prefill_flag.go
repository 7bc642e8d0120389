package main

import (
	"fmt"
	"strconv"
	"strings"
)

// prefillEntry is one --prefill occurrence: a worker URL and an
// optional bootstrap port for the out-of-band KV-transfer side
// channel (spec.md §6, §4.4's prefill worker record).
type prefillEntry struct {
	URL           string
	BootstrapPort *uint16
}

// prefillFlagValue implements pflag.Value so cobra parses --prefill
// through the normal single-pass flag table instead of a second,
// independent scan of os.Args. original_source's CLI re-walks
// std::env::args() by hand after clap has already parsed the command
// line (sgl-router/src/main.rs's parse_prefill_args/parse_decode_args),
// which means a malformed flag can be accepted by clap and rejected (or
// silently misparsed) by the hand-rolled scanner, or vice versa — two
// sources of truth for the same flag. Routing "url[,port|,none]" entirely
// through pflag.Value.Set collapses that to one parse.
type prefillFlagValue struct {
	entries *[]prefillEntry
}

func newPrefillFlagValue(entries *[]prefillEntry) *prefillFlagValue {
	return &prefillFlagValue{entries: entries}
}

func (f *prefillFlagValue) String() string {
	if f.entries == nil || len(*f.entries) == 0 {
		return ""
	}
	parts := make([]string, 0, len(*f.entries))
	for _, e := range *f.entries {
		if e.BootstrapPort == nil {
			parts = append(parts, e.URL)
			continue
		}
		parts = append(parts, fmt.Sprintf("%s,%d", e.URL, *e.BootstrapPort))
	}
	return strings.Join(parts, ";")
}

// Set parses one --prefill occurrence: "<url>", "<url>,<port>", or
// "<url>,none". pflag calls Set once per --prefill occurrence on the
// command line, and each call appends one entry.
func (f *prefillFlagValue) Set(raw string) error {
	url, rest, hasRest := strings.Cut(raw, ",")
	if url == "" {
		return fmt.Errorf("--prefill requires a worker URL, got %q", raw)
	}

	entry := prefillEntry{URL: url}
	if hasRest && rest != "" && !strings.EqualFold(rest, "none") {
		port, err := strconv.ParseUint(rest, 10, 16)
		if err != nil {
			return fmt.Errorf("--prefill bootstrap port %q: %w", rest, err)
		}
		p := uint16(port)
		entry.BootstrapPort = &p
	}

	*f.entries = append(*f.entries, entry)
	return nil
}

func (f *prefillFlagValue) Type() string { return "prefill" }
