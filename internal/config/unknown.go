package config

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/BurntSushi/toml"
)

// maxLevenshteinDistance is the maximum edit distance for "did you mean?"
// suggestions when unknown config keys are detected.
const maxLevenshteinDistance = 3

// knownSections maps each table name to its valid keys. The empty name holds
// the top-level keys.
var knownSections = map[string][]string{
	"":         {"credentials_file", "download_path", "root_folder_id", "token_file"},
	"listing":  {"max_retries", "page_size", "retry_all_errors", "retry_delay"},
	"transfer": {"chunk_size"},
	"export":   {"document", "drawing", "presentation", "spreadsheet"},
	"network":  {"burst", "connect_timeout", "requests_per_second"},
	"logging":  {"log_format", "log_level"},
	"metrics":  {"textfile"},
}

// topLevelNames is every valid top-level name, keys and tables alike, sorted
// for deterministic suggestions.
var topLevelNames = func() []string {
	names := slices.Clone(knownSections[""])

	for section := range maps.Keys(knownSections) {
		if section != "" {
			names = append(names, section)
		}
	}

	slices.Sort(names)

	return names
}()

// checkUnknownKeys inspects TOML metadata for undecoded keys and returns an
// error with "did you mean?" suggestions for each one.
func checkUnknownKeys(md *toml.MetaData) error {
	var errs []error

	for _, key := range md.Undecoded() {
		if err := unknownKeyError(key); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// unknownKeyError describes one undecoded key. Keys below an unknown table
// return nil; the table itself is reported.
func unknownKeyError(key toml.Key) error {
	if len(key) == 1 {
		return suggestError(key[0], "", topLevelNames)
	}

	known, ok := knownSections[key[0]]
	if !ok || len(key) > 2 {
		return nil
	}

	return suggestError(key[1], key[0], known)
}

func suggestError(name, section string, known []string) error {
	label := name
	if section != "" {
		label = section + "." + name
	}

	if suggestion := closestMatch(name, known); suggestion != "" {
		return fmt.Errorf("unknown config key %q, did you mean %q?", label, suggestion)
	}

	return fmt.Errorf("unknown config key %q", label)
}

// closestMatch finds the closest known key by Levenshtein distance.
// Returns empty string if no match is within maxLevenshteinDistance.
func closestMatch(unknown string, known []string) string {
	best := ""
	bestDist := maxLevenshteinDistance + 1

	for _, k := range known {
		d := levenshtein(unknown, k)
		if d < bestDist {
			bestDist = d
			best = k
		}
	}

	if bestDist <= maxLevenshteinDistance {
		return best
	}

	return ""
}

// levenshtein computes the edit distance between two strings.
func levenshtein(a, b string) int {
	if a == "" {
		return len(b)
	}

	if b == "" {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for j := range prev {
		prev[j] = j
	}

	for i := range len(a) {
		curr[0] = i + 1

		for j := range len(b) {
			cost := 1
			if a[i] == b[j] {
				cost = 0
			}

			curr[j+1] = min(curr[j]+1, prev[j+1]+1, prev[j]+cost)
		}

		prev, curr = curr, prev
	}

	return prev[len(b)]
}
