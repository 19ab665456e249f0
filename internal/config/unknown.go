package config

import (
	"errors"
	"fmt"
	"sort"

	"github.com/BurntSushi/toml"
)

// maxLevenshteinDistance is the maximum edit distance for "did you mean?"
// suggestions when unknown config keys are detected.
const maxLevenshteinDistance = 3

// knownKeys lists the valid keys of each config section. The "" section
// holds top-level keys.
var knownKeys = map[string]map[string]bool{
	"": {"data_dir": true, "irc": true, "upload": true, "token": true, "watch": true, "logging": true},
	"irc": {
		"server": true, "nick": true, "username": true, "realname": true, "password": true,
		"target": true, "caps": true, "insecure_tls": true, "connect_timeout": true,
		"register_timeout": true,
	},
	"upload": {
		"server": true, "max_file_size": true, "allowed_file_types": true, "upload_message": true,
		"chunk_size": true, "parallel_uploads": true, "bandwidth_limit": true, "resume": true,
	},
	"token":   {"request_timeout": true, "validity": true, "unsupported_ttl": true},
	"watch":   {"ignore": true, "settle_delay": true},
	"logging": {"log_level": true, "log_format": true},
}

// sortedKeys returns the keys of m sorted, for deterministic suggestions
// when two candidates have the same edit distance.
func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}

// checkUnknownKeys inspects TOML metadata for undecoded keys and returns
// an error with "did you mean?" suggestions for each unknown key.
func checkUnknownKeys(md *toml.MetaData) error {
	undecoded := md.Undecoded()
	if len(undecoded) == 0 {
		return nil
	}

	var errs []error

	seen := make(map[string]bool)

	for _, key := range undecoded {
		err := unknownKeyError(key)
		if err == nil || seen[err.Error()] {
			continue
		}

		seen[err.Error()] = true
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// unknownKeyError describes one undecoded key, suggesting the closest known
// key in the same section. Children of an unknown section are reported once
// through the section itself.
func unknownKeyError(key toml.Key) error {
	section, field := "", key[0]

	if len(key) > 1 && knownKeys[key[0]] != nil {
		section, field = key[0], key[1]
	}

	known := knownKeys[section]
	if known[field] {
		return nil
	}

	name := field
	if section != "" {
		name = section + "." + field
	}

	if suggestion := closestMatch(field, sortedKeys(known)); suggestion != "" {
		return fmt.Errorf("unknown config key %q: did you mean %q?", name, suggestion)
	}

	return fmt.Errorf("unknown config key %q", name)
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

	// Use single-row optimization to avoid allocating a full matrix.
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

			curr[j+1] = minOf(curr[j]+1, prev[j+1]+1, prev[j]+cost)
		}

		prev, curr = curr, prev
	}

	return prev[len(b)]
}

// minOf returns the minimum of three integers.
func minOf(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}

	if c < m {
		m = c
	}

	return m
}
