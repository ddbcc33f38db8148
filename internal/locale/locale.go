// Package locale serves help text and user facing strings from JSON files.
//
// A locale file has two sections:
//
//	{
//	  "command":  { "<base>": { "<sub>": ["line", "line"] } },
//	  "category": { "<category>": { "<key>": "text with %0 and %1" } }
//	}
//
// The user file overrides entries of the core file one name at a time.
package locale

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

type file struct {
	Command  map[string]map[string]lines `json:"command"`
	Category map[string]map[string]string `json:"category"`
}

// lines accepts either a string or an array of strings.
type lines []string

func (l *lines) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		*l = lines{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*l = many
	return nil
}

// Locale is read-only after construction.
type Locale struct {
	data *file
}

// Load reads and merges the core and user locale files. userPath may be
// empty or point at a missing file.
func Load(corePath, userPath string) (*Locale, error) {
	core, err := os.ReadFile(corePath)
	if err != nil {
		return nil, fmt.Errorf("read core locale: %w", err)
	}

	var user []byte
	if userPath != "" && userPath != corePath {
		user, err = os.ReadFile(userPath)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read user locale: %w", err)
		}
	}
	return Parse(core, user)
}

// Parse merges two locale documents. user may be nil.
func Parse(core, user []byte) (*Locale, error) {
	var base file
	if err := json.Unmarshal(core, &base); err != nil {
		return nil, fmt.Errorf("parse core locale: %w", err)
	}
	if base.Command == nil {
		base.Command = make(map[string]map[string]lines)
	}
	if base.Category == nil {
		base.Category = make(map[string]map[string]string)
	}

	if len(user) > 0 {
		var over file
		if err := json.Unmarshal(user, &over); err != nil {
			return nil, fmt.Errorf("parse user locale: %w", err)
		}
		for name, v := range over.Command {
			base.Command[name] = v
		}
		for name, v := range over.Category {
			base.Category[name] = v
		}
	}
	return &Locale{data: &base}, nil
}

// Command returns a copy of the help lines of base/sub. Missing entries
// return a two line diagnostic naming the level that was absent.
func (l *Locale) Command(base, sub string) []string {
	if l == nil || l.data == nil {
		return []string{"command_string_missing", "(0)"}
	}
	if l.data.Command == nil {
		return []string{"command_string_missing", "(1)"}
	}
	subs, ok := l.data.Command[base]
	if !ok {
		return []string{"command_string_missing", "(2)"}
	}
	out, ok := subs[sub]
	if !ok {
		return []string{"command_string_missing", "(3)"}
	}
	return append([]string(nil), out...)
}

// Category returns the string key of category with %0, %1... replaced by
// args. A missing string returns key itself.
func (l *Locale) Category(category, key string, args ...string) string {
	if l == nil || l.data == nil || l.data.Category == nil {
		return key
	}
	strs, ok := l.data.Category[category]
	if !ok {
		return key
	}
	s, ok := strs[key]
	if !ok {
		return key
	}
	for i, a := range args {
		s = strings.ReplaceAll(s, "%"+strconv.Itoa(i), a)
	}
	return s
}
