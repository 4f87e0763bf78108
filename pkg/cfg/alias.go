package cfg

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrMissingInitializer is returned when a required directory has no init.lua.
	ErrMissingInitializer = errors.New("directory module has no init.lua")
	// ErrAliasConflict is returned when a package initializer definition is
	// aliased both by the package and by its importer.
	ErrAliasConflict = errors.New("conflicting alias qualification")
	// ErrCyclicImport is returned when a module requires itself, directly or
	// through other modules.
	ErrCyclicImport = errors.New("cyclic require")
)

// sortedKeys returns the alias keys longest first, ties broken
// lexicographically, so that the most specific alias wins.
func sortedKeys(aliases map[string]string) []string {
	keys := make([]string, 0, len(aliases))
	for k := range aliases {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	return keys
}

// qualifyAlias rewrites label when it is an alias or starts with "alias.".
func qualifyAlias(label string, aliases map[string]string) string {
	for _, alias := range sortedKeys(aliases) {
		full := aliases[alias]
		if label == alias {
			return full
		}
		if strings.HasPrefix(label, alias+".") {
			return full + label[len(alias):]
		}
	}
	return label
}

// initAlias maps a canonical name back to the local alias that refers to it,
// returning "" when no alias covers name.
func initAlias(name string, aliases map[string]string) string {
	keys := make([]string, 0, len(aliases))
	for k := range aliases {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, alias := range keys {
		canonical := aliases[alias]
		if name == canonical || strings.HasPrefix(name, canonical+".") {
			return alias + name[len(canonical):]
		}
	}
	return ""
}

// qualifyInitDefinition re-qualifies a package initializer definition for
// the importing module. A definition the initializer declares itself may be
// covered by at most one of the two alias tables. A definition the
// initializer re-exports from its own requires is named after the package
// side only, since the importer's alias for the package necessarily covers it.
func qualifyInitDefinition(name string, reexported bool, module, parent map[string]string) (string, error) {
	moduleAlias := initAlias(name, module)
	if reexported {
		if moduleAlias != "" {
			return moduleAlias, nil
		}
		return name, nil
	}
	parentAlias := initAlias(name, parent)
	if moduleAlias != "" && parentAlias != "" {
		return "", fmt.Errorf("%w: %s aliased as %s by the package and as %s by its importer",
			ErrAliasConflict, name, moduleAlias, parentAlias)
	}
	switch {
	case moduleAlias != "":
		return moduleAlias, nil
	case parentAlias != "":
		return parentAlias, nil
	default:
		return name, nil
	}
}
