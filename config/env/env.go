// Package env loads configuration overrides from environment variables, keeping a
// record of every variable consulted so they can be listed in help output.
package env

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	multierror "github.com/hashicorp/go-multierror"
)

type Var struct {
	env     string
	envType string
	def     interface{}
}

func (f Var) String() string {
	return fmt.Sprintf("%-32s %-10s (%v)", f.env, f.envType, f.def)
}

func (f Var) Name() string {
	return f.env
}

type Loader struct {
	vars map[string]Var
	err  error
}

func NewLoader() *Loader {
	return &Loader{
		vars: make(map[string]Var),
	}
}

// Err returns every parse failure seen so far, or nil.
func (l *Loader) Err() error {
	return l.err
}

// String inspects the system env var given by env. If it is present and not empty
// it will set the contents of fld.
func (l *Loader) String(fld *string, env string) {
	l.addVar(*fld, env, "string")
	val, ok := os.LookupEnv(env)
	if !ok || val == "" {
		return
	}
	*fld = val
}

// Int inspects the system env var given by env. If it is present
// it will parse the value as an int as per Atoi to set the contents of fld.
// If the parse fails the content of fld is left unaltered and the
// loader multi error added to.
func (l *Loader) Int(fld *int, env string) {
	l.addVar(*fld, env, "int")
	val, ok := os.LookupEnv(env)
	if !ok || val == "" {
		return
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		l.err = multierror.Append(l.err, fmt.Errorf("env var: %q caused an error: %w", env, err))
		return
	}
	*fld = i
}

// Bool uses the truthy or falsy strings accepted by ParseBool.
func (l *Loader) Bool(fld *bool, env string) {
	l.addVar(*fld, env, "bool")
	val, ok := os.LookupEnv(env)
	if !ok || val == "" {
		return
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		l.err = multierror.Append(l.err, fmt.Errorf("env var: %q caused an error: %w", env, err))
		return
	}
	*fld = b
}

// Duration parses the value with time.ParseDuration.
func (l *Loader) Duration(fld *time.Duration, env string) {
	l.addVar(*fld, env, "Duration")
	val, ok := os.LookupEnv(env)
	if !ok || val == "" {
		return
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		l.err = multierror.Append(l.err, fmt.Errorf("env var: %q caused an error: %w", env, err))
		return
	}
	*fld = d
}

type Vars []Var

// Sort the vars v in place alphabetically
func (v Vars) Sort() {
	sort.Slice(v, func(i, j int) bool {
		return v[i].env < v[j].env
	})
}

func (l *Loader) VarsUsed() Vars {
	vars := make(Vars, 0, len(l.vars))
	const maxDefaultLen = 60
	for _, v := range l.vars {
		if def, ok := v.def.(string); ok {
			def = strings.ReplaceAll(def, "\n", "\\n")
			if len(def) > maxDefaultLen {
				def = def[:maxDefaultLen] + " ..."
			}
			v.def = def
		}
		vars = append(vars, v)
	}
	vars.Sort()
	return vars
}

func (l *Loader) addVar(def interface{}, env, envType string) {
	if _, ok := l.vars[env]; ok {
		panic("duplicate environment variable " + env)
	}
	l.vars[env] = Var{
		env:     env,
		envType: envType,
		def:     def,
	}
}
