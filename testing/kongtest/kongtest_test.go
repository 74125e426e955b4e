package kongtest

import (
	"testing"
	"time"

	"gotest.tools/v3/assert"
	"gotest.tools/v3/assert/cmp"
)

type testCLI struct {
	StringVar   string        `default:"string-default" env:"STRING_VAR" help:"A string."`
	IntVar      int           `default:"123" env:"INT_VAR"`
	BoolVar     bool          `default:"true" env:"BOOL_VAR"`
	DurationVar time.Duration `default:"10s" env:"DURATION_VAR"`
}

func TestHelp(t *testing.T) {
	c := testCLI{}
	s := Help(t, &c)
	assert.Check(t, cmp.Contains(s, "Usage: test-app"))
	assert.Check(t, cmp.Contains(s, "--string-var="))
	assert.Check(t, cmp.Contains(s, "A string."))
	assert.Check(t, cmp.Contains(s, "$STRING_VAR"))
	assert.Check(t, cmp.DeepEqual(c, testCLI{
		StringVar:   "string-default",
		IntVar:      123,
		BoolVar:     true,
		DurationVar: 10 * time.Second,
	}))
}

func TestParse(t *testing.T) {
	c := testCLI{}
	Parse(t, &c, []string{"--int-var=7"}, map[string]string{"DURATION_VAR": "1m"})
	assert.Check(t, cmp.DeepEqual(c, testCLI{
		StringVar:   "string-default",
		IntVar:      7,
		BoolVar:     true,
		DurationVar: time.Minute,
	}))
}
