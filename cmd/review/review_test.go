package review

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReviewCommand_SubCommands(t *testing.T) {
	var names []string
	for _, c := range Cmd.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"start", "decide", "apply", "summary"}, names)
}

func TestReviewCommand_SessionFlag(t *testing.T) {
	for _, c := range []string{"start", "decide", "apply", "summary"} {
		sub, _, err := Cmd.Find([]string{c})
		if assert.NoError(t, err) {
			assert.NotNil(t, sub.Flags().Lookup("session"), c)
		}
	}
	assert.Equal(t, "-1", decideCmd.Flags().Lookup("row").DefValue)
}

func TestReviewCommand_LongDescription(t *testing.T) {
	assert.Contains(t, Cmd.Long, "YAML session")
	assert.Contains(t, Cmd.Long, "review history")
}
