package rules

import (
	"bytes"
	"testing"

	"banklytik/statement-normalizer/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestRulesCommand_SubCommands(t *testing.T) {
	var names []string
	for _, c := range Cmd.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"list", "add", "import", "versions", "rollback", "mine"}, names)
}

func TestAddCommand_Flags(t *testing.T) {
	for _, name := range []string{"pattern", "replace", "detect", "category", "title"} {
		assert.NotNil(t, addCmd.Flags().Lookup(name), name)
	}
	assert.Equal(t, "other", addCmd.Flags().Lookup("category").DefValue)
}

func TestPrintRules(t *testing.T) {
	var buf bytes.Buffer
	printRules(&buf, nil)
	assert.Equal(t, "No correction rules\n", buf.String())

	buf.Reset()
	printRules(&buf, []models.CorrectionRule{
		{Pattern: `(\d)O`, Replace: models.StringPtr("${1}0"), Category: models.RuleCategoryOther, Title: "O as zero"},
		{Pattern: `#{3,}`, Category: models.RuleCategoryGarbage, Title: "hash noise"},
	})
	out := buf.String()
	assert.Contains(t, out, `"${1}0"`)
	assert.Contains(t, out, "O as zero")
	assert.Contains(t, out, "(detect only)")
	assert.Contains(t, out, "garbage")
}
