package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInferTools(t *testing.T) {
	cases := []struct {
		description string
		want        []string
	}{
		{"Create a file called notes.txt", []string{"write_file"}},
		{"Run the command ls -la", []string{"bash"}},
		{"Search for TODO markers", []string{"grep"}},
		{"Fetch the web price of gold", []string{"web"}},
		{"Commit the changes with git", []string{"git"}},
		{"Think about the answer", nil},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, inferTools(tc.description), tc.description)
	}
}

func TestClassifyComplexity(t *testing.T) {
	assert.Equal(t, ComplexitySimple, classifyComplexity("hello"))
	assert.Equal(t, ComplexityModerate, classifyComplexity("create a file for me"))
	assert.Equal(t, ComplexityComplex, classifyComplexity("create a file and then run the tests"))
}

func TestExtractCommand(t *testing.T) {
	assert.Equal(t, "ls -la", extractCommand("Run `ls -la` in the repo"))
	assert.Equal(t, "make build", extractCommand("Execute the command make build."))
	assert.Equal(t, "", extractCommand("Nothing to see here"))
}

func TestExtractFilePathPrecedence(t *testing.T) {
	// Structured path wins over a bare extension token.
	assert.Equal(t, "src/main.go", extractFilePath("Edit src/main.go and also touch readme.md"))
	assert.Equal(t, "notes.txt", extractFilePath(`Write "notes.txt" with the summary`))
	assert.Equal(t, "report.md", extractFilePath("Create a file called report.md"))
	assert.Equal(t, "data.csv", extractFilePath("Append results to data.csv"))
	assert.Equal(t, "file.txt", extractFilePath("Write something down"))
}

func TestExtractPattern(t *testing.T) {
	assert.Equal(t, "func main", extractPattern(`Search for "func main" in the tree`))
	assert.Equal(t, "TODO", extractPattern("grep for the TODO markers"))
	assert.Equal(t, ".*", extractPattern("go"))
}

func TestHasAnaphora(t *testing.T) {
	assert.True(t, hasAnaphora("Read it back"))
	assert.True(t, hasAnaphora("Print the output"))
	assert.True(t, hasAnaphora("Open that file"))
	assert.False(t, hasAnaphora("List the directory"))
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Write(notes.txt)", DisplayName("write_file", map[string]any{"file_path": "notes.txt"}))
	assert.Equal(t, "Bash(ls -la)", DisplayName("bash", map[string]any{"command": "ls -la"}))
	assert.Equal(t, `WebSearch("price of gold")`, DisplayName("web", map[string]any{"query": "price of gold"}))
	assert.Equal(t, "mystery", DisplayName("mystery", nil))
}
