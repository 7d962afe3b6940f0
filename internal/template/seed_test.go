package template

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const seedYAML = `
templates:
  - code: LPA-SEED
    name: Seeded audit
    target_type: machine
    sections:
      - title: Safety
        questions:
          - text: Guards in place?
            mandatory: true
          - text: E-stop tested?
      - title: Quality
        questions:
          - text: FOA signed?
            guidance: Check the board
`

func TestParseSeed(t *testing.T) {
	f, err := ParseSeed(strings.NewReader(seedYAML))
	require.NoError(t, err)
	require.Len(t, f.Templates, 1)

	req := f.Templates[0].Request("seeder")
	assert.Equal(t, "LPA-SEED", req.Code)
	assert.Equal(t, "seeder", req.CreatedBy)
	require.Len(t, req.Sections, 2)
	assert.True(t, req.Sections[0].Questions[0].Mandatory)
	assert.Equal(t, "Check the board", req.Sections[1].Questions[0].Guidance)

	_, err = ParseSeed(strings.NewReader("templates: []"))
	assert.Error(t, err)
	_, err = ParseSeed(strings.NewReader("templates:\n  - code: X\n    colour: red\n"))
	assert.Error(t, err, "unknown fields are rejected")
}

func TestCatalogSeed(t *testing.T) {
	catalog, _ := setupCatalog(t, nil)
	ctx := context.Background()
	f, err := ParseSeed(strings.NewReader(seedYAML))
	require.NoError(t, err)

	results, err := catalog.Seed(ctx, f, SeedOptions{CreatedBy: "seeder", Publish: true})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.NotNil(t, results[0].Template)
	assert.True(t, results[0].Template.Published)
	assert.Equal(t, 1, results[0].Template.Version)

	questions, err := catalog.QuestionsFor(ctx, results[0].Template.ID)
	require.NoError(t, err)
	assert.Len(t, questions, 3)

	// 再次导入同 code 跳过
	results, err = catalog.Seed(ctx, f, SeedOptions{CreatedBy: "seeder"})
	require.NoError(t, err)
	assert.True(t, results[0].Skipped)

	results, err = catalog.Seed(ctx, f, SeedOptions{CreatedBy: "seeder", NewVersion: true})
	require.NoError(t, err)
	require.NotNil(t, results[0].Template)
	assert.Equal(t, 2, results[0].Template.Version)
	assert.False(t, results[0].Template.Published)
}
