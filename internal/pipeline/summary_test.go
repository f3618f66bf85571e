package pipeline

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveSummarySkipsHeadings(t *testing.T) {
	body := "# Page Title\n\n## Subsection\nThis page introduces kinematics.\nIt defines velocity."
	got := DeriveSummary(body, 4)

	assert.Equal(t, "[page 4] This page introduces kinematics. It defines velocity.", got)
}

func TestDeriveSummaryEmptyBody(t *testing.T) {
	assert.Empty(t, DeriveSummary("", 1))
	assert.Empty(t, DeriveSummary("# only a heading\n\n", 1))
}

func TestDeriveSummaryBounded(t *testing.T) {
	body := strings.Repeat("word ", 200)
	got := DeriveSummary(body, 7)

	assert.True(t, strings.HasPrefix(got, "[page 7] word"))
	// The label sits outside the bound; the extracted text inside it.
	assert.LessOrEqual(t, len([]rune(got)), summaryMaxChars+len("[page 7] "))
}

func TestDeriveSummaryMultibyte(t *testing.T) {
	body := strings.Repeat("числа", 100)
	got := DeriveSummary(body, 2)

	// Truncation must never split a rune.
	assert.True(t, strings.HasPrefix(got, "[page 2] числа"))
	for _, r := range got {
		assert.NotEqual(t, '�', r)
	}
}
