package document

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractCell(t *testing.T) {
	t.Run("content kept verbatim", func(t *testing.T) {
		cells := []string{
			"Premiums start at PHP 1,000 <monthly> for Product A.",
			"Use code __SAVE__ at checkout",
			"# AXA Health Plans\n\nProtect your **family**.",
			"Save &amp; invest",
		}
		for _, cell := range cells {
			assert.Equal(t, cell, ExtractCell(cell))
		}
	})

	t.Run("surrounding whitespace trimmed", func(t *testing.T) {
		assert.Equal(t, "Product B", ExtractCell("  Product B \n"))
	})

	t.Run("blank", func(t *testing.T) {
		assert.Equal(t, "", ExtractCell(""))
		assert.Equal(t, "", ExtractCell(" \n\t "))
	})
}
