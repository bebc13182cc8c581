package orgs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlugify(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"Acme Corp", "acme-corp"},
		{"  Acme   Corp  ", "acme-corp"},
		{"Acme & Sons, Ltd.", "acme-sons-ltd"},
		{"ACME", "acme"},
		{"café 42", "café-42"},
		{"---", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, slugify(tt.name), "slugify(%q)", tt.name)
	}
}
