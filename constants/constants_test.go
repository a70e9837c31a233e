package constants

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMapExtToFormat(t *testing.T) {
	assert.Equal(t, IMAGE, MapExtToFormat(".PNG"))
	assert.Equal(t, IMAGE, MapExtToFormat("tiff"))
	assert.Equal(t, PDF, MapExtToFormat(".pdf"))
	assert.Equal(t, UNKNOWN, MapExtToFormat(".docx"))
	assert.Equal(t, UNKNOWN, MapExtToFormat(""))
}
