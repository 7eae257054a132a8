package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPageRequest_Normalize(t *testing.T) {
	tests := []struct {
		name string
		in   PageRequest
		want PageRequest
	}{
		{"defaults", PageRequest{}, PageRequest{Page: 1, Limit: DefaultPageLimit}},
		{"limit capped", PageRequest{Page: 2, Limit: 500}, PageRequest{Page: 2, Limit: MaxPageLimit}},
		{"page capped", PageRequest{Page: math.MaxInt, Limit: 20}, PageRequest{Page: MaxPage, Limit: 20}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.in.Normalize())
		})
	}
}

func TestPageRequest_Offset(t *testing.T) {
	assert.Equal(t, 0, PageRequest{Page: 1, Limit: 20}.Offset())
	assert.Equal(t, 40, PageRequest{Page: 3, Limit: 20}.Offset())
	assert.Equal(t, (MaxPage-1)*MaxPageLimit, PageRequest{Page: math.MaxInt, Limit: MaxPageLimit}.Normalize().Offset())

	// sans Normalize, le calcul sature au lieu de devenir négatif
	assert.Equal(t, math.MaxInt, PageRequest{Page: math.MaxInt, Limit: 20}.Offset())
}
