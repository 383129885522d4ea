package matte

import (
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBackground(t *testing.T) {
	tests := []struct {
		in      string
		want    Background
		wantErr bool
	}{
		{in: "transparent", want: Background{Transparent: true}},
		{in: "  Transparent ", want: Background{Transparent: true}},
		{in: "#ff8000", want: Background{Color: color.RGBA{R: 255, G: 128, A: 255}}},
		{in: "ff8000", want: Background{Color: color.RGBA{R: 255, G: 128, A: 255}}},
		{in: "##00FF00", want: Background{Color: color.RGBA{G: 255, A: 255}}},
		{in: "#000000", want: Background{Color: color.RGBA{A: 255}}},
		{in: "#fff", wantErr: true},
		{in: "", wantErr: true},
		{in: "gggggg", wantErr: true},
		{in: "#12345678", wantErr: true},
		{in: "0x1234", wantErr: true},
		{in: "+12345", wantErr: true},
		{in: "red", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseBackground(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidColor)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBackground_String(t *testing.T) {
	bg, err := ParseBackground("#FFaa00")
	require.NoError(t, err)
	assert.Equal(t, "#ffaa00", bg.String())
	assert.Equal(t, "transparent", Background{Transparent: true}.String())
}
