package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/snarg/freescanner-live/internal/scanner"
)

// Theme is the color palette of the terminal front panel. Colors are ANSI
// 256-color codes.
type Theme struct {
	NormalText lipgloss.Color
	FaintText  lipgloss.Color
	// DimmedText replaces every foreground while the panel is dimmed.
	DimmedText lipgloss.Color

	SelectedBackground lipgloss.Color
	SelectedForeground lipgloss.Color

	// LED colors keyed by palette name. LedOff is the unlit LED.
	LedColors map[string]lipgloss.Color
	LedOff    lipgloss.Color

	FlagActive   lipgloss.Color // Lit hold/avoid/patch indicators.
	FlagInactive lipgloss.Color
	ErrorText    lipgloss.Color

	CategoryOn      lipgloss.Color
	CategoryPartial lipgloss.Color
	CategoryOff     lipgloss.Color

	HeaderForeground lipgloss.Color
	BorderColor      lipgloss.Color
	HelpText         lipgloss.Color
}

// LedColor returns the color for a display LED style such as
// "on paused blue". Lit LEDs without a palette color are green.
func (theme Theme) LedColor(style string) lipgloss.Color {
	fields := strings.Fields(style)
	if len(fields) == 0 || fields[0] != "on" {
		return theme.LedOff
	}
	if last := fields[len(fields)-1]; scanner.ValidLed(last) {
		if c, ok := theme.LedColors[last]; ok {
			return c
		}
	}
	return theme.LedColors["green"]
}

// CategoryColor returns the color for a category status.
func (theme Theme) CategoryColor(status scanner.CategoryStatus) lipgloss.Color {
	switch status {
	case scanner.CategoryOn:
		return theme.CategoryOn
	case scanner.CategoryPartial:
		return theme.CategoryPartial
	default:
		return theme.CategoryOff
	}
}

// DefaultTheme is tuned for dark 256-color terminals.
var DefaultTheme = Theme{
	NormalText: lipgloss.Color("252"),
	FaintText:  lipgloss.Color("245"),
	DimmedText: lipgloss.Color("239"),

	SelectedBackground: lipgloss.Color("236"),
	SelectedForeground: lipgloss.Color("255"),

	LedColors: map[string]lipgloss.Color{
		"blue":    lipgloss.Color("33"),
		"cyan":    lipgloss.Color("51"),
		"green":   lipgloss.Color("46"),
		"magenta": lipgloss.Color("201"),
		"orange":  lipgloss.Color("208"),
		"red":     lipgloss.Color("196"),
		"white":   lipgloss.Color("255"),
		"yellow":  lipgloss.Color("226"),
	},
	LedOff: lipgloss.Color("238"),

	FlagActive:   lipgloss.Color("220"), // amber
	FlagInactive: lipgloss.Color("238"),
	ErrorText:    lipgloss.Color("196"),

	CategoryOn:      lipgloss.Color("114"), // green
	CategoryPartial: lipgloss.Color("220"),
	CategoryOff:     lipgloss.Color("245"),

	HeaderForeground: lipgloss.Color("255"),
	BorderColor:      lipgloss.Color("240"),
	HelpText:         lipgloss.Color("241"),
}
