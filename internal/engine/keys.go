package engine

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// keyDef describes how one key travels over the wire.
type keyDef struct {
	Key     string
	Code    string
	KeyCode int
	Text    string
}

// namedKeys covers the non-printing keys a test author refers to by name.
// Printable input goes through runeEvents instead.
var namedKeys = map[string]keyDef{
	"Enter":      {Key: "Enter", Code: "Enter", KeyCode: 13, Text: "\r"},
	"Tab":        {Key: "Tab", Code: "Tab", KeyCode: 9},
	"Escape":     {Key: "Escape", Code: "Escape", KeyCode: 27},
	"Backspace":  {Key: "Backspace", Code: "Backspace", KeyCode: 8},
	"Delete":     {Key: "Delete", Code: "Delete", KeyCode: 46},
	"ArrowUp":    {Key: "ArrowUp", Code: "ArrowUp", KeyCode: 38},
	"ArrowDown":  {Key: "ArrowDown", Code: "ArrowDown", KeyCode: 40},
	"ArrowLeft":  {Key: "ArrowLeft", Code: "ArrowLeft", KeyCode: 37},
	"ArrowRight": {Key: "ArrowRight", Code: "ArrowRight", KeyCode: 39},
	"Home":       {Key: "Home", Code: "Home", KeyCode: 36},
	"End":        {Key: "End", Code: "End", KeyCode: 35},
	"PageUp":     {Key: "PageUp", Code: "PageUp", KeyCode: 33},
	"PageDown":   {Key: "PageDown", Code: "PageDown", KeyCode: 34},
	"Space":      {Key: " ", Code: "Space", KeyCode: 32, Text: " "},
}

// keyEvents translates a named key (or a single printable character) into
// its down/up event pair.
func keyEvents(key string) ([]KeyEvent, error) {
	if def, ok := namedKeys[key]; ok {
		return pairFor(def), nil
	}
	if utf8.RuneCountInString(key) == 1 {
		r, _ := utf8.DecodeRuneInString(key)
		return runeEvents(r), nil
	}
	return nil, fmt.Errorf("unknown key %q", key)
}

// runeEvents translates one printable character into its down/up pair, as
// used for each character when typing text.
func runeEvents(r rune) []KeyEvent {
	if r == '\n' || r == '\r' {
		return pairFor(namedKeys["Enter"])
	}
	if r == '\t' {
		return pairFor(namedKeys["Tab"])
	}

	text := string(r)
	def := keyDef{Key: text, Text: text}
	switch {
	case r >= 'a' && r <= 'z':
		def.Code = "Key" + strings.ToUpper(text)
		def.KeyCode = int(r) - ('a' - 'A')
	case r >= 'A' && r <= 'Z':
		def.Code = "Key" + text
		def.KeyCode = int(r)
	case r >= '0' && r <= '9':
		def.Code = "Digit" + text
		def.KeyCode = int(r)
	case r == ' ':
		def.Code = "Space"
		def.KeyCode = 32
	}
	return pairFor(def)
}

func pairFor(def keyDef) []KeyEvent {
	down := KeyEvent{Type: KeyDown, Key: def.Key, Code: def.Code, Text: def.Text, KeyCode: def.KeyCode}
	up := KeyEvent{Type: KeyUp, Key: def.Key, Code: def.Code, KeyCode: def.KeyCode}
	return []KeyEvent{down, up}
}
