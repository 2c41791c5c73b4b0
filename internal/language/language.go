// Package language maps language codes to display names. It is the single
// place where a code is turned into the name used in prompts and where
// summary phrase rules are selected.
package language

import "strings"

// DefaultCode is used for empty or unrecognized language codes.
const DefaultCode = "en"

var names = map[string]string{
	"ar": "Arabic",
	"cs": "Czech",
	"da": "Danish",
	"de": "German",
	"el": "Greek",
	"en": "English",
	"es": "Spanish",
	"fi": "Finnish",
	"fr": "French",
	"he": "Hebrew",
	"hi": "Hindi",
	"hu": "Hungarian",
	"id": "Indonesian",
	"it": "Italian",
	"ja": "Japanese",
	"ko": "Korean",
	"nl": "Dutch",
	"no": "Norwegian",
	"pl": "Polish",
	"pt": "Portuguese",
	"ro": "Romanian",
	"ru": "Russian",
	"sv": "Swedish",
	"th": "Thai",
	"tr": "Turkish",
	"uk": "Ukrainian",
	"vi": "Vietnamese",
	"zh": "Chinese",
}

// Some transcription backends report full names instead of codes.
var byName = func() map[string]string {
	m := make(map[string]string, len(names))
	for code, name := range names {
		m[strings.ToLower(name)] = code
	}
	return m
}()

// Normalize reduces a code such as "pt-BR", "en_US" or "spanish" to its base
// code. Unknown values normalize to DefaultCode.
func Normalize(code string) string {
	c := strings.ToLower(strings.TrimSpace(code))
	if i := strings.IndexAny(c, "-_"); i >= 0 {
		c = c[:i]
	}
	if _, ok := names[c]; ok {
		return c
	}
	if mapped, ok := byName[c]; ok {
		return mapped
	}
	return DefaultCode
}

// Known reports whether the code (after normalization of region suffixes) is in the table.
func Known(code string) bool {
	c := strings.ToLower(strings.TrimSpace(code))
	if i := strings.IndexAny(c, "-_"); i >= 0 {
		c = c[:i]
	}
	_, ok := names[c]
	if !ok {
		_, ok = byName[c]
	}
	return ok
}

// Name returns the English display name for a code, falling back to the
// default language name.
func Name(code string) string {
	return names[Normalize(code)]
}

// Resolve picks the first known code from the candidates, in order.
func Resolve(candidates ...string) string {
	for _, c := range candidates {
		if Known(c) {
			return Normalize(c)
		}
	}
	return DefaultCode
}
