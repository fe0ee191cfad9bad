package core

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	reEspacos  = regexp.MustCompile(`\s+`)
	reSlugJunk = regexp.MustCompile(`[^a-z0-9]+`)

	removeAcentos = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
)

// SemAcentos strips diacritics ("cartão" -> "cartao").
func SemAcentos(s string) string {
	out, _, err := transform.String(removeAcentos, s)
	if err != nil {
		return s
	}
	return out
}

// NormalizarDescricao puts an imported description in canonical form:
// whitespace collapsed, accents removed, lowercase. Matching and dedupe
// always operate on this form.
func NormalizarDescricao(s string) string {
	s = reEspacos.ReplaceAllString(strings.TrimSpace(s), " ")
	return strings.ToLower(SemAcentos(s))
}

// NormalizarMaiusculas is the uppercase variant used by the line hashes of
// card statements.
func NormalizarMaiusculas(s string) string {
	s = reEspacos.ReplaceAllString(strings.TrimSpace(s), " ")
	return strings.ToUpper(SemAcentos(s))
}

// Slug reduces a name to a path-friendly token ("Conta Corrente" -> "conta-corrente").
// Used to match member names against import directory segments.
func Slug(s string) string {
	s = strings.ToLower(SemAcentos(strings.TrimSpace(s)))
	return strings.Trim(reSlugJunk.ReplaceAllString(s, "-"), "-")
}
