// Package textutil holds the string helpers shared by the pipeline:
// caption derivation from narration text and filename sanitizing for
// uploaded objects.
//
// Text is normalized to Unicode NFC before it is measured so that a caption
// limit of 100 characters means 100 user-visible runes regardless of how the
// script provider composed accents.
package textutil
