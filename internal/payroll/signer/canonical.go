package signer

import (
	"strings"

	"github.com/beevik/etree"
)

// canonicalElement serializes an element subtree deterministically:
// indentation whitespace stripped, canonical text/attribute escaping, end
// tags always explicit. Sign and Verify both digest through this function,
// so the signature survives re-indentation but not content changes.
func canonicalElement(el *etree.Element) []byte {
	clone := el.Copy()
	stripIndent(clone)

	doc := etree.NewDocument()
	doc.SetRoot(clone)
	doc.WriteSettings = etree.WriteSettings{
		CanonicalEndTags: true,
		CanonicalText:    true,
		CanonicalAttrVal: true,
	}
	out, err := doc.WriteToBytes()
	if err != nil {
		// WriteToBytes only fails on writer errors; a bytes buffer cannot.
		return nil
	}
	return out
}

// canonicalSignedInfo canonicalizes a SignedInfo element standalone. The ds
// namespace declaration is inherited from the Signature parent in the full
// document, so it is re-declared here to keep the standalone form complete.
func canonicalSignedInfo(signedInfo *etree.Element) []byte {
	clone := signedInfo.Copy()
	if clone.SelectAttr("xmlns:ds") == nil {
		clone.CreateAttr("xmlns:ds", dsNamespace)
	}
	return canonicalElement(clone)
}

// stripIndent removes whitespace-only character data from elements that have
// element children, i.e. pretty-printing artifacts.
func stripIndent(el *etree.Element) {
	hasChildElements := len(el.ChildElements()) > 0
	if hasChildElements {
		kept := el.Child[:0]
		for _, child := range el.Child {
			if cd, ok := child.(*etree.CharData); ok && strings.TrimSpace(cd.Data) == "" {
				continue
			}
			kept = append(kept, child)
		}
		el.Child = kept
	}
	for _, child := range el.ChildElements() {
		stripIndent(child)
	}
}

// findChildLocal returns the first direct child whose local tag name matches,
// regardless of namespace prefix.
func findChildLocal(el *etree.Element, local string) *etree.Element {
	for _, child := range el.ChildElements() {
		if child.Tag == local {
			return child
		}
	}
	return nil
}

// findDescendantLocal searches the subtree depth-first by local tag name.
func findDescendantLocal(el *etree.Element, local string) *etree.Element {
	for _, child := range el.ChildElements() {
		if child.Tag == local {
			return child
		}
		if found := findDescendantLocal(child, local); found != nil {
			return found
		}
	}
	return nil
}

// textOfLocal walks a chain of local tag names from el and returns the text
// of the final element, or "" when any link is missing.
func textOfLocal(el *etree.Element, path ...string) string {
	current := el
	for _, local := range path {
		current = findChildLocal(current, local)
		if current == nil {
			return ""
		}
	}
	return current.Text()
}
