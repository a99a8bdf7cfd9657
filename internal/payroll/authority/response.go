package authority

import (
	"strings"

	"github.com/beevik/etree"

	dErrors "nomina/pkg/domain-errors"
)

// Authority status codes treated as acceptance. 00 is accepted, 66 is
// accepted pending validation; everything else is a rejection.
var successCodes = map[string]bool{
	"00": true,
	"66": true,
}

// Receipt is the parsed outcome of a submission attempt.
type Receipt struct {
	Success       bool   `json:"success"`
	StatusCode    string `json:"status_code"`
	StatusMessage string `json:"status_message"`
	TrackingID    string `json:"tracking_id"`
}

// StatusResult is the parsed outcome of a status query.
type StatusResult struct {
	Status        string `json:"status"`
	StatusCode    string `json:"status_code"`
	StatusMessage string `json:"status_message"`
}

// parseSubmitResponse classifies the authority's SOAP response to a
// submission. A SOAP Fault or an unknown status code yields an unsuccessful
// receipt with the authority's message recorded verbatim; a body that is not
// recognizably the expected operation response is a transport-level failure.
func parseSubmitResponse(body []byte) (Receipt, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(body); err != nil {
		return Receipt{}, dErrors.Wrap(err, dErrors.CodeTransport, "parse authority response")
	}
	root := doc.Root()
	if root == nil {
		return Receipt{}, dErrors.New(dErrors.CodeTransport, "empty authority response")
	}

	if fault := findLocal(root, "Fault"); fault != nil {
		message := faultMessage(fault)
		return Receipt{
			Success:       false,
			StatusCode:    "FAULT",
			StatusMessage: message,
		}, nil
	}

	result := findLocal(root, opSubmit+"Result")
	if result == nil {
		return Receipt{}, dErrors.New(dErrors.CodeTransport, "authority response has no submit result")
	}

	code := strings.TrimSpace(textLocal(result, "StatusCode"))
	return Receipt{
		Success:       successCodes[code],
		StatusCode:    code,
		StatusMessage: strings.TrimSpace(textLocal(result, "StatusMessage")),
		TrackingID:    strings.TrimSpace(textLocal(result, "XmlDocumentKey")),
	}, nil
}

// parseStatusResponse extracts the status-query result.
func parseStatusResponse(body []byte) (StatusResult, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(body); err != nil {
		return StatusResult{}, dErrors.Wrap(err, dErrors.CodeTransport, "parse status response")
	}
	root := doc.Root()
	if root == nil {
		return StatusResult{}, dErrors.New(dErrors.CodeTransport, "empty status response")
	}

	if fault := findLocal(root, "Fault"); fault != nil {
		return StatusResult{}, dErrors.New(dErrors.CodeRejected, faultMessage(fault))
	}

	result := findLocal(root, opStatus+"Result")
	if result == nil {
		return StatusResult{}, dErrors.New(dErrors.CodeTransport, "authority response has no status result")
	}

	return StatusResult{
		Status:        strings.TrimSpace(textLocal(result, "Status")),
		StatusCode:    strings.TrimSpace(textLocal(result, "StatusCode")),
		StatusMessage: strings.TrimSpace(textLocal(result, "StatusMessage")),
	}, nil
}

func faultMessage(fault *etree.Element) string {
	if msg := strings.TrimSpace(textLocal(fault, "faultstring")); msg != "" {
		return msg
	}
	return "authority returned an unspecified fault"
}

// findLocal searches the subtree for the first element with the given local
// tag name, ignoring namespace prefixes: the authority's responses have
// varied prefixes across environments.
func findLocal(el *etree.Element, local string) *etree.Element {
	for _, child := range el.ChildElements() {
		if child.Tag == local {
			return child
		}
		if found := findLocal(child, local); found != nil {
			return found
		}
	}
	return nil
}

func textLocal(el *etree.Element, local string) string {
	if found := findLocal(el, local); found != nil {
		return found.Text()
	}
	return ""
}
